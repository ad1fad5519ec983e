// Package config handles loading and validating the monitor schema configuration.
//
// This package manages:
//   - Parsing the sectioned configuration file into a typed schema
//   - Coercing raw text values into native types (hinted and inferred paths)
//   - Validating entries, measurements, and backend selection
//   - Lazy loading with explicit reload support
//
// # File Format
//
// The configuration file is INI-style. A [global] section selects the storage
// backend and names the root entry list; every entry, measurement, and backend
// kind gets its own section:
//
//	[global]
//	database = influxdb
//	devices = router switch
//
//	[influxdb]
//	server = influx.example.net
//	token = s3cret
//	org = home
//	bucket = telemetry
//
//	[router]
//	measurements = cpu memory
//	tags = site=lab rack=top
//
//	[cpu]
//	load = float
//	cores = int
//
// Measurement sections map field names to type hints; the hint strings for
// measurement fields are restricted to bool, float, int, and string.
//
// # Lifecycle
//
// A Schema is constructed unloaded and loads itself on the first accessor
// call. Load is all-or-nothing: any failure leaves the schema unloaded and no
// partial state is retained. Reload clears the loaded state and re-parses
// from disk.
//
// # Thread Safety
//
// Schema is not safe for concurrent mutation. The caller is expected to
// invoke accessors and Reload sequentially, never overlapping.
package config
