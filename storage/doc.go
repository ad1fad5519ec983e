// Package storage defines the backend contract for forwarding metric points
// to a time-series store, and ships the concrete backends.
//
// # Contract
//
// A Backend has a four-call lifecycle: Initialize, Write, Flush, Close. A
// backend lazily initialises itself on the first Write or Flush if the caller
// has not done so. The pipeline owns at most one backend instance at a time
// and constructs it through Open from the schema's database selection.
//
// # Backends
//
//   - influxdb: writes points to an InfluxDB v2 server over HTTP(S) using the
//     official client (synchronous writes, millisecond precision)
//   - mqtt: forwards points to an MQTT topic as line protocol payloads
//   - sqlite: persists points to a local SQLite table
//
// # Error Classification
//
// Backend failures fall into three classes, and callers depend on the
// distinction:
//
//   - fatal: missing essential configuration or an unsupported backend kind
//     (ErrMissingConfig, ErrUnsupportedKind); check with IsFatal
//   - transient: connectivity, timeouts, server-side errors
//     (ErrUnavailable, ErrWriteFailed)
//   - unexpected: anything else; logged at a higher severity but treated as
//     transient by callers
//
// # Thread Safety
//
// Backends are driven by a single caller; they perform no internal threading
// and are not safe for concurrent use.
package storage
