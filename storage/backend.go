package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/danweinerdev/monitorlib/config"
	"github.com/danweinerdev/monitorlib/logging"
)

// Point is the backend-neutral representation of one encoded metric record:
// a measurement name, its tag pairs, the cleaned field values, and a capture
// timestamp. Backends serialise points at millisecond precision.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]any
	Time        time.Time
}

// Backend is the storage contract implemented by every concrete time-series
// store. A backend lazily initialises itself on the first Write or Flush if
// Initialize has not been called.
//
// Initialize returns a transient error on recoverable connection failures
// and a fatal one only when essential configuration is missing. Write and
// Flush classify their failures the same way; see the package documentation.
type Backend interface {
	Initialize(ctx context.Context) error
	Write(ctx context.Context, points []Point) error
	Flush(ctx context.Context) error
	Close() error
}

// Open constructs the backend for the given kind from its typed
// configuration. An unrecognised kind is a fatal error.
func Open(kind string, cfg map[string]any, log *logging.Logger) (Backend, error) {
	if log == nil {
		log = logging.Discard()
	}
	switch kind {
	case config.BackendInfluxDB:
		return newInflux(cfg, log)
	case config.BackendMQTT:
		return newMQTT(cfg, log)
	case config.BackendSQLite:
		return newSQLite(cfg, log)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
}

// stringOption reads a string value from a typed backend configuration.
func stringOption(cfg map[string]any, name string) (string, bool) {
	v, ok := cfg[name].(string)
	return v, ok
}

// intOption reads an integer value from a typed backend configuration.
func intOption(cfg map[string]any, name string) (int64, bool) {
	v, ok := cfg[name].(int64)
	return v, ok
}

// boolOption reads a boolean value from a typed backend configuration.
func boolOption(cfg map[string]any, name string) (bool, bool) {
	v, ok := cfg[name].(bool)
	return v, ok
}

// requireOptions checks that every named option is present, returning a
// fatal error naming the first one missing.
func requireOptions(cfg map[string]any, names ...string) error {
	for _, name := range names {
		if _, ok := cfg[name]; !ok {
			return fmt.Errorf("%w: %q", ErrMissingConfig, name)
		}
	}
	return nil
}
