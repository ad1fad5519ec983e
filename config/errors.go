package config

import "errors"

// Domain errors for the config package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, config.ErrConversion) {
//	    // handle failed type coercion
//	}
var (
	// ErrInvalidConfig is returned when the configuration file is missing,
	// unparsable, or violates a schema invariant.
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrConversion is returned when a value cannot be coerced to its
	// declared type.
	ErrConversion = errors.New("config: invalid type conversion")

	// ErrUnknownMeasurement is returned when a measurement name is not
	// present in the loaded schema.
	ErrUnknownMeasurement = errors.New("config: unknown measurement")

	// ErrUnknownField is returned when a field is not declared on a known
	// measurement.
	ErrUnknownField = errors.New("config: unknown field")

	// ErrUnknownEntity is returned when an entity name is not present in the
	// root entry list.
	ErrUnknownEntity = errors.New("config: unknown entity")
)
