// Package logging provides structured logging for monitorlib.
//
// It wraps log/slog with level-based filtering and configurable output
// format. The pipeline and storage backends accept a *logging.Logger;
// library consumers that want silence can pass Discard().
//
// Usage:
//
//	log := logging.New(logging.Config{Level: "info", Format: "json"})
//	log.Info("pipeline ready", "batch_size", 10)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
package logging
