package storage

import "errors"

// Domain errors for the storage package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, storage.ErrUnavailable) {
//	    // retry on the next flush
//	}
var (
	// ErrUnsupportedKind is returned when the configured backend kind has no
	// implementation. Fatal: the system can never make progress.
	ErrUnsupportedKind = errors.New("storage: unsupported backend kind")

	// ErrMissingConfig is returned when essential backend configuration is
	// absent. Fatal: the system can never make progress.
	ErrMissingConfig = errors.New("storage: missing configuration option")

	// ErrUnavailable is returned on connectivity failures and timeouts.
	// Transient: the caller keeps its queue and retries later.
	ErrUnavailable = errors.New("storage: backend unavailable")

	// ErrWriteFailed is returned on request-level write failures, including
	// server-side errors. Transient: the caller keeps its queue and retries.
	ErrWriteFailed = errors.New("storage: write failed")
)

// IsFatal reports whether err belongs to the fatal class — a configuration
// problem that no retry can fix. Everything else is queue-preserving.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnsupportedKind) || errors.Is(err, ErrMissingConfig)
}

// IsTransient reports whether err is one of the classified transient kinds.
// Unclassified errors are not transient in name but callers still preserve
// their queue for them.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrWriteFailed)
}
