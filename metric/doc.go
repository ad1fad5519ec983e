// Package metric carries measurement records from a collector to a storage
// backend.
//
// A Record is one measurement captured on a polling tick: an entity
// identifier, a measurement name, a capture timestamp, free-form tags, and
// raw field values. The Pipeline validates records against the loaded
// schema at enqueue time, queues them in arrival order, and flushes them in
// batches to a storage backend constructed from the schema's database
// selection.
//
// # Delivery
//
// The queue is the only buffer between collection and storage. A transient
// backend failure stops the flush and leaves the unsent records queued, so
// every record is delivered at least once when the backend recovers. The
// queue is unbounded; it grows while the backend is unreachable. Fatal
// backend errors (unsupported kind, missing configuration) propagate out of
// Flush, since no retry can fix them.
//
// # Thread Safety
//
// The pipeline performs no internal threading and is not safe for
// concurrent use. A single external scheduler is expected to call Enqueue,
// Flush, Reload, and Shutdown sequentially.
package metric
