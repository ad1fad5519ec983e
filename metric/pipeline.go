package metric

import (
	"context"
	"fmt"

	"github.com/danweinerdev/monitorlib/config"
	"github.com/danweinerdev/monitorlib/logging"
	"github.com/danweinerdev/monitorlib/storage"
)

// DefaultBatchSize is the number of records grouped into a single backend
// write when no batch size is configured.
const DefaultBatchSize = 10

// FlushResult reports what a Flush call achieved. Sent counts the records
// delivered to the backend; Complete is false when a transient failure
// stopped the flush with records still queued.
type FlushResult struct {
	Sent     int
	Complete bool
}

// Pipeline is an ordered queue of records with enqueue-time validation,
// batch-bounded flushing, and a swappable storage backend. See the package
// documentation for the delivery and concurrency model.
type Pipeline struct {
	schema    *config.Schema
	log       *logging.Logger
	batchSize int
	queue     []*Record
	backend   storage.Backend
	down      bool

	// openBackend is replaceable in tests.
	openBackend func(kind string, cfg map[string]any, log *logging.Logger) (storage.Backend, error)
}

// NewPipeline creates a pipeline validating against schema. A batchSize of
// zero or less selects DefaultBatchSize; a nil logger discards output.
func NewPipeline(schema *config.Schema, batchSize int, log *logging.Logger) *Pipeline {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Pipeline{
		schema:      schema,
		log:         log,
		batchSize:   batchSize,
		openBackend: storage.Open,
	}
}

// Enqueue validates records against the schema and appends the accepted
// ones to the queue tail. A record naming an unknown measurement or field
// is dropped whole. A field whose value cannot be coerced to its declared
// type degrades to that type's default instead of rejecting the record.
// Records without any fields are never queued. After Shutdown, Enqueue is a
// no-op.
func (p *Pipeline) Enqueue(records ...*Record) {
	if p.down {
		return
	}
	for _, rec := range records {
		if rec == nil {
			p.log.Warn("invalid metric sent to the queue")
			continue
		}
		if p.prepare(rec) {
			p.queue = append(p.queue, rec)
		}
	}
}

// prepare populates a record's clean field values, reporting whether the
// record should be queued.
func (p *Pipeline) prepare(rec *Record) bool {
	for name, field := range rec.fields {
		hint, err := p.schema.GetField(rec.Measurement, name)
		if err != nil {
			p.log.Warn("invalid metric", "measurement", rec.Measurement,
				"field", name, "error", err)
			return false
		}
		clean, err := config.CoerceHinted(rawValue(field.original), hint)
		if err != nil {
			p.log.Warn("unable to convert measurement value",
				"measurement", rec.Measurement, "field", name,
				"value", field.original, "hint", hint.String())
			clean, _ = config.DefaultValue(hint)
		}
		field.clean = clean
	}
	if len(rec.fields) == 0 {
		p.log.Warn("metric has no fields", "measurement", rec.Measurement,
			"entity", rec.Entity)
		return false
	}
	return true
}

// Flush drains the queue to the backend in batches of at most the
// configured batch size, constructing the backend from the schema's
// database selection on first use.
//
// On a transient backend failure the flush stops, the unsent records stay
// queued for the next call, and the result reports Complete=false with the
// count sent so far. A non-nil error is a fatal configuration problem and
// is intended to terminate the host process. After Shutdown, Flush reports
// no work done.
func (p *Pipeline) Flush(ctx context.Context) (FlushResult, error) {
	if p.down {
		return FlushResult{}, nil
	}

	var sent int
	for len(p.queue) > 0 {
		count := min(p.batchSize, len(p.queue))

		points := make([]storage.Point, 0, count)
		for _, rec := range p.queue[:count] {
			// A record that lost all fields still counts toward the batch
			// so the prefix removal below stays exact.
			if len(rec.fields) == 0 {
				continue
			}
			points = append(points, rec.point())
		}

		if p.backend == nil {
			backend, err := p.connect()
			if err != nil {
				return FlushResult{Sent: sent}, err
			}
			p.backend = backend
		}

		if err := p.write(ctx, points); err != nil {
			if storage.IsFatal(err) {
				return FlushResult{Sent: sent}, err
			}
			p.logTransient(err)
			return FlushResult{Sent: sent}, nil
		}

		sent += len(points)
		p.queue = p.queue[count:]
	}
	return FlushResult{Sent: sent, Complete: true}, nil
}

// connect builds the backend from the schema's database selection. Any
// failure here is a configuration error, not a transient fault.
func (p *Pipeline) connect() (storage.Backend, error) {
	kind, cfg, err := p.schema.GetDatabase()
	if err != nil {
		return nil, fmt.Errorf("resolving database config: %w", err)
	}
	return p.openBackend(kind, cfg, p.log)
}

// write sends one batch and flushes the backend.
func (p *Pipeline) write(ctx context.Context, points []storage.Point) error {
	if err := p.backend.Write(ctx, points); err != nil {
		return err
	}
	return p.backend.Flush(ctx)
}

// logTransient records a queue-preserving flush failure, at warning level
// for the classified transient kinds and at error level for anything
// unexpected.
func (p *Pipeline) logTransient(err error) {
	if storage.IsTransient(err) {
		p.log.Warn("failed to send metrics to database", "error", err)
		return
	}
	p.log.Error("unhandled error sending metrics", "error", err)
}

// Reload flushes what it can, discards the backend handle, and swaps in the
// new schema. Failures along the way are logged and swallowed; the backend
// is always cleared and the schema swap always happens, so the next flush
// reconnects under the new configuration with the surviving queue intact.
func (p *Pipeline) Reload(ctx context.Context, schema *config.Schema) {
	p.log.Warn("reloading metrics pipeline")
	if _, err := p.Flush(ctx); err != nil {
		p.log.Warn("error during reload", "error", err)
	}
	if p.backend != nil {
		if err := p.backend.Close(); err != nil {
			p.log.Warn("error during reload", "error", err)
		}
	}
	p.backend = nil
	p.schema = schema
}

// Shutdown flushes remaining records on a best-effort basis, closes the
// backend, and stops the pipeline; afterwards Enqueue and Flush are no-ops
// and anything still queued is lost. When crash is set, errors are not even
// logged, since the process is already terminating abnormally.
func (p *Pipeline) Shutdown(ctx context.Context, crash bool) {
	if _, err := p.Flush(ctx); err != nil && !crash {
		p.log.Warn("error during metric pipeline shutdown", "error", err)
	}
	if p.backend != nil {
		if err := p.backend.Close(); err != nil && !crash {
			p.log.Warn("error during metric pipeline shutdown", "error", err)
		}
	}
	p.backend = nil
	p.down = true
}

// IsEmpty reports whether the queue holds no records.
func (p *Pipeline) IsEmpty() bool {
	return len(p.queue) == 0
}

// Len returns the number of queued records.
func (p *Pipeline) Len() int {
	return len(p.queue)
}

// rawValue renders a field's original value for coercion.
func rawValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
