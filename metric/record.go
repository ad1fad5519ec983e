package metric

import (
	"fmt"
	"strings"
	"time"

	"github.com/danweinerdev/monitorlib/storage"
)

// fieldState holds one field's raw value and the clean value produced by
// enqueue-time coercion.
type fieldState struct {
	original any
	clean    any
}

// Record is a single measurement produced on a polling tick. Records are
// created by the producer, owned exclusively by the pipeline once enqueued,
// and dropped after a successful flush or on validation rejection.
type Record struct {
	// Entity identifies the config entry that generated this measurement.
	Entity string

	// Measurement names what this record captures.
	Measurement string

	// Timestamp is the capture time, set at construction.
	Timestamp time.Time

	// Tags are free-form string pairs, not schema-validated.
	Tags map[string]string

	fields map[string]*fieldState
}

// NewRecord creates a record for the given entity and measurement,
// timestamped now.
func NewRecord(entity, measurement string, tags map[string]string) *Record {
	if tags == nil {
		tags = map[string]string{}
	}
	return &Record{
		Entity:      entity,
		Measurement: measurement,
		Timestamp:   time.Now().UTC(),
		Tags:        tags,
		fields:      make(map[string]*fieldState),
	}
}

// AddField records a raw field value. The clean value is populated later,
// during pipeline enqueue.
func (r *Record) AddField(field string, value any) {
	r.fields[field] = &fieldState{original: value}
}

// String implements fmt.Stringer.
func (r *Record) String() string {
	return fmt.Sprintf("Metric(%s): %s", r.Measurement, r.Entity)
}

// point encodes the record into the backend's point representation using
// the clean field values.
func (r *Record) point() storage.Point {
	fields := make(map[string]any, len(r.fields))
	for name, f := range r.fields {
		fields[name] = f.clean
	}
	return storage.Point{
		Measurement: r.Measurement,
		Tags:        r.Tags,
		Fields:      fields,
		Time:        r.Timestamp,
	}
}

// SanitizeName replaces whitespace and dots in a measurement name with
// underscores.
func SanitizeName(name string) string {
	return strings.NewReplacer(" ", "_", ".", "_").Replace(name)
}

// Timestamp serialises a time as an ISO 8601 date-time stamp in UTC. A zero
// time formats the current time.
func Timestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
