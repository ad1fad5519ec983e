package metric

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/danweinerdev/monitorlib/config"
	"github.com/danweinerdev/monitorlib/logging"
	"github.com/danweinerdev/monitorlib/storage"
)

const pipelineConfig = `
[global]
database = influxdb
devices = router

[influxdb]
server = influx.example.net
token = s3cret
org = home
bucket = telemetry

[router]
measurements = cpu
tags = site=lab

[cpu]
load = float
cores = int
model = string
`

// testSchema loads a schema from the standard pipeline config.
func testSchema(t *testing.T) *config.Schema {
	t.Helper()
	path := filepath.Join(t.TempDir(), "monitor.conf")
	if err := os.WriteFile(path, []byte(pipelineConfig), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	s := config.NewSchema(path, "devices")
	if err := s.Load(); err != nil {
		t.Fatalf("loading test schema: %v", err)
	}
	return s
}

// fakeBackend records writes and fails on a scripted batch number.
type fakeBackend struct {
	writes   [][]storage.Point
	failOn   int // 1-based batch number to fail at; 0 never fails
	failErr  error
	flushes  int
	closed   bool
	closeErr error
}

func (b *fakeBackend) Initialize(context.Context) error { return nil }

func (b *fakeBackend) Write(_ context.Context, points []storage.Point) error {
	if b.failOn > 0 && len(b.writes)+1 == b.failOn {
		return b.failErr
	}
	b.writes = append(b.writes, points)
	return nil
}

func (b *fakeBackend) Flush(context.Context) error {
	b.flushes++
	return nil
}

func (b *fakeBackend) Close() error {
	b.closed = true
	return b.closeErr
}

// newTestPipeline wires a pipeline to a fake backend.
func newTestPipeline(t *testing.T, batchSize int, backend storage.Backend) *Pipeline {
	t.Helper()
	p := NewPipeline(testSchema(t), batchSize, nil)
	p.openBackend = func(string, map[string]any, *logging.Logger) (storage.Backend, error) {
		return backend, nil
	}
	return p
}

// cpuRecord builds a valid record for the cpu measurement.
func cpuRecord(load string) *Record {
	rec := NewRecord("router", "cpu", map[string]string{"site": "lab"})
	rec.AddField("load", load)
	return rec
}

func TestEnqueue_UnknownMeasurementDropped(t *testing.T) {
	p := newTestPipeline(t, 10, &fakeBackend{})

	rec := NewRecord("router", "gpu", nil)
	rec.AddField("load", "0.5")
	p.Enqueue(rec)

	if p.Len() != 0 {
		t.Errorf("queue length = %d, want 0", p.Len())
	}
}

func TestEnqueue_UnknownFieldDropsWholeRecord(t *testing.T) {
	p := newTestPipeline(t, 10, &fakeBackend{})

	rec := cpuRecord("0.5")
	rec.AddField("voltage", "12")
	p.Enqueue(rec)

	if p.Len() != 0 {
		t.Errorf("queue length = %d, want 0", p.Len())
	}
}

func TestEnqueue_ConversionFailureDegradesField(t *testing.T) {
	p := newTestPipeline(t, 10, &fakeBackend{})

	rec := NewRecord("router", "cpu", nil)
	rec.AddField("load", "not-a-number")
	rec.AddField("cores", "8")
	p.Enqueue(rec)

	if p.Len() != 1 {
		t.Fatalf("queue length = %d, want 1", p.Len())
	}
	if got := rec.fields["cores"].clean; got != int64(8) {
		t.Errorf("cores clean = %#v, want int64(8)", got)
	}
	// The unconvertible field degrades to its type's default; the record
	// itself is not rejected.
	if got := rec.fields["load"].clean; got != float64(0) {
		t.Errorf("load clean = %#v, want float64(0)", got)
	}
}

func TestEnqueue_NumericOriginalValues(t *testing.T) {
	p := newTestPipeline(t, 10, &fakeBackend{})

	rec := NewRecord("router", "cpu", nil)
	rec.AddField("load", 0.5)
	rec.AddField("cores", 8)
	rec.AddField("model", "sr-9000")
	p.Enqueue(rec)

	if p.Len() != 1 {
		t.Fatalf("queue length = %d, want 1", p.Len())
	}
	if got := rec.fields["load"].clean; got != float64(0.5) {
		t.Errorf("load clean = %#v, want 0.5", got)
	}
	if got := rec.fields["model"].clean; got != "sr-9000" {
		t.Errorf("model clean = %#v", got)
	}
}

func TestEnqueue_ZeroFieldRecordDropped(t *testing.T) {
	p := newTestPipeline(t, 10, &fakeBackend{})
	p.Enqueue(NewRecord("router", "cpu", nil))
	if p.Len() != 0 {
		t.Errorf("queue length = %d, want 0", p.Len())
	}
}

func TestEnqueue_NilRecordIgnored(t *testing.T) {
	p := newTestPipeline(t, 10, &fakeBackend{})
	p.Enqueue(nil, cpuRecord("0.5"))
	if p.Len() != 1 {
		t.Errorf("queue length = %d, want 1", p.Len())
	}
}

func TestFlush_Batches(t *testing.T) {
	backend := &fakeBackend{}
	p := newTestPipeline(t, 10, backend)
	for i := 0; i < 25; i++ {
		p.Enqueue(cpuRecord(fmt.Sprintf("0.%02d", i)))
	}

	res, err := p.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if !res.Complete || res.Sent != 25 {
		t.Errorf("result = %+v, want {Sent:25 Complete:true}", res)
	}
	if !p.IsEmpty() {
		t.Errorf("queue length after flush = %d, want 0", p.Len())
	}
	if len(backend.writes) != 3 {
		t.Fatalf("write calls = %d, want 3", len(backend.writes))
	}
	for i, want := range []int{10, 10, 5} {
		if len(backend.writes[i]) != want {
			t.Errorf("batch %d size = %d, want %d", i+1, len(backend.writes[i]), want)
		}
	}
}

func TestFlush_TransientFailurePreservesQueue(t *testing.T) {
	backend := &fakeBackend{failOn: 2, failErr: storage.ErrUnavailable}
	p := newTestPipeline(t, 10, backend)
	for i := 0; i < 25; i++ {
		p.Enqueue(cpuRecord("0.5"))
	}

	res, err := p.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush() error = %v, transient failures must not propagate", err)
	}
	if res.Complete || res.Sent != 10 {
		t.Errorf("result = %+v, want {Sent:10 Complete:false}", res)
	}
	if p.Len() != 15 {
		t.Errorf("queue length = %d, want 15", p.Len())
	}

	// The next flush retries from the same queue head.
	backend.failOn = 0
	res, err = p.Flush(context.Background())
	if err != nil {
		t.Fatalf("retry Flush() error = %v", err)
	}
	if !res.Complete || res.Sent != 15 {
		t.Errorf("retry result = %+v, want {Sent:15 Complete:true}", res)
	}
	if !p.IsEmpty() {
		t.Errorf("queue length = %d, want 0", p.Len())
	}
}

func TestFlush_UnexpectedErrorTreatedAsTransient(t *testing.T) {
	backend := &fakeBackend{failOn: 1, failErr: errors.New("boom")}
	p := newTestPipeline(t, 10, backend)
	p.Enqueue(cpuRecord("0.5"))

	res, err := p.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush() error = %v, unexpected errors must preserve the queue", err)
	}
	if res.Complete || res.Sent != 0 {
		t.Errorf("result = %+v, want {Sent:0 Complete:false}", res)
	}
	if p.Len() != 1 {
		t.Errorf("queue length = %d, want 1", p.Len())
	}
}

func TestFlush_FatalBackendErrorPropagates(t *testing.T) {
	p := NewPipeline(testSchema(t), 10, nil)
	p.openBackend = func(string, map[string]any, *logging.Logger) (storage.Backend, error) {
		return nil, fmt.Errorf("%w: %q", storage.ErrMissingConfig, "token")
	}
	p.Enqueue(cpuRecord("0.5"))

	_, err := p.Flush(context.Background())
	if !storage.IsFatal(err) {
		t.Fatalf("Flush() error = %v, want fatal", err)
	}
	if p.Len() != 1 {
		t.Errorf("queue length = %d, want 1", p.Len())
	}
}

func TestFlush_EmptyQueue(t *testing.T) {
	p := newTestPipeline(t, 10, &fakeBackend{})
	res, err := p.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if !res.Complete || res.Sent != 0 {
		t.Errorf("result = %+v, want {Sent:0 Complete:true}", res)
	}
}

func TestShutdown(t *testing.T) {
	backend := &fakeBackend{}
	p := newTestPipeline(t, 10, backend)
	p.Enqueue(cpuRecord("0.5"))
	p.Shutdown(context.Background(), false)

	if !backend.closed {
		t.Error("backend not closed on shutdown")
	}
	if len(backend.writes) != 1 {
		t.Errorf("write calls = %d, want 1 (final flush)", len(backend.writes))
	}

	p.Enqueue(cpuRecord("0.5"))
	if p.Len() != 0 {
		t.Errorf("queue grew after shutdown: length = %d", p.Len())
	}

	res, err := p.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush() after shutdown error = %v", err)
	}
	if res.Complete || res.Sent != 0 {
		t.Errorf("result after shutdown = %+v, want no work done", res)
	}
}

func TestReload_SwapsSchemaUnconditionally(t *testing.T) {
	// The backend fails every write, so the pre-reload flush cannot drain
	// the queue; the schema swap must happen anyway.
	backend := &fakeBackend{failOn: 1, failErr: storage.ErrUnavailable, closeErr: errors.New("close failed")}
	p := newTestPipeline(t, 10, backend)
	p.backend = backend
	p.Enqueue(cpuRecord("0.5"))

	next := testSchema(t)
	p.Reload(context.Background(), next)

	if p.schema != next {
		t.Error("schema not swapped after failed flush")
	}
	if p.backend != nil {
		t.Error("backend handle not cleared")
	}
	if !backend.closed {
		t.Error("old backend not closed")
	}
	if p.Len() != 1 {
		t.Errorf("queue length = %d, want 1 (unsent records survive reload)", p.Len())
	}
}
