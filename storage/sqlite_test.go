package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danweinerdev/monitorlib/config"
	"github.com/danweinerdev/monitorlib/logging"
)

func TestSQLite_WriteAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.db")
	backend, err := Open(config.BackendSQLite, map[string]any{"path": path}, logging.Discard())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer backend.Close()

	ts := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	points := []Point{
		{
			Measurement: "cpu",
			Tags:        map[string]string{"location": "rack1"},
			Fields:      map[string]any{"load": 0.42},
			Time:        ts,
		},
		{
			Measurement: "memory",
			Tags:        map[string]string{},
			Fields:      map[string]any{"used_percent": 61.5},
			Time:        ts.Add(time.Second),
		},
	}
	if err := backend.Write(context.Background(), points); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("reopen database: %v", err)
	}
	defer db.Close()

	rows, err := db.Query("SELECT measurement, tags, fields, timestamp_ms FROM metrics ORDER BY id")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()

	var got []struct {
		measurement string
		tags        map[string]string
		fields      map[string]any
		timestampMS int64
	}
	for rows.Next() {
		var (
			measurement, tagsJSON, fieldsJSON string
			timestampMS                       int64
		)
		if err := rows.Scan(&measurement, &tagsJSON, &fieldsJSON, &timestampMS); err != nil {
			t.Fatalf("scan: %v", err)
		}
		row := struct {
			measurement string
			tags        map[string]string
			fields      map[string]any
			timestampMS int64
		}{measurement: measurement, timestampMS: timestampMS}
		if err := json.Unmarshal([]byte(tagsJSON), &row.tags); err != nil {
			t.Fatalf("unmarshal tags: %v", err)
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &row.fields); err != nil {
			t.Fatalf("unmarshal fields: %v", err)
		}
		got = append(got, row)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("read %d rows, want 2", len(got))
	}
	if got[0].measurement != "cpu" {
		t.Errorf("row 0 measurement = %q, want cpu", got[0].measurement)
	}
	if got[0].tags["location"] != "rack1" {
		t.Errorf("row 0 tags = %v, want location=rack1", got[0].tags)
	}
	if got[0].fields["load"] != 0.42 {
		t.Errorf("row 0 fields = %v, want load=0.42", got[0].fields)
	}
	if got[0].timestampMS != ts.UnixMilli() {
		t.Errorf("row 0 timestamp = %d, want %d", got[0].timestampMS, ts.UnixMilli())
	}
	if got[1].measurement != "memory" {
		t.Errorf("row 1 measurement = %q, want memory", got[1].measurement)
	}
}

func TestSQLite_LazyInitialize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "metrics.db")
	b, err := newSQLite(map[string]any{"path": path}, logging.Discard())
	if err != nil {
		t.Fatalf("newSQLite: %v", err)
	}
	defer b.Close()

	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("database file exists before first write")
	}
	if err := b.Write(context.Background(), testPoints()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file missing after write: %v", err)
	}
}

func TestSQLite_ConfigFailures(t *testing.T) {
	tests := []struct {
		name string
		cfg  map[string]any
	}{
		{name: "missing path", cfg: map[string]any{"table": "metrics"}},
		{
			name: "invalid table name",
			cfg:  map[string]any{"path": "/tmp/metrics.db", "table": "metrics; DROP TABLE"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newSQLite(tt.cfg, logging.Discard())
			if !errors.Is(err, ErrMissingConfig) {
				t.Fatalf("newSQLite error = %v, want ErrMissingConfig", err)
			}
		})
	}
}

func TestSQLite_CustomTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.db")
	b, err := newSQLite(map[string]any{
		"path":         path,
		"table":        "samples",
		"busy_timeout": int64(500),
	}, logging.Discard())
	if err != nil {
		t.Fatalf("newSQLite: %v", err)
	}
	defer b.Close()

	if err := b.Write(context.Background(), testPoints()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var count int
	if err := b.db.QueryRow("SELECT COUNT(*) FROM samples").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestSQLite_UnwritableDirectory(t *testing.T) {
	b, err := newSQLite(map[string]any{
		"path": "/proc/nonexistent/metrics.db",
	}, logging.Discard())
	if err != nil {
		t.Fatalf("newSQLite: %v", err)
	}
	err = b.Initialize(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Initialize error = %v, want ErrUnavailable", err)
	}
}
