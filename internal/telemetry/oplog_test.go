package telemetry

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRecordAndWriteStats(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oplog.log")

	log, err := New(path, "loader-1", "document-db")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Record("insert", 5*time.Millisecond, true)
	log.Record("insert", 7*time.Millisecond, true)
	log.Record("delete", 2*time.Millisecond, false)

	if err := log.WriteStats(); err != nil {
		t.Fatalf("WriteStats: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty log file")
	}
}

func TestWriteStatsNoOpsIsNoop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.log")

	log, err := New(path, "loader-2", "relational-db")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer log.Close()

	if err := log.WriteStats(); err != nil {
		t.Fatalf("WriteStats on empty log: %v", err)
	}
}
