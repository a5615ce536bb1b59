package localfs

import (
	"bytes"
	"context"
	"io"
	"testing"
)

func TestSaveOpenRoundTrip(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := storage.Save(context.Background(), "req-1_checklist.xlsx", bytes.NewReader([]byte("workbook"))); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reader, err := storage.Open(context.Background(), "req-1_checklist.xlsx")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer reader.Close()

	blob, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(blob) != "workbook" {
		t.Fatalf("blob = %q, want workbook", blob)
	}
}

func TestOpenMissingKey(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := storage.Open(context.Background(), "ghost.xlsx"); err == nil {
		t.Fatal("expected error for a missing artifact")
	}
}

func TestRejectsTraversalKeys(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	bad := []string{"", "../escape.xlsx", "nested/key.xlsx"}
	for _, key := range bad {
		if err := storage.Save(context.Background(), key, bytes.NewReader(nil)); err == nil {
			t.Errorf("Save(%q) accepted an invalid key", key)
		}
	}
}
