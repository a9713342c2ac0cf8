package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bft-labs/sensorsync/internal/domain"
)

func TestStatusFileRepository_LoadMissing(t *testing.T) {
	r := NewStatusFileRepository(filepath.Join(t.TempDir(), "state"))

	st, err := r.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(domain.Status{}, st); diff != "" {
		t.Errorf("Load() (-want +got):\n%s", diff)
	}
}

func TestStatusFileRepository_SaveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	r := NewStatusFileRepository(dir)

	want := domain.Status{
		UpdatedAt:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Pushed:        10,
		Emitted:       3,
		Stale:         1,
		LastReference: 1700000000000000000,
		Tolerance:     50 * time.Millisecond,
		QueueDepth:    map[domain.StreamID]int{"depth": 2, "odom": 0},
		SpreadP50:     4 * time.Millisecond,
	}
	if err := r.Save(context.Background(), want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := r.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() (-want +got):\n%s", diff)
	}

	if _, err := os.Stat(r.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
	if filepath.Base(r.Path()) != "status.json" {
		t.Errorf("Path() = %s", r.Path())
	}
}

func TestStatusFileRepository_Corrupt(t *testing.T) {
	dir := t.TempDir()
	r := NewStatusFileRepository(dir)
	if err := os.WriteFile(r.Path(), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Load(context.Background()); err == nil {
		t.Error("Load() error = nil, want JSON error")
	}
}
