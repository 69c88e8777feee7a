package history

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func openStore(t *testing.T, maxEntries int) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"), maxEntries)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestAppendAndListNewestFirst(t *testing.T) {
	store := openStore(t, 10)

	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		entry := Entry{
			RunAt:        base.Add(time.Duration(i) * time.Minute),
			Root:         fmt.Sprintf("/projects/run-%d", i),
			FilesScanned: i + 1,
			Requests:     i,
			Elapsed:      250 * time.Millisecond,
		}
		if err := store.Append(entry); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	entries, err := store.List(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Root != "/projects/run-2" || entries[2].Root != "/projects/run-0" {
		t.Fatalf("expected newest-first order, got %q then %q", entries[0].Root, entries[2].Root)
	}
	if entries[0].ID == "" {
		t.Fatalf("expected generated id")
	}
	if entries[0].Elapsed != 250*time.Millisecond {
		t.Fatalf("elapsed not preserved: %v", entries[0].Elapsed)
	}
}

func TestAppendPrunesToLimit(t *testing.T) {
	store := openStore(t, 2)

	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		entry := Entry{RunAt: base.Add(time.Duration(i) * time.Minute), Root: fmt.Sprintf("/p/%d", i)}
		if err := store.Append(entry); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	entries, err := store.List(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected pruning to 2 entries, got %d", len(entries))
	}
	if entries[0].Root != "/p/4" || entries[1].Root != "/p/3" {
		t.Fatalf("expected the newest runs to survive, got %+v", entries)
	}
}

func TestFidelityNullability(t *testing.T) {
	store := openStore(t, 10)

	if err := store.Append(Entry{Root: "/p/no-fidelity"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(Entry{Root: "/p/with-fidelity", FidelityPct: 87.5, HasFidelity: true}); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := store.List(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	byRoot := map[string]Entry{}
	for _, entry := range entries {
		byRoot[entry.Root] = entry
	}
	if byRoot["/p/no-fidelity"].HasFidelity {
		t.Fatalf("expected null fidelity to stay unset")
	}
	with := byRoot["/p/with-fidelity"]
	if !with.HasFidelity || with.FidelityPct != 87.5 {
		t.Fatalf("fidelity lost: %+v", with)
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.db")
	store, err := Open(path, 5)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
