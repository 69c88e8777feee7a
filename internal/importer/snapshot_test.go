package importer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/unkn0wn-root/restitch/internal/workbook"
)

func writeSnapshot(t *testing.T, root string, wb *workbook.Workbook) string {
	t.Helper()
	data, err := json.Marshal(wb)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	path := filepath.Join(root, filepath.FromSlash(SnapshotRelPath))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	return path
}

func TestReconcileSnapshotWinsAndScoresFullFidelity(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "ping.spec.js", validSuite("r1", "ping"))

	snapshot := &workbook.Workbook{
		Version: workbook.Version,
		Requests: []workbook.Entity{
			&workbook.Request{ID: "r1", Name: "ping", URL: "https://api.test/r1", Method: "GET"},
		},
		Scenarios: json.RawMessage(`[{"id":"s1","steps":["r1"]}]`),
	}
	writeSnapshot(t, root, snapshot)

	result, err := ImportProject(context.Background(), root, DefaultOptions())
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.Fidelity == nil {
		t.Fatalf("expected fidelity report")
	}
	if result.Fidelity.RecoveredPct != 100 {
		t.Fatalf("expected 100%% fidelity, got %.2f (%+v)", result.Fidelity.RecoveredPct, result.Fidelity.Mismatches)
	}
	if len(result.Fidelity.MissingSections) != 1 || result.Fidelity.MissingSections[0] != "scenarios" {
		t.Fatalf("expected scenarios flagged as snapshot-only, got %+v", result.Fidelity.MissingSections)
	}
	if len(result.Workbook.Scenarios) == 0 {
		t.Fatalf("snapshot sections must survive into the result")
	}
}

func TestReconcileReportsDrift(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "ping.spec.js", validSuite("r1", "edited by hand"))

	snapshot := &workbook.Workbook{
		Version: workbook.Version,
		Requests: []workbook.Entity{
			&workbook.Request{ID: "r1", Name: "original name", URL: "https://api.test/r1", Method: "GET"},
		},
	}
	writeSnapshot(t, root, snapshot)

	result, err := ImportProject(context.Background(), root, DefaultOptions())
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.Fidelity == nil {
		t.Fatalf("expected fidelity report")
	}
	if result.Fidelity.RecoveredPct >= 100 {
		t.Fatalf("expected degraded fidelity, got %.2f", result.Fidelity.RecoveredPct)
	}

	var drifted bool
	for _, mismatch := range result.Fidelity.Mismatches {
		if mismatch.ID == "r1" && mismatch.Field == "name" {
			drifted = true
		}
	}
	if !drifted {
		t.Fatalf("expected name drift for r1, got %+v", result.Fidelity.Mismatches)
	}

	var driftWarnings int
	for _, warning := range result.Warnings {
		if warning.Kind == IssueSnapshotDrift {
			driftWarnings++
		}
	}
	if driftWarnings == 0 {
		t.Fatalf("expected drift warnings, got %+v", result.Warnings)
	}

	// The snapshot is authoritative either way.
	request, ok := result.Workbook.Requests[0].(*workbook.Request)
	if !ok || request.Name != "original name" {
		t.Fatalf("snapshot must win: %+v", result.Workbook.Requests[0])
	}
}

func TestReconcileFlagsEntitiesMissingFromSource(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "ping.spec.js", validSuite("r1", "ping"))

	snapshot := &workbook.Workbook{
		Version: workbook.Version,
		Requests: []workbook.Entity{
			&workbook.Request{ID: "r1", Name: "ping", URL: "https://api.test/r1", Method: "GET"},
			&workbook.Request{ID: "r-gone", Name: "deleted", URL: "https://api.test/gone", Method: "DELETE"},
		},
	}
	writeSnapshot(t, root, snapshot)

	result, err := ImportProject(context.Background(), root, DefaultOptions())
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	var missing bool
	for _, mismatch := range result.Fidelity.Mismatches {
		if mismatch.ID == "r-gone" && mismatch.Field == "(entity)" {
			missing = true
		}
	}
	if !missing {
		t.Fatalf("expected missing-entity mismatch, got %+v", result.Fidelity.Mismatches)
	}
	if len(result.Workbook.Requests) != 2 {
		t.Fatalf("snapshot entities must all survive, got %d", len(result.Workbook.Requests))
	}
}

func TestSnapshotCacheReusesFreshEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workbook.json")
	if err := os.WriteFile(path, []byte(`{"version":1.0,"requests":[]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cache := NewSnapshotCache(time.Hour)
	first, err := cache.Load(path)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	second, err := cache.Load(path)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if first != second {
		t.Fatalf("expected cached pointer reuse")
	}
}

func TestSnapshotCacheExpiresOnTTLAndMtime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workbook.json")
	if err := os.WriteFile(path, []byte(`{"version":1.0,"requests":[]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cache := NewSnapshotCache(time.Minute)
	cache.now = func() time.Time { return now }

	first, err := cache.Load(path)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}

	now = now.Add(2 * time.Minute)
	second, err := cache.Load(path)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if first == second {
		t.Fatalf("expected TTL expiry to force a re-read")
	}

	// Touch the file so the mtime changes too.
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	third, err := cache.Load(path)
	if err != nil {
		t.Fatalf("third load: %v", err)
	}
	if third == second {
		t.Fatalf("expected mtime change to force a re-read")
	}
}

func TestSnapshotCacheMissingFile(t *testing.T) {
	cache := NewSnapshotCache(time.Minute)
	if _, err := cache.Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("expected missing snapshot to fail")
	}
}
