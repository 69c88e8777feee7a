package importer

import (
	"bytes"
	"fmt"

	udiff "github.com/aymanbagabas/go-udiff"

	"github.com/unkn0wn-root/restitch/internal/errdef"
	"github.com/unkn0wn-root/restitch/internal/workbook"
)

// Fidelity quantifies how much of the original the structural reconstruction
// recovered, measured against the snapshot.
type Fidelity struct {
	// RecoveredPct is the percentage of snapshot entity bytes whose
	// canonical JSON the reconstruction reproduced exactly.
	RecoveredPct float64
	// MissingSections lists snapshot top-level sections the structural path
	// cannot recover from source text.
	MissingSections []string
	Mismatches      []FieldMismatch
}

// FieldMismatch is one field-level drift finding between the snapshot and
// the reconstruction. Diff carries a unified diff for multiline values.
type FieldMismatch struct {
	ID        string
	Field     string
	Snapshot  string
	Recovered string
	Diff      string
}

// reconcile treats the snapshot as ground truth: the returned workbook is
// the snapshot itself, and the freshly reconstructed data is only used to
// measure drift. This guarantees perfect round-trip fidelity whenever the
// snapshot exists.
func reconcile(result *Result, snapshotPath string, opts Options) error {
	snapshot, err := opts.Cache.Load(snapshotPath)
	if err != nil {
		return errdef.Wrap(errdef.CodeSnapshot, err, "load snapshot %s", snapshotPath)
	}

	fidelity := &Fidelity{}
	for _, name := range workbook.SectionNames {
		if len(snapshot.Section(name)) > 0 {
			fidelity.MissingSections = append(fidelity.MissingSections, name)
		}
	}

	recovered := indexEntities(result.Workbook.Requests)

	var totalBytes, matchedBytes int64
	workbook.Walk(snapshot.Requests, func(entity workbook.Entity) {
		canonical, err := workbook.Canonical(entity)
		if err != nil {
			return
		}
		totalBytes += int64(len(canonical))

		counterpart, ok := recovered[entity.EntityID()]
		if !ok {
			fidelity.Mismatches = append(fidelity.Mismatches, FieldMismatch{
				ID: entity.EntityID(), Field: "(entity)",
				Snapshot: entity.EntityName(), Recovered: "",
			})
			return
		}

		counterCanonical, err := workbook.Canonical(counterpart)
		if err == nil && bytes.Equal(canonical, counterCanonical) {
			matchedBytes += int64(len(canonical))
			return
		}
		fidelity.Mismatches = append(fidelity.Mismatches, entityMismatches(entity, counterpart)...)
		if len(canonical) > 0 && err == nil {
			matchedBytes += commonPrefixWeight(canonical, counterCanonical)
		}
	})

	if totalBytes > 0 {
		fidelity.RecoveredPct = float64(matchedBytes) / float64(totalBytes) * 100
	} else {
		fidelity.RecoveredPct = 100
	}

	for _, mismatch := range fidelity.Mismatches {
		message := fmt.Sprintf("entity %s field %s drifted from snapshot", mismatch.ID, mismatch.Field)
		if mismatch.Field == "(entity)" {
			message = fmt.Sprintf("entity %s (%s) missing from reconstruction", mismatch.ID, mismatch.Snapshot)
		}
		result.Warnings = append(result.Warnings, Issue{Kind: IssueSnapshotDrift, Message: message})
	}

	// The snapshot wins; reconstruction was only evidence.
	result.Workbook = snapshot
	result.Fidelity = fidelity
	return nil
}

func indexEntities(entities []workbook.Entity) map[string]workbook.Entity {
	index := map[string]workbook.Entity{}
	workbook.Walk(entities, func(entity workbook.Entity) {
		if _, exists := index[entity.EntityID()]; !exists {
			index[entity.EntityID()] = entity
		}
	})
	return index
}

func entityMismatches(original, recovered workbook.Entity) []FieldMismatch {
	var mismatches []FieldMismatch
	add := func(field, want, got string) {
		if want == got {
			return
		}
		mismatch := FieldMismatch{ID: original.EntityID(), Field: field, Snapshot: want, Recovered: got}
		if field == "test" {
			mismatch.Diff = udiff.Unified("snapshot", "recovered", want, got)
		}
		mismatches = append(mismatches, mismatch)
	}

	switch want := original.(type) {
	case *workbook.Request:
		got, ok := recovered.(*workbook.Request)
		if !ok {
			return []FieldMismatch{{ID: original.EntityID(), Field: "(kind)", Snapshot: "request", Recovered: "group"}}
		}
		add("name", want.Name, got.Name)
		add("url", want.URL, got.URL)
		add("method", want.Method, got.Method)
		add("test", want.Test, got.Test)
	case *workbook.Group:
		got, ok := recovered.(*workbook.Group)
		if !ok {
			return []FieldMismatch{{ID: original.EntityID(), Field: "(kind)", Snapshot: "group", Recovered: "request"}}
		}
		add("name", want.Name, got.Name)
		if len(want.Children) != len(got.Children) {
			add("children",
				fmt.Sprintf("%d children", len(want.Children)),
				fmt.Sprintf("%d children", len(got.Children)))
		}
	}
	return mismatches
}

// commonPrefixWeight credits partial recovery so the percentage degrades
// smoothly instead of dropping to zero on a one-byte drift.
func commonPrefixWeight(want, got []byte) int64 {
	max := len(want)
	if len(got) < max {
		max = len(got)
	}
	var n int64
	for i := 0; i < max; i++ {
		if want[i] != got[i] {
			break
		}
		n++
	}
	return n
}
