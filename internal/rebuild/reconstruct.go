package rebuild

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/restitch/internal/metablock"
	"github.com/unkn0wn-root/restitch/internal/spans"
	"github.com/unkn0wn-root/restitch/internal/workbook"
)

// Warning is a non-fatal structural finding made while merging spans with
// metadata blocks.
type Warning struct {
	File    string
	Line    int
	Message string
}

// Outcome carries everything one file's reconstruction produced. Entities
// preserve source declaration order.
type Outcome struct {
	Entities      []workbook.Entity
	Warnings      []Warning
	FieldWarnings []FieldWarning
	Errors        []error
}

type Options struct {
	Build BuildOptions
	// NewID generates ids for inferred groups; defaults to uuid.NewString.
	NewID func() string
}

// Reconstruct merges the structural span tree with the extracted metadata
// blocks for one file. Each block attaches to the nearest span declared
// strictly below it; spans without metadata become inferred groups when they
// have children and are dropped when they do not.
func Reconstruct(file string, roots []*spans.Span, blocks []metablock.Block, opts Options) Outcome {
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	byLine := make(map[int]metablock.Block, len(blocks))
	for _, block := range blocks {
		byLine[block.Line] = block
	}

	r := &reconstructor{
		file:    file,
		opts:    opts,
		byLine:  byLine,
		claimed: make(map[int]bool, len(blocks)),
	}

	outcome := Outcome{}
	for _, span := range roots {
		if entity := r.build(span, &outcome); entity != nil {
			outcome.Entities = append(outcome.Entities, entity)
		}
	}

	// Blocks no span claimed still carry user data; a request block whose
	// declaration was deleted by hand is rebuilt at the root level.
	for _, block := range blocks {
		if r.claimed[block.Line] {
			continue
		}
		if entity := r.buildOrphan(block, &outcome); entity != nil {
			outcome.Entities = append(outcome.Entities, entity)
		}
	}

	return outcome
}

type reconstructor struct {
	file    string
	opts    Options
	byLine  map[int]metablock.Block
	claimed map[int]bool
}

// build visits spans in declaration order, so when two nested spans sit in
// the same lookback window of one block, the span declared first (nearest
// below the block) claims it and the deeper span sees it as already taken.
func (r *reconstructor) build(span *spans.Span, outcome *Outcome) workbook.Entity {
	block, hasBlock := r.claim(span.MetaLine)

	if hasBlock && block.Kind == metablock.KindRequest {
		request, fieldWarnings, err := BuildRequest(block, r.opts.Build)
		outcome.FieldWarnings = append(outcome.FieldWarnings, fieldWarnings...)
		if err != nil {
			outcome.Errors = append(outcome.Errors, err)
			return nil
		}
		if len(span.Children) > 0 {
			outcome.Warnings = append(outcome.Warnings, Warning{
				File: r.file, Line: span.StartLine,
				Message: fmt.Sprintf("request %q has nested block declarations; requests cannot contain children", request.Name),
			})
		}
		return request
	}

	var group *workbook.Group
	if hasBlock {
		built, fieldWarnings, err := BuildGroup(block, r.opts.Build)
		outcome.FieldWarnings = append(outcome.FieldWarnings, fieldWarnings...)
		if err != nil {
			outcome.Errors = append(outcome.Errors, err)
			// The metadata is unusable but the structure is still there;
			// fall through to the inferred-group path.
		} else {
			group = built
		}
	}

	children := make([]workbook.Entity, 0, len(span.Children))
	for _, child := range span.Children {
		if entity := r.build(child, outcome); entity != nil {
			children = append(children, entity)
		}
	}

	if group != nil {
		group.Children = children
		return group
	}

	// No usable metadata: structure alone decides. A span with children is
	// an inferred group; a bare leaf is a plain test-case declaration.
	if len(children) == 0 {
		return nil
	}
	return &workbook.Group{
		ID:       r.opts.NewID(),
		Name:     span.Label,
		Children: children,
		Inferred: true,
		Origin:   workbook.Provenance{File: r.file, Line: span.StartLine},
	}
}

func (r *reconstructor) buildOrphan(block metablock.Block, outcome *Outcome) workbook.Entity {
	r.claimed[block.Line] = true
	switch block.Kind {
	case metablock.KindRequest:
		request, fieldWarnings, err := BuildRequest(block, r.opts.Build)
		outcome.FieldWarnings = append(outcome.FieldWarnings, fieldWarnings...)
		if err != nil {
			outcome.Errors = append(outcome.Errors, err)
			return nil
		}
		outcome.Warnings = append(outcome.Warnings, Warning{
			File: r.file, Line: block.Line,
			Message: fmt.Sprintf("request metadata %q has no matching block declaration; recovered at top level", request.Name),
		})
		return request
	case metablock.KindGroup:
		group, fieldWarnings, err := BuildGroup(block, r.opts.Build)
		outcome.FieldWarnings = append(outcome.FieldWarnings, fieldWarnings...)
		if err != nil {
			outcome.Errors = append(outcome.Errors, err)
			return nil
		}
		group.Children = []workbook.Entity{}
		outcome.Warnings = append(outcome.Warnings, Warning{
			File: r.file, Line: block.Line,
			Message: fmt.Sprintf("group metadata %q has no matching block declaration; recovered empty", group.Name),
		})
		return group
	default:
		return nil
	}
}

func (r *reconstructor) claim(line int) (metablock.Block, bool) {
	if line <= 0 {
		return metablock.Block{}, false
	}
	if r.claimed[line] {
		return metablock.Block{}, false
	}
	block, ok := r.byLine[line]
	if !ok {
		return metablock.Block{}, false
	}
	r.claimed[line] = true
	return block, true
}
