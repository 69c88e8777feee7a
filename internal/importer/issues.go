package importer

import (
	"fmt"

	"github.com/unkn0wn-root/restitch/internal/metablock"
	"github.com/unkn0wn-root/restitch/internal/rebuild"
)

type IssueKind string

const (
	IssueFileRead         IssueKind = "file-read-error"
	IssueOversizedFile    IssueKind = "oversized-file"
	IssueIncompleteBlock  IssueKind = "incomplete-metadata-block"
	IssueInvalidJSON      IssueKind = "invalid-metadata-json"
	IssueMissingField     IssueKind = "missing-required-field"
	IssueInvalidFieldType IssueKind = "invalid-field-type"
	IssueDuplicateID      IssueKind = "duplicate-id"
	IssueStructure        IssueKind = "structure"
	IssueOrphanedGroup    IssueKind = "orphaned-group-reference"
	IssueTestSyntax       IssueKind = "test-script-syntax"
	IssueSnapshotDrift    IssueKind = "snapshot-drift"
)

// Issue is one non-fatal warning or one recovered (survivable) error. Field
// is only set for field-level findings.
type Issue struct {
	Kind    IssueKind
	File    string
	Line    int
	Field   string
	Message string
}

func (i Issue) String() string {
	loc := i.File
	if i.Line > 0 {
		loc = fmt.Sprintf("%s:%d", i.File, i.Line)
	}
	if loc == "" {
		return fmt.Sprintf("[%s] %s", i.Kind, i.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", i.Kind, loc, i.Message)
}

func issueFromProblem(problem metablock.Problem) Issue {
	kind := IssueIncompleteBlock
	if problem.Kind == metablock.ProblemInvalidJSON {
		kind = IssueInvalidJSON
	}
	return Issue{Kind: kind, File: problem.File, Line: problem.Line, Message: problem.Message}
}

func issueFromFieldError(err *rebuild.FieldError) Issue {
	kind := IssueMissingField
	if err.Kind == rebuild.FieldWrongType {
		kind = IssueInvalidFieldType
	}
	return Issue{Kind: kind, File: err.File, Line: err.Line, Field: err.Field, Message: err.Error()}
}

func issueFromFieldWarning(warning rebuild.FieldWarning) Issue {
	return Issue{
		Kind: IssueInvalidFieldType, File: warning.File, Line: warning.Line,
		Field: warning.Field, Message: warning.Msg,
	}
}

func issueFromStructureWarning(warning rebuild.Warning) Issue {
	return Issue{Kind: IssueStructure, File: warning.File, Line: warning.Line, Message: warning.Message}
}
