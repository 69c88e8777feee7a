package importer

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/unkn0wn-root/restitch/internal/workbook"
)

// validate runs the post-reconstruction checks. Findings are always
// warnings: the goal is maximal recovery, so a flawed workbook is still
// returned in full.
func validate(wb *workbook.Workbook) []Issue {
	var issues []Issue

	seen := map[string]workbook.Provenance{}
	workbook.Walk(wb.Requests, func(entity workbook.Entity) {
		id := entity.EntityID()

		var origin workbook.Provenance
		switch typed := entity.(type) {
		case *workbook.Request:
			origin = typed.Origin
		case *workbook.Group:
			origin = typed.Origin
		}

		if first, dup := seen[id]; dup {
			issues = append(issues, Issue{
				Kind: IssueDuplicateID, File: origin.File, Line: origin.Line,
				Message: fmt.Sprintf("id %q already used at %s:%d", id, first.File, first.Line),
			})
		} else {
			seen[id] = origin
		}

		switch typed := entity.(type) {
		case *workbook.Request:
			if typed.URL == "" || typed.Method == "" {
				issues = append(issues, Issue{
					Kind: IssueMissingField, File: origin.File, Line: origin.Line, Field: "url",
					Message: fmt.Sprintf("request %q is missing url or method", typed.Name),
				})
			}
			if issue, bad := checkTestScript(typed); bad {
				issues = append(issues, issue)
			}
		case *workbook.Group:
			if typed.Children == nil {
				typed.Children = []workbook.Entity{}
				issues = append(issues, Issue{
					Kind: IssueStructure, File: origin.File, Line: origin.Line,
					Message: fmt.Sprintf("group %q had no children array; normalized to empty", typed.Name),
				})
			}
		}
	})

	return issues
}

// checkTestScript compiles the recovered test code to surface syntax damage
// from hand edits. The script is never executed.
func checkTestScript(req *workbook.Request) (Issue, bool) {
	if req.Test == "" {
		return Issue{}, false
	}
	if _, err := goja.Compile(req.Name, req.Test, false); err != nil {
		return Issue{
			Kind: IssueTestSyntax, File: req.Origin.File, Line: req.Origin.Line,
			Message: fmt.Sprintf("test code for %q does not compile: %v", req.Name, err),
		}, true
	}
	return Issue{}, false
}
