package metablock

import (
	"encoding/json"
	"strings"
)

type Kind string

const (
	KindRequest Kind = "request"
	KindGroup   Kind = "group"
)

const (
	RequestOpen  = "@request-metadata"
	RequestClose = "@request-metadata-end"
	GroupOpen    = "@group-metadata"
	GroupClose   = "@group-metadata-end"
)

// Block is one extracted metadata comment. Line is the line of the opening
// marker, not of the JSON payload, so diagnostics point at the marker.
type Block struct {
	Kind    Kind
	Payload json.RawMessage
	Line    int
	File    string
}

type ProblemKind string

const (
	ProblemIncompleteBlock ProblemKind = "incomplete-metadata-block"
	ProblemInvalidJSON     ProblemKind = "invalid-metadata-json"
)

type Problem struct {
	Kind    ProblemKind
	Line    int
	File    string
	Message string
}

// Extract walks the file's lines collecting every metadata block. Extraction
// is purely textual: payloads are checked for JSON syntax but their fields
// are never interpreted here.
func Extract(file string, lines []string) ([]Block, []Problem) {
	var blocks []Block
	var problems []Problem

	for i := 0; i < len(lines); i++ {
		kind, open := markerOpen(lines[i])
		if !open {
			continue
		}

		startLine := i + 1
		closeMarker := RequestClose
		if kind == KindGroup {
			closeMarker = GroupClose
		}

		var payload []string
		closed := false
		j := i + 1
		for ; j < len(lines); j++ {
			line := lines[j]
			if _, nested := markerOpen(line); nested {
				break
			}
			if strings.Contains(line, closeMarker) {
				closed = true
				before := line[:strings.Index(line, closeMarker)]
				if content := stripContinuation(before); content != "" {
					payload = append(payload, content)
				}
				break
			}
			if content := stripContinuation(line); content != "" {
				payload = append(payload, content)
			}
		}

		if !closed {
			problems = append(problems, Problem{
				Kind:    ProblemIncompleteBlock,
				Line:    startLine,
				File:    file,
				Message: "metadata block opened at line has no matching " + closeMarker,
			})
			// Resume after what we consumed so a nested open marker starts
			// its own block instead of being swallowed.
			i = j - 1
			continue
		}

		text := strings.TrimSpace(strings.Join(payload, "\n"))
		var raw json.RawMessage
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			problems = append(problems, Problem{
				Kind:    ProblemInvalidJSON,
				Line:    startLine,
				File:    file,
				Message: "metadata payload is not valid JSON: " + err.Error(),
			})
			i = j
			continue
		}

		blocks = append(blocks, Block{Kind: kind, Payload: raw, Line: startLine, File: file})
		i = j
	}

	return blocks, problems
}

// markerOpen reports whether the line opens a block, ignoring lines where an
// open marker is immediately followed by its close marker.
func markerOpen(line string) (Kind, bool) {
	switch {
	case containsMarker(line, RequestOpen, RequestClose):
		return KindRequest, true
	case containsMarker(line, GroupOpen, GroupClose):
		return KindGroup, true
	default:
		return "", false
	}
}

func containsMarker(line, open, close string) bool {
	idx := strings.Index(line, open)
	if idx < 0 {
		return false
	}
	// The close marker contains the open marker as a prefix, so a close
	// marker alone must not count as an open.
	rest := line[idx:]
	if strings.HasPrefix(rest, close) {
		return false
	}
	return !strings.Contains(rest[len(open):], close)
}

// stripContinuation removes comment framing from a payload line: block
// comment continuation asterisks, line comment prefixes and surrounding
// whitespace.
func stripContinuation(line string) string {
	working := strings.TrimSpace(line)
	if strings.HasPrefix(working, "/*") {
		working = strings.TrimSpace(working[2:])
	}
	for strings.HasPrefix(working, "*") && !strings.HasPrefix(working, "*/") {
		working = strings.TrimSpace(strings.TrimPrefix(working, "*"))
	}
	working = strings.TrimPrefix(working, "//")
	if strings.HasSuffix(working, "*/") {
		working = strings.TrimSpace(working[:len(working)-2])
	}
	return strings.TrimSpace(working)
}
