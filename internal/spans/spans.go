package spans

import (
	"regexp"
	"strings"
)

// Span is one nested block declaration recovered from source text. EndLine
// is resolved when the matching close is found, or forced to the last line
// of the file.
type Span struct {
	Label     string
	StartLine int
	EndLine   int
	Indent    int
	Children  []*Span
	// MetaLine is the line of the nearest preceding metadata marker within
	// the lookback window, zero when none was found.
	MetaLine int
}

// Parser turns file lines into a span tree. The line-oriented implementation
// below is deliberately heuristic; an AST-based parser can be swapped in as
// long as it honors this contract.
type Parser interface {
	Parse(lines []string) []*Span
}

type LineParser struct {
	Open     *regexp.Regexp // must capture the label in group 2
	Marker   *regexp.Regexp
	Lookback int
	TabWidth int
}

var (
	defaultOpenRe = regexp.MustCompile(
		`^(?:describe|suite|context)(?:\.only|\.skip)?\s*\(\s*(['"` + "`" + `])(.*?)(['"` + "`" + `])`,
	)
	defaultMarkerRe = regexp.MustCompile(`@(?:request|group)-metadata(?:\s|$|[^-])`)
	closeLineRe     = regexp.MustCompile(`^[}\])]`)
)

func NewLineParser() *LineParser {
	return &LineParser{
		Open:     defaultOpenRe,
		Marker:   defaultMarkerRe,
		Lookback: 10,
		TabWidth: 4,
	}
}

// Parse scans the lines once, maintaining a stack of open spans. A new
// declaration whose indentation is not strictly greater than the stack top
// closes spans until the indentation is consistent. Explicit closing tokens
// close spans at or above their indentation. Anything still open at the end
// of the file is force-closed on the last line.
func (p *LineParser) Parse(lines []string) []*Span {
	var roots []*Span
	var stack []*Span

	closeTo := func(indent, line int) {
		for len(stack) > 0 && stack[len(stack)-1].Indent >= indent {
			top := stack[len(stack)-1]
			if top.EndLine == 0 {
				top.EndLine = line
			}
			stack = stack[:len(stack)-1]
		}
	}

	for i, raw := range lines {
		lineNo := i + 1
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		indent := p.indentWidth(raw)

		if closeLineRe.MatchString(trimmed) {
			closeTo(indent, lineNo)
			continue
		}

		matches := p.Open.FindStringSubmatch(trimmed)
		if matches == nil {
			continue
		}
		closeTo(indent, lineNo-1)

		span := &Span{
			Label:     matches[2],
			StartLine: lineNo,
			Indent:    indent,
			MetaLine:  p.findMarker(lines, i),
		}
		if len(stack) > 0 {
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, span)
		} else {
			roots = append(roots, span)
		}
		stack = append(stack, span)
	}

	for _, span := range stack {
		if span.EndLine == 0 {
			span.EndLine = len(lines)
		}
	}
	return roots
}

// findMarker scans the lookback window above the declaration for a metadata
// open marker and returns its line number.
func (p *LineParser) findMarker(lines []string, declIndex int) int {
	lookback := p.Lookback
	if lookback <= 0 {
		lookback = 10
	}
	for off := 1; off <= lookback; off++ {
		idx := declIndex - off
		if idx < 0 {
			break
		}
		if p.Marker.MatchString(lines[idx]) {
			return idx + 1
		}
	}
	return 0
}

// indentWidth measures leading whitespace with tabs expanded. Mixed tabs and
// spaces are best-effort: the parser does not build a real syntax tree.
func (p *LineParser) indentWidth(line string) int {
	tab := p.TabWidth
	if tab <= 0 {
		tab = 4
	}
	width := 0
	for _, r := range line {
		switch r {
		case ' ':
			width++
		case '\t':
			width += tab - width%tab
		default:
			return width
		}
	}
	return width
}
