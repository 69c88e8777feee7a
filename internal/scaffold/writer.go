package scaffold

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/unkn0wn-root/restitch/internal/metablock"
	"github.com/unkn0wn-root/restitch/internal/workbook"
)

const (
	EntryFileName   = "index.spec.js"
	SnapshotRelPath = "metadata/workbook.json"

	indentStep = "    "
)

type Options struct {
	OverwriteExisting bool
	HeaderComment     string
	// SkipSnapshot leaves out metadata/workbook.json, producing a project
	// that can only be recovered structurally.
	SkipSnapshot bool
}

// WriteProject renders the workbook into a generated test project: one suite
// file per top-level entity, an entry file requiring them all, and the
// authoritative snapshot under metadata/.
func WriteProject(ctx context.Context, wb *workbook.Workbook, dst string, opts Options) error {
	if wb == nil {
		return errors.New("scaffold: workbook is nil")
	}
	if strings.TrimSpace(dst) == "" {
		return errors.New("scaffold: destination path is empty")
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("scaffold: create destination: %w", err)
	}

	var suiteNames []string
	used := map[string]int{}
	for _, entity := range wb.Requests {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := suiteFileName(entity.EntityName(), used)
		suiteNames = append(suiteNames, name)
		content := renderSuite(entity, opts.HeaderComment)
		if err := writeFile(filepath.Join(dst, name), content, opts.OverwriteExisting); err != nil {
			return err
		}
	}

	entry := renderEntry(suiteNames, opts.HeaderComment)
	if err := writeFile(filepath.Join(dst, EntryFileName), entry, opts.OverwriteExisting); err != nil {
		return err
	}

	if !opts.SkipSnapshot {
		data, err := json.MarshalIndent(wb, "", "  ")
		if err != nil {
			return fmt.Errorf("scaffold: marshal snapshot: %w", err)
		}
		snapshotPath := filepath.Join(dst, filepath.FromSlash(SnapshotRelPath))
		if err := writeFile(snapshotPath, string(data)+"\n", opts.OverwriteExisting); err != nil {
			return err
		}
	}
	return nil
}

func renderEntry(suiteNames []string, header string) string {
	var b strings.Builder
	renderHeader(&b, header)
	for _, name := range suiteNames {
		fmt.Fprintf(&b, "require('./%s');\n", name)
	}
	return b.String()
}

func renderSuite(entity workbook.Entity, header string) string {
	var b strings.Builder
	renderHeader(&b, header)
	renderEntity(&b, entity, 0)
	return b.String()
}

func renderHeader(b *strings.Builder, header string) {
	if strings.TrimSpace(header) == "" {
		return
	}
	for _, line := range strings.Split(strings.TrimSpace(header), "\n") {
		b.WriteString("// " + line + "\n")
	}
	b.WriteString("\n")
}

func renderEntity(b *strings.Builder, entity workbook.Entity, depth int) {
	switch typed := entity.(type) {
	case *workbook.Request:
		renderRequest(b, typed, depth)
	case *workbook.Group:
		renderGroup(b, typed, depth)
	}
}

func renderGroup(b *strings.Builder, group *workbook.Group, depth int) {
	indent := strings.Repeat(indentStep, depth)
	renderMetadata(b, metablock.GroupOpen, metablock.GroupClose, groupPayload(group), indent)
	fmt.Fprintf(b, "%sdescribe(%s, () => {\n", indent, jsString(group.Name))
	for i, child := range group.Children {
		if i > 0 {
			b.WriteString("\n")
		}
		renderEntity(b, child, depth+1)
	}
	fmt.Fprintf(b, "%s});\n", indent)
}

func renderRequest(b *strings.Builder, request *workbook.Request, depth int) {
	indent := strings.Repeat(indentStep, depth)
	payload, err := workbook.Canonical(request)
	if err != nil {
		payload = []byte("{}")
	}
	renderMetadata(b, metablock.RequestOpen, metablock.RequestClose, payload, indent)
	fmt.Fprintf(b, "%sdescribe(%s, () => {\n", indent, jsString(request.Name))
	fmt.Fprintf(b, "%s%sit('passes its checks', () => {\n", indent, indentStep)
	body := request.Test
	if strings.TrimSpace(body) == "" {
		body = "// no test code recorded"
	}
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) == "" {
			b.WriteString("\n")
			continue
		}
		fmt.Fprintf(b, "%s%s%s%s\n", indent, indentStep, indentStep, line)
	}
	fmt.Fprintf(b, "%s%s});\n", indent, indentStep)
	fmt.Fprintf(b, "%s});\n", indent)
}

func groupPayload(group *workbook.Group) []byte {
	// Children live in the structure, not in the comment, so the payload is
	// the group's scalar fields only.
	out := make(map[string]interface{}, len(group.Extra)+4)
	for key, raw := range group.Extra {
		out[key] = json.RawMessage(raw)
	}
	out["id"] = group.ID
	out["name"] = group.Name
	if group.Execution != "" {
		out["execution"] = group.Execution
	}
	if group.Runs > 0 {
		out["runs"] = group.Runs
	}
	data, err := json.Marshal(out)
	if err != nil {
		return []byte("{}")
	}
	return data
}

func renderMetadata(b *strings.Builder, open, close string, payload []byte, indent string) {
	fmt.Fprintf(b, "%s/* %s\n", indent, open)
	fmt.Fprintf(b, "%s%s\n", indent, escapeCommentTerminator(string(payload)))
	fmt.Fprintf(b, "%s%s */\n", indent, close)
}

// escapeCommentTerminator keeps a "*/" inside payload strings from ending
// the surrounding comment. "\/" is a legal JSON escape for a slash, so the
// payload stays parseable.
func escapeCommentTerminator(payload string) string {
	return strings.ReplaceAll(payload, "*/", "*\\/")
}

func jsString(value string) string {
	quoted := strings.ReplaceAll(value, "\\", "\\\\")
	quoted = strings.ReplaceAll(quoted, "'", "\\'")
	quoted = strings.ReplaceAll(quoted, "\n", "\\n")
	return "'" + quoted + "'"
}

func suiteFileName(name string, used map[string]int) string {
	slug := slugify(name)
	if slug == "" {
		slug = "suite"
	}
	used[slug]++
	if used[slug] > 1 {
		slug = fmt.Sprintf("%s-%d", slug, used[slug])
	}
	return slug + ".spec.js"
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteRune('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func writeFile(dst, content string, overwrite bool) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("scaffold: create directory: %w", err)
	}

	if !overwrite {
		if _, err := os.Stat(dst); err == nil {
			return fmt.Errorf("scaffold: destination %s already exists", dst)
		}
	}

	tmp, err := os.CreateTemp(dir, "restitch-*.tmp")
	if err != nil {
		return fmt.Errorf("scaffold: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := io.WriteString(tmp, content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("scaffold: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("scaffold: close temp file: %w", err)
	}

	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("scaffold: rename temp file: %w", err)
	}
	return nil
}
