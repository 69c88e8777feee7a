package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/unkn0wn-root/restitch/internal/errdef"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestScanClassifiesFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "index.spec.js"), "require('./auth.spec.js');\n")
	writeFile(t, filepath.Join(dir, "auth.spec.js"), "describe('auth', () => {});\n")
	writeFile(t, filepath.Join(dir, "helpers.js"), "module.exports = {};\n")
	writeFile(t, filepath.Join(dir, "sub", "users.test.ts"), "describe('users', () => {});\n")
	writeFile(t, filepath.Join(dir, "README.md"), "# readme\n")

	project, err := Scan(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(project.Files) != 5 {
		t.Fatalf("expected 5 files, got %d", len(project.Files))
	}

	roles := map[string]Role{}
	for _, file := range project.Files {
		roles[filepath.ToSlash(file.RelPath)] = file.Role
	}
	if roles["index.spec.js"] != RoleEntry {
		t.Fatalf("expected entry role, got %q", roles["index.spec.js"])
	}
	if roles["auth.spec.js"] != RoleSuite || roles["sub/users.test.ts"] != RoleSuite {
		t.Fatalf("expected suite roles, got %+v", roles)
	}
	if roles["helpers.js"] != RoleOther || roles["README.md"] != RoleOther {
		t.Fatalf("expected other roles, got %+v", roles)
	}

	if project.Entry == nil {
		t.Fatalf("expected entry file to be recorded")
	}
	refs := project.Deps[project.Entry.RelPath]
	if len(refs) != 1 || refs[0] != "auth.spec.js" {
		t.Fatalf("unexpected entry references: %+v", refs)
	}
}

func TestScanResolvesExtensionlessImports(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "index.spec.js"), "import './auth.spec';\nrequire('./missing.spec');\n")
	writeFile(t, filepath.Join(dir, "auth.spec.js"), "describe('auth', () => {});\n")

	project, err := Scan(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	refs := project.Deps[project.Entry.RelPath]
	if len(refs) != 1 || refs[0] != "auth.spec.js" {
		t.Fatalf("expected extensionless import to resolve, got %+v", refs)
	}
}

func TestScanSkipsNodeModulesAndDotDirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "auth.spec.js"), "describe('auth', () => {});\n")
	writeFile(t, filepath.Join(dir, "node_modules", "dep", "dep.spec.js"), "describe('dep', () => {});\n")
	writeFile(t, filepath.Join(dir, ".git", "junk.spec.js"), "describe('junk', () => {});\n")

	project, err := Scan(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(project.Files) != 1 {
		t.Fatalf("expected only the real suite, got %d files", len(project.Files))
	}
}

func TestScanRejectsBadRoots(t *testing.T) {
	_, err := Scan(filepath.Join(t.TempDir(), "does-not-exist"), DefaultOptions())
	if err == nil {
		t.Fatalf("expected missing path to fail")
	}
	if errdef.CodeOf(err) != errdef.CodeFilesystem {
		t.Fatalf("expected filesystem code, got %q", errdef.CodeOf(err))
	}

	file := filepath.Join(t.TempDir(), "plain.txt")
	writeFile(t, file, "data")
	if _, err := Scan(file, DefaultOptions()); err == nil {
		t.Fatalf("expected non-directory root to fail")
	}
}
