package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/unkn0wn-root/restitch/internal/errdef"
)

type Role string

const (
	RoleEntry Role = "entry"
	RoleSuite Role = "suite"
	RoleOther Role = "other"
)

type ScannedFile struct {
	Path    string // absolute
	RelPath string // relative to project root
	Role    Role
	Size    int64
	ModTime time.Time
}

// Project is the flat result of one directory walk. Warnings carry
// unreadable subtrees that were skipped rather than failing the scan.
type Project struct {
	Root     string
	Files    []ScannedFile
	Entry    *ScannedFile
	Deps     map[string][]string // entry rel path -> referenced suite rel paths
	Warnings []string
}

type Options struct {
	Extensions []string // suite file extensions, lowercase with dot
	EntryNames []string // base names treated as the project entry file
}

func DefaultOptions() Options {
	return Options{
		Extensions: []string{".js", ".ts", ".mjs"},
		EntryNames: []string{"index.spec.js", "index.spec.ts", "main.spec.js", "main.spec.ts"},
	}
}

var importLineRe = regexp.MustCompile(
	`(?:require\s*\(\s*|from\s+|import\s+)['"](\.{1,2}/[^'"]+)['"]`,
)

// Scan walks the project root and classifies every file. Unreadable
// directories are skipped with a warning and symlinked duplicates are
// collapsed by resolved absolute path.
func Scan(root string, opts Options) (*Project, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errdef.Wrap(errdef.CodeFilesystem, err, "project path %s does not exist", root)
		}
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "stat project path %s", root)
	}
	if !info.IsDir() {
		return nil, errdef.New(errdef.CodeFilesystem, "project path %s is not a directory", root)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "resolve project path %s", root)
	}

	project := &Project{Root: absRoot, Deps: map[string][]string{}}
	seen := map[string]struct{}{}

	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			project.Warnings = append(project.Warnings, "skipped unreadable path "+path+": "+err.Error())
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != absRoot {
				return filepath.SkipDir
			}
			if d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		resolved := path
		if target, linkErr := filepath.EvalSymlinks(path); linkErr == nil {
			resolved = target
		}
		if _, dup := seen[resolved]; dup {
			return nil
		}
		seen[resolved] = struct{}{}

		fileInfo, infoErr := d.Info()
		if infoErr != nil {
			project.Warnings = append(project.Warnings, "skipped unreadable file "+path+": "+infoErr.Error())
			return nil
		}

		rel := d.Name()
		if r, relErr := filepath.Rel(absRoot, path); relErr == nil {
			rel = r
		}

		scanned := ScannedFile{
			Path:    path,
			RelPath: rel,
			Role:    classify(d.Name(), opts),
			Size:    fileInfo.Size(),
			ModTime: fileInfo.ModTime(),
		}
		project.Files = append(project.Files, scanned)
		if scanned.Role == RoleEntry && project.Entry == nil {
			entry := scanned
			project.Entry = &entry
		}
		return nil
	})
	if walkErr != nil {
		return nil, errdef.Wrap(errdef.CodeFilesystem, walkErr, "walk project %s", absRoot)
	}

	if project.Entry != nil {
		project.Deps[project.Entry.RelPath] = entryReferences(project)
	}
	return project, nil
}

func classify(name string, opts Options) Role {
	lower := strings.ToLower(name)
	for _, entry := range opts.EntryNames {
		if lower == strings.ToLower(entry) {
			return RoleEntry
		}
	}
	ext := strings.ToLower(filepath.Ext(lower))
	supported := false
	for _, candidate := range opts.Extensions {
		if ext == candidate {
			supported = true
			break
		}
	}
	if !supported {
		return RoleOther
	}
	base := strings.TrimSuffix(lower, ext)
	if strings.HasSuffix(base, ".spec") || strings.HasSuffix(base, ".test") {
		return RoleSuite
	}
	return RoleOther
}

// entryReferences resolves import/require lines in the entry file against
// scanned suite files. Purely informational: a suite missing from the entry
// file still gets imported.
func entryReferences(project *Project) []string {
	data, err := os.ReadFile(project.Entry.Path)
	if err != nil {
		project.Warnings = append(project.Warnings, "could not read entry file "+project.Entry.Path+": "+err.Error())
		return nil
	}

	byRel := map[string]struct{}{}
	for _, file := range project.Files {
		if file.Role == RoleSuite {
			byRel[filepath.ToSlash(file.RelPath)] = struct{}{}
		}
	}

	entryDir := filepath.Dir(project.Entry.RelPath)
	var refs []string
	for _, line := range strings.Split(string(data), "\n") {
		matches := importLineRe.FindStringSubmatch(line)
		if matches == nil {
			continue
		}
		target := filepath.ToSlash(filepath.Join(entryDir, matches[1]))
		if _, ok := byRel[target]; ok {
			refs = append(refs, target)
			continue
		}
		// Import specifiers usually drop the extension.
		for _, ext := range []string{".js", ".ts", ".mjs"} {
			if _, ok := byRel[target+ext]; ok {
				refs = append(refs, target+ext)
				break
			}
		}
	}
	return dedupe(refs)
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
