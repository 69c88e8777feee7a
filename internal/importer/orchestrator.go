package importer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/unkn0wn-root/restitch/internal/errdef"
	"github.com/unkn0wn-root/restitch/internal/metablock"
	"github.com/unkn0wn-root/restitch/internal/rebuild"
	"github.com/unkn0wn-root/restitch/internal/scanner"
	"github.com/unkn0wn-root/restitch/internal/telemetry"
	"github.com/unkn0wn-root/restitch/internal/workbook"
)

type Phase string

const (
	PhaseScanning       Phase = "scanning"
	PhaseExtracting     Phase = "extracting"
	PhaseReconstructing Phase = "reconstructing"
	PhaseValidating     Phase = "validating"
	PhaseReconciling    Phase = "reconciling"
	PhaseDone           Phase = "done"
	PhaseFailed         Phase = "failed"
)

type Stats struct {
	FilesScanned      int
	FilesWithMetadata int
	RequestsRecovered int
	GroupsRecovered   int
	BytesScanned      int64
	Elapsed           time.Duration
}

// Result is always returned on a best-effort basis: even a run that ends in
// PhaseFailed carries the statistics gathered up to that point.
type Result struct {
	Workbook *workbook.Workbook
	Phase    Phase
	Stats    Stats
	Warnings []Issue
	Errors   []Issue
	Fidelity *Fidelity
}

// ImportProject scans root and reconstructs a workbook from the generated
// project it contains. Only run-level preconditions (bad path, escalated
// per-file errors) produce a non-nil error.
func ImportProject(ctx context.Context, root string, opts Options) (*Result, error) {
	opts = opts.normalized()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	started := time.Now()
	result := &Result{Phase: PhaseScanning, Workbook: &workbook.Workbook{Version: workbook.Version}}

	project, err := scanner.Scan(root, opts.Scanner)
	if err != nil {
		result.Phase = PhaseFailed
		result.Stats.Elapsed = time.Since(started)
		return result, err
	}
	for _, warning := range project.Warnings {
		result.Warnings = append(result.Warnings, Issue{Kind: IssueFileRead, Message: warning})
	}

	files := parseableFiles(project)
	result.Stats.FilesScanned = len(project.Files)

	ctx, span := opts.Instrumenter.StartRun(ctx, telemetry.RunStart{Root: project.Root, FileCount: len(files)})
	snapshotPath := opts.SnapshotPath
	if snapshotPath == "" {
		snapshotPath = filepath.Join(project.Root, filepath.FromSlash(SnapshotRelPath))
	}

	err = run(ctx, result, files, snapshotPath, opts, span, started)
	return result, err
}

// ImportFromFiles reconstructs from an explicit file list instead of a
// directory walk. Snapshot reconciliation only happens when the options name
// a snapshot path.
func ImportFromFiles(ctx context.Context, paths []string, opts Options) (*Result, error) {
	opts = opts.normalized()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	started := time.Now()
	result := &Result{Phase: PhaseScanning, Workbook: &workbook.Workbook{Version: workbook.Version}}

	var files []scanner.ScannedFile
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		info, err := os.Stat(abs)
		if err != nil {
			issue := Issue{Kind: IssueFileRead, File: path, Message: "cannot stat file: " + err.Error()}
			if !opts.SkipErrorFiles {
				result.Errors = append(result.Errors, issue)
				result.Phase = PhaseFailed
				result.Stats.Elapsed = time.Since(started)
				return result, errdef.Wrap(errdef.CodeFilesystem, err, "stat %s", path)
			}
			result.Errors = append(result.Errors, issue)
			continue
		}
		files = append(files, scanner.ScannedFile{
			Path:    abs,
			RelPath: filepath.Base(abs),
			Role:    scanner.RoleSuite,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	result.Stats.FilesScanned = len(files)

	ctx, span := opts.Instrumenter.StartRun(ctx, telemetry.RunStart{FileCount: len(files)})
	err := run(ctx, result, files, opts.SnapshotPath, opts, span, started)
	return result, err
}

func run(
	ctx context.Context,
	result *Result,
	files []scanner.ScannedFile,
	snapshotPath string,
	opts Options,
	span telemetry.RunSpan,
	started time.Time,
) error {
	finish := func(runErr error) error {
		result.Stats.Elapsed = time.Since(started)
		if runErr != nil {
			result.Phase = PhaseFailed
		} else {
			result.Phase = PhaseDone
		}
		fidelity := 0.0
		hasFidelity := false
		if result.Fidelity != nil {
			fidelity = result.Fidelity.RecoveredPct
			hasFidelity = true
		}
		span.End(telemetry.RunResult{
			Err:         runErr,
			Requests:    result.Stats.RequestsRecovered,
			Groups:      result.Stats.GroupsRecovered,
			Warnings:    len(result.Warnings),
			Errors:      len(result.Errors),
			Fidelity:    fidelity,
			HasFidelity: hasFidelity,
		})
		return runErr
	}

	result.Phase = PhaseExtracting
	span.Phase(string(PhaseExtracting))

	outcomes := processFiles(ctx, files, opts)

	result.Phase = PhaseReconstructing
	span.Phase(string(PhaseReconstructing))

	for i, outcome := range outcomes {
		if outcome.fatal != nil {
			result.Warnings = append(result.Warnings, outcome.warnings...)
			result.Errors = append(result.Errors, outcome.errors...)
			return finish(outcome.fatal)
		}
		result.Warnings = append(result.Warnings, outcome.warnings...)
		result.Errors = append(result.Errors, outcome.errors...)
		result.Workbook.Requests = append(result.Workbook.Requests, outcome.entities...)
		result.Stats.BytesScanned += outcome.bytes
		if outcome.hadMetadata {
			result.Stats.FilesWithMetadata++
		}
		requests, groups := workbook.CountEntities(outcome.entities)
		result.Stats.RequestsRecovered += requests
		result.Stats.GroupsRecovered += groups
		span.File(files[i].RelPath, requests, groups, len(outcome.warnings)+len(outcome.errors))
	}

	if err := ctx.Err(); err != nil {
		return finish(errdef.Wrap(errdef.CodeUnknown, err, "import interrupted"))
	}

	if !opts.SkipValidation {
		result.Phase = PhaseValidating
		span.Phase(string(PhaseValidating))
		result.Warnings = append(result.Warnings, validate(result.Workbook)...)
	}

	if snapshotPath != "" {
		if _, err := os.Stat(snapshotPath); err == nil {
			result.Phase = PhaseReconciling
			span.Phase(string(PhaseReconciling))
			if err := reconcile(result, snapshotPath, opts); err != nil {
				result.Errors = append(result.Errors, Issue{
					Kind: IssueFileRead, File: snapshotPath,
					Message: "snapshot unusable: " + errdef.Message(err),
				})
				if !opts.SkipErrorFiles {
					return finish(err)
				}
			}
		}
	}

	return finish(nil)
}

func parseableFiles(project *scanner.Project) []scanner.ScannedFile {
	files := make([]scanner.ScannedFile, 0, len(project.Files))
	for _, file := range project.Files {
		if file.Role == scanner.RoleOther {
			continue
		}
		files = append(files, file)
	}
	return files
}

type fileOutcome struct {
	entities    []workbook.Entity
	warnings    []Issue
	errors      []Issue
	hadMetadata bool
	bytes       int64
	fatal       error
}

// processFiles runs the per-file pipeline over every file, optionally with a
// bounded worker pool. Outcomes are indexed by scan order so the merged
// warning/error ordering is deterministic regardless of completion order.
func processFiles(ctx context.Context, files []scanner.ScannedFile, opts Options) []fileOutcome {
	outcomes := make([]fileOutcome, len(files))

	if opts.Concurrency > 1 && len(files) > 1 {
		sem := make(chan struct{}, opts.Concurrency)
		var wg sync.WaitGroup
		for i := range files {
			if ctx.Err() != nil {
				break
			}
			wg.Add(1)
			sem <- struct{}{}
			go func(idx int) {
				defer wg.Done()
				defer func() { <-sem }()
				outcomes[idx] = processFile(files[idx], opts)
			}(i)
		}
		wg.Wait()
		return outcomes
	}

	for i := range files {
		if ctx.Err() != nil {
			break
		}
		outcomes[i] = processFile(files[i], opts)
	}
	return outcomes
}

func processFile(file scanner.ScannedFile, opts Options) fileOutcome {
	outcome := fileOutcome{}

	if file.Size > opts.MaxFileSize {
		outcome.warnings = append(outcome.warnings, Issue{
			Kind: IssueOversizedFile, File: file.RelPath,
			Message: "file exceeds the size limit and was skipped",
		})
		return outcome
	}

	data, err := os.ReadFile(file.Path)
	if err != nil {
		issue := Issue{Kind: IssueFileRead, File: file.RelPath, Message: err.Error()}
		outcome.errors = append(outcome.errors, issue)
		if !opts.SkipErrorFiles {
			outcome.fatal = errdef.Wrap(errdef.CodeFilesystem, err, "read %s", file.Path)
		}
		return outcome
	}
	outcome.bytes = int64(len(data))

	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")

	blocks, problems := metablock.Extract(file.RelPath, lines)
	outcome.hadMetadata = len(blocks) > 0
	for _, problem := range problems {
		issue := issueFromProblem(problem)
		outcome.errors = append(outcome.errors, issue)
		if !opts.SkipErrorFiles && outcome.fatal == nil {
			outcome.fatal = errdef.New(errdef.CodeParse, "%s", issue.String())
		}
	}
	if outcome.fatal != nil {
		return outcome
	}

	roots := opts.SpanParser.Parse(lines)

	built := rebuild.Reconstruct(file.RelPath, roots, blocks, rebuild.Options{
		Build: rebuild.BuildOptions{
			PreserveUnknownFields: opts.PreserveUnknownFields,
			AutoGenerateID:        opts.AutoGenerateIDs,
		},
	})

	for _, warning := range built.Warnings {
		outcome.warnings = append(outcome.warnings, issueFromStructureWarning(warning))
	}
	for _, warning := range built.FieldWarnings {
		outcome.warnings = append(outcome.warnings, issueFromFieldWarning(warning))
	}
	for _, err := range built.Errors {
		var issue Issue
		if fieldErr, ok := err.(*rebuild.FieldError); ok {
			issue = issueFromFieldError(fieldErr)
		} else {
			issue = Issue{Kind: IssueStructure, File: file.RelPath, Message: err.Error()}
		}
		outcome.errors = append(outcome.errors, issue)
		if !opts.SkipErrorFiles && outcome.fatal == nil {
			outcome.fatal = errdef.Wrap(errdef.CodeValidation, err, "reconstruct %s", file.RelPath)
		}
	}
	if outcome.fatal != nil {
		return outcome
	}

	outcome.entities = built.Entities
	return outcome
}
