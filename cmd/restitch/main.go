package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/unkn0wn-root/restitch/internal/config"
	"github.com/unkn0wn-root/restitch/internal/errdef"
	"github.com/unkn0wn-root/restitch/internal/history"
	"github.com/unkn0wn-root/restitch/internal/importer"
	"github.com/unkn0wn-root/restitch/internal/telemetry"
	"github.com/unkn0wn-root/restitch/internal/workbook"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	var (
		projectRoot     string
		filesRaw        string
		outPath         string
		snapshotPath    string
		skipValidation  bool
		maxFileSize     int64
		strict          bool
		noPreserve      bool
		autoIDs         bool
		timeout         time.Duration
		concurrency     int
		noHistory       bool
		historyPath     string
		scaffoldFrom    string
		scaffoldDest    string
		showVersion     bool
		showHistory     int
		traceOTEndpoint string
		traceOTInsecure bool
		traceOTService  string
	)

	telemetryCfg := telemetry.ConfigFromEnv(os.Getenv)
	traceOTEndpoint = telemetryCfg.Endpoint
	traceOTInsecure = telemetryCfg.Insecure
	traceOTService = telemetryCfg.ServiceName

	flag.StringVar(&projectRoot, "project", "", "Root directory of the generated test project to import")
	flag.StringVar(&filesRaw, "files", "", "Comma-separated list of suite files to import instead of a project root")
	flag.StringVar(&outPath, "out", "", "Destination for the reconstructed workbook (defaults to stdout)")
	flag.StringVar(&snapshotPath, "snapshot", "", "Explicit workbook snapshot path (defaults to <project>/metadata/workbook.json)")
	flag.BoolVar(&skipValidation, "skip-validation", false, "Skip the post-reconstruction validation pass")
	flag.Int64Var(&maxFileSize, "max-file-size", 0, "Skip files larger than this many bytes (0 uses the default)")
	flag.BoolVar(&strict, "strict", false, "Fail the run on the first per-file error instead of recovering")
	flag.BoolVar(&noPreserve, "no-preserve-unknown", false, "Drop unrecognized metadata fields instead of carrying them through")
	flag.BoolVar(&autoIDs, "auto-ids", false, "Generate ids for metadata blocks that are missing one")
	flag.DurationVar(&timeout, "timeout", 0, "Deadline for the whole import run (0 means none)")
	flag.IntVar(&concurrency, "concurrency", 0, "Per-file worker count (0 or 1 keeps the run sequential)")
	flag.BoolVar(&noHistory, "no-history", false, "Do not record this run in the import history")
	flag.StringVar(&historyPath, "history-db", "", "Path to the run-history database")
	flag.IntVar(&showHistory, "history", 0, "Print the last N import runs and exit")
	flag.StringVar(&scaffoldFrom, "scaffold", "", "Workbook file to scaffold a generated project from")
	flag.StringVar(&scaffoldDest, "dest", "", "Destination directory for -scaffold output")
	flag.BoolVar(&showVersion, "version", false, "Show restitch version")
	flag.StringVar(
		&traceOTEndpoint,
		"trace-otel-endpoint",
		traceOTEndpoint,
		"OTLP collector endpoint for run traces",
	)
	flag.BoolVar(
		&traceOTInsecure,
		"trace-otel-insecure",
		traceOTInsecure,
		"Disable TLS for OTLP trace export",
	)
	flag.StringVar(
		&traceOTService,
		"trace-otel-service",
		traceOTService,
		"Override service.name resource attribute for exported spans",
	)
	flag.Parse()

	telemetryCfg.Endpoint = strings.TrimSpace(traceOTEndpoint)
	telemetryCfg.Insecure = traceOTInsecure
	telemetryCfg.ServiceName = strings.TrimSpace(traceOTService)
	telemetryCfg.Version = version

	if showVersion {
		fmt.Printf("restitch %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		if sum, err := executableChecksum(); err == nil {
			fmt.Printf("  sha256: %s\n", sum)
		} else {
			fmt.Printf("  sha256: unavailable (%v)\n", err)
		}
		os.Exit(0)
	}

	settings, _, err := config.LoadSettings()
	if err != nil {
		log.Printf("settings load error: %v", err)
		settings = config.Settings{}
	}
	if historyPath == "" {
		historyPath = settings.HistoryPath
	}
	if historyPath == "" {
		historyPath = config.HistoryPath()
	}

	if showHistory > 0 {
		printHistory(historyPath, settings.HistoryLimit, showHistory)
		os.Exit(0)
	}

	if scaffoldFrom != "" {
		if err := runScaffold(scaffoldFrom, scaffoldDest); err != nil {
			fmt.Fprintf(os.Stderr, "scaffold error: %s\n", errdef.Message(err))
			os.Exit(1)
		}
		os.Exit(0)
	}

	if projectRoot == "" && filesRaw == "" && flag.NArg() > 0 {
		projectRoot = flag.Arg(0)
	}
	if projectRoot == "" && filesRaw == "" {
		fmt.Fprintln(os.Stderr, "restitch: -project or -files is required")
		flag.Usage()
		os.Exit(2)
	}

	opts := importer.DefaultOptions()
	opts.SkipValidation = skipValidation
	opts.PreserveUnknownFields = !noPreserve
	opts.AutoGenerateIDs = autoIDs
	opts.SkipErrorFiles = !strict
	opts.Timeout = timeout
	opts.SnapshotPath = snapshotPath
	opts.Cache = importer.NewSnapshotCache(0)
	applyImportSettings(&opts, settings.Import)
	if maxFileSize > 0 {
		opts.MaxFileSize = maxFileSize
	}
	if concurrency > 0 {
		opts.Concurrency = concurrency
	}

	instrumenter, err := telemetry.New(telemetryCfg)
	if err != nil {
		if telemetryCfg.Enabled() {
			log.Printf("telemetry init error: %v", err)
		}
		instrumenter = telemetry.Noop()
	}
	opts.Instrumenter = instrumenter
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := instrumenter.Shutdown(ctx); shutdownErr != nil {
			log.Printf("telemetry shutdown: %v", shutdownErr)
		}
	}()

	ctx := context.Background()
	var result *importer.Result
	var runErr error
	if projectRoot != "" {
		result, runErr = importer.ImportProject(ctx, projectRoot, opts)
	} else {
		result, runErr = importer.ImportFromFiles(ctx, splitFiles(filesRaw), opts)
	}

	printIssues(result)
	printSummary(result)

	if !noHistory && result != nil {
		recordRun(historyPath, settings.HistoryLimit, projectRoot, result)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "import failed: %s\n", errdef.Message(runErr))
		os.Exit(1)
	}

	if err := writeWorkbook(result.Workbook, outPath); err != nil {
		fmt.Fprintf(os.Stderr, "write error: %s\n", errdef.Message(err))
		os.Exit(1)
	}
}

func applyImportSettings(opts *importer.Options, in config.ImportSettings) {
	if len(in.Extensions) > 0 {
		opts.Scanner.Extensions = in.Extensions
	}
	if len(in.EntryNames) > 0 {
		opts.Scanner.EntryNames = in.EntryNames
	}
	if in.MaxFileSize > 0 {
		opts.MaxFileSize = in.MaxFileSize
	}
	if in.SkipErrorFiles != nil {
		opts.SkipErrorFiles = *in.SkipErrorFiles
	}
	if in.Concurrency > 0 && opts.Concurrency == 0 {
		opts.Concurrency = in.Concurrency
	}
}

func splitFiles(raw string) []string {
	parts := strings.Split(raw, ",")
	files := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			files = append(files, trimmed)
		}
	}
	return files
}

func printIssues(result *importer.Result) {
	if result == nil {
		return
	}
	for _, issue := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning %s\n", issue)
	}
	for _, issue := range result.Errors {
		fmt.Fprintf(os.Stderr, "error %s\n", issue)
	}
}

func printSummary(result *importer.Result) {
	if result == nil {
		return
	}
	fmt.Fprintf(
		os.Stderr,
		"%s: %d files scanned, %d with metadata, %d requests, %d groups, %d warnings, %d errors in %s\n",
		result.Phase,
		result.Stats.FilesScanned,
		result.Stats.FilesWithMetadata,
		result.Stats.RequestsRecovered,
		result.Stats.GroupsRecovered,
		len(result.Warnings),
		len(result.Errors),
		result.Stats.Elapsed.Round(time.Millisecond),
	)
	if result.Fidelity != nil {
		fmt.Fprintf(os.Stderr, "fidelity: %.1f%% recovered", result.Fidelity.RecoveredPct)
		if len(result.Fidelity.MissingSections) > 0 {
			fmt.Fprintf(os.Stderr, " (sections only in snapshot: %s)", strings.Join(result.Fidelity.MissingSections, ", "))
		}
		fmt.Fprintln(os.Stderr)
	}
}

func writeWorkbook(wb *workbook.Workbook, outPath string) error {
	data, err := json.MarshalIndent(wb, "", "  ")
	if err != nil {
		return errdef.Wrap(errdef.CodeSnapshot, err, "encode workbook")
	}
	data = append(data, '\n')

	if outPath == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if dir := filepath.Dir(outPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errdef.Wrap(errdef.CodeFilesystem, err, "create output directory %s", dir)
		}
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "write %s", outPath)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", outPath)
	return nil
}

func recordRun(path string, limit int, root string, result *importer.Result) {
	store, err := history.Open(path, limit)
	if err != nil {
		log.Printf("history open error: %v", err)
		return
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("history close error: %v", closeErr)
		}
	}()

	entry := history.Entry{
		Root:         root,
		FilesScanned: result.Stats.FilesScanned,
		Requests:     result.Stats.RequestsRecovered,
		Groups:       result.Stats.GroupsRecovered,
		Warnings:     len(result.Warnings),
		Errors:       len(result.Errors),
		Elapsed:      result.Stats.Elapsed,
	}
	if result.Fidelity != nil {
		entry.FidelityPct = result.Fidelity.RecoveredPct
		entry.HasFidelity = true
	}
	if err := store.Append(entry); err != nil {
		log.Printf("history append error: %v", err)
	}
}

func printHistory(path string, limit, count int) {
	store, err := history.Open(path, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "history error: %s\n", errdef.Message(err))
		os.Exit(1)
	}
	defer func() {
		_ = store.Close()
	}()

	entries, err := store.List(count)
	if err != nil {
		fmt.Fprintf(os.Stderr, "history error: %s\n", errdef.Message(err))
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Println("no recorded runs")
		return
	}
	for _, entry := range entries {
		fidelity := "-"
		if entry.HasFidelity {
			fidelity = fmt.Sprintf("%.1f%%", entry.FidelityPct)
		}
		fmt.Printf(
			"%s  %-30s files=%d requests=%d groups=%d warnings=%d errors=%d fidelity=%s elapsed=%s\n",
			entry.RunAt.Format(time.RFC3339),
			entry.Root,
			entry.FilesScanned,
			entry.Requests,
			entry.Groups,
			entry.Warnings,
			entry.Errors,
			fidelity,
			entry.Elapsed.Round(time.Millisecond),
		)
	}
}

func executableChecksum() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "", err
	}
	f, err := os.Open(exe)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
