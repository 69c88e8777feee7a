package importer

import (
	"time"

	"github.com/unkn0wn-root/restitch/internal/scanner"
	"github.com/unkn0wn-root/restitch/internal/spans"
	"github.com/unkn0wn-root/restitch/internal/telemetry"
)

// SnapshotRelPath is where the export side leaves the authoritative workbook
// snapshot, relative to the project root.
const SnapshotRelPath = "metadata/workbook.json"

const defaultMaxFileSize = 10 << 20

type Options struct {
	// SkipValidation disables the post-reconstruction validation pass.
	SkipValidation bool
	// MaxFileSize skips larger files with a warning. Zero means the default.
	MaxFileSize int64
	// PreserveUnknownFields keeps unrecognized payload fields on the
	// reconstructed entities.
	PreserveUnknownFields bool
	// AutoGenerateIDs repairs payloads with a missing id instead of
	// rejecting them.
	AutoGenerateIDs bool
	// SkipErrorFiles records per-file and per-block failures as recovered
	// errors; when false the first such failure fails the whole run.
	SkipErrorFiles bool
	// Timeout bounds the whole run. Zero means no deadline.
	Timeout time.Duration
	// Concurrency caps the per-file worker count; values below 2 keep the
	// run sequential. Output ordering is scan order either way.
	Concurrency int
	// SnapshotPath overrides SnapshotRelPath resolution; may be absolute.
	SnapshotPath string

	Scanner      scanner.Options
	SpanParser   spans.Parser
	Cache        *SnapshotCache
	Instrumenter telemetry.Instrumenter
}

func DefaultOptions() Options {
	return Options{
		MaxFileSize:           defaultMaxFileSize,
		PreserveUnknownFields: true,
		SkipErrorFiles:        true,
		Scanner:               scanner.DefaultOptions(),
	}
}

func (o Options) normalized() Options {
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = defaultMaxFileSize
	}
	if len(o.Scanner.Extensions) == 0 {
		o.Scanner = scanner.DefaultOptions()
	}
	if o.SpanParser == nil {
		o.SpanParser = spans.NewLineParser()
	}
	if o.Instrumenter == nil {
		o.Instrumenter = telemetry.Noop()
	}
	return o
}
