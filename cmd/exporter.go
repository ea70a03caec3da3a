package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Stage names shown while exporting
const (
	StageConnecting = "Connecting"
	StageWriting    = "Writing report"
	StageArchiving  = "Archiving"
	StageSweeping   = "Removing old archives"
	StagePublishing = "Publishing"
	StageDone       = "Done"
)

// ExportResult is the outcome of one export run. Stage errors after the
// report has been written are recorded here instead of failing the run.
type ExportResult struct {
	Files       ReportFiles
	Report      ReportStats
	Archived    bool
	ArchiveSize int64
	ArchiveErr  error
	Sweep       SweepResult
	SweepErr    error
	Publish     *PublishResult
	PublishErr  error
	StartTime   time.Time
	Duration    time.Duration
}

type Exporter struct {
	config       *Config
	logger       *slog.Logger
	program      *tea.Program
	now          func() time.Time
	openSource   func(context.Context, *Config, *slog.Logger) (ArticleSource, error)
	newPublisher func(S3Config, bool, *slog.Logger) (*Publisher, error)
}

func NewExporter(config *Config, logger *slog.Logger) *Exporter {
	return &Exporter{
		config:       config,
		logger:       logger,
		now:          time.Now,
		openSource:   OpenSource,
		newPublisher: NewPublisher,
	}
}

// attachProgram routes stage updates and log lines to a progress display
func (e *Exporter) attachProgram(program *tea.Program, level slog.Level) {
	e.program = program
	e.logger = slog.New(newProgramLogHandler(program, level))
}

func (e *Exporter) detachProgram(logger *slog.Logger) {
	e.program = nil
	e.logger = logger
}

func (e *Exporter) send(msg tea.Msg) {
	if e.program != nil {
		e.program.Send(msg)
	}
}

func (e *Exporter) stage(name string) {
	e.logger.Debug(fmt.Sprintf("%s...", name))
	e.send(stageMsg{stage: name})
}

// Run executes connect, report, archive, sweep and publish in order. It
// returns an error only when no report could be produced: connection
// failure, an unusable output directory, or a store error while reading.
func (e *Exporter) Run(ctx context.Context) (*ExportResult, error) {
	start := e.now()
	result := &ExportResult{
		StartTime: start,
		Files:     NewReportFiles(e.config.OutputDir, e.config.Prefix, start),
	}

	e.stage(StageConnecting)
	source, err := e.openSource(ctx, e.config, e.logger)
	if err != nil {
		return result, err
	}
	defer func() {
		if err := source.Close(context.Background()); err != nil {
			e.logger.Debug(fmt.Sprintf("Error closing article store: %v", err))
		}
	}()
	e.logger.Info("✅ Connected to article store")

	if err := os.MkdirAll(e.config.OutputDir, 0o755); err != nil {
		return result, fmt.Errorf("failed to create output directory %s: %w", e.config.OutputDir, err)
	}

	e.stage(StageWriting)
	writer := NewReportWriter(e.logger, func(stats ReportStats) {
		e.send(recordsMsg(stats))
	})
	result.Report, err = writer.Write(ctx, source, result.Files.CSV)
	if err != nil {
		return result, fmt.Errorf("failed to write report: %w", err)
	}
	e.logger.Info(fmt.Sprintf("✅ Wrote %d rows to %s", result.Report.Written, result.Files.CSV))

	e.stage(StageArchiving)
	result.ArchiveSize, result.ArchiveErr = ArchiveReport(result.Files, e.config.CompressionLevel)
	result.Archived = result.ArchiveSize > 0
	if result.Archived {
		e.logger.Info(fmt.Sprintf("📦 Created %s (%d bytes)", result.Files.Zip, result.ArchiveSize))
	}
	if result.ArchiveErr != nil {
		e.logger.Error(fmt.Sprintf("❌ Failed to archive %s into %s: %v", result.Files.CSV, result.Files.Zip, result.ArchiveErr))
	}

	e.stage(StageSweeping)
	result.Sweep, result.SweepErr = SweepArchives(e.config.OutputDir, e.config.Prefix, e.config.Keep, e.logger)
	if result.SweepErr != nil {
		e.logger.Error(fmt.Sprintf("❌ Retention sweep incomplete: %v", result.SweepErr))
	}

	if e.config.S3.Enabled() && result.Archived {
		e.stage(StagePublishing)
		e.publish(ctx, result)
	}

	result.Duration = e.now().Sub(start)
	e.send(stageMsg{stage: StageDone})
	return result, nil
}

func (e *Exporter) publish(ctx context.Context, result *ExportResult) {
	publisher, err := e.newPublisher(e.config.S3, e.config.DryRun, e.logger)
	if err != nil {
		result.PublishErr = err
		e.logger.Error(fmt.Sprintf("❌ Failed to publish %s: %v", result.Files.Zip, err))
		return
	}

	published, err := publisher.Publish(ctx, result.Files.Zip, result.StartTime)
	result.Publish = &published
	if err != nil {
		result.PublishErr = err
		e.logger.Error(fmt.Sprintf("❌ Failed to publish %s: %v", result.Files.Zip, err))
		return
	}
	if published.Uploaded {
		e.logger.Info(fmt.Sprintf("☁️  Uploaded s3://%s/%s", e.config.S3.Bucket, published.Key))
	}
}

func (e *Exporter) printSummary(result *ExportResult) {
	if result == nil {
		return
	}

	e.logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	e.logger.Info("📈 Summary")
	e.logger.Info(fmt.Sprintf("📊 Public records: %d", result.Report.Total))
	e.logger.Info(fmt.Sprintf("✅ Rows written: %d", result.Report.Written))
	if result.Report.Skipped > 0 {
		e.logger.Info(fmt.Sprintf("⏭️  Records skipped: %d", result.Report.Skipped))
	}
	if result.Archived {
		e.logger.Info(fmt.Sprintf("📦 Archive: %s", result.Files.Zip))
	} else {
		e.logger.Info(fmt.Sprintf("📄 Report left uncompressed: %s", result.Files.CSV))
	}
	e.logger.Info(fmt.Sprintf("🗑️  Old archives removed: %d, kept: %d", len(result.Sweep.Removed), len(result.Sweep.Kept)))
	if result.Publish != nil && result.Publish.Uploaded {
		e.logger.Info(fmt.Sprintf("☁️  Published: %s", result.Publish.Key))
	}
	e.logger.Info(fmt.Sprintf("⏱️  Duration: %s", result.Duration.Round(time.Millisecond)))

	for _, err := range []error{result.ArchiveErr, result.SweepErr, result.PublishErr} {
		if err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Error(fmt.Sprintf("❌ %v", err))
		}
	}
}
