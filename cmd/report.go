package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/scieloorg/opac-tabs/cmd/formatters"
)

// progressEvery is how many records pass between progress callbacks
const progressEvery = 500

// ReportStats summarizes one report
type ReportStats struct {
	Total   int64 // Public records according to the store
	Written int64
	Skipped int64
}

// Processed returns the number of records seen so far
func (s ReportStats) Processed() int64 {
	return s.Written + s.Skipped
}

// ReportWriter writes the public articles of a source as a CSV report
type ReportWriter struct {
	logger     *slog.Logger
	onProgress func(ReportStats)
}

// NewReportWriter creates a report writer. onProgress may be nil.
func NewReportWriter(logger *slog.Logger, onProgress func(ReportStats)) *ReportWriter {
	return &ReportWriter{logger: logger, onProgress: onProgress}
}

// Write creates path and fills it with one row per public article. Records
// that fail to decode, transform or encode are logged with their identifier
// and skipped. Errors from the store or the file itself abort the report.
func (w *ReportWriter) Write(ctx context.Context, source ArticleSource, path string) (stats ReportStats, err error) {
	file, err := os.Create(path)
	if err != nil {
		return stats, fmt.Errorf("failed to create report %s: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close report %s: %w", path, cerr)
		}
	}()

	out, err := formatters.NewCSVStreamWriter(file, ReportRow{})
	if err != nil {
		return stats, err
	}

	stats.Total, err = source.Count(ctx)
	if err != nil {
		return stats, err
	}
	w.logger.Info(fmt.Sprintf("📊 Total records: %d", stats.Total))
	w.progress(stats)

	err = source.Each(ctx, func(record SourceRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := w.writeRecord(out, record); err != nil {
			stats.Skipped++
			w.logger.Error(fmt.Sprintf("❌ Skipping record %s: %v", record.ID, err))
		} else {
			stats.Written++
		}

		if stats.Processed()%progressEvery == 0 {
			w.progress(stats)
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	if err := out.Close(); err != nil {
		return stats, err
	}

	w.progress(stats)
	return stats, nil
}

func (w *ReportWriter) writeRecord(out formatters.StreamWriter, record SourceRecord) error {
	if record.Err != nil {
		return record.Err
	}

	row, err := Transform(record.Article)
	if err != nil {
		return err
	}

	return out.Write(row)
}

func (w *ReportWriter) progress(stats ReportStats) {
	if w.onProgress != nil {
		w.onProgress(stats)
	}
}
