package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/scieloorg/opac-tabs/cmd/compressors"
)

// ErrReportMissing is returned when there is no CSV to archive
var ErrReportMissing = errors.New("report file not found")

// ArchiveReport compresses the finished CSV into a new ZIP and removes the
// CSV once the archive has been written and closed. The CSV is kept when
// archiving fails.
func ArchiveReport(files ReportFiles, level int) (int64, error) {
	info, err := os.Stat(files.CSV)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrReportMissing, files.CSV)
		}
		return 0, fmt.Errorf("failed to stat %s: %w", files.CSV, err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: %s is not a regular file", ErrReportMissing, files.CSV)
	}

	compressor, err := compressors.NewZipCompressor(level)
	if err != nil {
		return 0, err
	}

	size, err := compressor.CompressFile(files.CSV, files.Zip)
	if err != nil {
		return 0, err
	}

	if err := os.Remove(files.CSV); err != nil {
		return size, fmt.Errorf("archived %s but failed to remove it: %w", files.CSV, err)
	}

	return size, nil
}
