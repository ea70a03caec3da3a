package cmd

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/scieloorg/opac-tabs/cmd/compressors"
	"github.com/scieloorg/opac-tabs/cmd/formatters"
)

// StampLayout is the generation timestamp shared by a run's CSV and ZIP.
// Lexicographic order of stamps is chronological order.
const StampLayout = "20060102_1504"

// ReportFiles are the artifact paths of one run
type ReportFiles struct {
	Stamp string
	CSV   string
	Zip   string
}

// NewReportFiles names the artifacts of a run started at timestamp
func NewReportFiles(dir, prefix string, timestamp time.Time) ReportFiles {
	stamp := timestamp.Format(StampLayout)
	return ReportFiles{
		Stamp: stamp,
		CSV:   filepath.Join(dir, prefix+stamp+formatters.CSVExtension),
		Zip:   filepath.Join(dir, prefix+stamp+compressors.ZipExtension),
	}
}

// isArchiveName reports whether name follows the archive naming convention
func isArchiveName(name, prefix string) bool {
	return strings.HasPrefix(name, prefix) && strings.HasSuffix(name, compressors.ZipExtension)
}

// PathTemplate provides functionality to generate S3 paths from templates
type PathTemplate struct {
	template string
}

// NewPathTemplate creates a new PathTemplate instance
func NewPathTemplate(template string) *PathTemplate {
	return &PathTemplate{template: template}
}

// Generate replaces placeholders in the template with actual values
// Supports: {name}, {YYYY}, {MM}, {DD}, {HH}
func (pt *PathTemplate) Generate(name string, timestamp time.Time) string {
	result := pt.template

	result = strings.ReplaceAll(result, "{name}", name)

	result = strings.ReplaceAll(result, "{YYYY}", timestamp.Format("2006"))
	result = strings.ReplaceAll(result, "{MM}", timestamp.Format("01"))
	result = strings.ReplaceAll(result, "{DD}", timestamp.Format("02"))
	result = strings.ReplaceAll(result, "{HH}", timestamp.Format("15"))

	return strings.TrimPrefix(result, "/")
}
