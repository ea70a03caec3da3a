package cmd

import (
	"archive/zip"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

var exportTime = time.Date(2024, 3, 5, 7, 30, 0, 0, time.UTC)

func newTestExporter(t *testing.T, source ArticleSource) (*Exporter, *Config) {
	t.Helper()

	config := validConfig()
	config.OutputDir = t.TempDir()

	exporter := NewExporter(config, newTestLogger())
	exporter.now = func() time.Time { return exportTime }
	exporter.openSource = func(context.Context, *Config, *slog.Logger) (ArticleSource, error) {
		return source, nil
	}
	exporter.newPublisher = func(S3Config, bool, *slog.Logger) (*Publisher, error) {
		t.Fatal("publisher should not be created")
		return nil, nil
	}
	return exporter, config
}

func TestExporterRun(t *testing.T) {
	source := newMemorySource(sampleArticles()...)
	exporter, config := newTestExporter(t, source)

	result, err := exporter.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedZip := filepath.Join(config.OutputDir, "opac-tabs-20240305_0730.zip")
	if result.Files.Zip != expectedZip {
		t.Errorf("expected archive %s, got %s", expectedZip, result.Files.Zip)
	}
	if !result.Archived || result.ArchiveErr != nil {
		t.Fatalf("expected archive, got err %v", result.ArchiveErr)
	}
	if result.Report.Written != int64(len(sampleArticles())) {
		t.Errorf("expected %d rows, got %d", len(sampleArticles()), result.Report.Written)
	}
	if !source.closed {
		t.Error("source should be closed")
	}
	if result.Publish != nil {
		t.Error("nothing should be published without a bucket")
	}

	if got := listDir(t, config.OutputDir); !reflect.DeepEqual(got, []string{"opac-tabs-20240305_0730.zip"}) {
		t.Errorf("expected only the archive, got %v", got)
	}

	reader, err := zip.OpenReader(expectedZip)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	if len(reader.File) != 1 || reader.File[0].Name != "opac-tabs-20240305_0730.csv" {
		t.Errorf("unexpected archive entries %v", reader.File)
	}
}

func TestExporterRunAppliesRetention(t *testing.T) {
	exporter, config := newTestExporter(t, newMemorySource(sampleArticles()...))
	touch(t, config.OutputDir,
		"opac-tabs-20240301_0730.zip",
		"opac-tabs-20240302_0730.zip",
		"opac-tabs-20240303_0730.zip",
		"opac-tabs-20240304_0730.zip",
	)

	result, err := exporter.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SweepErr != nil {
		t.Fatalf("unexpected sweep error: %v", result.SweepErr)
	}

	expected := []string{
		"opac-tabs-20240303_0730.zip",
		"opac-tabs-20240304_0730.zip",
		"opac-tabs-20240305_0730.zip",
	}
	if got := listDir(t, config.OutputDir); !reflect.DeepEqual(got, expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}
	if len(result.Sweep.Removed) != 2 {
		t.Errorf("expected 2 removals, got %v", result.Sweep.Removed)
	}
}

func TestExporterRunArchiveFailureKeepsReport(t *testing.T) {
	exporter, config := newTestExporter(t, newMemorySource(sampleArticles()...))
	touch(t, config.OutputDir, "opac-tabs-20240305_0730.zip")

	result, err := exporter.Run(context.Background())
	if err != nil {
		t.Fatalf("archive failure should not fail the run: %v", err)
	}
	if result.Archived || result.ArchiveErr == nil {
		t.Fatal("expected archive failure")
	}
	if _, err := os.Stat(result.Files.CSV); err != nil {
		t.Errorf("report should be kept: %v", err)
	}

	// The pre-existing archive is untouched
	data, err := os.ReadFile(result.Files.Zip)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "opac-tabs-20240305_0730.zip" {
		t.Error("existing archive was overwritten")
	}
}

func TestExporterRunConnectFailure(t *testing.T) {
	exporter, config := newTestExporter(t, nil)
	exporter.openSource = func(context.Context, *Config, *slog.Logger) (ArticleSource, error) {
		return nil, ErrConnect
	}

	_, err := exporter.Run(context.Background())
	if !errors.Is(err, ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
	if got := listDir(t, config.OutputDir); len(got) != 0 {
		t.Errorf("no files should be written, got %v", got)
	}
}

func TestExporterRunSourceError(t *testing.T) {
	source := newMemorySource(sampleArticles()...)
	source.eachErr = errors.New("cursor lost")
	exporter, _ := newTestExporter(t, source)

	_, err := exporter.Run(context.Background())
	if err == nil || !errors.Is(err, source.eachErr) {
		t.Fatalf("expected source error, got %v", err)
	}
	if !source.closed {
		t.Error("source should be closed after a failed report")
	}
}

func TestExporterRunPublishes(t *testing.T) {
	exporter, config := newTestExporter(t, newMemorySource(sampleArticles()...))
	config.S3 = S3Config{
		Bucket:       "reports",
		AccessKey:    "key",
		SecretKey:    "secret",
		Region:       regionAuto,
		PathTemplate: defaultPathTemplate,
	}

	client := newFakeS3()
	exporter.newPublisher = func(c S3Config, dryRun bool, logger *slog.Logger) (*Publisher, error) {
		return newPublisherWithClient(c, dryRun, client, logger), nil
	}

	result, err := exporter.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PublishErr != nil {
		t.Fatalf("unexpected publish error: %v", result.PublishErr)
	}

	key := "opac-tabs/2024/03/opac-tabs-20240305_0730.zip"
	if result.Publish == nil || result.Publish.Key != key || !result.Publish.Uploaded {
		t.Fatalf("unexpected publish result %+v", result.Publish)
	}
	if _, ok := client.objects[key]; !ok {
		t.Errorf("expected object %s, got %v", key, client.objects)
	}
}

func TestExporterRunPublishFailureIsRecorded(t *testing.T) {
	exporter, config := newTestExporter(t, newMemorySource(sampleArticles()...))
	config.S3 = S3Config{Bucket: "reports", PathTemplate: defaultPathTemplate}

	exporter.newPublisher = func(S3Config, bool, *slog.Logger) (*Publisher, error) {
		return nil, errors.New("no credentials")
	}

	result, err := exporter.Run(context.Background())
	if err != nil {
		t.Fatalf("publish failure should not fail the run: %v", err)
	}
	if result.PublishErr == nil || !result.Archived {
		t.Fatalf("expected recorded publish error, got %+v", result)
	}
}
