package cmd

import (
	"path/filepath"
	"testing"
	"time"
)

func TestNewReportFiles(t *testing.T) {
	ts := time.Date(2024, 3, 5, 7, 9, 59, 0, time.UTC)

	files := NewReportFiles("/out", defaultPrefix, ts)

	if files.Stamp != "20240305_0709" {
		t.Errorf("unexpected stamp %s", files.Stamp)
	}
	if files.CSV != filepath.Join("/out", "opac-tabs-20240305_0709.csv") {
		t.Errorf("unexpected csv path %s", files.CSV)
	}
	if files.Zip != filepath.Join("/out", "opac-tabs-20240305_0709.zip") {
		t.Errorf("unexpected zip path %s", files.Zip)
	}
}

func TestStampOrderIsChronological(t *testing.T) {
	times := []time.Time{
		time.Date(2023, 12, 31, 23, 59, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 9, 5, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC),
	}

	for i := 1; i < len(times); i++ {
		prev := times[i-1].Format(StampLayout)
		curr := times[i].Format(StampLayout)
		if prev >= curr {
			t.Errorf("expected %s < %s", prev, curr)
		}
	}
}

func TestIsArchiveName(t *testing.T) {
	tests := map[string]bool{
		"opac-tabs-20240101_0000.zip": true,
		"opac-tabs-20240101_0000.csv": false,
		"other-20240101_0000.zip":     false,
		"opac-tabs-.zip":              true,
		"xopac-tabs-20240101.zip":     false,
	}

	for name, expected := range tests {
		if got := isArchiveName(name, defaultPrefix); got != expected {
			t.Errorf("%s: expected %v, got %v", name, expected, got)
		}
	}
}

func TestPathTemplateGenerate(t *testing.T) {
	ts := time.Date(2024, 3, 5, 7, 0, 0, 0, time.UTC)

	tests := []struct {
		template string
		expected string
	}{
		{"opac-tabs/{YYYY}/{MM}/{name}", "opac-tabs/2024/03/report.zip"},
		{"/{YYYY}-{MM}-{DD}T{HH}/{name}", "2024-03-05T07/report.zip"},
		{"{name}", "report.zip"},
	}

	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			got := NewPathTemplate(tt.template).Generate("report.zip", ts)
			if got != tt.expected {
				t.Fatalf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}
