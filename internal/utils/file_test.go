package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExportFilename(t *testing.T) {
	tests := []struct {
		name     string
		fullName string
		expected string
	}{
		{"simple", "Jane Doe", "Jane_Doe_Resume.txt"},
		{"whitespace runs collapse", "Jane   Q.\tDoe", "Jane_Q._Doe_Resume.txt"},
		{"surrounding whitespace ignored", "  Jane Doe  ", "Jane_Doe_Resume.txt"},
		{"path separators replaced", "A/B", "A_B_Resume.txt"},
		{"empty name", "   ", "Resume.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExportFilename(tt.fullName); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestValidateInputFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "resume.pdf")
	if err := os.WriteFile(file, []byte("%PDF-1.4"), 0600); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	if err := ValidateInputFile(file); err != nil {
		t.Errorf("Expected readable file to validate, got %v", err)
	}
	if err := ValidateInputFile(dir); err == nil {
		t.Error("Expected directory to be rejected")
	}
	if err := ValidateInputFile(filepath.Join(dir, "missing.pdf")); err == nil {
		t.Error("Expected missing file to be rejected")
	}
	if err := ValidateInputFile(""); err == nil {
		t.Error("Expected empty filename to be rejected")
	}
}

func TestFormatFileSize(t *testing.T) {
	tests := map[int64]string{
		512:              "512 B",
		2048:             "2.0 KB",
		10 * 1024 * 1024: "10.0 MB",
	}
	for size, expected := range tests {
		if got := FormatFileSize(size); got != expected {
			t.Errorf("FormatFileSize(%d): expected %q, got %q", size, expected, got)
		}
	}
}
