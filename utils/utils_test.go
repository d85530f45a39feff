package utils

import (
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"interview.mp4", "interview.mp4"},
		{"my interview (1).mov", "my_interview__1_.mov"},
		{"../../etc/passwd", ".._.._etc_passwd"},
		{"面接.mp4", "__.mp4"},
		{"clip-01.MP4", "clip-01.MP4"},
	}

	for _, tt := range tests {
		if got := SanitizeFilename(tt.input); got != tt.expected {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestTruncateFilename(t *testing.T) {
	long := strings.Repeat("a", 300)
	tests := []struct {
		input    string
		limit    int
		expected string
	}{
		{"clip.mp4", 100, "clip.mp4"},
		{long + ".mp4", 100, strings.Repeat("a", 96) + ".mp4"},
		{long, 10, strings.Repeat("a", 10)},
		{"a." + long, 10, "a." + strings.Repeat("a", 8)},
	}

	for _, tt := range tests {
		got := TruncateFilename(tt.input, tt.limit)
		if got != tt.expected {
			t.Errorf("TruncateFilename(%d bytes, %d) = %q, want %q", len(tt.input), tt.limit, got, tt.expected)
		}
		if len(got) > tt.limit {
			t.Errorf("TruncateFilename(%d bytes, %d) returned %d bytes", len(tt.input), tt.limit, len(got))
		}
	}
}

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 Bytes"},
		{512, "512 Bytes"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{100 * 1024 * 1024, "100 MB"},
		{3 * 1024 * 1024 * 1024, "3 GB"},
	}

	for _, tt := range tests {
		if got := FormatFileSize(tt.input); got != tt.expected {
			t.Errorf("FormatFileSize(%d) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
