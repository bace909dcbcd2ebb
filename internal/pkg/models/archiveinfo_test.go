package models

import (
	"testing"
	"time"
)

func TestArchiveInfoRoundTrip(t *testing.T) {
	info := ArchiveInfo{
		Depth:     2,
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		URL:       "https://example.com/a?b=c",
	}

	name := info.Filename()

	parsed, err := ParseArchiveInfo(name)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if parsed.Depth != info.Depth {
		t.Fatalf("depth: got %d want %d", parsed.Depth, info.Depth)
	}
	if !parsed.Timestamp.Equal(info.Timestamp) {
		t.Fatalf("timestamp: got %v want %v", parsed.Timestamp, info.Timestamp)
	}
	if parsed.URL != info.URL {
		t.Fatalf("url: got %q want %q", parsed.URL, info.URL)
	}
}

func TestParseArchiveInfoRejectsMalformed(t *testing.T) {
	if _, err := ParseArchiveInfo("not-a-canonical-name.warc.gz"); err == nil {
		t.Fatalf("expected error")
	}
}
