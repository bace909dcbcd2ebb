package models

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// filenameTimeLayout is the fixed, zero-padded UTC-seconds timestamp
// format baked into every artifact filename.
const filenameTimeLayout = "20060102150405"

// ArchiveInfo is parsed from (and round-trips to) an artifact filename of
// the form archiver_<ts>_<url-encoded>_<depth>.warc.gz.
type ArchiveInfo struct {
	Depth     uint8
	Timestamp time.Time
	URL       string
}

// Filename renders the canonical artifact name for this info.
func (a ArchiveInfo) Filename() string {
	return fmt.Sprintf("archiver_%s_%s_%d.warc.gz",
		a.Timestamp.UTC().Format(filenameTimeLayout),
		url.QueryEscape(a.URL),
		a.Depth,
	)
}

// ScreenshotFilename renders the sibling screenshot name for this info,
// keyed by domain rather than the full URL (process_screenshot's
// contract).
func (a ArchiveInfo) ScreenshotFilename(domain string) string {
	return fmt.Sprintf("archiver_%s_%s_%d.png",
		a.Timestamp.UTC().Format(filenameTimeLayout),
		url.QueryEscape(domain),
		a.Depth,
	)
}

// ParseArchiveInfo extracts an ArchiveInfo from a path produced by
// Filename. It tolerates an arbitrary directory prefix but requires the
// exact archiver_<ts>_<url>_<depth>.<ext> shape.
func ParseArchiveInfo(path string) (ArchiveInfo, error) {
	name := filepath.Base(path)

	parts := strings.SplitN(name, "_", 4)
	if len(parts) != 4 || parts[0] != "archiver" {
		return ArchiveInfo{}, fmt.Errorf("models: %q is not a canonical archive filename", name)
	}

	ts, err := time.Parse(filenameTimeLayout, parts[1])
	if err != nil {
		return ArchiveInfo{}, fmt.Errorf("models: invalid timestamp in %q: %w", name, err)
	}

	decodedURL, err := url.QueryUnescape(parts[2])
	if err != nil {
		return ArchiveInfo{}, fmt.Errorf("models: invalid url encoding in %q: %w", name, err)
	}

	depthExt := parts[3]
	dot := strings.Index(depthExt, ".")
	if dot < 0 {
		return ArchiveInfo{}, fmt.Errorf("models: missing extension in %q", name)
	}
	depth, err := strconv.ParseUint(depthExt[:dot], 10, 8)
	if err != nil {
		return ArchiveInfo{}, fmt.Errorf("models: invalid depth in %q: %w", name, err)
	}

	return ArchiveInfo{
		Depth:     uint8(depth),
		Timestamp: ts.UTC(),
		URL:       decodedURL,
	}, nil
}
