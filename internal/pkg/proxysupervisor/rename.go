package proxysupervisor

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/zeebo/xxh3"

	"github.com/archivetheweb/atwworker/internal/pkg/models"
)

// RenameWARCFiles scans the archive directory for files carrying the
// unprocessed prefix and renames each to the canonical
// archiver_<ts>_<url-encoded>_<depth>.warc.gz form, returning the new
// paths. The timestamp is the 14-character (seconds-precision) prefix the
// proxy embeds in its own filename_template.
func (s *Supervisor) RenameWARCFiles(newName string, depth uint8) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.archDir)
	if err != nil {
		return nil, fmt.Errorf("proxysupervisor: read archive dir: %w", err)
	}

	var renamed []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.Contains(entry.Name(), unprocessedPrefix) {
			continue
		}

		ts, err := extractTimestamp(entry.Name())
		if err != nil {
			s.logger.Warn("skipping unparsable proxy artifact", "name", entry.Name(), "err", err.Error())
			continue
		}

		info := models.ArchiveInfo{Depth: depth, Timestamp: ts, URL: newName}
		newPath := s.archDir + "/" + info.Filename()

		if err := s.fs.Rename(s.archDir+"/"+entry.Name(), newPath); err != nil {
			return nil, fmt.Errorf("proxysupervisor: rename %s: %w", entry.Name(), err)
		}
		renamed = append(renamed, newPath)
	}

	return renamed, nil
}

// extractTimestamp pulls the 14-character timestamp out of a proxy
// filename of the form "<prefix>-<ts><fraction>-<random>.warc.gz",
// dropping any sub-second digits the proxy appended.
func extractTimestamp(name string) (time.Time, error) {
	parts := strings.Split(name, "-")
	for _, p := range parts {
		if len(p) >= 14 {
			candidate := p[:14]
			if ts, err := time.Parse("20060102150405", candidate); err == nil {
				return ts.UTC(), nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("no 14-digit timestamp segment in %q", name)
}

// ProcessScreenshot copies the browser's temporary screenshot PNG into
// the collection's screenshots/ directory under the canonical name, then
// deletes the temporary file.
func (s *Supervisor) ProcessScreenshot(tmpPath string, ts time.Time, domain string, depth uint8) (string, error) {
	info := models.ArchiveInfo{Depth: depth, Timestamp: ts, URL: domain}
	dest := s.collectionScreenshotsDir() + "/" + info.ScreenshotFilename(domain)

	data, err := afero.ReadFile(s.fs, tmpPath)
	if err != nil {
		return "", fmt.Errorf("proxysupervisor: read screenshot: %w", err)
	}
	if err := afero.WriteFile(s.fs, dest, data, 0o644); err != nil {
		return "", fmt.Errorf("proxysupervisor: write screenshot: %w", err)
	}
	if err := s.fs.Remove(tmpPath); err != nil {
		s.logger.Warn("unable to remove temp screenshot", "path", tmpPath, "err", err.Error())
	}

	return dest, nil
}

func (s *Supervisor) collectionScreenshotsDir() string {
	return s.opts.WorkDir + "/collections/" + s.opts.CollectionName + "/screenshots"
}

// TempScreenshotPath is where the browser controller is expected to have
// written its capture before ProcessScreenshot is called. The collection
// name is hashed rather than escaped into the filename: collection names
// can contain characters a shell-spawned browser process would rather
// not see in a path, and a fixed-width hash sidesteps that without a
// second uuid allocation on the hot path.
func TempScreenshotPath(collectionName string) string {
	sum := xxh3.HashString(collectionName)
	return "/tmp/archiver_" + strconv.FormatUint(sum, 16) + ".png"
}
