package proxysupervisor

import (
	"testing"

	"github.com/spf13/afero"

	"github.com/archivetheweb/atwworker/internal/pkg/log"
)

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	fs := afero.NewMemMapFs()
	s := &Supervisor{
		fs:     fs,
		logger: log.NewFieldedLogger(&log.Fields{"component": "test"}),
		opts:   Options{WorkDir: "/tmp/archiver-test", CollectionName: "coll1"},
	}
	s.archDir = s.opts.WorkDir + "/collections/" + s.opts.CollectionName + "/archive"
	if err := fs.MkdirAll(s.archDir, 0o755); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRenameWARCFiles(t *testing.T) {
	s := newTestSupervisor(t)

	unprocessedName := s.archDir + "/unprocessed-archiver-20240102030405123456-abcde.warc.gz"
	if err := afero.WriteFile(s.fs, unprocessedName, []byte("warc-data"), 0o644); err != nil {
		t.Fatal(err)
	}

	renamed, err := s.RenameWARCFiles("example.com", 2)
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if len(renamed) != 1 {
		t.Fatalf("expected 1 renamed file, got %d", len(renamed))
	}

	exists, err := afero.Exists(s.fs, renamed[0])
	if err != nil || !exists {
		t.Fatalf("renamed file missing: %v %v", exists, err)
	}
}

func TestExtractTimestampDropsSubsecondDigits(t *testing.T) {
	ts, err := extractTimestamp("unprocessed-archiver-20240102030405123456-abcde.warc.gz")
	if err != nil {
		t.Fatalf("extractTimestamp: %v", err)
	}
	if got := ts.Format("20060102150405"); got != "20240102030405" {
		t.Fatalf("got %q", got)
	}
}
