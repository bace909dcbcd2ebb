// Package proxysupervisor controls the external recording-proxy
// subprocess: provisions its config and collection directory, waits for
// it to report readiness, and later post-processes the files it wrote.
// Grounded on warc_writer.rs.
package proxysupervisor

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"os/exec"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/archivetheweb/atwworker/internal/pkg/log"
)

const (
	portRangeLow  = 8000
	portRangeHigh = 9000

	// unprocessedPrefix is the filename_template prefix the proxy writes
	// before a run's artifacts are renamed into the canonical form.
	unprocessedPrefix = "unprocessed-archiver"
)

// Options configures a single Supervisor instance.
type Options struct {
	CollectionName string // random 11-char alphanumeric if empty
	WorkDir        string // random /tmp/archiver-<id> if empty
	Port           int    // first free port in [8000,9000) if zero
	DedupRedisAddr string
	ProxyBinary    string // defaults to "wayback"
}

// Supervisor owns one recording-proxy subprocess for the lifetime of a
// single archive run.
type Supervisor struct {
	opts   Options
	fs     afero.Fs
	logger *log.FieldedLogger

	cmd     *exec.Cmd
	port    int
	archDir string

	mu     sync.Mutex
	killed bool
}

// New provisions config/collection/port and spawns the proxy, blocking
// until it reports readiness or fails. fs is the filesystem used for all
// non-subprocess operations (config file, directories, later renames),
// letting tests substitute afero.NewMemMapFs().
func New(ctx context.Context, fs afero.Fs, opts Options) (*Supervisor, error) {
	logger := log.NewFieldedLogger(&log.Fields{"component": "proxysupervisor"})

	if opts.CollectionName == "" {
		opts.CollectionName = randomAlphanumeric(11)
	}
	if opts.WorkDir == "" {
		opts.WorkDir = "/tmp/archiver-" + uuid.NewString()[:11]
	}
	if opts.ProxyBinary == "" {
		opts.ProxyBinary = "wayback"
	}

	s := &Supervisor{opts: opts, fs: fs, logger: logger}
	s.archDir = opts.WorkDir + "/collections/" + opts.CollectionName + "/archive"

	if err := s.writeConfig(); err != nil {
		return nil, fmt.Errorf("proxysupervisor: config: %w", err)
	}
	if err := s.setupDir(); err != nil {
		return nil, fmt.Errorf("proxysupervisor: setup dir: %w", err)
	}
	if err := s.purgeDedupIndex(); err != nil {
		logger.Warn("unable to purge dedup index", "err", err.Error())
	}

	port := opts.Port
	if port == 0 {
		p, err := firstAvailablePort(portRangeLow, portRangeHigh)
		if err != nil {
			return nil, fmt.Errorf("proxysupervisor: no free port: %w", err)
		}
		port = p
	}
	s.port = port

	if err := s.spawn(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// Port returns the port the proxy is listening on.
func (s *Supervisor) Port() int { return s.port }

// BaseURL is the proxy's local endpoint, e.g. "http://localhost:8123".
func (s *Supervisor) BaseURL() string { return fmt.Sprintf("http://localhost:%d", s.port) }

// CollectionName returns the collection this supervisor provisioned.
func (s *Supervisor) CollectionName() string { return s.opts.CollectionName }

// ArchiveDir is where the proxy writes WARC files for this collection.
func (s *Supervisor) ArchiveDir() string { return s.archDir }

// writeConfig writes the proxy's config.yaml: skip-dedup policy against
// the shared Redis index, and the unprocessedPrefix-prefixed filename
// template the supervisor later renames. The proxy reads filename_template
// back out of this same file, so the prefix RenameWARCFiles scans for is
// never out of sync with what the proxy actually writes.
func (s *Supervisor) writeConfig() error {
	dir := s.opts.WorkDir
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	contents := fmt.Sprintf(`collections_bucket: collections
dedup_policy: skip
dedup_index_url: redis://%s/0/pywb:%s:cdxj
filename_template: %s-{timestamp}-{random}.warc.gz
`, s.opts.DedupRedisAddr, s.opts.CollectionName, unprocessedPrefix)

	return afero.WriteFile(s.fs, dir+"/config.yaml", []byte(contents), 0o644)
}

// setupDir invokes the proxy's collection-init tool if the collection
// doesn't exist yet, and ensures a screenshots/ sibling directory.
func (s *Supervisor) setupDir() error {
	collDir := s.opts.WorkDir + "/collections/" + s.opts.CollectionName

	exists, err := afero.DirExists(s.fs, collDir)
	if err != nil {
		return err
	}
	if !exists {
		cmd := exec.Command("wb-manager", "init", s.opts.CollectionName)
		cmd.Dir = s.opts.WorkDir
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("wb-manager init: %w: %s", err, out)
		}
	}

	return s.fs.MkdirAll(collDir+"/screenshots", 0o755)
}

func randomAlphanumeric(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}

func firstAvailablePort(low, high int) (int, error) {
	candidates := make([]int, 0, high-low)
	for p := low; p < high; p++ {
		candidates = append(candidates, p)
	}

	for _, p := range candidates {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", p))
		if err == nil {
			ln.Close()
			return p, nil
		}
	}
	return 0, fmt.Errorf("no free port in [%d, %d)", low, high)
}

// Terminate kills the proxy subprocess. Infallible by contract: any error
// is logged, never returned.
func (s *Supervisor) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.killed || s.cmd == nil || s.cmd.Process == nil {
		return
	}
	if err := s.cmd.Process.Kill(); err != nil {
		s.logger.Error("unable to kill proxy subprocess", "err", err.Error())
	}
	s.killed = true
}
