// Package worker composes the proxy supervisor, crawl engine, and
// uploader into one end-to-end archive run for a single assignment.
// Grounded on archiver.rs's Archiver::archive.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/archivetheweb/atwworker/internal/pkg/crawl"
	"github.com/archivetheweb/atwworker/internal/pkg/ledger"
	"github.com/archivetheweb/atwworker/internal/pkg/log"
	"github.com/archivetheweb/atwworker/internal/pkg/models"
	"github.com/archivetheweb/atwworker/internal/pkg/proxysupervisor"
	"github.com/archivetheweb/atwworker/internal/pkg/uploader"
)

// supervisor is the subset of *proxysupervisor.Supervisor the worker
// depends on, factored out so tests can substitute a fake rather than
// spawning a real proxy subprocess.
type supervisor interface {
	BaseURL() string
	CollectionName() string
	RenameWARCFiles(newName string, depth uint8) ([]string, error)
	ProcessScreenshot(tmpPath string, ts time.Time, domain string, depth uint8) (string, error)
	Terminate()
}

// engine is the subset of *crawl.Engine the worker depends on.
type engine interface {
	Crawl(ctx context.Context, seedURL string) (models.CrawlResult, error)
}

// Options carries the run-time knobs a Worker needs per assignment. The
// CLI entrypoint builds this from the process-wide config singleton; the
// worker package itself never reaches into global config, which keeps it
// testable without process-wide state.
type Options struct {
	ConcurrentTabs  int
	URLRetries      int
	WithUpload      bool
	MinWaitAfterNav time.Duration
	MaxWaitAfterNav time.Duration
	BrowserTimeout  time.Duration
	InDocker        bool
	DedupRedisAddr  string
	ProxyBinary     string
}

// Worker runs one assignment at a time end-to-end. It holds no
// per-assignment state between calls to Run.
type Worker struct {
	fs       afero.Fs
	ledger   ledger.Ledger
	uploader *uploader.Uploader
	opts     Options
	logger   *log.FieldedLogger

	// newSupervisor and newEngine default to the real implementations;
	// tests override them with fakes.
	newSupervisor func(ctx context.Context, fs afero.Fs, opts proxysupervisor.Options) (supervisor, error)
	newEngine     func(opts crawl.Options) engine
}

// New returns a Worker backed by fs for file operations, l for ledger
// RPCs, and up for uploads.
func New(fs afero.Fs, l ledger.Ledger, up *uploader.Uploader, opts Options) *Worker {
	return &Worker{
		fs:       fs,
		ledger:   l,
		uploader: up,
		opts:     opts,
		logger:   log.NewFieldedLogger(&log.Fields{"component": "worker.Worker"}),
		newSupervisor: func(ctx context.Context, fs afero.Fs, opts proxysupervisor.Options) (supervisor, error) {
			return proxysupervisor.New(ctx, fs, opts)
		},
		newEngine: func(opts crawl.Options) engine {
			return crawl.New(opts)
		},
	}
}

// Run executes one assignment end-to-end per §4.5: proxy setup, crawl,
// rename, screenshot, optional upload, ledger submission. Cancellation
// observed at any of the three checkpoints returns
// models.ErrEarlyTermination; the scheduler treats that as non-terminal.
func (w *Worker) Run(ctx context.Context, identity string, a models.ArchiveAssignment) error {
	sup, err := w.newSupervisor(ctx, w.fs, proxysupervisor.Options{
		DedupRedisAddr: w.opts.DedupRedisAddr,
		ProxyBinary:    w.opts.ProxyBinary,
	})
	if err != nil {
		return fmt.Errorf("worker: proxy supervisor setup: %w", err)
	}
	defer sup.Terminate()

	// checkpoint 1: after crawl setup.
	if ctx.Err() != nil {
		return models.ErrEarlyTermination
	}

	seedURL := fmt.Sprintf("%s/%s/record/%s", sup.BaseURL(), sup.CollectionName(), a.URL())
	screenshotPath := proxysupervisor.TempScreenshotPath(sup.CollectionName())

	eng := w.newEngine(crawl.Options{
		ProxyBaseURL:   sup.BaseURL(),
		ConcurrentTabs: w.opts.ConcurrentTabs,
		URLRetries:     w.opts.URLRetries,
		Depth:          a.Depth,
		Scope:          a.Scope,
		MinWait:        w.opts.MinWaitAfterNav,
		MaxWait:        w.opts.MaxWaitAfterNav,
		Timeout:        w.opts.BrowserTimeout,
		TakeScreenshot: true,
		InDocker:       w.opts.InDocker,
		ScreenshotPath: screenshotPath,
	})

	crawlResult, err := eng.Crawl(ctx, seedURL)
	if err != nil {
		return err
	}

	seedDomain := domainOf(a.URL())

	warcFiles, err := sup.RenameWARCFiles(seedDomain, uint8(a.Depth))
	if err != nil {
		return fmt.Errorf("worker: rename warc files: %w", err)
	}
	if len(warcFiles) == 0 {
		return fmt.Errorf("worker: no warc files produced for assignment %s", a.ID)
	}

	archiveInfo, err := models.ParseArchiveInfo(warcFiles[0])
	if err != nil {
		return fmt.Errorf("worker: parse archive info: %w", err)
	}

	screenshotID, err := sup.ProcessScreenshot(screenshotPath, archiveInfo.Timestamp, seedDomain, uint8(a.Depth))
	if err != nil {
		return fmt.Errorf("worker: process screenshot: %w", err)
	}

	// checkpoint 2: after archiving (crawl, rename, screenshot), before upload.
	if ctx.Err() != nil {
		return models.ErrEarlyTermination
	}

	if !w.opts.WithUpload {
		return nil
	}

	uploadResult, err := w.uploader.UploadCrawlFiles(ctx, models.ArchivingResult{
		WARCFiles:      warcFiles,
		ScreenshotFile: screenshotID,
		ArchiveInfo:    archiveInfo,
		Title:          crawlResult.MainTitle,
		OriginalURL:    a.URL(),
	})
	if err != nil {
		return fmt.Errorf("worker: upload: %w", err)
	}

	// checkpoint 3: after upload.
	if ctx.Err() != nil {
		return models.ErrEarlyTermination
	}

	size, err := fileSize(w.fs, warcFiles[0])
	if err != nil {
		return fmt.Errorf("worker: stat archive file: %w", err)
	}

	return w.ledger.SubmitArchive(ctx, models.ArchiveSubmission{
		FullURL:          a.URL(),
		Size:             size,
		UploaderAddress:  identity,
		ArchiveRequestID: a.ID,
		Timestamp:        archiveInfo.Timestamp.Unix(),
		ArweaveTx:        firstOrEmpty(uploadResult.WARCTxIDs),
		Depth:            a.Depth,
		Scope:            a.Scope,
		ScreenshotTx:     uploadResult.ScreenshotID,
		Title:            crawlResult.MainTitle,
	})
}

func firstOrEmpty(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

func fileSize(fs afero.Fs, path string) (int64, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
