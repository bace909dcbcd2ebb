package crawl

import (
	"context"
	"os"
	"strings"

	"github.com/archivetheweb/atwworker/internal/pkg/browser"
	"github.com/archivetheweb/atwworker/internal/pkg/models"
)

// browseTask implements the per-URL steps described in §4.2: PDF fast
// path, navigate/wait/extract, title+screenshot capture for the seed,
// and the HEAD/PDF fallback on navigation failure.
func (e *Engine) browseTask(ctx context.Context, r *run, req models.CrawlRequest, isSeed bool) {
	if strings.HasSuffix(req.URL, ".pdf") {
		if err := browser.FetchPDF(ctx, e.opts.HTTPClient, req.URL); err != nil {
			e.logger.Warn("pdf fetch failed", "url", req.URL, "err", err.Error())
			r.failed <- req
			return
		}
		r.scraped <- models.PageCrawlResult{VisitedURL: req.URL, Depth: req.Depth}
		return
	}

	result, err := e.opts.Browse(ctx, req.URL, browser.Options{
		ProxyBaseURL:   e.opts.ProxyBaseURL,
		MinWait:        e.opts.MinWait,
		MaxWait:        e.opts.MaxWait,
		Timeout:        e.opts.Timeout,
		TakeScreenshot: isSeed && e.opts.TakeScreenshot,
		InDocker:       e.opts.InDocker,
	})
	if err != nil {
		e.logger.Warn("browse errored", "url", req.URL, "err", err.Error())
		r.failed <- req
		return
	}

	if result.NavigationFail {
		e.handleNavigationFailure(ctx, r, req)
		return
	}

	if isSeed {
		r.titleMu.Lock()
		r.mainTitle = result.Title
		r.titleMu.Unlock()

		if e.opts.TakeScreenshot && len(result.ScreenshotPNG) > 0 && e.opts.ScreenshotPath != "" {
			if werr := os.WriteFile(e.opts.ScreenshotPath, result.ScreenshotPNG, 0o644); werr != nil {
				e.logger.Warn("unable to write screenshot", "path", e.opts.ScreenshotPath, "err", werr.Error())
			}
		}
	}

	r.scraped <- models.PageCrawlResult{
		VisitedURL: req.URL,
		Links:      result.Links,
		Depth:      req.Depth,
	}
}

// handleNavigationFailure attempts the HEAD/PDF fallback described in
// step 7: if the resource is actually a PDF, fetch it directly and count
// the visit as successful; otherwise route the URL to the failed channel.
func (e *Engine) handleNavigationFailure(ctx context.Context, r *run, req models.CrawlRequest) {
	contentType, err := browser.ProbeContentType(ctx, e.opts.HTTPClient, req.URL)
	if err == nil && strings.Contains(contentType, "application/pdf") {
		if ferr := browser.FetchPDF(ctx, e.opts.HTTPClient, req.URL); ferr == nil {
			r.scraped <- models.PageCrawlResult{VisitedURL: req.URL, Depth: req.Depth}
			return
		}
	}

	r.failed <- req
}
