// Package crawl implements the bounded breadth-first crawl engine:
// channel-driven frontier, a pool of browser tabs, per-URL retry
// accounting, and quiescence-based termination. Grounded on
// crawler.rs's Crawler/crawl/processor.
package crawl

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/remeh/sizedwaitgroup"

	"github.com/archivetheweb/atwworker/internal/pkg/browser"
	"github.com/archivetheweb/atwworker/internal/pkg/log"
	"github.com/archivetheweb/atwworker/internal/pkg/models"
	"github.com/archivetheweb/atwworker/internal/pkg/stats"
	"github.com/archivetheweb/atwworker/internal/pkg/urlutil"
)

const (
	toVisitCapacity = 1000
	failedCapacity  = 1000
	pollInterval    = 10 * time.Millisecond
)

// BrowseFunc performs one navigate+extract pass. It is a field on Engine
// so tests can substitute a fake without launching a real browser.
type BrowseFunc func(ctx context.Context, url string, opts browser.Options) (browser.Result, error)

// Options configures a single crawl run.
type Options struct {
	ProxyBaseURL   string
	ConcurrentTabs int
	URLRetries     int
	Depth          int
	Scope          models.CrawlScope
	MinWait        time.Duration
	MaxWait        time.Duration
	Timeout        time.Duration
	TakeScreenshot bool
	InDocker       bool

	// ScreenshotPath, if TakeScreenshot is set, receives the raw PNG bytes
	// captured from the seed URL.
	ScreenshotPath string

	HTTPClient *http.Client
	Browse     BrowseFunc
}

// Engine runs one bounded BFS crawl from a seed URL.
type Engine struct {
	opts   Options
	logger *log.FieldedLogger
}

// New returns an Engine configured by opts, defaulting Browse to the real
// browser.Browse and HTTPClient to a plain client when unset.
func New(opts Options) *Engine {
	if opts.Browse == nil {
		opts.Browse = browser.Browse
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = browser.NewHTTPClient(opts.Timeout, opts.InDocker)
	}
	return &Engine{
		opts:   opts,
		logger: log.NewFieldedLogger(&log.Fields{"component": "crawl.Engine"}),
	}
}

// run holds the mutable state of a single in-progress crawl.
type run struct {
	e *Engine

	toVisit chan models.CrawlRequest
	scraped chan models.PageCrawlResult
	failed  chan models.CrawlRequest

	visiting map[string]struct{}
	visited  map[string]struct{}
	retries  map[string]int

	activeTabs int64
	activeMu   sync.Mutex

	titleMu   sync.Mutex
	mainTitle string

	seedURL    string
	seedDomain string

	wg sizedwaitgroup.SizedWaitGroup
}

// Crawl performs the BFS starting at seedURL and returns the full
// visited/failed sets plus the seed's page title. It only fails if the
// initial dispatch fails, or the context is cancelled (models.ErrEarlyTermination).
func (e *Engine) Crawl(ctx context.Context, seedURL string) (models.CrawlResult, error) {
	normalizedSeed, ok := urlutil.Normalize(e.opts.ProxyBaseURL, seedURL)
	if !ok {
		normalizedSeed = seedURL
	}

	r := &run{
		e:          e,
		toVisit:    make(chan models.CrawlRequest, toVisitCapacity),
		scraped:    make(chan models.PageCrawlResult, e.opts.ConcurrentTabs+10),
		failed:     make(chan models.CrawlRequest, failedCapacity),
		visiting:   map[string]struct{}{normalizedSeed: {}},
		visited:    map[string]struct{}{},
		retries:    map[string]int{},
		seedURL:    normalizedSeed,
		seedDomain: urlutil.RegistrableDomain(normalizedSeed),
		wg:         sizedwaitgroup.New(maxInt(e.opts.ConcurrentTabs, 1)),
	}

	select {
	case r.toVisit <- models.CrawlRequest{URL: normalizedSeed, Depth: 0}:
	default:
		return models.CrawlResult{}, errCrawlDispatchFailed
	}

	consumerCtx, cancelConsumer := context.WithCancel(ctx)
	defer cancelConsumer()

	go r.consume(consumerCtx)

	return r.driverLoop(ctx)
}

func (r *run) driverLoop(ctx context.Context) (models.CrawlResult, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.e.logger.Debug("crawl cancelled", "seed", r.seedURL)
			return r.snapshot(), models.ErrEarlyTermination
		default:
		}

		drained := true
		for drained {
			drained = false
			select {
			case pr := <-r.scraped:
				r.handleScraped(pr)
				drained = true
			default:
			}
		}

		for {
			select {
			case req := <-r.failed:
				r.handleFailed(req)
			default:
				goto doneFailed
			}
		}
	doneFailed:

		if len(r.toVisit) == 0 && len(r.scraped) == 0 && r.loadActiveTabs() == 0 {
			return r.snapshot(), nil
		}

		select {
		case <-ctx.Done():
			return r.snapshot(), models.ErrEarlyTermination
		case <-ticker.C:
		}
	}
}

func (r *run) snapshot() models.CrawlResult {
	visited := make(map[string]struct{}, len(r.visited))
	for u := range r.visited {
		visited[u] = struct{}{}
	}
	failedSet := make(map[string]struct{}, len(r.retries))
	for u, n := range r.retries {
		if n >= r.e.opts.URLRetries {
			failedSet[u] = struct{}{}
		}
	}

	r.titleMu.Lock()
	title := r.mainTitle
	r.titleMu.Unlock()

	return models.CrawlResult{
		SeedURL:   r.seedURL,
		MainTitle: title,
		Visited:   visited,
		Failed:    failedSet,
	}
}

// handleScraped moves a successfully visited URL from visiting to
// visited and enqueues its newly discovered, scope-filtered children.
func (r *run) handleScraped(pr models.PageCrawlResult) {
	delete(r.visiting, pr.VisitedURL)
	r.visited[pr.VisitedURL] = struct{}{}
	stats.URLsVisitedIncr()

	if pr.Depth >= r.e.opts.Depth {
		return
	}

	pageDomain := urlutil.RegistrableDomain(pr.VisitedURL)

	for _, link := range pr.Links {
		if !r.inScope(link, pageDomain) {
			continue
		}
		if _, seen := r.visited[link.URL]; seen {
			continue
		}
		if _, inflight := r.visiting[link.URL]; inflight {
			continue
		}
		if n, failed := r.retries[link.URL]; failed && n >= r.e.opts.URLRetries {
			continue
		}

		r.visiting[link.URL] = struct{}{}
		select {
		case r.toVisit <- models.CrawlRequest{URL: link.URL, Depth: pr.Depth + 1}:
		default:
			r.e.logger.Warn("to_visit channel full, dropping discovered url", "url", link.URL)
			delete(r.visiting, link.URL)
		}
	}
}

// handleFailed applies the retry-count bookkeeping: first failure inserts
// at count 0 and retries; a repeat failure increments the existing
// count, becoming terminal once it reaches url_retries.
func (r *run) handleFailed(req models.CrawlRequest) {
	count, seen := r.retries[req.URL]
	if !seen {
		r.retries[req.URL] = 0
		r.requeue(req)
		return
	}

	count++
	r.retries[req.URL] = count
	if count < r.e.opts.URLRetries {
		r.requeue(req)
		return
	}

	// terminal: drop it from visiting; handleScraped skips URLs whose retry
	// count has reached url_retries, so it is never enqueued again.
	stats.URLsFailedIncr()
	delete(r.visiting, req.URL)
}

func (r *run) requeue(req models.CrawlRequest) {
	select {
	case r.toVisit <- req:
	default:
		r.e.logger.Warn("to_visit channel full, cannot requeue failed url", "url", req.URL)
	}
}

func (r *run) inScope(link models.UrlInfo, pageDomain string) bool {
	switch r.e.opts.Scope {
	case models.DomainOnly:
		return urlutil.SameDomain(link.Domain, r.seedDomain)
	case models.DomainWithPageLinks:
		return urlutil.SameDomain(pageDomain, r.seedDomain)
	case models.DomainAndLinks:
		return true
	default:
		return false
	}
}

func (r *run) loadActiveTabs() int64 {
	r.activeMu.Lock()
	defer r.activeMu.Unlock()
	return r.activeTabs
}

func (r *run) incrActiveTabs() {
	r.activeMu.Lock()
	r.activeTabs++
	r.activeMu.Unlock()
	stats.ActiveTabsIncr()
}

func (r *run) decrActiveTabs() {
	r.activeMu.Lock()
	r.activeTabs--
	r.activeMu.Unlock()
	stats.ActiveTabsDecr()
}

// consume streams to_visit, running up to ConcurrentTabs browse tasks in
// parallel, until ctx is cancelled.
func (r *run) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-r.toVisit:
			if !ok {
				return
			}
			r.wg.Add()
			r.incrActiveTabs()
			isSeed := req.URL == r.seedURL
			go func(req models.CrawlRequest) {
				defer r.wg.Done()
				defer r.decrActiveTabs()
				r.e.browseTask(ctx, r, req, isSeed)
			}(req)
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

var errCrawlDispatchFailed = errDispatch{}

type errDispatch struct{}

func (errDispatch) Error() string { return "crawl: initial seed dispatch failed" }
