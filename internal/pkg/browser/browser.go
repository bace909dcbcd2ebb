// Package browser wraps a single headless-browser instance per browse
// task, mirroring browser_controller.rs: one incognito profile per call,
// navigate, randomized settle wait, optional screenshot, scripted
// auto-scroll, link extraction.
package browser

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/telanflow/cookiejar"
	"golang.org/x/net/publicsuffix"
	"mvdan.cc/xurls/v2"

	"github.com/archivetheweb/atwworker/internal/pkg/log"
	"github.com/archivetheweb/atwworker/internal/pkg/models"
	"github.com/archivetheweb/atwworker/internal/pkg/urlutil"
)

// scrollScript scrolls the page 100px per tick until scrollHeight is
// reached or the deadline passes; it resolves with how far it got so the
// caller can tell a timeout apart from a clean finish.
const scrollScript = `
new Promise((resolve) => {
	let total = 0;
	const step = 100;
	const tick = %d;
	const deadline = Date.now() + %d;
	const timer = setInterval(() => {
		window.scrollBy(0, step);
		total += step;
		if (total >= document.body.scrollHeight || Date.now() > deadline) {
			clearInterval(timer);
			resolve(total);
		}
	}, tick);
})`

// Result is what one Browse call produces.
type Result struct {
	Links          []models.UrlInfo
	Title          string
	ScreenshotPNG  []byte
	NavigationFail bool
}

// Options configures a single Browse call.
type Options struct {
	ProxyBaseURL   string
	MinWait        time.Duration
	MaxWait        time.Duration
	Timeout        time.Duration
	TakeScreenshot bool
	InDocker       bool
}

// Browse launches a fresh headless browser instance, navigates to url
// through the proxy, waits, optionally screenshots, scrolls, and
// extracts links. On navigation failure it reports NavigationFail=true so
// the caller can attempt the HTTP HEAD/PDF fallback described in §4.2
// step 7.
func Browse(ctx context.Context, url string, opts Options) (Result, error) {
	logger := log.NewFieldedLogger(&log.Fields{"component": "browser.Browse"})

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(1920, 1080),
	)
	if opts.InDocker {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	timeoutCtx, cancelTimeout := context.WithTimeout(taskCtx, opts.Timeout)
	defer cancelTimeout()

	var navErr error
	navErr = chromedp.Run(timeoutCtx, chromedp.Navigate(url))
	if navErr != nil {
		// one retry, per step 2's "navigate ... wait for navigation" pairing
		// retrying exactly once before surfacing the failure.
		navErr = chromedp.Run(timeoutCtx, chromedp.Navigate(url))
	}
	if navErr != nil {
		logger.Warn("navigation failed", "url", url, "err", navErr.Error())
		return Result{NavigationFail: true}, nil
	}

	if err := chromedp.Run(timeoutCtx, chromedp.WaitReady("body")); err != nil {
		logger.Warn("navigation never settled", "url", url, "err", err.Error())
		return Result{NavigationFail: true}, nil
	}

	waitForNetworkIdle(timeoutCtx, logger, opts.MinWait)

	sleepRandom(timeoutCtx, opts.MinWait, opts.MaxWait)

	var title string
	_ = chromedp.Run(timeoutCtx, chromedp.Title(&title))

	var screenshot []byte
	if opts.TakeScreenshot {
		if err := chromedp.Run(timeoutCtx, chromedp.FullScreenshot(&screenshot, 90)); err != nil {
			logger.Warn("screenshot capture failed", "url", url, "err", err.Error())
		}
	}

	runScroll(timeoutCtx, logger, opts.Timeout)

	sleepRandom(timeoutCtx, opts.MinWait, opts.MaxWait)

	links, err := extractLinks(timeoutCtx, opts.ProxyBaseURL, url)
	if err != nil {
		logger.Warn("link extraction failed, falling back to rendered html", "url", url, "err", err.Error())
	}

	return Result{Links: links, Title: title, ScreenshotPNG: screenshot}, nil
}

// waitForNetworkIdle gives the page up to budget to fire a Chrome
// "networkIdle" lifecycle event before the fixed settle-wait starts, so
// pages that finish loading quickly don't sit through the full random
// wait for nothing. Best-effort: a timeout here just falls through to the
// settle-wait rather than failing the browse.
func waitForNetworkIdle(ctx context.Context, logger *log.FieldedLogger, budget time.Duration) {
	if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
		logger.Debug("unable to enable lifecycle events", "err", err.Error())
		return
	}

	idle := make(chan struct{}, 1)
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "networkIdle" {
			select {
			case idle <- struct{}{}:
			default:
			}
		}
	})

	timer := time.NewTimer(budget)
	defer timer.Stop()
	select {
	case <-idle:
	case <-timer.C:
	case <-ctx.Done():
	}
}

func sleepRandom(ctx context.Context, min, max time.Duration) {
	d := min
	if max > min {
		d = min + time.Duration(rand.Int63n(int64(max-min)))
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// runScroll evaluates the auto-scroll script with an idleTimeout-2s
// budget at a 60ms tick, retrying once at 30ms on failure.
func runScroll(ctx context.Context, logger *log.FieldedLogger, idleTimeout time.Duration) {
	budgetMS := int((idleTimeout - 2*time.Second) / time.Millisecond)
	if budgetMS < 0 {
		budgetMS = 0
	}

	var scrolled int
	script := fmt.Sprintf(scrollScript, 60, budgetMS)
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &scrolled)); err != nil {
		logger.Debug("scroll failed, retrying at faster tick", "err", err.Error())
		script = fmt.Sprintf(scrollScript, 30, budgetMS)
		if err := chromedp.Run(ctx, chromedp.Evaluate(script, &scrolled)); err != nil {
			logger.Warn("scroll retry failed", "err", err.Error())
		}
	}
}

// extractLinks reads every <a href> on the live DOM via chromedp, then
// falls back to parsing the rendered outer HTML with goquery if the live
// query comes back empty (e.g. content added by a script that detached
// the original nodes). If goquery itself finds no anchors — a PDF
// viewer's own chrome, say, with no real <a> tags at all — a final pass
// scans the raw HTML text for anything that merely looks like a URL.
func extractLinks(ctx context.Context, proxyBaseURL, pageURL string) ([]models.UrlInfo, error) {
	var hrefs []string
	err := chromedp.Run(ctx, chromedp.Evaluate(
		`Array.from(document.querySelectorAll('a')).map(a => a.getAttribute('href')).filter(Boolean)`,
		&hrefs,
	))

	if err != nil || len(hrefs) == 0 {
		var outer string
		if gerr := chromedp.Run(ctx, chromedp.OuterHTML("html", &outer)); gerr == nil {
			hrefs = append(hrefs, extractHrefsFromHTML(outer)...)
		}
	}

	links := make([]models.UrlInfo, 0, len(hrefs))
	for _, href := range hrefs {
		normalized, ok := urlutil.Normalize(proxyBaseURL, href)
		if !ok {
			continue
		}
		links = append(links, models.UrlInfo{
			URL:    normalized,
			Domain: urlutil.RegistrableDomain(normalized),
		})
	}
	return links, err
}

// extractHrefsFromHTML parses raw HTML with goquery and collects every
// anchor href; if that yields nothing at all — a PDF viewer's own
// chrome, say, with no real <a> tags — it falls back to scanning the
// text for anything that merely looks like a URL.
func extractHrefsFromHTML(html string) []string {
	hrefs := extractHrefsWithGoquery(html)
	if len(hrefs) == 0 {
		hrefs = xurls.Strict().FindAllString(html, -1)
	}
	return hrefs
}

func extractHrefsWithGoquery(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs
}

// NewHTTPClient builds the plain HTTP client FetchPDF and ProbeContentType
// run on. Outside a container it carries a cookiejar so a PDF fetch that
// follows a redirect through a login wall behaves like a normal browser
// session; inDocker disables that persistence, mirroring the browser
// sandbox toggle's intent of not carrying session state across untrusted
// multi-tenant crawls.
func NewHTTPClient(timeout time.Duration, inDocker bool) *http.Client {
	client := &http.Client{Timeout: timeout}
	if inDocker {
		return client
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return client
	}
	client.Jar = jar
	return client
}

// FetchPDF performs the plain HTTP GET fast-path for .pdf URLs, and is
// also used as the HEAD fallback from a failed navigation: the body is
// read to completion so the recording proxy captures it, but never
// inspected further here.
func FetchPDF(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = readAll(resp)
	return err
}

func readAll(resp *http.Response) (int64, error) {
	return io.Copy(io.Discard, resp.Body)
}

// ProbeContentType issues an HTTP HEAD and reports the response's
// Content-Type, used by the navigation-failure fallback path to decide
// whether a direct PDF fetch can recover the URL.
func ProbeContentType(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	return resp.Header.Get("Content-Type"), nil
}
