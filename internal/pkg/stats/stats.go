// Package stats exposes the worker's runtime counters: Prometheus
// metrics for scraping, plus a live console table for interactive runs.
package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gosuri/uilive"
	"github.com/gosuri/uitable"
	"github.com/paulbellamy/ratecounter"
	"github.com/prometheus/client_golang/prometheus"
)

// The counters themselves are created at package-init time rather than
// lazily in Init, so every Incr/Add call is safe even in a test binary
// that exercises a crawl/scheduler/upload path without ever calling
// Init or StartLiveTable — only registration with the default Prometheus
// registry and the live-table goroutine are deferred to Init/
// StartLiveTable.
var (
	once sync.Once

	assignmentsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atwworker_assignments_processed_total",
		Help: "Archiving assignments completed (success or terminal failure).",
	})
	urlsVisited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atwworker_urls_visited_total",
		Help: "URLs successfully browsed across all crawls.",
	})
	urlsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atwworker_urls_failed_total",
		Help: "URLs that exhausted their retry budget.",
	})
	bytesUploaded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atwworker_bytes_uploaded_total",
		Help: "Bytes sent to the storage network.",
	})
	activeTabsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "atwworker_active_tabs",
		Help: "Browse tasks currently in flight.",
	})
	activeWorkersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "atwworker_active_workers",
		Help: "Archive worker goroutines currently in flight.",
	})

	activeTabs    int64
	activeWorkers int64
	rate          = ratecounter.NewRateCounter(time.Second)

	liveWriter *uilive.Writer
	liveStop   chan struct{}
	liveWg     sync.WaitGroup
)

// Init registers the Prometheus collectors against the default registry.
// Safe to call more than once; only the first call has effect. Must be
// called exactly once by a process that actually scrapes /metrics; tests
// that only touch the Incr/Add/Active* helpers don't need it.
func Init() error {
	once.Do(func() {
		prometheus.MustRegister(
			assignmentsProcessed, urlsVisited, urlsFailed,
			bytesUploaded, activeTabsGauge, activeWorkersGauge,
		)
	})

	return nil
}

func AssignmentsProcessedIncr() { assignmentsProcessed.Inc() }

func URLsVisitedIncr() {
	urlsVisited.Inc()
	rate.Incr(1)
}

func URLsFailedIncr() { urlsFailed.Inc() }

func BytesUploadedAdd(n int64) { bytesUploaded.Add(float64(n)) }

func ActiveTabsIncr() {
	activeTabsGauge.Inc()
	atomic.AddInt64(&activeTabs, 1)
}

func ActiveTabsDecr() {
	activeTabsGauge.Dec()
	atomic.AddInt64(&activeTabs, -1)
}

func ActiveWorkersIncr() {
	activeWorkersGauge.Inc()
	atomic.AddInt64(&activeWorkers, 1)
}

func ActiveWorkersDecr() {
	activeWorkersGauge.Dec()
	atomic.AddInt64(&activeWorkers, -1)
}

// URLsPerSecond is the one-second sliding rate of successfully visited
// URLs, displayed on the live table.
func URLsPerSecond() int64 {
	return rate.Rate()
}

// StartLiveTable launches a background goroutine that refreshes a
// uitable-rendered snapshot of the counters above via uilive, once per
// interval. Intended for interactive terminal runs; harmless when stdout
// isn't a terminal since uilive degrades to plain sequential writes.
func StartLiveTable(interval time.Duration) {
	liveWriter = uilive.New()
	liveWriter.Start()
	liveStop = make(chan struct{})

	liveWg.Add(1)
	go func() {
		defer liveWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-liveStop:
				return
			case <-ticker.C:
				renderLiveTable()
			}
		}
	}()
}

func renderLiveTable() {
	table := uitable.New()
	table.AddRow("active workers", atomic.LoadInt64(&activeWorkers))
	table.AddRow("active tabs", atomic.LoadInt64(&activeTabs))
	table.AddRow("urls/sec", URLsPerSecond())
	fmt.Fprint(liveWriter, table.String()+"\n")
}

// StopLiveTable stops the background refresh goroutine and flushes the
// writer. A no-op if StartLiveTable was never called.
func StopLiveTable() {
	if liveStop == nil {
		return
	}
	close(liveStop)
	liveWg.Wait()
	liveWriter.Stop()
	liveStop = nil
}
