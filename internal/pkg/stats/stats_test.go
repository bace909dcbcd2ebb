package stats

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStopLiveTableWithoutStartIsNoop(t *testing.T) {
	assert.NotPanics(t, StopLiveTable)
}

func TestActiveTabsTracksIncrAndDecr(t *testing.T) {
	before := atomic.LoadInt64(&activeTabs)
	ActiveTabsIncr()
	ActiveTabsIncr()
	assert.Equal(t, before+2, atomic.LoadInt64(&activeTabs))
	ActiveTabsDecr()
	assert.Equal(t, before+1, atomic.LoadInt64(&activeTabs))
	ActiveTabsDecr()
}

func TestURLsVisitedIncrRaisesRate(t *testing.T) {
	before := URLsPerSecond()
	URLsVisitedIncr()
	assert.GreaterOrEqual(t, URLsPerSecond(), before)
}

func TestStartStopLiveTableDoesNotBlock(t *testing.T) {
	StartLiveTable(5 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	StopLiveTable()
}
