package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/archivetheweb/atwworker/internal/pkg/models"
)

// TestMain verifies that the worker pool and completions drain goroutines
// Run spawns are always fully wound down, not just that Run itself returns.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeLedger struct {
	mu          sync.Mutex
	assignments []models.ArchiveAssignment
	deleted     []string
}

func (f *fakeLedger) ArchivingRequestsFor(ctx context.Context, identity string) ([]models.ArchiveAssignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ArchiveAssignment, len(f.assignments))
	copy(out, f.assignments)
	return out, nil
}

func (f *fakeLedger) Uploaders(ctx context.Context) (map[string]models.UploaderMeta, error) {
	return nil, nil
}

func (f *fakeLedger) DeleteArchiveRequest(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	filtered := f.assignments[:0]
	for _, a := range f.assignments {
		if a.ID != id {
			filtered = append(filtered, a)
		}
	}
	f.assignments = filtered
	return nil
}

func (f *fakeLedger) SubmitArchive(ctx context.Context, sub models.ArchiveSubmission) error {
	return nil
}

func TestTickDeletesExpiredAssignments(t *testing.T) {
	l := &fakeLedger{assignments: []models.ArchiveAssignment{
		{ID: "expired-1", EndTimestamp: time.Now().Add(-time.Hour).Unix(), Cron: "* * * * *"},
	}}

	var ran int32
	s := New(l, func(ctx context.Context, identity string, a models.ArchiveAssignment) error {
		atomic.AddInt32(&ran, 1)
		return nil
	}, Options{Identity: "0xabc", PoolSize: 1})

	s.tick(context.Background())

	assert.Equal(t, []string{"expired-1"}, l.deleted)
	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
}

func TestTickDispatchesDueAssignmentOnlyOnce(t *testing.T) {
	l := &fakeLedger{assignments: []models.ArchiveAssignment{
		// "* * * * *" is due every minute; with LastArchivedTime far in the
		// past the next scheduled instant is always <= now.
		{ID: "due-1", Cron: "* * * * *", LastArchivedTime: 0},
	}}

	s := New(l, func(ctx context.Context, identity string, a models.ArchiveAssignment) error {
		return nil
	}, Options{Identity: "0xabc", PoolSize: 1})

	s.tick(context.Background())
	require.Len(t, s.dispatch, 1)

	// A second tick before the first dispatch is drained must not
	// re-dispatch: the processing set dedups it.
	s.tick(context.Background())
	assert.Len(t, s.dispatch, 1)
}

func TestTickSkipsAssignmentNotYetDue(t *testing.T) {
	l := &fakeLedger{assignments: []models.ArchiveAssignment{
		{ID: "future-1", Cron: "0 0 1 1 *", LastArchivedTime: time.Now().Unix()},
	}}

	s := New(l, func(ctx context.Context, identity string, a models.ArchiveAssignment) error {
		return nil
	}, Options{Identity: "0xabc", PoolSize: 1})

	s.tick(context.Background())
	assert.Len(t, s.dispatch, 0)
}

func TestTickDropsAssignmentWithBadCron(t *testing.T) {
	l := &fakeLedger{assignments: []models.ArchiveAssignment{
		{ID: "bad-cron", Cron: "not a cron expression"},
	}}

	s := New(l, func(ctx context.Context, identity string, a models.ArchiveAssignment) error {
		return nil
	}, Options{Identity: "0xabc", PoolSize: 1})

	s.tick(context.Background())
	assert.Len(t, s.dispatch, 0)
}

func TestRunDispatchesAndUnmarksOnCompletion(t *testing.T) {
	l := &fakeLedger{assignments: []models.ArchiveAssignment{
		{ID: "due-1", Cron: "* * * * *", LastArchivedTime: 0},
	}}

	var ran int32
	done := make(chan struct{})
	// A second run of the same assignment is only dispatched once the first
	// completion has removed it from the processing set.
	s := New(l, func(ctx context.Context, identity string, a models.ArchiveAssignment) error {
		n := atomic.AddInt32(&ran, 1)
		if n == 2 {
			close(done)
		}
		return nil
	}, Options{Identity: "0xabc", PoolSize: 2, FetchInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(runDone)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("assignment was never re-dispatched after completing")
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not shut down after cancellation")
	}

	assert.GreaterOrEqual(t, atomic.LoadInt32(&ran), int32(2))
}

func TestIsDueEveryMinuteCronSinceEpoch(t *testing.T) {
	due, err := isDue(models.ArchiveAssignment{Cron: "* * * * *"}, time.Now())
	require.NoError(t, err)
	assert.True(t, due)
}
