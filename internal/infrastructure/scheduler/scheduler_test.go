package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeJob struct {
	name  string
	runs  atomic.Int32
	block chan struct{}
	err   error
	panic bool
}

func (j *fakeJob) Name() string        { return j.name }
func (j *fakeJob) Description() string { return "test job" }

func (j *fakeJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.panic {
		panic("job exploded")
	}
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

// manualClock advances only when told to.
type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestScheduler(clock *manualClock) *Scheduler {
	return New(Config{
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		TickInterval: 5 * time.Millisecond,
		Now:          clock.Now,
	})
}

func TestScheduler_RunsDueJobs(t *testing.T) {
	clock := &manualClock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	s := newTestScheduler(clock)
	job := &fakeJob{name: "tick"}
	require.NoError(t, s.Register(job, Every{Interval: time.Minute}))

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, job.runs.Load(), "not due yet")

	clock.Advance(time.Minute)
	assert.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	info := s.ListJobs()
	require.Len(t, info, 1)
	assert.Equal(t, int64(1), info[0].RunCount)
	assert.Equal(t, "@every 1m0s", info[0].Schedule)
}

func TestScheduler_NoOverlap(t *testing.T) {
	clock := &manualClock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	s := newTestScheduler(clock)
	job := &fakeJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.Register(job, Every{Interval: time.Minute}))
	require.NoError(t, s.Start(context.Background()))

	clock.Advance(time.Minute)
	assert.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	// Two more slots pass while the first run is still blocked.
	clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), job.runs.Load())

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobRunning)

	close(job.block)
	require.NoError(t, s.Stop())
}

func TestScheduler_RunNowAndFailures(t *testing.T) {
	clock := &manualClock{t: time.Now()}
	s := newTestScheduler(clock)
	boom := errors.New("boom")
	failing := &fakeJob{name: "failing", err: boom}
	panicking := &fakeJob{name: "panicking", panic: true}
	require.NoError(t, s.Register(failing, Every{Interval: time.Hour}))
	require.NoError(t, s.Register(panicking, Every{Interval: time.Hour}))

	res, err := s.RunNow(context.Background(), "failing")
	assert.ErrorIs(t, err, boom)
	assert.True(t, res.Manual)
	assert.False(t, res.Success())

	_, err = s.RunNow(context.Background(), "panicking")
	assert.ErrorContains(t, err, "job panic")

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	stats := s.Metrics().Snapshot()
	assert.Equal(t, int64(1), stats["failing"].Failures)
	assert.Equal(t, int64(1), stats["panicking"].Executions)
}

func TestScheduler_Register(t *testing.T) {
	s := newTestScheduler(&manualClock{t: time.Now()})
	job := &fakeJob{name: "a"}

	assert.ErrorIs(t, s.Register(nil, Every{Interval: time.Minute}), ErrNilJob)
	assert.ErrorIs(t, s.Register(job, nil), ErrNilSchedule)
	require.NoError(t, s.Register(job, Every{Interval: time.Minute}))
	assert.ErrorIs(t, s.Register(job, Every{Interval: time.Minute}), ErrJobAlreadyExists)
}

func TestScheduler_RunBlocksUntilCancelled(t *testing.T) {
	s := newTestScheduler(&manualClock{t: time.Now()})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.running
	}, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestCron_Next(t *testing.T) {
	loc := time.FixedZone("CST", -6*60*60)

	tests := []struct {
		expr string
		from time.Time
		want time.Time
	}{
		{MonthlyAtNine, time.Date(2026, 3, 14, 10, 0, 0, 0, loc), time.Date(2026, 4, 1, 9, 0, 0, 0, loc)},
		{MonthlyAtNine, time.Date(2026, 3, 1, 8, 59, 30, 0, loc), time.Date(2026, 3, 1, 9, 0, 0, 0, loc)},
		{NightlyAtThree, time.Date(2026, 12, 31, 4, 0, 0, 0, loc), time.Date(2027, 1, 1, 3, 0, 0, 0, loc)},
		{"*/15 * * * *", time.Date(2026, 3, 1, 10, 7, 0, 0, loc), time.Date(2026, 3, 1, 10, 15, 0, 0, loc)},
		{"0 12 * * 1-5", time.Date(2026, 3, 7, 13, 0, 0, 0, loc), time.Date(2026, 3, 9, 12, 0, 0, 0, loc)},
		{"0 0 29 2 *", time.Date(2026, 3, 1, 0, 0, 0, 0, loc), time.Date(2028, 2, 29, 0, 0, 0, 0, loc)},
		// Day-of-month or day-of-week: the 13th or any Friday.
		{"0 0 13 * 5", time.Date(2026, 3, 1, 0, 0, 0, 0, loc), time.Date(2026, 3, 6, 0, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			c, err := ParseCron(tt.expr, loc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Next(tt.from))
		})
	}
}

func TestCron_ParseErrors(t *testing.T) {
	for _, expr := range []string{"", "* * * *", "60 * * * *", "* 24 * * *", "*/0 * * * *", "5-1 * * * *", "a * * * *"} {
		_, err := ParseCron(expr, nil)
		assert.Error(t, err, expr)
	}
	assert.Panics(t, func() { MustParseCron("nope", nil) })
}

func TestEvery(t *testing.T) {
	_, err := NewEvery(time.Millisecond)
	assert.Error(t, err)

	e, err := NewEvery(6 * time.Hour)
	require.NoError(t, err)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, base.Add(6*time.Hour), e.Next(base))
}
