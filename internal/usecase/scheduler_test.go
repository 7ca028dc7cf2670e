package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"UnionWins/internal/domain"
)

type recordingTrigger struct {
	mu      sync.Mutex
	first   time.Time
	every   time.Duration
	job     func(context.Context, time.Time)
	stopped bool
}

func (r *recordingTrigger) Start(_ context.Context, first time.Time, every time.Duration, job func(context.Context, time.Time)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.first, r.every, r.job = first, every, job
	return nil
}

func (r *recordingTrigger) Stop(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	return nil
}

func TestNextFireTime(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 8, 9, 0, 0, 0, time.UTC)
	interval := 12 * time.Hour

	cases := []struct {
		name    string
		last    time.Time
		hasLast bool
		want    time.Time
	}{
		{name: "no history", want: now.Add(interval)},
		{name: "recent run", last: now.Add(-time.Hour), hasLast: true, want: now.Add(interval)},
		{name: "overdue run", last: now.Add(-48 * time.Hour), hasLast: true, want: now.Add(interval)},
		{name: "exactly one interval ago", last: now.Add(-interval), hasLast: true, want: now.Add(interval)},
		{name: "clock skew puts last in future", last: now.Add(2 * time.Hour), hasLast: true, want: now.Add(2*time.Hour + interval)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, NextFireTime(tc.last, tc.hasLast, now, interval))
		})
	}
}

func TestSchedulerStartUsesStoredHistory(t *testing.T) {
	t.Parallel()

	clock := newClock()
	store := newTestStore(t, clock)
	sess := openSession(t, store)
	ctx := context.Background()

	_, err := sess.CreateSearchRequest(ctx, "earlier window")
	require.NoError(t, err)
	lastSearch := clock.Now()
	require.NoError(t, sess.EnsureSource(ctx, "https://union.example.org/news", ""))
	ids, err := sess.ActiveSourceIDs(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	lastScrape := clock.Now().Add(time.Hour)
	require.NoError(t, sess.RecordSourceRun(ctx, ids[0], domain.SourceRun{At: lastScrape, Status: domain.SourceSuccess}))

	// A restart whose clock trails the stored history must still wait a full interval after it.
	clock.Advance(-2 * time.Hour)
	search, scrape := &recordingTrigger{}, &recordingTrigger{}
	sched := NewScheduler(SchedulerDeps{
		Sessions:        store,
		SearchTrigger:   search,
		ScrapeTrigger:   scrape,
		Scrape:          NewScrapeCoordinator(ScrapeDeps{Sessions: store, Logger: discard, Now: clock.Now}),
		Logger:          discard,
		RequestInterval: 12 * time.Hour,
		ScrapeInterval:  7 * 24 * time.Hour,
		Now:             clock.Now,
	})

	require.NoError(t, sched.Start(ctx))

	assert.True(t, search.first.Equal(lastSearch.Add(12*time.Hour)), search.first)
	assert.Equal(t, 12*time.Hour, search.every)
	assert.True(t, scrape.first.Equal(lastScrape.Add(7*24*time.Hour)), scrape.first)
	assert.Equal(t, 7*24*time.Hour, scrape.every)

	require.NoError(t, sched.Stop(ctx))
	assert.True(t, search.stopped)
	assert.True(t, scrape.stopped)
}

func TestSchedulerOverdueHistoryWaitsFromNow(t *testing.T) {
	t.Parallel()

	clock := newClock()
	store := newTestStore(t, clock)
	sess := openSession(t, store)
	_, err := sess.CreateSearchRequest(context.Background(), "old window")
	require.NoError(t, err)

	clock.Advance(3 * 24 * time.Hour)
	search := &recordingTrigger{}
	sched := NewScheduler(SchedulerDeps{Sessions: store, SearchTrigger: search, Logger: discard, Now: clock.Now})
	require.NoError(t, sched.Start(context.Background()))

	assert.True(t, search.first.Equal(clock.Now().Add(12*time.Hour)), search.first)
}

func TestSchedulerWithoutHistoryWaitsOneInterval(t *testing.T) {
	t.Parallel()

	clock := newClock()
	store := newTestStore(t, clock)
	search, scrape := &recordingTrigger{}, &recordingTrigger{}
	sched := NewScheduler(SchedulerDeps{
		Sessions:      store,
		SearchTrigger: search,
		ScrapeTrigger: scrape,
		Scrape:        NewScrapeCoordinator(ScrapeDeps{Sessions: store, Logger: discard}),
		Logger:        discard,
		Now:           clock.Now,
	})

	require.NoError(t, sched.Start(context.Background()))

	assert.True(t, search.first.Equal(clock.Now().Add(12*time.Hour)))
	assert.True(t, scrape.first.Equal(clock.Now().Add(7*24*time.Hour)))
}

func TestSchedulerSearchJobEnqueuesPendingRequest(t *testing.T) {
	t.Parallel()

	clock := newClock()
	store := newTestStore(t, clock)
	search := &recordingTrigger{}
	sched := NewScheduler(SchedulerDeps{
		Sessions:      store,
		SearchTrigger: search,
		Logger:        discard,
		WindowDays:    2,
		Location:      time.UTC,
		Now:           clock.Now,
	})
	require.NoError(t, sched.Start(context.Background()))
	require.NotNil(t, search.job)

	search.job(context.Background(), clock.Now())

	sess := openSession(t, store)
	req, ok, err := sess.OldestPendingSearchRequest(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "June 06, 2025 to June 08, 2025", req.DateRange)
	assert.Equal(t, domain.SearchPending, req.Status)
	assert.Empty(t, req.TaskHandle)
}

func TestSchedulerScrapeJobRunsSweep(t *testing.T) {
	t.Parallel()

	clock := newClock()
	store := newTestStore(t, clock)
	sess := openSession(t, store)
	require.NoError(t, sess.EnsureSource(context.Background(), "https://union.example.org/news", "GMB"))

	var fetched []string
	var mu sync.Mutex
	coordinator := NewScrapeCoordinator(ScrapeDeps{
		Sessions: store,
		Fetcher: fetcherFunc(func(_ context.Context, url string) ([]byte, error) {
			mu.Lock()
			fetched = append(fetched, url)
			mu.Unlock()
			return []byte("<html></html>"), nil
		}),
		Candidates: candidatesFunc(noCandidates),
		Logger:     discard,
		Now:        clock.Now,
	})
	scrape := &recordingTrigger{}
	sched := NewScheduler(SchedulerDeps{
		Sessions:      store,
		ScrapeTrigger: scrape,
		Scrape:        coordinator,
		Logger:        discard,
		Now:           clock.Now,
	})
	require.NoError(t, sched.Start(context.Background()))

	scrape.job(context.Background(), clock.Now())

	assert.Equal(t, []string{"https://union.example.org/news"}, fetched)
	last, ok, err := sess.LatestSourceRun(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, last.Equal(clock.Now()))
}

func TestDateRange(t *testing.T) {
	t.Parallel()

	london, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)

	at := time.Date(2025, 1, 1, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "December 30, 2024 to January 01, 2025", DateRange(at, 2, time.UTC))
	assert.Equal(t, "December 30, 2024 to January 01, 2025", DateRange(at, 2, london))
	assert.Equal(t, "December 31, 2024 to January 02, 2025", DateRange(at, 2, time.FixedZone("UTC+2", 2*3600)))
	assert.Equal(t, "June 08, 2025 to June 08, 2025", DateRange(time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC), 0, nil))
}

func TestBuildResearchPrompt(t *testing.T) {
	t.Parallel()

	prompt := BuildResearchPrompt("June 06, 2025 to June 08, 2025")
	assert.Contains(t, prompt, "June 06, 2025 to June 08, 2025")
	assert.Contains(t, prompt, "JSON array")
	assert.Contains(t, prompt, "Unite the Union")
}
