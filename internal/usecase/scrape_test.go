package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"UnionWins/internal/domain"
	"UnionWins/internal/infrastructure/storage"
)

type scrapeFixture struct {
	clock *fakeClock
	store *storage.Store
	deps  ScrapeDeps
}

func newScrapeFixture(t *testing.T) *scrapeFixture {
	t.Helper()

	clock := newClock()
	store := newTestStore(t, clock)
	return &scrapeFixture{
		clock: clock,
		store: store,
		deps: ScrapeDeps{
			Sessions:   store,
			Fetcher:    fetcherFunc(okFetch),
			Candidates: candidatesFunc(noCandidates),
			Classifier: classifierFunc(func(context.Context, []domain.Candidate) ([]int, error) { return nil, nil }),
			Submissions: NewSubmissionIngester(SubmissionIngesterDeps{
				Extractor: extractorFunc(staticExtraction),
				Logger:    discard,
				Now:       clock.Now,
			}),
			Logger:      discard,
			CallTimeout: time.Second,
			Now:         clock.Now,
		},
	}
}

func (f *scrapeFixture) addSource(t *testing.T, url string) int64 {
	t.Helper()
	sess := openSession(t, f.store)
	ctx := context.Background()
	require.NoError(t, sess.EnsureSource(ctx, url, "Test Union"))

	ids, err := sess.ActiveSourceIDs(ctx)
	require.NoError(t, err)
	for _, id := range ids {
		src, err := sess.SourceByID(ctx, id)
		require.NoError(t, err)
		if src.URL == url {
			return id
		}
	}
	t.Fatalf("source %s not stored", url)
	return 0
}

func (f *scrapeFixture) source(t *testing.T, id int64) domain.Source {
	t.Helper()
	sess := openSession(t, f.store)
	src, err := sess.SourceByID(context.Background(), id)
	require.NoError(t, err)
	return src
}

func articleCandidates(n int) []domain.Candidate {
	out := make([]domain.Candidate, n)
	for i := range out {
		out[i] = domain.Candidate{
			URL:     fmt.Sprintf("https://union.example.org/news/%02d", i),
			Text:    fmt.Sprintf("News story number %d", i),
			Context: "Latest news",
		}
	}
	return out
}

func TestScrapeScenarioSourceRun(t *testing.T) {
	t.Parallel()

	f := newScrapeFixture(t)
	sourceID := f.addSource(t, "https://union.example.org/news")
	candidates := articleCandidates(12)

	seed := openSession(t, f.store)
	for _, c := range candidates[:4] {
		seedWin(t, seed, c.URL)
	}

	var classified [][]domain.Candidate
	f.deps.Candidates = candidatesFunc(func(pageURL string, _ []byte) ([]domain.Candidate, error) {
		assert.Equal(t, "https://union.example.org/news", pageURL)
		return candidates, nil
	})
	f.deps.Classifier = classifierFunc(func(_ context.Context, batch []domain.Candidate) ([]int, error) {
		classified = append(classified, batch)
		return []int{0, 2, 5, 42, -1, 2}, nil
	})

	raced := candidates[6].URL
	f.deps.Submissions = NewSubmissionIngester(SubmissionIngesterDeps{
		Logger: discard,
		Now:    f.clock.Now,
		Extractor: extractorFunc(func(ctx context.Context, url string) (domain.Extraction, error) {
			if url == raced {
				other, err := f.store.OpenSession(ctx)
				if err != nil {
					return domain.Extraction{}, err
				}
				defer other.Close()
				if _, err := other.InsertWin(ctx, domain.Win{Title: "Raced", Date: "2025-06-07", URL: url, Summary: "Inserted concurrently."}); err != nil {
					return domain.Extraction{}, err
				}
			}
			return staticExtraction(ctx, url)
		}),
	})

	coordinator := NewScrapeCoordinator(f.deps)
	result := coordinator.RunSource(context.Background(), sourceID)

	assert.Equal(t, domain.SourceSuccess, result.Status)
	assert.Empty(t, result.Error)
	assert.Equal(t, 12, result.RawCandidates)
	assert.Equal(t, 8, result.Checked)
	assert.Equal(t, 3, result.Classified)
	assert.Equal(t, 2, result.Submitted)

	require.Len(t, classified, 1)
	assert.Equal(t, candidates[4:], classified[0])

	src := f.source(t, sourceID)
	assert.Equal(t, domain.SourceSuccess, src.LastStatus)
	assert.Empty(t, src.LastError)
	assert.True(t, src.LastRunAt.Equal(f.clock.Now()))

	wins, err := seed.ListWins(context.Background(), domain.WinPending, 0)
	require.NoError(t, err)
	byURL := map[string]domain.Win{}
	for _, w := range wins {
		byURL[w.URL] = w
	}
	assert.Equal(t, domain.OriginAutoScraped, byURL[candidates[4].URL].SubmittedBy)
	assert.Equal(t, domain.OriginAutoScraped, byURL[candidates[9].URL].SubmittedBy)
	assert.Equal(t, []string{"Pay Rise"}, byURL[candidates[4].URL].Categories)
	assert.Empty(t, byURL[raced].SubmittedBy)
}

func TestScrapeSkipsFailedClassifierBatch(t *testing.T) {
	t.Parallel()

	f := newScrapeFixture(t)
	sourceID := f.addSource(t, "https://union.example.org/news")

	var calls atomic.Int32
	f.deps.BatchSize = 10
	f.deps.Candidates = candidatesFunc(func(string, []byte) ([]domain.Candidate, error) {
		return articleCandidates(25), nil
	})
	f.deps.Classifier = classifierFunc(func(_ context.Context, batch []domain.Candidate) ([]int, error) {
		if calls.Add(1) == 2 {
			return nil, errBoom
		}
		return []int{0}, nil
	})

	result := NewScrapeCoordinator(f.deps).RunSource(context.Background(), sourceID)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, domain.SourceSuccess, result.Status)
	assert.Equal(t, 25, result.Checked)
	assert.Equal(t, 2, result.Classified)
	assert.Equal(t, 2, result.Submitted)
}

func TestScrapeRunAllIsolatesFetchFailures(t *testing.T) {
	t.Parallel()

	f := newScrapeFixture(t)
	good := f.addSource(t, "https://good.example.org/news")
	bad := f.addSource(t, "https://bad.example.org/news")

	f.deps.Fetcher = fetcherFunc(func(_ context.Context, url string) ([]byte, error) {
		if url == "https://bad.example.org/news" {
			return nil, errBoom
		}
		return []byte("<html></html>"), nil
	})
	f.deps.Candidates = candidatesFunc(func(pageURL string, _ []byte) ([]domain.Candidate, error) {
		return []domain.Candidate{{URL: pageURL + "/story", Text: "A story about a win"}}, nil
	})
	f.deps.Classifier = classifierFunc(func(context.Context, []domain.Candidate) ([]int, error) {
		return []int{0}, nil
	})

	report, err := NewScrapeCoordinator(f.deps).RunAll(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	require.Len(t, report.Results, 2)
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, 1, report.Totals().Submitted)

	results := map[int64]domain.SourceResult{}
	for _, r := range report.Results {
		results[r.SourceID] = r
	}
	assert.Equal(t, domain.SourceSuccess, results[good].Status)
	assert.Equal(t, domain.SourceError, results[bad].Status)
	assert.Equal(t, fetchFailureMessage, results[bad].Error)

	src := f.source(t, bad)
	assert.Equal(t, domain.SourceError, src.LastStatus)
	assert.Equal(t, fetchFailureMessage, src.LastError)
	assert.False(t, src.LastRunAt.IsZero())
}

func TestScrapeUnknownSource(t *testing.T) {
	t.Parallel()

	f := newScrapeFixture(t)
	result := NewScrapeCoordinator(f.deps).RunSource(context.Background(), 999)

	assert.Equal(t, domain.SourceError, result.Status)
	assert.Equal(t, "Source not found", result.Error)
}

func TestScrapeRecoversWorkerPanic(t *testing.T) {
	t.Parallel()

	f := newScrapeFixture(t)
	sourceID := f.addSource(t, "https://union.example.org/news")
	f.deps.Candidates = candidatesFunc(func(string, []byte) ([]domain.Candidate, error) {
		panic("parser exploded")
	})

	result := NewScrapeCoordinator(f.deps).RunSource(context.Background(), sourceID)

	assert.Equal(t, domain.SourceError, result.Status)
	assert.Contains(t, result.Error, "parser exploded")

	src := f.source(t, sourceID)
	assert.Equal(t, domain.SourceError, src.LastStatus)
	assert.Contains(t, src.LastError, "parser exploded")
}

func TestScrapeRunAllBoundsConcurrency(t *testing.T) {
	t.Parallel()

	f := newScrapeFixture(t)
	for i := range 6 {
		f.addSource(t, fmt.Sprintf("https://union%d.example.org/news", i))
	}

	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	f.deps.Workers = 2
	f.deps.Fetcher = fetcherFunc(func(context.Context, string) ([]byte, error) {
		mu.Lock()
		inFlight++
		peak = max(peak, inFlight)
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return []byte("<html></html>"), nil
	})

	report, err := NewScrapeCoordinator(f.deps).RunAll(context.Background())
	require.NoError(t, err)

	assert.Len(t, report.Results, 6)
	assert.Zero(t, report.Failed())
	assert.LessOrEqual(t, peak, 2)
	assert.Positive(t, peak)
}

func TestScrapeRunAllWithoutSources(t *testing.T) {
	t.Parallel()

	f := newScrapeFixture(t)
	report, err := NewScrapeCoordinator(f.deps).RunAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Results)
}

func TestScrapeInterruptedRunIsNotRecorded(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		setup func(f *scrapeFixture, cancel context.CancelFunc)
	}{
		{
			name: "during fetch",
			setup: func(f *scrapeFixture, cancel context.CancelFunc) {
				f.deps.Fetcher = fetcherFunc(func(ctx context.Context, _ string) ([]byte, error) {
					cancel()
					return nil, ctx.Err()
				})
			},
		},
		{
			name: "during submit",
			setup: func(f *scrapeFixture, cancel context.CancelFunc) {
				f.deps.Candidates = candidatesFunc(func(string, []byte) ([]domain.Candidate, error) {
					return articleCandidates(3), nil
				})
				f.deps.Classifier = classifierFunc(func(context.Context, []domain.Candidate) ([]int, error) {
					return []int{0, 1, 2}, nil
				})
				f.deps.Submissions = NewSubmissionIngester(SubmissionIngesterDeps{
					Logger: discard,
					Now:    f.clock.Now,
					Extractor: extractorFunc(func(ctx context.Context, url string) (domain.Extraction, error) {
						cancel()
						return staticExtraction(ctx, url)
					}),
				})
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newScrapeFixture(t)
			sourceID := f.addSource(t, "https://union.example.org/news")
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			tc.setup(f, cancel)

			result := NewScrapeCoordinator(f.deps).RunSource(ctx, sourceID)

			assert.Equal(t, domain.SourceError, result.Status)
			assert.Equal(t, interruptedMessage, result.Error)

			src := f.source(t, sourceID)
			assert.True(t, src.LastRunAt.IsZero())
			assert.Empty(t, src.LastError)
		})
	}
}
