package usecase

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"UnionWins/internal/domain"
	"UnionWins/internal/infrastructure/storage"
	"UnionWins/internal/logging"
	"UnionWins/internal/ports"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 8, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T, clock *fakeClock) *storage.Store {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "unionwins.db")
	store, err := storage.Open(context.Background(), "sqlite", dsn, storage.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func openSession(t *testing.T, sessions ports.SessionFactory) ports.Session {
	t.Helper()
	sess, err := sessions.OpenSession(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

func seedWin(t *testing.T, repo ports.WinRepository, url string) {
	t.Helper()
	_, err := repo.InsertWin(context.Background(), domain.Win{
		Title:   "Existing win",
		Date:    "2025-06-01",
		URL:     url,
		Summary: "Already stored.",
		Status:  domain.WinApproved,
	})
	require.NoError(t, err)
}

// stubResearch records calls to the research API.
type stubResearch struct {
	mu        sync.Mutex
	submitErr error
	handle    string
	poll      func(handle string) (domain.TaskPoll, error)
	prompts   []string
	polls     int
}

func (s *stubResearch) Submit(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if s.submitErr != nil {
		return "", s.submitErr
	}
	if s.handle == "" {
		return "resp_1", nil
	}
	return s.handle, nil
}

func (s *stubResearch) Poll(_ context.Context, handle string) (domain.TaskPoll, error) {
	s.mu.Lock()
	s.polls++
	poll := s.poll
	s.mu.Unlock()
	if poll == nil {
		return domain.TaskPoll{State: domain.TaskRunning}, nil
	}
	return poll(handle)
}

func (s *stubResearch) Submits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func (s *stubResearch) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

type stubRepairer struct {
	mu     sync.Mutex
	out    string
	err    error
	inputs []string
}

func (r *stubRepairer) Repair(_ context.Context, malformed string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = append(r.inputs, malformed)
	return r.out, r.err
}

func (r *stubRepairer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inputs)
}

type extractorFunc func(ctx context.Context, url string) (domain.Extraction, error)

func (f extractorFunc) Extract(ctx context.Context, url string) (domain.Extraction, error) {
	return f(ctx, url)
}

func staticExtraction(_ context.Context, url string) (domain.Extraction, error) {
	return domain.Extraction{
		Title:           "Win at " + url,
		Organization:    "Unite the Union",
		CategoryPrimary: "pay rise",
		Date:            "2025-06-05",
		Summary:         "Workers secured a pay rise.",
		MediaURLs:       []string{"https://cdn.example.org/a.jpg"},
	}, nil
}

type fetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f fetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

func okFetch(context.Context, string) ([]byte, error) {
	return []byte("<html></html>"), nil
}

type candidatesFunc func(pageURL string, body []byte) ([]domain.Candidate, error)

func (f candidatesFunc) ExtractCandidates(pageURL string, body []byte) ([]domain.Candidate, error) {
	return f(pageURL, body)
}

func noCandidates(string, []byte) ([]domain.Candidate, error) {
	return nil, nil
}

type classifierFunc func(ctx context.Context, batch []domain.Candidate) ([]int, error)

func (f classifierFunc) Classify(ctx context.Context, batch []domain.Candidate) ([]int, error) {
	return f(ctx, batch)
}

var errBoom = errors.New("boom")

var discard = logging.Discard()

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return n.err
}

func (n *recordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}
