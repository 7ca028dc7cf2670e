package ports

import (
	"context"
	"time"

	"UnionWins/internal/domain"
)

// SearchRequestRepository persists the research request state machine.
type SearchRequestRepository interface {
	CreateSearchRequest(ctx context.Context, dateRange string) (domain.SearchRequest, error)
	SearchRequestByID(ctx context.Context, id int64) (domain.SearchRequest, error)
	OldestPendingSearchRequest(ctx context.Context) (domain.SearchRequest, bool, error)
	ProcessingSearchRequests(ctx context.Context) ([]domain.SearchRequest, error)
	LatestSearchRequest(ctx context.Context) (domain.SearchRequest, bool, error)
	MarkProcessing(ctx context.Context, id int64, handle string) error
	CompleteSearchRequest(ctx context.Context, id int64, newWins int) error
	FailSearchRequest(ctx context.Context, id int64, message string) error
}

// WinRepository stores content records; InsertWin returns domain.ErrDuplicate on URL conflicts.
type WinRepository interface {
	WinExists(ctx context.Context, url string) (bool, error)
	ExistingWinURLs(ctx context.Context, urls []string) (map[string]bool, error)
	InsertWin(ctx context.Context, win domain.Win) (domain.Win, error)
	ListWins(ctx context.Context, status domain.WinStatus, limit int) ([]domain.Win, error)
}

// SourceRepository exposes scrape sources and their last-run bookkeeping.
type SourceRepository interface {
	ActiveSourceIDs(ctx context.Context) ([]int64, error)
	SourceByID(ctx context.Context, id int64) (domain.Source, error)
	RecordSourceRun(ctx context.Context, id int64, run domain.SourceRun) error
	LatestSourceRun(ctx context.Context) (time.Time, bool, error)
	EnsureSource(ctx context.Context, url, organization string) error
}

// Session is one unit of work's private store connection. Close releases it.
type Session interface {
	SearchRequestRepository
	WinRepository
	SourceRepository
	Close() error
}

// SessionFactory hands out independent sessions; each caller owns the one it opens.
type SessionFactory interface {
	OpenSession(ctx context.Context) (Session, error)
}

// ResearchClient drives the long-running external research task.
type ResearchClient interface {
	Submit(ctx context.Context, prompt string) (string, error)
	Poll(ctx context.Context, handle string) (domain.TaskPoll, error)
}

// Classifier returns the batch indices judged to describe a genuine win.
// Callers must ignore indices outside the batch.
type Classifier interface {
	Classify(ctx context.Context, batch []domain.Candidate) ([]int, error)
}

// Extractor pulls structured win fields from one URL.
type Extractor interface {
	Extract(ctx context.Context, url string) (domain.Extraction, error)
}

// Repairer rewrites malformed structured text into valid JSON.
type Repairer interface {
	Repair(ctx context.Context, malformed string) (string, error)
}

// PageFetcher downloads raw markup.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// CandidateExtractor turns fetched markup into filtered link candidates.
type CandidateExtractor interface {
	ExtractCandidates(pageURL string, body []byte) ([]domain.Candidate, error)
}

// Trigger fires a job first at the given time and then on a fixed interval.
type Trigger interface {
	Start(ctx context.Context, first time.Time, every time.Duration, job func(context.Context, time.Time)) error
	Stop(ctx context.Context) error
}

// Notifier delivers short operator alerts.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}
