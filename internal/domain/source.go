package domain

import "time"

// SourceRunStatus is the outcome of the last scrape of a source; empty means never run.
type SourceRunStatus string

const (
	SourceSuccess SourceRunStatus = "success"
	SourceError   SourceRunStatus = "error"
)

// Source is a web page scraped for candidate links.
type Source struct {
	ID           int64
	URL          string
	Organization string
	Active       bool
	LastRunAt    time.Time
	LastStatus   SourceRunStatus
	LastError    string
	CreatedAt    time.Time
}

// SourceRun is what the scrape coordinator writes back after each run.
type SourceRun struct {
	At     time.Time
	Status SourceRunStatus
	Error  string
}

// Candidate is a link found on a source page that has not been classified yet.
type Candidate struct {
	URL     string
	Text    string
	Context string
}

// SourceResult summarizes one source run.
type SourceResult struct {
	SourceID      int64
	URL           string
	Status        SourceRunStatus
	Error         string
	RawCandidates int
	Checked       int
	Classified    int
	Submitted     int
	ScrapedAt     time.Time
}

// SweepReport aggregates the results of one scrape sweep.
type SweepReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []SourceResult
}

// Totals sums the per-source counters.
func (r SweepReport) Totals() SourceResult {
	var total SourceResult
	for _, res := range r.Results {
		total.RawCandidates += res.RawCandidates
		total.Checked += res.Checked
		total.Classified += res.Classified
		total.Submitted += res.Submitted
	}
	return total
}

// Failed counts sources whose run ended in error.
func (r SweepReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == SourceError {
			n++
		}
	}
	return n
}
