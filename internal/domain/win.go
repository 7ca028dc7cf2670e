package domain

import (
	"strings"
	"time"
)

// WinStatus is the moderation status of a discovered win.
type WinStatus string

const (
	WinPending  WinStatus = "pending"
	WinApproved WinStatus = "approved"
	WinRejected WinStatus = "rejected"
)

// Valid reports whether the status belongs to the moderation set.
func (s WinStatus) Valid() bool {
	switch s {
	case WinPending, WinApproved, WinRejected:
		return true
	}
	return false
}

// Origins recorded in Win.SubmittedBy for automated pipelines.
const (
	OriginAutoScraped  = "auto-scraped"
	OriginAutoResearch = "auto-research"
)

// MaxCategories bounds how many category tags a win carries.
const MaxCategories = 2

// Categories is the closed set of win types.
var Categories = []string{
	"Pay Rise",
	"Recognition",
	"Strike Action",
	"Working Conditions",
	"Job Security",
	"Benefits",
	"Health & Safety",
	"Equality",
	"Legal Victory",
	"Organising",
	"Other",
}

// Win is a persisted content record. URL is globally unique.
type Win struct {
	ID           int64
	Title        string
	Organization string
	Categories   []string
	Emoji        string
	Date         string
	URL          string
	Summary      string
	ImageURLs    []string
	Status       WinStatus
	SubmittedBy  string
	CreatedAt    time.Time
}

// Extraction holds the structured fields pulled from one URL.
type Extraction struct {
	Title             string
	Organization      string
	CategoryPrimary   string
	CategorySecondary string
	Date              string
	Summary           string
	MediaURLs         []string
}

// NormalizeCategories maps raw labels onto the closed set, case-insensitively,
// dropping unknown and repeated values and keeping at most MaxCategories.
func NormalizeCategories(raw ...string) []string {
	out := make([]string, 0, MaxCategories)
	for _, value := range raw {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		for _, known := range Categories {
			if !strings.EqualFold(known, value) || contains(out, known) {
				continue
			}
			out = append(out, known)
			break
		}
		if len(out) == MaxCategories {
			break
		}
	}
	return out
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
