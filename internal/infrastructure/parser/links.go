package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"UnionWins/internal/domain"
	"UnionWins/internal/ports"
)

const (
	minLinkTextRunes = 5
	maxContextRunes  = 300
)

// skipFragments marks links that never lead to news content.
var skipFragments = []string{
	"/login", "/register", "/signin", "/signup", "/contact", "/about",
	"/privacy", "/terms", "/search", "/join", "/member",
	"javascript:", "mailto:",
}

// LinkExtractor pulls candidate article links out of a source page.
type LinkExtractor struct{}

var _ ports.CandidateExtractor = (*LinkExtractor)(nil)

// NewLinkExtractor returns a stateless extractor safe for concurrent use.
func NewLinkExtractor() *LinkExtractor {
	return &LinkExtractor{}
}

// ExtractCandidates resolves every anchor against pageURL and keeps the first
// acceptable occurrence of each absolute URL, in document order.
func (e *LinkExtractor) ExtractCandidates(pageURL string, body []byte) ([]domain.Candidate, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url %s: %w", pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if resolved, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = resolved
		}
	}

	var (
		candidates []domain.Candidate
		seen       = map[string]struct{}{}
	)
	doc.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		absolute, ok := resolveLink(base, href)
		if !ok {
			return
		}
		if _, dup := seen[absolute]; dup {
			return
		}

		text := linkText(link)
		if utf8.RuneCountInString(text) < minLinkTextRunes {
			return
		}

		seen[absolute] = struct{}{}
		candidates = append(candidates, domain.Candidate{
			URL:     absolute,
			Text:    text,
			Context: truncateRunes(collapseSpace(link.Parent().Text()), maxContextRunes),
		})
	})

	return candidates, nil
}

func resolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	if skipped(href) {
		return "", false
	}

	resolved, err := base.Parse(href)
	if err != nil {
		return "", false
	}
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	resolved.Fragment = ""
	resolved.RawFragment = ""

	absolute := resolved.String()
	if skipped(absolute) {
		return "", false
	}
	return absolute, true
}

func skipped(link string) bool {
	lower := strings.ToLower(link)
	for _, fragment := range skipFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// linkText prefers the anchor text and falls back to a nested image's alt or title.
func linkText(link *goquery.Selection) string {
	if text := collapseSpace(link.Text()); text != "" {
		return text
	}
	img := link.Find("img").First()
	if alt, ok := img.Attr("alt"); ok && strings.TrimSpace(alt) != "" {
		return collapseSpace(alt)
	}
	title, _ := img.Attr("title")
	return collapseSpace(title)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
