package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"UnionWins/internal/domain"
)

func (s *session) WinExists(ctx context.Context, url string) (bool, error) {
	row, err := s.queryRow(ctx, s.builder.Select("1").
		From("wins").
		Where(sq.Eq{"url": url}).
		Limit(1))
	if err != nil {
		return false, err
	}
	var one int
	switch err := row.Scan(&one); err {
	case nil:
		return true, nil
	case sql.ErrNoRows:
		return false, nil
	default:
		return false, fmt.Errorf("check win url: %w", err)
	}
}

// ExistingWinURLs returns the subset of urls that already have a win.
func (s *session) ExistingWinURLs(ctx context.Context, urls []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(urls) == 0 {
		return result, nil
	}

	rows, err := s.query(ctx, s.builder.Select("url").
		From("wins").
		Where(sq.Eq{"url": urls}))
	if err != nil {
		return nil, fmt.Errorf("query existing urls: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		result[url] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return result, nil
}

// InsertWin persists a new win. A URL conflict yields domain.ErrDuplicate.
func (s *session) InsertWin(ctx context.Context, win domain.Win) (domain.Win, error) {
	if win.Status == "" {
		win.Status = domain.WinPending
	}
	if win.ImageURLs == nil {
		win.ImageURLs = []string{}
	}
	images, err := json.Marshal(win.ImageURLs)
	if err != nil {
		return domain.Win{}, fmt.Errorf("encode image urls: %w", err)
	}
	win.CreatedAt = s.timestamp()

	row, err := s.queryRow(ctx, s.builder.Insert("wins").
		Columns("title", "organization", "categories", "emoji", "date", "url",
			"summary", "image_urls", "status", "submitted_by", "created_at").
		Values(win.Title, nullString(win.Organization), strings.Join(win.Categories, ","),
			nullString(win.Emoji), win.Date, win.URL, win.Summary, string(images),
			string(win.Status), nullString(win.SubmittedBy), win.CreatedAt).
		Suffix("RETURNING id"))
	if err != nil {
		return domain.Win{}, err
	}
	if err := row.Scan(&win.ID); err != nil {
		if isUniqueViolation(err) {
			return domain.Win{}, fmt.Errorf("insert win %s: %w", win.URL, domain.ErrDuplicate)
		}
		return domain.Win{}, fmt.Errorf("insert win %s: %w", win.URL, err)
	}
	return win, nil
}

// ListWins returns the newest wins first. An empty status lists every win.
func (s *session) ListWins(ctx context.Context, status domain.WinStatus, limit int) ([]domain.Win, error) {
	stmt := s.builder.Select("id", "title", "organization", "categories", "emoji", "date",
		"url", "summary", "image_urls", "status", "submitted_by", "created_at").
		From("wins").
		OrderBy("created_at DESC", "id DESC")
	if status != "" {
		stmt = stmt.Where(sq.Eq{"status": string(status)})
	}
	if limit > 0 {
		stmt = stmt.Limit(uint64(limit))
	}

	rows, err := s.query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("query wins: %w", err)
	}
	defer rows.Close()

	var wins []domain.Win
	for rows.Next() {
		var (
			win                       domain.Win
			org, emoji, by            sql.NullString
			categories, images, state string
		)
		if err := rows.Scan(&win.ID, &win.Title, &org, &categories, &emoji, &win.Date,
			&win.URL, &win.Summary, &images, &state, &by, &win.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan win: %w", err)
		}
		win.Organization = org.String
		win.Emoji = emoji.String
		win.SubmittedBy = by.String
		win.Status = domain.WinStatus(state)
		win.Categories = splitCategories(categories)
		if err := json.Unmarshal([]byte(images), &win.ImageURLs); err != nil {
			return nil, fmt.Errorf("decode image urls for win %d: %w", win.ID, err)
		}
		wins = append(wins, win)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return wins, nil
}

func splitCategories(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
