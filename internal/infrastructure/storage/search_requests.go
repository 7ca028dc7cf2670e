package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"UnionWins/internal/domain"
)

var searchRequestColumns = []string{
	"id", "status", "task_handle", "date_range", "new_wins_found",
	"error_message", "created_at", "updated_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSearchRequest(row rowScanner) (domain.SearchRequest, error) {
	var (
		req     domain.SearchRequest
		status  string
		handle  sql.NullString
		message sql.NullString
	)
	err := row.Scan(&req.ID, &status, &handle, &req.DateRange, &req.NewWinsFound,
		&message, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return domain.SearchRequest{}, err
	}
	req.Status = domain.SearchStatus(status)
	req.TaskHandle = handle.String
	req.ErrorMessage = message.String
	return req, nil
}

func (s *session) CreateSearchRequest(ctx context.Context, dateRange string) (domain.SearchRequest, error) {
	now := s.timestamp()
	row, err := s.queryRow(ctx, s.builder.Insert("search_requests").
		Columns("status", "date_range", "new_wins_found", "created_at", "updated_at").
		Values(string(domain.SearchPending), dateRange, 0, now, now).
		Suffix("RETURNING id"))
	if err != nil {
		return domain.SearchRequest{}, err
	}

	req := domain.SearchRequest{
		Status:    domain.SearchPending,
		DateRange: dateRange,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := row.Scan(&req.ID); err != nil {
		return domain.SearchRequest{}, fmt.Errorf("insert search request: %w", err)
	}
	return req, nil
}

func (s *session) SearchRequestByID(ctx context.Context, id int64) (domain.SearchRequest, error) {
	row, err := s.queryRow(ctx, s.builder.Select(searchRequestColumns...).
		From("search_requests").
		Where(sq.Eq{"id": id}))
	if err != nil {
		return domain.SearchRequest{}, err
	}
	req, err := scanSearchRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SearchRequest{}, fmt.Errorf("search request %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.SearchRequest{}, fmt.Errorf("select search request: %w", err)
	}
	return req, nil
}

func (s *session) OldestPendingSearchRequest(ctx context.Context) (domain.SearchRequest, bool, error) {
	return s.firstSearchRequest(ctx, s.builder.Select(searchRequestColumns...).
		From("search_requests").
		Where(sq.Eq{"status": string(domain.SearchPending)}).
		OrderBy("created_at ASC", "id ASC").
		Limit(1))
}

func (s *session) LatestSearchRequest(ctx context.Context) (domain.SearchRequest, bool, error) {
	return s.firstSearchRequest(ctx, s.builder.Select(searchRequestColumns...).
		From("search_requests").
		OrderBy("created_at DESC", "id DESC").
		Limit(1))
}

func (s *session) firstSearchRequest(ctx context.Context, stmt sq.SelectBuilder) (domain.SearchRequest, bool, error) {
	row, err := s.queryRow(ctx, stmt)
	if err != nil {
		return domain.SearchRequest{}, false, err
	}
	req, err := scanSearchRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SearchRequest{}, false, nil
	}
	if err != nil {
		return domain.SearchRequest{}, false, fmt.Errorf("select search request: %w", err)
	}
	return req, true, nil
}

func (s *session) ProcessingSearchRequests(ctx context.Context) ([]domain.SearchRequest, error) {
	rows, err := s.query(ctx, s.builder.Select(searchRequestColumns...).
		From("search_requests").
		Where(sq.And{
			sq.Eq{"status": string(domain.SearchProcessing)},
			sq.NotEq{"task_handle": nil},
		}).
		OrderBy("created_at ASC", "id ASC"))
	if err != nil {
		return nil, fmt.Errorf("query processing requests: %w", err)
	}
	defer rows.Close()

	var out []domain.SearchRequest
	for rows.Next() {
		req, err := scanSearchRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan search request: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// MarkProcessing stores the handle and flips the status in a single statement.
func (s *session) MarkProcessing(ctx context.Context, id int64, handle string) error {
	if handle == "" {
		return fmt.Errorf("mark processing %d: empty task handle: %w", id, domain.ErrInvalidTransition)
	}
	return s.transition(ctx, id, "mark processing", s.builder.Update("search_requests").
		Set("status", string(domain.SearchProcessing)).
		Set("task_handle", handle).
		Set("updated_at", s.timestamp()).
		Where(sq.Eq{"id": id, "status": string(domain.SearchPending)}))
}

func (s *session) CompleteSearchRequest(ctx context.Context, id int64, newWins int) error {
	return s.transition(ctx, id, "complete", s.builder.Update("search_requests").
		Set("status", string(domain.SearchCompleted)).
		Set("new_wins_found", newWins).
		Set("error_message", nil).
		Set("updated_at", s.timestamp()).
		Where(sq.Eq{"id": id, "status": string(domain.SearchProcessing)}))
}

func (s *session) FailSearchRequest(ctx context.Context, id int64, message string) error {
	return s.transition(ctx, id, "fail", s.builder.Update("search_requests").
		Set("status", string(domain.SearchFailed)).
		Set("error_message", nullString(message)).
		Set("updated_at", s.timestamp()).
		Where(sq.Eq{
			"id":     id,
			"status": []string{string(domain.SearchPending), string(domain.SearchProcessing)},
		}))
}

func (s *session) transition(ctx context.Context, id int64, op string, stmt sq.UpdateBuilder) error {
	affected, err := s.exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("%s search request %d: %w", op, id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s search request %d: %w", op, id, domain.ErrInvalidTransition)
	}
	return nil
}
