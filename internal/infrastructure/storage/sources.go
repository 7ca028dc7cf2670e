package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"UnionWins/internal/domain"
)

func (s *session) ActiveSourceIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.query(ctx, s.builder.Select("id").
		From("sources").
		Where(sq.Eq{"active": true}).
		OrderBy("id ASC"))
	if err != nil {
		return nil, fmt.Errorf("query active sources: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan source id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return ids, nil
}

func (s *session) SourceByID(ctx context.Context, id int64) (domain.Source, error) {
	row, err := s.queryRow(ctx, s.builder.Select("id", "url", "organization", "active",
		"last_run_at", "last_status", "last_error", "created_at").
		From("sources").
		Where(sq.Eq{"id": id}))
	if err != nil {
		return domain.Source{}, err
	}

	var (
		src                  domain.Source
		org, status, lastErr sql.NullString
		lastRun              sql.NullTime
	)
	err = row.Scan(&src.ID, &src.URL, &org, &src.Active, &lastRun, &status, &lastErr, &src.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Source{}, fmt.Errorf("source %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Source{}, fmt.Errorf("select source: %w", err)
	}
	src.Organization = org.String
	src.LastStatus = domain.SourceRunStatus(status.String)
	src.LastError = lastErr.String
	if lastRun.Valid {
		src.LastRunAt = lastRun.Time
	}
	return src, nil
}

// RecordSourceRun writes the outcome of a scrape run onto the source row.
func (s *session) RecordSourceRun(ctx context.Context, id int64, run domain.SourceRun) error {
	at := run.At
	if at.IsZero() {
		at = s.timestamp()
	}
	affected, err := s.exec(ctx, s.builder.Update("sources").
		Set("last_run_at", at.UTC()).
		Set("last_status", string(run.Status)).
		Set("last_error", nullString(run.Error)).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("record run for source %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("record run for source %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// LatestSourceRun returns the most recent last_run_at across all sources.
func (s *session) LatestSourceRun(ctx context.Context) (time.Time, bool, error) {
	row, err := s.queryRow(ctx, s.builder.Select("last_run_at").
		From("sources").
		Where(sq.NotEq{"last_run_at": nil}).
		OrderBy("last_run_at DESC").
		Limit(1))
	if err != nil {
		return time.Time{}, false, err
	}
	var at time.Time
	err = row.Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("select latest source run: %w", err)
	}
	return at, true, nil
}

// EnsureSource inserts an active source unless one with the same URL exists.
func (s *session) EnsureSource(ctx context.Context, url, organization string) error {
	_, err := s.exec(ctx, s.builder.Insert("sources").
		Columns("url", "organization", "active", "created_at").
		Values(url, nullString(organization), true, s.timestamp()).
		Suffix("ON CONFLICT (url) DO NOTHING"))
	if err != nil {
		return fmt.Errorf("ensure source %s: %w", url, err)
	}
	return nil
}
