package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"UnionWins/internal/ports"
)

// session is bound to one pooled connection for the lifetime of a unit of work.
// Statements are rendered with squirrel and executed on the connection directly.
type session struct {
	conn    *sql.Conn
	builder sq.StatementBuilderType
	now     func() time.Time
}

var _ ports.Session = (*session)(nil)

func (s *session) Close() error {
	if err := s.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("release connection: %w", err)
	}
	return nil
}

func (s *session) timestamp() time.Time {
	return s.now().UTC()
}

func (s *session) exec(ctx context.Context, stmt sq.Sqlizer) (int64, error) {
	query, args, err := stmt.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build statement: %w", err)
	}
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}

func (s *session) queryRow(ctx context.Context, stmt sq.Sqlizer) (*sql.Row, error) {
	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return s.conn.QueryRowContext(ctx, query, args...), nil
}

func (s *session) query(ctx context.Context, stmt sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return s.conn.QueryContext(ctx, query, args...)
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
