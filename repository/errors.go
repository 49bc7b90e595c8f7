package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/camden-git/mediasysindex/takestamp"
)

// MapError translates driver and GORM failures into takestamp error codes.
// Errors that already carry a code are returned unchanged.
func MapError(op string, albumID uint, err error) error {
	if err == nil {
		return nil
	}
	if takestamp.CodeOf(err) != "" {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return takestamp.Wrap(takestamp.CodeNotFound, op, albumID, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return takestamp.Wrap(takestamp.CodeRetryable, op, albumID, err)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return takestamp.Wrap(takestamp.CodeRetryable, op, albumID, err)
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "40001", "40P01", "55P03": // serialization_failure, deadlock_detected, lock_not_available
			return takestamp.Wrap(takestamp.CodeRetryable, op, albumID, err)
		}
	}

	// the sqlite driver can surface a busy database as a plain error string
	if strings.Contains(strings.ToLower(err.Error()), "database is locked") {
		return takestamp.Wrap(takestamp.CodeRetryable, op, albumID, err)
	}
	return takestamp.Wrap(takestamp.CodeInternal, op, albumID, err)
}
