package pgsorting

import (
	"github.com/BearBump/SortBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// mapError translates driver errors into model sentinels and wraps the rest.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.Wrap(models.ErrNotFound, msg)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return errors.Wrapf(models.ErrConflict, "%s: %s", msg, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return errors.Wrapf(models.ErrReferenced, "%s: %s", msg, pgErr.ConstraintName)
		case pgCheckViolation:
			return errors.Wrapf(models.ErrValidation, "%s: %s", msg, pgErr.ConstraintName)
		}
	}
	return errors.Wrap(err, msg)
}

// mapWriteError is mapError for inserts and updates, where a foreign key
// violation means the payload points at a row that does not exist.
func mapWriteError(err error, msg string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return errors.Wrapf(models.ErrValidation, "%s: unknown reference %s", msg, pgErr.ConstraintName)
	}
	return mapError(err, msg)
}
