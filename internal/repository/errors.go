package repository

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Postgres SQLSTATE codes inspected by the services.
const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
	sqlStateCheckViolation      = "23514"
)

// IsNoRows reports whether a :one query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// IsUniqueViolation detects unique constraint violations from either driver.
func IsUniqueViolation(err error) bool {
	return sqlState(err) == sqlStateUniqueViolation
}

// IsForeignKeyViolation detects referential integrity violations from either driver.
func IsForeignKeyViolation(err error) bool {
	return sqlState(err) == sqlStateForeignKeyViolation
}

// IsCheckViolation detects CHECK constraint violations from either driver.
func IsCheckViolation(err error) bool {
	return sqlState(err) == sqlStateCheckViolation
}

// sqlState extracts the SQLSTATE from a pgx or lib/pq error.
func sqlState(err error) string {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}

	return ""
}
