package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	pgxUnique := &pgconn.PgError{Code: "23505"}
	pqUnique := &pq.Error{Code: "23505"}
	pgxCheck := &pgconn.PgError{Code: "23514"}
	pqForeignKey := &pq.Error{Code: "23503"}

	tests := []struct {
		name       string
		err        error
		unique     bool
		check      bool
		foreignKey bool
		noRows     bool
	}{
		{"pgx unique", pgxUnique, true, false, false, false},
		{"lib/pq unique", pqUnique, true, false, false, false},
		{"wrapped unique", fmt.Errorf("create account: %w", pgxUnique), true, false, false, false},
		{"pgx check", pgxCheck, false, true, false, false},
		{"lib/pq foreign key", pqForeignKey, false, false, true, false},
		{"no rows", sql.ErrNoRows, false, false, false, true},
		{"plain error", errors.New("boom"), false, false, false, false},
		{"nil", nil, false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.unique, IsUniqueViolation(tt.err))
			assert.Equal(t, tt.check, IsCheckViolation(tt.err))
			assert.Equal(t, tt.foreignKey, IsForeignKeyViolation(tt.err))
			assert.Equal(t, tt.noRows, IsNoRows(tt.err))
		})
	}
}
