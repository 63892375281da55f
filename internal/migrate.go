package internal

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// gooseLogger routes goose output through slog.
type gooseLogger struct {
	logger *slog.Logger
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// RunMigrations applies all pending migrations.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := setupGoose(logger); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

// MigrationStatus logs the state of every migration.
func MigrationStatus(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := setupGoose(logger); err != nil {
		return err
	}
	return goose.StatusContext(ctx, db, "migrations")
}

// RollbackMigration reverts the most recent migration.
func RollbackMigration(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := setupGoose(logger); err != nil {
		return err
	}
	return goose.DownContext(ctx, db, "migrations")
}

func setupGoose(logger *slog.Logger) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{logger: logger.With("component", "goose")})
	return goose.SetDialect("postgres")
}
