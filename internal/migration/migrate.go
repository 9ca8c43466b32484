package migration

import (
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

// Embed SQL files from the local migrations folder
//
//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Schema holds every table owned by the service.
const Schema = "tracker"

// RunMigrations applies pending migrations against dbURL.
func RunMigrations(dbURL string, logger zerolog.Logger) error {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return errors.Wrap(err, "open database for migrations")
	}
	defer db.Close()

	return Up(db, logger)
}

// Up applies the embedded migrations on an open connection.
func Up(db *sql.DB, logger zerolog.Logger) error {
	// Ensure the schema exists before running migrations
	if _, err := db.Exec("CREATE SCHEMA IF NOT EXISTS " + Schema); err != nil {
		return errors.Wrapf(err, "create schema %s", Schema)
	}

	goose.SetBaseFS(embeddedMigrations)
	goose.SetTableName(Schema + ".goose_db_version")
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "set goose dialect")
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	logger.Info().Str("component", "migration").Msg("Migrations completed successfully")
	return nil
}

// GooseAdapter routes goose output through zerolog.
type GooseAdapter struct {
	logger zerolog.Logger
}

func NewGooseAdapter(logger zerolog.Logger) goose.Logger {
	return &GooseAdapter{logger: logger.With().Str("component", "goose").Logger()}
}

func (a *GooseAdapter) Fatalf(format string, v ...interface{}) {
	a.logger.Fatal().Msg(fmt.Sprintf(format, v...))
}

func (a *GooseAdapter) Printf(format string, v ...interface{}) {
	a.logger.Info().Msg(fmt.Sprintf(format, v...))
}
