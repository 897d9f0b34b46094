// Package store provides storage backends for VIVA surveys, interview
// sessions, and transcript turns.
//
// It includes an in-memory store for tests and development, plus persistent
// SQLite and PostgreSQL backends sharing the same contract.
package store

import (
	"strings"

	"github.com/vivalabs/viva/internal/models"
)

// Store defines the transcript storage contract shared by all backends.
//
// AppendTurn assigns the turn's sequence index atomically: indices within a
// session are contiguous starting at 0, and appends to a complete session
// are rejected. CompleteSession is idempotent so interview-level retries are
// safe. GetSurvey and GetSession return (nil, nil) when no row exists;
// callers translate that to their domain errors.
type Store interface {
	CreateSurvey(s models.Survey) error
	GetSurvey(id string) (*models.Survey, error)
	ListSurveysWithStats() ([]models.SurveyStats, error)
	CompleteSurvey(id string) error
	DeleteSurvey(id string) error

	CreateSession(sess models.InterviewSession) error
	GetSession(id string) (*models.InterviewSession, error)
	SetCurrentQuestion(sessionID, question string) error
	CompleteSession(sessionID string) error

	AppendTurn(t models.Turn) (int, error)
	GetTurns(sessionID string) ([]models.Turn, error)
	CountTurns(sessionID string) (int, error)

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option configures store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". PostgreSQL DSNs
// use a URL scheme or key=value form; anything else is treated as a SQLite
// file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
