// Package store provides storage backends for VIVA.
//
// This file implements the PostgreSQL-backed transcript store for
// deployments that outgrow a single SQLite file.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/vivalabs/viva/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres store ready")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) CreateSurvey(sv models.Survey) error {
	_, err := s.db.Exec(`INSERT INTO surveys (id, topic, max_probes, language, status, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		sv.ID, sv.Topic, sv.MaxProbes, string(sv.Language), string(sv.Status), sv.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateSurvey failed", "error", err, "surveyID", sv.ID)
		return fmt.Errorf("failed to insert survey %s: %w", sv.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetSurvey(id string) (*models.Survey, error) {
	row := s.db.QueryRow(`SELECT id, topic, max_probes, language, status, created_at FROM surveys WHERE id = $1`, id)
	sv, err := scanSurvey(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSurvey failed", "error", err, "surveyID", id)
		return nil, fmt.Errorf("failed to query survey %s: %w", id, err)
	}
	return sv, nil
}

func (s *PostgresStore) ListSurveysWithStats() ([]models.SurveyStats, error) {
	rows, err := s.db.Query(surveyStatsQuery)
	if err != nil {
		slog.Error("PostgresStore ListSurveysWithStats query failed", "error", err)
		return nil, fmt.Errorf("failed to query survey stats: %w", err)
	}
	defer rows.Close()
	stats, err := scanSurveyStats(rows)
	if err != nil {
		slog.Error("PostgresStore ListSurveysWithStats scan failed", "error", err)
		return nil, err
	}
	return stats, nil
}

func (s *PostgresStore) CompleteSurvey(id string) error {
	res, err := s.db.Exec(`UPDATE surveys SET status = $1 WHERE id = $2`, string(models.SurveyStatusComplete), id)
	if err != nil {
		slog.Error("PostgresStore CompleteSurvey failed", "error", err, "surveyID", id)
		return fmt.Errorf("failed to complete survey %s: %w", id, err)
	}
	return requireRowAffected(res, "survey", id)
}

func (s *PostgresStore) DeleteSurvey(id string) error {
	res, err := s.db.Exec(`DELETE FROM surveys WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore DeleteSurvey failed", "error", err, "surveyID", id)
		return fmt.Errorf("failed to delete survey %s: %w", id, err)
	}
	return requireRowAffected(res, "survey", id)
}

func (s *PostgresStore) CreateSession(sess models.InterviewSession) error {
	_, err := s.db.Exec(`INSERT INTO sessions (id, survey_id, respondent_id, current_question, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sess.ID, sess.SurveyID, sess.RespondentID, sess.CurrentQuestion, string(sess.Status), sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateSession failed", "error", err, "sessionID", sess.ID)
		return fmt.Errorf("failed to insert session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetSession(id string) (*models.InterviewSession, error) {
	row := s.db.QueryRow(`SELECT id, survey_id, respondent_id, current_question, status, created_at, updated_at FROM sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "sessionID", id)
		return nil, fmt.Errorf("failed to query session %s: %w", id, err)
	}
	return sess, nil
}

func (s *PostgresStore) SetCurrentQuestion(sessionID, question string) error {
	res, err := s.db.Exec(`UPDATE sessions SET current_question = $1, updated_at = $2 WHERE id = $3`, question, time.Now(), sessionID)
	if err != nil {
		slog.Error("PostgresStore SetCurrentQuestion failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to update session %s question: %w", sessionID, err)
	}
	return requireRowAffected(res, "session", sessionID)
}

// CompleteSession marks a session complete. Repeating the call is a no-op.
func (s *PostgresStore) CompleteSession(sessionID string) error {
	res, err := s.db.Exec(`UPDATE sessions SET status = $1, updated_at = $2 WHERE id = $3`, string(models.SessionStatusComplete), time.Now(), sessionID)
	if err != nil {
		slog.Error("PostgresStore CompleteSession failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to complete session %s: %w", sessionID, err)
	}
	return requireRowAffected(res, "session", sessionID)
}

// AppendTurn assigns the next sequence index inside a transaction. The
// session row is locked FOR UPDATE so concurrent appends to one session
// serialize at the database even without the controller's session lock.
func (s *PostgresStore) AppendTurn(t models.Turn) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("PostgresStore AppendTurn begin failed", "error", err, "sessionID", t.SessionID)
		return 0, fmt.Errorf("failed to begin append transaction: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRow(`SELECT status FROM sessions WHERE id = $1 FOR UPDATE`, t.SessionID).Scan(&status)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("session %s not found", t.SessionID)
	}
	if err != nil {
		slog.Error("PostgresStore AppendTurn status check failed", "error", err, "sessionID", t.SessionID)
		return 0, fmt.Errorf("failed to check session %s status: %w", t.SessionID, err)
	}
	if status == string(models.SessionStatusComplete) {
		return 0, fmt.Errorf("session %s is complete, no more turns may be appended", t.SessionID)
	}

	var seq int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(seq) + 1, 0) FROM turns WHERE session_id = $1`, t.SessionID).Scan(&seq); err != nil {
		slog.Error("PostgresStore AppendTurn seq computation failed", "error", err, "sessionID", t.SessionID)
		return 0, fmt.Errorf("failed to compute next sequence index: %w", err)
	}

	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	if _, err := tx.Exec(`INSERT INTO turns (session_id, seq, question, answer, modality, timestamp) VALUES ($1, $2, $3, $4, $5, $6)`,
		t.SessionID, seq, t.Question, t.Answer, string(t.Modality), t.Timestamp); err != nil {
		slog.Error("PostgresStore AppendTurn insert failed", "error", err, "sessionID", t.SessionID, "seq", seq)
		return 0, fmt.Errorf("failed to insert turn %d for session %s: %w", seq, t.SessionID, err)
	}
	if _, err := tx.Exec(`UPDATE sessions SET updated_at = $1 WHERE id = $2`, time.Now(), t.SessionID); err != nil {
		slog.Error("PostgresStore AppendTurn session touch failed", "error", err, "sessionID", t.SessionID)
		return 0, fmt.Errorf("failed to touch session %s: %w", t.SessionID, err)
	}

	if err := tx.Commit(); err != nil {
		slog.Error("PostgresStore AppendTurn commit failed", "error", err, "sessionID", t.SessionID)
		return 0, fmt.Errorf("failed to commit turn append: %w", err)
	}
	return seq, nil
}

func (s *PostgresStore) GetTurns(sessionID string) ([]models.Turn, error) {
	rows, err := s.db.Query(`SELECT session_id, seq, question, answer, modality, timestamp FROM turns WHERE session_id = $1 ORDER BY seq ASC`, sessionID)
	if err != nil {
		slog.Error("PostgresStore GetTurns query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query turns for session %s: %w", sessionID, err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func (s *PostgresStore) CountTurns(sessionID string) (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM turns WHERE session_id = $1`, sessionID).Scan(&count); err != nil {
		slog.Error("PostgresStore CountTurns failed", "error", err, "sessionID", sessionID)
		return 0, fmt.Errorf("failed to count turns for session %s: %w", sessionID, err)
	}
	return count, nil
}

// Close closes the Postgres connection pool.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
