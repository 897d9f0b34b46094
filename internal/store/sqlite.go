// Package store provides storage backends for VIVA.
//
// This file implements the SQLite-backed transcript store, the default for
// single-node deployments.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/vivalabs/viva/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Connection parameters go on the DSN so every pooled connection gets
	// them. WAL keeps dashboard reads from blocking interview writes; the
	// busy timeout covers the rare overlap of two sessions' append
	// transactions; foreign keys enable the survey delete cascade.
	connDSN := dsn + "?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", connDSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite store ready", "path", dsn)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateSurvey(sv models.Survey) error {
	_, err := s.db.Exec(`INSERT INTO surveys (id, topic, max_probes, language, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sv.ID, sv.Topic, sv.MaxProbes, string(sv.Language), string(sv.Status), sv.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateSurvey failed", "error", err, "surveyID", sv.ID)
		return fmt.Errorf("failed to insert survey %s: %w", sv.ID, err)
	}
	slog.Debug("SQLiteStore CreateSurvey succeeded", "surveyID", sv.ID)
	return nil
}

func (s *SQLiteStore) GetSurvey(id string) (*models.Survey, error) {
	row := s.db.QueryRow(`SELECT id, topic, max_probes, language, status, created_at FROM surveys WHERE id = ?`, id)
	sv, err := scanSurvey(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSurvey not found", "surveyID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSurvey failed", "error", err, "surveyID", id)
		return nil, fmt.Errorf("failed to query survey %s: %w", id, err)
	}
	return sv, nil
}

func (s *SQLiteStore) ListSurveysWithStats() ([]models.SurveyStats, error) {
	rows, err := s.db.Query(surveyStatsQuery)
	if err != nil {
		slog.Error("SQLiteStore ListSurveysWithStats query failed", "error", err)
		return nil, fmt.Errorf("failed to query survey stats: %w", err)
	}
	defer rows.Close()
	stats, err := scanSurveyStats(rows)
	if err != nil {
		slog.Error("SQLiteStore ListSurveysWithStats scan failed", "error", err)
		return nil, err
	}
	slog.Debug("SQLiteStore ListSurveysWithStats succeeded", "count", len(stats))
	return stats, nil
}

func (s *SQLiteStore) CompleteSurvey(id string) error {
	res, err := s.db.Exec(`UPDATE surveys SET status = ? WHERE id = ?`, string(models.SurveyStatusComplete), id)
	if err != nil {
		slog.Error("SQLiteStore CompleteSurvey failed", "error", err, "surveyID", id)
		return fmt.Errorf("failed to complete survey %s: %w", id, err)
	}
	return requireRowAffected(res, "survey", id)
}

func (s *SQLiteStore) DeleteSurvey(id string) error {
	// ON DELETE CASCADE removes the survey's sessions and their turns.
	res, err := s.db.Exec(`DELETE FROM surveys WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore DeleteSurvey failed", "error", err, "surveyID", id)
		return fmt.Errorf("failed to delete survey %s: %w", id, err)
	}
	slog.Debug("SQLiteStore DeleteSurvey succeeded", "surveyID", id)
	return requireRowAffected(res, "survey", id)
}

func (s *SQLiteStore) CreateSession(sess models.InterviewSession) error {
	_, err := s.db.Exec(`INSERT INTO sessions (id, survey_id, respondent_id, current_question, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.SurveyID, sess.RespondentID, sess.CurrentQuestion, string(sess.Status), sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateSession failed", "error", err, "sessionID", sess.ID)
		return fmt.Errorf("failed to insert session %s: %w", sess.ID, err)
	}
	slog.Debug("SQLiteStore CreateSession succeeded", "sessionID", sess.ID, "surveyID", sess.SurveyID)
	return nil
}

func (s *SQLiteStore) GetSession(id string) (*models.InterviewSession, error) {
	row := s.db.QueryRow(`SELECT id, survey_id, respondent_id, current_question, status, created_at, updated_at FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSession not found", "sessionID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "sessionID", id)
		return nil, fmt.Errorf("failed to query session %s: %w", id, err)
	}
	return sess, nil
}

func (s *SQLiteStore) SetCurrentQuestion(sessionID, question string) error {
	res, err := s.db.Exec(`UPDATE sessions SET current_question = ?, updated_at = ? WHERE id = ?`, question, time.Now(), sessionID)
	if err != nil {
		slog.Error("SQLiteStore SetCurrentQuestion failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to update session %s question: %w", sessionID, err)
	}
	return requireRowAffected(res, "session", sessionID)
}

// CompleteSession marks a session complete. Repeating the call is a no-op.
func (s *SQLiteStore) CompleteSession(sessionID string) error {
	res, err := s.db.Exec(`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`, string(models.SessionStatusComplete), time.Now(), sessionID)
	if err != nil {
		slog.Error("SQLiteStore CompleteSession failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to complete session %s: %w", sessionID, err)
	}
	slog.Debug("SQLiteStore CompleteSession succeeded", "sessionID", sessionID)
	return requireRowAffected(res, "session", sessionID)
}

// AppendTurn assigns the next sequence index and inserts the turn in a
// single transaction, so indices stay contiguous even with concurrent
// writers on the same session.
func (s *SQLiteStore) AppendTurn(t models.Turn) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("SQLiteStore AppendTurn begin failed", "error", err, "sessionID", t.SessionID)
		return 0, fmt.Errorf("failed to begin append transaction: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRow(`SELECT status FROM sessions WHERE id = ?`, t.SessionID).Scan(&status)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("session %s not found", t.SessionID)
	}
	if err != nil {
		slog.Error("SQLiteStore AppendTurn status check failed", "error", err, "sessionID", t.SessionID)
		return 0, fmt.Errorf("failed to check session %s status: %w", t.SessionID, err)
	}
	if status == string(models.SessionStatusComplete) {
		return 0, fmt.Errorf("session %s is complete, no more turns may be appended", t.SessionID)
	}

	var seq int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(seq) + 1, 0) FROM turns WHERE session_id = ?`, t.SessionID).Scan(&seq); err != nil {
		slog.Error("SQLiteStore AppendTurn seq computation failed", "error", err, "sessionID", t.SessionID)
		return 0, fmt.Errorf("failed to compute next sequence index: %w", err)
	}

	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	if _, err := tx.Exec(`INSERT INTO turns (session_id, seq, question, answer, modality, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		t.SessionID, seq, t.Question, t.Answer, string(t.Modality), t.Timestamp); err != nil {
		slog.Error("SQLiteStore AppendTurn insert failed", "error", err, "sessionID", t.SessionID, "seq", seq)
		return 0, fmt.Errorf("failed to insert turn %d for session %s: %w", seq, t.SessionID, err)
	}
	if _, err := tx.Exec(`UPDATE sessions SET updated_at = ? WHERE id = ?`, time.Now(), t.SessionID); err != nil {
		slog.Error("SQLiteStore AppendTurn session touch failed", "error", err, "sessionID", t.SessionID)
		return 0, fmt.Errorf("failed to touch session %s: %w", t.SessionID, err)
	}

	if err := tx.Commit(); err != nil {
		slog.Error("SQLiteStore AppendTurn commit failed", "error", err, "sessionID", t.SessionID)
		return 0, fmt.Errorf("failed to commit turn append: %w", err)
	}
	slog.Debug("SQLiteStore AppendTurn succeeded", "sessionID", t.SessionID, "seq", seq)
	return seq, nil
}

func (s *SQLiteStore) GetTurns(sessionID string) ([]models.Turn, error) {
	rows, err := s.db.Query(`SELECT session_id, seq, question, answer, modality, timestamp FROM turns WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		slog.Error("SQLiteStore GetTurns query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query turns for session %s: %w", sessionID, err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func (s *SQLiteStore) CountTurns(sessionID string) (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM turns WHERE session_id = ?`, sessionID).Scan(&count); err != nil {
		slog.Error("SQLiteStore CountTurns failed", "error", err, "sessionID", sessionID)
		return 0, fmt.Errorf("failed to count turns for session %s: %w", sessionID, err)
	}
	return count, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
