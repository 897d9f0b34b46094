package store

import (
	"database/sql"
	"fmt"

	"github.com/vivalabs/viva/internal/models"
)

// surveyStatsQuery aggregates per-survey dashboard figures. It carries no
// placeholders so the SQLite and Postgres backends share it verbatim. Each
// session's probe count is its turn count capped at max_probes: the closing
// answer records a turn but consumes no probe.
const surveyStatsQuery = `
	SELECT s.id, s.topic, s.max_probes, s.language, s.status, s.created_at,
	       (SELECT COUNT(*) FROM sessions WHERE survey_id = s.id),
	       (SELECT COUNT(*) FROM sessions WHERE survey_id = s.id AND status = 'complete'),
	       (SELECT COALESCE(SUM(CASE WHEN c.cnt > s.max_probes THEN s.max_probes ELSE c.cnt END), 0)
	        FROM (SELECT COUNT(*) AS cnt FROM turns t JOIN sessions ss ON t.session_id = ss.id
	              WHERE ss.survey_id = s.id GROUP BY t.session_id) c)
	FROM surveys s
	ORDER BY s.created_at DESC`

// scanSurvey scans a Survey from a single sql.Row.
func scanSurvey(row *sql.Row) (*models.Survey, error) {
	var sv models.Survey
	var language, status string
	if err := row.Scan(&sv.ID, &sv.Topic, &sv.MaxProbes, &language, &status, &sv.CreatedAt); err != nil {
		return nil, err
	}
	sv.Language = models.Language(language)
	sv.Status = models.SurveyStatus(status)
	return &sv, nil
}

// scanSession scans an InterviewSession from a single sql.Row.
func scanSession(row *sql.Row) (*models.InterviewSession, error) {
	var sess models.InterviewSession
	var status string
	if err := row.Scan(&sess.ID, &sess.SurveyID, &sess.RespondentID, &sess.CurrentQuestion, &status, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return nil, err
	}
	sess.Status = models.SessionStatus(status)
	return &sess, nil
}

// scanTurns drains a turn result set into a slice ordered as queried.
func scanTurns(rows *sql.Rows) ([]models.Turn, error) {
	var turns []models.Turn
	for rows.Next() {
		var t models.Turn
		var modality string
		if err := rows.Scan(&t.SessionID, &t.Seq, &t.Question, &t.Answer, &modality, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan turn row: %w", err)
		}
		t.Modality = models.Modality(modality)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turn rows: %w", err)
	}
	return turns, nil
}

// scanSurveyStats drains the surveyStatsQuery result set, deriving the
// average probe count from the capped per-session totals.
func scanSurveyStats(rows *sql.Rows) ([]models.SurveyStats, error) {
	stats := make([]models.SurveyStats, 0)
	for rows.Next() {
		var st models.SurveyStats
		var language, status string
		var totalProbes int
		if err := rows.Scan(&st.Survey.ID, &st.Survey.Topic, &st.Survey.MaxProbes, &language, &status,
			&st.Survey.CreatedAt, &st.SessionCount, &st.CompletedSessions, &totalProbes); err != nil {
			return nil, fmt.Errorf("failed to scan survey stats row: %w", err)
		}
		st.Survey.Language = models.Language(language)
		st.Survey.Status = models.SurveyStatus(status)
		if st.SessionCount > 0 {
			st.AvgProbeCount = float64(totalProbes) / float64(st.SessionCount)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate survey stats rows: %w", err)
	}
	return stats, nil
}

// requireRowAffected converts a zero-row UPDATE/DELETE into a not-found error.
func requireRowAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s not found", kind, id)
	}
	return nil
}
