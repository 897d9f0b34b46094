// Package interview implements the adaptive interview control flow: for each
// respondent turn it records the answer, checks the probe budget, consults
// the question generator, and decides whether the session continues.
package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vivalabs/viva/internal/models"
	"github.com/vivalabs/viva/internal/store"
	"github.com/vivalabs/viva/internal/util"
)

// Probe is the question generator's verdict for one turn: either a follow-up
// question or a signal that further probing is uninformative.
type Probe struct {
	Question  string
	Terminate bool
}

// QuestionGenerator produces the next follow-up question from the interview
// context. Implementations must not mutate stored state; all persistence
// lives in the Controller.
type QuestionGenerator interface {
	GenerateNext(ctx context.Context, topic string, language models.Language, history []models.Turn) (Probe, error)
}

// TurnResult is the outcome of one submitted answer: the next question while
// the session stays active, or a localized closing message once it completes.
type TurnResult struct {
	NextQuestion   string `json:"next_question,omitempty"`
	Complete       bool   `json:"complete"`
	ClosingMessage string `json:"closing_message,omitempty"`
}

// closingMessages holds the per-language interview completion line.
var closingMessages = map[models.Language]string{
	models.LanguageEnglish: "Thank you for your participation! This interview is now complete.",
	models.LanguageSpanish: "¡Gracias por su participación! Esta entrevista ha terminado.",
	models.LanguageFrench:  "Merci pour votre participation ! Cet entretien est maintenant terminé.",
	models.LanguageGerman:  "Vielen Dank für Ihre Teilnahme! Dieses Interview ist nun abgeschlossen.",
	models.LanguageHindi:   "आपकी भागीदारी के लिए धन्यवाद! यह साक्षात्कार अब पूरा हो गया है।",
	models.LanguageChinese: "感谢您的参与！本次访谈到此结束。",
}

// ClosingMessage returns the completion line for a language, falling back to
// English for anything unrecognized.
func ClosingMessage(language models.Language) string {
	if msg, ok := closingMessages[language]; ok {
		return msg
	}
	return closingMessages[models.LanguageEnglish]
}

// Controller drives respondents through survey interviews. A keyed mutex
// serializes turns within one session; independent sessions proceed
// concurrently.
type Controller struct {
	st  store.Store
	gen QuestionGenerator

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewController creates an interview controller with its dependencies.
func NewController(st store.Store, gen QuestionGenerator) *Controller {
	return &Controller{
		st:    st,
		gen:   gen,
		locks: make(map[string]*sync.Mutex),
	}
}

// sessionLock returns the mutex serializing writes for one session.
func (c *Controller) sessionLock(sessionID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[sessionID] = lock
	}
	return lock
}

// StartSession creates a new interview session for a survey and returns the
// session ID together with the opening question (the survey topic).
func (c *Controller) StartSession(ctx context.Context, surveyID, respondentID string) (string, string, error) {
	slog.Debug("Controller.StartSession: starting session", "surveyID", surveyID, "respondentID", respondentID)
	if respondentID == "" {
		return "", "", models.ErrEmptyRespondentID
	}

	survey, err := c.st.GetSurvey(surveyID)
	if err != nil {
		return "", "", fmt.Errorf("failed to load survey: %w", err)
	}
	if survey == nil {
		return "", "", models.ErrSurveyNotFound
	}
	if survey.Status == models.SurveyStatusComplete {
		return "", "", models.ErrSurveyComplete
	}

	now := time.Now()
	sess := models.InterviewSession{
		ID:              util.GenerateSessionID(),
		SurveyID:        survey.ID,
		RespondentID:    respondentID,
		CurrentQuestion: survey.Topic,
		Status:          models.SessionStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := c.st.CreateSession(sess); err != nil {
		return "", "", fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("Controller.StartSession: session started", "sessionID", sess.ID, "surveyID", survey.ID)
	return sess.ID, survey.Topic, nil
}

// SubmitAnswer records a respondent answer and advances the interview. The
// answer is persisted before the generator is consulted, so an upstream
// failure never loses respondent data: the session stays active and a retry
// resumes the recorded turn instead of appending a duplicate, consuming no
// extra probe budget.
func (c *Controller) SubmitAnswer(ctx context.Context, sessionID, answerText string, modality models.Modality) (TurnResult, error) {
	slog.Debug("Controller.SubmitAnswer: processing answer", "sessionID", sessionID, "modality", modality)
	if answerText == "" {
		return TurnResult{}, models.ErrEmptyAnswer
	}
	if len(answerText) > models.MaxAnswerLength {
		return TurnResult{}, models.ErrAnswerTooLong
	}
	if !models.IsValidModality(modality) {
		return TurnResult{}, models.ErrInvalidModality
	}

	lock := c.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := c.st.GetSession(sessionID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil {
		return TurnResult{}, models.ErrSessionNotFound
	}
	if sess.Status == models.SessionStatusComplete {
		return TurnResult{}, models.ErrSessionAlreadyComplete
	}

	survey, err := c.st.GetSurvey(sess.SurveyID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("failed to load survey: %w", err)
	}
	if survey == nil {
		return TurnResult{}, models.ErrSurveyNotFound
	}

	history, err := c.st.GetTurns(sessionID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("failed to load turn history: %w", err)
	}

	// Durably record the answer before consulting the generator. The pending
	// question only matches the last recorded turn when a previous submission
	// recorded this answer and then failed at the generator: the question
	// advances on every successful turn. On that retry path the recorded turn
	// is resumed rather than appended again, so a retry costs no probe. A
	// turn's sequence index equals the number of probes already issued,
	// because the opening question (seq 0) is the survey topic rather than a
	// generated probe.
	var seq int
	if n := len(history); n > 0 && history[n-1].Question == sess.CurrentQuestion {
		seq = history[n-1].Seq
		slog.Debug("Controller.SubmitAnswer: resuming previously recorded turn", "sessionID", sessionID, "seq", seq)
	} else {
		turn := models.Turn{
			SessionID: sessionID,
			Question:  sess.CurrentQuestion,
			Answer:    answerText,
			Modality:  modality,
			Timestamp: time.Now(),
		}
		seq, err = c.st.AppendTurn(turn)
		if err != nil {
			return TurnResult{}, fmt.Errorf("failed to append turn: %w", err)
		}
		turn.Seq = seq
		history = append(history, turn)
		slog.Debug("Controller.SubmitAnswer: turn recorded", "sessionID", sessionID, "seq", seq)
	}

	if seq >= survey.MaxProbes {
		return c.completeSession(sessionID, survey.Language, "probe budget exhausted")
	}

	probe, err := c.gen.GenerateNext(ctx, survey.Topic, survey.Language, history)
	if err != nil {
		if !errors.Is(err, models.ErrUpstreamUnavailable) {
			err = fmt.Errorf("%w: %v", models.ErrUpstreamUnavailable, err)
		}
		slog.Warn("Controller.SubmitAnswer: generator unavailable, answer preserved for retry", "error", err, "sessionID", sessionID, "seq", seq)
		return TurnResult{}, err
	}

	if probe.Terminate {
		return c.completeSession(sessionID, survey.Language, "generator signaled termination")
	}

	if err := c.st.SetCurrentQuestion(sessionID, probe.Question); err != nil {
		return TurnResult{}, fmt.Errorf("failed to persist next question: %w", err)
	}
	slog.Info("Controller.SubmitAnswer: probe issued", "sessionID", sessionID, "probe", seq+1)
	return TurnResult{NextQuestion: probe.Question}, nil
}

// completeSession transitions a session to complete and builds the closing
// result. CompleteSession is idempotent at the store, so a retried final
// answer cannot fail here.
func (c *Controller) completeSession(sessionID string, language models.Language, reason string) (TurnResult, error) {
	if err := c.st.CompleteSession(sessionID); err != nil {
		return TurnResult{}, fmt.Errorf("failed to complete session: %w", err)
	}
	slog.Info("Controller.SubmitAnswer: session complete", "sessionID", sessionID, "reason", reason)
	return TurnResult{Complete: true, ClosingMessage: ClosingMessage(language)}, nil
}

// ProbeCount reports how many probes a session has consumed. It is a pure
// read over the transcript store: the count is derived from recorded turns
// so there is no second source of truth to drift.
func (c *Controller) ProbeCount(ctx context.Context, sessionID string) (int, error) {
	sess, err := c.st.GetSession(sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil {
		return 0, models.ErrSessionNotFound
	}
	turns, err := c.st.CountTurns(sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to count turns: %w", err)
	}
	survey, err := c.st.GetSurvey(sess.SurveyID)
	if err != nil {
		return 0, fmt.Errorf("failed to load survey: %w", err)
	}
	if survey != nil && turns > survey.MaxProbes {
		// The closing answer is recorded as a turn but consumes no probe.
		return survey.MaxProbes, nil
	}
	return turns, nil
}

// Transcript returns a session with its ordered turns.
func (c *Controller) Transcript(ctx context.Context, sessionID string) (*models.InterviewSession, []models.Turn, error) {
	sess, err := c.st.GetSession(sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil {
		return nil, nil, models.ErrSessionNotFound
	}
	turns, err := c.st.GetTurns(sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load turns: %w", err)
	}
	return sess, turns, nil
}
