package interview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vivalabs/viva/internal/models"
	"github.com/vivalabs/viva/internal/store"
)

// mockGenerator returns scripted probes and records how often it was called.
type mockGenerator struct {
	mu        sync.Mutex
	probes    []Probe
	err       error
	callCount int
}

func (m *mockGenerator) GenerateNext(ctx context.Context, topic string, language models.Language, history []models.Turn) (Probe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount++
	if m.err != nil {
		return Probe{}, m.err
	}
	if len(m.probes) == 0 {
		return Probe{Question: fmt.Sprintf("Follow-up %d?", m.callCount)}, nil
	}
	probe := m.probes[0]
	if len(m.probes) > 1 {
		m.probes = m.probes[1:]
	}
	return probe, nil
}

func (m *mockGenerator) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

func seedSurvey(t *testing.T, st store.Store, maxProbes int) models.Survey {
	t.Helper()
	survey := models.Survey{
		ID:        "sv-" + t.Name(),
		Topic:     "How do you feel about remote work?",
		MaxProbes: maxProbes,
		Language:  models.LanguageEnglish,
		Status:    models.SurveyStatusActive,
		CreatedAt: time.Now(),
	}
	if err := st.CreateSurvey(survey); err != nil {
		t.Fatalf("failed to seed survey: %v", err)
	}
	return survey
}

func TestStartSession(t *testing.T) {
	st := store.NewInMemoryStore()
	ctrl := NewController(st, &mockGenerator{})
	survey := seedSurvey(t, st, 3)

	sessionID, firstQuestion, err := ctrl.StartSession(context.Background(), survey.ID, "r-1")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if firstQuestion != survey.Topic {
		t.Errorf("expected first question to be the topic, got %q", firstQuestion)
	}

	sess, err := st.GetSession(sessionID)
	if err != nil || sess == nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if sess.CurrentQuestion != survey.Topic {
		t.Errorf("expected pending question %q, got %q", survey.Topic, sess.CurrentQuestion)
	}
	if sess.Status != models.SessionStatusActive {
		t.Errorf("expected active session, got %s", sess.Status)
	}
}

func TestStartSessionErrors(t *testing.T) {
	st := store.NewInMemoryStore()
	ctrl := NewController(st, &mockGenerator{})
	survey := seedSurvey(t, st, 3)

	if _, _, err := ctrl.StartSession(context.Background(), "no-such-survey", "r-1"); !errors.Is(err, models.ErrSurveyNotFound) {
		t.Errorf("expected ErrSurveyNotFound, got %v", err)
	}
	if _, _, err := ctrl.StartSession(context.Background(), survey.ID, ""); !errors.Is(err, models.ErrEmptyRespondentID) {
		t.Errorf("expected ErrEmptyRespondentID, got %v", err)
	}

	if err := st.CompleteSurvey(survey.ID); err != nil {
		t.Fatalf("failed to complete survey: %v", err)
	}
	if _, _, err := ctrl.StartSession(context.Background(), survey.ID, "r-1"); !errors.Is(err, models.ErrSurveyComplete) {
		t.Errorf("expected ErrSurveyComplete for closed survey, got %v", err)
	}
}

func TestSubmitAnswerIssuesProbe(t *testing.T) {
	st := store.NewInMemoryStore()
	gen := &mockGenerator{probes: []Probe{{Question: "Why is that?"}}}
	ctrl := NewController(st, gen)
	survey := seedSurvey(t, st, 3)

	sessionID, _, err := ctrl.StartSession(context.Background(), survey.ID, "r-1")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	result, err := ctrl.SubmitAnswer(context.Background(), sessionID, "I enjoy the flexibility.", models.ModalityText)
	if err != nil {
		t.Fatalf("SubmitAnswer failed: %v", err)
	}
	if result.Complete {
		t.Error("expected session to stay active after first answer")
	}
	if result.NextQuestion != "Why is that?" {
		t.Errorf("expected generated probe, got %q", result.NextQuestion)
	}

	turns, err := st.GetTurns(sessionID)
	if err != nil {
		t.Fatalf("GetTurns failed: %v", err)
	}
	if len(turns) != 1 || turns[0].Seq != 0 {
		t.Fatalf("expected one turn with seq 0, got %+v", turns)
	}
	if turns[0].Question != survey.Topic || turns[0].Answer != "I enjoy the flexibility." {
		t.Errorf("turn recorded the wrong pair: %+v", turns[0])
	}

	sess, _ := st.GetSession(sessionID)
	if sess.CurrentQuestion != "Why is that?" {
		t.Errorf("pending question not advanced, got %q", sess.CurrentQuestion)
	}
}

// The probe budget counts generated follow-ups only: with maxProbes=2 the
// respondent answers 3 times (topic plus 2 probes) and the final answer
// completes the session without consulting the generator.
func TestSubmitAnswerProbeBudget(t *testing.T) {
	st := store.NewInMemoryStore()
	gen := &mockGenerator{}
	ctrl := NewController(st, gen)
	survey := seedSurvey(t, st, 2)

	sessionID, _, err := ctrl.StartSession(context.Background(), survey.ID, "r-1")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		result, err := ctrl.SubmitAnswer(context.Background(), sessionID, fmt.Sprintf("answer %d", i+1), models.ModalityText)
		if err != nil {
			t.Fatalf("SubmitAnswer %d failed: %v", i+1, err)
		}
		if result.Complete {
			t.Fatalf("session completed early on answer %d", i+1)
		}
		if result.NextQuestion == "" {
			t.Fatalf("expected a probe on answer %d", i+1)
		}
	}

	result, err := ctrl.SubmitAnswer(context.Background(), sessionID, "final answer", models.ModalityText)
	if err != nil {
		t.Fatalf("final SubmitAnswer failed: %v", err)
	}
	if !result.Complete {
		t.Error("expected session to complete after probe budget exhausted")
	}
	if result.ClosingMessage != ClosingMessage(models.LanguageEnglish) {
		t.Errorf("unexpected closing message %q", result.ClosingMessage)
	}
	if gen.calls() != 2 {
		t.Errorf("generator must not be consulted for the closing answer, got %d calls", gen.calls())
	}

	// All three answers are on the transcript.
	turns, _ := st.GetTurns(sessionID)
	if len(turns) != 3 {
		t.Errorf("expected 3 recorded turns, got %d", len(turns))
	}
	count, err := ctrl.ProbeCount(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("ProbeCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected probe count capped at 2, got %d", count)
	}
}

func TestSubmitAnswerAfterComplete(t *testing.T) {
	st := store.NewInMemoryStore()
	ctrl := NewController(st, &mockGenerator{})
	survey := seedSurvey(t, st, 1)

	sessionID, _, err := ctrl.StartSession(context.Background(), survey.ID, "r-1")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if _, err := ctrl.SubmitAnswer(context.Background(), sessionID, "a1", models.ModalityText); err != nil {
		t.Fatalf("SubmitAnswer failed: %v", err)
	}
	result, err := ctrl.SubmitAnswer(context.Background(), sessionID, "a2", models.ModalityText)
	if err != nil {
		t.Fatalf("SubmitAnswer failed: %v", err)
	}
	if !result.Complete {
		t.Fatal("expected completion after exhausting probe budget of 1")
	}

	if _, err := ctrl.SubmitAnswer(context.Background(), sessionID, "a3", models.ModalityText); !errors.Is(err, models.ErrSessionAlreadyComplete) {
		t.Errorf("expected ErrSessionAlreadyComplete, got %v", err)
	}
	if count, _ := st.CountTurns(sessionID); count != 2 {
		t.Errorf("rejected answer must not be recorded, turn count = %d", count)
	}
}

func TestSubmitAnswerValidation(t *testing.T) {
	st := store.NewInMemoryStore()
	ctrl := NewController(st, &mockGenerator{})

	if _, err := ctrl.SubmitAnswer(context.Background(), "sess", "", models.ModalityText); !errors.Is(err, models.ErrEmptyAnswer) {
		t.Errorf("expected ErrEmptyAnswer, got %v", err)
	}
	if _, err := ctrl.SubmitAnswer(context.Background(), "sess", "hi", models.Modality("video")); !errors.Is(err, models.ErrInvalidModality) {
		t.Errorf("expected ErrInvalidModality, got %v", err)
	}
	if _, err := ctrl.SubmitAnswer(context.Background(), "no-such-session", "hi", models.ModalityText); !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

// A generator outage must not lose the respondent's answer: the turn stays
// recorded, the session stays active, and the retry consults the generator
// without appending a duplicate.
func TestSubmitAnswerGeneratorFailurePreservesTurn(t *testing.T) {
	st := store.NewInMemoryStore()
	gen := &mockGenerator{err: errors.New("connection refused")}
	ctrl := NewController(st, gen)
	survey := seedSurvey(t, st, 3)

	sessionID, _, err := ctrl.StartSession(context.Background(), survey.ID, "r-1")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	_, err = ctrl.SubmitAnswer(context.Background(), sessionID, "my answer", models.ModalityText)
	if !errors.Is(err, models.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}

	sess, _ := st.GetSession(sessionID)
	if sess.Status != models.SessionStatusActive {
		t.Errorf("session must stay active after generator failure, got %s", sess.Status)
	}
	turns, _ := st.GetTurns(sessionID)
	if len(turns) != 1 || turns[0].Answer != "my answer" {
		t.Fatalf("answer not preserved across failure: %+v", turns)
	}

	// Recovery: the generator comes back and the retry advances the interview
	// from the recorded turn without appending a duplicate.
	gen.mu.Lock()
	gen.err = nil
	gen.mu.Unlock()
	result, err := ctrl.SubmitAnswer(context.Background(), sessionID, "my answer", models.ModalityText)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if result.Complete || result.NextQuestion == "" {
		t.Errorf("expected a probe on retry, got %+v", result)
	}
	turns, _ = st.GetTurns(sessionID)
	if len(turns) != 1 {
		t.Errorf("retry must not append a duplicate turn, got %d turns", len(turns))
	}
}

// With a budget of one probe, a transient generator outage and retry must
// still yield that probe: the retry resumes the recorded turn rather than
// consuming the budget on a duplicate.
func TestSubmitAnswerRetryConsumesNoBudget(t *testing.T) {
	st := store.NewInMemoryStore()
	gen := &mockGenerator{err: errors.New("connection refused")}
	ctrl := NewController(st, gen)
	survey := seedSurvey(t, st, 1)

	sessionID, _, err := ctrl.StartSession(context.Background(), survey.ID, "r-1")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	if _, err := ctrl.SubmitAnswer(context.Background(), sessionID, "my answer", models.ModalityText); !errors.Is(err, models.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}

	gen.mu.Lock()
	gen.err = nil
	gen.mu.Unlock()
	result, err := ctrl.SubmitAnswer(context.Background(), sessionID, "my answer", models.ModalityText)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if result.Complete {
		t.Fatal("retry must not complete the session: the probe was never issued")
	}
	if result.NextQuestion == "" {
		t.Fatal("expected the probe on retry")
	}
	if gen.calls() != 2 {
		t.Errorf("expected 2 generator calls (failure then retry), got %d", gen.calls())
	}

	turns, _ := st.GetTurns(sessionID)
	if len(turns) != 1 {
		t.Fatalf("expected exactly 1 recorded turn after retry, got %d", len(turns))
	}
	if turns[0].Answer != "my answer" {
		t.Errorf("unexpected recorded answer %q", turns[0].Answer)
	}

	// Answering the issued probe then exhausts the budget normally.
	result, err = ctrl.SubmitAnswer(context.Background(), sessionID, "second answer", models.ModalityText)
	if err != nil {
		t.Fatalf("second answer failed: %v", err)
	}
	if !result.Complete {
		t.Error("expected completion after the single probe was answered")
	}
}

func TestSubmitAnswerGeneratorTerminate(t *testing.T) {
	st := store.NewInMemoryStore()
	gen := &mockGenerator{probes: []Probe{{Terminate: true}}}
	ctrl := NewController(st, gen)
	survey := seedSurvey(t, st, 5)

	sessionID, _, err := ctrl.StartSession(context.Background(), survey.ID, "r-1")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	result, err := ctrl.SubmitAnswer(context.Background(), sessionID, "exhaustive answer", models.ModalityText)
	if err != nil {
		t.Fatalf("SubmitAnswer failed: %v", err)
	}
	if !result.Complete {
		t.Error("expected completion on generator termination signal")
	}

	sess, _ := st.GetSession(sessionID)
	if sess.Status != models.SessionStatusComplete {
		t.Errorf("expected complete session, got %s", sess.Status)
	}
}

// Two sessions on the same survey proceed independently: interleaved answers
// keep per-session sequences contiguous from zero.
func TestInterleavedSessions(t *testing.T) {
	st := store.NewInMemoryStore()
	ctrl := NewController(st, &mockGenerator{})
	survey := seedSurvey(t, st, 5)

	sessionA, _, err := ctrl.StartSession(context.Background(), survey.ID, "r-a")
	if err != nil {
		t.Fatalf("StartSession A failed: %v", err)
	}
	sessionB, _, err := ctrl.StartSession(context.Background(), survey.ID, "r-b")
	if err != nil {
		t.Fatalf("StartSession B failed: %v", err)
	}

	order := []string{sessionA, sessionB, sessionB, sessionA, sessionA, sessionB}
	for i, id := range order {
		if _, err := ctrl.SubmitAnswer(context.Background(), id, fmt.Sprintf("answer %d", i), models.ModalityText); err != nil {
			t.Fatalf("SubmitAnswer %d failed: %v", i, err)
		}
	}

	for _, id := range []string{sessionA, sessionB} {
		turns, err := st.GetTurns(id)
		if err != nil {
			t.Fatalf("GetTurns failed: %v", err)
		}
		if len(turns) != 3 {
			t.Fatalf("expected 3 turns for %s, got %d", id, len(turns))
		}
		for i, turn := range turns {
			if turn.Seq != i {
				t.Errorf("session %s turn %d has seq %d", id, i, turn.Seq)
			}
		}
	}
}

func TestConcurrentAnswersSameSession(t *testing.T) {
	st := store.NewInMemoryStore()
	ctrl := NewController(st, &mockGenerator{})
	survey := seedSurvey(t, st, 100)

	sessionID, _, err := ctrl.StartSession(context.Background(), survey.ID, "r-1")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctrl.SubmitAnswer(context.Background(), sessionID, fmt.Sprintf("concurrent answer %d", i), models.ModalityText)
		}(i)
	}
	wg.Wait()

	turns, err := st.GetTurns(sessionID)
	if err != nil {
		t.Fatalf("GetTurns failed: %v", err)
	}
	if len(turns) != workers {
		t.Fatalf("expected %d turns, got %d", workers, len(turns))
	}
	for i, turn := range turns {
		if turn.Seq != i {
			t.Errorf("turn %d has seq %d, sequences must be contiguous", i, turn.Seq)
		}
	}
}

func TestProbeCount(t *testing.T) {
	st := store.NewInMemoryStore()
	ctrl := NewController(st, &mockGenerator{})
	survey := seedSurvey(t, st, 2)

	sessionID, _, err := ctrl.StartSession(context.Background(), survey.ID, "r-1")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	count, err := ctrl.ProbeCount(context.Background(), sessionID)
	if err != nil || count != 0 {
		t.Errorf("expected 0 probes before any answer, got %d (%v)", count, err)
	}

	if _, err := ctrl.SubmitAnswer(context.Background(), sessionID, "a1", models.ModalityText); err != nil {
		t.Fatalf("SubmitAnswer failed: %v", err)
	}
	count, _ = ctrl.ProbeCount(context.Background(), sessionID)
	if count != 1 {
		t.Errorf("expected 1 probe after first answer, got %d", count)
	}

	if _, err := ctrl.ProbeCount(context.Background(), "no-such-session"); !errors.Is(err, models.ErrSessionNotFound) {
		t.Error("expected ErrSessionNotFound for unknown session")
	}
}

func TestTranscript(t *testing.T) {
	st := store.NewInMemoryStore()
	ctrl := NewController(st, &mockGenerator{})
	survey := seedSurvey(t, st, 3)

	sessionID, _, err := ctrl.StartSession(context.Background(), survey.ID, "r-1")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if _, err := ctrl.SubmitAnswer(context.Background(), sessionID, "a1", models.ModalityVoice); err != nil {
		t.Fatalf("SubmitAnswer failed: %v", err)
	}

	sess, turns, err := ctrl.Transcript(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Transcript failed: %v", err)
	}
	if sess.ID != sessionID {
		t.Errorf("unexpected session %s", sess.ID)
	}
	if len(turns) != 1 || turns[0].Modality != models.ModalityVoice {
		t.Errorf("unexpected turns %+v", turns)
	}

	if _, _, err := ctrl.Transcript(context.Background(), "no-such-session"); !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestClosingMessageLocalization(t *testing.T) {
	if ClosingMessage(models.LanguageSpanish) == ClosingMessage(models.LanguageEnglish) {
		t.Error("expected Spanish closing message to differ from English")
	}
	if ClosingMessage(models.Language("Klingon")) != ClosingMessage(models.LanguageEnglish) {
		t.Error("expected unknown language to fall back to English")
	}
}
