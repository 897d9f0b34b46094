// Package store provides storage backends for VIVA.
//
// This file implements an in-memory store used by tests and development
// deployments without a database file.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vivalabs/viva/internal/models"
)

// InMemoryStore is a mutex-guarded map-based store. A single lock covers all
// maps; operations are short so cross-session contention is negligible.
type InMemoryStore struct {
	mu       sync.RWMutex
	surveys  map[string]models.Survey
	sessions map[string]models.InterviewSession
	turns    map[string][]models.Turn // keyed by session ID, ordered by Seq
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		surveys:  make(map[string]models.Survey),
		sessions: make(map[string]models.InterviewSession),
		turns:    make(map[string][]models.Turn),
	}
}

func (s *InMemoryStore) CreateSurvey(sv models.Survey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.surveys[sv.ID]; exists {
		return fmt.Errorf("survey %s already exists", sv.ID)
	}
	s.surveys[sv.ID] = sv
	return nil
}

func (s *InMemoryStore) GetSurvey(id string) (*models.Survey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sv, ok := s.surveys[id]
	if !ok {
		return nil, nil
	}
	return &sv, nil
}

func (s *InMemoryStore) ListSurveysWithStats() ([]models.SurveyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make([]models.SurveyStats, 0, len(s.surveys))
	for _, sv := range s.surveys {
		st := models.SurveyStats{Survey: sv}
		var totalProbes int
		for _, sess := range s.sessions {
			if sess.SurveyID != sv.ID {
				continue
			}
			st.SessionCount++
			if sess.Status == models.SessionStatusComplete {
				st.CompletedSessions++
			}
			// A session's probe count is its turn count capped at max_probes:
			// the closing answer records a turn but consumes no probe.
			probes := len(s.turns[sess.ID])
			if probes > sv.MaxProbes {
				probes = sv.MaxProbes
			}
			totalProbes += probes
		}
		if st.SessionCount > 0 {
			st.AvgProbeCount = float64(totalProbes) / float64(st.SessionCount)
		}
		stats = append(stats, st)
	}
	// Newest first, matching the persistent backends.
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Survey.CreatedAt.After(stats[j].Survey.CreatedAt)
	})
	return stats, nil
}

func (s *InMemoryStore) CompleteSurvey(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sv, ok := s.surveys[id]
	if !ok {
		return fmt.Errorf("survey %s not found", id)
	}
	sv.Status = models.SurveyStatusComplete
	s.surveys[id] = sv
	return nil
}

func (s *InMemoryStore) DeleteSurvey(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.surveys[id]; !ok {
		return fmt.Errorf("survey %s not found", id)
	}
	delete(s.surveys, id)
	for sessID, sess := range s.sessions {
		if sess.SurveyID == id {
			delete(s.sessions, sessID)
			delete(s.turns, sessID)
		}
	}
	return nil
}

func (s *InMemoryStore) CreateSession(sess models.InterviewSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.ID]; exists {
		return fmt.Errorf("session %s already exists", sess.ID)
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *InMemoryStore) GetSession(id string) (*models.InterviewSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s *InMemoryStore) SetCurrentQuestion(sessionID, question string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	sess.CurrentQuestion = question
	sess.UpdatedAt = time.Now()
	s.sessions[sessionID] = sess
	return nil
}

// CompleteSession marks a session complete. Completing an already-complete
// session is a no-op so retries stay safe.
func (s *InMemoryStore) CompleteSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	if sess.Status == models.SessionStatusComplete {
		return nil
	}
	sess.Status = models.SessionStatusComplete
	sess.UpdatedAt = time.Now()
	s.sessions[sessionID] = sess
	return nil
}

// AppendTurn appends a turn with the next sequence index and returns it.
func (s *InMemoryStore) AppendTurn(t models.Turn) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[t.SessionID]
	if !ok {
		return 0, fmt.Errorf("session %s not found", t.SessionID)
	}
	if sess.Status == models.SessionStatusComplete {
		return 0, fmt.Errorf("session %s is complete, no more turns may be appended", t.SessionID)
	}
	t.Seq = len(s.turns[t.SessionID])
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	s.turns[t.SessionID] = append(s.turns[t.SessionID], t)
	sess.UpdatedAt = time.Now()
	s.sessions[t.SessionID] = sess
	return t.Seq, nil
}

func (s *InMemoryStore) GetTurns(sessionID string) ([]models.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := make([]models.Turn, len(s.turns[sessionID]))
	copy(turns, s.turns[sessionID])
	return turns, nil
}

func (s *InMemoryStore) CountTurns(sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns[sessionID]), nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
