// Package api provides HTTP handlers for VIVA endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vivalabs/viva/internal/models"
)

// surveysHandler handles GET /surveys (dashboard stats) and POST /surveys.
func (s *Server) surveysHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	switch r.Method {
	case http.MethodGet:
		s.listSurveys(w, r)
	case http.MethodPost:
		s.createSurvey(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		slog.Warn("Server.surveysHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) listSurveys(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.listSurveys: processing dashboard request")
	stats, err := s.st.ListSurveysWithStats()
	if err != nil {
		slog.Error("Server.listSurveys: failed to list surveys", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list surveys"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(stats))
}

func (s *Server) createSurvey(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSurveyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.createSurvey: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	// Apply configured defaults before validation.
	if req.MaxProbes == 0 {
		req.MaxProbes = s.defaultMaxProbes
	}
	if req.Language == "" {
		req.Language = s.defaultLanguage
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.createSurvey: validation failed", "error", err)
		writeDomainError(w, err)
		return
	}

	survey := models.Survey{
		ID:        uuid.NewString(),
		Topic:     req.Topic,
		MaxProbes: req.MaxProbes,
		Language:  req.Language,
		Status:    models.SurveyStatusActive,
		CreatedAt: time.Now(),
	}
	if err := s.st.CreateSurvey(survey); err != nil {
		slog.Error("Server.createSurvey: failed to store survey", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create survey"))
		return
	}

	slog.Info("Server.createSurvey: survey created", "surveyID", survey.ID, "maxProbes", survey.MaxProbes, "language", survey.Language)
	writeJSONResponse(w, http.StatusCreated, models.Success(survey))
}

// surveyByIDHandler handles GET/DELETE /surveys/{id} and POST /surveys/{id}/complete.
func (s *Server) surveyByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	id, action := splitResourcePath(r.URL.Path, "/surveys/")
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getSurvey(w, id)
	case action == "" && r.Method == http.MethodDelete:
		s.deleteSurvey(w, id)
	case action == "complete" && r.Method == http.MethodPost:
		s.completeSurvey(w, id)
	default:
		slog.Warn("Server.surveyByIDHandler: unsupported route", "method", r.Method, "path", r.URL.Path)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) getSurvey(w http.ResponseWriter, id string) {
	survey, err := s.st.GetSurvey(id)
	if err != nil {
		slog.Error("Server.getSurvey: failed to load survey", "error", err, "surveyID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load survey"))
		return
	}
	if survey == nil {
		writeDomainError(w, models.ErrSurveyNotFound)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(survey))
}

func (s *Server) deleteSurvey(w http.ResponseWriter, id string) {
	survey, err := s.st.GetSurvey(id)
	if err != nil {
		slog.Error("Server.deleteSurvey: failed to load survey", "error", err, "surveyID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load survey"))
		return
	}
	if survey == nil {
		writeDomainError(w, models.ErrSurveyNotFound)
		return
	}
	if err := s.st.DeleteSurvey(id); err != nil {
		slog.Error("Server.deleteSurvey: failed to delete survey", "error", err, "surveyID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete survey"))
		return
	}
	slog.Info("Server.deleteSurvey: survey deleted with sessions and turns", "surveyID", id)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Survey deleted", nil))
}

func (s *Server) completeSurvey(w http.ResponseWriter, id string) {
	survey, err := s.st.GetSurvey(id)
	if err != nil {
		slog.Error("Server.completeSurvey: failed to load survey", "error", err, "surveyID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load survey"))
		return
	}
	if survey == nil {
		writeDomainError(w, models.ErrSurveyNotFound)
		return
	}
	if err := s.st.CompleteSurvey(id); err != nil {
		slog.Error("Server.completeSurvey: failed to complete survey", "error", err, "surveyID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to complete survey"))
		return
	}
	slog.Info("Server.completeSurvey: survey complete", "surveyID", id)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Survey complete", nil))
}

// sessionsHandler handles POST /sessions.
func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.sessionsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.sessionsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	sessionID, firstQuestion, err := s.ctrl.StartSession(r.Context(), req.SurveyID, req.RespondentID)
	if err != nil {
		slog.Warn("Server.sessionsHandler: failed to start session", "error", err, "surveyID", req.SurveyID)
		writeDomainError(w, err)
		return
	}

	slog.Info("Server.sessionsHandler: session started", "sessionID", sessionID, "surveyID", req.SurveyID)
	writeJSONResponse(w, http.StatusCreated, models.Success(map[string]string{
		"session_id":     sessionID,
		"first_question": firstQuestion,
	}))
}

// sessionByIDHandler handles GET /sessions/{id} and POST /sessions/{id}/answer.
func (s *Server) sessionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	id, action := splitResourcePath(r.URL.Path, "/sessions/")
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getTranscript(w, r, id)
	case action == "answer" && r.Method == http.MethodPost:
		s.submitAnswer(w, r, id)
	default:
		slog.Warn("Server.sessionByIDHandler: unsupported route", "method", r.Method, "path", r.URL.Path)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) getTranscript(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, turns, err := s.ctrl.Transcript(r.Context(), sessionID)
	if err != nil {
		slog.Warn("Server.getTranscript: failed to load transcript", "error", err, "sessionID", sessionID)
		writeDomainError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"session": sess,
		"turns":   turns,
	}))
}

func (s *Server) submitAnswer(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req models.SubmitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.submitAnswer: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Modality == "" {
		req.Modality = models.ModalityText
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.submitAnswer: validation failed", "error", err, "sessionID", sessionID)
		writeDomainError(w, err)
		return
	}

	result, err := s.ctrl.SubmitAnswer(r.Context(), sessionID, req.Answer, req.Modality)
	if err != nil {
		slog.Warn("Server.submitAnswer: turn failed", "error", err, "sessionID", sessionID)
		writeDomainError(w, err)
		return
	}

	slog.Debug("Server.submitAnswer: turn processed", "sessionID", sessionID, "complete", result.Complete)
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// splitResourcePath extracts the resource ID and optional trailing action
// from a path like "/surveys/{id}/complete".
func splitResourcePath(path, prefix string) (id, action string) {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", ""
	}
	parts := strings.SplitN(rest, "/", 2)
	id = parts[0]
	if len(parts) == 2 {
		action = parts[1]
	}
	return id, action
}
