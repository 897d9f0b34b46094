// Package models defines the core data structures for VIVA.
//
// It includes the survey, interview session, and turn types shared across
// modules, plus the request payloads and error variables used at the API
// boundary.
package models

import (
	"errors"
	"time"
)

// Language enumerates the interview languages a survey can be conducted in.
type Language string

const (
	LanguageEnglish Language = "English"
	LanguageSpanish Language = "Spanish"
	LanguageFrench  Language = "French"
	LanguageGerman  Language = "German"
	LanguageHindi   Language = "Hindi"
	LanguageChinese Language = "Chinese"
)

// IsValidLanguage checks if the given language is supported.
func IsValidLanguage(l Language) bool {
	switch l {
	case LanguageEnglish, LanguageSpanish, LanguageFrench, LanguageGerman, LanguageHindi, LanguageChinese:
		return true
	default:
		return false
	}
}

// SurveyStatus represents the lifecycle state of a survey.
type SurveyStatus string

const (
	// SurveyStatusActive indicates the survey is accepting new sessions.
	SurveyStatusActive SurveyStatus = "active"
	// SurveyStatusComplete indicates the survey has been closed.
	SurveyStatusComplete SurveyStatus = "complete"
)

// SessionStatus represents the lifecycle state of an interview session.
type SessionStatus string

const (
	// SessionStatusActive indicates the respondent is still being interviewed.
	SessionStatusActive SessionStatus = "active"
	// SessionStatusComplete indicates the interview has ended.
	SessionStatusComplete SessionStatus = "complete"
)

// Modality identifies how a respondent's answer was captured.
type Modality string

const (
	// ModalityText indicates a typed answer.
	ModalityText Modality = "text"
	// ModalityVoice indicates an answer transcribed from speech.
	ModalityVoice Modality = "voice"
)

// IsValidModality checks if the given input modality is supported.
func IsValidModality(m Modality) bool {
	return m == ModalityText || m == ModalityVoice
}

// Validation constants for survey and answer input.
const (
	// MaxTopicLength defines the maximum allowed length for a survey topic.
	MaxTopicLength = 1000
	// MaxAnswerLength defines the maximum allowed length for a respondent answer.
	MaxAnswerLength = 8192
)

// Error variables for better error handling and testability.
var (
	ErrSurveyNotFound         = errors.New("survey not found")
	ErrSurveyComplete         = errors.New("survey is complete")
	ErrSessionNotFound        = errors.New("session not found")
	ErrSessionAlreadyComplete = errors.New("session already complete")
	ErrUpstreamUnavailable    = errors.New("question generator unavailable")
	ErrEmptyTopic             = errors.New("topic cannot be empty")
	ErrTopicTooLong           = errors.New("topic exceeds maximum length")
	ErrInvalidMaxProbes       = errors.New("max probes must be a positive integer")
	ErrInvalidLanguage        = errors.New("unsupported language")
	ErrEmptyRespondentID      = errors.New("respondent id cannot be empty")
	ErrEmptyAnswer            = errors.New("answer cannot be empty")
	ErrAnswerTooLong          = errors.New("answer exceeds maximum length")
	ErrInvalidModality        = errors.New("invalid input modality")
)

// Survey is a research topic a respondent can be interviewed about.
// It is created once and mutated only to flip Status to complete.
type Survey struct {
	ID        string       `json:"id"`
	Topic     string       `json:"topic"`      // opening research question asked first
	MaxProbes int          `json:"max_probes"` // maximum AI follow-up questions per session
	Language  Language     `json:"language"`
	Status    SurveyStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

// InterviewSession is one respondent's pass through one survey.
type InterviewSession struct {
	ID              string        `json:"id"`
	SurveyID        string        `json:"survey_id"`
	RespondentID    string        `json:"respondent_id"`
	CurrentQuestion string        `json:"current_question"` // question awaiting an answer
	Status          SessionStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Turn is one question/answer pair recorded within a session. Turns are
// append-only; Seq is assigned by the store and is strictly increasing with
// no gaps within a session.
type Turn struct {
	SessionID string    `json:"session_id"`
	Seq       int       `json:"seq"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Modality  Modality  `json:"modality"`
	Timestamp time.Time `json:"timestamp"`
}

// SurveyStats summarizes one survey for the dashboard collaborator.
type SurveyStats struct {
	Survey            Survey  `json:"survey"`
	SessionCount      int     `json:"session_count"`
	CompletedSessions int     `json:"completed_sessions"`
	AvgProbeCount     float64 `json:"avg_probe_count"`
}

// CreateSurveyRequest represents the payload for creating a survey.
type CreateSurveyRequest struct {
	Topic     string   `json:"topic"`
	MaxProbes int      `json:"max_probes,omitempty"` // defaults to server configuration when zero
	Language  Language `json:"language,omitempty"`
}

// Validate performs validation on a CreateSurveyRequest after defaults are applied.
func (r *CreateSurveyRequest) Validate() error {
	if r.Topic == "" {
		return ErrEmptyTopic
	}
	if len(r.Topic) > MaxTopicLength {
		return ErrTopicTooLong
	}
	if r.MaxProbes <= 0 {
		return ErrInvalidMaxProbes
	}
	if !IsValidLanguage(r.Language) {
		return ErrInvalidLanguage
	}
	return nil
}

// StartSessionRequest represents the payload for starting an interview session.
type StartSessionRequest struct {
	SurveyID     string `json:"survey_id"`
	RespondentID string `json:"respondent_id"`
}

// SubmitAnswerRequest represents the payload for submitting a respondent answer.
type SubmitAnswerRequest struct {
	Answer   string   `json:"answer"`
	Modality Modality `json:"modality,omitempty"` // defaults to text
}

// Validate performs validation on a SubmitAnswerRequest.
func (r *SubmitAnswerRequest) Validate() error {
	if r.Answer == "" {
		return ErrEmptyAnswer
	}
	if len(r.Answer) > MaxAnswerLength {
		return ErrAnswerTooLong
	}
	if !IsValidModality(r.Modality) {
		return ErrInvalidModality
	}
	return nil
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse is the standard JSON envelope returned by every endpoint.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
