// Package testutil provides common test utilities and helpers for VIVA tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vivalabs/viva/internal/api"
	"github.com/vivalabs/viva/internal/interview"
	"github.com/vivalabs/viva/internal/models"
	"github.com/vivalabs/viva/internal/store"
)

// NewTestServer creates a test API server backed by an in-memory store and a
// static question generator. The store is returned for direct seeding and
// assertions.
func NewTestServer() (*api.Server, *store.InMemoryStore) {
	st := store.NewInMemoryStore()
	ctrl := interview.NewController(st, &interview.StaticGenerator{Questions: interview.FallbackQuestions})
	return api.NewServer(st, ctrl), st
}

// SeedSurvey stores a survey with the given probe limit and returns it.
func SeedSurvey(t *testing.T, st store.Store, maxProbes int) models.Survey {
	t.Helper()
	survey := models.Survey{
		ID:        "sv_test_" + t.Name(),
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

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}
