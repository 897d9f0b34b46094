package interview

import (
	"context"

	"github.com/vivalabs/viva/internal/models"
)

// FallbackQuestions are the canned follow-up probes used when no GenAI
// client is available.
var FallbackQuestions = []string{
	"That's interesting. Can you tell me more?",
	"What else can you share about that?",
	"I'd love to hear more details.",
	"Could you elaborate on that?",
	"What makes you say that?",
}

// StaticGenerator always asks the same canned probes, cycling through them in
// order. It backs tests and dev deployments that run without an API key.
type StaticGenerator struct {
	Questions []string
}

// GenerateNext returns the canned probe for the current turn.
func (s *StaticGenerator) GenerateNext(ctx context.Context, topic string, language models.Language, history []models.Turn) (Probe, error) {
	if len(s.Questions) == 0 {
		return Probe{Terminate: true}, nil
	}
	idx := 0
	if len(history) > 0 {
		idx = (len(history) - 1) % len(s.Questions)
	}
	return Probe{Question: s.Questions[idx]}, nil
}
