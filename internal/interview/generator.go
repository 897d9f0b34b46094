// Package interview provides the GenAI-backed question generator adapter.
//
// The adapter is the only place that knows the remote service's response
// shape: prompt construction, output sanitizing, and termination parsing all
// live at this boundary so the controller never depends on them.
package interview

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/openai/openai-go"
	"github.com/vivalabs/viva/internal/genai"
	"github.com/vivalabs/viva/internal/models"
)

// terminateToken is the exact reply the model is instructed to send when
// further probing would not be informative.
const terminateToken = "TERMINATE"

const systemPromptTemplate = `You are a survey interviewer conducting a qualitative interview in %s.
The research topic is: %s
After each respondent answer, ask exactly one short follow-up question about it, at most 15 words, in %s.
If the answers already cover the topic exhaustively and further probing would not be informative, reply with exactly %s.
Reply with the question text only, no preamble and no formatting.`

// Model output occasionally arrives wrapped in markup; strip tags and
// collapse whitespace before use.
var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// SanitizeResponse removes HTML tags and normalizes whitespace in generated
// text.
func SanitizeResponse(response string) string {
	clean := htmlTagPattern.ReplaceAllString(response, "")
	clean = whitespacePattern.ReplaceAllString(clean, " ")
	return strings.TrimSpace(clean)
}

// GenAIGenerator implements QuestionGenerator over a GenAI client.
type GenAIGenerator struct {
	client genai.ClientInterface
}

// NewGenAIGenerator creates a question generator backed by a GenAI client.
func NewGenAIGenerator(client genai.ClientInterface) *GenAIGenerator {
	return &GenAIGenerator{client: client}
}

// GenerateNext builds one completion request from the interview context and
// parses the reply into a follow-up question or a termination signal. It
// performs no retries and touches no stored state; a timeout or malformed
// reply surfaces as ErrUpstreamUnavailable.
func (g *GenAIGenerator) GenerateNext(ctx context.Context, topic string, language models.Language, history []models.Turn) (Probe, error) {
	messages := buildMessages(topic, language, history)
	slog.Debug("GenAIGenerator.GenerateNext: requesting follow-up", "topic", topic, "language", language, "historyLen", len(history))

	response, err := g.client.GenerateWithMessages(ctx, messages)
	if err != nil {
		return Probe{}, fmt.Errorf("%w: %v", models.ErrUpstreamUnavailable, err)
	}

	clean := SanitizeResponse(response)
	if clean == "" {
		slog.Warn("GenAIGenerator.GenerateNext: blank response after sanitizing")
		return Probe{}, fmt.Errorf("%w: blank response from model", models.ErrUpstreamUnavailable)
	}
	if isTerminateSignal(clean) {
		slog.Debug("GenAIGenerator.GenerateNext: model signaled termination")
		return Probe{Terminate: true}, nil
	}
	return Probe{Question: clean}, nil
}

// buildMessages lays out the interview as a chat: the generated questions as
// assistant turns and the respondent's answers as user turns.
func buildMessages(topic string, language models.Language, history []models.Turn) []openai.ChatCompletionMessageParamUnion {
	systemPrompt := fmt.Sprintf(systemPromptTemplate, language, topic, language, terminateToken)
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2*len(history)+1)
	messages = append(messages, openai.SystemMessage(systemPrompt))
	for _, turn := range history {
		messages = append(messages, openai.AssistantMessage(turn.Question))
		messages = append(messages, openai.UserMessage(turn.Answer))
	}
	return messages
}

// isTerminateSignal matches the termination token leniently: models tend to
// add punctuation or casing of their own.
func isTerminateSignal(s string) bool {
	trimmed := strings.ToUpper(strings.Trim(s, " .!\"'"))
	return trimmed == terminateToken
}
