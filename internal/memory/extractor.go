package memory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sentellent/senti/internal/llm"
	"github.com/sentellent/senti/internal/prompts"
)

// Saver persists an extracted fact. Implemented by Store.
type Saver interface {
	Save(ctx context.Context, userID, content, source string) (*Record, error)
}

// Extractor distills durable facts from conversation turns via a
// constrained LLM call. It is strictly best-effort: extraction and
// persistence failures are logged and swallowed, never surfaced to the
// reply path.
type Extractor struct {
	client  llm.Client
	model   string
	store   Saver
	logger  *slog.Logger
	timeout time.Duration
}

// NewExtractor creates a fact extractor.
func NewExtractor(client llm.Client, model string, store Saver, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		client:  client,
		model:   model,
		store:   store,
		logger:  logger,
		timeout: 30 * time.Second,
	}
}

// SetTimeout configures the LLM call timeout for extraction.
func (e *Extractor) SetTimeout(d time.Duration) {
	e.timeout = d
}

// Eligible reports whether a turn's role can yield facts. Only user
// input and tool results carry new information about the world; the
// assistant's own prose is never mined.
func Eligible(role string) bool {
	return role == "user" || role == "tool"
}

// Process extracts at most one fact from the turn and persists it with
// source "conversation_insight". Ineligible roles, empty turns, and the
// "None" sentinel all no-op.
func (e *Extractor) Process(ctx context.Context, userID, role, content string) {
	if !Eligible(role) {
		return
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.Chat(ctx, e.model, []llm.Message{
		{Role: "user", Content: prompts.ExtractionPrompt(content)},
	}, nil)
	if err != nil {
		e.logger.Warn("memory extraction call failed", "user_id", userID, "error", err)
		return
	}

	fact, ok := parseExtraction(resp.Message.Content)
	if !ok {
		e.logger.Debug("extraction found nothing to remember", "user_id", userID)
		return
	}

	if _, err := e.store.Save(ctx, userID, fact, "conversation_insight"); err != nil {
		e.logger.Warn("failed to persist extracted fact", "user_id", userID, "error", err)
		return
	}
	e.logger.Info("remembered fact about user", "user_id", userID, "fact", fact)
}

// parseExtraction normalizes the model's output and detects the "None"
// sentinel. Models occasionally wrap the sentinel in quotes or add a
// trailing period; all such variants count as None.
func parseExtraction(raw string) (string, bool) {
	fact := strings.TrimSpace(raw)
	fact = strings.Trim(fact, `"'`)
	fact = strings.TrimSpace(fact)
	if fact == "" {
		return "", false
	}

	normalized := strings.ToLower(strings.TrimRight(fact, "."))
	if normalized == strings.ToLower(prompts.ExtractionNone) {
		return "", false
	}
	return fact, true
}
