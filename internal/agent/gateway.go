// Package agent implements the core orchestration loop: memory update,
// reasoning, and tool invocation, cycling until the model produces a
// final reply for the user.
package agent

import (
	"context"
	"log/slog"

	"github.com/sentellent/senti/internal/llm"
	"github.com/sentellent/senti/internal/prompts"
)

// Gateway wraps a turn-taking call to the reasoning backend.
type Gateway struct {
	client llm.Client
	model  string
	logger *slog.Logger
}

// NewGateway creates a reasoning gateway for the given backend and
// model.
func NewGateway(client llm.Client, model string, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		client: client,
		model:  model,
		logger: logger,
	}
}

// Converse invokes the backend with the system context prepended to
// the history and the tool schemas available for selection. The
// returned message carries either final text or tool call requests.
//
// Backend errors and empty responses both collapse into the fixed
// service-unavailable message with ok=false; the caller must treat
// that as a final turn and never loop on it.
func (g *Gateway) Converse(ctx context.Context, systemContext string, history []llm.Message, toolSpecs []map[string]any) (llm.Message, bool) {
	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: "system", Content: systemContext})
	messages = append(messages, history...)

	resp, err := g.client.Chat(ctx, g.model, messages, toolSpecs)
	if err != nil {
		g.logger.Warn("reasoning backend call failed", "model", g.model, "error", err)
		return fallbackMessage(), false
	}
	if resp.Empty() {
		g.logger.Warn("reasoning backend returned an empty turn", "model", g.model)
		return fallbackMessage(), false
	}

	msg := resp.Message
	if msg.Role == "" {
		msg.Role = "assistant"
	}
	return msg, true
}

// fallbackMessage is the single assistant turn produced for any
// backend failure.
func fallbackMessage() llm.Message {
	return llm.Message{
		Role:    "assistant",
		Content: prompts.ServiceUnavailable,
	}
}
