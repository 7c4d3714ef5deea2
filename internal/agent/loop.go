package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sentellent/senti/internal/llm"
	"github.com/sentellent/senti/internal/memory"
	"github.com/sentellent/senti/internal/prompts"
	"github.com/sentellent/senti/internal/session"
)

// Retriever is the memory query surface the loop depends on.
type Retriever interface {
	Search(ctx context.Context, userID, query string, k int) ([]memory.Record, error)
}

// Extractor distills a turn into a stored fact, best-effort.
type Extractor interface {
	Process(ctx context.Context, userID, role, content string)
}

// ToolExecutor is the tool registry surface the loop depends on.
type ToolExecutor interface {
	List() []map[string]any
	Execute(ctx context.Context, name string, argsJSON string) (string, error)
}

// TraceEvent reports loop progress to an observer, e.g. a websocket
// session streaming tool activity to the client.
type TraceEvent struct {
	Type    string `json:"type"` // state, tool_start, tool_result, reply
	State   string `json:"state,omitempty"`
	Tool    string `json:"tool,omitempty"`
	Content string `json:"content,omitempty"`
}

// TraceFunc receives trace events. Implementations must be fast; the
// loop calls them inline.
type TraceFunc func(TraceEvent)

// Config tunes loop behavior.
type Config struct {
	// Persona is prepended to the system context. Empty uses the
	// built-in persona.
	Persona string

	// MaxToolCycles bounds reason/invoke_tools iterations per inbound
	// turn. Zero means 8.
	MaxToolCycles int

	// MemoryResults is how many memory records are retrieved per
	// reasoning step. Zero means 4.
	MemoryResults int
}

// Loop is the orchestration state machine. For each inbound turn it
// runs update_memory → reason, looping through invoke_tools until the
// model answers with text. Runs for the same user are serialized;
// different users proceed in parallel.
type Loop struct {
	sessions  session.Store
	locks     *session.UserLocks
	memory    Retriever
	extractor Extractor
	gateway   *Gateway
	tools     ToolExecutor
	cfg       Config
	logger    *slog.Logger

	now func() time.Time
}

// NewLoop wires the orchestrator.
func NewLoop(sessions session.Store, mem Retriever, extractor Extractor, gateway *Gateway, tools ToolExecutor, cfg Config, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxToolCycles <= 0 {
		cfg.MaxToolCycles = 8
	}
	if cfg.MemoryResults <= 0 {
		cfg.MemoryResults = 4
	}
	return &Loop{
		sessions:  sessions,
		locks:     session.NewUserLocks(),
		memory:    mem,
		extractor: extractor,
		gateway:   gateway,
		tools:     tools,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Run processes one inbound user turn and returns the final reply
// text. trace may be nil.
func (l *Loop) Run(ctx context.Context, userID string, turn session.Turn, trace TraceFunc) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user_id is required")
	}
	if trace == nil {
		trace = func(TraceEvent) {}
	}

	l.locks.Lock(userID)
	defer l.locks.Unlock(userID)

	start := l.now()
	l.logger.Info("turn started", "user_id", userID)

	if err := l.sessions.Append(ctx, userID, turn); err != nil {
		return "", fmt.Errorf("append turn: %w", err)
	}

	// The inbound text anchors memory retrieval for the whole run.
	query := turn.Content

	// Turns awaiting fact extraction on the next update_memory pass.
	pending := []session.Turn{turn}

	for cycle := 0; cycle < l.cfg.MaxToolCycles; cycle++ {
		trace(TraceEvent{Type: "state", State: "update_memory"})
		l.updateMemory(ctx, userID, pending)
		pending = nil

		trace(TraceEvent{Type: "state", State: "reason"})
		reply, ok := l.reason(ctx, userID, query)
		if err := l.appendAssistant(ctx, userID, reply); err != nil {
			return "", err
		}

		// Fallback turns and plain text replies are both final.
		if !ok || len(reply.ToolCalls) == 0 {
			trace(TraceEvent{Type: "reply", Content: reply.Content})
			l.logger.Info("turn completed", "user_id", userID, "cycles", cycle, "duration", l.now().Sub(start))
			return reply.Content, nil
		}

		trace(TraceEvent{Type: "state", State: "invoke_tools"})
		results := l.invokeTools(ctx, reply.ToolCalls, trace)
		for _, result := range results {
			if err := l.sessions.Append(ctx, userID, result); err != nil {
				return "", fmt.Errorf("append tool result: %w", err)
			}
		}
		pending = results
	}

	// Cycle ceiling reached: close the turn with the fixed fallback
	// rather than looping forever on a misbehaving backend.
	l.logger.Warn("tool cycle ceiling reached", "user_id", userID, "max_cycles", l.cfg.MaxToolCycles)
	fallback := fallbackMessage()
	if err := l.appendAssistant(ctx, userID, fallback); err != nil {
		return "", err
	}
	trace(TraceEvent{Type: "reply", Content: fallback.Content})
	return fallback.Content, nil
}

// updateMemory attempts fact extraction on each newly appended turn.
// Extraction never blocks or fails the conversation.
func (l *Loop) updateMemory(ctx context.Context, userID string, turns []session.Turn) {
	for _, t := range turns {
		if !memory.Eligible(string(t.Role)) {
			continue
		}
		l.extractor.Process(ctx, userID, string(t.Role), t.Content)
	}
}

// reason retrieves relevant memories, builds the system context, and
// asks the backend for the next step. ok=false marks the fallback
// turn.
func (l *Loop) reason(ctx context.Context, userID, query string) (llm.Message, bool) {
	records, err := l.memory.Search(ctx, userID, query, l.cfg.MemoryResults)
	if err != nil {
		// Retrieval degrades to "no memories", it never blocks the turn.
		l.logger.Warn("memory retrieval failed", "user_id", userID, "error", err)
		records = nil
	}

	snippets := make([]string, 0, len(records))
	for _, r := range records {
		snippets = append(snippets, r.Content)
	}

	systemContext := prompts.SystemContext(l.cfg.Persona, l.now(), snippets)

	history, err := l.sessions.History(ctx, userID)
	if err != nil {
		l.logger.Error("history load failed", "user_id", userID, "error", err)
		return fallbackMessage(), false
	}

	return l.gateway.Converse(ctx, systemContext, session.Messages(history), l.tools.List())
}

// invokeTools executes all requested calls concurrently and returns
// one tool result turn per request, in request order. Failures become
// result text; they are visible to the conversation, not fatal to it.
func (l *Loop) invokeTools(ctx context.Context, calls []llm.ToolCall, trace TraceFunc) []session.Turn {
	results := make([]session.Turn, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		trace(TraceEvent{Type: "tool_start", Tool: call.Function.Name})

		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			results[i] = session.Turn{
				Role:       session.RoleTool,
				Content:    l.executeTool(ctx, call),
				ToolCallID: call.ID,
				Timestamp:  l.now(),
			}
		}(i, call)
	}
	wg.Wait()

	for i, call := range calls {
		trace(TraceEvent{Type: "tool_result", Tool: call.Function.Name, Content: results[i].Content})
	}
	return results
}

// executeTool dispatches one call through the registry and renders
// the outcome as result text.
func (l *Loop) executeTool(ctx context.Context, call llm.ToolCall) string {
	name := call.Function.Name

	argsJSON, err := json.Marshal(call.Function.Arguments)
	if err != nil {
		l.logger.Warn("tool arguments not serializable", "tool", name, "error", err)
		return fmt.Sprintf("Error: invalid arguments for tool %s", name)
	}

	l.logger.Debug("executing tool", "tool", name, "args", string(argsJSON))

	result, err := l.tools.Execute(ctx, name, string(argsJSON))
	if err != nil {
		l.logger.Warn("tool execution failed", "tool", name, "error", err)
		return fmt.Sprintf("Error: %v", err)
	}
	return result
}

func (l *Loop) appendAssistant(ctx context.Context, userID string, msg llm.Message) error {
	err := l.sessions.Append(ctx, userID, session.Turn{
		Role:      session.RoleAssistant,
		Content:   msg.Content,
		ToolCalls: msg.ToolCalls,
		Timestamp: l.now(),
	})
	if err != nil {
		return fmt.Errorf("append assistant turn: %w", err)
	}
	return nil
}
