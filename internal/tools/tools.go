// Package tools defines the tools available to the agent.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sentellent/senti/internal/calendar"
	"github.com/sentellent/senti/internal/email"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Mailbox reads email for the inbox tools.
type Mailbox interface {
	ListMessages(ctx context.Context, opts email.ListOptions) ([]email.Envelope, error)
	SearchMessages(ctx context.Context, opts email.SearchOptions) ([]email.Envelope, error)
}

// MailSender delivers outbound email.
type MailSender interface {
	Send(ctx context.Context, opts email.SendOptions) error
}

// Calendar manages CalDAV events.
type Calendar interface {
	ListEvents(ctx context.Context, start, end time.Time) ([]calendar.Event, error)
	CreateEvent(ctx context.Context, in calendar.EventInput) (calendar.Event, error)
	DeleteEvent(ctx context.Context, uid string) error
}

// Registry holds available tools. Collaborators may be nil when the
// corresponding account is not configured; the handlers then report
// that to the model as a tool result instead of failing the turn.
type Registry struct {
	tools    map[string]*Tool
	mailbox  Mailbox
	sender   MailSender
	calendar Calendar
}

// NewRegistry creates a tool registry with email and calendar
// integrations.
func NewRegistry(mailbox Mailbox, sender MailSender, cal Calendar) *Registry {
	r := &Registry{
		tools:    make(map[string]*Tool),
		mailbox:  mailbox,
		sender:   sender,
		calendar: cal,
	}
	r.registerEmailTools()
	r.registerCalendarTools()
	return r
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// List returns all tools in the function-calling format the LLM
// backends expect.
func (r *Registry) List() []map[string]any {
	var result []map[string]any
	for _, t := range r.tools {
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Execute runs a tool by name with given arguments.
func (r *Registry) Execute(ctx context.Context, name string, argsJSON string) (string, error) {
	tool := r.tools[name]
	if tool == nil {
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	var args map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
	}

	return tool.Handler(ctx, args)
}

// --- Argument extraction helpers ---

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return 0
}

func boolArg(args map[string]any, key string) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return false
}

// stringListArg accepts either a JSON array of strings or a single
// string for the given key.
func stringListArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []any:
		var result []string
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				result = append(result, s)
			}
		}
		return result
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// timeArg parses a time argument in RFC 3339 or date-only form.
func timeArg(args map[string]any, key string) (time.Time, error) {
	s := stringArg(args, key)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%s must be RFC 3339 or YYYY-MM-DD, got %q", key, s)
}
