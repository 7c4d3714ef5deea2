package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/sentellent/senti/internal/email"
)

// emailNotConfigured is returned as a tool result (not an error) so
// the model can tell the user instead of aborting the turn.
const emailNotConfigured = "Email is not configured for this assistant."

func (r *Registry) registerEmailTools() {
	r.Register(&Tool{
		Name:        "read_inbox",
		Description: "List recent messages from the user's email inbox. Use this when the user asks about their mail or new messages.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of messages to return (default 20)",
				},
				"unseen": map[string]any{
					"type":        "boolean",
					"description": "Only return unread messages",
				},
			},
		},
		Handler: r.handleReadInbox,
	})

	r.Register(&Tool{
		Name:        "search_email",
		Description: "Search the user's email by text, sender, or date range.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Free text to match against message content",
				},
				"from": map[string]any{
					"type":        "string",
					"description": "Filter by sender address or name",
				},
				"since": map[string]any{
					"type":        "string",
					"description": "Only messages on or after this date (YYYY-MM-DD)",
				},
				"before": map[string]any{
					"type":        "string",
					"description": "Only messages before this date (YYYY-MM-DD)",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results (default 20)",
				},
			},
		},
		Handler: r.handleSearchEmail,
	})

	r.Register(&Tool{
		Name:        "send_email",
		Description: "Send an email on the user's behalf. Confirm recipients and content with the user before sending.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"to": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Recipient email addresses",
				},
				"cc": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "CC email addresses",
				},
				"subject": map[string]any{
					"type":        "string",
					"description": "Email subject line",
				},
				"body": map[string]any{
					"type":        "string",
					"description": "Email body in markdown",
				},
			},
			"required": []string{"to", "subject", "body"},
		},
		Handler: r.handleSendEmail,
	})
}

func (r *Registry) handleReadInbox(ctx context.Context, args map[string]any) (string, error) {
	if r.mailbox == nil {
		return emailNotConfigured, nil
	}

	envelopes, err := r.mailbox.ListMessages(ctx, email.ListOptions{
		Limit:  intArg(args, "limit"),
		Unseen: boolArg(args, "unseen"),
	})
	if err != nil {
		return "", err
	}

	if len(envelopes) == 0 {
		if boolArg(args, "unseen") {
			return "No unread messages", nil
		}
		return "The inbox is empty", nil
	}
	return formatEnvelopeList(envelopes), nil
}

func (r *Registry) handleSearchEmail(ctx context.Context, args map[string]any) (string, error) {
	if r.mailbox == nil {
		return emailNotConfigured, nil
	}

	opts := email.SearchOptions{
		Query: stringArg(args, "query"),
		From:  stringArg(args, "from"),
		Limit: intArg(args, "limit"),
	}

	var err error
	if opts.Since, err = timeArg(args, "since"); err != nil {
		return "", err
	}
	if opts.Before, err = timeArg(args, "before"); err != nil {
		return "", err
	}
	if opts.Query == "" && opts.From == "" && opts.Since.IsZero() && opts.Before.IsZero() {
		return "", fmt.Errorf("at least one of query, from, since, or before is required")
	}

	envelopes, err := r.mailbox.SearchMessages(ctx, opts)
	if err != nil {
		return "", err
	}

	if len(envelopes) == 0 {
		return "No messages match the search criteria", nil
	}
	return formatEnvelopeList(envelopes), nil
}

func (r *Registry) handleSendEmail(ctx context.Context, args map[string]any) (string, error) {
	if r.sender == nil {
		return emailNotConfigured, nil
	}

	opts := email.SendOptions{
		To:      stringListArg(args, "to"),
		Cc:      stringListArg(args, "cc"),
		Subject: stringArg(args, "subject"),
		Body:    stringArg(args, "body"),
	}
	if err := opts.Validate(); err != nil {
		return "", err
	}

	if err := r.sender.Send(ctx, opts); err != nil {
		return "", err
	}
	return fmt.Sprintf("Email sent to %s", strings.Join(opts.To, ", ")), nil
}

func formatEnvelopeList(envelopes []email.Envelope) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d message(s):\n\n", len(envelopes)))

	for _, env := range envelopes {
		sb.WriteString(fmt.Sprintf("UID: %d\n", env.UID))
		sb.WriteString(fmt.Sprintf("From: %s\n", env.From))
		sb.WriteString(fmt.Sprintf("Subject: %s\n", env.Subject))
		sb.WriteString(fmt.Sprintf("Date: %s\n", env.Date.Format("2006-01-02 15:04")))
		if env.Unread() {
			sb.WriteString("Unread: yes\n")
		}
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}
