package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sentellent/senti/internal/calendar"
)

const calendarNotConfigured = "The calendar is not configured for this assistant."

// defaultListWindow is how far ahead list_calendar_events looks when
// no end is given.
const defaultListWindow = 7 * 24 * time.Hour

func (r *Registry) registerCalendarTools() {
	r.Register(&Tool{
		Name:        "list_calendar_events",
		Description: "List calendar events in a time window. Defaults to the next 7 days.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"start": map[string]any{
					"type":        "string",
					"description": "Window start (RFC 3339 or YYYY-MM-DD, default now)",
				},
				"end": map[string]any{
					"type":        "string",
					"description": "Window end (RFC 3339 or YYYY-MM-DD, default start + 7 days)",
				},
			},
		},
		Handler: r.handleListEvents,
	})

	r.Register(&Tool{
		Name:        "create_calendar_event",
		Description: "Create a calendar event. Confirm the details with the user before creating.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"summary": map[string]any{
					"type":        "string",
					"description": "Event title",
				},
				"start": map[string]any{
					"type":        "string",
					"description": "Start time (RFC 3339)",
				},
				"end": map[string]any{
					"type":        "string",
					"description": "End time (RFC 3339, optional)",
				},
				"description": map[string]any{
					"type":        "string",
					"description": "Longer event description (optional)",
				},
				"location": map[string]any{
					"type":        "string",
					"description": "Event location (optional)",
				},
			},
			"required": []string{"summary", "start"},
		},
		Handler: r.handleCreateEvent,
	})

	r.Register(&Tool{
		Name:        "delete_calendar_event",
		Description: "Delete a calendar event by its UID. Use list_calendar_events first to find the UID.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"uid": map[string]any{
					"type":        "string",
					"description": "The event UID to delete",
				},
			},
			"required": []string{"uid"},
		},
		Handler: r.handleDeleteEvent,
	})
}

func (r *Registry) handleListEvents(ctx context.Context, args map[string]any) (string, error) {
	if r.calendar == nil {
		return calendarNotConfigured, nil
	}

	start, err := timeArg(args, "start")
	if err != nil {
		return "", err
	}
	end, err := timeArg(args, "end")
	if err != nil {
		return "", err
	}

	if start.IsZero() {
		start = time.Now()
	}
	if end.IsZero() {
		end = start.Add(defaultListWindow)
	}
	if !end.After(start) {
		return "", fmt.Errorf("end must be after start")
	}

	events, err := r.calendar.ListEvents(ctx, start, end)
	if err != nil {
		return "", err
	}

	if len(events) == 0 {
		return fmt.Sprintf("No events between %s and %s",
			start.Format("2006-01-02 15:04"), end.Format("2006-01-02 15:04")), nil
	}
	return formatEventList(events), nil
}

func (r *Registry) handleCreateEvent(ctx context.Context, args map[string]any) (string, error) {
	if r.calendar == nil {
		return calendarNotConfigured, nil
	}

	start, err := timeArg(args, "start")
	if err != nil {
		return "", err
	}
	end, err := timeArg(args, "end")
	if err != nil {
		return "", err
	}

	event, err := r.calendar.CreateEvent(ctx, calendar.EventInput{
		Summary:     stringArg(args, "summary"),
		Description: stringArg(args, "description"),
		Location:    stringArg(args, "location"),
		Start:       start,
		End:         end,
	})
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Created event %q starting %s (UID: %s)",
		event.Summary, event.Start.Format("2006-01-02 15:04"), event.UID), nil
}

func (r *Registry) handleDeleteEvent(ctx context.Context, args map[string]any) (string, error) {
	if r.calendar == nil {
		return calendarNotConfigured, nil
	}

	uid := stringArg(args, "uid")
	if uid == "" {
		return "", fmt.Errorf("uid is required")
	}

	if err := r.calendar.DeleteEvent(ctx, uid); err != nil {
		return "", err
	}
	return fmt.Sprintf("Deleted event %s", uid), nil
}

func formatEventList(events []calendar.Event) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d event(s):\n\n", len(events)))

	for _, ev := range events {
		sb.WriteString(fmt.Sprintf("UID: %s\n", ev.UID))
		sb.WriteString(fmt.Sprintf("Summary: %s\n", ev.Summary))
		sb.WriteString(fmt.Sprintf("Start: %s\n", ev.Start.Format("2006-01-02 15:04 MST")))
		if !ev.End.IsZero() {
			sb.WriteString(fmt.Sprintf("End: %s\n", ev.End.Format("2006-01-02 15:04 MST")))
		}
		if ev.Location != "" {
			sb.WriteString(fmt.Sprintf("Location: %s\n", ev.Location))
		}
		if ev.Description != "" {
			sb.WriteString(fmt.Sprintf("Description: %s\n", ev.Description))
		}
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}
