// Package calendar provides CalDAV access for the Senti calendar
// tools: listing events in a window, creating events, and deleting
// them by UID.
package calendar

import (
	"fmt"
	"time"
)

// Event is a single calendar event as seen by the agent.
type Event struct {
	// UID is the iCalendar unique identifier.
	UID string

	// Path is the CalDAV object path holding this event.
	Path string

	// Summary is the event title.
	Summary string

	// Description is the optional long-form body.
	Description string

	// Location is the optional event location.
	Location string

	// Start is the event start time.
	Start time.Time

	// End is the event end time. Zero when the event has no DTEND.
	End time.Time
}

// EventInput describes a new event to create.
type EventInput struct {
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

// Validate checks that the input describes a well-formed event.
func (in EventInput) Validate() error {
	if in.Summary == "" {
		return fmt.Errorf("summary is required")
	}
	if in.Start.IsZero() {
		return fmt.Errorf("start time is required")
	}
	if !in.End.IsZero() && in.End.Before(in.Start) {
		return fmt.Errorf("end time %s is before start time %s", in.End, in.Start)
	}
	return nil
}
