package calendar

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/emersion/go-webdav/caldav"
)

func TestEventInputValidate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		in      EventInput
		wantErr bool
	}{
		{"valid", EventInput{Summary: "standup", Start: now, End: now.Add(time.Hour)}, false},
		{"open ended", EventInput{Summary: "focus", Start: now}, false},
		{"no summary", EventInput{Start: now}, true},
		{"no start", EventInput{Summary: "x"}, true},
		{"end before start", EventInput{Summary: "x", Start: now, End: now.Add(-time.Hour)}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.in.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestNewEventCalendarRoundTrip(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	in := EventInput{
		Summary:     "Dentist",
		Description: "Bring insurance card",
		Location:    "12 Main St",
		Start:       start,
		End:         start.Add(45 * time.Minute),
	}

	cal := newEventCalendar("uid-123", in)
	events := cal.Events()
	if len(events) != 1 {
		t.Fatalf("calendar has %d events, want 1", len(events))
	}

	ev, err := decodeEvent(events[0])
	if err != nil {
		t.Fatalf("decodeEvent() error: %v", err)
	}

	if ev.UID != "uid-123" {
		t.Errorf("UID = %q, want uid-123", ev.UID)
	}
	if ev.Summary != in.Summary {
		t.Errorf("Summary = %q, want %q", ev.Summary, in.Summary)
	}
	if ev.Description != in.Description {
		t.Errorf("Description = %q, want %q", ev.Description, in.Description)
	}
	if ev.Location != in.Location {
		t.Errorf("Location = %q, want %q", ev.Location, in.Location)
	}
	if !ev.Start.Equal(in.Start) {
		t.Errorf("Start = %v, want %v", ev.Start, in.Start)
	}
	if !ev.End.Equal(in.End) {
		t.Errorf("End = %v, want %v", ev.End, in.End)
	}
}

func TestNewEventCalendar_OptionalFields(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	cal := newEventCalendar("uid-456", EventInput{Summary: "Focus block", Start: start})

	ev, err := decodeEvent(cal.Events()[0])
	if err != nil {
		t.Fatalf("decodeEvent() error: %v", err)
	}
	if !ev.End.IsZero() {
		t.Errorf("End = %v, want zero for open-ended event", ev.End)
	}
	if ev.Description != "" || ev.Location != "" {
		t.Errorf("unexpected optional fields: %+v", ev)
	}
}

func TestDecodeObjects_SkipsBroken(t *testing.T) {
	good := newEventCalendar("uid-1", EventInput{
		Summary: "ok",
		Start:   time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
	})

	// An event with no UID and no DTSTART should be skipped, not fail
	// the whole listing.
	broken := newEventCalendar("uid-2", EventInput{
		Summary: "broken",
		Start:   time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC),
	})
	for _, child := range broken.Children {
		child.Props.Del("UID")
	}

	objects := []caldav.CalendarObject{
		{Path: "/cal/a.ics", Data: good},
		{Path: "/cal/b.ics", Data: broken},
	}

	events := decodeObjects(objects, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if len(events) != 1 {
		t.Fatalf("decodeObjects() returned %d events, want 1", len(events))
	}
	if events[0].UID != "uid-1" || events[0].Path != "/cal/a.ics" {
		t.Errorf("unexpected event: %+v", events[0])
	}
}
