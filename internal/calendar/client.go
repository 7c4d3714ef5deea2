package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"github.com/sentellent/senti/internal/config"
	"github.com/sentellent/senti/internal/httpkit"
)

// Client talks to a single CalDAV calendar collection.
type Client struct {
	client  *caldav.Client
	calPath string
	logger  *slog.Logger
}

// NewClient creates a CalDAV client for the configured calendar
// collection URL. Basic auth is used when a username is set.
func NewClient(cfg config.CalendarConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse calendar URL %q: %w", cfg.URL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("calendar URL %q must be absolute", cfg.URL)
	}

	var httpClient webdav.HTTPClient = httpkit.NewClient()
	if cfg.Username != "" {
		httpClient = webdav.HTTPClientWithBasicAuth(httpkit.NewClient(), cfg.Username, cfg.Password)
	}

	endpoint := u.Scheme + "://" + u.Host
	cl, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("create CalDAV client: %w", err)
	}

	calPath := u.Path
	if !strings.HasSuffix(calPath, "/") {
		calPath += "/"
	}

	return &Client{
		client:  cl,
		calPath: calPath,
		logger:  logger,
	}, nil
}

// ListEvents returns events overlapping the [start, end) window,
// ordered by start time.
func (c *Client) ListEvents(ctx context.Context, start, end time.Time) ([]Event, error) {
	query := &caldav.CalendarQuery{
		CompRequest: eventCompRequest(),
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: start,
				End:   end,
			}},
		},
	}

	objects, err := c.client.QueryCalendar(ctx, c.calPath, query)
	if err != nil {
		return nil, fmt.Errorf("query calendar: %w", err)
	}

	events := decodeObjects(objects, c.logger)
	sort.Slice(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
	return events, nil
}

// CreateEvent creates a new event in the collection and returns it
// with its assigned UID and object path.
func (c *Client) CreateEvent(ctx context.Context, in EventInput) (Event, error) {
	if err := in.Validate(); err != nil {
		return Event{}, err
	}

	uid := uuid.NewString()
	path := c.calPath + uid + ".ics"

	cal := newEventCalendar(uid, in)
	if _, err := c.client.PutCalendarObject(ctx, path, cal); err != nil {
		return Event{}, fmt.Errorf("put calendar object: %w", err)
	}

	c.logger.Info("calendar event created", "uid", uid, "summary", in.Summary, "start", in.Start)

	return Event{
		UID:         uid,
		Path:        path,
		Summary:     in.Summary,
		Description: in.Description,
		Location:    in.Location,
		Start:       in.Start,
		End:         in.End,
	}, nil
}

// DeleteEvent removes the event with the given UID from the
// collection.
func (c *Client) DeleteEvent(ctx context.Context, uid string) error {
	if uid == "" {
		return fmt.Errorf("uid is required")
	}

	path, err := c.findEventPath(ctx, uid)
	if err != nil {
		return err
	}

	if err := c.client.RemoveAll(ctx, path); err != nil {
		return fmt.Errorf("remove calendar object: %w", err)
	}

	c.logger.Info("calendar event deleted", "uid", uid)
	return nil
}

// findEventPath locates the object path for a UID. Events created by
// Senti live at <uid>.ics, but events from other clients can have any
// path, so the UID is matched server-side with a prop filter.
func (c *Client) findEventPath(ctx context.Context, uid string) (string, error) {
	query := &caldav.CalendarQuery{
		CompRequest: eventCompRequest(),
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name: ical.CompEvent,
				Props: []caldav.PropFilter{{
					Name:      ical.PropUID,
					TextMatch: &caldav.TextMatch{Text: uid},
				}},
			}},
		},
	}

	objects, err := c.client.QueryCalendar(ctx, c.calPath, query)
	if err != nil {
		return "", fmt.Errorf("query calendar: %w", err)
	}

	for _, obj := range objects {
		for _, ev := range decodeObjects([]caldav.CalendarObject{obj}, c.logger) {
			if ev.UID == uid {
				return obj.Path, nil
			}
		}
	}

	return "", fmt.Errorf("no event with UID %s", uid)
}

// eventCompRequest asks the server for full VEVENT data.
func eventCompRequest() caldav.CalendarCompRequest {
	return caldav.CalendarCompRequest{
		Name: ical.CompCalendar,
		Comps: []caldav.CalendarCompRequest{{
			Name:     ical.CompEvent,
			AllProps: true,
		}},
	}
}

// decodeObjects converts CalDAV calendar objects into Events,
// skipping components that fail to decode.
func decodeObjects(objects []caldav.CalendarObject, logger *slog.Logger) []Event {
	var events []Event
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, raw := range obj.Data.Events() {
			ev, err := decodeEvent(raw)
			if err != nil {
				logger.Debug("skipping calendar event", "path", obj.Path, "error", err)
				continue
			}
			ev.Path = obj.Path
			events = append(events, ev)
		}
	}
	return events
}

// decodeEvent extracts an Event from a VEVENT component.
func decodeEvent(raw ical.Event) (Event, error) {
	var ev Event

	if prop := raw.Props.Get(ical.PropUID); prop != nil {
		ev.UID = prop.Value
	}
	if ev.UID == "" {
		return ev, fmt.Errorf("event missing UID")
	}

	start, err := raw.DateTimeStart(time.Local)
	if err != nil {
		return ev, fmt.Errorf("event %s: decode start: %w", ev.UID, err)
	}
	ev.Start = start

	// DTEND is optional. DateTimeEnd falls back to the start time when
	// the property is absent, so check for it explicitly to keep
	// open-ended events open-ended.
	if raw.Props.Get(ical.PropDateTimeEnd) != nil {
		if end, err := raw.DateTimeEnd(time.Local); err == nil {
			ev.End = end
		}
	}

	if prop := raw.Props.Get(ical.PropSummary); prop != nil {
		ev.Summary = prop.Value
	}
	if prop := raw.Props.Get(ical.PropDescription); prop != nil {
		ev.Description = prop.Value
	}
	if prop := raw.Props.Get(ical.PropLocation); prop != nil {
		ev.Location = prop.Value
	}

	return ev, nil
}

// newEventCalendar builds a VCALENDAR wrapping a single VEVENT for
// the given input.
func newEventCalendar(uid string, in EventInput) *ical.Calendar {
	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, uid)
	event.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, in.Start)
	if !in.End.IsZero() {
		event.Props.SetDateTime(ical.PropDateTimeEnd, in.End)
	}
	event.Props.SetText(ical.PropSummary, in.Summary)
	if in.Description != "" {
		event.Props.SetText(ical.PropDescription, in.Description)
	}
	if in.Location != "" {
		event.Props.SetText(ical.PropLocation, in.Location)
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//Sentellent//Senti//EN")
	cal.Children = append(cal.Children, event.Component)
	return cal
}
