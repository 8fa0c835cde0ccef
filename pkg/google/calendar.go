package google

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/autosched/pkg/model"
)

const (
	statusCancelled = "cancelled"
	transparent     = "transparent"
	pageSize        = 250
)

// CalendarReader reads busy time from Google Calendar. Each user id maps to a
// calendar name on the single authenticated account.
type CalendarReader struct {
	srv      *calendar.Service
	calendar func(userID string) string
	limiter  *rate.Limiter
	log      zerolog.Logger

	mu  sync.Mutex
	ids map[string]string
}

type Option func(*CalendarReader)

// WithLimiter replaces the default limiter of 5 calls per second.
func WithLimiter(l *rate.Limiter) Option { return func(c *CalendarReader) { c.limiter = l } }

func WithLogger(log zerolog.Logger) Option { return func(c *CalendarReader) { c.log = log } }

// NewCalendarReader wraps srv. calendarFor names the calendar to read for a user.
func NewCalendarReader(srv *calendar.Service, calendarFor func(userID string) string, opts ...Option) *CalendarReader {
	c := &CalendarReader{
		srv:      srv,
		calendar: calendarFor,
		limiter:  rate.NewLimiter(rate.Limit(5), 5),
		log:      zerolog.Nop(),
		ids:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetEvents lists the user's opaque, non-cancelled events in [q.TimeMin, q.TimeMax).
// Recurring events are expanded into instances.
func (c *CalendarReader) GetEvents(ctx context.Context, userID string, q model.EventQuery) ([]model.CalendarEvent, error) {
	calID, err := c.calendarID(ctx, c.calendar(userID))
	if err != nil {
		return nil, err
	}

	var (
		out   []model.CalendarEvent
		token string
	)
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		call := c.srv.Events.List(calID).Context(ctx).
			TimeMin(q.TimeMin.Format(time.RFC3339)).
			TimeMax(q.TimeMax.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			MaxResults(pageSize)
		if token != "" {
			call = call.PageToken(token)
		}
		events, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve events from calendar: %w", err)
		}

		for _, item := range events.Items {
			ev, ok, err := toCalendarEvent(item)
			if err != nil {
				c.log.Debug().Err(err).Str("event_id", item.Id).Msg("skipping unreadable event")
				continue
			}
			if !ok {
				continue
			}
			if q.MaxResults > 0 && int64(len(out)) >= q.MaxResults {
				c.log.Warn().Str("calendar", calID).Int64("max_results", q.MaxResults).
					Msg("event limit reached, later busy time ignored")
				return out, nil
			}
			out = append(out, ev)
		}

		token = events.NextPageToken
		if token == "" {
			return out, nil
		}
	}
}

// calendarID resolves a calendar name to its id once and caches it. "primary" is
// passed through.
func (c *CalendarReader) calendarID(ctx context.Context, name string) (string, error) {
	if name == "primary" {
		return name, nil
	}

	c.mu.Lock()
	id, ok := c.ids[name]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	list, err := c.srv.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to retrieve calendar list: %w", err)
	}
	for _, item := range list.Items {
		if item.Summary == name {
			c.mu.Lock()
			c.ids[name] = item.Id
			c.mu.Unlock()
			return item.Id, nil
		}
	}
	return "", fmt.Errorf("calendar '%s' not found", name)
}

// toCalendarEvent reports false for events that do not block time.
func toCalendarEvent(e *calendar.Event) (model.CalendarEvent, bool, error) {
	if e.Status == statusCancelled || e.Transparency == transparent {
		return model.CalendarEvent{}, false, nil
	}
	start, err := eventTime(e.Start)
	if err != nil {
		return model.CalendarEvent{}, false, err
	}
	end, err := eventTime(e.End)
	if err != nil {
		return model.CalendarEvent{}, false, err
	}
	return model.CalendarEvent{ID: e.Id, Summary: e.Summary, Start: start, End: end}, true, nil
}

func eventTime(dt *calendar.EventDateTime) (model.EventTime, error) {
	if dt == nil {
		return model.EventTime{}, fmt.Errorf("missing event time")
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return model.EventTime{}, fmt.Errorf("parse event time %q: %w", dt.DateTime, err)
		}
		return model.EventTime{DateTime: t}, nil
	}
	if dt.Date != "" {
		return model.EventTime{Date: dt.Date}, nil
	}
	return model.EventTime{}, fmt.Errorf("event time has neither date nor datetime")
}
