package google

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/harrisonrobin/autosched/pkg/auth"
)

// NewClient authenticates with the token cached in authDir and returns a reader
// for the calendars calendarFor names.
func NewClient(ctx context.Context, authDir string, calendarFor func(userID string) string, log zerolog.Logger) (*CalendarReader, error) {
	srv, err := auth.CalendarService(ctx, authDir, log)
	if err != nil {
		return nil, err
	}
	return NewCalendarReader(srv, calendarFor, WithLogger(log)), nil
}
