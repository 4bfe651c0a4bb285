package ics

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/require"

	"calendar-sync/internal/models"
)

func TestExportRendersEvents(t *testing.T) {
	schedules := []models.Schedule{
		{
			ID:           "s1",
			Title:        "Standup",
			StartTime:    models.MustParseTimestamp("2024-05-01T09:00:00"),
			EndTime:      models.MustParseTimestamp("2024-05-01T09:15:00"),
			GroupID:      "grp_12345678",
			Participants: []string{"alice", "bob"},
			CreatedBy:    "alice",
		},
		{
			ID:           "s2",
			Title:        "Holiday",
			StartTime:    models.MustParseTimestamp("2024-05-03T00:00:00"),
			EndTime:      models.MustParseTimestamp("2024-05-03T00:00:00"),
			AllDay:       true,
			Participants: []string{"alice"},
			CreatedBy:    "alice",
			IsPrivate:    true,
		},
	}

	out := Export("alice", schedules, time.Date(2024, 4, 30, 12, 0, 0, 0, time.UTC))

	require.Contains(t, out, "DTSTART:20240501T090000\n")
	require.Contains(t, out, "DTSTART;VALUE=DATE:20240503")
	require.Contains(t, out, "DTEND;VALUE=DATE:20240504")
	require.Contains(t, out, "CLASS:PRIVATE")

	cal, err := ical.ParseCalendar(strings.NewReader(out))
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 2)
	require.Equal(t, "s1@calendar-sync", events[0].Id())
	require.Equal(t, "Standup", events[0].GetProperty(ical.ComponentPropertySummary).Value)
}

func TestExportEmpty(t *testing.T) {
	out := Export("bob", nil, time.Now())
	require.Contains(t, out, "BEGIN:VCALENDAR")
	require.NotContains(t, out, "BEGIN:VEVENT")
}
