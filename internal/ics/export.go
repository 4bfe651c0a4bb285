package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"calendar-sync/internal/models"
)

// floatingFormat renders a date-time without a zone designator. Schedule times
// carry no zone, so clients place them in their own local time.
const floatingFormat = "20060102T150405"

// Export renders the schedules visible to username as an iCalendar feed.
func Export(username string, schedules []models.Schedule, stamp time.Time) string {
	cal := ical.NewCalendarFor("calendar-sync")
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(username)

	for _, schedule := range schedules {
		event := cal.AddEvent(schedule.ID + "@calendar-sync")
		event.SetDtStampTime(stamp)
		event.SetSummary(schedule.Title)
		if schedule.Description != "" {
			event.SetDescription(schedule.Description)
		}

		if schedule.AllDay {
			event.SetAllDayStartAt(schedule.StartTime.Time)
			// DTEND is exclusive for date values.
			event.SetAllDayEndAt(schedule.EndTime.AddDate(0, 0, 1))
		} else {
			event.SetProperty(ical.ComponentPropertyDtStart, schedule.StartTime.Format(floatingFormat))
			event.SetProperty(ical.ComponentPropertyDtEnd, schedule.EndTime.Format(floatingFormat))
		}

		if schedule.IsPrivate {
			event.SetClass(ical.ClassificationPrivate)
		} else {
			event.SetClass(ical.ClassificationPublic)
		}

		event.SetOrganizer(schedule.CreatedBy, ical.WithCN(schedule.CreatedBy))
		for _, participant := range schedule.Participants {
			event.AddAttendee(participant, ical.WithCN(participant))
		}
		if schedule.GroupID != "" {
			event.SetProperty(ical.ComponentProperty("X-CALSYNC-GROUP"), schedule.GroupID)
		}
	}

	return cal.Serialize()
}
