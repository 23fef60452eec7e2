package notify

import (
	"fmt"
	"time"

	"calling-assistant/internal/appointments"

	ics "github.com/arran4/golang-ical"
)

const productID = "-//calling-assistant//bookings//EN"

// Invite renders a as an RFC 5545 REQUEST, with times interpreted in loc.
func Invite(a appointments.Appointment, org appointments.Organizer, loc *time.Location, now time.Time) (string, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation("2006-01-02", a.Date, loc)
	if err != nil {
		return "", fmt.Errorf("invite date: %w", err)
	}
	start := day.Add(time.Duration(a.StartTime) * time.Minute)
	end := day.Add(time.Duration(a.EndTime) * time.Minute)

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodRequest)
	cal.SetProductId(productID)

	ev := cal.AddEvent(fmt.Sprintf("appointment-%d@calling-assistant", a.ID))
	ev.SetDtStampTime(now.UTC())
	ev.SetCreatedTime(now.UTC())
	ev.SetStartAt(start.UTC())
	ev.SetEndAt(end.UTC())
	ev.SetSummary(a.Title)
	ev.SetDescription(describe(a))

	name := org.Name
	if name == "" {
		name = org.Email
	}
	ev.SetOrganizer("mailto:"+org.Email, ics.WithCN(name))
	if a.AttendeeEmail != "" {
		ev.AddAttendee("mailto:"+a.AttendeeEmail,
			ics.CalendarUserTypeIndividual,
			ics.ParticipationStatusNeedsAction,
			ics.ParticipationRoleReqParticipant,
			ics.WithCN(a.AttendeeName),
			ics.WithRSVP(true),
		)
	}
	return cal.Serialize(), nil
}

func describe(a appointments.Appointment) string {
	s := fmt.Sprintf("%s with %s, %s %s-%s", a.Title, a.AttendeeName, a.Date, a.StartTime, a.EndTime)
	if a.Description != "" {
		s += "\n\n" + a.Description
	}
	if a.Notes != "" {
		s += "\n\nNotes: " + a.Notes
	}
	return s
}
