package calendar

import (
	"crypto/sha256"
	"encoding/hex"

	ics "github.com/arran4/golang-ical"

	"post2cal/internal/model"
)

// BuildICS renders the resolved interval as a single-event iCalendar
// document, so the result can be imported into any calendar client rather
// than only opened through the Google Calendar URL scheme.
func (r *Resolver) BuildICS(title, description, sourceURL string, interval model.CalendarInterval) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//post2cal//EN")

	event := cal.AddEvent(eventUID(title, interval))
	event.SetDtStampTime(r.now().UTC())
	event.SetSummary(title)
	if description != "" {
		event.SetDescription(description)
	}
	if sourceURL != "" {
		event.SetURL(sourceURL)
	}

	if interval.Start.HasTime {
		event.SetStartAt(interval.Start.Instant.UTC())
	} else {
		event.SetAllDayStartAt(interval.Start.Instant)
	}
	if interval.End.HasTime {
		event.SetEndAt(interval.End.Instant.UTC())
	} else {
		// DTEND is exclusive for all-day events.
		event.SetAllDayEndAt(interval.End.Instant.AddDate(0, 0, 1))
	}

	return cal.Serialize()
}

// eventUID derives a stable UID from the event's identity so re-exporting
// the same post updates rather than duplicates the event.
func eventUID(title string, interval model.CalendarInterval) string {
	sum := sha256.Sum256([]byte(title + "|" + FormatGoogleDate(interval.Start) + "/" + FormatGoogleDate(interval.End)))
	return hex.EncodeToString(sum[:8]) + "@post2cal"
}
