// Package calendar resolves extracted date strings into a single start/end
// interval and renders it for Google Calendar's URL scheme.
package calendar

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"post2cal/internal/config"
	appLog "post2cal/internal/log"
	"post2cal/internal/model"
)

// spacedDateTimePattern recognizes the "YYYY-MM-DD HH:mm[:ss]" form, which
// carries no offset and is interpreted in the resolver's location.
var spacedDateTimePattern = regexp.MustCompile(`^\d{4}[-/]\d{1,2}[-/]\d{1,2}[ \t]+\d{1,2}:\d{2}(?::\d{2})?$`)

// defaultEventDuration is applied when a single timed mention has no
// explicit end.
const defaultEventDuration = time.Hour

// Resolver turns extraction output into calendar links.
type Resolver struct {
	host string
	loc  *time.Location

	// now is the evaluation clock, replaceable in tests.
	now func() time.Time
}

// NewResolver constructs a Resolver from the application config.
func NewResolver(cfg *config.Config) *Resolver {
	return &Resolver{
		host: cfg.CalendarHost,
		loc:  cfg.Location(),
		now:  time.Now,
	}
}

// ParseDateTimeString parses one date string into a DateTimeInfo.
//
//   - ISO-8601 forms (containing "T" or "Z") parse as timed instants.
//   - "YYYY-MM-DD HH:mm[:ss]" parses as a timed instant in loc.
//   - "YYYY-MM-DD" / "YYYY/MM/DD" parses as a whole calendar day.
//
// The second return is false when the string is not a valid date/time; the
// caller treats that as "skip this date". This function never panics.
func ParseDateTimeString(s string, loc *time.Location) (model.DateTimeInfo, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.DateTimeInfo{}, false
	}

	if strings.ContainsAny(s, "TZ") {
		layouts := []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"}
		for i, layout := range layouts {
			var t time.Time
			var err error
			if i == 0 {
				t, err = time.Parse(layout, s)
			} else {
				// Zone-less ISO forms are interpreted in loc.
				t, err = time.ParseInLocation(layout, s, loc)
			}
			if err == nil {
				return model.DateTimeInfo{Instant: t, HasTime: true}, true
			}
		}
		appLog.Debug("invalid date format", "value", s)
		return model.DateTimeInfo{}, false
	}

	norm := strings.ReplaceAll(s, "/", "-")

	if spacedDateTimePattern.MatchString(s) {
		for _, layout := range []string{"2006-1-2 15:04:05", "2006-1-2 15:04"} {
			if t, err := time.ParseInLocation(layout, norm, loc); err == nil {
				return model.DateTimeInfo{Instant: t, HasTime: true}, true
			}
		}
		appLog.Debug("invalid date format", "value", s)
		return model.DateTimeInfo{}, false
	}

	if t, err := time.ParseInLocation("2006-1-2", norm, loc); err == nil {
		return model.DateTimeInfo{Instant: t, HasTime: false}, true
	}

	appLog.Debug("invalid date format", "value", s)
	return model.DateTimeInfo{}, false
}

// FormatGoogleDate renders a DateTimeInfo in the compact encoding Google
// Calendar's URL scheme expects: UTC "YYYYMMDDTHHMMSSZ" for timed instants,
// "YYYYMMDD" for whole days.
func FormatGoogleDate(info model.DateTimeInfo) string {
	if info.HasTime {
		return info.Instant.UTC().Format("20060102T150405Z")
	}
	return info.Instant.Format("20060102")
}

// Resolve decides the event interval for the given extraction output.
//
// Policy by number of dates:
//   - zero: all-day event on the posted date, falling back to today;
//   - one: "until X" spans from the post instant to X when both are known;
//     a timed mention becomes a one-hour event; a bare date an all-day one;
//   - two or more: the first two entries become start and end.
//
// The second return is false when no interval can be established (an
// unparseable date in a non-empty list); the URL then carries no dates
// parameter.
func (r *Resolver) Resolve(dates []string, postedAt string, hasUntil bool) (model.CalendarInterval, bool) {
	posted, postedOK := ParseDateTimeString(postedAt, r.loc)

	switch {
	case len(dates) == 0:
		var day model.DateTimeInfo
		if postedOK {
			// Posted instant truncated to its calendar day.
			day = r.dateOnly(posted.Instant)
		} else {
			day = r.dateOnly(r.now())
		}
		return model.CalendarInterval{Start: day, End: day}, true

	case len(dates) == 1:
		info, ok := ParseDateTimeString(dates[0], r.loc)
		if !ok {
			return model.CalendarInterval{}, false
		}

		if hasUntil && postedOK {
			// "until X": from the post instant (full precision) until X.
			return model.CalendarInterval{Start: posted, End: info}, true
		}
		if info.HasTime {
			end := model.DateTimeInfo{Instant: info.Instant.Add(defaultEventDuration), HasTime: true}
			return model.CalendarInterval{Start: info, End: end}, true
		}
		return model.CalendarInterval{Start: info, End: info}, true

	default:
		start, okStart := ParseDateTimeString(dates[0], r.loc)
		end, okEnd := ParseDateTimeString(dates[1], r.loc)
		if !okStart || !okEnd {
			return model.CalendarInterval{}, false
		}
		return model.CalendarInterval{Start: start, End: end}, true
	}
}

// BuildURL renders the pre-filled calendar link for the given extraction
// output. When no interval can be established the dates parameter is omitted
// and the calendar service falls back to its own default.
func (r *Resolver) BuildURL(title, description, sourceURL string, dates []string, postedAt string, hasUntil bool) string {
	details := description
	if sourceURL != "" {
		details += "\n\nURL: " + sourceURL
	}

	params := url.Values{}
	params.Set("action", "TEMPLATE")
	params.Set("text", title)
	params.Set("details", details)

	if interval, ok := r.Resolve(dates, postedAt, hasUntil); ok {
		params.Set("dates", FormatGoogleDate(interval.Start)+"/"+FormatGoogleDate(interval.End))
	} else {
		appLog.Info("no resolvable dates, link will have no dates parameter", "date_count", len(dates))
	}

	return "https://" + r.host + "/render?" + params.Encode()
}

// dateOnly truncates an instant to its calendar day in the resolver's
// location.
func (r *Resolver) dateOnly(t time.Time) model.DateTimeInfo {
	y, m, d := t.In(r.loc).Date()
	return model.DateTimeInfo{Instant: time.Date(y, m, d, 0, 0, 0, 0, r.loc), HasTime: false}
}
