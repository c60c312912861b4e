package calendar

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"post2cal/internal/config"
	"post2cal/internal/model"
)

func testResolver(t *testing.T) *Resolver {
	t.Helper()
	cfg := config.DefaultConfig()
	r := NewResolver(cfg)
	// Pin the evaluation clock so zero-date fallbacks are deterministic.
	r.now = func() time.Time {
		return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	}
	return r
}

func jst(t *testing.T) *time.Location {
	t.Helper()
	return config.DefaultConfig().Location()
}

func TestParseDateTimeString(t *testing.T) {
	loc := jst(t)

	tests := []struct {
		name        string
		input       string
		wantOK      bool
		wantHasTime bool
		wantUTC     string // RFC3339 of expected instant in UTC, timed only
	}{
		{
			name:        "ISO with zone",
			input:       "2024-01-10T09:00:00Z",
			wantOK:      true,
			wantHasTime: true,
			wantUTC:     "2024-01-10T09:00:00Z",
		},
		{
			name:        "ISO without zone is local",
			input:       "2024-01-10T09:00:00",
			wantOK:      true,
			wantHasTime: true,
			wantUTC:     "2024-01-10T00:00:00Z",
		},
		{
			name:        "spaced datetime",
			input:       "2024-01-20 15:30",
			wantOK:      true,
			wantHasTime: true,
			wantUTC:     "2024-01-20T06:30:00Z",
		},
		{
			name:        "spaced datetime with seconds",
			input:       "2024-01-20 15:30:45",
			wantOK:      true,
			wantHasTime: true,
			wantUTC:     "2024-01-20T06:30:45Z",
		},
		{
			name:   "date only",
			input:  "2024-01-20",
			wantOK: true,
		},
		{
			name:   "date only with slashes",
			input:  "2024/01/20",
			wantOK: true,
		},
		{name: "garbage", input: "not-a-date"},
		{name: "impossible date", input: "2024-13-45"},
		{name: "impossible time", input: "2024-01-20 99:99"},
		{name: "empty", input: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, ok := ParseDateTimeString(tt.input, loc)
			require.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.Equal(t, tt.wantHasTime, info.HasTime)
			if tt.wantUTC != "" {
				assert.Equal(t, tt.wantUTC, info.Instant.UTC().Format(time.RFC3339))
			}
		})
	}
}

func TestParseDateTimeStringRoundTrip(t *testing.T) {
	loc := jst(t)

	// A timed value survives a render-equivalent ISO round trip.
	timed, ok := ParseDateTimeString("2024-01-20 15:30", loc)
	require.True(t, ok)
	rendered := timed.Instant.UTC().Format(time.RFC3339)
	back, ok := ParseDateTimeString(rendered, loc)
	require.True(t, ok)
	assert.True(t, timed.Instant.Equal(back.Instant))

	// A date-only value keeps its calendar date.
	day, ok := ParseDateTimeString("2024-01-20", loc)
	require.True(t, ok)
	assert.Equal(t, "20240120", FormatGoogleDate(day))
	again, ok := ParseDateTimeString(day.Instant.Format("2006-01-02"), loc)
	require.True(t, ok)
	assert.Equal(t, "20240120", FormatGoogleDate(again))
}

func TestFormatGoogleDate(t *testing.T) {
	loc := jst(t)

	timed := model.DateTimeInfo{
		Instant: time.Date(2024, 1, 20, 15, 30, 0, 0, loc),
		HasTime: true,
	}
	assert.Equal(t, "20240120T063000Z", FormatGoogleDate(timed))

	day := model.DateTimeInfo{Instant: time.Date(2024, 1, 20, 0, 0, 0, 0, loc)}
	assert.Equal(t, "20240120", FormatGoogleDate(day))
}

func intervalString(t *testing.T, r *Resolver, dates []string, postedAt string, hasUntil bool) (string, bool) {
	t.Helper()
	interval, ok := r.Resolve(dates, postedAt, hasUntil)
	if !ok {
		return "", false
	}
	return FormatGoogleDate(interval.Start) + "/" + FormatGoogleDate(interval.End), true
}

func TestResolveZeroDates(t *testing.T) {
	r := testResolver(t)

	got, ok := intervalString(t, r, nil, "2024-01-15T10:00:00Z", false)
	require.True(t, ok)
	assert.Equal(t, "20240115/20240115", got)

	// Without a parseable posted-at, the evaluation clock's date is used.
	got, ok = intervalString(t, r, nil, "", false)
	require.True(t, ok)
	assert.Equal(t, "20240301/20240301", got)

	got, ok = intervalString(t, r, nil, "yesterday-ish", false)
	require.True(t, ok)
	assert.Equal(t, "20240301/20240301", got)
}

func TestResolveSingleDate(t *testing.T) {
	r := testResolver(t)

	t.Run("date only becomes all-day", func(t *testing.T) {
		got, ok := intervalString(t, r, []string{"2024-01-20"}, "", false)
		require.True(t, ok)
		assert.Equal(t, "20240120/20240120", got)
	})

	t.Run("timed becomes one-hour event", func(t *testing.T) {
		got, ok := intervalString(t, r, []string{"2024-01-20 15:30"}, "", false)
		require.True(t, ok)
		assert.Equal(t, "20240120T063000Z/20240120T073000Z", got)
	})

	t.Run("until spans from post instant", func(t *testing.T) {
		got, ok := intervalString(t, r, []string{"2024-01-25"}, "2024-01-10T09:00:00Z", true)
		require.True(t, ok)
		assert.Equal(t, "20240110T090000Z/20240125", got)
	})

	t.Run("until without posted-at falls back to all-day", func(t *testing.T) {
		got, ok := intervalString(t, r, []string{"2024-01-25"}, "", true)
		require.True(t, ok)
		assert.Equal(t, "20240125/20240125", got)
	})

	t.Run("unparseable date yields no interval", func(t *testing.T) {
		_, ok := intervalString(t, r, []string{"not-a-date"}, "2024-01-15T10:00:00Z", false)
		assert.False(t, ok)
	})
}

func TestResolveTwoDates(t *testing.T) {
	r := testResolver(t)

	got, ok := intervalString(t, r, []string{"2024-01-20", "2024-01-25"}, "", false)
	require.True(t, ok)
	assert.Equal(t, "20240120/20240125", got)

	// Each endpoint is independently timed or all-day.
	got, ok = intervalString(t, r, []string{"2024-01-20 15:30", "2024-01-25"}, "", false)
	require.True(t, ok)
	assert.Equal(t, "20240120T063000Z/20240125", got)

	// Entries beyond the second are ignored.
	got, ok = intervalString(t, r, []string{"2024-01-20", "2024-01-25", "2024-02-01"}, "", false)
	require.True(t, ok)
	assert.Equal(t, "20240120/20240125", got)

	// Either endpoint failing to parse drops the interval entirely.
	_, ok = intervalString(t, r, []string{"2024-01-20", "bogus"}, "", false)
	assert.False(t, ok)
}

func TestBuildURL(t *testing.T) {
	r := testResolver(t)

	raw := r.BuildURL("Launch party", "Party details", "https://x.com/u/status/1",
		[]string{"2024-01-20"}, "", false)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "calendar.google.com", u.Host)
	assert.Equal(t, "/calendar/render", u.Path)

	q := u.Query()
	assert.Equal(t, "TEMPLATE", q.Get("action"))
	assert.Equal(t, "Launch party", q.Get("text"))
	assert.Equal(t, "Party details\n\nURL: https://x.com/u/status/1", q.Get("details"))
	assert.Equal(t, "20240120/20240120", q.Get("dates"))
}

func TestBuildURLUnparseableDateOmitsDatesParam(t *testing.T) {
	r := testResolver(t)

	raw := r.BuildURL("t", "d", "", []string{"not-a-date"}, "2024-01-15T10:00:00Z", false)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.False(t, u.Query().Has("dates"))
}

func TestBuildURLWithoutSourceURL(t *testing.T) {
	r := testResolver(t)

	raw := r.BuildURL("t", "details only", "", nil, "2024-01-15T10:00:00Z", false)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "details only", u.Query().Get("details"))
	assert.Equal(t, "20240115/20240115", u.Query().Get("dates"))
}

func TestBuildICS(t *testing.T) {
	r := testResolver(t)

	t.Run("all-day event", func(t *testing.T) {
		interval, ok := r.Resolve([]string{"2024-01-20"}, "", false)
		require.True(t, ok)

		body := r.BuildICS("New year meetup", "details", "https://x.com/u/status/1", interval)
		assert.Contains(t, body, "BEGIN:VCALENDAR")
		assert.Contains(t, body, "SUMMARY:New year meetup")
		assert.Contains(t, body, "DTSTART;VALUE=DATE:20240120")
		// All-day DTEND is exclusive.
		assert.Contains(t, body, "DTEND;VALUE=DATE:20240121")
		assert.Contains(t, body, "URL:https://x.com/u/status/1")
	})

	t.Run("timed event", func(t *testing.T) {
		interval, ok := r.Resolve([]string{"2024-01-20 15:30"}, "", false)
		require.True(t, ok)

		body := r.BuildICS("Meeting", "", "", interval)
		assert.Contains(t, body, "DTSTART:20240120T063000Z")
		assert.Contains(t, body, "DTEND:20240120T073000Z")
	})

	t.Run("stable UID per identity", func(t *testing.T) {
		interval, ok := r.Resolve([]string{"2024-01-20"}, "", false)
		require.True(t, ok)

		first := r.BuildICS("Meetup", "", "", interval)
		second := r.BuildICS("Meetup", "", "", interval)

		uid := func(body string) string {
			for _, line := range strings.Split(body, "\r\n") {
				if strings.HasPrefix(line, "UID:") {
					return line
				}
			}
			return ""
		}
		require.NotEmpty(t, uid(first))
		assert.Equal(t, uid(first), uid(second))
	})
}
