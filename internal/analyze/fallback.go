package analyze

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"post2cal/internal/model"
)

// untilPattern covers the lexical cues for an "until/duration" expression:
// Japanese まで/〜/から/より/の間/期間 and word-bounded English
// until/during/for.
var untilPattern = regexp.MustCompile(`まで|〜|～|から|より|の間|期間|(?i:\b(?:until|during|for)\b)`)

// summaryMaxRunes bounds the fallback summary length.
const summaryMaxRunes = 200

// A matcher scans content for one class of date/time expression and returns
// normalized "YYYY-MM-DD[ HH:mm[:ss]]" candidates. Matchers are pure: the
// evaluation clock is passed in, never read from the environment.
type matcher func(content string, now time.Time) []string

var matchers = []matcher{
	matchDateTime,
	matchDateOnly,
	matchDayMonthTime,
	matchBareTime,
	matchTwelveHourClock,
}

// Fallback deterministically extracts an ExtractionResult from model content
// that failed strict JSON parsing. Each matcher contributes an independent
// candidate set; the union is deduplicated preserving first-seen order.
func Fallback(content string, now time.Time) model.ExtractionResult {
	seen := make(map[string]struct{})
	dates := []string{}

	for _, m := range matchers {
		for _, candidate := range m(content, now) {
			if _, dup := seen[candidate]; dup {
				continue
			}
			seen[candidate] = struct{}{}
			dates = append(dates, candidate)
		}
	}

	return model.ExtractionResult{
		Dates:              dates,
		Summary:            truncateSummary(content),
		HasUntilExpression: HasUntilCue(content),
	}
}

// HasUntilCue reports whether content contains any "until/duration" lexical
// cue.
func HasUntilCue(content string) bool {
	return untilPattern.MatchString(content)
}

func truncateSummary(content string) string {
	runes := []rune(content)
	if len(runes) <= summaryMaxRunes {
		return content
	}
	return string(runes[:summaryMaxRunes]) + "..."
}

var (
	dateTimePattern     = regexp.MustCompile(`\b(\d{4})[-/](\d{1,2})[-/](\d{1,2})[ \t]+(\d{1,2}):(\d{2})(?::(\d{2}))?\b`)
	dateOnlyPattern     = regexp.MustCompile(`\b(\d{4})[-/](\d{1,2})[-/](\d{1,2})\b`)
	dayMonthTimePattern = regexp.MustCompile(`\b(\d{1,2})[-/](\d{1,2})[ \t]+(\d{1,2}):(\d{2})\b`)
	bareTimePattern     = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	timeSuffixPattern   = regexp.MustCompile(`^[ \t]+\d{1,2}:\d{2}`)
	datePrefixPattern   = regexp.MustCompile(`(\d{4})[-/](\d{1,2})[-/](\d{1,2})$`)
	yearPrefixPattern   = regexp.MustCompile(`\d{4}[-/]$`)
	amPMPattern         = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?[ \t]*([ap])\.?m\.?\b`)
	jpTwelveHourPattern = regexp.MustCompile(`(午前|午後)(\d{1,2})時(?:(\d{1,2})分)?`)
)

// matchDateTime extracts full datetimes, with or without seconds.
func matchDateTime(content string, _ time.Time) []string {
	var out []string
	for _, m := range dateTimePattern.FindAllStringSubmatch(content, -1) {
		s := fmt.Sprintf("%s-%s-%s %s:%s", m[1], pad2(m[2]), pad2(m[3]), pad2(m[4]), m[5])
		if m[6] != "" {
			s += ":" + m[6]
		}
		out = append(out, s)
	}
	return out
}

// matchDateOnly extracts bare dates. A date immediately followed by a time
// of day is left to matchDateTime.
func matchDateOnly(content string, _ time.Time) []string {
	var out []string
	for _, idx := range dateOnlyPattern.FindAllStringSubmatchIndex(content, -1) {
		if timeSuffixPattern.MatchString(content[idx[1]:]) {
			continue
		}
		m := dateOnlyPattern.FindStringSubmatch(content[idx[0]:idx[1]])
		out = append(out, fmt.Sprintf("%s-%s-%s", m[1], pad2(m[2]), pad2(m[3])))
	}
	return out
}

// matchDayMonthTime extracts "MM-DD HH:mm" and supplies the current year.
// A day-month preceded by "YYYY-" is part of a full date and is skipped.
func matchDayMonthTime(content string, now time.Time) []string {
	var out []string
	for _, idx := range dayMonthTimePattern.FindAllStringSubmatchIndex(content, -1) {
		if yearPrefixPattern.MatchString(content[:idx[0]]) {
			continue
		}
		m := dayMonthTimePattern.FindStringSubmatch(content[idx[0]:idx[1]])
		out = append(out, fmt.Sprintf("%d-%s-%s %s:%s",
			now.Year(), pad2(m[1]), pad2(m[2]), pad2(m[3]), m[4]))
	}
	return out
}

// matchBareTime extracts a lone "HH:mm" and supplies today's date. Times that
// directly follow a date are left to matchDateTime.
func matchBareTime(content string, now time.Time) []string {
	var out []string
	for _, idx := range bareTimePattern.FindAllStringSubmatchIndex(content, -1) {
		if precededByDate(content, idx[0]) {
			continue
		}
		m := bareTimePattern.FindStringSubmatch(content[idx[0]:idx[1]])
		out = append(out, fmt.Sprintf("%s %s:%s", now.Format("2006-01-02"), pad2(m[1]), m[2]))
	}
	return out
}

// matchTwelveHourClock extracts 12-hour clock expressions with an AM/PM
// marker or the Japanese 午前/午後 equivalents, normalized to 24-hour form
// on today's date. Hour 12 maps to 00 before noon and stays 12 after noon.
func matchTwelveHourClock(content string, now time.Time) []string {
	var out []string
	today := now.Format("2006-01-02")

	for _, m := range amPMPattern.FindAllStringSubmatch(content, -1) {
		hour, err := strconv.Atoi(m[1])
		if err != nil || hour > 12 {
			continue
		}
		minute := m[2]
		if minute == "" {
			minute = "00"
		}
		afternoon := strings.EqualFold(m[3], "p")
		out = append(out, fmt.Sprintf("%s %02d:%s", today, to24Hour(hour, afternoon), minute))
	}

	for _, m := range jpTwelveHourPattern.FindAllStringSubmatch(content, -1) {
		hour, err := strconv.Atoi(m[2])
		if err != nil || hour > 12 {
			continue
		}
		minute := 0
		if m[3] != "" {
			minute, _ = strconv.Atoi(m[3])
		}
		afternoon := m[1] == "午後"
		out = append(out, fmt.Sprintf("%s %02d:%02d", today, to24Hour(hour, afternoon), minute))
	}

	return out
}

func to24Hour(hour int, afternoon bool) int {
	if afternoon {
		if hour == 12 {
			return 12
		}
		return hour + 12
	}
	if hour == 12 {
		return 0
	}
	return hour
}

// precededByDate reports whether the text immediately before offset ends in a
// date followed by whitespace, meaning a time match at offset belongs to a
// full datetime.
func precededByDate(content string, offset int) bool {
	prefix := strings.TrimRight(content[:offset], " \t")
	return datePrefixPattern.MatchString(prefix)
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
