package model

import "time"

// RawPost is one captured social-media post. It is produced by the capture
// layer (or handed in directly via CLI/API) and is immutable for the lifetime
// of a single analysis request.
type RawPost struct {
	// Text is the visible body of the post.
	Text string `json:"text"`
	// URL is the canonical link to the post.
	URL string `json:"url"`
	// PostedAt is the publish instant as an ISO-8601 string, empty when the
	// capture layer could not determine it.
	PostedAt string `json:"postedAt,omitempty"`
}

// ExtractionResult is the normalized output of analyzing one post's text:
// the date/time expressions found, a short human summary, and whether the
// text contains an open-ended "until ..." expression.
type ExtractionResult struct {
	// Dates holds date strings in "YYYY-MM-DD" or "YYYY-MM-DD HH:mm[:ss]"
	// form, in emission order with duplicates removed.
	Dates []string `json:"dates"`

	Summary string `json:"summary"`

	// HasUntilExpression reports whether the text carries a lexical cue for
	// an interval with only an end bound ("まで", "until", ...).
	HasUntilExpression bool `json:"hasUntilExpression"`
}

// DateTimeInfo is the parsed, unambiguous form of one date string.
// HasTime=false means the value denotes a whole calendar day; HasTime=true
// means a specific instant. Values are never mutated; derived values (e.g.
// start+1h) are new DateTimeInfo instances.
type DateTimeInfo struct {
	Instant time.Time
	HasTime bool
}

// CalendarInterval is the resolved event span, each endpoint independently
// timed or all-day.
type CalendarInterval struct {
	Start DateTimeInfo
	End   DateTimeInfo
}
