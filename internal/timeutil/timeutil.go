// Package timeutil implements the time arithmetic for the trip journal:
// parsing the three accepted input forms, converting between the ledger's
// storage format and display text, durations, and the edit-window check.
//
// All methods hang off a Clock so the current time and the local zone are
// injectable in tests.
package timeutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	storageDateLayout = "02.01.2006"
	storageTimeLayout = "15:04"
	displayLayout     = "02.01.2006 15:04"
)

var (
	fullInputRe = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{4})\s+(\d{1,2}):(\d{2})$`)
	timeInputRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	// The literal "now" tokens, checked case-insensitively.
	nowTokens = map[string]bool{"сейчас": true, "now": true}
)

// Clock carries the configured local zone and the current-time source.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// New builds a Clock for the given IANA time zone name.
func New(tz string) (*Clock, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timeutil.New: load location %q: %w", tz, err)
	}
	return &Clock{loc: loc, now: time.Now}, nil
}

// NewWithNow builds a Clock with an explicit current-time source.
// Tests use this to pin "now".
func NewWithNow(loc *time.Location, now func() time.Time) *Clock {
	return &Clock{loc: loc, now: now}
}

// Now returns the current time in the configured local zone.
func (c *Clock) Now() time.Time { return c.now().In(c.loc) }

// NowUTC returns the current time in UTC.
func (c *Clock) NowUTC() time.Time { return c.now().UTC() }

// Location returns the configured local zone.
func (c *Clock) Location() *time.Location { return c.loc }

// ParseInput parses free-form user input for a date/time. Exactly three
// forms are accepted, tried in order:
//
//	"сейчас" / "now"        → the current local time
//	"DD.MM.YYYY HH:MM"      → that instant in the local zone
//	"HH:MM"                 → that wall time on today's local date
//
// Anything else, including calendar-invalid values like 31.02, returns
// ok=false. That is not an error condition — callers re-prompt.
func (c *Clock) ParseInput(input string) (time.Time, bool) {
	trimmed := normalize(input)

	if nowTokens[trimmed] {
		return c.Now(), true
	}

	if m := fullInputRe.FindStringSubmatch(trimmed); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		hour, _ := strconv.Atoi(m[4])
		minute, _ := strconv.Atoi(m[5])
		return c.buildLocal(year, month, day, hour, minute)
	}

	if m := timeInputRe.FindStringSubmatch(trimmed); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		today := c.Now()
		return c.buildLocal(today.Year(), int(today.Month()), today.Day(), hour, minute)
	}

	return time.Time{}, false
}

// buildLocal constructs a local time and rejects values time.Date would
// silently normalize (e.g. day 31 in February rolling into March).
func (c *Clock) buildLocal(year, month, day, hour, minute int) (time.Time, bool) {
	if hour > 23 || minute > 59 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, c.loc)
	if t.Year() != year || t.Month() != time.Month(month) || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// ValidateSequence reports whether end is not before start.
// Equal timestamps pass: a zero-duration trip is valid.
func (c *Clock) ValidateSequence(start, end time.Time) bool {
	return !end.Before(start)
}

// FormatDuration renders the elapsed time between start and end as whole
// hours and minutes: "5м" when under an hour, "2ч 5м" otherwise.
func (c *Clock) FormatDuration(start, end time.Time) string {
	d := end.Sub(start)
	hours := int(d / time.Hour)
	minutes := int(d%time.Hour) / int(time.Minute)
	if hours > 0 {
		return fmt.Sprintf("%dч %dм", hours, minutes)
	}
	return fmt.Sprintf("%dм", minutes)
}

// ToStorage normalizes t into the local zone and splits it into the
// ledger's date and time columns.
func (c *Clock) ToStorage(t time.Time) (date, tm string) {
	local := t.In(c.loc)
	return local.Format(storageDateLayout), local.Format(storageTimeLayout)
}

// ToDisplay normalizes t into the local zone and renders it for the user.
func (c *Clock) ToDisplay(t time.Time) string {
	return t.In(c.loc).Format(displayLayout)
}

// UTCString renders t as a UTC RFC 3339 string; used only for created_at.
func (c *Clock) UTCString(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// NowUTCString is UTCString of the current instant.
func (c *Clock) NowUTCString() string { return c.UTCString(c.now()) }

// ParseStorage is the inverse of ToStorage. Malformed fields yield ok=false.
func (c *Clock) ParseStorage(date, tm string) (time.Time, bool) {
	t, err := time.ParseInLocation(storageDateLayout+" "+storageTimeLayout, date+" "+tm, c.loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseUTCString parses a created_at value. It accepts the RFC 3339 "Z"
// form this code writes and the "+00:00" offset form.
func ParseUTCString(s string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// WithinEditWindow reports whether a row created at createdAt may still be
// edited. The boundary is closed: an edit exactly at the limit is allowed.
// A malformed createdAt fails closed — the window counts as expired.
func (c *Clock) WithinEditWindow(createdAt string, window time.Duration) bool {
	created, ok := ParseUTCString(createdAt)
	if !ok {
		return false
	}
	return c.NowUTC().Sub(created) <= window
}

// normalize trims and lowercases input before matching.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
