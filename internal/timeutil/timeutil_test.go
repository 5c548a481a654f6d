package timeutil_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avoronkov/triplog-bot/internal/timeutil"
)

// fixedClock pins "now" to 2025-03-10 14:30 Moscow time so every test is
// deterministic regardless of when it runs.
func fixedClock(t *testing.T) *timeutil.Clock {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	now := time.Date(2025, 3, 10, 14, 30, 0, 0, loc)
	return timeutil.NewWithNow(loc, func() time.Time { return now })
}

// ---- ParseInput ------------------------------------------------------------

func TestParseInput_NowTokenRussian(t *testing.T) {
	c := fixedClock(t)

	got, ok := c.ParseInput("сейчас")

	require.True(t, ok)
	assert.Equal(t, c.Now(), got)
}

func TestParseInput_NowTokenEnglish_CaseAndSpace(t *testing.T) {
	c := fixedClock(t)

	got, ok := c.ParseInput("  NOW ")

	require.True(t, ok)
	assert.Equal(t, c.Now(), got)
}

func TestParseInput_FullForm(t *testing.T) {
	c := fixedClock(t)

	got, ok := c.ParseInput("05.03.2025 09:15")

	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 5, 9, 15, 0, 0, c.Location()), got)
}

func TestParseInput_FullForm_SingleDigitDayAndMonth(t *testing.T) {
	c := fixedClock(t)

	got, ok := c.ParseInput("5.3.2025 9:15")

	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 5, 9, 15, 0, 0, c.Location()), got)
}

func TestParseInput_TimeOnly_UsesTodaysDate(t *testing.T) {
	c := fixedClock(t)

	got, ok := c.ParseInput("08:05")

	require.True(t, ok)
	// "now" is pinned to 2025-03-10, so the bare wall time lands on that day.
	assert.Equal(t, time.Date(2025, 3, 10, 8, 5, 0, 0, c.Location()), got)
}

func TestParseInput_InvalidCalendarDate(t *testing.T) {
	c := fixedClock(t)

	// 31 February would silently roll into March under time.Date.
	_, ok := c.ParseInput("31.02.2025 10:00")

	assert.False(t, ok)
}

func TestParseInput_InvalidWallTime(t *testing.T) {
	c := fixedClock(t)

	_, ok := c.ParseInput("25:00")

	assert.False(t, ok)
}

func TestParseInput_Garbage(t *testing.T) {
	c := fixedClock(t)

	for _, input := range []string{"", "tomorrow", "10-03-2025 14:00", "14.30", "10:3"} {
		_, ok := c.ParseInput(input)
		assert.False(t, ok, "input %q should not parse", input)
	}
}

// ---- ValidateSequence ------------------------------------------------------

func TestValidateSequence(t *testing.T) {
	c := fixedClock(t)
	start := c.Now()

	assert.True(t, c.ValidateSequence(start, start.Add(time.Minute)))
	// Equal timestamps are a valid zero-duration trip.
	assert.True(t, c.ValidateSequence(start, start))
	assert.False(t, c.ValidateSequence(start, start.Add(-time.Minute)))
}

// ---- FormatDuration --------------------------------------------------------

func TestFormatDuration_UnderAnHour(t *testing.T) {
	c := fixedClock(t)
	start := c.Now()

	assert.Equal(t, "5м", c.FormatDuration(start, start.Add(5*time.Minute)))
}

func TestFormatDuration_HoursAndMinutes(t *testing.T) {
	c := fixedClock(t)
	start := c.Now()

	assert.Equal(t, "2ч 5м", c.FormatDuration(start, start.Add(2*time.Hour+5*time.Minute)))
}

func TestFormatDuration_Zero(t *testing.T) {
	c := fixedClock(t)
	start := c.Now()

	assert.Equal(t, "0м", c.FormatDuration(start, start))
}

// ---- Storage round-trip ----------------------------------------------------

func TestToStorage_SplitsIntoColumns(t *testing.T) {
	c := fixedClock(t)

	date, tm := c.ToStorage(time.Date(2025, 3, 5, 9, 5, 0, 0, c.Location()))

	assert.Equal(t, "05.03.2025", date)
	assert.Equal(t, "09:05", tm)
}

func TestToStorage_ConvertsToLocalZone(t *testing.T) {
	c := fixedClock(t)

	// 06:00 UTC is 09:00 Moscow.
	date, tm := c.ToStorage(time.Date(2025, 3, 5, 6, 0, 0, 0, time.UTC))

	assert.Equal(t, "05.03.2025", date)
	assert.Equal(t, "09:00", tm)
}

func TestParseStorage_RoundTrip(t *testing.T) {
	c := fixedClock(t)
	want := time.Date(2025, 3, 5, 9, 15, 0, 0, c.Location())

	date, tm := c.ToStorage(want)
	got, ok := c.ParseStorage(date, tm)

	require.True(t, ok)
	assert.True(t, want.Equal(got))
}

func TestParseStorage_Malformed(t *testing.T) {
	c := fixedClock(t)

	_, ok := c.ParseStorage("not-a-date", "09:15")

	assert.False(t, ok)
}

// ---- created_at format -----------------------------------------------------

func TestUTCString_RendersZulu(t *testing.T) {
	c := fixedClock(t)

	s := c.UTCString(time.Date(2025, 3, 5, 9, 15, 0, 0, time.UTC))

	assert.Equal(t, "2025-03-05T09:15:00Z", s)
}

func TestParseUTCString_AcceptsBothOffsetForms(t *testing.T) {
	want := time.Date(2025, 3, 5, 9, 15, 0, 0, time.UTC)

	for _, s := range []string{"2025-03-05T09:15:00Z", "2025-03-05T09:15:00+00:00"} {
		got, ok := timeutil.ParseUTCString(s)
		require.True(t, ok, "input %q", s)
		assert.True(t, want.Equal(got), "input %q", s)
	}
}

func TestParseUTCString_Malformed(t *testing.T) {
	_, ok := timeutil.ParseUTCString("05.03.2025 09:15")

	assert.False(t, ok)
}

// ---- WithinEditWindow ------------------------------------------------------

func TestWithinEditWindow_Inside(t *testing.T) {
	c := fixedClock(t)
	createdAt := c.UTCString(c.NowUTC().Add(-10 * time.Minute))

	assert.True(t, c.WithinEditWindow(createdAt, 15*time.Minute))
}

func TestWithinEditWindow_ExactlyAtBoundary(t *testing.T) {
	c := fixedClock(t)
	createdAt := c.UTCString(c.NowUTC().Add(-15 * time.Minute))

	// The boundary is closed: exactly 15 minutes old is still editable.
	assert.True(t, c.WithinEditWindow(createdAt, 15*time.Minute))
}

func TestWithinEditWindow_Expired(t *testing.T) {
	c := fixedClock(t)
	createdAt := c.UTCString(c.NowUTC().Add(-16 * time.Minute))

	assert.False(t, c.WithinEditWindow(createdAt, 15*time.Minute))
}

func TestWithinEditWindow_MalformedFailsClosed(t *testing.T) {
	c := fixedClock(t)

	assert.False(t, c.WithinEditWindow("garbage", 15*time.Minute))
	assert.False(t, c.WithinEditWindow("", 15*time.Minute))
}
