package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)

	day, err := ParseDate("2026-09-07", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 7, 0, 0, 0, 0, loc), day)

	_, err = ParseDate("07.09.2026", loc)
	assert.Error(t, err)
	_, err = ParseDate("", loc)
	assert.Error(t, err)
}

func TestStartOfWeek(t *testing.T) {
	monday := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

	for d := 0; d < 7; d++ {
		at := monday.AddDate(0, 0, d).Add(13 * time.Hour)
		assert.Equal(t, monday, StartOfWeek(at), "day offset %d", d)
	}
	// Sunday belongs to the preceding Monday's week.
	sunday := monday.AddDate(0, 0, 6)
	assert.Equal(t, monday, StartOfWeek(sunday))
	// The next Monday starts a new week.
	assert.Equal(t, monday.AddDate(0, 0, 7), StartOfWeek(monday.AddDate(0, 0, 7)))
}

func TestAtHour(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)

	day := time.Date(2026, 9, 7, 18, 45, 0, 0, loc)
	at := AtHour(day, 9)
	assert.Equal(t, time.Date(2026, 9, 7, 9, 0, 0, 0, loc), at)
}

func TestDuration(t *testing.T) {
	d, err := Duration("2026-09-07T09:00:00Z", "2026-09-07T09:15:00Z")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, d)

	_, err = Duration("bad", "2026-09-07T09:15:00Z")
	assert.Error(t, err)
}
