package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateTruncatesToMidnightUTC(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*60*60)
	in := time.Date(2026, time.March, 4, 23, 59, 0, 0, loc)

	got := Date(in)

	assert.Equal(t, time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC), got)
}

func TestFakeClock(t *testing.T) {
	start := time.Date(2026, time.January, 31, 12, 0, 0, 0, time.UTC)
	c := Fake(start)
	assert.Equal(t, start, c.Now())

	c.Advance(24 * time.Hour)
	assert.Equal(t, time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC), Today(c))

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestAddDays(t *testing.T) {
	day := time.Date(2026, time.February, 20, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.March, 13, 0, 0, 0, 0, time.UTC), AddDays(day, 21))
	assert.Equal(t, time.Date(2026, time.February, 19, 0, 0, 0, 0, time.UTC), AddDays(day, -1))
}
