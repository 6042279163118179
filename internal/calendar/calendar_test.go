package calendar_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/marketpipe/internal/calendar"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestIsTradingDay_Weekends(t *testing.T) {
	nyse := calendar.New()
	assert.False(t, nyse.IsTradingDay(date(2026, time.January, 3))) // Saturday
	assert.False(t, nyse.IsTradingDay(date(2026, time.January, 4))) // Sunday
	assert.True(t, nyse.IsTradingDay(date(2026, time.January, 5)))  // Monday
}

func TestIsTradingDay_FixedHolidays(t *testing.T) {
	nyse := calendar.New()
	assert.False(t, nyse.IsTradingDay(date(2026, time.January, 1)))   // New Year's Day
	assert.False(t, nyse.IsTradingDay(date(2026, time.December, 25))) // Christmas
	assert.False(t, nyse.IsTradingDay(date(2027, time.July, 5)))      // July 4 2027 is Sunday, observed Monday
}

func TestIsTradingDay_ThanksgivingAndGoodFriday2026(t *testing.T) {
	nyse := calendar.New()
	// Thanksgiving 2026 is Thursday, November 26.
	assert.False(t, nyse.IsTradingDay(date(2026, time.November, 26)))
	// Easter 2026 falls on April 5, so Good Friday is April 3.
	assert.False(t, nyse.IsTradingDay(date(2026, time.April, 3)))
}

func TestIsEarlyClose_DayAfterThanksgivingAndChristmasEve(t *testing.T) {
	nyse := calendar.New()
	assert.True(t, nyse.IsEarlyClose(date(2026, time.November, 27)))
	assert.True(t, nyse.IsEarlyClose(date(2026, time.December, 24)))
	assert.False(t, nyse.IsEarlyClose(date(2026, time.November, 25)))
}

func TestPreviousAndNextTradingDay_SkipWeekend(t *testing.T) {
	nyse := calendar.New()
	friday := date(2026, time.January, 2)
	monday := date(2026, time.January, 5)
	assert.True(t, sameDay(nyse.NextTradingDay(friday), monday))
	assert.True(t, sameDay(nyse.PreviousTradingDay(monday), friday))
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
