// Package marketcal provides the trading-calendar collaborator used by the
// daily sync: which days are trading days and when the next market close
// lands.
package marketcal

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// Calendar answers whether a given date is a trading day
type Calendar interface {
	IsTradingDay(t time.Time) bool
}

// WeekdayCalendar treats every weekday as a trading day.
// Exchange holidays are not modeled; a sync on a holiday fetches nothing
// new and upserts idempotently, so the cost of the approximation is one
// wasted provider call.
type WeekdayCalendar struct{}

// IsTradingDay reports whether t falls on a weekday in Paris time
func (WeekdayCalendar) IsTradingDay(t time.Time) bool {
	wd := t.In(parisLocation()).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// NextMarketClose predicts the next Euronext close after input.
// It handles timezone conversion and business day logic, returning the next
// weekday at 5:30 PM Paris time, in UTC.
func NextMarketClose(input time.Time) time.Time {
	loc := parisLocation()
	nowParis := input.In(loc)

	// Start with today at 5:30 PM Paris
	next := time.Date(nowParis.Year(), nowParis.Month(), nowParis.Day(), 17, 30, 0, 0, loc)

	// If it's already past the close, move to the next day
	if nowParis.After(next) {
		next = next.AddDate(0, 0, 1)
	}

	// Skip weekends to find the next business day
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}

	return next.UTC()
}

func parisLocation() *time.Location {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		log.Errorf("Failed to load location 'Europe/Paris': %v. Falling back to UTC.", err)
		return time.UTC
	}
	return loc
}
