// Package model defines the bike rental records flowing through the pipeline.
package model

import "time"

// RentalRecord is one hourly observation as read from the source file.
type RentalRecord struct {
	// Line is the 1-based source line the record was read from, 0 when unknown.
	Line int
	// Timestamp is the observation's hour boundary as an instant.
	Timestamp time.Time
	// Recorded is the wall-clock time as written in the source, with UTC
	// standing in for a missing zone. It survives daylight saving gaps
	// that Timestamp normalizes away. Zero means Timestamp is used.
	Recorded time.Time
	// SeasonCode is the raw season encoding (1-4).
	SeasonCode int
	// WeatherCode is the raw weather category, passed through unchanged.
	WeatherCode int
	// IsWorkingDay distinguishes business days from weekends and holidays.
	IsWorkingDay bool
	// Count is the total number of rentals in the hour.
	Count int

	// Optional attributes, present when the source carries the columns.
	Holiday    *bool
	Temp       *float64
	ATemp      *float64
	Humidity   *float64
	Windspeed  *float64
	Casual     *int
	Registered *int
}

// WallClock returns the time calendar fields are derived from.
func (r RentalRecord) WallClock() time.Time {
	if !r.Recorded.IsZero() {
		return r.Recorded
	}
	return r.Timestamp
}

// EnrichedRecord is a RentalRecord plus calendar and time-bucket attributes
// computed once at load time. It is never mutated afterwards.
type EnrichedRecord struct {
	RentalRecord

	Year       int
	Month      int
	Hour       int
	DayOfWeek  string
	SeasonName Season
	DayPeriod  DayPeriod
}

// WorkingDayLabel is the display label used for a working-day choice.
func WorkingDayLabel(workingDay bool) string {
	if workingDay {
		return "Working day"
	}
	return "Non-working day"
}
