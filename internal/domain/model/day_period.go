package model

// DayPeriod is one of four fixed six-hour buckets of the day.
type DayPeriod string

const (
	Night     DayPeriod = "Night"
	Morning   DayPeriod = "Morning"
	Afternoon DayPeriod = "Afternoon"
	Evening   DayPeriod = "Evening"
)

// AllDayPeriods lists the periods in chronological order.
var AllDayPeriods = []DayPeriod{Night, Morning, Afternoon, Evening}

// DayPeriodForHour buckets an hour with half-open ranges:
// [0,6) Night, [6,12) Morning, [12,18) Afternoon, [18,24) Evening.
// ok is false outside 0-23.
func DayPeriodForHour(hour int) (period DayPeriod, ok bool) {
	switch {
	case hour < 0 || hour >= 24:
		return "", false
	case hour < 6:
		return Night, true
	case hour < 12:
		return Morning, true
	case hour < 18:
		return Afternoon, true
	default:
		return Evening, true
	}
}

// Ordinal is the position of the period in AllDayPeriods, or -1 when unknown.
func (p DayPeriod) Ordinal() int {
	for i, candidate := range AllDayPeriods {
		if candidate == p {
			return i
		}
	}
	return -1
}
