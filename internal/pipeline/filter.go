package pipeline

import "github.com/tigerroll/bikeshare/internal/domain/model"

// Matches reports whether a record satisfies every criterion.
func Matches(r model.EnrichedRecord, c model.FilterCriteria) bool {
	return c.HasYear(r.Year) && c.HasSeason(r.SeasonName) && r.IsWorkingDay == c.WorkingDay()
}

// Apply returns the records matching c in their original order.
// An empty year or season selection retains nothing. The input is not
// modified and the result never aliases it.
func Apply(records []model.EnrichedRecord, c model.FilterCriteria) []model.EnrichedRecord {
	out := make([]model.EnrichedRecord, 0)
	if c.IsVacuous() {
		return out
	}
	for _, r := range records {
		if Matches(r, c) {
			out = append(out, r)
		}
	}
	return out
}
