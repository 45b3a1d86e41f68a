// Package pipeline holds the pure transformation stages of the rental dataset:
// feature derivation, filtering and aggregation. Nothing in here performs I/O.
package pipeline

import (
	"strconv"

	"github.com/tigerroll/bikeshare/internal/domain/model"
	"github.com/tigerroll/bikeshare/internal/support/exception"
)

// Derive enriches every record with calendar and time-bucket attributes.
// The output is a positional map of the input. The first malformed record
// aborts the whole derivation with a *exception.DataFormatError, so callers
// never see a partial dataset.
func Derive(records []model.RentalRecord) ([]model.EnrichedRecord, error) {
	enriched := make([]model.EnrichedRecord, len(records))
	for i, r := range records {
		e, err := DeriveRecord(r)
		if err != nil {
			return nil, err
		}
		enriched[i] = e
	}
	return enriched, nil
}

// DeriveRecord enriches a single record. Calendar fields come from the
// wall-clock time as recorded, so hour matches the source file.
func DeriveRecord(r model.RentalRecord) (model.EnrichedRecord, error) {
	if r.Timestamp.IsZero() {
		return model.EnrichedRecord{}, exception.NewDataFormatError("", r.Line, "datetime", "", "timestamp is missing", nil)
	}
	season, ok := model.SeasonFromCode(r.SeasonCode)
	if !ok {
		return model.EnrichedRecord{}, exception.NewDataFormatError("", r.Line, "season", strconv.Itoa(r.SeasonCode),
			"season code must be one of 1, 2, 3, 4", nil)
	}
	if r.Count < 0 {
		return model.EnrichedRecord{}, exception.NewDataFormatError("", r.Line, "count", strconv.Itoa(r.Count),
			"count must not be negative", nil)
	}

	wall := r.WallClock()
	hour := wall.Hour()
	// Hour() is always within 0-23, so the lookup cannot fail.
	period, _ := model.DayPeriodForHour(hour)

	return model.EnrichedRecord{
		RentalRecord: r,
		Year:         wall.Year(),
		Month:        int(wall.Month()),
		Hour:         hour,
		DayOfWeek:    wall.Weekday().String(),
		SeasonName:   season,
		DayPeriod:    period,
	}, nil
}
