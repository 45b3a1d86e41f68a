// Package entity holds the persisted shapes of exported rental data.
package entity

import (
	"time"

	"github.com/tigerroll/bikeshare/internal/domain/model"
)

// EnrichedRental is one exported enriched record.
// It includes parquet tags for serialization to Parquet format
// and GORM tags for the enriched_rentals table.
type EnrichedRental struct {
	ExportID   string   `gorm:"column:export_id;primaryKey;size:36" parquet:"name=export_id,type=BYTE_ARRAY,convertedtype=UTF8"`
	RowIndex   int64    `gorm:"column:row_index;primaryKey;autoIncrement:false" parquet:"name=row_index,type=INT64"`
	ObservedAt int64    `gorm:"column:observed_at" parquet:"name=observed_at,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
	Year       int32    `gorm:"column:year" parquet:"name=year,type=INT32"`
	Month      int32    `gorm:"column:month" parquet:"name=month,type=INT32"`
	Hour       int32    `gorm:"column:hour" parquet:"name=hour,type=INT32"`
	DayOfWeek  string   `gorm:"column:day_of_week;size:9" parquet:"name=day_of_week,type=BYTE_ARRAY,convertedtype=UTF8"`
	DayPeriod  string   `gorm:"column:day_period;size:9" parquet:"name=day_period,type=BYTE_ARRAY,convertedtype=UTF8"`
	Season     int32    `gorm:"column:season" parquet:"name=season,type=INT32"`
	SeasonName string   `gorm:"column:season_name;size:6" parquet:"name=season_name,type=BYTE_ARRAY,convertedtype=UTF8"`
	Weather    int32    `gorm:"column:weather" parquet:"name=weather,type=INT32"`
	WorkingDay bool     `gorm:"column:working_day" parquet:"name=working_day,type=BOOLEAN"`
	Count      int32    `gorm:"column:count" parquet:"name=count,type=INT32"`
	Holiday    *bool    `gorm:"column:holiday" parquet:"name=holiday,type=BOOLEAN,repetitiontype=OPTIONAL"`
	Temp       *float64 `gorm:"column:temp" parquet:"name=temp,type=DOUBLE,repetitiontype=OPTIONAL"`
	ATemp      *float64 `gorm:"column:atemp" parquet:"name=atemp,type=DOUBLE,repetitiontype=OPTIONAL"`
	Humidity   *float64 `gorm:"column:humidity" parquet:"name=humidity,type=DOUBLE,repetitiontype=OPTIONAL"`
	Windspeed  *float64 `gorm:"column:windspeed" parquet:"name=windspeed,type=DOUBLE,repetitiontype=OPTIONAL"`
	Casual     *int32   `gorm:"column:casual" parquet:"name=casual,type=INT32,repetitiontype=OPTIONAL"`
	Registered *int32   `gorm:"column:registered" parquet:"name=registered,type=INT32,repetitiontype=OPTIONAL"`
}

// TableName specifies the table name for EnrichedRental.
func (EnrichedRental) TableName() string {
	return "enriched_rentals"
}

// PartitionKey returns the Hive-style partition of the row (e.g. "year=2011/month=01").
func (e EnrichedRental) PartitionKey() string {
	return partitionKey(int(e.Year), int(e.Month))
}

// ObservedTime returns ObservedAt as a UTC time.
func (e EnrichedRental) ObservedTime() time.Time {
	return time.UnixMilli(e.ObservedAt).UTC()
}

// NewEnrichedRental converts a derived record into its exported form.
func NewEnrichedRental(exportID string, rowIndex int64, r model.EnrichedRecord) EnrichedRental {
	return EnrichedRental{
		ExportID:   exportID,
		RowIndex:   rowIndex,
		ObservedAt: r.Timestamp.UnixMilli(),
		Year:       int32(r.Year),
		Month:      int32(r.Month),
		Hour:       int32(r.Hour),
		DayOfWeek:  r.DayOfWeek,
		DayPeriod:  string(r.DayPeriod),
		Season:     int32(r.SeasonCode),
		SeasonName: string(r.SeasonName),
		Weather:    int32(r.WeatherCode),
		WorkingDay: r.IsWorkingDay,
		Count:      int32(r.Count),
		Holiday:    r.Holiday,
		Temp:       r.Temp,
		ATemp:      r.ATemp,
		Humidity:   r.Humidity,
		Windspeed:  r.Windspeed,
		Casual:     int32Ptr(r.Casual),
		Registered: int32Ptr(r.Registered),
	}
}

func int32Ptr(v *int) *int32 {
	if v == nil {
		return nil
	}
	n := int32(*v)
	return &n
}
