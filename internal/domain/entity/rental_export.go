package entity

import (
	"fmt"
	"time"
)

// Export statuses.
const (
	ExportStatusCompleted = "COMPLETED"
	ExportStatusFailed    = "FAILED"
)

// RentalExport records one export run in the rental_exports table.
type RentalExport struct {
	ID         string    `gorm:"column:id;primaryKey;size:36"`
	Source     string    `gorm:"column:source;size:512"`
	Criteria   string    `gorm:"column:criteria;size:512"`
	RowCount   int64     `gorm:"column:row_count"`
	Status     string    `gorm:"column:status;size:16"`
	StartedAt  time.Time `gorm:"column:started_at"`
	FinishedAt time.Time `gorm:"column:finished_at"`
}

// TableName specifies the table name for RentalExport.
func (RentalExport) TableName() string {
	return "rental_exports"
}

func partitionKey(year, month int) string {
	return fmt.Sprintf("year=%04d/month=%02d", year, month)
}
