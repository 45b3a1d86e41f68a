// Package processor provides the ItemProcessors of the export step.
package processor

import (
	"context"
	"sync/atomic"

	"github.com/tigerroll/bikeshare/internal/domain/entity"
	"github.com/tigerroll/bikeshare/internal/domain/model"
	"github.com/tigerroll/bikeshare/internal/pipeline"
	"github.com/tigerroll/bikeshare/internal/step/port"
	"github.com/tigerroll/bikeshare/internal/support/exception"
)

// DerivationProcessor enriches each RentalRecord with derived attributes.
type DerivationProcessor struct {
	source string
}

var _ port.ItemProcessor[model.RentalRecord, model.EnrichedRecord] = (*DerivationProcessor)(nil)

// NewDerivationProcessor creates a processor. source is reported in errors.
func NewDerivationProcessor(source string) *DerivationProcessor {
	return &DerivationProcessor{source: source}
}

// Process derives one record. Malformed records fail with a *exception.DataFormatError.
func (p *DerivationProcessor) Process(ctx context.Context, item model.RentalRecord) (*model.EnrichedRecord, error) {
	enriched, err := pipeline.DeriveRecord(item)
	if err != nil {
		if dfe, ok := exception.AsDataFormatError(err); ok && dfe.Source == "" {
			dfe.Source = p.source
		}
		return nil, err
	}
	return &enriched, nil
}

// FilterProcessor drops records not matching its criteria.
type FilterProcessor struct {
	criteria model.FilterCriteria
}

var _ port.ItemProcessor[model.EnrichedRecord, model.EnrichedRecord] = (*FilterProcessor)(nil)

// NewFilterProcessor creates a processor retaining records that match criteria.
func NewFilterProcessor(criteria model.FilterCriteria) *FilterProcessor {
	return &FilterProcessor{criteria: criteria}
}

// Process returns nil for records outside the criteria.
func (p *FilterProcessor) Process(ctx context.Context, item model.EnrichedRecord) (*model.EnrichedRecord, error) {
	if p.criteria.IsVacuous() || !pipeline.Matches(item, p.criteria) {
		return nil, nil
	}
	return &item, nil
}

// EntityProcessor converts enriched records into export rows numbered in arrival order.
type EntityProcessor struct {
	exportID string
	next     atomic.Int64
}

var _ port.ItemProcessor[model.EnrichedRecord, entity.EnrichedRental] = (*EntityProcessor)(nil)

// NewEntityProcessor creates a processor stamping rows with exportID.
func NewEntityProcessor(exportID string) *EntityProcessor {
	return &EntityProcessor{exportID: exportID}
}

func (p *EntityProcessor) Process(ctx context.Context, item model.EnrichedRecord) (*entity.EnrichedRental, error) {
	row := entity.NewEnrichedRental(p.exportID, p.next.Add(1)-1, item)
	return &row, nil
}

// NewExportProcessor chains derivation, the optional filter and entity conversion.
func NewExportProcessor(source, exportID string, criteria *model.FilterCriteria) port.ItemProcessor[model.RentalRecord, entity.EnrichedRental] {
	var enrich port.ItemProcessor[model.RentalRecord, model.EnrichedRecord] = NewDerivationProcessor(source)
	if criteria != nil {
		enrich = port.Chain[model.RentalRecord, model.EnrichedRecord, model.EnrichedRecord](enrich, NewFilterProcessor(*criteria))
	}
	return port.Chain[model.RentalRecord, model.EnrichedRecord, entity.EnrichedRental](enrich, NewEntityProcessor(exportID))
}
