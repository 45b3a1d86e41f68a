// Package query answers dashboard queries over a loaded dataset.
package query

import (
	"sort"

	"github.com/tigerroll/bikeshare/internal/domain/model"
	"github.com/tigerroll/bikeshare/internal/pipeline"
)

// Result is the answer to one query.
type Result struct {
	Criteria model.FilterCriteria    `json:"-"`
	Records  []model.EnrichedRecord  `json:"-"`
	Summary  pipeline.Summary        `json:"summary"`
	Display  pipeline.SummaryDisplay `json:"display"`
	Views    pipeline.Views          `json:"views"`
}

// Run filters records by criteria and aggregates the selection.
// An empty selection is a valid result with zero total and no mean or max.
func Run(records []model.EnrichedRecord, criteria model.FilterCriteria) Result {
	selected := pipeline.Apply(records, criteria)
	summary := pipeline.Summarize(selected)
	return Result{
		Criteria: criteria,
		Records:  selected,
		Summary:  summary,
		Display:  summary.Display(),
		Views:    pipeline.BuildViews(selected),
	}
}

// WorkingDayChoice is one option of the working-day selector.
type WorkingDayChoice struct {
	Value bool   `json:"value"`
	Label string `json:"label"`
}

// CriteriaView is the serializable form of a FilterCriteria.
type CriteriaView struct {
	Years           []int          `json:"years"`
	Seasons         []model.Season `json:"seasons"`
	WorkingDay      bool           `json:"working_day"`
	WorkingDayLabel string         `json:"working_day_label"`
}

// NewCriteriaView converts c.
func NewCriteriaView(c model.FilterCriteria) CriteriaView {
	return CriteriaView{
		Years:           c.Years(),
		Seasons:         c.Seasons(),
		WorkingDay:      c.WorkingDay(),
		WorkingDayLabel: model.WorkingDayLabel(c.WorkingDay()),
	}
}

// Options lists the selectable values of a dataset and the default selection.
type Options struct {
	Years       []int              `json:"years"`
	Seasons     []model.Season     `json:"seasons"`
	WorkingDays []WorkingDayChoice `json:"working_days"`
	Default     CriteriaView       `json:"default"`
}

// BuildOptions collects the distinct years (ascending) and seasons (calendar
// order) of records. The default selection is every year and season on
// non-working days.
func BuildOptions(records []model.EnrichedRecord) Options {
	yearSet := make(map[int]struct{})
	seasonSet := make(map[model.Season]struct{})
	for _, r := range records {
		yearSet[r.Year] = struct{}{}
		seasonSet[r.SeasonName] = struct{}{}
	}

	years := make([]int, 0, len(yearSet))
	for y := range yearSet {
		years = append(years, y)
	}
	sort.Ints(years)

	seasons := make([]model.Season, 0, len(seasonSet))
	for _, s := range model.AllSeasons {
		if _, ok := seasonSet[s]; ok {
			seasons = append(seasons, s)
		}
	}

	o := Options{
		Years:   years,
		Seasons: seasons,
		WorkingDays: []WorkingDayChoice{
			{Value: false, Label: model.WorkingDayLabel(false)},
			{Value: true, Label: model.WorkingDayLabel(true)},
		},
	}
	o.Default = NewCriteriaView(o.DefaultCriteria())
	return o
}

// DefaultCriteria selects every listed year and season on non-working days.
func (o Options) DefaultCriteria() model.FilterCriteria {
	return model.NewFilterCriteria(o.Years, o.Seasons, false)
}
