package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/bikeshare/internal/domain/model"
)

func TestDayPeriodForHour_Totality(t *testing.T) {
	counts := map[model.DayPeriod]int{}
	for h := 0; h < 24; h++ {
		p, ok := model.DayPeriodForHour(h)
		assert.True(t, ok, "hour %d must map to a period", h)
		counts[p]++
	}
	// Four disjoint six-hour buckets.
	for _, p := range model.AllDayPeriods {
		assert.Equal(t, 6, counts[p], "period %s", p)
	}
}

func TestDayPeriodForHour_Boundaries(t *testing.T) {
	cases := map[int]model.DayPeriod{
		0: model.Night, 5: model.Night,
		6: model.Morning, 11: model.Morning,
		12: model.Afternoon, 17: model.Afternoon,
		18: model.Evening, 23: model.Evening,
	}
	for h, want := range cases {
		got, ok := model.DayPeriodForHour(h)
		assert.True(t, ok)
		assert.Equal(t, want, got, "hour %d", h)
	}

	for _, h := range []int{-1, 24, 100} {
		_, ok := model.DayPeriodForHour(h)
		assert.False(t, ok, "hour %d", h)
	}
}

func TestSeasonFromCode(t *testing.T) {
	want := []model.Season{model.Spring, model.Summer, model.Fall, model.Winter}
	for code := 1; code <= 4; code++ {
		s, ok := model.SeasonFromCode(code)
		assert.True(t, ok)
		assert.Equal(t, want[code-1], s)
	}
	for _, code := range []int{0, 5, -1} {
		_, ok := model.SeasonFromCode(code)
		assert.False(t, ok, "code %d", code)
	}
}

func TestParseSeason(t *testing.T) {
	s, err := model.ParseSeason(" fall ")
	assert.NoError(t, err)
	assert.Equal(t, model.Fall, s)

	_, err = model.ParseSeason("Monsoon")
	assert.Error(t, err)
}

func TestFilterCriteria_SetSemantics(t *testing.T) {
	c := model.NewFilterCriteria([]int{2012, 2011, 2012}, []model.Season{model.Winter, model.Spring}, true)

	assert.True(t, c.HasYear(2011))
	assert.False(t, c.HasYear(2013))
	assert.True(t, c.HasSeason(model.Winter))
	assert.False(t, c.HasSeason(model.Summer))
	assert.True(t, c.WorkingDay())
	assert.Equal(t, []int{2011, 2012}, c.Years())
	assert.Equal(t, []model.Season{model.Spring, model.Winter}, c.Seasons())
	assert.False(t, c.IsVacuous())
	assert.Equal(t, "years=2011,2012;seasons=Spring,Winter;working_day=true", c.Key())
}

func TestFilterCriteria_Equal(t *testing.T) {
	a := model.NewFilterCriteria([]int{2011, 2012}, []model.Season{model.Spring}, false)
	b := model.NewFilterCriteria([]int{2012, 2011}, []model.Season{model.Spring, model.Spring}, false)
	c := model.NewFilterCriteria([]int{2011, 2012}, []model.Season{model.Spring}, true)
	d := model.NewFilterCriteria([]int{2011}, []model.Season{model.Spring}, false)

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
}

func TestFilterCriteria_InputSliceNotShared(t *testing.T) {
	years := []int{2011}
	c := model.NewFilterCriteria(years, []model.Season{model.Spring}, false)
	years[0] = 1999

	assert.True(t, c.HasYear(2011))
	assert.False(t, c.HasYear(1999))
}

func TestFilterCriteria_Vacuous(t *testing.T) {
	assert.True(t, model.NewFilterCriteria(nil, []model.Season{model.Spring}, true).IsVacuous())
	assert.True(t, model.NewFilterCriteria([]int{2011}, nil, true).IsVacuous())
}

func TestWorkingDayLabel(t *testing.T) {
	assert.Equal(t, "Working day", model.WorkingDayLabel(true))
	assert.Equal(t, "Non-working day", model.WorkingDayLabel(false))
}
