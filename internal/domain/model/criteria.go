package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// FilterCriteria selects records by year set, season set and working-day flag.
// It is an immutable value: build a new one per query.
type FilterCriteria struct {
	years      map[int]struct{}
	seasons    map[Season]struct{}
	workingDay bool
}

// NewFilterCriteria copies years and seasons into a new criteria value.
// Nil or empty slices produce empty sets, which retain nothing.
func NewFilterCriteria(years []int, seasons []Season, workingDay bool) FilterCriteria {
	c := FilterCriteria{
		years:      make(map[int]struct{}, len(years)),
		seasons:    make(map[Season]struct{}, len(seasons)),
		workingDay: workingDay,
	}
	for _, y := range years {
		c.years[y] = struct{}{}
	}
	for _, s := range seasons {
		c.seasons[s] = struct{}{}
	}
	return c
}

// HasYear reports whether year is selected.
func (c FilterCriteria) HasYear(year int) bool {
	_, ok := c.years[year]
	return ok
}

// HasSeason reports whether season is selected.
func (c FilterCriteria) HasSeason(season Season) bool {
	_, ok := c.seasons[season]
	return ok
}

// WorkingDay is the required working-day flag.
func (c FilterCriteria) WorkingDay() bool {
	return c.workingDay
}

// IsVacuous reports whether the criteria can match nothing at all.
func (c FilterCriteria) IsVacuous() bool {
	return len(c.years) == 0 || len(c.seasons) == 0
}

// Years returns the selected years in ascending order.
func (c FilterCriteria) Years() []int {
	years := make([]int, 0, len(c.years))
	for y := range c.years {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// Seasons returns the selected seasons in calendar order.
func (c FilterCriteria) Seasons() []Season {
	seasons := make([]Season, 0, len(c.seasons))
	for s := range c.seasons {
		seasons = append(seasons, s)
	}
	sort.Slice(seasons, func(i, j int) bool {
		oi, oj := seasons[i].Ordinal(), seasons[j].Ordinal()
		if oi != oj {
			return oi < oj
		}
		return seasons[i] < seasons[j]
	})
	return seasons
}

// Equal reports whether two criteria select exactly the same records.
func (c FilterCriteria) Equal(other FilterCriteria) bool {
	if c.workingDay != other.workingDay || len(c.years) != len(other.years) || len(c.seasons) != len(other.seasons) {
		return false
	}
	for y := range c.years {
		if !other.HasYear(y) {
			return false
		}
	}
	for s := range c.seasons {
		if !other.HasSeason(s) {
			return false
		}
	}
	return true
}

// Key is a canonical string form; equal criteria have equal keys.
func (c FilterCriteria) Key() string {
	years := c.Years()
	yearParts := make([]string, len(years))
	for i, y := range years {
		yearParts[i] = strconv.Itoa(y)
	}
	seasons := c.Seasons()
	seasonParts := make([]string, len(seasons))
	for i, s := range seasons {
		seasonParts[i] = string(s)
	}
	return fmt.Sprintf("years=%s;seasons=%s;working_day=%t",
		strings.Join(yearParts, ","), strings.Join(seasonParts, ","), c.workingDay)
}

func (c FilterCriteria) String() string {
	return c.Key()
}
