package model

import (
	"fmt"
	"strings"
)

// Season is the named season of an observation.
type Season string

const (
	Spring Season = "Spring"
	Summer Season = "Summer"
	Fall   Season = "Fall"
	Winter Season = "Winter"
)

// AllSeasons lists the seasons in calendar code order.
var AllSeasons = []Season{Spring, Summer, Fall, Winter}

var seasonByCode = map[int]Season{
	1: Spring,
	2: Summer,
	3: Fall,
	4: Winter,
}

// SeasonFromCode maps the raw season code (1-4). ok is false for any other code.
func SeasonFromCode(code int) (season Season, ok bool) {
	season, ok = seasonByCode[code]
	return season, ok
}

// ParseSeason accepts a season name case-insensitively.
func ParseSeason(name string) (Season, error) {
	for _, s := range AllSeasons {
		if strings.EqualFold(string(s), strings.TrimSpace(name)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown season %q (expected one of Spring, Summer, Fall, Winter)", name)
}

// Ordinal is the position of the season in AllSeasons, or -1 when unknown.
func (s Season) Ordinal() int {
	for i, candidate := range AllSeasons {
		if candidate == s {
			return i
		}
	}
	return -1
}
