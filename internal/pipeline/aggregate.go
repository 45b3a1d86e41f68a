package pipeline

import (
	"fmt"
	"math"
	"sort"

	"github.com/tigerroll/bikeshare/internal/domain/model"
)

// NoData is the display value of an undefined statistic.
const NoData = "no data"

// z95 is the two-sided 95% standard normal quantile.
const z95 = 1.959963984540054

// Summary holds the three headline metrics of a selection.
// MeanHourly and MaxHourly are nil when the selection is empty.
type Summary struct {
	Observations int      `json:"observations"`
	Total        int64    `json:"total"`
	MeanHourly   *float64 `json:"mean_hourly"`
	MaxHourly    *int     `json:"max_hourly"`
}

// SummaryDisplay is the formatted form of a Summary.
type SummaryDisplay struct {
	Total      string `json:"total"`
	MeanHourly string `json:"mean_hourly"`
	MaxHourly  string `json:"max_hourly"`
}

// Summarize computes total, mean and max of count.
func Summarize(records []model.EnrichedRecord) Summary {
	s := Summary{Observations: len(records)}
	if len(records) == 0 {
		return s
	}
	maxCount := records[0].Count
	for _, r := range records {
		s.Total += int64(r.Count)
		if r.Count > maxCount {
			maxCount = r.Count
		}
	}
	mean := float64(s.Total) / float64(len(records))
	s.MeanHourly = &mean
	s.MaxHourly = &maxCount
	return s
}

// HasData reports whether mean and max are defined.
func (s Summary) HasData() bool {
	return s.Observations > 0
}

// Display formats the summary the way the dashboard cards show it:
// integers for total and max, one decimal for the mean.
func (s Summary) Display() SummaryDisplay {
	d := SummaryDisplay{
		Total:      fmt.Sprintf("%d", s.Total),
		MeanHourly: NoData,
		MaxHourly:  NoData,
	}
	if s.MeanHourly != nil {
		d.MeanHourly = fmt.Sprintf("%.1f", *s.MeanHourly)
	}
	if s.MaxHourly != nil {
		d.MaxHourly = fmt.Sprintf("%d", *s.MaxHourly)
	}
	return d
}

// GroupStat is the mean of count within one group.
// CILower and CIUpper bound the normal-approximation 95% confidence
// interval of the mean; both equal Mean when Count < 2.
type GroupStat[K comparable] struct {
	Key     K       `json:"key"`
	Mean    float64 `json:"mean"`
	Count   int     `json:"count"`
	StdDev  float64 `json:"std_dev"`
	CILower float64 `json:"ci_lower"`
	CIUpper float64 `json:"ci_upper"`
}

type accumulator struct {
	n    int
	mean float64
	m2   float64
}

// add is Welford's online update.
func (a *accumulator) add(x float64) {
	a.n++
	delta := x - a.mean
	a.mean += delta / float64(a.n)
	a.m2 += delta * (x - a.mean)
}

// GroupMeans groups records by key and returns one GroupStat per distinct
// key, ordered by less.
func GroupMeans[K comparable](records []model.EnrichedRecord, key func(model.EnrichedRecord) K, less func(a, b K) bool) []GroupStat[K] {
	groups := make(map[K]*accumulator)
	for _, r := range records {
		k := key(r)
		acc, ok := groups[k]
		if !ok {
			acc = &accumulator{}
			groups[k] = acc
		}
		acc.add(float64(r.Count))
	}

	stats := make([]GroupStat[K], 0, len(groups))
	for k, acc := range groups {
		stat := GroupStat[K]{Key: k, Mean: acc.mean, Count: acc.n, CILower: acc.mean, CIUpper: acc.mean}
		if acc.n > 1 {
			stat.StdDev = math.Sqrt(acc.m2 / float64(acc.n-1))
			margin := z95 * stat.StdDev / math.Sqrt(float64(acc.n))
			stat.CILower = acc.mean - margin
			stat.CIUpper = acc.mean + margin
		}
		stats = append(stats, stat)
	}
	sort.Slice(stats, func(i, j int) bool { return less(stats[i].Key, stats[j].Key) })
	return stats
}

// Views are the five grouped-mean breakdowns shown by the dashboard.
type Views struct {
	ByHour      []GroupStat[int]             `json:"by_hour"`
	ByMonth     []GroupStat[int]             `json:"by_month"`
	BySeason    []GroupStat[model.Season]    `json:"by_season"`
	ByWeather   []GroupStat[int]             `json:"by_weather"`
	ByDayPeriod []GroupStat[model.DayPeriod] `json:"by_day_period"`
}

func intLess(a, b int) bool { return a < b }

// BuildViews computes every grouped view over records.
func BuildViews(records []model.EnrichedRecord) Views {
	return Views{
		ByHour:  GroupMeans(records, func(r model.EnrichedRecord) int { return r.Hour }, intLess),
		ByMonth: GroupMeans(records, func(r model.EnrichedRecord) int { return r.Month }, intLess),
		BySeason: GroupMeans(records, func(r model.EnrichedRecord) model.Season { return r.SeasonName },
			func(a, b model.Season) bool { return a.Ordinal() < b.Ordinal() }),
		ByWeather: GroupMeans(records, func(r model.EnrichedRecord) int { return r.WeatherCode }, intLess),
		ByDayPeriod: GroupMeans(records, func(r model.EnrichedRecord) model.DayPeriod { return r.DayPeriod },
			func(a, b model.DayPeriod) bool { return a.Ordinal() < b.Ordinal() }),
	}
}
