package measure

import (
	"sort"

	"github.com/wolfsonlabs/commercelens/internal/store"
)

// Point is one month of a measure series, keyed by YearMonth ("2006-01").
type Point struct {
	Period string `json:"period"`
	Value  Value  `json:"value"`
}

// EvaluateSeries computes a scalar measure per calendar month over the
// filtered fact rows. Months with no matching orders are omitted. The
// year-over-year measure has no series form.
func (e *Evaluator) EvaluateSeries(name string, fc store.FilterContext) ([]Point, error) {
	fn, ok := scalarFuncs[name]
	if !ok {
		return nil, &ErrUnknownMeasure{Name: name}
	}

	byMonth := make(map[string][]store.Order)
	for _, o := range e.store.Filter(fc) {
		key := truncateDay(o.OrderDate).Format("2006-01")
		byMonth[key] = append(byMonth[key], o)
	}

	periods := make([]string, 0, len(byMonth))
	for p := range byMonth {
		periods = append(periods, p)
	}
	sort.Strings(periods)

	points := make([]Point, 0, len(periods))
	for _, p := range periods {
		points = append(points, Point{Period: p, Value: fn(byMonth[p])})
	}
	return points, nil
}
