package rules

import (
	"sort"

	"seminar_standings/internal/domain/model"
)

// Reducer turns the cells of a row into its total.
type Reducer interface {
	Total(cells []Cell) model.Points
}

// TopK sums the K best score cells plus every carry-over cell. K <= 0 sums all score cells.
type TopK struct {
	K int
}

func (r TopK) Total(cells []Cell) model.Points {
	var (
		total  model.Points
		scored []model.Points
	)
	for _, c := range cells {
		if c == nil {
			continue
		}
		switch c.Kind() {
		case CellCarryOver:
			total += c.Value()
		case CellScore:
			scored = append(scored, c.Value())
		}
	}
	if r.K > 0 && len(scored) > r.K {
		sort.Slice(scored, func(i, j int) bool { return scored[i] > scored[j] })
		scored = scored[:r.K]
	}
	for _, p := range scored {
		total += p
	}
	return total
}

// SumAll counts every score cell.
var SumAll = TopK{}
