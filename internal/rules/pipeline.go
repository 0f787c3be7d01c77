package rules

import (
	"context"
	"fmt"

	"seminar_standings/internal/domain/model"
)

// Pipeline dispatches to hooks in registration order.
type Pipeline struct {
	parsers    []OptionParser
	loaders    []ContextLoader
	filters    []ProblemFilter
	headers    []HeaderAugmenter
	cells      []CellAugmenter
	coefs      []Coefficienter
	excluders  []RowExcluder
	ghosts     []GhostMarker
	guards     []SubmitGuard
	chips      []ChipProvider
	dates      []DateProvider
	defaulters []DefaultTabler
	closers    []Closer
}

func NewPipeline(hooks ...Hook) *Pipeline {
	p := &Pipeline{}
	for _, h := range hooks {
		if v, ok := h.(OptionParser); ok {
			p.parsers = append(p.parsers, v)
		}
		if v, ok := h.(ContextLoader); ok {
			p.loaders = append(p.loaders, v)
		}
		if v, ok := h.(ProblemFilter); ok {
			p.filters = append(p.filters, v)
		}
		if v, ok := h.(HeaderAugmenter); ok {
			p.headers = append(p.headers, v)
		}
		if v, ok := h.(CellAugmenter); ok {
			p.cells = append(p.cells, v)
		}
		if v, ok := h.(Coefficienter); ok {
			p.coefs = append(p.coefs, v)
		}
		if v, ok := h.(RowExcluder); ok {
			p.excluders = append(p.excluders, v)
		}
		if v, ok := h.(GhostMarker); ok {
			p.ghosts = append(p.ghosts, v)
		}
		if v, ok := h.(SubmitGuard); ok {
			p.guards = append(p.guards, v)
		}
		if v, ok := h.(ChipProvider); ok {
			p.chips = append(p.chips, v)
		}
		if v, ok := h.(DateProvider); ok {
			p.dates = append(p.dates, v)
		}
		if v, ok := h.(DefaultTabler); ok {
			p.defaulters = append(p.defaulters, v)
		}
		if v, ok := h.(Closer); ok {
			p.closers = append(p.closers, v)
		}
	}
	return p
}

func (p *Pipeline) ParseOptions(round *model.Round, opts Options) error {
	for _, h := range p.parsers {
		if err := h.ParseOptions(round, opts); err != nil {
			return fmt.Errorf("%s: %w", h.(Hook).Name(), err)
		}
	}
	return nil
}

func (p *Pipeline) LoadContext(ctx context.Context, bc *BuildContext) error {
	for _, h := range p.loaders {
		if err := h.LoadContext(ctx, bc); err != nil {
			return fmt.Errorf("%s: %w", h.(Hook).Name(), err)
		}
	}
	return nil
}

func (p *Pipeline) FilterProblems(tableID string, problems []model.Problem) []model.Problem {
	for _, h := range p.filters {
		problems = h.FilterProblems(tableID, problems)
	}
	return problems
}

func (p *Pipeline) Headers(bc *BuildContext, headers []ColumnHeader) []ColumnHeader {
	for _, h := range p.headers {
		headers = h.Headers(bc, headers)
	}
	return headers
}

func (p *Pipeline) Cells(bc *BuildContext, e model.Enrollment, cells []Cell) []Cell {
	for _, h := range p.cells {
		cells = h.Cells(bc, e, cells)
	}
	return cells
}

// Coefficient multiplies every hook's factor; the first zero wins.
func (p *Pipeline) Coefficient(bc *BuildContext, problem model.Problem, e model.Enrollment) model.Points {
	coef := model.OnePoint
	for _, h := range p.coefs {
		c := h.Coefficient(bc, problem, e)
		if c == 0 {
			return 0
		}
		coef = coef.Mul(c)
	}
	return coef
}

func (p *Pipeline) Excluded(bc *BuildContext, e model.Enrollment) bool {
	for _, h := range p.excluders {
		if h.Excluded(bc, e) {
			return true
		}
	}
	return false
}

func (p *Pipeline) Ghost(bc *BuildContext, e model.Enrollment) bool {
	for _, h := range p.ghosts {
		if h.Ghost(bc, e) {
			return true
		}
	}
	return false
}

// CanSubmit returns the first decisive verdict; if every guard abstains the submission is allowed.
func (p *Pipeline) CanSubmit(ctx context.Context, sc *SubmitContext) (bool, error) {
	for _, h := range p.guards {
		v, err := h.CanSubmit(ctx, sc)
		if err != nil {
			return false, fmt.Errorf("%s: %w", h.(Hook).Name(), err)
		}
		switch v {
		case Allow:
			return true, nil
		case Deny:
			return false, nil
		}
	}
	return true, nil
}

func (p *Pipeline) Chips(ctx context.Context, cc *ChipContext) error {
	for _, h := range p.chips {
		if err := h.Chips(ctx, cc); err != nil {
			return fmt.Errorf("%s: %w", h.(Hook).Name(), err)
		}
	}
	return nil
}

func (p *Pipeline) ImportantDates(round *model.Round) []ImportantDate {
	var dates []ImportantDate
	for _, h := range p.dates {
		dates = append(dates, h.ImportantDates(round)...)
	}
	return dates
}

func (p *Pipeline) DefaultTable(ctx context.Context, round *model.Round, policyIDs []string, viewer model.Viewer, repos Repositories) (string, bool, error) {
	for _, h := range p.defaulters {
		id, ok, err := h.DefaultTable(ctx, round, policyIDs, viewer, repos)
		if err != nil {
			return "", false, fmt.Errorf("%s: %w", h.(Hook).Name(), err)
		}
		if ok {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (p *Pipeline) OnClose(ctx context.Context, cc *CloseContext) error {
	for _, h := range p.closers {
		if err := h.OnClose(ctx, cc); err != nil {
			return fmt.Errorf("%s: %w", h.(Hook).Name(), err)
		}
	}
	return nil
}
