package rules

import (
	"context"
	"fmt"
	"log"

	"github.com/gosimple/slug"

	"seminar_standings/internal/common"
	"seminar_standings/internal/domain/model"
)

const CarryOverTitle = "P"

// CarryOver prepends the predecessor round's total as a bonus column.
type CarryOver struct {
	previousSlug string
}

func (h *CarryOver) Name() string { return "carry_over" }

func (h *CarryOver) PreviousSlug() string { return h.previousSlug }

func (h *CarryOver) ParseOptions(round *model.Round, opts Options) error {
	s, ok, err := opts.String("previous_round_slug", "previous_problem_set")
	if err != nil || !ok || s == "" {
		return err
	}
	if !slug.IsSlug(s) {
		return fmt.Errorf("previous round slug %q is not a slug (did you mean %q?): %w", s, slug.Make(s), common.ErrConfiguration)
	}
	if s == round.Slug {
		return fmt.Errorf("round %q names itself as its predecessor: %w", s, common.ErrConfiguration)
	}
	h.previousSlug = s
	return nil
}

func (h *CarryOver) LoadContext(ctx context.Context, bc *BuildContext) error {
	if h.previousSlug == "" {
		return nil
	}
	if bc.Tables == nil {
		return fmt.Errorf("no table source for predecessor %q: %w", h.previousSlug, common.ErrInvariant)
	}
	prev, err := bc.Repos.Rounds.FindRoundBySlug(ctx, bc.Round.ContestID, h.previousSlug)
	if err != nil {
		return fmt.Errorf("predecessor round: %w", err)
	}
	table, err := bc.Tables.ResultTable(ctx, prev, bc.TableID)
	if err != nil {
		return fmt.Errorf("predecessor %q table %q: %w", prev.Slug, bc.TableID, err)
	}
	bc.Previous = table
	return nil
}

func (h *CarryOver) Headers(bc *BuildContext, headers []ColumnHeader) []ColumnHeader {
	if bc.Previous == nil {
		return headers
	}
	col := ColumnHeader{Title: CarryOverTitle, Tooltip: "Points carried over from " + h.previousSlug}
	return append([]ColumnHeader{col}, headers...)
}

func (h *CarryOver) Cells(bc *BuildContext, e model.Enrollment, cells []Cell) []Cell {
	if bc.Previous == nil {
		return cells
	}
	var cell Cell
	if row := bc.Previous.RowFor(e.UserID); row != nil {
		cell = CarryOverCell{Points: row.Total}
	}
	return append([]Cell{cell}, cells...)
}

// TableGetter resolves one table, fetching predecessors through walk.
type TableGetter func(ctx context.Context, round *model.Round, tableID string, walk *Walk) (*Table, error)

type walkKey struct {
	roundID string
	tableID string
}

// Walk follows predecessor links for one request. Results are memoized for the
// lifetime of the walk; revisiting a round already on the path, or going deeper
// than maxDepth, is an invariant violation. A Walk is not safe for concurrent use.
type Walk struct {
	get      TableGetter
	maxDepth int
	path     []string
	memo     map[walkKey]*Table
}

func NewWalk(maxDepth int, get TableGetter) *Walk {
	if maxDepth <= 0 {
		maxDepth = 32
	}
	return &Walk{get: get, maxDepth: maxDepth, memo: make(map[walkKey]*Table)}
}

func (w *Walk) ResultTable(ctx context.Context, round *model.Round, tableID string) (*Table, error) {
	key := walkKey{roundID: round.ID, tableID: tableID}
	if t, ok := w.memo[key]; ok {
		return t, nil
	}
	for _, id := range w.path {
		if id == round.ID {
			err := fmt.Errorf("carry-over cycle through round %q: %w", round.Slug, common.ErrInvariant)
			log.Printf("ERROR: %v (path %v)", err, w.path)
			return nil, err
		}
	}
	if len(w.path) >= w.maxDepth {
		err := fmt.Errorf("carry-over chain deeper than %d rounds at %q: %w", w.maxDepth, round.Slug, common.ErrInvariant)
		log.Printf("ERROR: %v", err)
		return nil, err
	}

	w.path = append(w.path, round.ID)
	defer func() { w.path = w.path[:len(w.path)-1] }()

	t, err := w.get(ctx, round, tableID, w)
	if err != nil {
		return nil, err
	}
	w.memo[key] = t
	return t, nil
}

// Depth is the number of rounds currently being resolved.
func (w *Walk) Depth() int {
	return len(w.path)
}
