package rules

import (
	"context"
	"fmt"
	"strconv"

	"seminar_standings/internal/common"
	"seminar_standings/internal/domain/model"
)

const (
	ProblemInteractive = "inter"
	ProblemProgramming = "prog"
	ProblemTheory      = "teor"
)

var problemTypeChips = map[string]Chip{
	ProblemInteractive: {Message: "Interaktívna", Color: "amber", Icon: "mdi-gamepad-variant"},
	ProblemProgramming: {Message: "Programovacia", Color: "green", Icon: "mdi-code-braces"},
	ProblemTheory:      {Message: "Teoretická", Color: "blue", Icon: "mdi-book-open-variant"},
}

func DefaultProblemTypes() map[int]string {
	return map[int]string{
		1: ProblemInteractive,
		2: ProblemProgramming,
		3: ProblemProgramming,
		4: ProblemTheory,
		5: ProblemTheory,
	}
}

// ProblemTypeChips labels each problem with its type.
type ProblemTypeChips struct {
	Types map[int]string
}

func (h *ProblemTypeChips) Name() string { return "problem_type_chips" }

func (h *ProblemTypeChips) ParseOptions(_ *model.Round, opts Options) error {
	var raw map[string]string
	ok, err := opts.Decode(&raw, "problem_types", "problem_types_mappings")
	if err != nil || !ok {
		return err
	}
	types := make(map[int]string, len(raw))
	for k, v := range raw {
		n, err := strconv.Atoi(k)
		if err != nil {
			return fmt.Errorf("problem_types key %q is not a problem number: %w", k, common.ErrConfiguration)
		}
		if _, known := problemTypeChips[v]; !known {
			return fmt.Errorf("problem_types value %q is not a known type: %w", v, common.ErrConfiguration)
		}
		types[n] = v
	}
	h.Types = types
	return nil
}

func (h *ProblemTypeChips) Chips(_ context.Context, cc *ChipContext) error {
	for _, p := range cc.Problems {
		if t, ok := h.Types[p.Number]; ok {
			cc.Add(p.Number, problemTypeChips[t])
		}
	}
	return nil
}
