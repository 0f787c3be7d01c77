package rules

import (
	"encoding/json"
	"fmt"

	"seminar_standings/internal/domain/model"
)

type CellKind string

const (
	CellScore     CellKind = "score"
	CellCarryOver CellKind = "carry_over"
	CellText      CellKind = "text"
)

// Cell is one entry of a result row. A nil Cell means the contestant has nothing in that column.
type Cell interface {
	Kind() CellKind
	Display() string
	Tooltip() string
	// Ghost marks a cell that is shown but does not count.
	Ghost() bool
	// Value is what the cell contributes to the row total.
	Value() model.Points
}

type ScoreCell struct {
	Score       Score
	Coefficient model.Points
}

func (c ScoreCell) Kind() CellKind  { return CellScore }
func (c ScoreCell) Display() string { return c.Score.Display }
func (c ScoreCell) Ghost() bool     { return c.Coefficient == 0 }

func (c ScoreCell) Value() model.Points {
	return c.Score.Points.Mul(c.Coefficient)
}

func (c ScoreCell) Tooltip() string {
	if c.Coefficient == model.OnePoint {
		return ""
	}
	return fmt.Sprintf("%s (×%s)", c.Score.Display, c.Coefficient.String())
}

// CarryOverCell holds the total a contestant earned in the predecessor round.
type CarryOverCell struct {
	Points model.Points
}

func (c CarryOverCell) Kind() CellKind      { return CellCarryOver }
func (c CarryOverCell) Display() string     { return c.Points.Display() }
func (c CarryOverCell) Tooltip() string     { return "" }
func (c CarryOverCell) Ghost() bool         { return false }
func (c CarryOverCell) Value() model.Points { return c.Points }

type TextCell struct {
	Text string
	Tip  string
}

func (c TextCell) Kind() CellKind      { return CellText }
func (c TextCell) Display() string     { return c.Text }
func (c TextCell) Tooltip() string     { return c.Tip }
func (c TextCell) Ghost() bool         { return false }
func (c TextCell) Value() model.Points { return 0 }

type cellJSON struct {
	Type        CellKind      `json:"type"`
	Score       *Score        `json:"score,omitempty"`
	Coefficient *model.Points `json:"coefficient,omitempty"`
	Points      *model.Points `json:"points,omitempty"`
	Text        string        `json:"text,omitempty"`
	Display     string        `json:"display"`
	Tooltip     string        `json:"tooltip,omitempty"`
}

func encodeCell(c Cell) (cellJSON, error) {
	switch v := c.(type) {
	case ScoreCell:
		score, coef := v.Score, v.Coefficient
		return cellJSON{Type: CellScore, Score: &score, Coefficient: &coef, Display: v.Display(), Tooltip: v.Tooltip()}, nil
	case CarryOverCell:
		p := v.Points
		return cellJSON{Type: CellCarryOver, Points: &p, Display: v.Display()}, nil
	case TextCell:
		return cellJSON{Type: CellText, Text: v.Text, Display: v.Display(), Tooltip: v.Tip}, nil
	}
	return cellJSON{}, fmt.Errorf("cannot serialize cell of type %T", c)
}

func decodeCell(raw json.RawMessage) (Cell, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var cj cellJSON
	if err := json.Unmarshal(raw, &cj); err != nil {
		return nil, err
	}
	switch cj.Type {
	case CellScore:
		if cj.Score == nil || cj.Coefficient == nil {
			return nil, fmt.Errorf("score cell without score or coefficient")
		}
		score := *cj.Score
		score.Submissions = nil
		if score.SubmissionIDs == nil {
			score.SubmissionIDs = []string{}
		}
		return ScoreCell{Score: score, Coefficient: *cj.Coefficient}, nil
	case CellCarryOver:
		if cj.Points == nil {
			return nil, fmt.Errorf("carry-over cell without points")
		}
		return CarryOverCell{Points: *cj.Points}, nil
	case CellText:
		return TextCell{Text: cj.Text, Tip: cj.Tooltip}, nil
	}
	return nil, fmt.Errorf("unknown cell type %q", cj.Type)
}
