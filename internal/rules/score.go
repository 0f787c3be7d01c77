package rules

import (
	"seminar_standings/internal/domain/model"
)

// Score is the aggregated result of one contestant on one problem.
// A score read back from a snapshot carries no Submissions.
type Score struct {
	Points        model.Points       `json:"points"`
	Pending       bool               `json:"pending"`
	Display       string             `json:"display"`
	SubmissionIDs []string           `json:"submits"`
	Submissions   []model.Submission `json:"-"`
}

// NewScore aggregates the effective submissions of one (enrollment, problem) pair,
// at most one per accepted kind.
func NewScore(selected []model.Submission) Score {
	s := Score{
		SubmissionIDs: make([]string, 0, len(selected)),
		Submissions:   selected,
	}
	pendingCount := 0
	for _, sub := range selected {
		s.SubmissionIDs = append(s.SubmissionIDs, sub.ID)
		if sub.Score == nil {
			pendingCount++
			continue
		}
		s.Points += model.PointsFromFloat(*sub.Score)
	}
	s.Pending = pendingCount > 0
	s.Display = formatScore(s.Points, pendingCount, len(selected))
	return s
}

func formatScore(points model.Points, pending, total int) string {
	if total > 0 && pending == total {
		return "?"
	}
	if pending > 0 {
		return points.Display() + "?"
	}
	return points.Display()
}

func (s Score) Frozen() bool {
	return s.Submissions == nil
}
