package rules

import (
	"time"

	"seminar_standings/internal/domain/model"
)

// SelectionKey identifies one (enrollment, problem, kind) triple.
type SelectionKey struct {
	EnrollmentID string
	ProblemID    string
	Kind         model.SubmissionKind
}

// better reports whether a should count instead of b: graded beats ungraded,
// higher score wins, then the more recent submission, then the larger id.
func better(a, b model.Submission) bool {
	switch {
	case a.Score != nil && b.Score == nil:
		return true
	case a.Score == nil && b.Score != nil:
		return false
	case a.Score != nil && b.Score != nil && *a.Score != *b.Score:
		return *a.Score > *b.Score
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// Select picks the effective submission of one kind among subs, ignoring anything created after deadline.
func Select(subs []model.Submission, kind model.SubmissionKind, deadline time.Time) (model.Submission, bool) {
	var (
		best  model.Submission
		found bool
	)
	for _, s := range subs {
		if s.Kind != kind || s.CreatedAt.After(deadline) {
			continue
		}
		if !found || better(s, best) {
			best, found = s, true
		}
	}
	return best, found
}

// SelectBatch applies Select to every triple present in subs in one pass.
func SelectBatch(subs []model.Submission, deadline time.Time) map[SelectionKey]model.Submission {
	selected := make(map[SelectionKey]model.Submission)
	for _, s := range subs {
		if s.CreatedAt.After(deadline) {
			continue
		}
		key := SelectionKey{EnrollmentID: s.EnrollmentID, ProblemID: s.ProblemID, Kind: s.Kind}
		if cur, ok := selected[key]; !ok || better(s, cur) {
			selected[key] = s
		}
	}
	return selected
}
