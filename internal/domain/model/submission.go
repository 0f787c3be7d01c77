package model

import "time"

type Submission struct {
	ID           string         `json:"id"`
	EnrollmentID string         `json:"enrollment_id"`
	ProblemID    string         `json:"problem_id"`
	Kind         SubmissionKind `json:"kind"`
	Score        *float64       `json:"score"` // nil while ungraded
	ScoredByID   *string        `json:"scored_by,omitempty"`
	Comment      string         `json:"comment,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

func (s Submission) Pending() bool {
	return s.Score == nil
}
