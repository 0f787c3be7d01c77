package model

import "time"

type Grade string

const (
	GradeYoung Grade = "YNG"
	GradeZS5   Grade = "5ZS"
	GradeZS6   Grade = "6ZS"
	GradeZS7   Grade = "7ZS"
	GradeZS8   Grade = "8ZS"
	GradeZS9   Grade = "9ZS"
	GradeSS1   Grade = "1SS"
	GradeSS2   Grade = "2SS"
	GradeSS3   Grade = "3SS"
	GradeSS4   Grade = "4SS"
	GradeSS5   Grade = "5SS"
	GradeOld   Grade = "OLD"
)

// IsRetired reports whether a contestant of this grade no longer competes for rank.
// The extended variant also retires every secondary-school grade above the first.
func (g Grade) IsRetired(extended bool) bool {
	if g == GradeOld {
		return true
	}
	if !extended {
		return false
	}
	switch g {
	case GradeSS2, GradeSS3, GradeSS4, GradeSS5:
		return true
	}
	return false
}

// Enrollment is the row identity of a contestant within one round.
type Enrollment struct {
	ID         string    `json:"id"`
	RoundID    string    `json:"round_id"`
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	Grade      Grade     `json:"grade"`
	SchoolID   *string   `json:"school_id,omitempty"`
	SchoolName string    `json:"school_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
