package model

import (
	"encoding/json"
	"time"
)

type Round struct {
	ID            string          `json:"id"`
	ContestID     string          `json:"contest_id"`
	Slug          string          `json:"slug"`
	Name          string          `json:"name"`
	StartDate     time.Time       `json:"start_date"`
	EndDate       time.Time       `json:"end_date"`
	IsPublic      bool            `json:"is_public"`
	IsFinalized   bool            `json:"is_finalized"`
	PolicyID      string          `json:"policy_id"`
	PolicyOptions json.RawMessage `json:"policy_options,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type SubmissionKind string

const (
	KindFile  SubmissionKind = "file"
	KindJudge SubmissionKind = "judge"
	KindText  SubmissionKind = "text"
)

var SubmissionKinds = []SubmissionKind{KindFile, KindJudge, KindText}

func (k SubmissionKind) Valid() bool {
	switch k {
	case KindFile, KindJudge, KindText:
		return true
	}
	return false
}

type Problem struct {
	ID          string `json:"id"`
	RoundID     string `json:"round_id"`
	Number      int    `json:"number"`
	Name        string `json:"name"`
	FilePoints  int    `json:"file_points"`
	JudgePoints int    `json:"judge_points"`
	TextPoints  int    `json:"text_points"`
}

// Budget returns the maximum points for a kind; 0 means the kind is not accepted.
func (p Problem) Budget(kind SubmissionKind) int {
	switch kind {
	case KindFile:
		return p.FilePoints
	case KindJudge:
		return p.JudgePoints
	case KindText:
		return p.TextPoints
	}
	return 0
}

func (p Problem) Accepts(kind SubmissionKind) bool {
	return p.Budget(kind) > 0
}

func (p Problem) AcceptedKinds() []SubmissionKind {
	kinds := make([]SubmissionKind, 0, len(SubmissionKinds))
	for _, k := range SubmissionKinds {
		if p.Accepts(k) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
