package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"seminar_standings/internal/common"
	"seminar_standings/internal/domain/model"
)

// Unlimited disables a submission cap.
const Unlimited = -1

func DefaultSubmitCaps() map[model.SubmissionKind]int {
	return map[model.SubmissionKind]int{
		model.KindFile:  5,
		model.KindJudge: 30,
		model.KindText:  10,
	}
}

// OverrideKey names the per-contestant cap override for one problem.
func OverrideKey(kind model.SubmissionKind, problemNumber int) string {
	return fmt.Sprintf("max_%s_submits_%d", kind, problemNumber)
}

// SubmitLimit caps how many submissions of each kind a contestant may send per problem.
type SubmitLimit struct {
	Caps map[model.SubmissionKind]int
}

func NewSubmitLimit() *SubmitLimit {
	return &SubmitLimit{Caps: DefaultSubmitCaps()}
}

func (h *SubmitLimit) Name() string { return "submit_limit" }

func (h *SubmitLimit) ParseOptions(_ *model.Round, opts Options) error {
	var caps map[model.SubmissionKind]int
	ok, err := opts.Decode(&caps, "max_submits")
	if err != nil || !ok {
		return err
	}
	for kind, n := range caps {
		if !kind.Valid() {
			return fmt.Errorf("unknown submission kind %q in max_submits: %w", kind, common.ErrConfiguration)
		}
		if n < Unlimited {
			return fmt.Errorf("cap for %s must be -1 or more, got %d: %w", kind, n, common.ErrConfiguration)
		}
		h.Caps[kind] = n
	}
	return nil
}

// capFor resolves the effective cap. Overrides are read as of now, not as of the round start,
// so organizers can grant extra attempts while the round runs.
func (h *SubmitLimit) capFor(ctx context.Context, sc *SubmitContext) (int, error) {
	limit, ok := h.Caps[sc.Kind]
	if !ok {
		limit = Unlimited
	}
	key := OverrideKey(sc.Kind, sc.Problem.Number)
	data, err := sc.Repos.PolicyData.LatestPolicyData(ctx, model.PolicyDataQuery{
		ContestID:     sc.Round.ContestID,
		Key:           key,
		UserIDs:       []string{sc.Enrollment.UserID},
		PolicyIDs:     sc.PolicyIDs,
		EffectiveDate: sc.Now,
	})
	if err != nil {
		return 0, err
	}
	if d, ok := data[sc.Enrollment.UserID]; ok {
		var override int
		if err := json.Unmarshal(d.Data, &override); err != nil {
			log.Printf("WARN: ignoring malformed %s override for user %s: %v", key, sc.Enrollment.UserID, err)
		} else if override != 0 {
			limit = override
		}
	}
	return limit, nil
}

func (h *SubmitLimit) CanSubmit(ctx context.Context, sc *SubmitContext) (Verdict, error) {
	if sc.Organizer {
		return Abstain, nil
	}
	limit, err := h.capFor(ctx, sc)
	if err != nil {
		return Deny, err
	}
	if limit == Unlimited {
		return Abstain, nil
	}
	count, err := sc.Repos.Submissions.CountSubmissions(ctx, sc.Enrollment.ID, sc.Problem.ID, sc.Kind)
	if err != nil {
		return Deny, err
	}
	if count >= limit {
		return Deny, nil
	}
	return Abstain, nil
}

// RoundEndGuard refuses every submission once the round has ended.
type RoundEndGuard struct{}

func (RoundEndGuard) Name() string { return "round_end_guard" }

func (RoundEndGuard) CanSubmit(_ context.Context, sc *SubmitContext) (Verdict, error) {
	if sc.Now.After(sc.Round.EndDate) {
		return Deny, nil
	}
	return Abstain, nil
}

// IntermediateDeadline closes some submission kinds before the round ends.
type IntermediateDeadline struct {
	Kinds    []model.SubmissionKind
	Required bool
	Label    string

	deadline time.Time
	set      bool
}

func (h *IntermediateDeadline) Name() string { return "intermediate_deadline" }

func (h *IntermediateDeadline) ParseOptions(_ *model.Round, opts Options) error {
	t, ok, err := opts.Time("intermediate_deadline", "doprogramovanie_date")
	if err != nil {
		return err
	}
	if !ok {
		if h.Required {
			return fmt.Errorf("option intermediate_deadline is required: %w", common.ErrConfiguration)
		}
		return nil
	}
	h.deadline, h.set = t, true
	return nil
}

func (h *IntermediateDeadline) applies(kind model.SubmissionKind) bool {
	if len(h.Kinds) == 0 {
		return true
	}
	for _, k := range h.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (h *IntermediateDeadline) CanSubmit(_ context.Context, sc *SubmitContext) (Verdict, error) {
	if h.set && h.applies(sc.Kind) && sc.Now.After(h.deadline) {
		return Deny, nil
	}
	return Abstain, nil
}

func (h *IntermediateDeadline) ImportantDates(_ *model.Round) []ImportantDate {
	if !h.set {
		return nil
	}
	label := h.Label
	if label == "" {
		label = "Intermediate deadline"
	}
	return []ImportantDate{{Label: label, Date: h.deadline}}
}

// SubmissionWindow is the final guard: organizers always, everyone else once a public round has started.
type SubmissionWindow struct{}

func (SubmissionWindow) Name() string { return "submission_window" }

func (SubmissionWindow) CanSubmit(_ context.Context, sc *SubmitContext) (Verdict, error) {
	if sc.Organizer {
		return Allow, nil
	}
	if sc.Round.IsPublic && !sc.Now.Before(sc.Round.StartDate) {
		return Allow, nil
	}
	return Deny, nil
}

func (SubmissionWindow) ImportantDates(round *model.Round) []ImportantDate {
	return []ImportantDate{
		{Label: "Round start", Date: round.StartDate},
		{Label: "Round end", Date: round.EndDate},
	}
}
