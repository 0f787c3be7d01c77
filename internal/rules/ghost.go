package rules

import "seminar_standings/internal/domain/model"

// OrganizerGhost keeps the contest's organizers out of the ranking.
type OrganizerGhost struct{}

func (OrganizerGhost) Name() string { return "organizer_ghost" }

func (OrganizerGhost) Ghost(bc *BuildContext, e model.Enrollment) bool {
	return bc.Organizers[e.UserID]
}

// RetiredGhost keeps contestants past the eligible grades out of the ranking.
type RetiredGhost struct {
	Extended bool
}

func (RetiredGhost) Name() string { return "retired_ghost" }

func (h RetiredGhost) Ghost(_ *BuildContext, e model.Enrollment) bool {
	return e.Grade.IsRetired(h.Extended)
}
