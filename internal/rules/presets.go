package rules

import (
	"seminar_standings/internal/domain/model"
)

const (
	PolicyDefault   = "default"
	PolicyKMS2025   = "kms.2025"
	PolicyKSP2025   = "ksp.2025"
	PolicyFKS2026   = "fks.2026"
	PolicyFX2026    = "fx.2026"
	PolicyPrask2025 = "prask.2025"
	PolicyFKSLegacy = "fks.legacy"

	TableAll = "all"
)

func init() {
	Register(PolicyDefault, newDefaultPolicy)
	Register(PolicyKMS2025, newKMS2025)
	Register(PolicyKSP2025, newKSP2025)
	Register(PolicyFKS2026, newFKS2026)
	Register(PolicyFX2026, newFX2026)
	Register(PolicyPrask2025, newPrask2025)
	Register(PolicyFKSLegacy, newFKSLegacy)
}

func levelTables(maxLevel int, withAll bool) []TableDef {
	var tables []TableDef
	if withAll {
		tables = append(tables, TableDef{ID: TableAll, Name: "All"})
	}
	for l := 1; l <= maxLevel; l++ {
		tables = append(tables, TableDef{ID: LevelTableID(l), Name: "Level " + LevelTableID(l)[1:]})
	}
	return tables
}

var notScoredChip = Chip{
	Message: "Nebodovaná",
	Color:   "amber",
	Icon:    "mdi-alert",
	Help:    "This problem does not count towards your score at your level.",
}

func newDefaultPolicy() *Policy {
	return &Policy{
		ID:           PolicyDefault,
		Tables:       []TableDef{{ID: TableAll, Name: "All"}},
		DefaultTable: TableAll,
		Total:        SumAll,
		Hooks: []Hook{
			OrganizerGhost{},
			RetiredGhost{},
			&CarryOver{},
			&SubmitLimit{Caps: map[model.SubmissionKind]int{}},
		},
	}
}

// KMS level tables score problem ranges: L1 1-8, L2 2-8, L3 3-8, L4 4-10, L5 5-10.
var kmsProblemRanges = map[int][2]int{
	1: {1, 8},
	2: {2, 8},
	3: {3, 8},
	4: {4, 10},
	5: {5, 10},
}

func kmsInTable(tableLevel, number int) bool {
	r, ok := kmsProblemRanges[tableLevel]
	return ok && number >= r[0] && number <= r[1]
}

func newKMS2025() *Policy {
	const maxLevel = 5
	return &Policy{
		ID:           PolicyKMS2025,
		Tables:       levelTables(maxLevel, false),
		DefaultTable: LevelTableID(1),
		Total:        TopK{K: 5},
		Hooks: []Hook{
			OrganizerGhost{},
			RetiredGhost{},
			&CarryOver{},
			&Leveling{
				MaxLevel:          maxLevel,
				InTable:           kmsInTable,
				ExcludeAboveTable: true,
				CheckpointSuffix:  "3",
				Bar: SuccessBar{MinTotalByLevel: map[int]model.Points{
					1: model.PointsFromInt(84),
					2: model.PointsFromInt(84),
					3: model.PointsFromInt(84),
					4: model.PointsFromInt(93),
					5: model.PointsFromInt(93),
				}},
				BelowLevelChip: &notScoredChip,
			},
			&IntermediateDeadline{Kinds: []model.SubmissionKind{model.KindFile}},
			NewSubmitLimit(),
		},
	}
}

func newKSP2025() *Policy {
	const maxLevel = 4
	return &Policy{
		ID:           PolicyKSP2025,
		Tables:       levelTables(maxLevel, true),
		DefaultTable: TableAll,
		Total:        TopK{K: 5},
		Hooks: []Hook{
			OrganizerGhost{},
			RetiredGhost{},
			&CarryOver{},
			&Leveling{
				MaxLevel:          maxLevel,
				ExcludeAboveTable: true,
				CheckpointSuffix:  "2",
				Bar:               SuccessBar{MaxRank: 5, MinTotal: model.PointsFromInt(150)},
				BelowLevelChip:    &notScoredChip,
			},
			&IntermediateDeadline{Kinds: []model.SubmissionKind{model.KindFile}, Required: true, Label: "Doprogramovanie"},
			NewSubmitLimit(),
		},
	}
}

func newFKS2026() *Policy {
	const maxLevel = 4
	return &Policy{
		ID:           PolicyFKS2026,
		Tables:       levelTables(maxLevel, true),
		DefaultTable: TableAll,
		Total:        TopK{K: 4},
		Hooks: []Hook{
			OrganizerGhost{},
			RetiredGhost{},
			&CarryOver{},
			&Leveling{
				MaxLevel:            maxLevel,
				FilterTableProblems: true,
				GateByLevel:         true,
				CheckpointSuffix:    "3",
				NumRoundsOption:     true,
				Bar:                 SuccessBar{MaxRank: 3, MinTotal: model.PointsFromInt(60)},
				LevelTableDefault:   true,
				BelowLevelChip:      &notScoredChip,
			},
			RoundEndGuard{},
		},
	}
}

func newFX2026() *Policy {
	return &Policy{
		ID:           PolicyFX2026,
		Tables:       []TableDef{{ID: TableAll, Name: "All"}},
		DefaultTable: TableAll,
		Total:        SumAll,
		Hooks: []Hook{
			OrganizerGhost{},
			RetiredGhost{},
			&CarryOver{},
			RoundEndGuard{},
		},
	}
}

func newPrask2025() *Policy {
	return &Policy{
		ID:           PolicyPrask2025,
		Tables:       []TableDef{{ID: TableAll, Name: "All"}},
		DefaultTable: TableAll,
		Total:        SumAll,
		Hooks: []Hook{
			OrganizerGhost{},
			RetiredGhost{Extended: true},
			&CarryOver{},
			&ProblemTypeChips{Types: DefaultProblemTypes()},
		},
	}
}

func newFKSLegacy() *Policy {
	return &Policy{
		ID:           PolicyFKSLegacy,
		Tables:       []TableDef{{ID: "B", Name: "Category B"}, {ID: "A", Name: "Category A"}},
		DefaultTable: "B",
		Total:        SumAll,
		Hooks: []Hook{
			OrganizerGhost{},
			RetiredGhost{},
			&CarryOver{},
		},
	}
}
