package rules

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"seminar_standings/internal/domain/model"
)

func rankedTable(id string, rows ...Row) *Table {
	t := &Table{TableID: id, Rows: rows}
	t.Rank()
	return t
}

func TestPromoteRankAndTotalBar(t *testing.T) {
	h := &Leveling{MaxLevel: 4, Bar: SuccessBar{MaxRank: 5, MinTotal: model.PointsFromInt(150)}}
	tables := map[string]*Table{
		"all": rankedTable("all", row("b", 160, false)),
		"L2": rankedTable("L2",
			row("a", 200, false),
			row("b", 160, false),
			row("c", 149, false),
		),
	}
	current := map[string]int{"a": 2, "b": 2, "c": 2}

	changed := h.Promote(tables, current)
	if changed["b"] != 3 {
		t.Errorf("b ranked 2nd with 160 should move to level 3, got %v", changed)
	}
	if changed["a"] != 3 {
		t.Errorf("a should move to level 3, got %v", changed)
	}
	if _, ok := changed["c"]; ok {
		t.Errorf("c is below the bar and must stay, got %v", changed)
	}
}

func TestPromoteRankCutoff(t *testing.T) {
	h := &Leveling{MaxLevel: 4, Bar: SuccessBar{MaxRank: 2}}
	tables := map[string]*Table{"L1": rankedTable("L1",
		row("a", 30, false),
		row("b", 20, false),
		row("tie", 20, false),
		row("c", 10, false),
	)}
	changed := h.Promote(tables, map[string]int{"a": 1, "b": 1, "tie": 1, "c": 1})
	for _, uid := range []string{"a", "b", "tie"} {
		if changed[uid] != 2 {
			t.Errorf("%s should reach level 2, got %v", uid, changed)
		}
	}
	if _, ok := changed["c"]; ok {
		t.Errorf("c ranked 3rd must stay, got %v", changed)
	}
}

// Ranks are dense: a tie group consumes one rank, so the row after a three-way tie
// for first is ranked 2nd, not 4th.
func TestPromoteCutoffAfterTie(t *testing.T) {
	tests := []struct {
		name     string
		maxRank  int
		rows     []Row
		promoted []string
		kept     []string
	}{
		{
			name:     "row after a three-way tie is second",
			maxRank:  3,
			rows:     []Row{row("a", 100, false), row("b", 100, false), row("c", 100, false), row("d", 90, false)},
			promoted: []string{"a", "b", "c", "d"},
		},
		{
			name:     "cutoff at one keeps only the tie",
			maxRank:  1,
			rows:     []Row{row("a", 100, false), row("b", 100, false), row("c", 100, false), row("d", 90, false)},
			promoted: []string{"a", "b", "c"},
			kept:     []string{"d"},
		},
		{
			name:     "tie straddling the cutoff is promoted whole",
			maxRank:  2,
			rows:     []Row{row("a", 100, false), row("b", 90, false), row("c", 90, false), row("d", 80, false)},
			promoted: []string{"a", "b", "c"},
			kept:     []string{"d"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &Leveling{MaxLevel: 4, Bar: SuccessBar{MaxRank: tt.maxRank}}
			current := map[string]int{}
			for _, r := range tt.rows {
				current[r.Enrollment.UserID] = 1
			}
			changed := h.Promote(map[string]*Table{"L1": rankedTable("L1", tt.rows...)}, current)
			for _, uid := range tt.promoted {
				if changed[uid] != 2 {
					t.Errorf("%s should reach level 2, got %v", uid, changed)
				}
			}
			for _, uid := range tt.kept {
				if _, ok := changed[uid]; ok {
					t.Errorf("%s must stay, got %v", uid, changed)
				}
			}
		})
	}
}

func TestPromoteSkipsGhostsAndCaps(t *testing.T) {
	h := &Leveling{MaxLevel: 4, Bar: SuccessBar{MinTotal: model.PointsFromInt(10)}}
	tables := map[string]*Table{
		"L4": rankedTable("L4", row("top", 50, false)),
		"L1": rankedTable("L1", row("org", 100, true), row("low", 40, false)),
	}
	changed := h.Promote(tables, map[string]int{"top": 4, "org": 1, "low": 1})
	if _, ok := changed["top"]; ok {
		t.Errorf("level is capped at the maximum, got %v", changed)
	}
	if _, ok := changed["org"]; ok {
		t.Errorf("ghost rows are never promoted, got %v", changed)
	}
	if changed["low"] != 2 {
		t.Errorf("low should reach level 2, got %v", changed)
	}
}

func TestPromoteNeverDemotes(t *testing.T) {
	h := &Leveling{MaxLevel: 4, Bar: SuccessBar{MinTotal: 0}}
	tables := map[string]*Table{"L1": rankedTable("L1", row("high", 5, false))}
	if changed := h.Promote(tables, map[string]int{"high": 3}); len(changed) != 0 {
		t.Errorf("Promote = %v, want no change for someone already above the table", changed)
	}
}

func TestPromotePerLevelBar(t *testing.T) {
	h := &Leveling{MaxLevel: 5, Bar: SuccessBar{MinTotalByLevel: map[int]model.Points{
		1: model.PointsFromInt(84),
		4: model.PointsFromInt(93),
	}}}
	tables := map[string]*Table{
		"L1": rankedTable("L1", row("a", 84, false)),
		"L4": rankedTable("L4", row("b", 90, false)),
	}
	changed := h.Promote(tables, map[string]int{"a": 1, "b": 4})
	if changed["a"] != 2 {
		t.Errorf("a meets the level-1 bar, got %v", changed)
	}
	if _, ok := changed["b"]; ok {
		t.Errorf("b misses the level-4 bar, got %v", changed)
	}
}

func TestLevelsReadAsOfRoundStart(t *testing.T) {
	f := newFakeStore()
	round := f.addRound("r3", "ksp-3", PolicyKSP2025, `{}`)
	f.setLevel("u1", PolicyKSP2025, 2, t0.Add(-time.Hour))
	f.setLevel("u1", PolicyKSP2025, 3, t0.Add(time.Hour))
	f.setLevel("u2", "other.policy", 4, t0.Add(-time.Hour))
	f.setLevel("u3", PolicyKSP2025, 9, t0.Add(-time.Hour))

	h := &Leveling{MaxLevel: 4}
	levels, err := h.Levels(context.Background(), f.repos(), round, []string{PolicyKSP2025}, []string{"u1", "u2", "u3", "u4"})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]int{"u1": 2, "u2": 1, "u3": 4, "u4": 1}
	for uid, l := range want {
		if levels[uid] != l {
			t.Errorf("level of %s = %d, want %d", uid, levels[uid], l)
		}
	}
}

func TestLevelingCloseWritesFactsOnlyAtCheckpoint(t *testing.T) {
	f := newFakeStore()
	h := &Leveling{MaxLevel: 4, CheckpointSuffix: "2", Bar: SuccessBar{MaxRank: 5, MinTotal: model.PointsFromInt(150)}}
	tables := map[string]*Table{"L2": rankedTable("L2", row("b", 160, false))}
	f.setLevel("b", PolicyKSP2025, 2, t0.Add(-time.Hour))

	for _, tc := range []struct {
		slug      string
		wantFacts int
	}{
		{"ksp-1", 0},
		{"ksp-2", 1},
	} {
		round := &model.Round{ID: tc.slug, ContestID: "contest", Slug: tc.slug, StartDate: t0}
		cc := &CloseContext{Round: round, PolicyIDs: []string{PolicyKSP2025}, Tables: tables, Now: roundEnd, Repos: f.repos()}
		if err := h.OnClose(context.Background(), cc); err != nil {
			t.Fatal(err)
		}
		if len(cc.Facts) != tc.wantFacts {
			t.Fatalf("%s: %d facts, want %d", tc.slug, len(cc.Facts), tc.wantFacts)
		}
		if tc.wantFacts == 0 {
			continue
		}
		fact := cc.Facts[0]
		var level int
		if err := json.Unmarshal(fact.Data, &level); err != nil || level != 3 {
			t.Errorf("fact data = %s, want 3", fact.Data)
		}
		if fact.Key != LevelKey || fact.UserID != "b" || fact.PolicyID != PolicyKSP2025 || !fact.CreatedAt.Equal(roundEnd) {
			t.Errorf("fact = %+v", fact)
		}
	}
}

func TestNumRoundsOption(t *testing.T) {
	h := &Leveling{CheckpointSuffix: "3", NumRoundsOption: true}
	opts, _ := ParseOptions(json.RawMessage(`{"num_rounds": 4}`))
	if err := h.ParseOptions(&model.Round{}, opts); err != nil {
		t.Fatal(err)
	}
	if !h.IsCheckpoint(&model.Round{Slug: "fks-4"}) || h.IsCheckpoint(&model.Round{Slug: "fks-3"}) {
		t.Errorf("num_rounds should move the checkpoint to the 4th round")
	}
	bad, _ := ParseOptions(json.RawMessage(`{"num_rounds": 0}`))
	if err := h.ParseOptions(&model.Round{}, bad); err == nil {
		t.Errorf("num_rounds 0 should be rejected")
	}
}

func TestParseLevelTable(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"L1", 1, true},
		{"L12", 12, true},
		{"all", 0, false},
		{"L0", 0, false},
		{"Lx", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevelTable(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevelTable(%q) = %d, %v", tt.in, got, ok)
		}
	}
}
