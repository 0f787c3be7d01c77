package rules

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"seminar_standings/internal/common"
	"seminar_standings/internal/domain/model"
)

func TestCarryOverExample(t *testing.T) {
	f := newFakeStore()
	r1 := f.addRound("r1", "seria-1", PolicyDefault, `{}`)
	r2 := f.addRound("r2", "seria-2", PolicyDefault, `{"previous_round_slug": "seria-1"}`)
	f.addProblems(r1.ID, 1, 2)
	f.addProblems(r2.ID, 1, 2)

	c1 := f.enroll(r1.ID, "c", model.GradeSS1)
	f.submit(c1, 1, model.KindFile, pts(10), t0)
	f.submit(c1, 1, model.KindJudge, pts(10), t0)
	f.submit(c1, 2, model.KindJudge, pts(20), t0)
	f.enroll(r2.ID, "c", model.GradeSS1)
	newcomer := f.enroll(r2.ID, "n", model.GradeSS1)
	f.submit(newcomer, 1, model.KindFile, pts(5), t0)

	table, err := f.builder(t).ResultTable(context.Background(), r2, TableAll)
	if err != nil {
		t.Fatalf("build r2: %v", err)
	}
	if table.Columns[0].Title != CarryOverTitle {
		t.Fatalf("first column = %q, want carry-over", table.Columns[0].Title)
	}

	c := table.RowFor("c")
	if c == nil {
		t.Fatal("missing row for c")
	}
	carry, ok := c.Cells[0].(CarryOverCell)
	if !ok || carry.Points != model.PointsFromInt(40) {
		t.Fatalf("carry-over cell = %#v, want 40", c.Cells[0])
	}
	if c.Total != model.PointsFromInt(40) {
		t.Errorf("running total = %s, want 40", c.Total)
	}
	if c.Cells[1] != nil || c.Cells[2] != nil {
		t.Errorf("c has no submissions in r2, cells = %v", c.Cells)
	}

	n := table.RowFor("n")
	if n.Cells[0] != nil || n.Total != model.PointsFromInt(5) {
		t.Errorf("newcomer: carry=%v total=%s", n.Cells[0], n.Total)
	}
	if rankOf(c) != 1 || rankOf(n) != 2 {
		t.Errorf("ranks: c=%d n=%d", rankOf(c), rankOf(n))
	}
}

func TestCarryOverChainOfThree(t *testing.T) {
	f := newFakeStore()
	r1 := f.addRound("r1", "s-1", PolicyDefault, `{}`)
	f.addRound("r2", "s-2", PolicyDefault, `{"previous_round_slug": "s-1"}`)
	r3 := f.addRound("r3", "s-3", PolicyDefault, `{"previous_problem_set": "s-2"}`)
	for _, id := range []string{"r1", "r2", "r3"} {
		f.addProblems(id, 1)
	}
	e1 := f.enroll(r1.ID, "u", model.GradeSS2)
	f.submit(e1, 1, model.KindFile, pts(7), t0)
	e2 := f.enroll("r2", "u", model.GradeSS2)
	f.submit(e2, 1, model.KindFile, pts(3), t0)
	f.enroll(r3.ID, "u", model.GradeSS2)

	table, err := f.builder(t).ResultTable(context.Background(), r3, TableAll)
	if err != nil {
		t.Fatal(err)
	}
	if got := table.RowFor("u").Total; got != model.PointsFromInt(10) {
		t.Errorf("total through two predecessors = %s, want 10", got)
	}
}

func TestWalkDetectsCycle(t *testing.T) {
	f := newFakeStore()
	a := f.addRound("a", "round-a", PolicyDefault, `{"previous_round_slug": "round-b"}`)
	f.addRound("b", "round-b", PolicyDefault, `{"previous_round_slug": "round-a"}`)

	_, err := f.builder(t).ResultTable(context.Background(), a, TableAll)
	if !errors.Is(err, common.ErrInvariant) {
		t.Fatalf("cycle error = %v, want invariant violation", err)
	}
}

func TestWalkDepthLimitAndMemo(t *testing.T) {
	calls := 0
	var get TableGetter
	get = func(ctx context.Context, round *model.Round, tableID string, w *Walk) (*Table, error) {
		calls++
		next := &model.Round{ID: round.ID + "x", Slug: round.Slug + "-x"}
		if len(round.ID) < 3 {
			if _, err := w.ResultTable(ctx, next, tableID); err != nil {
				return nil, err
			}
		}
		return &Table{RoundID: round.ID, TableID: tableID}, nil
	}

	w := NewWalk(3, get)
	root := &model.Round{ID: "r", Slug: "r"}
	if _, err := w.ResultTable(context.Background(), root, "all"); err != nil {
		t.Fatalf("chain of three within limit: %v", err)
	}
	before := calls
	if _, err := w.ResultTable(context.Background(), root, "all"); err != nil {
		t.Fatal(err)
	}
	if calls != before {
		t.Errorf("second lookup should be memoized, calls went from %d to %d", before, calls)
	}

	shallow := NewWalk(2, get)
	if _, err := shallow.ResultTable(context.Background(), root, "all"); !errors.Is(err, common.ErrInvariant) {
		t.Fatalf("depth limit error = %v, want invariant violation", err)
	}
}

func TestCarryOverOptions(t *testing.T) {
	round := &model.Round{Slug: "kms-2"}
	tests := []struct {
		opts    string
		want    string
		wantErr bool
	}{
		{`{}`, "", false},
		{`{"previous_round_slug": "kms-1"}`, "kms-1", false},
		{`{"previous_problem_set": "kms-1"}`, "kms-1", false},
		{`{"previous_round_slug": "KMS 1"}`, "", true},
		{`{"previous_round_slug": "kms-2"}`, "", true},
		{`{"previous_round_slug": 7}`, "", true},
	}
	for _, tt := range tests {
		opts, err := ParseOptions(json.RawMessage(tt.opts))
		if err != nil {
			t.Fatal(err)
		}
		h := &CarryOver{}
		err = h.ParseOptions(round, opts)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.opts, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, common.ErrConfiguration) {
			t.Errorf("%s: err = %v, want configuration error", tt.opts, err)
		}
		if h.PreviousSlug() != tt.want {
			t.Errorf("%s: previous = %q, want %q", tt.opts, h.PreviousSlug(), tt.want)
		}
	}
}

func TestCarryOverMissingPredecessor(t *testing.T) {
	f := newFakeStore()
	r := f.addRound("r", "s-2", PolicyDefault, `{"previous_round_slug": "s-1"}`)
	_, err := f.builder(t).ResultTable(context.Background(), r, TableAll)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}
