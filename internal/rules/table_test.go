package rules

import (
	"bytes"
	"encoding/json"
	"testing"

	"seminar_standings/internal/domain/model"
)

func row(userID string, total int, ghost bool) Row {
	return Row{
		Enrollment: model.Enrollment{ID: "e-" + userID, UserID: userID},
		Ghost:      ghost,
		Total:      model.PointsFromInt(total),
	}
}

func TestRankTiesAndGhosts(t *testing.T) {
	table := &Table{Rows: []Row{
		row("a", 50, false),
		row("b", 80, false),
		row("org", 99, true),
		row("c", 80, false),
		row("d", 10, false),
	}}
	table.Rank()

	wantOrder := []string{"org", "b", "c", "a", "d"}
	wantRank := []int{0, 1, 0, 2, 3}
	for i, r := range table.Rows {
		if r.Enrollment.UserID != wantOrder[i] {
			t.Fatalf("row %d = %s, want %s", i, r.Enrollment.UserID, wantOrder[i])
		}
		if got := rankOf(&table.Rows[i]); got != wantRank[i] {
			t.Errorf("rank of %s = %d, want %d", r.Enrollment.UserID, got, wantRank[i])
		}
	}
}

func TestRankKeepsRegistrationOrderOnTies(t *testing.T) {
	table := &Table{Rows: []Row{row("first", 5, false), row("second", 5, false), row("third", 5, false)}}
	table.Rank()
	for i, want := range []string{"first", "second", "third"} {
		if table.Rows[i].Enrollment.UserID != want {
			t.Fatalf("row %d = %s, want %s", i, table.Rows[i].Enrollment.UserID, want)
		}
	}
}

func TestVisibleTo(t *testing.T) {
	table := &Table{Rows: []Row{row("a", 10, false), row("old", 30, true), row("b", 5, false)}}
	table.Rank()

	tests := []struct {
		name   string
		viewer model.Viewer
		want   int
	}{
		{"anonymous", model.Viewer{}, 2},
		{"contestant", model.Viewer{UserID: "a"}, 2},
		{"ghost sees ghosts", model.Viewer{UserID: "old"}, 3},
		{"organizer", model.Viewer{UserID: "x", Organizer: true}, 3},
	}
	for _, tt := range tests {
		if got := len(table.VisibleTo(tt.viewer).Rows); got != tt.want {
			t.Errorf("%s sees %d rows, want %d", tt.name, got, tt.want)
		}
	}
	if len(table.Rows) != 3 {
		t.Fatalf("VisibleTo must not modify the table")
	}
}

func sampleTable() *Table {
	score := NewScore([]model.Submission{
		{ID: "s1", Kind: model.KindFile, Score: pts(8)},
		{ID: "s2", Kind: model.KindJudge},
	})
	t := &Table{
		RoundID: "r1",
		TableID: "L2",
		Columns: []ColumnHeader{{Title: LevelTitle}, {Title: CarryOverTitle, Tooltip: "Points carried over from kms-2"}, {Title: "1", Link: "/rounds/r1/problems/1", ProblemNumber: 1}},
		Rows: []Row{
			{
				Enrollment: model.Enrollment{ID: "e1", RoundID: "r1", UserID: "u1", Username: "alice", Grade: model.GradeSS1, CreatedAt: t0},
				Cells: []Cell{
					TextCell{Text: "2"},
					CarryOverCell{Points: model.PointsFromInt(40)},
					ScoreCell{Score: score, Coefficient: model.OnePoint},
				},
			},
			{
				Enrollment: model.Enrollment{ID: "e2", RoundID: "r1", UserID: "u2", Username: "bob", Grade: model.GradeOld, CreatedAt: t0},
				Ghost:      true,
				Cells:      []Cell{TextCell{Text: "1"}, nil, nil},
			},
		},
	}
	for i := range t.Rows {
		t.Rows[i].Total = SumAll.Total(t.Rows[i].Cells)
	}
	t.Rank()
	return t
}

func TestEncodeDecodeTable(t *testing.T) {
	orig := sampleTable()
	payload, err := EncodeTable(orig)
	if err != nil {
		t.Fatalf("EncodeTable: %v", err)
	}
	again, err := EncodeTable(orig)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(payload, again) {
		t.Fatalf("encoding the same table twice gave different bytes")
	}

	got, err := DecodeTable(payload)
	if err != nil {
		t.Fatalf("DecodeTable: %v", err)
	}
	if got.RoundID != "r1" || got.TableID != "L2" || len(got.Columns) != 3 || len(got.Rows) != 2 {
		t.Fatalf("decoded shape mismatch: %+v", got)
	}
	first := got.Rows[0]
	if first.Total != model.PointsFromInt(48) || rankOf(&first) != 1 {
		t.Errorf("first row total=%s rank=%d, want 48 and 1", first.Total, rankOf(&first))
	}
	sc, ok := first.Cells[2].(ScoreCell)
	if !ok {
		t.Fatalf("cell 2 is %T, want ScoreCell", first.Cells[2])
	}
	if sc.Score.Display != "8?" || !sc.Score.Pending || !sc.Score.Frozen() || len(sc.Score.SubmissionIDs) != 2 {
		t.Errorf("decoded score = %+v", sc.Score)
	}
	if got.Rows[1].Cells[1] != nil {
		t.Errorf("empty cell should decode as nil, got %T", got.Rows[1].Cells[1])
	}
	if !got.Rows[1].Ghost || got.Rows[1].Rank != nil {
		t.Errorf("ghost row lost its flag or gained a rank")
	}

	// A decoded table encodes to the same snapshot.
	reencoded, err := EncodeTable(got)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(payload, reencoded) {
		t.Errorf("re-encoding a decoded table changed the snapshot")
	}
}

func TestTableJSONShape(t *testing.T) {
	raw, err := json.Marshal(sampleTable())
	if err != nil {
		t.Fatal(err)
	}
	var generic struct {
		Rows []struct {
			Rank  *int              `json:"rank"`
			Total string            `json:"total"`
			Cells []json.RawMessage `json:"cells"`
		} `json:"rows"`
	}
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatal(err)
	}
	if generic.Rows[0].Total != "48" {
		t.Errorf("total = %q, want \"48\"", generic.Rows[0].Total)
	}
	var cell struct {
		Type  string `json:"type"`
		Score struct {
			Submits []string `json:"submits"`
		} `json:"score"`
	}
	if err := json.Unmarshal(generic.Rows[0].Cells[2], &cell); err != nil {
		t.Fatal(err)
	}
	if cell.Type != string(CellScore) || len(cell.Score.Submits) != 2 {
		t.Errorf("score cell = %s", generic.Rows[0].Cells[2])
	}

	for i, want := range []string{"2", "40", "8?"} {
		var c struct {
			Display *string `json:"display"`
		}
		if err := json.Unmarshal(generic.Rows[0].Cells[i], &c); err != nil {
			t.Fatal(err)
		}
		if c.Display == nil || *c.Display != want {
			t.Errorf("cell %d display = %v, want %q: %s", i, c.Display, want, generic.Rows[0].Cells[i])
		}
	}
}

func TestDecodeTableRejectsGarbage(t *testing.T) {
	if _, err := DecodeTable([]byte("not gzip")); err == nil {
		t.Fatal("expected an error")
	}
}
