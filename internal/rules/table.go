package rules

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"seminar_standings/internal/domain/model"
)

type ColumnHeader struct {
	Title         string `json:"title"`
	Link          string `json:"link,omitempty"`
	Tooltip       string `json:"tooltip,omitempty"`
	ProblemNumber int    `json:"problem_number,omitempty"`
}

type Row struct {
	Rank       *int
	Enrollment model.Enrollment
	Ghost      bool
	Cells      []Cell
	Total      model.Points
}

type Table struct {
	RoundID string
	TableID string
	Columns []ColumnHeader
	Rows    []Row
}

// Rank sorts rows by total, highest first, keeping input order among equal totals,
// then numbers them. Ghost rows and rows tied with the previous counted row get no rank.
func (t *Table) Rank() {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		return t.Rows[i].Total > t.Rows[j].Total
	})

	rank := 0
	var last *model.Points
	for i := range t.Rows {
		row := &t.Rows[i]
		row.Rank = nil
		if row.Ghost {
			continue
		}
		if last != nil && row.Total == *last {
			continue
		}
		rank++
		r := rank
		row.Rank = &r
		total := row.Total
		last = &total
	}
}

// RowFor finds the row of a user, or nil.
func (t *Table) RowFor(userID string) *Row {
	for i := range t.Rows {
		if t.Rows[i].Enrollment.UserID == userID {
			return &t.Rows[i]
		}
	}
	return nil
}

// VisibleTo drops ghost rows unless the viewer is privileged or is a ghost in this table.
func (t *Table) VisibleTo(v model.Viewer) *Table {
	if v.Organizer {
		return t
	}
	if !v.Anonymous() {
		if own := t.RowFor(v.UserID); own != nil && own.Ghost {
			return t
		}
	}
	visible := &Table{RoundID: t.RoundID, TableID: t.TableID, Columns: t.Columns, Rows: make([]Row, 0, len(t.Rows))}
	for _, row := range t.Rows {
		if !row.Ghost {
			visible.Rows = append(visible.Rows, row)
		}
	}
	return visible
}

type rowJSON struct {
	Rank       *int              `json:"rank"`
	Enrollment model.Enrollment  `json:"enrollment"`
	Ghost      bool              `json:"ghost"`
	Cells      []json.RawMessage `json:"cells"`
	Total      model.Points      `json:"total"`
}

type tableJSON struct {
	RoundID string         `json:"round_id"`
	TableID string         `json:"table_id"`
	Columns []ColumnHeader `json:"columns"`
	Rows    []rowJSON      `json:"rows"`
}

func (t *Table) MarshalJSON() ([]byte, error) {
	tj := tableJSON{RoundID: t.RoundID, TableID: t.TableID, Columns: t.Columns, Rows: make([]rowJSON, 0, len(t.Rows))}
	if tj.Columns == nil {
		tj.Columns = []ColumnHeader{}
	}
	for _, row := range t.Rows {
		rj := rowJSON{Rank: row.Rank, Enrollment: row.Enrollment, Ghost: row.Ghost, Total: row.Total, Cells: make([]json.RawMessage, len(row.Cells))}
		for i, c := range row.Cells {
			if c == nil {
				rj.Cells[i] = json.RawMessage("null")
				continue
			}
			cj, err := encodeCell(c)
			if err != nil {
				return nil, err
			}
			raw, err := json.Marshal(cj)
			if err != nil {
				return nil, err
			}
			rj.Cells[i] = raw
		}
		tj.Rows = append(tj.Rows, rj)
	}
	return json.Marshal(tj)
}

func (t *Table) UnmarshalJSON(data []byte) error {
	var tj tableJSON
	if err := json.Unmarshal(data, &tj); err != nil {
		return err
	}
	t.RoundID, t.TableID, t.Columns = tj.RoundID, tj.TableID, tj.Columns
	t.Rows = make([]Row, 0, len(tj.Rows))
	for _, rj := range tj.Rows {
		row := Row{Rank: rj.Rank, Enrollment: rj.Enrollment, Ghost: rj.Ghost, Total: rj.Total, Cells: make([]Cell, len(rj.Cells))}
		for i, raw := range rj.Cells {
			c, err := decodeCell(raw)
			if err != nil {
				return fmt.Errorf("row %s cell %d: %w", rj.Enrollment.ID, i, err)
			}
			row.Cells[i] = c
		}
		t.Rows = append(t.Rows, row)
	}
	return nil
}

// EncodeTable produces the compressed serialized form used by the cache and the freeze store.
// The output is deterministic for equal tables.
func EncodeTable(t *Table) ([]byte, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("rules.EncodeTable marshal: %w", err)
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("rules.EncodeTable compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("rules.EncodeTable compress: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodeTable(payload []byte) (*Table, error) {
	zr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("rules.DecodeTable: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("rules.DecodeTable: %w", err)
	}
	t := &Table{}
	if err := json.Unmarshal(raw, t); err != nil {
		return nil, fmt.Errorf("rules.DecodeTable: %w", err)
	}
	return t, nil
}
