package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"seminar_standings/internal/common"
	"seminar_standings/internal/domain/model"
)

const (
	LevelKey    = "level"
	LevelTitle  = "Level"
	levelPrefix = "L"
)

// LevelTableID returns "L<level>".
func LevelTableID(level int) string {
	return levelPrefix + strconv.Itoa(level)
}

// ParseLevelTable extracts the level from ids like "L3"; other ids report false.
func ParseLevelTable(tableID string) (int, bool) {
	if !strings.HasPrefix(tableID, levelPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(tableID[len(levelPrefix):])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// SuccessBar decides who advances out of a level table.
type SuccessBar struct {
	// MaxRank > 0 requires the row to sit at or above this rank; tied rows share the rank above them.
	MaxRank int
	// MinTotal applies to every level without an entry in MinTotalByLevel.
	MinTotal        model.Points
	MinTotalByLevel map[int]model.Points
}

func (b SuccessBar) minTotal(level int) model.Points {
	if t, ok := b.MinTotalByLevel[level]; ok {
		return t
	}
	return b.MinTotal
}

// Leveling tracks skill levels stored as policy data and promotes contestants at checkpoint rounds.
type Leveling struct {
	MaxLevel     int
	DefaultLevel int
	// InTable reports whether a level table scores a problem; nil means number >= level.
	InTable func(tableLevel, problemNumber int) bool
	// FilterTableProblems drops unscored problems from level tables instead of zeroing them.
	FilterTableProblems bool
	// ExcludeAboveTable hides contestants whose level is above the table's level.
	ExcludeAboveTable bool
	// GateByLevel zeroes problems numbered below the contestant's own level in every table.
	GateByLevel bool
	// CheckpointSuffix marks leveling rounds by the end of their slug.
	CheckpointSuffix string
	// NumRoundsOption lets the "num_rounds" option replace CheckpointSuffix.
	NumRoundsOption bool
	Bar             SuccessBar
	// LevelTableDefault sends signed-in viewers to their own level table.
	LevelTableDefault bool
	// BelowLevelChip is shown on problems that do not count at the viewer's level.
	BelowLevelChip *Chip
}

func (h *Leveling) Name() string { return "leveling" }

func (h *Leveling) ParseOptions(_ *model.Round, opts Options) error {
	if !h.NumRoundsOption {
		return nil
	}
	n, ok, err := opts.Int("num_rounds")
	if err != nil || !ok {
		return err
	}
	if n <= 0 {
		return fmt.Errorf("num_rounds must be positive, got %d: %w", n, common.ErrConfiguration)
	}
	h.CheckpointSuffix = strconv.Itoa(n)
	return nil
}

func (h *Leveling) clamp(level int) int {
	if h.MaxLevel > 0 && level > h.MaxLevel {
		return h.MaxLevel
	}
	if level < 1 {
		return 1
	}
	return level
}

func (h *Leveling) defaultLevel() int {
	if h.DefaultLevel > 0 {
		return h.DefaultLevel
	}
	return 1
}

// Levels reads the current level of each user as of the round's start.
func (h *Leveling) Levels(ctx context.Context, repos Repositories, round *model.Round, policyIDs, userIDs []string) (map[string]int, error) {
	data, err := repos.PolicyData.LatestPolicyData(ctx, model.PolicyDataQuery{
		ContestID:     round.ContestID,
		Key:           LevelKey,
		UserIDs:       userIDs,
		PolicyIDs:     policyIDs,
		EffectiveDate: round.StartDate,
	})
	if err != nil {
		return nil, err
	}
	levels := make(map[string]int, len(userIDs))
	for _, id := range userIDs {
		level := h.defaultLevel()
		if d, ok := data[id]; ok {
			var stored int
			if err := json.Unmarshal(d.Data, &stored); err != nil {
				log.Printf("WARN: ignoring malformed level datum %s for user %s: %v", d.ID, id, err)
			} else {
				level = stored
			}
		}
		levels[id] = h.clamp(level)
	}
	return levels, nil
}

func (h *Leveling) levelOf(bc *BuildContext, userID string) int {
	if l, ok := bc.Levels[userID]; ok {
		return l
	}
	return h.defaultLevel()
}

func (h *Leveling) inTable(tableLevel, number int) bool {
	if h.InTable != nil {
		return h.InTable(tableLevel, number)
	}
	return number >= tableLevel
}

func (h *Leveling) LoadContext(ctx context.Context, bc *BuildContext) error {
	userIDs := make([]string, 0, len(bc.Enrollments))
	for _, e := range bc.Enrollments {
		userIDs = append(userIDs, e.UserID)
	}
	levels, err := h.Levels(ctx, bc.Repos, bc.Round, bc.PolicyIDs, userIDs)
	if err != nil {
		return err
	}
	bc.Levels = levels
	return nil
}

func (h *Leveling) FilterProblems(tableID string, problems []model.Problem) []model.Problem {
	level, ok := ParseLevelTable(tableID)
	if !h.FilterTableProblems || !ok {
		return problems
	}
	kept := make([]model.Problem, 0, len(problems))
	for _, p := range problems {
		if h.inTable(level, p.Number) {
			kept = append(kept, p)
		}
	}
	return kept
}

func (h *Leveling) Headers(_ *BuildContext, headers []ColumnHeader) []ColumnHeader {
	return append([]ColumnHeader{{Title: LevelTitle}}, headers...)
}

func (h *Leveling) Cells(bc *BuildContext, e model.Enrollment, cells []Cell) []Cell {
	level := TextCell{Text: strconv.Itoa(h.levelOf(bc, e.UserID))}
	return append([]Cell{level}, cells...)
}

func (h *Leveling) Coefficient(bc *BuildContext, p model.Problem, e model.Enrollment) model.Points {
	if tableLevel, ok := ParseLevelTable(bc.TableID); ok && !h.inTable(tableLevel, p.Number) {
		return 0
	}
	if h.GateByLevel && p.Number < h.levelOf(bc, e.UserID) {
		return 0
	}
	return model.OnePoint
}

func (h *Leveling) Excluded(bc *BuildContext, e model.Enrollment) bool {
	tableLevel, ok := ParseLevelTable(bc.TableID)
	return h.ExcludeAboveTable && ok && h.levelOf(bc, e.UserID) > tableLevel
}

func (h *Leveling) DefaultTable(ctx context.Context, round *model.Round, policyIDs []string, viewer model.Viewer, repos Repositories) (string, bool, error) {
	if !h.LevelTableDefault || viewer.Anonymous() {
		return "", false, nil
	}
	levels, err := h.Levels(ctx, repos, round, policyIDs, []string{viewer.UserID})
	if err != nil {
		return "", false, err
	}
	return LevelTableID(levels[viewer.UserID]), true, nil
}

func (h *Leveling) Chips(ctx context.Context, cc *ChipContext) error {
	if h.BelowLevelChip == nil || cc.UserID == "" {
		return nil
	}
	levels, err := h.Levels(ctx, cc.Repos, cc.Round, cc.PolicyIDs, []string{cc.UserID})
	if err != nil {
		return err
	}
	level := levels[cc.UserID]
	for _, p := range cc.Problems {
		if level > p.Number {
			cc.Add(p.Number, *h.BelowLevelChip)
		}
	}
	return nil
}

func (h *Leveling) IsCheckpoint(round *model.Round) bool {
	return h.CheckpointSuffix != "" && strings.HasSuffix(round.Slug, h.CheckpointSuffix)
}

// Promote scans every level table and returns the new level of each user whose level changed,
// given their current levels.
func (h *Leveling) Promote(tables map[string]*Table, current map[string]int) map[string]int {
	next := make(map[string]int, len(current))
	for id, l := range current {
		next[id] = l
	}

	ids := make([]string, 0, len(tables))
	for id := range tables {
		if _, ok := ParseLevelTable(id); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		tableLevel, _ := ParseLevelTable(id)
		bar := h.Bar.minTotal(tableLevel)
		lastRank := 0
		for _, row := range tables[id].Rows {
			if row.Rank != nil {
				lastRank = *row.Rank
			}
			if h.Bar.MaxRank > 0 && lastRank > h.Bar.MaxRank {
				break
			}
			if row.Total < bar {
				break
			}
			if row.Ghost {
				continue
			}
			uid := row.Enrollment.UserID
			cur, ok := current[uid]
			if !ok {
				cur = h.defaultLevel()
			}
			promoted := h.clamp(max(cur, tableLevel+1))
			if promoted > next[uid] {
				next[uid] = promoted
			}
		}
	}

	changed := make(map[string]int)
	for uid, l := range next {
		cur, ok := current[uid]
		if !ok {
			cur = h.defaultLevel()
		}
		if l != cur {
			changed[uid] = l
		}
	}
	return changed
}

func (h *Leveling) OnClose(ctx context.Context, cc *CloseContext) error {
	if !h.IsCheckpoint(cc.Round) {
		return nil
	}

	seen := make(map[string]bool)
	var userIDs []string
	for id, t := range cc.Tables {
		if t == nil {
			return fmt.Errorf("table %q missing at close: %w", id, common.ErrInvariant)
		}
		for _, row := range t.Rows {
			if !seen[row.Enrollment.UserID] {
				seen[row.Enrollment.UserID] = true
				userIDs = append(userIDs, row.Enrollment.UserID)
			}
		}
	}
	sort.Strings(userIDs)

	current, err := h.Levels(ctx, cc.Repos, cc.Round, cc.PolicyIDs, userIDs)
	if err != nil {
		return err
	}
	changed := h.Promote(cc.Tables, current)

	changedIDs := make([]string, 0, len(changed))
	for uid := range changed {
		changedIDs = append(changedIDs, uid)
	}
	sort.Strings(changedIDs)
	for _, uid := range changedIDs {
		data, err := json.Marshal(changed[uid])
		if err != nil {
			return err
		}
		cc.Facts = append(cc.Facts, model.PolicyDatum{
			ID:        uuid.NewString(),
			ContestID: cc.Round.ContestID,
			UserID:    uid,
			Key:       LevelKey,
			PolicyID:  cc.PolicyIDs[0],
			Data:      data,
			CreatedAt: cc.Now,
		})
	}
	log.Printf("INFO: round %s leveling checkpoint: %d of %d contestants promoted", cc.Round.Slug, len(changed), len(userIDs))
	return nil
}
