package rules

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"seminar_standings/internal/common"
	"seminar_standings/internal/domain/model"
)

// Engine evaluates one round under its configured policy.
type Engine struct {
	round    *model.Round
	policy   *Policy
	pipeline *Pipeline
	repos    Repositories
	now      func() time.Time
	deadline time.Time
}

type EngineOption func(*Engine)

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine resolves and configures the round's policy. Any problem with the policy id
// or options is reported here as ErrConfiguration, never later while building.
func NewEngine(round *model.Round, repos Repositories, opts ...EngineOption) (*Engine, error) {
	policy, err := Lookup(round.PolicyID)
	if err != nil {
		return nil, fmt.Errorf("round %q: %w", round.Slug, err)
	}
	if err := policy.validate(); err != nil {
		return nil, err
	}
	options, err := ParseOptions(round.PolicyOptions)
	if err != nil {
		return nil, fmt.Errorf("round %q: %w", round.Slug, err)
	}

	e := &Engine{
		round:    round,
		policy:   policy,
		repos:    repos,
		now:      time.Now,
		deadline: round.EndDate,
	}
	for _, opt := range opts {
		opt(e)
	}

	if k, ok, err := options.Int("top_k"); err != nil {
		return nil, fmt.Errorf("round %q: %w", round.Slug, err)
	} else if ok {
		if k < 0 {
			return nil, fmt.Errorf("round %q: top_k must not be negative: %w", round.Slug, common.ErrConfiguration)
		}
		policy.Total = TopK{K: k}
	}
	if d, ok, err := options.Time("submission_deadline"); err != nil {
		return nil, fmt.Errorf("round %q: %w", round.Slug, err)
	} else if ok {
		e.deadline = d
	}

	hooks := append(append([]Hook{}, policy.Hooks...), SubmissionWindow{})
	e.pipeline = NewPipeline(hooks...)
	if err := e.pipeline.ParseOptions(round, options); err != nil {
		return nil, fmt.Errorf("round %q policy %q: %w", round.Slug, policy.ID, err)
	}
	return e, nil
}

// Deadline is the last moment a submission may be created and still count.
func (e *Engine) Deadline() time.Time { return e.deadline }

type TextType string

const (
	TextStatement TextType = "PS"
	TextSolution  TextType = "ES"
)

// VisibleTexts lists the problem texts that may be shown right now. Statements open
// with the round, example solutions once it has ended.
func (e *Engine) VisibleTexts() []TextType {
	now := e.now()
	visible := []TextType{}
	if !now.Before(e.round.StartDate) {
		visible = append(visible, TextStatement)
	}
	if now.After(e.round.EndDate) {
		visible = append(visible, TextSolution)
	}
	return visible
}

func (e *Engine) AvailableTables() []TableDef {
	return append([]TableDef(nil), e.policy.Tables...)
}

func (e *Engine) TableNames() map[string]string {
	names := make(map[string]string, len(e.policy.Tables))
	for _, t := range e.policy.Tables {
		names[t.ID] = t.Name
	}
	return names
}

func (e *Engine) HasTable(tableID string) bool {
	for _, t := range e.policy.Tables {
		if t.ID == tableID {
			return true
		}
	}
	return false
}

func (e *Engine) DefaultTable(ctx context.Context, viewer model.Viewer) (string, error) {
	id, ok, err := e.pipeline.DefaultTable(ctx, e.round, e.policy.PolicyIDs(), viewer, e.repos)
	if err != nil {
		return "", err
	}
	if ok && e.HasTable(id) {
		return id, nil
	}
	return e.policy.DefaultTable, nil
}

func (e *Engine) checkTable(tableID string) error {
	if !e.HasTable(tableID) {
		return fmt.Errorf("table %q of round %q: %w", tableID, e.round.Slug, common.ErrNotFound)
	}
	return nil
}

func problemHeaders(round *model.Round, problems []model.Problem) []ColumnHeader {
	headers := make([]ColumnHeader, 0, len(problems))
	for _, p := range problems {
		headers = append(headers, ColumnHeader{
			Title:         strconv.Itoa(p.Number),
			Link:          fmt.Sprintf("/rounds/%s/problems/%d", round.ID, p.Number),
			Tooltip:       p.Name,
			ProblemNumber: p.Number,
		})
	}
	return headers
}

// Build computes a table from live data. Predecessor tables are requested from tables.
func (e *Engine) Build(ctx context.Context, tableID string, tables TableSource) (*Table, error) {
	if err := e.checkTable(tableID); err != nil {
		return nil, err
	}

	problems, err := e.repos.Rounds.ListProblems(ctx, e.round.ID)
	if err != nil {
		return nil, err
	}
	enrollments, err := e.repos.Enrollments.ListEnrollments(ctx, e.round.ID)
	if err != nil {
		return nil, err
	}
	userIDs := make([]string, 0, len(enrollments))
	seen := make(map[string]bool, len(enrollments))
	for _, en := range enrollments {
		if seen[en.UserID] {
			err := fmt.Errorf("user %s enrolled twice in round %q: %w", en.UserID, e.round.Slug, common.ErrInvariant)
			log.Printf("ERROR: %v", err)
			return nil, err
		}
		seen[en.UserID] = true
		userIDs = append(userIDs, en.UserID)
	}
	organizers, err := e.repos.Roles.OrganizersAmong(ctx, e.round.ContestID, userIDs)
	if err != nil {
		return nil, err
	}

	bc := &BuildContext{
		Round:       e.round,
		TableID:     tableID,
		PolicyIDs:   e.policy.PolicyIDs(),
		Problems:    e.pipeline.FilterProblems(tableID, problems),
		Enrollments: enrollments,
		Organizers:  organizers,
		Tables:      tables,
		Repos:       e.repos,
	}
	if err := e.pipeline.LoadContext(ctx, bc); err != nil {
		return nil, err
	}

	subs, err := e.repos.Submissions.ListRoundSubmissions(ctx, e.round.ID, e.deadline)
	if err != nil {
		return nil, err
	}
	selected := SelectBatch(subs, e.deadline)

	table := &Table{
		RoundID: e.round.ID,
		TableID: tableID,
		Columns: e.pipeline.Headers(bc, problemHeaders(e.round, bc.Problems)),
		Rows:    make([]Row, 0, len(enrollments)),
	}
	for _, en := range enrollments {
		if e.pipeline.Excluded(bc, en) {
			continue
		}
		cells := make([]Cell, 0, len(bc.Problems))
		for _, p := range bc.Problems {
			var picked []model.Submission
			for _, kind := range p.AcceptedKinds() {
				if s, ok := selected[SelectionKey{EnrollmentID: en.ID, ProblemID: p.ID, Kind: kind}]; ok {
					picked = append(picked, s)
				}
			}
			if len(picked) == 0 {
				cells = append(cells, nil)
				continue
			}
			cells = append(cells, ScoreCell{Score: NewScore(picked), Coefficient: e.pipeline.Coefficient(bc, p, en)})
		}
		cells = e.pipeline.Cells(bc, en, cells)
		table.Rows = append(table.Rows, Row{
			Enrollment: en,
			Ghost:      e.pipeline.Ghost(bc, en),
			Cells:      cells,
			Total:      e.policy.Total.Total(cells),
		})
	}
	table.Rank()
	return table, nil
}

// BuildAll builds every table of the round.
func (e *Engine) BuildAll(ctx context.Context, tables TableSource) (map[string]*Table, error) {
	built := make(map[string]*Table, len(e.policy.Tables))
	for _, t := range e.policy.Tables {
		table, err := tables.ResultTable(ctx, e.round, t.ID)
		if err != nil {
			return nil, err
		}
		built[t.ID] = table
	}
	return built, nil
}

// CanSubmit answers whether the contestant may send another submission of kind to problem.
func (e *Engine) CanSubmit(ctx context.Context, kind model.SubmissionKind, problem model.Problem, enrollment model.Enrollment) (bool, error) {
	if problem.RoundID != e.round.ID || enrollment.RoundID != e.round.ID {
		return false, fmt.Errorf("problem or enrollment outside round %q: %w", e.round.Slug, common.ErrBadRequest)
	}
	if !problem.Accepts(kind) {
		return false, nil
	}
	organizer, err := e.repos.Roles.IsOrganizer(ctx, e.round.ContestID, enrollment.UserID)
	if err != nil {
		return false, err
	}
	return e.pipeline.CanSubmit(ctx, &SubmitContext{
		Round:      e.round,
		PolicyIDs:  e.policy.PolicyIDs(),
		Problem:    problem,
		Enrollment: enrollment,
		Kind:       kind,
		Organizer:  organizer,
		Now:        e.now(),
		Repos:      e.repos,
	})
}

// Chips returns UI annotations per problem number for the user; userID may be empty.
func (e *Engine) Chips(ctx context.Context, userID string) (map[int][]Chip, error) {
	problems, err := e.repos.Rounds.ListProblems(ctx, e.round.ID)
	if err != nil {
		return nil, err
	}
	cc := &ChipContext{
		Round:     e.round,
		PolicyIDs: e.policy.PolicyIDs(),
		Problems:  problems,
		UserID:    userID,
		Repos:     e.repos,
		Chips:     make(map[int][]Chip),
	}
	if err := e.pipeline.Chips(ctx, cc); err != nil {
		return nil, err
	}
	return cc.Chips, nil
}

func (e *Engine) ImportantDates() []ImportantDate {
	dates := e.pipeline.ImportantDates(e.round)
	sort.SliceStable(dates, func(i, j int) bool { return dates[i].Date.Before(dates[j].Date) })
	return dates
}

// Close runs the close-time hooks over freshly built tables and returns the facts to persist.
func (e *Engine) Close(ctx context.Context, tables map[string]*Table) ([]model.PolicyDatum, error) {
	for _, t := range e.policy.Tables {
		if tables[t.ID] == nil {
			return nil, fmt.Errorf("table %q not built before close: %w", t.ID, common.ErrInvariant)
		}
	}
	cc := &CloseContext{
		Round:     e.round,
		PolicyIDs: e.policy.PolicyIDs(),
		Tables:    tables,
		Now:       e.now(),
		Repos:     e.repos,
	}
	if err := e.pipeline.OnClose(ctx, cc); err != nil {
		return nil, err
	}
	return cc.Facts, nil
}
