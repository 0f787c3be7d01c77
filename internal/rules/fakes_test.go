package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"testing"
	"time"

	"seminar_standings/internal/common"
	"seminar_standings/internal/domain/model"
)

// fakeStore implements every repository the engine reads, in memory.
type fakeStore struct {
	rounds      map[string]*model.Round
	problems    map[string][]model.Problem
	enrollments map[string][]model.Enrollment
	subs        []model.Submission
	data        []model.PolicyDatum
	organizers  map[string]map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rounds:      make(map[string]*model.Round),
		problems:    make(map[string][]model.Problem),
		enrollments: make(map[string][]model.Enrollment),
		organizers:  make(map[string]map[string]bool),
	}
}

func (f *fakeStore) repos() Repositories {
	return Repositories{Rounds: f, Enrollments: f, Submissions: f, PolicyData: f, Roles: f}
}

var (
	t0       = time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	roundEnd = t0.Add(30 * 24 * time.Hour)
)

func (f *fakeStore) addRound(id, slug, policy, options string) *model.Round {
	r := &model.Round{
		ID:            id,
		ContestID:     "contest",
		Slug:          slug,
		Name:          slug,
		StartDate:     t0,
		EndDate:       roundEnd,
		IsPublic:      true,
		PolicyID:      policy,
		PolicyOptions: json.RawMessage(options),
	}
	f.rounds[id] = r
	return r
}

func (f *fakeStore) addProblems(roundID string, numbers ...int) {
	for _, n := range numbers {
		f.problems[roundID] = append(f.problems[roundID], model.Problem{
			ID:          fmt.Sprintf("%s-p%d", roundID, n),
			RoundID:     roundID,
			Number:      n,
			Name:        fmt.Sprintf("Problem %d", n),
			FilePoints:  10,
			JudgePoints: 20,
		})
	}
}

func (f *fakeStore) enroll(roundID, userID string, grade model.Grade) model.Enrollment {
	e := model.Enrollment{
		ID:        roundID + "-" + userID,
		RoundID:   roundID,
		UserID:    userID,
		Username:  userID,
		Grade:     grade,
		CreatedAt: t0.Add(time.Duration(len(f.enrollments[roundID])) * time.Minute),
	}
	f.enrollments[roundID] = append(f.enrollments[roundID], e)
	return e
}

func (f *fakeStore) submit(e model.Enrollment, number int, kind model.SubmissionKind, score *float64, at time.Time) {
	f.subs = append(f.subs, model.Submission{
		ID:           fmt.Sprintf("s%03d", len(f.subs)+1),
		EnrollmentID: e.ID,
		ProblemID:    fmt.Sprintf("%s-p%d", e.RoundID, number),
		Kind:         kind,
		Score:        score,
		CreatedAt:    at,
	})
}

func (f *fakeStore) setLevel(userID, policyID string, level int, at time.Time) {
	data, _ := json.Marshal(level)
	f.data = append(f.data, model.PolicyDatum{
		ID:        fmt.Sprintf("d%03d", len(f.data)+1),
		ContestID: "contest",
		UserID:    userID,
		Key:       LevelKey,
		PolicyID:  policyID,
		Data:      data,
		CreatedAt: at,
	})
}

func (f *fakeStore) makeOrganizer(userID string) {
	if f.organizers["contest"] == nil {
		f.organizers["contest"] = make(map[string]bool)
	}
	f.organizers["contest"][userID] = true
}

func pts(f float64) *float64 { return &f }

func (f *fakeStore) CreateRound(_ context.Context, _ *sql.Tx, r *model.Round) error {
	f.rounds[r.ID] = r
	return nil
}

func (f *fakeStore) FindRoundByID(_ context.Context, id string) (*model.Round, error) {
	r, ok := f.rounds[id]
	if !ok {
		return nil, fmt.Errorf("round %s: %w", id, common.ErrNotFound)
	}
	return r, nil
}

func (f *fakeStore) FindRoundBySlug(_ context.Context, contestID, slug string) (*model.Round, error) {
	for _, r := range f.rounds {
		if r.ContestID == contestID && r.Slug == slug {
			return r, nil
		}
	}
	return nil, fmt.Errorf("round %s: %w", slug, common.ErrNotFound)
}

func (f *fakeStore) ListRounds(_ context.Context, contestID string) ([]model.Round, error) {
	var out []model.Round
	for _, r := range f.rounds {
		if r.ContestID == contestID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkFinalized(_ context.Context, _ *sql.Tx, roundID string) error {
	r, ok := f.rounds[roundID]
	if !ok {
		return common.ErrNotFound
	}
	if r.IsFinalized {
		return common.ErrConflict
	}
	r.IsFinalized = true
	return nil
}

func (f *fakeStore) CreateProblem(_ context.Context, _ *sql.Tx, p *model.Problem) error {
	f.problems[p.RoundID] = append(f.problems[p.RoundID], *p)
	return nil
}

func (f *fakeStore) ListProblems(_ context.Context, roundID string) ([]model.Problem, error) {
	out := append([]model.Problem(nil), f.problems[roundID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (f *fakeStore) CreateEnrollment(_ context.Context, _ *sql.Tx, e *model.Enrollment) error {
	f.enrollments[e.RoundID] = append(f.enrollments[e.RoundID], *e)
	return nil
}

func (f *fakeStore) FindEnrollment(_ context.Context, roundID, userID string) (*model.Enrollment, error) {
	for _, e := range f.enrollments[roundID] {
		if e.UserID == userID {
			e := e
			return &e, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeStore) ListEnrollments(_ context.Context, roundID string) ([]model.Enrollment, error) {
	return append([]model.Enrollment(nil), f.enrollments[roundID]...), nil
}

func (f *fakeStore) CreateSubmission(_ context.Context, _ *sql.Tx, s *model.Submission) error {
	f.subs = append(f.subs, *s)
	return nil
}

func (f *fakeStore) UpdateScore(_ context.Context, id string, score *float64, scoredBy *string) error {
	for i := range f.subs {
		if f.subs[i].ID == id {
			f.subs[i].Score, f.subs[i].ScoredByID = score, scoredBy
			return nil
		}
	}
	return common.ErrNotFound
}

func (f *fakeStore) ListRoundSubmissions(_ context.Context, roundID string, deadline time.Time) ([]model.Submission, error) {
	inRound := make(map[string]bool)
	for _, p := range f.problems[roundID] {
		inRound[p.ID] = true
	}
	var out []model.Submission
	for _, s := range f.subs {
		if inRound[s.ProblemID] && !s.CreatedAt.After(deadline) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) CountSubmissions(_ context.Context, enrollmentID, problemID string, kind model.SubmissionKind) (int, error) {
	n := 0
	for _, s := range f.subs {
		if s.EnrollmentID == enrollmentID && s.ProblemID == problemID && s.Kind == kind {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) LatestPolicyData(_ context.Context, q model.PolicyDataQuery) (map[string]model.PolicyDatum, error) {
	users := make(map[string]bool, len(q.UserIDs))
	for _, u := range q.UserIDs {
		users[u] = true
	}
	policies := make(map[string]bool, len(q.PolicyIDs))
	for _, p := range q.PolicyIDs {
		policies[p] = true
	}
	out := make(map[string]model.PolicyDatum)
	for _, d := range f.data {
		if d.ContestID != q.ContestID || d.Key != q.Key || !users[d.UserID] || !policies[d.PolicyID] || d.CreatedAt.After(q.EffectiveDate) {
			continue
		}
		cur, ok := out[d.UserID]
		if !ok || d.CreatedAt.After(cur.CreatedAt) || (d.CreatedAt.Equal(cur.CreatedAt) && d.ID > cur.ID) {
			out[d.UserID] = d
		}
	}
	return out, nil
}

func (f *fakeStore) InsertPolicyData(_ context.Context, _ *sql.Tx, data []model.PolicyDatum) error {
	f.data = append(f.data, data...)
	return nil
}

func (f *fakeStore) CreateUser(context.Context, *model.User) error { return nil }

func (f *fakeStore) FindUserByID(_ context.Context, id string) (*model.User, error) {
	return &model.User{ID: id, Username: id, Role: model.RoleUser}, nil
}

func (f *fakeStore) GrantContestRole(_ context.Context, role model.ContestRole) error {
	if f.organizers[role.ContestID] == nil {
		f.organizers[role.ContestID] = make(map[string]bool)
	}
	f.organizers[role.ContestID][role.UserID] = true
	return nil
}

func (f *fakeStore) IsOrganizer(_ context.Context, contestID, userID string) (bool, error) {
	return f.organizers[contestID][userID], nil
}

func (f *fakeStore) OrganizersAmong(_ context.Context, contestID string, userIDs []string) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, u := range userIDs {
		if f.organizers[contestID][u] {
			out[u] = true
		}
	}
	return out, nil
}

// builder resolves tables through a walk, building every round from live data.
func (f *fakeStore) builder(t *testing.T) *Walk {
	t.Helper()
	var get TableGetter
	get = func(ctx context.Context, round *model.Round, tableID string, w *Walk) (*Table, error) {
		eng, err := NewEngine(round, f.repos(), WithClock(func() time.Time { return t0.Add(time.Hour) }))
		if err != nil {
			return nil, err
		}
		return eng.Build(ctx, tableID, w)
	}
	return NewWalk(8, get)
}

func mustEngine(t *testing.T, f *fakeStore, round *model.Round, now time.Time) *Engine {
	t.Helper()
	eng, err := NewEngine(round, f.repos(), WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewEngine(%s): %v", round.PolicyID, err)
	}
	return eng
}

func rankOf(row *Row) int {
	if row == nil || row.Rank == nil {
		return 0
	}
	return *row.Rank
}
