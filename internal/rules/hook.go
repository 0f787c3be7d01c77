package rules

import (
	"context"
	"time"

	"seminar_standings/internal/domain/model"
	"seminar_standings/internal/domain/repository"
)

// Repositories is everything the engine reads.
type Repositories struct {
	Rounds      repository.RoundRepository
	Enrollments repository.EnrollmentRepository
	Submissions repository.SubmissionRepository
	PolicyData  repository.PolicyDataRepository
	Roles       repository.ContestRoleRepository
}

// TableSource hands out result tables of other rounds, for carry-over.
type TableSource interface {
	ResultTable(ctx context.Context, round *model.Round, tableID string) (*Table, error)
}

// BuildContext is shared by every hook while one table is built.
type BuildContext struct {
	Round       *model.Round
	TableID     string
	PolicyIDs   []string
	Problems    []model.Problem
	Enrollments []model.Enrollment
	Organizers  map[string]bool
	Tables      TableSource
	Repos       Repositories

	// Filled by hooks during LoadContext.
	Levels   map[string]int
	Previous *Table
}

type SubmitContext struct {
	Round      *model.Round
	PolicyIDs  []string
	Problem    model.Problem
	Enrollment model.Enrollment
	Kind       model.SubmissionKind
	Organizer  bool
	Now        time.Time
	Repos      Repositories
}

type CloseContext struct {
	Round     *model.Round
	PolicyIDs []string
	Tables    map[string]*Table
	Now       time.Time
	Repos     Repositories

	// Facts collects the policy data to persist together with the freeze.
	Facts []model.PolicyDatum
}

type Chip struct {
	Message string `json:"message"`
	Color   string `json:"color"`
	Icon    string `json:"icon,omitempty"`
	Help    string `json:"help,omitempty"`
}

type ChipContext struct {
	Round     *model.Round
	PolicyIDs []string
	Problems  []model.Problem
	UserID    string
	Repos     Repositories
	Chips     map[int][]Chip
}

func (cc *ChipContext) Add(problemNumber int, chip Chip) {
	cc.Chips[problemNumber] = append(cc.Chips[problemNumber], chip)
}

type ImportantDate struct {
	Label string    `json:"label"`
	Date  time.Time `json:"date"`
}

type Verdict int

const (
	Abstain Verdict = iota
	Allow
	Deny
)

// Hook is the common base of every policy building block. A hook opts into
// behavior by also implementing one or more of the interfaces below.
type Hook interface {
	Name() string
}

type OptionParser interface {
	ParseOptions(round *model.Round, opts Options) error
}

type ContextLoader interface {
	LoadContext(ctx context.Context, bc *BuildContext) error
}

type ProblemFilter interface {
	FilterProblems(tableID string, problems []model.Problem) []model.Problem
}

type HeaderAugmenter interface {
	Headers(bc *BuildContext, headers []ColumnHeader) []ColumnHeader
}

type CellAugmenter interface {
	Cells(bc *BuildContext, e model.Enrollment, cells []Cell) []Cell
}

// Coefficienter returns a multiplier in Points; model.OnePoint leaves the score untouched.
type Coefficienter interface {
	Coefficient(bc *BuildContext, p model.Problem, e model.Enrollment) model.Points
}

type RowExcluder interface {
	Excluded(bc *BuildContext, e model.Enrollment) bool
}

type GhostMarker interface {
	Ghost(bc *BuildContext, e model.Enrollment) bool
}

type SubmitGuard interface {
	CanSubmit(ctx context.Context, sc *SubmitContext) (Verdict, error)
}

type ChipProvider interface {
	Chips(ctx context.Context, cc *ChipContext) error
}

type DateProvider interface {
	ImportantDates(round *model.Round) []ImportantDate
}

type DefaultTabler interface {
	DefaultTable(ctx context.Context, round *model.Round, policyIDs []string, viewer model.Viewer, repos Repositories) (string, bool, error)
}

type Closer interface {
	OnClose(ctx context.Context, cc *CloseContext) error
}
