package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"seminar_standings/internal/common"
	"seminar_standings/internal/domain/model"
	"seminar_standings/internal/domain/repository"
	"seminar_standings/internal/rules"
)

// TableCache holds encoded live tables. Lock coordinates builders of one key.
type TableCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Lock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type StandingsConfig struct {
	CacheTTL      time.Duration
	BuildLockTTL  time.Duration
	MaxChainDepth int
	// PollInterval is how often a builder that lost the lock rechecks the cache.
	PollInterval time.Duration
	Now          func() time.Time
}

type StandingsService struct {
	repos  rules.Repositories
	frozen repository.FrozenTableRepository
	cache  TableCache
	db     *sql.DB
	cfg    StandingsConfig
	group  singleflight.Group
	builds atomic.Int64
}

func NewStandingsService(repos rules.Repositories, frozen repository.FrozenTableRepository, cache TableCache, db *sql.DB, cfg StandingsConfig) *StandingsService {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &StandingsService{repos: repos, frozen: frozen, cache: cache, db: db, cfg: cfg}
}

func CacheKey(roundID, tableID string) string {
	return "results_table/" + roundID + "/" + tableID
}

// Builds reports how many tables were computed from live data by this service.
func (s *StandingsService) Builds() int64 {
	return s.builds.Load()
}

func (s *StandingsService) engine(round *model.Round) (*rules.Engine, error) {
	eng, err := rules.NewEngine(round, s.repos, rules.WithClock(s.cfg.Now))
	if err != nil {
		log.Printf("ERROR: Round %s (%s) is misconfigured: %v", round.Slug, round.ID, err)
		return nil, err
	}
	return eng, nil
}

func (s *StandingsService) loadRound(ctx context.Context, roundID string) (*model.Round, *rules.Engine, error) {
	round, err := s.repos.Rounds.FindRoundByID(ctx, roundID)
	if err != nil {
		return nil, nil, err
	}
	eng, err := s.engine(round)
	if err != nil {
		return nil, nil, err
	}
	return round, eng, nil
}

// GetResultTable returns the table as the viewer is allowed to see it.
func (s *StandingsService) GetResultTable(ctx context.Context, roundID, tableID string, viewer model.Viewer) (*rules.Table, error) {
	round, err := s.repos.Rounds.FindRoundByID(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if !viewer.Anonymous() && !viewer.Organizer {
		organizer, err := s.repos.Roles.IsOrganizer(ctx, round.ContestID, viewer.UserID)
		if err != nil {
			return nil, err
		}
		viewer.Organizer = organizer
	}
	walk := rules.NewWalk(s.cfg.MaxChainDepth, s.resultTable)
	table, err := walk.ResultTable(ctx, round, tableID)
	if err != nil {
		return nil, err
	}
	return table.VisibleTo(viewer), nil
}

// resultTable resolves a table: the frozen snapshot for finalized rounds, otherwise
// the cached or freshly built live table.
func (s *StandingsService) resultTable(ctx context.Context, round *model.Round, tableID string, walk *rules.Walk) (*rules.Table, error) {
	eng, err := s.engine(round)
	if err != nil {
		return nil, err
	}
	if !eng.HasTable(tableID) {
		return nil, fmt.Errorf("table %q of round %q: %w", tableID, round.Slug, common.ErrNotFound)
	}
	if round.IsFinalized {
		return s.frozenTable(ctx, round, tableID)
	}

	key := CacheKey(round.ID, tableID)
	if table, ok := s.cached(ctx, key); ok {
		return table, nil
	}
	// Only the outermost build is deduplicated; nested predecessor builds never
	// wait on another request, so two requests walking a chain cannot block each other.
	if walk.Depth() > 1 {
		return s.build(ctx, eng, key, tableID, walk)
	}
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.buildLocked(ctx, eng, key, tableID, walk)
	})
	if err != nil {
		return nil, err
	}
	return v.(*rules.Table), nil
}

func (s *StandingsService) frozenTable(ctx context.Context, round *model.Round, tableID string) (*rules.Table, error) {
	ft, err := s.frozen.GetFrozenTable(ctx, round.ID, tableID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			err = fmt.Errorf("finalized round %q has no frozen table %q: %w", round.Slug, tableID, common.ErrInvariant)
			log.Printf("ERROR: %v", err)
		}
		return nil, err
	}
	table, err := rules.DecodeTable(ft.Payload)
	if err != nil {
		err = fmt.Errorf("frozen table %q of round %q: %v: %w", tableID, round.Slug, err, common.ErrInvariant)
		log.Printf("ERROR: %v", err)
		return nil, err
	}
	return table, nil
}

func (s *StandingsService) cached(ctx context.Context, key string) (*rules.Table, bool) {
	payload, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Printf("WARN: Cache read for %s failed, rebuilding: %v", key, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	table, err := rules.DecodeTable(payload)
	if err != nil {
		log.Printf("WARN: Dropping undecodable cache entry %s: %v", key, err)
		return nil, false
	}
	return table, true
}

// buildLocked builds under the cache's lock. A builder that loses the lock waits for
// the winner's result and builds on its own if none shows up in time.
func (s *StandingsService) buildLocked(ctx context.Context, eng *rules.Engine, key, tableID string, walk *rules.Walk) (*rules.Table, error) {
	release, ok, err := s.cache.Lock(ctx, key, s.cfg.BuildLockTTL)
	if err != nil {
		log.Printf("WARN: Build lock for %s unavailable: %v", key, err)
	}
	defer release()
	if err == nil && !ok {
		if table, found := s.awaitCached(ctx, key); found {
			return table, nil
		}
	}
	return s.build(ctx, eng, key, tableID, walk)
}

func (s *StandingsService) awaitCached(ctx context.Context, key string) (*rules.Table, bool) {
	timeout := time.NewTimer(s.cfg.BuildLockTTL)
	defer timeout.Stop()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-timeout.C:
			return nil, false
		case <-ticker.C:
		}
		if table, ok := s.cached(ctx, key); ok {
			return table, true
		}
	}
}

func (s *StandingsService) build(ctx context.Context, eng *rules.Engine, key, tableID string, walk *rules.Walk) (*rules.Table, error) {
	table, err := eng.Build(ctx, tableID, walk)
	if err != nil {
		return nil, err
	}
	s.builds.Add(1)
	payload, err := rules.EncodeTable(table)
	if err != nil {
		return nil, common.Errorf("failed to encode table %s: %w", key, err)
	}
	if err := s.cache.Set(ctx, key, payload, s.cfg.CacheTTL); err != nil {
		log.Printf("WARN: Failed to cache %s: %v", key, err)
	}
	return table, nil
}

// AvailableTables lists the round's tables in display order together with an id to name index.
func (s *StandingsService) AvailableTables(ctx context.Context, roundID string) ([]rules.TableDef, map[string]string, error) {
	_, eng, err := s.loadRound(ctx, roundID)
	if err != nil {
		return nil, nil, err
	}
	return eng.AvailableTables(), eng.TableNames(), nil
}

func (s *StandingsService) VisibleTexts(ctx context.Context, roundID string) ([]rules.TextType, error) {
	_, eng, err := s.loadRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	return eng.VisibleTexts(), nil
}

func (s *StandingsService) DefaultTable(ctx context.Context, roundID string, viewer model.Viewer) (string, error) {
	_, eng, err := s.loadRound(ctx, roundID)
	if err != nil {
		return "", err
	}
	return eng.DefaultTable(ctx, viewer)
}

func (s *StandingsService) findProblem(ctx context.Context, roundID string, number int) (model.Problem, error) {
	problems, err := s.repos.Rounds.ListProblems(ctx, roundID)
	if err != nil {
		return model.Problem{}, err
	}
	for _, p := range problems {
		if p.Number == number {
			return p, nil
		}
	}
	return model.Problem{}, fmt.Errorf("problem %d in round %s: %w", number, roundID, common.ErrNotFound)
}

// CanSubmit answers for the user's enrollment, or for a fresh one if the user has
// not submitted yet.
func (s *StandingsService) CanSubmit(ctx context.Context, roundID string, number int, kind model.SubmissionKind, userID string) (bool, error) {
	if !kind.Valid() {
		return false, fmt.Errorf("unknown submission kind %q: %w", kind, common.ErrBadRequest)
	}
	round, eng, err := s.loadRound(ctx, roundID)
	if err != nil {
		return false, err
	}
	problem, err := s.findProblem(ctx, round.ID, number)
	if err != nil {
		return false, err
	}
	en, err := s.repos.Enrollments.FindEnrollment(ctx, round.ID, userID)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			return false, err
		}
		en = &model.Enrollment{RoundID: round.ID, UserID: userID}
	}
	return eng.CanSubmit(ctx, kind, problem, *en)
}

// EnsureEnrollment returns the user's enrollment, creating it on first use.
func (s *StandingsService) EnsureEnrollment(ctx context.Context, roundID, userID string, grade model.Grade, schoolID *string) (*model.Enrollment, error) {
	round, err := s.repos.Rounds.FindRoundByID(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round.IsFinalized {
		return nil, fmt.Errorf("round %q is finalized: %w", round.Slug, common.ErrConflict)
	}
	en, err := s.repos.Enrollments.FindEnrollment(ctx, round.ID, userID)
	if err == nil {
		return en, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	en = &model.Enrollment{
		ID:        uuid.NewString(),
		RoundID:   round.ID,
		UserID:    userID,
		Grade:     grade,
		SchoolID:  schoolID,
		CreatedAt: s.cfg.Now().UTC(),
	}
	if err := s.repos.Enrollments.CreateEnrollment(ctx, nil, en); err != nil {
		if errors.Is(err, common.ErrConflict) {
			return s.repos.Enrollments.FindEnrollment(ctx, round.ID, userID)
		}
		return nil, err
	}
	log.Printf("INFO: Enrolled user %s in round %s", userID, round.Slug)
	return en, nil
}

func (s *StandingsService) Chips(ctx context.Context, roundID, userID string) (map[int][]rules.Chip, error) {
	_, eng, err := s.loadRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	return eng.Chips(ctx, userID)
}

func (s *StandingsService) ImportantDates(ctx context.Context, roundID string) ([]rules.ImportantDate, error) {
	_, eng, err := s.loadRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	return eng.ImportantDates(), nil
}

// CloseRound finalizes a round exactly once. It builds every table from live data,
// runs the close-time hooks, then in a single transaction marks the round finalized,
// stores the produced facts and the frozen snapshots. Closing a finalized round is a no-op.
func (s *StandingsService) CloseRound(ctx context.Context, roundID string) error {
	round, eng, err := s.loadRound(ctx, roundID)
	if err != nil {
		return err
	}
	if round.IsFinalized {
		log.Printf("INFO: Round %s already finalized, nothing to close.", round.Slug)
		return nil
	}

	// The closing round is always rebuilt; predecessors resolve as usual.
	fresh := func(ctx context.Context, r *model.Round, tableID string, walk *rules.Walk) (*rules.Table, error) {
		if r.ID != round.ID {
			return s.resultTable(ctx, r, tableID, walk)
		}
		table, err := eng.Build(ctx, tableID, walk)
		if err == nil {
			s.builds.Add(1)
		}
		return table, err
	}
	walk := rules.NewWalk(s.cfg.MaxChainDepth, fresh)
	tables, err := eng.BuildAll(ctx, walk)
	if err != nil {
		return err
	}
	facts, err := eng.Close(ctx, tables)
	if err != nil {
		return err
	}

	now := s.cfg.Now().UTC()
	snapshots := make([]*model.FrozenTable, 0, len(tables))
	var size int
	for _, t := range eng.AvailableTables() {
		payload, err := rules.EncodeTable(tables[t.ID])
		if err != nil {
			return common.Errorf("failed to encode table %s of round %s: %w", t.ID, round.Slug, err)
		}
		size += len(payload)
		snapshots = append(snapshots, &model.FrozenTable{RoundID: round.ID, TableID: t.ID, Payload: payload, CreatedAt: now})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return common.Errorf("failed to begin close transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.repos.Rounds.MarkFinalized(ctx, tx, round.ID); err != nil {
		if errors.Is(err, common.ErrConflict) {
			log.Printf("INFO: Round %s was finalized concurrently, dropping this close.", round.Slug)
			return nil
		}
		return err
	}
	if err := s.repos.PolicyData.InsertPolicyData(ctx, tx, facts); err != nil {
		return err
	}
	for _, ft := range snapshots {
		if err := s.frozen.SaveFrozenTable(ctx, tx, ft); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return common.Errorf("failed to commit close of round %s: %w", round.Slug, err)
	}

	keys := make([]string, 0, len(snapshots))
	for _, ft := range snapshots {
		keys = append(keys, CacheKey(round.ID, ft.TableID))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		log.Printf("WARN: Failed to purge live tables of round %s: %v", round.Slug, err)
	}
	log.Printf("INFO: Closed round %s: %d tables frozen (%s), %d facts recorded.",
		round.Slug, len(snapshots), humanize.Bytes(uint64(size)), len(facts))
	return nil
}

// ListRounds returns the contest's rounds in start order. Rounds that are not public
// are listed only to the contest's organizers.
func (s *StandingsService) ListRounds(ctx context.Context, contestID string, viewer model.Viewer) ([]model.Round, error) {
	rounds, err := s.repos.Rounds.ListRounds(ctx, contestID)
	if err != nil {
		return nil, err
	}
	organizer := viewer.Organizer
	if !organizer && !viewer.Anonymous() {
		if organizer, err = s.repos.Roles.IsOrganizer(ctx, contestID, viewer.UserID); err != nil {
			return nil, err
		}
	}
	visible := make([]model.Round, 0, len(rounds))
	for _, r := range rounds {
		if r.IsPublic || organizer {
			visible = append(visible, r)
		}
	}
	return visible, nil
}

// IsRoundOrganizer reports whether userID organizes the contest of the round.
func (s *StandingsService) IsRoundOrganizer(ctx context.Context, roundID, userID string) (bool, error) {
	round, err := s.repos.Rounds.FindRoundByID(ctx, roundID)
	if err != nil {
		return false, err
	}
	return s.repos.Roles.IsOrganizer(ctx, round.ContestID, userID)
}
