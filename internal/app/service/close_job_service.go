package service

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"seminar_standings/internal/common"
	"seminar_standings/internal/domain/repository"
)

// RoundCloser starts finalization of a round.
type RoundCloser interface {
	EnqueueClose(ctx context.Context, roundID string) error
}

// CloseJobService hands round closes to the close worker through a Redis list.
type CloseJobService struct {
	rounds repository.RoundRepository
	rdb    *redis.Client
	queue  string
}

func NewCloseJobService(rounds repository.RoundRepository, rdb *redis.Client, queue string) *CloseJobService {
	return &CloseJobService{rounds: rounds, rdb: rdb, queue: queue}
}

// EnqueueClose pushes the round id onto the close queue. Finalized rounds are not queued.
func (s *CloseJobService) EnqueueClose(ctx context.Context, roundID string) error {
	round, err := s.rounds.FindRoundByID(ctx, roundID)
	if err != nil {
		return err
	}
	if round.IsFinalized {
		log.Printf("INFO: Round %s already finalized, close not queued.", round.Slug)
		return nil
	}
	if err := s.rdb.LPush(ctx, s.queue, round.ID).Err(); err != nil {
		return fmt.Errorf("failed to push round %s to close queue: %v: %w", round.ID, err, common.ErrServiceUnavailable)
	}
	log.Printf("Close of round %s enqueued successfully.", round.Slug)
	return nil
}

// InlineCloser closes rounds synchronously, for deployments without Redis.
type InlineCloser struct {
	Standings *StandingsService
}

func (c InlineCloser) EnqueueClose(ctx context.Context, roundID string) error {
	return c.Standings.CloseRound(ctx, roundID)
}
