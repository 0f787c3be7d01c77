package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"seminar_standings/internal/common"
	"seminar_standings/internal/platform/cache"
)

// maxCloseAttempts bounds how often a failing close is retried before it is dropped.
const maxCloseAttempts = 3

// RoundFinalizer is the part of the standings service the worker drives.
type RoundFinalizer interface {
	CloseRound(ctx context.Context, roundID string) error
}

type CloseWorker struct {
	rdb          *redis.Client
	standings    RoundFinalizer
	queue        string
	lockPrefix   string
	lockTTL      time.Duration
	retryBackoff time.Duration
}

func NewCloseWorker(rdb *redis.Client, standings RoundFinalizer, queue, lockPrefix string, lockTTL time.Duration) *CloseWorker {
	return &CloseWorker{
		rdb:          rdb,
		standings:    standings,
		queue:        queue,
		lockPrefix:   lockPrefix,
		lockTTL:      lockTTL,
		retryBackoff: 2 * time.Second,
	}
}

func (w *CloseWorker) Start(ctx context.Context) {
	log.Println("Close worker started, listening to queue:", w.queue)
	for {
		select {
		case <-ctx.Done():
			log.Println("Close worker stopping...")
			return
		default:
			res, err := w.rdb.BRPop(ctx, 5*time.Second, w.queue).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					log.Printf("Worker BRPop exiting: %v", err)
					continue
				}
				log.Printf("ERROR: Failed to BRPop from Redis queue '%s': %v", w.queue, err)
				time.Sleep(5 * time.Second)
				continue
			}

			// res is [queueName, value]
			if len(res) < 2 || res[1] == "" {
				log.Println("WARN: BRPop returned empty round ID.")
				continue
			}
			roundID := res[1]
			log.Printf("Worker picked up close of round %s", roundID)
			// Failures are logged and re-queued inside.
			_ = w.processWithLock(ctx, roundID)
		}
	}
}

// processWithLock closes one round while holding its lock, so two workers never
// close the same round at once. A failed close is retried with a growing backoff
// until maxCloseAttempts is reached.
func (w *CloseWorker) processWithLock(ctx context.Context, roundID string) error {
	key := w.lockPrefix + ":" + roundID
	release, ok, err := cache.AcquireLock(ctx, w.rdb, key, w.lockTTL)
	if err != nil {
		log.Printf("ERROR: Failed to attempt lock acquisition for round %s: %v", roundID, err)
		w.requeue(ctx, roundID)
		return fmt.Errorf("close lock for round %s: %v: %w", roundID, err, common.ErrLockFailed)
	}
	if !ok {
		log.Printf("INFO: Round %s is being closed by another worker. Re-queueing.", roundID)
		w.requeue(ctx, roundID)
		return fmt.Errorf("round %s: %w", roundID, common.ErrLockFailed)
	}
	log.Printf("INFO: Acquired close lock for round %s", roundID)

	err = w.standings.CloseRound(ctx, roundID)
	release()
	if err != nil {
		log.Printf("ERROR: Failed to close round %s: %v", roundID, err)
		w.retry(ctx, roundID)
		return err
	}
	w.rdb.Del(ctx, w.attemptsKey(roundID))
	log.Printf("INFO: Round %s closed.", roundID)
	return nil
}

func (w *CloseWorker) attemptsKey(roundID string) string {
	return w.lockPrefix + ":attempts:" + roundID
}

func (w *CloseWorker) retry(ctx context.Context, roundID string) {
	key := w.attemptsKey(roundID)
	n, err := w.rdb.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("ERROR: Failed to count close attempts of round %s: %v", roundID, err)
		return
	}
	w.rdb.Expire(ctx, key, time.Hour)
	if n >= maxCloseAttempts {
		log.Printf("ERROR: Giving up on closing round %s after %d attempts.", roundID, n)
		w.rdb.Del(ctx, key)
		return
	}
	select {
	case <-ctx.Done():
		return
	case <-time.After(w.retryBackoff * time.Duration(n)):
	}
	w.requeue(ctx, roundID)
}

func (w *CloseWorker) requeue(ctx context.Context, roundID string) {
	if err := w.rdb.RPush(ctx, w.queue, roundID).Err(); err != nil {
		log.Printf("ERROR: Failed to re-queue round %s: %v", roundID, err)
	} else {
		log.Printf("INFO: Round %s re-queued.", roundID)
	}
}
