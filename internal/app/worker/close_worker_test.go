package worker

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"seminar_standings/internal/common"
)

type failingFinalizer struct {
	mu    sync.Mutex
	calls int
}

func (f *failingFinalizer) CloseRound(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return errors.New("database is gone")
}

type recordingFinalizer struct {
	mu     sync.Mutex
	closed []string
	done   chan struct{}
}

func (f *recordingFinalizer) CloseRound(_ context.Context, roundID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, roundID)
	close(f.done)
	return nil
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis at %s unreachable: %v", addr, err)
	}
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestCloseWorkerDrainsQueue(t *testing.T) {
	rdb := testRedis(t)
	queue := "test_round_close_" + time.Now().Format("150405.000000")
	t.Cleanup(func() { rdb.Del(context.Background(), queue) })

	fin := &recordingFinalizer{done: make(chan struct{})}
	w := NewCloseWorker(rdb, fin, queue, queue+"_lock", 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	if err := rdb.LPush(ctx, queue, "r1").Err(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-fin.done:
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not close the round")
	}
	fin.mu.Lock()
	defer fin.mu.Unlock()
	if len(fin.closed) != 1 || fin.closed[0] != "r1" {
		t.Errorf("closed = %v", fin.closed)
	}
}

func TestCloseWorkerRequeuesBusyRound(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	queue := "test_round_close_busy_" + time.Now().Format("150405.000000")
	prefix := queue + "_lock"
	t.Cleanup(func() { rdb.Del(ctx, queue, prefix+":r1") })

	if err := rdb.Set(ctx, prefix+":r1", "someone-else", time.Minute).Err(); err != nil {
		t.Fatal(err)
	}
	fin := &recordingFinalizer{done: make(chan struct{})}
	w := NewCloseWorker(rdb, fin, queue, prefix, 10*time.Second)
	if err := w.processWithLock(ctx, "r1"); !errors.Is(err, common.ErrLockFailed) {
		t.Errorf("err = %v, want lock failure", err)
	}

	if len(fin.closed) != 0 {
		t.Fatalf("round closed while another worker held the lock")
	}
	if n, _ := rdb.LLen(ctx, queue).Result(); n != 1 {
		t.Errorf("queue length = %d, want the round re-queued", n)
	}
}

func TestCloseWorkerRetriesFailedCloseBounded(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	queue := "test_round_close_retry_" + time.Now().Format("150405.000000")
	prefix := queue + "_lock"
	fin := &failingFinalizer{}
	w := NewCloseWorker(rdb, fin, queue, prefix, 10*time.Second)
	w.retryBackoff = time.Millisecond
	t.Cleanup(func() { rdb.Del(ctx, queue, prefix+":r1", w.attemptsKey("r1")) })

	for i := 1; i <= maxCloseAttempts; i++ {
		if err := w.processWithLock(ctx, "r1"); err == nil || errors.Is(err, common.ErrLockFailed) {
			t.Fatalf("attempt %d: err = %v, want the close error", i, err)
		}
		wantQueued := int64(1)
		if i == maxCloseAttempts {
			wantQueued = 0
		}
		if n, _ := rdb.LLen(ctx, queue).Result(); n != wantQueued {
			t.Errorf("attempt %d: queue length = %d, want %d", i, n, wantQueued)
		}
		rdb.Del(ctx, queue)
	}
	if fin.calls != maxCloseAttempts {
		t.Errorf("CloseRound called %d times, want %d", fin.calls, maxCloseAttempts)
	}
	if n, _ := rdb.Exists(ctx, w.attemptsKey("r1")).Result(); n != 0 {
		t.Errorf("attempt counter left behind after giving up")
	}
	if n, _ := rdb.Exists(ctx, prefix+":r1").Result(); n != 0 {
		t.Errorf("lock held after a failed close")
	}
}
