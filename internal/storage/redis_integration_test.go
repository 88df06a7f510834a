//go:build integration

package storage

import (
	"context"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	logx "sitedigest/pkg/logx"
)

func redisAddr() string {
	if a := os.Getenv("REDIS_ADDR"); a != "" {
		return a
	}
	return "localhost:6379"
}

func newRedisTestClient(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr()})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("redis %s: %v", redisAddr(), err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func testRedisKey(t *testing.T, rdb *redis.Client) string {
	t.Helper()
	key := "sitedigest:test:" + uuid.NewString()
	t.Cleanup(func() { _ = rdb.Del(context.Background(), key, key+":seq").Err() })
	return key
}

// writeGate holds the first queue write of a client until release is closed.
type writeGate struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newWriteGate() *writeGate {
	return &writeGate{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *writeGate) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (g *writeGate) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		switch cmd.Name() {
		case "zadd", "evalsha", "eval":
			g.once.Do(func() {
				close(g.entered)
				<-g.release
			})
		}
		return next(ctx, cmd)
	}
}

func (g *writeGate) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisStoreBasics(t *testing.T) {
	rdb := newRedisTestClient(t)
	s := newRedisStore(rdb, testRedisKey(t, rdb), logx.Nop())
	ctx := context.Background()

	for _, rcpt := range []string{"bob@x.com", "alice@x.com", "bob@x.com"} {
		if _, err := s.Add(ctx, Event{Recipient: rcpt, Type: "comment_notification", Subject: "1"}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	snap, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if snap.Seq != 3 || snap.Len() != 3 || snap.Recipients[0] != "bob@x.com" || snap.Events["bob@x.com"][1].Seq != 3 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if err := s.ClearAll(ctx, snap); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	if snap, _ = s.GetAll(ctx); !snap.Empty() {
		t.Fatalf("queue not empty after clear: %+v", snap)
	}
}

// A write that started before another daemon's snapshot but lands between
// that snapshot and its clear must survive the clear.
func TestRedisStoreSlowWriterSurvivesClear(t *testing.T) {
	slow := newRedisTestClient(t)
	fast := newRedisTestClient(t)
	key := testRedisKey(t, fast)
	gate := newWriteGate()
	slow.AddHook(gate)

	a := newRedisStore(slow, key, logx.Nop())
	b := newRedisStore(fast, key, logx.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := a.Add(ctx, Event{Recipient: "alice@x.com", Type: "comment_notification", Subject: "1"})
		done <- err
	}()
	select {
	case <-gate.entered:
	case <-ctx.Done():
		t.Fatal("slow writer never reached redis")
	}

	if _, err := b.Add(ctx, Event{Recipient: "bob@x.com", Type: "comment_notification", Subject: "2"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	snap, err := b.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	close(gate.release)
	if err := <-done; err != nil {
		t.Fatalf("slow Add: %v", err)
	}
	if err := b.ClearAll(ctx, snap); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}

	after, err := b.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(after.Events["alice@x.com"]) != 1 {
		t.Fatalf("slow writer's event lost: snapshot had %d events (seq %d), after clear %+v", snap.Len(), snap.Seq, after)
	}
	if got := after.Events["alice@x.com"][0].Seq; got <= snap.Seq {
		t.Fatalf("late event seq %d not above cleared watermark %d", got, snap.Seq)
	}
}
