package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	logx "sitedigest/pkg/logx"
)

const defaultRedisKey = "sitedigest:queue"

// redisStore keeps the queue in a sorted set scored by seq; "<key>:seq"
// holds the counter. Add assigns the seq and inserts the member in one
// script, so an event is visible as soon as its seq exists and a snapshot
// watermark never covers an event the snapshot did not see. ClearAll is a
// single ZREMRANGEBYSCORE.
type redisStore struct {
	rdb    redis.UniversalClient
	key    string
	seqKey string
	log    logx.Logger
	closed atomic.Bool
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("redis storage requires an address")
	}
	key := strings.TrimSpace(cfg.RedisKey)
	if key == "" {
		key = defaultRedisKey
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	log.Info("queue store opened", logx.String("driver", "redis"), logx.String("addr", addr), logx.String("key", key))
	return newRedisStore(rdb, key, log), nil
}

// addScript runs INCR and ZADD atomically and returns the new seq.
var addScript = redis.NewScript(`
local seq = redis.call('INCR', KEYS[2])
redis.call('ZADD', KEYS[1], seq, ARGV[1])
return seq
`)

func newRedisStore(rdb redis.UniversalClient, key string, log logx.Logger) *redisStore {
	return &redisStore{rdb: rdb, key: key, seqKey: key + ":seq", log: log}
}

func (s *redisStore) Add(ctx context.Context, e Event) (Event, error) {
	if s.closed.Load() {
		return Event{}, ErrClosed
	}
	e, err := prepare(e)
	if err != nil {
		return Event{}, err
	}
	// The member carries no seq; it is read back from the score.
	e.Seq = 0
	b, err := json.Marshal(e)
	if err != nil {
		return Event{}, err
	}
	seq, err := addScript.Run(ctx, s.rdb, []string{s.key, s.seqKey}, string(b)).Uint64()
	if err != nil {
		return Event{}, fmt.Errorf("redis add: %w", err)
	}
	e.Seq = seq
	return e, nil
}

func (s *redisStore) GetAll(ctx context.Context) (Snapshot, error) {
	if s.closed.Load() {
		return Snapshot{}, ErrClosed
	}
	members, err := s.rdb.ZRangeWithScores(ctx, s.key, 0, -1).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("redis zrange: %w", err)
	}
	events := make([]Event, 0, len(members))
	for _, z := range members {
		m, _ := z.Member.(string)
		var e Event
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			s.log.Warn("redis queue: skipping undecodable member", logx.Err(err))
			continue
		}
		e.Seq = uint64(z.Score)
		events = append(events, e)
	}
	return buildSnapshot(events), nil
}

func (s *redisStore) ClearAll(ctx context.Context, snap Snapshot) error {
	if snap.Seq == 0 {
		return nil
	}
	if s.closed.Load() {
		return ErrClosed
	}
	upto := strconv.FormatUint(snap.Seq, 10)
	if err := s.rdb.ZRemRangeByScore(ctx, s.key, "-inf", upto).Err(); err != nil {
		return fmt.Errorf("redis zremrangebyscore: %w", err)
	}
	return nil
}

func (s *redisStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.rdb.Close()
}
