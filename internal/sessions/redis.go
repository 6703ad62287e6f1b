package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BTreeMap/PromptPanel/internal/models"
)

// DefaultKeyPrefix is the namespace the engine publishes sessions under.
const DefaultKeyPrefix = "promptpanel:session:"

// noExpiryScore is the index score of sessions without a TTL (2100-01-01).
const noExpiryScore = 4102444800

// terminateRetries bounds optimistic-lock retries when the engine writes concurrently.
const terminateRetries = 3

// RedisStore reads sessions stored as JSON strings under prefix+id, indexed by a sorted
// set at prefix+"index" whose scores are expiry deadlines.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

var _ Store = (*RedisStore)(nil)

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTTL sets the expiry applied by Save. Zero keeps sessions until deleted.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// NewRedisStore connects to addr and verifies the connection with PING.
func NewRedisStore(ctx context.Context, addr, password string, db int, opts ...RedisOption) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}
	slog.Debug("RedisStore.NewRedisStore: connected", "addr", addr, "db", db)
	return NewRedisStoreFromClient(client, opts...), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: DefaultKeyPrefix, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "index"
}

func (s *RedisStore) expiryScore() float64 {
	if s.ttl <= 0 {
		return noExpiryScore
	}
	return float64(s.now().Add(s.ttl).Unix())
}

// List prunes expired index entries, then loads the remaining sessions in one MGET.
func (s *RedisStore) List(ctx context.Context, activeOnly bool) ([]models.ConversationSession, error) {
	now := strconv.FormatInt(s.now().Unix(), 10)
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", "("+now).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired sessions: %w", err)
	}

	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list session index: %w", err)
	}
	out := make([]models.ConversationSession, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Key expired before its index entry was pruned.
			continue
		}
		var sess models.ConversationSession
		if err := json.Unmarshal([]byte(raw), &sess); err != nil {
			slog.Warn("RedisStore.List: skipping undecodable session", "id", ids[i], "error", err)
			continue
		}
		if activeOnly && !sess.IsActive() {
			continue
		}
		out = append(out, sess)
	}
	sortByActivity(out)
	return out, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.ConversationSession, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	var sess models.ConversationSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *RedisStore) Save(ctx context.Context, sess models.ConversationSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sess.ID, err)
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(sess.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: s.expiryScore(), Member: sess.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

// Terminate rewrites the session under WATCH so a concurrent engine update is never lost.
// The key keeps its remaining TTL.
func (s *RedisStore) Terminate(ctx context.Context, id string) (*models.ConversationSession, error) {
	key := s.key(id)
	var result models.ConversationSession

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var sess models.ConversationSession
		if err := json.Unmarshal(raw, &sess); err != nil {
			return fmt.Errorf("failed to decode session %s: %w", id, err)
		}
		if !terminate(&sess, s.now()) {
			result = sess
			return nil
		}
		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, data, redis.SetArgs{KeepTTL: true})
			return nil
		})
		if err == nil {
			result = sess
		}
		return err
	}

	for attempt := 0; attempt < terminateRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			slog.Debug("RedisStore.Terminate: concurrent update, retrying", "id", id, "attempt", attempt+1)
			continue
		}
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("failed to terminate session %s: %w", id, err)
		}
		slog.Info("RedisStore.Terminate: session terminated", "id", id)
		return &result, nil
	}
	return nil, fmt.Errorf("failed to terminate session %s: too many concurrent updates", id)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
