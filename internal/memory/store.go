// Package memory holds per-session conversation state: what the previous
// successful search found and the filters that found it. State lives in
// Redis when configured, otherwise in process memory, and is only written
// after a turn completes.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"orgfinder/internal/model"
)

const keyPrefix = "conversation:"

// Store persists conversation state by session id. Loading an unknown
// session returns a fresh empty state, never an error.
type Store interface {
	Load(ctx context.Context, sessionID string) (*model.ConversationState, error)
	Save(ctx context.Context, state *model.ConversationState) error
	Clear(ctx context.Context, sessionID string) error
}

// RedisStore keeps conversation state in Redis under conversation:<id> with
// a sliding TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis using a URL (redis://host:port/db).
func NewRedisStore(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (*model.ConversationState, error) {
	data, err := s.client.Get(ctx, keyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.NewConversationState(sessionID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation state: %w", err)
	}
	var state model.ConversationState
	if err := sonic.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode conversation state: %w", err)
	}
	return &state, nil
}

func (s *RedisStore) Save(ctx context.Context, state *model.ConversationState) error {
	data, err := sonic.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode conversation state: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+state.SessionID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save conversation state: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, keyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("clear conversation state: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// InMemoryStore is the fallback when no Redis URL is configured. Also the
// store used in tests.
type InMemoryStore struct {
	mu     sync.Mutex
	states map[string]*model.ConversationState
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{states: make(map[string]*model.ConversationState)}
}

func (s *InMemoryStore) Load(_ context.Context, sessionID string) (*model.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[sessionID]
	if !ok {
		return model.NewConversationState(sessionID), nil
	}
	// Round-trip through JSON so callers never share our copy.
	data, err := sonic.Marshal(state)
	if err != nil {
		return nil, err
	}
	var clone model.ConversationState
	if err := sonic.Unmarshal(data, &clone); err != nil {
		return nil, err
	}
	return &clone, nil
}

func (s *InMemoryStore) Save(_ context.Context, state *model.ConversationState) error {
	data, err := sonic.Marshal(state)
	if err != nil {
		return err
	}
	var clone model.ConversationState
	if err := sonic.Unmarshal(data, &clone); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.SessionID] = &clone
	return nil
}

func (s *InMemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, sessionID)
	return nil
}
