package aicontext

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

// HistoryStore keeps the recent turns of a chat session between requests.
type HistoryStore interface {
	Recent(ctx context.Context, sessionID string, n int) ([]types.ConversationTurn, error)
	Append(ctx context.Context, sessionID string, turns ...types.ConversationTurn) error
}

var (
	_ HistoryStore = (*RedisHistoryStore)(nil)
	_ HistoryStore = (*MemoryHistoryStore)(nil)
)

// RedisHistoryStore keeps each session as a capped Redis list of JSON turns.
type RedisHistoryStore struct {
	client *redis.Client
	ttl    time.Duration
	maxLen int64
}

func NewRedisHistoryStore(client *redis.Client, ttl time.Duration, maxLen int) *RedisHistoryStore {
	if maxLen <= 0 {
		maxLen = 20
	}
	return &RedisHistoryStore{client: client, ttl: ttl, maxLen: int64(maxLen)}
}

func (s *RedisHistoryStore) sessionKey(sessionID string) string {
	return fmt.Sprintf("ren:history:%s", sessionID)
}

func (s *RedisHistoryStore) Recent(ctx context.Context, sessionID string, n int) ([]types.ConversationTurn, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := s.client.LRange(ctx, s.sessionKey(sessionID), int64(-n), -1).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history from Redis: %w", err)
	}

	turns := make([]types.ConversationTurn, 0, len(raw))
	for _, item := range raw {
		var turn types.ConversationTurn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, fmt.Errorf("failed to parse history turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (s *RedisHistoryStore) Append(ctx context.Context, sessionID string, turns ...types.ConversationTurn) error {
	if len(turns) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(turns))
	for _, turn := range turns {
		b, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("failed to marshal history turn: %w", err)
		}
		values = append(values, b)
	}

	key := s.sessionKey(sessionID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, -s.maxLen, -1)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save history to Redis: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *RedisHistoryStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// MemoryHistoryStore is the in-process store used when Redis is not configured.
type MemoryHistoryStore struct {
	mu       sync.Mutex
	sessions map[string][]types.ConversationTurn
	maxLen   int
}

func NewMemoryHistoryStore(maxLen int) *MemoryHistoryStore {
	if maxLen <= 0 {
		maxLen = 20
	}
	return &MemoryHistoryStore{sessions: make(map[string][]types.ConversationTurn), maxLen: maxLen}
}

func (s *MemoryHistoryStore) Recent(_ context.Context, sessionID string, n int) ([]types.ConversationTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := s.sessions[sessionID]
	if n <= 0 || len(turns) == 0 {
		return nil, nil
	}
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return append([]types.ConversationTurn(nil), turns...), nil
}

func (s *MemoryHistoryStore) Append(_ context.Context, sessionID string, turns ...types.ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := append(s.sessions[sessionID], turns...)
	if len(all) > s.maxLen {
		all = append([]types.ConversationTurn(nil), all[len(all)-s.maxLen:]...)
	}
	s.sessions[sessionID] = all
	return nil
}
