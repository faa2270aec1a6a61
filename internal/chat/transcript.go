package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
)

// Transcript keeps the turns of each chat session
type Transcript interface {
	Load(ctx context.Context, sessionID string) ([]*schema.Message, error)
	Append(ctx context.Context, sessionID string, msgs ...*schema.Message) error
}

type history struct {
	Messages []*schema.Message `json:"messages"`
}

// RedisTranscript stores each session's history as one JSON value with a sliding TTL.
// Only the last maxTurns user/assistant turns are kept; zero keeps everything.
type RedisTranscript struct {
	client   *redis.Client
	ttl      time.Duration
	maxTurns int
}

func NewRedisTranscript(client *redis.Client, ttl time.Duration, maxTurns int) *RedisTranscript {
	return &RedisTranscript{client: client, ttl: ttl, maxTurns: maxTurns}
}

func transcriptKey(sessionID string) string {
	return "anchorsync:chat:" + sessionID
}

func (r *RedisTranscript) Load(ctx context.Context, sessionID string) ([]*schema.Message, error) {
	key := transcriptKey(sessionID)
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return []*schema.Message{}, nil
		}
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}

	var h history
	if err := sonic.UnmarshalString(data, &h); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcript: %w", err)
	}

	// Refresh TTL
	r.client.Expire(ctx, key, r.ttl)
	return h.Messages, nil
}

func (r *RedisTranscript) Append(ctx context.Context, sessionID string, msgs ...*schema.Message) error {
	existing, err := r.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	data, err := sonic.Marshal(history{Messages: trimTurns(append(existing, msgs...), r.maxTurns)})
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}
	return r.client.Set(ctx, transcriptKey(sessionID), data, r.ttl).Err()
}

// MemoryTranscript keeps sessions in process, expires them after ttl of
// inactivity and keeps the last maxTurns turns of each
type MemoryTranscript struct {
	mu       sync.Mutex
	ttl      time.Duration
	maxTurns int
	sessions map[string]*memorySession
}

type memorySession struct {
	messages  []*schema.Message
	updatedAt time.Time
}

func NewMemoryTranscript(ttl time.Duration, maxTurns int) *MemoryTranscript {
	return &MemoryTranscript{ttl: ttl, maxTurns: maxTurns, sessions: make(map[string]*memorySession)}
}

func (m *MemoryTranscript) Load(ctx context.Context, sessionID string) ([]*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.live(sessionID)
	if s == nil {
		return []*schema.Message{}, nil
	}
	out := make([]*schema.Message, len(s.messages))
	copy(out, s.messages)
	return out, nil
}

func (m *MemoryTranscript) Append(ctx context.Context, sessionID string, msgs ...*schema.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.live(sessionID)
	if s == nil {
		s = &memorySession{}
		m.sessions[sessionID] = s
	}
	s.messages = trimTurns(append(s.messages, msgs...), m.maxTurns)
	s.updatedAt = time.Now()
	return nil
}

// live returns the session unless it expired; callers hold m.mu
func (m *MemoryTranscript) live(sessionID string) *memorySession {
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	if m.ttl > 0 && time.Since(s.updatedAt) > m.ttl {
		delete(m.sessions, sessionID)
		return nil
	}
	return s
}

// trimTurns keeps the last maxTurns user/assistant pairs
func trimTurns(messages []*schema.Message, maxTurns int) []*schema.Message {
	keep := 2 * maxTurns
	if maxTurns <= 0 || len(messages) <= keep {
		return messages
	}
	return append([]*schema.Message(nil), messages[len(messages)-keep:]...)
}
