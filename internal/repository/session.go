package repo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisSessionStorage struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    *zap.SugaredLogger
}

func NewSessionRedisStorage(redis *redis.Client, prefix string, ttl time.Duration, log *zap.SugaredLogger) *RedisSessionStorage {
	c := &RedisSessionStorage{
		client: redis,
		prefix: prefix,
		ttl:    ttl,
		log:    log,
	}
	return c
}

func (r *RedisSessionStorage) key(sessionID string) string {
	return r.prefix + ":session:" + sessionID
}

func (r *RedisSessionStorage) GetUserIdBySession(ctx context.Context, sessionID string) (userID string, ok bool) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	v, err := r.client.Get(ctx, r.key(sessionID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Errorf("session lookup failed: %v", err)
		}
		return "", false
	}
	return v, true
}

func (r *RedisSessionStorage) StoreSession(ctx context.Context, sessionID string, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.client.Set(ctx, r.key(sessionID), userID, r.ttl).Err()
}

func (r *RedisSessionStorage) DeleteSession(ctx context.Context, sessionID string) (ok bool) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := r.client.Del(ctx, r.key(sessionID)).Result()
	if err != nil {
		r.log.Errorf("session delete failed: %v", err)
		return false
	}
	return n > 0
}

type sessionEntry struct {
	userID  string
	expires time.Time
}

// SessionMapStorage keeps sessions in process when no Redis is configured.
type SessionMapStorage struct {
	mu       sync.Mutex
	sessions map[string]sessionEntry
	ttl      time.Duration
	now      func() time.Time
}

func NewSessionMapStorage(ttl time.Duration) *SessionMapStorage {
	return &SessionMapStorage{
		sessions: make(map[string]sessionEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *SessionMapStorage) GetUserIdBySession(_ context.Context, sessionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[sessionID]
	if !ok {
		return "", false
	}
	if s.ttl > 0 && s.now().After(entry.expires) {
		delete(s.sessions, sessionID)
		return "", false
	}
	return entry.userID, true
}

func (s *SessionMapStorage) StoreSession(_ context.Context, sessionID string, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = sessionEntry{userID: userID, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *SessionMapStorage) DeleteSession(_ context.Context, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	return ok
}
