package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/dhruvagrawal1080/PDF-Chat/models"
)

// SessionStore maps session ids to their document collection.
type SessionStore interface {
	Get(ctx context.Context, id string) (*models.Session, bool, error)
	Set(ctx context.Context, session models.Session) error
	Delete(ctx context.Context, id string) error
}

// MemorySessionStore keeps sessions in process memory. Entries expire after
// the configured TTL.
type MemorySessionStore struct {
	cache *cache.Cache
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{cache: cache.New(ttl, 10*time.Minute)}
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (*models.Session, bool, error) {
	if x, found := s.cache.Get(id); found {
		session := x.(models.Session)
		return &session, true, nil
	}
	return nil, false, nil
}

func (s *MemorySessionStore) Set(_ context.Context, session models.Session) error {
	s.cache.Set(session.ID, session, cache.DefaultExpiration)
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.cache.Delete(id)
	return nil
}

const redisSessionPrefix = "pdfchat:session:"

// RedisSessionStore shares sessions between server instances.
type RedisSessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSessionStore(rdb *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, ttl: ttl}
}

// NewRedisClient parses url and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*models.Session, bool, error) {
	data, err := s.rdb.Get(ctx, redisSessionPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get session %s: %w", id, err)
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, false, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &session, true, nil
}

func (s *RedisSessionStore) Set(ctx context.Context, session models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}
	if err := s.rdb.Set(ctx, redisSessionPrefix+session.ID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set session %s: %w", session.ID, err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, redisSessionPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}
