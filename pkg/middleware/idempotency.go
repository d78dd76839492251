package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	apperrors "roombook/pkg/errors"
	httputil "roombook/pkg/http"
	"roombook/pkg/logger"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const IdempotencyHeader = "Idempotency-Key"

const (
	// idempotencyLease bounds how long an in-flight key blocks duplicates.
	idempotencyLease = 1 * time.Minute
	idempotencyPoll  = 50 * time.Millisecond
)

// IdempotencyStore caches replies by key. Reserve claims a key for one
// in-flight request; Set stores the reply and Release drops the claim.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*CachedResponse, bool, error)
	Reserve(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string, response *CachedResponse) error
	Release(ctx context.Context, key string) error
	Stop()
}

type CachedResponse struct {
	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers"`
	Body       []byte      `json:"body"`
	CreatedAt  time.Time   `json:"created_at"`
}

type InMemoryIdempotencyStore struct {
	mu      sync.RWMutex
	store   map[string]*CachedResponse
	pending map[string]time.Time
	ttl     time.Duration
	stopCh  chan struct{}
}

func NewInMemoryIdempotencyStore(ttl time.Duration) *InMemoryIdempotencyStore {
	store := &InMemoryIdempotencyStore{
		store:   make(map[string]*CachedResponse),
		pending: make(map[string]time.Time),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}

	go store.cleanup()

	return store
}

func (s *InMemoryIdempotencyStore) Get(_ context.Context, key string) (*CachedResponse, bool, error) {
	s.mu.RLock()
	response, exists := s.store[key]
	s.mu.RUnlock()

	if !exists {
		return nil, false, nil
	}

	if time.Since(response.CreatedAt) > s.ttl {
		s.mu.Lock()
		delete(s.store, key)
		s.mu.Unlock()
		return nil, false, nil
	}

	return response, true, nil
}

func (s *InMemoryIdempotencyStore) Reserve(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if response, ok := s.store[key]; ok && time.Since(response.CreatedAt) <= s.ttl {
		return false, nil
	}
	if since, ok := s.pending[key]; ok && time.Since(since) <= idempotencyLease {
		return false, nil
	}
	s.pending[key] = time.Now()
	return true, nil
}

func (s *InMemoryIdempotencyStore) Set(_ context.Context, key string, response *CachedResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	response.CreatedAt = time.Now()
	s.store[key] = response
	delete(s.pending, key)
	return nil
}

func (s *InMemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryIdempotencyStore) cleanup() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			for key, response := range s.store {
				if time.Since(response.CreatedAt) > s.ttl {
					delete(s.store, key)
				}
			}
			for key, since := range s.pending {
				if time.Since(since) > idempotencyLease {
					delete(s.pending, key)
				}
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

func (s *InMemoryIdempotencyStore) Stop() {
	close(s.stopCh)
}

// RedisIdempotencyStore keeps replies in Redis so retries may land on any instance.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (*CachedResponse, bool, error) {
	raw, err := s.client.Get(ctx, redisIdempotencyKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get idempotent response: %w", err)
	}

	var cached CachedResponse
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, false, fmt.Errorf("decode idempotent response: %w", err)
	}
	return &cached, true, nil
}

func (s *RedisIdempotencyStore) Reserve(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, redisIdempotencyPendingKey(key), "1", idempotencyLease).Result()
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return ok, nil
}

func (s *RedisIdempotencyStore) Set(ctx context.Context, key string, response *CachedResponse) error {
	raw, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("encode idempotent response: %w", err)
	}
	if err := s.client.Set(ctx, redisIdempotencyKey(key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("set idempotent response: %w", err)
	}
	return s.Release(ctx, key)
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisIdempotencyPendingKey(key)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func (s *RedisIdempotencyStore) Stop() {}

func redisIdempotencyKey(key string) string {
	return "idempotency:" + key
}

func redisIdempotencyPendingKey(key string) string {
	return "idempotency:pending:" + key
}

type responseCapture struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (rc *responseCapture) WriteHeader(statusCode int) {
	rc.statusCode = statusCode
	rc.ResponseWriter.WriteHeader(statusCode)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	rc.body.Write(b)
	return rc.ResponseWriter.Write(b)
}

// Idempotency replays the first successful reply to a POST carrying an
// Idempotency-Key. Keys are scoped to the caller and the route.
func Idempotency(store IdempotencyStore, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(IdempotencyHeader)
			if header == "" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			key := scopedIdempotencyKey(r, header)

			if !claimIdempotencyKey(w, r, store, key, log) {
				return
			}

			capture := &responseCapture{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				body:           &bytes.Buffer{},
			}
			next.ServeHTTP(capture, r)

			storeCtx := context.WithoutCancel(r.Context())
			if !shouldCacheResponse(capture.statusCode) {
				if err := store.Release(storeCtx, key); err != nil {
					log.Error("Failed to release idempotency key", "request_id", requestIDFrom(r), "error", err)
				}
				return
			}
			cached := &CachedResponse{
				StatusCode: capture.statusCode,
				Headers:    w.Header().Clone(),
				Body:       capture.body.Bytes(),
			}
			if err := store.Set(storeCtx, key, cached); err != nil {
				log.Error("Failed to store idempotent response", "request_id", requestIDFrom(r), "error", err)
			}
		})
	}
}

// claimIdempotencyKey reports whether the caller should run the handler. A
// stored reply is replayed; a key held by an in-flight request is waited on
// until that request finishes or the client gives up.
func claimIdempotencyKey(w http.ResponseWriter, r *http.Request, store IdempotencyStore, key string, log *logger.Logger) bool {
	for {
		cached, found, err := store.Get(r.Context(), key)
		if err != nil {
			log.Error("Idempotency lookup failed", "request_id", requestIDFrom(r), "error", err)
			return true
		}
		if found {
			log.Info("Replaying idempotent response",
				"request_id", requestIDFrom(r),
				"path", r.URL.Path,
				"status", cached.StatusCode,
			)
			replayCachedResponse(w, cached)
			return false
		}

		reserved, err := store.Reserve(r.Context(), key)
		if err != nil {
			log.Error("Idempotency reservation failed", "request_id", requestIDFrom(r), "error", err)
			return true
		}
		if reserved {
			return true
		}

		select {
		case <-r.Context().Done():
			log.Warn("Gave up waiting for in-flight idempotent request", "request_id", requestIDFrom(r), "path", r.URL.Path)
			_ = httputil.WriteError(w, apperrors.Conflict("A request with this Idempotency-Key is still in progress"))
			return false
		case <-time.After(idempotencyPoll):
		}
	}
}

func scopedIdempotencyKey(r *http.Request, header string) string {
	owner := "anonymous"
	if user := CurrentUser(r.Context()); user != nil {
		owner = user.Username
	}
	return fmt.Sprintf("%s:%s:%s:%s", owner, r.Method, r.URL.Path, header)
}

func replayCachedResponse(w http.ResponseWriter, cached *CachedResponse) {
	for key, values := range cached.Headers {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
}

func shouldCacheResponse(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
