// Package session stores per-actor tree view state in Redis. What used to
// live as mutable client-side globals (expanded nodes, current parent,
// breadcrumb trail) is an explicit object here, keyed by project and actor.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ViewState is one actor's navigation state within a project tree.
type ViewState struct {
	ExpandedIDs   []int64   `json:"expandedIds"`
	CurrentParent *int64    `json:"currentParent,omitempty"`
	Breadcrumbs   []Crumb   `json:"breadcrumbs"`
	ScrollEntryID int64     `json:"scrollEntryId,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Crumb is one step of the breadcrumb trail down the tree.
type Crumb struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// RedisStore implements view state storage using Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a new Redis-backed view state store.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: "view:",
		ttl:    30 * 24 * time.Hour,
	}, nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "view:",
		ttl:    30 * 24 * time.Hour,
	}
}

// key generates the Redis key for a project/actor pair.
func (s *RedisStore) key(projectID, actor string) string {
	return s.prefix + projectID + ":" + actor
}

// SaveViewState stores an actor's view state, refreshing its TTL.
func (s *RedisStore) SaveViewState(ctx context.Context, projectID, actor string, state ViewState) error {
	state.UpdatedAt = time.Now()
	jsonData, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal view state: %w", err)
	}

	if err := s.client.Set(ctx, s.key(projectID, actor), jsonData, s.ttl).Err(); err != nil {
		return fmt.Errorf("save view state: %w", err)
	}
	return nil
}

// GetViewState retrieves an actor's view state. A missing key returns an
// empty state, not an error: a fresh browser is not a failure.
func (s *RedisStore) GetViewState(ctx context.Context, projectID, actor string) (ViewState, error) {
	jsonData, err := s.client.Get(ctx, s.key(projectID, actor)).Result()
	if err == redis.Nil {
		return ViewState{ExpandedIDs: []int64{}, Breadcrumbs: []Crumb{}}, nil
	}
	if err != nil {
		return ViewState{}, fmt.Errorf("get view state: %w", err)
	}

	var state ViewState
	if err := json.Unmarshal([]byte(jsonData), &state); err != nil {
		return ViewState{}, fmt.Errorf("unmarshal view state: %w", err)
	}
	if state.ExpandedIDs == nil {
		state.ExpandedIDs = []int64{}
	}
	if state.Breadcrumbs == nil {
		state.Breadcrumbs = []Crumb{}
	}
	return state, nil
}

// ClearViewState deletes an actor's view state.
func (s *RedisStore) ClearViewState(ctx context.Context, projectID, actor string) error {
	if err := s.client.Del(ctx, s.key(projectID, actor)).Err(); err != nil {
		return fmt.Errorf("clear view state: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
