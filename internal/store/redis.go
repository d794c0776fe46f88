package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/ironpulse/internal/models"
)

// incidentsKey never expires; an incident leaves only when it is resolved.
const incidentsKey = "journal:incidents"

// RedisStore holds the reconciliation journal and backs connection rate
// limiting.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for the rate limiter.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// RecordIncident appends an incident to the journal.
func (s *RedisStore) RecordIncident(ctx context.Context, inc *models.Incident) error {
	// Generate ULID if not set
	if inc.ID == "" {
		inc.ID = ulid.Make().String()
	}
	if inc.Timestamp == 0 {
		inc.Timestamp = time.Now().UnixMilli()
	}

	data, err := json.Marshal(inc)
	if err != nil {
		return err
	}

	return s.client.ZAdd(ctx, incidentsKey, redis.Z{
		Score:  float64(inc.Timestamp),
		Member: string(data),
	}).Err()
}

// ListIncidents returns open incidents, newest first.
func (s *RedisStore) ListIncidents(ctx context.Context, limit int) ([]models.Incident, error) {
	if limit <= 0 {
		limit = 100
	}

	results, err := s.client.ZRevRange(ctx, incidentsKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}

	incidents := make([]models.Incident, 0, len(results))
	for _, data := range results {
		var inc models.Incident
		if err := json.Unmarshal([]byte(data), &inc); err != nil {
			continue
		}
		incidents = append(incidents, inc)
	}

	return incidents, nil
}

// ResolveIncident removes an incident from the journal. It reports whether
// the incident existed.
func (s *RedisStore) ResolveIncident(ctx context.Context, id string) (bool, error) {
	results, err := s.client.ZRange(ctx, incidentsKey, 0, -1).Result()
	if err != nil {
		return false, err
	}

	for _, data := range results {
		var inc models.Incident
		if err := json.Unmarshal([]byte(data), &inc); err != nil {
			continue
		}
		if inc.ID == id {
			n, err := s.client.ZRem(ctx, incidentsKey, data).Result()
			return n > 0, err
		}
	}

	return false, nil
}

// CountIncidents returns the number of open incidents.
func (s *RedisStore) CountIncidents(ctx context.Context) (int64, error) {
	return s.client.ZCard(ctx, incidentsKey).Result()
}
