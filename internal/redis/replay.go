package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"carpool/internal/middleware"
)

const (
	// ReplayTTL is how long an idempotent reply is kept.
	ReplayTTL = 24 * time.Hour
	// inFlightTTL bounds a claim left behind by a crashed request.
	inFlightTTL = 30 * time.Second

	inFlightSuffix = ":inflight"
)

// ReplayStore keeps idempotent HTTP replies in Redis.
type ReplayStore struct {
	client *redis.Client
}

// NewReplayStore creates a new ReplayStore.
func NewReplayStore(client *redis.Client) *ReplayStore {
	return &ReplayStore{client: client}
}

// Begin claims key with a short-lived in-flight marker.
func (s *ReplayStore) Begin(ctx context.Context, key string) (bool, error) {
	return s.client.SetNX(ctx, key+inFlightSuffix, "1", inFlightTTL).Result()
}

// Lookup returns the stored reply for key, or nil on a miss.
func (s *ReplayStore) Lookup(ctx context.Context, key string) (*middleware.StoredResponse, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var resp middleware.StoredResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Finish stores resp under key, when given, and releases the claim.
func (s *ReplayStore) Finish(ctx context.Context, key string, resp *middleware.StoredResponse) error {
	pipe := s.client.TxPipeline()
	if resp != nil {
		data, err := json.Marshal(resp)
		if err != nil {
			return err
		}
		pipe.Set(ctx, key, data, ReplayTTL)
	}
	pipe.Del(ctx, key+inFlightSuffix)
	_, err := pipe.Exec(ctx)
	return err
}
