package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"carpool/internal/domain"
)

// setTripScript stores a trip unless the cached copy carries a higher
// version. ARGV: payload, version, ttl in milliseconds.
var setTripScript = redis.NewScript(`
local cached = redis.call("GET", KEYS[1])
if cached then
	local ok, trip = pcall(cjson.decode, cached)
	if ok and type(trip) == "table" and tonumber(trip.version) and tonumber(trip.version) > tonumber(ARGV[2]) then
		return 0
	end
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
return 1
`)

// CacheStore handles entity caching in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// Cache TTL constants
const (
	TripCacheTTL    = 60 * time.Second
	PopularCacheTTL = 30 * time.Second
	WebhookEventTTL = 72 * time.Hour
)

// Key prefixes
const (
	tripCachePrefix    = "cache:trip:"
	popularCacheKey    = "cache:trips:popular" // hash of limit -> ranking
	webhookEventPrefix = "webhook:event:"
)

// GetTrip retrieves a trip from cache. Returns nil on a miss.
func (s *CacheStore) GetTrip(ctx context.Context, tripID string) (*domain.Trip, error) {
	data, err := s.client.Get(ctx, tripCachePrefix+tripID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var trip domain.Trip
	if err := json.Unmarshal(data, &trip); err != nil {
		return nil, err
	}
	return &trip, nil
}

// SetTrip stores a trip in cache. A copy older than the cached one is
// dropped.
func (s *CacheStore) SetTrip(ctx context.Context, trip *domain.Trip) error {
	data, err := json.Marshal(trip)
	if err != nil {
		return err
	}
	return setTripScript.Run(ctx, s.client, []string{tripCachePrefix + trip.ID},
		data, trip.Version, TripCacheTTL.Milliseconds()).Err()
}

// InvalidateTrip removes a trip and every cached ranking.
func (s *CacheStore) InvalidateTrip(ctx context.Context, tripID string) error {
	return s.client.Del(ctx, tripCachePrefix+tripID, popularCacheKey).Err()
}

// GetPopularTrips retrieves a cached popular-trips ranking. Returns nil on a miss.
func (s *CacheStore) GetPopularTrips(ctx context.Context, limit int) ([]*domain.Trip, error) {
	data, err := s.client.HGet(ctx, popularCacheKey, strconv.Itoa(limit)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var trips []*domain.Trip
	if err := json.Unmarshal(data, &trips); err != nil {
		return nil, err
	}
	return trips, nil
}

// SetPopularTrips stores a popular-trips ranking.
func (s *CacheStore) SetPopularTrips(ctx context.Context, limit int, trips []*domain.Trip) error {
	data, err := json.Marshal(trips)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, popularCacheKey, strconv.Itoa(limit), data)
	pipe.ExpireNX(ctx, popularCacheKey, PopularCacheTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// MarkEventProcessed records a webhook event id. It returns false if the
// event was already recorded.
func (s *CacheStore) MarkEventProcessed(ctx context.Context, eventID string) (bool, error) {
	return s.client.SetNX(ctx, webhookEventPrefix+eventID, "1", WebhookEventTTL).Result()
}

// ForgetEvent removes a webhook event id so a redelivery is processed again.
func (s *CacheStore) ForgetEvent(ctx context.Context, eventID string) error {
	return s.client.Del(ctx, webhookEventPrefix+eventID).Err()
}
