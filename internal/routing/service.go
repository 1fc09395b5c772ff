package routing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/motis-project/prima-dispatch/internal/dispatch"
)

const (
	// batchSize bounds the number of destinations per provider call.
	batchSize = 100

	// unreachableMarker encodes an unreachable destination in the cache.
	unreachableMarker = -1
)

// ServiceConfig holds configuration for the routing service.
type ServiceConfig struct {
	// Provider computes the raw durations (required).
	Provider Provider

	// Logger for service operations.
	Logger zerolog.Logger

	// Redis caches computed durations across requests (optional).
	// When nil, every call goes to the provider.
	Redis *redis.Client

	// CacheTTL is how long cached durations stay valid (default: 1 hour).
	CacheTTL time.Duration

	// MaxDuration caps a single leg in milliseconds (default: 1h). Legs
	// exceeding it are reported as unreachable.
	MaxDuration int64

	// Metrics records provider calls and cache outcomes (optional).
	Metrics *Metrics
}

// Service provides batched one-to-many durations with caching. Destinations
// are chunked to respect provider limits, and nil destinations are skipped
// without consuming provider quota.
type Service struct {
	provider    Provider
	logger      zerolog.Logger
	redis       *redis.Client
	cacheTTL    time.Duration
	maxDuration int64
	metrics     *Metrics
}

// NewService creates a new routing service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = time.Hour
	}
	maxDuration := cfg.MaxDuration
	if maxDuration == 0 {
		maxDuration = int64(time.Hour / time.Millisecond)
	}
	return &Service{
		provider:    cfg.Provider,
		logger:      cfg.Logger,
		redis:       cfg.Redis,
		cacheTTL:    cacheTTL,
		maxDuration: maxDuration,
		metrics:     cfg.Metrics,
	}
}

// ProviderName returns the name of the underlying provider.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}

// BatchOneToMany returns the driving duration in milliseconds from one to
// each destination (or towards one when arriveBy is set). Nil destinations
// yield nil results at the same index. A nil result for a non-nil destination
// means the leg is unreachable or exceeds the configured maximum.
func (s *Service) BatchOneToMany(
	ctx context.Context,
	one dispatch.Coordinates,
	many []*dispatch.Coordinates,
	arriveBy bool,
) ([]*int64, error) {
	if err := ValidateCoordinates(one); err != nil {
		return nil, &Error{
			Provider: s.provider.Name(),
			Code:     "INVALID_ORIGIN",
			Message:  "invalid origin coordinates",
			Err:      ErrInvalidCoordinates,
		}
	}

	definedIndices := make([]int, 0, len(many))
	defined := make([]dispatch.Coordinates, 0, len(many))
	for i, m := range many {
		if m != nil {
			definedIndices = append(definedIndices, i)
			defined = append(defined, *m)
		}
	}

	result := make([]*int64, len(many))
	if len(defined) == 0 {
		return result, nil
	}

	durations, misses := s.fromCache(ctx, one, defined, arriveBy)
	s.metrics.recordCache(ctx, s.provider.Name(), len(defined)-len(misses), len(misses))

	for start := 0; start < len(misses); start += batchSize {
		end := min(start+batchSize, len(misses))
		batch := make([]dispatch.Coordinates, end-start)
		for i, missIdx := range misses[start:end] {
			batch[i] = defined[missIdx]
		}
		started := time.Now()
		fetched, err := s.provider.OneToMany(ctx, one, batch, arriveBy)
		s.metrics.recordRequest(ctx, s.provider.Name(), time.Since(started), err)
		if err != nil {
			return nil, fmt.Errorf("one-to-many routing: %w", err)
		}
		if len(fetched) != len(batch) {
			return nil, fmt.Errorf("one-to-many routing: got %d durations for %d destinations", len(fetched), len(batch))
		}
		for i, missIdx := range misses[start:end] {
			durations[missIdx] = fetched[i]
		}
		s.storeBatch(ctx, one, defined, misses[start:end], durations, arriveBy)
	}

	for i, idx := range definedIndices {
		d := durations[i]
		if d == nil || *d > s.maxDuration {
			continue
		}
		result[idx] = d
	}
	return result, nil
}

// fromCache resolves cached durations for the defined destinations and
// returns the indices still missing. Cache failures degrade to provider
// calls.
func (s *Service) fromCache(ctx context.Context, one dispatch.Coordinates, defined []dispatch.Coordinates, arriveBy bool) ([]*int64, []int) {
	durations := make([]*int64, len(defined))
	misses := make([]int, 0, len(defined))
	if s.redis == nil {
		for i := range defined {
			misses = append(misses, i)
		}
		return durations, misses
	}

	keys := make([]string, len(defined))
	for i, m := range defined {
		keys[i] = cacheKey(one, m, arriveBy)
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		s.logger.Warn().Err(err).Msg("routing cache lookup failed")
		for i := range defined {
			misses = append(misses, i)
		}
		return durations, misses
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			misses = append(misses, i)
			continue
		}
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ms == unreachableMarker {
			continue
		}
		durations[i] = &ms
	}
	return durations, misses
}

// storeBatch writes freshly fetched durations back to the cache.
func (s *Service) storeBatch(ctx context.Context, one dispatch.Coordinates, defined []dispatch.Coordinates, fetched []int, durations []*int64, arriveBy bool) {
	if s.redis == nil {
		return
	}
	pipe := s.redis.Pipeline()
	for _, idx := range fetched {
		value := int64(unreachableMarker)
		if durations[idx] != nil {
			value = *durations[idx]
		}
		pipe.Set(ctx, cacheKey(one, defined[idx], arriveBy), value, s.cacheTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("routing cache write failed")
	}
}

// cacheKey quantizes both endpoints to ~1m precision, matching the
// same-place threshold used elsewhere.
func cacheKey(one, many dispatch.Coordinates, arriveBy bool) string {
	direction := "dep"
	if arriveBy {
		direction = "arr"
	}
	return fmt.Sprintf("routing:%s:%.5f,%.5f:%.5f,%.5f",
		direction, one.Lat, one.Lng, many.Lat, many.Lng)
}
