// Package selector picks the cheapest EC2 instance types that satisfy a
// set of resource requirements.
package selector

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/kankou-aliaksei/amazon-ec2-best-instance/pkg/spotadvisor"
)

// Selector answers instance type selection requests against the EC2 and
// Pricing APIs, with an interruption advisor for spot frequency data and
// an in-memory result cache.
type Selector struct {
	cfg     Config
	ec2     EC2API
	pricing PricingAPI
	advisor InterruptionAdvisor
	cache   *requestCache
	logger  zerolog.Logger

	// Deduplicates concurrent identical requests when enabled.
	group singleflight.Group

	// Metrics
	metrics *Metrics
}

// Metrics tracks selector metrics using atomic counters for thread safety.
type Metrics struct {
	Selections         atomic.Int64
	Failures           atomic.Int64
	CacheHits          atomic.Int64
	CacheMisses        atomic.Int64
	DroppedNoPrice     atomic.Int64
	DroppedNoHistory   atomic.Int64
	DroppedNoFrequency atomic.Int64
}

// Config holds selector configuration.
type Config struct {
	// Region is the target region for instance descriptions and prices.
	Region string
	// SpotConcurrency bounds the spot price history fan-out.
	SpotConcurrency int
	// OnDemandConcurrency bounds on-demand price lookups. The price table
	// is fetched in a single paginated pass, so this is a safety valve for
	// callers that fan out selections themselves.
	OnDemandConcurrency int
	// CacheTTL is how long a selection result stays servable.
	CacheTTL time.Duration
	// CacheCapacity is the maximum number of cached selection results.
	CacheCapacity int
	// RequestTimeout caps a single selection end to end. Zero disables it.
	RequestTimeout time.Duration
	// SingleFlight shares one in-flight execution between concurrent
	// identical requests.
	SingleFlight bool
}

// DefaultConfig returns the default selector configuration.
func DefaultConfig() *Config {
	return &Config{
		Region:              "us-east-1",
		SpotConcurrency:     10,
		OnDemandConcurrency: 10,
		CacheTTL:            120 * time.Minute,
		CacheCapacity:       256,
		RequestTimeout:      5 * time.Minute,
	}
}

// New creates a new Selector. A nil cfg uses DefaultConfig. The pricing
// client must be built against us-east-1; the Pricing API is only served
// there regardless of the target region.
func New(ec2Client EC2API, pricingClient PricingAPI, advisor InterruptionAdvisor, cfg *Config, logger zerolog.Logger) *Selector {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	resolved := *cfg
	if resolved.Region == "" {
		resolved.Region = "us-east-1"
	}
	if resolved.SpotConcurrency <= 0 {
		resolved.SpotConcurrency = 10
	}
	if resolved.OnDemandConcurrency <= 0 {
		resolved.OnDemandConcurrency = 10
	}
	if resolved.CacheTTL <= 0 {
		resolved.CacheTTL = 120 * time.Minute
	}
	if resolved.CacheCapacity <= 0 {
		resolved.CacheCapacity = 256
	}

	return &Selector{
		cfg:     resolved,
		ec2:     ec2Client,
		pricing: pricingClient,
		advisor: advisor,
		cache:   newRequestCache(resolved.CacheCapacity, resolved.CacheTTL),
		logger:  logger.With().Str("component", "selector").Logger(),
		metrics: &Metrics{},
	}
}

// GetBestInstanceTypes returns the instance types matching opts. With
// BestPrice set the result is priced and sorted ascending by price;
// otherwise it lists bare matching types in catalog order. Results are
// cached by normalized options.
func (s *Selector) GetBestInstanceTypes(ctx context.Context, opts Options) ([]InstanceOption, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	key, err := cacheKey(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build cache key: %w", err)
	}

	if cached, ok := s.cache.get(key); ok {
		s.metrics.CacheHits.Add(1)
		s.logger.Info().Str("cache_key", key).Msg("Serving selection from cache")
		return cached, nil
	}
	s.metrics.CacheMisses.Add(1)

	if !s.cfg.SingleFlight {
		return s.selectInstanceTypes(ctx, key, opts)
	}

	shared, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.selectInstanceTypes(ctx, key, opts)
	})
	if err != nil {
		return nil, err
	}
	return copyResult(shared.([]InstanceOption)), nil
}

// selectInstanceTypes runs the full pipeline and caches the outcome.
func (s *Selector) selectInstanceTypes(ctx context.Context, key string, opts Options) ([]InstanceOption, error) {
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	logger := s.logger.With().Str("selection_id", uuid.New().String()).Logger()
	logger.Info().
		Str("usage_class", string(opts.UsageClass)).
		Int("vcpu", opts.VCPU).
		Float64("memory_gb", opts.MemoryGB).
		Bool("best_price", opts.BestPrice).
		Msg("Selecting instance types")

	options, err := s.runPipeline(ctx, opts, logger)
	if err != nil {
		s.metrics.Failures.Add(1)
		return nil, err
	}

	s.metrics.Selections.Add(1)
	s.cache.set(key, options)
	logger.Info().Int("count", len(options)).Msg("Selection complete")
	return options, nil
}

func (s *Selector) runPipeline(ctx context.Context, opts Options, logger zerolog.Logger) ([]InstanceOption, error) {
	operatingSystem, err := opts.operatingSystem()
	if err != nil {
		return nil, err
	}

	descriptors, err := s.fetchInstanceTypes(ctx, opts)
	if err != nil {
		return nil, err
	}
	candidates := filterInstanceTypes(descriptors, opts)
	logger.Debug().
		Int("described", len(descriptors)).
		Int("matched", len(candidates)).
		Msg("Filtered instance type catalog")

	var frequencies map[string]spotadvisor.Range
	if opts.UsageClass == UsageClassSpot && opts.MaxInterruptionFrequency != nil {
		candidates, frequencies, err = s.filterByInterruptionFrequency(ctx, candidates, *opts.MaxInterruptionFrequency, operatingSystem, logger)
		if err != nil {
			return nil, err
		}
	}

	if !opts.BestPrice {
		options := make([]InstanceOption, 0, len(candidates))
		for _, candidate := range candidates {
			options = append(options, InstanceOption{InstanceType: string(candidate.InstanceType)})
		}
		return options, nil
	}

	var options []InstanceOption
	if opts.UsageClass == UsageClassSpot {
		options, err = s.resolveSpotPrices(ctx, candidates, opts, logger)
	} else {
		options, err = s.resolveOnDemandPrices(ctx, candidates, operatingSystem, logger)
	}
	if err != nil {
		return nil, err
	}

	for i := range options {
		if record, ok := frequencies[options[i].InstanceType]; ok {
			frequency := record
			options[i].InterruptionFrequency = &frequency
		}
	}

	sort.SliceStable(options, func(i, j int) bool {
		return options[i].Price < options[j].Price
	})
	return options, nil
}

// filterByInterruptionFrequency keeps candidates whose advisor frequency
// bucket starts at or below the cap. A candidate without a frequency
// record is dropped rather than passed through.
func (s *Selector) filterByInterruptionFrequency(ctx context.Context, candidates []ec2types.InstanceTypeInfo, maxFrequency int, operatingSystem string, logger zerolog.Logger) ([]ec2types.InstanceTypeInfo, map[string]spotadvisor.Range, error) {
	frequencies, err := s.advisor.Frequencies(ctx, operatingSystem)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch interruption frequencies: %w", err)
	}

	kept := make([]ec2types.InstanceTypeInfo, 0, len(candidates))
	keptFrequencies := make(map[string]spotadvisor.Range, len(candidates))
	for _, candidate := range candidates {
		instanceType := string(candidate.InstanceType)
		record, ok := frequencies[instanceType]
		if !ok {
			s.metrics.DroppedNoFrequency.Add(1)
			logger.Warn().Str("instance_type", instanceType).Msg("No interruption frequency data, instance type dropped")
			continue
		}
		if record.Min > maxFrequency {
			continue
		}
		kept = append(kept, candidate)
		keptFrequencies[instanceType] = record
	}
	logger.Debug().
		Int("before", len(candidates)).
		Int("after", len(kept)).
		Int("max_interruption_frequency", maxFrequency).
		Msg("Applied interruption frequency filter")
	return kept, keptFrequencies, nil
}

// InstanceStorageSupported reports whether the named instance type has
// local instance storage.
func (s *Selector) InstanceStorageSupported(ctx context.Context, instanceType string) (bool, error) {
	output, err := s.ec2.DescribeInstanceTypes(ctx, &ec2.DescribeInstanceTypesInput{
		InstanceTypes: []ec2types.InstanceType{ec2types.InstanceType(instanceType)},
	})
	if err != nil {
		return false, fmt.Errorf("failed to describe instance type %s: %w", instanceType, err)
	}
	if len(output.InstanceTypes) == 0 {
		return false, fmt.Errorf("%w: %s", ErrInstanceTypeNotFound, instanceType)
	}
	return aws.ToBool(output.InstanceTypes[0].InstanceStorageSupported), nil
}

// MetricsSnapshot is a point-in-time snapshot of selector metrics.
type MetricsSnapshot struct {
	Selections         int64 `json:"selections"`
	Failures           int64 `json:"failures"`
	CacheHits          int64 `json:"cache_hits"`
	CacheMisses        int64 `json:"cache_misses"`
	DroppedNoPrice     int64 `json:"dropped_no_price"`
	DroppedNoHistory   int64 `json:"dropped_no_history"`
	DroppedNoFrequency int64 `json:"dropped_no_frequency"`
	CachedRequests     int   `json:"cached_requests"`
	CacheCapacity      int   `json:"cache_capacity"`
}

// GetMetrics returns a snapshot of the current metrics.
func (s *Selector) GetMetrics() MetricsSnapshot {
	return MetricsSnapshot{
		Selections:         s.metrics.Selections.Load(),
		Failures:           s.metrics.Failures.Load(),
		CacheHits:          s.metrics.CacheHits.Load(),
		CacheMisses:        s.metrics.CacheMisses.Load(),
		DroppedNoPrice:     s.metrics.DroppedNoPrice.Load(),
		DroppedNoHistory:   s.metrics.DroppedNoHistory.Load(),
		DroppedNoFrequency: s.metrics.DroppedNoFrequency.Load(),
		CachedRequests:     s.cache.len(),
		CacheCapacity:      s.cfg.CacheCapacity,
	}
}
