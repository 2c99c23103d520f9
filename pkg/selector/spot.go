package selector

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/rs/zerolog"
)

// resolveSpotPrices fans out one price-history query per candidate on a
// semaphore-bounded worker pool. The indexed results slice preserves
// candidate order so the final ranking stays stable. The first failure
// cancels the remaining workers; there are no partial results.
func (s *Selector) resolveSpotPrices(ctx context.Context, candidates []ec2types.InstanceTypeInfo, opts Options, logger zerolog.Logger) ([]InstanceOption, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]*InstanceOption, len(candidates))

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	semaphore := make(chan struct{}, s.cfg.SpotConcurrency)

	for i := range candidates {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				return
			}

			quote, err := s.spotQuote(ctx, candidates[idx], opts, logger)
			if err != nil {
				fail(err)
				return
			}
			results[idx] = quote
		}(i)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	options := make([]InstanceOption, 0, len(candidates))
	for _, quote := range results {
		if quote != nil {
			options = append(options, *quote)
		}
	}
	return options, nil
}

// spotQuote resolves one candidate. A candidate with no history at all is
// dropped (nil, nil); history that matches none of the requested zones
// fails the whole request.
func (s *Selector) spotQuote(ctx context.Context, info ec2types.InstanceTypeInfo, opts Options, logger zerolog.Logger) (*InstanceOption, error) {
	instanceType := string(info.InstanceType)

	filters := []ec2types.Filter{{
		Name:   aws.String("product-description"),
		Values: opts.ProductDescriptions,
	}}
	if len(opts.AvailabilityZones) > 0 {
		filters = append(filters, ec2types.Filter{
			Name:   aws.String("availability-zone"),
			Values: opts.AvailabilityZones,
		})
	}

	output, err := s.ec2.DescribeSpotPriceHistory(ctx, &ec2.DescribeSpotPriceHistoryInput{
		InstanceTypes: []ec2types.InstanceType{info.InstanceType},
		Filters:       filters,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe spot price history for %s: %w", instanceType, err)
	}

	if len(output.SpotPriceHistory) == 0 {
		s.metrics.DroppedNoHistory.Add(1)
		logger.Warn().Str("instance_type", instanceType).Msg("No spot price history, instance type dropped")
		return nil, nil
	}

	azPrice := firstZonePrices(output.SpotPriceHistory, opts.AvailabilityZones)
	if len(azPrice) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoZonePrices, instanceType)
	}

	price, err := aggregate(azPrice, opts.SpotPriceStrategy)
	if err != nil {
		return nil, err
	}

	return &InstanceOption{
		InstanceType: instanceType,
		Price:        price,
		AZPrice:      azPrice,
	}, nil
}

// firstZonePrices picks, per zone, the first matching sample in the API's
// native return order. The history is deliberately not re-sorted; the first
// match may not be the freshest sample, which callers accept for
// compatibility. With no requested zones, every zone present in the history
// contributes its first sample.
func firstZonePrices(history []ec2types.SpotPrice, zones []string) map[string]float64 {
	azPrice := make(map[string]float64)

	if len(zones) == 0 {
		seen := make(map[string]bool)
		for _, sample := range history {
			zone := aws.ToString(sample.AvailabilityZone)
			if zone == "" || seen[zone] {
				continue
			}
			seen[zone] = true
			if price, err := strconv.ParseFloat(aws.ToString(sample.SpotPrice), 64); err == nil {
				azPrice[zone] = price
			}
		}
		return azPrice
	}

	for _, zone := range zones {
		for _, sample := range history {
			if aws.ToString(sample.AvailabilityZone) != zone {
				continue
			}
			if price, err := strconv.ParseFloat(aws.ToString(sample.SpotPrice), 64); err == nil {
				azPrice[zone] = price
			}
			break
		}
	}
	return azPrice
}

// aggregate folds the per-zone prices into one price. Min, max and average
// are all independent of map iteration order.
func aggregate(azPrice map[string]float64, strategy Strategy) (float64, error) {
	if len(azPrice) == 0 {
		return 0, ErrNoZonePrices
	}

	switch strategy {
	case StrategyMin:
		var min float64
		first := true
		for _, price := range azPrice {
			if first || price < min {
				min = price
				first = false
			}
		}
		return min, nil
	case StrategyMax:
		var max float64
		first := true
		for _, price := range azPrice {
			if first || price > max {
				max = price
				first = false
			}
		}
		return max, nil
	case StrategyAverage:
		var sum float64
		for _, price := range azPrice {
			sum += price
		}
		return sum / float64(len(azPrice)), nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownStrategy, strategy)
	}
}
