package selector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/rs/zerolog"
)

// resolveOnDemandPrices fetches the full on-demand price table for the
// region and operating system in one paginated pass, then joins candidates
// against it locally. There is no per-candidate fan-out. Candidates without
// a published price are dropped with a warning.
func (s *Selector) resolveOnDemandPrices(ctx context.Context, candidates []ec2types.InstanceTypeInfo, operatingSystem string, logger zerolog.Logger) ([]InstanceOption, error) {
	prices, err := s.onDemandPriceTable(ctx, operatingSystem)
	if err != nil {
		return nil, err
	}

	options := make([]InstanceOption, 0, len(candidates))
	for _, candidate := range candidates {
		instanceType := string(candidate.InstanceType)
		price, ok := prices[instanceType]
		if !ok {
			s.metrics.DroppedNoPrice.Add(1)
			logger.Warn().Str("instance_type", instanceType).Msg("On-demand price not found, instance type dropped")
			continue
		}
		options = append(options, InstanceOption{
			InstanceType: instanceType,
			Price:        price,
		})
	}
	return options, nil
}

// onDemandPriceTable scans every page of the pricing catalog matching the
// region and operating system. Records with a non-positive price are
// discarded as invalid; a duplicated instance type keeps the last record.
func (s *Selector) onDemandPriceTable(ctx context.Context, operatingSystem string) (map[string]float64, error) {
	location, err := regionLocation(s.cfg.Region)
	if err != nil {
		return nil, err
	}

	input := &pricing.GetProductsInput{
		ServiceCode: aws.String("AmazonEC2"),
		Filters: []pricingtypes.Filter{
			termMatch("preInstalledSw", "NA"),
			termMatch("productFamily", "Compute Instance"),
			termMatch("termType", "OnDemand"),
			termMatch("location", location),
			termMatch("licenseModel", "No License required"),
			termMatch("tenancy", "Shared"),
			termMatch("capacitystatus", "Used"),
			termMatch("operatingSystem", operatingSystem),
		},
	}

	prices := make(map[string]float64)
	paginator := pricing.NewGetProductsPaginator(s.pricing, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch on-demand prices: %w", err)
		}
		for _, document := range page.PriceList {
			instanceType, price, err := parsePriceRecord(document)
			if err != nil || price <= 0 {
				continue
			}
			prices[instanceType] = price
		}
	}
	return prices, nil
}

func termMatch(field, value string) pricingtypes.Filter {
	return pricingtypes.Filter{
		Type:  pricingtypes.FilterTypeTermMatch,
		Field: aws.String(field),
		Value: aws.String(value),
	}
}

// parsePriceRecord digs the instance type and the USD rate of the first
// on-demand price dimension out of a price-list document.
func parsePriceRecord(document string) (string, float64, error) {
	var record struct {
		Product struct {
			Attributes struct {
				InstanceType string `json:"instanceType"`
			} `json:"attributes"`
		} `json:"product"`
		Terms struct {
			OnDemand map[string]struct {
				PriceDimensions map[string]struct {
					PricePerUnit struct {
						USD string `json:"USD"`
					} `json:"pricePerUnit"`
				} `json:"priceDimensions"`
			} `json:"OnDemand"`
		} `json:"terms"`
	}

	if err := json.Unmarshal([]byte(document), &record); err != nil {
		return "", 0, fmt.Errorf("failed to decode price record: %w", err)
	}
	if record.Product.Attributes.InstanceType == "" {
		return "", 0, fmt.Errorf("price record has no instance type")
	}

	for _, term := range record.Terms.OnDemand {
		for _, dimension := range term.PriceDimensions {
			price, err := strconv.ParseFloat(dimension.PricePerUnit.USD, 64)
			if err != nil {
				continue
			}
			return record.Product.Attributes.InstanceType, price, nil
		}
	}
	return "", 0, fmt.Errorf("price record has no on-demand price dimension")
}
