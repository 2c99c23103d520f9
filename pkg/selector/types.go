package selector

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/pricing"

	"github.com/kankou-aliaksei/amazon-ec2-best-instance/pkg/spotadvisor"
)

// EC2API is the subset of the EC2 service the selector calls. The concrete
// *ec2.Client satisfies it; tests substitute fakes.
type EC2API interface {
	DescribeInstanceTypes(ctx context.Context, params *ec2.DescribeInstanceTypesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstanceTypesOutput, error)
	DescribeSpotPriceHistory(ctx context.Context, params *ec2.DescribeSpotPriceHistoryInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotPriceHistoryOutput, error)
}

// PricingAPI is the subset of the Pricing service the selector calls. The
// Pricing API is only served out of us-east-1, so the concrete client must
// be built against that region regardless of the target region.
type PricingAPI interface {
	GetProducts(ctx context.Context, params *pricing.GetProductsInput, optFns ...func(*pricing.Options)) (*pricing.GetProductsOutput, error)
}

// InterruptionAdvisor supplies spot interruption-frequency records, keyed by
// instance type, for one operating system. *spotadvisor.Advisor satisfies it.
type InterruptionAdvisor interface {
	Frequencies(ctx context.Context, operatingSystem string) (map[string]spotadvisor.Range, error)
}

// InstanceOption is one selection result entry. Price, AZPrice and
// InterruptionFrequency are only populated in best-price mode; AZPrice and
// InterruptionFrequency only for spot requests.
type InstanceOption struct {
	InstanceType          string             `json:"instance_type"`
	Price                 float64            `json:"price,omitempty"`
	AZPrice               map[string]float64 `json:"az_price,omitempty"`
	InterruptionFrequency *spotadvisor.Range `json:"interruption_frequency,omitempty"`
}
