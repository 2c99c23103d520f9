package selector

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/rs/zerolog"

	"github.com/kankou-aliaksei/amazon-ec2-best-instance/pkg/spotadvisor"
)

// fakeEC2 implements EC2API with canned data. Instance types are kept as
// ordered pages because the pipeline's ranking stability depends on
// catalog order.
type fakeEC2 struct {
	mu sync.Mutex

	// Catalog pages returned by DescribeInstanceTypes. A single page is
	// the common case; multiple pages exercise pagination.
	pages [][]ec2types.InstanceTypeInfo

	// Spot price history per instance type.
	history map[string][]ec2types.SpotPrice

	// Errors to return (for error testing).
	describeErr   error
	historyErr    error
	historyErrFor map[string]error

	// Call tracking.
	describeCalls int
	historyCalls  int

	// Blocking gate for concurrency tests. When set, DescribeInstanceTypes
	// signals entered once and then waits for release.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeEC2) DescribeInstanceTypes(ctx context.Context, params *ec2.DescribeInstanceTypesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstanceTypesOutput, error) {
	f.mu.Lock()
	f.describeCalls++
	entered, release := f.entered, f.release
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
		<-release
	}

	if f.describeErr != nil {
		return nil, f.describeErr
	}

	// Direct lookup by name, used by the instance storage probe.
	if len(params.InstanceTypes) > 0 {
		var matched []ec2types.InstanceTypeInfo
		for _, want := range params.InstanceTypes {
			for _, page := range f.pages {
				for _, info := range page {
					if info.InstanceType == want {
						matched = append(matched, info)
					}
				}
			}
		}
		return &ec2.DescribeInstanceTypesOutput{InstanceTypes: matched}, nil
	}

	idx := 0
	if params.NextToken != nil {
		idx, _ = strconv.Atoi(*params.NextToken)
	}
	if idx >= len(f.pages) {
		return &ec2.DescribeInstanceTypesOutput{}, nil
	}
	output := &ec2.DescribeInstanceTypesOutput{InstanceTypes: f.pages[idx]}
	if idx+1 < len(f.pages) {
		output.NextToken = aws.String(strconv.Itoa(idx + 1))
	}
	return output, nil
}

func (f *fakeEC2) DescribeSpotPriceHistory(ctx context.Context, params *ec2.DescribeSpotPriceHistoryInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotPriceHistoryOutput, error) {
	f.mu.Lock()
	f.historyCalls++
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	if len(params.InstanceTypes) != 1 {
		return nil, fmt.Errorf("expected exactly one instance type, got %d", len(params.InstanceTypes))
	}
	instanceType := string(params.InstanceTypes[0])
	if err, ok := f.historyErrFor[instanceType]; ok {
		return nil, err
	}
	return &ec2.DescribeSpotPriceHistoryOutput{
		SpotPriceHistory: f.history[instanceType],
	}, nil
}

// fakePricing implements PricingAPI with canned price-list pages.
type fakePricing struct {
	mu sync.Mutex

	pages [][]string
	err   error

	calls     int
	lastInput *pricing.GetProductsInput
}

func (f *fakePricing) GetProducts(ctx context.Context, params *pricing.GetProductsInput, optFns ...func(*pricing.Options)) (*pricing.GetProductsOutput, error) {
	f.mu.Lock()
	f.calls++
	f.lastInput = params
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	idx := 0
	if params.NextToken != nil {
		idx, _ = strconv.Atoi(*params.NextToken)
	}
	if idx >= len(f.pages) {
		return &pricing.GetProductsOutput{}, nil
	}
	output := &pricing.GetProductsOutput{PriceList: f.pages[idx]}
	if idx+1 < len(f.pages) {
		output.NextToken = aws.String(strconv.Itoa(idx + 1))
	}
	return output, nil
}

// fakeAdvisor implements InterruptionAdvisor with a canned frequency map.
type fakeAdvisor struct {
	mu sync.Mutex

	frequencies map[string]spotadvisor.Range
	err         error
	calls       int
}

func (f *fakeAdvisor) Frequencies(ctx context.Context, operatingSystem string) (map[string]spotadvisor.Range, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	return f.frequencies, nil
}

// catalogEntry builds an instance type descriptor that supports both usage
// classes on x86_64. Tests tweak the returned struct for specific cases.
func catalogEntry(name string, vcpus int32, memoryMiB int64) ec2types.InstanceTypeInfo {
	return ec2types.InstanceTypeInfo{
		InstanceType: ec2types.InstanceType(name),
		VCpuInfo:     &ec2types.VCpuInfo{DefaultVCpus: aws.Int32(vcpus)},
		MemoryInfo:   &ec2types.MemoryInfo{SizeInMiB: aws.Int64(memoryMiB)},
		ProcessorInfo: &ec2types.ProcessorInfo{
			SupportedArchitectures: []ec2types.ArchitectureType{ec2types.ArchitectureTypeX8664},
		},
		SupportedUsageClasses: []ec2types.UsageClassType{
			ec2types.UsageClassTypeOnDemand,
			ec2types.UsageClassTypeSpot,
		},
		BurstablePerformanceSupported: aws.Bool(false),
		InstanceStorageSupported:      aws.Bool(false),
	}
}

func spotSample(zone, price string) ec2types.SpotPrice {
	return ec2types.SpotPrice{
		AvailabilityZone: aws.String(zone),
		SpotPrice:        aws.String(price),
	}
}

// priceDocument builds a minimal pricing catalog document for one instance
// type.
func priceDocument(instanceType, price string) string {
	return fmt.Sprintf(`{
		"product": {"attributes": {"instanceType": %q}},
		"terms": {"OnDemand": {"term0": {"priceDimensions": {"dim0": {"pricePerUnit": {"USD": %q}}}}}}
	}`, instanceType, price)
}

func newTestSelector(ec2Client EC2API, pricingClient PricingAPI, advisor InterruptionAdvisor, cfg *Config) *Selector {
	return New(ec2Client, pricingClient, advisor, cfg, zerolog.Nop())
}
