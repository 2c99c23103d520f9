package selector

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// fetchInstanceTypes pages through the full instance-type catalog. Only the
// current-generation and instance-storage-supported constraints are pushed
// down as API filters; everything else is matched locally.
func (s *Selector) fetchInstanceTypes(ctx context.Context, opts Options) ([]ec2types.InstanceTypeInfo, error) {
	input := &ec2.DescribeInstanceTypesInput{
		Filters: catalogFilters(opts),
	}

	var instanceTypes []ec2types.InstanceTypeInfo
	paginator := ec2.NewDescribeInstanceTypesPaginator(s.ec2, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe instance types: %w", err)
		}
		instanceTypes = append(instanceTypes, page.InstanceTypes...)
	}
	return instanceTypes, nil
}

func catalogFilters(opts Options) []ec2types.Filter {
	var filters []ec2types.Filter
	if opts.CurrentGeneration != nil {
		filters = append(filters, ec2types.Filter{
			Name:   aws.String("current-generation"),
			Values: []string{strconv.FormatBool(*opts.CurrentGeneration)},
		})
	}
	if opts.InstanceStorageSupported != nil {
		filters = append(filters, ec2types.Filter{
			Name:   aws.String("instance-storage-supported"),
			Values: []string{strconv.FormatBool(*opts.InstanceStorageSupported)},
		})
	}
	return filters
}

// filterInstanceTypes applies the local requirement predicates. Survivors
// keep catalog order; the final ranking's stability depends on it.
func filterInstanceTypes(instanceTypes []ec2types.InstanceTypeInfo, opts Options) []ec2types.InstanceTypeInfo {
	filtered := make([]ec2types.InstanceTypeInfo, 0, len(instanceTypes))
	for _, info := range instanceTypes {
		if matchesRequirements(info, opts) {
			filtered = append(filtered, info)
		}
	}
	return filtered
}

// matchesRequirements is the AND of the criteria present in the options.
// Memory converts GiB to MiB exactly, so a descriptor below the true
// requirement can never pass on a rounding artifact.
func matchesRequirements(info ec2types.InstanceTypeInfo, opts Options) bool {
	if info.VCpuInfo == nil || info.VCpuInfo.DefaultVCpus == nil {
		return false
	}
	if int(*info.VCpuInfo.DefaultVCpus) < opts.VCPU {
		return false
	}

	if info.MemoryInfo == nil || info.MemoryInfo.SizeInMiB == nil {
		return false
	}
	if float64(*info.MemoryInfo.SizeInMiB) < opts.MemoryGB*1024 {
		return false
	}

	if !supportsUsageClass(info.SupportedUsageClasses, opts.UsageClass) {
		return false
	}

	if opts.Burstable != nil {
		if info.BurstablePerformanceSupported == nil || *info.BurstablePerformanceSupported != *opts.Burstable {
			return false
		}
	}

	if info.ProcessorInfo == nil || !supportsArchitecture(info.ProcessorInfo.SupportedArchitectures, opts.Architecture) {
		return false
	}

	return true
}

func supportsUsageClass(classes []ec2types.UsageClassType, want UsageClass) bool {
	for _, class := range classes {
		if string(class) == string(want) {
			return true
		}
	}
	return false
}

func supportsArchitecture(architectures []ec2types.ArchitectureType, want string) bool {
	for _, architecture := range architectures {
		if string(architecture) == want {
			return true
		}
	}
	return false
}
