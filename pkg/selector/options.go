package selector

import "fmt"

// UsageClass selects the purchasing model matching instance types must
// support.
type UsageClass string

// Supported usage classes.
const (
	UsageClassOnDemand UsageClass = "on-demand"
	UsageClassSpot     UsageClass = "spot"
)

// Strategy folds a per-zone spot price map into a single resolved price.
type Strategy string

// Supported price aggregation strategies.
const (
	StrategyMin     Strategy = "min"
	StrategyMax     Strategy = "max"
	StrategyAverage Strategy = "average"
)

// Defaults applied to unset options.
const (
	DefaultArchitecture       = "x86_64"
	DefaultProductDescription = "Linux/UNIX"
)

// productDescriptionOS is the fixed set of accepted product descriptions,
// each mapped to its canonical operating system label. The VPC variants
// price identically to their base descriptions.
var productDescriptionOS = map[string]string{
	"Linux/UNIX":                            "Linux",
	"Red Hat Enterprise Linux":              "RHEL",
	"SUSE Linux":                            "SUSE",
	"Windows":                               "Windows",
	"Linux/UNIX (Amazon VPC)":               "Linux",
	"Red Hat Enterprise Linux (Amazon VPC)": "RHEL",
	"SUSE Linux (Amazon VPC)":               "SUSE",
	"Windows (Amazon VPC)":                  "Windows",
}

// Options describes one selection request. The JSON and YAML keys match the
// service API wire format.
type Options struct {
	// VCPU is the minimum vCPU count. Required.
	VCPU int `json:"vcpu" yaml:"vcpu"`

	// MemoryGB is the minimum memory in GiB. Fractional values are honored
	// exactly (7.5 means 7680 MiB). Required.
	MemoryGB float64 `json:"memory_gb" yaml:"memory_gb"`

	// UsageClass is "on-demand" or "spot". Defaults to on-demand.
	UsageClass UsageClass `json:"usage_class,omitempty" yaml:"usage_class,omitempty"`

	// Burstable keeps only instance types whose burstable-performance
	// support equals its value. Unset means no constraint.
	Burstable *bool `json:"burstable,omitempty" yaml:"burstable,omitempty"`

	// Architecture the instance type must support. Defaults to x86_64.
	Architecture string `json:"architecture,omitempty" yaml:"architecture,omitempty"`

	// ProductDescriptions narrows spot price history and determines the
	// pricing operating system. Defaults to ["Linux/UNIX"]. All entries
	// must resolve to the same operating system.
	ProductDescriptions []string `json:"product_descriptions,omitempty" yaml:"product_descriptions,omitempty"`

	// AvailabilityZones restricts spot price lookups to the named zones.
	// Optional; spot requests only.
	AvailabilityZones []string `json:"availability_zones,omitempty" yaml:"availability_zones,omitempty"`

	// SpotPriceStrategy folds per-zone spot prices into one price: "min",
	// "max" or "average". Defaults to min.
	SpotPriceStrategy Strategy `json:"final_spot_price_determination_strategy,omitempty" yaml:"final_spot_price_determination_strategy,omitempty"`

	// CurrentGeneration, when set, is pushed down as a catalog filter.
	CurrentGeneration *bool `json:"is_current_generation,omitempty" yaml:"is_current_generation,omitempty"`

	// InstanceStorageSupported, when set, is pushed down as a catalog
	// filter.
	InstanceStorageSupported *bool `json:"is_instance_storage_supported,omitempty" yaml:"is_instance_storage_supported,omitempty"`

	// BestPrice enables price resolution and ascending ranking. Without it
	// the result is the bare list of matching instance types.
	BestPrice bool `json:"is_best_price,omitempty" yaml:"is_best_price,omitempty"`

	// MaxInterruptionFrequency caps the acceptable spot interruption
	// frequency in percent. Spot requests only. An instance type without
	// an advisor record never passes the cap.
	MaxInterruptionFrequency *int `json:"max_interruption_frequency,omitempty" yaml:"max_interruption_frequency,omitempty"`
}

// withDefaults returns a copy with unset fields replaced by their defaults.
func (o Options) withDefaults() Options {
	if o.UsageClass == "" {
		o.UsageClass = UsageClassOnDemand
	}
	if o.Architecture == "" {
		o.Architecture = DefaultArchitecture
	}
	if len(o.ProductDescriptions) == 0 {
		o.ProductDescriptions = []string{DefaultProductDescription}
	}
	if o.SpotPriceStrategy == "" {
		o.SpotPriceStrategy = StrategyMin
	}
	return o
}

// Validate checks a defaulted option set. It runs once at the boundary,
// before any external call.
func (o *Options) Validate() error {
	if o.VCPU <= 0 {
		return ErrVCPURequired
	}
	if o.MemoryGB <= 0 {
		return ErrMemoryRequired
	}
	switch o.UsageClass {
	case UsageClassOnDemand, UsageClassSpot:
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedUsageClass, o.UsageClass)
	}
	if _, err := o.operatingSystem(); err != nil {
		return err
	}
	switch o.SpotPriceStrategy {
	case StrategyMin, StrategyMax, StrategyAverage:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownStrategy, o.SpotPriceStrategy)
	}
	return nil
}

// operatingSystem resolves the product descriptions to their single
// canonical operating system label.
func (o *Options) operatingSystem() (string, error) {
	var operatingSystem string
	for _, description := range o.ProductDescriptions {
		mapped, ok := productDescriptionOS[description]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedProductDescription, description)
		}
		if operatingSystem == "" {
			operatingSystem = mapped
			continue
		}
		if mapped != operatingSystem {
			return "", ErrMixedOperatingSystems
		}
	}
	return operatingSystem, nil
}
