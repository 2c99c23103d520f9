package selector

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/rs/zerolog"
)

func TestSelector_ResolveOnDemandPrices(t *testing.T) {
	pricingFake := &fakePricing{
		pages: [][]string{{
			priceDocument("m5.large", "0.096"),
			priceDocument("m5.xlarge", "0.192"),
		}},
	}
	s := newTestSelector(&fakeEC2{}, pricingFake, &fakeAdvisor{}, nil)

	candidates := []ec2types.InstanceTypeInfo{
		catalogEntry("m5.xlarge", 4, 16384),
		catalogEntry("m5.large", 2, 8192),
	}

	options, err := s.resolveOnDemandPrices(context.Background(), candidates, "Linux", zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(options) != 2 {
		t.Fatalf("expected 2 options, got %d", len(options))
	}
	// Join preserves candidate order; ranking happens later.
	if options[0].InstanceType != "m5.xlarge" || options[0].Price != 0.192 {
		t.Errorf("unexpected first option: %+v", options[0])
	}
	if options[1].InstanceType != "m5.large" || options[1].Price != 0.096 {
		t.Errorf("unexpected second option: %+v", options[1])
	}
}

func TestSelector_ResolveOnDemandPrices_DropsWithoutPrice(t *testing.T) {
	pricingFake := &fakePricing{
		pages: [][]string{{priceDocument("m5.large", "0.096")}},
	}
	s := newTestSelector(&fakeEC2{}, pricingFake, &fakeAdvisor{}, nil)

	candidates := []ec2types.InstanceTypeInfo{
		catalogEntry("m5.large", 2, 8192),
		catalogEntry("m5.metal", 96, 393216),
	}

	options, err := s.resolveOnDemandPrices(context.Background(), candidates, "Linux", zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(options) != 1 {
		t.Fatalf("expected 1 option, got %d", len(options))
	}
	if options[0].InstanceType != "m5.large" {
		t.Errorf("expected m5.large, got %s", options[0].InstanceType)
	}
	if got := s.metrics.DroppedNoPrice.Load(); got != 1 {
		t.Errorf("expected 1 dropped candidate, got %d", got)
	}
}

func TestSelector_OnDemandPriceTable_Filters(t *testing.T) {
	pricingFake := &fakePricing{pages: [][]string{{}}}
	s := newTestSelector(&fakeEC2{}, pricingFake, &fakeAdvisor{}, nil)

	if _, err := s.onDemandPriceTable(context.Background(), "Windows"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	input := pricingFake.lastInput
	if aws.ToString(input.ServiceCode) != "AmazonEC2" {
		t.Errorf("expected service code AmazonEC2, got %s", aws.ToString(input.ServiceCode))
	}

	want := map[string]string{
		"preInstalledSw":  "NA",
		"productFamily":   "Compute Instance",
		"termType":        "OnDemand",
		"location":        "US East (N. Virginia)",
		"licenseModel":    "No License required",
		"tenancy":         "Shared",
		"capacitystatus":  "Used",
		"operatingSystem": "Windows",
	}
	if len(input.Filters) != len(want) {
		t.Fatalf("expected %d filters, got %d", len(want), len(input.Filters))
	}
	for _, filter := range input.Filters {
		field := aws.ToString(filter.Field)
		if value, ok := want[field]; !ok || aws.ToString(filter.Value) != value {
			t.Errorf("unexpected filter %s=%s", field, aws.ToString(filter.Value))
		}
	}
}

func TestSelector_OnDemandPriceTable_Paginates(t *testing.T) {
	pricingFake := &fakePricing{
		pages: [][]string{
			{priceDocument("m5.large", "0.096")},
			{priceDocument("m5.xlarge", "0.192"), priceDocument("m5.large", "0.100")},
		},
	}
	s := newTestSelector(&fakeEC2{}, pricingFake, &fakeAdvisor{}, nil)

	prices, err := s.onDemandPriceTable(context.Background(), "Linux")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pricingFake.calls != 2 {
		t.Errorf("expected 2 pricing calls, got %d", pricingFake.calls)
	}
	if len(prices) != 2 {
		t.Fatalf("expected 2 priced types, got %d", len(prices))
	}
	// A later duplicate record wins.
	if prices["m5.large"] != 0.100 {
		t.Errorf("expected 0.100 for m5.large, got %v", prices["m5.large"])
	}
	if prices["m5.xlarge"] != 0.192 {
		t.Errorf("expected 0.192 for m5.xlarge, got %v", prices["m5.xlarge"])
	}
}

func TestSelector_OnDemandPriceTable_DiscardsNonPositivePrices(t *testing.T) {
	pricingFake := &fakePricing{
		pages: [][]string{{
			priceDocument("m5.large", "0.0000000000"),
			priceDocument("m5.xlarge", "0.192"),
			"not-json",
		}},
	}
	s := newTestSelector(&fakeEC2{}, pricingFake, &fakeAdvisor{}, nil)

	prices, err := s.onDemandPriceTable(context.Background(), "Linux")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(prices) != 1 {
		t.Fatalf("expected 1 priced type, got %d", len(prices))
	}
	if prices["m5.xlarge"] != 0.192 {
		t.Errorf("expected 0.192 for m5.xlarge, got %v", prices["m5.xlarge"])
	}
}

func TestSelector_OnDemandPriceTable_UnknownRegion(t *testing.T) {
	s := newTestSelector(&fakeEC2{}, &fakePricing{}, &fakeAdvisor{}, &Config{Region: "mars-central-1"})

	_, err := s.onDemandPriceTable(context.Background(), "Linux")
	if !errors.Is(err, ErrUnknownRegion) {
		t.Errorf("expected ErrUnknownRegion, got %v", err)
	}
}

func TestParsePriceRecord(t *testing.T) {
	instanceType, price, err := parsePriceRecord(priceDocument("c5.large", "0.085"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if instanceType != "c5.large" {
		t.Errorf("expected c5.large, got %s", instanceType)
	}
	if price != 0.085 {
		t.Errorf("expected 0.085, got %v", price)
	}
}

func TestParsePriceRecord_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		document string
	}{
		{"not json", "not-json"},
		{"missing instance type", `{"product":{"attributes":{}},"terms":{"OnDemand":{}}}`},
		{"no price dimension", `{"product":{"attributes":{"instanceType":"c5.large"}},"terms":{"OnDemand":{}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := parsePriceRecord(tt.document); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
