package selector

import "errors"

// Common errors. Validation errors are reported before any external call.
var (
	ErrVCPURequired                  = errors.New("a vcpu option is missing")
	ErrMemoryRequired                = errors.New("a memory_gb option is missing")
	ErrUnsupportedUsageClass         = errors.New("unsupported usage class")
	ErrUnsupportedProductDescription = errors.New("unsupported product description")
	ErrMixedOperatingSystems         = errors.New("product descriptions must resolve to a single operating system")
	ErrUnknownStrategy               = errors.New("unknown spot price determination strategy")
	ErrUnknownRegion                 = errors.New("unknown region")
	ErrNoZonePrices                  = errors.New("no availability zone produced a spot price")
	ErrInstanceTypeNotFound          = errors.New("instance type not found")
)
