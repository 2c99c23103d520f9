// Package spotadvisor reads the public AWS Spot Advisor dataset, which maps
// instance types to spot interruption-frequency buckets per region and OS.
package spotadvisor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultFeedURL is the publicly served Spot Advisor dataset.
const DefaultFeedURL = "https://spot-bid-advisor.s3.amazonaws.com/spot-advisor-data.json"

const defaultFeedTTL = time.Hour

// Range is an interruption-frequency bucket. Min and Max are percentages
// derived from the bucket label.
type Range struct {
	Label string `json:"label"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
}

// feed mirrors the subset of the dataset we read. The "r" field of an
// instance entry indexes into the ranges list.
type feed struct {
	Ranges []struct {
		Index int    `json:"index"`
		Label string `json:"label"`
		Max   int    `json:"max"`
	} `json:"ranges"`
	SpotAdvisor map[string]map[string]map[string]struct {
		R int `json:"r"`
	} `json:"spot_advisor"`
}

// Advisor fetches interruption-frequency data for a single region. The
// decoded feed is reused for a TTL so repeated lookups do not refetch the
// multi-megabyte dataset.
type Advisor struct {
	region     string
	url        string
	httpClient *http.Client
	ttl        time.Duration

	mu        sync.Mutex
	cached    *feed
	fetchedAt time.Time
}

// Option configures an Advisor.
type Option func(*Advisor)

// WithURL overrides the feed URL.
func WithURL(url string) Option {
	return func(a *Advisor) {
		a.url = url
	}
}

// WithHTTPClient overrides the HTTP client used to fetch the feed.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Advisor) {
		a.httpClient = client
	}
}

// WithTTL overrides how long a fetched feed is reused.
func WithTTL(ttl time.Duration) Option {
	return func(a *Advisor) {
		a.ttl = ttl
	}
}

// New creates an Advisor for the given region.
func New(region string, opts ...Option) *Advisor {
	a := &Advisor{
		region:     region,
		url:        DefaultFeedURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		ttl:        defaultFeedTTL,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Frequencies returns the interruption-frequency range per instance type for
// an operating system. The public feed carries "Linux" and "Windows"; asking
// for an OS or region the feed does not cover is an error, not an empty map.
func (a *Advisor) Frequencies(ctx context.Context, operatingSystem string) (map[string]Range, error) {
	f, err := a.load(ctx)
	if err != nil {
		return nil, err
	}

	regional, ok := f.SpotAdvisor[a.region]
	if !ok {
		return nil, fmt.Errorf("spot advisor: no data for region %s", a.region)
	}
	byType, ok := regional[operatingSystem]
	if !ok {
		return nil, fmt.Errorf("spot advisor: no %s data for region %s", operatingSystem, a.region)
	}

	ranges := bucketRanges(f)
	frequencies := make(map[string]Range, len(byType))
	for instanceType, entry := range byType {
		if entry.R < 0 || entry.R >= len(ranges) {
			continue
		}
		frequencies[instanceType] = ranges[entry.R]
	}
	return frequencies, nil
}

func (a *Advisor) load(ctx context.Context) (*feed, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cached != nil && time.Since(a.fetchedAt) < a.ttl {
		return a.cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch spot advisor feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("spot advisor feed returned status %d", resp.StatusCode)
	}

	var f feed
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode spot advisor feed: %w", err)
	}

	a.cached = &f
	a.fetchedAt = time.Now()
	return &f, nil
}

// bucketRanges derives {min,max} bounds from the published bucket labels:
// "<5%", "5-10%", "10-15%", "15-20%", ">20%". The open-ended top bucket
// starts at 21, so a cap of 20 excludes it and 21 admits it.
func bucketRanges(f *feed) []Range {
	ranges := make([]Range, len(f.Ranges))
	for i, r := range f.Ranges {
		rng := Range{Label: r.Label, Max: r.Max}
		label := strings.TrimSuffix(r.Label, "%")
		switch {
		case strings.HasPrefix(label, "<"):
			rng.Min = 0
			if v, err := strconv.Atoi(label[1:]); err == nil {
				rng.Max = v
			}
		case strings.HasPrefix(label, ">"):
			if v, err := strconv.Atoi(label[1:]); err == nil {
				rng.Min = v + 1
				rng.Max = 100
			}
		default:
			parts := strings.SplitN(label, "-", 2)
			if len(parts) == 2 {
				if v, err := strconv.Atoi(parts[0]); err == nil {
					rng.Min = v
				}
				if v, err := strconv.Atoi(parts[1]); err == nil {
					rng.Max = v
				}
			}
		}

		idx := r.Index
		if idx < 0 || idx >= len(ranges) {
			idx = i
		}
		ranges[idx] = rng
	}
	return ranges
}
