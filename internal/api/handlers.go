// Package api provides the REST API handlers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kankou-aliaksei/amazon-ec2-best-instance/internal/metrics"
	"github.com/kankou-aliaksei/amazon-ec2-best-instance/pkg/selector"
)

// SelectorService defines the selection operations needed by API handlers.
type SelectorService interface {
	GetBestInstanceTypes(ctx context.Context, opts selector.Options) ([]selector.InstanceOption, error)
	InstanceStorageSupported(ctx context.Context, instanceType string) (bool, error)
	GetMetrics() selector.MetricsSnapshot
}

// Handler handles API requests.
type Handler struct {
	selector SelectorService
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewHandler creates a new API handler. The metrics instance is optional.
func NewHandler(sel SelectorService, m *metrics.Metrics, logger zerolog.Logger) *Handler {
	return &Handler{
		selector: sel,
		metrics:  m,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// API Response types

// Response is a generic API response.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo contains error details.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SelectionResponse is the response for a selection request.
type SelectionResponse struct {
	InstanceTypes []selector.InstanceOption `json:"instance_types"`
	Count         int                       `json:"count"`
}

// InstanceStorageResponse is the response for the instance storage probe.
type InstanceStorageResponse struct {
	InstanceType             string `json:"instance_type"`
	InstanceStorageSupported bool   `json:"instance_storage_supported"`
}

// Health check

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
		},
	})
}

// Selection handlers

// CreateSelection handles POST /api/v1/selections.
func (h *Handler) CreateSelection(w http.ResponseWriter, r *http.Request) {
	var opts selector.Options
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&opts); err != nil {
		h.WriteAPIError(w, ErrInvalidJSON)
		return
	}

	usageClass := string(opts.UsageClass)
	if usageClass == "" {
		usageClass = string(selector.UsageClassOnDemand)
	}

	start := time.Now()
	options, err := h.selector.GetBestInstanceTypes(r.Context(), opts)
	elapsed := time.Since(start)

	if err != nil {
		apiErr := MapDomainError(err)
		if apiErr.Code == ErrCodeInternalError {
			// Non-validation failures on this path come from AWS calls.
			apiErr = NewUpstreamError(err.Error())
		}
		h.recordSelection(usageClass, "error", elapsed)
		h.logger.Error().Err(err).Str("usage_class", usageClass).Msg("Selection failed")
		h.WriteAPIError(w, apiErr)
		return
	}

	h.recordSelection(usageClass, "success", elapsed)
	h.logger.Info().
		Str("usage_class", usageClass).
		Int("count", len(options)).
		Dur("duration", elapsed).
		Msg("Selection served")

	h.writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: SelectionResponse{
			InstanceTypes: options,
			Count:         len(options),
		},
	})
}

// Stats handles GET /api/v1/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    h.selector.GetMetrics(),
	})
}

// InstanceStorage handles GET /api/v1/instance-types/{type}/instance-storage.
func (h *Handler) InstanceStorage(w http.ResponseWriter, r *http.Request) {
	instanceType := chi.URLParam(r, "type")

	supported, err := h.selector.InstanceStorageSupported(r.Context(), instanceType)
	if err != nil {
		apiErr := MapDomainError(err)
		if apiErr.Code == ErrCodeInternalError {
			apiErr = NewUpstreamError(err.Error())
		}
		h.logger.Error().Err(err).Str("instance_type", instanceType).Msg("Instance storage probe failed")
		h.WriteAPIError(w, apiErr)
		return
	}

	h.writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: InstanceStorageResponse{
			InstanceType:             instanceType,
			InstanceStorageSupported: supported,
		},
	})
}

// Helper methods

// recordSelection updates selection metrics after a request. The gauges
// mirror the selector's own counters so scrapes track its internal state.
func (h *Handler) recordSelection(usageClass, status string, elapsed time.Duration) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordSelection(usageClass, status, elapsed.Seconds())

	snap := h.selector.GetMetrics()
	h.metrics.SetDroppedCandidates(snap.DroppedNoPrice, snap.DroppedNoHistory, snap.DroppedNoFrequency)
	h.metrics.SetCacheStats(snap.CacheHits, snap.CacheMisses, snap.CachedRequests)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
