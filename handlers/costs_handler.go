package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-router/services/costs"
)

// CostsHandler exposes the usage ledger
type CostsHandler struct {
	tracker *costs.Tracker
	logger  *zap.Logger
}

// NewCostsHandler creates a CostsHandler
func NewCostsHandler(tracker *costs.Tracker, logger *zap.Logger) *CostsHandler {
	return &CostsHandler{
		tracker: tracker,
		logger:  logger,
	}
}

// costsResponse is the aggregation payload
type costsResponse struct {
	GroupBy string                     `json:"group_by"`
	Since   string                     `json:"since,omitempty"`
	Buckets map[string]costs.Aggregate `json:"buckets"`
	Total   float64                    `json:"total_spend"`
}

// HandleCosts handles GET /v1/costs?group_by=model|day&since=RFC3339
func (h *CostsHandler) HandleCosts(w http.ResponseWriter, r *http.Request) {
	groupBy := costs.GroupBy(r.URL.Query().Get("group_by"))
	if groupBy == "" {
		groupBy = costs.GroupByModel
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_since",
				"since must be RFC3339")
			return
		}
		since = parsed
	}

	buckets, err := h.tracker.Aggregate(groupBy, since)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_group_by", err.Error())
		return
	}

	resp := costsResponse{
		GroupBy: string(groupBy),
		Buckets: buckets,
		Total:   h.tracker.TotalSpend(),
	}
	if !since.IsZero() {
		resp.Since = since.Format(time.RFC3339)
	}
	respondJSON(w, http.StatusOK, resp)
}
