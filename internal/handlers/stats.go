package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/toolrental/rentkeeper/internal/middleware"
	"github.com/toolrental/rentkeeper/internal/models"
	pkghttp "github.com/toolrental/rentkeeper/pkg/http"
)

// UsageStatsProvider aggregates a key's usage over a lookback window.
type UsageStatsProvider interface {
	UsageStats(ctx context.Context, apiKeyID string, days int) (*models.UsageStats, error)
}

// StatsHandler serves per-key usage statistics
type StatsHandler struct {
	stats UsageStatsProvider
}

func NewStatsHandler(stats UsageStatsProvider) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// MyStatsResponse is the caller's usage summary
type MyStatsResponse struct {
	KeyName string             `json:"key_name"`
	Days    int                `json:"days"`
	Usage   *models.UsageStats `json:"usage"`
}

// MyStats GET /api/stats/me?days=N
func (h *StatsHandler) MyStats(w http.ResponseWriter, r *http.Request) {
	key := middleware.APIKeyFromContext(r.Context())
	if key == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 365 {
			pkghttp.WriteBadRequest(w, "days must be an integer between 1 and 365")
			return
		}
		days = parsed
	}

	usage, err := h.stats.UsageStats(r.Context(), key.ID, days)
	if err != nil {
		pkghttp.WriteInternalError(w, "failed to fetch usage stats")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MyStatsResponse{
		KeyName: key.Name,
		Days:    days,
		Usage:   usage,
	})
}
