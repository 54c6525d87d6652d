package http

import (
	"net/http"
	"strconv"

	"pairline/internal/core/domain"
	"pairline/internal/core/ports"
	"pairline/internal/core/services"
	"pairline/internal/infrastructure/middleware"
	"pairline/pkg/errors"
	"pairline/pkg/validation"

	"github.com/gin-gonic/gin"
)

// MatchStats is the read-only view of the coordinator the handlers need.
type MatchStats interface {
	QueueStats() domain.QueueStats
	ActiveSessionCount() int
	ConnectedCount() int
	UserState(userID domain.UserID) domain.UserState
	CurrentTier(userID domain.UserID) (domain.QualityTier, bool)
}

type StatsHandler struct {
	stats    MatchStats
	metrics  *services.MetricsService
	reports  ports.ReportRepository
	resolver ports.IdentityResolver
}

func NewStatsHandler(
	stats MatchStats,
	metrics *services.MetricsService,
	reports ports.ReportRepository,
	resolver ports.IdentityResolver,
) *StatsHandler {
	return &StatsHandler{
		stats:    stats,
		metrics:  metrics,
		reports:  reports,
		resolver: resolver,
	}
}

func (h *StatsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	authed := rg.Group("", middleware.AuthMiddleware(h.resolver))
	authed.GET("/me", h.Me)

	admin := authed.Group("", middleware.RequireRole(domain.RoleAdmin))
	{
		admin.GET("/stats", h.GetStats)
		admin.GET("/users/:id/reports", h.ListReports)
	}
}

type StatsResponse struct {
	Queue          domain.QueueStats         `json:"queue"`
	ActiveSessions int                       `json:"active_sessions"`
	ConnectedUsers int                       `json:"connected_users"`
	Metrics        *services.MetricsSnapshot `json:"metrics,omitempty"`
}

func (h *StatsHandler) GetStats(c *gin.Context) {
	resp := StatsResponse{
		Queue:          h.stats.QueueStats(),
		ActiveSessions: h.stats.ActiveSessionCount(),
		ConnectedUsers: h.stats.ConnectedCount(),
	}
	if h.metrics != nil {
		snap := h.metrics.Snapshot()
		resp.Metrics = &snap
	}
	c.JSON(http.StatusOK, resp)
}

func (h *StatsHandler) Me(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("authentication required"))
		return
	}

	resp := gin.H{
		"user_id":      identity.UserID,
		"display_name": identity.DisplayName,
		"account_type": identity.Attributes.AccountType,
		"gender":       identity.Attributes.Gender,
		"state":        h.stats.UserState(identity.UserID),
	}
	if tier, ok := h.stats.CurrentTier(identity.UserID); ok {
		resp["quality"] = tier
	}
	c.JSON(http.StatusOK, resp)
}

func (h *StatsHandler) ListReports(c *gin.Context) {
	userID := c.Param("id")
	if err := validation.ValidateUserID(userID); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			c.Error(errors.NewInvalidInputError("limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	ctx := c.Request.Context()
	reports, err := h.reports.ListByReported(ctx, domain.UserID(userID), limit)
	if err != nil {
		c.Error(errors.WrapError(err, errors.ErrCodeServiceUnavailable, "report store unavailable", http.StatusServiceUnavailable))
		return
	}
	total, err := h.reports.CountByReported(ctx, domain.UserID(userID))
	if err != nil {
		c.Error(errors.WrapError(err, errors.ErrCodeServiceUnavailable, "report store unavailable", http.StatusServiceUnavailable))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": userID,
		"total":   total,
		"reports": reports,
	})
}
