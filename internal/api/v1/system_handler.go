package v1

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"loyalty-hub/internal/api/middleware"
	"loyalty-hub/internal/api/response"
	systemlog "loyalty-hub/pkg/logger"
)

// StorePinger reports whether the ledger store is reachable.
type StorePinger interface {
	Ping(ctx context.Context) error
}

type SystemHandler struct {
	store  StorePinger
	logs   *systemlog.RecentLogs
	logger *zap.Logger
}

type setMaintenanceRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type systemStatus struct {
	Maintenance bool   `json:"maintenance"`
	Store       string `json:"store"`
}

func NewSystemHandler(store StorePinger, logs *systemlog.RecentLogs, logger *zap.Logger) *SystemHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SystemHandler{
		store:  store,
		logs:   logs,
		logger: logger,
	}
}

func RegisterSystemRoutes(
	public, admin *gin.RouterGroup,
	store StorePinger,
	logs *systemlog.RecentLogs,
	logger *zap.Logger,
) {
	handler := NewSystemHandler(store, logs, logger)

	public.GET("/system/status", handler.Status)
	admin.PUT("/system/maintenance", handler.SetMaintenance)
	admin.GET("/system/logs", handler.QueryLogs)
}

// Status
// @Summary Maintenance flag and store reachability
// @Tags system
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/system/status [get]
func (h *SystemHandler) Status(c *gin.Context) {
	status := systemStatus{
		Maintenance: middleware.IsMaintenanceMode(),
		Store:       "ok",
	}

	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			h.logger.Warn("store ping failed", zap.Error(err))
			status.Store = "unavailable"
		}
	}
	response.Success(c, status)
}

func (h *SystemHandler) SetMaintenance(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req setMaintenanceRequest
	if !bindJSON(c, &req) {
		return
	}

	middleware.SetMaintenanceMode(*req.Enabled)
	h.logger.Warn("maintenance mode changed",
		zap.Bool("enabled", *req.Enabled),
		zap.String("actor_id", identity.UserID.String()),
	)
	response.Success(c, gin.H{"maintenance": *req.Enabled})
}

// QueryLogs serves the retained warnings and errors, newest first.
func (h *SystemHandler) QueryLogs(c *gin.Context) {
	if h.logs == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrInternal, "log service unavailable")
		return
	}

	since, err := parseSystemLogTime(c.Query("since"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrValidation, "invalid since")
		return
	}

	page, pageSize := parsePagination(c)
	items, total := h.logs.Query(
		strings.TrimSpace(c.Query("level")),
		strings.TrimSpace(c.Query("keyword")),
		since,
		page,
		pageSize,
	)
	response.Paginated(c, items, page, pageSize, total)
}

func parseSystemLogTime(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, nil
	}

	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse("2006-01-02", value); err == nil {
		return ts.UTC(), nil
	}

	return time.Time{}, errors.New("invalid time")
}
