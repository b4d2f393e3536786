package v1

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"loyalty-hub/internal/api/response"
	"loyalty-hub/internal/service"
)

type AuditHandler struct {
	auditService *service.AuditService
}

func NewAuditHandler(auditService *service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func RegisterAuditRoutes(admin *gin.RouterGroup, auditService *service.AuditService) {
	if auditService == nil {
		return
	}

	handler := NewAuditHandler(auditService)
	admin.GET("/audit-logs", handler.List)
}

// List
// @Summary Administrative ledger changes, newest first
// @Tags audit
// @Produce json
// @Security BearerAuth
// @Param actor_id query string false "actor id"
// @Param action query string false "action, e.g. points.adjust"
// @Param resource_type query string false "resource type"
// @Param resource_id query string false "resource id (requires resource_type)"
// @Param from query string false "RFC3339 or YYYY-MM-DD"
// @Param to query string false "RFC3339 or YYYY-MM-DD"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/admin/audit-logs [get]
func (h *AuditHandler) List(c *gin.Context) {
	filter := service.AuditFilter{
		Action:       optionalQuery(c, "action"),
		ResourceType: optionalQuery(c, "resource_type"),
		ResourceID:   optionalQuery(c, "resource_id"),
	}

	if raw := strings.TrimSpace(c.Query("actor_id")); raw != "" {
		actorID, err := uuid.Parse(raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrValidation, "invalid actor_id")
			return
		}
		filter.ActorID = &actorID
	}

	from, err := parseSystemLogTime(c.Query("from"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrValidation, "invalid from")
		return
	}
	if !from.IsZero() {
		filter.From = &from
	}
	to, err := parseSystemLogTime(c.Query("to"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrValidation, "invalid to")
		return
	}
	if !to.IsZero() {
		filter.To = &to
	}

	page, pageSize := parsePagination(c)
	items, total, err := h.auditService.List(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Paginated(c, items, page, pageSize, total)
}
