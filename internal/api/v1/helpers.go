package v1

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"loyalty-hub/internal/api/middleware"
	"loyalty-hub/internal/api/response"
	"loyalty-hub/internal/model"
	"loyalty-hub/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100
)

// handleServiceError maps ledger error kinds to HTTP statuses. Unexpected
// errors are attached to the context so the request log carries the detail
// while the client only sees a generic reason.
func handleServiceError(c *gin.Context, err error) {
	reason := service.Reason(err)
	code := service.Code(err)

	switch {
	case errors.Is(err, service.ErrValidation):
		response.Reject(c, http.StatusBadRequest, response.ErrValidation, code, reason)
	case errors.Is(err, service.ErrNotFound):
		response.Reject(c, http.StatusNotFound, response.ErrNotFound, code, reason)
	case errors.Is(err, service.ErrForbidden):
		response.Reject(c, http.StatusForbidden, response.ErrForbidden, code, reason)
	case errors.Is(err, service.ErrInsufficientBalance):
		response.Reject(c, http.StatusUnprocessableEntity, response.ErrInsufficient, code, reason)
	case errors.Is(err, service.ErrConcurrencyConflict):
		_ = c.Error(err)
		response.Reject(c, http.StatusConflict, response.ErrConcurrency, "concurrency_conflict", reason)
	case errors.Is(err, service.ErrStateConflict):
		response.Reject(c, http.StatusConflict, response.ErrStateConflict, code, reason)
	case errors.Is(err, service.ErrStoreUnavailable):
		_ = c.Error(err)
		response.Fail(c, http.StatusServiceUnavailable, response.ErrStoreUnavailable, reason)
	default:
		_ = c.Error(err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, reason)
	}
}

func currentIdentity(c *gin.Context) (model.Identity, bool) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "unauthorized")
		return model.Identity{}, false
	}
	return identity, true
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param(name)))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrValidation, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func parsePagination(c *gin.Context) (int, int) {
	page := parsePositiveInt(c.Query("page"), defaultPage)
	pageSize := parsePositiveInt(c.Query("page_size"), defaultPageSize)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func parsePositiveInt(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseBoolQuery(c *gin.Context, key string) (*bool, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, true
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrValidation, "invalid "+key)
		return nil, false
	}
	return &value, true
}

func optionalQuery(c *gin.Context, key string) *string {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil
	}
	return &value
}

func clientMetadata(c *gin.Context) (*string, *string) {
	ip := c.ClientIP()
	userAgent := strings.TrimSpace(c.Request.UserAgent())

	var ipPtr, uaPtr *string
	if ip != "" {
		ipPtr = &ip
	}
	if userAgent != "" {
		uaPtr = &userAgent
	}
	return ipPtr, uaPtr
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrValidation, "invalid request body")
		return false
	}
	return true
}
