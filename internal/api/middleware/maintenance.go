package middleware

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	"loyalty-hub/internal/api/response"
	"loyalty-hub/internal/model"
)

var maintenanceModeFlag atomic.Bool

// SetMaintenanceMode freezes ledger writes for non-admin callers, e.g. while
// a reconciliation or migration runs.
func SetMaintenanceMode(enabled bool) {
	maintenanceModeFlag.Store(enabled)
}

func IsMaintenanceMode() bool {
	return maintenanceModeFlag.Load()
}

// MaintenanceMode must run after JWTAuth. Reads always pass.
func MaintenanceMode() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !maintenanceModeFlag.Load() || isReadOnlyMethod(c.Request.Method) {
			c.Next()
			return
		}

		if identity, ok := GetIdentity(c); ok && identity.Role == model.UserRoleAdmin {
			c.Next()
			return
		}

		response.Fail(c, 503, response.ErrSystemMaintenance, "system maintenance")
		c.Abort()
	}
}

func isReadOnlyMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
