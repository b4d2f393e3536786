package internalapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"loyalty-hub/internal/api/middleware"
	"loyalty-hub/internal/api/response"
	"loyalty-hub/internal/event"
	"loyalty-hub/internal/service"
)

// TriggerService consumes the storefront's domain events.
type TriggerService interface {
	HandleOrderConfirmed(ctx context.Context, evt event.OrderConfirmed) (*service.OrderOutcome, error)
	HandleUserRegistered(ctx context.Context, evt event.UserRegistered) (*service.RegistrationOutcome, error)
}

type EventsHandler struct {
	triggers TriggerService
	logger   *zap.Logger
}

func NewEventsHandler(triggers TriggerService, logger *zap.Logger) *EventsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventsHandler{triggers: triggers, logger: logger}
}

// RegisterEventRoutes mounts the trigger endpoints on a group already guarded
// by the internal token.
func RegisterEventRoutes(group *gin.RouterGroup, triggers TriggerService, logger *zap.Logger) {
	handler := NewEventsHandler(triggers, logger)
	group.POST("/events/order-confirmed", handler.OrderConfirmed)
	group.POST("/events/user-registered", handler.UserRegistered)
}

func (h *EventsHandler) OrderConfirmed(c *gin.Context) {
	if h.triggers == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrInternal, "service unavailable")
		return
	}

	var evt event.OrderConfirmed
	if err := c.ShouldBindJSON(&evt); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrValidation, "invalid payload")
		return
	}

	outcome, err := h.triggers.HandleOrderConfirmed(c.Request.Context(), evt)
	if err != nil {
		h.fail(c, "order_confirmed", err)
		return
	}
	response.Success(c, outcome)
}

func (h *EventsHandler) UserRegistered(c *gin.Context) {
	if h.triggers == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrInternal, "service unavailable")
		return
	}

	var evt event.UserRegistered
	if err := c.ShouldBindJSON(&evt); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrValidation, "invalid payload")
		return
	}

	outcome, err := h.triggers.HandleUserRegistered(c.Request.Context(), evt)
	if err != nil {
		h.fail(c, "user_registered", err)
		return
	}
	response.Success(c, outcome)
}

// fail tells the publisher whether a redelivery can succeed: 4xx means drop
// the message, 409 and 503 mean retry later.
func (h *EventsHandler) fail(c *gin.Context, trigger string, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		response.Reject(c, http.StatusBadRequest, response.ErrValidation, service.Code(err), service.Reason(err))
	case errors.Is(err, service.ErrConcurrencyConflict):
		response.Fail(c, http.StatusConflict, response.ErrConcurrency, service.Reason(err))
	case errors.Is(err, service.ErrStoreUnavailable):
		response.Fail(c, http.StatusServiceUnavailable, response.ErrStoreUnavailable, service.Reason(err))
	default:
		h.logger.Error("trigger failed",
			zap.String("trigger", trigger),
			zap.String("request_id", middleware.RequestID(c)),
			zap.Error(err),
		)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, service.Reason(err))
	}
}
