package v1

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loyalty-hub/internal/api/response"
	inputsanitize "loyalty-hub/internal/api/sanitize"
	"loyalty-hub/internal/model"
	"loyalty-hub/internal/service"
)

type CashbackHandler struct {
	cashbackService *service.CashbackService
}

type requestPayoutRequest struct {
	Amount      decimal.Decimal    `json:"amount"`
	Method      model.PayoutMethod `json:"method" binding:"required"`
	BankDetails map[string]string  `json:"bank_details"`
}

type rejectPayoutRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func NewCashbackHandler(cashbackService *service.CashbackService) *CashbackHandler {
	return &CashbackHandler{cashbackService: cashbackService}
}

func RegisterCashbackRoutes(user, admin *gin.RouterGroup, cashbackService *service.CashbackService) {
	if cashbackService == nil {
		return
	}

	handler := NewCashbackHandler(cashbackService)

	user.GET("/cashback", handler.Balance)
	user.POST("/cashback/payouts", handler.RequestPayout)
	user.GET("/cashback/payouts", handler.ListOwnPayouts)
	user.GET("/cashback/payouts/:id", handler.GetPayout)

	admin.GET("/payouts", handler.AdminListPayouts)
	admin.POST("/payouts/:id/approve", handler.Approve)
	admin.POST("/payouts/:id/reject", handler.Reject)
	admin.POST("/payouts/:id/paid", handler.MarkPaid)
}

// Balance
// @Summary Cashback balance; withdrawable excludes open payout requests
// @Tags cashback
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Router /api/v1/cashback [get]
func (h *CashbackHandler) Balance(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	balance, err := h.cashbackService.GetBalance(c.Request.Context(), identity.UserID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, balance)
}

// RequestPayout
// @Summary Request a cashback withdrawal
// @Tags cashback
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /api/v1/cashback/payouts [post]
func (h *CashbackHandler) RequestPayout(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req requestPayoutRequest
	if !bindJSON(c, &req) {
		return
	}

	details := make(map[string]string, len(req.BankDetails))
	for key, value := range req.BankDetails {
		details[strings.ToLower(strings.TrimSpace(key))] = inputsanitize.Name(value)
	}

	payout, err := h.cashbackService.RequestPayout(c.Request.Context(), service.PayoutRequest{
		UserID:      identity.UserID,
		Amount:      req.Amount,
		Method:      model.PayoutMethod(strings.ToLower(strings.TrimSpace(string(req.Method)))),
		BankDetails: details,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Created(c, payout)
}

func (h *CashbackHandler) ListOwnPayouts(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	status, ok := parsePayoutStatus(c)
	if !ok {
		return
	}

	page, pageSize := parsePagination(c)
	items, total, err := h.cashbackService.ListPayouts(c.Request.Context(), &identity.UserID, status, page, pageSize)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Paginated(c, items, page, pageSize, total)
}

func (h *CashbackHandler) GetPayout(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	payoutID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	payout, err := h.cashbackService.GetPayout(c.Request.Context(), identity, payoutID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, payout)
}

func (h *CashbackHandler) AdminListPayouts(c *gin.Context) {
	status, ok := parsePayoutStatus(c)
	if !ok {
		return
	}

	var userID *uuid.UUID
	if raw := optionalQuery(c, "user_id"); raw != nil {
		parsed, err := uuid.Parse(*raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrValidation, "invalid user_id")
			return
		}
		userID = &parsed
	}

	page, pageSize := parsePagination(c)
	items, total, err := h.cashbackService.ListPayouts(c.Request.Context(), userID, status, page, pageSize)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Paginated(c, items, page, pageSize, total)
}

func (h *CashbackHandler) Approve(c *gin.Context) {
	h.transition(c, func(actorID, payoutID uuid.UUID) (*model.CashbackPayout, error) {
		return h.cashbackService.Approve(c.Request.Context(), actorID, payoutID)
	})
}

func (h *CashbackHandler) MarkPaid(c *gin.Context) {
	h.transition(c, func(actorID, payoutID uuid.UUID) (*model.CashbackPayout, error) {
		return h.cashbackService.MarkPaid(c.Request.Context(), actorID, payoutID)
	})
}

func (h *CashbackHandler) Reject(c *gin.Context) {
	var req rejectPayoutRequest
	if !bindJSON(c, &req) {
		return
	}

	reason := inputsanitize.Name(req.Reason)
	h.transition(c, func(actorID, payoutID uuid.UUID) (*model.CashbackPayout, error) {
		return h.cashbackService.Reject(c.Request.Context(), actorID, payoutID, reason)
	})
}

func (h *CashbackHandler) transition(c *gin.Context, apply func(actorID, payoutID uuid.UUID) (*model.CashbackPayout, error)) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	payoutID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	payout, err := apply(identity.UserID, payoutID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, payout)
}

func parsePayoutStatus(c *gin.Context) (*model.PayoutStatus, bool) {
	raw := optionalQuery(c, "status")
	if raw == nil {
		return nil, true
	}

	status := model.PayoutStatus(strings.ToLower(*raw))
	switch status {
	case model.PayoutStatusRequested, model.PayoutStatusApproved, model.PayoutStatusPaid, model.PayoutStatusRejected:
		return &status, true
	default:
		response.Fail(c, http.StatusBadRequest, response.ErrValidation, "invalid status")
		return nil, false
	}
}
