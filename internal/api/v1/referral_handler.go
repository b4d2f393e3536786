package v1

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loyalty-hub/internal/api/response"
	inputsanitize "loyalty-hub/internal/api/sanitize"
	"loyalty-hub/internal/model"
	"loyalty-hub/internal/service"
)

type ReferralHandler struct {
	referralService *service.ReferralService
}

type createReferralCodeRequest struct {
	CustomCode *string `json:"custom_code"`
}

type adminCreateReferralCodeRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
	service.CreateReferralCodeOptions
}

type cancelReferralRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// referralCodePreview is what an anonymous visitor learns about a code: what
// they will get, not who owns it.
type referralCodePreview struct {
	Code               string                   `json:"code"`
	RefereeRewardType  model.ReferralRewardType `json:"referee_reward_type"`
	RefereeRewardValue decimal.Decimal          `json:"referee_reward_value"`
	ValidTo            *time.Time               `json:"valid_to,omitempty"`
}

func NewReferralHandler(referralService *service.ReferralService) *ReferralHandler {
	return &ReferralHandler{referralService: referralService}
}

func RegisterReferralRoutes(public, user, admin *gin.RouterGroup, referralService *service.ReferralService) {
	if referralService == nil {
		return
	}

	handler := NewReferralHandler(referralService)

	public.GET("/referral-codes/:code/validate", handler.ValidateCode)

	user.POST("/referral-codes", handler.CreateCode)
	user.GET("/referral-codes", handler.ListCodes)
	user.GET("/referral-codes/active", handler.ActiveCode)
	user.DELETE("/referral-codes/:id", handler.DeactivateCode)
	user.GET("/referrals", handler.ListReferrals)
	user.GET("/referrals/rewards", handler.ListRewards)
	user.GET("/referrals/stats", handler.Stats)

	admin.POST("/referral-codes", handler.AdminCreateCode)
	admin.POST("/referrals/:id/cancel", handler.CancelReferral)
}

// ValidateCode
// @Summary Check a referral code before signup
// @Tags referrals
// @Produce json
// @Param code path string true "referral code"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/referral-codes/{code}/validate [get]
func (h *ReferralHandler) ValidateCode(c *gin.Context) {
	code, err := h.referralService.ValidateCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, referralCodePreview{
		Code:               code.Code,
		RefereeRewardType:  code.RefereeRewardType,
		RefereeRewardValue: code.RefereeRewardValue,
		ValidTo:            code.ValidTo,
	})
}

// CreateCode
// @Summary Issue the caller's referral code with the default reward terms
// @Tags referrals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 201 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/referral-codes [post]
func (h *ReferralHandler) CreateCode(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req createReferralCodeRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	code, err := h.referralService.CreateCode(c.Request.Context(), identity.UserID, service.CreateReferralCodeOptions{
		CustomCode: req.CustomCode,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Created(c, code)
}

func (h *ReferralHandler) AdminCreateCode(c *gin.Context) {
	var req adminCreateReferralCodeRequest
	if !bindJSON(c, &req) {
		return
	}

	code, err := h.referralService.CreateCode(c.Request.Context(), req.UserID, req.CreateReferralCodeOptions)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Created(c, code)
}

func (h *ReferralHandler) ListCodes(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	codes, err := h.referralService.ListCodes(c.Request.Context(), identity.UserID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, codes)
}

func (h *ReferralHandler) ActiveCode(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	code, err := h.referralService.GetActiveCode(c.Request.Context(), identity.UserID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, code)
}

func (h *ReferralHandler) DeactivateCode(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	codeID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.referralService.DeactivateCode(c.Request.Context(), identity, codeID); err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"id": codeID, "is_active": false})
}

func (h *ReferralHandler) ListReferrals(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	var status *model.ReferralStatus
	if raw := optionalQuery(c, "status"); raw != nil {
		value := model.ReferralStatus(strings.ToLower(*raw))
		switch value {
		case model.ReferralStatusPending, model.ReferralStatusCompleted, model.ReferralStatusCancelled:
			status = &value
		default:
			response.Fail(c, http.StatusBadRequest, response.ErrValidation, "invalid status")
			return
		}
	}

	page, pageSize := parsePagination(c)
	items, total, err := h.referralService.ListReferrals(c.Request.Context(), identity.UserID, status, page, pageSize)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Paginated(c, items, page, pageSize, total)
}

func (h *ReferralHandler) ListRewards(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	page, pageSize := parsePagination(c)
	items, total, err := h.referralService.ListRewards(c.Request.Context(), identity.UserID, page, pageSize)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Paginated(c, items, page, pageSize, total)
}

func (h *ReferralHandler) Stats(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	stats, err := h.referralService.GetStats(c.Request.Context(), identity.UserID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, stats)
}

func (h *ReferralHandler) CancelReferral(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	referralID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req cancelReferralRequest
	if !bindJSON(c, &req) {
		return
	}

	referral, err := h.referralService.CancelReferral(
		c.Request.Context(),
		identity.UserID,
		referralID,
		inputsanitize.Name(req.Reason),
	)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, referral)
}
