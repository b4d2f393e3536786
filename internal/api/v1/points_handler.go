package v1

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"loyalty-hub/internal/api/response"
	inputsanitize "loyalty-hub/internal/api/sanitize"
	"loyalty-hub/internal/model"
	"loyalty-hub/internal/service"
)

type PointsHandler struct {
	pointsService *service.PointsService
}

type useRedemptionRequest struct {
	CouponCode string `json:"coupon_code" binding:"required"`
}

type adjustPointsRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
	Delta  int64     `json:"delta" binding:"required"`
	Reason string    `json:"reason" binding:"required"`
}

func NewPointsHandler(pointsService *service.PointsService) *PointsHandler {
	return &PointsHandler{pointsService: pointsService}
}

// RegisterPointsRoutes expects user to be authenticated and admin to be
// restricted to administrators.
func RegisterPointsRoutes(user, admin *gin.RouterGroup, pointsService *service.PointsService) {
	if pointsService == nil {
		return
	}

	handler := NewPointsHandler(pointsService)

	user.GET("/points", handler.Account)
	user.GET("/points/transactions", handler.ListTransactions)
	user.GET("/rewards", handler.ListAvailableRewards)
	user.POST("/rewards/:id/redeem", handler.Redeem)
	user.GET("/redemptions", handler.ListRedemptions)
	user.POST("/redemptions/use", handler.UseRedemption)

	admin.GET("/rewards", handler.AdminListRewards)
	admin.POST("/rewards", handler.CreateReward)
	admin.PUT("/rewards/:id", handler.UpdateReward)
	admin.POST("/points/adjust", handler.AdjustPoints)
	admin.GET("/points/:user_id", handler.AdminAccount)
	admin.GET("/points/:user_id/reconcile", handler.Reconcile)
}

// Account
// @Summary Points account with tier and progress to the next tier
// @Tags points
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/points [get]
func (h *PointsHandler) Account(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	summary, err := h.pointsService.GetAccount(c.Request.Context(), identity.UserID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, summary)
}

// ListTransactions
// @Summary Points history, newest first
// @Tags points
// @Produce json
// @Security BearerAuth
// @Param page query int false "page"
// @Param page_size query int false "page size"
// @Success 200 {object} response.Response
// @Router /api/v1/points/transactions [get]
func (h *PointsHandler) ListTransactions(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	page, pageSize := parsePagination(c)
	items, total, err := h.pointsService.ListTransactions(c.Request.Context(), identity.UserID, page, pageSize)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Paginated(c, items, page, pageSize, total)
}

func (h *PointsHandler) ListAvailableRewards(c *gin.Context) {
	items, err := h.pointsService.ListAvailableRewards(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, items)
}

// Redeem
// @Summary Spend points on a reward; returns the issued coupon
// @Tags rewards
// @Produce json
// @Security BearerAuth
// @Param id path string true "reward id"
// @Success 201 {object} response.Response
// @Failure 409 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /api/v1/rewards/{id}/redeem [post]
func (h *PointsHandler) Redeem(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	rewardID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	result, err := h.pointsService.Redeem(c.Request.Context(), identity.UserID, rewardID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Created(c, result)
}

func (h *PointsHandler) ListRedemptions(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	var status *model.RedemptionStatus
	if raw := optionalQuery(c, "status"); raw != nil {
		value := model.RedemptionStatus(strings.ToLower(*raw))
		switch value {
		case model.RedemptionStatusActive, model.RedemptionStatusUsed, model.RedemptionStatusExpired:
			status = &value
		default:
			response.Fail(c, http.StatusBadRequest, response.ErrValidation, "invalid status")
			return
		}
	}

	page, pageSize := parsePagination(c)
	items, total, err := h.pointsService.ListRedemptions(c.Request.Context(), identity.UserID, status, page, pageSize)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Paginated(c, items, page, pageSize, total)
}

func (h *PointsHandler) UseRedemption(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req useRedemptionRequest
	if !bindJSON(c, &req) {
		return
	}

	redemption, err := h.pointsService.UseRedemption(c.Request.Context(), identity, req.CouponCode)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, redemption)
}

func (h *PointsHandler) AdminListRewards(c *gin.Context) {
	activeOnly, ok := parseBoolQuery(c, "active")
	if !ok {
		return
	}

	page, pageSize := parsePagination(c)
	items, total, err := h.pointsService.ListRewards(c.Request.Context(), activeOnly != nil && *activeOnly, page, pageSize)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Paginated(c, items, page, pageSize, total)
}

func (h *PointsHandler) CreateReward(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	var input service.RewardInput
	if !bindJSON(c, &input) {
		return
	}
	sanitizeRewardInput(&input)

	reward, err := h.pointsService.CreateReward(c.Request.Context(), identity.UserID, input)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Created(c, reward)
}

func (h *PointsHandler) UpdateReward(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	rewardID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var input service.RewardInput
	if !bindJSON(c, &input) {
		return
	}
	sanitizeRewardInput(&input)

	reward, err := h.pointsService.UpdateReward(c.Request.Context(), identity.UserID, rewardID, input)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, reward)
}

func (h *PointsHandler) AdjustPoints(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req adjustPointsRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.pointsService.AdjustPoints(
		c.Request.Context(),
		identity.UserID,
		req.UserID,
		req.Delta,
		inputsanitize.Name(req.Reason),
	)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *PointsHandler) AdminAccount(c *gin.Context) {
	userID, ok := parseUUIDParam(c, "user_id")
	if !ok {
		return
	}

	summary, err := h.pointsService.GetAccount(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, summary)
}

// Reconcile compares the cached balances with the sum of the transaction log.
func (h *PointsHandler) Reconcile(c *gin.Context) {
	userID, ok := parseUUIDParam(c, "user_id")
	if !ok {
		return
	}

	report, err := h.pointsService.Reconcile(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, report)
}

func sanitizeRewardInput(input *service.RewardInput) {
	input.Name = inputsanitize.Name(input.Name)
	input.Description = inputsanitize.Description(input.Description)
	if input.ProductID != nil {
		productID := inputsanitize.Name(*input.ProductID)
		input.ProductID = &productID
	}
}
