package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loyalty-hub/internal/api/response"
	inputsanitize "loyalty-hub/internal/api/sanitize"
	"loyalty-hub/internal/model"
	"loyalty-hub/internal/service"
)

type PromoCodeHandler struct {
	promoService *service.PromoCodeService
}

type cartRequest struct {
	Code      string           `json:"code" binding:"required"`
	CartTotal decimal.Decimal  `json:"cart_total"`
	CartItems []model.CartItem `json:"cart_items"`
}

type redeemPromoRequest struct {
	cartRequest
	OrderID string `json:"order_id" binding:"required"`
}

func NewPromoCodeHandler(promoService *service.PromoCodeService) *PromoCodeHandler {
	return &PromoCodeHandler{promoService: promoService}
}

// RegisterPromoCodeRoutes mounts checkout routes behind limiter, which may be
// nil, and the admin catalogue.
func RegisterPromoCodeRoutes(user, admin *gin.RouterGroup, promoService *service.PromoCodeService, limiter gin.HandlerFunc) {
	if promoService == nil {
		return
	}

	handler := NewPromoCodeHandler(promoService)

	checkout := user.Group("/promo-codes")
	if limiter != nil {
		checkout.Use(limiter)
	}
	checkout.POST("/validate", handler.Validate)
	checkout.POST("/redeem", handler.Redeem)

	admin.GET("/promo-codes", handler.List)
	admin.POST("/promo-codes", handler.Create)
	admin.PUT("/promo-codes/:id", handler.Update)
	admin.DELETE("/promo-codes/:id", handler.Deactivate)
	admin.GET("/promo-codes/:id/stats", handler.Stats)
}

// Validate
// @Summary Evaluate a promo code against a cart without consuming it
// @Description An invalid code is a 200 with valid=false and a reason code.
// @Tags promo-codes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 429 {object} response.Response
// @Router /api/v1/promo-codes/validate [post]
func (h *PromoCodeHandler) Validate(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req cartRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.promoService.Validate(c.Request.Context(), req.toInput(identity.UserID))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, result)
}

// Redeem
// @Summary Consume a promo code for an order; replays return applied=false
// @Tags promo-codes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/promo-codes/redeem [post]
func (h *PromoCodeHandler) Redeem(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req redeemPromoRequest
	if !bindJSON(c, &req) {
		return
	}

	ip, userAgent := clientMetadata(c)
	result, err := h.promoService.Redeem(c.Request.Context(), service.PromoRedeemInput{
		PromoValidationInput: req.toInput(identity.UserID),
		OrderID:              req.OrderID,
		IPAddress:            ip,
		UserAgent:            userAgent,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *PromoCodeHandler) List(c *gin.Context) {
	isActive, ok := parseBoolQuery(c, "active")
	if !ok {
		return
	}

	page, pageSize := parsePagination(c)
	items, total, err := h.promoService.List(c.Request.Context(), isActive, optionalQuery(c, "keyword"), page, pageSize)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Paginated(c, items, page, pageSize, total)
}

func (h *PromoCodeHandler) Create(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	var input service.PromoCodeInput
	if !bindJSON(c, &input) {
		return
	}
	sanitizePromoInput(&input)

	promo, err := h.promoService.Create(c.Request.Context(), identity.UserID, input)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Created(c, promo)
}

func (h *PromoCodeHandler) Update(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	promoID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var input service.PromoCodeInput
	if !bindJSON(c, &input) {
		return
	}
	sanitizePromoInput(&input)

	promo, err := h.promoService.Update(c.Request.Context(), identity.UserID, promoID, input)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, promo)
}

func (h *PromoCodeHandler) Deactivate(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	promoID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	promo, err := h.promoService.Deactivate(c.Request.Context(), identity.UserID, promoID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, promo)
}

func (h *PromoCodeHandler) Stats(c *gin.Context) {
	promoID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	report, err := h.promoService.Stats(c.Request.Context(), promoID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, report)
}

func (r cartRequest) toInput(userID uuid.UUID) service.PromoValidationInput {
	return service.PromoValidationInput{
		Code:      r.Code,
		UserID:    userID,
		CartTotal: r.CartTotal,
		CartItems: r.CartItems,
	}
}

func sanitizePromoInput(input *service.PromoCodeInput) {
	input.Description = inputsanitize.Description(input.Description)
	input.Products = inputsanitize.Identifiers(input.Products)
	input.ExcludedProducts = inputsanitize.Identifiers(input.ExcludedProducts)
	input.Categories = inputsanitize.Identifiers(input.Categories)
	input.ExcludedCategories = inputsanitize.Identifiers(input.ExcludedCategories)
}
