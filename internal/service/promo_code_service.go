package service

import (
	"context"
	"errors"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"loyalty-hub/internal/event"
	"loyalty-hub/internal/metrics"
	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

const (
	promoRecentUsageLimit = 50
	defaultPromoPerUser   = 1
)

var (
	promoCodePattern = regexp.MustCompile(`^[A-Z0-9_-]{3,32}$`)
	hundred          = decimal.NewFromInt(100)
)

// Reason codes reported by PromoValidation.Code.
const (
	PromoReasonNotFound      = "promo_code_not_found"
	PromoReasonInactive      = "promo_code_inactive"
	PromoReasonNotStarted    = "promo_code_not_started"
	PromoReasonExpired       = "promo_code_expired"
	PromoReasonExhausted     = "promo_code_exhausted"
	PromoReasonUserLimit     = "promo_code_user_limit"
	PromoReasonMinPurchase   = "promo_code_min_purchase"
	PromoReasonFirstPurchase = "promo_code_first_purchase"
	PromoReasonNotApplicable = "promo_code_not_applicable"
	PromoReasonExcluded      = "promo_code_excluded"
)

type PromoValidationInput struct {
	Code      string
	UserID    uuid.UUID
	CartTotal decimal.Decimal
	CartItems []model.CartItem
}

// PromoValidation is the outcome of evaluating a promo code against a cart.
// Ordinary invalidity is reported here, never as an error.
type PromoValidation struct {
	Valid        bool            `json:"valid"`
	Discount     decimal.Decimal `json:"discount"`
	FreeShipping bool            `json:"free_shipping"`
	Message      string          `json:"message,omitempty"`
	Code         string          `json:"code,omitempty"`
	PromoCodeID  *uuid.UUID      `json:"promo_code_id,omitempty"`
}

type PromoRedeemInput struct {
	PromoValidationInput
	OrderID   string
	IPAddress *string
	UserAgent *string
}

type PromoRedemption struct {
	Applied bool                  `json:"applied"`
	Usage   *model.PromoCodeUsage `json:"usage"`
}

type PromoCodeInput struct {
	Code               string              `json:"code"`
	Description        string              `json:"description"`
	Type               model.PromoCodeType `json:"type"`
	DiscountValue      decimal.Decimal     `json:"discount_value"`
	MaxDiscount        *decimal.Decimal    `json:"max_discount"`
	MinPurchase        *decimal.Decimal    `json:"min_purchase"`
	MaxUses            *int                `json:"max_uses"`
	MaxUsesPerUser     *int                `json:"max_uses_per_user"`
	ValidFrom          *time.Time          `json:"valid_from"`
	ValidTo            *time.Time          `json:"valid_to"`
	Products           []string            `json:"products"`
	ExcludedProducts   []string            `json:"excluded_products"`
	Categories         []string            `json:"categories"`
	ExcludedCategories []string            `json:"excluded_categories"`
	FirstPurchaseOnly  bool                `json:"first_purchase_only"`
	FreeShipping       bool                `json:"free_shipping"`
	BuyQuantity        int                 `json:"buy_quantity"`
	GetQuantity        int                 `json:"get_quantity"`
	IsActive           *bool               `json:"is_active"`
}

type PromoCodeStatsReport struct {
	PromoCode    *model.PromoCode          `json:"promo_code"`
	Status       model.PromoCodeStatus     `json:"status"`
	Usage        model.PromoCodeUsageStats `json:"usage"`
	RecentUsages []*model.PromoCodeUsage   `json:"recent_usages"`
}

type PromoCodeService struct {
	ledger
}

func NewPromoCodeService(store repository.Store, publisher event.Publisher, logger *zap.Logger) *PromoCodeService {
	return &PromoCodeService{ledger: newLedger(store, publisher, logger)}
}

// Validate evaluates a code against a cart without side effects.
func (s *PromoCodeService) Validate(ctx context.Context, input PromoValidationInput) (*PromoValidation, error) {
	if err := validateCart(input); err != nil {
		return nil, err
	}

	repos := s.repos()
	promo, err := repos.PromoCodes.FindByCode(ctx, normalizePromoCode(input.Code))
	if errors.Is(err, repository.ErrNotFound) {
		return promoInvalid(PromoReasonNotFound, "Código promocional inválido"), nil
	}
	if err != nil {
		return nil, translateStoreError(err)
	}

	result, err := evaluatePromo(ctx, repos, promo, input, s.now())
	if err != nil {
		return nil, translateStoreError(err)
	}
	return result, nil
}

// Redeem re-validates on the locked promo row and records one usage for the
// order. Replaying the same (code, order) pair returns Applied=false.
func (s *PromoCodeService) Redeem(ctx context.Context, input PromoRedeemInput) (*PromoRedemption, error) {
	if err := validateCart(input.PromoValidationInput); err != nil {
		return nil, err
	}
	orderID := strings.TrimSpace(input.OrderID)
	if orderID == "" {
		return nil, validationError("Pedido obrigatório")
	}

	var result *PromoRedemption
	var promoType model.PromoCodeType
	err := s.withinTx(ctx, "redeem_promo_code", func(ctx context.Context, repos repository.Repositories, _ *outbox) error {
		promo, err := repos.PromoCodes.FindByCodeForUpdate(ctx, normalizePromoCode(input.Code))
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPromoCodeNotFound
		}
		if err != nil {
			return err
		}
		promoType = promo.Type

		if existing, err := repos.PromoUsage.FindByOrder(ctx, promo.ID, orderID); err == nil {
			result = &PromoRedemption{Applied: false, Usage: existing}
			return nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		now := s.now()
		validation, err := evaluatePromo(ctx, repos, promo, input.PromoValidationInput, now)
		if err != nil {
			return err
		}
		if !validation.Valid {
			return reject(ErrStateConflict, validation.Code, validation.Message)
		}

		if err := repos.PromoCodes.IncrementUsage(ctx, promo.ID, input.CartTotal); err != nil {
			if errors.Is(err, repository.ErrConditionFailed) {
				return reject(ErrStateConflict, PromoReasonExhausted, "Código promocional esgotado")
			}
			return err
		}

		usage := &model.PromoCodeUsage{
			PromoCodeID:     promo.ID,
			UserID:          input.UserID,
			OrderID:         &orderID,
			DiscountApplied: validation.Discount,
			OrderTotal:      input.CartTotal,
			IPAddress:       input.IPAddress,
			UserAgent:       input.UserAgent,
			UsedAt:          now,
		}
		if err := repos.PromoUsage.Create(ctx, usage); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrPromoCodeRejected
			}
			return err
		}

		result = &PromoRedemption{Applied: true, Usage: usage}
		return nil
	})
	if err != nil {
		var rejection *RejectionError
		if errors.As(err, &rejection) {
			metrics.IncRejection("redeem_promo_code", rejection.Code)
		}
		return nil, err
	}

	if result.Applied {
		metrics.IncPromoRedemption(string(promoType))
	}
	return result, nil
}

func (s *PromoCodeService) Create(ctx context.Context, actorID uuid.UUID, input PromoCodeInput) (*model.PromoCode, error) {
	promo := &model.PromoCode{
		IsActive:     true,
		TotalRevenue: decimal.Zero,
		CreatedBy:    &actorID,
	}
	if err := applyPromoInput(promo, input, true); err != nil {
		return nil, err
	}

	if err := s.repos().PromoCodes.Create(ctx, promo); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrPromoCodeExists
		}
		return nil, translateStoreError(err)
	}

	s.writeAudit(ctx, &actorID, "promo_code.create", "promo_code", promo.ID.String(), map[string]interface{}{
		"code":           promo.Code,
		"type":           string(promo.Type),
		"discount_value": promo.DiscountValue.String(),
	})
	return promo, nil
}

// Update edits the terms of a promo code. The code string and usage counters
// are not editable.
func (s *PromoCodeService) Update(ctx context.Context, actorID, id uuid.UUID, input PromoCodeInput) (*model.PromoCode, error) {
	var promo *model.PromoCode
	err := s.withinTx(ctx, "update_promo_code", func(ctx context.Context, repos repository.Repositories, _ *outbox) error {
		var err error
		promo, err = repos.PromoCodes.FindByID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPromoCodeNotFound
		}
		if err != nil {
			return err
		}

		if err := applyPromoInput(promo, input, false); err != nil {
			return err
		}
		if promo.MaxUses != model.UnlimitedUses && promo.MaxUses < promo.CurrentUses {
			return validationError("Limite de usos menor que o uso atual")
		}
		if err := repos.PromoCodes.Update(ctx, promo); err != nil {
			return err
		}
		return auditInTx(ctx, repos, &actorID, "promo_code.update", "promo_code", promo.ID.String(), map[string]interface{}{
			"code":      promo.Code,
			"is_active": promo.IsActive,
		})
	})
	if err != nil {
		return nil, err
	}
	return promo, nil
}

func (s *PromoCodeService) Deactivate(ctx context.Context, actorID, id uuid.UUID) (*model.PromoCode, error) {
	var promo *model.PromoCode
	err := s.withinTx(ctx, "deactivate_promo_code", func(ctx context.Context, repos repository.Repositories, _ *outbox) error {
		var err error
		promo, err = repos.PromoCodes.FindByID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPromoCodeNotFound
		}
		if err != nil {
			return err
		}
		promo.IsActive = false
		if err := repos.PromoCodes.Update(ctx, promo); err != nil {
			return err
		}
		return auditInTx(ctx, repos, &actorID, "promo_code.deactivate", "promo_code", promo.ID.String(), map[string]interface{}{
			"code": promo.Code,
		})
	})
	if err != nil {
		return nil, err
	}
	return promo, nil
}

func (s *PromoCodeService) List(
	ctx context.Context,
	isActive *bool,
	keyword *string,
	page, pageSize int,
) ([]*model.PromoCode, int64, error) {
	filter := repository.PromoCodeListFilter{
		IsActive:   isActive,
		Pagination: toRepoPage(page, pageSize),
	}
	if keyword != nil {
		normalized := normalizePromoCode(*keyword)
		if normalized != "" {
			filter.Keyword = &normalized
		}
	}

	items, total, err := s.repos().PromoCodes.List(ctx, filter)
	if err != nil {
		return nil, 0, translateStoreError(err)
	}
	return items, total, nil
}

func (s *PromoCodeService) Stats(ctx context.Context, id uuid.UUID) (*PromoCodeStatsReport, error) {
	repos := s.repos()

	promo, err := repos.PromoCodes.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPromoCodeNotFound
	}
	if err != nil {
		return nil, translateStoreError(err)
	}

	usage, err := repos.PromoUsage.Stats(ctx, id)
	if err != nil {
		return nil, translateStoreError(err)
	}
	recent, _, err := repos.PromoUsage.ListByPromoCode(ctx, id, repository.Pagination{Limit: promoRecentUsageLimit})
	if err != nil {
		return nil, translateStoreError(err)
	}

	return &PromoCodeStatsReport{
		PromoCode:    promo,
		Status:       promo.StatusAt(s.now()),
		Usage:        usage,
		RecentUsages: recent,
	}, nil
}

// evaluatePromo applies the eligibility checks in a fixed order and stops at
// the first failure.
func evaluatePromo(
	ctx context.Context,
	repos repository.Repositories,
	promo *model.PromoCode,
	input PromoValidationInput,
	now time.Time,
) (*PromoValidation, error) {
	if !promo.IsActive {
		return promoInvalid(PromoReasonInactive, "Código promocional inativo"), nil
	}
	if now.Before(promo.ValidFrom) {
		return promoInvalid(PromoReasonNotStarted, "Código promocional ainda não está válido"), nil
	}
	if promo.ValidTo != nil && now.After(*promo.ValidTo) {
		return promoInvalid(PromoReasonExpired, "Código promocional expirado"), nil
	}
	if promo.Exhausted() {
		return promoInvalid(PromoReasonExhausted, "Código promocional esgotado"), nil
	}

	if promo.MaxUsesPerUser > 0 {
		used, err := repos.PromoUsage.CountByUser(ctx, promo.ID, input.UserID)
		if err != nil {
			return nil, err
		}
		if used >= promo.MaxUsesPerUser {
			return promoInvalid(PromoReasonUserLimit, "Você já utilizou este código o número máximo de vezes"), nil
		}
	}

	if promo.MinPurchase != nil && input.CartTotal.LessThan(*promo.MinPurchase) {
		return promoInvalid(PromoReasonMinPurchase,
			"Compra mínima de €"+promo.MinPurchase.StringFixed(2)+" necessária"), nil
	}

	if promo.FirstPurchaseOnly {
		orders, err := repos.Orders.CountByUser(ctx, input.UserID)
		if err != nil {
			return nil, err
		}
		if orders > 0 {
			return promoInvalid(PromoReasonFirstPurchase, "Código válido apenas para a primeira compra"), nil
		}
	}

	if len(promo.Products) > 0 || len(promo.Categories) > 0 {
		if !slices.ContainsFunc(input.CartItems, func(item model.CartItem) bool { return promoIncludes(promo, item) }) {
			return promoInvalid(PromoReasonNotApplicable, "Código não aplicável aos produtos no carrinho"), nil
		}
	}
	if slices.ContainsFunc(input.CartItems, func(item model.CartItem) bool { return promoExcludes(promo, item) }) {
		return promoInvalid(PromoReasonExcluded, "Código não aplicável a alguns produtos no carrinho"), nil
	}

	discount := promoDiscount(promo, input).Round(2)
	return &PromoValidation{
		Valid:        true,
		Discount:     discount,
		FreeShipping: promo.FreeShipping || promo.Type == model.PromoCodeFreeShipping,
		Message:      "Desconto de €" + discount.StringFixed(2) + " aplicado",
		PromoCodeID:  uuidPtr(promo.ID),
	}, nil
}

func promoDiscount(promo *model.PromoCode, input PromoValidationInput) decimal.Decimal {
	switch promo.Type {
	case model.PromoCodePercentage:
		discount := input.CartTotal.Mul(promo.DiscountValue).Div(hundred)
		if promo.MaxDiscount != nil && discount.GreaterThan(*promo.MaxDiscount) {
			discount = *promo.MaxDiscount
		}
		return discount
	case model.PromoCodeFixedAmount:
		return decimal.Min(promo.DiscountValue, input.CartTotal)
	case model.PromoCodeBuyXGetY:
		return decimal.Min(buyXGetYDiscount(promo, input.CartItems), input.CartTotal)
	default:
		return decimal.Zero
	}
}

// buyXGetYDiscount frees the GetQuantity cheapest eligible units once the cart
// holds at least BuyQuantity eligible units. It applies once per cart.
func buyXGetYDiscount(promo *model.PromoCode, items []model.CartItem) decimal.Decimal {
	if promo.BuyQuantity <= 0 || promo.GetQuantity <= 0 {
		return decimal.Zero
	}

	prices := make([]decimal.Decimal, 0, len(items))
	for _, item := range items {
		if promoExcludes(promo, item) {
			continue
		}
		if (len(promo.Products) > 0 || len(promo.Categories) > 0) && !promoIncludes(promo, item) {
			continue
		}
		for i := 0; i < item.Quantity; i++ {
			prices = append(prices, item.UnitPrice)
		}
	}

	if len(prices) < promo.BuyQuantity {
		return decimal.Zero
	}
	free := min(promo.GetQuantity, len(prices))

	sort.Slice(prices, func(i, j int) bool { return prices[i].LessThan(prices[j]) })
	discount := decimal.Zero
	for _, price := range prices[:free] {
		discount = discount.Add(price)
	}
	return discount
}

func promoIncludes(promo *model.PromoCode, item model.CartItem) bool {
	if slices.Contains(promo.Products, item.ProductID) {
		return true
	}
	return item.Category != "" && slices.Contains(promo.Categories, item.Category)
}

func promoExcludes(promo *model.PromoCode, item model.CartItem) bool {
	if slices.Contains(promo.ExcludedProducts, item.ProductID) {
		return true
	}
	return item.Category != "" && slices.Contains(promo.ExcludedCategories, item.Category)
}

func promoInvalid(code, message string) *PromoValidation {
	return &PromoValidation{Valid: false, Discount: decimal.Zero, Code: code, Message: message}
}

func validateCart(input PromoValidationInput) error {
	if input.UserID == uuid.Nil {
		return ErrInvalidUserID
	}
	if strings.TrimSpace(input.Code) == "" {
		return validationError("Código obrigatório")
	}
	if input.CartTotal.IsNegative() {
		return validationError("Total do carrinho inválido")
	}
	for _, item := range input.CartItems {
		if strings.TrimSpace(item.ProductID) == "" || item.Quantity <= 0 || item.UnitPrice.IsNegative() {
			return validationError("Item do carrinho inválido")
		}
	}
	return nil
}

func normalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func applyPromoInput(promo *model.PromoCode, input PromoCodeInput, create bool) error {
	if create {
		code := normalizePromoCode(input.Code)
		if !promoCodePattern.MatchString(code) {
			return validationError("Código promocional inválido")
		}
		promo.Code = code
	}
	if !input.Type.Valid() {
		return validationError("Tipo de código promocional inválido")
	}

	switch input.Type {
	case model.PromoCodePercentage:
		if input.DiscountValue.IsNegative() || input.DiscountValue.GreaterThan(hundred) {
			return validationError("Desconto percentual deve estar entre 0 e 100")
		}
	case model.PromoCodeFixedAmount:
		if input.DiscountValue.IsNegative() {
			return validationError("Valor de desconto não pode ser negativo")
		}
	case model.PromoCodeBuyXGetY:
		if input.BuyQuantity <= 0 || input.GetQuantity <= 0 {
			return validationError("Quantidades de compra e brinde obrigatórias")
		}
	}
	if input.MaxDiscount != nil && input.MaxDiscount.IsNegative() {
		return validationError("Desconto máximo inválido")
	}
	if input.MinPurchase != nil && input.MinPurchase.IsNegative() {
		return validationError("Compra mínima inválida")
	}

	maxUses := model.UnlimitedUses
	if input.MaxUses != nil {
		maxUses = *input.MaxUses
	} else if !create {
		maxUses = promo.MaxUses
	}
	if maxUses != model.UnlimitedUses && maxUses < 1 {
		return validationError("Limite de usos inválido")
	}

	perUser := defaultPromoPerUser
	if input.MaxUsesPerUser != nil {
		perUser = *input.MaxUsesPerUser
	} else if !create {
		perUser = promo.MaxUsesPerUser
	}
	if perUser < 0 {
		return validationError("Limite por usuário inválido")
	}

	validFrom := time.Now().UTC()
	if input.ValidFrom != nil {
		validFrom = *input.ValidFrom
	} else if !create {
		validFrom = promo.ValidFrom
	}
	if input.ValidTo != nil && input.ValidTo.Before(validFrom) {
		return validationError("Período de validade inválido")
	}

	promo.Description = input.Description
	promo.Type = input.Type
	promo.DiscountValue = input.DiscountValue
	promo.MaxDiscount = input.MaxDiscount
	promo.MinPurchase = input.MinPurchase
	promo.MaxUses = maxUses
	promo.MaxUsesPerUser = perUser
	promo.ValidFrom = validFrom
	promo.ValidTo = input.ValidTo
	promo.Products = input.Products
	promo.ExcludedProducts = input.ExcludedProducts
	promo.Categories = input.Categories
	promo.ExcludedCategories = input.ExcludedCategories
	promo.FirstPurchaseOnly = input.FirstPurchaseOnly
	promo.FreeShipping = input.FreeShipping
	promo.BuyQuantity = input.BuyQuantity
	promo.GetQuantity = input.GetQuantity
	if input.IsActive != nil {
		promo.IsActive = *input.IsActive
	}
	return nil
}
