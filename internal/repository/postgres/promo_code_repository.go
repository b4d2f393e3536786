package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

type promoCodeRepository struct {
	q querier
}

var _ repository.PromoCodeRepository = (*promoCodeRepository)(nil)

const promoCodeColumns = `
	id,
	code,
	description,
	type,
	discount_value,
	max_discount,
	min_purchase,
	max_uses,
	current_uses,
	max_uses_per_user,
	valid_from,
	valid_to,
	products,
	excluded_products,
	categories,
	excluded_categories,
	first_purchase_only,
	free_shipping,
	buy_quantity,
	get_quantity,
	is_active,
	total_orders,
	total_revenue,
	created_by,
	created_at,
	updated_at
`

func (r *promoCodeRepository) Create(ctx context.Context, promo *model.PromoCode) error {
	if promo.ID == uuid.Nil {
		promo.ID = uuid.New()
	}
	now := time.Now().UTC()
	if promo.CreatedAt.IsZero() {
		promo.CreatedAt = now
	}
	if promo.ValidFrom.IsZero() {
		promo.ValidFrom = now
	}
	promo.UpdatedAt = now

	tag, err := r.q.Exec(ctx, `
		INSERT INTO promo_codes (
			id,
			code,
			description,
			type,
			discount_value,
			max_discount,
			min_purchase,
			max_uses,
			current_uses,
			max_uses_per_user,
			valid_from,
			valid_to,
			products,
			excluded_products,
			categories,
			excluded_categories,
			first_purchase_only,
			free_shipping,
			buy_quantity,
			get_quantity,
			is_active,
			created_by,
			created_at,
			updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
		ON CONFLICT DO NOTHING
	`,
		promo.ID,
		promo.Code,
		promo.Description,
		promo.Type,
		promo.DiscountValue,
		decimalPtrArg(promo.MaxDiscount),
		decimalPtrArg(promo.MinPurchase),
		promo.MaxUses,
		promo.CurrentUses,
		promo.MaxUsesPerUser,
		promo.ValidFrom,
		promo.ValidTo,
		nonNilStrings(promo.Products),
		nonNilStrings(promo.ExcludedProducts),
		nonNilStrings(promo.Categories),
		nonNilStrings(promo.ExcludedCategories),
		promo.FirstPurchaseOnly,
		promo.FreeShipping,
		promo.BuyQuantity,
		promo.GetQuantity,
		promo.IsActive,
		promo.CreatedBy,
		promo.CreatedAt,
		promo.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrDuplicate
	}
	return nil
}

// Update rewrites the definition of a promo code. Usage counters are only
// changed by IncrementUsage.
func (r *promoCodeRepository) Update(ctx context.Context, promo *model.PromoCode) error {
	query := `
		UPDATE promo_codes
		SET code = $2,
			description = $3,
			type = $4,
			discount_value = $5,
			max_discount = $6,
			min_purchase = $7,
			max_uses = $8,
			max_uses_per_user = $9,
			valid_from = $10,
			valid_to = $11,
			products = $12,
			excluded_products = $13,
			categories = $14,
			excluded_categories = $15,
			first_purchase_only = $16,
			free_shipping = $17,
			buy_quantity = $18,
			get_quantity = $19,
			is_active = $20,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + promoCodeColumns

	updated, err := scanPromoCode(r.q.QueryRow(ctx, query,
		promo.ID,
		promo.Code,
		promo.Description,
		promo.Type,
		promo.DiscountValue,
		decimalPtrArg(promo.MaxDiscount),
		decimalPtrArg(promo.MinPurchase),
		promo.MaxUses,
		promo.MaxUsesPerUser,
		promo.ValidFrom,
		promo.ValidTo,
		nonNilStrings(promo.Products),
		nonNilStrings(promo.ExcludedProducts),
		nonNilStrings(promo.Categories),
		nonNilStrings(promo.ExcludedCategories),
		promo.FirstPurchaseOnly,
		promo.FreeShipping,
		promo.BuyQuantity,
		promo.GetQuantity,
		promo.IsActive,
	))
	if err != nil {
		return mapError(err)
	}

	*promo = *updated
	return nil
}

func (r *promoCodeRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.PromoCode, error) {
	query := `SELECT ` + promoCodeColumns + ` FROM promo_codes WHERE id = $1`
	promo, err := scanPromoCode(r.q.QueryRow(ctx, query, id))
	return promo, mapError(err)
}

func (r *promoCodeRepository) FindByCode(ctx context.Context, code string) (*model.PromoCode, error) {
	query := `SELECT ` + promoCodeColumns + ` FROM promo_codes WHERE code = $1`
	promo, err := scanPromoCode(r.q.QueryRow(ctx, query, code))
	return promo, mapError(err)
}

func (r *promoCodeRepository) FindByCodeForUpdate(ctx context.Context, code string) (*model.PromoCode, error) {
	query := `SELECT ` + promoCodeColumns + ` FROM promo_codes WHERE code = $1 FOR UPDATE`
	promo, err := scanPromoCode(r.q.QueryRow(ctx, query, code))
	return promo, mapError(err)
}

func (r *promoCodeRepository) List(ctx context.Context, filter repository.PromoCodeListFilter) ([]*model.PromoCode, int64, error) {
	limit, offset := normalizePagination(filter.Pagination)

	args := make([]any, 0, 4)
	conditions := make([]string, 0, 2)

	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if filter.Keyword != nil && strings.TrimSpace(*filter.Keyword) != "" {
		args = append(args, "%"+strings.ToUpper(strings.TrimSpace(*filter.Keyword))+"%")
		conditions = append(conditions, fmt.Sprintf("code LIKE $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	total, err := countRows(ctx, r.q, `SELECT COUNT(*) FROM promo_codes`+where, args...)
	if err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := `SELECT ` + promoCodeColumns + ` FROM promo_codes` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	items := make([]*model.PromoCode, 0, limit)
	for rows.Next() {
		item, err := scanPromoCode(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapError(err)
	}
	return items, total, nil
}

func (r *promoCodeRepository) IncrementUsage(ctx context.Context, id uuid.UUID, orderTotal decimal.Decimal) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE promo_codes
		SET current_uses = current_uses + 1,
			total_orders = total_orders + 1,
			total_revenue = total_revenue + $2,
			updated_at = NOW()
		WHERE id = $1
		  AND (max_uses = $3 OR current_uses < max_uses)
	`, id, orderTotal, model.UnlimitedUses)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return conditionOrMissing(ctx, r.q, `SELECT EXISTS (SELECT 1 FROM promo_codes WHERE id = $1)`, id)
}

func scanPromoCode(src scanTarget) (*model.PromoCode, error) {
	promo := &model.PromoCode{}
	var maxDiscount decimal.NullDecimal
	var minPurchase decimal.NullDecimal

	err := src.Scan(
		&promo.ID,
		&promo.Code,
		&promo.Description,
		&promo.Type,
		&promo.DiscountValue,
		&maxDiscount,
		&minPurchase,
		&promo.MaxUses,
		&promo.CurrentUses,
		&promo.MaxUsesPerUser,
		&promo.ValidFrom,
		&promo.ValidTo,
		&promo.Products,
		&promo.ExcludedProducts,
		&promo.Categories,
		&promo.ExcludedCategories,
		&promo.FirstPurchaseOnly,
		&promo.FreeShipping,
		&promo.BuyQuantity,
		&promo.GetQuantity,
		&promo.IsActive,
		&promo.TotalOrders,
		&promo.TotalRevenue,
		&promo.CreatedBy,
		&promo.CreatedAt,
		&promo.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	promo.MaxDiscount = nullDecimalPtr(maxDiscount)
	promo.MinPurchase = nullDecimalPtr(minPurchase)
	return promo, nil
}

type promoUsageRepository struct {
	q querier
}

var _ repository.PromoUsageRepository = (*promoUsageRepository)(nil)

const promoUsageColumns = `
	id,
	promo_code_id,
	user_id,
	order_id,
	discount_applied,
	order_total,
	ip_address,
	user_agent,
	used_at
`

func (r *promoUsageRepository) Create(ctx context.Context, usage *model.PromoCodeUsage) error {
	if usage.ID == uuid.Nil {
		usage.ID = uuid.New()
	}
	if usage.UsedAt.IsZero() {
		usage.UsedAt = time.Now().UTC()
	}

	tag, err := r.q.Exec(ctx, `
		INSERT INTO promo_code_usage (
			id,
			promo_code_id,
			user_id,
			order_id,
			discount_applied,
			order_total,
			ip_address,
			user_agent,
			used_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING
	`,
		usage.ID,
		usage.PromoCodeID,
		usage.UserID,
		usage.OrderID,
		usage.DiscountApplied,
		usage.OrderTotal,
		usage.IPAddress,
		usage.UserAgent,
		usage.UsedAt,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrDuplicate
	}
	return nil
}

func (r *promoUsageRepository) CountByUser(ctx context.Context, promoCodeID, userID uuid.UUID) (int, error) {
	total, err := countRows(ctx, r.q, `
		SELECT COUNT(*) FROM promo_code_usage WHERE promo_code_id = $1 AND user_id = $2
	`, promoCodeID, userID)
	return int(total), err
}

func (r *promoUsageRepository) FindByOrder(ctx context.Context, promoCodeID uuid.UUID, orderID string) (*model.PromoCodeUsage, error) {
	query := `SELECT ` + promoUsageColumns + ` FROM promo_code_usage WHERE promo_code_id = $1 AND order_id = $2`
	usage, err := scanPromoUsage(r.q.QueryRow(ctx, query, promoCodeID, orderID))
	return usage, mapError(err)
}

func (r *promoUsageRepository) ListByPromoCode(
	ctx context.Context,
	promoCodeID uuid.UUID,
	page repository.Pagination,
) ([]*model.PromoCodeUsage, int64, error) {
	limit, offset := normalizePagination(page)

	total, err := countRows(ctx, r.q, `SELECT COUNT(*) FROM promo_code_usage WHERE promo_code_id = $1`, promoCodeID)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + promoUsageColumns + `
		FROM promo_code_usage
		WHERE promo_code_id = $1
		ORDER BY used_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.q.Query(ctx, query, promoCodeID, limit, offset)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	items := make([]*model.PromoCodeUsage, 0, limit)
	for rows.Next() {
		item, err := scanPromoUsage(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapError(err)
	}
	return items, total, nil
}

func (r *promoUsageRepository) Stats(ctx context.Context, promoCodeID uuid.UUID) (model.PromoCodeUsageStats, error) {
	var stats model.PromoCodeUsageStats
	err := r.q.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(DISTINCT user_id),
			COALESCE(SUM(discount_applied), 0),
			COALESCE(SUM(order_total), 0)
		FROM promo_code_usage
		WHERE promo_code_id = $1
	`, promoCodeID).Scan(&stats.TotalUses, &stats.UniqueUsers, &stats.TotalDiscount, &stats.TotalRevenue)
	return stats, mapError(err)
}

func scanPromoUsage(src scanTarget) (*model.PromoCodeUsage, error) {
	usage := &model.PromoCodeUsage{}
	err := src.Scan(
		&usage.ID,
		&usage.PromoCodeID,
		&usage.UserID,
		&usage.OrderID,
		&usage.DiscountApplied,
		&usage.OrderTotal,
		&usage.IPAddress,
		&usage.UserAgent,
		&usage.UsedAt,
	)
	if err != nil {
		return nil, err
	}
	return usage, nil
}
