package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-shop/internal/domain/coupon"
	"github.com/xenking/oolio-shop/internal/domain/paging"
)

const couponColumns = `id, code, description, type, discount_value, minimum_order_amount, maximum_discount_amount,
	usage_limit, usage_limit_per_customer, starts_at, expires_at, used_count, is_active, created_at, updated_at`

var _ coupon.AdminRepository = (*CouponRepo)(nil)

type couponRow struct {
	ID                    string              `db:"id"`
	Code                  string              `db:"code"`
	Description           string              `db:"description"`
	Type                  string              `db:"type"`
	DiscountValue         decimal.Decimal     `db:"discount_value"`
	MinimumOrderAmount    decimal.Decimal     `db:"minimum_order_amount"`
	MaximumDiscountAmount decimal.NullDecimal `db:"maximum_discount_amount"`
	UsageLimit            sql.NullInt64       `db:"usage_limit"`
	UsageLimitPerCustomer sql.NullInt64       `db:"usage_limit_per_customer"`
	StartsAt              sql.NullTime        `db:"starts_at"`
	ExpiresAt             sql.NullTime        `db:"expires_at"`
	UsedCount             int                 `db:"used_count"`
	IsActive              bool                `db:"is_active"`
	CreatedAt             time.Time           `db:"created_at"`
	UpdatedAt             time.Time           `db:"updated_at"`
}

func (r couponRow) toDomain() coupon.Coupon {
	return coupon.Coupon{
		ID:                    r.ID,
		Code:                  r.Code,
		Description:           r.Description,
		Type:                  coupon.Type(r.Type),
		DiscountValue:         r.DiscountValue,
		MinimumOrderAmount:    r.MinimumOrderAmount,
		MaximumDiscountAmount: r.MaximumDiscountAmount,
		UsageLimit:            intPtr(r.UsageLimit),
		UsageLimitPerCustomer: intPtr(r.UsageLimitPerCustomer),
		StartsAt:              timePtr(r.StartsAt),
		ExpiresAt:             timePtr(r.ExpiresAt),
		UsedCount:             r.UsedCount,
		IsActive:              r.IsActive,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

type usageRow struct {
	ID             string          `db:"id"`
	CouponID       string          `db:"coupon_id"`
	UserID         sql.NullString  `db:"user_id"`
	OrderID        string          `db:"order_id"`
	DiscountAmount decimal.Decimal `db:"discount_amount"`
	UsedAt         time.Time       `db:"used_at"`
}

// CouponRepo implements coupon.AdminRepository.
type CouponRepo struct {
	q sqlx.ExtContext
}

// NewCouponRepo binds the repository to a pool or transaction.
func NewCouponRepo(q sqlx.ExtContext) *CouponRepo {
	return &CouponRepo{q: q}
}

// FindByCode looks a coupon up by its stored uppercase code.
func (r *CouponRepo) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.getBy(ctx, "code", coupon.NormalizeCode(code))
}

// GetByID returns one coupon.
func (r *CouponRepo) GetByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	return r.getBy(ctx, "id", id)
}

func (r *CouponRepo) getBy(ctx context.Context, column, value string) (*coupon.Coupon, error) {
	var row couponRow
	err := sqlx.GetContext(ctx, r.q, &row, r.q.Rebind("SELECT "+couponColumns+" FROM coupons WHERE "+column+" = ?"), value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, coupon.ErrNotFound
	case err != nil:
		return nil, errors.Wrap(err, "get coupon")
	}
	c := row.toDomain()
	return &c, nil
}

// CountCustomerUsage counts redemptions of the coupon by one user.
func (r *CouponRepo) CountCustomerUsage(ctx context.Context, couponID, userID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.q, &n, r.q.Rebind(
		"SELECT COUNT(*) FROM coupon_usage WHERE coupon_id = ? AND user_id = ?"), couponID, userID)
	if err != nil {
		return 0, errors.Wrap(err, "count coupon usage")
	}
	return n, nil
}

// RecordUsage claims one redemption and appends the usage row. The
// increment is guarded by usage_limit so concurrent checkouts cannot push
// used_count past it.
func (r *CouponRepo) RecordUsage(ctx context.Context, u *coupon.Usage) error {
	res, err := r.q.ExecContext(ctx, r.q.Rebind(`UPDATE coupons SET used_count = used_count + 1
		WHERE id = ? AND (usage_limit IS NULL OR used_count < usage_limit)`), u.CouponID)
	if err != nil {
		return errors.Wrap(err, "increment coupon usage")
	}
	if err := requireRow(res, coupon.ErrUsageLimitReached); err != nil {
		return err
	}
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(`INSERT INTO coupon_usage
		(id, coupon_id, user_id, order_id, discount_amount, used_at) VALUES (?, ?, ?, ?, ?, ?)`),
		u.ID, u.CouponID, nullString(u.UserID), u.OrderID, u.DiscountAmount, u.UsedAt,
	); err != nil {
		return errors.Wrap(err, "insert coupon usage")
	}
	return nil
}

// List returns a page of coupons, newest first.
func (r *CouponRepo) List(ctx context.Context, page paging.Request) ([]coupon.Coupon, int, error) {
	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, "SELECT COUNT(*) FROM coupons"); err != nil {
		return nil, 0, errors.Wrap(err, "count coupons")
	}
	query, args := limitOffset("SELECT "+couponColumns+" FROM coupons ORDER BY created_at DESC, id",
		nil, page.Limit(), page.Offset())
	var rows []couponRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), args...); err != nil {
		return nil, 0, errors.Wrap(err, "list coupons")
	}
	out := make([]coupon.Coupon, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, total, nil
}

// Create inserts a coupon.
func (r *CouponRepo) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.q.ExecContext(ctx, r.q.Rebind(`INSERT INTO coupons (`+couponColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.Code, c.Description, string(c.Type), c.DiscountValue, c.MinimumOrderAmount, c.MaximumDiscountAmount,
		nullInt(c.UsageLimit), nullInt(c.UsageLimitPerCustomer), nullTime(c.StartsAt), nullTime(c.ExpiresAt),
		c.UsedCount, c.IsActive, c.CreatedAt, c.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return coupon.ErrDuplicateCode
	}
	if err != nil {
		return errors.Wrap(err, "insert coupon")
	}
	return nil
}

// Upsert inserts a coupon or refreshes the definition of an existing code.
// Usage counters of an existing code are kept.
func (r *CouponRepo) Upsert(ctx context.Context, c *coupon.Coupon) error {
	query := `INSERT INTO coupons (` + couponColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	switch dialectOf(r.q) {
	case Postgres:
		query += ` ON CONFLICT (code) DO UPDATE SET description = EXCLUDED.description, type = EXCLUDED.type,
			discount_value = EXCLUDED.discount_value, minimum_order_amount = EXCLUDED.minimum_order_amount,
			is_active = EXCLUDED.is_active, updated_at = EXCLUDED.updated_at`
	default:
		query += ` ON DUPLICATE KEY UPDATE description = VALUES(description), type = VALUES(type),
			discount_value = VALUES(discount_value), minimum_order_amount = VALUES(minimum_order_amount),
			is_active = VALUES(is_active), updated_at = VALUES(updated_at)`
	}
	_, err := r.q.ExecContext(ctx, r.q.Rebind(query),
		c.ID, c.Code, c.Description, string(c.Type), c.DiscountValue, c.MinimumOrderAmount, c.MaximumDiscountAmount,
		nullInt(c.UsageLimit), nullInt(c.UsageLimitPerCustomer), nullTime(c.StartsAt), nullTime(c.ExpiresAt),
		c.UsedCount, c.IsActive, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert coupon %s", c.Code)
	}
	return nil
}

// Update replaces the coupon definition. used_count is left to RecordUsage.
func (r *CouponRepo) Update(ctx context.Context, c *coupon.Coupon) error {
	res, err := r.q.ExecContext(ctx, r.q.Rebind(`UPDATE coupons SET
		code = ?, description = ?, type = ?, discount_value = ?, minimum_order_amount = ?,
		maximum_discount_amount = ?, usage_limit = ?, usage_limit_per_customer = ?, starts_at = ?,
		expires_at = ?, is_active = ?, updated_at = ?
		WHERE id = ?`),
		c.Code, c.Description, string(c.Type), c.DiscountValue, c.MinimumOrderAmount, c.MaximumDiscountAmount,
		nullInt(c.UsageLimit), nullInt(c.UsageLimitPerCustomer), nullTime(c.StartsAt), nullTime(c.ExpiresAt),
		c.IsActive, c.UpdatedAt, c.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrDuplicateCode
		}
		return errors.Wrap(err, "update coupon")
	}
	return requireRow(res, coupon.ErrNotFound)
}

// ListUsage returns the redemptions of one coupon, newest first.
func (r *CouponRepo) ListUsage(ctx context.Context, couponID string) ([]coupon.Usage, error) {
	var rows []usageRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(`SELECT id, coupon_id, user_id, order_id, discount_amount, used_at
		FROM coupon_usage WHERE coupon_id = ? ORDER BY used_at DESC, id`), couponID); err != nil {
		return nil, errors.Wrap(err, "list coupon usage")
	}
	out := make([]coupon.Usage, len(rows))
	for i, u := range rows {
		out[i] = coupon.Usage{
			ID:             u.ID,
			CouponID:       u.CouponID,
			UserID:         u.UserID.String,
			OrderID:        u.OrderID,
			DiscountAmount: u.DiscountAmount,
			UsedAt:         u.UsedAt,
		}
	}
	return out, nil
}
