package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-shop/internal/domain/product"
)

const productColumns = `id, name, slug, description, category, sku, price, sale_price,
	stock_quantity, status, created_at, updated_at`

const variationColumns = `id, product_id, sku, price, sale_price, stock_quantity`

var (
	_ product.Repository      = (*ProductRepo)(nil)
	_ product.StockRepository = (*ProductRepo)(nil)
)

type productRow struct {
	ID            string              `db:"id"`
	Name          string              `db:"name"`
	Slug          string              `db:"slug"`
	Description   string              `db:"description"`
	Category      string              `db:"category"`
	SKU           sql.NullString      `db:"sku"`
	Price         decimal.Decimal     `db:"price"`
	SalePrice     decimal.NullDecimal `db:"sale_price"`
	StockQuantity int                 `db:"stock_quantity"`
	Status        string              `db:"status"`
	CreatedAt     time.Time           `db:"created_at"`
	UpdatedAt     time.Time           `db:"updated_at"`
}

func (r productRow) toDomain() product.Product {
	return product.Product{
		ID:            r.ID,
		Name:          r.Name,
		Slug:          r.Slug,
		Description:   r.Description,
		Category:      r.Category,
		SKU:           r.SKU.String,
		Price:         r.Price,
		SalePrice:     r.SalePrice,
		StockQuantity: r.StockQuantity,
		Status:        product.Status(r.Status),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

type variationRow struct {
	ID            string              `db:"id"`
	ProductID     string              `db:"product_id"`
	SKU           sql.NullString      `db:"sku"`
	Price         decimal.Decimal     `db:"price"`
	SalePrice     decimal.NullDecimal `db:"sale_price"`
	StockQuantity int                 `db:"stock_quantity"`
}

type optionRow struct {
	VariationID string `db:"variation_id"`
	ID          string `db:"id"`
	TypeID      string `db:"type_id"`
	TypeName    string `db:"type_name"`
	Value       string `db:"value"`
}

// ProductRepo implements the catalog and stock repositories.
type ProductRepo struct {
	q sqlx.ExtContext
}

// NewProductRepo binds the repository to a pool or transaction.
func NewProductRepo(q sqlx.ExtContext) *ProductRepo {
	return &ProductRepo{q: q}
}

// List returns one page of products matching f and the total match count.
func (r *ProductRepo) List(ctx context.Context, f product.Filter) ([]product.Product, int, error) {
	var (
		where []string
		args  []any
	)
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, "(LOWER(name) LIKE ? OR LOWER(description) LIKE ?)")
		pattern := "%" + strings.ToLower(s) + "%"
		args = append(args, pattern, pattern)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, r.q.Rebind("SELECT COUNT(*) FROM products"+clause), args...); err != nil {
		return nil, 0, errors.Wrap(err, "count products")
	}

	query, args := limitOffset("SELECT "+productColumns+" FROM products"+clause+" ORDER BY created_at DESC, id",
		args, f.Page.Limit(), f.Page.Offset())
	var rows []productRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), args...); err != nil {
		return nil, 0, errors.Wrap(err, "list products")
	}

	products := make([]product.Product, len(rows))
	ids := make([]string, len(rows))
	for i, row := range rows {
		products[i] = row.toDomain()
		ids[i] = row.ID
	}
	variations, err := r.variations(ctx, ids, false)
	if err != nil {
		return nil, 0, err
	}
	for i := range products {
		products[i].Variations = variations[products[i].ID]
	}
	return products, total, nil
}

// GetByID returns the product with its variations.
func (r *ProductRepo) GetByID(ctx context.Context, id string) (*product.Product, error) {
	return r.get(ctx, id, false)
}

// LockForUpdate locks the product and its variation rows until the
// surrounding transaction ends.
func (r *ProductRepo) LockForUpdate(ctx context.Context, id string) (*product.Product, error) {
	return r.get(ctx, id, true)
}

func (r *ProductRepo) get(ctx context.Context, id string, lock bool) (*product.Product, error) {
	query := "SELECT " + productColumns + " FROM products WHERE id = ?"
	if lock {
		query += " FOR UPDATE"
	}
	var row productRow
	err := sqlx.GetContext(ctx, r.q, &row, r.q.Rebind(query), id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, product.ErrNotFound
	case err != nil:
		return nil, errors.Wrapf(err, "get product %s", id)
	}

	p := row.toDomain()
	variations, err := r.variations(ctx, []string{id}, lock)
	if err != nil {
		return nil, err
	}
	p.Variations = variations[id]
	return &p, nil
}

// variations loads variations with their options, grouped by product id.
func (r *ProductRepo) variations(ctx context.Context, productIDs []string, lock bool) (map[string][]product.Variation, error) {
	out := make(map[string][]product.Variation, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	query := "SELECT " + variationColumns + " FROM product_variations WHERE product_id IN (?) ORDER BY created_at, id"
	if lock {
		query += " FOR UPDATE"
	}
	query, args, err := sqlx.In(query, productIDs)
	if err != nil {
		return nil, errors.Wrap(err, "expand variation query")
	}
	var rows []variationRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "list variations")
	}
	if len(rows) == 0 {
		return out, nil
	}

	variationIDs := make([]string, len(rows))
	for i, row := range rows {
		variationIDs[i] = row.ID
	}
	options, err := r.options(ctx, variationIDs)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		out[row.ProductID] = append(out[row.ProductID], product.Variation{
			ID:            row.ID,
			ProductID:     row.ProductID,
			SKU:           row.SKU.String,
			Price:         row.Price,
			SalePrice:     row.SalePrice,
			StockQuantity: row.StockQuantity,
			Options:       options[row.ID],
		})
	}
	return out, nil
}

func (r *ProductRepo) options(ctx context.Context, variationIDs []string) (map[string][]product.Option, error) {
	query, args, err := sqlx.In(`SELECT vc.variation_id, o.id, o.type_id, t.name AS type_name, o.value
		FROM variation_combinations vc
		JOIN variation_options o ON o.id = vc.option_id
		JOIN variation_types t ON t.id = o.type_id
		WHERE vc.variation_id IN (?)
		ORDER BY t.name, o.value`, variationIDs)
	if err != nil {
		return nil, errors.Wrap(err, "expand option query")
	}
	var rows []optionRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "list variation options")
	}
	out := make(map[string][]product.Option, len(variationIDs))
	for _, row := range rows {
		out[row.VariationID] = append(out[row.VariationID], product.Option{
			ID:     row.ID,
			TypeID: row.TypeID,
			Type:   row.TypeName,
			Value:  row.Value,
		})
	}
	return out, nil
}

// Create inserts the product, its variations and their option links. Types
// and options are created on first use.
func (r *ProductRepo) Create(ctx context.Context, p *product.Product) error {
	_, err := r.q.ExecContext(ctx, r.q.Rebind(`INSERT INTO products
		(id, name, slug, description, category, sku, price, sale_price, stock_quantity, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.Name, p.Slug, p.Description, p.Category, nullString(p.SKU), p.Price, p.SalePrice,
		p.StockQuantity, string(p.Status), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return product.ErrDuplicate
		}
		return errors.Wrap(err, "insert product")
	}

	for i := range p.Variations {
		v := &p.Variations[i]
		_, err := r.q.ExecContext(ctx, r.q.Rebind(`INSERT INTO product_variations
			(id, product_id, sku, price, sale_price, stock_quantity, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`),
			v.ID, p.ID, nullString(v.SKU), v.Price, v.SalePrice, v.StockQuantity, p.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return product.ErrDuplicate
			}
			return errors.Wrapf(err, "insert variation %s", v.ID)
		}
		for j := range v.Options {
			o := &v.Options[j]
			if err := r.ensureOption(ctx, o); err != nil {
				return err
			}
			if _, err := r.q.ExecContext(ctx,
				r.q.Rebind("INSERT INTO variation_combinations (variation_id, option_id) VALUES (?, ?)"),
				v.ID, o.ID,
			); err != nil {
				return errors.Wrap(err, "link variation option")
			}
		}
	}
	return nil
}

// ensureOption fills in o.TypeID and o.ID, inserting the type or option when
// they do not exist yet.
func (r *ProductRepo) ensureOption(ctx context.Context, o *product.Option) error {
	if o.TypeID == "" {
		err := sqlx.GetContext(ctx, r.q, &o.TypeID, r.q.Rebind("SELECT id FROM variation_types WHERE name = ?"), o.Type)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			o.TypeID = uuid.NewString()
			if _, err := r.q.ExecContext(ctx,
				r.q.Rebind("INSERT INTO variation_types (id, name) VALUES (?, ?)"), o.TypeID, o.Type,
			); err != nil {
				return errors.Wrapf(err, "insert variation type %q", o.Type)
			}
		case err != nil:
			return errors.Wrap(err, "find variation type")
		}
	}

	err := sqlx.GetContext(ctx, r.q, &o.ID,
		r.q.Rebind("SELECT id FROM variation_options WHERE type_id = ? AND value = ?"), o.TypeID, o.Value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		o.ID = uuid.NewString()
		if _, err := r.q.ExecContext(ctx,
			r.q.Rebind("INSERT INTO variation_options (id, type_id, value) VALUES (?, ?, ?)"), o.ID, o.TypeID, o.Value,
		); err != nil {
			return errors.Wrapf(err, "insert variation option %q", o.Value)
		}
	case err != nil:
		return errors.Wrap(err, "find variation option")
	}
	return nil
}

// Update replaces the base product columns.
func (r *ProductRepo) Update(ctx context.Context, p *product.Product) error {
	res, err := r.q.ExecContext(ctx, r.q.Rebind(`UPDATE products SET
		name = ?, slug = ?, description = ?, category = ?, sku = ?, price = ?, sale_price = ?,
		stock_quantity = ?, status = ?, updated_at = ?
		WHERE id = ?`),
		p.Name, p.Slug, p.Description, p.Category, nullString(p.SKU), p.Price, p.SalePrice,
		p.StockQuantity, string(p.Status), p.UpdatedAt, p.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return product.ErrDuplicate
		}
		return errors.Wrap(err, "update product")
	}
	return requireRow(res, product.ErrNotFound)
}

// SetStatus changes the product status.
func (r *ProductRepo) SetStatus(ctx context.Context, id string, status product.Status, at time.Time) error {
	res, err := r.q.ExecContext(ctx,
		r.q.Rebind("UPDATE products SET status = ?, updated_at = ? WHERE id = ?"), string(status), at, id)
	if err != nil {
		return errors.Wrap(err, "set product status")
	}
	return requireRow(res, product.ErrNotFound)
}

// DecrementStock subtracts qty when enough stock is left. It reports false
// when the guard rejected the update.
func (r *ProductRepo) DecrementStock(ctx context.Context, productID, variationID string, qty int) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if variationID == "" {
		res, err = r.q.ExecContext(ctx, r.q.Rebind(
			"UPDATE products SET stock_quantity = stock_quantity - ? WHERE id = ? AND stock_quantity >= ?"),
			qty, productID, qty)
	} else {
		res, err = r.q.ExecContext(ctx, r.q.Rebind(
			"UPDATE product_variations SET stock_quantity = stock_quantity - ? WHERE id = ? AND product_id = ? AND stock_quantity >= ?"),
			qty, variationID, productID, qty)
	}
	if err != nil {
		return false, errors.Wrap(err, "decrement stock")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n > 0, nil
}

// RestoreStock adds qty back to the product or variation row.
func (r *ProductRepo) RestoreStock(ctx context.Context, productID, variationID string, qty int) error {
	var err error
	if variationID == "" {
		_, err = r.q.ExecContext(ctx, r.q.Rebind(
			"UPDATE products SET stock_quantity = stock_quantity + ? WHERE id = ?"), qty, productID)
	} else {
		_, err = r.q.ExecContext(ctx, r.q.Rebind(
			"UPDATE product_variations SET stock_quantity = stock_quantity + ? WHERE id = ? AND product_id = ?"),
			qty, variationID, productID)
	}
	if err != nil {
		return errors.Wrap(err, "restore stock")
	}
	return nil
}

// requireRow maps zero affected rows to notFound.
func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound
	}
	return nil
}
