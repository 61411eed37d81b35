package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-shop/internal/domain/cart"
)

const cartSelect = `SELECT c.id, c.user_id, c.session_id, c.product_id, c.variation_id, c.quantity,
	c.attributes, c.price, c.created_at, c.updated_at, p.name AS product_name
	FROM cart_items c JOIN products p ON p.id = c.product_id`

var _ cart.Repository = (*CartRepo)(nil)

type cartRow struct {
	ID          string                      `db:"id"`
	UserID      sql.NullString              `db:"user_id"`
	SessionID   sql.NullString              `db:"session_id"`
	ProductID   string                      `db:"product_id"`
	VariationID sql.NullString              `db:"variation_id"`
	Quantity    int                         `db:"quantity"`
	Attributes  jsonText[map[string]string] `db:"attributes"`
	Price       decimal.Decimal             `db:"price"`
	CreatedAt   time.Time                   `db:"created_at"`
	UpdatedAt   time.Time                   `db:"updated_at"`
	ProductName string                      `db:"product_name"`
}

func (r cartRow) toDomain() cart.Item {
	return cart.Item{
		ID:          r.ID,
		Owner:       cart.Owner{UserID: r.UserID.String, SessionID: r.SessionID.String},
		ProductID:   r.ProductID,
		VariationID: r.VariationID.String,
		ProductName: r.ProductName,
		Quantity:    r.Quantity,
		Attributes:  r.Attributes.V,
		Price:       r.Price,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// ownerClause matches rows of exactly one owner.
func ownerClause(o cart.Owner) (string, any) {
	if o.UserID != "" {
		return "c.user_id = ?", o.UserID
	}
	return "c.session_id = ?", o.SessionID
}

// CartRepo implements cart.Repository.
type CartRepo struct {
	q sqlx.ExtContext
}

// NewCartRepo binds the repository to a pool or transaction.
func NewCartRepo(q sqlx.ExtContext) *CartRepo {
	return &CartRepo{q: q}
}

// Items returns the owner's cart lines, oldest first.
func (r *CartRepo) Items(ctx context.Context, owner cart.Owner) ([]cart.Item, error) {
	clause, arg := ownerClause(owner)
	var rows []cartRow
	if err := sqlx.SelectContext(ctx, r.q, &rows,
		r.q.Rebind(cartSelect+" WHERE "+clause+" ORDER BY c.created_at, c.id"), arg,
	); err != nil {
		return nil, errors.Wrap(err, "list cart items")
	}
	out := make([]cart.Item, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// Get returns one line of the owner's cart.
func (r *CartRepo) Get(ctx context.Context, owner cart.Owner, itemID string) (*cart.Item, error) {
	clause, arg := ownerClause(owner)
	return r.one(ctx, cartSelect+" WHERE c.id = ? AND "+clause, itemID, arg)
}

// FindLine returns the line holding the same product and variation.
func (r *CartRepo) FindLine(ctx context.Context, owner cart.Owner, productID, variationID string) (*cart.Item, error) {
	clause, arg := ownerClause(owner)
	query := cartSelect + " WHERE " + clause + " AND c.product_id = ?"
	args := []any{arg, productID}
	if variationID == "" {
		query += " AND c.variation_id IS NULL"
	} else {
		query += " AND c.variation_id = ?"
		args = append(args, variationID)
	}
	return r.one(ctx, query, args...)
}

func (r *CartRepo) one(ctx context.Context, query string, args ...any) (*cart.Item, error) {
	var row cartRow
	err := sqlx.GetContext(ctx, r.q, &row, r.q.Rebind(query), args...)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, cart.ErrItemNotFound
	case err != nil:
		return nil, errors.Wrap(err, "get cart item")
	}
	item := row.toDomain()
	return &item, nil
}

// Insert adds a cart line.
func (r *CartRepo) Insert(ctx context.Context, item *cart.Item) error {
	attrs := item.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	_, err := r.q.ExecContext(ctx, r.q.Rebind(`INSERT INTO cart_items
		(id, user_id, session_id, product_id, variation_id, quantity, attributes, price, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		item.ID, nullString(item.Owner.UserID), nullString(item.Owner.SessionID), item.ProductID,
		nullString(item.VariationID), item.Quantity, jsonText[map[string]string]{V: attrs}, item.Price,
		item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "insert cart item")
	}
	return nil
}

// UpdateQuantity sets the quantity of an owner's line.
func (r *CartRepo) UpdateQuantity(ctx context.Context, owner cart.Owner, itemID string, qty int, at time.Time) error {
	column, arg := ownerColumn(owner)
	res, err := r.q.ExecContext(ctx, r.q.Rebind(
		"UPDATE cart_items SET quantity = ?, updated_at = ? WHERE id = ? AND "+column+" = ?"),
		qty, at, itemID, arg)
	if err != nil {
		return errors.Wrap(err, "update cart quantity")
	}
	return requireRow(res, cart.ErrItemNotFound)
}

// MoveToUser turns a guest line into a user line.
func (r *CartRepo) MoveToUser(ctx context.Context, itemID, userID string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, r.q.Rebind(
		"UPDATE cart_items SET user_id = ?, session_id = NULL, updated_at = ? WHERE id = ?"),
		userID, at, itemID)
	if err != nil {
		return errors.Wrap(err, "move cart item")
	}
	return requireRow(res, cart.ErrItemNotFound)
}

// Delete removes one line of the owner's cart.
func (r *CartRepo) Delete(ctx context.Context, owner cart.Owner, itemID string) error {
	column, arg := ownerColumn(owner)
	res, err := r.q.ExecContext(ctx, r.q.Rebind(
		"DELETE FROM cart_items WHERE id = ? AND "+column+" = ?"), itemID, arg)
	if err != nil {
		return errors.Wrap(err, "delete cart item")
	}
	return requireRow(res, cart.ErrItemNotFound)
}

// Clear removes every line of the owner's cart.
func (r *CartRepo) Clear(ctx context.Context, owner cart.Owner) error {
	column, arg := ownerColumn(owner)
	_, err := r.q.ExecContext(ctx, r.q.Rebind("DELETE FROM cart_items WHERE "+column+" = ?"), arg)
	if err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

// ownerColumn is ownerClause without the table alias, for DELETE.
func ownerColumn(o cart.Owner) (string, any) {
	if o.UserID != "" {
		return "user_id", o.UserID
	}
	return "session_id", o.SessionID
}
