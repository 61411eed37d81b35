package product

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/oolio-shop/internal/apperr"
	"github.com/xenking/oolio-shop/internal/domain/paging"
)

// Service manages the catalog.
type Service struct {
	repo  Repository
	store Store
	now   func() time.Time
}

// NewService creates a catalog Service. repo serves reads and single-row
// writes, store runs multi-table writes.
func NewService(repo Repository, store Store) *Service {
	return &Service{repo: repo, store: store, now: time.Now}
}

// List returns a page of products matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]Product, paging.Meta, error) {
	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, paging.Meta{}, errors.Wrap(err, "list products")
	}
	return items, paging.NewMeta(f.Page, total), nil
}

// Get returns a product with its variations.
func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}
	return p, nil
}

// Create stores a product together with its variations in one transaction.
func (s *Service) Create(ctx context.Context, p *Product) error {
	if p.Slug == "" {
		p.Slug = Slugify(p.Name)
	}
	if p.Status == "" {
		p.Status = StatusActive
	}
	if err := validate(p); err != nil {
		return err
	}

	now := s.now().UTC()
	p.ID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now
	for i := range p.Variations {
		v := &p.Variations[i]
		v.ID = uuid.NewString()
		v.ProductID = p.ID
	}

	err := s.store.InCatalogTx(ctx, func(ctx context.Context, repo Repository) error {
		return repo.Create(ctx, p)
	})
	if err != nil {
		return errors.Wrap(err, "create product")
	}
	return nil
}

// Update replaces the base fields of a product. Variations are left as they
// are.
func (s *Service) Update(ctx context.Context, p *Product) error {
	existing, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return errors.Wrap(err, "get product")
	}
	if p.Slug == "" {
		p.Slug = existing.Slug
	}
	if p.Status == "" {
		p.Status = existing.Status
	}
	if err := validate(p); err != nil {
		return err
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, p); err != nil {
		return errors.Wrap(err, "update product")
	}
	return nil
}

// Deactivate hides a product from the storefront. Products are never deleted
// since order items reference them.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	if err := s.repo.SetStatus(ctx, id, StatusInactive, s.now().UTC()); err != nil {
		return errors.Wrap(err, "deactivate product")
	}
	return nil
}

func validate(p *Product) error {
	var fields []apperr.FieldError
	if strings.TrimSpace(p.Name) == "" {
		fields = append(fields, apperr.FieldError{Field: "name", Message: "is required"})
	}
	if p.Slug == "" {
		fields = append(fields, apperr.FieldError{Field: "slug", Message: "is required"})
	}
	if p.Price.IsNegative() {
		fields = append(fields, apperr.FieldError{Field: "price", Message: "must not be negative"})
	}
	if p.StockQuantity < 0 {
		fields = append(fields, apperr.FieldError{Field: "stock_quantity", Message: "must not be negative"})
	}
	if !p.Status.Valid() {
		fields = append(fields, apperr.FieldError{Field: "status", Message: "must be one of active, inactive, draft"})
	}
	for _, v := range p.Variations {
		if v.Price.IsNegative() || v.StockQuantity < 0 {
			fields = append(fields, apperr.FieldError{Field: "variations", Message: "price and stock must not be negative"})
			break
		}
	}
	if len(fields) > 0 {
		return apperr.Validation("Invalid product", fields...)
	}
	return nil
}

// Slugify derives a URL slug from a product name.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
