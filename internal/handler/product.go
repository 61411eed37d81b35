package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-shop/internal/domain/auth"
	"github.com/xenking/oolio-shop/internal/domain/product"
)

type optionView struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type variationView struct {
	ID             string              `json:"id"`
	SKU            string              `json:"sku,omitempty"`
	Price          amount              `json:"price"`
	SalePrice      *amount             `json:"sale_price,omitempty"`
	EffectivePrice amount              `json:"effective_price"`
	StockQuantity  int                 `json:"stock_quantity"`
	StockStatus    product.StockStatus `json:"stock_status"`
	Options        []optionView        `json:"options"`
}

type productView struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Slug           string              `json:"slug"`
	Description    string              `json:"description"`
	Category       string              `json:"category"`
	SKU            string              `json:"sku,omitempty"`
	Price          amount              `json:"price"`
	SalePrice      *amount             `json:"sale_price,omitempty"`
	EffectivePrice amount              `json:"effective_price"`
	StockQuantity  int                 `json:"stock_quantity"`
	StockStatus    product.StockStatus `json:"stock_status"`
	Status         product.Status      `json:"status"`
	Variations     []variationView     `json:"variations"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func optionalAmount(d decimal.NullDecimal) *amount {
	if !d.Valid {
		return nil
	}
	a := amount(d.Decimal)
	return &a
}

func toProductView(p *product.Product) productView {
	v := productView{
		ID:             p.ID,
		Name:           p.Name,
		Slug:           p.Slug,
		Description:    p.Description,
		Category:       p.Category,
		SKU:            p.SKU,
		Price:          amount(p.Price),
		SalePrice:      optionalAmount(p.SalePrice),
		EffectivePrice: amount(p.EffectivePrice()),
		StockQuantity:  p.StockQuantity,
		StockStatus:    p.StockStatus(),
		Status:         p.Status,
		Variations:     make([]variationView, len(p.Variations)),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
	for i := range p.Variations {
		pv := &p.Variations[i]
		opts := make([]optionView, len(pv.Options))
		for j, o := range pv.Options {
			opts[j] = optionView{Type: o.Type, Value: o.Value}
		}
		v.Variations[i] = variationView{
			ID:             pv.ID,
			SKU:            pv.SKU,
			Price:          amount(pv.Price),
			SalePrice:      optionalAmount(pv.SalePrice),
			EffectivePrice: amount(pv.EffectivePrice()),
			StockQuantity:  pv.StockQuantity,
			StockStatus:    pv.StockStatus(),
			Options:        opts,
		}
	}
	return v
}

type variationBody struct {
	SKU           string              `json:"sku"`
	Price         decimal.Decimal     `json:"price"`
	SalePrice     decimal.NullDecimal `json:"sale_price"`
	StockQuantity int                 `json:"stock_quantity" validate:"gte=0"`
	Options       []optionView        `json:"options" validate:"dive"`
}

type productBody struct {
	Name          string              `json:"name" validate:"required"`
	Slug          string              `json:"slug"`
	Description   string              `json:"description"`
	Category      string              `json:"category"`
	SKU           string              `json:"sku"`
	Price         decimal.Decimal     `json:"price"`
	SalePrice     decimal.NullDecimal `json:"sale_price"`
	StockQuantity int                 `json:"stock_quantity" validate:"gte=0"`
	Status        product.Status      `json:"status" validate:"omitempty,oneof=active inactive draft"`
	Variations    []variationBody     `json:"variations" validate:"dive"`
}

func (b productBody) toDomain() *product.Product {
	p := &product.Product{
		Name:          b.Name,
		Slug:          b.Slug,
		Description:   b.Description,
		Category:      b.Category,
		SKU:           b.SKU,
		Price:         b.Price,
		SalePrice:     b.SalePrice,
		StockQuantity: b.StockQuantity,
		Status:        b.Status,
	}
	for _, vb := range b.Variations {
		v := product.Variation{
			SKU:           vb.SKU,
			Price:         vb.Price,
			SalePrice:     vb.SalePrice,
			StockQuantity: vb.StockQuantity,
		}
		for _, o := range vb.Options {
			v.Options = append(v.Options, product.Option{Type: o.Type, Value: o.Value})
		}
		p.Variations = append(p.Variations, v)
	}
	return p
}

// canManageCatalog reports whether the caller sees unpublished products.
func canManageCatalog(c *gin.Context) bool {
	id, ok := identity(c)
	return ok && id.Can(auth.PermManageProducts)
}

func (h *Handler) listProducts(c *gin.Context) {
	f := product.Filter{
		Category: c.Query("category"),
		Search:   c.Query("search"),
		Status:   product.Status(c.Query("status")),
		Page:     pageOf(c),
	}
	if !canManageCatalog(c) {
		f.Status = product.StatusActive
	}
	items, meta, err := h.svc.Products.List(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]productView, len(items))
	for i := range items {
		out[i] = toProductView(&items[i])
	}
	respondList(c, out, meta)
}

func (h *Handler) getProduct(c *gin.Context) {
	p, err := h.svc.Products.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if p.Status != product.StatusActive && !canManageCatalog(c) {
		fail(c, product.ErrNotFound)
		return
	}
	respond(c, http.StatusOK, "", toProductView(p))
}

func (h *Handler) createProduct(c *gin.Context) {
	var body productBody
	if err := h.bindJSON(c, &body); err != nil {
		fail(c, err)
		return
	}
	p := body.toDomain()
	if err := h.svc.Products.Create(c.Request.Context(), p); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "Product created", toProductView(p))
}

func (h *Handler) updateProduct(c *gin.Context) {
	var body productBody
	if err := h.bindJSON(c, &body); err != nil {
		fail(c, err)
		return
	}
	p := body.toDomain()
	p.ID = c.Param("id")
	if err := h.svc.Products.Update(c.Request.Context(), p); err != nil {
		fail(c, err)
		return
	}
	updated, err := h.svc.Products.Get(c.Request.Context(), p.ID)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Product updated", toProductView(updated))
}

func (h *Handler) deleteProduct(c *gin.Context) {
	if err := h.svc.Products.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Product deactivated", nil)
}
