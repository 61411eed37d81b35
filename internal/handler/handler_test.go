package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/oolio-shop/internal/domain/auth"
	"github.com/xenking/oolio-shop/internal/domain/cart"
	"github.com/xenking/oolio-shop/internal/domain/dashboard"
	"github.com/xenking/oolio-shop/internal/domain/order"
	"github.com/xenking/oolio-shop/internal/domain/product"
	"github.com/xenking/oolio-shop/internal/domain/settings"
)

type fakeProducts struct {
	product.Repository

	items   map[string]*product.Product
	filters []product.Filter
}

func (f *fakeProducts) List(_ context.Context, flt product.Filter) ([]product.Product, int, error) {
	f.filters = append(f.filters, flt)
	var out []product.Product
	for _, p := range f.items {
		if flt.Status == "" || p.Status == flt.Status {
			out = append(out, *p)
		}
	}
	return out, len(out), nil
}

func (f *fakeProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := f.items[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

type fakeCart struct {
	cart.Repository

	mu     sync.Mutex
	owners []cart.Owner
}

func (f *fakeCart) Items(_ context.Context, owner cart.Owner) ([]cart.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners = append(f.owners, owner)
	return nil, nil
}

type memSettings struct {
	values map[string]string
}

func (m *memSettings) All(context.Context) (map[string]string, error) {
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

func (m *memSettings) Upsert(_ context.Context, values map[string]string) error {
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

type fakeDashboard struct{}

func (fakeDashboard) CountOrdersByStatus(context.Context) (map[order.Status]int, error) {
	return map[order.Status]int{order.StatusPending: 2, order.StatusDelivered: 1}, nil
}

func (fakeDashboard) PaidRevenue(context.Context) (decimal.Decimal, error) {
	return decimal.RequireFromString("12.5"), nil
}

func (fakeDashboard) CountLowStock(context.Context, int) (int, error) { return 3, nil }

type harness struct {
	router   http.Handler
	tokens   *auth.TokenIssuer
	products *fakeProducts
	carts    *fakeCart
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	products := &fakeProducts{items: map[string]*product.Product{
		"p-active": {ID: "p-active", Name: "Mug", Price: decimal.NewFromInt(10), StockQuantity: 4, Status: product.StatusActive},
		"p-draft":  {ID: "p-draft", Name: "Secret", Price: decimal.NewFromInt(5), Status: product.StatusDraft},
	}}
	carts := &fakeCart{}
	store := &memSettings{values: map[string]string{settings.KeyTaxRate: "0.1"}}
	provider := settings.NewProvider(store)
	tokens := auth.NewTokenIssuer([]byte("test-secret"), time.Hour)

	h := New(Services{
		Tokens:    tokens,
		Sessions:  auth.NewSessionSigner([]byte("pepper")),
		Products:  product.NewService(products, nil),
		Carts:     cart.NewService(carts, products, provider, nil),
		Settings:  settings.NewService(store, provider),
		Dashboard: dashboard.NewService(fakeDashboard{}, product.LowStockThreshold),
	}, Config{})

	return &harness{router: h.Router(), tokens: tokens, products: products, carts: carts}
}

func (h *harness) token(t *testing.T, role auth.Role) string {
	t.Helper()
	raw, _, err := h.tokens.Issue(auth.Identity{UserID: "u-" + string(role), Email: string(role) + "@shop.test", Role: role})
	require.NoError(t, err)
	return raw
}

func (h *harness) do(t *testing.T, method, path, token, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) response {
	t.Helper()
	var r response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r), rec.Body.String())
	return r
}

func TestRouter_NotFound(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/nope", "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, decode(t, rec).Success)
}

func TestAuthorization(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"Anonymous", "", http.StatusUnauthorized},
		{"Garbage", "not-a-jwt", http.StatusUnauthorized},
		{"Customer", h.token(t, auth.RoleCustomer), http.StatusForbidden},
		{"Manager", h.token(t, auth.RoleManager), http.StatusForbidden},
		{"Admin", h.token(t, auth.RoleAdmin), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, http.MethodGet, "/api/settings", tt.token, "")
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Equal(t, tt.want == http.StatusOK, decode(t, rec).Success)
		})
	}
}

func TestProducts_Visibility(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/products/p-draft", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/products/p-draft", h.token(t, auth.RoleManager), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/products?status=draft", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, h.products.filters)
	assert.Equal(t, product.StatusActive, h.products.filters[len(h.products.filters)-1].Status)

	var data struct {
		Items []struct {
			ID             string  `json:"id"`
			EffectivePrice float64 `json:"effective_price"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &data))
	require.Len(t, data.Items, 1)
	assert.Equal(t, "p-active", data.Items[0].ID)
	assert.Equal(t, 10.0, data.Items[0].EffectivePrice)
}

func TestProducts_CreateRequiresPermission(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/products", h.token(t, auth.RoleStaff), `{"name":"x"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCart_GuestSessionCookie(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/cart", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var issued *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			issued = c
		}
	}
	require.NotNil(t, issued)
	assert.True(t, issued.HttpOnly)

	rec = h.do(t, http.MethodGet, "/api/cart", "", "", issued)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies())

	require.Len(t, h.carts.owners, 2)
	assert.Equal(t, h.carts.owners[0], h.carts.owners[1])
	assert.NotEmpty(t, h.carts.owners[0].SessionID)

	forged := &http.Cookie{Name: sessionCookie, Value: issued.Value + "00"}
	rec = h.do(t, http.MethodGet, "/api/cart", "", "", forged)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Result().Cookies())
}

func TestCart_SignedInUsesUserID(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/cart", h.token(t, auth.RoleCustomer), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, h.carts.owners, 1)
	assert.Equal(t, cart.Owner{UserID: "u-customer"}, h.carts.owners[0])
}

func TestBindJSON_ValidationFields(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/cart/items", "", `{"quantity":0}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	r := decode(t, rec)
	assert.False(t, r.Success)
	var fields []string
	for _, fe := range r.Errors {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{"product_id", "quantity"}, fields)

	rec = h.do(t, http.MethodPost, "/api/cart/items", "", `{`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettings_Update(t *testing.T) {
	h := newHarness(t)
	admin := h.token(t, auth.RoleAdmin)

	rec := h.do(t, http.MethodPut, "/api/settings", admin, `{"tax_rate":"-1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "tax_rate", decode(t, rec).Errors[0].Field)

	rec = h.do(t, http.MethodPut, "/api/settings", admin, `{"tax_rate":"0.2","store_name":"Shop"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var values map[string]string
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &values))
	assert.Equal(t, "0.2", values["tax_rate"])
	assert.Equal(t, "Shop", values["store_name"])
}

func TestDashboard(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/admin/dashboard", h.token(t, auth.RoleStaff), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"revenue":12.50`)

	var data struct {
		OrdersByStatus   map[string]int `json:"orders_by_status"`
		TotalOrders      int            `json:"total_orders"`
		LowStockProducts int            `json:"low_stock_products"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &data))
	assert.Equal(t, 3, data.TotalOrders)
	assert.Equal(t, 3, data.LowStockProducts)
	assert.Len(t, data.OrdersByStatus, len(order.Statuses))
	assert.Zero(t, data.OrdersByStatus["shipped"])
}

func TestPlaceOrderBody_ToRequest(t *testing.T) {
	shipping := decimal.NewFromInt(3)
	body := placeOrderBody{
		Items:        []orderLineBody{{ProductID: "p1", Quantity: 2}},
		ShippingCost: &shipping,
	}

	tests := []struct {
		name         string
		id           auth.Identity
		signedIn     bool
		wantUser     string
		wantEmail    string
		wantOverride bool
	}{
		{"Guest", auth.Identity{}, false, "", "", false},
		{"Customer", auth.Identity{UserID: "u1", Email: "c@shop.test", Role: auth.RoleCustomer}, true, "u1", "c@shop.test", false},
		{"Staff", auth.Identity{UserID: "u2", Email: "s@shop.test", Role: auth.RoleStaff}, true, "u2", "s@shop.test", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := body.toRequest(tt.id, tt.signedIn)
			assert.Equal(t, tt.wantUser, req.Customer.UserID)
			assert.Equal(t, tt.wantEmail, req.Customer.Email)
			assert.Equal(t, tt.wantOverride, req.ShippingOverride != nil)
			assert.Equal(t, "cash_on_delivery", req.PaymentMethod)
			require.Len(t, req.Items, 1)
			assert.Equal(t, 2, req.Items[0].Quantity)
		})
	}
}
