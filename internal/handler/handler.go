// Package handler exposes the shop over a JSON REST API built on gin.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/xenking/oolio-shop/internal/domain/auth"
	"github.com/xenking/oolio-shop/internal/domain/cart"
	"github.com/xenking/oolio-shop/internal/domain/coupon"
	"github.com/xenking/oolio-shop/internal/domain/dashboard"
	"github.com/xenking/oolio-shop/internal/domain/order"
	"github.com/xenking/oolio-shop/internal/domain/product"
	"github.com/xenking/oolio-shop/internal/domain/settings"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// SessionCookieSecure marks the guest session cookie Secure.
	SessionCookieSecure bool
	// SessionTTL is the lifetime of the guest session cookie.
	SessionTTL time.Duration
	// IdempotencyTimeout bounds the store calls made around a request.
	IdempotencyTimeout time.Duration
}

// IdempotencyStore remembers responses by Idempotency-Key.
type IdempotencyStore interface {
	// Begin claims key. When the key is already known the stored state is
	// returned instead.
	Begin(ctx context.Context, key, requestHash string) (*IdempotentResult, bool, error)
	Complete(ctx context.Context, key string, status int, body []byte) error
	Release(ctx context.Context, key string) error
}

// IdempotentResult is the stored state of a known key. Done is false while
// the first request is still running.
type IdempotentResult struct {
	Done        bool
	RequestHash string
	Status      int
	Body        []byte
}

// Services are the domain collaborators behind the routes.
type Services struct {
	Auth      *auth.Service
	Tokens    *auth.TokenIssuer
	Sessions  *auth.SessionSigner
	Products  *product.Service
	Carts     *cart.Service
	Coupons   *coupon.Service
	Validator coupon.Validator
	Orders    *order.Service
	Machine   *order.StatusMachine
	Settings  *settings.Service
	Dashboard *dashboard.Service
	// Idempotency is optional.
	Idempotency IdempotencyStore
}

// Handler serves the REST API.
type Handler struct {
	svc      Services
	cfg      Config
	validate *validatorv10.Validate
}

// New creates a Handler.
func New(svc Services, cfg Config) *Handler {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 30 * 24 * time.Hour
	}
	if cfg.IdempotencyTimeout == 0 {
		cfg.IdempotencyTimeout = 5 * time.Second
	}
	return &Handler{svc: svc, cfg: cfg, validate: newValidator()}
}

// Router builds the gin engine with every route under /api.
func (h *Handler) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(labelRoute(), h.authenticate())
	r.NoRoute(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusNotFound, envelope{Message: "Route not found"})
	})

	api := r.Group("/api")

	a := api.Group("/auth")
	a.POST("/register", h.register)
	a.POST("/login", h.login)
	a.POST("/forgot-password", h.forgotPassword)
	a.POST("/reset-password", h.resetPassword)
	a.GET("/me", requireAuth(), h.me)

	p := api.Group("/products")
	p.GET("", h.listProducts)
	p.GET("/:id", h.getProduct)
	p.POST("", requirePerm(auth.PermManageProducts), h.createProduct)
	p.PUT("/:id", requirePerm(auth.PermManageProducts), h.updateProduct)
	p.DELETE("/:id", requirePerm(auth.PermManageProducts), h.deleteProduct)

	ct := api.Group("/cart", h.cartOwner())
	ct.GET("", h.getCart)
	ct.POST("/items", h.addCartItem)
	ct.PUT("/items/:id", h.updateCartItem)
	ct.DELETE("/items/:id", h.removeCartItem)
	ct.DELETE("", h.clearCart)

	cp := api.Group("/coupons")
	cp.POST("/validate", h.cartOwner(), h.validateCoupon)
	cp.GET("", requirePerm(auth.PermViewCoupons), h.listCoupons)
	cp.POST("", requirePerm(auth.PermManageCoupons), h.createCoupon)
	cp.PUT("/:id", requirePerm(auth.PermManageCoupons), h.updateCoupon)
	cp.DELETE("/:id", requirePerm(auth.PermManageCoupons), h.deleteCoupon)
	cp.GET("/:id/usage", requirePerm(auth.PermViewCoupons), h.couponUsage)

	o := api.Group("/orders")
	o.POST("", h.cartOwner(), h.idempotent(), h.placeOrder)
	o.GET("", requireAuth(), h.listOrders)
	o.POST("/bulk-status", requirePerm(auth.PermUpdateOrderStatus), h.bulkStatus)
	o.GET("/:id", requireAuth(), h.getOrder)
	o.POST("/:id/cancel", requireAuth(), h.cancelOrder)
	o.PUT("/:id/status", requirePerm(auth.PermUpdateOrderStatus), h.updateOrderStatus)
	o.POST("/:id/payment", requirePerm(auth.PermManagePayments), h.confirmPayment)

	s := api.Group("/settings", requirePerm(auth.PermManageSettings))
	s.GET("", h.getSettings)
	s.PUT("", h.updateSettings)

	api.GET("/admin/dashboard", requirePerm(auth.PermViewDashboard), h.dashboard)

	return r
}
