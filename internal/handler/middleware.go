package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/oolio-shop/internal/apperr"
	"github.com/xenking/oolio-shop/internal/domain/auth"
	"github.com/xenking/oolio-shop/internal/domain/cart"
)

const (
	sessionCookie = "shop_session"
	ownerKey      = "cart_owner"
)

// labelRoute names the request span and metrics after the matched route
// template instead of the raw path.
func labelRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		trace.SpanFromContext(ctx).SetName(c.Request.Method + " " + route)
		if labeler, ok := otelhttp.LabelerFromContext(ctx); ok {
			labeler.Add(attribute.String("http.route", route))
		}
		c.Next()
	}
}

// authenticate resolves the bearer token, if any. A present but invalid
// token is rejected; no token means an anonymous request.
func (h *Handler) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			fail(c, auth.ErrInvalidToken)
			return
		}
		id, err := h.svc.Tokens.Verify(strings.TrimSpace(raw))
		if err != nil {
			fail(c, err)
			return
		}
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

func identity(c *gin.Context) (auth.Identity, bool) {
	return auth.IdentityFrom(c.Request.Context())
}

// requireAuth rejects anonymous requests.
func requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := identity(c); !ok {
			fail(c, apperr.Unauthorized("Authentication required"))
			return
		}
		c.Next()
	}
}

// requirePerm rejects callers lacking perm.
func requirePerm(perm auth.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identity(c)
		switch {
		case !ok:
			fail(c, apperr.Unauthorized("Authentication required"))
		case !id.Can(perm):
			fail(c, apperr.Forbidden())
		default:
			c.Next()
		}
	}
}

// cartOwner resolves whose cart the request works on: the signed-in user, or
// the guest session from the shop_session cookie. Guests without a valid
// cookie get a new session.
func (h *Handler) cartOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, ok := identity(c); ok {
			c.Set(ownerKey, cart.Owner{UserID: id.UserID})
			c.Next()
			return
		}
		if value, err := c.Cookie(sessionCookie); err == nil {
			if sid, ok := h.svc.Sessions.Verify(value); ok {
				c.Set(ownerKey, cart.Owner{SessionID: sid})
				c.Next()
				return
			}
		}
		sid, value := h.svc.Sessions.New()
		h.setSessionCookie(c, value, int(h.cfg.SessionTTL.Seconds()))
		c.Set(ownerKey, cart.Owner{SessionID: sid})
		c.Next()
	}
}

func (h *Handler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, value, maxAge, "/", "", h.cfg.SessionCookieSecure, true)
}

func ownerOf(c *gin.Context) cart.Owner {
	v, _ := c.Get(ownerKey)
	o, _ := v.(cart.Owner)
	return o
}

// guestSession returns the verified guest session id of the request, if any.
func (h *Handler) guestSession(c *gin.Context) string {
	value, err := c.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	sid, _ := h.svc.Sessions.Verify(value)
	return sid
}
