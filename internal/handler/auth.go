package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/oolio-shop/internal/domain/auth"
)

type userView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      auth.Role `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserView(u *auth.User) userView {
	return userView{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role, CreatedAt: u.CreatedAt}
}

type sessionView struct {
	User      userView  `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type registerBody struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required"`
}

type loginBody struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type forgotBody struct {
	Email string `json:"email" validate:"required,email"`
}

type resetBody struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) register(c *gin.Context) {
	var body registerBody
	if err := h.bindJSON(c, &body); err != nil {
		fail(c, err)
		return
	}
	s, err := h.svc.Auth.Register(c.Request.Context(), auth.RegisterRequest{
		Email:    body.Email,
		Password: body.Password,
		Name:     body.Name,
	})
	if err != nil {
		fail(c, err)
		return
	}
	h.adoptGuestCart(c, s.User.ID)
	respond(c, http.StatusCreated, "Registration successful", sessionView{
		User: toUserView(s.User), Token: s.Token, ExpiresAt: s.ExpiresAt,
	})
}

func (h *Handler) login(c *gin.Context) {
	var body loginBody
	if err := h.bindJSON(c, &body); err != nil {
		fail(c, err)
		return
	}
	s, err := h.svc.Auth.Login(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		fail(c, err)
		return
	}
	h.adoptGuestCart(c, s.User.ID)
	respond(c, http.StatusOK, "Login successful", sessionView{
		User: toUserView(s.User), Token: s.Token, ExpiresAt: s.ExpiresAt,
	})
}

// adoptGuestCart moves the guest cart into the user's cart and drops the
// session cookie. A failed merge leaves the guest cart in place.
func (h *Handler) adoptGuestCart(c *gin.Context, userID string) {
	sid := h.guestSession(c)
	if sid == "" {
		return
	}
	if err := h.svc.Carts.MergeGuest(c.Request.Context(), sid, userID); err != nil {
		zctx.From(c.Request.Context()).Warn("Merge guest cart", zap.Error(err))
		return
	}
	h.setSessionCookie(c, "", -1)
}

func (h *Handler) forgotPassword(c *gin.Context) {
	var body forgotBody
	if err := h.bindJSON(c, &body); err != nil {
		fail(c, err)
		return
	}
	if err := h.svc.Auth.ForgotPassword(c.Request.Context(), body.Email); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "If the email is registered, a reset link has been sent", nil)
}

func (h *Handler) resetPassword(c *gin.Context) {
	var body resetBody
	if err := h.bindJSON(c, &body); err != nil {
		fail(c, err)
		return
	}
	if err := h.svc.Auth.ResetPassword(c.Request.Context(), body.Token, body.Password); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Password has been reset", nil)
}

func (h *Handler) me(c *gin.Context) {
	id, _ := identity(c)
	u, err := h.svc.Auth.Me(c.Request.Context(), id.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", toUserView(u))
}
