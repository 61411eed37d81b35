package handler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/oolio-shop/internal/apperr"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
	maxIdempotencyKey = 255
)

var (
	errKeyInProgress = apperr.Conflict("A request with this Idempotency-Key is still in progress")
	errKeyReused     = apperr.Conflict("Idempotency-Key was already used for a different request")
)

// captureWriter keeps a copy of the response body.
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(p []byte) (int, error) {
	w.body.Write(p)
	return w.ResponseWriter.Write(p)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// idempotent replays the stored response of a previous request carrying the
// same Idempotency-Key. Keys are scoped to the cart owner. Only successful
// responses are stored; a failed request releases its key for a retry.
//
// Store outages do not block the request: it runs without protection.
func (h *Handler) idempotent() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(idempotencyHeader)
		if h.svc.Idempotency == nil || key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKey {
			fail(c, apperr.Validation("Invalid Idempotency-Key",
				apperr.FieldError{Field: idempotencyHeader, Message: "must be at most 255 characters"}))
			return
		}

		ctx := c.Request.Context()
		lg := zctx.From(ctx)
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			fail(c, apperr.Validation("Invalid request body"))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		owner := ownerOf(c)
		scoped := owner.UserID + ":" + owner.SessionID + ":" + key
		sum := sha256.Sum256(body)
		hash := hex.EncodeToString(sum[:])

		beginCtx, cancel := h.storeContext(ctx)
		prev, claimed, err := h.svc.Idempotency.Begin(beginCtx, scoped, hash)
		cancel()
		if err != nil {
			lg.Warn("Idempotency store unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !claimed {
			switch {
			case prev.RequestHash != hash:
				fail(c, errKeyReused)
			case !prev.Done:
				fail(c, errKeyInProgress)
			default:
				c.Header(replayedHeader, "true")
				c.Data(prev.Status, "application/json; charset=utf-8", prev.Body)
				c.Abort()
			}
			return
		}

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		status := w.Status()
		storeCtx, cancel := h.storeContext(ctx)
		defer cancel()
		if status >= http.StatusOK && status < http.StatusMultipleChoices {
			if err := h.svc.Idempotency.Complete(storeCtx, scoped, status, w.body.Bytes()); err != nil {
				lg.Warn("Store idempotent response", zap.Error(err))
			}
			return
		}
		if err := h.svc.Idempotency.Release(storeCtx, scoped); err != nil {
			lg.Warn("Release idempotency key", zap.Error(err))
		}
	}
}

// storeContext detaches store calls from the client so a disconnect does not
// leave a key claimed.
func (h *Handler) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), h.cfg.IdempotencyTimeout)
}
