package httpmiddleware

import (
	"net/http"
	"strings"
	"testing"

	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWrap_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Wrap(okHandler(), mark("outer"), mark("inner"))
	hit(h, "/", nil)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name   string
		header string
		reuse  bool
	}{
		{"Missing", "", false},
		{"Valid", "req-123", true},
		{"TooLong", strings.Repeat("a", maxRequestIDLen+1), false},
		{"ControlChars", "bad\x01id", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			}))
			rec := hit(h, "/", func(r *http.Request) {
				if tt.header != "" {
					r.Header.Set(RequestIDHeader, tt.header)
				}
			})
			require.NotEmpty(t, seen)
			assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
			if tt.reuse {
				assert.Equal(t, tt.header, seen)
			} else {
				assert.NotEqual(t, tt.header, seen)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), InjectLogger(zap.New(core)), Recovery())

	rec := hit(h, "/api/orders", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Internal server error"}`, rec.Body.String())
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Panic recovered", logs.All()[0].Message)
}

func TestInjectLogger_LogRequests(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	var fromCtx *zap.Logger
	h := Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = zctx.From(r.Context())
		w.WriteHeader(http.StatusCreated)
	}), RequestID(), InjectLogger(zap.New(core)), LogRequests())

	hit(h, "/api/cart", func(r *http.Request) { r.Header.Set(RequestIDHeader, "abc") })
	require.NotNil(t, fromCtx)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	fields := entry.ContextMap()
	assert.Equal(t, "abc", fields["request_id"])
	assert.EqualValues(t, http.StatusCreated, fields["status"])
	assert.Equal(t, "/api/cart", fields["path"])

	hit(h, "/livez", nil)
	assert.Equal(t, 1, logs.Len())
}

func TestCORS(t *testing.T) {
	preflight := func(origin string) func(*http.Request) {
		return func(r *http.Request) {
			r.Method = http.MethodOptions
			r.Header.Set("Origin", origin)
			r.Header.Set("Access-Control-Request-Method", http.MethodPost)
			r.Header.Set("Access-Control-Request-Headers", "Idempotency-Key")
		}
	}
	simple := func(origin string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("Origin", origin) }
	}

	tests := []struct {
		name        string
		cfg         CORSConfig
		prepare     func(*http.Request)
		wantCode    int
		wantOrigin  string
		wantHeaders string
		wantCreds   bool
	}{
		{
			name:       "WildcardSimple",
			prepare:    simple("https://shop.test"),
			wantCode:   http.StatusOK,
			wantOrigin: "*",
		},
		{
			name:        "WildcardPreflightEchoesHeaders",
			prepare:     preflight("https://shop.test"),
			wantCode:    http.StatusNoContent,
			wantOrigin:  "*",
			wantHeaders: "Idempotency-Key",
		},
		{
			name:       "CredentialsEchoOrigin",
			cfg:        CORSConfig{Origins: []string{"*"}, Credentials: true},
			prepare:    simple("https://shop.test"),
			wantCode:   http.StatusOK,
			wantOrigin: "https://shop.test",
			wantCreds:  true,
		},
		{
			name:       "ListedOriginCaseInsensitive",
			cfg:        CORSConfig{Origins: []string{"https://Shop.test"}},
			prepare:    simple("https://shop.TEST"),
			wantCode:   http.StatusOK,
			wantOrigin: "https://Shop.test",
		},
		{
			name:     "RejectedPreflight",
			cfg:      CORSConfig{Origins: []string{"https://shop.test"}},
			prepare:  preflight("https://evil.test"),
			wantCode: http.StatusNoContent,
		},
		{
			name:        "ConfiguredHeaders",
			cfg:         CORSConfig{Headers: []string{"Content-Type", "Authorization"}, MaxAge: 600},
			prepare:     preflight("https://shop.test"),
			wantCode:    http.StatusNoContent,
			wantOrigin:  "*",
			wantHeaders: "Content-Type, Authorization",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := hit(CORS(tt.cfg)(okHandler()), "/api/cart", tt.prepare)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantHeaders, rec.Header().Get("Access-Control-Allow-Headers"))
			assert.Equal(t, tt.wantCreds, rec.Header().Get("Access-Control-Allow-Credentials") == "true")
		})
	}
}
