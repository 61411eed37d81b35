package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// SessionSigner issues and verifies opaque guest session ids. A cookie value
// is "<uuid>.<hex hmac-sha256(uuid)>" keyed with the session pepper.
type SessionSigner struct {
	pepper []byte
}

// NewSessionSigner creates a SessionSigner keyed with pepper.
func NewSessionSigner(pepper []byte) *SessionSigner {
	return &SessionSigner{pepper: pepper}
}

// New returns a fresh session id and its signed cookie value.
func (s *SessionSigner) New() (id, value string) {
	id = uuid.NewString()
	return id, id + "." + hex.EncodeToString(s.sign(id))
}

// Verify returns the session id carried by a cookie value. The signature is
// compared in constant time.
func (s *SessionSigner) Verify(value string) (string, bool) {
	id, sig, ok := strings.Cut(value, ".")
	if !ok || id == "" {
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return "", false
	}
	if subtle.ConstantTimeCompare(got, s.sign(id)) != 1 {
		return "", false
	}
	return id, true
}

func (s *SessionSigner) sign(id string) []byte {
	mac := hmac.New(sha256.New, s.pepper)
	mac.Write([]byte(id))
	return mac.Sum(nil)
}
