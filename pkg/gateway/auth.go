package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// Headers accepted by AuthHandler.
const (
	AdminSecretHeader = "X-Admin-Secret"
	SignatureHeader   = "X-Chatguard-Signature"
)

// AuthHandler guards the API with the configured shared secret. A request is
// authenticated by presenting the secret as a bearer token, in the
// X-Admin-Secret header, or by signing its body with HMAC-SHA256.
type AuthHandler struct {
	sharedSecret string
}

// NewAuthHandler creates a new authentication handler. An empty secret
// disables authentication.
func NewAuthHandler(sharedSecret string) *AuthHandler {
	return &AuthHandler{
		sharedSecret: sharedSecret,
	}
}

// Enabled reports whether a secret is configured.
func (a *AuthHandler) Enabled() bool {
	return a.sharedSecret != ""
}

// Authenticate checks the request credentials. body is the already-read
// request body, used for signature verification.
func (a *AuthHandler) Authenticate(r *http.Request, body []byte) bool {
	if !a.Enabled() {
		return true
	}

	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return a.compareSecret(strings.TrimSpace(token))
	}
	if secret := r.Header.Get(AdminSecretHeader); secret != "" {
		return a.compareSecret(secret)
	}
	if signature := r.Header.Get(SignatureHeader); signature != "" {
		return a.VerifySignature(body, signature)
	}
	return false
}

// Sign returns the signature header value for body.
func (a *AuthHandler) Sign(body []byte) string {
	h := hmac.New(sha256.New, []byte(a.sharedSecret))
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// VerifySignature verifies an HMAC-SHA256 body signature of the form
// "sha256=<hex>".
func (a *AuthHandler) VerifySignature(body []byte, signature string) bool {
	expected := a.Sign(body)

	// Use constant-time comparison to prevent timing attacks
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

func (a *AuthHandler) compareSecret(candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(a.sharedSecret), []byte(candidate)) == 1
}
