package bridge

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// SignatureVerifier checks the X-Todoist-Hmac-SHA256 header: Base64 of the
// HMAC-SHA256 digest of the raw request body under the shared client secret.
type SignatureVerifier struct {
	secret string
	logger Logger
}

func NewSignatureVerifier(secret string, logger Logger) SignatureVerifier {
	return SignatureVerifier{secret: secret, logger: logger}
}

// Verify must be called with the exact raw bytes as received: re-encoding
// the JSON changes whitespace and key order and invalidates the signature.
// An empty secret disables verification, which is an operational escape
// hatch for local use and is never silent.
func (v SignatureVerifier) Verify(rawBody []byte, signature string) bool {
	if v.secret == "" {
		v.logf("todoist client secret not set, skipping signature verification")
		return true
	}
	mac := hmac.New(sha256.New, []byte(v.secret))
	_, _ = mac.Write(rawBody)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ComputeSignature returns the signature Todoist would send for a body.
// The webhook test harness uses it to sign fabricated payloads.
func ComputeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (v SignatureVerifier) logf(format string, args ...any) {
	if v.logger == nil {
		return
	}
	v.logger.Printf(format, args...)
}
