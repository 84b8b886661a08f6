package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Header names GitHub uses for deliveries.
const (
	HeaderEvent     = "X-GitHub-Event"
	HeaderSignature = "X-Hub-Signature-256"
	HeaderDelivery  = "X-GitHub-Delivery"
)

// VerifySignature checks an X-Hub-Signature-256 value ("sha256=<hex>")
// against the HMAC-SHA256 of payload under secret. An empty secret accepts
// every payload.
func VerifySignature(secret string, payload []byte, signature string) bool {
	if secret == "" {
		return true
	}
	sig, ok := strings.CutPrefix(signature, "sha256=")
	if !ok || sig == "" {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(Sign(secret, payload)))
}

// Sign returns the hex HMAC-SHA256 of payload, without the "sha256=" prefix.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload) //nolint:errcheck
	return hex.EncodeToString(mac.Sum(nil))
}
