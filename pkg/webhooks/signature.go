package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the payload signature sent in the X-Campus-Signature
// header: an HMAC-SHA256 of the body under the subscription secret,
// hex-encoded with a "sha256=" prefix.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature in constant time.
// Receivers can use it to authenticate deliveries.
func VerifySignature(secret, signature string, body []byte) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}
