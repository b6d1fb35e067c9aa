// Package signature verifies the signed callbacks a payment processor hands
// back to the buyer's browser after a checkout completes.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// separator joins the order and payment references in the signed payload.
const separator = "|"

// Payload returns the canonical string covered by a callback signature.
func Payload(orderRef, paymentRef string) string {
	return orderRef + separator + paymentRef
}

// Sign computes the hex-encoded HMAC-SHA256 of the callback payload.
func Sign(secret, orderRef, paymentRef string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(Payload(orderRef, paymentRef)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature was produced by Sign for the same secret
// and references. The comparison runs in constant time.
func Verify(secret, orderRef, paymentRef, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(secret, orderRef, paymentRef)
	return hmac.Equal([]byte(expected), []byte(signature))
}
