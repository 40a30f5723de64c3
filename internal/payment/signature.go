// Package payment checks gateway callback signatures.
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign returns the hex HMAC-SHA256 of orderRef and paymentID joined by "|".
func Sign(secret []byte, orderRef, paymentID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(orderRef))
	mac.Write([]byte{'|'})
	mac.Write([]byte(paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Valid reports whether signature matches the expected one. Hex case is
// ignored; the comparison itself is constant time.
func Valid(secret []byte, orderRef, paymentID, signature string) bool {
	expected := Sign(secret, orderRef, paymentID)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
