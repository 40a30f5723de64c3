package payment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSign(t *testing.T) {
	secret := []byte("secret")
	sig := Sign(secret, "order-1", "pay-1")
	assert.Len(t, sig, 64)
	assert.Equal(t, sig, Sign(secret, "order-1", "pay-1"))
	assert.NotEqual(t, sig, Sign(secret, "order-1|pay", "-1x"))
	assert.NotEqual(t, sig, Sign([]byte("other"), "order-1", "pay-1"))
}

func TestValid(t *testing.T) {
	secret := []byte("secret")
	good := Sign(secret, "order-1", "pay-1")

	tests := []struct {
		name      string
		orderRef  string
		paymentID string
		signature string
		want      bool
	}{
		{name: "matching", orderRef: "order-1", paymentID: "pay-1", signature: good, want: true},
		{name: "upper-case hex", orderRef: "order-1", paymentID: "pay-1", signature: strings.ToUpper(good), want: true},
		{name: "tampered", orderRef: "order-1", paymentID: "pay-1", signature: tamper(good), want: false},
		{name: "other payment", orderRef: "order-1", paymentID: "pay-2", signature: good, want: false},
		{name: "other order", orderRef: "order-2", paymentID: "pay-1", signature: good, want: false},
		{name: "empty", orderRef: "order-1", paymentID: "pay-1", signature: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Valid(secret, tt.orderRef, tt.paymentID, tt.signature))
		})
	}
}

func tamper(sig string) string {
	last := sig[len(sig)-1]
	repl := byte('0')
	if last == '0' {
		repl = '1'
	}
	return sig[:len(sig)-1] + string(repl)
}
