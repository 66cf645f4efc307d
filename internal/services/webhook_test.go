package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markjakearzadon/studybuddy-gobackend/internal/models"
)

const testWebhookSecret = "whsec-test"

func hmacHex(secret string, payload []byte) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(payload)
	return hex.EncodeToString(m.Sum(nil))
}

func TestSignatureVerifier(t *testing.T) {
	v := NewSignatureVerifier(testWebhookSecret)
	payload := []byte(`{"tx_ref":"tx-1","status":"success"}`)
	sig := hmacHex(testWebhookSecret, payload)

	assert.True(t, v.Verify(payload, sig))
	assert.Equal(t, sig, v.Sign(payload))

	t.Run("mutated payload byte", func(t *testing.T) {
		for i := range payload {
			mutated := append([]byte(nil), payload...)
			mutated[i] ^= 0x01
			assert.False(t, v.Verify(mutated, sig), "byte %d", i)
		}
	})

	t.Run("mutated signature byte", func(t *testing.T) {
		raw, err := hex.DecodeString(sig)
		require.NoError(t, err)
		for i := range raw {
			mutated := append([]byte(nil), raw...)
			mutated[i] ^= 0x80
			assert.False(t, v.Verify(payload, hex.EncodeToString(mutated)), "byte %d", i)
		}
	})

	t.Run("reserialized payload", func(t *testing.T) {
		spaced := []byte(`{"tx_ref": "tx-1", "status": "success"}`)
		assert.False(t, v.Verify(spaced, sig))
	})

	t.Run("malformed input", func(t *testing.T) {
		assert.False(t, v.Verify(payload, ""))
		assert.False(t, v.Verify(payload, "not-hex"))
		assert.False(t, v.Verify(payload, sig[:10]))
		assert.False(t, v.Verify(nil, sig))
	})
}

func TestSignatureVerifierWithoutSecret(t *testing.T) {
	payload := []byte(`{"tx_ref":"tx-1"}`)
	v := NewSignatureVerifier("")

	assert.False(t, v.Verify(payload, hmacHex("", payload)))
	assert.False(t, v.Verify(payload, hmacHex(testWebhookSecret, payload)))

	var nilVerifier *SignatureVerifier
	assert.False(t, nilVerifier.Verify(payload, "00"))
}

func newTestReconciler() *Reconciler {
	return NewReconciler(NewSignatureVerifier(testWebhookSecret), nil)
}

func TestProcessWebhook(t *testing.T) {
	r := newTestReconciler()

	tests := []struct {
		name    string
		payload string
		action  models.WebhookAction
		message string
	}{
		{"success", `{"tx_ref":"tx-1","status":"success","amount":"100.00","currency":"USD","email":"a@b.com"}`, models.ActionPaymentSuccess, "payment processed successfully"},
		{"failed", `{"tx_ref":"tx-1","status":"failed","amount":"100.00","currency":"USD"}`, models.ActionPaymentFailed, "payment failed"},
		{"pending", `{"tx_ref":"tx-1","status":"pending"}`, models.ActionStatusUpdate, "payment status: pending"},
		{"missing status", `{"tx_ref":"tx-1"}`, models.ActionStatusUpdate, "payment status: "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := []byte(tt.payload)
			out, err := r.ProcessWebhook(raw, hmacHex(testWebhookSecret, raw))
			require.NoError(t, err)
			assert.Equal(t, tt.action, out.Action)
			assert.Equal(t, "tx-1", out.TxRef)
			assert.Equal(t, tt.message, out.Message)
		})
	}
}

func TestProcessWebhookEchoesSuccessFields(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		amount  string
	}{
		{"string amount", `{"tx_ref":"tx-9","status":"success","amount":"100.00","currency":"ETB","email":"a@b.com"}`, "100.00"},
		{"numeric amount", `{"tx_ref":"tx-9","status":"success","amount":100.50,"currency":"ETB","email":"a@b.com"}`, "100.50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := []byte(tt.payload)
			out, err := newTestReconciler().ProcessWebhook(raw, hmacHex(testWebhookSecret, raw))
			require.NoError(t, err)

			assert.Equal(t, models.ActionPaymentSuccess, out.Action)
			assert.Equal(t, "tx-9", out.TxRef)
			assert.Equal(t, tt.amount, out.Amount)
			assert.Equal(t, "ETB", out.Currency)
			assert.Equal(t, "a@b.com", out.Email)
		})
	}
}

func TestProcessWebhookToleratesOddAmounts(t *testing.T) {
	r := newTestReconciler()
	amounts := map[string]string{
		`""`:         "",
		`"N/A"`:      "N/A",
		`"1,000.00"`: "1,000.00",
		`true`:       "true",
		`null`:       "",
	}
	for amount, want := range amounts {
		for status, action := range map[string]models.WebhookAction{
			"success": models.ActionPaymentSuccess,
			"failed":  models.ActionPaymentFailed,
		} {
			raw := []byte(`{"tx_ref":"tx-1","status":"` + status + `","amount":` + amount + `}`)
			out, err := r.ProcessWebhook(raw, hmacHex(testWebhookSecret, raw))
			require.NoError(t, err, "amount %s", amount)
			assert.Equal(t, action, out.Action)
			assert.Equal(t, want, out.Amount)
		}
	}
}

func TestProcessWebhookRejectsBadSignature(t *testing.T) {
	r := newTestReconciler()
	for _, status := range []string{"success", "failed", "pending"} {
		raw := []byte(`{"tx_ref":"tx-1","status":"` + status + `"}`)
		for _, sig := range []string{"", "deadbeef", hmacHex("wrong-secret", raw)} {
			out, err := r.ProcessWebhook(raw, sig)
			assert.Nil(t, out)
			pe := requireKind(t, err, KindSignature)
			assert.Equal(t, "invalid webhook signature", pe.Message)
		}
	}
}

func TestProcessWebhookValidation(t *testing.T) {
	r := newTestReconciler()

	raw := []byte(`{"status":"success","amount":"10"}`)
	_, err := r.ProcessWebhook(raw, hmacHex(testWebhookSecret, raw))
	pe := requireKind(t, err, KindValidation)
	assert.Equal(t, "missing transaction reference", pe.Message)

	raw = []byte(`not json`)
	_, err = r.ProcessWebhook(raw, hmacHex(testWebhookSecret, raw))
	pe = requireKind(t, err, KindValidation)
	assert.Equal(t, "invalid webhook payload", pe.Message)
}
