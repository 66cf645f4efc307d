package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/markjakearzadon/studybuddy-gobackend/internal/models"
)

// SignatureHeader carries hex(HMAC-SHA256(secret, raw body)).
const SignatureHeader = "Chapa-Signature"

type SignatureVerifier struct {
	secret []byte
}

// NewSignatureVerifier accepts an empty secret; such a verifier rejects
// every payload.
func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{secret: []byte(secret)}
}

// Verify checks signature against the exact bytes received. It never
// panics and returns false on any malformed input.
func (v *SignatureVerifier) Verify(payload []byte, signature string) bool {
	if v == nil || len(v.secret) == 0 || len(payload) == 0 {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) != sha256.Size {
		return false
	}
	return hmac.Equal(v.mac(payload), got)
}

// Sign returns the signature the provider is expected to send for payload.
func (v *SignatureVerifier) Sign(payload []byte) string {
	return hex.EncodeToString(v.mac(payload))
}

func (v *SignatureVerifier) mac(payload []byte) []byte {
	m := hmac.New(sha256.New, v.secret)
	m.Write(payload)
	return m.Sum(nil)
}

// webhookPayload keeps every field raw so a delivery with odd field types
// still reconciles; only tx_ref is required.
type webhookPayload map[string]json.RawMessage

// text returns a string field unquoted and any other JSON value as written.
func (p webhookPayload) text(key string) string {
	raw, ok := p[key]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Reconciler turns a signed webhook into an action. It does not persist.
type Reconciler struct {
	verifier *SignatureVerifier
	logger   *zap.Logger
}

func NewReconciler(verifier *SignatureVerifier, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{verifier: verifier, logger: logger}
}

// ProcessWebhook verifies raw before decoding it. Redeliveries of the same
// payload produce the same outcome.
func (r *Reconciler) ProcessWebhook(raw []byte, signature string) (*models.WebhookOutcome, error) {
	if !r.verifier.Verify(raw, signature) {
		r.logger.Warn("Webhook signature verification failed", zap.Int("payload_bytes", len(raw)))
		return nil, signatureError()
	}

	var p webhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		r.logger.Warn("Webhook payload is not valid JSON", zap.Error(err))
		return nil, validationError("invalid webhook payload")
	}
	txRef := p.text("tx_ref")
	if strings.TrimSpace(txRef) == "" {
		return nil, validationError("missing transaction reference")
	}

	status := p.text("status")
	out := &models.WebhookOutcome{
		TxRef:    txRef,
		Status:   status,
		Email:    p.text("email"),
		Amount:   p.text("amount"),
		Currency: p.text("currency"),
	}
	switch status {
	case "success":
		out.Action = models.ActionPaymentSuccess
		out.Message = "payment processed successfully"
	case "failed":
		out.Action = models.ActionPaymentFailed
		out.Message = "payment failed"
	default:
		out.Action = models.ActionStatusUpdate
		out.Message = "payment status: " + status
	}

	r.logger.Info("Processing webhook",
		zap.String("tx_ref", out.TxRef),
		zap.String("status", status),
		zap.String("action", string(out.Action)),
	)
	return out, nil
}
