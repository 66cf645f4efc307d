package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markjakearzadon/studybuddy-gobackend/internal/models"
	"github.com/markjakearzadon/studybuddy-gobackend/internal/services"
)

const testToken = "good-token"

type fakeParser struct{}

func (fakeParser) ParseToken(token string) (*services.Claims, error) {
	if token != testToken {
		return nil, services.ErrInvalidToken
	}
	return &services.Claims{Email: "a@b.com"}, nil
}

type fakePayments struct {
	initReq   models.PaymentRequest
	checkout  *models.Checkout
	outcome   *models.WebhookOutcome
	verify    *models.Verification
	tx        *models.Transaction
	banks     []models.Bank
	err       error
	raw       []byte
	signature string
	verifyRef string
}

func (f *fakePayments) Initiate(ctx context.Context, req models.PaymentRequest) (*models.Checkout, error) {
	f.initReq = req
	return f.checkout, f.err
}

func (f *fakePayments) HandleWebhook(ctx context.Context, raw []byte, signature string) (*models.WebhookOutcome, error) {
	f.raw, f.signature = raw, signature
	return f.outcome, f.err
}

func (f *fakePayments) Verify(ctx context.Context, txRef string) (*models.Verification, error) {
	f.verifyRef = txRef
	return f.verify, f.err
}

func (f *fakePayments) Banks(ctx context.Context, country string) ([]models.Bank, error) {
	return f.banks, f.err
}

func (f *fakePayments) Get(ctx context.Context, txRef string) (*models.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tx, nil
}

func newTestRouter(payments *fakePayments, users *fakeUsers) http.Handler {
	if users == nil {
		users = &fakeUsers{}
	}
	return NewRouter(
		NewUserHandler(users, nil),
		NewPaymentHandler(payments, "https://api.example.com/", nil),
		fakeParser{},
		nil,
		zap.NewNop(),
	)
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

var authHeader = map[string]string{"Authorization": "Bearer " + testToken}

func TestCreatePaymentHandler(t *testing.T) {
	payments := &fakePayments{checkout: &models.Checkout{
		CheckoutURL: "https://pay.example/xyz",
		TxRef:       "tx-1",
		Amount:      decimal.NewFromInt(100),
		Currency:    "USD",
	}}
	router := newTestRouter(payments, nil)

	rec, body := do(t, router, http.MethodPost, "/api/payment", `{"amount":100,"currency":"USD"}`, authHeader)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "https://pay.example/xyz", body["checkout_url"])
	assert.Equal(t, "tx-1", body["tx_ref"])
	assert.Equal(t, "100", body["amount"])

	assert.Equal(t, "a@b.com", payments.initReq.Email)
	assert.Equal(t, "https://api.example.com/api/payment/webhook", payments.initReq.CallbackURL)
	assert.Equal(t, "https://api.example.com/api/payment/return", payments.initReq.ReturnURL)
	require.NotNil(t, payments.initReq.Customizations)
	assert.Equal(t, defaultCheckoutTitle, payments.initReq.Customizations.Title)
	assert.Equal(t, defaultCheckoutDescription, payments.initReq.Customizations.Description)
}

func TestCreatePaymentHandlerRejects(t *testing.T) {
	router := newTestRouter(&fakePayments{}, nil)

	rec, _ := do(t, router, http.MethodPost, "/api/payment", `{"amount":100}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, router, http.MethodPost, "/api/payment", `{"amount":100}`, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := do(t, router, http.MethodPost, "/api/payment", `{"amount":100,"email":"nope"}`, authHeader)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email must be a valid email", body["message"])

	rec, _ = do(t, router, http.MethodPost, "/api/payment", `{"amount":100,"currency":"DOLLARS"}`, authHeader)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, router, http.MethodPost, "/api/payment", `{`, authHeader)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentErrorStatusCodes(t *testing.T) {
	tests := []struct {
		kind services.ErrorKind
		code int
	}{
		{services.KindValidation, http.StatusBadRequest},
		{services.KindSignature, http.StatusUnauthorized},
		{services.KindProvider, http.StatusBadGateway},
		{services.KindNetwork, http.StatusGatewayTimeout},
		{services.KindConfiguration, http.StatusServiceUnavailable},
		{services.KindUnexpected, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			payments := &fakePayments{err: &services.PaymentError{Kind: tt.kind, Message: "boom"}}
			rec, body := do(t, newTestRouter(payments, nil), http.MethodPost, "/api/payment", `{"amount":1}`, authHeader)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "error", body["status"])
			assert.Equal(t, "boom", body["message"])
			if tt.kind == services.KindNetwork {
				assert.Equal(t, true, body["retryable"])
			} else {
				assert.NotContains(t, body, "retryable")
			}
		})
	}
}

func TestWebhookHandler(t *testing.T) {
	payments := &fakePayments{outcome: &models.WebhookOutcome{
		Action:   models.ActionPaymentSuccess,
		TxRef:    "tx-1",
		Message:  "payment processed successfully",
		Amount:   "100.00",
		Currency: "USD",
	}}
	router := newTestRouter(payments, nil)
	payload := `{"tx_ref":"tx-1", "status":"success", "amount":"100.00", "currency":"USD"}`

	rec, body := do(t, router, http.MethodPost, "/api/payment/webhook", payload, map[string]string{services.SignatureHeader: "abc"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "payment_success", body["action"])
	assert.Equal(t, "tx-1", body["tx_ref"])
	assert.Equal(t, "100.00", body["amount"])
	assert.Equal(t, "USD", body["currency"])
	assert.Equal(t, payload, string(payments.raw))
	assert.Equal(t, "abc", payments.signature)
}

func TestWebhookHandlerOmitsAmountUnlessSuccess(t *testing.T) {
	for _, action := range []models.WebhookAction{models.ActionPaymentFailed, models.ActionStatusUpdate} {
		payments := &fakePayments{outcome: &models.WebhookOutcome{
			Action:   action,
			TxRef:    "tx-1",
			Amount:   "100.00",
			Currency: "USD",
		}}
		rec, body := do(t, newTestRouter(payments, nil), http.MethodPost, "/api/payment/webhook", `{}`, map[string]string{services.SignatureHeader: "abc"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, string(action), body["action"])
		assert.NotContains(t, body, "amount")
		assert.NotContains(t, body, "currency")
	}
}

func TestWebhookHandlerErrors(t *testing.T) {
	t.Run("missing signature", func(t *testing.T) {
		payments := &fakePayments{}
		rec, body := do(t, newTestRouter(payments, nil), http.MethodPost, "/api/payment/webhook", `{}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "missing signature", body["message"])
		assert.Nil(t, payments.raw)
	})

	t.Run("invalid signature", func(t *testing.T) {
		payments := &fakePayments{err: &services.PaymentError{Kind: services.KindSignature, Message: "invalid webhook signature"}}
		rec, body := do(t, newTestRouter(payments, nil), http.MethodPost, "/api/payment/webhook", `{}`, map[string]string{services.SignatureHeader: "abc"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "invalid webhook signature", body["message"])
	})

	t.Run("store failure", func(t *testing.T) {
		payments := &fakePayments{err: errors.New("mongo down")}
		rec, _ := do(t, newTestRouter(payments, nil), http.MethodPost, "/api/payment/webhook", `{}`, map[string]string{services.SignatureHeader: "abc"})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestVerifyHandler(t *testing.T) {
	payments := &fakePayments{verify: &models.Verification{
		Verified: true,
		TxRef:    "tx-1",
		Amount:   decimal.NewFromInt(100),
		Currency: "USD",
		Status:   "failed",
	}}
	router := newTestRouter(payments, nil)

	rec, body := do(t, router, http.MethodGet, "/api/payment/verify/tx-1", "", authHeader)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, true, body["verified"])
	assert.Equal(t, "failed", body["payment_status"])
	assert.Equal(t, "tx-1", payments.verifyRef)

	rec, body = do(t, router, http.MethodGet, "/api/payment/return?tx_ref=tx-2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "failed", body["payment_status"])
	assert.Equal(t, "tx-2", payments.verifyRef)

	rec, body = do(t, router, http.MethodGet, "/api/payment/return", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["verified"])
}

func TestVerifyHandlerProviderError(t *testing.T) {
	payments := &fakePayments{err: &services.PaymentError{Kind: services.KindProvider, Message: "Invalid transaction or Transaction not found"}}

	rec, body := do(t, newTestRouter(payments, nil), http.MethodGet, "/api/payment/verify/nope", "", authHeader)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, false, body["verified"])
	assert.Equal(t, "Invalid transaction or Transaction not found", body["message"])
}

func TestGetTransactionHandler(t *testing.T) {
	payments := &fakePayments{tx: &models.Transaction{
		TxRef:    "tx-1",
		Amount:   decimal.NewFromInt(100),
		Status:   models.TxSuccess,
		Customer: models.Customer{Email: "a@b.com"},
	}}
	router := newTestRouter(payments, nil)

	rec, body := do(t, router, http.MethodGet, "/api/payment/tx-1", "", authHeader)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "tx-1", body["tx_ref"])

	payments.tx.Customer.Email = "other@b.com"
	rec, _ = do(t, router, http.MethodGet, "/api/payment/tx-1", "", authHeader)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	payments.err = services.ErrTransactionNotFound
	rec, _ = do(t, router, http.MethodGet, "/api/payment/tx-1", "", authHeader)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListBanksHandler(t *testing.T) {
	payments := &fakePayments{banks: []models.Bank{{Name: "Awash Bank", Slug: "awash_bank"}}}

	rec, body := do(t, newTestRouter(payments, nil), http.MethodGet, "/api/banks?country=ET", "", authHeader)
	require.Equal(t, http.StatusOK, rec.Code)
	data, ok := body["data"].([]interface{})
	require.True(t, ok)
	assert.Len(t, data, 1)
}

func TestHealthAndRequestID(t *testing.T) {
	rec, _ := do(t, newTestRouter(&fakePayments{}, nil), http.MethodGet, "/", "", map[string]string{"X-Request-ID": "req-1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
}
