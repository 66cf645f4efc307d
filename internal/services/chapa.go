package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/markjakearzadon/studybuddy-gobackend/internal/config"
	"github.com/markjakearzadon/studybuddy-gobackend/internal/models"
)

const (
	DefaultCurrency = "USD"
	DefaultCountry  = "ET"

	maxResponseBytes = 1 << 20
)

// ChapaClient talks to the hosted-checkout provider. It holds no mutable
// state and is safe for concurrent use.
type ChapaClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewChapaClient(cfg config.Payment, logger *zap.Logger) (*ChapaClient, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, configurationError("PAYMENT_SECRET_KEY is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = config.DefaultPaymentBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultPaymentTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChapaClient{
		baseURL:    baseURL,
		secretKey:  cfg.SecretKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

type chapaEnvelope struct {
	Status  string          `json:"status"`
	Message json.RawMessage `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// CreatePayment initializes a hosted checkout. The reference is generated
// when req.TxRef is empty and echoed unchanged otherwise.
func (c *ChapaClient) CreatePayment(ctx context.Context, req models.PaymentRequest) (*models.Checkout, error) {
	if !req.Amount.IsPositive() {
		return nil, validationError("amount must be positive")
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return nil, validationError("email is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	txRef := strings.TrimSpace(req.TxRef)
	if txRef == "" {
		txRef = NewTxRef()
	}

	payload := map[string]interface{}{
		"amount":       req.Amount.String(),
		"currency":     currency,
		"email":        email,
		"first_name":   req.FirstName,
		"last_name":    req.LastName,
		"tx_ref":       txRef,
		"callback_url": req.CallbackURL,
		"return_url":   req.ReturnURL,
	}
	if cz := req.Customizations; cz != nil {
		if cz.Title != "" {
			payload["customization[title]"] = cz.Title
		}
		if cz.Description != "" {
			payload["customization[description]"] = cz.Description
		}
	}

	c.logger.Info("Initializing payment",
		zap.String("tx_ref", txRef),
		zap.String("amount", req.Amount.String()),
		zap.String("currency", currency),
		zap.String("email", maskEmail(email)),
	)

	data, err := c.call(ctx, http.MethodPost, "/transaction/initialize", payload, "payment initialization failed")
	if err != nil {
		c.logger.Warn("Payment initialization failed", zap.String("tx_ref", txRef), zap.Error(err))
		return nil, err
	}

	var result struct {
		CheckoutURL string `json:"checkout_url"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, unexpectedError(fmt.Errorf("decode checkout data: %w", err))
	}
	if result.CheckoutURL == "" {
		return nil, unexpectedError(errors.New("provider response has no checkout_url"))
	}

	return &models.Checkout{
		CheckoutURL: result.CheckoutURL,
		TxRef:       txRef,
		Amount:      req.Amount,
		Currency:    currency,
	}, nil
}

// VerifyPayment polls the provider for the state of txRef.
func (c *ChapaClient) VerifyPayment(ctx context.Context, txRef string) (*models.Verification, error) {
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return nil, validationError("transaction reference is required")
	}

	data, err := c.call(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(txRef), nil, "verification failed")
	if err != nil {
		c.logger.Warn("Payment verification failed", zap.String("tx_ref", txRef), zap.Error(err))
		return nil, err
	}

	var d struct {
		Amount    decimal.Decimal `json:"amount"`
		Currency  string          `json:"currency"`
		Status    string          `json:"status"`
		Email     string          `json:"email"`
		FirstName string          `json:"first_name"`
		LastName  string          `json:"last_name"`
		TxRef     string          `json:"tx_ref"`
		CreatedAt string          `json:"created_at"`
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, unexpectedError(fmt.Errorf("decode verification data: %w", err))
	}
	if d.TxRef == "" {
		d.TxRef = txRef
	}

	return &models.Verification{
		Verified:  true,
		TxRef:     d.TxRef,
		Amount:    d.Amount,
		Currency:  d.Currency,
		Status:    d.Status,
		Email:     d.Email,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		CreatedAt: d.CreatedAt,
	}, nil
}

// ListBanks returns the banks the provider supports for country.
func (c *ChapaClient) ListBanks(ctx context.Context, country string) ([]models.Bank, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		country = DefaultCountry
	}

	data, err := c.call(ctx, http.MethodGet, "/banks?country="+url.QueryEscape(country), nil, "failed to fetch banks")
	if err != nil {
		return nil, err
	}

	var banks []models.Bank
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &banks); err != nil {
			return nil, unexpectedError(fmt.Errorf("decode banks: %w", err))
		}
	}
	return banks, nil
}

// call performs one authenticated request and returns the envelope's data
// field. Every failure comes back as a *PaymentError.
func (c *ChapaClient) call(ctx context.Context, method, path string, payload interface{}, fallback string) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, unexpectedError(fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, unexpectedError(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, networkError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, networkError(err)
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300

	var env chapaEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if !ok {
			return nil, providerError("", fmt.Sprintf("%s (HTTP %d)", fallback, resp.StatusCode))
		}
		return nil, unexpectedError(fmt.Errorf("decode response: %w", err))
	}

	if !ok || !strings.EqualFold(env.Status, "success") {
		return nil, providerError(providerMessage(env.Message), fallback)
	}
	return env.Data, nil
}

// providerMessage flattens the message field, which is a string for most
// failures and an object of field errors for validation failures.
func providerMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return ""
	}
	return buf.String()
}

func maskEmail(email string) string {
	parts := strings.SplitN(email, "@", 2)
	if len(parts) != 2 {
		return "****"
	}
	if len(parts[0]) > 3 {
		return parts[0][:3] + "****@" + parts[1]
	}
	return "****@" + parts[1]
}
