package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/markjakearzadon/studybuddy-gobackend/internal/logger"
	"github.com/markjakearzadon/studybuddy-gobackend/internal/models"
	"github.com/markjakearzadon/studybuddy-gobackend/internal/services"
)

const (
	defaultCheckoutTitle       = "AI Study Buddy Premium"
	defaultCheckoutDescription = "Upgrade to premium features"
)

// PaymentService is implemented by *services.PaymentService.
type PaymentService interface {
	Initiate(ctx context.Context, req models.PaymentRequest) (*models.Checkout, error)
	HandleWebhook(ctx context.Context, raw []byte, signature string) (*models.WebhookOutcome, error)
	Verify(ctx context.Context, txRef string) (*models.Verification, error)
	Banks(ctx context.Context, country string) ([]models.Bank, error)
	Get(ctx context.Context, txRef string) (*models.Transaction, error)
}

type PaymentHandler struct {
	service       PaymentService
	publicBaseURL string
	validate      *validator.Validate
	logger        *zap.Logger
}

func NewPaymentHandler(service PaymentService, publicBaseURL string, log *zap.Logger) *PaymentHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentHandler{
		service:       service,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		validate:      newValidator(),
		logger:        log,
	}
}

type createPaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency" validate:"omitempty,len=3,alpha"`
	Email       string          `json:"email" validate:"omitempty,email"`
	FirstName   string          `json:"first_name" validate:"max=100"`
	LastName    string          `json:"last_name" validate:"max=100"`
	TxRef       string          `json:"tx_ref" validate:"max=100"`
	Title       string          `json:"title" validate:"max=100"`
	Description string          `json:"description" validate:"max=255"`
}

// CreatePayment starts a hosted checkout for the authenticated user. The
// payer email defaults to the one in the token.
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if !decodeJSON(w, r, h.validate, &req) {
		return
	}

	email := req.Email
	if email == "" {
		if claims, ok := ClaimsFromContext(r.Context()); ok {
			email = claims.Email
		}
	}

	title, description := req.Title, req.Description
	if title == "" {
		title = defaultCheckoutTitle
	}
	if description == "" {
		description = defaultCheckoutDescription
	}

	checkout, err := h.service.Initiate(r.Context(), models.PaymentRequest{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Email:       email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		TxRef:       req.TxRef,
		CallbackURL: h.publicBaseURL + "/api/payment/webhook",
		ReturnURL:   h.publicBaseURL + "/api/payment/return",
		Customizations: &models.Customizations{
			Title:       title,
			Description: description,
		},
	})
	if err != nil {
		logger.FromContext(r.Context(), h.logger).Warn("Failed to create payment", zap.Error(err))
		writePaymentError(w, err, nil)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"status":       "success",
		"checkout_url": checkout.CheckoutURL,
		"tx_ref":       checkout.TxRef,
		"amount":       checkout.Amount,
		"currency":     checkout.Currency,
	})
}

// Webhook receives provider notifications. The signature covers the raw
// body, so it is read unparsed.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context(), h.logger)

	signature := r.Header.Get(services.SignatureHeader)
	if signature == "" {
		log.Warn("Webhook without signature header")
		writeError(w, http.StatusBadRequest, "missing signature")
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}

	outcome, err := h.service.HandleWebhook(r.Context(), raw, signature)
	if err != nil {
		writePaymentError(w, err, nil)
		return
	}

	resp := map[string]interface{}{
		"status":    "success",
		"action":    outcome.Action,
		"tx_ref":    outcome.TxRef,
		"message":   outcome.Message,
		"duplicate": outcome.Duplicate,
	}
	if outcome.Action == models.ActionPaymentSuccess {
		resp["amount"] = outcome.Amount
		resp["currency"] = outcome.Currency
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PaymentHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	h.verify(w, r, mux.Vars(r)["tx_ref"])
}

// PaymentReturn is where the provider sends the payer after checkout.
func (h *PaymentHandler) PaymentReturn(w http.ResponseWriter, r *http.Request) {
	h.verify(w, r, r.URL.Query().Get("tx_ref"))
}

func (h *PaymentHandler) verify(w http.ResponseWriter, r *http.Request, txRef string) {
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"status":   "error",
			"message":  "tx_ref is required",
			"verified": false,
		})
		return
	}

	v, err := h.service.Verify(r.Context(), txRef)
	if err != nil {
		logger.FromContext(r.Context(), h.logger).Warn("Failed to verify payment", zap.String("tx_ref", txRef), zap.Error(err))
		writePaymentError(w, err, map[string]interface{}{"verified": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "success",
		"verified":       v.Verified,
		"tx_ref":         v.TxRef,
		"amount":         v.Amount,
		"currency":       v.Currency,
		"payment_status": v.Status,
		"email":          v.Email,
		"first_name":     v.FirstName,
		"last_name":      v.LastName,
		"created_at":     v.CreatedAt,
	})
}

// GetTransaction returns a stored transaction to the user who paid for it.
func (h *PaymentHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txRef := mux.Vars(r)["tx_ref"]

	tx, err := h.service.Get(r.Context(), txRef)
	if err != nil {
		if errors.Is(err, services.ErrTransactionNotFound) {
			writeError(w, http.StatusNotFound, "transaction not found")
			return
		}
		logger.FromContext(r.Context(), h.logger).Error("Failed to fetch transaction", zap.String("tx_ref", txRef), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch transaction")
		return
	}

	if claims, ok := ClaimsFromContext(r.Context()); ok && tx.Customer.Email != "" &&
		!strings.EqualFold(claims.Email, tx.Customer.Email) {
		writeError(w, http.StatusForbidden, "not allowed to view this transaction")
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

func (h *PaymentHandler) ListBanks(w http.ResponseWriter, r *http.Request) {
	banks, err := h.service.Banks(r.Context(), r.URL.Query().Get("country"))
	if err != nil {
		writePaymentError(w, err, nil)
		return
	}
	if banks == nil {
		banks = []models.Bank{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   banks,
	})
}
