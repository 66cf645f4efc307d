package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/markjakearzadon/studybuddy-gobackend/internal/db"
	"github.com/markjakearzadon/studybuddy-gobackend/internal/models"
)

// PaymentProvider is implemented by ChapaClient.
type PaymentProvider interface {
	CreatePayment(ctx context.Context, req models.PaymentRequest) (*models.Checkout, error)
	VerifyPayment(ctx context.Context, txRef string) (*models.Verification, error)
	ListBanks(ctx context.Context, country string) ([]models.Bank, error)
}

type TransactionStore interface {
	Create(ctx context.Context, tx *models.Transaction) error
	FindByTxRef(ctx context.Context, txRef string) (*models.Transaction, error)
	Transition(ctx context.Context, t models.Transition) (bool, error)
}

// ReplayGuard deduplicates webhook deliveries.
type ReplayGuard interface {
	FirstSeen(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type PremiumMarker interface {
	MarkPremium(ctx context.Context, email string) error
}

var ErrTransactionNotFound = errors.New("transaction not found")

// PaymentService wires the provider, the reconciler and the record store.
// The first terminal status a transaction reaches is final.
type PaymentService struct {
	provider   PaymentProvider
	reconciler *Reconciler
	store      TransactionStore
	guard      ReplayGuard
	premium    PremiumMarker
	logger     *zap.Logger
}

func NewPaymentService(provider PaymentProvider, reconciler *Reconciler, store TransactionStore, guard ReplayGuard, premium PremiumMarker, logger *zap.Logger) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		provider:   provider,
		reconciler: reconciler,
		store:      store,
		guard:      guard,
		premium:    premium,
		logger:     logger,
	}
}

// Initiate creates the hosted checkout and records the transaction as
// initiated. A failed insert does not fail the call: the provider already
// holds the transaction and a later webhook or verify creates the record.
func (s *PaymentService) Initiate(ctx context.Context, req models.PaymentRequest) (*models.Checkout, error) {
	checkout, err := s.provider.CreatePayment(ctx, req)
	if err != nil {
		return nil, AsPaymentError(err)
	}

	tx := &models.Transaction{
		TxRef:    checkout.TxRef,
		Amount:   checkout.Amount,
		Currency: checkout.Currency,
		Customer: models.Customer{
			Email:     normalizeEmail(req.Email),
			FirstName: req.FirstName,
			LastName:  req.LastName,
		},
		Status: models.TxInitiated,
		Source: models.SourceInitiate,
	}
	if err := s.store.Create(ctx, tx); err != nil {
		s.logger.Error("Failed to record initiated transaction", zap.String("tx_ref", tx.TxRef), zap.Error(err))
	}

	s.logger.Info("Payment initiated", zap.String("tx_ref", checkout.TxRef))
	return checkout, nil
}

// HandleWebhook reconciles a signed delivery and persists its outcome.
// Redeliveries are acknowledged without being applied again.
func (s *PaymentService) HandleWebhook(ctx context.Context, raw []byte, signature string) (*models.WebhookOutcome, error) {
	outcome, err := s.reconciler.ProcessWebhook(raw, signature)
	if err != nil {
		return nil, err
	}

	key := webhookKey(raw)
	first, err := s.guard.FirstSeen(ctx, key)
	if err != nil {
		// the store's terminal-state filter still rejects replays
		s.logger.Warn("Replay guard unavailable", zap.String("tx_ref", outcome.TxRef), zap.Error(err))
		first = true
	}
	if !first {
		s.logger.Info("Skipping duplicate webhook", zap.String("tx_ref", outcome.TxRef))
		outcome.Duplicate = true
		return outcome, nil
	}

	status, ok := statusForWebhook(outcome)
	if !ok {
		s.logger.Info("Webhook status leaves transaction pending",
			zap.String("tx_ref", outcome.TxRef),
			zap.String("status", outcome.Status),
		)
		return outcome, nil
	}

	applied, err := s.store.Transition(ctx, models.Transition{
		TxRef:          outcome.TxRef,
		Status:         status,
		ProviderStatus: outcome.Status,
		Source:         models.SourceWebhook,
		Amount:         parseAmount(outcome.Amount),
		Currency:       outcome.Currency,
		Email:          normalizeEmail(outcome.Email),
	})
	if err != nil {
		s.releaseGuard(ctx, key, outcome.TxRef)
		s.logger.Error("Failed to record webhook outcome", zap.String("tx_ref", outcome.TxRef), zap.Error(err))
		return nil, unexpectedError(errors.New("failed to record payment outcome"))
	}
	outcome.Applied = applied
	if !applied {
		s.logger.Info("Transaction already final, status not changed",
			zap.String("tx_ref", outcome.TxRef),
			zap.String("status", outcome.Status),
		)
	}

	if status == models.TxSuccess {
		if err := s.upgradePayer(ctx, outcome.TxRef, outcome.Email, applied); err != nil {
			// the provider redelivers on a 5xx, which retries the upgrade
			s.releaseGuard(ctx, key, outcome.TxRef)
			s.logger.Error("Failed to upgrade payer", zap.String("tx_ref", outcome.TxRef), zap.Error(err))
			return nil, unexpectedError(errors.New("failed to upgrade payer"))
		}
	}
	return outcome, nil
}

// Verify polls the provider and records what it reports. Provider
// failures record unknown; transport failures record nothing.
func (s *PaymentService) Verify(ctx context.Context, txRef string) (*models.Verification, error) {
	v, err := s.provider.VerifyPayment(ctx, txRef)
	if err != nil {
		pe := AsPaymentError(err)
		if pe.Kind == KindProvider {
			// only transactions this service initiated are marked
			s.record(ctx, models.Transition{
				TxRef:      strings.TrimSpace(txRef),
				Status:     models.TxUnknown,
				Source:     models.SourceVerify,
				UpdateOnly: true,
			})
		}
		return nil, pe
	}

	status := statusForVerification(v.Status)
	applied := s.record(ctx, models.Transition{
		TxRef:          v.TxRef,
		Status:         status,
		ProviderStatus: v.Status,
		Source:         models.SourceVerify,
		Amount:         v.Amount,
		Currency:       v.Currency,
		Email:          normalizeEmail(v.Email),
	})
	if status == models.TxSuccess {
		if err := s.upgradePayer(ctx, v.TxRef, v.Email, applied); err != nil {
			s.logger.Error("Failed to upgrade payer", zap.String("tx_ref", v.TxRef), zap.Error(err))
		}
	}
	return v, nil
}

func (s *PaymentService) Banks(ctx context.Context, country string) ([]models.Bank, error) {
	banks, err := s.provider.ListBanks(ctx, country)
	if err != nil {
		return nil, AsPaymentError(err)
	}
	return banks, nil
}

func (s *PaymentService) Get(ctx context.Context, txRef string) (*models.Transaction, error) {
	tx, err := s.store.FindByTxRef(ctx, txRef)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return tx, nil
}

func (s *PaymentService) record(ctx context.Context, t models.Transition) bool {
	if t.TxRef == "" {
		return false
	}
	applied, err := s.store.Transition(ctx, t)
	if err != nil {
		s.logger.Error("Failed to record verification", zap.String("tx_ref", t.TxRef), zap.Error(err))
		return false
	}
	return applied
}

// upgradePayer marks the payer premium when the stored transaction is a
// success. It runs on every success report, not only the one that settled
// the transaction, so a failed upgrade is retried by the next delivery or
// verification. MarkPremium is idempotent.
func (s *PaymentService) upgradePayer(ctx context.Context, txRef, email string, applied bool) error {
	if !applied || email == "" {
		tx, err := s.store.FindByTxRef(ctx, txRef)
		switch {
		case err == nil:
			if !applied && tx.Status != models.TxSuccess {
				return nil
			}
			if email == "" {
				email = tx.Customer.Email
			}
		case !applied:
			return fmt.Errorf("load transaction %s: %w", txRef, err)
		}
	}
	return s.premium.MarkPremium(ctx, email)
}

func (s *PaymentService) releaseGuard(ctx context.Context, key, txRef string) {
	if err := s.guard.Release(ctx, key); err != nil {
		s.logger.Warn("Failed to release replay guard", zap.String("tx_ref", txRef), zap.Error(err))
	}
}

// parseAmount reads a provider amount, tolerating thousands separators.
// Anything else seeds the record with zero.
func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// statusForWebhook returns false when the delivery should not move the
// transaction (the provider still reports it as pending).
func statusForWebhook(o *models.WebhookOutcome) (models.TxStatus, bool) {
	switch o.Action {
	case models.ActionPaymentSuccess:
		return models.TxSuccess, true
	case models.ActionPaymentFailed:
		return models.TxFailed, true
	}
	if isPending(o.Status) {
		return "", false
	}
	return models.TxUnknown, true
}

func statusForVerification(status string) models.TxStatus {
	switch strings.ToLower(status) {
	case "success":
		return models.TxSuccess
	case "failed":
		return models.TxFailed
	case "pending":
		return models.TxInitiated
	default:
		return models.TxUnknown
	}
}

func isPending(status string) bool {
	return strings.EqualFold(status, "pending")
}

func webhookKey(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
