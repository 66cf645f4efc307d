package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TxStatus string

const (
	TxInitiated TxStatus = "initiated"
	TxSuccess   TxStatus = "success"
	TxFailed    TxStatus = "failed"
	TxUnknown   TxStatus = "unknown"
)

// Terminal reports whether no further transition is accepted.
func (s TxStatus) Terminal() bool {
	return s == TxSuccess || s == TxFailed
}

type Customer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Transaction is one payment attempt, keyed by TxRef across initiation,
// webhook and verification.
type Transaction struct {
	TxRef          string          `json:"tx_ref"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Customer       Customer        `json:"customer"`
	Status         TxStatus        `json:"status"`
	ProviderStatus string          `json:"provider_status,omitempty"`
	Source         string          `json:"source,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Transition sources.
const (
	SourceInitiate = "initiate"
	SourceWebhook  = "webhook"
	SourceVerify   = "verify"
)

// Transition is a requested status change. Amount, Currency and Email only
// seed a record that does not exist yet. With UpdateOnly set a missing
// record is left missing.
type Transition struct {
	TxRef          string
	Status         TxStatus
	ProviderStatus string
	Source         string
	Amount         decimal.Decimal
	Currency       string
	Email          string
	UpdateOnly     bool
}
