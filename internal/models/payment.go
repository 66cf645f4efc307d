package models

import "github.com/shopspring/decimal"

type Customizations struct {
	Title       string
	Description string
}

type PaymentRequest struct {
	Amount         decimal.Decimal
	Currency       string
	Email          string
	FirstName      string
	LastName       string
	TxRef          string
	CallbackURL    string
	ReturnURL      string
	Customizations *Customizations
}

// Checkout is the result of a successful initialization. CheckoutURL is only
// handed to the payer and is never stored.
type Checkout struct {
	CheckoutURL string
	TxRef       string
	Amount      decimal.Decimal
	Currency    string
}

// Verification is the provider's view of a transaction. Status is the
// payment's status ("success", "pending", ...), not the outcome of the call.
type Verification struct {
	Verified  bool
	TxRef     string
	Amount    decimal.Decimal
	Currency  string
	Status    string
	Email     string
	FirstName string
	LastName  string
	CreatedAt string
}

type WebhookAction string

const (
	ActionPaymentSuccess WebhookAction = "payment_success"
	ActionPaymentFailed  WebhookAction = "payment_failed"
	ActionStatusUpdate   WebhookAction = "status_update"
)

// WebhookOutcome echoes the delivery's fields as sent. Amount is the raw
// provider text and may not be a number.
type WebhookOutcome struct {
	Action    WebhookAction
	TxRef     string
	Status    string
	Amount    string
	Currency  string
	Email     string
	Message   string
	Duplicate bool
	Applied   bool
}

type Bank struct {
	Name          string `json:"name"`
	Slug          string `json:"slug,omitempty"`
	Swift         string `json:"swift,omitempty"`
	Currency      string `json:"currency,omitempty"`
	AcctLength    int    `json:"acct_length,omitempty"`
	IsMobileMoney int    `json:"is_mobilemoney,omitempty"`
	IsActive      int    `json:"is_active,omitempty"`
}
