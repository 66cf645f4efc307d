package services

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	KindUnexpected ErrorKind = iota
	KindConfiguration
	KindValidation
	KindNetwork
	KindProvider
	KindSignature
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindNetwork:
		return "network"
	case KindProvider:
		return "provider"
	case KindSignature:
		return "signature"
	default:
		return "unexpected"
	}
}

// PaymentError is the only error type returned by the payment operations.
// Message is safe to show to API callers.
type PaymentError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *PaymentError) Error() string {
	return e.Message
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// Retryable is true for transport failures and timeouts only.
func (e *PaymentError) Retryable() bool {
	return e.Kind == KindNetwork
}

func configurationError(msg string) *PaymentError {
	return &PaymentError{Kind: KindConfiguration, Message: msg}
}

func validationError(msg string) *PaymentError {
	return &PaymentError{Kind: KindValidation, Message: msg}
}

func networkError(err error) *PaymentError {
	return &PaymentError{Kind: KindNetwork, Message: fmt.Sprintf("network error: %v", err), Err: err}
}

func unexpectedError(err error) *PaymentError {
	return &PaymentError{Kind: KindUnexpected, Message: fmt.Sprintf("unexpected error: %v", err), Err: err}
}

func providerError(msg, fallback string) *PaymentError {
	if msg == "" {
		msg = fallback
	}
	return &PaymentError{Kind: KindProvider, Message: msg}
}

func signatureError() *PaymentError {
	return &PaymentError{Kind: KindSignature, Message: "invalid webhook signature"}
}

// AsPaymentError returns err as a *PaymentError, wrapping anything else as
// an unexpected error.
func AsPaymentError(err error) *PaymentError {
	if err == nil {
		return nil
	}
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe
	}
	return unexpectedError(err)
}
