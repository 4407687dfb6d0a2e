package nwc

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when the wallet does not answer in time
	ErrTimeout = errors.New("NWC request timed out")
	// ErrDecryption is returned when the wallet response cannot be decrypted or parsed
	ErrDecryption = errors.New("failed to decrypt NWC response")
	// ErrMissingPreimage is returned for a response with neither an error nor a preimage
	ErrMissingPreimage = errors.New("zap failed: preimage not received")
	// ErrNoConnection is returned when paying without a wallet connection
	ErrNoConnection = errors.New("no wallet connection")
)

// NIP-47 error codes
const (
	CodeRateLimited         = "RATE_LIMITED"
	CodeNotImplemented      = "NOT_IMPLEMENTED"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeQuotaExceeded       = "QUOTA_EXCEEDED"
	CodeRestricted          = "RESTRICTED"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInternal            = "INTERNAL"
	CodeOther               = "OTHER"
	CodePaymentFailed       = "PAYMENT_FAILED"
)

// WalletError is an error object returned by the wallet
type WalletError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *WalletError) Error() string {
	if e.Code == "" {
		return "wallet error: " + e.Message
	}
	return fmt.Sprintf("wallet error: %s: %s", e.Code, e.Message)
}

// PublishError means the request never reached the wallet relay
type PublishError struct {
	Relay  string
	Reason string // relay's OK false message, if any
	Err    error
}

func (e *PublishError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("failed to publish NWC request to %s: %v", e.Relay, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("failed to publish NWC request to %s: %s", e.Relay, e.Reason)
	}
	return "failed to publish NWC request to " + e.Relay
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
