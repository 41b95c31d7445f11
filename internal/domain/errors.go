package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies why a session ended. Empty on success.
type ErrorCode string

const (
	CodeNone                  ErrorCode = ""
	CodeDetectionIOError      ErrorCode = "DetectionIOError"
	CodeTriggerFailed         ErrorCode = "TriggerFailed"
	CodePayloadMissing        ErrorCode = "PayloadMissing"
	CodeSigningDispatchFailed ErrorCode = "SigningDispatchFailed"
	CodeSigningTimeout        ErrorCode = "SigningTimeout"
	CodeSigningRejected       ErrorCode = "SigningRejected"
	CodeConfirmationFailed    ErrorCode = "ConfirmationFailed"
	CodeSessionTimeout        ErrorCode = "SessionTimeout"
	CodeCancelled             ErrorCode = "Cancelled"
	CodeInternal              ErrorCode = "Internal"
)

// Describe returns operator guidance for a code.
func (c ErrorCode) Describe() string {
	switch c {
	case CodeNone:
		return "bid submitted"
	case CodeDetectionIOError:
		return "auction page could not be read"
	case CodeTriggerFailed:
		return "bid button could not be clicked"
	case CodePayloadMissing:
		return "no data to sign was found on the page"
	case CodeSigningDispatchFailed:
		return "signing agent unreachable over every transport (is NCALayer running?)"
	case CodeSigningTimeout:
		return "signing agent did not answer in time (check the agent window / PIN prompt)"
	case CodeSigningRejected:
		return "signing agent refused to sign (check certificate storage and password)"
	case CodeConfirmationFailed:
		return "signature was filled but the site did not confirm the bid"
	case CodeSessionTimeout:
		return "auction did not open before the monitoring deadline"
	case CodeCancelled:
		return "stopped by operator"
	default:
		return "internal error"
	}
}

var (
	// ErrElementAbsent is returned by a Surface when the selector matches nothing.
	ErrElementAbsent = errors.New("element not present")

	// ErrSigningTimeout means no signature arrived before the deadline.
	ErrSigningTimeout = errors.New("signature not received before timeout")

	// ErrAgentRejected means the agent answered but refused to sign.
	ErrAgentRejected = errors.New("signing agent rejected the request")

	// ErrSuperseded means a newer request replaced this one before it resolved.
	ErrSuperseded = errors.New("signing request superseded")
)

// BidError carries a taxonomy code through the orchestrator.
type BidError struct {
	Code ErrorCode
	// Partial marks failures that happened after the trigger action was sent.
	Partial bool
	Err     error
}

// NewBidError wraps err with a code.
func NewBidError(code ErrorCode, err error) *BidError {
	return &BidError{Code: code, Err: err}
}

// NewPartialBidError wraps err with a code and marks it as a partial failure.
func NewPartialBidError(code ErrorCode, err error) *BidError {
	return &BidError{Code: code, Partial: true, Err: err}
}

func (e *BidError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *BidError) Unwrap() error {
	return e.Err
}

// CodeOf extracts the taxonomy code from an error chain.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return CodeNone
	}
	var be *BidError
	if errors.As(err, &be) {
		return be.Code
	}
	return CodeInternal
}

// IsPartial reports whether err marks an action-fired-but-incomplete failure.
func IsPartial(err error) bool {
	var be *BidError
	return errors.As(err, &be) && be.Partial
}
