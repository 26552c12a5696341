package service

import (
	"errors"
	"fmt"
)

// ErrorKind 稳定的机器可读错误类型，对外返回给调用方
type ErrorKind string

const (
	KindPaymentRejected    ErrorKind = "payment_rejected"
	KindWithdrawalRejected ErrorKind = "withdrawal_rejected"
	KindAccountNotFound    ErrorKind = "account_not_found"
	KindValidation         ErrorKind = "validation_error"
	KindInsufficientFunds  ErrorKind = "insufficient_funds"
	KindLedgerConsistency  ErrorKind = "ledger_consistency"
	KindBusy               ErrorKind = "busy"
)

// LedgerError 业务错误
// Message 可以展示给用户；Err 是内部原因，只用于日志
type LedgerError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// Is 按 Kind 匹配，errors.Is(err, ErrPaymentRejected) 对任何同类错误都成立
func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	return ok && t.Kind == e.Kind
}

var (
	ErrPaymentRejected    = &LedgerError{Kind: KindPaymentRejected, Message: "Payment Rejected"}
	ErrWithdrawalRejected = &LedgerError{Kind: KindWithdrawalRejected, Message: "Withdrawal Rejected"}
	ErrAccountNotFound    = &LedgerError{Kind: KindAccountNotFound, Message: "Account not found"}
	ErrValidation         = &LedgerError{Kind: KindValidation, Message: "Validation Error"}
	ErrInsufficientFunds  = &LedgerError{Kind: KindInsufficientFunds, Message: "Insufficient funds"}
	ErrLedgerConsistency  = &LedgerError{Kind: KindLedgerConsistency, Message: "Ledger operation could not be committed, please retry"}
	ErrBusy               = &LedgerError{Kind: KindBusy, Message: "Account is busy, please retry"}
)

func newError(base *LedgerError, message string, cause error) *LedgerError {
	if message == "" {
		message = base.Message
	}
	return &LedgerError{Kind: base.Kind, Message: message, Err: cause}
}

func validationError(message string) *LedgerError {
	return newError(ErrValidation, message, nil)
}

func consistencyError(cause error) *LedgerError {
	return newError(ErrLedgerConsistency, "", cause)
}

// KindOf 返回错误类型，非 LedgerError 返回空
func KindOf(err error) ErrorKind {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}
