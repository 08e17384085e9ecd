package services

import (
	"errors"

	"github.com/stepacool/cursor-hackathon-submission/utils"
)

// ErrorKind - класс ошибки банковской операции
type ErrorKind string

const (
	KindBadRequest         ErrorKind = "BadRequest"
	KindNotFound           ErrorKind = "NotFound"
	KindInactiveAccount    ErrorKind = "InactiveAccount"
	KindSelfTransfer       ErrorKind = "SelfTransfer"
	KindCurrencyMismatch   ErrorKind = "CurrencyMismatch"
	KindInsufficientFunds  ErrorKind = "InsufficientFunds"
	KindInvalidBalance     ErrorKind = "InvalidBalance"
	KindAlreadyClosed      ErrorKind = "AlreadyClosed"
	KindInvalidTransition  ErrorKind = "InvalidTransition"
	KindPersistenceFailure ErrorKind = "PersistenceFailure"
)

// BankError - типизированная ошибка с сообщением, безопасным для клиента.
// Err хранит внутреннюю причину и наружу не отдается.
type BankError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *BankError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *BankError) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по классу, чтобы работал errors.Is(err, ErrNotFound)
func (e *BankError) Is(target error) bool {
	t, ok := target.(*BankError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

var (
	ErrBadRequest         = &BankError{Kind: KindBadRequest}
	ErrNotFound           = &BankError{Kind: KindNotFound}
	ErrInactiveAccount    = &BankError{Kind: KindInactiveAccount}
	ErrSelfTransfer       = &BankError{Kind: KindSelfTransfer}
	ErrCurrencyMismatch   = &BankError{Kind: KindCurrencyMismatch}
	ErrInsufficientFunds  = &BankError{Kind: KindInsufficientFunds}
	ErrInvalidBalance     = &BankError{Kind: KindInvalidBalance}
	ErrAlreadyClosed      = &BankError{Kind: KindAlreadyClosed}
	ErrInvalidTransition  = &BankError{Kind: KindInvalidTransition}
	ErrPersistenceFailure = &BankError{Kind: KindPersistenceFailure}
)

func newError(kind ErrorKind, message string) *BankError {
	return &BankError{Kind: kind, Message: message}
}

func badRequest(message string) *BankError {
	return newError(KindBadRequest, message)
}

// persistenceError логирует причину с местом вызова и возвращает обобщенную ошибку
func persistenceError(op string, err error) *BankError {
	utils.LogErrorSkip(1, "%s: %v", op, err)
	utils.GetMetrics().RecordCriticalError()
	return &BankError{
		Kind:    KindPersistenceFailure,
		Message: "An unexpected error occurred. Please try again later",
		Err:     err,
	}
}

// KindOf возвращает класс ошибки; неизвестные ошибки считаются сбоем хранилища
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var bankErr *BankError
	if errors.As(err, &bankErr) {
		return bankErr.Kind
	}
	return KindPersistenceFailure
}
