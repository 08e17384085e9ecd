package database

import (
	"context"
	"errors"
	"time"

	"github.com/stepacool/cursor-hackathon-submission/models"
)

var (
	// ErrNotFound - запись не найдена (или не принадлежит пользователю)
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateReference - референс операции уже занят
	ErrDuplicateReference = errors.New("duplicate transaction reference")
	// ErrDuplicateAccountNumber - номер счета уже занят
	ErrDuplicateAccountNumber = errors.New("duplicate account number")
	// ErrAccountClosed - попытка изменить закрытый счет
	ErrAccountClosed = errors.New("account is closed")
)

// AccountStore - доступ к банковским счетам
type AccountStore interface {
	CreateAccount(ctx context.Context, account *models.BankAccount) error
	GetAccountByID(ctx context.Context, id uint, ownerID string) (*models.BankAccount, error)
	GetAccountByNumber(ctx context.Context, number string) (*models.BankAccount, error)
	ListAccountsByOwner(ctx context.Context, ownerID string) ([]models.BankAccount, error)
	// LockAccountByID читает счет с блокировкой строки до конца транзакции
	LockAccountByID(ctx context.Context, id uint) (*models.BankAccount, error)
	// LockAccountForOwner блокирует только счет владельца ownerID.
	// Пустой ownerID ничего не находит.
	LockAccountForOwner(ctx context.Context, id uint, ownerID string) (*models.BankAccount, error)
	UpdateBalance(ctx context.Context, id uint, newBalance string) error
	UpdateStatus(ctx context.Context, id uint, status models.AccountStatus, closedAt *time.Time) error
}

// Ledger - журнал операций, только добавление
type Ledger interface {
	InsertTransaction(ctx context.Context, row *models.Transaction) error
	ListTransactionsForUser(ctx context.Context, userID string) ([]models.TransactionView, error)
	ListTransactionsForAccount(ctx context.Context, accountID uint, limit int) ([]models.Transaction, error)
	ListOTPsForUser(ctx context.Context, userID string) ([]models.OTP, error)
}

// OTPExpirer переводит просроченные одноразовые коды в EXPIRED
type OTPExpirer interface {
	ExpireOTPs(ctx context.Context, now time.Time) (int64, error)
}

// Store объединяет счета и журнал
type Store interface {
	AccountStore
	Ledger
}

// TxStore - Store, умеющий выполнять функцию в одной транзакции БД.
// Ошибка fn откатывает транзакцию, nil фиксирует ее.
type TxStore interface {
	Store
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
