package models

import (
	"time"
)

// TransactionType представляет тип операции
type TransactionType string

const (
	TransactionTypeTransfer   TransactionType = "TRANSFER"
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
)

// TransactionStatus представляет статус операции
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// Transaction представляет запись журнала операций. После вставки не изменяется.
type Transaction struct {
	ID            uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	Reference     string            `gorm:"column:reference;unique;not null" json:"reference"`
	FromAccountID *uint             `gorm:"column:from_account_id;index:ix_transaction_from_created,priority:1" json:"from_account_id"`
	ToAccountID   *uint             `gorm:"column:to_account_id;index:ix_transaction_to_created,priority:1" json:"to_account_id"`
	Amount        string            `gorm:"column:amount;type:numeric(15,2);not null" json:"amount"`
	Currency      string            `gorm:"column:currency;type:char(3);not null" json:"currency"`
	Type          TransactionType   `gorm:"column:type;type:varchar(20);not null" json:"type"`
	Status        TransactionStatus `gorm:"column:status;type:varchar(20);not null" json:"status"`
	Description   string            `gorm:"column:description" json:"description"`
	CreatedAt     time.Time         `gorm:"column:created_at;not null;index:ix_transaction_from_created,priority:2;index:ix_transaction_to_created,priority:2" json:"created_at"`
	CompletedAt   *time.Time        `gorm:"column:completed_at" json:"completed_at"`
	UpdatedAt     *time.Time        `gorm:"column:updated_at" json:"updated_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// TransactionView - строка журнала вместе с номерами и владельцами счетов
type TransactionView struct {
	Transaction
	FromAccountNumber *string `gorm:"column:from_account_number" json:"from_account_number"`
	FromUserID        *string `gorm:"column:from_user_id" json:"from_user_id"`
	ToAccountNumber   *string `gorm:"column:to_account_number" json:"to_account_number"`
	ToUserID          *string `gorm:"column:to_user_id" json:"to_user_id"`
}
