package models

import (
	"time"
)

// AccountStatus представляет статус банковского счета
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
	AccountStatusClosed    AccountStatus = "CLOSED"
)

// BankAccount представляет банковский счет пользователя.
// Баланс хранится строкой с двумя знаками после запятой, арифметика
// выполняется в минимальных единицах (центах).
type BankAccount struct {
	ID            uint          `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountNumber string        `gorm:"column:account_number;unique;not null" json:"account_number"`
	UserID        string        `gorm:"column:user_id;not null;index:ix_account_user_status,priority:1" json:"user_id"`
	Title         string        `gorm:"column:title;not null" json:"title"`
	Balance       string        `gorm:"column:balance;type:numeric(15,2);not null;default:0.00" json:"balance"`
	Currency      string        `gorm:"column:currency;type:char(3);not null;default:USD" json:"currency"`
	Status        AccountStatus `gorm:"column:status;type:varchar(20);not null;default:ACTIVE;index:ix_account_user_status,priority:2" json:"status"`
	CreatedAt     time.Time     `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"column:updated_at;not null" json:"updated_at"`
	ClosedAt      *time.Time    `gorm:"column:closed_at" json:"closed_at"`
}

func (BankAccount) TableName() string {
	return "bank_accounts"
}

// IsClosed сообщает, закрыт ли счет
func (a *BankAccount) IsClosed() bool {
	return a.ClosedAt != nil || a.Status == AccountStatusClosed
}
