package models

import (
	"time"
)

// OTPStatus представляет статус одноразового кода
type OTPStatus string

const (
	OTPStatusPending OTPStatus = "PENDING"
	OTPStatusUsed    OTPStatus = "USED"
	OTPStatusExpired OTPStatus = "EXPIRED"
)

// OTP - одноразовый код подтверждения операции. Выпуск и проверка кодов
// выполняются внешним сервисом, здесь только структура таблицы.
type OTP struct {
	ID            uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        string     `gorm:"column:user_id;not null;index" json:"user_id"`
	Token         string     `gorm:"column:token;not null" json:"token"`
	TransactionID *uint      `gorm:"column:transaction_id" json:"transaction_id"`
	Status        OTPStatus  `gorm:"column:status;type:varchar(20);not null;default:PENDING" json:"status"`
	ExpiresAt     time.Time  `gorm:"column:expires_at;not null" json:"expires_at"`
	UsedAt        *time.Time `gorm:"column:used_at" json:"used_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null" json:"created_at"`
}

func (OTP) TableName() string {
	return "otps"
}
