package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stepacool/cursor-hackathon-submission/models"
)

var (
	_ TxStore    = (*Repository)(nil)
	_ OTPExpirer = (*Repository)(nil)
)

// Repository реализует TxStore поверх GORM и PostgreSQL
type Repository struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

// NewRepository создает репозиторий. lockTimeout ограничивает ожидание
// блокировок строк внутри транзакции (0 - без ограничения).
func NewRepository(db *gorm.DB, lockTimeout time.Duration) *Repository {
	return &Repository{db: db, lockTimeout: lockTimeout}
}

// WithinTx выполняет fn в транзакции. Любая ошибка или паника откатывает ее.
func (r *Repository) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if r.lockTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = %d", r.lockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("set lock_timeout: %w", err)
			}
		}
		return fn(&Repository{db: tx, lockTimeout: r.lockTimeout})
	})
}

// Методы для работы с банковскими счетами

func (r *Repository) CreateAccount(ctx context.Context, account *models.BankAccount) error {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "account_number"}}, DoNothing: true}).
		Create(account)
	if result.Error != nil {
		return fmt.Errorf("insert account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDuplicateAccountNumber
	}
	return nil
}

func (r *Repository) GetAccountByID(ctx context.Context, id uint, ownerID string) (*models.BankAccount, error) {
	var account models.BankAccount
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, ownerID).
		Take(&account).Error
	if err != nil {
		return nil, wrapNotFound("get account by id", err)
	}
	return &account, nil
}

func (r *Repository) GetAccountByNumber(ctx context.Context, number string) (*models.BankAccount, error) {
	var account models.BankAccount
	err := r.db.WithContext(ctx).
		Where("account_number = ?", number).
		Take(&account).Error
	if err != nil {
		return nil, wrapNotFound("get account by number", err)
	}
	return &account, nil
}

func (r *Repository) ListAccountsByOwner(ctx context.Context, ownerID string) ([]models.BankAccount, error) {
	accounts := []models.BankAccount{}
	err := r.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("created_at DESC, id DESC").
		Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// LockAccountByID выполняет SELECT ... FOR UPDATE
func (r *Repository) LockAccountByID(ctx context.Context, id uint) (*models.BankAccount, error) {
	return r.lockAccount(r.db.WithContext(ctx).Where("id = ?", id))
}

// LockAccountForOwner выполняет SELECT ... FOR UPDATE по id и владельцу
func (r *Repository) LockAccountForOwner(ctx context.Context, id uint, ownerID string) (*models.BankAccount, error) {
	if ownerID == "" {
		return nil, ErrNotFound
	}
	return r.lockAccount(r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, ownerID))
}

func (r *Repository) lockAccount(query *gorm.DB) (*models.BankAccount, error) {
	var account models.BankAccount
	if err := query.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&account).Error; err != nil {
		return nil, wrapNotFound("lock account", err)
	}
	return &account, nil
}

func (r *Repository) UpdateBalance(ctx context.Context, id uint, newBalance string) error {
	result := r.db.WithContext(ctx).
		Model(&models.BankAccount{}).
		Where("id = ? AND closed_at IS NULL", id).
		Updates(map[string]interface{}{
			"balance":    newBalance,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("update balance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountClosed
	}
	return nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id uint, status models.AccountStatus, closedAt *time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.BankAccount{}).
		Where("id = ? AND closed_at IS NULL", id).
		Updates(map[string]interface{}{
			"status":     status,
			"closed_at":  closedAt,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("update status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountClosed
	}
	return nil
}

// Методы для работы с журналом операций

// InsertTransaction вставляет строку журнала. Если референс занят, строка не
// вставляется и возвращается ErrDuplicateReference; транзакция остается рабочей.
func (r *Repository) InsertTransaction(ctx context.Context, row *models.Transaction) error {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "reference"}}, DoNothing: true}).
		Create(row)
	if result.Error != nil {
		return fmt.Errorf("insert transaction: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDuplicateReference
	}
	return nil
}

func (r *Repository) ListTransactionsForUser(ctx context.Context, userID string) ([]models.TransactionView, error) {
	rows := []models.TransactionView{}
	err := r.db.WithContext(ctx).
		Table("transactions AS t").
		Select(`t.*,
			from_acc.account_number AS from_account_number,
			from_acc.user_id AS from_user_id,
			to_acc.account_number AS to_account_number,
			to_acc.user_id AS to_user_id`).
		Joins("LEFT JOIN bank_accounts AS from_acc ON t.from_account_id = from_acc.id").
		Joins("LEFT JOIN bank_accounts AS to_acc ON t.to_account_id = to_acc.id").
		Where("from_acc.user_id = ? OR to_acc.user_id = ?", userID, userID).
		Order("t.created_at DESC, t.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return rows, nil
}

func (r *Repository) ListTransactionsForAccount(ctx context.Context, accountID uint, limit int) ([]models.Transaction, error) {
	rows := []models.Transaction{}
	query := r.db.WithContext(ctx).
		Where("from_account_id = ? OR to_account_id = ?", accountID, accountID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list account transactions: %w", err)
	}
	return rows, nil
}

func (r *Repository) ListOTPsForUser(ctx context.Context, userID string) ([]models.OTP, error) {
	otps := []models.OTP{}
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&otps).Error
	if err != nil {
		return nil, fmt.Errorf("list otps: %w", err)
	}
	return otps, nil
}

// ExpireOTPs помечает истекшие коды в статусе PENDING как EXPIRED
func (r *Repository) ExpireOTPs(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OTP{}).
		Where("status = ? AND expires_at <= ?", models.OTPStatusPending, now).
		Update("status", models.OTPStatusExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("expire otps: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func wrapNotFound(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
