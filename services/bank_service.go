package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/stepacool/cursor-hackathon-submission/database"
	"github.com/stepacool/cursor-hackathon-submission/models"
	"github.com/stepacool/cursor-hackathon-submission/utils"
)

// CreateBankAccountDTO представляет данные для создания банковского счета
type CreateBankAccountDTO struct {
	Title          string `validate:"required,max=255"`
	Currency       string `validate:"len=3,alpha"`
	InitialBalance string `validate:"non_negative_amount"`
	UserID         string `validate:"required"`
}

var createAccountMessages = map[string]string{
	"Title.required": "Account title is required",
	"Title.max":      "Account title must be at most 255 characters",
	"Currency":       "Invalid currency code",
	"InitialBalance": "Initial balance cannot be negative",
	"UserID":         "Unauthorized",
}

// BankService предоставляет методы для работы с банковскими счетами и журналом
type BankService struct {
	store      database.Store
	validator  *validator.Validate
	maxRetries int
	now        func() time.Time
	randIntn   func(n int) int
}

// NewBankService создает новый экземпляр BankService
func NewBankService(store database.Store, maxRetries int) *BankService {
	if maxRetries < 1 {
		maxRetries = 3
	}
	return &BankService{
		store:      store,
		validator:  newValidator(),
		maxRetries: maxRetries,
		now:        time.Now,
		randIntn:   rand.Intn,
	}
}

// CreateBankAccount создает новый счет со статусом ACTIVE и начальным балансом
func (s *BankService) CreateBankAccount(ctx context.Context, dto CreateBankAccountDTO) (*models.BankAccount, error) {
	// Устанавливаем значения по умолчанию
	dto.Title = strings.TrimSpace(dto.Title)
	dto.Currency = strings.ToUpper(strings.TrimSpace(dto.Currency))
	if dto.Currency == "" {
		dto.Currency = "USD"
	}

	// Валидируем DTO
	if err := s.validator.Struct(dto); err != nil {
		return nil, validationError(err, createAccountMessages)
	}

	var balance int64
	if raw := strings.TrimSpace(dto.InitialBalance); raw != "" {
		cents, err := utils.ParseMinorUnits(raw)
		if err != nil || cents < 0 {
			return nil, badRequest(createAccountMessages["InitialBalance"])
		}
		balance = cents
	}

	now := s.now().UTC()
	account := &models.BankAccount{
		UserID:    dto.UserID,
		Title:     dto.Title,
		Balance:   utils.FormatMinorUnits(balance),
		Currency:  dto.Currency,
		Status:    models.AccountStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for attempt := 1; ; attempt++ {
		account.AccountNumber = s.generateAccountNumber()
		err := s.store.CreateAccount(ctx, account)
		if err == nil {
			break
		}
		if errors.Is(err, database.ErrDuplicateAccountNumber) && attempt < s.maxRetries {
			continue
		}
		return nil, persistenceError("create account", err)
	}

	utils.LogInfo("account %d (%s) created for user %s", account.ID, account.AccountNumber, account.UserID)
	return account, nil
}

// GetAccount возвращает счет, если он принадлежит пользователю
func (s *BankService) GetAccount(ctx context.Context, id uint, userID string) (*models.BankAccount, error) {
	if id == 0 {
		return nil, badRequest("Invalid account id")
	}
	account, err := s.store.GetAccountByID(ctx, id, userID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, newError(KindNotFound, "Account not found")
	}
	if err != nil {
		return nil, persistenceError("get account", err)
	}
	return account, nil
}

// ListAccounts возвращает все счета пользователя, новые первыми
func (s *BankService) ListAccounts(ctx context.Context, userID string) ([]models.BankAccount, error) {
	accounts, err := s.store.ListAccountsByOwner(ctx, userID)
	if err != nil {
		return nil, persistenceError("list accounts", err)
	}
	return accounts, nil
}

// ListTransactions возвращает операции, где пользователь владеет счетом отправителя или получателя
func (s *BankService) ListTransactions(ctx context.Context, userID string) ([]models.TransactionView, error) {
	rows, err := s.store.ListTransactionsForUser(ctx, userID)
	if err != nil {
		return nil, persistenceError("list transactions", err)
	}
	return rows, nil
}

// ListOTPs возвращает одноразовые коды пользователя
func (s *BankService) ListOTPs(ctx context.Context, userID string) ([]models.OTP, error) {
	otps, err := s.store.ListOTPsForUser(ctx, userID)
	if err != nil {
		return nil, persistenceError("list otps", err)
	}
	return otps, nil
}

// generateAccountNumber генерирует номер вида ACC-<unix ms><0..999>
func (s *BankService) generateAccountNumber() string {
	return fmt.Sprintf("ACC-%d%d", s.now().UnixMilli(), s.randIntn(1000))
}
