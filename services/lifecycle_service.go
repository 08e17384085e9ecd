package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/stepacool/cursor-hackathon-submission/database"
	"github.com/stepacool/cursor-hackathon-submission/models"
	"github.com/stepacool/cursor-hackathon-submission/utils"
)

// LifecycleAction - действие над статусом счета
type LifecycleAction string

const (
	ActionFreeze   LifecycleAction = "freeze"
	ActionUnfreeze LifecycleAction = "unfreeze"
	ActionClose    LifecycleAction = "close"
)

// StatusChangeResult - обновленный счет и сообщение для клиента.
// Transaction заполнен, если при закрытии остаток переведен на другой счет.
type StatusChangeResult struct {
	Account     models.BankAccount
	Message     string
	Transaction *models.Transaction

	transferred int64
}

// LifecycleService управляет статусом счетов: ACTIVE <-> SUSPENDED, ACTIVE|SUSPENDED -> CLOSED
type LifecycleService struct {
	store            database.TxStore
	metrics          *utils.Metrics
	referenceRetries int
	now              func() time.Time
	randIntn         func(n int) int
}

// NewLifecycleService создает новый экземпляр LifecycleService
func NewLifecycleService(store database.TxStore, metrics *utils.Metrics) *LifecycleService {
	if metrics == nil {
		metrics = utils.GetMetrics()
	}
	return &LifecycleService{
		store:            store,
		metrics:          metrics,
		referenceRetries: 3,
		now:              time.Now,
		randIntn:         rand.Intn,
	}
}

// ParseLifecycleAction разбирает действие из запроса
func ParseLifecycleAction(raw string) (LifecycleAction, error) {
	switch action := LifecycleAction(strings.ToLower(strings.TrimSpace(raw))); action {
	case ActionFreeze, ActionUnfreeze, ActionClose:
		return action, nil
	default:
		return "", badRequest(`Invalid action. Must be "freeze", "unfreeze", or "close"`)
	}
}

// SetStatus применяет действие к счету владельца ownerID.
// Строка счета блокируется, поэтому смена статуса не пересекается с переводом.
func (s *LifecycleService) SetStatus(ctx context.Context, accountID uint, ownerID string, action LifecycleAction) (*StatusChangeResult, error) {
	return s.apply(ctx, accountID, ownerID, action, "")
}

// CloseAndTransfer закрывает счет, предварительно переводя положительный остаток
// на активный счет того же владельца с номером toAccountNumber. Перевод остатка
// и закрытие фиксируются одной транзакцией.
func (s *LifecycleService) CloseAndTransfer(ctx context.Context, accountID uint, ownerID, toAccountNumber string) (*StatusChangeResult, error) {
	toAccountNumber = strings.ToUpper(strings.TrimSpace(toAccountNumber))
	if toAccountNumber == "" {
		return nil, badRequest("Destination account number is required")
	}
	return s.apply(ctx, accountID, ownerID, ActionClose, toAccountNumber)
}

func (s *LifecycleService) apply(ctx context.Context, accountID uint, ownerID string, action LifecycleAction, transferTo string) (*StatusChangeResult, error) {
	start := time.Now()

	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, badRequest("Unauthorized")
	}
	if accountID == 0 {
		return nil, badRequest("Invalid account id")
	}
	if _, err := ParseLifecycleAction(string(action)); err != nil {
		return nil, err
	}

	var result *StatusChangeResult
	err := s.store.WithinTx(ctx, func(tx database.Store) error {
		var res *StatusChangeResult
		var err error
		if transferTo == "" {
			res, err = s.changeStatus(ctx, tx, accountID, ownerID, action)
		} else {
			res, err = s.closeWithTransfer(ctx, tx, accountID, ownerID, transferTo)
		}
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		var bankErr *BankError
		if !errors.As(err, &bankErr) {
			bankErr = persistenceError("set status commit", err)
		}
		s.metrics.RecordStatusChange(string(action), bankErr)
		utils.LogOperation("account status "+string(action), start, bankErr)
		return nil, bankErr
	}

	s.metrics.RecordStatusChange(string(action), nil)
	if result.Transaction != nil {
		s.metrics.RecordTransfer(time.Since(start), result.Transaction.Currency, result.transferred, "")
	}
	utils.LogInfo("account %d: %s -> %s", accountID, action, result.Account.Status)
	return result, nil
}

func (s *LifecycleService) changeStatus(ctx context.Context, tx database.Store, accountID uint, ownerID string, action LifecycleAction) (*StatusChangeResult, error) {
	account, err := tx.LockAccountForOwner(ctx, accountID, ownerID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, newError(KindNotFound, "Account not found")
	}
	if err != nil {
		return nil, persistenceError("set status: lock account", err)
	}

	status, closedAt, message, bankErr := s.transition(account, action)
	if bankErr != nil {
		return nil, bankErr
	}
	updated, err := s.saveStatus(ctx, tx, account.ID, ownerID, status, closedAt)
	if err != nil {
		return nil, err
	}
	return &StatusChangeResult{Account: *updated, Message: message}, nil
}

// closeWithTransfer переводит остаток закрываемого счета и закрывает его.
// Оба счета блокируются по возрастанию id, как при обычном переводе.
func (s *LifecycleService) closeWithTransfer(ctx context.Context, tx database.Store, accountID uint, ownerID, toNumber string) (*StatusChangeResult, error) {
	destNotFound := newError(KindNotFound, "Transfer destination account not found")

	dest, err := tx.GetAccountByNumber(ctx, toNumber)
	if errors.Is(err, database.ErrNotFound) {
		return nil, destNotFound
	}
	if err != nil {
		return nil, persistenceError("close: find destination", err)
	}
	if dest.ID == accountID {
		return nil, newError(KindSelfTransfer, "Cannot transfer funds to the same account being closed")
	}

	locked := make(map[uint]*models.BankAccount, 2)
	for _, id := range ascendingIDs(accountID, dest.ID) {
		account, err := tx.LockAccountForOwner(ctx, id, ownerID)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, persistenceError("close: lock accounts", err)
		}
		locked[id] = account
	}

	source := locked[accountID]
	if source == nil {
		return nil, newError(KindNotFound, "Account not found")
	}
	status, closedAt, message, bankErr := s.transition(source, ActionClose)
	if bankErr != nil {
		return nil, bankErr
	}
	dest = locked[dest.ID]
	if dest == nil {
		return nil, destNotFound
	}
	if dest.IsClosed() || dest.Status != models.AccountStatusActive {
		return nil, newError(KindInactiveAccount, "Transfer destination account is not active")
	}
	if source.Currency != dest.Currency {
		return nil, newError(KindCurrencyMismatch, "Currency mismatch between accounts")
	}

	fromBalance, err := utils.ParseMinorUnits(source.Balance)
	if err != nil || fromBalance < 0 {
		return nil, invalidBalance(source, err)
	}
	toBalance, err := utils.ParseMinorUnits(dest.Balance)
	if err != nil || toBalance < 0 {
		return nil, invalidBalance(dest, err)
	}

	var row *models.Transaction
	if fromBalance > 0 {
		if toBalance > utils.MaxMinorUnits-fromBalance {
			return nil, badRequest("Transfer would exceed the destination account balance limit")
		}
		newTo := utils.FormatMinorUnits(toBalance + fromBalance)
		for _, upd := range orderedUpdates(source.ID, utils.FormatMinorUnits(0), dest.ID, newTo) {
			if err := tx.UpdateBalance(ctx, upd.id, upd.balance); err != nil {
				return nil, persistenceError("close: update balance", err)
			}
		}

		now := s.now().UTC()
		row = &models.Transaction{
			FromAccountID: &source.ID,
			ToAccountID:   &dest.ID,
			Amount:        utils.FormatMinorUnits(fromBalance),
			Currency:      source.Currency,
			Type:          models.TransactionTypeTransfer,
			Status:        models.TransactionStatusCompleted,
			Description:   transferDescription("", dest.Title, "Account closure"),
			CreatedAt:     now,
			CompletedAt:   &now,
			UpdatedAt:     &now,
		}
		err := insertLedgerRow(ctx, tx, row, s.referenceRetries, func() string {
			return newReference(s.now(), s.randIntn)
		})
		if err != nil {
			return nil, err
		}
		message = fmt.Sprintf("Account closed successfully. Remaining balance of %s %s transferred to %s",
			row.Amount, row.Currency, dest.AccountNumber)
	}

	updated, err := s.saveStatus(ctx, tx, source.ID, ownerID, status, closedAt)
	if err != nil {
		return nil, err
	}
	result := &StatusChangeResult{Account: *updated, Message: message, Transaction: row}
	if row != nil {
		result.transferred = fromBalance
	}
	return result, nil
}

func (s *LifecycleService) saveStatus(ctx context.Context, tx database.Store, id uint, ownerID string, status models.AccountStatus, closedAt *time.Time) (*models.BankAccount, error) {
	if err := tx.UpdateStatus(ctx, id, status, closedAt); err != nil {
		return nil, persistenceError("set status: update", err)
	}
	updated, err := tx.GetAccountByID(ctx, id, ownerID)
	if err != nil {
		return nil, persistenceError("set status: reload", err)
	}
	return updated, nil
}

// transition проверяет переход и возвращает новый статус, closed_at и сообщение
func (s *LifecycleService) transition(account *models.BankAccount, action LifecycleAction) (models.AccountStatus, *time.Time, string, *BankError) {
	if account.IsClosed() {
		return "", nil, "", newError(KindAlreadyClosed, "Cannot modify a closed account")
	}

	switch action {
	case ActionFreeze:
		if account.Status == models.AccountStatusSuspended {
			return "", nil, "", newError(KindInvalidTransition, "Account is already frozen")
		}
		if account.Status != models.AccountStatusActive {
			return "", nil, "", newError(KindInvalidTransition, "Account cannot be frozen")
		}
		return models.AccountStatusSuspended, nil, "Account frozen successfully", nil
	case ActionUnfreeze:
		if account.Status != models.AccountStatusSuspended {
			return "", nil, "", newError(KindInvalidTransition, "Account is not frozen")
		}
		return models.AccountStatusActive, nil, "Account unfrozen successfully", nil
	case ActionClose:
		closedAt := s.now().UTC()
		return models.AccountStatusClosed, &closedAt, "Account closed successfully", nil
	default:
		return "", nil, "", newError(KindInvalidTransition, "Invalid action")
	}
}

func ascendingIDs(a, b uint) []uint {
	if b < a {
		return []uint{b, a}
	}
	return []uint{a, b}
}
