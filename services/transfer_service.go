package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/stepacool/cursor-hackathon-submission/database"
	"github.com/stepacool/cursor-hackathon-submission/models"
	"github.com/stepacool/cursor-hackathon-submission/utils"
)

// TransferInput - проверенные на границе API данные перевода.
// Порядок полей совпадает с порядком проверок.
type TransferInput struct {
	FromAccountID   int64  `validate:"gt=0"`
	ToAccountNumber string `validate:"required,max=50"`
	Amount          string `validate:"required,positive_amount"`
	RecipientName   string `validate:"omitempty,max=255"`
	Note            string `validate:"omitempty,max=500"`
	OwnerID         string `validate:"required"`
}

var transferMessages = map[string]string{
	"FromAccountID":            "Invalid source account id",
	"ToAccountNumber.required": "Destination account number is required",
	"ToAccountNumber.max":      "Destination account number is invalid",
	"Amount":                   "Amount must be a positive number of at least 0.01",
	"RecipientName":            "Recipient name must be at most 255 characters",
	"Note":                     "Note must be at most 500 characters",
	"OwnerID":                  "Unauthorized",
}

// AccountBalance - баланс счета после перевода
type AccountBalance struct {
	ID      uint   `json:"id"`
	Balance string `json:"balance"`
}

type TransferBalances struct {
	FromAccount AccountBalance `json:"fromAccount"`
	ToAccount   AccountBalance `json:"toAccount"`
}

// TransferResult - запись журнала и новые балансы обоих счетов
type TransferResult struct {
	Transaction models.Transaction `json:"transaction"`
	Balances    TransferBalances   `json:"balances"`

	FromAccountNumber string `json:"-"`
	ToAccountNumber   string `json:"-"`
	RecipientUserID   string `json:"-"`
}

// TransferOptions - параметры TransferService
type TransferOptions struct {
	// Timeout ограничивает транзакцию перевода; отмена запроса клиентом ее не прерывает
	Timeout          time.Duration
	ReferenceRetries int
	Metrics          *utils.Metrics
}

// TransferService переводит средства между счетами
type TransferService struct {
	store            database.TxStore
	validator        *validator.Validate
	metrics          *utils.Metrics
	timeout          time.Duration
	referenceRetries int
	now              func() time.Time
	randIntn         func(n int) int
}

// NewTransferService создает новый экземпляр TransferService
func NewTransferService(store database.TxStore, opts TransferOptions) *TransferService {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.ReferenceRetries < 1 {
		opts.ReferenceRetries = 3
	}
	if opts.Metrics == nil {
		opts.Metrics = utils.GetMetrics()
	}
	return &TransferService{
		store:            store,
		validator:        newValidator(),
		metrics:          opts.Metrics,
		timeout:          opts.Timeout,
		referenceRetries: opts.ReferenceRetries,
		now:              time.Now,
		randIntn:         rand.Intn,
	}
}

// Transfer списывает amount со счета FromAccountID владельца OwnerID и зачисляет
// на счет ToAccountNumber. Оба баланса и запись журнала фиксируются одной транзакцией.
func (s *TransferService) Transfer(ctx context.Context, in TransferInput) (*TransferResult, error) {
	start := time.Now()

	in.ToAccountNumber = strings.ToUpper(strings.TrimSpace(in.ToAccountNumber))
	in.RecipientName = strings.TrimSpace(in.RecipientName)
	in.Note = strings.TrimSpace(in.Note)
	in.OwnerID = strings.TrimSpace(in.OwnerID)

	if err := s.validator.Struct(in); err != nil {
		bankErr := validationError(err, transferMessages)
		s.record(start, "", 0, bankErr)
		return nil, bankErr
	}
	amount, err := utils.ParseMinorUnits(in.Amount)
	if err != nil {
		bankErr := badRequest(transferMessages["Amount"])
		s.record(start, "", 0, bankErr)
		return nil, bankErr
	}

	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	var result *TransferResult
	err = s.store.WithinTx(txCtx, func(tx database.Store) error {
		res, err := s.execute(txCtx, tx, in, amount)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		var bankErr *BankError
		if !errors.As(err, &bankErr) {
			bankErr = persistenceError("transfer commit", err)
		}
		s.record(start, "", amount, bankErr)
		return nil, bankErr
	}

	s.record(start, result.Transaction.Currency, amount, nil)
	utils.LogInfo("transfer %s completed: from=%d to=%d amount=%s %s",
		result.Transaction.Reference, result.Balances.FromAccount.ID, result.Balances.ToAccount.ID,
		result.Transaction.Amount, result.Transaction.Currency)
	return result, nil
}

// execute выполняется внутри транзакции. Любая возвращенная ошибка откатывает ее.
func (s *TransferService) execute(ctx context.Context, tx database.Store, in TransferInput, amount int64) (*TransferResult, error) {
	fromID := uint(in.FromAccountID)

	// id получателя нужен до блокировок, чтобы брать их по возрастанию id
	var destID uint
	dest, err := tx.GetAccountByNumber(ctx, in.ToAccountNumber)
	switch {
	case err == nil:
		destID = dest.ID
	case errors.Is(err, database.ErrNotFound):
	default:
		return nil, persistenceError("transfer: find destination", err)
	}

	locked, err := lockInOrder(ctx, tx, fromID, destID, in.OwnerID)
	if err != nil {
		return nil, persistenceError("transfer: lock accounts", err)
	}

	source := locked[fromID]
	if source == nil {
		return nil, newError(KindNotFound, "Source account not found")
	}
	if source.Status != models.AccountStatusActive {
		return nil, newError(KindInactiveAccount, "Source account is not active")
	}
	dest = nil
	if destID != 0 {
		dest = locked[destID]
	}
	if dest == nil {
		return nil, newError(KindNotFound, "Destination account not found")
	}
	if dest.Status != models.AccountStatusActive {
		return nil, newError(KindInactiveAccount, "Destination account is not active")
	}
	if source.ID == dest.ID {
		return nil, newError(KindSelfTransfer, "Cannot transfer to the same account")
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
	if amount > fromBalance {
		return nil, newError(KindInsufficientFunds, "Insufficient balance for this transfer")
	}
	if toBalance > utils.MaxMinorUnits-amount {
		return nil, badRequest("Transfer would exceed the destination account balance limit")
	}

	newFrom := utils.FormatMinorUnits(fromBalance - amount)
	newTo := utils.FormatMinorUnits(toBalance + amount)

	for _, upd := range orderedUpdates(source.ID, newFrom, dest.ID, newTo) {
		if err := tx.UpdateBalance(ctx, upd.id, upd.balance); err != nil {
			return nil, persistenceError("transfer: update balance", err)
		}
	}

	now := s.now().UTC()
	row := &models.Transaction{
		FromAccountID: &source.ID,
		ToAccountID:   &dest.ID,
		Amount:        utils.FormatMinorUnits(amount),
		Currency:      source.Currency,
		Type:          models.TransactionTypeTransfer,
		Status:        models.TransactionStatusCompleted,
		Description:   transferDescription(in.RecipientName, dest.Title, in.Note),
		CreatedAt:     now,
		CompletedAt:   &now,
		UpdatedAt:     &now,
	}
	if err := s.insertWithReference(ctx, tx, row); err != nil {
		return nil, err
	}

	return &TransferResult{
		Transaction: *row,
		Balances: TransferBalances{
			FromAccount: AccountBalance{ID: source.ID, Balance: newFrom},
			ToAccount:   AccountBalance{ID: dest.ID, Balance: newTo},
		},
		FromAccountNumber: source.AccountNumber,
		ToAccountNumber:   dest.AccountNumber,
		RecipientUserID:   dest.UserID,
	}, nil
}

// insertWithReference вставляет строку журнала, генерируя новый референс при конфликте
func (s *TransferService) insertWithReference(ctx context.Context, tx database.Store, row *models.Transaction) error {
	return insertLedgerRow(ctx, tx, row, s.referenceRetries, func() string {
		return newReference(s.now(), s.randIntn)
	})
}

// insertLedgerRow вставляет строку журнала. При занятом референсе берется
// новый, всего не более retries попыток.
func insertLedgerRow(ctx context.Context, tx database.Store, row *models.Transaction, retries int, reference func() string) error {
	for attempt := 1; ; attempt++ {
		row.Reference = reference()
		err := tx.InsertTransaction(ctx, row)
		if err == nil {
			return nil
		}
		if errors.Is(err, database.ErrDuplicateReference) && attempt < retries {
			utils.LogDebug("reference %s already taken, retrying (attempt %d)", row.Reference, attempt)
			continue
		}
		return persistenceError("insert ledger row", err)
	}
}

// newReference генерирует референс вида TXN-<unix ms>-<3 цифры>
func newReference(now time.Time, randIntn func(n int) int) string {
	return fmt.Sprintf("TXN-%d-%03d", now.UnixMilli(), randIntn(1000))
}

func (s *TransferService) record(start time.Time, currency string, amount int64, err *BankError) {
	kind := ""
	if err != nil {
		kind = string(err.Kind)
		if err.Kind != KindPersistenceFailure {
			utils.LogInfo("transfer rejected: kind=%s msg=%q", err.Kind, err.Message)
		}
	}
	s.metrics.RecordTransfer(time.Since(start), currency, amount, kind)
}

// lockInOrder блокирует счета по возрастанию id. Счет отправителя читается
// только вместе с владельцем. Отсутствующие счета в результат не попадают.
func lockInOrder(ctx context.Context, tx database.Store, fromID, destID uint, ownerID string) (map[uint]*models.BankAccount, error) {
	ids := []uint{fromID}
	if destID != 0 && destID != fromID {
		ids = append(ids, destID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	locked := make(map[uint]*models.BankAccount, len(ids))
	for _, id := range ids {
		var account *models.BankAccount
		var err error
		if id == fromID {
			account, err = tx.LockAccountForOwner(ctx, id, ownerID)
		} else {
			account, err = tx.LockAccountByID(ctx, id)
		}
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		locked[id] = account
	}
	return locked, nil
}

type balanceUpdate struct {
	id      uint
	balance string
}

func orderedUpdates(firstID uint, firstBalance string, secondID uint, secondBalance string) []balanceUpdate {
	updates := []balanceUpdate{{firstID, firstBalance}, {secondID, secondBalance}}
	if secondID < firstID {
		updates[0], updates[1] = updates[1], updates[0]
	}
	return updates
}

func transferDescription(recipientName, destinationTitle, note string) string {
	target := recipientName
	if target == "" {
		target = destinationTitle
	}
	description := "Transfer to " + target
	if note != "" {
		description += " • " + note
	}
	return description
}

func invalidBalance(account *models.BankAccount, cause error) *BankError {
	utils.LogError("account %d has invalid balance %q: %v", account.ID, account.Balance, cause)
	return &BankError{Kind: KindInvalidBalance, Message: "Account balance is invalid", Err: cause}
}
