// Package dbtest содержит хранилище в памяти для тестов сервисов и контроллеров.
// Блокировки строк держатся до конца транзакции, изменения видны только после коммита.
package dbtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stepacool/cursor-hackathon-submission/database"
	"github.com/stepacool/cursor-hackathon-submission/models"
)

// ErrRowNotLocked возвращается при записи в строку, не заблокированную транзакцией
var ErrRowNotLocked = errors.New("row updated without lock")

var (
	_ database.TxStore    = (*Store)(nil)
	_ database.OTPExpirer = (*Store)(nil)
)

// Store реализует database.TxStore в памяти процесса
type Store struct {
	mu       sync.Mutex
	nextAcc  uint
	nextTx   uint
	accounts map[uint]models.BankAccount
	txns     []models.Transaction
	otps     []models.OTP
	rowLocks map[uint]*sync.Mutex
	lockLog  [][]uint

	// Внедрение сбоев. Задаются до начала теста.
	FailInsert        error
	FailCommit        error
	FailLock          error
	DuplicateRefs     int
	DuplicateAccounts int
}

func NewStore() *Store {
	return &Store{
		accounts: make(map[uint]models.BankAccount),
		rowLocks: make(map[uint]*sync.Mutex),
	}
}

// AddAccount добавляет счет напрямую в зафиксированное состояние
func (m *Store) AddAccount(t *testing.T, acc models.BankAccount) models.BankAccount {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextAcc++
	acc.ID = m.nextAcc
	if acc.AccountNumber == "" {
		acc.AccountNumber = fmt.Sprintf("ACC-%d", acc.ID)
	}
	if acc.Status == "" {
		acc.Status = models.AccountStatusActive
	}
	if acc.Currency == "" {
		acc.Currency = "USD"
	}
	if acc.Status == models.AccountStatusClosed && acc.ClosedAt == nil {
		closed := time.Now().UTC()
		acc.ClosedAt = &closed
	}
	acc.CreatedAt = time.Now().UTC()
	acc.UpdatedAt = acc.CreatedAt
	m.accounts[acc.ID] = acc
	return acc
}

// Account возвращает зафиксированное состояние счета
func (m *Store) Account(t *testing.T, id uint) models.BankAccount {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[id]
	if !ok {
		t.Fatalf("account %d not found", id)
	}
	return acc
}

// Transactions возвращает зафиксированные записи журнала
func (m *Store) Transactions() []models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Transaction(nil), m.txns...)
}

// LockLog возвращает порядок блокировок каждой зафиксированной транзакции
func (m *Store) LockLog() [][]uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]uint, len(m.lockLog))
	copy(out, m.lockLog)
	return out
}

// AddOTP добавляет одноразовый код
func (m *Store) AddOTP(otp models.OTP) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.otps = append(m.otps, otp)
}

// ExpireOTPs помечает истекшие коды в статусе PENDING как EXPIRED
func (m *Store) ExpireOTPs(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i, otp := range m.otps {
		if otp.Status == models.OTPStatusPending && !otp.ExpiresAt.After(now) {
			m.otps[i].Status = models.OTPStatusExpired
			n++
		}
	}
	return n, nil
}

func (m *Store) rowLock(id uint) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rowLocks[id]
	if !ok {
		l = &sync.Mutex{}
		m.rowLocks[id] = l
	}
	return l
}

func (m *Store) begin() *memTx {
	return &memTx{
		store:  m,
		locked: make(map[uint]bool),
		staged: make(map[uint]models.BankAccount),
	}
}

func (m *Store) WithinTx(ctx context.Context, fn func(tx database.Store) error) error {
	tx := m.begin()
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	if m.FailCommit != nil {
		return m.FailCommit
	}
	tx.commit()
	return nil
}

// auto выполняет одиночную операцию вне явной транзакции
func (m *Store) auto(fn func(tx *memTx) error) error {
	tx := m.begin()
	defer tx.release()
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (m *Store) CreateAccount(ctx context.Context, account *models.BankAccount) error {
	return m.auto(func(tx *memTx) error { return tx.CreateAccount(ctx, account) })
}

func (m *Store) GetAccountByID(ctx context.Context, id uint, ownerID string) (acc *models.BankAccount, err error) {
	err = m.auto(func(tx *memTx) error { acc, err = tx.GetAccountByID(ctx, id, ownerID); return err })
	return acc, err
}

func (m *Store) GetAccountByNumber(ctx context.Context, number string) (acc *models.BankAccount, err error) {
	err = m.auto(func(tx *memTx) error { acc, err = tx.GetAccountByNumber(ctx, number); return err })
	return acc, err
}

func (m *Store) ListAccountsByOwner(ctx context.Context, ownerID string) (accs []models.BankAccount, err error) {
	err = m.auto(func(tx *memTx) error { accs, err = tx.ListAccountsByOwner(ctx, ownerID); return err })
	return accs, err
}

func (m *Store) LockAccountByID(ctx context.Context, id uint) (acc *models.BankAccount, err error) {
	err = m.auto(func(tx *memTx) error { acc, err = tx.LockAccountByID(ctx, id); return err })
	return acc, err
}

func (m *Store) LockAccountForOwner(ctx context.Context, id uint, ownerID string) (acc *models.BankAccount, err error) {
	err = m.auto(func(tx *memTx) error { acc, err = tx.LockAccountForOwner(ctx, id, ownerID); return err })
	return acc, err
}

func (m *Store) UpdateBalance(ctx context.Context, id uint, newBalance string) error {
	return m.auto(func(tx *memTx) error {
		if _, err := tx.LockAccountByID(ctx, id); err != nil {
			return err
		}
		return tx.UpdateBalance(ctx, id, newBalance)
	})
}

func (m *Store) UpdateStatus(ctx context.Context, id uint, status models.AccountStatus, closedAt *time.Time) error {
	return m.auto(func(tx *memTx) error {
		if _, err := tx.LockAccountByID(ctx, id); err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, id, status, closedAt)
	})
}

func (m *Store) InsertTransaction(ctx context.Context, row *models.Transaction) error {
	return m.auto(func(tx *memTx) error { return tx.InsertTransaction(ctx, row) })
}

func (m *Store) ListTransactionsForUser(ctx context.Context, userID string) (rows []models.TransactionView, err error) {
	err = m.auto(func(tx *memTx) error { rows, err = tx.ListTransactionsForUser(ctx, userID); return err })
	return rows, err
}

func (m *Store) ListTransactionsForAccount(ctx context.Context, accountID uint, limit int) (rows []models.Transaction, err error) {
	err = m.auto(func(tx *memTx) error { rows, err = tx.ListTransactionsForAccount(ctx, accountID, limit); return err })
	return rows, err
}

func (m *Store) ListOTPsForUser(ctx context.Context, userID string) (otps []models.OTP, err error) {
	err = m.auto(func(tx *memTx) error { otps, err = tx.ListOTPsForUser(ctx, userID); return err })
	return otps, err
}

// memTx - транзакция Store. Изменения видны другим только после commit.
type memTx struct {
	store   *Store
	locked  map[uint]bool
	order   []uint
	staged  map[uint]models.BankAccount
	newAccs []models.BankAccount
	newTxns []models.Transaction
}

func (tx *memTx) read(id uint) (models.BankAccount, bool) {
	if acc, ok := tx.staged[id]; ok {
		return acc, true
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	acc, ok := tx.store.accounts[id]
	return acc, ok
}

func (tx *memTx) commit() {
	m := tx.store
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, acc := range tx.newAccs {
		m.accounts[acc.ID] = acc
	}
	for id, acc := range tx.staged {
		m.accounts[id] = acc
	}
	m.txns = append(m.txns, tx.newTxns...)
	if len(tx.order) > 0 {
		m.lockLog = append(m.lockLog, append([]uint(nil), tx.order...))
	}
}

func (tx *memTx) release() {
	for id := range tx.locked {
		tx.store.rowLock(id).Unlock()
	}
	tx.locked = map[uint]bool{}
}

func (tx *memTx) CreateAccount(_ context.Context, account *models.BankAccount) error {
	m := tx.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DuplicateAccounts > 0 {
		m.DuplicateAccounts--
		return database.ErrDuplicateAccountNumber
	}
	for _, acc := range m.accounts {
		if acc.AccountNumber == account.AccountNumber {
			return database.ErrDuplicateAccountNumber
		}
	}
	m.nextAcc++
	account.ID = m.nextAcc
	tx.newAccs = append(tx.newAccs, *account)
	return nil
}

func (tx *memTx) GetAccountByID(_ context.Context, id uint, ownerID string) (*models.BankAccount, error) {
	acc, ok := tx.read(id)
	if !ok || acc.UserID != ownerID {
		return nil, database.ErrNotFound
	}
	return &acc, nil
}

func (tx *memTx) GetAccountByNumber(_ context.Context, number string) (*models.BankAccount, error) {
	tx.store.mu.Lock()
	var found *models.BankAccount
	for _, acc := range tx.store.accounts {
		if acc.AccountNumber == number {
			acc := acc
			found = &acc
			break
		}
	}
	tx.store.mu.Unlock()
	if found == nil {
		return nil, database.ErrNotFound
	}
	acc, _ := tx.read(found.ID)
	return &acc, nil
}

func (tx *memTx) ListAccountsByOwner(_ context.Context, ownerID string) ([]models.BankAccount, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	accounts := []models.BankAccount{}
	for _, acc := range tx.store.accounts {
		if acc.UserID == ownerID {
			accounts = append(accounts, acc)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID > accounts[j].ID })
	return accounts, nil
}

func (tx *memTx) LockAccountByID(_ context.Context, id uint) (*models.BankAccount, error) {
	return tx.lock(id, "")
}

func (tx *memTx) LockAccountForOwner(_ context.Context, id uint, ownerID string) (*models.BankAccount, error) {
	if ownerID == "" {
		return nil, database.ErrNotFound
	}
	return tx.lock(id, ownerID)
}

// lock берет блокировку строки. Отфильтрованная по владельцу строка не
// блокируется, как и в SELECT ... FOR UPDATE с условием на user_id.
func (tx *memTx) lock(id uint, ownerID string) (*models.BankAccount, error) {
	if err := tx.store.FailLock; err != nil {
		return nil, err
	}
	acc, ok := tx.read(id)
	if !ok || (ownerID != "" && acc.UserID != ownerID) {
		return nil, database.ErrNotFound
	}
	if !tx.locked[id] {
		tx.store.rowLock(id).Lock()
		tx.locked[id] = true
		tx.order = append(tx.order, id)
	}
	acc, _ = tx.read(id)
	return &acc, nil
}

func (tx *memTx) UpdateBalance(_ context.Context, id uint, newBalance string) error {
	if !tx.locked[id] {
		return ErrRowNotLocked
	}
	acc, ok := tx.read(id)
	if !ok {
		return database.ErrNotFound
	}
	if acc.ClosedAt != nil {
		return database.ErrAccountClosed
	}
	acc.Balance = newBalance
	acc.UpdatedAt = time.Now().UTC()
	tx.staged[id] = acc
	return nil
}

func (tx *memTx) UpdateStatus(_ context.Context, id uint, status models.AccountStatus, closedAt *time.Time) error {
	if !tx.locked[id] {
		return ErrRowNotLocked
	}
	acc, ok := tx.read(id)
	if !ok {
		return database.ErrNotFound
	}
	if acc.ClosedAt != nil {
		return database.ErrAccountClosed
	}
	acc.Status = status
	acc.ClosedAt = closedAt
	acc.UpdatedAt = time.Now().UTC()
	tx.staged[id] = acc
	return nil
}

func (tx *memTx) InsertTransaction(_ context.Context, row *models.Transaction) error {
	m := tx.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailInsert != nil {
		return m.FailInsert
	}
	if m.DuplicateRefs > 0 {
		m.DuplicateRefs--
		return database.ErrDuplicateReference
	}
	for _, existing := range m.txns {
		if existing.Reference == row.Reference {
			return database.ErrDuplicateReference
		}
	}
	m.nextTx++
	row.ID = m.nextTx
	tx.newTxns = append(tx.newTxns, *row)
	return nil
}

func (tx *memTx) ListTransactionsForUser(_ context.Context, userID string) ([]models.TransactionView, error) {
	m := tx.store
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := []models.TransactionView{}
	for _, t := range append(append([]models.Transaction(nil), m.txns...), tx.newTxns...) {
		view := models.TransactionView{Transaction: t}
		if t.FromAccountID != nil {
			if acc, ok := m.accounts[*t.FromAccountID]; ok {
				view.FromAccountNumber, view.FromUserID = &acc.AccountNumber, &acc.UserID
			}
		}
		if t.ToAccountID != nil {
			if acc, ok := m.accounts[*t.ToAccountID]; ok {
				view.ToAccountNumber, view.ToUserID = &acc.AccountNumber, &acc.UserID
			}
		}
		if (view.FromUserID != nil && *view.FromUserID == userID) || (view.ToUserID != nil && *view.ToUserID == userID) {
			rows = append(rows, view)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ID > rows[j].ID })
	return rows, nil
}

func (tx *memTx) ListTransactionsForAccount(_ context.Context, accountID uint, limit int) ([]models.Transaction, error) {
	m := tx.store
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := []models.Transaction{}
	for i := len(m.txns) - 1; i >= 0; i-- {
		t := m.txns[i]
		if (t.FromAccountID != nil && *t.FromAccountID == accountID) || (t.ToAccountID != nil && *t.ToAccountID == accountID) {
			rows = append(rows, t)
			if limit > 0 && len(rows) == limit {
				break
			}
		}
	}
	return rows, nil
}

func (tx *memTx) ListOTPsForUser(_ context.Context, userID string) ([]models.OTP, error) {
	m := tx.store
	m.mu.Lock()
	defer m.mu.Unlock()
	otps := []models.OTP{}
	for _, otp := range m.otps {
		if otp.UserID == userID {
			otps = append(otps, otp)
		}
	}
	return otps, nil
}
