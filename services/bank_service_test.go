package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stepacool/cursor-hackathon-submission/database/dbtest"
	"github.com/stepacool/cursor-hackathon-submission/models"
)

func newTestBankService(store *dbtest.Store) *BankService {
	svc := NewBankService(store, 3)
	svc.now = func() time.Time { return fixedNow }
	n := 0
	svc.randIntn = func(int) int { n++; return n }
	return svc
}

func TestCreateBankAccount(t *testing.T) {
	store := dbtest.NewStore()
	svc := newTestBankService(store)

	account, err := svc.CreateBankAccount(context.Background(), CreateBankAccountDTO{
		Title:          "  Travel  ",
		Currency:       "eur",
		InitialBalance: "12.5",
		UserID:         "user-1",
	})
	if err != nil {
		t.Fatalf("CreateBankAccount() error = %v", err)
	}

	if account.ID == 0 {
		t.Error("expected account id to be assigned")
	}
	if account.Title != "Travel" || account.Currency != "EUR" || account.Balance != "12.50" {
		t.Errorf("account = %+v", account)
	}
	if account.Status != models.AccountStatusActive || account.ClosedAt != nil {
		t.Errorf("status = %s closed_at = %v", account.Status, account.ClosedAt)
	}
	if account.AccountNumber != "ACC-17419444130001" {
		t.Errorf("account number = %s", account.AccountNumber)
	}

	stored := store.Account(t, account.ID)
	if stored.UserID != "user-1" {
		t.Errorf("stored owner = %s", stored.UserID)
	}
}

func TestCreateBankAccountDefaults(t *testing.T) {
	store := dbtest.NewStore()
	svc := newTestBankService(store)

	account, err := svc.CreateBankAccount(context.Background(), CreateBankAccountDTO{Title: "Main", UserID: "user-1"})
	if err != nil {
		t.Fatalf("CreateBankAccount() error = %v", err)
	}
	if account.Currency != "USD" || account.Balance != "0.00" {
		t.Errorf("currency = %s balance = %s, want USD 0.00", account.Currency, account.Balance)
	}
}

func TestCreateBankAccountValidation(t *testing.T) {
	tests := []struct {
		name    string
		dto     CreateBankAccountDTO
		message string
	}{
		{"missing title", CreateBankAccountDTO{Title: "   ", UserID: "u"}, "Account title is required"},
		{"long title", CreateBankAccountDTO{Title: strings.Repeat("x", 256), UserID: "u"}, "Account title must be at most 255 characters"},
		{"bad currency length", CreateBankAccountDTO{Title: "Main", Currency: "US", UserID: "u"}, "Invalid currency code"},
		{"bad currency letters", CreateBankAccountDTO{Title: "Main", Currency: "U5D", UserID: "u"}, "Invalid currency code"},
		{"negative balance", CreateBankAccountDTO{Title: "Main", InitialBalance: "-1", UserID: "u"}, "Initial balance cannot be negative"},
		{"garbage balance", CreateBankAccountDTO{Title: "Main", InitialBalance: "lots", UserID: "u"}, "Initial balance cannot be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := dbtest.NewStore()
			svc := newTestBankService(store)

			_, err := svc.CreateBankAccount(context.Background(), tt.dto)
			assertKind(t, err, KindBadRequest)
			if err.Error() != tt.message {
				t.Errorf("message = %q, want %q", err.Error(), tt.message)
			}
		})
	}
}

func TestCreateBankAccountRetriesNumberConflict(t *testing.T) {
	store := dbtest.NewStore()
	store.DuplicateAccounts = 2
	svc := newTestBankService(store)

	account, err := svc.CreateBankAccount(context.Background(), CreateBankAccountDTO{Title: "Main", UserID: "u"})
	if err != nil {
		t.Fatalf("CreateBankAccount() error = %v", err)
	}
	if account.AccountNumber != "ACC-17419444130003" {
		t.Errorf("account number = %s, want third candidate", account.AccountNumber)
	}

	store.DuplicateAccounts = 3
	_, err = svc.CreateBankAccount(context.Background(), CreateBankAccountDTO{Title: "Second", UserID: "u"})
	assertKind(t, err, KindPersistenceFailure)
}

func TestGetAccountIsOwnerScoped(t *testing.T) {
	store := dbtest.NewStore()
	acc := store.AddAccount(t, models.BankAccount{UserID: "owner", Balance: "1.00"})
	svc := newTestBankService(store)

	got, err := svc.GetAccount(context.Background(), acc.ID, "owner")
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if got.ID != acc.ID {
		t.Errorf("id = %d, want %d", got.ID, acc.ID)
	}

	_, err = svc.GetAccount(context.Background(), acc.ID, "someone-else")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign GetAccount() error = %v, want NotFound", err)
	}
	if err.Error() != "Account not found" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestListAccountsNewestFirst(t *testing.T) {
	store := dbtest.NewStore()
	first := store.AddAccount(t, models.BankAccount{UserID: "owner", Balance: "1.00"})
	store.AddAccount(t, models.BankAccount{UserID: "other", Balance: "1.00"})
	second := store.AddAccount(t, models.BankAccount{UserID: "owner", Balance: "1.00"})
	svc := newTestBankService(store)

	accounts, err := svc.ListAccounts(context.Background(), "owner")
	if err != nil {
		t.Fatalf("ListAccounts() error = %v", err)
	}
	if len(accounts) != 2 || accounts[0].ID != second.ID || accounts[1].ID != first.ID {
		t.Errorf("accounts = %+v", accounts)
	}
}

func TestListTransactionsIncludesBothSides(t *testing.T) {
	store := dbtest.NewStore()
	a := store.AddAccount(t, models.BankAccount{UserID: "alice", Balance: "100.00"})
	b := store.AddAccount(t, models.BankAccount{UserID: "bob", Balance: "0.00"})
	c := store.AddAccount(t, models.BankAccount{UserID: "carol", Balance: "0.00"})
	transfers, _ := newTestTransferService(store)
	svc := newTestBankService(store)

	if _, err := transfers.Transfer(context.Background(), transferInput(a, b, "10.00")); err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	if _, err := transfers.Transfer(context.Background(), transferInput(a, c, "5.00")); err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}

	bobRows, err := svc.ListTransactions(context.Background(), "bob")
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(bobRows) != 1 {
		t.Fatalf("bob rows = %d, want 1", len(bobRows))
	}
	row := bobRows[0]
	if row.FromAccountNumber == nil || *row.FromAccountNumber != a.AccountNumber {
		t.Errorf("from account number = %v", row.FromAccountNumber)
	}
	if row.ToUserID == nil || *row.ToUserID != "bob" {
		t.Errorf("to user id = %v", row.ToUserID)
	}

	aliceRows, err := svc.ListTransactions(context.Background(), "alice")
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(aliceRows) != 2 || aliceRows[0].ID < aliceRows[1].ID {
		t.Errorf("alice rows = %+v, want 2 newest first", aliceRows)
	}
}

func TestListOTPs(t *testing.T) {
	store := dbtest.NewStore()
	store.AddOTP(models.OTP{ID: 1, UserID: "owner", Token: "123456", Status: models.OTPStatusPending})
	store.AddOTP(models.OTP{ID: 2, UserID: "other", Token: "654321", Status: models.OTPStatusUsed})
	svc := newTestBankService(store)

	otps, err := svc.ListOTPs(context.Background(), "owner")
	if err != nil {
		t.Fatalf("ListOTPs() error = %v", err)
	}
	if len(otps) != 1 || otps[0].Token != "123456" {
		t.Errorf("otps = %+v", otps)
	}
}
