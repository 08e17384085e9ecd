package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/beevik/etree"

	"github.com/stepacool/cursor-hackathon-submission/database"
	"github.com/stepacool/cursor-hackathon-submission/models"
)

const (
	defaultStatementLimit = 100
	maxStatementLimit     = 1000
)

// StatementService формирует XML-выписку по счету
type StatementService struct {
	store database.Store
	now   func() time.Time
}

// NewStatementService создает новый экземпляр StatementService
func NewStatementService(store database.Store) *StatementService {
	return &StatementService{store: store, now: time.Now}
}

// Statement возвращает выписку по счету владельца: заголовок счета и последние limit операций
func (s *StatementService) Statement(ctx context.Context, accountID uint, userID string, limit int) ([]byte, error) {
	if accountID == 0 {
		return nil, badRequest("Invalid account id")
	}
	if limit <= 0 {
		limit = defaultStatementLimit
	}
	if limit > maxStatementLimit {
		limit = maxStatementLimit
	}

	account, err := s.store.GetAccountByID(ctx, accountID, userID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, newError(KindNotFound, "Account not found")
	}
	if err != nil {
		return nil, persistenceError("statement: get account", err)
	}

	rows, err := s.store.ListTransactionsForAccount(ctx, account.ID, limit)
	if err != nil {
		return nil, persistenceError("statement: list transactions", err)
	}

	doc := buildStatement(account, rows, s.now().UTC())
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, persistenceError("statement: encode", err)
	}
	return out, nil
}

func buildStatement(account *models.BankAccount, rows []models.Transaction, generatedAt time.Time) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("Statement")
	root.CreateAttr("generatedAt", generatedAt.Format(time.RFC3339))

	acc := root.CreateElement("Account")
	acc.CreateAttr("id", strconv.FormatUint(uint64(account.ID), 10))
	acc.CreateElement("Number").SetText(account.AccountNumber)
	acc.CreateElement("Title").SetText(account.Title)
	acc.CreateElement("Currency").SetText(account.Currency)
	acc.CreateElement("Status").SetText(string(account.Status))
	acc.CreateElement("Balance").SetText(account.Balance)
	if account.ClosedAt != nil {
		acc.CreateElement("ClosedAt").SetText(account.ClosedAt.UTC().Format(time.RFC3339))
	}

	entries := root.CreateElement("Entries")
	entries.CreateAttr("count", strconv.Itoa(len(rows)))
	for _, row := range rows {
		entry := entries.CreateElement("Entry")
		entry.CreateAttr("reference", row.Reference)
		entry.CreateAttr("type", string(row.Type))
		entry.CreateAttr("status", string(row.Status))

		direction, counterparty := "CREDIT", row.FromAccountID
		if row.FromAccountID != nil && *row.FromAccountID == account.ID {
			direction, counterparty = "DEBIT", row.ToAccountID
		}
		entry.CreateElement("Direction").SetText(direction)
		amount := entry.CreateElement("Amount")
		amount.CreateAttr("currency", row.Currency)
		amount.SetText(row.Amount)
		if counterparty != nil {
			entry.CreateElement("CounterpartyAccountId").SetText(strconv.FormatUint(uint64(*counterparty), 10))
		}
		if row.Description != "" {
			entry.CreateElement("Description").SetText(row.Description)
		}
		entry.CreateElement("CreatedAt").SetText(row.CreatedAt.UTC().Format(time.RFC3339))
		if row.CompletedAt != nil {
			entry.CreateElement("CompletedAt").SetText(row.CompletedAt.UTC().Format(time.RFC3339))
		}
	}

	doc.Indent(2)
	return doc
}
