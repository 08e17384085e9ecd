package services

import (
	"context"
	"testing"
	"time"

	"github.com/beevik/etree"

	"github.com/stepacool/cursor-hackathon-submission/database/dbtest"
	"github.com/stepacool/cursor-hackathon-submission/models"
)

func TestStatementListsDebitsAndCredits(t *testing.T) {
	store := dbtest.NewStore()
	a := store.AddAccount(t, models.BankAccount{UserID: "alice", Title: "Main & Co", Balance: "100.00"})
	b := store.AddAccount(t, models.BankAccount{UserID: "bob", Balance: "20.00"})
	transfers, _ := newTestTransferService(store)

	if _, err := transfers.Transfer(context.Background(), transferInput(a, b, "10.00")); err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	if _, err := transfers.Transfer(context.Background(), transferInput(b, a, "2.50")); err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}

	svc := NewStatementService(store)
	svc.now = func() time.Time { return fixedNow }

	out, err := svc.Statement(context.Background(), a.ID, "alice", 0)
	if err != nil {
		t.Fatalf("Statement() error = %v", err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(out); err != nil {
		t.Fatalf("statement is not valid XML: %v", err)
	}

	root := doc.SelectElement("Statement")
	if root == nil {
		t.Fatal("missing Statement root")
	}
	if got := root.SelectAttrValue("generatedAt", ""); got != "2025-03-14T09:26:53Z" {
		t.Errorf("generatedAt = %s", got)
	}
	if got := root.FindElement("Account/Title").Text(); got != "Main & Co" {
		t.Errorf("title = %q", got)
	}
	if got := root.FindElement("Account/Balance").Text(); got != "92.50" {
		t.Errorf("balance = %s, want 92.50", got)
	}

	entries := root.FindElements("Entries/Entry")
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	// Новые операции первыми
	if got := entries[0].FindElement("Direction").Text(); got != "CREDIT" {
		t.Errorf("first entry direction = %s, want CREDIT", got)
	}
	if got := entries[0].FindElement("Amount").Text(); got != "2.50" {
		t.Errorf("first entry amount = %s, want 2.50", got)
	}
	if got := entries[1].FindElement("Direction").Text(); got != "DEBIT" {
		t.Errorf("second entry direction = %s, want DEBIT", got)
	}
	if got := entries[1].FindElement("Amount").SelectAttrValue("currency", ""); got != "USD" {
		t.Errorf("currency = %s, want USD", got)
	}
	if entries[1].SelectAttrValue("reference", "") == "" {
		t.Error("entry reference is empty")
	}
}

func TestStatementLimitAndOwnership(t *testing.T) {
	store := dbtest.NewStore()
	a := store.AddAccount(t, models.BankAccount{UserID: "alice", Balance: "100.00"})
	b := store.AddAccount(t, models.BankAccount{UserID: "bob", Balance: "0.00"})
	transfers, _ := newTestTransferService(store)
	for i := 0; i < 3; i++ {
		if _, err := transfers.Transfer(context.Background(), transferInput(a, b, "1.00")); err != nil {
			t.Fatalf("Transfer() error = %v", err)
		}
	}

	svc := NewStatementService(store)
	out, err := svc.Statement(context.Background(), a.ID, "alice", 2)
	if err != nil {
		t.Fatalf("Statement() error = %v", err)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(out); err != nil {
		t.Fatalf("statement is not valid XML: %v", err)
	}
	if got := len(doc.FindElements("//Entry")); got != 2 {
		t.Errorf("entries = %d, want 2", got)
	}

	_, err = svc.Statement(context.Background(), a.ID, "bob", 10)
	assertKind(t, err, KindNotFound)
}
