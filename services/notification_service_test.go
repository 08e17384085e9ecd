package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"gopkg.in/gomail.v2"

	"github.com/stepacool/cursor-hackathon-submission/events"
	"github.com/stepacool/cursor-hackathon-submission/models"
)

type recordedEvent struct {
	routingKey string
	body       interface{}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{routingKey: routingKey, body: body})
	return p.err
}

func (p *fakePublisher) Close() {}

type fakeSender struct {
	messages []*gomail.Message
	err      error
}

func (s *fakeSender) DialAndSend(m ...*gomail.Message) error {
	s.messages = append(s.messages, m...)
	return s.err
}

func sampleTransferResult() *TransferResult {
	from, to := uint(1), uint(2)
	return &TransferResult{
		Transaction: models.Transaction{
			ID:            10,
			Reference:     "TXN-1741944413000-042",
			FromAccountID: &from,
			ToAccountID:   &to,
			Amount:        "30.00",
			Currency:      "USD",
			Type:          models.TransactionTypeTransfer,
			Status:        models.TransactionStatusCompleted,
			Description:   "Transfer to <Bob>",
			CreatedAt:     fixedNow,
			CompletedAt:   &fixedNow,
		},
		Balances: TransferBalances{
			FromAccount: AccountBalance{ID: 1, Balance: "70.00"},
			ToAccount:   AccountBalance{ID: 2, Balance: "80.00"},
		},
		FromAccountNumber: "ACC-1",
		ToAccountNumber:   "ACC-2",
		RecipientUserID:   "bob",
	}
}

func TestTransferCompletedPublishesAndEmails(t *testing.T) {
	publisher := &fakePublisher{}
	sender := &fakeSender{}
	email := &EmailService{sender: sender, from: "bank@example.com"}
	svc := NewNotificationService(publisher, email)

	svc.TransferCompleted(context.Background(), sampleTransferResult(), "alice", "alice@example.com")

	if len(publisher.events) != 1 {
		t.Fatalf("events = %d, want 1", len(publisher.events))
	}
	if publisher.events[0].routingKey != events.RoutingTransferCompleted {
		t.Errorf("routing key = %s", publisher.events[0].routingKey)
	}
	event, ok := publisher.events[0].body.(events.TransferCompleted)
	if !ok {
		t.Fatalf("body = %T, want events.TransferCompleted", publisher.events[0].body)
	}
	if event.Reference != "TXN-1741944413000-042" || event.InitiatedBy != "alice" || event.RecipientUserID != "bob" {
		t.Errorf("event = %+v", event)
	}
	if !event.CompletedAt.Equal(fixedNow) {
		t.Errorf("completed_at = %v", event.CompletedAt)
	}

	if len(sender.messages) != 1 {
		t.Fatalf("emails = %d, want 1", len(sender.messages))
	}
	if got := sender.messages[0].GetHeader("To"); len(got) != 1 || got[0] != "alice@example.com" {
		t.Errorf("To = %v", got)
	}
}

func TestTransferCompletedSurvivesFailures(t *testing.T) {
	publisher := &fakePublisher{err: errors.New("broker down")}
	sender := &fakeSender{err: errors.New("smtp down")}
	svc := NewNotificationService(publisher, &EmailService{sender: sender})

	// Ошибки только логируются
	svc.TransferCompleted(context.Background(), sampleTransferResult(), "alice", "alice@example.com")

	if len(publisher.events) != 1 || len(sender.messages) != 1 {
		t.Errorf("events = %d emails = %d, want 1/1", len(publisher.events), len(sender.messages))
	}
}

func TestTransferCompletedWithoutEmail(t *testing.T) {
	publisher := &fakePublisher{}
	sender := &fakeSender{}
	svc := NewNotificationService(publisher, &EmailService{sender: sender})

	svc.TransferCompleted(context.Background(), sampleTransferResult(), "alice", "")

	if len(sender.messages) != 0 {
		t.Errorf("emails = %d, want 0 when caller has no email", len(sender.messages))
	}
}

func TestAccountStatusChangedEvent(t *testing.T) {
	publisher := &fakePublisher{}
	svc := NewNotificationService(publisher, nil)

	svc.AccountStatusChanged(context.Background(), &models.BankAccount{
		ID:        7,
		UserID:    "alice",
		Status:    models.AccountStatusSuspended,
		UpdatedAt: fixedNow,
	}, ActionFreeze)

	if len(publisher.events) != 1 || publisher.events[0].routingKey != events.RoutingAccountStatusChanged {
		t.Fatalf("events = %+v", publisher.events)
	}
	event := publisher.events[0].body.(events.AccountStatusChanged)
	if event.AccountID != 7 || event.Action != "freeze" || event.Status != "SUSPENDED" || !event.ChangedAt.Equal(fixedNow) {
		t.Errorf("event = %+v", event)
	}
}

func TestNilPublisherFallsBack(t *testing.T) {
	svc := NewNotificationService(nil, nil)
	if _, ok := svc.publisher.(events.FallbackPublisher); !ok {
		t.Errorf("publisher = %T, want FallbackPublisher", svc.publisher)
	}
	svc.TransferCompleted(context.Background(), sampleTransferResult(), "alice", "alice@example.com")
}

func TestTransferReceipt(t *testing.T) {
	subject, body := transferReceipt(sampleTransferResult())

	if subject != "Transfer TXN-1741944413000-042 completed" {
		t.Errorf("subject = %q", subject)
	}
	for _, want := range []string{
		"Amount: 30.00 USD",
		"From account: ACC-1",
		"To account: ACC-2",
		"Remaining balance: 70.00 USD",
		"Transfer to &lt;Bob&gt;",
		"14.03.2025 09:26:53 UTC",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("receipt body missing %q", want)
		}
	}
}
