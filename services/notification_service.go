package services

import (
	"context"
	"time"

	"github.com/stepacool/cursor-hackathon-submission/events"
	"github.com/stepacool/cursor-hackathon-submission/models"
	"github.com/stepacool/cursor-hackathon-submission/utils"
)

// Notifier получает уведомления о зафиксированных операциях.
// Вызывается только после коммита и не влияет на результат операции.
type Notifier interface {
	TransferCompleted(ctx context.Context, result *TransferResult, userID, email string)
	AccountStatusChanged(ctx context.Context, account *models.BankAccount, action LifecycleAction)
}

// NotificationService публикует события в брокер и отправляет квитанции на email
type NotificationService struct {
	publisher events.Publisher
	email     *EmailService
}

// NewNotificationService создает сервис уведомлений. email может быть nil.
func NewNotificationService(publisher events.Publisher, email *EmailService) *NotificationService {
	if publisher == nil {
		publisher = events.FallbackPublisher{}
	}
	return &NotificationService{publisher: publisher, email: email}
}

func (s *NotificationService) TransferCompleted(ctx context.Context, result *TransferResult, userID, email string) {
	completedAt := result.Transaction.CreatedAt
	if result.Transaction.CompletedAt != nil {
		completedAt = *result.Transaction.CompletedAt
	}

	event := events.TransferCompleted{
		Reference:       result.Transaction.Reference,
		FromAccountID:   result.Balances.FromAccount.ID,
		ToAccountID:     result.Balances.ToAccount.ID,
		Amount:          result.Transaction.Amount,
		Currency:        result.Transaction.Currency,
		InitiatedBy:     userID,
		RecipientUserID: result.RecipientUserID,
		CompletedAt:     completedAt,
	}
	if err := s.publisher.Publish(ctx, events.RoutingTransferCompleted, event); err != nil {
		utils.LogError("publish %s for %s: %v", events.RoutingTransferCompleted, event.Reference, err)
	}

	if s.email != nil && email != "" {
		if err := s.email.SendTransferReceipt(email, result); err != nil {
			utils.LogError("send receipt for %s: %v", event.Reference, err)
		}
	}
}

func (s *NotificationService) AccountStatusChanged(ctx context.Context, account *models.BankAccount, action LifecycleAction) {
	event := events.AccountStatusChanged{
		AccountID: account.ID,
		UserID:    account.UserID,
		Action:    string(action),
		Status:    string(account.Status),
		ChangedAt: account.UpdatedAt,
	}
	if event.ChangedAt.IsZero() {
		event.ChangedAt = time.Now().UTC()
	}
	if err := s.publisher.Publish(ctx, events.RoutingAccountStatusChanged, event); err != nil {
		utils.LogError("publish %s for account %d: %v", events.RoutingAccountStatusChanged, account.ID, err)
	}
}
