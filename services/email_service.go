package services

import (
	"fmt"
	"html"

	"gopkg.in/gomail.v2"

	"github.com/stepacool/cursor-hackathon-submission/config"
)

// mailSender - отправка готовых писем (gomail.Dialer)
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailService предоставляет методы для отправки email
type EmailService struct {
	sender mailSender
	from   string
}

// NewEmailService создает новый экземпляр EmailService
func NewEmailService(cfg config.SMTPConfig) *EmailService {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &EmailService{
		sender: dialer,
		from:   cfg.From,
	}
}

// SendEmail отправляет email
func (s *EmailService) SendEmail(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := s.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("ошибка отправки email: %w", err)
	}

	return nil
}

// SendTransferReceipt отправляет квитанцию о переводе отправителю
func (s *EmailService) SendTransferReceipt(to string, result *TransferResult) error {
	subject, body := transferReceipt(result)
	return s.SendEmail(to, subject, body)
}

func transferReceipt(result *TransferResult) (string, string) {
	tx := result.Transaction
	completed := tx.CreatedAt
	if tx.CompletedAt != nil {
		completed = *tx.CompletedAt
	}

	subject := fmt.Sprintf("Transfer %s completed", tx.Reference)
	body := fmt.Sprintf(`
		<h2>Transfer receipt</h2>
		<p>Reference: %s</p>
		<p>From account: %s</p>
		<p>To account: %s</p>
		<p>Amount: %s %s</p>
		<p>Description: %s</p>
		<p>Remaining balance: %s %s</p>
		<p>Date: %s</p>
	`,
		html.EscapeString(tx.Reference),
		html.EscapeString(result.FromAccountNumber),
		html.EscapeString(result.ToAccountNumber),
		tx.Amount, tx.Currency,
		html.EscapeString(tx.Description),
		result.Balances.FromAccount.Balance, tx.Currency,
		completed.UTC().Format("02.01.2006 15:04:05 UTC"),
	)
	return subject, body
}
