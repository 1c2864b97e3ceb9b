package email

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/loan-service/internal/config"
	"github.com/Dan9191/loan-service/internal/models"
	"github.com/Dan9191/loan-service/internal/money"
)

// sendFunc delivers a prepared message; tests replace it.
type sendFunc func(e *email.Email, addr string, auth smtp.Auth) error

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
	send   sendFunc
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// NotifyOverdue sends an overdue installment notice
func (s *Sender) NotifyOverdue(ctx context.Context, b models.Borrower, inst models.Installment, owed money.Amount) error {
	return s.deliver(ctx, b, buildNotice(b, inst, owed, true))
}

// NotifyUpcoming sends a payment reminder for an installment due soon
func (s *Sender) NotifyUpcoming(ctx context.Context, b models.Borrower, inst models.Installment, owed money.Amount) error {
	return s.deliver(ctx, b, buildNotice(b, inst, owed, false))
}

func (s *Sender) deliver(ctx context.Context, b models.Borrower, e *email.Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.Email == "" {
		return fmt.Errorf("borrower %d has no email address", b.ID)
	}
	e.From = s.cfg.SenderEmail
	e.To = []string{b.Email}

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := s.send(e, addr, auth); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", b.Email, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", b.Email, e.Subject)
	return nil
}

// buildNotice formats the message without sender or recipient.
func buildNotice(b models.Borrower, inst models.Installment, owed money.Amount, isOverdue bool) *email.Email {
	e := email.NewEmail()
	if isOverdue {
		e.Subject = fmt.Sprintf("Overdue loan installment #%d", inst.Sequence)
	} else {
		e.Subject = fmt.Sprintf("Upcoming loan installment #%d", inst.Sequence)
	}

	body := fmt.Sprintf("Dear %s,\n\n", b.FullName)
	if isOverdue {
		body += fmt.Sprintf(
			"Installment #%d of your loan %d was due on %s and is now overdue.\n"+
				"Amount owed: %s\n"+
				"Late payment penalties accrue daily until the installment is paid.\n",
			inst.Sequence, inst.LoanID, inst.DueDate.Format(models.DateLayout), owed,
		)
	} else {
		body += fmt.Sprintf(
			"This is a reminder that installment #%d of your loan %d is due on %s.\n"+
				"Amount owed: %s\n",
			inst.Sequence, inst.LoanID, inst.DueDate.Format(models.DateLayout), owed,
		)
	}
	body += "\nBest regards,\nLoan Service"
	e.Text = []byte(body)
	return e
}
