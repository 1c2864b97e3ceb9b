package service

import (
	"context"

	"github.com/Dan9191/loan-service/internal/models"
	"github.com/Dan9191/loan-service/internal/money"
)

// Notifier tells borrowers about their installments. Delivery failures are
// reported to the caller, which logs them and carries on.
type Notifier interface {
	NotifyOverdue(ctx context.Context, borrower models.Borrower, inst models.Installment, owed money.Amount) error
	NotifyUpcoming(ctx context.Context, borrower models.Borrower, inst models.Installment, owed money.Amount) error
}

// NopNotifier drops every notice. It is used when SMTP is not configured.
type NopNotifier struct{}

func (NopNotifier) NotifyOverdue(context.Context, models.Borrower, models.Installment, money.Amount) error {
	return nil
}

func (NopNotifier) NotifyUpcoming(context.Context, models.Borrower, models.Installment, money.Amount) error {
	return nil
}
