package repository

import (
	"context"
	"time"

	"github.com/Dan9191/loan-service/internal/models"
	"github.com/Dan9191/loan-service/internal/money"
)

// InstallmentFilter selects installments across loans.
type InstallmentFilter struct {
	Statuses  []models.InstallmentStatus
	DueBefore time.Time // exclusive; zero means unbounded
	DueFrom   time.Time // inclusive; zero means unbounded
}

func (f InstallmentFilter) matches(i models.Installment) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, st := range f.Statuses {
			if i.Status == st {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if !f.DueBefore.IsZero() && !i.DueDate.Before(f.DueBefore) {
		return false
	}
	if !f.DueFrom.IsZero() && i.DueDate.Before(f.DueFrom) {
		return false
	}
	return true
}

// Store is the persistence boundary of the loan core. Lookups that miss
// return models.ErrLoanNotFound, models.ErrInstallmentNotFound and friends.
type Store interface {
	CreateLoanType(ctx context.Context, lt *models.LoanType) error
	GetLoanType(ctx context.Context, id int64) (models.LoanType, error)

	CreateBorrower(ctx context.Context, b *models.Borrower) error
	GetBorrower(ctx context.Context, id int64) (models.Borrower, error)

	CreateLoan(ctx context.Context, loan *models.Loan) error
	GetLoan(ctx context.Context, id int64) (models.Loan, error)
	UpdateLoanStatus(ctx context.Context, id int64, status models.LoanStatus) error
	// ApproveLoan stores the approved loan and its schedule atomically. It
	// fails with models.ErrScheduleExists when the loan already has installments
	// and with models.ErrBorrowerHasActiveLoan when another loan of the same
	// borrower is approved or overdue.
	ApproveLoan(ctx context.Context, loan models.Loan, schedule []models.Installment) ([]models.Installment, error)

	GetInstallment(ctx context.Context, id int64) (models.Installment, error)
	ListInstallments(ctx context.Context, loanID int64) ([]models.Installment, error)
	FindInstallments(ctx context.Context, filter InstallmentFilter) ([]models.Installment, error)
	// UpdateInstallment persists status and penalty fields only; the schedule
	// columns are immutable.
	UpdateInstallment(ctx context.Context, inst models.Installment) error

	// RecordPayment appends a payment and stores the installment status it
	// produced, in one commit.
	RecordPayment(ctx context.Context, p *models.Payment, status models.InstallmentStatus) error
	ListPayments(ctx context.Context, installmentID int64) ([]models.Payment, error)
	// PaidByInstallment sums payments per installment for one loan.
	PaidByInstallment(ctx context.Context, loanID int64) (map[int64]money.Amount, error)
}
