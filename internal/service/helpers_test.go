package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/loan-service/internal/config"
	"github.com/Dan9191/loan-service/internal/models"
	"github.com/Dan9191/loan-service/internal/money"
	"github.com/Dan9191/loan-service/internal/repository"
)

func day(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func amt(s string) money.Amount { return money.MustAmount(s) }

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type stubSigner struct{}

func (stubSigner) Sign(p models.Payment) string { return "sig:" + p.ReceiptNumber }

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyOverdue(ctx context.Context, b models.Borrower, inst models.Installment, owed money.Amount) error {
	return m.Called(ctx, b, inst, owed).Error(0)
}

func (m *mockNotifier) NotifyUpcoming(ctx context.Context, b models.Borrower, inst models.Installment, owed money.Amount) error {
	return m.Called(ctx, b, inst, owed).Error(0)
}

func testConfig() *config.Config {
	return &config.Config{
		ScheduleCadence:   string(CadenceFixed30),
		ReconcileWorkers:  2,
		ReminderDaysAhead: 3,
		Location:          time.UTC,
	}
}

// seedLoan stores an approved loan whose installments carry the given
// scheduled payments, due every 30 days from firstDue.
func seedLoan(t *testing.T, repo *repository.MemoryRepository, firstDue time.Time, policy models.PenaltyPolicy, scheduled ...string) (models.Loan, []models.Installment) {
	t.Helper()
	ctx := context.Background()

	borrower := &models.Borrower{FullName: "Ana Ruiz", Email: "ana@example.com"}
	require.NoError(t, repo.CreateBorrower(ctx, borrower))

	loan := &models.Loan{
		BorrowerID: borrower.ID,
		Status:     models.LoanPending,
		Terms: models.LoanTerms{
			TermCount:        len(scheduled),
			FirstPaymentDate: firstDue,
			Penalty:          policy,
		},
	}
	require.NoError(t, repo.CreateLoan(ctx, loan))
	loan.Status = models.LoanApproved

	schedule := make([]models.Installment, len(scheduled))
	remaining := money.Zero
	for _, s := range scheduled {
		remaining = remaining.Add(amt(s))
	}
	for i, s := range scheduled {
		remaining = remaining.Sub(amt(s))
		schedule[i] = models.Installment{
			Sequence:         i + 1,
			DueDate:          firstDue.AddDate(0, 0, 30*i),
			ScheduledPayment: amt(s),
			Principal:        amt(s),
			Interest:         money.Zero,
			RemainingBalance: remaining,
			AccruedPenalty:   money.Zero,
			Status:           models.InstallmentPending,
		}
	}
	stored, err := repo.ApproveLoan(ctx, *loan, schedule)
	require.NoError(t, err)
	return *loan, stored
}

func installmentStatuses(t *testing.T, repo repository.Store, loanID int64) []models.InstallmentStatus {
	t.Helper()
	list, err := repo.ListInstallments(context.Background(), loanID)
	require.NoError(t, err)
	out := make([]models.InstallmentStatus, len(list))
	for i, inst := range list {
		out[i] = inst.Status
	}
	return out
}
