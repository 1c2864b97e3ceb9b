package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/loan-service/internal/models"
	"github.com/Dan9191/loan-service/internal/money"
	"github.com/Dan9191/loan-service/internal/repository"
)

type fixture struct {
	svc      *Service
	repo     *repository.MemoryRepository
	notifier *mockNotifier
	loanType models.LoanType
	borrower models.Borrower
}

func newFixture(t *testing.T, today time.Time) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	n := &mockNotifier{}
	svc := NewService(repo, quietLogger(), testConfig(), n, stubSigner{})
	svc.now = func() time.Time { return today }
	svc.allocator.now = svc.now

	lt := models.LoanType{
		Name:            "Personal",
		DefaultRate:     money.MustRate("12"),
		RatePeriod:      models.RatePeriodAnnual,
		MinAmount:       amt("1000"),
		MaxAmount:       amt("50000"),
		MinTerm:         3,
		MaxTerm:         24,
		DisbursementFee: money.MustRate("0.01"),
		Penalty:         onePercentDaily,
	}
	require.NoError(t, svc.CreateLoanType(ctx, &lt))
	b := models.Borrower{FullName: "Ana Ruiz", Email: "ana@example.com"}
	require.NoError(t, svc.CreateBorrower(ctx, &b))

	return &fixture{svc: svc, repo: repo, notifier: n, loanType: lt, borrower: b}
}

func (f *fixture) request(amount string, term int) CreateLoanRequest {
	return CreateLoanRequest{
		BorrowerID: f.borrower.ID,
		LoanTypeID: f.loanType.ID,
		Amount:     amt(amount),
		TermCount:  term,
	}
}

func (f *fixture) approvedLoan(t *testing.T) (*models.Loan, []models.Installment) {
	t.Helper()
	ctx := context.Background()
	loan, err := f.svc.CreateLoan(ctx, f.request("10000", 12))
	require.NoError(t, err)
	approved, schedule, err := f.svc.ApproveLoan(ctx, loan.ID, day("2024-01-15"))
	require.NoError(t, err)
	return approved, schedule
}

func TestCreateLoan(t *testing.T) {
	f := newFixture(t, day("2024-01-10"))
	ctx := context.Background()

	loan, err := f.svc.CreateLoan(ctx, f.request("10000", 12))
	require.NoError(t, err)

	assert.NotZero(t, loan.ID)
	assert.Equal(t, models.LoanPending, loan.Status)
	assert.True(t, loan.Terms.InterestRate.Equal(money.MustRate("12")), "default rate from loan type")
	assert.Equal(t, onePercentDaily, loan.Terms.Penalty)
	assert.Equal(t, models.ExpensesAddToPrincipal, loan.ExpenseHandling)
	require.Len(t, loan.Expenses, 1)
	assert.Equal(t, "disbursement_fee", loan.Expenses[0].Kind)
	assert.Equal(t, "100.00", loan.TotalExpenses.String())
	assert.Equal(t, "10100.00", loan.Terms.Principal.String())
	assert.Equal(t, "10000.00", loan.DisbursedAmount.String())

	installments, err := f.repo.ListInstallments(ctx, loan.ID)
	require.NoError(t, err)
	assert.Empty(t, installments, "no schedule before approval")
}

func TestCreateLoanDeductingExpenses(t *testing.T) {
	f := newFixture(t, day("2024-01-10"))
	req := f.request("10000", 12)
	req.ExpenseHandling = models.ExpensesDeductFromDisbursement
	req.Expenses = []models.Expense{{Kind: "insurance", Amount: amt("150.00")}}
	rate := money.MustRate("9.5")
	req.InterestRate = &rate

	loan, err := f.svc.CreateLoan(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, loan.Terms.InterestRate.Equal(rate))
	assert.Equal(t, "250.00", loan.TotalExpenses.String())
	assert.Equal(t, "10000.00", loan.Terms.Principal.String())
	assert.Equal(t, "9750.00", loan.DisbursedAmount.String())
}

func TestCreateLoanValidation(t *testing.T) {
	f := newFixture(t, day("2024-01-10"))
	ctx := context.Background()

	guaranteed := models.LoanType{
		Name: "Mortgage", DefaultRate: money.MustRate("8"), MinAmount: amt("1000"), MaxAmount: amt("900000"),
		MinTerm: 12, MaxTerm: 360, RequiresGuarantee: true,
	}
	require.NoError(t, f.svc.CreateLoanType(ctx, &guaranteed))

	tests := []struct {
		name   string
		mutate func(*CreateLoanRequest)
		want   error
	}{
		{"amount below minimum", func(r *CreateLoanRequest) { r.Amount = amt("999.99") }, models.ErrInvalidLoanTerms},
		{"amount above maximum", func(r *CreateLoanRequest) { r.Amount = amt("50000.01") }, models.ErrInvalidLoanTerms},
		{"term too long", func(r *CreateLoanRequest) { r.TermCount = 25 }, models.ErrInvalidLoanTerms},
		{"negative rate", func(r *CreateLoanRequest) {
			rate := money.MustRate("-1")
			r.InterestRate = &rate
		}, models.ErrInvalidLoanTerms},
		{"unknown frequency", func(r *CreateLoanRequest) { r.Frequency = "daily" }, models.ErrInvalidLoanTerms},
		{"unknown borrower", func(r *CreateLoanRequest) { r.BorrowerID = 404 }, models.ErrBorrowerNotFound},
		{"unknown loan type", func(r *CreateLoanRequest) { r.LoanTypeID = 404 }, models.ErrLoanTypeNotFound},
		{"missing guarantor", func(r *CreateLoanRequest) {
			r.LoanTypeID = guaranteed.ID
			r.TermCount = 120
		}, models.ErrInvalidLoanTerms},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.request("10000", 12)
			tt.mutate(&req)
			loan, err := f.svc.CreateLoan(ctx, req)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, loan)
		})
	}
}

func TestApproveLoan(t *testing.T) {
	f := newFixture(t, day("2024-01-15"))
	ctx := context.Background()
	loan, schedule := f.approvedLoan(t)

	assert.Equal(t, models.LoanApproved, loan.Status)
	assert.NotNil(t, loan.ApprovedAt)
	assert.Equal(t, day("2024-01-15"), loan.Terms.DisbursementDate)
	require.Len(t, schedule, 12)
	assert.Equal(t, day("2024-02-14"), schedule[0].DueDate)
	assert.Equal(t, day("2024-02-14"), loan.Terms.FirstPaymentDate)
	for _, inst := range schedule {
		assert.NotZero(t, inst.ID)
		assert.Equal(t, loan.ID, inst.LoanID)
	}

	_, _, err := f.svc.ApproveLoan(ctx, loan.ID, day("2024-01-16"))
	assert.ErrorIs(t, err, models.ErrInvalidStatusTransition)
	stored, err := f.repo.ListInstallments(ctx, loan.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 12, "schedule is generated once")

	_, _, err = f.svc.ApproveLoan(ctx, 404, day("2024-01-16"))
	assert.ErrorIs(t, err, models.ErrLoanNotFound)
}

func TestApproveLoanOneActivePerBorrower(t *testing.T) {
	f := newFixture(t, day("2024-01-15"))
	ctx := context.Background()
	first, _ := f.approvedLoan(t)

	second, err := f.svc.CreateLoan(ctx, f.request("5000", 6))
	require.NoError(t, err)
	_, _, err = f.svc.ApproveLoan(ctx, second.ID, day("2024-01-15"))
	assert.ErrorIs(t, err, models.ErrBorrowerHasActiveLoan)

	stored, err := f.repo.GetLoan(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanPending, stored.Status)

	outstanding, err := f.svc.LoanOutstanding(ctx, first.ID)
	require.NoError(t, err)
	_, err = f.svc.RegisterPayment(ctx, first.ID, outstanding)
	require.NoError(t, err)

	approved, _, err := f.svc.ApproveLoan(ctx, second.ID, day("2024-01-15"))
	require.NoError(t, err)
	assert.Equal(t, models.LoanApproved, approved.Status)
}

func TestRejectLoan(t *testing.T) {
	f := newFixture(t, day("2024-01-15"))
	ctx := context.Background()
	loan, err := f.svc.CreateLoan(ctx, f.request("5000", 6))
	require.NoError(t, err)

	rejected, err := f.svc.RejectLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanRejected, rejected.Status)

	_, err = f.svc.RejectLoan(ctx, loan.ID)
	assert.ErrorIs(t, err, models.ErrInvalidStatusTransition)
	_, _, err = f.svc.ApproveLoan(ctx, loan.ID, day("2024-01-16"))
	assert.ErrorIs(t, err, models.ErrInvalidStatusTransition)
	_, err = f.svc.RegisterPayment(ctx, loan.ID, amt("10"))
	assert.ErrorIs(t, err, models.ErrInvalidStatusTransition)
}

func TestPaymentsAndProjections(t *testing.T) {
	f := newFixture(t, day("2024-01-20"))
	ctx := context.Background()
	loan, schedule := f.approvedLoan(t)

	total := money.Zero
	for _, inst := range schedule {
		total = total.Add(inst.ScheduledPayment)
	}
	outstanding, err := f.svc.LoanOutstanding(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, outstanding.Equal(total))

	payment := schedule[0].ScheduledPayment.Add(amt("10.00"))
	payments, err := f.svc.RegisterPayment(ctx, loan.ID, payment)
	require.NoError(t, err)
	require.Len(t, payments, 2)

	owed, err := f.svc.AmountOwed(ctx, schedule[0].ID)
	require.NoError(t, err)
	assert.True(t, owed.IsZero())
	owed, err = f.svc.AmountOwed(ctx, schedule[1].ID)
	require.NoError(t, err)
	assert.True(t, owed.Equal(schedule[1].ScheduledPayment.Sub(amt("10.00"))))

	detail, err := f.svc.LoanDetail(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, detail.TotalPaid.Equal(payment))
	assert.True(t, detail.Outstanding.Equal(total.Sub(payment)))
	assert.True(t, detail.TotalScheduled.Equal(total))
	assert.Equal(t, models.InstallmentPaid, detail.Installments[0].Status)
	assert.Equal(t, models.InstallmentPartiallyPaid, detail.Installments[1].Status)
	assert.Equal(t, "10.00", detail.Installments[1].Paid.String())

	_, err = f.svc.AmountOwed(ctx, 9999)
	assert.ErrorIs(t, err, models.ErrInstallmentNotFound)
	_, err = f.svc.LoanOutstanding(ctx, 9999)
	assert.ErrorIs(t, err, models.ErrLoanNotFound)
}

func TestCollections(t *testing.T) {
	f := newFixture(t, day("2024-01-20"))
	ctx := context.Background()
	loan, schedule := f.approvedLoan(t)

	_, err := f.svc.RegisterPayment(ctx, loan.ID, schedule[0].ScheduledPayment.Add(amt("10.00")))
	require.NoError(t, err)

	items, err := f.svc.Collections(ctx, day("2024-04-20"))
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, schedule[1].ID, items[0].Installment.ID)
	assert.Equal(t, day("2024-03-15"), items[0].Installment.DueDate)
	assert.Equal(t, 36, items[0].DaysOverdue)
	assert.Equal(t, models.InstallmentPartiallyPaid, items[0].Status)
	assert.True(t, items[0].Owed.Equal(schedule[1].ScheduledPayment.Sub(amt("10.00"))))
	assert.Equal(t, f.borrower.ID, items[0].BorrowerID)

	assert.Equal(t, schedule[2].ID, items[1].Installment.ID)
	assert.Equal(t, 6, items[1].DaysOverdue)
}

func TestSendReminders(t *testing.T) {
	f := newFixture(t, day("2024-01-15"))
	ctx := context.Background()
	_, schedule := f.approvedLoan(t)

	f.notifier.On("NotifyUpcoming", mock.Anything, f.borrower,
		mock.MatchedBy(func(inst models.Installment) bool { return inst.ID == schedule[0].ID }),
		mock.MatchedBy(func(owed money.Amount) bool { return owed.Equal(schedule[0].ScheduledPayment) }),
	).Return(nil).Once()

	sent, err := f.svc.SendReminders(ctx, day("2024-02-11"))
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	sent, err = f.svc.SendReminders(ctx, day("2024-02-01"))
	require.NoError(t, err)
	assert.Zero(t, sent, "nothing due within three days")
	f.notifier.AssertExpectations(t)
}

func TestRunDailyReconciliation(t *testing.T) {
	f := newFixture(t, day("2024-01-15"))
	ctx := context.Background()
	loan, _ := f.approvedLoan(t)

	f.notifier.On("NotifyOverdue", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.svc.now = func() time.Time { return day("2024-02-16").Add(5 * time.Hour) }
	require.NoError(t, f.svc.RunDailyReconciliation(ctx))

	detail, err := f.svc.LoanDetail(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanOverdue, detail.Loan.Status)
	assert.Equal(t, models.InstallmentOverdue, detail.Installments[0].Status)
	assert.True(t, detail.TotalPenalty.IsPositive())
	f.notifier.AssertNumberOfCalls(t, "NotifyOverdue", 1)
}
