package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/loan-service/internal/models"
	"github.com/Dan9191/loan-service/internal/money"
	"github.com/Dan9191/loan-service/internal/repository"
)

// ReceiptSigner signs payment receipts.
type ReceiptSigner interface {
	Sign(p models.Payment) string
}

// plannedPayment is one slice of an incoming payment before it is stored.
type plannedPayment struct {
	installment models.Installment
	amount      money.Amount
	status      models.InstallmentStatus
}

type allocationPlan struct {
	payments []plannedPayment
	// settled are unsettled installments that owe nothing and only need
	// their status stored.
	settled    []models.Installment
	loanStatus models.LoanStatus
}

// planAllocation distributes amount over the unsettled installments, oldest
// sequence first. installments must be the loan's full schedule ordered by
// sequence; paid holds the payment totals per installment ID.
func planAllocation(loan models.Loan, installments []models.Installment, paid map[int64]money.Amount,
	amount money.Amount, today time.Time) (allocationPlan, error) {
	if !amount.IsPositive() {
		return allocationPlan{}, fmt.Errorf("%w: got %s", models.ErrNonPositivePayment, amount)
	}
	if loan.Status == models.LoanPaid {
		return allocationPlan{}, fmt.Errorf("loan %d: %w", loan.ID, models.ErrLoanAlreadySettled)
	}
	if !loan.Status.Active() {
		return allocationPlan{}, fmt.Errorf("%w: loan %d is %s", models.ErrInvalidStatusTransition, loan.ID, loan.Status)
	}

	outstanding := money.Zero
	for _, inst := range installments {
		if !inst.Status.Settled() {
			outstanding = outstanding.Add(inst.Owed(paid[inst.ID]))
		}
	}
	if amount.GreaterThan(outstanding) && outstanding.IsPositive() {
		return allocationPlan{}, fmt.Errorf("%w: %s offered, %s outstanding",
			models.ErrPaymentExceedsOutstanding, amount, outstanding)
	}

	plan := allocationPlan{}
	statuses := make([]models.InstallmentStatus, len(installments))
	remaining := amount
	for i, inst := range installments {
		statuses[i] = inst.Status
		if inst.Status.Settled() {
			continue
		}
		owed := inst.Owed(paid[inst.ID])
		if owed.IsZero() {
			next := inst.Rederive(paid[inst.ID], today)
			statuses[i] = next.Status
			if next.Status != inst.Status {
				plan.settled = append(plan.settled, next)
			}
			continue
		}
		if !remaining.IsPositive() {
			continue
		}
		apply := money.Min(remaining, owed)
		next := inst.Rederive(paid[inst.ID].Add(apply), today)
		statuses[i] = next.Status
		plan.payments = append(plan.payments, plannedPayment{installment: inst, amount: apply, status: next.Status})
		remaining = remaining.Sub(apply)
	}
	plan.loanStatus = models.LoanStatusAfterPayment(loan.Status, statuses)
	return plan, nil
}

// PaymentAllocator applies incoming payments to a loan's installments.
type PaymentAllocator struct {
	repo   repository.Store
	locker *loanLocker
	signer ReceiptSigner
	log    *logrus.Logger
	now    func() time.Time
}

// NewPaymentAllocator wires dependencies.
func NewPaymentAllocator(repo repository.Store, locker *loanLocker, signer ReceiptSigner, log *logrus.Logger) *PaymentAllocator {
	return &PaymentAllocator{repo: repo, locker: locker, signer: signer, log: log, now: time.Now}
}

// Allocate registers a payment against a loan and returns the payment records
// created, in installment order. Each record commits on its own; if a write
// fails the records already stored stay valid and the error reports how far
// the allocation got.
func (a *PaymentAllocator) Allocate(ctx context.Context, loanID int64, amount money.Amount) ([]models.Payment, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: got %s", models.ErrNonPositivePayment, amount)
	}

	unlock := a.locker.Lock(loanID)
	defer unlock()

	loan, err := a.repo.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	installments, err := a.repo.ListInstallments(ctx, loanID)
	if err != nil {
		return nil, err
	}
	paid, err := a.repo.PaidByInstallment(ctx, loanID)
	if err != nil {
		return nil, err
	}

	now := a.now().UTC().Truncate(time.Microsecond)
	plan, err := planAllocation(loan, installments, paid, amount, models.DateOf(now))
	if err != nil {
		return nil, err
	}

	created := make([]models.Payment, 0, len(plan.payments))
	for _, pp := range plan.payments {
		p := models.Payment{
			InstallmentID: pp.installment.ID,
			Amount:        pp.amount,
			PaidAt:        now,
			ReceiptNumber: uuid.NewString(),
		}
		p.Signature = a.signer.Sign(p)
		if err := a.repo.RecordPayment(ctx, &p, pp.status); err != nil {
			return created, fmt.Errorf("payment applied to %d of %d installments: %w", len(created), len(plan.payments), err)
		}
		created = append(created, p)
		a.log.WithFields(logrus.Fields{
			"loan_id":     loanID,
			"installment": pp.installment.Sequence,
			"amount":      pp.amount.String(),
			"status":      pp.status,
		}).Info("Payment applied")
	}

	for _, inst := range plan.settled {
		if err := a.repo.UpdateInstallment(ctx, inst); err != nil {
			return created, err
		}
	}

	if plan.loanStatus != loan.Status {
		if err := a.repo.UpdateLoanStatus(ctx, loanID, plan.loanStatus); err != nil {
			return created, err
		}
		a.log.Infof("Loan %d is now %s", loanID, plan.loanStatus)
	}
	return created, nil
}
