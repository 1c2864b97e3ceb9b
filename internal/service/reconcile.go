package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Dan9191/loan-service/internal/models"
	"github.com/Dan9191/loan-service/internal/repository"
)

// reconcileStatuses are picked up by the daily run. Overdue installments are
// included so their penalty keeps accruing; only pending ones change status.
var reconcileStatuses = []models.InstallmentStatus{
	models.InstallmentPending,
	models.InstallmentPartiallyPaid,
	models.InstallmentOverdue,
}

// ItemFailure records an installment or loan the batch could not process.
type ItemFailure struct {
	LoanID        int64  `json:"loan_id"`
	InstallmentID int64  `json:"installment_id,omitempty"`
	Sequence      int    `json:"sequence,omitempty"`
	Error         string `json:"error"`
}

// BatchReport summarizes one reconciliation run.
type BatchReport struct {
	RunID              string        `json:"run_id"`
	AsOf               time.Time     `json:"as_of"`
	Examined           int           `json:"examined"`
	MarkedOverdue      int           `json:"marked_overdue"`
	PenaltiesAccrued   int           `json:"penalties_accrued"`
	AffectedLoans      []int64       `json:"affected_loans"`
	LoansMarkedOverdue []int64       `json:"loans_marked_overdue"`
	Failures           []ItemFailure `json:"failures"`
	StartedAt          time.Time     `json:"started_at"`
	FinishedAt         time.Time     `json:"finished_at"`
}

// ReconciliationJob is the daily batch that marks installments overdue,
// accrues penalties and flags overdue loans. It is safe to re-run for the
// same or a later date.
type ReconciliationJob struct {
	repo     repository.Store
	locker   *loanLocker
	notifier Notifier
	log      *logrus.Logger
	workers  int
}

// NewReconciliationJob wires dependencies; workers bounds how many loans are
// processed in parallel.
func NewReconciliationJob(repo repository.Store, locker *loanLocker, notifier Notifier, log *logrus.Logger, workers int) *ReconciliationJob {
	if workers < 1 {
		workers = 1
	}
	return &ReconciliationJob{repo: repo, locker: locker, notifier: notifier, log: log, workers: workers}
}

// loanOutcome is what processing one loan contributed to the report.
type loanOutcome struct {
	examined, markedOverdue, accrued int
	affected, loanMarked             bool
	failures                         []ItemFailure
}

// Run reconciles every installment due before asOf. Per-item failures are
// logged and reported. Failing to list the candidates or cancellation of ctx
// aborts the run; the partial report is returned with the error.
func (j *ReconciliationJob) Run(ctx context.Context, asOf time.Time) (BatchReport, error) {
	asOf = models.DateOf(asOf)
	report := BatchReport{
		RunID:              uuid.NewString(),
		AsOf:               asOf,
		AffectedLoans:      []int64{},
		LoansMarkedOverdue: []int64{},
		Failures:           []ItemFailure{},
		StartedAt:          time.Now().UTC(),
	}
	log := j.log.WithFields(logrus.Fields{"run_id": report.RunID, "as_of": asOf.Format(models.DateLayout)})
	log.Info("Starting reconciliation")

	candidates, err := j.repo.FindInstallments(ctx, repository.InstallmentFilter{
		Statuses:  reconcileStatuses,
		DueBefore: asOf,
	})
	if err != nil {
		return report, fmt.Errorf("failed to select installments: %w", err)
	}

	var loanIDs []int64
	seen := make(map[int64]bool)
	for _, inst := range candidates {
		if !seen[inst.LoanID] {
			seen[inst.LoanID] = true
			loanIDs = append(loanIDs, inst.LoanID)
		}
	}

	outcomes := make([]loanOutcome, len(loanIDs))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(j.workers)
	for i, loanID := range loanIDs {
		i, loanID := i, loanID
		g.Go(func() error {
			out := j.reconcileLoan(ctx, loanID, asOf, log)
			mu.Lock()
			outcomes[i] = out
			mu.Unlock()
			return ctx.Err()
		})
	}
	waitErr := g.Wait()

	for i, out := range outcomes {
		report.Examined += out.examined
		report.MarkedOverdue += out.markedOverdue
		report.PenaltiesAccrued += out.accrued
		report.Failures = append(report.Failures, out.failures...)
		if out.affected {
			report.AffectedLoans = append(report.AffectedLoans, loanIDs[i])
		}
		if out.loanMarked {
			report.LoansMarkedOverdue = append(report.LoansMarkedOverdue, loanIDs[i])
		}
	}
	report.FinishedAt = time.Now().UTC()

	if waitErr != nil {
		log.WithField("failures", len(report.Failures)).Errorf("Reconciliation aborted: %v", waitErr)
		return report, fmt.Errorf("reconciliation aborted: %w", waitErr)
	}

	log.WithFields(logrus.Fields{
		"examined":       report.Examined,
		"marked_overdue": report.MarkedOverdue,
		"penalties":      report.PenaltiesAccrued,
		"loans_overdue":  len(report.LoansMarkedOverdue),
		"failures":       len(report.Failures),
	}).Info("Reconciliation completed")
	return report, nil
}

// reconcileLoan processes one loan's past-due installments under the loan lock.
// The schedule is re-read inside the lock so a payment that landed after the
// candidate query is taken into account.
func (j *ReconciliationJob) reconcileLoan(ctx context.Context, loanID int64, asOf time.Time, log *logrus.Entry) loanOutcome {
	var out loanOutcome
	fail := func(inst models.Installment, err error) {
		out.failures = append(out.failures, ItemFailure{
			LoanID: loanID, InstallmentID: inst.ID, Sequence: inst.Sequence, Error: err.Error(),
		})
		log.WithFields(logrus.Fields{"loan_id": loanID, "installment": inst.Sequence}).
			Errorf("Reconciliation failed: %v", err)
	}

	if err := ctx.Err(); err != nil {
		fail(models.Installment{}, err)
		return out
	}

	unlock := j.locker.Lock(loanID)
	defer unlock()

	loan, err := j.repo.GetLoan(ctx, loanID)
	if err != nil {
		fail(models.Installment{}, err)
		return out
	}
	installments, err := j.repo.ListInstallments(ctx, loanID)
	if err != nil {
		fail(models.Installment{}, err)
		return out
	}
	paid, err := j.repo.PaidByInstallment(ctx, loanID)
	if err != nil {
		fail(models.Installment{}, err)
		return out
	}

	var newlyOverdue []models.Installment
	for _, inst := range installments {
		if inst.Status.Settled() || !inst.DueDate.Before(asOf) {
			continue
		}
		out.examined++

		next := inst
		if inst.Status == models.InstallmentPending {
			next = inst.Rederive(paid[inst.ID], asOf)
		}
		accrual := AccruePenalty(next, asOf, loan.Terms.Penalty)
		next = accrual.Installment

		if next.Status != inst.Status || accrual.Changed {
			if err := j.repo.UpdateInstallment(ctx, next); err != nil {
				fail(inst, err)
				continue
			}
		}
		if next.Status.Settled() {
			continue
		}
		out.affected = true
		if next.Status == models.InstallmentOverdue && inst.Status == models.InstallmentPending {
			out.markedOverdue++
			newlyOverdue = append(newlyOverdue, next)
		}
		if accrual.Changed {
			out.accrued++
		}
		log.WithFields(logrus.Fields{
			"loan_id":     loanID,
			"installment": next.Sequence,
			"status":      next.Status,
			"penalty":     next.AccruedPenalty.String(),
		}).Debug("Installment reconciled")
	}

	if next := models.LoanStatusAfterReconciliation(loan.Status, out.affected); next != loan.Status {
		if err := j.repo.UpdateLoanStatus(ctx, loanID, next); err != nil {
			fail(models.Installment{}, err)
		} else {
			out.loanMarked = true
			log.Infof("Loan %d marked %s", loanID, next)
		}
	}

	j.notifyOverdue(ctx, loan, newlyOverdue, log)
	return out
}

func (j *ReconciliationJob) notifyOverdue(ctx context.Context, loan models.Loan, installments []models.Installment, log *logrus.Entry) {
	if len(installments) == 0 || j.notifier == nil {
		return
	}
	borrower, err := j.repo.GetBorrower(ctx, loan.BorrowerID)
	if err != nil {
		log.Warnf("No borrower contact for loan %d: %v", loan.ID, err)
		return
	}
	for _, inst := range installments {
		// Only pending installments are newly marked, so nothing was paid yet.
		if err := j.notifier.NotifyOverdue(ctx, borrower, inst, inst.AmountDue()); err != nil {
			log.Warnf("Overdue notice for loan %d installment %d not sent: %v", loan.ID, inst.Sequence, err)
		}
	}
}
