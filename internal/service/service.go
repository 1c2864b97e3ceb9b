package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Dan9191/loan-service/internal/config"
	"github.com/Dan9191/loan-service/internal/models"
	"github.com/Dan9191/loan-service/internal/money"
	"github.com/Dan9191/loan-service/internal/repository"
)

// Service handles business logic
type Service struct {
	repo       repository.Store
	log        *logrus.Logger
	config     *config.Config
	scheduler  *Scheduler
	locker     *loanLocker
	allocator  *PaymentAllocator
	reconciler *ReconciliationJob
	notifier   Notifier
	now        func() time.Time
}

// NewService initializes a new service. A nil notifier disables notifications.
func NewService(repo repository.Store, log *logrus.Logger, cfg *config.Config, notifier Notifier, signer ReceiptSigner) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	locker := newLoanLocker()
	return &Service{
		repo:       repo,
		log:        log,
		config:     cfg,
		scheduler:  NewScheduler(Cadence(cfg.ScheduleCadence)),
		locker:     locker,
		allocator:  NewPaymentAllocator(repo, locker, signer, log),
		reconciler: NewReconciliationJob(repo, locker, notifier, log, cfg.ReconcileWorkers),
		notifier:   notifier,
		now:        time.Now,
	}
}

// today is the current calendar day in the configured time zone.
func (s *Service) today() time.Time {
	loc := s.config.Location
	if loc == nil {
		loc = time.UTC
	}
	return models.DateOf(s.now().In(loc))
}

// CreateLoanRequest is a loan application. A nil InterestRate takes the loan
// type's default rate.
type CreateLoanRequest struct {
	BorrowerID       int64                  `json:"borrower_id"`
	LoanTypeID       int64                  `json:"loan_type_id"`
	GuarantorID      int64                  `json:"guarantor_id"`
	Amount           money.Amount           `json:"amount"`
	InterestRate     *money.Rate            `json:"interest_rate"`
	RatePeriod       models.RatePeriod      `json:"rate_period"`
	TermCount        int                    `json:"term_count"`
	FirstPaymentDate time.Time              `json:"first_payment_date"`
	Frequency        models.Frequency       `json:"frequency"`
	ExpenseHandling  models.ExpenseHandling `json:"expense_handling"`
	Expenses         []models.Expense       `json:"expenses"`
}

// CreateLoan validates an application against its loan type and stores it as
// a pending loan. No schedule exists until the loan is approved.
func (s *Service) CreateLoan(ctx context.Context, req CreateLoanRequest) (*models.Loan, error) {
	if _, err := s.repo.GetBorrower(ctx, req.BorrowerID); err != nil {
		return nil, err
	}

	ratePeriod, err := models.ParseRatePeriod(string(req.RatePeriod))
	if err != nil {
		return nil, err
	}
	frequency, err := models.ParseFrequency(string(req.Frequency))
	if err != nil {
		return nil, err
	}
	handling, err := models.ParseExpenseHandling(string(req.ExpenseHandling))
	if err != nil {
		return nil, err
	}

	loan := &models.Loan{
		BorrowerID:      req.BorrowerID,
		LoanTypeID:      req.LoanTypeID,
		GuarantorID:     req.GuarantorID,
		Status:          models.LoanPending,
		ExpenseHandling: handling,
		Expenses:        append([]models.Expense(nil), req.Expenses...),
		CreatedAt:       s.now().UTC(),
		Terms: models.LoanTerms{
			RatePeriod:       ratePeriod,
			TermCount:        req.TermCount,
			FirstPaymentDate: req.FirstPaymentDate,
			Frequency:        frequency,
			Method:           models.AmortizationFrench,
			Penalty:          models.PenaltyPolicy{Basis: models.PenaltyOnScheduledPayment},
		},
	}
	if !loan.Terms.FirstPaymentDate.IsZero() {
		loan.Terms.FirstPaymentDate = models.DateOf(loan.Terms.FirstPaymentDate)
	}
	if req.InterestRate != nil {
		loan.Terms.InterestRate = *req.InterestRate
	}

	if req.LoanTypeID != 0 {
		lt, err := s.repo.GetLoanType(ctx, req.LoanTypeID)
		if err != nil {
			return nil, err
		}
		if err := lt.CheckRequest(req.Amount, req.TermCount); err != nil {
			return nil, err
		}
		if lt.RequiresGuarantee && req.GuarantorID == 0 {
			return nil, fmt.Errorf("%w: loan type %q requires a guarantor", models.ErrInvalidLoanTerms, lt.Name)
		}
		if req.InterestRate == nil {
			loan.Terms.InterestRate = lt.DefaultRate
			loan.Terms.RatePeriod = lt.RatePeriod
		}
		loan.Terms.Method = lt.Method
		loan.Terms.Penalty = lt.Penalty
		if fee := req.Amount.MulRate(lt.DisbursementFee).Round(); fee.IsPositive() {
			loan.Expenses = append(loan.Expenses, models.Expense{
				Kind:        "disbursement_fee",
				Amount:      fee,
				Description: fmt.Sprintf("%s disbursement fee", lt.Name),
			})
		}
	}

	if err := loan.ApplyExpenses(req.Amount); err != nil {
		return nil, err
	}

	// The disbursement date is only known at approval; validate as if today.
	check := loan.Terms
	check.DisbursementDate = s.today()
	if err := s.scheduler.Validate(check); err != nil {
		return nil, err
	}

	if err := s.repo.CreateLoan(ctx, loan); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"loan_id":   loan.ID,
		"borrower":  loan.BorrowerID,
		"principal": loan.Terms.Principal.String(),
	}).Info("Loan application created")
	return loan, nil
}

// ApproveLoan disburses a pending loan on approvedOn and stores its schedule.
// The schedule is generated exactly once; the loan stays pending if storing it
// fails.
func (s *Service) ApproveLoan(ctx context.Context, loanID int64, approvedOn time.Time) (*models.Loan, []models.Installment, error) {
	unlock := s.locker.Lock(loanID)
	defer unlock()

	loan, err := s.repo.GetLoan(ctx, loanID)
	if err != nil {
		return nil, nil, err
	}
	next, err := loan.Status.Approve()
	if err != nil {
		return nil, nil, fmt.Errorf("loan %d: %w", loanID, err)
	}

	loan.Terms.DisbursementDate = models.DateOf(approvedOn)
	schedule, err := s.scheduler.Generate(loan.Terms)
	if err != nil {
		return nil, nil, err
	}
	loan.Terms.FirstPaymentDate = schedule[0].DueDate
	loan.Status = next
	approvedAt := s.now().UTC()
	loan.ApprovedAt = &approvedAt

	stored, err := s.repo.ApproveLoan(ctx, loan, schedule)
	if err != nil {
		return nil, nil, err
	}
	s.log.WithFields(logrus.Fields{
		"loan_id":      loanID,
		"installments": len(stored),
		"first_due":    loan.Terms.FirstPaymentDate.Format(models.DateLayout),
	}).Info("Loan approved")
	return &loan, stored, nil
}

// RejectLoan closes a pending application.
func (s *Service) RejectLoan(ctx context.Context, loanID int64) (*models.Loan, error) {
	unlock := s.locker.Lock(loanID)
	defer unlock()

	loan, err := s.repo.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	next, err := loan.Status.Reject()
	if err != nil {
		return nil, fmt.Errorf("loan %d: %w", loanID, err)
	}
	if err := s.repo.UpdateLoanStatus(ctx, loanID, next); err != nil {
		return nil, err
	}
	loan.Status = next
	s.log.Infof("Loan %d rejected", loanID)
	return &loan, nil
}

// GenerateSchedule computes a schedule without storing anything.
func (s *Service) GenerateSchedule(terms models.LoanTerms) ([]models.Installment, error) {
	return s.scheduler.Generate(terms)
}

// RegisterPayment allocates amount over the loan's installments, oldest first.
func (s *Service) RegisterPayment(ctx context.Context, loanID int64, amount money.Amount) ([]models.Payment, error) {
	return s.allocator.Allocate(ctx, loanID, amount)
}

// RunReconciliation runs the daily batch for asOf.
func (s *Service) RunReconciliation(ctx context.Context, asOf time.Time) (BatchReport, error) {
	return s.reconciler.Run(ctx, asOf)
}

// RunDailyReconciliation is the cron entry point: reconcile as of today.
func (s *Service) RunDailyReconciliation(ctx context.Context) error {
	report, err := s.RunReconciliation(ctx, s.today())
	if err != nil {
		return err
	}
	if len(report.Failures) > 0 {
		s.log.Warnf("Reconciliation %s finished with %d failures", report.RunID, len(report.Failures))
	}
	return nil
}

// SendReminders notifies borrowers of unpaid installments due between asOf
// and REMINDER_DAYS_AHEAD days later. It returns how many notices were sent.
func (s *Service) SendReminders(ctx context.Context, asOf time.Time) (int, error) {
	from := models.DateOf(asOf)
	upcoming, err := s.repo.FindInstallments(ctx, repository.InstallmentFilter{
		Statuses:  []models.InstallmentStatus{models.InstallmentPending, models.InstallmentPartiallyPaid},
		DueFrom:   from,
		DueBefore: from.AddDate(0, 0, s.config.ReminderDaysAhead+1),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to select upcoming installments: %w", err)
	}

	sent := 0
	paidByLoan := make(map[int64]map[int64]money.Amount)
	for _, inst := range upcoming {
		paid, ok := paidByLoan[inst.LoanID]
		if !ok {
			if paid, err = s.repo.PaidByInstallment(ctx, inst.LoanID); err != nil {
				s.log.Warnf("Reminder for loan %d skipped: %v", inst.LoanID, err)
				continue
			}
			paidByLoan[inst.LoanID] = paid
		}
		loan, err := s.repo.GetLoan(ctx, inst.LoanID)
		if err != nil {
			s.log.Warnf("Reminder for loan %d skipped: %v", inst.LoanID, err)
			continue
		}
		borrower, err := s.repo.GetBorrower(ctx, loan.BorrowerID)
		if err != nil {
			s.log.Warnf("Reminder for loan %d skipped: %v", inst.LoanID, err)
			continue
		}
		if err := s.notifier.NotifyUpcoming(ctx, borrower, inst, inst.Owed(paid[inst.ID])); err != nil {
			s.log.Warnf("Reminder for loan %d installment %d not sent: %v", inst.LoanID, inst.Sequence, err)
			continue
		}
		sent++
	}
	s.log.Infof("Sent %d payment reminders", sent)
	return sent, nil
}

// SendDailyReminders is the cron entry point for SendReminders.
func (s *Service) SendDailyReminders(ctx context.Context) error {
	_, err := s.SendReminders(ctx, s.today())
	return err
}

// AmountOwed is what the installment still needs today: scheduled payment plus
// accrued penalty minus payments.
func (s *Service) AmountOwed(ctx context.Context, installmentID int64) (money.Amount, error) {
	inst, err := s.repo.GetInstallment(ctx, installmentID)
	if err != nil {
		return money.Zero, err
	}
	payments, err := s.repo.ListPayments(ctx, installmentID)
	if err != nil {
		return money.Zero, err
	}
	return inst.Owed(models.TotalPaid(payments)), nil
}

// LoanOutstanding is the sum owed across the loan's unsettled installments.
func (s *Service) LoanOutstanding(ctx context.Context, loanID int64) (money.Amount, error) {
	detail, err := s.LoanDetail(ctx, loanID)
	if err != nil {
		return money.Zero, err
	}
	return detail.Outstanding, nil
}

// InstallmentView is an installment with its payment totals.
type InstallmentView struct {
	models.Installment
	Paid money.Amount `json:"paid"`
	Owed money.Amount `json:"owed"`
}

// LoanDetail is the read model of a loan and its schedule.
type LoanDetail struct {
	Loan           models.Loan       `json:"loan"`
	Installments   []InstallmentView `json:"installments"`
	TotalScheduled money.Amount      `json:"total_scheduled"`
	TotalInterest  money.Amount      `json:"total_interest"`
	TotalPenalty   money.Amount      `json:"total_penalty"`
	TotalPaid      money.Amount      `json:"total_paid"`
	Outstanding    money.Amount      `json:"outstanding"`
}

// LoanDetail projects a loan with per-installment paid and owed amounts.
func (s *Service) LoanDetail(ctx context.Context, loanID int64) (*LoanDetail, error) {
	loan, err := s.repo.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	installments, err := s.repo.ListInstallments(ctx, loanID)
	if err != nil {
		return nil, err
	}
	paid, err := s.repo.PaidByInstallment(ctx, loanID)
	if err != nil {
		return nil, err
	}

	detail := &LoanDetail{
		Loan:         loan,
		Installments: make([]InstallmentView, 0, len(installments)),
	}
	for _, inst := range installments {
		view := InstallmentView{Installment: inst, Paid: paid[inst.ID], Owed: money.Zero}
		if !inst.Status.Settled() {
			view.Owed = inst.Owed(view.Paid)
		}
		detail.Installments = append(detail.Installments, view)
		detail.TotalScheduled = detail.TotalScheduled.Add(inst.ScheduledPayment)
		detail.TotalInterest = detail.TotalInterest.Add(inst.Interest)
		detail.TotalPenalty = detail.TotalPenalty.Add(inst.AccruedPenalty)
		detail.TotalPaid = detail.TotalPaid.Add(view.Paid)
		detail.Outstanding = detail.Outstanding.Add(view.Owed)
	}
	return detail, nil
}

// CollectionItem is an unsettled installment past its due date.
type CollectionItem struct {
	LoanID      int64                    `json:"loan_id"`
	BorrowerID  int64                    `json:"borrower_id"`
	Installment models.Installment       `json:"installment"`
	Owed        money.Amount             `json:"owed"`
	DaysOverdue int                      `json:"days_overdue"`
	Status      models.InstallmentStatus `json:"status"`
}

// Collections lists unsettled installments due before asOf, most overdue first.
func (s *Service) Collections(ctx context.Context, asOf time.Time) ([]CollectionItem, error) {
	asOf = models.DateOf(asOf)
	due, err := s.repo.FindInstallments(ctx, repository.InstallmentFilter{
		Statuses:  models.UnsettledStatuses,
		DueBefore: asOf,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to select past due installments: %w", err)
	}

	items := make([]CollectionItem, 0, len(due))
	loans := make(map[int64]models.Loan)
	paidByLoan := make(map[int64]map[int64]money.Amount)
	for _, inst := range due {
		loan, ok := loans[inst.LoanID]
		if !ok {
			if loan, err = s.repo.GetLoan(ctx, inst.LoanID); err != nil {
				return nil, err
			}
			if paidByLoan[inst.LoanID], err = s.repo.PaidByInstallment(ctx, inst.LoanID); err != nil {
				return nil, err
			}
			loans[inst.LoanID] = loan
		}
		items = append(items, CollectionItem{
			LoanID:      inst.LoanID,
			BorrowerID:  loan.BorrowerID,
			Installment: inst,
			Owed:        inst.Owed(paidByLoan[inst.LoanID][inst.ID]),
			DaysOverdue: models.DaysBetween(inst.DueDate, asOf),
			Status:      inst.Status,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].DaysOverdue != items[j].DaysOverdue {
			return items[i].DaysOverdue > items[j].DaysOverdue
		}
		if items[i].LoanID != items[j].LoanID {
			return items[i].LoanID < items[j].LoanID
		}
		return items[i].Installment.Sequence < items[j].Installment.Sequence
	})
	return items, nil
}

// CreateLoanType validates and stores a loan product.
func (s *Service) CreateLoanType(ctx context.Context, lt *models.LoanType) error {
	var err error
	if lt.RatePeriod, err = models.ParseRatePeriod(string(lt.RatePeriod)); err != nil {
		return err
	}
	if lt.Method, err = models.ParseAmortizationMethod(string(lt.Method)); err != nil {
		return err
	}
	if lt.Penalty.Basis, err = models.ParsePenaltyBasis(string(lt.Penalty.Basis)); err != nil {
		return err
	}
	if err := lt.Validate(); err != nil {
		return err
	}
	if err := s.repo.CreateLoanType(ctx, lt); err != nil {
		return err
	}
	s.log.Infof("Loan type created: %s", lt.Name)
	return nil
}

// CreateBorrower stores a borrower contact record.
func (s *Service) CreateBorrower(ctx context.Context, b *models.Borrower) error {
	if b.FullName == "" {
		return fmt.Errorf("%w: borrower name is required", models.ErrInvalidLoanTerms)
	}
	return s.repo.CreateBorrower(ctx, b)
}
