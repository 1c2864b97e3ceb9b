package service

import (
	"fmt"
	"time"

	"github.com/Dan9191/loan-service/internal/models"
	"github.com/Dan9191/loan-service/internal/money"
)

// Cadence controls how due dates advance between installments.
type Cadence string

const (
	// CadenceFixed30 advances every due date by 30 days whatever the declared
	// frequency, and converts annual rates monthly. This matches the schedules
	// already issued by the loan office.
	CadenceFixed30 Cadence = "fixed30"
	// CadenceCalendar advances by 7 days, 14 days or one calendar month
	// according to the loan's frequency, with the matching periodic rate.
	CadenceCalendar Cadence = "calendar"
)

// Scheduler turns loan terms into a fixed-installment (French) repayment schedule.
type Scheduler struct {
	cadence Cadence
}

// NewScheduler creates a scheduler; unknown cadences fall back to CadenceFixed30.
func NewScheduler(cadence Cadence) *Scheduler {
	if cadence != CadenceCalendar {
		cadence = CadenceFixed30
	}
	return &Scheduler{cadence: cadence}
}

// Validate reports why terms cannot produce a schedule.
func (s *Scheduler) Validate(terms models.LoanTerms) error {
	if terms.TermCount <= 0 {
		return fmt.Errorf("%w: term count must be positive, got %d", models.ErrInvalidLoanTerms, terms.TermCount)
	}
	if !terms.Principal.IsPositive() {
		return fmt.Errorf("%w: principal must be positive, got %s", models.ErrInvalidLoanTerms, terms.Principal)
	}
	if terms.InterestRate.IsNegative() {
		return fmt.Errorf("%w: interest rate must not be negative, got %s", models.ErrInvalidLoanTerms, terms.InterestRate)
	}
	if _, err := models.ParseAmortizationMethod(string(terms.Method)); err != nil {
		return err
	}
	if _, err := models.ParseRatePeriod(string(terms.RatePeriod)); err != nil {
		return err
	}
	if _, err := models.ParseFrequency(string(terms.Frequency)); err != nil {
		return err
	}
	if terms.FirstPaymentDate.IsZero() && terms.DisbursementDate.IsZero() {
		return fmt.Errorf("%w: first payment or disbursement date is required", models.ErrInvalidLoanTerms)
	}
	return nil
}

// PeriodRate converts the nominal percentage rate to a per-installment ratio.
func (s *Scheduler) PeriodRate(terms models.LoanTerms) money.Rate {
	rate := terms.InterestRate.FromPercent()
	periods := int64(12)
	if s.cadence == CadenceCalendar {
		periods = frequencyOf(terms).PeriodsPerYear()
	}
	if terms.RatePeriod == models.RatePeriodMonthly {
		if periods == 12 {
			return rate
		}
		rate = rate.MulInt(12)
	}
	return rate.DivInt(periods)
}

// Generate produces exactly terms.TermCount installments numbered from 1.
// The last installment absorbs the rounding residual so the principal
// components sum to the loan principal and the final balance is zero.
// Rows that round to nothing, such as those after rounding clears the balance
// early, owe nothing and are generated already paid.
func (s *Scheduler) Generate(terms models.LoanTerms) ([]models.Installment, error) {
	if err := s.Validate(terms); err != nil {
		return nil, err
	}

	n := terms.TermCount
	rate := s.PeriodRate(terms)
	payment := fixedPayment(terms.Principal, rate, n)
	first := s.firstDueDate(terms)

	schedule := make([]models.Installment, 0, n)
	remaining := terms.Principal
	for period := 1; period <= n; period++ {
		interest := remaining.MulRate(rate).Round()
		principal := payment.Sub(interest).Round()
		scheduled := payment
		if period == n || principal.GreaterThan(remaining) {
			principal = remaining
			scheduled = principal.Add(interest)
		}
		if principal.IsNegative() {
			principal = money.Zero
			scheduled = interest
		}

		remaining = remaining.Sub(principal)
		if remaining.IsNegative() {
			remaining = money.Zero
		}

		status := models.InstallmentPending
		if scheduled.IsZero() {
			status = models.InstallmentPaid
		}

		schedule = append(schedule, models.Installment{
			Sequence:         period,
			DueDate:          s.dueDate(first, frequencyOf(terms), period),
			ScheduledPayment: scheduled,
			Principal:        principal,
			Interest:         interest,
			RemainingBalance: remaining,
			AccruedPenalty:   money.Zero,
			Status:           status,
		})
	}
	return schedule, nil
}

// fixedPayment is P*r/(1-(1+r)^-n), computed as P*r*f/(f-1) with f=(1+r)^n,
// or P/n without interest.
func fixedPayment(principal money.Amount, rate money.Rate, n int) money.Amount {
	if rate.IsZero() {
		return principal.DivInt(int64(n)).Round()
	}
	f := money.OneRate.Add(rate).Pow(n)
	factor := rate.Mul(f).Div(f.Sub(money.OneRate))
	return principal.MulRate(factor).Round()
}

func (s *Scheduler) firstDueDate(terms models.LoanTerms) time.Time {
	if !terms.FirstPaymentDate.IsZero() {
		return models.DateOf(terms.FirstPaymentDate)
	}
	return s.dueDate(models.DateOf(terms.DisbursementDate), frequencyOf(terms), 2)
}

// dueDate is the date of installment n given the date of installment 1.
func (s *Scheduler) dueDate(first time.Time, freq models.Frequency, n int) time.Time {
	steps := n - 1
	if s.cadence == CadenceFixed30 {
		return first.AddDate(0, 0, 30*steps)
	}
	switch freq {
	case models.FrequencyWeekly:
		return first.AddDate(0, 0, 7*steps)
	case models.FrequencyBiweekly:
		return first.AddDate(0, 0, 14*steps)
	default:
		return addMonths(first, steps)
	}
}

// addMonths moves by whole calendar months, clamping to the last day of
// shorter months instead of overflowing into the next one.
func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	target := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	last := target.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, 0, 0, 0, 0, time.UTC)
}

func frequencyOf(terms models.LoanTerms) models.Frequency {
	if terms.Frequency == "" {
		return models.FrequencyMonthly
	}
	return terms.Frequency
}
