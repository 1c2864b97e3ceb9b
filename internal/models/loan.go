package models

import (
	"fmt"
	"time"

	"github.com/Dan9191/loan-service/internal/money"
)

// RatePeriod is the period a nominal interest rate is quoted for.
type RatePeriod string

const (
	RatePeriodAnnual  RatePeriod = "annual"
	RatePeriodMonthly RatePeriod = "monthly"
)

// ParseRatePeriod resolves a configured rate period.
func ParseRatePeriod(s string) (RatePeriod, error) {
	switch p := RatePeriod(s); p {
	case RatePeriodAnnual, RatePeriodMonthly:
		return p, nil
	case "":
		return RatePeriodAnnual, nil
	}
	return "", fmt.Errorf("%w: unknown rate period %q", ErrInvalidLoanTerms, s)
}

// Frequency is the declared payment cadence of a loan.
type Frequency string

const (
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// ParseFrequency resolves a payment frequency; empty means monthly.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(s); f {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return f, nil
	case "":
		return FrequencyMonthly, nil
	}
	return "", fmt.Errorf("%w: unknown payment frequency %q", ErrInvalidLoanTerms, s)
}

// PeriodsPerYear is the number of installments a year holds at this cadence.
func (f Frequency) PeriodsPerYear() int64 {
	switch f {
	case FrequencyWeekly:
		return 52
	case FrequencyBiweekly:
		return 26
	default:
		return 12
	}
}

// AmortizationMethod selects the schedule algorithm. Only the fixed
// installment (French) method exists.
type AmortizationMethod string

const AmortizationFrench AmortizationMethod = "french"

func ParseAmortizationMethod(s string) (AmortizationMethod, error) {
	switch m := AmortizationMethod(s); m {
	case AmortizationFrench:
		return m, nil
	case "":
		return AmortizationFrench, nil
	}
	return "", fmt.Errorf("%w: unsupported amortization method %q", ErrInvalidLoanTerms, s)
}

// ExpenseHandling decides whether loan expenses are financed or withheld.
type ExpenseHandling string

const (
	ExpensesAddToPrincipal         ExpenseHandling = "add_to_principal"
	ExpensesDeductFromDisbursement ExpenseHandling = "deduct_from_disbursement"
)

func ParseExpenseHandling(s string) (ExpenseHandling, error) {
	switch h := ExpenseHandling(s); h {
	case ExpensesAddToPrincipal, ExpensesDeductFromDisbursement:
		return h, nil
	case "":
		return ExpensesAddToPrincipal, nil
	}
	return "", fmt.Errorf("%w: unknown expense handling %q", ErrInvalidLoanTerms, s)
}

// LoanTerms are fixed when a loan is approved and drive schedule generation.
// InterestRate is a percentage for RatePeriod.
type LoanTerms struct {
	Principal        money.Amount       `json:"principal"`
	InterestRate     money.Rate         `json:"interest_rate"`
	RatePeriod       RatePeriod         `json:"rate_period"`
	TermCount        int                `json:"term_count"`
	DisbursementDate time.Time          `json:"disbursement_date"`
	FirstPaymentDate time.Time          `json:"first_payment_date"`
	Frequency        Frequency          `json:"frequency"`
	Method           AmortizationMethod `json:"method"`
	Penalty          PenaltyPolicy      `json:"penalty"`
}

// Expense is a fee attached to a loan at origination.
type Expense struct {
	Kind        string       `json:"kind"`
	Amount      money.Amount `json:"amount"`
	Description string       `json:"description,omitempty"`
}

// Loan is the aggregate that owns an installment schedule.
type Loan struct {
	ID              int64           `json:"id"`
	BorrowerID      int64           `json:"borrower_id"`
	LoanTypeID      int64           `json:"loan_type_id,omitempty"`
	GuarantorID     int64           `json:"guarantor_id,omitempty"`
	Terms           LoanTerms       `json:"terms"`
	Status          LoanStatus      `json:"status"`
	ExpenseHandling ExpenseHandling `json:"expense_handling"`
	Expenses        []Expense       `json:"expenses,omitempty"`
	TotalExpenses   money.Amount    `json:"total_expenses"`
	DisbursedAmount money.Amount    `json:"disbursed_amount"`
	CreatedAt       time.Time       `json:"created_at"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
}

// ApplyExpenses fixes the financed principal and the disbursed amount from
// the requested amount and the expense lines.
func (l *Loan) ApplyExpenses(requested money.Amount) error {
	total := money.Zero
	for _, e := range l.Expenses {
		if e.Amount.IsNegative() {
			return fmt.Errorf("%w: negative expense %s", ErrInvalidLoanTerms, e.Amount)
		}
		total = total.Add(e.Amount)
	}
	l.TotalExpenses = total
	switch l.ExpenseHandling {
	case ExpensesDeductFromDisbursement:
		if !requested.GreaterThan(total) {
			return fmt.Errorf("%w: expenses %s consume the whole disbursement", ErrInvalidLoanTerms, total)
		}
		l.Terms.Principal = requested
		l.DisbursedAmount = requested.Sub(total)
	default:
		l.ExpenseHandling = ExpensesAddToPrincipal
		l.Terms.Principal = requested.Add(total)
		l.DisbursedAmount = requested
	}
	return nil
}
