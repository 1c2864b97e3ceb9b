package models

import (
	"fmt"

	"github.com/Dan9191/loan-service/internal/money"
)

// PenaltyBasis selects the amount a daily penalty is charged on.
type PenaltyBasis string

const (
	PenaltyOnScheduledPayment PenaltyBasis = "scheduled_payment"
	PenaltyOnRemainingBalance PenaltyBasis = "remaining_principal"
)

func ParsePenaltyBasis(s string) (PenaltyBasis, error) {
	switch b := PenaltyBasis(s); b {
	case PenaltyOnScheduledPayment, PenaltyOnRemainingBalance:
		return b, nil
	case "":
		return PenaltyOnScheduledPayment, nil
	}
	return "", fmt.Errorf("%w: unknown penalty basis %q", ErrInvalidLoanTerms, s)
}

// PenaltyPolicy is resolved once from the loan type and copied into the terms.
// DailyRate is a ratio: 0.01 charges one percent of the basis per day.
type PenaltyPolicy struct {
	Basis     PenaltyBasis `json:"basis"`
	DailyRate money.Rate   `json:"daily_rate"`
	GraceDays int          `json:"grace_days"`
}

// LoanType is the product configuration loans are originated under.
type LoanType struct {
	ID                int64              `json:"id"`
	Name              string             `json:"name"`
	DefaultRate       money.Rate         `json:"default_rate"`
	RatePeriod        RatePeriod         `json:"rate_period"`
	MinAmount         money.Amount       `json:"min_amount"`
	MaxAmount         money.Amount       `json:"max_amount"`
	MinTerm           int                `json:"min_term"`
	MaxTerm           int                `json:"max_term"`
	Method            AmortizationMethod `json:"method"`
	DisbursementFee   money.Rate         `json:"disbursement_fee"`
	Penalty           PenaltyPolicy      `json:"penalty"`
	RequiresGuarantee bool               `json:"requires_guarantee"`
}

// Validate checks the product configuration itself.
func (t LoanType) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: loan type name is required", ErrInvalidLoanTerms)
	}
	if t.MinTerm < 1 || t.MaxTerm < t.MinTerm {
		return fmt.Errorf("%w: term bounds [%d, %d]", ErrInvalidLoanTerms, t.MinTerm, t.MaxTerm)
	}
	if t.MinAmount.IsNegative() || t.MaxAmount.LessThan(t.MinAmount) {
		return fmt.Errorf("%w: amount bounds [%s, %s]", ErrInvalidLoanTerms, t.MinAmount, t.MaxAmount)
	}
	if t.DefaultRate.IsNegative() || t.Penalty.DailyRate.IsNegative() || t.Penalty.GraceDays < 0 {
		return fmt.Errorf("%w: rates and grace days must not be negative", ErrInvalidLoanTerms)
	}
	return nil
}

// CheckRequest enforces the product limits on a requested amount and term.
func (t LoanType) CheckRequest(amount money.Amount, term int) error {
	if amount.LessThan(t.MinAmount) || amount.GreaterThan(t.MaxAmount) {
		return fmt.Errorf("%w: amount %s outside [%s, %s] for %q",
			ErrInvalidLoanTerms, amount, t.MinAmount, t.MaxAmount, t.Name)
	}
	if term < t.MinTerm || term > t.MaxTerm {
		return fmt.Errorf("%w: term %d outside [%d, %d] for %q",
			ErrInvalidLoanTerms, term, t.MinTerm, t.MaxTerm, t.Name)
	}
	return nil
}
