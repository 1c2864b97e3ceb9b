package models

import (
	"fmt"
	"time"

	"github.com/Dan9191/loan-service/internal/money"
)

// InstallmentStatus is always derived from the payment ledger and the date,
// see DeriveInstallmentStatus.
type InstallmentStatus string

const (
	InstallmentPending       InstallmentStatus = "pending"
	InstallmentOverdue       InstallmentStatus = "overdue"
	InstallmentPartiallyPaid InstallmentStatus = "partially_paid"
	InstallmentPaid          InstallmentStatus = "paid"
)

// UnsettledStatuses are the installment states that still owe money.
var UnsettledStatuses = []InstallmentStatus{InstallmentPending, InstallmentOverdue, InstallmentPartiallyPaid}

func ParseInstallmentStatus(s string) (InstallmentStatus, error) {
	switch st := InstallmentStatus(s); st {
	case InstallmentPending, InstallmentOverdue, InstallmentPartiallyPaid, InstallmentPaid:
		return st, nil
	}
	return "", fmt.Errorf("invalid installment status: %q", s)
}

// Settled reports whether nothing remains to pay.
func (s InstallmentStatus) Settled() bool { return s == InstallmentPaid }

// DeriveInstallmentStatus computes an installment's status from the total paid,
// the amount due (scheduled payment plus penalty), the due date and today.
//
// A pending installment becomes overdue once today is past the due date. An
// overdue installment stays overdue until money arrives; it never reverts to
// pending.
func DeriveInstallmentStatus(current InstallmentStatus, paid, due money.Amount, dueDate, today time.Time) InstallmentStatus {
	switch {
	case !paid.LessThan(due):
		return InstallmentPaid
	case paid.IsPositive():
		return InstallmentPartiallyPaid
	case current == InstallmentOverdue || DateOf(today).After(DateOf(dueDate)):
		return InstallmentOverdue
	default:
		return InstallmentPending
	}
}

// LoanStatus is the lifecycle stage of a loan.
type LoanStatus string

const (
	LoanPending  LoanStatus = "pending"
	LoanApproved LoanStatus = "approved"
	LoanRejected LoanStatus = "rejected"
	LoanPaid     LoanStatus = "paid"
	LoanOverdue  LoanStatus = "overdue"
)

func ParseLoanStatus(s string) (LoanStatus, error) {
	switch st := LoanStatus(s); st {
	case LoanPending, LoanApproved, LoanRejected, LoanPaid, LoanOverdue:
		return st, nil
	}
	return "", fmt.Errorf("invalid loan status: %q", s)
}

// Active reports whether the loan has a live schedule that accepts payments.
func (s LoanStatus) Active() bool { return s == LoanApproved || s == LoanOverdue }

// Approve moves an application to approved.
func (s LoanStatus) Approve() (LoanStatus, error) {
	if s != LoanPending {
		return s, fmt.Errorf("%w: cannot approve a %s loan", ErrInvalidStatusTransition, s)
	}
	return LoanApproved, nil
}

// Reject moves an application to the terminal rejected state.
func (s LoanStatus) Reject() (LoanStatus, error) {
	if s != LoanPending {
		return s, fmt.Errorf("%w: cannot reject a %s loan", ErrInvalidStatusTransition, s)
	}
	return LoanRejected, nil
}

// LoanStatusAfterPayment settles an active loan once every installment is paid.
func LoanStatusAfterPayment(current LoanStatus, installments []InstallmentStatus) LoanStatus {
	if !current.Active() || len(installments) == 0 {
		return current
	}
	for _, st := range installments {
		if !st.Settled() {
			return current
		}
	}
	return LoanPaid
}

// LoanStatusAfterReconciliation marks an approved loan overdue when the batch
// found at least one of its installments past due and unsettled. Overdue is
// sticky until the loan is paid.
func LoanStatusAfterReconciliation(current LoanStatus, pastDue bool) LoanStatus {
	if current == LoanApproved && pastDue {
		return LoanOverdue
	}
	return current
}
