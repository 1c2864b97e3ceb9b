package models

import (
	"time"

	"github.com/Dan9191/loan-service/internal/money"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts whole calendar days from a to b; negative if b is earlier.
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}

// Installment is one row of a repayment schedule. The amount paid against it
// is never stored here; it is always the sum of its payments.
type Installment struct {
	ID                  int64             `json:"id"`
	LoanID              int64             `json:"loan_id"`
	Sequence            int               `json:"sequence"`
	DueDate             time.Time         `json:"due_date"`
	ScheduledPayment    money.Amount      `json:"scheduled_payment"`
	Principal           money.Amount      `json:"principal"`
	Interest            money.Amount      `json:"interest"`
	RemainingBalance    money.Amount      `json:"remaining_balance"`
	AccruedPenalty      money.Amount      `json:"accrued_penalty"`
	PenaltyCalculatedAt *time.Time        `json:"penalty_calculated_at,omitempty"`
	Status              InstallmentStatus `json:"status"`
}

// AmountDue is the scheduled payment plus accrued penalty.
func (i Installment) AmountDue() money.Amount {
	return i.ScheduledPayment.Add(i.AccruedPenalty)
}

// Owed is what remains to be paid given the installment's paid total,
// never negative.
func (i Installment) Owed(paid money.Amount) money.Amount {
	return money.Max(money.Zero, i.AmountDue().Sub(paid))
}

// Rederive recomputes the status from the paid total and today.
func (i Installment) Rederive(paid money.Amount, today time.Time) Installment {
	i.Status = DeriveInstallmentStatus(i.Status, paid, i.AmountDue(), i.DueDate, today)
	return i
}
