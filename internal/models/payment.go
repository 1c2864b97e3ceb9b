package models

import (
	"time"

	"github.com/Dan9191/loan-service/internal/money"
)

// Payment is an append-only record of money applied to one installment.
type Payment struct {
	ID            int64        `json:"id"`
	InstallmentID int64        `json:"installment_id"`
	Amount        money.Amount `json:"amount"`
	PaidAt        time.Time    `json:"paid_at"`
	ReceiptNumber string       `json:"receipt_number"`
	Signature     string       `json:"signature"`
}

// TotalPaid sums the payments.
func TotalPaid(payments []Payment) money.Amount {
	total := money.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}
