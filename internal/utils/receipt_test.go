package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Dan9191/loan-service/internal/models"
	"github.com/Dan9191/loan-service/internal/money"
)

func TestReceiptSigner(t *testing.T) {
	signer := NewReceiptSigner("secret")
	p := models.Payment{
		InstallmentID: 7,
		Amount:        money.MustAmount("150.00"),
		PaidAt:        time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
		ReceiptNumber: "6f1c2a1e-9d3b-4c55-8f4e-2b1d0c9a7e11",
	}
	p.Signature = signer.Sign(p)

	assert.Len(t, p.Signature, 64)
	assert.True(t, signer.Verify(p))
	assert.Equal(t, p.Signature, signer.Sign(p), "signing is deterministic")

	t.Run("tampered amount", func(t *testing.T) {
		forged := p
		forged.Amount = money.MustAmount("1500.00")
		assert.False(t, signer.Verify(forged))
	})

	t.Run("other secret", func(t *testing.T) {
		assert.False(t, NewReceiptSigner("other").Verify(p))
	})

	t.Run("garbage signature", func(t *testing.T) {
		forged := p
		forged.Signature = "not-hex"
		assert.False(t, signer.Verify(forged))
	})

	t.Run("time zone does not matter", func(t *testing.T) {
		moved := p
		moved.PaidAt = p.PaidAt.In(time.FixedZone("MSK", 3*3600))
		assert.True(t, signer.Verify(moved))
	})
}
