package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/Dan9191/loan-service/internal/models"
)

// ReceiptSigner signs payment receipts with HMAC-SHA256.
type ReceiptSigner struct {
	secret []byte
}

// NewReceiptSigner creates a signer for the given secret
func NewReceiptSigner(secret string) *ReceiptSigner {
	return &ReceiptSigner{secret: []byte(secret)}
}

// Sign generates an HMAC over receipt number, installment, amount and timestamp
func (s *ReceiptSigner) Sign(p models.Payment) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(receiptPayload(p)))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether the payment's signature matches its contents
func (s *ReceiptSigner) Verify(p models.Payment) bool {
	expected, err := hex.DecodeString(s.Sign(p))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(p.Signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

func receiptPayload(p models.Payment) string {
	return fmt.Sprintf("%s|%d|%s|%s", p.ReceiptNumber, p.InstallmentID, p.Amount.String(),
		p.PaidAt.UTC().Format(time.RFC3339Nano))
}
