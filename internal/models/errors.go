package models

import "errors"

var (
	ErrInvalidLoanTerms          = errors.New("invalid loan terms")
	ErrLoanAlreadySettled        = errors.New("loan already settled")
	ErrNonPositivePayment        = errors.New("payment amount must be positive")
	ErrPaymentExceedsOutstanding = errors.New("payment exceeds outstanding balance")
	ErrLoanNotFound              = errors.New("loan not found")
	ErrInstallmentNotFound       = errors.New("installment not found")
	ErrLoanTypeNotFound          = errors.New("loan type not found")
	ErrBorrowerNotFound          = errors.New("borrower not found")
	ErrInvalidStatusTransition   = errors.New("invalid status transition")
	ErrScheduleExists            = errors.New("installment schedule already exists")
	ErrBorrowerHasActiveLoan     = errors.New("borrower already has an active loan")
)
