package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/loan-service/internal/money"
)

func TestLoan_ApplyExpenses(t *testing.T) {
	expenses := []Expense{
		{Kind: "legal", Amount: money.MustAmount("150.00")},
		{Kind: "insurance", Amount: money.MustAmount("50.00")},
	}

	t.Run("financed into principal", func(t *testing.T) {
		l := Loan{ExpenseHandling: ExpensesAddToPrincipal, Expenses: expenses}
		require.NoError(t, l.ApplyExpenses(money.MustAmount("10000")))
		assert.Equal(t, "10200.00", l.Terms.Principal.String())
		assert.Equal(t, "10000.00", l.DisbursedAmount.String())
		assert.Equal(t, "200.00", l.TotalExpenses.String())
	})

	t.Run("withheld from disbursement", func(t *testing.T) {
		l := Loan{ExpenseHandling: ExpensesDeductFromDisbursement, Expenses: expenses}
		require.NoError(t, l.ApplyExpenses(money.MustAmount("10000")))
		assert.Equal(t, "10000.00", l.Terms.Principal.String())
		assert.Equal(t, "9800.00", l.DisbursedAmount.String())
	})

	t.Run("expenses larger than the loan", func(t *testing.T) {
		l := Loan{ExpenseHandling: ExpensesDeductFromDisbursement, Expenses: expenses}
		err := l.ApplyExpenses(money.MustAmount("200"))
		assert.True(t, errors.Is(err, ErrInvalidLoanTerms))
	})
}

func TestLoanType_CheckRequest(t *testing.T) {
	lt := LoanType{
		Name:      "personal",
		MinAmount: money.MustAmount("1000"),
		MaxAmount: money.MustAmount("50000"),
		MinTerm:   3,
		MaxTerm:   36,
	}
	require.NoError(t, lt.Validate())
	assert.NoError(t, lt.CheckRequest(money.MustAmount("1000"), 36))

	err := lt.CheckRequest(money.MustAmount("999.99"), 12)
	assert.True(t, errors.Is(err, ErrInvalidLoanTerms))
	assert.Contains(t, err.Error(), "amount 999.99")

	err = lt.CheckRequest(money.MustAmount("5000"), 48)
	assert.True(t, errors.Is(err, ErrInvalidLoanTerms))

	bad := lt
	bad.MaxTerm = 1
	assert.Error(t, bad.Validate())
}
