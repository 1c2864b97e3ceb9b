package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Dan9191/loan-service/internal/models"
	"github.com/Dan9191/loan-service/internal/money"
)

// MemoryRepository is an in-process Store used for local runs and tests.
type MemoryRepository struct {
	mu           sync.RWMutex
	nextID       int64
	loanTypes    map[int64]models.LoanType
	borrowers    map[int64]models.Borrower
	loans        map[int64]models.Loan
	installments map[int64]models.Installment
	payments     map[int64]models.Payment
}

// NewMemoryRepository initializes an empty store
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		loanTypes:    make(map[int64]models.LoanType),
		borrowers:    make(map[int64]models.Borrower),
		loans:        make(map[int64]models.Loan),
		installments: make(map[int64]models.Installment),
		payments:     make(map[int64]models.Payment),
	}
}

var _ Store = (*MemoryRepository)(nil)

func (r *MemoryRepository) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *MemoryRepository) CreateLoanType(_ context.Context, lt *models.LoanType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lt.ID = r.id()
	r.loanTypes[lt.ID] = *lt
	return nil
}

func (r *MemoryRepository) GetLoanType(_ context.Context, id int64) (models.LoanType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lt, ok := r.loanTypes[id]
	if !ok {
		return models.LoanType{}, fmt.Errorf("loan type %d: %w", id, models.ErrLoanTypeNotFound)
	}
	return lt, nil
}

func (r *MemoryRepository) CreateBorrower(_ context.Context, b *models.Borrower) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b.ID = r.id()
	r.borrowers[b.ID] = *b
	return nil
}

func (r *MemoryRepository) GetBorrower(_ context.Context, id int64) (models.Borrower, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.borrowers[id]
	if !ok {
		return models.Borrower{}, fmt.Errorf("borrower %d: %w", id, models.ErrBorrowerNotFound)
	}
	return b, nil
}

func (r *MemoryRepository) CreateLoan(_ context.Context, loan *models.Loan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	loan.ID = r.id()
	stored := *loan
	stored.Expenses = append([]models.Expense(nil), loan.Expenses...)
	r.loans[loan.ID] = stored
	return nil
}

func (r *MemoryRepository) GetLoan(_ context.Context, id int64) (models.Loan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	loan, ok := r.loans[id]
	if !ok {
		return models.Loan{}, fmt.Errorf("loan %d: %w", id, models.ErrLoanNotFound)
	}
	loan.Expenses = append([]models.Expense(nil), loan.Expenses...)
	return loan, nil
}

func (r *MemoryRepository) UpdateLoanStatus(_ context.Context, id int64, status models.LoanStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	loan, ok := r.loans[id]
	if !ok {
		return fmt.Errorf("loan %d: %w", id, models.ErrLoanNotFound)
	}
	loan.Status = status
	r.loans[id] = loan
	return nil
}

func (r *MemoryRepository) ApproveLoan(_ context.Context, loan models.Loan, schedule []models.Installment) ([]models.Installment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.loans[loan.ID]; !ok {
		return nil, fmt.Errorf("loan %d: %w", loan.ID, models.ErrLoanNotFound)
	}
	for _, inst := range r.installments {
		if inst.LoanID == loan.ID {
			return nil, fmt.Errorf("loan %d: %w", loan.ID, models.ErrScheduleExists)
		}
	}
	for _, other := range r.loans {
		if other.ID != loan.ID && other.BorrowerID == loan.BorrowerID && other.Status.Active() {
			return nil, fmt.Errorf("borrower %d, loan %d: %w", loan.BorrowerID, other.ID, models.ErrBorrowerHasActiveLoan)
		}
	}
	r.loans[loan.ID] = loan
	stored := make([]models.Installment, len(schedule))
	for i, inst := range schedule {
		inst.ID = r.id()
		inst.LoanID = loan.ID
		r.installments[inst.ID] = inst
		stored[i] = inst
	}
	return stored, nil
}

func (r *MemoryRepository) GetInstallment(_ context.Context, id int64) (models.Installment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.installments[id]
	if !ok {
		return models.Installment{}, fmt.Errorf("installment %d: %w", id, models.ErrInstallmentNotFound)
	}
	return inst, nil
}

func (r *MemoryRepository) ListInstallments(_ context.Context, loanID int64) ([]models.Installment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Installment
	for _, inst := range r.installments {
		if inst.LoanID == loanID {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (r *MemoryRepository) FindInstallments(_ context.Context, filter InstallmentFilter) ([]models.Installment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Installment
	for _, inst := range r.installments {
		if filter.matches(inst) {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LoanID != out[j].LoanID {
			return out[i].LoanID < out[j].LoanID
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out, nil
}

func (r *MemoryRepository) UpdateInstallment(_ context.Context, inst models.Installment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.installments[inst.ID]
	if !ok {
		return fmt.Errorf("installment %d: %w", inst.ID, models.ErrInstallmentNotFound)
	}
	stored.Status = inst.Status
	stored.AccruedPenalty = inst.AccruedPenalty
	stored.PenaltyCalculatedAt = inst.PenaltyCalculatedAt
	r.installments[inst.ID] = stored
	return nil
}

func (r *MemoryRepository) RecordPayment(_ context.Context, p *models.Payment, status models.InstallmentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.installments[p.InstallmentID]
	if !ok {
		return fmt.Errorf("installment %d: %w", p.InstallmentID, models.ErrInstallmentNotFound)
	}
	p.ID = r.id()
	r.payments[p.ID] = *p
	inst.Status = status
	r.installments[inst.ID] = inst
	return nil
}

func (r *MemoryRepository) ListPayments(_ context.Context, installmentID int64) ([]models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Payment
	for _, p := range r.payments {
		if p.InstallmentID == installmentID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) PaidByInstallment(_ context.Context, loanID int64) (map[int64]money.Amount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	paid := make(map[int64]money.Amount)
	for _, p := range r.payments {
		inst := r.installments[p.InstallmentID]
		if inst.LoanID == loanID {
			paid[p.InstallmentID] = paid[p.InstallmentID].Add(p.Amount)
		}
	}
	return paid, nil
}
