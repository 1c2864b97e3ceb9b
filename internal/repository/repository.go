package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/Dan9191/loan-service/internal/models"
	"github.com/Dan9191/loan-service/internal/money"
)

// Repository provides database operations
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

// CreateLoanType creates a new loan type in the database
func (r *Repository) CreateLoanType(ctx context.Context, lt *models.LoanType) error {
	query := `
		INSERT INTO lending.loan_types (name, default_rate, rate_period, min_amount, max_amount,
			min_term, max_term, method, disbursement_fee, penalty_basis, penalty_daily_rate,
			grace_days, requires_guarantee)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`
	err := r.db.QueryRowContext(ctx, query,
		lt.Name, lt.DefaultRate, lt.RatePeriod, lt.MinAmount, lt.MaxAmount,
		lt.MinTerm, lt.MaxTerm, lt.Method, lt.DisbursementFee, lt.Penalty.Basis,
		lt.Penalty.DailyRate, lt.Penalty.GraceDays, lt.RequiresGuarantee,
	).Scan(&lt.ID)
	if err != nil {
		return fmt.Errorf("failed to create loan type: %w", err)
	}
	return nil
}

// GetLoanType retrieves a loan type by ID
func (r *Repository) GetLoanType(ctx context.Context, id int64) (models.LoanType, error) {
	var lt models.LoanType
	query := `
		SELECT id, name, default_rate, rate_period, min_amount, max_amount, min_term, max_term,
			method, disbursement_fee, penalty_basis, penalty_daily_rate, grace_days, requires_guarantee
		FROM lending.loan_types
		WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&lt.ID, &lt.Name, &lt.DefaultRate, &lt.RatePeriod, &lt.MinAmount, &lt.MaxAmount,
		&lt.MinTerm, &lt.MaxTerm, &lt.Method, &lt.DisbursementFee, &lt.Penalty.Basis,
		&lt.Penalty.DailyRate, &lt.Penalty.GraceDays, &lt.RequiresGuarantee,
	)
	if err == sql.ErrNoRows {
		return models.LoanType{}, fmt.Errorf("loan type %d: %w", id, models.ErrLoanTypeNotFound)
	}
	if err != nil {
		return models.LoanType{}, fmt.Errorf("failed to find loan type: %w", err)
	}
	return lt, nil
}

// CreateBorrower creates a new borrower in the database
func (r *Repository) CreateBorrower(ctx context.Context, b *models.Borrower) error {
	query := `
		INSERT INTO lending.borrowers (full_name, email)
		VALUES ($1, $2)
		RETURNING id`
	if err := r.db.QueryRowContext(ctx, query, b.FullName, b.Email).Scan(&b.ID); err != nil {
		return fmt.Errorf("failed to create borrower: %w", err)
	}
	return nil
}

// GetBorrower retrieves a borrower by ID
func (r *Repository) GetBorrower(ctx context.Context, id int64) (models.Borrower, error) {
	var b models.Borrower
	query := `SELECT id, full_name, email FROM lending.borrowers WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&b.ID, &b.FullName, &b.Email)
	if err == sql.ErrNoRows {
		return models.Borrower{}, fmt.Errorf("borrower %d: %w", id, models.ErrBorrowerNotFound)
	}
	if err != nil {
		return models.Borrower{}, fmt.Errorf("failed to find borrower: %w", err)
	}
	return b, nil
}

// CreateLoan stores a loan application together with its expense lines
func (r *Repository) CreateLoan(ctx context.Context, loan *models.Loan) error {
	return WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		query := `
			INSERT INTO lending.loans (borrower_id, loan_type_id, guarantor_id, principal, interest_rate,
				rate_period, term_count, disbursement_date, first_payment_date, frequency, method,
				penalty_basis, penalty_daily_rate, grace_days, status, expense_handling,
				total_expenses, disbursed_amount, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
			RETURNING id`
		t := loan.Terms
		err := tx.QueryRowContext(ctx, query,
			loan.BorrowerID, nullInt64(loan.LoanTypeID), nullInt64(loan.GuarantorID),
			t.Principal, t.InterestRate, t.RatePeriod, t.TermCount,
			nullTime(t.DisbursementDate), nullTime(t.FirstPaymentDate), t.Frequency, t.Method,
			t.Penalty.Basis, t.Penalty.DailyRate, t.Penalty.GraceDays, loan.Status,
			loan.ExpenseHandling, loan.TotalExpenses, loan.DisbursedAmount, loan.CreatedAt,
		).Scan(&loan.ID)
		if err != nil {
			return fmt.Errorf("failed to create loan: %w", err)
		}
		for _, e := range loan.Expenses {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO lending.loan_expenses (loan_id, kind, amount, description)
				VALUES ($1, $2, $3, $4)`, loan.ID, e.Kind, e.Amount, e.Description)
			if err != nil {
				return fmt.Errorf("failed to create loan expense: %w", err)
			}
		}
		return nil
	})
}

// GetLoan retrieves a loan and its expense lines
func (r *Repository) GetLoan(ctx context.Context, id int64) (models.Loan, error) {
	var (
		loan                             models.Loan
		loanTypeID, guarantorID          sql.NullInt64
		disbursement, firstPay, approved sql.NullTime
	)
	query := `
		SELECT id, borrower_id, loan_type_id, guarantor_id, principal, interest_rate, rate_period,
			term_count, disbursement_date, first_payment_date, frequency, method, penalty_basis,
			penalty_daily_rate, grace_days, status, expense_handling, total_expenses,
			disbursed_amount, created_at, approved_at
		FROM lending.loans
		WHERE id = $1`
	t := &loan.Terms
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&loan.ID, &loan.BorrowerID, &loanTypeID, &guarantorID, &t.Principal, &t.InterestRate,
		&t.RatePeriod, &t.TermCount, &disbursement, &firstPay, &t.Frequency, &t.Method,
		&t.Penalty.Basis, &t.Penalty.DailyRate, &t.Penalty.GraceDays, &loan.Status,
		&loan.ExpenseHandling, &loan.TotalExpenses, &loan.DisbursedAmount, &loan.CreatedAt, &approved,
	)
	if err == sql.ErrNoRows {
		return models.Loan{}, fmt.Errorf("loan %d: %w", id, models.ErrLoanNotFound)
	}
	if err != nil {
		return models.Loan{}, fmt.Errorf("failed to find loan: %w", err)
	}
	loan.LoanTypeID = loanTypeID.Int64
	loan.GuarantorID = guarantorID.Int64
	if disbursement.Valid {
		t.DisbursementDate = models.DateOf(disbursement.Time)
	}
	if firstPay.Valid {
		t.FirstPaymentDate = models.DateOf(firstPay.Time)
	}
	if approved.Valid {
		at := approved.Time
		loan.ApprovedAt = &at
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT kind, amount, description
		FROM lending.loan_expenses
		WHERE loan_id = $1
		ORDER BY id`, id)
	if err != nil {
		return models.Loan{}, fmt.Errorf("failed to list loan expenses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e models.Expense
		if err := rows.Scan(&e.Kind, &e.Amount, &e.Description); err != nil {
			return models.Loan{}, fmt.Errorf("failed to scan loan expense: %w", err)
		}
		loan.Expenses = append(loan.Expenses, e)
	}
	if err := rows.Err(); err != nil {
		return models.Loan{}, fmt.Errorf("failed to list loan expenses: %w", err)
	}
	return loan, nil
}

// UpdateLoanStatus sets the stored loan status
func (r *Repository) UpdateLoanStatus(ctx context.Context, id int64, status models.LoanStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE lending.loans SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update loan status: %w", err)
	}
	return expectOneRow(res, fmt.Errorf("loan %d: %w", id, models.ErrLoanNotFound))
}

// ApproveLoan stores the approval and inserts the whole schedule in one transaction
func (r *Repository) ApproveLoan(ctx context.Context, loan models.Loan, schedule []models.Installment) ([]models.Installment, error) {
	stored := make([]models.Installment, len(schedule))
	err := WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		var existing int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM lending.installments WHERE loan_id = $1`, loan.ID).Scan(&existing)
		if err != nil {
			return fmt.Errorf("failed to count installments: %w", err)
		}
		if existing > 0 {
			return fmt.Errorf("loan %d: %w", loan.ID, models.ErrScheduleExists)
		}

		var active bool
		err = tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM lending.loans
				WHERE borrower_id = $1 AND id <> $2 AND status IN ('approved', 'overdue')
			)`, loan.BorrowerID, loan.ID).Scan(&active)
		if err != nil {
			return fmt.Errorf("failed to check active loans: %w", err)
		}
		if active {
			return fmt.Errorf("borrower %d: %w", loan.BorrowerID, models.ErrBorrowerHasActiveLoan)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE lending.loans
			SET status = $2, disbursement_date = $3, first_payment_date = $4, approved_at = $5
			WHERE id = $1`,
			loan.ID, loan.Status, nullTime(loan.Terms.DisbursementDate),
			nullTime(loan.Terms.FirstPaymentDate), nullTimePtr(loan.ApprovedAt))
		if err != nil {
			// Lost a race with a concurrent approval for the same borrower.
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == "loans_one_active_per_borrower" {
				return fmt.Errorf("borrower %d: %w", loan.BorrowerID, models.ErrBorrowerHasActiveLoan)
			}
			return fmt.Errorf("failed to approve loan: %w", err)
		}
		if err := expectOneRow(res, fmt.Errorf("loan %d: %w", loan.ID, models.ErrLoanNotFound)); err != nil {
			return err
		}

		for i, inst := range schedule {
			inst.LoanID = loan.ID
			err := tx.QueryRowContext(ctx, `
				INSERT INTO lending.installments (loan_id, sequence, due_date, scheduled_payment,
					principal, interest, remaining_balance, accrued_penalty, status)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				RETURNING id`,
				inst.LoanID, inst.Sequence, inst.DueDate, inst.ScheduledPayment, inst.Principal,
				inst.Interest, inst.RemainingBalance, inst.AccruedPenalty, inst.Status,
			).Scan(&inst.ID)
			if err != nil {
				return fmt.Errorf("failed to create installment %d: %w", inst.Sequence, err)
			}
			stored[i] = inst
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

const installmentColumns = `id, loan_id, sequence, due_date, scheduled_payment, principal, interest,
	remaining_balance, accrued_penalty, penalty_calculated_at, status`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstallment(row rowScanner) (models.Installment, error) {
	var (
		inst       models.Installment
		calculated sql.NullTime
	)
	err := row.Scan(&inst.ID, &inst.LoanID, &inst.Sequence, &inst.DueDate, &inst.ScheduledPayment,
		&inst.Principal, &inst.Interest, &inst.RemainingBalance, &inst.AccruedPenalty,
		&calculated, &inst.Status)
	if err != nil {
		return models.Installment{}, err
	}
	inst.DueDate = models.DateOf(inst.DueDate)
	if calculated.Valid {
		at := models.DateOf(calculated.Time)
		inst.PenaltyCalculatedAt = &at
	}
	return inst, nil
}

func (r *Repository) queryInstallments(ctx context.Context, query string, args ...interface{}) ([]models.Installment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list installments: %w", err)
	}
	defer rows.Close()

	var out []models.Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installment: %w", err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list installments: %w", err)
	}
	return out, nil
}

// GetInstallment retrieves an installment by ID
func (r *Repository) GetInstallment(ctx context.Context, id int64) (models.Installment, error) {
	query := `SELECT ` + installmentColumns + ` FROM lending.installments WHERE id = $1`
	inst, err := scanInstallment(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return models.Installment{}, fmt.Errorf("installment %d: %w", id, models.ErrInstallmentNotFound)
	}
	if err != nil {
		return models.Installment{}, fmt.Errorf("failed to find installment: %w", err)
	}
	return inst, nil
}

// ListInstallments returns a loan's schedule ordered by sequence number
func (r *Repository) ListInstallments(ctx context.Context, loanID int64) ([]models.Installment, error) {
	query := `SELECT ` + installmentColumns + ` FROM lending.installments WHERE loan_id = $1 ORDER BY sequence`
	return r.queryInstallments(ctx, query, loanID)
}

// FindInstallments returns installments across loans matching the filter
func (r *Repository) FindInstallments(ctx context.Context, filter InstallmentFilter) ([]models.Installment, error) {
	statuses := make([]string, len(filter.Statuses))
	for i, st := range filter.Statuses {
		statuses[i] = string(st)
	}
	query := `
		SELECT ` + installmentColumns + `
		FROM lending.installments
		WHERE (cardinality($1::text[]) = 0 OR status = ANY($1))
			AND ($2::date IS NULL OR due_date < $2)
			AND ($3::date IS NULL OR due_date >= $3)
		ORDER BY loan_id, sequence`
	return r.queryInstallments(ctx, query, pq.Array(statuses), nullTime(filter.DueBefore), nullTime(filter.DueFrom))
}

// UpdateInstallment persists the status and penalty columns
func (r *Repository) UpdateInstallment(ctx context.Context, inst models.Installment) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE lending.installments
		SET status = $2, accrued_penalty = $3, penalty_calculated_at = $4
		WHERE id = $1`,
		inst.ID, inst.Status, inst.AccruedPenalty, nullTimePtr(inst.PenaltyCalculatedAt))
	if err != nil {
		return fmt.Errorf("failed to update installment: %w", err)
	}
	return expectOneRow(res, fmt.Errorf("installment %d: %w", inst.ID, models.ErrInstallmentNotFound))
}

// RecordPayment inserts a payment and the resulting installment status together
func (r *Repository) RecordPayment(ctx context.Context, p *models.Payment, status models.InstallmentStatus) error {
	return WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO lending.payments (installment_id, amount, paid_at, receipt_number, signature)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			p.InstallmentID, p.Amount, p.PaidAt, p.ReceiptNumber, p.Signature,
		).Scan(&p.ID)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23503" {
				return fmt.Errorf("installment %d: %w", p.InstallmentID, models.ErrInstallmentNotFound)
			}
			return fmt.Errorf("failed to create payment: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE lending.installments SET status = $2 WHERE id = $1`, p.InstallmentID, status)
		if err != nil {
			return fmt.Errorf("failed to update installment status: %w", err)
		}
		return nil
	})
}

// ListPayments returns an installment's payments in insertion order
func (r *Repository) ListPayments(ctx context.Context, installmentID int64) ([]models.Payment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, installment_id, amount, paid_at, receipt_number, signature
		FROM lending.payments
		WHERE installment_id = $1
		ORDER BY id`, installmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var out []models.Payment
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ID, &p.InstallmentID, &p.Amount, &p.PaidAt, &p.ReceiptNumber, &p.Signature); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.PaidAt = p.PaidAt.UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return out, nil
}

// PaidByInstallment sums payments per installment of a loan
func (r *Repository) PaidByInstallment(ctx context.Context, loanID int64) (map[int64]money.Amount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.installment_id, SUM(p.amount)
		FROM lending.payments p
		JOIN lending.installments i ON i.id = p.installment_id
		WHERE i.loan_id = $1
		GROUP BY p.installment_id`, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum payments: %w", err)
	}
	defer rows.Close()

	paid := make(map[int64]money.Amount)
	for rows.Next() {
		var (
			id    int64
			total money.Amount
		)
		if err := rows.Scan(&id, &total); err != nil {
			return nil, fmt.Errorf("failed to scan payment total: %w", err)
		}
		paid[id] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to sum payments: %w", err)
	}
	return paid, nil
}

func expectOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
