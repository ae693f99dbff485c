package repository

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/circulation-system/internal/model"
)

var loanColumns = []string{
	"id", "patron_id", "item_id", "checkout_date", "due_date", "checkin_date", "renewal_count", "status",
}

func scanLoan(row pgx.Row) (model.Loan, error) {
	var (
		l      model.Loan
		status string
	)
	if err := row.Scan(&l.ID, &l.PatronID, &l.ItemID, &l.CheckoutDate, &l.DueDate,
		&l.CheckinDate, &l.RenewalCount, &status); err != nil {
		return model.Loan{}, err
	}
	l.Status = model.LoanStatus(status)
	return l, nil
}

// CreateLoan сохраняет новую выдачу.
func (r *PostgresRepository) CreateLoan(ctx context.Context, l model.Loan) error {
	_, err := r.q(ctx).Exec(ctx,
		`INSERT INTO loans (id, patron_id, item_id, checkout_date, due_date, checkin_date, renewal_count, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		l.ID, l.PatronID, l.ItemID, l.CheckoutDate, l.DueDate, l.CheckinDate, l.RenewalCount, string(l.Status),
	)
	if err != nil {
		return wrap("create loan", err)
	}
	return nil
}

// GetLoan возвращает выдачу по идентификатору.
func (r *PostgresRepository) GetLoan(ctx context.Context, id uuid.UUID) (model.Loan, error) {
	query, args, err := psql.Select(loanColumns...).From("loans").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return model.Loan{}, fmt.Errorf("build get loan: %w", err)
	}
	l, err := scanLoan(r.q(ctx).QueryRow(ctx, query, args...))
	if err != nil {
		return model.Loan{}, wrap("get loan", notFound(err, model.ErrLoanNotFound))
	}
	return l, nil
}

// LockLoan блокирует строку выдачи до конца транзакции.
func (r *PostgresRepository) LockLoan(ctx context.Context, id uuid.UUID) (model.Loan, error) {
	query, args, err := psql.Select(loanColumns...).From("loans").
		Where(sq.Eq{"id": id}).Suffix("FOR UPDATE").ToSql()
	if err != nil {
		return model.Loan{}, fmt.Errorf("build lock loan: %w", err)
	}
	l, err := scanLoan(r.q(ctx).QueryRow(ctx, query, args...))
	if err != nil {
		return model.Loan{}, wrap("lock loan", notFound(err, model.ErrLoanNotFound))
	}
	return l, nil
}

// FindActiveLoan возвращает самую свежую активную выдачу экземпляра без блокировки.
// Если patronID задан, поиск ограничивается этим читателем.
func (r *PostgresRepository) FindActiveLoan(ctx context.Context, itemID uuid.UUID, patronID *uuid.UUID) (model.Loan, error) {
	b := psql.Select(loanColumns...).From("loans").
		Where(sq.Eq{"item_id": itemID, "status": string(model.LoanStatusActive)})
	if patronID != nil {
		b = b.Where(sq.Eq{"patron_id": *patronID})
	}
	query, args, err := b.OrderBy("checkout_date DESC").Limit(1).ToSql()
	if err != nil {
		return model.Loan{}, fmt.Errorf("build find active loan: %w", err)
	}
	l, err := scanLoan(r.q(ctx).QueryRow(ctx, query, args...))
	if err != nil {
		return model.Loan{}, wrap("find active loan", notFound(err, model.ErrLoanNotFound))
	}
	return l, nil
}

// UpdateLoan сохраняет изменённое состояние выдачи.
func (r *PostgresRepository) UpdateLoan(ctx context.Context, l model.Loan) error {
	tag, err := r.q(ctx).Exec(ctx,
		`UPDATE loans SET due_date = $2, checkin_date = $3, renewal_count = $4, status = $5 WHERE id = $1`,
		l.ID, l.DueDate, l.CheckinDate, l.RenewalCount, string(l.Status),
	)
	if err != nil {
		return wrap("update loan", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrLoanNotFound
	}
	return nil
}

// CountActiveLoans возвращает число активных выдач читателя.
func (r *PostgresRepository) CountActiveLoans(ctx context.Context, patronID uuid.UUID) (int, error) {
	var n int
	err := r.q(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM loans WHERE patron_id = $1 AND status = $2`,
		patronID, string(model.LoanStatusActive),
	).Scan(&n)
	if err != nil {
		return 0, wrap("count active loans", err)
	}
	return n, nil
}

// ListLoans возвращает выдачи по фильтру, новые первыми.
func (r *PostgresRepository) ListLoans(ctx context.Context, f model.LoanFilter) ([]model.Loan, error) {
	b := psql.Select(loanColumns...).From("loans")
	if f.PatronID != nil {
		b = b.Where(sq.Eq{"patron_id": *f.PatronID})
	}
	if f.ItemID != nil {
		b = b.Where(sq.Eq{"item_id": *f.ItemID})
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		b = b.Where(sq.Eq{"status": statuses})
	}
	if f.OverdueAt != nil {
		b = b.Where(sq.Lt{"due_date": *f.OverdueAt})
	}

	query, args, err := b.OrderBy("checkout_date DESC").Limit(limitOrDefault(f.Limit)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list loans: %w", err)
	}

	rows, err := r.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("list loans", err)
	}
	defer rows.Close()

	var loans []model.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, wrap("scan loan", err)
		}
		loans = append(loans, l)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate loans", err)
	}
	return loans, nil
}

// OverdueTotals сводит активные выдачи, срок возврата которых истёк к моменту now.
// Просрочка считается в начатых сутках.
func (r *PostgresRepository) OverdueTotals(ctx context.Context, now time.Time) (model.OverdueTotals, error) {
	var t model.OverdueTotals
	err := r.q(ctx).QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CEIL(EXTRACT(EPOCH FROM ($1::timestamptz - due_date)) / 86400)), 0)::BIGINT,
		        COALESCE(MAX(CEIL(EXTRACT(EPOCH FROM ($1::timestamptz - due_date)) / 86400)), 0)::BIGINT
		 FROM loans WHERE status = $2 AND due_date < $1`,
		now, string(model.LoanStatusActive),
	).Scan(&t.Loans, &t.TotalDaysOverdue, &t.MaxDaysOverdue)
	if err != nil {
		return model.OverdueTotals{}, wrap("overdue totals", err)
	}
	return t, nil
}
