package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/circulation-system/internal/model"
)

var fineColumns = []string{
	"id", "loan_id", "patron_id", "kind", "amount_assessed", "amount_paid",
	"days_overdue", "status", "assessed_at", "waived_by", "waive_reason",
}

func scanFine(row pgx.Row) (model.Fine, error) {
	var (
		f            model.Fine
		kind, status string
	)
	if err := row.Scan(&f.ID, &f.LoanID, &f.PatronID, &kind, &f.AmountAssessed, &f.AmountPaid,
		&f.DaysOverdue, &status, &f.AssessedAt, &f.WaivedBy, &f.WaiveReason); err != nil {
		return model.Fine{}, err
	}
	f.Kind = model.FineKind(kind)
	f.Status = model.FineStatus(status)
	return f, nil
}

// CreateFine сохраняет начисленный штраф.
func (r *PostgresRepository) CreateFine(ctx context.Context, f model.Fine) error {
	_, err := r.q(ctx).Exec(ctx,
		`INSERT INTO fines (id, loan_id, patron_id, kind, amount_assessed, amount_paid,
		                    days_overdue, status, assessed_at, waived_by, waive_reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		f.ID, f.LoanID, f.PatronID, string(f.Kind), f.AmountAssessed, f.AmountPaid,
		f.DaysOverdue, string(f.Status), f.AssessedAt, f.WaivedBy, f.WaiveReason,
	)
	if err != nil {
		return wrap("create fine", err)
	}
	return nil
}

// GetFine возвращает штраф по идентификатору.
func (r *PostgresRepository) GetFine(ctx context.Context, id uuid.UUID) (model.Fine, error) {
	return r.queryFine(ctx, "get fine", psql.Select(fineColumns...).From("fines").Where(sq.Eq{"id": id}))
}

// LockFine блокирует строку штрафа до конца транзакции.
func (r *PostgresRepository) LockFine(ctx context.Context, id uuid.UUID) (model.Fine, error) {
	return r.queryFine(ctx, "lock fine",
		psql.Select(fineColumns...).From("fines").Where(sq.Eq{"id": id}).Suffix("FOR UPDATE"))
}

func (r *PostgresRepository) queryFine(ctx context.Context, op string, b sq.SelectBuilder) (model.Fine, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return model.Fine{}, fmt.Errorf("build %s: %w", op, err)
	}
	f, err := scanFine(r.q(ctx).QueryRow(ctx, query, args...))
	if err != nil {
		return model.Fine{}, wrap(op, notFound(err, model.ErrFineNotFound))
	}
	return f, nil
}

// UpdateFine сохраняет оплату и статус штрафа.
func (r *PostgresRepository) UpdateFine(ctx context.Context, f model.Fine) error {
	tag, err := r.q(ctx).Exec(ctx,
		`UPDATE fines SET amount_paid = $2, status = $3, waived_by = $4, waive_reason = $5 WHERE id = $1`,
		f.ID, f.AmountPaid, string(f.Status), f.WaivedBy, f.WaiveReason,
	)
	if err != nil {
		return wrap("update fine", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrFineNotFound
	}
	return nil
}

// AddFinePayment записывает платёж по штрафу.
func (r *PostgresRepository) AddFinePayment(ctx context.Context, p model.FinePayment) error {
	_, err := r.q(ctx).Exec(ctx,
		`INSERT INTO fine_payments (id, fine_id, amount, method, reference, paid_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.FineID, p.Amount, p.Method, p.Reference, p.PaidAt,
	)
	if err != nil {
		return wrap("add fine payment", err)
	}
	return nil
}

// ListFinePayments возвращает платежи по штрафу в порядке поступления.
func (r *PostgresRepository) ListFinePayments(ctx context.Context, fineID uuid.UUID) ([]model.FinePayment, error) {
	rows, err := r.q(ctx).Query(ctx,
		`SELECT id, fine_id, amount, method, reference, paid_at
		 FROM fine_payments WHERE fine_id = $1 ORDER BY paid_at ASC`,
		fineID,
	)
	if err != nil {
		return nil, wrap("list fine payments", err)
	}
	defer rows.Close()

	var payments []model.FinePayment
	for rows.Next() {
		var p model.FinePayment
		if err := rows.Scan(&p.ID, &p.FineID, &p.Amount, &p.Method, &p.Reference, &p.PaidAt); err != nil {
			return nil, wrap("scan fine payment", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate fine payments", err)
	}
	return payments, nil
}

// UnpaidFineTotal возвращает сумму неоплаченных остатков читателя.
func (r *PostgresRepository) UnpaidFineTotal(ctx context.Context, patronID uuid.UUID) (int64, error) {
	var total int64
	err := r.q(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount_assessed - amount_paid), 0)::BIGINT
		 FROM fines WHERE patron_id = $1 AND status = $2`,
		patronID, string(model.FineStatusUnpaid),
	).Scan(&total)
	if err != nil {
		return 0, wrap("unpaid fine total", err)
	}
	return total, nil
}

// ListFines возвращает штрафы по фильтру, новые первыми.
func (r *PostgresRepository) ListFines(ctx context.Context, f model.FineFilter) ([]model.Fine, error) {
	b := psql.Select(fineColumns...).From("fines")
	if f.PatronID != nil {
		b = b.Where(sq.Eq{"patron_id": *f.PatronID})
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		b = b.Where(sq.Eq{"status": statuses})
	}

	query, args, err := b.OrderBy("assessed_at DESC").Limit(limitOrDefault(f.Limit)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list fines: %w", err)
	}

	rows, err := r.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("list fines", err)
	}
	defer rows.Close()

	var fines []model.Fine
	for rows.Next() {
		fine, err := scanFine(rows)
		if err != nil {
			return nil, wrap("scan fine", err)
		}
		fines = append(fines, fine)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate fines", err)
	}
	return fines, nil
}

// FineTotals сводит штрафы по основанию и состоянию.
func (r *PostgresRepository) FineTotals(ctx context.Context, statuses []model.FineStatus) ([]model.FineTotals, error) {
	b := psql.Select(
		"kind",
		"status",
		"COUNT(*)",
		"COALESCE(SUM(amount_assessed), 0)::BIGINT",
		"COALESCE(SUM(amount_paid), 0)::BIGINT",
		"COALESCE(SUM(CASE WHEN status = 'unpaid' THEN amount_assessed - amount_paid ELSE 0 END), 0)::BIGINT",
	).From("fines")
	if len(statuses) > 0 {
		values := make([]string, 0, len(statuses))
		for _, s := range statuses {
			values = append(values, string(s))
		}
		b = b.Where(sq.Eq{"status": values})
	}

	query, args, err := b.GroupBy("kind", "status").OrderBy("kind", "status").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build fine totals: %w", err)
	}

	rows, err := r.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("fine totals", err)
	}
	defer rows.Close()

	var totals []model.FineTotals
	for rows.Next() {
		var (
			t      model.FineTotals
			kind   string
			status string
		)
		if err := rows.Scan(&kind, &status, &t.Count, &t.Assessed, &t.Paid, &t.Outstanding); err != nil {
			return nil, wrap("scan fine totals", err)
		}
		t.Kind, t.Status = model.FineKind(kind), model.FineStatus(status)
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate fine totals", err)
	}
	return totals, nil
}
