package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/circulation-system/internal/model"
)

const patronColumns = `id, category_id, status, suspension_reason, created_at`

func scanPatron(row pgx.Row) (model.Patron, error) {
	var (
		p      model.Patron
		status string
	)
	if err := row.Scan(&p.ID, &p.CategoryID, &status, &p.SuspensionReason, &p.CreatedAt); err != nil {
		return model.Patron{}, err
	}
	p.Status = model.PatronStatus(status)
	return p, nil
}

// GetPatron возвращает читателя по идентификатору.
func (r *PostgresRepository) GetPatron(ctx context.Context, id uuid.UUID) (model.Patron, error) {
	p, err := scanPatron(r.q(ctx).QueryRow(ctx,
		`SELECT `+patronColumns+` FROM patrons WHERE id = $1`, id))
	if err != nil {
		return model.Patron{}, wrap("get patron", notFound(err, model.ErrPatronNotFound))
	}
	return p, nil
}

// LockPatron блокирует строку читателя до конца транзакции.
func (r *PostgresRepository) LockPatron(ctx context.Context, id uuid.UUID) (model.Patron, error) {
	p, err := scanPatron(r.q(ctx).QueryRow(ctx,
		`SELECT `+patronColumns+` FROM patrons WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return model.Patron{}, wrap("lock patron", notFound(err, model.ErrPatronNotFound))
	}
	return p, nil
}

// UpsertPatron создаёт читателя или меняет его категорию.
func (r *PostgresRepository) UpsertPatron(ctx context.Context, p model.Patron) error {
	_, err := r.q(ctx).Exec(ctx,
		`INSERT INTO patrons (id, category_id, status, suspension_reason, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET category_id = EXCLUDED.category_id`,
		p.ID, p.CategoryID, string(p.Status), p.SuspensionReason, p.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return model.ErrPolicyNotFound
		}
		return wrap("upsert patron", err)
	}
	return nil
}

// UpdatePatronStatus меняет статус читателя.
func (r *PostgresRepository) UpdatePatronStatus(ctx context.Context, id uuid.UUID, status model.PatronStatus, reason string) error {
	tag, err := r.q(ctx).Exec(ctx,
		`UPDATE patrons SET status = $2, suspension_reason = $3 WHERE id = $1`,
		id, string(status), reason,
	)
	if err != nil {
		return wrap("update patron status", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrPatronNotFound
	}
	return nil
}

// GetPolicy возвращает правила категории читателей.
func (r *PostgresRepository) GetPolicy(ctx context.Context, categoryID string) (model.Policy, error) {
	var p model.Policy
	err := r.q(ctx).QueryRow(ctx,
		`SELECT id, borrow_limit, loan_period_days, renewal_limit, fine_rate_per_day, fine_cap, hold_expiry_days, fine_ceiling
		 FROM patron_categories WHERE id = $1`,
		categoryID,
	).Scan(&p.CategoryID, &p.BorrowLimit, &p.LoanPeriodDays, &p.RenewalLimit,
		&p.FineRatePerDay, &p.FineCap, &p.HoldExpiryDays, &p.FineCeiling)
	if err != nil {
		return model.Policy{}, wrap("get policy", notFound(err, model.ErrPolicyNotFound))
	}
	return p, nil
}

// UpsertPolicy сохраняет правила категории.
func (r *PostgresRepository) UpsertPolicy(ctx context.Context, p model.Policy) error {
	_, err := r.q(ctx).Exec(ctx,
		`INSERT INTO patron_categories
		   (id, borrow_limit, loan_period_days, renewal_limit, fine_rate_per_day, fine_cap, hold_expiry_days, fine_ceiling)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   borrow_limit = EXCLUDED.borrow_limit,
		   loan_period_days = EXCLUDED.loan_period_days,
		   renewal_limit = EXCLUDED.renewal_limit,
		   fine_rate_per_day = EXCLUDED.fine_rate_per_day,
		   fine_cap = EXCLUDED.fine_cap,
		   hold_expiry_days = EXCLUDED.hold_expiry_days,
		   fine_ceiling = EXCLUDED.fine_ceiling`,
		p.CategoryID, p.BorrowLimit, p.LoanPeriodDays, p.RenewalLimit,
		p.FineRatePerDay, p.FineCap, p.HoldExpiryDays, p.FineCeiling,
	)
	if err != nil {
		return wrap("upsert policy", err)
	}
	return nil
}
