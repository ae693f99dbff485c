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

var holdColumns = []string{
	"id", "patron_id", "item_id", "placed_at", "queue_position", "status", "ready_since", "expires_at",
}

func scanHold(row pgx.Row) (model.Hold, error) {
	var (
		h      model.Hold
		status string
	)
	if err := row.Scan(&h.ID, &h.PatronID, &h.ItemID, &h.PlacedAt, &h.QueuePosition,
		&status, &h.ReadySince, &h.ExpiresAt); err != nil {
		return model.Hold{}, err
	}
	h.Status = model.HoldStatus(status)
	return h, nil
}

func (r *PostgresRepository) queryHolds(ctx context.Context, op string, b sq.SelectBuilder) ([]model.Hold, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", op, err)
	}

	rows, err := r.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	var holds []model.Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, wrap("scan hold", err)
		}
		holds = append(holds, h)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return holds, nil
}

func (r *PostgresRepository) queryHold(ctx context.Context, op string, b sq.SelectBuilder) (model.Hold, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return model.Hold{}, fmt.Errorf("build %s: %w", op, err)
	}
	h, err := scanHold(r.q(ctx).QueryRow(ctx, query, args...))
	if err != nil {
		return model.Hold{}, wrap(op, notFound(err, model.ErrHoldNotFound))
	}
	return h, nil
}

// CreateHold сохраняет бронь. Повторная открытая бронь того же читателя
// на то же издание отклоняется уникальным индексом.
func (r *PostgresRepository) CreateHold(ctx context.Context, h model.Hold) error {
	_, err := r.q(ctx).Exec(ctx,
		`INSERT INTO holds (id, patron_id, item_id, placed_at, queue_position, status, ready_since, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		h.ID, h.PatronID, h.ItemID, h.PlacedAt, h.QueuePosition, string(h.Status), h.ReadySince, h.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrDuplicateHold
		}
		return wrap("create hold", err)
	}
	return nil
}

// GetHold возвращает бронь по идентификатору.
func (r *PostgresRepository) GetHold(ctx context.Context, id uuid.UUID) (model.Hold, error) {
	return r.queryHold(ctx, "get hold", psql.Select(holdColumns...).From("holds").Where(sq.Eq{"id": id}))
}

// LockHold блокирует строку брони до конца транзакции.
func (r *PostgresRepository) LockHold(ctx context.Context, id uuid.UUID) (model.Hold, error) {
	return r.queryHold(ctx, "lock hold",
		psql.Select(holdColumns...).From("holds").Where(sq.Eq{"id": id}).Suffix("FOR UPDATE"))
}

// FindOpenHold возвращает открытую бронь читателя на издание.
func (r *PostgresRepository) FindOpenHold(ctx context.Context, patronID, itemID uuid.UUID) (model.Hold, error) {
	return r.queryHold(ctx, "find open hold",
		psql.Select(holdColumns...).From("holds").
			Where(sq.Eq{
				"patron_id": patronID,
				"item_id":   itemID,
				"status":    holdStatusStrings(model.OpenHoldStatuses),
			}).
			Suffix("FOR UPDATE"))
}

// CountOpenHolds возвращает число открытых броней на издание.
func (r *PostgresRepository) CountOpenHolds(ctx context.Context, itemID uuid.UUID) (int, error) {
	query, args, err := psql.Select("COUNT(*)").From("holds").
		Where(sq.Eq{"item_id": itemID, "status": holdStatusStrings(model.OpenHoldStatuses)}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count open holds: %w", err)
	}
	var n int
	if err := r.q(ctx).QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, wrap("count open holds", err)
	}
	return n, nil
}

// MaxQueuePosition возвращает последнюю занятую позицию очереди ожидания или 0.
func (r *PostgresRepository) MaxQueuePosition(ctx context.Context, itemID uuid.UUID) (int, error) {
	var n int
	err := r.q(ctx).QueryRow(ctx,
		`SELECT COALESCE(MAX(queue_position), 0) FROM holds WHERE item_id = $1 AND status = $2`,
		itemID, string(model.HoldStatusWaiting),
	).Scan(&n)
	if err != nil {
		return 0, wrap("max queue position", err)
	}
	return n, nil
}

// NextWaitingHold блокирует первую бронь в очереди ожидания.
func (r *PostgresRepository) NextWaitingHold(ctx context.Context, itemID uuid.UUID) (model.Hold, error) {
	return r.queryHold(ctx, "next waiting hold",
		psql.Select(holdColumns...).From("holds").
			Where(sq.Eq{"item_id": itemID, "status": string(model.HoldStatusWaiting)}).
			OrderBy("queue_position ASC", "placed_at ASC").
			Limit(1).
			Suffix("FOR UPDATE"))
}

// UpdateHold сохраняет изменённое состояние брони.
func (r *PostgresRepository) UpdateHold(ctx context.Context, h model.Hold) error {
	tag, err := r.q(ctx).Exec(ctx,
		`UPDATE holds SET queue_position = $2, status = $3, ready_since = $4, expires_at = $5 WHERE id = $1`,
		h.ID, h.QueuePosition, string(h.Status), h.ReadySince, h.ExpiresAt,
	)
	if err != nil {
		return wrap("update hold", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrHoldNotFound
	}
	return nil
}

// ShiftQueue сдвигает на одну позицию вперёд ожидающие брони, стоящие после position.
func (r *PostgresRepository) ShiftQueue(ctx context.Context, itemID uuid.UUID, position int) error {
	_, err := r.q(ctx).Exec(ctx,
		`UPDATE holds SET queue_position = queue_position - 1
		 WHERE item_id = $1 AND status = $2 AND queue_position > $3`,
		itemID, string(model.HoldStatusWaiting), position,
	)
	if err != nil {
		return wrap("shift queue", err)
	}
	return nil
}

// ListStaleHolds возвращает готовые брони, срок хранения которых истёк к моменту now.
func (r *PostgresRepository) ListStaleHolds(ctx context.Context, now time.Time, limit int) ([]model.Hold, error) {
	return r.queryHolds(ctx, "list stale holds",
		psql.Select(holdColumns...).From("holds").
			Where(sq.Eq{"status": string(model.HoldStatusReady)}).
			Where(sq.Lt{"expires_at": now}).
			OrderBy("expires_at ASC").
			Limit(limitOrDefault(limit)))
}

// ListHolds возвращает брони по фильтру: сначала очередь, затем история.
func (r *PostgresRepository) ListHolds(ctx context.Context, f model.HoldFilter) ([]model.Hold, error) {
	b := psql.Select(holdColumns...).From("holds")
	if f.PatronID != nil {
		b = b.Where(sq.Eq{"patron_id": *f.PatronID})
	}
	if f.ItemID != nil {
		b = b.Where(sq.Eq{"item_id": *f.ItemID})
	}
	if len(f.Statuses) > 0 {
		b = b.Where(sq.Eq{"status": holdStatusStrings(f.Statuses)})
	}
	return r.queryHolds(ctx, "list holds",
		b.OrderBy("queue_position ASC", "placed_at ASC").Limit(limitOrDefault(f.Limit)))
}
