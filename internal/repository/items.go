package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/circulation-system/internal/model"
)

const itemColumns = `id, barcode, title, total_copies, available_copies, updated_at`

func scanItem(row pgx.Row) (model.Item, error) {
	var it model.Item
	err := row.Scan(&it.ID, &it.Barcode, &it.Title, &it.TotalCopies, &it.AvailableCopies, &it.UpdatedAt)
	return it, err
}

// GetItem возвращает издание по идентификатору.
func (r *PostgresRepository) GetItem(ctx context.Context, id uuid.UUID) (model.Item, error) {
	it, err := scanItem(r.q(ctx).QueryRow(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
	if err != nil {
		return model.Item{}, wrap("get item", notFound(err, model.ErrItemNotFound))
	}
	return it, nil
}

// GetItemByBarcode возвращает издание по штрихкоду.
func (r *PostgresRepository) GetItemByBarcode(ctx context.Context, barcode string) (model.Item, error) {
	it, err := scanItem(r.q(ctx).QueryRow(ctx,
		`SELECT `+itemColumns+` FROM items WHERE barcode = $1`, barcode))
	if err != nil {
		return model.Item{}, wrap("get item by barcode", notFound(err, model.ErrItemNotFound))
	}
	return it, nil
}

// LockItem блокирует строку издания до конца транзакции.
func (r *PostgresRepository) LockItem(ctx context.Context, id uuid.UUID) (model.Item, error) {
	it, err := scanItem(r.q(ctx).QueryRow(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return model.Item{}, wrap("lock item", notFound(err, model.ErrItemNotFound))
	}
	return it, nil
}

// ReserveCopy уменьшает число свободных экземпляров на один.
// Если свободных нет, возвращает model.ErrOutOfStock.
func (r *PostgresRepository) ReserveCopy(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q(ctx).Exec(ctx,
		`UPDATE items SET available_copies = available_copies - 1, updated_at = NOW()
		 WHERE id = $1 AND available_copies > 0`,
		id,
	)
	if err != nil {
		return wrap("reserve copy", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrOutOfStock
	}
	return nil
}

// ReleaseCopy возвращает экземпляр в свободный фонд, не превышая общего числа.
func (r *PostgresRepository) ReleaseCopy(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q(ctx).Exec(ctx,
		`UPDATE items SET available_copies = LEAST(available_copies + 1, total_copies), updated_at = NOW()
		 WHERE id = $1`,
		id,
	)
	if err != nil {
		return wrap("release copy", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrItemNotFound
	}
	return nil
}

// CreateItem добавляет издание в фонд.
func (r *PostgresRepository) CreateItem(ctx context.Context, it model.Item) error {
	_, err := r.q(ctx).Exec(ctx,
		`INSERT INTO items (id, barcode, title, total_copies, available_copies, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		it.ID, it.Barcode, it.Title, it.TotalCopies, it.AvailableCopies, it.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create item %s: %w", it.Barcode, model.ErrConflict)
		}
		return wrap("create item", err)
	}
	return nil
}

// UpdateItemStock сохраняет название и счётчики экземпляров.
func (r *PostgresRepository) UpdateItemStock(ctx context.Context, it model.Item) error {
	tag, err := r.q(ctx).Exec(ctx,
		`UPDATE items SET title = $2, total_copies = $3, available_copies = $4, updated_at = $5
		 WHERE id = $1`,
		it.ID, it.Title, it.TotalCopies, it.AvailableCopies, it.UpdatedAt,
	)
	if err != nil {
		return wrap("update item stock", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrItemNotFound
	}
	return nil
}
