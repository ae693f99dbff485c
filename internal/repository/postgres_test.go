package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/circulation-system/internal/model"
)

func newMockRepo(t *testing.T, opts ...Option) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewWithDB(mock, opts...), mock
}

func TestRunInTx_Commit(t *testing.T) {
	repo, mock := newMockRepo(t, WithLockTimeout(2*time.Second))
	itemID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout = '2000ms'`).
		WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectExec(`UPDATE items SET available_copies = available_copies - 1`).
		WithArgs(itemID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := repo.RunInTx(context.Background(), func(ctx context.Context) error {
		return repo.ReserveCopy(ctx, itemID)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx_RollbackOnError(t *testing.T) {
	repo, mock := newMockRepo(t)
	itemID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE items SET available_copies = available_copies - 1`).
		WithArgs(itemID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := repo.RunInTx(context.Background(), func(ctx context.Context) error {
		return repo.ReserveCopy(ctx, itemID)
	})
	assert.ErrorIs(t, err, model.ErrOutOfStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{name: "serialization", err: &pgconn.PgError{Code: pgerrcode.SerializationFailure}, conflict: true},
		{name: "deadlock", err: &pgconn.PgError{Code: pgerrcode.DeadlockDetected}, conflict: true},
		{name: "lock timeout", err: &pgconn.PgError{Code: pgerrcode.LockNotAvailable}, conflict: true},
		{name: "unique", err: &pgconn.PgError{Code: pgerrcode.UniqueViolation}, conflict: false},
		{name: "plain", err: errors.New("boom"), conflict: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			assert.Equal(t, tt.conflict, errors.Is(got, model.ErrConflict))
			assert.ErrorIs(t, got, tt.err)
		})
	}
	assert.NoError(t, classify(nil))
}

func TestLockPatron_Conflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM patrons WHERE id = \$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.LockNotAvailable})

	_, err := repo.LockPatron(context.Background(), id)
	assert.ErrorIs(t, err, model.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPatron(t *testing.T) {
	id := uuid.New()
	now := time.Now()

	tests := []struct {
		name    string
		setup   func(mock pgxmock.PgxPoolIface)
		wantErr error
	}{
		{
			name: "found",
			setup: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows([]string{"id", "category_id", "status", "suspension_reason", "created_at"}).
					AddRow(id, "standard", "suspended", "fines", now)
				mock.ExpectQuery(`SELECT .+ FROM patrons`).WithArgs(id).WillReturnRows(rows)
			},
		},
		{
			name: "not found",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT .+ FROM patrons`).WithArgs(id).WillReturnError(pgx.ErrNoRows)
			},
			wantErr: model.ErrPatronNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			tt.setup(mock)

			p, err := repo.GetPatron(context.Background(), id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, model.PatronStatusSuspended, p.Status)
			assert.Equal(t, model.SuspensionReasonFines, p.SuspensionReason)
			assert.False(t, p.CanBorrow())
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUpsertPatron_UnknownCategory(t *testing.T) {
	repo, mock := newMockRepo(t)
	p := model.Patron{ID: uuid.New(), CategoryID: "ghost", Status: model.PatronStatusActive, CreatedAt: time.Now()}

	mock.ExpectExec(`INSERT INTO patrons`).
		WithArgs(p.ID, p.CategoryID, "active", "", p.CreatedAt).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation})

	err := repo.UpsertPatron(context.Background(), p)
	assert.ErrorIs(t, err, model.ErrPolicyNotFound)
}

func TestCreateHold_Duplicate(t *testing.T) {
	repo, mock := newMockRepo(t)
	h := model.NewHold(uuid.New(), uuid.New(), time.Now(), 1)

	mock.ExpectExec(`INSERT INTO holds`).
		WithArgs(h.ID, h.PatronID, h.ItemID, h.PlacedAt, 1, "waiting", h.ReadySince, h.ExpiresAt).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

	err := repo.CreateHold(context.Background(), h)
	assert.ErrorIs(t, err, model.ErrDuplicateHold)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveLoan(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()
	loanID, patronID, itemID := uuid.New(), uuid.New(), uuid.New()

	rows := pgxmock.NewRows(loanColumns).
		AddRow(loanID, patronID, itemID, now, now.Add(time.Hour), (*time.Time)(nil), 1, "active")
	mock.ExpectQuery(`SELECT .+ FROM loans WHERE .+ ORDER BY checkout_date DESC LIMIT 1`).
		WithArgs(itemID, "active", patronID).
		WillReturnRows(rows)

	loan, err := repo.FindActiveLoan(context.Background(), itemID, &patronID)
	require.NoError(t, err)
	assert.Equal(t, loanID, loan.ID)
	assert.Equal(t, model.LoanStatusActive, loan.Status)
	assert.Nil(t, loan.CheckinDate)
	assert.Equal(t, 1, loan.RenewalCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveLoan_None(t *testing.T) {
	repo, mock := newMockRepo(t)
	itemID := uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM loans`).
		WithArgs(itemID, "active").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.FindActiveLoan(context.Background(), itemID, nil)
	assert.ErrorIs(t, err, model.ErrLoanNotFound)
}

func TestListHolds(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()
	itemID := uuid.New()
	expires := now.Add(72 * time.Hour)

	rows := pgxmock.NewRows(holdColumns).
		AddRow(uuid.New(), uuid.New(), itemID, now, 0, "ready", &now, &expires).
		AddRow(uuid.New(), uuid.New(), itemID, now, 1, "waiting", (*time.Time)(nil), (*time.Time)(nil))
	mock.ExpectQuery(`SELECT .+ FROM holds WHERE item_id = \$1 AND status IN \(\$2,\$3\) ORDER BY queue_position ASC, placed_at ASC LIMIT 500`).
		WithArgs(itemID, "waiting", "ready").
		WillReturnRows(rows)

	holds, err := repo.ListHolds(context.Background(), model.HoldFilter{
		ItemID:   &itemID,
		Statuses: model.OpenHoldStatuses,
	})
	require.NoError(t, err)
	require.Len(t, holds, 2)
	assert.Equal(t, model.HoldStatusReady, holds[0].Status)
	require.NotNil(t, holds[0].ExpiresAt)
	assert.Equal(t, 1, holds[1].QueuePosition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShiftQueue(t *testing.T) {
	repo, mock := newMockRepo(t)
	itemID := uuid.New()

	mock.ExpectExec(`UPDATE holds SET queue_position = queue_position - 1`).
		WithArgs(itemID, "waiting", 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	require.NoError(t, repo.ShiftQueue(context.Background(), itemID, 2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnpaidFineTotal(t *testing.T) {
	repo, mock := newMockRepo(t)
	patronID := uuid.New()

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount_assessed - amount_paid\), 0\)`).
		WithArgs(patronID, "unpaid").
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(int64(3000)))

	total, err := repo.UnpaidFineTotal(context.Background(), patronID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), total)
}

func TestUpdateFine_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	f := model.Fine{ID: uuid.New(), AmountPaid: 10, Status: model.FineStatusUnpaid}

	mock.ExpectExec(`UPDATE fines SET`).
		WithArgs(f.ID, int64(10), "unpaid", "", "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(t, repo.UpdateFine(context.Background(), f), model.ErrFineNotFound)
}

func TestLimitOrDefault(t *testing.T) {
	assert.Equal(t, uint64(500), limitOrDefault(0))
	assert.Equal(t, uint64(500), limitOrDefault(10_000))
	assert.Equal(t, uint64(20), limitOrDefault(20))
}

func TestFineTotals(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT kind, status, COUNT\(\*\).* FROM fines WHERE status IN \(\$1,\$2\) GROUP BY kind, status ORDER BY kind, status`).
		WithArgs("unpaid", "waived").
		WillReturnRows(pgxmock.NewRows([]string{"kind", "status", "count", "assessed", "paid", "outstanding"}).
			AddRow("overdue", "unpaid", 2, int64(4000), int64(500), int64(3500)).
			AddRow("overdue", "waived", 1, int64(1000), int64(0), int64(0)))

	totals, err := repo.FineTotals(context.Background(), []model.FineStatus{model.FineStatusUnpaid, model.FineStatusWaived})
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, model.FineTotals{
		Kind: model.FineKindOverdue, Status: model.FineStatusUnpaid,
		Count: 2, Assessed: 4000, Paid: 500, Outstanding: 3500,
	}, totals[0])
	assert.Equal(t, model.FineStatusWaived, totals[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOverdueTotals(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)SELECT COUNT\(\*\),.* FROM loans WHERE status = \$2 AND due_date < \$1`).
		WithArgs(now, "active").
		WillReturnRows(pgxmock.NewRows([]string{"count", "sum", "max"}).AddRow(3, 12, 7))

	totals, err := repo.OverdueTotals(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, model.OverdueTotals{Loans: 3, TotalDaysOverdue: 12, MaxDaysOverdue: 7}, totals)
	assert.NoError(t, mock.ExpectationsWereMet())
}
