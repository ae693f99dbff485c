package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/circulation-system/internal/model"
	"github.com/mmeshcher/circulation-system/internal/repository"
	"github.com/mmeshcher/circulation-system/internal/repository/testhelper"
	"github.com/mmeshcher/circulation-system/internal/service"
)

func newPostgresService(t *testing.T) (*service.Service, *repository.PostgresRepository) {
	t.Helper()
	pool := testhelper.SetupTestDB(t)
	repo := repository.NewWithDB(pool, repository.WithLockTimeout(5*time.Second))
	return service.NewService(repo, zap.NewNop()), repo
}

func registerPatron(t *testing.T, svc *service.Service) model.Actor {
	t.Helper()
	p, err := svc.RegisterPatron(context.Background(), uuid.New(), "standard")
	require.NoError(t, err)
	return model.Actor{ID: p.ID, Role: model.RolePatron}
}

func TestPostgres_ConcurrentCheckoutsAndHoldPromotion(t *testing.T) {
	svc, repo := newPostgresService(t)
	ctx := context.Background()

	item, err := svc.UpsertItem(ctx, "IT-"+uuid.NewString()[:8], "Integration", 2)
	require.NoError(t, err)

	const patrons = 12
	actors := make([]model.Actor, patrons)
	for i := range actors {
		actors[i] = registerPatron(t, svc)
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		loans []model.Loan
		lost  []model.Actor
	)
	for _, a := range actors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var loan model.Loan
			err := service.RetryOnConflict(ctx, func(ctx context.Context) error {
				var err error
				loan, err = svc.Checkout(ctx, a, a.ID, item.ID)
				return err
			})

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				loans = append(loans, loan)
				return
			}
			assert.ErrorIs(t, err, model.ErrItemUnavailable)
			lost = append(lost, a)
		}()
	}
	wg.Wait()

	require.Len(t, loans, 2)
	stock, err := repo.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stock.AvailableCopies)

	first, err := svc.PlaceHold(ctx, lost[0], lost[0].ID, item.ID)
	require.NoError(t, err)
	second, err := svc.PlaceHold(ctx, lost[1], lost[1].ID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.QueuePosition)
	assert.Equal(t, 2, second.QueuePosition)

	_, err = svc.PlaceHold(ctx, lost[0], lost[0].ID, item.ID)
	assert.ErrorIs(t, err, model.ErrDuplicateHold)

	res, err := svc.Checkin(ctx, model.System(), service.CheckinRequest{LoanID: &loans[0].ID})
	require.NoError(t, err)
	require.NotNil(t, res.HoldPromoted)
	assert.Equal(t, first.ID, res.HoldPromoted.ID)

	queue, err := svc.ItemHolds(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, model.HoldStatusReady, queue[0].Status)
	assert.Equal(t, second.ID, queue[1].ID)
	assert.Equal(t, 1, queue[1].QueuePosition)

	loan, err := svc.Checkout(ctx, lost[0], lost[0].ID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, lost[0].ID, loan.PatronID)

	stock, err = repo.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stock.AvailableCopies)
}

func TestPostgres_FineLifecycle(t *testing.T) {
	pool := testhelper.SetupTestDB(t)
	repo := repository.NewWithDB(pool)
	ctx := context.Background()

	now := time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	svc := service.NewService(repo, zap.NewNop(), service.WithClock(clock))

	item, err := svc.UpsertItem(ctx, "IT-"+uuid.NewString()[:8], "Fines", 1)
	require.NoError(t, err)
	actor := registerPatron(t, svc)

	loan, err := svc.Checkout(ctx, actor, actor.ID, item.ID)
	require.NoError(t, err)

	now = loan.DueDate.Add(3 * 24 * time.Hour)
	res, err := svc.Checkin(ctx, actor, service.CheckinRequest{LoanID: &loan.ID})
	require.NoError(t, err)
	require.NotNil(t, res.Fine)
	assert.Equal(t, int64(3000), res.Fine.AmountAssessed)

	fine, err := svc.PayFine(ctx, actor, res.Fine.ID, service.Payment{Amount: 1000, Method: "cash"})
	require.NoError(t, err)
	assert.Equal(t, model.FineStatusUnpaid, fine.Status)

	unpaid, err := repo.UnpaidFineTotal(ctx, actor.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), unpaid)

	_, err = svc.PayFine(ctx, actor, res.Fine.ID, service.Payment{Amount: 2001})
	assert.ErrorIs(t, err, model.ErrOverpaymentNotAllowed)

	fine, err = svc.PayFine(ctx, actor, res.Fine.ID, service.Payment{Amount: 2000, Reference: "r-2"})
	require.NoError(t, err)
	assert.Equal(t, model.FineStatusPaid, fine.Status)

	payments, err := svc.FinePayments(ctx, actor, res.Fine.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}
