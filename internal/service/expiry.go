package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/circulation-system/internal/model"
)

const expiryBatchSize = 100

// ExpireStaleHolds закрывает все готовые брони с истёкшим сроком хранения,
// возвращает их экземпляры в фонд и продвигает очереди. Брони выбираются
// пачками по expiryBatchSize, каждая обрабатывается в отдельной транзакции.
// Повторный вызов без изменений состояния ничего не делает.
// Конфликты не повторяются: ошибка model.ErrConflict попадает в результат.
func (s *Service) ExpireStaleHolds(ctx context.Context) ([]model.Hold, error) {
	var (
		expired []model.Hold
		errs    []error
	)
	for {
		stale, err := s.repo.ListStaleHolds(ctx, s.now(), expiryBatchSize)
		if err != nil {
			return expired, errors.Join(append(errs, err)...)
		}

		progressed := false
		for _, candidate := range stale {
			hold, done, err := s.expireHold(ctx, candidate.ID)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return expired, err
				}
				s.logger.Warn("hold expiry failed", zap.String("hold_id", candidate.ID.String()), zap.Error(err))
				errs = append(errs, err)
				continue
			}
			if done {
				expired = append(expired, hold)
				progressed = true
			}
		}

		// Неудачные брони остаются в выборке, поэтому без продвижения цикл прерывается.
		if len(stale) < expiryBatchSize || !progressed {
			break
		}
	}

	if len(expired) > 0 {
		s.logger.Info("stale holds expired", zap.Int("count", len(expired)))
	}
	return expired, errors.Join(errs...)
}

func (s *Service) expireHold(ctx context.Context, holdID uuid.UUID) (model.Hold, bool, error) {
	var (
		hold     model.Hold
		expired  bool
		promoted *model.Hold
	)
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		candidate, err := s.repo.GetHold(ctx, holdID)
		if err != nil {
			return err
		}
		if _, err := s.repo.LockPatron(ctx, candidate.PatronID); err != nil {
			return err
		}
		if _, err := s.inventory.Lock(ctx, candidate.ItemID); err != nil {
			return err
		}
		hold, err = s.repo.LockHold(ctx, holdID)
		if err != nil {
			return err
		}
		expired, promoted, err = s.holds.Expire(ctx, &hold)
		return err
	})
	if err != nil {
		return model.Hold{}, false, err
	}

	if promoted != nil {
		s.logger.Info("hold promoted after expiry",
			zap.String("expired_hold_id", holdID.String()),
			zap.String("hold_id", promoted.ID.String()),
		)
	}
	return hold, expired, nil
}

// StartHoldExpiry запускает фоновую периодическую очистку просроченных броней.
// Проход, завершившийся конфликтом, повторяется с задержкой.
func (s *Service) StartHoldExpiry(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := RetryOnConflict(ctx, func(ctx context.Context) error {
					_, err := s.ExpireStaleHolds(ctx)
					return err
				})
				if err != nil && ctx.Err() == nil {
					s.logger.Error("expire stale holds", zap.Error(err))
				}
			}
		}
	}()
}
