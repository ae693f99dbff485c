// Package memory содержит транзакционное хранилище в памяти для тестов и локального запуска.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/circulation-system/internal/model"
)

type txKey struct{}

type state struct {
	patrons  map[uuid.UUID]model.Patron
	policies map[string]model.Policy
	items    map[uuid.UUID]model.Item
	loans    map[uuid.UUID]model.Loan
	holds    map[uuid.UUID]model.Hold
	fines    map[uuid.UUID]model.Fine
	payments []model.FinePayment
}

func newState() *state {
	return &state{
		patrons:  map[uuid.UUID]model.Patron{},
		policies: map[string]model.Policy{},
		items:    map[uuid.UUID]model.Item{},
		loans:    map[uuid.UUID]model.Loan{},
		holds:    map[uuid.UUID]model.Hold{},
		fines:    map[uuid.UUID]model.Fine{},
	}
}

func (s *state) clone() *state {
	c := &state{
		patrons:  make(map[uuid.UUID]model.Patron, len(s.patrons)),
		policies: make(map[string]model.Policy, len(s.policies)),
		items:    make(map[uuid.UUID]model.Item, len(s.items)),
		loans:    make(map[uuid.UUID]model.Loan, len(s.loans)),
		holds:    make(map[uuid.UUID]model.Hold, len(s.holds)),
		fines:    make(map[uuid.UUID]model.Fine, len(s.fines)),
		payments: append([]model.FinePayment(nil), s.payments...),
	}
	for k, v := range s.patrons {
		c.patrons[k] = v
	}
	for k, v := range s.policies {
		c.policies[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.loans {
		c.loans[k] = v
	}
	for k, v := range s.holds {
		c.holds[k] = v
	}
	for k, v := range s.fines {
		c.fines[k] = v
	}
	return c
}

// Store хранит состояние в памяти. Транзакции сериализуются одним мьютексом:
// изменения применяются к копии состояния и публикуются только при успехе.
type Store struct {
	mu    sync.Mutex
	state *state
}

// New создаёт пустое хранилище с категориями читателей по умолчанию.
func New() *Store {
	st := newState()
	for _, p := range DefaultPolicies() {
		st.policies[p.CategoryID] = p
	}
	return &Store{state: st}
}

// DefaultPolicies возвращает категории, которыми заполняется новая база.
func DefaultPolicies() []model.Policy {
	return []model.Policy{
		{CategoryID: "standard", BorrowLimit: 5, LoanPeriodDays: 14, RenewalLimit: 2, FineRatePerDay: 1000, FineCap: 10000, HoldExpiryDays: 7, FineCeiling: 10000},
		{CategoryID: "researcher", BorrowLimit: 15, LoanPeriodDays: 28, RenewalLimit: 3, FineRatePerDay: 1000, FineCap: 10000, HoldExpiryDays: 7, FineCeiling: 10000},
		{CategoryID: "staff", BorrowLimit: 20, LoanPeriodDays: 28, RenewalLimit: 5, FineRatePerDay: 0, FineCap: 0, HoldExpiryDays: 7, FineCeiling: 10000},
	}
}

// Close ничего не делает.
func (s *Store) Close() error { return nil }

// RunInTx выполняет fn над копией состояния и фиксирует её, если fn не вернула ошибку.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*state); ok {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.state.clone()
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	s.state = tx
	return nil
}

func (s *Store) view(ctx context.Context, fn func(st *state) error) error {
	if st, ok := ctx.Value(txKey{}).(*state); ok {
		return fn(st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

// GetPatron возвращает читателя.
func (s *Store) GetPatron(ctx context.Context, id uuid.UUID) (model.Patron, error) {
	var p model.Patron
	err := s.view(ctx, func(st *state) error {
		var ok bool
		if p, ok = st.patrons[id]; !ok {
			return model.ErrPatronNotFound
		}
		return nil
	})
	return p, err
}

// LockPatron в памяти равносилен GetPatron: транзакции и так сериализованы.
func (s *Store) LockPatron(ctx context.Context, id uuid.UUID) (model.Patron, error) {
	return s.GetPatron(ctx, id)
}

// UpsertPatron создаёт читателя или меняет его категорию.
func (s *Store) UpsertPatron(ctx context.Context, p model.Patron) error {
	return s.view(ctx, func(st *state) error {
		if _, ok := st.policies[p.CategoryID]; !ok {
			return model.ErrPolicyNotFound
		}
		if existing, ok := st.patrons[p.ID]; ok {
			existing.CategoryID = p.CategoryID
			st.patrons[p.ID] = existing
			return nil
		}
		st.patrons[p.ID] = p
		return nil
	})
}

// UpdatePatronStatus меняет статус читателя.
func (s *Store) UpdatePatronStatus(ctx context.Context, id uuid.UUID, status model.PatronStatus, reason string) error {
	return s.view(ctx, func(st *state) error {
		p, ok := st.patrons[id]
		if !ok {
			return model.ErrPatronNotFound
		}
		p.Status = status
		p.SuspensionReason = reason
		st.patrons[id] = p
		return nil
	})
}

// GetPolicy возвращает правила категории.
func (s *Store) GetPolicy(ctx context.Context, categoryID string) (model.Policy, error) {
	var p model.Policy
	err := s.view(ctx, func(st *state) error {
		var ok bool
		if p, ok = st.policies[categoryID]; !ok {
			return model.ErrPolicyNotFound
		}
		return nil
	})
	return p, err
}

// UpsertPolicy сохраняет правила категории.
func (s *Store) UpsertPolicy(ctx context.Context, p model.Policy) error {
	return s.view(ctx, func(st *state) error {
		st.policies[p.CategoryID] = p
		return nil
	})
}

// GetItem возвращает издание.
func (s *Store) GetItem(ctx context.Context, id uuid.UUID) (model.Item, error) {
	var it model.Item
	err := s.view(ctx, func(st *state) error {
		var ok bool
		if it, ok = st.items[id]; !ok {
			return model.ErrItemNotFound
		}
		return nil
	})
	return it, err
}

// GetItemByBarcode возвращает издание по штрихкоду.
func (s *Store) GetItemByBarcode(ctx context.Context, barcode string) (model.Item, error) {
	var it model.Item
	err := s.view(ctx, func(st *state) error {
		for _, candidate := range st.items {
			if candidate.Barcode == barcode {
				it = candidate
				return nil
			}
		}
		return model.ErrItemNotFound
	})
	return it, err
}

// LockItem в памяти равносилен GetItem.
func (s *Store) LockItem(ctx context.Context, id uuid.UUID) (model.Item, error) {
	return s.GetItem(ctx, id)
}

// ReserveCopy уменьшает число свободных экземпляров.
func (s *Store) ReserveCopy(ctx context.Context, id uuid.UUID) error {
	return s.view(ctx, func(st *state) error {
		it, ok := st.items[id]
		if !ok {
			return model.ErrItemNotFound
		}
		if it.AvailableCopies <= 0 {
			return model.ErrOutOfStock
		}
		it.AvailableCopies--
		st.items[id] = it
		return nil
	})
}

// ReleaseCopy возвращает экземпляр в свободный фонд.
func (s *Store) ReleaseCopy(ctx context.Context, id uuid.UUID) error {
	return s.view(ctx, func(st *state) error {
		it, ok := st.items[id]
		if !ok {
			return model.ErrItemNotFound
		}
		if it.AvailableCopies < it.TotalCopies {
			it.AvailableCopies++
		}
		st.items[id] = it
		return nil
	})
}

// CreateItem добавляет издание.
func (s *Store) CreateItem(ctx context.Context, it model.Item) error {
	return s.view(ctx, func(st *state) error {
		for _, existing := range st.items {
			if existing.Barcode == it.Barcode {
				return fmt.Errorf("create item %s: %w", it.Barcode, model.ErrConflict)
			}
		}
		st.items[it.ID] = it
		return nil
	})
}

// UpdateItemStock сохраняет название и счётчики.
func (s *Store) UpdateItemStock(ctx context.Context, it model.Item) error {
	return s.view(ctx, func(st *state) error {
		existing, ok := st.items[it.ID]
		if !ok {
			return model.ErrItemNotFound
		}
		existing.Title = it.Title
		existing.TotalCopies = it.TotalCopies
		existing.AvailableCopies = it.AvailableCopies
		existing.UpdatedAt = it.UpdatedAt
		st.items[it.ID] = existing
		return nil
	})
}

// CreateLoan сохраняет выдачу.
func (s *Store) CreateLoan(ctx context.Context, l model.Loan) error {
	return s.view(ctx, func(st *state) error {
		st.loans[l.ID] = l
		return nil
	})
}

// GetLoan возвращает выдачу.
func (s *Store) GetLoan(ctx context.Context, id uuid.UUID) (model.Loan, error) {
	var l model.Loan
	err := s.view(ctx, func(st *state) error {
		var ok bool
		if l, ok = st.loans[id]; !ok {
			return model.ErrLoanNotFound
		}
		return nil
	})
	return l, err
}

// LockLoan в памяти равносилен GetLoan.
func (s *Store) LockLoan(ctx context.Context, id uuid.UUID) (model.Loan, error) {
	return s.GetLoan(ctx, id)
}

// FindActiveLoan возвращает самую свежую активную выдачу экземпляра.
func (s *Store) FindActiveLoan(ctx context.Context, itemID uuid.UUID, patronID *uuid.UUID) (model.Loan, error) {
	loans, err := s.ListLoans(ctx, model.LoanFilter{
		ItemID:   &itemID,
		PatronID: patronID,
		Statuses: []model.LoanStatus{model.LoanStatusActive},
		Limit:    1,
	})
	if err != nil {
		return model.Loan{}, err
	}
	if len(loans) == 0 {
		return model.Loan{}, model.ErrLoanNotFound
	}
	return loans[0], nil
}

// UpdateLoan сохраняет изменённую выдачу.
func (s *Store) UpdateLoan(ctx context.Context, l model.Loan) error {
	return s.view(ctx, func(st *state) error {
		if _, ok := st.loans[l.ID]; !ok {
			return model.ErrLoanNotFound
		}
		st.loans[l.ID] = l
		return nil
	})
}

// CountActiveLoans возвращает число активных выдач читателя.
func (s *Store) CountActiveLoans(ctx context.Context, patronID uuid.UUID) (int, error) {
	var n int
	err := s.view(ctx, func(st *state) error {
		for _, l := range st.loans {
			if l.PatronID == patronID && l.IsActive() {
				n++
			}
		}
		return nil
	})
	return n, err
}

// ListLoans возвращает выдачи по фильтру, новые первыми.
func (s *Store) ListLoans(ctx context.Context, f model.LoanFilter) ([]model.Loan, error) {
	var res []model.Loan
	err := s.view(ctx, func(st *state) error {
		for _, l := range st.loans {
			if f.PatronID != nil && l.PatronID != *f.PatronID {
				continue
			}
			if f.ItemID != nil && l.ItemID != *f.ItemID {
				continue
			}
			if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, l.Status) {
				continue
			}
			if f.OverdueAt != nil && !l.DueDate.Before(*f.OverdueAt) {
				continue
			}
			res = append(res, l)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CheckoutDate.After(res[j].CheckoutDate) })
	return limit(res, f.Limit), nil
}

// CreateHold сохраняет бронь, соблюдая единственность открытой брони читателя на издание.
func (s *Store) CreateHold(ctx context.Context, h model.Hold) error {
	return s.view(ctx, func(st *state) error {
		for _, existing := range st.holds {
			if existing.PatronID == h.PatronID && existing.ItemID == h.ItemID && existing.IsOpen() {
				return model.ErrDuplicateHold
			}
		}
		st.holds[h.ID] = h
		return nil
	})
}

// GetHold возвращает бронь.
func (s *Store) GetHold(ctx context.Context, id uuid.UUID) (model.Hold, error) {
	var h model.Hold
	err := s.view(ctx, func(st *state) error {
		var ok bool
		if h, ok = st.holds[id]; !ok {
			return model.ErrHoldNotFound
		}
		return nil
	})
	return h, err
}

// LockHold в памяти равносилен GetHold.
func (s *Store) LockHold(ctx context.Context, id uuid.UUID) (model.Hold, error) {
	return s.GetHold(ctx, id)
}

// FindOpenHold возвращает открытую бронь читателя на издание.
func (s *Store) FindOpenHold(ctx context.Context, patronID, itemID uuid.UUID) (model.Hold, error) {
	var h model.Hold
	err := s.view(ctx, func(st *state) error {
		for _, candidate := range st.holds {
			if candidate.PatronID == patronID && candidate.ItemID == itemID && candidate.IsOpen() {
				h = candidate
				return nil
			}
		}
		return model.ErrHoldNotFound
	})
	return h, err
}

// CountOpenHolds возвращает число открытых броней на издание.
func (s *Store) CountOpenHolds(ctx context.Context, itemID uuid.UUID) (int, error) {
	return s.countHolds(ctx, itemID, model.OpenHoldStatuses...)
}

func (s *Store) countHolds(ctx context.Context, itemID uuid.UUID, statuses ...model.HoldStatus) (int, error) {
	var n int
	err := s.view(ctx, func(st *state) error {
		for _, h := range st.holds {
			if h.ItemID == itemID && slices.Contains(statuses, h.Status) {
				n++
			}
		}
		return nil
	})
	return n, err
}

// MaxQueuePosition возвращает последнюю позицию очереди ожидания или 0.
func (s *Store) MaxQueuePosition(ctx context.Context, itemID uuid.UUID) (int, error) {
	var top int
	err := s.view(ctx, func(st *state) error {
		for _, h := range st.holds {
			if h.ItemID == itemID && h.Status == model.HoldStatusWaiting && h.QueuePosition > top {
				top = h.QueuePosition
			}
		}
		return nil
	})
	return top, err
}

// NextWaitingHold возвращает первую бронь очереди ожидания.
func (s *Store) NextWaitingHold(ctx context.Context, itemID uuid.UUID) (model.Hold, error) {
	holds, err := s.ListHolds(ctx, model.HoldFilter{
		ItemID:   &itemID,
		Statuses: []model.HoldStatus{model.HoldStatusWaiting},
		Limit:    1,
	})
	if err != nil {
		return model.Hold{}, err
	}
	if len(holds) == 0 {
		return model.Hold{}, model.ErrHoldNotFound
	}
	return holds[0], nil
}

// UpdateHold сохраняет изменённую бронь.
func (s *Store) UpdateHold(ctx context.Context, h model.Hold) error {
	return s.view(ctx, func(st *state) error {
		if _, ok := st.holds[h.ID]; !ok {
			return model.ErrHoldNotFound
		}
		st.holds[h.ID] = h
		return nil
	})
}

// ShiftQueue сдвигает вперёд ожидающие брони, стоящие после position.
func (s *Store) ShiftQueue(ctx context.Context, itemID uuid.UUID, position int) error {
	return s.view(ctx, func(st *state) error {
		for id, h := range st.holds {
			if h.ItemID == itemID && h.Status == model.HoldStatusWaiting && h.QueuePosition > position {
				h.QueuePosition--
				st.holds[id] = h
			}
		}
		return nil
	})
}

// ListStaleHolds возвращает готовые брони с истёкшим сроком хранения.
func (s *Store) ListStaleHolds(ctx context.Context, now time.Time, n int) ([]model.Hold, error) {
	var res []model.Hold
	err := s.view(ctx, func(st *state) error {
		for _, h := range st.holds {
			if h.IsStale(now) {
				res = append(res, h)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ExpiresAt.Before(*res[j].ExpiresAt) })
	return limit(res, n), nil
}

// ListHolds возвращает брони по фильтру: сначала очередь, затем по времени постановки.
func (s *Store) ListHolds(ctx context.Context, f model.HoldFilter) ([]model.Hold, error) {
	var res []model.Hold
	err := s.view(ctx, func(st *state) error {
		for _, h := range st.holds {
			if f.PatronID != nil && h.PatronID != *f.PatronID {
				continue
			}
			if f.ItemID != nil && h.ItemID != *f.ItemID {
				continue
			}
			if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, h.Status) {
				continue
			}
			res = append(res, h)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].QueuePosition != res[j].QueuePosition {
			return res[i].QueuePosition < res[j].QueuePosition
		}
		return res[i].PlacedAt.Before(res[j].PlacedAt)
	})
	return limit(res, f.Limit), nil
}

// CreateFine сохраняет штраф.
func (s *Store) CreateFine(ctx context.Context, f model.Fine) error {
	return s.view(ctx, func(st *state) error {
		st.fines[f.ID] = f
		return nil
	})
}

// GetFine возвращает штраф.
func (s *Store) GetFine(ctx context.Context, id uuid.UUID) (model.Fine, error) {
	var f model.Fine
	err := s.view(ctx, func(st *state) error {
		var ok bool
		if f, ok = st.fines[id]; !ok {
			return model.ErrFineNotFound
		}
		return nil
	})
	return f, err
}

// LockFine в памяти равносилен GetFine.
func (s *Store) LockFine(ctx context.Context, id uuid.UUID) (model.Fine, error) {
	return s.GetFine(ctx, id)
}

// UpdateFine сохраняет изменённый штраф.
func (s *Store) UpdateFine(ctx context.Context, f model.Fine) error {
	return s.view(ctx, func(st *state) error {
		if _, ok := st.fines[f.ID]; !ok {
			return model.ErrFineNotFound
		}
		st.fines[f.ID] = f
		return nil
	})
}

// AddFinePayment записывает платёж.
func (s *Store) AddFinePayment(ctx context.Context, p model.FinePayment) error {
	return s.view(ctx, func(st *state) error {
		st.payments = append(st.payments, p)
		return nil
	})
}

// ListFinePayments возвращает платежи по штрафу.
func (s *Store) ListFinePayments(ctx context.Context, fineID uuid.UUID) ([]model.FinePayment, error) {
	var res []model.FinePayment
	err := s.view(ctx, func(st *state) error {
		for _, p := range st.payments {
			if p.FineID == fineID {
				res = append(res, p)
			}
		}
		return nil
	})
	return res, err
}

// UnpaidFineTotal возвращает сумму неоплаченных остатков читателя.
func (s *Store) UnpaidFineTotal(ctx context.Context, patronID uuid.UUID) (int64, error) {
	var total int64
	err := s.view(ctx, func(st *state) error {
		for _, f := range st.fines {
			if f.PatronID == patronID {
				total += f.Outstanding()
			}
		}
		return nil
	})
	return total, err
}

// ListFines возвращает штрафы по фильтру, новые первыми.
func (s *Store) ListFines(ctx context.Context, f model.FineFilter) ([]model.Fine, error) {
	var res []model.Fine
	err := s.view(ctx, func(st *state) error {
		for _, fine := range st.fines {
			if f.PatronID != nil && fine.PatronID != *f.PatronID {
				continue
			}
			if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, fine.Status) {
				continue
			}
			res = append(res, fine)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(res, func(i, j int) bool { return res[i].AssessedAt.After(res[j].AssessedAt) })
	return limit(res, f.Limit), nil
}

// FineTotals сводит штрафы по основанию и состоянию.
func (s *Store) FineTotals(ctx context.Context, statuses []model.FineStatus) ([]model.FineTotals, error) {
	type key struct {
		kind   model.FineKind
		status model.FineStatus
	}
	groups := make(map[key]*model.FineTotals)
	err := s.view(ctx, func(st *state) error {
		for _, f := range st.fines {
			if len(statuses) > 0 && !slices.Contains(statuses, f.Status) {
				continue
			}
			k := key{f.Kind, f.Status}
			t, ok := groups[k]
			if !ok {
				t = &model.FineTotals{Kind: f.Kind, Status: f.Status}
				groups[k] = t
			}
			t.Count++
			t.Assessed += f.AmountAssessed
			t.Paid += f.AmountPaid
			t.Outstanding += f.Outstanding()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := make([]model.FineTotals, 0, len(groups))
	for _, t := range groups {
		res = append(res, *t)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Kind != res[j].Kind {
			return res[i].Kind < res[j].Kind
		}
		return res[i].Status < res[j].Status
	})
	return res, nil
}

// OverdueTotals сводит активные просроченные выдачи.
func (s *Store) OverdueTotals(ctx context.Context, now time.Time) (model.OverdueTotals, error) {
	var t model.OverdueTotals
	err := s.view(ctx, func(st *state) error {
		for _, l := range st.loans {
			if l.Status != model.LoanStatusActive || !l.DueDate.Before(now) {
				continue
			}
			days := model.DaysOverdue(l.DueDate, now)
			t.Loans++
			t.TotalDaysOverdue += days
			t.MaxDaysOverdue = max(t.MaxDaysOverdue, days)
		}
		return nil
	})
	return t, err
}

func limit[T any](values []T, n int) []T {
	if n <= 0 || n > 500 {
		n = 500
	}
	if len(values) > n {
		return values[:n]
	}
	return values
}
