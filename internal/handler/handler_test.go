package handler

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/circulation-system/internal/middleware"
	"github.com/mmeshcher/circulation-system/internal/model"
	"github.com/mmeshcher/circulation-system/internal/service"
)

type stubService struct {
	err error

	loan     model.Loan
	hold     model.Hold
	fine     model.Fine
	item     model.Item
	patron   model.Patron
	policy   model.Policy
	checkin  service.CheckinResult
	holds    []model.Hold
	loans    []model.Loan
	payments []model.FinePayment
	totals   []model.FineTotals
	overdue  model.OverdueTotals

	gotActor    model.Actor
	gotBarcode  string
	gotItemID   uuid.UUID
	gotCheckin  service.CheckinRequest
	gotPayment  service.Payment
	gotPolicy   model.Policy
	gotStatuses []model.LoanStatus
	gotTotal    int
	gotReason   string
	gotHolds    []model.HoldStatus
	gotFines    []model.FineStatus
	gotLimit    int
}

func (s *stubService) Checkout(_ context.Context, actor model.Actor, _, itemID uuid.UUID) (model.Loan, error) {
	s.gotActor, s.gotItemID = actor, itemID
	return s.loan, s.err
}

func (s *stubService) CheckoutByBarcode(_ context.Context, actor model.Actor, _ uuid.UUID, barcode string) (model.Loan, error) {
	s.gotActor, s.gotBarcode = actor, barcode
	return s.loan, s.err
}

func (s *stubService) Checkin(_ context.Context, _ model.Actor, req service.CheckinRequest) (service.CheckinResult, error) {
	s.gotCheckin = req
	return s.checkin, s.err
}

func (s *stubService) Renew(context.Context, model.Actor, uuid.UUID) (model.Loan, error) {
	return s.loan, s.err
}

func (s *stubService) MarkLost(context.Context, model.Actor, uuid.UUID) (service.LostResult, error) {
	return service.LostResult{Loan: s.loan, Fine: &s.fine}, s.err
}

func (s *stubService) PlaceHold(context.Context, model.Actor, uuid.UUID, uuid.UUID) (model.Hold, error) {
	return s.hold, s.err
}

func (s *stubService) CancelHold(context.Context, model.Actor, uuid.UUID) error {
	return s.err
}

func (s *stubService) ExpireStaleHolds(context.Context) ([]model.Hold, error) {
	return s.holds, s.err
}

func (s *stubService) PayFine(_ context.Context, _ model.Actor, _ uuid.UUID, p service.Payment) (model.Fine, error) {
	s.gotPayment = p
	return s.fine, s.err
}

func (s *stubService) WaiveFine(_ context.Context, _ model.Actor, _ uuid.UUID, reason string) (model.Fine, error) {
	s.gotReason = reason
	return s.fine, s.err
}

func (s *stubService) FinePayments(context.Context, model.Actor, uuid.UUID) ([]model.FinePayment, error) {
	return s.payments, s.err
}

func (s *stubService) PatronSummary(context.Context, uuid.UUID) (model.PatronSummary, error) {
	return model.PatronSummary{Patron: s.patron}, s.err
}

func (s *stubService) PatronLoans(_ context.Context, _ uuid.UUID, statuses []model.LoanStatus) ([]model.Loan, error) {
	s.gotStatuses = statuses
	return s.loans, s.err
}

func (s *stubService) PatronHolds(context.Context, uuid.UUID, []model.HoldStatus) ([]model.Hold, error) {
	return s.holds, s.err
}

func (s *stubService) PatronFines(context.Context, uuid.UUID, []model.FineStatus) ([]model.Fine, error) {
	return []model.Fine{s.fine}, s.err
}

func (s *stubService) RegisterPatron(context.Context, uuid.UUID, string) (model.Patron, error) {
	return s.patron, s.err
}

func (s *stubService) SetPatronStatus(context.Context, uuid.UUID, model.PatronStatus, string) (model.Patron, error) {
	return s.patron, s.err
}

func (s *stubService) Item(_ context.Context, barcode string) (model.Item, error) {
	s.gotBarcode = barcode
	return s.item, s.err
}

func (s *stubService) ItemHolds(context.Context, uuid.UUID) ([]model.Hold, error) {
	return s.holds, s.err
}

func (s *stubService) ItemHistory(context.Context, uuid.UUID, int) ([]model.Loan, error) {
	return s.loans, s.err
}

func (s *stubService) OverdueLoans(context.Context, int) ([]model.Loan, error) {
	return s.loans, s.err
}

func (s *stubService) Loans(_ context.Context, statuses []model.LoanStatus, limit int) ([]model.Loan, error) {
	s.gotStatuses, s.gotLimit = statuses, limit
	return s.loans, s.err
}

func (s *stubService) Holds(_ context.Context, statuses []model.HoldStatus, limit int) ([]model.Hold, error) {
	s.gotHolds, s.gotLimit = statuses, limit
	return s.holds, s.err
}

func (s *stubService) Fines(_ context.Context, statuses []model.FineStatus, limit int) ([]model.Fine, error) {
	s.gotFines, s.gotLimit = statuses, limit
	return []model.Fine{s.fine}, s.err
}

func (s *stubService) FineTotals(_ context.Context, statuses []model.FineStatus) ([]model.FineTotals, error) {
	s.gotFines = statuses
	return s.totals, s.err
}

func (s *stubService) OverdueTotals(context.Context) (model.OverdueTotals, error) {
	return s.overdue, s.err
}

func (s *stubService) UpsertItem(_ context.Context, barcode, _ string, total int) (model.Item, error) {
	s.gotBarcode, s.gotTotal = barcode, total
	return s.item, s.err
}

func (s *stubService) SyncItem(_ context.Context, barcode string) (model.Item, error) {
	s.gotBarcode = barcode
	return s.item, s.err
}

func (s *stubService) Policy(context.Context, string) (model.Policy, error) {
	return s.policy, s.err
}

func (s *stubService) UpsertPolicy(_ context.Context, p model.Policy) error {
	s.gotPolicy = p
	return s.err
}

type testServer struct {
	router http.Handler
	auth   *middleware.AuthMiddleware
}

func newTestServer(t *testing.T, svc Service) *testServer {
	t.Helper()

	auth := middleware.NewAuthMiddleware("test-secret", "circulation", time.Hour)
	h := NewHandler(svc, zap.NewNop(), auth)
	return &testServer{router: h.SetupRouter(), auth: auth}
}

func (s *testServer) do(t *testing.T, actor *model.Actor, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		token, err := s.auth.IssueToken(*actor)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func patronActor() *model.Actor {
	return &model.Actor{ID: uuid.New(), Role: model.RolePatron}
}

func staffActor() *model.Actor {
	return &model.Actor{ID: uuid.New(), Role: model.RoleStaff}
}

func TestCheckout_ByBarcode(t *testing.T) {
	due := time.Date(2025, time.January, 15, 12, 0, 0, 0, time.UTC)
	svc := &stubService{loan: model.Loan{ID: uuid.New(), DueDate: due, Status: model.LoanStatusActive}}
	srv := newTestServer(t, svc)
	actor := patronActor()

	rec := srv.do(t, actor, http.MethodPost, "/api/checkout", map[string]string{
		"patron_id": actor.ID.String(),
		"barcode":   "31234000056786",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "31234000056786", svc.gotBarcode)
	assert.Equal(t, *actor, svc.gotActor)

	resp := decodeBody[loanResponse](t, rec)
	assert.Equal(t, svc.loan.ID.String(), resp.ID)
	assert.Equal(t, "2025-01-15T12:00:00Z", resp.DueDate)
	assert.Equal(t, "active", resp.Status)
}

func TestCheckout_GzipRoundTrip(t *testing.T) {
	svc := &stubService{loan: model.Loan{ID: uuid.New(), Status: model.LoanStatusActive}}
	srv := newTestServer(t, svc)
	actor := patronActor()

	var body bytes.Buffer
	zw := gzip.NewWriter(&body)
	_, err := fmt.Fprintf(zw, `{"patron_id":%q,"barcode":"31234000056786"}`, actor.ID)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	token, err := srv.auth.IssueToken(*actor)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/checkout", &body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "31234000056786", svc.gotBarcode)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	var resp loanResponse
	require.NoError(t, json.NewDecoder(zr).Decode(&resp))
	assert.Equal(t, svc.loan.ID.String(), resp.ID)
}

func TestCheckout_ByItemID(t *testing.T) {
	svc := &stubService{}
	srv := newTestServer(t, svc)
	actor := patronActor()
	itemID := uuid.New()

	rec := srv.do(t, actor, http.MethodPost, "/api/checkout", map[string]string{
		"patron_id": actor.ID.String(),
		"item_id":   itemID.String(),
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, itemID, svc.gotItemID)
	assert.Empty(t, svc.gotBarcode)
}

func TestCheckout_BadRequests(t *testing.T) {
	actor := patronActor()

	tests := []struct {
		name   string
		actor  *model.Actor
		body   any
		status int
	}{
		{name: "no token", body: map[string]string{"patron_id": actor.ID.String(), "barcode": "A-1"}, status: http.StatusUnauthorized},
		{name: "malformed json", actor: actor, body: "{", status: http.StatusBadRequest},
		{name: "missing patron", actor: actor, body: map[string]string{"barcode": "A-1"}, status: http.StatusUnprocessableEntity},
		{name: "missing barcode and item", actor: actor, body: map[string]string{"patron_id": actor.ID.String()}, status: http.StatusUnprocessableEntity},
		{name: "bad check digit", actor: actor, body: map[string]string{"patron_id": actor.ID.String(), "barcode": "31234000056780"}, status: http.StatusUnprocessableEntity},
		{name: "patron not uuid", actor: actor, body: map[string]string{"patron_id": "42", "barcode": "A-1"}, status: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &stubService{})
			rec := srv.do(t, tt.actor, http.MethodPost, "/api/checkout", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err        error
		status     int
		code       string
		retryAfter string
	}{
		{err: model.ErrPatronSuspended, status: http.StatusForbidden, code: "PATRON_SUSPENDED"},
		{err: model.ErrLoanLimitExceeded, status: http.StatusForbidden, code: "LOAN_LIMIT_EXCEEDED"},
		{err: model.ErrFinesOutstanding, status: http.StatusPaymentRequired, code: "FINES_OUTSTANDING"},
		{err: model.ErrItemUnavailable, status: http.StatusConflict, code: "ITEM_UNAVAILABLE"},
		{err: model.ErrForbidden, status: http.StatusForbidden, code: "FORBIDDEN"},
		{err: model.ErrItemNotFound, status: http.StatusNotFound, code: "ITEM_NOT_FOUND"},
		{err: fmt.Errorf("lock patron: %w", model.ErrPatronNotFound), status: http.StatusNotFound, code: "PATRON_NOT_FOUND"},
		{err: fmt.Errorf("%w: deadlock detected", model.ErrConflict), status: http.StatusServiceUnavailable, code: "CONFLICT", retryAfter: "1"},
		{err: context.DeadlineExceeded, status: http.StatusInternalServerError, code: "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			srv := newTestServer(t, &stubService{err: tt.err})
			actor := patronActor()

			rec := srv.do(t, actor, http.MethodPost, "/api/checkout", map[string]string{
				"patron_id": actor.ID.String(),
				"barcode":   "A-1",
			})

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.retryAfter, rec.Header().Get("Retry-After"))
			resp := decodeBody[errorResponse](t, rec)
			assert.Equal(t, tt.code, resp.Error)
		})
	}
}

func TestCheckin_WithFineAndPromotion(t *testing.T) {
	loanID := uuid.New()
	svc := &stubService{checkin: service.CheckinResult{
		Loan:         model.Loan{ID: loanID, Status: model.LoanStatusReturned},
		Fine:         &model.Fine{ID: uuid.New(), AmountAssessed: 50, DaysOverdue: 5, Status: model.FineStatusUnpaid},
		HoldPromoted: &model.Hold{ID: uuid.New(), Status: model.HoldStatusReady},
	}}
	srv := newTestServer(t, svc)

	rec := srv.do(t, staffActor(), http.MethodPost, "/api/checkin", map[string]string{"loan_id": loanID.String()})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, svc.gotCheckin.LoanID)
	assert.Equal(t, loanID, *svc.gotCheckin.LoanID)

	var resp map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "returned", resp["loan"]["status"])
	assert.Equal(t, "0.5", resp["fine"]["amount_assessed"])
	assert.Equal(t, "0.5", resp["fine"]["outstanding"])
	assert.Equal(t, "ready", resp["hold_promoted"]["status"])
}

func TestCheckin_RequiresLoanOrBarcode(t *testing.T) {
	srv := newTestServer(t, &stubService{})
	rec := srv.do(t, staffActor(), http.MethodPost, "/api/checkin", map[string]string{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPayFine(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		cents  int64
	}{
		{name: "decimal amount", body: `{"amount": 12.34, "method": "cash"}`, status: http.StatusOK, cents: 1234},
		{name: "string amount", body: `{"amount": "0.20"}`, status: http.StatusOK, cents: 20},
		{name: "fraction of a cent", body: `{"amount": 0.001}`, status: http.StatusUnprocessableEntity},
		{name: "zero", body: `{"amount": 0}`, status: http.StatusUnprocessableEntity},
		{name: "negative", body: `{"amount": -1}`, status: http.StatusUnprocessableEntity},
		{name: "beyond int64 cents", body: `{"amount": "184467440737095516.66"}`, status: http.StatusUnprocessableEntity},
		{name: "largest representable", body: `{"amount": "92233720368547758.07"}`, status: http.StatusOK, cents: math.MaxInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{fine: model.Fine{ID: uuid.New(), AmountAssessed: 5000, Status: model.FineStatusUnpaid}}
			srv := newTestServer(t, svc)

			rec := srv.do(t, patronActor(), http.MethodPost, "/api/fines/"+svc.fine.ID.String()+"/pay", tt.body)

			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.cents, svc.gotPayment.Amount)
		})
	}
}

func TestWaiveFine(t *testing.T) {
	tests := []struct {
		name   string
		body   any
		status int
		reason string
	}{
		{name: "without body", body: nil, status: http.StatusOK},
		{name: "empty object", body: "{}", status: http.StatusOK},
		{name: "with reason", body: `{"reason": "book returned to drop box"}`, status: http.StatusOK, reason: "book returned to drop box"},
		{name: "malformed body", body: `{"reason":`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{fine: model.Fine{ID: uuid.New(), AmountAssessed: 500, Status: model.FineStatusWaived}}
			srv := newTestServer(t, svc)

			rec := srv.do(t, staffActor(), http.MethodPost, "/api/fines/"+svc.fine.ID.String()+"/waive", tt.body)

			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.reason, svc.gotReason)
		})
	}
}

func TestStaffRoutesRejectPatrons(t *testing.T) {
	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/loans/" + uuid.NewString() + "/lost"},
		{http.MethodGet, "/api/loans/overdue"},
		{http.MethodPost, "/api/holds/expire"},
		{http.MethodPost, "/api/fines/" + uuid.NewString() + "/waive"},
		{http.MethodPut, "/api/items"},
		{http.MethodPut, "/api/policies/standard"},
		{http.MethodPut, "/api/patrons/" + uuid.NewString()},
		{http.MethodGet, "/api/items/" + uuid.NewString() + "/history"},
	}

	srv := newTestServer(t, &stubService{})
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rec := srv.do(t, patronActor(), rt.method, rt.path, "{}")
			assert.Equal(t, http.StatusForbidden, rec.Code)
		})
	}
}

func TestGetPatron_OwnOnly(t *testing.T) {
	self := patronActor()
	svc := &stubService{patron: model.Patron{ID: self.ID, CategoryID: "standard", Status: model.PatronStatusActive}}
	srv := newTestServer(t, svc)

	rec := srv.do(t, self, http.MethodGet, "/api/patrons/"+self.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[patronResponse](t, rec)
	assert.Equal(t, "standard", resp.CategoryID)

	rec = srv.do(t, patronActor(), http.MethodGet, "/api/patrons/"+self.ID.String(), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(t, staffActor(), http.MethodGet, "/api/patrons/"+self.ID.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetPatronLoans_StatusFilter(t *testing.T) {
	self := patronActor()
	svc := &stubService{loans: []model.Loan{}}
	srv := newTestServer(t, svc)

	rec := srv.do(t, self, http.MethodGet, "/api/patrons/"+self.ID.String()+"/loans?status=active,lost", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []model.LoanStatus{model.LoanStatusActive, model.LoanStatusLost}, svc.gotStatuses)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = srv.do(t, self, http.MethodGet, "/api/patrons/"+self.ID.String()+"/loans?status=borrowed", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelHold(t *testing.T) {
	srv := newTestServer(t, &stubService{})
	rec := srv.do(t, patronActor(), http.MethodDelete, "/api/holds/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = srv.do(t, patronActor(), http.MethodDelete, "/api/holds/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpsertPolicy(t *testing.T) {
	svc := &stubService{}
	srv := newTestServer(t, svc)

	rec := srv.do(t, staffActor(), http.MethodPut, "/api/policies/researcher", `{
		"borrow_limit": 20,
		"loan_period_days": 28,
		"renewal_limit": 3,
		"fine_rate_per_day": "0.10",
		"fine_cap": 1,
		"hold_expiry_days": 7,
		"fine_ceiling": 1
	}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.Policy{
		CategoryID:     "researcher",
		BorrowLimit:    20,
		LoanPeriodDays: 28,
		RenewalLimit:   3,
		FineRatePerDay: 10,
		FineCap:        100,
		HoldExpiryDays: 7,
		FineCeiling:    100,
	}, svc.gotPolicy)

	rec = srv.do(t, staffActor(), http.MethodPut, "/api/policies/researcher", `{"loan_period_days": 0, "hold_expiry_days": 7}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUpsertItem(t *testing.T) {
	svc := &stubService{item: model.Item{ID: uuid.New(), Barcode: "QA-76", TotalCopies: 0}}
	srv := newTestServer(t, svc)

	rec := srv.do(t, staffActor(), http.MethodPut, "/api/items", `{"barcode": "QA-76", "total_copies": 0}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "QA-76", svc.gotBarcode)
	assert.Equal(t, 0, svc.gotTotal)

	rec = srv.do(t, staffActor(), http.MethodPut, "/api/items", `{"barcode": "QA-76"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSyncItem_CatalogUnavailable(t *testing.T) {
	srv := newTestServer(t, &stubService{err: model.ErrCatalogUnavailable})

	rec := srv.do(t, staffActor(), http.MethodPost, "/api/items/barcode/79927398713/sync", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
}

func TestGetItem_ByBarcode(t *testing.T) {
	svc := &stubService{item: model.Item{ID: uuid.New(), Barcode: "QA-76", Title: "Dune", TotalCopies: 2, AvailableCopies: 1}}
	srv := newTestServer(t, svc)

	rec := srv.do(t, patronActor(), http.MethodGet, "/api/items/barcode/QA-76", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[itemResponse](t, rec)
	assert.Equal(t, 1, resp.AvailableCopies)
	assert.Equal(t, "QA-76", svc.gotBarcode)
}

func TestNotFoundRoute(t *testing.T) {
	srv := newTestServer(t, &stubService{})
	rec := srv.do(t, nil, http.MethodGet, "/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaffListings(t *testing.T) {
	svc := &stubService{
		loans: []model.Loan{{ID: uuid.New(), Status: model.LoanStatusActive}},
		holds: []model.Hold{{ID: uuid.New(), Status: model.HoldStatusReady}},
		fine:  model.Fine{ID: uuid.New(), AmountAssessed: 250, Status: model.FineStatusUnpaid},
	}
	srv := newTestServer(t, svc)

	rec := srv.do(t, staffActor(), http.MethodGet, "/api/loans?status=active&limit=20", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []model.LoanStatus{model.LoanStatusActive}, svc.gotStatuses)
	assert.Equal(t, 20, svc.gotLimit)
	assert.Len(t, decodeBody[[]loanResponse](t, rec), 1)

	rec = srv.do(t, staffActor(), http.MethodGet, "/api/holds?status=waiting,ready", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []model.HoldStatus{model.HoldStatusWaiting, model.HoldStatusReady}, svc.gotHolds)

	rec = srv.do(t, staffActor(), http.MethodGet, "/api/fines?status=unpaid", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []model.FineStatus{model.FineStatusUnpaid}, svc.gotFines)
	fines := decodeBody[[]fineResponse](t, rec)
	require.Len(t, fines, 1)
	assert.Equal(t, "2.5", fines[0].Outstanding.String())

	rec = srv.do(t, staffActor(), http.MethodGet, "/api/fines?status=forgiven", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, path := range []string{"/api/loans", "/api/holds", "/api/fines", "/api/fines/summary", "/api/loans/overdue/summary"} {
		rec = srv.do(t, patronActor(), http.MethodGet, path, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}
}

func TestGetFinesSummary(t *testing.T) {
	svc := &stubService{totals: []model.FineTotals{
		{Kind: model.FineKindLost, Status: model.FineStatusUnpaid, Count: 1, Assessed: 10000, Paid: 2500, Outstanding: 7500},
		{Kind: model.FineKindOverdue, Status: model.FineStatusPaid, Count: 2, Assessed: 3000, Paid: 3000},
		{Kind: model.FineKindOverdue, Status: model.FineStatusUnpaid, Count: 1, Assessed: 1000, Outstanding: 1000},
		{Kind: model.FineKindOverdue, Status: model.FineStatusWaived, Count: 1, Assessed: 2000, Paid: 500},
	}}
	srv := newTestServer(t, svc)

	rec := srv.do(t, staffActor(), http.MethodGet, "/api/fines/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[finesSummaryResponse](t, rec)
	assert.Len(t, resp.Groups, 4)
	assert.Equal(t, "85", resp.Unpaid.String())
	assert.Equal(t, "60", resp.Paid.String())
	assert.Equal(t, "15", resp.Waived.String())
	assert.Empty(t, svc.gotFines)
}

func TestGetOverdueSummary(t *testing.T) {
	svc := &stubService{overdue: model.OverdueTotals{Loans: 4, TotalDaysOverdue: 10, MaxDaysOverdue: 6}}
	srv := newTestServer(t, svc)

	rec := srv.do(t, staffActor(), http.MethodGet, "/api/loans/overdue/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[overdueSummaryResponse](t, rec)
	assert.Equal(t, 4, resp.TotalOverdue)
	assert.Equal(t, 10, resp.TotalDaysOverdue)
	assert.InDelta(t, 2.5, resp.AvgDaysOverdue, 1e-9)
	assert.Equal(t, 6, resp.MaxDaysOverdue)
}
