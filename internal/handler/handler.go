// Package handler содержит HTTP-обработчики API сервиса книговыдачи.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/circulation-system/internal/middleware"
	"github.com/mmeshcher/circulation-system/internal/model"
	"github.com/mmeshcher/circulation-system/internal/service"
	"github.com/mmeshcher/circulation-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Checkout(ctx context.Context, actor model.Actor, patronID, itemID uuid.UUID) (model.Loan, error)
	CheckoutByBarcode(ctx context.Context, actor model.Actor, patronID uuid.UUID, barcode string) (model.Loan, error)
	Checkin(ctx context.Context, actor model.Actor, req service.CheckinRequest) (service.CheckinResult, error)
	Renew(ctx context.Context, actor model.Actor, loanID uuid.UUID) (model.Loan, error)
	MarkLost(ctx context.Context, actor model.Actor, loanID uuid.UUID) (service.LostResult, error)

	PlaceHold(ctx context.Context, actor model.Actor, patronID, itemID uuid.UUID) (model.Hold, error)
	CancelHold(ctx context.Context, actor model.Actor, holdID uuid.UUID) error
	ExpireStaleHolds(ctx context.Context) ([]model.Hold, error)

	PayFine(ctx context.Context, actor model.Actor, fineID uuid.UUID, p service.Payment) (model.Fine, error)
	WaiveFine(ctx context.Context, actor model.Actor, fineID uuid.UUID, reason string) (model.Fine, error)
	FinePayments(ctx context.Context, actor model.Actor, fineID uuid.UUID) ([]model.FinePayment, error)

	PatronSummary(ctx context.Context, patronID uuid.UUID) (model.PatronSummary, error)
	PatronLoans(ctx context.Context, patronID uuid.UUID, statuses []model.LoanStatus) ([]model.Loan, error)
	PatronHolds(ctx context.Context, patronID uuid.UUID, statuses []model.HoldStatus) ([]model.Hold, error)
	PatronFines(ctx context.Context, patronID uuid.UUID, statuses []model.FineStatus) ([]model.Fine, error)
	RegisterPatron(ctx context.Context, id uuid.UUID, categoryID string) (model.Patron, error)
	SetPatronStatus(ctx context.Context, id uuid.UUID, status model.PatronStatus, reason string) (model.Patron, error)

	Item(ctx context.Context, barcode string) (model.Item, error)
	ItemHolds(ctx context.Context, itemID uuid.UUID) ([]model.Hold, error)
	ItemHistory(ctx context.Context, itemID uuid.UUID, limit int) ([]model.Loan, error)
	OverdueLoans(ctx context.Context, limit int) ([]model.Loan, error)
	Loans(ctx context.Context, statuses []model.LoanStatus, limit int) ([]model.Loan, error)
	Holds(ctx context.Context, statuses []model.HoldStatus, limit int) ([]model.Hold, error)
	Fines(ctx context.Context, statuses []model.FineStatus, limit int) ([]model.Fine, error)
	FineTotals(ctx context.Context, statuses []model.FineStatus) ([]model.FineTotals, error)
	OverdueTotals(ctx context.Context) (model.OverdueTotals, error)
	UpsertItem(ctx context.Context, barcode, title string, total int) (model.Item, error)
	SyncItem(ctx context.Context, barcode string) (model.Item, error)

	Policy(ctx context.Context, categoryID string) (model.Policy, error)
	UpsertPolicy(ctx context.Context, p model.Policy) error
}

// Handler реализует HTTP-обработчики API сервиса книговыдачи.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	validate       *validator.Validate
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("barcode", func(fl validator.FieldLevel) bool {
		return validation.IsValidBarcode(fl.Field().String())
	})

	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		validate:       v,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorMappings задаёт HTTP-статус и код для доменных ошибок. Порядок важен:
// первая совпавшая запись побеждает.
var errorMappings = []errorMapping{
	{model.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{model.ErrPatronSuspended, http.StatusForbidden, "PATRON_SUSPENDED"},
	{model.ErrLoanLimitExceeded, http.StatusForbidden, "LOAN_LIMIT_EXCEEDED"},
	{model.ErrFinesOutstanding, http.StatusPaymentRequired, "FINES_OUTSTANDING"},

	{model.ErrItemUnavailable, http.StatusConflict, "ITEM_UNAVAILABLE"},
	{model.ErrOutOfStock, http.StatusConflict, "ITEM_UNAVAILABLE"},
	{model.ErrDuplicateHold, http.StatusConflict, "DUPLICATE_HOLD"},
	{model.ErrItemAvailable, http.StatusConflict, "ITEM_AVAILABLE"},
	{model.ErrLoanNotActive, http.StatusConflict, "LOAN_NOT_ACTIVE"},
	{model.ErrAlreadyResolved, http.StatusConflict, "ALREADY_RESOLVED"},
	{model.ErrAlreadyOverdue, http.StatusConflict, "ALREADY_OVERDUE"},
	{model.ErrRenewalLimitExceeded, http.StatusConflict, "RENEWAL_LIMIT_EXCEEDED"},
	{model.ErrHoldPending, http.StatusConflict, "HOLD_PENDING"},
	{model.ErrOverpaymentNotAllowed, http.StatusConflict, "OVERPAYMENT_NOT_ALLOWED"},
	{model.ErrHoldNotOpen, http.StatusConflict, "HOLD_NOT_OPEN"},
	{model.ErrInvalidHoldTransition, http.StatusConflict, "HOLD_NOT_OPEN"},
	{model.ErrCopiesInUse, http.StatusConflict, "COPIES_IN_USE"},

	{model.ErrPatronNotFound, http.StatusNotFound, "PATRON_NOT_FOUND"},
	{model.ErrItemNotFound, http.StatusNotFound, "ITEM_NOT_FOUND"},
	{model.ErrLoanNotFound, http.StatusNotFound, "LOAN_NOT_FOUND"},
	{model.ErrHoldNotFound, http.StatusNotFound, "HOLD_NOT_FOUND"},
	{model.ErrFineNotFound, http.StatusNotFound, "FINE_NOT_FOUND"},
	{model.ErrPolicyNotFound, http.StatusNotFound, "POLICY_NOT_FOUND"},

	{model.ErrInvalidAmount, http.StatusUnprocessableEntity, "INVALID_AMOUNT"},
	{model.ErrInvalidPolicy, http.StatusUnprocessableEntity, "INVALID_POLICY"},
	{model.ErrInvalidInput, http.StatusUnprocessableEntity, "INVALID_INPUT"},

	{model.ErrConflict, http.StatusServiceUnavailable, "CONFLICT"},
	{model.ErrCatalogUnavailable, http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE"},
}

const (
	conflictRetryAfter = "1"
	catalogRetryAfter  = "5"
)

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.err) {
			continue
		}
		switch m.err {
		case model.ErrConflict:
			w.Header().Set("Retry-After", conflictRetryAfter)
			h.logger.Warn("request conflict", zap.String("path", r.URL.Path), zap.Error(err))
		case model.ErrCatalogUnavailable:
			w.Header().Set("Retry-After", catalogRetryAfter)
		}
		if model.IsEligibility(err) {
			h.logger.Info("patron not eligible", zap.String("path", r.URL.Path), zap.Error(err))
		}
		writeJSON(w, m.status, errorResponse{Error: m.code, Message: err.Error()})
		return
	}

	h.logger.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Error:   "INTERNAL",
		Message: http.StatusText(http.StatusInternalServerError),
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "BAD_REQUEST", Message: message})
}

func writeValidationError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "VALIDATION_FAILED", Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// decode читает JSON-тело и проверяет его теги validate. Ответ с ошибкой уже
// записан, если вернулось false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	return h.decodeBody(w, r, dst, false)
}

// decodeOptional разбирает тело запроса, допуская его отсутствие.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	return h.decodeBody(w, r, dst, true)
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	defer r.Body.Close()

	err := json.NewDecoder(r.Body).Decode(dst)
	if optional && errors.Is(err, io.EOF) {
		err = nil
	}
	if err != nil {
		writeBadRequest(w, "malformed JSON body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

// actor возвращает субъекта запроса, положенного в контекст AuthMiddleware.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return model.Actor{}, false
	}
	return actor, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeBadRequest(w, name+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeBadRequest(w, "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}
