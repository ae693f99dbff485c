package model

import "errors"

// Ошибки допуска читателя. Повторять запрос бессмысленно.
var (
	ErrPatronSuspended   = errors.New("patron suspended")
	ErrLoanLimitExceeded = errors.New("loan limit exceeded")
	ErrFinesOutstanding  = errors.New("fines outstanding")
)

// Ошибки доступности: клиенту следует выбрать альтернативную операцию (бронь или выдачу).
var (
	ErrItemUnavailable = errors.New("item unavailable")
	ErrDuplicateHold   = errors.New("duplicate hold")
	ErrItemAvailable   = errors.New("item available")
	ErrOutOfStock      = errors.New("out of stock")
)

// Ошибки состояния означают устаревшее представление клиента.
var (
	ErrLoanNotActive         = errors.New("loan not active")
	ErrLoanNotFound          = errors.New("loan not found")
	ErrAlreadyResolved       = errors.New("fine already resolved")
	ErrAlreadyOverdue        = errors.New("loan already overdue")
	ErrRenewalLimitExceeded  = errors.New("renewal limit exceeded")
	ErrHoldPending           = errors.New("hold pending on item")
	ErrOverpaymentNotAllowed = errors.New("overpayment not allowed")
	ErrHoldNotOpen           = errors.New("hold not open")
	ErrInvalidHoldTransition = errors.New("invalid hold transition")
	ErrCopiesInUse           = errors.New("copies in use")
)

// Ошибки поиска.
var (
	ErrPatronNotFound = errors.New("patron not found")
	ErrItemNotFound   = errors.New("item not found")
	ErrHoldNotFound   = errors.New("hold not found")
	ErrFineNotFound   = errors.New("fine not found")
	ErrPolicyNotFound = errors.New("policy not found")
)

// Ошибки валидации входных данных.
var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidPolicy = errors.New("invalid policy")
	ErrInvalidInput  = errors.New("invalid input")
)

// ErrCatalogUnavailable означает, что внешний каталог временно не отвечает.
var ErrCatalogUnavailable = errors.New("catalog unavailable")

// ErrForbidden означает, что субъект запроса действует не от своего имени.
var ErrForbidden = errors.New("forbidden")

// ErrConflict возвращается при конфликте конкурентного доступа к хранилищу.
// Это единственная ошибка, которую безопасно повторять автоматически.
var ErrConflict = errors.New("concurrency conflict")

// IsEligibility сообщает, является ли ошибка нарушением правил допуска.
func IsEligibility(err error) bool {
	return errors.Is(err, ErrPatronSuspended) ||
		errors.Is(err, ErrLoanLimitExceeded) ||
		errors.Is(err, ErrFinesOutstanding)
}

// IsRetryable сообщает, можно ли повторить операцию.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
