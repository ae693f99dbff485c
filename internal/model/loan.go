package model

import (
	"time"

	"github.com/google/uuid"
)

// LoanStatus описывает состояние выдачи.
type LoanStatus string

const (
	LoanStatusActive   LoanStatus = "active"
	LoanStatusReturned LoanStatus = "returned"
	LoanStatusLost     LoanStatus = "lost"
)

// Loan описывает выдачу одного экземпляра читателю.
type Loan struct {
	ID           uuid.UUID
	PatronID     uuid.UUID
	ItemID       uuid.UUID
	CheckoutDate time.Time
	DueDate      time.Time
	CheckinDate  *time.Time
	RenewalCount int
	Status       LoanStatus
}

// NewLoan создаёт активную выдачу со сроком возврата по политике категории.
func NewLoan(patronID, itemID uuid.UUID, now time.Time, policy Policy) Loan {
	return Loan{
		ID:           uuid.New(),
		PatronID:     patronID,
		ItemID:       itemID,
		CheckoutDate: now,
		DueDate:      now.Add(policy.LoanPeriod()),
		Status:       LoanStatusActive,
	}
}

// IsActive сообщает, находится ли экземпляр у читателя.
func (l Loan) IsActive() bool {
	return l.Status == LoanStatusActive
}

// IsOverdue сообщает, просрочена ли выдача на момент now.
func (l Loan) IsOverdue(now time.Time) bool {
	return now.After(l.DueDate)
}

// Return переводит выдачу в состояние returned.
func (l *Loan) Return(at time.Time) error {
	if !l.IsActive() {
		return ErrLoanNotActive
	}
	l.Status = LoanStatusReturned
	l.CheckinDate = &at
	return nil
}

// MarkLost переводит активную выдачу в состояние lost.
func (l *Loan) MarkLost(at time.Time) error {
	if !l.IsActive() {
		return ErrLoanNotActive
	}
	l.Status = LoanStatusLost
	l.CheckinDate = &at
	return nil
}

// Renew продлевает выдачу на один срок. Наличие броней проверяет вызывающий код.
func (l *Loan) Renew(now time.Time, policy Policy) error {
	if !l.IsActive() {
		return ErrLoanNotActive
	}
	if l.RenewalCount >= policy.RenewalLimit {
		return ErrRenewalLimitExceeded
	}
	if l.IsOverdue(now) {
		return ErrAlreadyOverdue
	}
	l.DueDate = l.DueDate.Add(policy.LoanPeriod())
	l.RenewalCount++
	return nil
}
