package model

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// FineStatus описывает состояние штрафа.
type FineStatus string

const (
	FineStatusUnpaid FineStatus = "unpaid"
	FineStatusPaid   FineStatus = "paid"
	FineStatusWaived FineStatus = "waived"
)

// FineKind описывает основание штрафа.
type FineKind string

const (
	FineKindOverdue FineKind = "overdue"
	FineKindLost    FineKind = "lost"
)

// Fine описывает запись в журнале штрафов. Суммы в копейках.
type Fine struct {
	ID             uuid.UUID
	LoanID         uuid.UUID
	PatronID       uuid.UUID
	Kind           FineKind
	AmountAssessed int64
	AmountPaid     int64
	DaysOverdue    int
	Status         FineStatus
	AssessedAt     time.Time
	WaivedBy       string
	WaiveReason    string
}

// FinePayment описывает отдельный платёж по штрафу.
type FinePayment struct {
	ID        uuid.UUID
	FineID    uuid.UUID
	Amount    int64
	Method    string
	Reference string
	PaidAt    time.Time
}

// Outstanding возвращает неоплаченный остаток.
func (f Fine) Outstanding() int64 {
	if f.Status != FineStatusUnpaid {
		return 0
	}
	return f.AmountAssessed - f.AmountPaid
}

// DaysOverdue возвращает число начатых суток просрочки.
func DaysOverdue(due, checkin time.Time) int {
	if !checkin.After(due) {
		return 0
	}
	return int(math.Ceil(checkin.Sub(due).Hours() / 24))
}

// OverdueAmount рассчитывает сумму штрафа за просрочку с учётом потолка.
func OverdueAmount(days int, policy Policy) int64 {
	amount := int64(days) * policy.FineRatePerDay
	if amount > policy.FineCap {
		return policy.FineCap
	}
	return amount
}

// NewOverdueFine создаёт штраф за возврат после срока. Возвращает false, если просрочки нет.
func NewOverdueFine(loan Loan, policy Policy) (Fine, bool) {
	if loan.CheckinDate == nil {
		return Fine{}, false
	}
	days := DaysOverdue(loan.DueDate, *loan.CheckinDate)
	if days == 0 {
		return Fine{}, false
	}
	amount := OverdueAmount(days, policy)
	if amount <= 0 {
		return Fine{}, false
	}
	return Fine{
		ID:             uuid.New(),
		LoanID:         loan.ID,
		PatronID:       loan.PatronID,
		Kind:           FineKindOverdue,
		AmountAssessed: amount,
		DaysOverdue:    days,
		Status:         FineStatusUnpaid,
		AssessedAt:     *loan.CheckinDate,
	}, true
}

// NewLostFine создаёт штраф за утерянный экземпляр в размере потолка категории.
func NewLostFine(loan Loan, policy Policy, now time.Time) (Fine, bool) {
	if policy.FineCap <= 0 {
		return Fine{}, false
	}
	return Fine{
		ID:             uuid.New(),
		LoanID:         loan.ID,
		PatronID:       loan.PatronID,
		Kind:           FineKindLost,
		AmountAssessed: policy.FineCap,
		DaysOverdue:    DaysOverdue(loan.DueDate, now),
		Status:         FineStatusUnpaid,
		AssessedAt:     now,
	}, true
}

// Pay учитывает платёж.
func (f *Fine) Pay(amount int64) error {
	if f.Status != FineStatusUnpaid {
		return ErrAlreadyResolved
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if f.AmountPaid+amount > f.AmountAssessed {
		return ErrOverpaymentNotAllowed
	}
	f.AmountPaid += amount
	if f.AmountPaid >= f.AmountAssessed {
		f.Status = FineStatusPaid
	}
	return nil
}

// Waive списывает штраф. Уже внесённая сумма сохраняется.
func (f *Fine) Waive(by, reason string) error {
	if f.Status != FineStatusUnpaid {
		return ErrAlreadyResolved
	}
	f.Status = FineStatusWaived
	f.WaivedBy = by
	f.WaiveReason = reason
	return nil
}
