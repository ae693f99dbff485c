// Package model содержит доменные сущности сервиса книговыдачи.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Item описывает фонд экземпляров одного каталожного издания.
type Item struct {
	ID              uuid.UUID
	Barcode         string
	Title           string
	TotalCopies     int
	AvailableCopies int
	UpdatedAt       time.Time
}

// PatronStatus описывает статус читателя.
type PatronStatus string

const (
	PatronStatusActive    PatronStatus = "active"
	PatronStatusSuspended PatronStatus = "suspended"
)

// SuspensionReasonFines означает автоматическую блокировку за неоплаченные штрафы.
const SuspensionReasonFines = "fines"

// Patron представляет читателя библиотеки.
type Patron struct {
	ID               uuid.UUID
	CategoryID       string
	Status           PatronStatus
	SuspensionReason string
	CreatedAt        time.Time
}

// CanBorrow сообщает, может ли читатель брать и продлевать издания.
func (p Patron) CanBorrow() bool {
	return p.Status == PatronStatusActive
}

// Policy содержит правила выдачи для категории читателей. Денежные суммы хранятся в копейках.
type Policy struct {
	CategoryID     string
	BorrowLimit    int
	LoanPeriodDays int
	RenewalLimit   int
	FineRatePerDay int64
	FineCap        int64
	HoldExpiryDays int
	FineCeiling    int64
}

// LoanPeriod возвращает срок выдачи.
func (p Policy) LoanPeriod() time.Duration {
	return time.Duration(p.LoanPeriodDays) * 24 * time.Hour
}

// HoldExpiry возвращает срок хранения готовой брони.
func (p Policy) HoldExpiry() time.Duration {
	return time.Duration(p.HoldExpiryDays) * 24 * time.Hour
}

// Validate проверяет корректность значений политики.
func (p Policy) Validate() error {
	switch {
	case p.CategoryID == "":
		return ErrInvalidPolicy
	case p.BorrowLimit < 0, p.LoanPeriodDays <= 0, p.RenewalLimit < 0:
		return ErrInvalidPolicy
	case p.FineRatePerDay < 0, p.FineCap < 0, p.FineCeiling < 0:
		return ErrInvalidPolicy
	case p.HoldExpiryDays <= 0:
		return ErrInvalidPolicy
	}
	return nil
}

// PatronSummary объединяет данные читателя для портала.
type PatronSummary struct {
	Patron       Patron
	ActiveLoans  int
	OpenHolds    int
	UnpaidAmount int64
}
