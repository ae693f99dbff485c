package model

import (
	"time"

	"github.com/google/uuid"
)

// LoanFilter задаёт выборку выдач для проекций портала и отчётов.
type LoanFilter struct {
	PatronID  *uuid.UUID
	ItemID    *uuid.UUID
	Statuses  []LoanStatus
	OverdueAt *time.Time
	Limit     int
}

// HoldFilter задаёт выборку броней.
type HoldFilter struct {
	PatronID *uuid.UUID
	ItemID   *uuid.UUID
	Statuses []HoldStatus
	Limit    int
}

// FineFilter задаёт выборку штрафов.
type FineFilter struct {
	PatronID *uuid.UUID
	Statuses []FineStatus
	Limit    int
}

// OpenHoldStatuses перечисляет состояния броней, занимающих место в очереди.
var OpenHoldStatuses = []HoldStatus{HoldStatusWaiting, HoldStatusReady}
