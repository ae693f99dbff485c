package model

import "github.com/google/uuid"

// Role описывает роль субъекта запроса.
type Role string

const (
	RolePatron Role = "patron"
	RoleStaff  Role = "staff"
)

// Actor описывает проверенного субъекта, от имени которого выполняется операция.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// IsStaff сообщает, является ли субъект сотрудником библиотеки.
func (a Actor) IsStaff() bool {
	return a.Role == RoleStaff
}

// CanActFor сообщает, может ли субъект действовать от имени читателя.
func (a Actor) CanActFor(patronID uuid.UUID) bool {
	return a.IsStaff() || a.ID == patronID
}

// System возвращает субъекта для фоновых задач.
func System() Actor {
	return Actor{Role: RoleStaff}
}
