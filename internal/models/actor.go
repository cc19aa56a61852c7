package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role of an actor in the collection hierarchy.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleSubadmin Role = "SUBADMIN"
	RoleManager  Role = "MANAGER"
)

// Actor is a participant that can own ledger accounts. A manager's ParentID
// points at the subadmin that created it; hierarchical transfers are only
// allowed along that edge.
type Actor struct {
	ID             string          `json:"id" db:"id"`
	Name           string          `json:"name" db:"name"`
	Role           Role            `json:"role" db:"role"`
	ParentID       *string         `json:"parent_id,omitempty" db:"parent_id"`
	CommissionRate decimal.Decimal `json:"commission_rate" db:"commission_rate"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}
