package apikey

import (
	"time"

	"github.com/lib/pq"
)

const (
	// ScopeIntake allows submitting evidence. Gateway processes forwarding
	// participant messages hold intake-only keys.
	ScopeIntake = "intake"
	// ScopeOperator allows roster changes, adjustments, sweeps and exports.
	ScopeOperator = "operator"
)

const (
	StatusActive  = "active"
	StatusRevoked = "revoked"
)

type APIKey struct {
	ID         string         `gorm:"column:id;primaryKey"`
	KeyID      string         `gorm:"column:key_id;uniqueIndex;not null"` // e.g. adv_k3v9x2
	SecretHash string         `gorm:"column:secret_hash;not null"`
	Scopes     pq.StringArray `gorm:"column:scopes;type:text[];not null"`
	Status     string         `gorm:"column:status;default:'active';not null"`
	CreatedBy  *string        `gorm:"column:created_by"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	LastUsedAt *time.Time     `gorm:"column:last_used_at"`
}

func (APIKey) TableName() string {
	return "api_keys"
}
