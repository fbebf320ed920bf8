package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// PaymentCallbackHistory keeps the raw payload of every provider
// notification received, for reconciliation and debugging.
type PaymentCallbackHistory struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Provider string          `gorm:"type:varchar(100);not null" json:"provider"`
	OrderRef string          `gorm:"type:varchar(100);index" json:"order_ref"`
	Metadata json.RawMessage `gorm:"type:jsonb" json:"metadata"`
}
