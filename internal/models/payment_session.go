package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// PaymentSession tracks an in-flight checkout with the payment provider,
// created when the manual recovery flow prepares a charge that confirms
// asynchronously. The provider callback resolves the session back to its
// plan and installment.
type PaymentSession struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	PlanID           uint            `gorm:"index" json:"plan_id"`
	InstallmentID    uint            `gorm:"index" json:"installment_id"`
	Provider         string          `gorm:"type:varchar(100);not null" json:"provider"`
	OrderRef         string          `gorm:"type:varchar(100);index" json:"order_ref"`
	IsActive         bool            `gorm:"default:true" json:"is_active"`
	RequestMetadata  json.RawMessage `gorm:"type:jsonb" json:"request_metadata"`
	ResponseMetadata json.RawMessage `gorm:"type:jsonb" json:"response_metadata"`
}
