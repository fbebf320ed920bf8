package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InstallmentPlanStatus represents the lifecycle state of a plan
type InstallmentPlanStatus string

const (
	InstallmentPlanStatusActive    InstallmentPlanStatus = "active"
	InstallmentPlanStatusCompleted InstallmentPlanStatus = "completed"
)

// InstallmentPlan splits an order's total into a schedule of future
// payments charged against a stored provider token. One plan per order.
type InstallmentPlan struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	OrderID         uint              `gorm:"uniqueIndex" json:"order_id"`
	PaymentProvider string            `gorm:"type:varchar(100)" json:"payment_provider"`
	PaymentToken    map[string]string `gorm:"serializer:json" json:"-"`

	TotalInstallments    int                   `json:"total_installments"`
	InstallmentsPaid     int                   `json:"installments_paid"`
	AmountPerInstallment decimal.Decimal       `gorm:"type:decimal(15,2)" json:"amount_per_installment"`
	Status               InstallmentPlanStatus `gorm:"type:varchar(20);default:'active'" json:"status"`

	GracePeriodEnd   *time.Time `json:"grace_period_end"`
	GraceWarningSent bool       `gorm:"default:false" json:"grace_warning_sent"`

	// Relationships
	Order        Order                  `gorm:"foreignKey:OrderID" json:"order,omitempty"`
	Installments []ScheduledInstallment `gorm:"foreignKey:PlanID" json:"installments,omitempty"`
}

// HasPaymentToken reports whether a charge token is stored on the plan
func (p *InstallmentPlan) HasPaymentToken() bool {
	return len(p.PaymentToken) > 0
}

// RecordSuccessfulPayment increments the paid counter and transitions the
// plan to completed once every installment is paid. It is the single point
// of truth for the completion transition; callers must hold the plan row
// lock. Returns true when the plan just completed.
func (p *InstallmentPlan) RecordSuccessfulPayment() bool {
	if p.InstallmentsPaid >= p.TotalInstallments {
		return false
	}
	p.InstallmentsPaid++
	if p.InstallmentsPaid == p.TotalInstallments {
		p.Status = InstallmentPlanStatusCompleted
		return true
	}
	return false
}

// ClearPaymentToken empties the stored token; called after the provider
// token has been revoked or the plan abandoned.
func (p *InstallmentPlan) ClearPaymentToken() {
	p.PaymentToken = map[string]string{}
}

// ClearGracePeriod resets the failure-recovery window and its warning flag
func (p *InstallmentPlan) ClearGracePeriod() {
	p.GracePeriodEnd = nil
	p.GraceWarningSent = false
}
