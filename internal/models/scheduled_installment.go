package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InstallmentState represents the state of a single scheduled installment
type InstallmentState string

const (
	InstallmentStatePending InstallmentState = "pending"
	InstallmentStatePaid    InstallmentState = "paid"
	InstallmentStateFailed  InstallmentState = "failed"
)

// ScheduledInstallment is one slice of a plan's total, due at a fixed date.
// All rows of a plan are created up front; a failed installment is retried
// in place, never rescheduled or superseded.
type ScheduledInstallment struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	PlanID            uint             `gorm:"index;uniqueIndex:idx_installment_plan_number,priority:1" json:"plan_id"`
	InstallmentNumber int              `gorm:"uniqueIndex:idx_installment_plan_number,priority:2" json:"installment_number"`
	Amount            decimal.Decimal  `gorm:"type:decimal(15,2)" json:"amount"`
	DueDate           time.Time        `gorm:"index" json:"due_date"`
	State             InstallmentState `gorm:"type:varchar(20);default:'pending';index" json:"state"`
	PaymentID         *uint            `json:"payment_id"`
	ProcessedAt       *time.Time       `json:"processed_at"`
	FailureReason     *string          `gorm:"type:text" json:"failure_reason"`

	// Relationships
	Plan    InstallmentPlan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
	Payment *OrderPayment   `gorm:"foreignKey:PaymentID" json:"payment,omitempty"`
}

// MarkPaid records a settled charge against this installment
func (i *ScheduledInstallment) MarkPaid(paymentID uint, now time.Time) {
	i.State = InstallmentStatePaid
	i.PaymentID = &paymentID
	i.ProcessedAt = &now
	i.FailureReason = nil
}

// MarkFailed records a failed charge attempt. Amount and due date stay
// unchanged; the installment is retried in place.
func (i *ScheduledInstallment) MarkFailed(reason string, now time.Time) {
	i.State = InstallmentStateFailed
	i.ProcessedAt = &now
	i.FailureReason = &reason
}
