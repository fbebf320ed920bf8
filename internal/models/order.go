package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusCanceled OrderStatus = "canceled"
)

// FeeTypePayment marks fees charged for the chosen payment method. Payment
// fees are billed up front on the first installment, never split.
const FeeTypePayment = "payment"

// Order is the ticket order an installment plan belongs to. The checkout
// that creates orders lives outside this service; the engine only reads
// orders and cancels them when a plan's grace period expires.
type Order struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Code      string          `gorm:"type:varchar(50);uniqueIndex" json:"code"`
	Secret    string          `gorm:"type:varchar(64)" json:"-"`
	Email     string          `gorm:"type:varchar(255)" json:"email"`
	Total     decimal.Decimal `gorm:"type:decimal(15,2)" json:"total"`
	EventDate time.Time       `json:"event_date"`
	Status    OrderStatus     `gorm:"type:varchar(20);default:'pending'" json:"status"`

	// Relationships
	Fees     []OrderFee       `gorm:"foreignKey:OrderID" json:"fees,omitempty"`
	Payments []OrderPayment   `gorm:"foreignKey:OrderID" json:"payments,omitempty"`
	Plan     *InstallmentPlan `gorm:"foreignKey:OrderID" json:"plan,omitempty"`
}

// PaymentFeeTotal sums the payment-type fees on the order. Requires Fees to
// be preloaded.
func (o Order) PaymentFeeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, fee := range o.Fees {
		if fee.FeeType == FeeTypePayment {
			total = total.Add(fee.Amount)
		}
	}
	return total
}

// OrderFee is a surcharge attached to an order, e.g. a payment method fee
type OrderFee struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	OrderID uint            `gorm:"index" json:"order_id"`
	FeeType string          `gorm:"type:varchar(50)" json:"fee_type"`
	Amount  decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount"`
}

// PaymentState represents the confirmation state of an order payment
type PaymentState string

const (
	PaymentStateCreated   PaymentState = "created"
	PaymentStateConfirmed PaymentState = "confirmed"
	PaymentStateFailed    PaymentState = "failed"
)

// OrderPayment records one payment attempt against an order. Each executed
// installment produces exactly one payment row.
type OrderPayment struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	OrderID     uint            `gorm:"index" json:"order_id"`
	Provider    string          `gorm:"type:varchar(100)" json:"provider"`
	Amount      decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount"`
	State       PaymentState    `gorm:"type:varchar(20);default:'created'" json:"state"`
	PaymentDate *time.Time      `json:"payment_date"`
	Info        json.RawMessage `gorm:"type:jsonb" json:"info,omitempty"`
}

// OrderLogEntry is the audit trail for engine-driven order events: sent
// mails, grace warnings, plan cancellations and completions.
type OrderLogEntry struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	OrderID uint                   `gorm:"index" json:"order_id"`
	LogType string                 `gorm:"type:varchar(100)" json:"log_type"`
	Message string                 `gorm:"type:text" json:"message"`
	Data    map[string]interface{} `gorm:"serializer:json" json:"data,omitempty"`
}
