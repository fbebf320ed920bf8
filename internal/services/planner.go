package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tixpay/internal/models"
	"tixpay/internal/money"
	"tixpay/internal/provider"
)

// Planner builds installment plans: it validates the provider's limits,
// splits the billable amount and creates the plan, its schedule and the
// first (immediately due) payment in one transaction.
type Planner struct {
	db        *gorm.DB
	providers *provider.Registry

	Now func() time.Time
}

func NewPlanner(db *gorm.DB, providers *provider.Registry) *Planner {
	return &Planner{db: db, providers: providers, Now: time.Now}
}

// CreatePlanOptions carries the optional parameters of plan creation
type CreatePlanOptions struct {
	// Fee is an extra charge billed on top of the first installment,
	// e.g. a payment fee created during checkout.
	Fee decimal.Decimal

	// InfoData is stored verbatim on the first OrderPayment.
	InfoData json.RawMessage

	// AmountOverride replaces the billable base amount, used when part of
	// the order is already covered by a fully-paid instrument such as a
	// gift card.
	AmountOverride *decimal.Decimal
}

// CreateInstallmentPlan validates provider capability and count limits,
// then creates the InstallmentPlan, all ScheduledInstallment rows and the
// first OrderPayment atomically. Installments 2..N fall due on a monthly
// cadence clamped to the last valid day of the target month; only the
// first installment is due (and billed) immediately.
func (s *Planner) CreateInstallmentPlan(ctx context.Context, order *models.Order, providerName string, count int, opts CreatePlanOptions) (*models.InstallmentPlan, error) {
	prov, ok := s.providers.Get(providerName)
	if !ok || !prov.SupportsInstallments() {
		return nil, provider.ErrUnsupportedProvider
	}

	if max := prov.MaxInstallmentsForDate(order.EventDate); count > max {
		return nil, provider.ErrInstallmentCountExceeded
	}

	// Payment fees are billed up front on the first installment only.
	paymentFees := order.PaymentFeeTotal()
	base := order.Total.Sub(paymentFees)
	if opts.AmountOverride != nil {
		base = *opts.AmountOverride
	}

	amounts, err := money.SplitInstallments(base, count)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	plan := &models.InstallmentPlan{
		OrderID:              order.ID,
		PaymentProvider:      providerName,
		PaymentToken:         map[string]string{},
		TotalInstallments:    count,
		InstallmentsPaid:     0,
		AmountPerInstallment: amounts[0],
		Status:               models.InstallmentPlanStatusActive,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(plan).Error; err != nil {
			return err
		}

		payment := &models.OrderPayment{
			OrderID:  order.ID,
			Provider: providerName,
			Amount:   amounts[0].Add(paymentFees).Add(opts.Fee),
			State:    models.PaymentStateCreated,
			Info:     opts.InfoData,
		}
		if err := tx.Create(payment).Error; err != nil {
			return err
		}

		first := &models.ScheduledInstallment{
			PlanID:            plan.ID,
			InstallmentNumber: 1,
			Amount:            amounts[0],
			DueDate:           now,
			State:             models.InstallmentStatePending,
			PaymentID:         &payment.ID,
		}
		if err := tx.Create(first).Error; err != nil {
			return err
		}

		for i := 2; i <= count; i++ {
			inst := &models.ScheduledInstallment{
				PlanID:            plan.ID,
				InstallmentNumber: i,
				Amount:            amounts[i-1],
				DueDate:           money.AddMonthsClamped(now, i-1),
				State:             models.InstallmentStatePending,
			}
			if err := tx.Create(inst).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return plan, nil
}
