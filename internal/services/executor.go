package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tixpay/internal/models"
	"tixpay/internal/provider"
)

// FailureReasonNoToken marks installments that could not be charged
// because the plan holds no payment token.
const FailureReasonNoToken = "No payment token available"

// Executor charges a single due installment against the plan's stored
// token and applies the resulting state transition. All mutations of one
// invocation run in a single transaction holding the plan row lock, so
// concurrent sweeps and manual retries on the same plan serialize.
type Executor struct {
	db        *gorm.DB
	providers *provider.Registry
	mail      EmailGateway
	audit     AuditLog
	appURL    string

	Now func() time.Time
}

func NewExecutor(db *gorm.DB, providers *provider.Registry, mail EmailGateway, audit AuditLog, appURL string) *Executor {
	return &Executor{
		db:        db,
		providers: providers,
		mail:      mail,
		audit:     audit,
		appURL:    appURL,
		Now:       time.Now,
	}
}

type failureNotice struct {
	order    models.Order
	amount   decimal.Decimal
	reason   string
	graceEnd time.Time
}

// ProcessSingleInstallment charges one installment and returns whether it
// ended up paid. Provider declines are absorbed into a FAILED installment
// state; a provider that is not currently registered leaves the
// installment untouched for the next sweep. The returned error only
// reports storage problems.
func (s *Executor) ProcessSingleInstallment(ctx context.Context, installmentID uint, notifyOnFailure bool) (bool, error) {
	var (
		succeeded bool
		notice    *failureNotice
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inst models.ScheduledInstallment
		if err := tx.First(&inst, installmentID).Error; err != nil {
			return err
		}

		var plan models.InstallmentPlan
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&plan, inst.PlanID).Error; err != nil {
			return err
		}

		// Re-read under the plan lock; a racing sweep or manual retry may
		// already have settled this installment.
		if err := tx.First(&inst, installmentID).Error; err != nil {
			return err
		}
		if inst.State == models.InstallmentStatePaid {
			succeeded = true
			return nil
		}

		now := s.Now()

		if !plan.HasPaymentToken() {
			inst.MarkFailed(FailureReasonNoToken, now)
			return tx.Save(&inst).Error
		}

		prov, ok := s.providers.Get(plan.PaymentProvider)
		if !ok {
			// Transient: the provider is not currently available. Leave
			// the installment untouched so the next sweep retries it.
			log.Printf("Provider %q unavailable, skipping installment %d", plan.PaymentProvider, inst.ID)
			return nil
		}

		var order models.Order
		if err := tx.First(&order, plan.OrderID).Error; err != nil {
			return err
		}
		plan.Order = order

		okCharge, chErr := prov.ExecuteInstallment(ctx, &plan, &inst)
		if okCharge && chErr == nil {
			payment := &models.OrderPayment{
				OrderID:  plan.OrderID,
				Provider: plan.PaymentProvider,
				Amount:   inst.Amount,
			}
			if err := s.SettleInstallmentPayment(ctx, tx, &plan, &inst, payment); err != nil {
				return err
			}
			succeeded = true
			return nil
		}

		reason := "Payment was declined by the provider"
		var ce *provider.ChargeError
		if errors.As(chErr, &ce) {
			reason = ce.Reason
		} else if chErr != nil {
			reason = chErr.Error()
		}

		graceEnd, err := s.FailInstallment(tx, &plan, &inst, reason)
		if err != nil {
			return err
		}
		if notifyOnFailure {
			notice = &failureNotice{order: order, amount: inst.Amount, reason: reason, graceEnd: graceEnd}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if notice != nil {
		s.sendFailureMail(*notice)
	}
	return succeeded, nil
}

// SettleInstallmentPayment records a successful charge: the payment is
// confirmed, the installment marked paid and the plan's counter advanced.
// Completing the last installment revokes and clears the stored token;
// once no FAILED installment remains the grace period is reset. The
// caller must hold the plan row lock within tx.
func (s *Executor) SettleInstallmentPayment(ctx context.Context, tx *gorm.DB, plan *models.InstallmentPlan, inst *models.ScheduledInstallment, payment *models.OrderPayment) error {
	now := s.Now()

	payment.State = models.PaymentStateConfirmed
	payment.PaymentDate = &now
	if payment.ID == 0 {
		if err := tx.Create(payment).Error; err != nil {
			return err
		}
	} else {
		if err := tx.Save(payment).Error; err != nil {
			return err
		}
	}

	inst.MarkPaid(payment.ID, now)
	if err := tx.Save(inst).Error; err != nil {
		return err
	}

	completed := plan.RecordSuccessfulPayment()

	var failedCount int64
	if err := tx.Model(&models.ScheduledInstallment{}).
		Where("plan_id = ? AND state = ?", plan.ID, models.InstallmentStateFailed).
		Count(&failedCount).Error; err != nil {
		return err
	}
	if failedCount == 0 {
		plan.ClearGracePeriod()
	}

	if completed {
		if prov, ok := s.providers.Get(plan.PaymentProvider); ok {
			if err := prov.RevokePaymentToken(ctx, plan); err != nil {
				log.Printf("Failed to revoke payment token for plan %d: %v", plan.ID, err)
			}
		}
		plan.ClearPaymentToken()
		s.audit.LogOrderEvent(plan.OrderID, LogTypePlanCompleted, "Installment plan completed", nil)
	}

	return tx.Omit(clause.Associations).Save(plan).Error
}

// FailInstallment marks a failed charge attempt. The grace period starts
// on the plan's first failure and is never moved by later ones; the
// original deadline stands. Returns the effective grace deadline.
func (s *Executor) FailInstallment(tx *gorm.DB, plan *models.InstallmentPlan, inst *models.ScheduledInstallment, reason string) (time.Time, error) {
	now := s.Now()

	inst.MarkFailed(reason, now)
	if err := tx.Save(inst).Error; err != nil {
		return time.Time{}, err
	}

	if plan.GracePeriodEnd == nil {
		settings := provider.Settings{}
		if prov, ok := s.providers.Get(plan.PaymentProvider); ok {
			settings = prov.InstallmentSettings()
		}
		end := now.AddDate(0, 0, settings.GraceDays())
		plan.GracePeriodEnd = &end
		if err := tx.Omit(clause.Associations).Save(plan).Error; err != nil {
			return time.Time{}, err
		}
	}

	s.audit.LogOrderEvent(plan.OrderID, LogTypeInstallmentFailed, reason, map[string]interface{}{
		"installment_number": inst.InstallmentNumber,
		"amount":             inst.Amount.StringFixed(2),
	})

	return *plan.GracePeriodEnd, nil
}

func (s *Executor) sendFailureMail(n failureNotice) {
	body := RenderMailTemplate(MailTemplateInstallmentFailed, map[string]string{
		"amount":        n.amount.StringFixed(2),
		"order_code":    n.order.Code,
		"reason":        n.reason,
		"grace_end":     n.graceEnd.Format("2006-01-02 15:04"),
		"recovery_link": RecoveryURL(s.appURL, n.order),
	})

	if err := s.mail.Send([]string{n.order.Email}, "Installment payment failed", body); err != nil {
		log.Printf("Failed to send installment failure mail for order %s: %v", n.order.Code, err)
		return
	}
	s.audit.LogOrderEvent(n.order.ID, LogTypeMailSent, "Installment failure notification sent", nil)
}
