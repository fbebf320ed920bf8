package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"tixpay/internal/models"
)

// InstallmentProcessor is the slice of the Executor the sweeps need
type InstallmentProcessor interface {
	ProcessSingleInstallment(ctx context.Context, installmentID uint, notifyOnFailure bool) (bool, error)
}

// PlanCanceler is the slice of the OrderService the expiry sweep needs
type PlanCanceler interface {
	CancelInstallmentPlan(ctx context.Context, plan *models.InstallmentPlan, cancelOrder, sendMail bool) error
}

// SweepResult summarizes one best-effort pass over a set of rows.
// Per-item errors are collected instead of propagated so one bad row
// never blocks the rest of the sweep.
type SweepResult struct {
	Selected  int
	Succeeded int
	Failed    int
	Errors    []error
}

// Sweeper bundles the periodic jobs of the engine: charging due
// installments, warning customers close to grace expiry and cancelling
// orders whose grace period has run out.
type Sweeper struct {
	db     *gorm.DB
	exec   InstallmentProcessor
	orders PlanCanceler
	mail   EmailGateway
	audit  AuditLog
	appURL string

	Now func() time.Time
}

func NewSweeper(db *gorm.DB, exec InstallmentProcessor, orders PlanCanceler, mail EmailGateway, audit AuditLog, appURL string) *Sweeper {
	return &Sweeper{
		db:     db,
		exec:   exec,
		orders: orders,
		mail:   mail,
		audit:  audit,
		appURL: appURL,
		Now:    time.Now,
	}
}

// ProcessDueInstallments charges every pending installment whose due date
// has passed. Already paid or failed installments are not selected; a
// processing error leaves its installment pending for the next sweep.
func (s *Sweeper) ProcessDueInstallments(ctx context.Context) SweepResult {
	var res SweepResult

	var due []models.ScheduledInstallment
	err := s.db.WithContext(ctx).
		Where("state = ? AND due_date <= ?", models.InstallmentStatePending, s.Now()).
		Order("due_date asc").
		Find(&due).Error
	if err != nil {
		res.Errors = append(res.Errors, fmt.Errorf("selecting due installments: %w", err))
		return res
	}

	res.Selected = len(due)
	for _, inst := range due {
		ok, err := s.exec.ProcessSingleInstallment(ctx, inst.ID, true)
		if err != nil {
			log.Printf("Error processing installment %d: %v", inst.ID, err)
			res.Errors = append(res.Errors, fmt.Errorf("installment %d: %w", inst.ID, err))
			continue
		}
		if ok {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	return res
}

// ProcessExpiredPlans cancels every active plan whose grace period has
// expired, together with its order.
func (s *Sweeper) ProcessExpiredPlans(ctx context.Context) SweepResult {
	var res SweepResult

	var plans []models.InstallmentPlan
	err := s.db.WithContext(ctx).
		Where("status = ? AND grace_period_end IS NOT NULL AND grace_period_end < ?",
			models.InstallmentPlanStatusActive, s.Now()).
		Find(&plans).Error
	if err != nil {
		res.Errors = append(res.Errors, fmt.Errorf("selecting expired plans: %w", err))
		return res
	}

	res.Selected = len(plans)
	for i := range plans {
		if err := s.orders.CancelInstallmentPlan(ctx, &plans[i], true, true); err != nil {
			log.Printf("Error cancelling expired plan %d: %v", plans[i].ID, err)
			res.Errors = append(res.Errors, fmt.Errorf("plan %d: %w", plans[i].ID, err))
			continue
		}
		res.Succeeded++
	}
	return res
}

// SendGracePeriodWarnings mails every customer whose grace period ends
// within the next 24 hours and has not been warned yet. The flag is only
// set after a successful send, so a failed mail is retried next sweep.
func (s *Sweeper) SendGracePeriodWarnings(ctx context.Context) SweepResult {
	var res SweepResult

	now := s.Now()
	window := now.Add(24 * time.Hour)

	var plans []models.InstallmentPlan
	err := s.db.WithContext(ctx).Preload("Order").
		Where("status = ? AND grace_warning_sent = ? AND grace_period_end > ? AND grace_period_end <= ?",
			models.InstallmentPlanStatusActive, false, now, window).
		Find(&plans).Error
	if err != nil {
		res.Errors = append(res.Errors, fmt.Errorf("selecting plans for grace warnings: %w", err))
		return res
	}

	res.Selected = len(plans)
	for i := range plans {
		plan := &plans[i]
		body := RenderMailTemplate(MailTemplateGraceWarning, map[string]string{
			"order_code":    plan.Order.Code,
			"grace_end":     plan.GracePeriodEnd.Format("2006-01-02 15:04"),
			"recovery_link": RecoveryURL(s.appURL, plan.Order),
		})

		if err := s.mail.Send([]string{plan.Order.Email}, "Your installment payment is overdue", body); err != nil {
			log.Printf("Failed to send grace warning for order %s: %v", plan.Order.Code, err)
			res.Failed++
			continue
		}

		if err := s.db.Model(plan).Update("grace_warning_sent", true).Error; err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("plan %d: %w", plan.ID, err))
			continue
		}
		s.audit.LogOrderEvent(plan.OrderID, LogTypeGraceWarning, "Grace period warning sent", nil)
		res.Succeeded++
	}
	return res
}

// RunInstallmentProcessing is the single periodic entry point: expiry
// first, then warnings, then the due-installment sweep. The caller is
// expected to enforce a minimum re-run interval; concurrent invocations
// are not deduplicated here.
func (s *Sweeper) RunInstallmentProcessing(ctx context.Context) error {
	expired := s.ProcessExpiredPlans(ctx)
	warned := s.SendGracePeriodWarnings(ctx)
	due := s.ProcessDueInstallments(ctx)

	log.Printf("Installment processing run: %d plans expired, %d warnings sent, %d/%d due installments charged",
		expired.Succeeded, warned.Succeeded, due.Succeeded, due.Selected)

	var errs []error
	errs = append(errs, expired.Errors...)
	errs = append(errs, warned.Errors...)
	errs = append(errs, due.Errors...)
	return errors.Join(errs...)
}
