package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tixpay/internal/models"
	"tixpay/internal/provider"
)

// RecoveryURL builds the secret-keyed manual recovery link for an order
func RecoveryURL(appURL string, order models.Order) string {
	return fmt.Sprintf("%s/p/orders/%s/%s/installments", appURL, order.Code, order.Secret)
}

// OrderService exposes the order-level capabilities the engine needs:
// cancelling a plan together with its order, and sending logged order mail.
type OrderService struct {
	db        *gorm.DB
	providers *provider.Registry
	mail      EmailGateway
	audit     AuditLog

	Now func() time.Time
}

func NewOrderService(db *gorm.DB, providers *provider.Registry, mail EmailGateway, audit AuditLog) *OrderService {
	return &OrderService{db: db, providers: providers, mail: mail, audit: audit, Now: time.Now}
}

// CancelInstallmentPlan abandons a plan whose grace period has expired:
// the owning order is canceled, the stored token revoked (best-effort)
// and cleared, and the grace period reset so the plan is not selected for
// expiry again. The cancellation mail is best-effort.
func (s *OrderService) CancelInstallmentPlan(ctx context.Context, plan *models.InstallmentPlan, cancelOrder, sendMail bool) error {
	var order models.Order

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked models.InstallmentPlan
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&locked, plan.ID).Error; err != nil {
			return err
		}
		if err := tx.First(&order, locked.OrderID).Error; err != nil {
			return err
		}

		if cancelOrder && order.Status != models.OrderStatusCanceled {
			order.Status = models.OrderStatusCanceled
			if err := tx.Save(&order).Error; err != nil {
				return err
			}
		}

		if locked.HasPaymentToken() {
			if prov, ok := s.providers.Get(locked.PaymentProvider); ok {
				locked.Order = order
				if err := prov.RevokePaymentToken(ctx, &locked); err != nil {
					log.Printf("Failed to revoke payment token for plan %d: %v", locked.ID, err)
				}
			}
		}

		locked.ClearPaymentToken()
		locked.ClearGracePeriod()
		if err := tx.Omit(clause.Associations).Save(&locked).Error; err != nil {
			return err
		}

		*plan = locked
		return nil
	})
	if err != nil {
		return err
	}

	s.audit.LogOrderEvent(order.ID, LogTypePlanCanceled, "Installment plan canceled after grace period expiry", nil)

	if sendMail {
		body := RenderMailTemplate(MailTemplatePlanCanceled, map[string]string{
			"order_code": order.Code,
		})
		if err := s.mail.Send([]string{order.Email}, "Your order has been canceled", body); err != nil {
			log.Printf("Failed to send cancellation mail for order %s: %v", order.Code, err)
		} else {
			s.audit.LogOrderEvent(order.ID, LogTypeMailSent, "Cancellation notification sent", nil)
		}
	}

	return nil
}
