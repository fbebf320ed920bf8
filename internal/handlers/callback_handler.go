package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tixpay/internal/models"
	"tixpay/internal/provider"
	"tixpay/internal/services"
)

// CallbackHandler receives server-to-server payment notifications from the
// provider. A settled notification confirms the referenced installment
// payment and stores the saved card token on the plan; the engine charges
// later installments against that token.
type CallbackHandler struct {
	db        *gorm.DB
	providers *provider.Registry
	executor  *services.Executor
}

func NewCallbackHandler(db *gorm.DB, providers *provider.Registry, executor *services.Executor) *CallbackHandler {
	return &CallbackHandler{db: db, providers: providers, executor: executor}
}

// MidtransNotification handles Midtrans HTTP notifications
func (h *CallbackHandler) MidtransNotification(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Unreadable payload")
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON payload")
	}

	orderRef, _ := payload["order_id"].(string)
	statusCode, _ := payload["status_code"].(string)
	grossAmount, _ := payload["gross_amount"].(string)
	signature, _ := payload["signature_key"].(string)
	transactionStatus, _ := payload["transaction_status"].(string)
	fraudStatus, _ := payload["fraud_status"].(string)
	savedTokenID, _ := payload["saved_token_id"].(string)

	history := models.PaymentCallbackHistory{
		Provider: "midtrans",
		OrderRef: orderRef,
		Metadata: raw,
	}
	if err := h.db.Create(&history).Error; err != nil {
		log.Printf("Failed to store payment callback history: %v", err)
	}

	prov, ok := h.providers.Get("midtrans")
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Unknown provider")
	}
	if verifier, ok := prov.(provider.CallbackVerifier); ok {
		if !verifier.VerifyCallbackSignature(orderRef, statusCode, grossAmount, signature) {
			return echo.NewHTTPError(http.StatusForbidden, "Invalid signature")
		}
	}

	var session models.PaymentSession
	if err := h.db.Where("order_ref = ?", orderRef).Order("created_at desc").First(&session).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Unknown payment session")
	}

	switch transactionStatus {
	case "settlement":
		if err := h.settleSession(c, &session, savedTokenID); err != nil {
			return err
		}
	case "capture":
		if fraudStatus == "accept" {
			if err := h.settleSession(c, &session, savedTokenID); err != nil {
				return err
			}
		}
	case "deny", "expire", "cancel", "failure":
		session.IsActive = false
		if err := h.db.Save(&session).Error; err != nil {
			log.Printf("Failed to deactivate payment session %d: %v", session.ID, err)
		}
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// settleSession confirms the session's installment payment and stores the
// saved card token for the remaining installments.
func (h *CallbackHandler) settleSession(c echo.Context, session *models.PaymentSession, savedTokenID string) error {
	ctx := c.Request().Context()

	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var plan models.InstallmentPlan
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&plan, session.PlanID).Error; err != nil {
			return err
		}

		var order models.Order
		if err := tx.First(&order, plan.OrderID).Error; err != nil {
			return err
		}
		if order.Status == models.OrderStatusCanceled {
			// A canceled order takes no further payments; the stale
			// checkout must not settle anything.
			session.IsActive = false
			return tx.Save(session).Error
		}
		plan.Order = order

		var inst models.ScheduledInstallment
		if err := tx.First(&inst, session.InstallmentID).Error; err != nil {
			return err
		}

		if savedTokenID != "" && plan.Status == models.InstallmentPlanStatusActive {
			if plan.PaymentToken == nil {
				plan.PaymentToken = map[string]string{}
			}
			plan.PaymentToken["saved_token_id"] = savedTokenID
		}

		if inst.State == models.InstallmentStatePaid {
			// Already settled by a racing confirmation; still persist the
			// token update.
			return tx.Omit(clause.Associations).Save(&plan).Error
		}

		payment := &models.OrderPayment{}
		if inst.PaymentID != nil {
			if err := tx.First(payment, *inst.PaymentID).Error; err != nil {
				return err
			}
		} else {
			payment.OrderID = plan.OrderID
			payment.Provider = plan.PaymentProvider
			payment.Amount = inst.Amount
		}

		if err := h.executor.SettleInstallmentPayment(ctx, tx, &plan, &inst, payment); err != nil {
			return err
		}

		session.IsActive = false
		return tx.Save(session).Error
	})
	if err != nil {
		log.Printf("Failed to settle payment session %d: %v", session.ID, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to process notification")
	}
	return nil
}
