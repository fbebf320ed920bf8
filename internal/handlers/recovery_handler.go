package handlers

import (
	"bytes"
	"errors"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tixpay/internal/models"
	"tixpay/internal/provider"
	"tixpay/internal/services"
)

// RecoveryHandler serves the secret-keyed manual retry page for a failed
// installment. Among multiple failed installments only the one with the
// earliest due date is ever targeted by a single attempt.
type RecoveryHandler struct {
	db        *gorm.DB
	providers *provider.Registry
	executor  *services.Executor
	appURL    string
}

func NewRecoveryHandler(db *gorm.DB, providers *provider.Registry, executor *services.Executor, appURL string) *RecoveryHandler {
	return &RecoveryHandler{db: db, providers: providers, executor: executor, appURL: appURL}
}

var recoveryPageTmpl = template.Must(template.New("recovery").Parse(`<!DOCTYPE html>
<html>
<head><title>Retry installment payment</title></head>
<body>
<h1>Order {{.OrderCode}}</h1>
{{if .ErrorMessage}}
<p class="error">{{.ErrorMessage}}</p>
{{else}}
<p>Installment {{.InstallmentNumber}} of {{.TotalInstallments}} over {{.Amount}} could not be collected.</p>
{{if .GraceEnd}}<p>Please complete the payment before {{.GraceEnd}}.</p>{{end}}
{{.FormHTML}}
<form method="post">
<button type="submit">Pay now</button>
</form>
{{end}}
</body>
</html>
`))

type recoveryPageData struct {
	OrderCode         string
	Amount            string
	InstallmentNumber int
	TotalInstallments int
	GraceEnd          string
	FormHTML          template.HTML
	ErrorMessage      string
}

// target resolves the order by code+secret and picks the earliest failed
// installment of its plan. Any miss is a not-found: the recovery page is
// unreachable without an eligible failed installment.
func (h *RecoveryHandler) target(c echo.Context) (*models.Order, *models.InstallmentPlan, *models.ScheduledInstallment, error) {
	code := c.Param("code")
	secret := c.Param("secret")

	var order models.Order
	if err := h.db.Where("code = ? AND secret = ?", code, secret).First(&order).Error; err != nil {
		return nil, nil, nil, echo.NewHTTPError(http.StatusNotFound, "Order not found")
	}
	if order.Status == models.OrderStatusCanceled {
		// A canceled order takes no further payments.
		return nil, nil, nil, echo.NewHTTPError(http.StatusNotFound, "Order not found")
	}

	var plan models.InstallmentPlan
	if err := h.db.Where("order_id = ?", order.ID).First(&plan).Error; err != nil {
		return nil, nil, nil, echo.NewHTTPError(http.StatusNotFound, "Order not found")
	}

	var inst models.ScheduledInstallment
	err := h.db.Where("plan_id = ? AND state = ?", plan.ID, models.InstallmentStateFailed).
		Order("due_date asc").
		First(&inst).Error
	if err != nil {
		return nil, nil, nil, echo.NewHTTPError(http.StatusNotFound, "No open installment payment")
	}

	plan.Order = order
	return &order, &plan, &inst, nil
}

func (h *RecoveryHandler) render(c echo.Context, data recoveryPageData) error {
	var buf bytes.Buffer
	if err := recoveryPageTmpl.Execute(&buf, data); err != nil {
		return err
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

func (h *RecoveryHandler) pageData(plan *models.InstallmentPlan, inst *models.ScheduledInstallment) recoveryPageData {
	data := recoveryPageData{
		OrderCode:         plan.Order.Code,
		Amount:            inst.Amount.StringFixed(2),
		InstallmentNumber: inst.InstallmentNumber,
		TotalInstallments: plan.TotalInstallments,
	}
	if plan.GracePeriodEnd != nil {
		data.GraceEnd = plan.GracePeriodEnd.Format("2006-01-02 15:04")
	}
	return data
}

// Show renders the provider's payment form for the failed amount, or an
// inline error when the provider is unavailable.
func (h *RecoveryHandler) Show(c echo.Context) error {
	_, plan, inst, err := h.target(c)
	if err != nil {
		return err
	}

	data := h.pageData(plan, inst)

	prov, ok := h.providers.Get(plan.PaymentProvider)
	if !ok || !prov.SupportsInstallments() {
		data.ErrorMessage = "The payment provider is currently not available. Please try again later."
		return h.render(c, data)
	}

	formHTML, err := prov.PaymentFormHTML(plan, inst)
	if err != nil {
		log.Printf("Failed to render payment form for plan %d: %v", plan.ID, err)
		data.ErrorMessage = "The payment form could not be loaded. Please try again later."
		return h.render(c, data)
	}
	data.FormHTML = formHTML

	return h.render(c, data)
}

// Submit runs the retry state machine: checkout-prepare first (redirect or
// re-render without charging), then the provider charge. A declined charge
// marks the installment failed again without moving the grace deadline;
// an unexpected error re-renders the form with no state change.
func (h *RecoveryHandler) Submit(c echo.Context) error {
	ctx := c.Request().Context()

	order, plan, inst, err := h.target(c)
	if err != nil {
		return err
	}

	data := h.pageData(plan, inst)

	prov, ok := h.providers.Get(plan.PaymentProvider)
	if !ok || !prov.SupportsInstallments() {
		data.ErrorMessage = "The payment provider is currently not available. Please try again later."
		return h.render(c, data)
	}

	res, err := prov.CheckoutPrepare(ctx, plan, inst)
	if err != nil {
		log.Printf("Checkout prepare failed for plan %d: %v", plan.ID, err)
		data.ErrorMessage = "The payment could not be started. Please try again later."
		return h.render(c, data)
	}

	if res.OrderRef != "" {
		session := models.PaymentSession{
			PlanID:           plan.ID,
			InstallmentID:    inst.ID,
			Provider:         plan.PaymentProvider,
			OrderRef:         res.OrderRef,
			IsActive:         true,
			RequestMetadata:  res.RequestMetadata,
			ResponseMetadata: res.ResponseMetadata,
		}
		if err := h.db.Create(&session).Error; err != nil {
			log.Printf("Failed to record payment session for plan %d: %v", plan.ID, err)
		}
	}

	if res.RedirectURL != "" {
		return c.Redirect(http.StatusFound, res.RedirectURL)
	}
	if !res.Proceed {
		// No payment attempt, no state change
		return h.Show(c)
	}

	orderPageURL := h.appURL + "/p/orders/" + order.Code
	redirectTo := orderPageURL

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked models.InstallmentPlan
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&locked, plan.ID).Error; err != nil {
			return err
		}
		locked.Order = *order

		var target models.ScheduledInstallment
		if err := tx.First(&target, inst.ID).Error; err != nil {
			return err
		}
		if target.State != models.InstallmentStateFailed {
			// A racing sweep already resolved it; nothing left to retry.
			return nil
		}

		payment := &models.OrderPayment{
			OrderID:  order.ID,
			Provider: locked.PaymentProvider,
			Amount:   target.Amount,
			State:    models.PaymentStateCreated,
		}
		if err := tx.Create(payment).Error; err != nil {
			return err
		}

		redirectURL, payErr := prov.ExecutePayment(ctx, &locked, &target, payment)

		var ce *provider.ChargeError
		switch {
		case errors.As(payErr, &ce):
			payment.State = models.PaymentStateFailed
			now := time.Now()
			payment.PaymentDate = &now
			if err := tx.Save(payment).Error; err != nil {
				return err
			}
			// Failed again; the original grace deadline stands.
			if _, err := h.executor.FailInstallment(tx, &locked, &target, ce.Reason); err != nil {
				return err
			}
			return nil
		case payErr != nil:
			return payErr
		case redirectURL != "":
			// Asynchronous confirmation flow; the callback settles it.
			redirectTo = redirectURL
			return nil
		default:
			return h.executor.SettleInstallmentPayment(ctx, tx, &locked, &target, payment)
		}
	})
	if err != nil {
		log.Printf("Installment retry failed for plan %d: %v", plan.ID, err)
		data.ErrorMessage = "The payment could not be processed. Please try again."
		return h.render(c, data)
	}

	return c.Redirect(http.StatusFound, redirectTo)
}
