package provider

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"

	"tixpay/internal/models"
	"tixpay/internal/money"
)

const midtransTokenKey = "saved_token_id"

// Midtrans charges installments against a saved card token through the
// Core API and falls back to a hosted Snap checkout when no token is
// stored yet (the token arrives with the Snap payment's notification).
type Midtrans struct {
	snapClient snap.Client
	coreClient coreapi.Client
	serverKey  string
	clientKey  string
	appURL     string
	settings   Settings

	now func() time.Time
}

// NewMidtrans builds the provider from MIDTRANS_* environment variables
func NewMidtrans(settings Settings) *Midtrans {
	serverKey := os.Getenv("MIDTRANS_SERVER_KEY")
	clientKey := os.Getenv("MIDTRANS_CLIENT_KEY")

	env := midtrans.Sandbox
	if os.Getenv("MIDTRANS_IS_PRODUCTION") == "true" {
		env = midtrans.Production
	}

	var s snap.Client
	s.New(serverKey, env)

	var c coreapi.Client
	c.New(serverKey, env)

	return &Midtrans{
		snapClient: s,
		coreClient: c,
		serverKey:  serverKey,
		clientKey:  clientKey,
		appURL:     os.Getenv("APP_URL"),
		settings:   settings,
		now:        time.Now,
	}
}

func (p *Midtrans) Name() string {
	return "midtrans"
}

func (p *Midtrans) SupportsInstallments() bool {
	return true
}

func (p *Midtrans) InstallmentSettings() Settings {
	return p.settings
}

// MaxInstallmentsForDate caps the plan depth so the schedule finishes
// before the event: one installment per whole month left, bounded by the
// configured maximum, never below 1.
func (p *Midtrans) MaxInstallmentsForDate(ref time.Time) int {
	max := p.settings.MaxInstallments
	if max <= 0 {
		max = 12
	}
	if left := money.MonthsUntil(p.now(), ref); left < max {
		max = left
	}
	if max < 1 {
		max = 1
	}
	return max
}

// ExecuteInstallment charges the installment amount against the plan's
// saved card token. The plan's order must be preloaded.
func (p *Midtrans) ExecuteInstallment(ctx context.Context, plan *models.InstallmentPlan, inst *models.ScheduledInstallment) (bool, error) {
	token := plan.PaymentToken[midtransTokenKey]
	if token == "" {
		return false, &ChargeError{Reason: "no saved card token on plan"}
	}

	req := &coreapi.ChargeReq{
		PaymentType: coreapi.PaymentTypeCreditCard,
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  p.orderRef(plan, inst),
			GrossAmt: inst.Amount.Round(0).IntPart(),
		},
		CreditCard: &coreapi.CreditCardDetails{
			TokenID: token,
		},
	}

	resp, mErr := p.coreClient.ChargeTransaction(req)
	if mErr != nil {
		return false, &ChargeError{Reason: mErr.Message}
	}

	switch resp.TransactionStatus {
	case "capture", "settlement":
		return true, nil
	default:
		return false, &ChargeError{Reason: fmt.Sprintf("transaction %s: %s", resp.TransactionStatus, resp.StatusMessage)}
	}
}

// RevokePaymentToken is a no-op for Midtrans: saved card tokens cannot be
// invalidated through the API and lapse server-side. The engine still
// clears its local copy.
func (p *Midtrans) RevokePaymentToken(ctx context.Context, plan *models.InstallmentPlan) error {
	return nil
}

// CheckoutPrepare decides how a manual payment proceeds. With a saved
// token the charge runs directly in ExecutePayment; without one the
// customer is redirected to a Snap checkout that saves the card, and the
// result arrives via the notification callback.
func (p *Midtrans) CheckoutPrepare(ctx context.Context, plan *models.InstallmentPlan, inst *models.ScheduledInstallment) (CheckoutResult, error) {
	if plan.HasPaymentToken() {
		return CheckoutResult{Proceed: true}, nil
	}

	orderRef := p.orderRef(plan, inst)
	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderRef,
			GrossAmt: inst.Amount.Round(0).IntPart(),
		},
		CustomerDetail: &midtrans.CustomerDetails{
			Email: plan.Order.Email,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    fmt.Sprintf("order-%s", plan.Order.Code),
				Name:  fmt.Sprintf("Installment %d/%d for order %s", inst.InstallmentNumber, plan.TotalInstallments, plan.Order.Code),
				Price: inst.Amount.Round(0).IntPart(),
				Qty:   1,
			},
		},
		CreditCard: &snap.CreditCardDetails{
			SaveCard: true,
		},
		Callbacks: &snap.Callbacks{
			Finish: p.appURL + "/p/orders/" + plan.Order.Code,
		},
	}

	resp, mErr := p.snapClient.CreateTransaction(req)
	if mErr != nil {
		return CheckoutResult{}, fmt.Errorf("midtrans create transaction: %w", mErr)
	}

	reqBytes, _ := json.Marshal(req)
	respBytes, _ := json.Marshal(resp)

	return CheckoutResult{
		Proceed:          false,
		RedirectURL:      resp.RedirectURL,
		OrderRef:         orderRef,
		RequestMetadata:  reqBytes,
		ResponseMetadata: respBytes,
	}, nil
}

// ExecutePayment charges the prepared manual payment against the saved
// token. A pending response with a redirect URL (e.g. 3-D Secure) sends
// the customer onward.
func (p *Midtrans) ExecutePayment(ctx context.Context, plan *models.InstallmentPlan, inst *models.ScheduledInstallment, payment *models.OrderPayment) (string, error) {
	token := plan.PaymentToken[midtransTokenKey]
	if token == "" {
		return "", &ChargeError{Reason: "no saved card token on plan"}
	}

	req := &coreapi.ChargeReq{
		PaymentType: coreapi.PaymentTypeCreditCard,
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  p.orderRef(plan, inst),
			GrossAmt: payment.Amount.Round(0).IntPart(),
		},
		CreditCard: &coreapi.CreditCardDetails{
			TokenID: token,
		},
	}

	resp, mErr := p.coreClient.ChargeTransaction(req)
	if mErr != nil {
		return "", &ChargeError{Reason: mErr.Message}
	}

	switch resp.TransactionStatus {
	case "capture", "settlement":
		return "", nil
	case "pending":
		if resp.RedirectURL != "" {
			return resp.RedirectURL, nil
		}
		return "", &ChargeError{Reason: "transaction pending without redirect"}
	default:
		return "", &ChargeError{Reason: fmt.Sprintf("transaction %s: %s", resp.TransactionStatus, resp.StatusMessage)}
	}
}

// PaymentFormHTML renders the Snap widget bootstrap for the recovery page
func (p *Midtrans) PaymentFormHTML(plan *models.InstallmentPlan, inst *models.ScheduledInstallment) (template.HTML, error) {
	snapURL := "https://app.sandbox.midtrans.com/snap/snap.js"
	if os.Getenv("MIDTRANS_IS_PRODUCTION") == "true" {
		snapURL = "https://app.midtrans.com/snap/snap.js"
	}
	html := fmt.Sprintf(
		`<script src=%q data-client-key=%q></script>`+
			`<p>Installment %d of %d, amount due: %s</p>`,
		snapURL, p.clientKey, inst.InstallmentNumber, plan.TotalInstallments, inst.Amount.StringFixed(2),
	)
	return template.HTML(html), nil
}

// VerifyCallbackSignature checks the SHA512 signature Midtrans attaches to
// notifications: sha512(order_id + status_code + gross_amount + server key).
func (p *Midtrans) VerifyCallbackSignature(orderRef, statusCode, grossAmount, signature string) bool {
	sum := sha512.Sum512([]byte(orderRef + statusCode + grossAmount + p.serverKey))
	return hex.EncodeToString(sum[:]) == signature
}

// orderRef builds a unique Midtrans order id. Midtrans rejects reused order
// ids, so every charge attempt gets a fresh suffix.
func (p *Midtrans) orderRef(plan *models.InstallmentPlan, inst *models.ScheduledInstallment) string {
	return fmt.Sprintf("order-%s-inst-%d-%s", plan.Order.Code, inst.InstallmentNumber, uuid.NewString()[:8])
}
