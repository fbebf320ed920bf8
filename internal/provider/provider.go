package provider

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"sync"
	"time"

	"tixpay/internal/models"
)

var (
	// ErrUnsupportedProvider is returned when the requested provider does
	// not exist or does not support installment plans.
	ErrUnsupportedProvider = errors.New("payment provider does not support installments")

	// ErrInstallmentCountExceeded is returned when the requested count is
	// above the provider's limit for the order's event date.
	ErrInstallmentCountExceeded = errors.New("requested installment count exceeds provider limit")
)

// ChargeError is a provider-declared payment decline. It marks a failed
// charge attempt, as opposed to a transient communication problem.
type ChargeError struct {
	Reason string
}

func (e *ChargeError) Error() string {
	return e.Reason
}

// Settings carries the provider-level installment configuration
type Settings struct {
	GracePeriodDays int // days a customer has to recover a failed installment
	MaxInstallments int // hard cap regardless of event date
}

// GraceDays returns the configured grace period, defaulting to 7 days
func (s Settings) GraceDays() int {
	if s.GracePeriodDays <= 0 {
		return 7
	}
	return s.GracePeriodDays
}

// CheckoutResult is the outcome of a provider's checkout-prepare step.
// A non-empty RedirectURL sends the customer to the provider before any
// charge happens; Proceed false re-renders the form without charging.
type CheckoutResult struct {
	Proceed          bool
	RedirectURL      string
	OrderRef         string
	RequestMetadata  json.RawMessage
	ResponseMetadata json.RawMessage
}

// InstallmentProvider is the capability contract the engine consumes from a
// payment provider. Charge declines are reported as *ChargeError (or a
// false return); any other error is treated the same way by the executor.
type InstallmentProvider interface {
	Name() string
	SupportsInstallments() bool

	// MaxInstallmentsForDate returns the deepest plan permitted for an
	// order whose event happens at ref. Always at least 1.
	MaxInstallmentsForDate(ref time.Time) int

	// ExecuteInstallment charges one installment against the plan's stored
	// token. Returns false or an error on failure, never both success and
	// an error.
	ExecuteInstallment(ctx context.Context, plan *models.InstallmentPlan, inst *models.ScheduledInstallment) (bool, error)

	// RevokePaymentToken invalidates the stored token after plan
	// completion. Best-effort; errors are logged by the caller.
	RevokePaymentToken(ctx context.Context, plan *models.InstallmentPlan) error

	// CheckoutPrepare runs before a manual payment attempt. The plan's
	// order must be preloaded.
	CheckoutPrepare(ctx context.Context, plan *models.InstallmentPlan, inst *models.ScheduledInstallment) (CheckoutResult, error)

	// ExecutePayment performs the manual charge prepared above. A returned
	// redirect URL means the payment confirms asynchronously.
	ExecutePayment(ctx context.Context, plan *models.InstallmentPlan, inst *models.ScheduledInstallment, payment *models.OrderPayment) (redirectURL string, err error)

	// PaymentFormHTML renders the provider's payment widget for the manual
	// recovery page.
	PaymentFormHTML(plan *models.InstallmentPlan, inst *models.ScheduledInstallment) (template.HTML, error)

	InstallmentSettings() Settings
}

// CallbackVerifier is implemented by providers that sign their server-to-
// server notifications.
type CallbackVerifier interface {
	VerifyCallbackSignature(orderRef, statusCode, grossAmount, signature string) bool
}

// Registry maps provider names to implementations
type Registry struct {
	mu        sync.RWMutex
	providers map[string]InstallmentProvider
}

// NewRegistry creates an empty provider registry
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]InstallmentProvider)}
}

// Register adds a provider under its own name
func (r *Registry) Register(p InstallmentProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get retrieves a provider by name
func (r *Registry) Get(name string) (InstallmentProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}
