package testutils

import (
	"context"
	"html/template"
	"io"
	"log"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tixpay/internal/models"
	"tixpay/internal/provider"
)

// SetupTestDB opens a GORM connection backed by sqlmock. Default
// transactions are skipped so only explicit transactions produce
// BEGIN/COMMIT expectations.
func SetupTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, func()) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock connection: %s", err)
	}

	newLogger := logger.New(
		log.New(io.Discard, "", log.LstdFlags),
		logger.Config{
			LogLevel: logger.Silent,
		},
	)

	dialector := postgres.New(postgres.Config{
		Conn:       sqlDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newLogger,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open GORM connection: %s", err)
	}

	cleanup := func() {
		sqlDB.Close()
	}

	return gormDB, mock, cleanup
}

// FakeProvider is a scriptable InstallmentProvider for tests
type FakeProvider struct {
	ProviderName string
	Supports     bool
	MaxCount     int
	Settings     provider.Settings

	ExecuteResult bool
	ExecuteErr    error
	ExecuteCalls  int

	RevokeErr   error
	RevokeCalls int

	PrepareResult provider.CheckoutResult
	PrepareErr    error

	PaymentRedirect string
	PaymentErr      error

	FormHTML template.HTML
	FormErr  error
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		ProviderName: "testpay",
		Supports:     true,
		MaxCount:     12,
		FormHTML:     template.HTML("<div>testpay form</div>"),
	}
}

func (p *FakeProvider) Name() string {
	return p.ProviderName
}

func (p *FakeProvider) SupportsInstallments() bool {
	return p.Supports
}

func (p *FakeProvider) MaxInstallmentsForDate(ref time.Time) int {
	return p.MaxCount
}

func (p *FakeProvider) ExecuteInstallment(ctx context.Context, plan *models.InstallmentPlan, inst *models.ScheduledInstallment) (bool, error) {
	p.ExecuteCalls++
	return p.ExecuteResult, p.ExecuteErr
}

func (p *FakeProvider) RevokePaymentToken(ctx context.Context, plan *models.InstallmentPlan) error {
	p.RevokeCalls++
	return p.RevokeErr
}

func (p *FakeProvider) CheckoutPrepare(ctx context.Context, plan *models.InstallmentPlan, inst *models.ScheduledInstallment) (provider.CheckoutResult, error) {
	return p.PrepareResult, p.PrepareErr
}

func (p *FakeProvider) ExecutePayment(ctx context.Context, plan *models.InstallmentPlan, inst *models.ScheduledInstallment, payment *models.OrderPayment) (string, error) {
	return p.PaymentRedirect, p.PaymentErr
}

func (p *FakeProvider) PaymentFormHTML(plan *models.InstallmentPlan, inst *models.ScheduledInstallment) (template.HTML, error) {
	return p.FormHTML, p.FormErr
}

func (p *FakeProvider) InstallmentSettings() provider.Settings {
	return p.Settings
}

// SentMail records one call to the fake mail gateway
type SentMail struct {
	To      []string
	Subject string
	Body    string
}

// FakeMailGateway records sends and can be scripted to fail
type FakeMailGateway struct {
	Sent []SentMail
	Err  error
}

func (g *FakeMailGateway) Send(to []string, subject, body string) error {
	if g.Err != nil {
		return g.Err
	}
	g.Sent = append(g.Sent, SentMail{To: to, Subject: subject, Body: body})
	return nil
}

// AuditEntry records one call to the fake audit log
type AuditEntry struct {
	OrderID uint
	LogType string
	Message string
	Data    map[string]interface{}
}

// MemoryAuditLog collects audit events in memory
type MemoryAuditLog struct {
	Entries []AuditEntry
}

func (a *MemoryAuditLog) LogOrderEvent(orderID uint, logType, message string, data map[string]interface{}) {
	a.Entries = append(a.Entries, AuditEntry{OrderID: orderID, LogType: logType, Message: message, Data: data})
}
