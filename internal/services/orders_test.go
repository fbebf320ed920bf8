package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tixpay/internal/models"
	"tixpay/internal/provider"
	"tixpay/internal/testutils"
)

func TestCancelInstallmentPlan(t *testing.T) {
	db, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	registry := provider.NewRegistry()
	fake := testutils.NewFakeProvider()
	registry.Register(fake)

	mail := &testutils.FakeMailGateway{}
	audit := &testutils.MemoryAuditLog{}

	svc := NewOrderService(db, registry, mail, audit)
	svc.Now = func() time.Time { return execNow }

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "installment_plans"`).
		WillReturnRows(planRow(5, 7, `{"saved_token_id":"tok-1"}`, 3, 1, execNow.AddDate(0, 0, -1)))
	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(orderRow(7))
	mock.ExpectExec(`UPDATE "orders"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "installment_plans"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	plan := &models.InstallmentPlan{ID: 5}
	err := svc.CancelInstallmentPlan(context.Background(), plan, true, true)
	require.NoError(t, err)

	assert.Equal(t, 1, fake.RevokeCalls)
	assert.False(t, plan.HasPaymentToken())
	assert.Nil(t, plan.GracePeriodEnd)

	require.Len(t, mail.Sent, 1)
	assert.Equal(t, []string{"customer@example.com"}, mail.Sent[0].To)
	assert.Contains(t, mail.Sent[0].Body, "ORD-1")

	require.NotEmpty(t, audit.Entries)
	assert.Equal(t, LogTypePlanCanceled, audit.Entries[0].LogType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelInstallmentPlanWithoutOrderCancel(t *testing.T) {
	db, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	registry := provider.NewRegistry()
	registry.Register(testutils.NewFakeProvider())

	mail := &testutils.FakeMailGateway{}
	svc := NewOrderService(db, registry, mail, &testutils.MemoryAuditLog{})

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "installment_plans"`).
		WillReturnRows(planRow(5, 7, `{}`, 3, 1, nil))
	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(orderRow(7))
	mock.ExpectExec(`UPDATE "installment_plans"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := svc.CancelInstallmentPlan(context.Background(), &models.InstallmentPlan{ID: 5}, false, false)
	require.NoError(t, err)

	assert.Empty(t, mail.Sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRenderMailTemplate(t *testing.T) {
	body := RenderMailTemplate("Hello $order_code, pay $amount by $grace_end.", map[string]string{
		"order_code": "ORD-1",
		"amount":     "33.33",
		"grace_end":  "2025-06-08 10:00",
	})
	assert.Equal(t, "Hello ORD-1, pay 33.33 by 2025-06-08 10:00.", body)
}

func TestRecoveryURL(t *testing.T) {
	order := models.Order{Code: "ORD-1", Secret: "s3cret"}
	assert.Equal(t, "https://tixpay.test/p/orders/ORD-1/s3cret/installments", RecoveryURL("https://tixpay.test", order))
}
