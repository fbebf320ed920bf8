package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tixpay/internal/models"
	"tixpay/internal/money"
	"tixpay/internal/provider"
	"tixpay/internal/testutils"
)

func testOrder() *models.Order {
	return &models.Order{
		ID:        7,
		Code:      "ORD-1",
		Secret:    "s3cret",
		Email:     "customer@example.com",
		Total:     decimal.RequireFromString("100.00"),
		EventDate: time.Now().AddDate(0, 8, 0),
		Status:    models.OrderStatusPending,
		Fees: []models.OrderFee{
			{OrderID: 7, FeeType: models.FeeTypePayment, Amount: decimal.RequireFromString("10.00")},
		},
	}
}

func TestCreateInstallmentPlanValidation(t *testing.T) {
	db, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	registry := provider.NewRegistry()
	fake := testutils.NewFakeProvider()
	fake.MaxCount = 4
	registry.Register(fake)

	unsupported := testutils.NewFakeProvider()
	unsupported.ProviderName = "banktransfer"
	unsupported.Supports = false
	registry.Register(unsupported)

	planner := NewPlanner(db, registry)
	order := testOrder()

	tests := []struct {
		name     string
		provider string
		count    int
		wantErr  error
	}{
		{"unknown provider", "nope", 3, provider.ErrUnsupportedProvider},
		{"provider without installments", "banktransfer", 3, provider.ErrUnsupportedProvider},
		{"count above provider limit", "testpay", 5, provider.ErrInstallmentCountExceeded},
		{"count below one", "testpay", 0, money.ErrInvalidInstallmentCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := planner.CreateInstallmentPlan(context.Background(), order, tt.provider, tt.count, CreatePlanOptions{})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, plan)
		})
	}

	// validation failures must not touch the database
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInstallmentPlanHappyPath(t *testing.T) {
	db, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	registry := provider.NewRegistry()
	registry.Register(testutils.NewFakeProvider())

	planner := NewPlanner(db, registry)
	now := time.Date(2025, time.January, 31, 12, 0, 0, 0, time.UTC)
	planner.Now = func() time.Time { return now }

	order := testOrder()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "installment_plans"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO "order_payments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectQuery(`INSERT INTO "scheduled_installments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(21))
	mock.ExpectQuery(`INSERT INTO "scheduled_installments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(22))
	mock.ExpectQuery(`INSERT INTO "scheduled_installments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(23))
	mock.ExpectCommit()

	plan, err := planner.CreateInstallmentPlan(context.Background(), order, "testpay", 3, CreatePlanOptions{
		Fee: decimal.RequireFromString("2.50"),
	})
	require.NoError(t, err)

	// base is total minus payment fees: (100 - 10) / 3 = 30
	assert.Equal(t, uint(1), plan.ID)
	assert.Equal(t, 3, plan.TotalInstallments)
	assert.Equal(t, 0, plan.InstallmentsPaid)
	assert.True(t, plan.AmountPerInstallment.Equal(decimal.RequireFromString("30")))
	assert.Equal(t, models.InstallmentPlanStatusActive, plan.Status)
	assert.False(t, plan.HasPaymentToken())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInstallmentPlanAmountOverride(t *testing.T) {
	db, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	registry := provider.NewRegistry()
	registry.Register(testutils.NewFakeProvider())

	planner := NewPlanner(db, registry)
	order := testOrder()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "installment_plans"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectQuery(`INSERT INTO "order_payments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
	mock.ExpectQuery(`INSERT INTO "scheduled_installments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(24))
	mock.ExpectQuery(`INSERT INTO "scheduled_installments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(25))
	mock.ExpectCommit()

	override := decimal.RequireFromString("50.00")
	plan, err := planner.CreateInstallmentPlan(context.Background(), order, "testpay", 2, CreatePlanOptions{
		AmountOverride: &override,
	})
	require.NoError(t, err)

	assert.True(t, plan.AmountPerInstallment.Equal(decimal.RequireFromString("25")))
	assert.NoError(t, mock.ExpectationsWereMet())
}
