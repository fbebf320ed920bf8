package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordSuccessfulPayment(t *testing.T) {
	plan := &InstallmentPlan{
		TotalInstallments: 3,
		InstallmentsPaid:  0,
		Status:            InstallmentPlanStatusActive,
	}

	completed := plan.RecordSuccessfulPayment()
	assert.False(t, completed)
	assert.Equal(t, 1, plan.InstallmentsPaid)
	assert.Equal(t, InstallmentPlanStatusActive, plan.Status)

	completed = plan.RecordSuccessfulPayment()
	assert.False(t, completed)
	assert.Equal(t, 2, plan.InstallmentsPaid)

	completed = plan.RecordSuccessfulPayment()
	assert.True(t, completed)
	assert.Equal(t, 3, plan.InstallmentsPaid)
	assert.Equal(t, InstallmentPlanStatusCompleted, plan.Status)

	// further calls never overshoot the total
	completed = plan.RecordSuccessfulPayment()
	assert.False(t, completed)
	assert.Equal(t, 3, plan.InstallmentsPaid)
}

func TestHasPaymentToken(t *testing.T) {
	plan := &InstallmentPlan{}
	assert.False(t, plan.HasPaymentToken())

	plan.PaymentToken = map[string]string{}
	assert.False(t, plan.HasPaymentToken())

	plan.PaymentToken = map[string]string{"saved_token_id": "tok-1"}
	assert.True(t, plan.HasPaymentToken())

	plan.ClearPaymentToken()
	assert.False(t, plan.HasPaymentToken())
}

func TestClearGracePeriod(t *testing.T) {
	end := time.Now().Add(48 * time.Hour)
	plan := &InstallmentPlan{
		GracePeriodEnd:   &end,
		GraceWarningSent: true,
	}

	plan.ClearGracePeriod()
	assert.Nil(t, plan.GracePeriodEnd)
	assert.False(t, plan.GraceWarningSent)
}

func TestScheduledInstallmentTransitions(t *testing.T) {
	now := time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)
	paymentID := uint(42)

	inst := &ScheduledInstallment{State: InstallmentStatePending}
	inst.MarkPaid(paymentID, now)
	assert.Equal(t, InstallmentStatePaid, inst.State)
	assert.Equal(t, &paymentID, inst.PaymentID)
	assert.Equal(t, now, *inst.ProcessedAt)
	assert.Nil(t, inst.FailureReason)

	inst = &ScheduledInstallment{State: InstallmentStatePending}
	inst.MarkFailed("card declined", now)
	assert.Equal(t, InstallmentStateFailed, inst.State)
	assert.Equal(t, "card declined", *inst.FailureReason)
	assert.Equal(t, now, *inst.ProcessedAt)
	assert.Nil(t, inst.PaymentID)
}
