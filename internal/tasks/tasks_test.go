package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tixpay/internal/models"
	"tixpay/internal/testutils"
)

type fakeRunner struct {
	calls int
	err   error
}

func (f *fakeRunner) RunInstallmentProcessing(ctx context.Context) error {
	f.calls++
	return f.err
}

func TestTaskSetRegistersProcessingTask(t *testing.T) {
	runner := &fakeRunner{}
	registry := NewRegistry()
	NewTaskSet(runner).RegisterAll(registry)

	handler, ok := registry.Get(TaskRunInstallmentProcessing)
	require.True(t, ok)

	result, err := handler(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, "success", result["status"])

	runner.err = errors.New("sweep failed")
	result, err = handler(context.Background(), nil)
	assert.Error(t, err)
	assert.Equal(t, "failure", result["status"])
}

func TestRegistryUnknownTask(t *testing.T) {
	registry := NewRegistry()
	_, ok := registry.Get("no_such_task")
	assert.False(t, ok)
}

func TestBuildScheduledTask(t *testing.T) {
	interval := "FREQ=MINUTELY;INTERVAL=10"
	due := time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)

	task, err := BuildScheduledTask(
		TaskRunInstallmentProcessing,
		map[string]interface{}{"source": "startup"},
		due,
		&interval,
		models.ScheduledTaskTypeRecurring,
	)
	require.NoError(t, err)

	assert.Equal(t, TaskRunInstallmentProcessing, task.TaskName)
	assert.Equal(t, due, task.Due)
	assert.Equal(t, models.ScheduledTaskStatusActive, task.Status)
	assert.Equal(t, models.ScheduledTaskTypeRecurring, task.TaskType)
	assert.Equal(t, "startup", task.Arguments["source"])
}

func TestEnsureProcessingTask(t *testing.T) {
	db, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT count\(\*\) FROM "scheduled_tasks"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`INSERT INTO "scheduled_tasks"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	err := EnsureProcessingTask(db, "FREQ=MINUTELY;INTERVAL=10")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureProcessingTaskAlreadyScheduled(t *testing.T) {
	db, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT count\(\*\) FROM "scheduled_tasks"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	err := EnsureProcessingTask(db, "FREQ=MINUTELY;INTERVAL=10")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduledTaskNextDue(t *testing.T) {
	interval := "FREQ=MINUTELY;INTERVAL=10"
	past := time.Now().Add(-1 * time.Hour)

	recurring := models.ScheduledTask{
		TaskType:          models.ScheduledTaskTypeRecurring,
		Due:               past,
		RecurringInterval: &interval,
	}
	next := recurring.NextDue()
	assert.True(t, next.After(time.Now().Add(-10*time.Minute)))

	onetime := models.ScheduledTask{TaskType: models.ScheduledTaskTypeOneTime, Due: past}
	assert.Equal(t, past, onetime.NextDue())
}
