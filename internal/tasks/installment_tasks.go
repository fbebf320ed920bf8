package tasks

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"tixpay/internal/models"
)

// TaskRunInstallmentProcessing is the recurring task that drives the
// engine: expiry handling, grace warnings and the due-installment sweep.
const TaskRunInstallmentProcessing = "run_installment_processing"

// InstallmentRunner is the engine entry point the task delegates to
type InstallmentRunner interface {
	RunInstallmentProcessing(ctx context.Context) error
}

// TaskSet wires the engine services into the worker's task registry
type TaskSet struct {
	sweeper InstallmentRunner
}

func NewTaskSet(sweeper InstallmentRunner) *TaskSet {
	return &TaskSet{sweeper: sweeper}
}

// RegisterAll registers every engine task
func (t *TaskSet) RegisterAll(r *Registry) {
	r.Register(TaskRunInstallmentProcessing, t.runInstallmentProcessing)
}

func (t *TaskSet) runInstallmentProcessing(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	if err := t.sweeper.RunInstallmentProcessing(ctx); err != nil {
		return map[string]interface{}{"status": "failure", "error": err.Error()}, err
	}
	return map[string]interface{}{"status": "success"}, nil
}

// EnsureProcessingTask creates the recurring installment processing task
// if it does not exist yet. The worker calls this at startup so a fresh
// deployment processes installments without manual scheduling.
func EnsureProcessingTask(db *gorm.DB, interval string) error {
	var count int64
	err := db.Model(&models.ScheduledTask{}).
		Where("task_name = ? AND status = ?", TaskRunInstallmentProcessing, models.ScheduledTaskStatusActive).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	task, err := BuildScheduledTask(
		TaskRunInstallmentProcessing,
		map[string]interface{}{},
		time.Now(),
		&interval,
		models.ScheduledTaskTypeRecurring,
	)
	if err != nil {
		return err
	}
	if err := db.Create(task).Error; err != nil {
		return fmt.Errorf("failed to create processing task: %w", err)
	}
	return nil
}
