package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"tixpay/internal/models"
	"tixpay/internal/provider"
	"tixpay/internal/services"
	"tixpay/internal/tasks"
)

const (
	// Minimum re-run interval for installment processing: after a clean
	// run the next one may start 10 minutes later, after an error 2
	// minutes later.
	cooldownAfterSuccess = 10 * time.Minute
	cooldownAfterError   = 2 * time.Minute

	processingGuardKey = "tixpay:installments:cooldown"
)

// runGuard enforces the minimum re-run interval for the installment
// processing task across worker instances. Without redis it degrades to
// unguarded runs on a single worker.
type runGuard struct {
	cache *services.RedisCache
}

func (g *runGuard) tryAcquire(ctx context.Context) bool {
	if g.cache == nil {
		return true
	}
	ok, err := g.cache.SetNX(ctx, processingGuardKey, time.Now().Unix(), cooldownAfterError)
	if err != nil {
		log.Printf("Run guard check failed, proceeding without it: %v", err)
		return true
	}
	return ok
}

func (g *runGuard) finish(ctx context.Context, succeeded bool) {
	if g.cache == nil {
		return
	}
	cooldown := cooldownAfterError
	if succeeded {
		cooldown = cooldownAfterSuccess
	}
	if err := g.cache.Set(ctx, processingGuardKey, time.Now().Unix(), cooldown); err != nil {
		log.Printf("Failed to update run guard: %v", err)
	}
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	db, err := services.InitDB(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	var cache *services.RedisCache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cache, err = services.NewRedisCache(redisURL)
		if err != nil {
			log.Printf("Warning: redis unavailable, running without re-run guard: %v", err)
			cache = nil
		}
	}

	appURL := os.Getenv("APP_URL")
	if appURL == "" {
		appURL = "http://localhost:8080"
	}

	providers := provider.NewRegistry()
	providers.Register(provider.NewMidtrans(provider.Settings{
		GracePeriodDays: envInt("INSTALLMENTS_GRACE_PERIOD_DAYS", 7),
		MaxInstallments: envInt("INSTALLMENTS_MAX_COUNT", 12),
	}))

	mail := services.NewSMTPEmailGateway()
	audit := services.NewDBAuditLog(db)
	executor := services.NewExecutor(db, providers, mail, audit, appURL)
	orders := services.NewOrderService(db, providers, mail, audit)
	sweeper := services.NewSweeper(db, executor, orders, mail, audit, appURL)

	registry := tasks.NewRegistry()
	tasks.NewTaskSet(sweeper).RegisterAll(registry)

	// Seed the recurring processing task on first start
	interval := os.Getenv("INSTALLMENTS_PROCESSING_RRULE")
	if interval == "" {
		interval = "FREQ=MINUTELY;INTERVAL=10"
	}
	if err := tasks.EnsureProcessingTask(db, interval); err != nil {
		log.Fatalf("Failed to ensure processing task: %v", err)
	}

	guard := &runGuard{cache: cache}

	log.Println("Worker started. Waiting for next tick...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down worker...")
		cancel()
	}()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	processScheduledTasks(ctx, db, registry, guard)

	for {
		select {
		case <-ticker.C:
			processScheduledTasks(ctx, db, registry, guard)
		case <-ctx.Done():
			return
		}
	}
}

func processScheduledTasks(ctx context.Context, db *gorm.DB, registry *tasks.Registry, guard *runGuard) {
	var pendingTasks []models.ScheduledTask
	now := time.Now()
	if err := db.Where("status = ? AND due <= ?", models.ScheduledTaskStatusActive, now).Find(&pendingTasks).Error; err != nil {
		log.Printf("Error fetching pending tasks: %v", err)
		return
	}

	if len(pendingTasks) == 0 {
		return
	}

	log.Printf("Found %d pending tasks.", len(pendingTasks))

	for _, task := range pendingTasks {
		if ctx.Err() != nil {
			return
		}
		executeTask(ctx, db, registry, guard, task)
	}
}

func executeTask(ctx context.Context, db *gorm.DB, registry *tasks.Registry, guard *runGuard, task models.ScheduledTask) {
	log.Printf("Processing task: %s (ID: %d)", task.TaskName, task.ID)

	handler, found := registry.Get(task.TaskName)
	if !found {
		log.Printf("Task handler not found for: %s. Marking as failure.", task.TaskName)
		now := time.Now()
		db.Model(&task).Updates(map[string]interface{}{
			"status":   models.ScheduledTaskStatusFailure,
			"last_run": &now,
		})
		db.Create(&models.ScheduledTaskHistory{
			ScheduledTaskID: task.ID,
			TaskName:        task.TaskName,
			RunAt:           now,
			Status:          "handler_not_found",
			Arguments:       task.Arguments,
			Result:          map[string]interface{}{"error": "Handler not found"},
		})
		return
	}

	if task.TaskName == tasks.TaskRunInstallmentProcessing && !guard.tryAcquire(ctx) {
		log.Println("Installment processing still cooling down, skipping this tick.")
		return
	}

	startTime := time.Now()
	result, err := handler(ctx, task.Arguments)
	runtimeMs := int(time.Since(startTime).Milliseconds())

	status := "success"
	resultData := result
	if err != nil {
		status = "failure"
		if resultData == nil {
			resultData = map[string]interface{}{"error": err.Error()}
		}
		log.Printf("Task %s failed: %v", task.TaskName, err)
	} else {
		log.Printf("Task %s completed successfully.", task.TaskName)
	}

	if task.TaskName == tasks.TaskRunInstallmentProcessing {
		guard.finish(ctx, err == nil)
	}

	db.Create(&models.ScheduledTaskHistory{
		ScheduledTaskID: task.ID,
		TaskName:        task.TaskName,
		RunAt:           startTime,
		Runtime:         runtimeMs,
		Status:          status,
		Arguments:       task.Arguments,
		Result:          resultData,
	})

	taskUpdates := map[string]interface{}{
		"last_run": &startTime,
	}

	switch {
	case err != nil && task.TaskType == models.ScheduledTaskTypeOneTime:
		taskUpdates["status"] = models.ScheduledTaskStatusFailure
	case task.TaskType == models.ScheduledTaskTypeOneTime:
		taskUpdates["status"] = models.ScheduledTaskStatusDone
	default:
		// Recurring tasks stay active and move to their next occurrence;
		// a failed run retries at the next due time.
		nextDue := task.NextDue()
		if nextDue.After(task.Due) {
			taskUpdates["due"] = nextDue
		} else {
			taskUpdates["status"] = models.ScheduledTaskStatusDone
		}
	}

	db.Model(&task).Updates(taskUpdates)
}

func envInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}
