package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"tixpay/internal/models"
	"tixpay/internal/provider"
	"tixpay/internal/services"
)

func main() {
	orderCode := flag.String("order", "", "Order code (mandatory)")
	providerName := flag.String("provider", "midtrans", "Payment provider name")
	count := flag.Int("count", 0, "Number of installments (mandatory)")
	fee := flag.String("fee", "0", "Extra fee billed on the first installment")
	amountOverride := flag.String("amount_override", "", "Billable base amount override (optional)")

	flag.Parse()

	if *orderCode == "" || *count == 0 {
		fmt.Println("Usage: create_plan -order <code> -count <n> [-provider <name>] [-fee <amount>] [-amount_override <amount>]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := services.InitDB(dsn)
	if err != nil {
		log.Fatalf("Failed to connect DB: %v", err)
	}

	providers := provider.NewRegistry()
	providers.Register(provider.NewMidtrans(provider.Settings{
		GracePeriodDays: envInt("INSTALLMENTS_GRACE_PERIOD_DAYS", 7),
		MaxInstallments: envInt("INSTALLMENTS_MAX_COUNT", 12),
	}))

	var order models.Order
	if err := db.Preload("Fees").Where("code = ?", *orderCode).First(&order).Error; err != nil {
		log.Fatalf("Order %s not found: %v", *orderCode, err)
	}

	opts := services.CreatePlanOptions{}
	opts.Fee, err = decimal.NewFromString(*fee)
	if err != nil {
		log.Fatalf("Invalid fee: %v", err)
	}
	if *amountOverride != "" {
		override, err := decimal.NewFromString(*amountOverride)
		if err != nil {
			log.Fatalf("Invalid amount override: %v", err)
		}
		opts.AmountOverride = &override
	}

	planner := services.NewPlanner(db, providers)
	plan, err := planner.CreateInstallmentPlan(context.Background(), &order, *providerName, *count, opts)
	if err != nil {
		log.Fatalf("Failed to create installment plan: %v", err)
	}

	fmt.Printf("Created installment plan %d for order %s\n", plan.ID, order.Code)

	var installments []models.ScheduledInstallment
	if err := db.Where("plan_id = ?", plan.ID).Order("installment_number asc").Find(&installments).Error; err != nil {
		log.Fatalf("Failed to load schedule: %v", err)
	}
	for _, inst := range installments {
		fmt.Printf("  #%d  %s  due %s\n", inst.InstallmentNumber, inst.Amount.StringFixed(2), inst.DueDate.Format("2006-01-02"))
	}
}

func envInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}
