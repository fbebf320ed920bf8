package services

import (
	"log"

	"gorm.io/gorm"

	"tixpay/internal/models"
)

// Order log types written by the engine
const (
	LogTypeInstallmentFailed = "installments.payment_failed"
	LogTypeGraceWarning      = "installments.grace_warning"
	LogTypePlanCanceled      = "installments.plan_canceled"
	LogTypePlanCompleted     = "installments.plan_completed"
	LogTypeMailSent          = "installments.mail_sent"
)

// AuditLog records engine-driven order events. Implementations must never
// fail the surrounding operation.
type AuditLog interface {
	LogOrderEvent(orderID uint, logType, message string, data map[string]interface{})
}

// DBAuditLog persists audit events as OrderLogEntry rows
type DBAuditLog struct {
	db *gorm.DB
}

func NewDBAuditLog(db *gorm.DB) *DBAuditLog {
	return &DBAuditLog{db: db}
}

func (a *DBAuditLog) LogOrderEvent(orderID uint, logType, message string, data map[string]interface{}) {
	entry := models.OrderLogEntry{
		OrderID: orderID,
		LogType: logType,
		Message: message,
		Data:    data,
	}
	if err := a.db.Create(&entry).Error; err != nil {
		log.Printf("Failed to write order log entry (order %d, %s): %v", orderID, logType, err)
	}
}
