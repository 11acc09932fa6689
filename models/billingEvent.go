package models

import (
	"encoding/json"
	"time"

	"github.com/mmdatafocus/clinic_backend/config"
	"github.com/mmdatafocus/clinic_backend/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BillingEventRecord is the transactional outbox for billing events.
// Rows are written in the same transaction as the state change and published
// after commit by the dispatcher.
type BillingEventRecord struct {
	ID               int              `gorm:"primary_key" json:"id"`
	EventType        BillingEventType `gorm:"size:50;not null;index" json:"event_type"`
	BillId           int              `gorm:"index;not null" json:"bill_id"`
	Payload          datatypes.JSON   `json:"payload"`
	CorrelationId    string           `gorm:"size:64" json:"correlation_id"`
	PublishStatus    string           `gorm:"size:20;not null;default:PENDING;index" json:"publish_status"`
	PublishAttempts  int              `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time       `json:"next_attempt_at"`
	LockedAt         *time.Time       `json:"locked_at"`
	LockedBy         *string          `gorm:"size:64" json:"locked_by"`
	LastPublishError *string          `gorm:"type:text" json:"last_publish_error"`
	PublishedAt      *time.Time       `json:"published_at"`
	PubSubMessageId  *string          `gorm:"size:255" json:"pub_sub_message_id"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (BillingEventRecord) TableName() string {
	return "billing_events"
}

type billingEventPayload struct {
	BillId        int             `json:"bill_id"`
	InvoiceNumber string          `json:"invoice_number"`
	PatientId     int             `json:"patient_id"`
	Status        BillStatus      `json:"status"`
	TotalAmount   string          `json:"total_amount"`
	Payment       *paymentPayload `json:"payment,omitempty"`
}

type paymentPayload struct {
	PaymentId             int           `json:"payment_id"`
	Amount                string        `json:"amount"`
	Method                PaymentMethod `json:"method"`
	ProviderTransactionId *string       `json:"provider_transaction_id,omitempty"`
}

func enqueueBillingEvent(tx *gorm.DB, eventType BillingEventType, bill *Bill, payment *Payment) error {
	payload := billingEventPayload{
		BillId:        bill.ID,
		InvoiceNumber: bill.InvoiceNumber,
		PatientId:     bill.PatientId,
		Status:        bill.Status,
		TotalAmount:   utils.FormatMoney(bill.TotalAmount),
	}
	if payment != nil {
		payload.Payment = &paymentPayload{
			PaymentId:             payment.ID,
			Amount:                utils.FormatMoney(payment.Amount),
			Method:                payment.Method,
			ProviderTransactionId: payment.ProviderTransactionId,
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(tx.Statement.Context)
	record := BillingEventRecord{
		EventType:     eventType,
		BillId:        bill.ID,
		Payload:       datatypes.JSON(raw),
		CorrelationId: correlationId,
		PublishStatus: OutboxPublishStatusPending,
	}
	return tx.Create(&record).Error
}

func ConvertToBillingEventMessage(rec BillingEventRecord) config.BillingEventMessage {
	return config.BillingEventMessage{
		ID:            rec.ID,
		EventType:     string(rec.EventType),
		BillId:        rec.BillId,
		OccurredAt:    rec.CreatedAt,
		Payload:       json.RawMessage(rec.Payload),
		CorrelationId: rec.CorrelationId,
	}
}
