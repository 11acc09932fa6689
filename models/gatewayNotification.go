package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/clinic_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// GatewayNotification is an append-only log of every webhook delivery and
// what reconciliation did with it.
type GatewayNotification struct {
	ID                    int               `gorm:"primary_key" json:"id"`
	Provider              string            `gorm:"size:20;not null;index" json:"provider"`
	OutTradeNo            string            `gorm:"size:100;index" json:"out_trade_no"`
	BillId                *int              `gorm:"index" json:"bill_id"`
	ProviderTransactionId string            `gorm:"size:100;index" json:"provider_transaction_id"`
	TradeStatus           string            `gorm:"size:50" json:"trade_status"`
	PaidAmount            decimal.Decimal   `gorm:"type:decimal(20,2)" json:"paid_amount"`
	SignatureValid        bool              `json:"signature_valid"`
	Outcome               GatewayOutcome    `gorm:"size:20;not null;index" json:"outcome"`
	Error                 *string           `gorm:"type:text" json:"error"`
	Headers               datatypes.JSONMap `json:"headers"`
	Payload               datatypes.JSON    `json:"payload"`
	CorrelationId         string            `gorm:"size:64" json:"correlation_id"`
	ReceivedAt            time.Time         `gorm:"not null" json:"received_at"`
	CreatedAt             time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

func LogGatewayNotification(ctx context.Context, entry *GatewayNotification) error {
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = time.Now().UTC()
	}
	return config.GetDB().WithContext(ctx).Create(entry).Error
}

// ListGatewayNotifications returns the deliveries recorded for a bill, newest first.
func ListGatewayNotifications(ctx context.Context, billId int) ([]GatewayNotification, error) {
	var rows []GatewayNotification
	err := config.GetDB().WithContext(ctx).
		Where("bill_id = ?", billId).
		Order("id DESC").
		Find(&rows).Error
	return rows, err
}
