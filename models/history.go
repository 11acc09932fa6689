package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/clinic_backend/config"
	"github.com/mmdatafocus/clinic_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AuditStamp is appended to every history row.
type AuditStamp struct {
	ActionType      AuditAction `gorm:"size:10;not null;index" json:"action_type"`
	ActionTimestamp time.Time   `gorm:"not null;index" json:"action_timestamp"`
	ActionBy        int         `gorm:"not null;index" json:"action_by"`
	ActionByName    string      `gorm:"size:100" json:"action_by_name"`
}

// History rows mirror their entity column for column and are append-only.

type BillHistory struct {
	HistoryId             int             `gorm:"primaryKey;autoIncrement" json:"history_id"`
	BillId                int             `gorm:"index;not null" json:"bill_id"`
	InvoiceNumber         string          `gorm:"size:50" json:"invoice_number"`
	PatientId             int             `json:"patient_id"`
	MedicalRecordId       *int            `json:"medical_record_id"`
	IssueDate             time.Time       `json:"issue_date"`
	TotalAmount           decimal.Decimal `gorm:"type:decimal(20,2)" json:"total_amount"`
	Status                BillStatus      `gorm:"size:20" json:"status"`
	PaymentMethod         *PaymentMethod  `gorm:"size:20" json:"payment_method"`
	ProviderTransactionId *string         `gorm:"size:100" json:"provider_transaction_id"`
	CreatedAt             time.Time       `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime:false" json:"updated_at"`
	DeletedAt             *time.Time      `json:"deleted_at"`
	AuditStamp
}

type BillItemHistory struct {
	HistoryId  int             `gorm:"primaryKey;autoIncrement" json:"history_id"`
	BillItemId int             `gorm:"index;not null" json:"bill_item_id"`
	BillId     int             `gorm:"index;not null" json:"bill_id"`
	Name       string          `gorm:"size:255" json:"name"`
	Category   ItemCategory    `gorm:"size:50" json:"category"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(20,2)" json:"unit_price"`
	Subtotal   decimal.Decimal `gorm:"type:decimal(20,2)" json:"subtotal"`
	CreatedAt  time.Time       `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime:false" json:"updated_at"`
	DeletedAt  *time.Time      `json:"deleted_at"`
	AuditStamp
}

type PaymentHistory struct {
	HistoryId             int             `gorm:"primaryKey;autoIncrement" json:"history_id"`
	PaymentId             int             `gorm:"index;not null" json:"payment_id"`
	BillId                int             `gorm:"index;not null" json:"bill_id"`
	Amount                decimal.Decimal `gorm:"type:decimal(20,2)" json:"amount"`
	Method                PaymentMethod   `gorm:"size:20" json:"method"`
	PaidAt                time.Time       `json:"paid_at"`
	ProviderTransactionId *string         `gorm:"size:100" json:"provider_transaction_id"`
	RecordedById          int             `json:"recorded_by_id"`
	RecordedByName        string          `gorm:"size:100" json:"recorded_by_name"`
	CreatedAt             time.Time       `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime:false" json:"updated_at"`
	DeletedAt             *time.Time      `json:"deleted_at"`
	AuditStamp
}

func billSnapshot(b *Bill, stamp AuditStamp) *BillHistory {
	return &BillHistory{
		BillId:                b.ID,
		InvoiceNumber:         b.InvoiceNumber,
		PatientId:             b.PatientId,
		MedicalRecordId:       b.MedicalRecordId,
		IssueDate:             b.IssueDate,
		TotalAmount:           b.TotalAmount,
		Status:                b.Status,
		PaymentMethod:         b.PaymentMethod,
		ProviderTransactionId: b.ProviderTransactionId,
		CreatedAt:             b.CreatedAt,
		UpdatedAt:             b.UpdatedAt,
		DeletedAt:             snapshotDeletedAt(b.DeletedAt, stamp),
		AuditStamp:            stamp,
	}
}

func billItemSnapshot(i *BillItem, stamp AuditStamp) *BillItemHistory {
	return &BillItemHistory{
		BillItemId: i.ID,
		BillId:     i.BillId,
		Name:       i.Name,
		Category:   i.Category,
		Quantity:   i.Quantity,
		UnitPrice:  i.UnitPrice,
		Subtotal:   i.Subtotal,
		CreatedAt:  i.CreatedAt,
		UpdatedAt:  i.UpdatedAt,
		DeletedAt:  snapshotDeletedAt(i.DeletedAt, stamp),
		AuditStamp: stamp,
	}
}

func paymentSnapshot(p *Payment, stamp AuditStamp) *PaymentHistory {
	return &PaymentHistory{
		PaymentId:             p.ID,
		BillId:                p.BillId,
		Amount:                p.Amount,
		Method:                p.Method,
		PaidAt:                p.PaidAt,
		ProviderTransactionId: p.ProviderTransactionId,
		RecordedById:          p.RecordedById,
		RecordedByName:        p.RecordedByName,
		CreatedAt:             p.CreatedAt,
		UpdatedAt:             p.UpdatedAt,
		DeletedAt:             snapshotDeletedAt(p.DeletedAt, stamp),
		AuditStamp:            stamp,
	}
}

// soft delete writes deleted_at in SQL only, so the loaded struct may still
// look live when the DELETE snapshot is taken
func snapshotDeletedAt(deletedAt gorm.DeletedAt, stamp AuditStamp) *time.Time {
	if stamp.ActionType == AuditActionDelete && !deletedAt.Valid {
		t := stamp.ActionTimestamp
		return &t
	}
	return deletedAtPtr(deletedAt)
}

// auditSnapshot maps a registered entity to its history row. Entities outside
// the switch are not audited.
func auditSnapshot(entity any, stamp AuditStamp) (row any, entityId int, audited bool) {
	switch e := entity.(type) {
	case *Bill:
		return billSnapshot(e, stamp), e.ID, true
	case *BillItem:
		return billItemSnapshot(e, stamp), e.ID, true
	case *Payment:
		return paymentSnapshot(e, stamp), e.ID, true
	}
	return nil, 0, false
}

type BillHistoryResponse struct {
	Bill     []BillHistory     `json:"bill"`
	Items    []BillItemHistory `json:"items"`
	Payments []PaymentHistory  `json:"payments"`
}

// GetBillHistory returns every audited change of a bill, its items and its
// payments, oldest first. Tombstoned bills keep their history.
func GetBillHistory(ctx context.Context, billId int) (*BillHistoryResponse, error) {
	db := config.GetDB().WithContext(ctx)
	var resp BillHistoryResponse
	if err := db.Where("bill_id = ?", billId).Order("history_id ASC").Find(&resp.Bill).Error; err != nil {
		return nil, err
	}
	if len(resp.Bill) == 0 {
		return nil, utils.NotFound("no history for bill %d", billId)
	}
	if err := db.Where("bill_id = ?", billId).Order("history_id ASC").Find(&resp.Items).Error; err != nil {
		return nil, err
	}
	if err := db.Where("bill_id = ?", billId).Order("history_id ASC").Find(&resp.Payments).Error; err != nil {
		return nil, err
	}
	return &resp, nil
}
