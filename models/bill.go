package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/clinic_backend/config"
	"github.com/mmdatafocus/clinic_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Bill struct {
	ID                    int             `gorm:"primary_key" json:"id"`
	InvoiceNumber         string          `gorm:"size:50;not null;uniqueIndex" json:"invoice_number"`
	PatientId             int             `gorm:"index;not null" json:"patient_id"`
	MedicalRecordId       *int            `gorm:"index" json:"medical_record_id"`
	IssueDate             time.Time       `gorm:"not null" json:"issue_date"`
	TotalAmount           decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total_amount"`
	Status                BillStatus      `gorm:"size:20;not null;index" json:"status"`
	PaymentMethod         *PaymentMethod  `gorm:"size:20" json:"payment_method"`
	ProviderTransactionId *string         `gorm:"size:100" json:"provider_transaction_id"`
	Items                 []BillItem      `gorm:"foreignKey:BillId" json:"items,omitempty"`
	Payments              []Payment       `gorm:"foreignKey:BillId" json:"payments,omitempty"`
	CreatedAt             time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt             gorm.DeletedAt  `gorm:"index" json:"-"`
}

// BillItem subtotal is fixed at creation to quantity x unit price and never recomputed.
type BillItem struct {
	ID        int             `gorm:"primary_key" json:"id"`
	BillId    int             `gorm:"index;not null" json:"bill_id"`
	Name      string          `gorm:"size:255;not null" json:"name"`
	Category  ItemCategory    `gorm:"size:50;not null;index" json:"category"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"unit_price"`
	Subtotal  decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"subtotal"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt  `gorm:"index" json:"-"`
}

// BillSummary holds the derived amounts of a bill. Paid is never stored.
type BillSummary struct {
	Bill      *Bill           `json:"bill"`
	Paid      decimal.Decimal `json:"paid"`
	Remaining decimal.Decimal `json:"remaining"`
}

func (b Bill) Lifecycle() Lifecycle {
	return lifecycleOf(b.DeletedAt)
}

func (i BillItem) Lifecycle() Lifecycle {
	return lifecycleOf(i.DeletedAt)
}

// ComputeBillStatus derives the status from the total, the sum of active
// payments and the void flag. It is the only place a status is decided.
func ComputeBillStatus(total decimal.Decimal, paid decimal.Decimal, voided bool) BillStatus {
	switch {
	case voided:
		return BillStatusVoid
	case !paid.IsPositive():
		return BillStatusUnpaid
	case paid.GreaterThanOrEqual(total):
		return BillStatusPaid
	default:
		return BillStatusPartiallyPaid
	}
}

func newBillItem(name string, category ItemCategory, quantity int, unitPrice decimal.Decimal) BillItem {
	unitPrice = unitPrice.Round(utils.MoneyPlaces)
	return BillItem{
		Name:      name,
		Category:  category,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		Subtotal:  unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(utils.MoneyPlaces),
	}
}

func sumItemSubtotals(items []BillItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal)
	}
	return total
}

// sumActivePayments re-reads the live payments of a bill. Inside a transaction
// holding the bill row lock the result cannot change until commit.
func sumActivePayments(tx *gorm.DB, billId int) (decimal.Decimal, error) {
	var payments []Payment
	if err := tx.Where("bill_id = ?", billId).Find(&payments).Error; err != nil {
		return decimal.Zero, err
	}
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}
	return paid, nil
}

// saveBill writes every bill column without touching loaded associations.
func saveBill(tx *gorm.DB, bill *Bill) error {
	return tx.Omit(clause.Associations).Save(bill).Error
}

// LockBill loads a live bill holding its row lock for the rest of tx.
func LockBill(tx *gorm.DB, billId int) (*Bill, error) {
	return lockActive[Bill](tx, billId, "bill")
}

// GetBill returns a live bill with its live items and payments.
func GetBill(ctx context.Context, billId int) (*BillSummary, error) {
	db := config.GetDB()
	bill, err := fetchActive[Bill](db.WithContext(ctx), billId, "bill", "Items", "Payments")
	if err != nil {
		return nil, err
	}
	return summarize(bill), nil
}

func summarize(bill *Bill) *BillSummary {
	paid := decimal.Zero
	for _, p := range bill.Payments {
		paid = paid.Add(p.Amount)
	}
	remaining := bill.TotalAmount.Sub(paid)
	if bill.Status == BillStatusVoid || remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return &BillSummary{Bill: bill, Paid: paid, Remaining: remaining}
}

// RemoveBillItem corrects a bill before any money was received: the line is
// tombstoned and the total reduced by its subtotal.
func RemoveBillItem(ctx context.Context, actor utils.Actor, billId int, itemId int) (*Bill, error) {
	if !actor.IsAuthenticated() {
		return nil, utils.AuthRequired("an authenticated user is required to correct a bill")
	}
	release := utils.ObtainBillLock(ctx, billId, "Bill", "RemoveBillItem")
	defer release()

	ctx = utils.WithActor(ctx, actor)
	db := config.GetDB()
	var result *Bill
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bill, err := LockBill(tx, billId)
		if err != nil {
			return err
		}
		if bill.Status != BillStatusUnpaid {
			return utils.BusinessRule("bill %s is %s; only unpaid bills can be corrected", bill.InvoiceNumber, bill.Status)
		}
		paid, err := sumActivePayments(tx, bill.ID)
		if err != nil {
			return err
		}
		if paid.IsPositive() {
			return utils.BusinessRule("bill %s has received payments and cannot be corrected", bill.InvoiceNumber)
		}

		var item BillItem
		if err := tx.Where("bill_id = ?", bill.ID).First(&item, itemId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NotFound("bill item %d not found on bill %d", itemId, billId)
			}
			return err
		}
		if err := tombstone(tx, []BillItem{item}); err != nil {
			return err
		}

		var remaining []BillItem
		if err := tx.Where("bill_id = ?", bill.ID).Order("id ASC").Find(&remaining).Error; err != nil {
			return err
		}
		bill.TotalAmount = sumItemSubtotals(remaining)
		if err := saveBill(tx, bill); err != nil {
			return err
		}
		bill.Items = remaining
		result = bill
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteBill tombstones a bill and its items. A bill that ever received a
// payment keeps its history and cannot be removed.
func DeleteBill(ctx context.Context, actor utils.Actor, billId int) error {
	if !actor.IsAuthenticated() {
		return utils.AuthRequired("an authenticated user is required to delete a bill")
	}
	release := utils.ObtainBillLock(ctx, billId, "Bill", "DeleteBill")
	defer release()

	ctx = utils.WithActor(ctx, actor)
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bill, err := LockBill(tx, billId)
		if err != nil {
			return err
		}
		if bill.Status != BillStatusUnpaid && bill.Status != BillStatusVoid {
			return utils.BusinessRule("bill %s is %s and cannot be deleted", bill.InvoiceNumber, bill.Status)
		}
		var paymentCount int64
		if err := tx.Unscoped().Model(&Payment{}).Where("bill_id = ?", bill.ID).Count(&paymentCount).Error; err != nil {
			return err
		}
		if paymentCount > 0 {
			return utils.BusinessRule("bill %s has payment history and cannot be deleted", bill.InvoiceNumber)
		}

		var items []BillItem
		if err := tx.Where("bill_id = ?", bill.ID).Find(&items).Error; err != nil {
			return err
		}
		if err := tombstone(tx, items); err != nil {
			return err
		}
		if err := tombstone(tx, []Bill{*bill}); err != nil {
			return err
		}
		return enqueueBillingEvent(tx, BillingEventBillDeleted, bill, nil)
	})
}
