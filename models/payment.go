package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mmdatafocus/clinic_backend/config"
	"github.com/mmdatafocus/clinic_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payment is immutable once written; corrections tombstone it.
type Payment struct {
	ID                    int             `gorm:"primary_key" json:"id"`
	BillId                int             `gorm:"index;not null" json:"bill_id"`
	Amount                decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Method                PaymentMethod   `gorm:"size:20;not null" json:"method"`
	PaidAt                time.Time       `gorm:"not null" json:"paid_at"`
	ProviderTransactionId *string         `gorm:"size:100;index" json:"provider_transaction_id"`
	RecordedById          int             `gorm:"not null" json:"recorded_by_id"`
	RecordedByName        string          `gorm:"size:100" json:"recorded_by_name"`
	CreatedAt             time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt             gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (p Payment) Lifecycle() Lifecycle {
	return lifecycleOf(p.DeletedAt)
}

type PaymentInput struct {
	Amount                decimal.Decimal
	Method                PaymentMethod
	ProviderTransactionId string
	PaidAt                time.Time
}

func (input PaymentInput) validate() error {
	if !input.Amount.IsPositive() {
		return utils.Validation("amount must be greater than zero")
	}
	if !utils.IsMoneyPrecision(input.Amount) {
		return utils.Validation("amount %s has more than %d decimal places", input.Amount.String(), utils.MoneyPlaces)
	}
	if !input.Method.IsValid() {
		return utils.Validation("unsupported payment method %q", input.Method)
	}
	return nil
}

// ApplyPaymentTx records a payment against a bill whose row lock is held by tx
// and moves the bill to PARTIALLY_PAID or PAID. Overpayment is rejected.
func ApplyPaymentTx(tx *gorm.DB, bill *Bill, input PaymentInput) (*Payment, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	switch bill.Status {
	case BillStatusPaid:
		return nil, utils.Validation("bill %s is already paid", bill.InvoiceNumber)
	case BillStatusVoid:
		return nil, utils.Validation("bill %s is void", bill.InvoiceNumber)
	}

	alreadyPaid, err := sumActivePayments(tx, bill.ID)
	if err != nil {
		return nil, err
	}
	remaining := bill.TotalAmount.Sub(alreadyPaid)
	if input.Amount.GreaterThan(remaining) {
		return nil, utils.Validation("amount %s exceeds remaining balance of %s", utils.FormatMoney(input.Amount), utils.FormatMoney(remaining))
	}

	actor, ok := utils.ActorFromContext(tx.Statement.Context)
	if !ok {
		actor = utils.SystemActor
	}
	actor = actor.OrSystem()
	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}
	payment := Payment{
		BillId:         bill.ID,
		Amount:         input.Amount,
		Method:         input.Method,
		PaidAt:         paidAt,
		RecordedById:   actor.ID,
		RecordedByName: actor.Name,
	}
	txnId := strings.TrimSpace(input.ProviderTransactionId)
	if txnId != "" {
		payment.ProviderTransactionId = &txnId
	}
	if err := tx.Create(&payment).Error; err != nil {
		return nil, err
	}

	bill.Status = ComputeBillStatus(bill.TotalAmount, alreadyPaid.Add(input.Amount), false)
	if bill.Status == BillStatusPaid {
		method := input.Method
		bill.PaymentMethod = &method
		if payment.ProviderTransactionId != nil {
			bill.ProviderTransactionId = payment.ProviderTransactionId
		}
	}
	if err := saveBill(tx, bill); err != nil {
		return nil, err
	}

	if err := enqueueBillingEvent(tx, BillingEventPaymentRecorded, bill, &payment); err != nil {
		return nil, err
	}
	if bill.Status == BillStatusPaid {
		if err := enqueueBillingEvent(tx, BillingEventBillSettled, bill, &payment); err != nil {
			return nil, err
		}
	}
	return &payment, nil
}

// RecordPayment records money received at the counter.
func RecordPayment(ctx context.Context, actor utils.Actor, billId int, amount decimal.Decimal, method PaymentMethod) (*Payment, error) {
	if !actor.IsAuthenticated() {
		return nil, utils.AuthRequired("an authenticated user is required to record a payment")
	}
	// reject bad input before taking any lock
	input := PaymentInput{Amount: amount, Method: method}
	if err := input.validate(); err != nil {
		return nil, err
	}

	release := utils.ObtainBillLock(ctx, billId, "Payment", "RecordPayment")
	defer release()

	ctx = utils.WithActor(ctx, actor)
	db := config.GetDB()
	var payment *Payment
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bill, err := LockBill(tx, billId)
		if err != nil {
			return err
		}
		payment, err = ApplyPaymentTx(tx, bill, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// VoidBill moves an unpaid bill to VOID. VOID is terminal.
func VoidBill(ctx context.Context, actor utils.Actor, billId int) (*Bill, error) {
	if !actor.IsAuthenticated() {
		return nil, utils.AuthRequired("an authenticated user is required to void a bill")
	}
	release := utils.ObtainBillLock(ctx, billId, "Payment", "VoidBill")
	defer release()

	ctx = utils.WithActor(ctx, actor)
	db := config.GetDB()
	var result *Bill
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bill, err := LockBill(tx, billId)
		if err != nil {
			return err
		}
		switch bill.Status {
		case BillStatusVoid:
			return utils.BusinessRule("bill %s is already void", bill.InvoiceNumber)
		case BillStatusPaid:
			return utils.BusinessRule("bill %s is paid and cannot be voided", bill.InvoiceNumber)
		}
		paid, err := sumActivePayments(tx, bill.ID)
		if err != nil {
			return err
		}
		if paid.IsPositive() {
			return utils.BusinessRule("bill %s has received %s and cannot be voided; use a refund instead", bill.InvoiceNumber, utils.FormatMoney(paid))
		}

		bill.Status = ComputeBillStatus(bill.TotalAmount, paid, true)
		if err := saveBill(tx, bill); err != nil {
			return err
		}
		if err := enqueueBillingEvent(tx, BillingEventBillVoided, bill, nil); err != nil {
			return err
		}
		result = bill
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FindPaymentByProviderTransaction looks up a gateway transaction id across all
// bills, tombstoned payments included, so a corrected payment is never re-applied.
// Returns nil when the id was never seen.
func FindPaymentByProviderTransaction(tx *gorm.DB, method PaymentMethod, providerTransactionId string) (*Payment, error) {
	var payment Payment
	err := tx.Unscoped().
		Where("method = ? AND provider_transaction_id = ?", method, providerTransactionId).
		Order("id ASC").
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}
