package models_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mmdatafocus/clinic_backend/models"
	"github.com/mmdatafocus/clinic_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// newBill generates a bill of 240: the consultation fee plus 5 x 10 and 2 x 20.
func newBill(t *testing.T, db *gorm.DB) *models.Bill {
	t.Helper()
	record := seedRecord(t, db,
		drugLine{name: "Drug A", price: "10.00", qty: 5},
		drugLine{name: "Drug B", price: "20.00", qty: 2},
	)
	bill, err := models.GenerateBillForMedicalRecord(context.Background(), clerk, record.ID, true)
	if err != nil {
		t.Fatalf("GenerateBillForMedicalRecord: %v", err)
	}
	return bill
}

func reloadBill(t *testing.T, db *gorm.DB, id int) models.Bill {
	t.Helper()
	var bill models.Bill
	if err := db.Unscoped().First(&bill, id).Error; err != nil {
		t.Fatalf("reload bill %d: %v", id, err)
	}
	return bill
}

func TestComputeBillStatus(t *testing.T) {
	total := decimal.RequireFromString("240")
	tests := []struct {
		name   string
		paid   string
		voided bool
		want   models.BillStatus
	}{
		{name: "nothing paid", paid: "0", want: models.BillStatusUnpaid},
		{name: "partly paid", paid: "100", want: models.BillStatusPartiallyPaid},
		{name: "exactly paid", paid: "240", want: models.BillStatusPaid},
		{name: "over paid", paid: "300", want: models.BillStatusPaid},
		{name: "void wins", paid: "0", voided: true, want: models.BillStatusVoid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := models.ComputeBillStatus(total, decimal.RequireFromString(tt.paid), tt.voided)
			if got != tt.want {
				t.Fatalf("ComputeBillStatus(240, %s, %v) = %s, want %s", tt.paid, tt.voided, got, tt.want)
			}
		})
	}
}

func TestComputeBillStatusZeroTotal(t *testing.T) {
	if got := models.ComputeBillStatus(decimal.Zero, decimal.Zero, false); got != models.BillStatusUnpaid {
		t.Fatalf("zero bill with no payments = %s, want UNPAID", got)
	}
}

func TestRecordPaymentRejectsOverpayment(t *testing.T) {
	db := openTestDB(t)
	bill := newBill(t, db)

	_, err := models.RecordPayment(context.Background(), clerk, bill.ID, dec("300"), models.PaymentMethodCash)
	if !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if got := reloadBill(t, db, bill.ID); got.Status != models.BillStatusUnpaid {
		t.Fatalf("status = %s, want UNPAID", got.Status)
	}
	if n := countRows(t, db, &models.Payment{}, "bill_id = ?", bill.ID); n != 0 {
		t.Fatalf("payments = %d, want 0", n)
	}
}

func TestRecordPaymentPartialThenFull(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	bill := newBill(t, db)

	if _, err := models.RecordPayment(ctx, clerk, bill.ID, dec("100"), models.PaymentMethodCash); err != nil {
		t.Fatalf("first payment: %v", err)
	}
	if got := reloadBill(t, db, bill.ID); got.Status != models.BillStatusPartiallyPaid || got.PaymentMethod != nil {
		t.Fatalf("after 100: status %s method %v", got.Status, got.PaymentMethod)
	}

	_, err := models.RecordPayment(ctx, clerk, bill.ID, dec("140.01"), models.PaymentMethodCard)
	if !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("one cent over: err = %v, want ValidationError", err)
	}

	payment, err := models.RecordPayment(ctx, clerk, bill.ID, dec("140"), models.PaymentMethodCard)
	if err != nil {
		t.Fatalf("second payment: %v", err)
	}
	if payment.RecordedById != clerk.ID || payment.RecordedByName != clerk.Name {
		t.Fatalf("payment recorded by %d/%s", payment.RecordedById, payment.RecordedByName)
	}
	got := reloadBill(t, db, bill.ID)
	if got.Status != models.BillStatusPaid {
		t.Fatalf("status = %s, want PAID", got.Status)
	}
	if got.PaymentMethod == nil || *got.PaymentMethod != models.PaymentMethodCard {
		t.Fatalf("payment method = %v, want card", got.PaymentMethod)
	}

	_, err = models.RecordPayment(ctx, clerk, bill.ID, dec("1"), models.PaymentMethodCash)
	if !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("payment on PAID bill: err = %v, want ValidationError", err)
	}

	summary, err := models.GetBill(ctx, bill.ID)
	if err != nil {
		t.Fatalf("GetBill: %v", err)
	}
	if !summary.Paid.Equal(dec("240")) || !summary.Remaining.IsZero() {
		t.Fatalf("paid %s remaining %s", summary.Paid, summary.Remaining)
	}
	if n := countRows(t, db, &models.BillingEventRecord{}, "bill_id = ? AND event_type = ?", bill.ID, models.BillingEventBillSettled); n != 1 {
		t.Fatalf("bill.settled events = %d, want 1", n)
	}
}

func TestRecordPaymentValidatesInput(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	bill := newBill(t, db)

	cases := []struct {
		name   string
		amount decimal.Decimal
		method models.PaymentMethod
		want   error
	}{
		{name: "zero amount", amount: decimal.Zero, method: models.PaymentMethodCash, want: utils.ErrValidation},
		{name: "negative amount", amount: dec("-5"), method: models.PaymentMethodCash, want: utils.ErrValidation},
		{name: "sub-cent amount", amount: dec("1.005"), method: models.PaymentMethodCash, want: utils.ErrValidation},
		{name: "unknown method", amount: dec("5"), method: "cheque", want: utils.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := models.RecordPayment(ctx, clerk, bill.ID, tc.amount, tc.method)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}

	if _, err := models.RecordPayment(ctx, clerk, bill.ID+100, dec("5"), models.PaymentMethodCash); !errors.Is(err, utils.ErrResourceNotFound) {
		t.Fatalf("missing bill: err = %v, want ResourceNotFound", err)
	}
	if _, err := models.RecordPayment(ctx, nobody, bill.ID, dec("5"), models.PaymentMethodCash); !errors.Is(err, utils.ErrAuthenticationRequired) {
		t.Fatalf("anonymous: err = %v, want AuthenticationRequired", err)
	}
}

func TestVoidBillWithPaymentIsRejected(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	bill := newBill(t, db)

	if _, err := models.RecordPayment(ctx, clerk, bill.ID, dec("50"), models.PaymentMethodCash); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	_, err := models.VoidBill(ctx, clerk, bill.ID)
	if !errors.Is(err, utils.ErrBusinessRule) {
		t.Fatalf("err = %v, want BusinessRuleViolation", err)
	}
	if got := reloadBill(t, db, bill.ID); got.Status != models.BillStatusPartiallyPaid {
		t.Fatalf("status = %s, want PARTIALLY_PAID", got.Status)
	}
}

func TestVoidBillIsTerminal(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	bill := newBill(t, db)

	voided, err := models.VoidBill(ctx, clerk, bill.ID)
	if err != nil {
		t.Fatalf("VoidBill: %v", err)
	}
	if voided.Status != models.BillStatusVoid {
		t.Fatalf("status = %s, want VOID", voided.Status)
	}

	if _, err := models.VoidBill(ctx, clerk, bill.ID); !errors.Is(err, utils.ErrBusinessRule) {
		t.Fatalf("second void: err = %v, want BusinessRuleViolation", err)
	}
	if _, err := models.RecordPayment(ctx, clerk, bill.ID, dec("10"), models.PaymentMethodCash); !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("payment on VOID bill: err = %v, want ValidationError", err)
	}
	if got := reloadBill(t, db, bill.ID); got.Status != models.BillStatusVoid {
		t.Fatalf("status = %s, want VOID", got.Status)
	}

	summary, err := models.GetBill(ctx, bill.ID)
	if err != nil {
		t.Fatalf("GetBill: %v", err)
	}
	if !summary.Remaining.IsZero() {
		t.Fatalf("remaining on void bill = %s, want 0", summary.Remaining)
	}
}

func TestVoidPaidBillIsRejected(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	bill := newBill(t, db)

	if _, err := models.RecordPayment(ctx, clerk, bill.ID, dec("240"), models.PaymentMethodCash); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	if _, err := models.VoidBill(ctx, clerk, bill.ID); !errors.Is(err, utils.ErrBusinessRule) {
		t.Fatalf("err = %v, want BusinessRuleViolation", err)
	}
}

func TestFindPaymentByProviderTransaction(t *testing.T) {
	db := openTestDB(t)
	bill := newBill(t, db)

	err := db.Transaction(func(tx *gorm.DB) error {
		locked, err := models.LockBill(tx, bill.ID)
		if err != nil {
			return err
		}
		_, err = models.ApplyPaymentTx(tx, locked, models.PaymentInput{
			Amount:                dec("240"),
			Method:                models.PaymentMethodAlipay,
			ProviderTransactionId: "2024011522001",
		})
		return err
	})
	if err != nil {
		t.Fatalf("ApplyPaymentTx: %v", err)
	}

	found, err := models.FindPaymentByProviderTransaction(db, models.PaymentMethodAlipay, "2024011522001")
	if err != nil || found == nil {
		t.Fatalf("lookup: payment %v err %v", found, err)
	}
	if found.RecordedById != utils.SystemActor.ID || found.RecordedByName != utils.SystemActor.Name {
		t.Fatalf("payment without actor recorded by %d/%s", found.RecordedById, found.RecordedByName)
	}
	got := reloadBill(t, db, bill.ID)
	if got.ProviderTransactionId == nil || *got.ProviderTransactionId != "2024011522001" {
		t.Fatalf("bill provider transaction id = %v", got.ProviderTransactionId)
	}

	missing, err := models.FindPaymentByProviderTransaction(db, models.PaymentMethodMidtrans, "2024011522001")
	if err != nil || missing != nil {
		t.Fatalf("other method: payment %v err %v", missing, err)
	}
}

func TestConcurrentPaymentsNeverExceedTotal(t *testing.T) {
	db := openTestDB(t)
	bill := newBill(t, db)

	const workers = 10
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = models.RecordPayment(context.Background(), clerk, bill.ID, dec("40"), models.PaymentMethodCash)
		}(i)
	}
	wg.Wait()

	applied := 0
	for i, err := range errs {
		switch {
		case err == nil:
			applied++
		case !errors.Is(err, utils.ErrValidation):
			t.Fatalf("payment %d: err = %v, want ValidationError", i, err)
		}
	}
	if applied != 6 {
		t.Fatalf("applied payments = %d, want 6", applied)
	}

	var paid decimal.Decimal
	var payments []models.Payment
	if err := db.Where("bill_id = ?", bill.ID).Find(&payments).Error; err != nil {
		t.Fatalf("load payments: %v", err)
	}
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}
	if !paid.Equal(dec("240")) || len(payments) != 6 {
		t.Fatalf("paid = %s over %d payments, want 240 over 6", paid, len(payments))
	}
	if got := reloadBill(t, db, bill.ID); got.Status != models.BillStatusPaid {
		t.Fatalf("status = %s, want PAID", got.Status)
	}
}
