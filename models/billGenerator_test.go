package models_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mmdatafocus/clinic_backend/models"
	"github.com/mmdatafocus/clinic_backend/utils"
)

func TestGenerateBillWithConsultationAndDrugs(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	record := seedRecord(t, db,
		drugLine{name: "Drug A", price: "10.00", qty: 5},
		drugLine{name: "Drug B", price: "20.00", qty: 2},
	)

	bill, err := models.GenerateBillForMedicalRecord(ctx, clerk, record.ID, true)
	if err != nil {
		t.Fatalf("GenerateBillForMedicalRecord: %v", err)
	}
	if !bill.TotalAmount.Equal(dec("240")) {
		t.Fatalf("total = %s, want 240", bill.TotalAmount)
	}
	if bill.Status != models.BillStatusUnpaid {
		t.Fatalf("status = %s, want UNPAID", bill.Status)
	}
	if len(bill.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(bill.Items))
	}
	if bill.Items[0].Category != models.ItemCategoryConsultation || !bill.Items[0].Subtotal.Equal(dec("150")) {
		t.Fatalf("first item = %+v, want consultation fee of 150", bill.Items[0])
	}
	if bill.PatientId != record.PatientId || bill.MedicalRecordId == nil || *bill.MedicalRecordId != record.ID {
		t.Fatalf("bill not linked to record %d: %+v", record.ID, bill)
	}
	if !strings.HasPrefix(bill.InvoiceNumber, "INV-") || !strings.HasSuffix(bill.InvoiceNumber, "-000001") {
		t.Fatalf("invoice number = %q", bill.InvoiceNumber)
	}

	got, err := models.GetBill(ctx, bill.ID)
	if err != nil {
		t.Fatalf("GetBill: %v", err)
	}
	if len(got.Bill.Items) != 3 || !got.Remaining.Equal(dec("240")) || !got.Paid.IsZero() {
		t.Fatalf("summary = items %d paid %s remaining %s", len(got.Bill.Items), got.Paid, got.Remaining)
	}
}

func TestGenerateBillSkipsDrugLinesAlreadyPaid(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	record := seedRecord(t, db, drugLine{name: "X", spec: "5mg", price: "10.00", qty: 2})

	first, err := models.GenerateBillForMedicalRecord(ctx, clerk, record.ID, false)
	if err != nil {
		t.Fatalf("first bill: %v", err)
	}
	if len(first.Items) != 1 || first.Items[0].Name != "X (5mg)" {
		t.Fatalf("first bill items = %+v", first.Items)
	}
	if _, err := models.RecordPayment(ctx, clerk, first.ID, dec("20"), models.PaymentMethodCash); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}

	addPrescription(t, db, record.ID, drugLine{name: "X", spec: "5mg", price: "10.00", qty: 3})

	second, err := models.GenerateBillForMedicalRecord(ctx, clerk, record.ID, false)
	if err != nil {
		t.Fatalf("second bill: %v", err)
	}
	if len(second.Items) != 1 {
		t.Fatalf("second bill items = %d, want 1", len(second.Items))
	}
	item := second.Items[0]
	if item.Name != "X (5mg)" || item.Quantity != 3 || !item.Subtotal.Equal(dec("30")) {
		t.Fatalf("second bill item = %+v, want X (5mg) x3", item)
	}
	if !second.TotalAmount.Equal(dec("30")) {
		t.Fatalf("second total = %s, want 30", second.TotalAmount)
	}
	if second.InvoiceNumber == first.InvoiceNumber {
		t.Fatalf("invoice number reused: %s", second.InvoiceNumber)
	}
}

func TestGenerateBillIgnoresUnpaidEarlierBills(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	record := seedRecord(t, db, drugLine{name: "X", price: "10.00", qty: 2})

	if _, err := models.GenerateBillForMedicalRecord(ctx, clerk, record.ID, false); err != nil {
		t.Fatalf("first bill: %v", err)
	}
	second, err := models.GenerateBillForMedicalRecord(ctx, clerk, record.ID, false)
	if err != nil {
		t.Fatalf("second bill: %v", err)
	}
	if len(second.Items) != 1 {
		t.Fatalf("unpaid bill lines must be billed again, got %d items", len(second.Items))
	}
}

func TestGenerateBillWithNothingToCharge(t *testing.T) {
	db := openTestDB(t)
	record := seedRecord(t, db)

	bill, err := models.GenerateBillForMedicalRecord(context.Background(), clerk, record.ID, false)
	if err != nil {
		t.Fatalf("GenerateBillForMedicalRecord: %v", err)
	}
	if !bill.TotalAmount.IsZero() || len(bill.Items) != 0 || bill.Status != models.BillStatusUnpaid {
		t.Fatalf("bill = total %s items %d status %s", bill.TotalAmount, len(bill.Items), bill.Status)
	}
}

func TestGenerateBillErrors(t *testing.T) {
	db := openTestDB(t)
	record := seedRecord(t, db, drugLine{name: "X", price: "10.00", qty: 1})

	_, err := models.GenerateBillForMedicalRecord(context.Background(), clerk, record.ID+100, true)
	if !errors.Is(err, utils.ErrResourceNotFound) {
		t.Fatalf("missing record: err = %v, want ResourceNotFound", err)
	}

	_, err = models.GenerateBillForMedicalRecord(context.Background(), nobody, record.ID, true)
	if !errors.Is(err, utils.ErrAuthenticationRequired) {
		t.Fatalf("anonymous: err = %v, want AuthenticationRequired", err)
	}
	if n := countRows(t, db, &models.Bill{}, "1 = 1"); n != 0 {
		t.Fatalf("bills written on error: %d", n)
	}
}

func TestGenerateBillRejectsNonPositiveQuantity(t *testing.T) {
	db := openTestDB(t)
	record := seedRecord(t, db, drugLine{name: "X", price: "10.00", qty: 0})

	_, err := models.GenerateBillForMedicalRecord(context.Background(), clerk, record.ID, true)
	if !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}
