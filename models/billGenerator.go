package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/clinic_backend/config"
	"github.com/mmdatafocus/clinic_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const consultationItemName = "Consultation fee"

// settledDrugKey identifies a drug charge by (name, unit price, quantity).
// There is no link from a prescription line to the bill item that charged it,
// so a later prescription of the same drug, price and quantity is
// indistinguishable from the one already paid and is skipped too.
type settledDrugKey struct {
	Name      string
	UnitPrice string
	Quantity  int
}

func newSettledDrugKey(name string, unitPrice decimal.Decimal, quantity int) settledDrugKey {
	return settledDrugKey{Name: name, UnitPrice: utils.FormatMoney(unitPrice), Quantity: quantity}
}

// settledDrugKeys collects the drug lines of live PAID bills of a medical record.
func settledDrugKeys(tx *gorm.DB, recordId int) (map[settledDrugKey]bool, error) {
	var paidBills []Bill
	err := tx.Where("medical_record_id = ? AND status = ?", recordId, BillStatusPaid).
		Preload("Items", "category = ?", ItemCategoryDrug).
		Find(&paidBills).Error
	if err != nil {
		return nil, err
	}
	settled := make(map[settledDrugKey]bool)
	for _, b := range paidBills {
		for _, item := range b.Items {
			settled[newSettledDrugKey(item.Name, item.UnitPrice, item.Quantity)] = true
		}
	}
	return settled, nil
}

// GenerateBillForMedicalRecord bills a medical record's consultation and
// prescriptions, skipping drug lines already settled on an earlier PAID bill
// of the same record. A record may be billed any number of times.
func GenerateBillForMedicalRecord(ctx context.Context, actor utils.Actor, recordId int, includeConsultationFee bool) (*Bill, error) {
	if !actor.IsAuthenticated() {
		return nil, utils.AuthRequired("an authenticated user is required to generate a bill")
	}
	settings := config.GetBillingSettings()

	ctx = utils.WithActor(ctx, actor)
	db := config.GetDB()
	var bill *Bill
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := getMedicalRecordWithPatient(tx, recordId)
		if err != nil {
			return err
		}

		items := make([]BillItem, 0)
		total := decimal.Zero
		addItem := func(item BillItem) {
			items = append(items, item)
			total = total.Add(item.Subtotal)
		}
		if includeConsultationFee {
			addItem(newBillItem(consultationItemName, ItemCategoryConsultation, 1, settings.ConsultationFee))
		}

		settled, err := settledDrugKeys(tx, record.ID)
		if err != nil {
			return err
		}
		charges, err := listDrugCharges(tx, record.ID)
		if err != nil {
			return err
		}
		for _, charge := range charges {
			if settled[newSettledDrugKey(charge.Name, charge.UnitPrice, charge.Quantity)] {
				continue
			}
			addItem(newBillItem(charge.Name, ItemCategoryDrug, charge.Quantity, charge.UnitPrice))
		}

		issueDate := time.Now().UTC()
		invoiceNumber, err := nextInvoiceNumber(tx, settings.InvoicePrefix, issueDate)
		if err != nil {
			return err
		}
		medicalRecordId := record.ID
		bill = &Bill{
			InvoiceNumber:   invoiceNumber,
			PatientId:       record.PatientId,
			MedicalRecordId: &medicalRecordId,
			IssueDate:       issueDate,
			TotalAmount:     total,
			Status:          BillStatusUnpaid,
			Items:           items,
		}
		if !sumItemSubtotals(bill.Items).Equal(bill.TotalAmount) {
			return fmt.Errorf("bill total %s does not match its items", utils.FormatMoney(bill.TotalAmount))
		}
		if err := tx.Create(bill).Error; err != nil {
			return err
		}
		return enqueueBillingEvent(tx, BillingEventBillGenerated, bill, nil)
	})
	if err != nil {
		return nil, err
	}
	return bill, nil
}
