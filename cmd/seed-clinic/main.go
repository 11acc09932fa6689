// seed-clinic creates a demo patient with one medical record and prescription,
// so the billing endpoints have something to bill.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-clinic
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mmdatafocus/clinic_backend/config"
	"github.com/mmdatafocus/clinic_backend/models"
	"github.com/mmdatafocus/clinic_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	seedPatientName  = "Demo Patient"
	seedPatientPhone = "13800138000"
)

type seedDrug struct {
	name  string
	spec  string
	price string
	qty   int
}

var seedDrugs = []seedDrug{
	{name: "Amoxicillin", spec: "500mg", price: "12.50", qty: 2},
	{name: "Ibuprofen", spec: "200mg", price: "8.00", qty: 1},
}

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry(models.NewAuditPlugin())
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	if err := models.Migrate(db); err != nil {
		fmt.Fprintf(os.Stderr, "failed to migrate: %v\n", err)
		os.Exit(1)
	}

	phone, err := utils.FormatPhoneNumber(seedPatientPhone, utils.CountryCode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid seed phone: %v\n", err)
		os.Exit(1)
	}

	var recordId int
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		patient := models.Patient{Name: seedPatientName, Phone: phone}
		if err := tx.Where("phone = ?", phone).FirstOrCreate(&patient).Error; err != nil {
			return err
		}

		record := models.MedicalRecord{
			PatientId:  patient.ID,
			DoctorName: "Dr. Seed",
			Diagnosis:  "Seeded visit",
			VisitDate:  time.Now().UTC(),
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}

		prescription := models.Prescription{MedicalRecordId: record.ID, PrescribedAt: record.VisitDate}
		for _, d := range seedDrugs {
			drug := models.Drug{Name: d.name, Specification: d.spec, UnitPrice: decimal.RequireFromString(d.price)}
			if err := tx.Where("name = ? AND specification = ?", d.name, d.spec).FirstOrCreate(&drug).Error; err != nil {
				return err
			}
			prescription.Items = append(prescription.Items, models.PrescriptionItem{DrugId: drug.ID, Quantity: d.qty})
		}
		if err := tx.Create(&prescription).Error; err != nil {
			return err
		}
		recordId = record.ID
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed clinic data: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Seeded medical record %d. Generate its bill with POST /bills/generate {\"medical_record_id\": %d}\n", recordId, recordId)
}
