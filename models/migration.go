package models

import (
	"log"

	"github.com/mmdatafocus/clinic_backend/config"
	"gorm.io/gorm"
)

// AllTables lists every table the billing service owns or reads, in creation order.
func AllTables() []interface{} {
	return []interface{}{
		&Patient{}, &MedicalRecord{}, &Drug{}, &Prescription{}, &PrescriptionItem{},
		&Bill{}, &BillItem{}, &Payment{},
		&BillHistory{}, &BillItemHistory{}, &PaymentHistory{},
		&InvoiceSequence{}, &BillingEventRecord{}, &GatewayNotification{},
	}
}

func MigrateTable() {
	if err := Migrate(config.GetDB()); err != nil {
		log.Fatal(err)
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(AllTables()...)
}
