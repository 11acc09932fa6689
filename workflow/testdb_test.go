package workflow

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/mmdatafocus/clinic_backend/config"
	"github.com/mmdatafocus/clinic_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Use(models.NewAuditPlugin()); err != nil {
		t.Fatalf("install audit plugin: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	prevDB := config.GetDB()
	config.SetDB(db)
	t.Cleanup(func() {
		config.SetDB(prevDB)
		_ = sqlDB.Close()
	})
	return db
}

// seedBill writes an UNPAID bill for a new patient directly.
func seedBill(t *testing.T, db *gorm.DB, invoice string, total string) *models.Bill {
	t.Helper()
	patient := models.Patient{Name: "Online Payer", Phone: "+8613800138000"}
	if err := db.Create(&patient).Error; err != nil {
		t.Fatalf("create patient: %v", err)
	}
	bill := models.Bill{
		InvoiceNumber: invoice,
		PatientId:     patient.ID,
		IssueDate:     time.Now().UTC(),
		TotalAmount:   decimal.RequireFromString(total),
		Status:        models.BillStatusUnpaid,
	}
	if err := db.Create(&bill).Error; err != nil {
		t.Fatalf("create bill: %v", err)
	}
	return &bill
}

func countPayments(t *testing.T, db *gorm.DB, billId int) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&models.Payment{}).Where("bill_id = ?", billId).Count(&n).Error; err != nil {
		t.Fatalf("count payments: %v", err)
	}
	return n
}
