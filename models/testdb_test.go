package models_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/mmdatafocus/clinic_backend/config"
	"github.com/mmdatafocus/clinic_backend/models"
	"github.com/mmdatafocus/clinic_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	clerk   = utils.Actor{ID: 7, Name: "Clerk"}
	nobody  = utils.Actor{}
	testFee = decimal.RequireFromString("150.00")
)

// openTestDB swaps the global handle for a private in-memory database with the
// audit plugin installed and every billing table migrated.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
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
	config.SetBillingSettings(config.BillingSettings{
		ConsultationFee: testFee,
		InvoicePrefix:   "INV",
		BillLockTTL:     time.Second,
	})
	t.Cleanup(func() {
		config.SetDB(prevDB)
		_ = sqlDB.Close()
	})
	return db
}

type drugLine struct {
	name  string
	spec  string
	price string
	qty   int
}

// seedRecord creates a patient and a medical record holding one prescription
// with the given lines.
func seedRecord(t *testing.T, db *gorm.DB, lines ...drugLine) *models.MedicalRecord {
	t.Helper()
	patient := models.Patient{Name: "Test Patient", Phone: "+8613800138000"}
	if err := db.Create(&patient).Error; err != nil {
		t.Fatalf("create patient: %v", err)
	}
	record := models.MedicalRecord{PatientId: patient.ID, DoctorName: "Dr. Test", VisitDate: time.Now().UTC()}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("create medical record: %v", err)
	}
	addPrescription(t, db, record.ID, lines...)
	return &record
}

func addPrescription(t *testing.T, db *gorm.DB, recordId int, lines ...drugLine) {
	t.Helper()
	if len(lines) == 0 {
		return
	}
	prescription := models.Prescription{MedicalRecordId: recordId, PrescribedAt: time.Now().UTC()}
	for _, l := range lines {
		drug := models.Drug{Name: l.name, Specification: l.spec, UnitPrice: decimal.RequireFromString(l.price)}
		if err := db.Where("name = ? AND specification = ?", l.name, l.spec).FirstOrCreate(&drug).Error; err != nil {
			t.Fatalf("create drug: %v", err)
		}
		prescription.Items = append(prescription.Items, models.PrescriptionItem{DrugId: drug.ID, Quantity: l.qty})
	}
	if err := db.Create(&prescription).Error; err != nil {
		t.Fatalf("create prescription: %v", err)
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func countRows(t *testing.T, db *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := db.Unscoped().Model(model).Where(query, args...).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
