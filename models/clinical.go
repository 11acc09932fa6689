package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/clinic_backend/config"
	"github.com/mmdatafocus/clinic_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Patient, medical record and prescription tables are owned by the clinical
// side of the application. Billing only reads them.

type Patient struct {
	ID        int            `gorm:"primary_key" json:"id"`
	Name      string         `gorm:"size:255;not null" json:"name"`
	Phone     string         `gorm:"size:30" json:"phone"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

type MedicalRecord struct {
	ID            int            `gorm:"primary_key" json:"id"`
	PatientId     int            `gorm:"index;not null" json:"patient_id"`
	Patient       Patient        `json:"patient"`
	DoctorName    string         `gorm:"size:255" json:"doctor_name"`
	Diagnosis     string         `gorm:"type:text" json:"diagnosis"`
	VisitDate     time.Time      `json:"visit_date"`
	Prescriptions []Prescription `gorm:"foreignKey:MedicalRecordId" json:"prescriptions,omitempty"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

type Drug struct {
	ID            int             `gorm:"primary_key" json:"id"`
	Name          string          `gorm:"size:255;not null" json:"name"`
	Specification string          `gorm:"size:100" json:"specification"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"unit_price"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`
}

// DisplayName is the bill-line label: "Name (Specification)" or just the name.
func (d Drug) DisplayName() string {
	spec := strings.TrimSpace(d.Specification)
	if spec == "" {
		return d.Name
	}
	return fmt.Sprintf("%s (%s)", d.Name, spec)
}

type Prescription struct {
	ID              int                `gorm:"primary_key" json:"id"`
	MedicalRecordId int                `gorm:"index;not null" json:"medical_record_id"`
	PrescribedAt    time.Time          `json:"prescribed_at"`
	Items           []PrescriptionItem `gorm:"foreignKey:PrescriptionId" json:"items"`
	CreatedAt       time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt     `gorm:"index" json:"-"`
}

type PrescriptionItem struct {
	ID             int            `gorm:"primary_key" json:"id"`
	PrescriptionId int            `gorm:"index;not null" json:"prescription_id"`
	DrugId         int            `gorm:"index;not null" json:"drug_id"`
	Drug           Drug           `json:"drug"`
	Quantity       int            `gorm:"not null" json:"quantity"`
	Dosage         string         `gorm:"size:255" json:"dosage"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// DrugCharge is one prescription line resolved to what it would cost.
type DrugCharge struct {
	PrescriptionItemId int
	Name               string
	UnitPrice          decimal.Decimal
	Quantity           int
}

func (c DrugCharge) Subtotal() decimal.Decimal {
	return c.UnitPrice.Mul(decimal.NewFromInt(int64(c.Quantity))).Round(utils.MoneyPlaces)
}

// getMedicalRecordWithPatient resolves a live medical record and its patient.
func getMedicalRecordWithPatient(tx *gorm.DB, recordId int) (*MedicalRecord, error) {
	record, err := fetchActive[MedicalRecord](tx, recordId, "medical record", "Patient")
	if err != nil {
		return nil, err
	}
	if record.Patient.ID == 0 {
		return nil, utils.NotFound("patient of medical record %d not found", recordId)
	}
	return record, nil
}

// listDrugCharges resolves every live prescription line of a medical record,
// in prescription then line order. A drug retired after prescribing still
// bills at its recorded name and price.
func listDrugCharges(tx *gorm.DB, recordId int) ([]DrugCharge, error) {
	var prescriptions []Prescription
	err := tx.Where("medical_record_id = ?", recordId).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Items.Drug", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Order("id ASC").
		Find(&prescriptions).Error
	if err != nil {
		return nil, err
	}

	charges := make([]DrugCharge, 0)
	for _, p := range prescriptions {
		for _, item := range p.Items {
			if item.Drug.ID == 0 {
				return nil, utils.NotFound("drug %d of prescription item %d not found", item.DrugId, item.ID)
			}
			if item.Quantity <= 0 {
				return nil, utils.Validation("prescription item %d has non-positive quantity %d", item.ID, item.Quantity)
			}
			charges = append(charges, DrugCharge{
				PrescriptionItemId: item.ID,
				Name:               item.Drug.DisplayName(),
				UnitPrice:          item.Drug.UnitPrice.Round(utils.MoneyPlaces),
				Quantity:           item.Quantity,
			})
		}
	}
	return charges, nil
}

// GetPatient resolves a live patient.
func GetPatient(ctx context.Context, patientId int) (*Patient, error) {
	return fetchActive[Patient](config.GetDB().WithContext(ctx), patientId, "patient")
}
