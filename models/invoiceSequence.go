package models

import (
	"errors"
	"fmt"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InvoiceSequence hands out invoice numbers per prefix.
// The row is locked FOR UPDATE so two bills never share a number.
type InvoiceSequence struct {
	Prefix     string    `gorm:"primaryKey;size:20" json:"prefix"`
	NextNumber int       `gorm:"not null" json:"next_number"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// nextInvoiceNumber returns e.g. INV-20240115-000042.
func nextInvoiceNumber(tx *gorm.DB, prefix string, issueDate time.Time) (string, error) {
	n, err := nextSequenceValue(tx, prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%06d", prefix, issueDate.Format("20060102"), n), nil
}

func nextSequenceValue(tx *gorm.DB, prefix string) (int, error) {
	for attempt := 0; attempt < 2; attempt++ {
		var seq InvoiceSequence
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("prefix = ?", prefix).
			Take(&seq).Error
		if err == nil {
			value := seq.NextNumber
			if err := tx.Model(&InvoiceSequence{}).
				Where("prefix = ?", prefix).
				Update("next_number", value+1).Error; err != nil {
				return 0, err
			}
			return value, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}

		// first number for this prefix; a concurrent first insert loses the race
		// on the primary key and re-reads the locked row
		err = tx.Create(&InvoiceSequence{Prefix: prefix, NextNumber: 2}).Error
		if err == nil {
			return 1, nil
		}
		if !isDuplicateKeyErr(err) {
			return 0, err
		}
	}
	return 0, errors.New("could not allocate invoice number for prefix " + prefix)
}
