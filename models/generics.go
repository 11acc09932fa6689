package models

import (
	"errors"
	"time"

	"github.com/mmdatafocus/clinic_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Lifecycle is the soft-delete state shared by every mutable entity.
// gorm.DeletedAt drives it: gorm's default scope hides tombstoned rows from
// every query, so call sites never filter on deleted_at themselves.
type Lifecycle string

const (
	LifecycleActive     Lifecycle = "active"
	LifecycleTombstoned Lifecycle = "tombstoned"
)

func lifecycleOf(deletedAt gorm.DeletedAt) Lifecycle {
	if deletedAt.Valid {
		return LifecycleTombstoned
	}
	return LifecycleActive
}

func deletedAtPtr(deletedAt gorm.DeletedAt) *time.Time {
	if !deletedAt.Valid {
		return nil
	}
	t := deletedAt.Time
	return &t
}

// fetchActive loads one live row by id.
// (may return ResourceNotFound)
func fetchActive[T any](tx *gorm.DB, id int, label string, preloads ...string) (*T, error) {
	q := tx
	for _, field := range preloads {
		q = q.Preload(field)
	}
	var result T
	if err := q.First(&result, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFound("%s %d not found", label, id)
		}
		return nil, err
	}
	return &result, nil
}

// lockActive loads one live row by id holding SELECT ... FOR UPDATE until the
// surrounding transaction ends.
func lockActive[T any](tx *gorm.DB, id int, label string) (*T, error) {
	return fetchActive[T](tx.Clauses(clause.Locking{Strength: "UPDATE"}), id, label)
}

// tombstone soft-deletes loaded rows so the audit trail sees their full state.
func tombstone[T any](tx *gorm.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.Delete(&rows).Error
}
