package models

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mmdatafocus/clinic_backend/utils"
	"gorm.io/gorm"
)

// AuditPlugin writes one history row per inserted, updated or deleted
// Bill, BillItem or Payment inside the statement's own transaction.
// A failed history insert fails the statement, so the mutation rolls back with it.
//
// NOTE: audited entities must be mutated through loaded structs
// (Create/Save/Delete on the value). Model(&T{}).Where(...).Updates(...) has
// no row to snapshot and is rejected.
type AuditPlugin struct {
	now func() time.Time
}

func NewAuditPlugin() *AuditPlugin {
	return &AuditPlugin{now: func() time.Time { return time.Now().UTC() }}
}

func (p *AuditPlugin) Name() string { return "audit_history" }

func (p *AuditPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Create().After("gorm:after_create").Before("gorm:commit_or_rollback_transaction").
		Register("audit_history:create", p.callback(AuditActionInsert)); err != nil {
		return err
	}
	if err := db.Callback().Update().After("gorm:after_update").Before("gorm:commit_or_rollback_transaction").
		Register("audit_history:update", p.callback(AuditActionUpdate)); err != nil {
		return err
	}
	if err := db.Callback().Delete().After("gorm:after_delete").Before("gorm:commit_or_rollback_transaction").
		Register("audit_history:delete", p.callback(AuditActionDelete)); err != nil {
		return err
	}
	return nil
}

func (p *AuditPlugin) callback(action AuditAction) func(*gorm.DB) {
	return func(db *gorm.DB) {
		if db.Error != nil || db.Statement == nil || db.Statement.Schema == nil {
			return
		}
		if !isAuditedModel(db.Statement.Schema.ModelType) {
			return
		}
		if action != AuditActionInsert && db.RowsAffected == 0 {
			return
		}

		actor, ok := utils.ActorFromContext(db.Statement.Context)
		if !ok {
			actor = utils.SystemActor
		}
		actor = actor.OrSystem()
		stamp := AuditStamp{
			ActionType:      action,
			ActionTimestamp: p.now(),
			ActionBy:        actor.ID,
			ActionByName:    actor.Name,
		}

		entities, err := statementEntities(db.Statement.ReflectValue)
		if err != nil {
			db.AddError(fmt.Errorf("audit %s %s: %w", action, db.Statement.Table, err))
			return
		}
		for _, entity := range entities {
			row, entityId, audited := auditSnapshot(entity, stamp)
			if !audited {
				continue
			}
			if entityId == 0 {
				db.AddError(fmt.Errorf("audit %s %s: statement has no loaded row to snapshot", action, db.Statement.Table))
				return
			}
			// same connection and context as the statement, so same transaction
			if err := db.Session(&gorm.Session{NewDB: true, SkipHooks: true}).Create(row).Error; err != nil {
				db.AddError(fmt.Errorf("audit %s %s %d: %w", action, db.Statement.Table, entityId, err))
				return
			}
		}
	}
}

var auditedModelTypes = map[reflect.Type]bool{
	reflect.TypeOf(Bill{}):     true,
	reflect.TypeOf(BillItem{}): true,
	reflect.TypeOf(Payment{}):  true,
}

func isAuditedModel(t reflect.Type) bool {
	return auditedModelTypes[t]
}

// statementEntities turns the statement value (struct, pointer or slice) into
// entity pointers for auditSnapshot.
func statementEntities(v reflect.Value) ([]any, error) {
	v = reflect.Indirect(v)
	switch v.Kind() {
	case reflect.Struct:
		return []any{entityPointer(v)}, nil
	case reflect.Slice, reflect.Array:
		out := make([]any, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			elem := reflect.Indirect(v.Index(i))
			if elem.Kind() != reflect.Struct {
				return nil, fmt.Errorf("unexpected element kind %s", elem.Kind())
			}
			out = append(out, entityPointer(elem))
		}
		return out, nil
	case reflect.Invalid:
		return nil, fmt.Errorf("statement has no value")
	}
	return nil, fmt.Errorf("unexpected statement kind %s", v.Kind())
}

func entityPointer(v reflect.Value) any {
	if v.CanAddr() {
		return v.Addr().Interface()
	}
	ptr := reflect.New(v.Type())
	ptr.Elem().Set(v)
	return ptr.Interface()
}
