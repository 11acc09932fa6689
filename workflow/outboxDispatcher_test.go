package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/clinic_backend/config"
	"github.com/mmdatafocus/clinic_backend/models"
	"github.com/mmdatafocus/clinic_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"gorm.io/gorm"
)

func loadEvents(t *testing.T, db *gorm.DB) []models.BillingEventRecord {
	t.Helper()
	var rows []models.BillingEventRecord
	if err := db.Order("id ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load billing events: %v", err)
	}
	return rows
}

func TestOutboxDispatcherPublishesPendingEvents(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	bill := seedBill(t, db, "INV-1", "240")
	if _, err := models.RecordPayment(ctx, utils.Actor{ID: 3, Name: "Cashier"}, bill.ID, decimal.RequireFromString("240"), models.PaymentMethodCash); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}

	var published []config.BillingEventMessage
	d := NewOutboxDispatcher(db, logrus.New())
	d.Publish = func(ctx context.Context, msg config.BillingEventMessage) (string, error) {
		published = append(published, msg)
		return "msg-" + msg.EventType, nil
	}

	if sent := d.dispatchOnce(ctx); sent != 2 {
		t.Fatalf("sent = %d, want 2", sent)
	}
	if len(published) != 2 || published[0].EventType != string(models.BillingEventPaymentRecorded) || published[1].EventType != string(models.BillingEventBillSettled) {
		t.Fatalf("published = %+v", published)
	}
	if published[0].BillId != bill.ID || len(published[0].Payload) == 0 {
		t.Fatalf("message = %+v", published[0])
	}
	for _, rec := range loadEvents(t, db) {
		if rec.PublishStatus != models.OutboxPublishStatusSent || rec.PubSubMessageId == nil {
			t.Fatalf("event %d status %s", rec.ID, rec.PublishStatus)
		}
	}

	if sent := d.dispatchOnce(ctx); sent != 0 {
		t.Fatalf("second pass sent = %d, want 0", sent)
	}
}

func TestOutboxDispatcherRetriesThenGivesUp(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	bill := seedBill(t, db, "INV-1", "240")
	if _, err := models.VoidBill(ctx, utils.Actor{ID: 3, Name: "Cashier"}, bill.ID); err != nil {
		t.Fatalf("VoidBill: %v", err)
	}

	d := NewOutboxDispatcher(db, logrus.New())
	d.MaxAttempts = 1
	d.Publish = func(ctx context.Context, msg config.BillingEventMessage) (string, error) {
		return "", errors.New("broker unavailable")
	}

	if sent := d.dispatchOnce(ctx); sent != 0 {
		t.Fatalf("sent = %d, want 0", sent)
	}
	events := loadEvents(t, db)
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	rec := events[0]
	if rec.EventType != models.BillingEventBillVoided || rec.PublishStatus != models.OutboxPublishStatusDead {
		t.Fatalf("event = %s/%s, want bill.voided DEAD", rec.EventType, rec.PublishStatus)
	}
	if rec.LastPublishError == nil || *rec.LastPublishError != "broker unavailable" {
		t.Fatalf("last error = %v", rec.LastPublishError)
	}
}

func TestOutboxDispatcherBacksOffFailedPublish(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	bill := seedBill(t, db, "INV-1", "240")
	if _, err := models.VoidBill(ctx, utils.Actor{ID: 3, Name: "Cashier"}, bill.ID); err != nil {
		t.Fatalf("VoidBill: %v", err)
	}

	d := NewOutboxDispatcher(db, logrus.New())
	calls := 0
	d.Publish = func(ctx context.Context, msg config.BillingEventMessage) (string, error) {
		calls++
		return "", errors.New("broker unavailable")
	}

	d.dispatchOnce(ctx)
	rec := loadEvents(t, db)[0]
	if rec.PublishStatus != models.OutboxPublishStatusFailed || rec.NextAttemptAt == nil || rec.PublishAttempts != 1 {
		t.Fatalf("event = status %s attempts %d next %v", rec.PublishStatus, rec.PublishAttempts, rec.NextAttemptAt)
	}
	// next_attempt_at is in the future, so nothing is claimed
	d.dispatchOnce(ctx)
	if calls != 1 {
		t.Fatalf("publish calls = %d, want 1", calls)
	}
}

func TestOutboxPublishBackoff(t *testing.T) {
	d := &OutboxDispatcher{InitialBackoff: 5 * time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 5 * time.Second},
		{attempt: 1, want: 5 * time.Second},
		{attempt: 2, want: 10 * time.Second},
		{attempt: 4, want: 40 * time.Second},
		{attempt: 30, want: 10 * time.Minute},
	}
	for _, tt := range tests {
		if got := d.publishBackoff(tt.attempt); got != tt.want {
			t.Fatalf("publishBackoff(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestOutboxDispatcherLogsFailedStatusWrite(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	bill := seedBill(t, db, "INV-1", "240")
	if _, err := models.VoidBill(ctx, utils.Actor{ID: 3, Name: "Cashier"}, bill.ID); err != nil {
		t.Fatalf("VoidBill: %v", err)
	}

	logger, hook := logtest.NewNullLogger()
	d := NewOutboxDispatcher(db, logger)
	d.Publish = func(ctx context.Context, msg config.BillingEventMessage) (string, error) {
		// the row can no longer be marked sent
		if err := db.Migrator().DropTable(&models.BillingEventRecord{}); err != nil {
			t.Fatalf("drop billing events: %v", err)
		}
		return "msg-1", nil
	}

	if sent := d.dispatchOnce(ctx); sent != 0 {
		t.Fatalf("sent = %d, want 0 when the status write fails", sent)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.ErrorLevel || entry.Data["context"] != "mark billing event sent" {
		t.Fatalf("last log entry = %+v, want logged status write failure", entry)
	}
}
