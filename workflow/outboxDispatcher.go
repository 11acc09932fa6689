package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/clinic_backend/config"
	"github.com/mmdatafocus/clinic_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PublishFunc sends one billing event and returns the broker message id.
type PublishFunc func(ctx context.Context, msg config.BillingEventMessage) (string, error)

// OutboxDispatcher publishes committed billing_events rows to Pub/Sub.
type OutboxDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	DispatcherID string
	Publish      PublishFunc

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

func NewOutboxDispatcher(db *gorm.DB, logger *logrus.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		DB:             db,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		Publish:        config.PublishBillingEvent,
		BatchSize:      50,
		PollInterval:   time.Second,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
	}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.dispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

// dispatchOnce claims a batch, publishes it and returns how many rows were sent.
func (d *OutboxDispatcher) dispatchOnce(ctx context.Context) int {
	if d.DB == nil || d.Publish == nil {
		return 0
	}
	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTimeout)

	var claimed []models.BillingEventRecord
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// PENDING / FAILED ready to retry, or PROCESSING with a stale lock
		q := tx.
			Where(`
				(
					publish_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
				)
				OR
				(
					publish_status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, []string{models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed}, now, models.OutboxPublishStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			if d.MaxAttempts > 0 && claimed[i].PublishAttempts >= d.MaxAttempts {
				msg := fmt.Sprintf("max publish attempts exceeded (%d)", d.MaxAttempts)
				claimed[i].PublishStatus = models.OutboxPublishStatusDead
				if err := tx.Model(&models.BillingEventRecord{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
					"publish_status":     models.OutboxPublishStatusDead,
					"last_publish_error": &msg,
					"next_attempt_at":    nil,
					"locked_at":          nil,
					"locked_by":          nil,
				}).Error; err != nil {
					return err
				}
				continue
			}

			claimed[i].PublishStatus = models.OutboxPublishStatusProcessing
			claimed[i].PublishAttempts++
			if err := tx.Model(&models.BillingEventRecord{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusProcessing,
				"locked_at":          &now,
				"locked_by":          &d.DispatcherID,
				"publish_attempts":   gorm.Expr("publish_attempts + 1"),
				"last_publish_error": nil,
				"next_attempt_at":    nil,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if d.Logger != nil {
			config.LogError(d.Logger, "workflow", "OutboxDispatcher", "claim billing events", nil, err)
		}
		return 0
	}

	sent := 0
	for _, rec := range claimed {
		if rec.PublishStatus == models.OutboxPublishStatusDead {
			continue
		}
		pubID, pubErr := d.Publish(ctx, models.ConvertToBillingEventMessage(rec))
		if pubErr != nil {
			d.markPublishFailed(ctx, rec, pubErr)
			continue
		}
		if d.markPublishSent(ctx, rec.ID, pubID) == nil {
			sent++
		}
	}
	return sent
}

// updateRecord writes a status change for one outbox row. A failed write is
// logged and left for the stale-lock reclaim to retry.
func (d *OutboxDispatcher) updateRecord(ctx context.Context, recordID int, action string, fields map[string]interface{}) error {
	fields["locked_at"] = nil
	fields["locked_by"] = nil
	err := d.DB.WithContext(ctx).Model(&models.BillingEventRecord{}).
		Where("id = ?", recordID).
		Updates(fields).Error
	if err != nil && d.Logger != nil {
		config.LogError(d.Logger, "workflow", "OutboxDispatcher", action, recordID, err)
	}
	return err
}

func (d *OutboxDispatcher) markPublishSent(ctx context.Context, recordID int, pubsubMsgID string) error {
	now := time.Now().UTC()
	return d.updateRecord(ctx, recordID, "mark billing event sent", map[string]interface{}{
		"publish_status":     models.OutboxPublishStatusSent,
		"published_at":       &now,
		"pub_sub_message_id": &pubsubMsgID,
		"next_attempt_at":    nil,
	})
}

// publishBackoff doubles InitialBackoff per earlier attempt, capped at ten minutes.
func (d *OutboxDispatcher) publishBackoff(attempt int) time.Duration {
	backoff := d.InitialBackoff
	for i := 1; i < attempt && backoff < maxPublishBackoff; i++ {
		backoff *= 2
	}
	if backoff > maxPublishBackoff {
		backoff = maxPublishBackoff
	}
	return backoff
}

const maxPublishBackoff = 10 * time.Minute

func (d *OutboxDispatcher) markPublishFailed(ctx context.Context, rec models.BillingEventRecord, pubErr error) {
	msg := pubErr.Error()
	fields := logrus.Fields{
		"field":      "OutboxDispatcher",
		"event_type": rec.EventType,
		"bill_id":    rec.BillId,
		"record_id":  rec.ID,
		"attempt":    rec.PublishAttempts,
	}

	if d.MaxAttempts > 0 && rec.PublishAttempts >= d.MaxAttempts {
		_ = d.updateRecord(ctx, rec.ID, "mark billing event dead", map[string]interface{}{
			"publish_status":     models.OutboxPublishStatusDead,
			"last_publish_error": &msg,
			"next_attempt_at":    nil,
		})
		if d.Logger != nil {
			d.Logger.WithFields(fields).Error("billing event moved to DEAD after max attempts: " + msg)
		}
		return
	}

	next := time.Now().UTC().Add(d.publishBackoff(rec.PublishAttempts))
	_ = d.updateRecord(ctx, rec.ID, "mark billing event failed", map[string]interface{}{
		"publish_status":     models.OutboxPublishStatusFailed,
		"last_publish_error": &msg,
		"next_attempt_at":    &next,
	})
	if d.Logger != nil {
		fields["next_attempt_at"] = next.Format(time.RFC3339Nano)
		d.Logger.WithFields(fields).Error("billing event publish failed: " + msg)
	}
}
