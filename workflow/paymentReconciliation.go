package workflow

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/mmdatafocus/clinic_backend/config"
	"github.com/mmdatafocus/clinic_backend/gateway"
	"github.com/mmdatafocus/clinic_backend/models"
	"github.com/mmdatafocus/clinic_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("clinic-billing/workflow")

// ProcessGatewayNotification applies a successful gateway notification to its
// bill exactly once. Failed or pending trades, already paid bills and
// replayed transaction ids leave the bill unchanged.
func ProcessGatewayNotification(ctx context.Context, n gateway.Notification) (*models.Bill, models.GatewayOutcome, error) {
	ctx, span := tracer.Start(ctx, "ProcessGatewayNotification",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("gateway.provider", string(n.Provider)),
			attribute.String("gateway.trade_status", n.TradeStatus),
			attribute.Int("bill.id", n.BillId),
		))
	defer span.End()

	bill, outcome, err := reconcile(ctx, n)
	span.SetAttributes(attribute.String("reconciliation.outcome", string(outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return bill, outcome, err
}

func reconcile(ctx context.Context, n gateway.Notification) (*models.Bill, models.GatewayOutcome, error) {
	if n.BillId <= 0 {
		return nil, models.GatewayOutcomeFailed, utils.Validation("notification does not reference a bill")
	}
	method := models.PaymentMethod(n.Provider)
	if !method.IsOnline() {
		return nil, models.GatewayOutcomeFailed, utils.Validation("unsupported gateway %q", n.Provider)
	}

	release := utils.ObtainBillLock(ctx, n.BillId, "workflow", "ProcessGatewayNotification")
	defer release()

	ctx = utils.WithActor(ctx, utils.SystemActor)
	db := config.GetDB()
	var (
		result  *models.Bill
		outcome models.GatewayOutcome
	)
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bill, err := models.LockBill(tx, n.BillId)
		if err != nil {
			return err
		}
		result = bill

		if !n.Success {
			outcome = models.GatewayOutcomeIgnored
			return nil
		}
		if bill.Status == models.BillStatusPaid {
			outcome = models.GatewayOutcomeDuplicate
			return nil
		}

		txnId := strings.TrimSpace(n.ProviderTransactionId)
		if txnId == "" {
			return utils.Validation("provider transaction id is required")
		}
		existing, err := models.FindPaymentByProviderTransaction(tx, method, txnId)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.BillId == bill.ID {
				outcome = models.GatewayOutcomeDuplicate
				return nil
			}
			return utils.BusinessRule("%s transaction %s was already applied to bill %d", method, txnId, existing.BillId)
		}

		if _, err := models.ApplyPaymentTx(tx, bill, models.PaymentInput{
			Amount:                n.PaidAmount,
			Method:                method,
			ProviderTransactionId: txnId,
		}); err != nil {
			return err
		}
		outcome = models.GatewayOutcomeApplied
		return nil
	})
	if err != nil {
		return nil, models.GatewayOutcomeFailed, err
	}
	return result, outcome, nil
}

// AcknowledgeGatewayNotification is the webhook boundary: it processes a parsed
// notification, records the delivery and logs any failure. It never returns an
// error because the gateway must always receive a success acknowledgment.
func AcknowledgeGatewayNotification(ctx context.Context, n gateway.Notification, parseErr error, headers http.Header) models.GatewayOutcome {
	logger := config.GetLogger()
	outcome := models.GatewayOutcomeFailed
	procErr := parseErr
	if parseErr == nil {
		_, outcome, procErr = ProcessGatewayNotification(ctx, n)
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	if procErr != nil {
		logger.WithFields(logrus.Fields{
			"module":         "workflow",
			"funcName":       "AcknowledgeGatewayNotification",
			"provider":       n.Provider,
			"out_trade_no":   n.OutTradeNo,
			"trade_no":       n.ProviderTransactionId,
			"trade_status":   n.TradeStatus,
			"correlation_id": correlationId,
		}).Error("gateway notification not applied: " + procErr.Error())
	}

	entry := &models.GatewayNotification{
		Provider:              string(n.Provider),
		OutTradeNo:            n.OutTradeNo,
		ProviderTransactionId: n.ProviderTransactionId,
		TradeStatus:           n.TradeStatus,
		PaidAmount:            n.PaidAmount,
		SignatureValid:        n.SignatureValid,
		Outcome:               outcome,
		Headers:               headerMap(headers),
		Payload:               payloadJSON(n.Payload),
		CorrelationId:         correlationId,
		ReceivedAt:            time.Now().UTC(),
	}
	if n.BillId > 0 {
		billId := n.BillId
		entry.BillId = &billId
	}
	if procErr != nil {
		msg := procErr.Error()
		entry.Error = &msg
	}
	if err := models.LogGatewayNotification(ctx, entry); err != nil {
		config.LogError(logger, "workflow", "AcknowledgeGatewayNotification", "LogGatewayNotification", n.OutTradeNo, err)
	}
	return outcome
}

var loggedHeaders = []string{"Content-Type", "User-Agent", "X-Forwarded-For", "X-Correlation-Id"}

func headerMap(h http.Header) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for _, k := range loggedHeaders {
		if v := h.Get(k); v != "" {
			out[k] = v
		}
	}
	return out
}

// payloadJSON stores the raw body as JSON; form bodies are wrapped as a string.
func payloadJSON(body []byte) datatypes.JSON {
	if len(body) == 0 {
		return datatypes.JSON("null")
	}
	if json.Valid(body) {
		return datatypes.JSON(body)
	}
	wrapped, _ := json.Marshal(string(body))
	return datatypes.JSON(wrapped)
}
