package models

type BillStatus string

const (
	BillStatusUnpaid        BillStatus = "UNPAID"
	BillStatusPartiallyPaid BillStatus = "PARTIALLY_PAID"
	BillStatusPaid          BillStatus = "PAID"
	BillStatusVoid          BillStatus = "VOID"
)

func (e BillStatus) IsValid() bool {
	switch e {
	case BillStatusUnpaid, BillStatusPartiallyPaid, BillStatusPaid, BillStatusVoid:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition may leave this status.
func (e BillStatus) IsTerminal() bool {
	return e == BillStatusPaid || e == BillStatusVoid
}

func (e BillStatus) String() string {
	return string(e)
}

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodAlipay   PaymentMethod = "alipay"
	PaymentMethodMidtrans PaymentMethod = "midtrans"
)

func (e PaymentMethod) IsValid() bool {
	switch e {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodAlipay, PaymentMethodMidtrans:
		return true
	}
	return false
}

// IsOnline reports whether the method is settled through a payment gateway.
func (e PaymentMethod) IsOnline() bool {
	return e == PaymentMethodAlipay || e == PaymentMethodMidtrans
}

func (e PaymentMethod) String() string {
	return string(e)
}

// ItemCategory tags a bill line. Values other than the two below are free text.
type ItemCategory string

const (
	ItemCategoryConsultation ItemCategory = "consultation"
	ItemCategoryDrug         ItemCategory = "drug"
)

type AuditAction string

const (
	AuditActionInsert AuditAction = "INSERT"
	AuditActionUpdate AuditAction = "UPDATE"
	AuditActionDelete AuditAction = "DELETE"
)

type BillingEventType string

const (
	BillingEventBillGenerated   BillingEventType = "bill.generated"
	BillingEventPaymentRecorded BillingEventType = "payment.recorded"
	BillingEventBillSettled     BillingEventType = "bill.settled"
	BillingEventBillVoided      BillingEventType = "bill.voided"
	BillingEventBillDeleted     BillingEventType = "bill.deleted"
)

const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// GatewayOutcome records what reconciliation did with one webhook delivery.
type GatewayOutcome string

const (
	GatewayOutcomeApplied   GatewayOutcome = "applied"
	GatewayOutcomeIgnored   GatewayOutcome = "ignored"
	GatewayOutcomeDuplicate GatewayOutcome = "duplicate"
	GatewayOutcomeFailed    GatewayOutcome = "failed"
)
