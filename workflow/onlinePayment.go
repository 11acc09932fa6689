package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/clinic_backend/gateway"
	"github.com/mmdatafocus/clinic_backend/models"
	"github.com/mmdatafocus/clinic_backend/utils"
)

// StartOnlinePayment opens a Midtrans Snap checkout for a bill's remaining
// balance. The resulting notification comes back through the webhook.
func StartOnlinePayment(ctx context.Context, actor utils.Actor, billId int, client gateway.SnapTransactionCreator) (*gateway.OnlinePaymentSession, error) {
	if !actor.IsAuthenticated() {
		return nil, utils.AuthRequired("an authenticated user is required to start an online payment")
	}
	summary, err := models.GetBill(ctx, billId)
	if err != nil {
		return nil, err
	}
	bill := summary.Bill
	if bill.Status.IsTerminal() {
		return nil, utils.Validation("bill %s is %s; nothing to pay", bill.InvoiceNumber, bill.Status)
	}
	if !summary.Remaining.IsPositive() {
		return nil, utils.Validation("bill %s has no remaining balance", bill.InvoiceNumber)
	}
	patient, err := models.GetPatient(ctx, bill.PatientId)
	if err != nil {
		return nil, err
	}

	return gateway.CreateSnapTransaction(client, gateway.OnlinePaymentRequest{
		OrderId:       gateway.OrderIdForBill(bill.ID, time.Now().Unix()),
		InvoiceNumber: bill.InvoiceNumber,
		Amount:        summary.Remaining,
		CustomerName:  patient.Name,
		CustomerPhone: patient.Phone,
	})
}
