package gateway

import (
	"errors"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/mmdatafocus/clinic_backend/utils"
	"github.com/shopspring/decimal"
)

// SnapTransactionCreator is the part of snap.Client used to start a payment.
type SnapTransactionCreator interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

// NewSnapClient returns a Snap client for the sandbox or production environment.
func NewSnapClient(serverKey string, production bool) *snap.Client {
	var c snap.Client
	if production {
		c.New(serverKey, midtrans.Production)
	} else {
		c.New(serverKey, midtrans.Sandbox)
	}
	return &c
}

// OnlinePaymentRequest describes one Snap checkout for a bill balance.
type OnlinePaymentRequest struct {
	OrderId       string
	InvoiceNumber string
	Amount        decimal.Decimal
	CustomerName  string
	CustomerPhone string
}

type OnlinePaymentSession struct {
	OrderId     string `json:"order_id"`
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// CreateSnapTransaction opens a Snap checkout. Snap amounts are whole units.
func CreateSnapTransaction(client SnapTransactionCreator, in OnlinePaymentRequest) (*OnlinePaymentSession, error) {
	if client == nil {
		return nil, errors.New("midtrans client is not configured")
	}
	if !in.Amount.IsPositive() {
		return nil, utils.Validation("online payment amount must be greater than zero")
	}
	if !in.Amount.Equal(in.Amount.Truncate(0)) {
		return nil, utils.Validation("online payment amount %s must be a whole number", utils.FormatMoney(in.Amount))
	}
	gross := in.Amount.IntPart()

	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  in.OrderId,
			GrossAmt: gross,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: in.CustomerName,
			Phone: in.CustomerPhone,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:       in.OrderId,
				Price:    gross,
				Qty:      1,
				Name:     truncate("Invoice "+in.InvoiceNumber, 50),
				Category: "clinic",
			},
		},
	}

	resp, midErr := client.CreateTransaction(req)
	if midErr != nil {
		return nil, midErr
	}
	return &OnlinePaymentSession{
		OrderId:     in.OrderId,
		Token:       resp.Token,
		RedirectURL: resp.RedirectURL,
	}, nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
