// Package gateway normalizes asynchronous payment notifications from the
// supported gateways and creates outbound online-payment transactions.
package gateway

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mmdatafocus/clinic_backend/utils"
	"github.com/shopspring/decimal"
)

type Provider string

const (
	ProviderAlipay   Provider = "alipay"
	ProviderMidtrans Provider = "midtrans"
)

// ErrInvalidSignature marks a notification whose signature did not verify.
var ErrInvalidSignature = errors.New("invalid gateway signature")

// ErrUnverified marks a notification received while no gateway key is
// configured to check it.
var ErrUnverified = errors.New("gateway signature key not configured; notification not verified")

// RequireVerified turns an unverified notification into ErrUnverified when
// signatures are mandatory. Earlier parse errors are kept.
func RequireVerified(n Notification, err error, required bool) error {
	if err == nil && required && !n.SignatureValid {
		return ErrUnverified
	}
	return err
}

const tradeNoPrefix = "BILL-"

// Notification is a gateway callback reduced to what reconciliation needs.
type Notification struct {
	Provider              Provider
	OutTradeNo            string
	BillId                int
	ProviderTransactionId string
	TradeStatus           string
	Success               bool
	PaidAmount            decimal.Decimal
	SignatureValid        bool
	Payload               []byte
}

// OrderIdForBill builds the merchant trade number sent to a gateway.
// The attempt suffix keeps retries of the same bill unique at the gateway.
func OrderIdForBill(billId int, attempt int64) string {
	return fmt.Sprintf("%s%d-%d", tradeNoPrefix, billId, attempt)
}

// BillIdFromTradeNo accepts "42", "BILL-42" and "BILL-42-<attempt>".
func BillIdFromTradeNo(outTradeNo string) (int, error) {
	s := strings.TrimSpace(outTradeNo)
	s = strings.TrimPrefix(s, tradeNoPrefix)
	if i := strings.IndexByte(s, '-'); i >= 0 {
		s = s[:i]
	}
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, utils.Validation("out_trade_no %q does not reference a bill", outTradeNo)
	}
	return id, nil
}

func parseAmount(field string, value string) (decimal.Decimal, error) {
	if strings.TrimSpace(value) == "" {
		return decimal.Zero, utils.Validation("%s is required", field)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, utils.Validation("%s %q is not a valid amount", field, value)
	}
	return d.Round(utils.MoneyPlaces), nil
}
