package gateway

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/mmdatafocus/clinic_backend/utils"
)

type midtransNotification struct {
	TransactionStatus string `json:"transaction_status"`
	StatusCode        string `json:"status_code"`
	SignatureKey      string `json:"signature_key"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	TransactionID     string `json:"transaction_id"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
}

// MidtransSignature is SHA512(order_id + status_code + gross_amount + server_key), hex encoded.
func MidtransSignature(orderId, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderId + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func midtransSuccess(transactionStatus, fraudStatus string) bool {
	switch strings.ToLower(transactionStatus) {
	case "settlement":
		return true
	case "capture":
		fs := strings.ToLower(fraudStatus)
		return fs == "" || fs == "accept"
	}
	return false
}

// ParseMidtransNotification reads a Midtrans HTTP notification. With an empty
// server key the signature is not checked.
func ParseMidtransNotification(body []byte, serverKey string) (Notification, error) {
	n := Notification{Provider: ProviderMidtrans, Payload: body}
	var raw midtransNotification
	if err := json.Unmarshal(body, &raw); err != nil {
		return n, utils.Validation("malformed midtrans notification: %v", err)
	}
	n.OutTradeNo = strings.TrimSpace(raw.OrderID)
	n.ProviderTransactionId = strings.TrimSpace(raw.TransactionID)
	n.TradeStatus = strings.TrimSpace(raw.TransactionStatus)

	if serverKey != "" {
		expected := MidtransSignature(raw.OrderID, raw.StatusCode, raw.GrossAmount, serverKey)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(raw.SignatureKey))) != 1 {
			return n, ErrInvalidSignature
		}
		n.SignatureValid = true
	}

	if n.OutTradeNo == "" || n.ProviderTransactionId == "" || n.TradeStatus == "" {
		return n, utils.Validation("order_id, transaction_id and transaction_status are required")
	}
	billId, err := BillIdFromTradeNo(n.OutTradeNo)
	if err != nil {
		return n, err
	}
	n.BillId = billId
	n.Success = midtransSuccess(n.TradeStatus, raw.FraudStatus)
	if n.Success || raw.GrossAmount != "" {
		amount, err := parseAmount("gross_amount", raw.GrossAmount)
		if err != nil {
			return n, err
		}
		n.PaidAmount = amount
	}
	return n, nil
}
