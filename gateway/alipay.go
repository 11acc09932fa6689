package gateway

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mmdatafocus/clinic_backend/utils"
	"github.com/smartwalle/alipay/v3"
)

var alipaySuccessStatuses = map[string]bool{
	"TRADE_SUCCESS":  true,
	"TRADE_FINISHED": true,
}

// AlipayVerifier checks the RSA2 signature of an Alipay callback.
// *alipay.Client satisfies it.
type AlipayVerifier interface {
	VerifySign(values url.Values) error
}

// NewAlipayClient builds a merchant client that trusts alipayPublicKey for
// notification signatures. Keys may be PEM or the bare base64 shown in the
// gateway console.
func NewAlipayClient(appId, appPrivateKey, alipayPublicKey string, production bool) (*alipay.Client, error) {
	if strings.TrimSpace(alipayPublicKey) == "" {
		return nil, fmt.Errorf("alipay public key is empty")
	}
	client, err := alipay.New(strings.TrimSpace(appId), strings.TrimSpace(appPrivateKey), production)
	if err != nil {
		return nil, fmt.Errorf("alipay client: %w", err)
	}
	if err := client.LoadAliPayPublicKey(strings.TrimSpace(alipayPublicKey)); err != nil {
		return nil, fmt.Errorf("load alipay public key: %w", err)
	}
	return client, nil
}

// ParseAlipayNotification reads an Alipay form callback. With a nil verifier
// the signature is not checked and SignatureValid stays false. The partially
// filled notification is returned with the error so the caller can log the
// delivery.
func ParseAlipayNotification(form url.Values, verifier AlipayVerifier) (Notification, error) {
	n := Notification{
		Provider:              ProviderAlipay,
		OutTradeNo:            strings.TrimSpace(form.Get("out_trade_no")),
		ProviderTransactionId: strings.TrimSpace(form.Get("trade_no")),
		TradeStatus:           strings.TrimSpace(form.Get("trade_status")),
		Payload:               []byte(form.Encode()),
	}
	if verifier != nil {
		if err := verifier.VerifySign(form); err != nil {
			return n, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		n.SignatureValid = true
	}

	if n.OutTradeNo == "" || n.ProviderTransactionId == "" || n.TradeStatus == "" {
		return n, utils.Validation("out_trade_no, trade_no and trade_status are required")
	}
	billId, err := BillIdFromTradeNo(n.OutTradeNo)
	if err != nil {
		return n, err
	}
	n.BillId = billId
	n.Success = alipaySuccessStatuses[n.TradeStatus]

	// total_amount is the order amount; receipt_amount excludes gateway coupons
	// and stays in the logged payload only.
	if amount := form.Get("total_amount"); n.Success || amount != "" {
		paid, err := parseAmount("total_amount", amount)
		if err != nil {
			return n, err
		}
		n.PaidAmount = paid
	}
	return n, nil
}
