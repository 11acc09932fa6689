package config

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultConsultationFee = "150.00"
	defaultInvoicePrefix   = "INV"
)

type BillingSettings struct {
	ConsultationFee decimal.Decimal
	InvoicePrefix   string
	// BillLockTTL bounds the best-effort redis lock held while a payment is applied.
	BillLockTTL time.Duration

	// AlipayPublicKey is the gateway's PEM or bare base64 RSA key.
	AlipayPublicKey     string
	AlipayAppId         string
	AlipayAppPrivateKey string
	AlipayProduction    bool
	MidtransServerKey   string
	MidtransProduction  bool
	// RequireSignedWebhooks rejects gateway callbacks that could not be verified.
	// It is on whenever GO_ENV=production.
	RequireSignedWebhooks bool

	BillingEventsTopic string
}

var (
	billingSettings     *BillingSettings
	billingSettingsOnce sync.Once
	billingSettingsMu   sync.RWMutex
)

// GetBillingSettings parses the billing env vars once.
func GetBillingSettings() BillingSettings {
	billingSettingsOnce.Do(func() {
		s := loadBillingSettings()
		billingSettingsMu.Lock()
		if billingSettings == nil {
			billingSettings = &s
		}
		billingSettingsMu.Unlock()
	})
	billingSettingsMu.RLock()
	defer billingSettingsMu.RUnlock()
	return *billingSettings
}

// SetBillingSettings overrides the env-derived settings.
func SetBillingSettings(s BillingSettings) {
	billingSettingsOnce.Do(func() {})
	billingSettingsMu.Lock()
	billingSettings = &s
	billingSettingsMu.Unlock()
}

func loadBillingSettings() BillingSettings {
	fee, err := decimal.NewFromString(strings.TrimSpace(os.Getenv("CONSULTATION_FEE")))
	if err != nil || fee.IsNegative() {
		fee = decimal.RequireFromString(defaultConsultationFee)
	}
	prefix := strings.TrimSpace(os.Getenv("INVOICE_PREFIX"))
	if prefix == "" {
		prefix = defaultInvoicePrefix
	}
	return BillingSettings{
		ConsultationFee:       fee.Round(2),
		InvoicePrefix:         prefix,
		BillLockTTL:           time.Duration(IntFromEnv("BILL_LOCK_TTL_SECONDS", 15)) * time.Second,
		AlipayPublicKey:       os.Getenv("ALIPAY_PUBLIC_KEY"),
		AlipayAppId:           strings.TrimSpace(os.Getenv("ALIPAY_APP_ID")),
		AlipayAppPrivateKey:   os.Getenv("ALIPAY_APP_PRIVATE_KEY"),
		AlipayProduction:      envTrue("ALIPAY_PRODUCTION"),
		MidtransServerKey:     os.Getenv("MIDTRANS_SERVER_KEY"),
		MidtransProduction:    envTrue("MIDTRANS_PRODUCTION"),
		RequireSignedWebhooks: strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") || envTrue("REQUIRE_SIGNED_WEBHOOKS"),
		BillingEventsTopic:    strings.TrimSpace(os.Getenv("BILLING_EVENTS_TOPIC")),
	}
}

func envTrue(key string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), "true")
}
