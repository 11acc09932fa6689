package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/clinic_backend/config"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/ttacon/libphonenumber"
)

var CountryCode = "CN"

// MoneyPlaces is the scale of every stored amount.
const MoneyPlaces = 2

// ParseMoney parses a caller-supplied amount, rejecting more than two decimal places.
func ParseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, Validation("invalid amount %q", s)
	}
	if !IsMoneyPrecision(d) {
		return decimal.Zero, Validation("amount %s has more than %d decimal places", d.String(), MoneyPlaces)
	}
	return d, nil
}

func IsMoneyPrecision(d decimal.Decimal) bool {
	return d.Equal(d.Round(MoneyPlaces))
}

// FormatMoney renders an amount with exactly two decimals.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(MoneyPlaces)
}

func ValidatePhoneNumber(phoneNumber, countryCode string) error {
	p, err := libphonenumber.Parse(phoneNumber, countryCode)
	if err != nil {
		return err
	}
	if !libphonenumber.IsValidNumber(p) {
		return fmt.Errorf("phone number is not valid")
	}
	return nil
}

// FormatPhoneNumber returns the E.164 form of a valid number.
func FormatPhoneNumber(phoneNumber, countryCode string) (string, error) {
	if err := ValidatePhoneNumber(phoneNumber, countryCode); err != nil {
		return "", err
	}
	p, _ := libphonenumber.Parse(phoneNumber, countryCode)
	return libphonenumber.Format(p, libphonenumber.E164), nil
}

// ObtainBillLock takes the cross-instance redis lock for a bill.
// The lock is best-effort: when redis is down or the lock stays busy the caller
// proceeds and the bill row lock inside the transaction serializes writers.
// The returned release func is always non-nil.
func ObtainBillLock(ctx context.Context, billId int, moduleName string, funcName string) func() {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		return func() {}
	}

	ttl := config.GetBillingSettings().BillLockTTL
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	lockKey := fmt.Sprintf("bill:%d", billId)
	lock, err := locker.Obtain(ctx, lockKey, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 20),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		logger.WithFields(logrus.Fields{
			"module":   moduleName,
			"funcName": funcName,
			"bill_id":  billId,
		}).Warn("could not obtain redis bill lock; proceeding with row lock only")
		return func() {}
	} else if err != nil {
		config.LogError(logger, moduleName, funcName, "Error obtaining bill lock", billId, err)
		return func() {}
	}

	return func() {
		if releaseErr := lock.Release(context.Background()); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
			config.LogError(logger, moduleName, funcName, "Error releasing bill lock", billId, releaseErr)
		}
	}
}
