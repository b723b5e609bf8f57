package utils

import (
	"os"
	"strings"

	"github.com/ttacon/libphonenumber"
)

func defaultPhoneRegion() string {
	region := strings.ToUpper(strings.TrimSpace(os.Getenv("PHONE_DEFAULT_REGION")))
	if region == "" {
		region = "BR"
	}
	return region
}

// NormalizePhone formats a client contact number as E.164 so the app can
// dial or open WhatsApp with it while offline. Unparseable input comes back
// trimmed but otherwise untouched.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	num, err := libphonenumber.Parse(raw, defaultPhoneRegion())
	if err != nil || !libphonenumber.IsValidNumber(num) {
		return raw
	}
	return libphonenumber.Format(num, libphonenumber.E164)
}
