package responses

import (
	"fmt"
	"strings"
)

const DefaultCountryCode = "27"

var phoneNoise = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "\t", "")

// NormalizeMSISDN turns a local or international phone number into digits-only
// MSISDN form. A leading 0 is replaced by countryCode.
func NormalizeMSISDN(raw, countryCode string) (string, error) {
	n := phoneNoise.Replace(strings.TrimSpace(raw))
	n = strings.TrimPrefix(n, "+")
	if strings.HasPrefix(n, "00") {
		n = n[2:]
	} else if strings.HasPrefix(n, "0") {
		n = countryCode + n[1:]
	}
	if len(n) < 7 || len(n) > 15 {
		return "", fmt.Errorf("invalid phone number: %q", raw)
	}
	for _, r := range n {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("invalid phone number: %q", raw)
		}
	}
	return n, nil
}
