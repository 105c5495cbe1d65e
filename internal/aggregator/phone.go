package aggregator

import (
	"fmt"
	"strings"
)

// Rwandan mobile-money numbering plan: 10 digits starting 07, with the
// operator identified by the third digit.
var mobilePrefixes = map[string]string{
	"072": "airtel",
	"073": "airtel",
	"078": "mtn",
	"079": "mtn",
}

// NormalizePhone reduces the accepted input formats (07..., 2507...,
// +2507...) to the canonical local 07XXXXXXXX form.
func NormalizePhone(phone string) (string, error) {
	p := strings.TrimSpace(phone)
	p = strings.ReplaceAll(p, " ", "")
	p = strings.TrimPrefix(p, "+")
	if strings.HasPrefix(p, "250") {
		p = "0" + p[3:]
	}

	if len(p) != 10 || !strings.HasPrefix(p, "07") {
		return "", fmt.Errorf("%w: phone number %q is not a valid mobile number", ErrValidation, phone)
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: phone number %q contains non-digit characters", ErrValidation, phone)
		}
	}
	if _, ok := mobilePrefixes[p[:3]]; !ok {
		return "", fmt.Errorf("%w: phone prefix %q is not a mobile-money operator", ErrValidation, p[:3])
	}

	return p, nil
}
