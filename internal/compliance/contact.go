package compliance

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mandi-labs/onboard-cli/internal/model"
)

var (
	phoneSeparators = regexp.MustCompile(`[\s\-()]`)
	mobilePattern   = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	elevenPattern   = regexp.MustCompile(`^0[6-9][0-9]{9}$`)
	landlinePattern = regexp.MustCompile(`^0[0-9]{2,4}[0-9]{6,8}$`)
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	pincodePattern  = regexp.MustCompile(`^[1-9][0-9]{5}$`)
)

// metroSTDCodes are the city prefixes with 2-digit STD codes after the
// trunk zero. Everything else gets a 3-digit code.
var metroSTDCodes = map[string]bool{
	"11": true, "22": true, "33": true, "44": true, "79": true, "80": true,
}

// emailTypoDomains maps common misspellings of popular mail domains to
// their likely intended form. Matches produce a non-binding suggestion.
var emailTypoDomains = map[string]string{
	"gmial.com":   "gmail.com",
	"gmai.com":    "gmail.com",
	"yahooo.com":  "yahoo.com",
	"yahho.com":   "yahoo.com",
	"hotmial.com": "hotmail.com",
	"outlok.com":  "outlook.com",
}

// disposableDomains flags throwaway mail providers. Disposable addresses
// stay valid but carry the flag for risk scoring.
var disposableDomains = map[string]bool{
	"tempmail.com":      true,
	"10minutemail.com":  true,
	"guerrillamail.com": true,
}

// pincodeRegions maps the leading PIN digit to its postal region.
var pincodeRegions = map[byte]string{
	'1': "Northern",
	'2': "Northern",
	'3': "Western",
	'4': "Western",
	'5': "Southern",
	'6': "Southern",
	'7': "Eastern",
	'8': "Eastern",
	'9': "Army Postal Service",
}

// ValidatePhone checks an Indian phone number. Four shapes are accepted:
// a bare 10-digit mobile starting 6-9, an 11-digit mobile with a leading
// zero, either of those with a +91/91 country prefix, and a landline with
// an STD code. All mobile variants normalize to the bare 10-digit number.
func ValidatePhone(raw string) *model.Verdict {
	clean := phoneSeparators.ReplaceAllString(strings.TrimSpace(raw), "")
	if clean == "" {
		return model.InvalidVerdict("Phone number is required")
	}

	if strings.HasPrefix(clean, "+91") {
		clean = clean[3:]
	} else if strings.HasPrefix(clean, "91") && len(clean) > 10 {
		clean = clean[2:]
	}

	if mobilePattern.MatchString(clean) {
		return model.ValidVerdict(map[string]any{
			"normalized": clean,
			"type":       "mobile",
			"formatted":  fmt.Sprintf("+91-%s-%s", clean[:5], clean[5:]),
		})
	}

	if elevenPattern.MatchString(clean) {
		number := clean[1:]
		return model.ValidVerdict(map[string]any{
			"normalized": number,
			"type":       "mobile",
			"formatted":  fmt.Sprintf("+91-%s-%s", number[:5], number[5:]),
		})
	}

	if landlinePattern.MatchString(clean) && len(clean) >= 10 && len(clean) <= 12 {
		stdLen := 4
		if metroSTDCodes[clean[1:3]] {
			stdLen = 3
		}
		std, number := clean[:stdLen], clean[stdLen:]
		return model.ValidVerdict(map[string]any{
			"normalized": clean,
			"type":       "landline",
			"std_code":   std,
			"formatted":  fmt.Sprintf("%s-%s", std, number),
		})
	}

	return model.InvalidVerdict("Invalid phone number. Please provide a valid 10-digit mobile number or a landline with STD code")
}

// ValidateEmail checks an email address against the standard grammar,
// suggests corrections for known near-miss domains, and flags disposable
// providers. A typo suggestion never fails the verdict.
func ValidateEmail(raw string) *model.Verdict {
	clean := strings.ToLower(strings.TrimSpace(raw))
	if clean == "" {
		return model.InvalidVerdict("Email address is required")
	}

	if !emailPattern.MatchString(clean) {
		return model.InvalidVerdict("Invalid email format")
	}

	domain := clean[strings.LastIndexByte(clean, '@')+1:]

	details := map[string]any{
		"normalized":    clean,
		"domain":        domain,
		"is_disposable": disposableDomains[domain],
	}
	if correct, ok := emailTypoDomains[domain]; ok {
		details["suggestion"] = strings.TrimSuffix(clean, domain) + correct
	}

	return model.ValidVerdict(details)
}

// ValidatePincode checks a 6-digit Indian postal code. The leading digit
// selects one of nine postal regions and cannot be zero.
func ValidatePincode(raw string) *model.Verdict {
	clean := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	if clean == "" {
		return model.InvalidVerdict("PIN code is required")
	}

	if !pincodePattern.MatchString(clean) {
		return model.InvalidVerdict("Invalid PIN code. Indian PIN codes are 6 digits like 400001")
	}

	return model.ValidVerdict(map[string]any{
		"normalized": clean,
		"region":     pincodeRegions[clean[0]],
	})
}
