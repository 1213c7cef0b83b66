package compliance

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mandi-labs/onboard-cli/internal/model"
)

var (
	gstinPattern = regexp.MustCompile(`^([0-9]{2})([A-Z]{5}[0-9]{4}[A-Z])([1-9A-Z])([A-Z])([0-9A-Z])$`)
	panPattern   = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	fssaiPattern = regexp.MustCompile(`^[0-9]{14}$`)
)

// gstStateCodes enumerates the valid GSTIN state prefixes. Code 25 is
// absent: Daman and Diu merged into 26 in 2020.
var gstStateCodes = map[string]string{
	"01": "Jammu and Kashmir", "02": "Himachal Pradesh", "03": "Punjab",
	"04": "Chandigarh", "05": "Uttarakhand", "06": "Haryana", "07": "Delhi",
	"08": "Rajasthan", "09": "Uttar Pradesh", "10": "Bihar", "11": "Sikkim",
	"12": "Arunachal Pradesh", "13": "Nagaland", "14": "Manipur", "15": "Mizoram",
	"16": "Tripura", "17": "Meghalaya", "18": "Assam", "19": "West Bengal",
	"20": "Jharkhand", "21": "Odisha", "22": "Chhattisgarh", "23": "Madhya Pradesh",
	"24": "Gujarat", "26": "Dadra and Nagar Haveli and Daman and Diu", "27": "Maharashtra",
	"28": "Andhra Pradesh", "29": "Karnataka", "30": "Goa", "31": "Lakshadweep",
	"32": "Kerala", "33": "Tamil Nadu", "34": "Puducherry", "35": "Andaman and Nicobar",
	"36": "Telangana", "37": "Andhra Pradesh (New)", "38": "Ladakh",
}

// panHolderTypes maps the 4th PAN character to the holder category.
var panHolderTypes = map[byte]string{
	'C': "Company",
	'P': "Person",
	'H': "HUF (Hindu Undivided Family)",
	'F': "Firm",
	'A': "Association of Persons",
	'T': "Trust",
	'B': "Body of Individuals",
	'L': "Local Authority",
	'J': "Artificial Juridical Person",
	'G': "Government",
}

// fssaiBusinessTypes maps the leading FSSAI digit to the business category.
var fssaiBusinessTypes = map[byte]string{
	'1': "Manufacturing",
	'2': "Trading",
	'3': "Restaurant/Hotel",
	'4': "Transport",
	'5': "Retail",
	'6': "Wholesale",
	'7': "Import",
	'8': "Others",
	'9': "Special Category",
}

const gstinAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// gstinCheckChar computes the mod-36 check character over the first 14
// characters of a GSTIN: each character value is multiplied by an
// alternating 1,2 factor, the quotient and remainder of each product by 36
// are summed, and the check value is the complement of the sum mod 36.
func gstinCheckChar(body string) byte {
	sum := 0
	factor := 1
	for i := 0; i < len(body); i++ {
		product := strings.IndexByte(gstinAlphabet, body[i]) * factor
		sum += product/36 + product%36
		factor = 3 - factor
	}
	return gstinAlphabet[(36-sum%36)%36]
}

// ValidateGSTIN checks a 15-character GST identification number: a 2-digit
// state code from the enumerated set, the embedded 10-character PAN, an
// entity digit, the literal 'Z' sentinel, and a mod-36 check character.
func ValidateGSTIN(raw string) *model.Verdict {
	clean := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
	if clean == "" {
		return model.InvalidVerdict("GST number is required")
	}

	m := gstinPattern.FindStringSubmatch(clean)
	if m == nil {
		return model.InvalidVerdict("Invalid GST format. GST should be 15 characters like 27AAPFU0939F1ZV")
	}

	stateCode, pan, entity, sentinel, check := m[1], m[2], m[3], m[4], m[5]

	state, ok := gstStateCodes[stateCode]
	if !ok {
		return model.InvalidVerdict(fmt.Sprintf("Invalid GST state code: %s", stateCode))
	}

	if sentinel != "Z" {
		return model.InvalidVerdict(fmt.Sprintf("Invalid entity type letter: %s. The 14th character should be 'Z'.", sentinel))
	}

	if want := gstinCheckChar(clean[:14]); check[0] != want {
		return model.InvalidVerdict(fmt.Sprintf("Invalid GST check character. Expected '%c' as the 15th character.", want))
	}

	return model.ValidVerdict(map[string]any{
		"normalized":    clean,
		"state_code":    stateCode,
		"state":         state,
		"pan":           pan,
		"entity_number": entity,
		"check_digit":   check,
	})
}

// ValidatePAN checks a 10-character permanent account number. The 4th
// character must belong to the holder-type set.
func ValidatePAN(raw string) *model.Verdict {
	clean := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
	if clean == "" {
		return model.InvalidVerdict("PAN number is required")
	}

	if !panPattern.MatchString(clean) {
		return model.InvalidVerdict("Invalid PAN format. PAN should be 10 characters like ABCDE1234F")
	}

	holder, ok := panHolderTypes[clean[3]]
	if !ok {
		return model.InvalidVerdict(fmt.Sprintf("Invalid PAN holder type character: %c", clean[3]))
	}

	return model.ValidVerdict(map[string]any{
		"normalized":  clean,
		"holder_type": holder,
		"holder_code": string(clean[3]),
	})
}

// ValidateFSSAI checks a 14-digit FSSAI license number. The leading digit
// selects the business category, digits 3-4 the registration year, and
// digits 5-6 the state code.
func ValidateFSSAI(raw string) *model.Verdict {
	clean := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	if clean == "" {
		return model.InvalidVerdict("FSSAI license number is required")
	}

	if !fssaiPattern.MatchString(clean) {
		return model.InvalidVerdict("Invalid FSSAI format. FSSAI license should be exactly 14 digits")
	}

	businessType, ok := fssaiBusinessTypes[clean[0]]
	if !ok {
		businessType = "Unknown"
	}

	return model.ValidVerdict(map[string]any{
		"normalized":        clean,
		"business_type":     businessType,
		"registration_year": "20" + clean[2:4],
		"state_code":        clean[4:6],
	})
}
