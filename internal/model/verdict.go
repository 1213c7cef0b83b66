package model

import "strings"

// FieldKind identifies a datum the validator set knows how to check.
// Unknown kinds are accepted verbatim as extension fields.
type FieldKind string

const (
	FieldGSTIN   FieldKind = "gst_number"
	FieldPAN     FieldKind = "pan_number"
	FieldFSSAI   FieldKind = "fssai_license"
	FieldPhone   FieldKind = "phone"
	FieldEmail   FieldKind = "email"
	FieldPincode FieldKind = "pincode"
	FieldUnknown FieldKind = "unknown"
)

// kindAliases maps the field names used in conversation and imports onto
// canonical kinds.
var kindAliases = map[string]FieldKind{
	"gst_number":    FieldGSTIN,
	"gstin":         FieldGSTIN,
	"gst":           FieldGSTIN,
	"pan_number":    FieldPAN,
	"pan":           FieldPAN,
	"fssai_license": FieldFSSAI,
	"fssai":         FieldFSSAI,
	"fssai_number":  FieldFSSAI,
	"phone":         FieldPhone,
	"mobile":        FieldPhone,
	"phone_number":  FieldPhone,
	"email":         FieldEmail,
	"email_address": FieldEmail,
	"pincode":       FieldPincode,
	"pin_code":      FieldPincode,
	"postal_code":   FieldPincode,
}

// KindOf resolves a field name to its validator kind, or FieldUnknown.
func KindOf(field string) FieldKind {
	if k, ok := kindAliases[strings.ToLower(strings.TrimSpace(field))]; ok {
		return k
	}
	return FieldUnknown
}

// Verdict is the structural validity result for one field's value.
type Verdict struct {
	Valid   bool           `json:"valid"`
	Error   string         `json:"error,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// ValidVerdict builds a passing verdict carrying parsed sub-fields.
func ValidVerdict(details map[string]any) *Verdict {
	return &Verdict{Valid: true, Details: details}
}

// InvalidVerdict builds a failing verdict with a field-specific message.
func InvalidVerdict(msg string) *Verdict {
	return &Verdict{Valid: false, Error: msg}
}
