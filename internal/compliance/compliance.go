// Package compliance implements deterministic format validation for Indian
// business-registration identifiers. Validators are pure and total: they
// never return errors, only verdicts, and unrecognized field kinds are
// accepted verbatim.
package compliance

import (
	"github.com/mandi-labs/onboard-cli/internal/model"
)

// Validate dispatches a raw value to the validator for the given field name.
// Field names are matched through their aliases (gst, gstin, gst_number all
// resolve to the GSTIN validator). Unknown fields validate true with no
// structure so extension fields pass through untouched.
func Validate(field, raw string) *model.Verdict {
	switch model.KindOf(field) {
	case model.FieldGSTIN:
		return ValidateGSTIN(raw)
	case model.FieldPAN:
		return ValidatePAN(raw)
	case model.FieldFSSAI:
		return ValidateFSSAI(raw)
	case model.FieldPhone:
		return ValidatePhone(raw)
	case model.FieldEmail:
		return ValidateEmail(raw)
	case model.FieldPincode:
		return ValidatePincode(raw)
	default:
		return model.ValidVerdict(nil)
	}
}

// Recognized reports whether the field name resolves to a known validator.
func Recognized(field string) bool {
	return model.KindOf(field) != model.FieldUnknown
}

// Canonical returns the normalized value a passing verdict carries, or the
// empty string when the verdict has no normalized form. Stored values for
// recognized fields come from here so that all accepted prefix variants of
// the same identifier collapse to one representation.
func Canonical(v *model.Verdict) string {
	if v == nil || !v.Valid || v.Details == nil {
		return ""
	}
	if s, ok := v.Details["normalized"].(string); ok {
		return s
	}
	return ""
}
