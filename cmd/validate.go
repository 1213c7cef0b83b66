package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/mandi-labs/onboard-cli/internal/compliance"
	"github.com/mandi-labs/onboard-cli/internal/model"
)

var validateCmd = &cobra.Command{
	Use:   "validate <field> <value>",
	Short: "Check a value against the deterministic format validators",
	Long: `Runs one value through the same format validation a live session
applies, without touching the store or any API.

Recognized fields (and their aliases): gst_number, pan, fssai_license,
phone, email, pincode. Unrecognized fields validate true and pass through
untouched.

Examples:
  onboard validate gst_number 27AAPFU0939F1ZV
  onboard validate phone "+91 98765 43210"
  onboard validate email ops@sharma.in`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("validate"); err != nil {
			return err
		}

		field := args[0]
		value := strings.Join(args[1:], " ")

		return printJSON(struct {
			Field   string         `json:"field"`
			Value   string         `json:"value"`
			Verdict *model.Verdict `json:"verdict"`
		}{field, value, compliance.Validate(field, value)})
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
