package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scoreCmd = &cobra.Command{
	Use:   "score <session_id>",
	Short: "Re-run the holistic risk assessment for a session",
	Long: `Re-runs the risk pass over a session's collected data and prints the
resulting assessment. The stored session keeps its new assessment, but its
status and routing are untouched — rescoring a completed session does not
reopen it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "score")
		if err != nil {
			return err
		}
		defer env.Close()

		assessment, err := env.Engine.Rescore(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "rescore session")
		}

		zap.L().Info("session rescored",
			zap.String("session_id", args[0]),
			zap.Float64("risk_score", assessment.RiskScore),
			zap.Bool("requires_verification", assessment.RequiresManualVerification),
		)
		return printJSON(assessment)
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}
