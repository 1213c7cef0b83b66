package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mandi-labs/onboard-cli/internal/model"
)

var (
	sessionProducerID string
	sessionSeeds      []string
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Run onboarding sessions from the terminal",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a session and print the opening snapshot",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "session")
		if err != nil {
			return err
		}
		defer env.Close()

		initial, err := parseSeeds(sessionSeeds)
		if err != nil {
			return err
		}

		snap, err := env.Engine.Start(ctx, sessionProducerID, initial)
		if err != nil {
			return eris.Wrap(err, "start session")
		}

		zap.L().Info("session started",
			zap.String("session_id", snap.SessionID),
			zap.String("producer_id", snap.ProducerID),
			zap.String("status", string(snap.Status)),
		)
		return printJSON(snap)
	},
}

var sessionTurnCmd = &cobra.Command{
	Use:   "turn <session_id> <message>",
	Short: "Feed one answer through the state machine",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "session")
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := env.Engine.Turn(ctx, args[0], strings.Join(args[1:], " "))
		if err != nil {
			return eris.Wrap(err, "session turn")
		}

		return printJSON(snap)
	},
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status <session_id>",
	Short: "Print the current session snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "session")
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := env.Engine.Status(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "session status")
		}

		return printJSON(snap)
	},
}

var sessionExportCmd = &cobra.Command{
	Use:   "export <session_id>",
	Short: "Print the full session record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "session")
		if err != nil {
			return err
		}
		defer env.Close()

		record, err := env.Engine.Export(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "session export")
		}

		return printJSON(record)
	},
}

var sessionImportCmd = &cobra.Command{
	Use:   "import <record.json>",
	Short: "Recreate a session from an exported record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read record file")
		}
		var rec model.FullRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return eris.Wrap(err, "parse record file")
		}

		env, err := initEngine(ctx, "session")
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := env.Engine.Import(ctx, &rec)
		if err != nil {
			return eris.Wrap(err, "import session")
		}

		zap.L().Info("session imported",
			zap.String("session_id", snap.SessionID),
			zap.String("status", string(snap.Status)),
		)
		return printJSON(snap)
	},
}

var sessionPromptCmd = &cobra.Command{
	Use:   "prompt <session_id>",
	Short: "Print the next question the session would ask",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "session")
		if err != nil {
			return err
		}
		defer env.Close()

		prompt, err := env.Engine.Prompt(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "session prompt")
		}

		return printJSON(map[string]string{
			"session_id": args[0],
			"prompt":     prompt,
		})
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end <session_id>",
	Short: "End a session and discard its row",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "session")
		if err != nil {
			return err
		}
		defer env.Close()

		status, err := env.Engine.End(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "session end")
		}

		zap.L().Info("session ended",
			zap.String("session_id", args[0]),
			zap.String("final_status", string(status)),
		)
		return printJSON(map[string]string{
			"session_id": args[0],
			"status":     string(status),
		})
	},
}

// parseSeeds turns repeated --seed field=value flags into an initial data
// map for session start.
func parseSeeds(seeds []string) (map[string]string, error) {
	if len(seeds) == 0 {
		return nil, nil
	}
	initial := make(map[string]string, len(seeds))
	for _, s := range seeds {
		field, value, ok := strings.Cut(s, "=")
		if !ok || strings.TrimSpace(field) == "" {
			return nil, eris.Errorf("invalid --seed %q (want field=value)", s)
		}
		initial[strings.TrimSpace(field)] = strings.TrimSpace(value)
	}
	return initial, nil
}

// printJSON writes a value as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	sessionStartCmd.Flags().StringVar(&sessionProducerID, "producer", "", "producer ID (generated when empty)")
	sessionStartCmd.Flags().StringArrayVar(&sessionSeeds, "seed", nil, "pre-filled field as field=value (repeatable)")

	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionTurnCmd)
	sessionCmd.AddCommand(sessionStatusCmd)
	sessionCmd.AddCommand(sessionExportCmd)
	sessionCmd.AddCommand(sessionImportCmd)
	sessionCmd.AddCommand(sessionPromptCmd)
	sessionCmd.AddCommand(sessionEndCmd)
	rootCmd.AddCommand(sessionCmd)
}
