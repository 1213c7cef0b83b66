package main

import (
	"encoding/json"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mandi-labs/onboard-cli/internal/bulk"
	"github.com/mandi-labs/onboard-cli/internal/model"
)

var (
	importConcurrency int
	importDryRun      bool
	importOutput      string
)

// importResult is the per-row outcome of a bulk import.
type importResult struct {
	Line          int                    `json:"line"`
	ProducerID    string                 `json:"producer_id"`
	SessionID     string                 `json:"session_id,omitempty"`
	Status        model.OnboardingStatus `json:"status,omitempty"`
	Collected     []string               `json:"collected_fields,omitempty"`
	PendingFields []string               `json:"pending_fields,omitempty"`
	RiskScore     *float64               `json:"risk_score,omitempty"`
	NextQuestion  string                 `json:"next_question,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Bulk-start sessions from an XLSX or CSV seed file",
	Long: `Reads a seed spreadsheet and starts one onboarding session per row.

Seeded values for recognized fields are validated immediately; a fully
seeded row runs straight through risk scoring, so the report shows which
producers auto-completed, which need manual verification, and which still
have fields to collect.

Examples:
  # Parse only, print the seed rows
  onboard import producers.xlsx --dry-run

  # Start sessions for every row, write the report to a file
  onboard import producers.csv --output report.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		seeds, err := bulk.ReadSeedFile(args[0])
		if err != nil {
			return eris.Wrap(err, "import: read seed file")
		}
		zap.L().Info("import: parsed seed file",
			zap.String("file", args[0]),
			zap.Int("rows", len(seeds)),
		)

		// Dry run: print parsed rows and exit.
		if importDryRun {
			return printJSON(seeds)
		}

		env, err := initEngine(ctx, "import")
		if err != nil {
			return eris.Wrap(err, "import: init engine")
		}
		defer env.Close()

		concurrency := importConcurrency
		if concurrency == 0 {
			concurrency = cfg.Bulk.MaxConcurrentRows
		}

		// Start sessions concurrently.
		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)

		var mu sync.Mutex
		results := make([]importResult, 0, len(seeds))
		var succeeded, failed atomic.Int64

		for _, seed := range seeds {
			g.Go(func() error {
				snap, runErr := env.Engine.Start(gCtx, seed.ProducerID, seed.Fields)
				if runErr != nil {
					failed.Add(1)
					zap.L().Error("import: row failed",
						zap.Int("line", seed.Line),
						zap.String("producer_id", seed.ProducerID),
						zap.Error(runErr),
					)
					mu.Lock()
					results = append(results, importResult{
						Line:       seed.Line,
						ProducerID: seed.ProducerID,
						Error:      runErr.Error(),
					})
					mu.Unlock()
					return nil // don't abort batch on individual failure
				}

				succeeded.Add(1)
				mu.Lock()
				results = append(results, rowResult(seed.Line, snap))
				mu.Unlock()
				return nil
			})
		}

		_ = g.Wait()

		// Rows finish in arbitrary order; the report follows the file.
		sort.Slice(results, func(i, j int) bool { return results[i].Line < results[j].Line })

		// Batch summary.
		zap.L().Info("import: batch complete",
			zap.Int("total", len(seeds)),
			zap.Int64("succeeded", succeeded.Load()),
			zap.Int64("failed", failed.Load()),
		)

		return writeImportResults(results)
	},
}

// rowResult maps a session snapshot onto the per-row report entry,
// splitting parked pending keys out of the collected list.
func rowResult(line int, snap *model.Snapshot) importResult {
	result := importResult{
		Line:         line,
		ProducerID:   snap.ProducerID,
		SessionID:    snap.SessionID,
		Status:       snap.Status,
		RiskScore:    snap.RiskScore,
		NextQuestion: snap.CurrentField,
	}
	for _, field := range snap.Collected {
		if trimmed, ok := strings.CutSuffix(field, model.PendingSuffix); ok {
			result.PendingFields = append(result.PendingFields, trimmed)
			continue
		}
		result.Collected = append(result.Collected, field)
	}
	return result
}

// writeImportResults writes the report to the output file or stdout.
func writeImportResults(results []importResult) error {
	var w *os.File
	if importOutput != "" {
		f, err := os.Create(importOutput)
		if err != nil {
			return eris.Wrap(err, "import: create output file")
		}
		defer f.Close() //nolint:errcheck
		w = f
	} else {
		w = os.Stdout
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func init() {
	importCmd.Flags().IntVar(&importConcurrency, "concurrency", 0, "max rows to start concurrently (default from config)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "parse the seed file and print rows, skip session start")
	importCmd.Flags().StringVar(&importOutput, "output", "", "write report JSON to file (default: stdout)")
	rootCmd.AddCommand(importCmd)
}
