package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/venue-enrich/internal/pipeline"
)

var (
	runLimit    int
	runDry      bool
	runBackfill bool
	runQuality  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one enrichment batch and print its summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initRuntime(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Runner.Run(ctx, pipeline.Options{
			Limit:    runLimit,
			Dry:      runDry,
			Backfill: runBackfill,
			Quality:  runQuality,
		})
		if err != nil {
			return err
		}
		if summary.Halted != "" {
			zap.L().Warn("batch halted early", zap.String("reason", summary.Halted))
		}
		if u := env.Usage.Snapshot(); u.Calls > 0 {
			zap.L().Info("llm usage",
				zap.Int64("calls", u.Calls),
				zap.Int64("input_tokens", u.InputTokens),
				zap.Int64("output_tokens", u.OutputTokens),
				zap.Float64("cost_usd", u.CostUSD))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "max rows to process (default from config)")
	runCmd.Flags().BoolVar(&runDry, "dry", false, "compute patches without writing")
	runCmd.Flags().BoolVar(&runBackfill, "backfill", false, "select rows with absent or low-trust revenue")
	runCmd.Flags().BoolVar(&runQuality, "quality", false, "run the LLM revenue-quality pass instead of the full pipeline")
	rootCmd.AddCommand(runCmd)
}
