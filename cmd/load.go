package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/comfe-salud/rips-cli/internal/journal"
	"github.com/comfe-salud/rips-cli/internal/ledger"
	"github.com/comfe-salud/rips-cli/internal/loader"
	"github.com/comfe-salud/rips-cli/internal/workbook"
	"github.com/comfe-salud/rips-cli/internal/writer"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Run a full load: claim-extract batches, then asset reconciliation",
	Long:  "Extracts every archive in the input directory into the ledger workbook, then reconciles the fixed-assets extract. The workbook is saved exactly once, at the end of the run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dateFlag, _ := cmd.Flags().GetString("date")
		yes, _ := cmd.Flags().GetBool("yes")
		skipAssets, _ := cmd.Flags().GetBool("skip-assets")
		return runLoad(cmd.Context(), dateFlag, yes, skipAssets)
	},
}

func init() {
	loadCmd.Flags().String("date", "", "consultation date for the asset phase (skips the prompt)")
	loadCmd.Flags().Bool("yes", false, "skip the asset-write confirmation")
	loadCmd.Flags().Bool("skip-assets", false, "run the batch phase only")
	rootCmd.AddCommand(loadCmd)
}

func runLoad(ctx context.Context, dateFlag string, yes, skipAssets bool) error {
	jnl, runID := startJournal(ctx)
	if jnl != nil {
		defer jnl.Close() //nolint:errcheck
	}

	wb, err := workbook.Open(cfg.Workbook.Path)
	if err != nil {
		return failRun(ctx, jnl, runID, eris.Wrap(err, "load: open workbook"))
	}

	clog, err := ledger.ReplayControlLog(wb, cfg.Workbook.ControlSheet)
	if err != nil {
		return failRun(ctx, jnl, runID, err)
	}

	builder := ledger.NewBuilder(wb, cfg.Workbook.FactsSheet, cfg.Workbook.SubjectsSheet, cfg.Workbook.MinRow)
	idx, err := builder.LoadAll()
	if err != nil {
		return failRun(ctx, jnl, runID, err)
	}
	nextFact, err := builder.NextFreeRow(cfg.Workbook.FactsSheet, ledger.FactDocCol)
	if err != nil {
		return failRun(ctx, jnl, runID, err)
	}
	nextIdentity, err := builder.NextFreeRow(cfg.Workbook.SubjectsSheet, ledger.SubjectDocCol)
	if err != nil {
		return failRun(ctx, jnl, runID, err)
	}

	w := writer.New(wb, cfg.Workbook.FactsSheet, cfg.Workbook.SubjectsSheet)
	l := loader.New(w, idx, clog, cfg.Input.ZipDir, cfg.Input.WorkDir, nextFact, nextIdentity)

	stats, err := l.Run(ctx)
	if err != nil {
		return failRun(ctx, jnl, runID, err)
	}

	if skipAssets {
		zap.L().Info("asset phase skipped by flag")
	} else {
		inserted, rejected, err := runAssetPhase(w, idx, l.NextFactRow(), assetPhaseOpts{
			dateFlag: dateFlag,
			yes:      yes,
			in:       os.Stdin,
			out:      os.Stdout,
		})
		if err != nil {
			return failRun(ctx, jnl, runID, err)
		}
		stats.AssetsInserted = inserted
		stats.AssetsRejected = rejected
	}

	if err := wb.Save(); err != nil {
		return failRun(ctx, jnl, runID, eris.Wrap(err, "load: save workbook"))
	}

	completeJournal(ctx, jnl, runID, stats)
	zap.L().Info("run complete",
		zap.Int("archives", stats.Archives),
		zap.Int("fact_rows", stats.FactRows),
		zap.Int("identity_rows", stats.IdentityRows),
		zap.Int("assets_inserted", stats.AssetsInserted),
		zap.Int("assets_rejected", stats.AssetsRejected),
	)
	return nil
}

// startJournal opens the run journal and records the run start. Journal
// trouble never blocks a ledger run; it degrades to warnings.
func startJournal(ctx context.Context) (*journal.Journal, string) {
	jnl, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		zap.L().Warn("journal unavailable", zap.Error(err))
		return nil, ""
	}
	if err := jnl.Migrate(ctx); err != nil {
		zap.L().Warn("journal migrate failed", zap.Error(err))
		_ = jnl.Close()
		return nil, ""
	}
	runID, err := jnl.Start(ctx)
	if err != nil {
		zap.L().Warn("journal start failed", zap.Error(err))
		_ = jnl.Close()
		return nil, ""
	}
	return jnl, runID
}

func completeJournal(ctx context.Context, jnl *journal.Journal, runID string, stats journal.Stats) {
	if jnl == nil {
		return
	}
	if err := jnl.Complete(ctx, runID, stats); err != nil {
		zap.L().Warn("journal complete failed", zap.Error(err))
	}
}

func failRun(ctx context.Context, jnl *journal.Journal, runID string, err error) error {
	if jnl != nil {
		if jerr := jnl.Fail(ctx, runID, err.Error()); jerr != nil {
			zap.L().Warn("journal fail-mark failed", zap.Error(jerr))
		}
	}
	return err
}
