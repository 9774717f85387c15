package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/comfe-salud/rips-cli/internal/admission"
	"github.com/comfe-salud/rips-cli/internal/assets"
	"github.com/comfe-salud/rips-cli/internal/audit"
	"github.com/comfe-salud/rips-cli/internal/canon"
	"github.com/comfe-salud/rips-cli/internal/ledger"
	"github.com/comfe-salud/rips-cli/internal/workbook"
	"github.com/comfe-salud/rips-cli/internal/writer"
)

// auditFileName is written next to the asset extract after every phase run.
const auditFileName = "auditoria.csv"

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "Run the asset reconciliation phase only",
	Long:  "Reads the fixed-assets extract, decides every row through the admission rules, exports the audit file, and appends accepted rows to the facts ledger.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dateFlag, _ := cmd.Flags().GetString("date")
		yes, _ := cmd.Flags().GetBool("yes")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		return runAssetsOnly(cmd.Context(), dateFlag, yes, dryRun)
	},
}

func init() {
	assetsCmd.Flags().String("date", "", "consultation date (skips the prompt)")
	assetsCmd.Flags().Bool("yes", false, "skip the write confirmation")
	assetsCmd.Flags().Bool("dry-run", false, "stop after the audit export, write nothing")
	rootCmd.AddCommand(assetsCmd)
}

func runAssetsOnly(ctx context.Context, dateFlag string, yes, dryRun bool) error {
	wb, err := workbook.Open(cfg.Workbook.Path)
	if err != nil {
		return eris.Wrap(err, "assets: open workbook")
	}

	builder := ledger.NewBuilder(wb, cfg.Workbook.FactsSheet, cfg.Workbook.SubjectsSheet, cfg.Workbook.MinRow)
	idx, err := builder.LoadAll()
	if err != nil {
		return err
	}
	startRow, err := builder.NextFreeRow(cfg.Workbook.FactsSheet, ledger.FactDocCol)
	if err != nil {
		return err
	}

	w := writer.New(wb, cfg.Workbook.FactsSheet, cfg.Workbook.SubjectsSheet)
	inserted, _, err := runAssetPhase(w, idx, startRow, assetPhaseOpts{
		dateFlag: dateFlag,
		yes:      yes,
		dryRun:   dryRun,
		in:       os.Stdin,
		out:      os.Stdout,
	})
	if err != nil {
		return err
	}

	if dryRun || inserted == 0 {
		return nil
	}
	if err := wb.Save(); err != nil {
		return eris.Wrap(err, "assets: save workbook")
	}
	return nil
}

type assetPhaseOpts struct {
	dateFlag string
	yes      bool
	dryRun   bool
	in       io.Reader
	out      io.Writer
}

// runAssetPhase reconciles the fixed-assets extract against the ledger
// indexes. A missing extract or lookup file skips the phase with a loud
// notice; the caller's batch outcome is unaffected. Returns rows inserted
// and rows rejected.
func runAssetPhase(w *writer.Writer, idx *ledger.Indexes, startRow int, opts assetPhaseOpts) (int, int, error) {
	extract, err := assets.FindExtract(cfg.Assets.Dir)
	if err != nil {
		return 0, 0, err
	}
	if extract == "" {
		zap.L().Warn("ASSET PHASE SKIPPED: no extract workbook found", zap.String("dir", cfg.Assets.Dir))
		return 0, 0, nil
	}
	if _, err := os.Stat(cfg.Assets.LookupPath); err != nil {
		zap.L().Warn("ASSET PHASE SKIPPED: lookup table missing", zap.String("path", cfg.Assets.LookupPath))
		return 0, 0, nil
	}

	lookup, err := admission.LoadLookup(cfg.Assets.LookupPath)
	if err != nil {
		return 0, 0, err
	}

	cands, err := assets.ReadCandidates(extract, cfg.Assets.Sheet)
	if err != nil {
		return 0, 0, err
	}
	if len(cands) == 0 {
		zap.L().Info("asset extract holds no data rows", zap.String("extract", extract))
		return 0, 0, nil
	}

	date, err := resolveDate(opts.dateFlag, opts.in, opts.out)
	if err != nil {
		return 0, 0, err
	}

	plan, rejections := assets.BuildPlan(cands, date, idx, lookup)
	assets.ReportReasons(rejections)
	zap.L().Info("asset plan built",
		zap.String("extract", extract),
		zap.Int("candidates", len(cands)),
		zap.Int("accepted", len(plan)),
		zap.Int("rejected", len(rejections)),
	)

	auditPath := filepath.Join(cfg.Assets.Dir, auditFileName)
	if err := audit.WriteCSV(auditPath, plan, rejections); err != nil {
		return 0, len(rejections), err
	}
	zap.L().Info("audit file written", zap.String("path", auditPath))

	if opts.dryRun {
		zap.L().Info("dry run, nothing written to the ledger")
		return 0, len(rejections), nil
	}
	if len(plan) == 0 {
		return 0, len(rejections), nil
	}

	if !opts.yes {
		ok, err := promptConfirm(opts.in, opts.out, len(plan))
		if err != nil {
			return 0, len(rejections), err
		}
		if !ok {
			zap.L().Warn("asset write declined, ledger untouched")
			return 0, len(rejections), nil
		}
	}

	inserted, _, err := assets.Commit(w, plan, startRow, idx.AssetKeys, cfg.Workbook.FillColumns)
	if err != nil {
		return inserted, len(rejections), err
	}
	zap.L().Info("asset rows committed", zap.Int("inserted", inserted), zap.Int("start_row", startRow))
	return inserted, len(rejections), nil
}

func resolveDate(flag string, in io.Reader, out io.Writer) (time.Time, error) {
	if flag != "" {
		d, err := canon.ParseUserDate(flag)
		if err != nil {
			return time.Time{}, eris.Wrapf(err, "assets: parse --date %q", flag)
		}
		return d, nil
	}
	return promptDate(in, out)
}
