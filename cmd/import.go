package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matviet/outbound-cli/internal/config"
	"github.com/matviet/outbound-cli/internal/ingest"
	"github.com/matviet/outbound-cli/internal/resilience"
)

var (
	importDir     string
	importFile    string
	importReplace bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import provider detail reports into the message table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("import"); err != nil {
			return err
		}
		if importDir != "" && importFile != "" {
			return eris.New("--dir and --file are mutually exclusive")
		}

		s, err := initStore(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer s.Close() //nolint:errcheck

		tax, err := loadTaxonomy(ctx, s)
		if err != nil {
			return err
		}

		im, err := ingest.NewImporter(s, ingest.NewTransformer(tax, cfg.Ingest.ContentMaxLen), ingest.Config{
			HeaderRow:    cfg.Ingest.HeaderRow,
			BatchSize:    cfg.Ingest.BatchSize,
			ExtractDir:   cfg.Ingest.ExtractDir,
			ProcessedDir: cfg.Ingest.ProcessedDir,
			Replace:      importReplace,
			Pacer:        resilience.NewPacer(config.Delay(cfg.Ingest.BatchDelayMS)),
			Retry:        cfg.Retry.Policy(),
		})
		if err != nil {
			return err
		}

		if importFile != "" {
			res, err := im.ImportFile(ctx, importFile)
			if err != nil {
				return eris.Wrapf(err, "import %s", importFile)
			}
			zap.L().Info("import complete",
				zap.String("file", res.File),
				zap.Time("report_month", res.ReportMonth),
				zap.Int("rows", res.Rows),
				zap.Int("imported", res.Imported),
				zap.Int("dropped", res.Dropped),
				zap.Int("dead_letters", len(res.DeadLetters)),
			)
			return nil
		}

		dir := importDir
		if dir == "" {
			dir = cfg.Ingest.ReportDir
		}
		res, err := im.ImportDir(ctx, dir)
		if err != nil {
			return eris.Wrapf(err, "import %s", dir)
		}
		zap.L().Info("import complete",
			zap.String("dir", dir),
			zap.Int("files", len(res.Files)),
			zap.Int("imported", res.Imported),
			zap.Int("dropped", res.Dropped),
			zap.Strings("skipped", res.Skipped),
			zap.Strings("failed", res.Failed),
		)
		if len(res.Failed) > 0 {
			return eris.Errorf("%d report(s) failed to import", len(res.Failed))
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importDir, "dir", "", "report directory (default ingest.report_dir)")
	importCmd.Flags().StringVar(&importFile, "file", "", "import a single .xlsx detail report")
	importCmd.Flags().BoolVar(&importReplace, "replace", false, "delete rows from the same source file before inserting")
	rootCmd.AddCommand(importCmd)
}
