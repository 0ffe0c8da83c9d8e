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
	reclassifyAll   bool
	reclassifyMonth string
)

var reclassifyCmd = &cobra.Command{
	Use:   "reclassify",
	Short: "Re-run the campaign classifier over stored messages",
	Long:  "Assigns a campaign type to messages that have none. With --all, every message is re-classified and stale campaign types are corrected.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("reclassify"); err != nil {
			return err
		}
		month, err := parseMonth(reclassifyMonth)
		if err != nil {
			return err
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

		r, err := ingest.NewReclassifier(s, tax, ingest.ReclassifyConfig{
			FetchPageSize:   cfg.Reclassify.FetchPageSize,
			UpdateBatchSize: cfg.Reclassify.UpdateBatchSize,
			PagePacer:       resilience.NewPacer(config.Delay(cfg.Reclassify.PageDelayMS)),
			BatchPacer:      resilience.NewPacer(config.Delay(cfg.Reclassify.BatchDelayMS)),
			Retry:           cfg.Retry.Policy(),
		})
		if err != nil {
			return err
		}

		res, err := r.Run(ctx, ingest.ReclassifyScope{
			OnlyUnclassified: !reclassifyAll,
			ReportMonth:      month,
		})
		if err != nil {
			return eris.Wrap(err, "reclassify messages")
		}

		fields := []zap.Field{
			zap.Int("pages", res.Pages),
			zap.Int("scanned", res.Scanned),
			zap.Int("updated", res.Updated),
			zap.Int("unchanged", res.Unchanged),
			zap.Int("dead_letters", len(res.DeadLetters)),
		}
		for cat, n := range res.ByCategory {
			fields = append(fields, zap.Int("category."+cat, n))
		}
		zap.L().Info("reclassify complete", fields...)
		return nil
	},
}

func init() {
	reclassifyCmd.Flags().BoolVar(&reclassifyAll, "all", false, "re-classify every message, not only unclassified ones")
	reclassifyCmd.Flags().StringVar(&reclassifyMonth, "month", "", "only revisit this report month (YYYY-MM)")
	rootCmd.AddCommand(reclassifyCmd)
}
