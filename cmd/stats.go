package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matviet/outbound-cli/internal/config"
	"github.com/matviet/outbound-cli/internal/model"
	"github.com/matviet/outbound-cli/internal/resilience"
	"github.com/matviet/outbound-cli/internal/stats"
)

var statsGroupings []string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Rebuild the monthly and campaign aggregate caches",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("stats"); err != nil {
			return err
		}

		groupings := model.Groupings
		if len(statsGroupings) > 0 {
			groupings = nil
			for _, name := range statsGroupings {
				g, err := model.ParseGrouping(name)
				if err != nil {
					return err
				}
				groupings = append(groupings, g)
			}
		}

		s, err := initStore(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer s.Close() //nolint:errcheck

		a, err := stats.New(s, stats.Config{
			PageSize:    cfg.Stats.PageSize,
			Concurrency: cfg.Stats.Concurrency,
			Pacer:       resilience.NewPacer(config.Delay(cfg.Stats.PageDelayMS)),
			Retry:       cfg.Retry.Policy(),
		})
		if err != nil {
			return err
		}

		written, err := a.RefreshAll(ctx, groupings...)
		if err != nil {
			return eris.Wrap(err, "refresh aggregates")
		}
		for _, g := range groupings {
			zap.L().Info("aggregates refreshed",
				zap.String("grouping", string(g)),
				zap.Int("rows", written[g]),
			)
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().StringSliceVar(&statsGroupings, "grouping", nil, "groupings to rebuild: monthly, campaign (default both)")
	rootCmd.AddCommand(statsCmd)
}
