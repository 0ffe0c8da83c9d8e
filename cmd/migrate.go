package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matviet/outbound-cli/internal/classify"
)

var migrateSeed bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the row-store schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		s, err := initStore(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer s.Close() //nolint:errcheck

		if err := s.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}
		zap.L().Info("migrations applied", zap.String("driver", cfg.Store.Driver))

		if !migrateSeed {
			return nil
		}
		def, err := classify.LoadDefinition(cfg.Ingest.TaxonomyFile)
		if err != nil {
			return err
		}
		n, err := classify.Seed(ctx, s, def)
		if err != nil {
			return err
		}
		zap.L().Info("campaign types seeded",
			zap.Int64("rows", n),
			zap.Int("types", len(def.CampaignTypes)),
		)
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateSeed, "seed", false, "upsert the campaign type taxonomy after migrating")
	rootCmd.AddCommand(migrateCmd)
}
