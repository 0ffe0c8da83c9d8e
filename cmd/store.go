package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/matviet/outbound-cli/internal/classify"
	"github.com/matviet/outbound-cli/internal/config"
	"github.com/matviet/outbound-cli/internal/store"
)

func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case "sqlite":
		dsn := sc.DatabaseURL
		if dsn == "" {
			dsn = "outbound.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, sc.DatabaseURL, &store.PoolConfig{
			MaxConns: sc.MaxConns,
			MinConns: sc.MinConns,
		})
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}

// loadTaxonomy reads the configured taxonomy file and resolves it against
// the campaign types already stored.
func loadTaxonomy(ctx context.Context, s store.Store) (*classify.Taxonomy, error) {
	def, err := classify.LoadDefinition(cfg.Ingest.TaxonomyFile)
	if err != nil {
		return nil, err
	}
	tax, err := classify.LoadTaxonomy(ctx, s, def)
	if err != nil {
		return nil, err
	}
	if len(tax.Types()) == 0 {
		return nil, eris.New("no campaign types stored; run `outbound-cli migrate --seed` first")
	}
	return tax, nil
}

// parseMonth parses a --month flag value (YYYY-MM) into the first of that
// month in UTC. Empty means no month scope.
func parseMonth(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid --month %q (want YYYY-MM)", s)
	}
	return &t, nil
}
