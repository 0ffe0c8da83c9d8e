package db

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// stageOrdinal numbers staged rows in arrival order.
const stageOrdinal = "_stage_ord"

// UpsertConfig describes a staged merge into Table.
type UpsertConfig struct {
	Table        string   // target table, optionally schema-qualified
	Columns      []string // columns every row carries
	ConflictKeys []string // unique constraint the rows collide on
	Preserve     []string // columns an existing row keeps on conflict, e.g. "id"
}

// updateColumns is Columns minus ConflictKeys and Preserve.
func (c UpsertConfig) updateColumns() []string {
	var out []string
	for _, col := range c.Columns {
		if !slices.Contains(c.ConflictKeys, col) && !slices.Contains(c.Preserve, col) {
			out = append(out, col)
		}
	}
	return out
}

// BulkUpsert stages n rows in a temp table with COPY and merges them into
// the target with INSERT ... ON CONFLICT in one transaction. Rows repeating
// a conflict key within the batch collapse to the last one. When no column
// is left to overwrite, colliding rows are skipped. The temp table is
// dropped on commit.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, n int, row RowFunc) (int64, error) {
	if n == 0 {
		return 0, nil
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return 0, eris.New("db: upsert: no conflict keys specified")
	}
	for _, k := range cfg.ConflictKeys {
		if !slices.Contains(cfg.Columns, k) {
			return 0, eris.Errorf("db: upsert: conflict key %q is not a column", k)
		}
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	stage := pgx.Identifier{"_stage_" + strings.ReplaceAll(cfg.Table, ".", "_")}
	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS, %s bigserial) ON COMMIT DROP",
		stage.Sanitize(),
		Identifier(cfg.Table).Sanitize(),
		pgx.Identifier{stageOrdinal}.Sanitize(),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create stage for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, stage, cfg.Columns, rowSource(n, len(cfg.Columns), row)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: copy into stage for %s", cfg.Table)
	}

	tag, err := tx.Exec(ctx, mergeSQL(cfg, stage))
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: merge into %s", cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

func mergeSQL(cfg UpsertConfig, stage pgx.Identifier) string {
	cols := quoteAndJoin(cfg.Columns)
	keys := quoteAndJoin(cfg.ConflictKeys)

	action := "DO NOTHING"
	if upd := cfg.updateColumns(); len(upd) > 0 {
		sets := make([]string, len(upd))
		for i, c := range upd {
			q := pgx.Identifier{c}.Sanitize()
			sets[i] = q + " = EXCLUDED." + q
		}
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT DISTINCT ON (%s) %s FROM %s ORDER BY %s, %s DESC ON CONFLICT (%s) %s",
		Identifier(cfg.Table).Sanitize(),
		cols,
		keys,
		cols,
		stage.Sanitize(),
		keys,
		pgx.Identifier{stageOrdinal}.Sanitize(),
		keys,
		action,
	)
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
