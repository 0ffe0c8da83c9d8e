package store

import (
	"context"
	"embed"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/matviet/outbound-cli/internal/db"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationLockID keys the advisory lock that serializes concurrent
// migrate runs.
const migrationLockID = 7325001

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, classifyPG(err, "ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. The caller keeps ownership.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Migrate applies pending embedded migrations in lexicographic order under
// an advisory lock, recording each in schema_migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.migrate"))

	if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return classifyPG(err, "acquire migration advisory lock")
	}
	defer func() {
		if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.Warn("postgres: failed to release migration advisory lock", zap.Error(err))
		}
	}()

	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename   TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return classifyPG(err, "ensure migration table")
	}

	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return eris.Wrap(err, "postgres: read migration dir")
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if applied[name] {
			continue
		}
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return eris.Wrapf(err, "postgres: read migration %s", name)
		}

		log.Info("applying migration", zap.String("file", name))
		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return classifyPG(err, "apply migration "+name)
		}
		if _, err := s.pool.Exec(ctx,
			"INSERT INTO schema_migrations (filename, applied_at) VALUES ($1, now())",
			name,
		); err != nil {
			return classifyPG(err, "record migration "+name)
		}
	}
	return nil
}

func (s *PostgresStore) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, classifyPG(err, "query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan migration row")
		}
		applied[name] = true
	}
	return applied, classifyPG(rows.Err(), "iterate applied migrations")
}

func (s *PostgresStore) Fetch(ctx context.Context, q Query) ([]Row, error) {
	sql, args, err := buildSelect(pgDialect, q)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, classifyPG(err, "fetch "+q.Table)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, classifyPG(err, "decode "+q.Table)
		}
		r := make(Row, len(fields))
		for i, f := range fields {
			r[f.Name] = vals[i]
		}
		out = append(out, r)
	}
	return out, classifyPG(rows.Err(), "fetch "+q.Table)
}

func (s *PostgresStore) Count(ctx context.Context, table string, f Filter) (int64, error) {
	sql, args, err := buildCount(pgDialect, table, f)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, classifyPG(err, "count "+table)
	}
	return n, nil
}

func (s *PostgresStore) Distinct(ctx context.Context, table, column string, f Filter) ([]any, error) {
	sql, args, err := buildDistinct(pgDialect, table, column, f)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, classifyPG(err, "distinct "+table+"."+column)
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, classifyPG(err, "decode distinct "+column)
		}
		out = append(out, vals[0])
	}
	return out, classifyPG(rows.Err(), "distinct "+table+"."+column)
}

// Insert writes rows with COPY. A COPY is all-or-nothing, so callers that
// need per-row isolation retry failed batches one row at a time.
func (s *PostgresStore) Insert(ctx context.Context, table string, rows []Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	cols := unionColumns(rows)
	n, err := db.CopyFrom(ctx, s.pool, table, cols, len(rows), rowValues(pgDialect, cols, rows))
	if err != nil {
		return 0, classifyPG(err, "insert "+table)
	}
	return n, nil
}

func (s *PostgresStore) Update(ctx context.Context, table string, ids []string, changes Row, guard Filter) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	sql, args, err := buildUpdate(pgDialect, table, ids, changes, guard)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, classifyPG(err, "update "+table)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Delete(ctx context.Context, table string, f Filter) (int64, error) {
	sql, args, err := buildDelete(pgDialect, table, f)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, classifyPG(err, "delete "+table)
	}
	return tag.RowsAffected(), nil
}

// Upsert stages rows through db.BulkUpsert. The id column is written for new
// rows only, so ids other tables already reference never change.
func (s *PostgresStore) Upsert(ctx context.Context, table string, conflictKeys []string, rows []Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	cols := unionColumns(rows)
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        table,
		Columns:      cols,
		ConflictKeys: conflictKeys,
		Preserve:     []string{"id"},
	}, len(rows), rowValues(pgDialect, cols, rows))
	if err != nil {
		return 0, classifyPG(err, "upsert "+table)
	}
	return n, nil
}
