package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sms_zns_campaign_types (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL UNIQUE,
	conversion_intent TEXT NOT NULL DEFAULT 'informational'
		CHECK (conversion_intent IN ('sales', 'informational'))
);

CREATE TABLE IF NOT EXISTS customers (
	id         TEXT PRIMARY KEY,
	phone      TEXT,
	name       TEXT,
	created_at DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_customers_phone ON customers(phone);

CREATE TABLE IF NOT EXISTS sms_zns_messages (
	id               TEXT PRIMARY KEY,
	message_id       TEXT,
	message_type     TEXT,
	brandname        TEXT,
	channel          TEXT NOT NULL CHECK (channel IN ('sms', 'zns')),
	phone            TEXT NOT NULL CHECK (length(phone) = 10 AND phone NOT GLOB '*[^0-9]*'),
	customer_id      TEXT REFERENCES customers(id),
	content          TEXT,
	template_id      TEXT,
	campaign_type_id TEXT REFERENCES sms_zns_campaign_types(id),
	voucher_code     TEXT,
	network          TEXT,
	sent_at          DATETIME NOT NULL,
	total_mt         INTEGER NOT NULL DEFAULT 1,
	success_count    INTEGER NOT NULL DEFAULT 0,
	fail_count       INTEGER NOT NULL DEFAULT 0,
	unit_price       REAL NOT NULL DEFAULT 0,
	total_cost       REAL NOT NULL DEFAULT 0,
	report_month     DATE NOT NULL,
	source_file      TEXT,
	created_at       DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_messages_month_channel ON sms_zns_messages(report_month, channel);
CREATE INDEX IF NOT EXISTS idx_messages_customer ON sms_zns_messages(customer_id);
CREATE INDEX IF NOT EXISTS idx_messages_campaign_type ON sms_zns_messages(campaign_type_id, channel);
CREATE INDEX IF NOT EXISTS idx_messages_source_file ON sms_zns_messages(source_file);

CREATE TABLE IF NOT EXISTS sms_monthly_stats_cache (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	report_month        DATE NOT NULL,
	channel             TEXT NOT NULL,
	total_messages      INTEGER NOT NULL DEFAULT 0,
	total_cost          REAL NOT NULL DEFAULT 0,
	successful_messages INTEGER NOT NULL DEFAULT 0,
	failed_messages     INTEGER NOT NULL DEFAULT 0,
	unique_recipients   INTEGER NOT NULL DEFAULT 0,
	linked_recipients   INTEGER NOT NULL DEFAULT 0,
	UNIQUE (report_month, channel)
);

CREATE TABLE IF NOT EXISTS sms_campaign_stats_cache (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	campaign_name       TEXT NOT NULL,
	channel             TEXT NOT NULL,
	campaign_type_id    TEXT,
	conversion_intent   TEXT,
	total_messages      INTEGER NOT NULL DEFAULT 0,
	total_cost          REAL NOT NULL DEFAULT 0,
	successful_messages INTEGER NOT NULL DEFAULT 0,
	failed_messages     INTEGER NOT NULL DEFAULT 0,
	unique_recipients   INTEGER NOT NULL DEFAULT 0,
	linked_recipients   INTEGER NOT NULL DEFAULT 0,
	UNIQUE (campaign_name, channel)
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return classifySQLite(err, "migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Fetch(ctx context.Context, q Query) ([]Row, error) {
	query, args, err := buildSelect(sqliteDialect, q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifySQLite(err, "fetch "+q.Table)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, classifySQLite(err, "columns "+q.Table)
	}
	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classifySQLite(err, "scan "+q.Table)
		}
		r := make(Row, len(cols))
		for i, c := range cols {
			r[c] = vals[i]
		}
		out = append(out, r)
	}
	return out, classifySQLite(rows.Err(), "fetch "+q.Table)
}

func (s *SQLiteStore) Count(ctx context.Context, table string, f Filter) (int64, error) {
	query, args, err := buildCount(sqliteDialect, table, f)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, classifySQLite(err, "count "+table)
	}
	return n, nil
}

func (s *SQLiteStore) Distinct(ctx context.Context, table, column string, f Filter) ([]any, error) {
	query, args, err := buildDistinct(sqliteDialect, table, column, f)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifySQLite(err, "distinct "+table+"."+column)
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, classifySQLite(err, "scan distinct "+column)
		}
		out = append(out, v)
	}
	return out, classifySQLite(rows.Err(), "distinct "+table+"."+column)
}

// Insert writes rows in one multi-row statement, so a batch succeeds or
// fails as a unit.
func (s *SQLiteStore) Insert(ctx context.Context, table string, rows []Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	query, args := s.insertSQL(table, rows, "")
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classifySQLite(err, "insert "+table)
	}
	return rowsAffected(res), nil
}

func (s *SQLiteStore) Update(ctx context.Context, table string, ids []string, changes Row, guard Filter) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := buildUpdate(sqliteDialect, table, ids, changes, guard)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classifySQLite(err, "update "+table)
	}
	return rowsAffected(res), nil
}

func (s *SQLiteStore) Delete(ctx context.Context, table string, f Filter) (int64, error) {
	query, args, err := buildDelete(sqliteDialect, table, f)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classifySQLite(err, "delete "+table)
	}
	return rowsAffected(res), nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, table string, conflictKeys []string, rows []Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(conflictKeys) == 0 {
		return 0, eris.New("sqlite: upsert: no conflict keys specified")
	}
	cols := unionColumns(rows)
	var sets []string
	for _, c := range updateColumns(cols, conflictKeys) {
		sets = append(sets, quoteIdent(c)+" = excluded."+quoteIdent(c))
	}
	action := " DO NOTHING"
	if len(sets) > 0 {
		action = " DO UPDATE SET " + strings.Join(sets, ", ")
	}
	query, args := s.insertSQL(table, rows, " ON CONFLICT ("+quoteIdents(conflictKeys)+")"+action)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classifySQLite(err, "upsert "+table)
	}
	return rowsAffected(res), nil
}

func (s *SQLiteStore) insertSQL(table string, rows []Row, suffix string) (string, []any) {
	cols := unionColumns(rows)
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	tuples := make([]string, len(rows))
	args := make([]any, 0, len(rows)*len(cols))
	render := rowValues(sqliteDialect, cols, rows)
	for i := range rows {
		tuples[i] = tuple
		args = append(args, render(i)...)
	}
	query := "INSERT INTO " + quoteIdent(table) + " (" + quoteIdents(cols) + ") VALUES " +
		strings.Join(tuples, ", ") + suffix
	return query, args
}

func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
