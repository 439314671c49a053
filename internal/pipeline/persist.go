// =============================================================================
// persist.go - 出力先
// =============================================================================
//
// 1日分の DailyBatch を書き出す出力先の共通インターフェースと実装です。
//
// 【実装】
//   - CSVPersister:    CSVファイルに追記（新規作成時のみヘッダー行を書く）
//   - SQLPersister:    SQLite に (day, title) で upsert（再実行しても重複しない）
//   - NotionPersister: Notionデータベースにページとして追加（persist_notion.go）
//   - MultiPersister:  複数の出力先に順に書き出す
//   - TablePersister:  標準出力に表形式で表示（--dry-run、preview.go）
//
// =============================================================================
package pipeline

import (
	"context"
	"database/sql"
	"encoding/csv"
	"os"
	"regexp"
	"sync"

	"github.com/Laisky/errors/v2"
)

// Persister stores one day of results. Append may be called once per day,
// in day order.
type Persister interface {
	Append(ctx context.Context, batch DailyBatch) error
}

// =============================================================================
// CSV
// =============================================================================

// CSVPersister appends records to a CSV file.
type CSVPersister struct {
	mu   sync.Mutex
	path string
}

// NewCSVPersister returns a persister writing to path.
func NewCSVPersister(path string) *CSVPersister {
	return &CSVPersister{path: path}
}

// Append implements Persister.
func (p *CSVPersister) Append(_ context.Context, batch DailyBatch) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, statErr := os.Stat(p.path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open csv %q", p.path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(RecordHeader); err != nil {
			return errors.Wrap(err, "write csv header")
		}
	}
	for _, r := range batch.Records() {
		if err := w.Write(r.Fields()); err != nil {
			return errors.Wrap(err, "write csv record")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, "flush csv")
	}
	return nil
}

// =============================================================================
// SQL
// =============================================================================

var regexpTableName = regexp.MustCompile(`^[a-zA-Z0-9_]{1,64}$`)

// SQLPersister upserts articles keyed by (day, title).
type SQLPersister struct {
	db    *sql.DB
	table string
}

// SQLOption configures an SQLPersister.
type SQLOption func(*SQLPersister) error

// WithTableName overrides the default "articles" table.
func WithTableName(name string) SQLOption {
	return func(p *SQLPersister) error {
		if !regexpTableName.MatchString(name) {
			return errors.Errorf("invalid table name: %s", name)
		}
		p.table = name
		return nil
	}
}

// OpenSQLite opens the sqlite database at path. The caller must import the
// sqlite3 driver.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %q", path)
	}
	return db, nil
}

// NewSQLPersister creates the table if needed.
func NewSQLPersister(db *sql.DB, opts ...SQLOption) (*SQLPersister, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}

	p := &SQLPersister{db: db, table: "articles"}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	if err := p.setup(); err != nil {
		return nil, errors.Wrap(err, "setup articles table")
	}
	return p, nil
}

func (p *SQLPersister) setup() error {
	stmt := `
CREATE TABLE IF NOT EXISTS ` + p.table + ` (
  day TEXT NOT NULL,
  title TEXT NOT NULL,
  published_at TEXT NOT NULL,
  summary TEXT NOT NULL,
  url TEXT NOT NULL,
  strategy TEXT NOT NULL,
  PRIMARY KEY (day, title)
)`
	if _, err := p.db.Exec(stmt); err != nil {
		return errors.Wrap(err, "create table")
	}
	return nil
}

// Append implements Persister.
func (p *SQLPersister) Append(ctx context.Context, batch DailyBatch) error {
	if batch.Len() == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	stmt := `
INSERT INTO ` + p.table + ` (day, title, published_at, summary, url, strategy)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT(day, title)
DO UPDATE SET published_at = EXCLUDED.published_at, summary = EXCLUDED.summary,
  url = EXCLUDED.url, strategy = EXCLUDED.strategy`

	day := batch.Day.Format("2006-01-02")
	for _, a := range batch.Articles {
		if _, err := tx.ExecContext(ctx, stmt,
			day, a.Title, a.Timestamp.Format(RecordTimeLayout), a.Summary, a.URL, a.Strategy,
		); err != nil {
			return errors.Wrapf(err, "upsert article %q", a.Title)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

// Count returns the number of stored articles for day.
func (p *SQLPersister) Count(ctx context.Context, day string) (int, error) {
	var n int
	stmt := `SELECT COUNT(*) FROM ` + p.table + ` WHERE day = $1`
	if err := p.db.QueryRowContext(ctx, stmt, day).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count articles")
	}
	return n, nil
}

// =============================================================================
// Multi
// =============================================================================

// MultiPersister fans a batch out to several persisters. Every persister
// is tried even when an earlier one fails.
type MultiPersister []Persister

// Append implements Persister.
func (m MultiPersister) Append(ctx context.Context, batch DailyBatch) error {
	var errs []error
	for _, p := range m {
		if err := p.Append(ctx, batch); err != nil {
			errs = append(errs, err)
		}
	}
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errors.Errorf("%d of %d persisters failed: %v", len(errs), len(m), errs)
	}
}
