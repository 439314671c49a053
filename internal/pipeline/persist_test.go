package pipeline

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Laisky/errors/v2"
	"github.com/jomei/notionapi"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func testBatch() DailyBatch {
	return DailyBatch{
		Day: date(2017, 10, 12, 0, 0, 0),
		Articles: []ResolvedArticle{
			{
				Timestamp: date(2017, 10, 12, 11, 25, 0),
				Title:     "Reliance Q2 profit rises 8%",
				Summary:   "Reliance Industries posted, a \"record\" quarter",
				URL:       "https://news.example/q2",
				Strategy:  StrategyMetaTags,
			},
			{
				Timestamp: date(2017, 10, 12, 15, 0, 0),
				Title:     "Jio adds 10 million users",
				Summary:   NoSummary,
				URL:       "https://news.example/jio",
				Strategy:  StrategyFallback,
			},
		},
	}
}

func TestCSVPersisterWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultCSVPath)
	p := NewCSVPersister(path)
	ctx := context.Background()

	require.NoError(t, p.Append(ctx, testBatch()))
	require.NoError(t, p.Append(ctx, testBatch()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 5)
	require.Equal(t, RecordHeader, rows[0])
	require.Equal(t, []string{"12-10-2017 11:25:00", "Reliance Q2 profit rises 8%",
		"Reliance Industries posted, a \"record\" quarter", "https://news.example/q2"}, rows[1])
	require.Equal(t, NoSummary, rows[2][2])
	require.Equal(t, rows[1], rows[3])
}

func TestCSVPersisterAppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(path, []byte("timestamp,title,summary,url\n"), 0o644))

	require.NoError(t, NewCSVPersister(path).Append(context.Background(), testBatch()))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(string(data), "timestamp,title,summary,url"))
}

func setupTestSQLPersister(t *testing.T) (*SQLPersister, *sql.DB) {
	db, err := OpenSQLite("file::memory:?cache=shared")
	require.NoError(t, err, "failed to connect to in-memory db")
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})
	p, err := NewSQLPersister(db, WithTableName("test_"+strings.ReplaceAll(t.Name(), "/", "_")))
	require.NoError(t, err)
	return p, db
}

func TestSQLPersisterIsIdempotent(t *testing.T) {
	p, _ := setupTestSQLPersister(t)
	ctx := context.Background()

	require.NoError(t, p.Append(ctx, testBatch()))
	require.NoError(t, p.Append(ctx, testBatch()))

	n, err := p.Count(ctx, "2017-10-12")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	updated := testBatch()
	updated.Articles = updated.Articles[:1]
	updated.Articles[0].URL = "https://news.example/q2-updated"
	require.NoError(t, p.Append(ctx, updated))

	var url string
	require.NoError(t, p.db.QueryRowContext(ctx,
		`SELECT url FROM `+p.table+` WHERE day = $1 AND title = $2`,
		"2017-10-12", "Reliance Q2 profit rises 8%").Scan(&url))
	require.Equal(t, "https://news.example/q2-updated", url)

	n, err = p.Count(ctx, "2017-10-13")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSQLPersisterOptions(t *testing.T) {
	_, err := NewSQLPersister(nil)
	require.Error(t, err)

	db, err := OpenSQLite("file::memory:?cache=shared")
	require.NoError(t, err)
	defer db.Close()
	_, err = NewSQLPersister(db, WithTableName("articles; DROP TABLE x"))
	require.Error(t, err)
}

type failingPersister struct{ err error }

func (p failingPersister) Append(context.Context, DailyBatch) error { return p.err }

type memoryPersister struct {
	mu      sync.Mutex
	batches []DailyBatch
}

func (p *memoryPersister) Append(_ context.Context, b DailyBatch) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, b)
	return nil
}

func TestMultiPersister(t *testing.T) {
	ctx := context.Background()
	mem := &memoryPersister{}
	boom := errors.New("disk full")

	require.NoError(t, MultiPersister{mem}.Append(ctx, testBatch()))

	err := MultiPersister{failingPersister{boom}, mem}.Append(ctx, testBatch())
	require.ErrorIs(t, err, boom)
	require.Len(t, mem.batches, 2, "later persisters still run")

	err = MultiPersister{failingPersister{boom}, failingPersister{errors.New("quota")}}.Append(ctx, testBatch())
	require.Error(t, err)
	require.Contains(t, err.Error(), "2 of 2 persisters failed")
}

func TestTablePersister(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTablePersister(&buf).Append(context.Background(), testBatch()))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	require.Equal(t, "== 2017-10-12 (2 articles)", lines[0])
	require.True(t, strings.HasPrefix(lines[1], "TIMESTAMP"))
	require.True(t, strings.HasPrefix(lines[2], "12-10-2017 11:25:00  meta-tags"))
	require.True(t, strings.HasSuffix(lines[3], "Jio adds 10 million users"))
}

func TestRenderTableTruncatesWideTitles(t *testing.T) {
	batch := DailyBatch{Day: date(2017, 10, 12, 0, 0, 0), Articles: []ResolvedArticle{{
		Timestamp: date(2017, 10, 12, 1, 0, 0),
		Title:     strings.Repeat("リライアンス", 20),
		Strategy:  StrategyStructuredData,
	}}}
	out := RenderTable(batch)
	require.Contains(t, out, "...")
	require.NotContains(t, out, strings.Repeat("リライアンス", 20))
}

// -----------------------------------------------------------------------------
// Notion
// -----------------------------------------------------------------------------

type fakeNotionPages struct {
	mu   sync.Mutex
	reqs []*notionapi.PageCreateRequest
	fail map[string]bool
}

func (f *fakeNotionPages) Create(_ context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	title := req.Properties["Title"].(notionapi.TitleProperty).Title[0].Text.Content
	if f.fail[title] {
		return nil, errors.New("validation_error")
	}
	f.reqs = append(f.reqs, req)
	return &notionapi.Page{}, nil
}

type fakeNotionDatabases struct {
	req *notionapi.DatabaseCreateRequest
}

func (f *fakeNotionDatabases) Create(_ context.Context, req *notionapi.DatabaseCreateRequest) (*notionapi.Database, error) {
	f.req = req
	return &notionapi.Database{ID: "db-123"}, nil
}

func TestNotionPersister(t *testing.T) {
	pages := &fakeNotionPages{}
	dbs := &fakeNotionDatabases{}
	p := newNotionPersister(pages, dbs, "")
	ctx := context.Background()

	require.Error(t, p.Append(ctx, testBatch()), "no database yet")

	require.NoError(t, p.CreateDatabase(ctx, "page-1", "Reliance news"))
	require.Equal(t, "db-123", p.DatabaseID())
	require.Equal(t, notionapi.PageID("page-1"), dbs.req.Parent.PageID)
	require.Contains(t, dbs.req.Properties, "Strategy")

	require.NoError(t, p.Append(ctx, testBatch()))
	require.Len(t, pages.reqs, 2)

	first := pages.reqs[0]
	require.Equal(t, notionapi.DatabaseID("db-123"), first.Parent.DatabaseID)
	require.Equal(t, "https://news.example/q2", first.Properties["URL"].(notionapi.URLProperty).URL)
	require.Equal(t, StrategyMetaTags, first.Properties["Strategy"].(notionapi.SelectProperty).Select.Name)
	require.Contains(t, first.Properties, "Summary")
	require.NotContains(t, pages.reqs[1].Properties, "Summary", "sentinel summary is not stored")

	require.Error(t, p.CreateDatabase(ctx, "", "x"))
}

func TestNotionPersisterContinuesAfterFailure(t *testing.T) {
	pages := &fakeNotionPages{fail: map[string]bool{"Reliance Q2 profit rises 8%": true}}
	p := newNotionPersister(pages, &fakeNotionDatabases{}, "db-1")

	err := p.Append(context.Background(), testBatch())
	require.Error(t, err)
	require.Len(t, pages.reqs, 1)

	_, err = NewNotionPersister("", "db-1")
	require.Error(t, err)
}
