package pipeline

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"
)

// recordingSleeper records every requested wait without sleeping.
type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

func (s *recordingSleeper) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

// scriptedSource replays results in order; once the script runs out every
// call returns an empty page.
type scriptedSource struct {
	mu      sync.Mutex
	results []PageResult
	offsets []int
}

func (s *scriptedSource) Fetch(_ context.Context, _ SearchQuery, offset int) PageResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := len(s.offsets)
	s.offsets = append(s.offsets, offset)
	if i < len(s.results) {
		return s.results[i]
	}
	return PageResult{Status: PageExhaustedHint, StatusCode: 200, Page: &Page{}}
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.offsets)
}

// fakeArticles serves parsed documents by link; unknown links fail.
type fakeArticles struct {
	mu    sync.Mutex
	docs  map[string]*ArticleDoc
	calls int
}

func (f *fakeArticles) Fetch(_ context.Context, link string) (*ArticleDoc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if d, ok := f.docs[link]; ok {
		return d, nil
	}
	return nil, errors.Errorf("GET %s: status 404 Not Found", link)
}

func statusResult(status PageStatus, code int) PageResult {
	return PageResult{Status: status, StatusCode: code, Err: errors.Errorf("status %d", code)}
}

func htmlResult(body string) PageResult {
	return PageResult{
		Status:     PageSuccess,
		StatusCode: 200,
		Page:       &Page{StatusCode: 200, ContentType: "text/html", Body: []byte(body)},
	}
}

func mustArticle(t *testing.T, link, body string) *ArticleDoc {
	t.Helper()
	doc, err := parseHTMLArticle(link, strings.NewReader(body), "text/html; charset=utf-8")
	require.NoError(t, err)
	return doc
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testRand() *rand.Rand {
	return rand.New(rand.NewSource(1))
}

func date(y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, time.UTC)
}

// resultBlock renders one Google News result block as served by the
// google-news-html schema.
func resultBlock(title, href, snippet, label string) string {
	var sb strings.Builder
	sb.WriteString(`<div class="SoaBEf"><a href="` + href + `">`)
	if title != "" {
		sb.WriteString(`<div class="n0jPhd ynAwRc MBeuO nDgy9d">` + title + `</div>`)
	}
	if snippet != "" {
		sb.WriteString(`<div class="GI74Re nDgy9d">` + snippet + `</div>`)
	}
	if label != "" {
		sb.WriteString(`<div class="OSrXXb"><span class="WG9SHc">` + label + `</span></div>`)
	}
	sb.WriteString(`</a></div>`)
	return sb.String()
}

func resultPage(blocks ...string) string {
	return `<html><body><div id="rso">` + strings.Join(blocks, "") + `</div></body></html>`
}
