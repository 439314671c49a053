package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustBuiltin(t *testing.T, name string) *ExtractionSchema {
	t.Helper()
	s, err := BuiltinSchema(name)
	require.NoError(t, err)
	return s
}

func TestHTMLExtractor(t *testing.T) {
	schema := mustBuiltin(t, SchemaGoogleNewsHTML)
	ex, err := NewExtractor(schema)
	require.NoError(t, err)

	body := resultPage(
		resultBlock("Reliance Q2 profit rises 8%", "/url?q=https://news.example/reliance-q2%3Futm%3D1&sa=U", "Reliance Industries posted ...", "3 hours ago"),
		resultBlock("", "https://news.example/untitled", "no title here", "1 hour ago"),
		resultBlock("Jio adds subscribers", "https://news.example/jio?ref=gn#top", "", ""),
		`<div class="SoaBEf"><div class="n0jPhd ynAwRc MBeuO nDgy9d">No link at all</div></div>`,
	)
	cands, blocks, err := ex.Extract(&Page{Body: []byte(body)})
	require.NoError(t, err)
	require.Equal(t, 4, blocks)
	require.Equal(t, []Candidate{
		{
			Title:     "Reliance Q2 profit rises 8%",
			Snippet:   "Reliance Industries posted ...",
			Link:      "https://news.example/reliance-q2",
			TimeLabel: "3 hours ago",
		},
		{
			Title:   "Jio adds subscribers",
			Snippet: NoSummary,
			Link:    "https://news.example/jio",
		},
	}, cands)
}

func TestHTMLExtractorTimeLabelFallback(t *testing.T) {
	ex, err := NewExtractor(mustBuiltin(t, SchemaGoogleNewsHTML))
	require.NoError(t, err)

	body := resultPage(`<div class="SoaBEf"><a href="https://news.example/a">
		<div class="n0jPhd ynAwRc MBeuO nDgy9d">Reliance AGM date set</div>
		<time>12 Oct 2017</time></a></div>`)
	cands, _, err := ex.Extract(&Page{Body: []byte(body)})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.Equal(t, "12 Oct 2017", cands[0].TimeLabel)
}

func TestHTMLExtractorNoBlocks(t *testing.T) {
	ex, err := NewExtractor(mustBuiltin(t, SchemaGoogleNewsHTML))
	require.NoError(t, err)

	cands, blocks, err := ex.Extract(&Page{Body: []byte(`<html><body><p>Your search did not match any documents.</p></body></html>`)})
	require.NoError(t, err)
	require.Zero(t, blocks)
	require.Empty(t, cands)
}

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Reliance - Google News</title>
<item>
  <title>Reliance shares hit record high</title>
  <link>https://news.example/record?oc=5</link>
  <pubDate>Thu, 12 Oct 2017 08:30:00 GMT</pubDate>
  <description>&lt;a href="https://news.example/record"&gt;Reliance shares&lt;/a&gt; &amp;nbsp; rose 3%</description>
</item>
<item>
  <title></title>
  <link>https://news.example/empty</link>
</item>
<item>
  <title>Reliance Retail expands</title>
  <link>https://news.example/retail</link>
</item>
</channel></rss>`

func TestRSSExtractor(t *testing.T) {
	ex, err := NewExtractor(mustBuiltin(t, SchemaGoogleNewsRSS))
	require.NoError(t, err)

	cands, blocks, err := ex.Extract(&Page{Body: []byte(testFeed)})
	require.NoError(t, err)
	require.Equal(t, 3, blocks)
	require.Len(t, cands, 2)
	require.Equal(t, "Reliance shares hit record high", cands[0].Title)
	require.Equal(t, "https://news.example/record", cands[0].Link)
	require.Equal(t, "Thu, 12 Oct 2017 08:30:00 GMT", cands[0].TimeLabel)
	require.Contains(t, cands[0].Snippet, "rose 3%")
	require.NotContains(t, cands[0].Snippet, "<a")
	require.Equal(t, NoSummary, cands[1].Snippet)

	_, _, err = ex.Extract(&Page{Body: []byte("not a feed")})
	require.Error(t, err)
}

func TestPagerStopsOnEmptyPage(t *testing.T) {
	schema := mustBuiltin(t, SchemaGoogleNewsHTML)
	ex, err := NewExtractor(schema)
	require.NoError(t, err)

	var first, second []string
	for i := 0; i < 10; i++ {
		first = append(first, resultBlock("Reliance story "+string(rune('A'+i)), "https://news.example/a"+string(rune('a'+i)), "s", ""))
	}
	for i := 0; i < 2; i++ {
		second = append(second, resultBlock("Reliance follow-up "+string(rune('A'+i)), "https://news.example/b"+string(rune('a'+i)), "s", ""))
	}
	src := &scriptedSource{results: []PageResult{
		htmlResult(resultPage(first...)),
		htmlResult(resultPage(second...)),
		htmlResult(resultPage()),
	}}
	f, sleeper := newTestFetcher(src, DefaultConfig().Throttle)
	pager := NewPager(f, ex, schema, testQuery(), 0)

	var got []Candidate
	for {
		cands, ok := pager.Next(context.Background())
		if !ok {
			break
		}
		got = append(got, cands...)
	}
	require.Len(t, got, 12)
	require.Equal(t, OutcomeExhausted, pager.Outcome())
	require.Equal(t, 2, pager.Pages())
	require.Equal(t, []int{0, 10, 20}, src.offsets)
	require.Len(t, sleeper.Waits(), 2, "politeness delay before the second and third page")

	_, ok := pager.Next(context.Background())
	require.False(t, ok, "a finished pager stays finished")
	require.Equal(t, 3, src.Calls())
}

func TestPagerOutcomes(t *testing.T) {
	schema := mustBuiltin(t, SchemaGoogleNewsHTML)
	ex, err := NewExtractor(schema)
	require.NoError(t, err)
	page := htmlResult(resultPage(resultBlock("Reliance", "https://news.example/a", "s", "")))

	t.Run("page limit", func(t *testing.T) {
		src := &scriptedSource{results: []PageResult{page, page, page}}
		f, _ := newTestFetcher(src, DefaultConfig().Throttle)
		pager := NewPager(f, ex, schema, testQuery(), 2)
		for {
			if _, ok := pager.Next(context.Background()); !ok {
				break
			}
		}
		require.Equal(t, OutcomePageLimit, pager.Outcome())
		require.Equal(t, 2, src.Calls())
	})

	t.Run("abandoned", func(t *testing.T) {
		src := &scriptedSource{results: []PageResult{
			page,
			statusResult(PageTransientFailure, 500),
			statusResult(PageTransientFailure, 500),
			statusResult(PageTransientFailure, 500),
		}}
		f, _ := newTestFetcher(src, DefaultConfig().Throttle)
		pager := NewPager(f, ex, schema, testQuery(), 0)

		cands, ok := pager.Next(context.Background())
		require.True(t, ok)
		require.Len(t, cands, 1)
		_, ok = pager.Next(context.Background())
		require.False(t, ok)
		require.Equal(t, OutcomeAbandoned, pager.Outcome())
		require.Equal(t, 4, src.Calls())
	})

	t.Run("single page schema", func(t *testing.T) {
		rss := mustBuiltin(t, SchemaGoogleNewsRSS)
		rssEx, err := NewExtractor(rss)
		require.NoError(t, err)
		src := &scriptedSource{results: []PageResult{
			{Status: PageSuccess, StatusCode: 200, Page: &Page{Body: []byte(testFeed)}},
		}}
		f, _ := newTestFetcher(src, DefaultConfig().Throttle)
		pager := NewPager(f, rssEx, rss, testQuery(), 0)

		cands, ok := pager.Next(context.Background())
		require.True(t, ok)
		require.Len(t, cands, 2)
		_, ok = pager.Next(context.Background())
		require.False(t, ok)
		require.Equal(t, OutcomeExhausted, pager.Outcome())
		require.Equal(t, 1, src.Calls())
	})

	t.Run("cancelled", func(t *testing.T) {
		f, _ := newTestFetcher(&scriptedSource{}, DefaultConfig().Throttle)
		pager := NewPager(f, ex, schema, testQuery(), 0)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, ok := pager.Next(ctx)
		require.False(t, ok)
		require.Equal(t, OutcomeCancelled, pager.Outcome())
	})
}
