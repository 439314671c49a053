package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"
)

func testOrchestrator(t *testing.T, src PageSource, articles ArticleFetcher, persister Persister) *Orchestrator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Subject.Name = "Reliance"
	cfg.Mode = ModeGeneral
	cfg.Concurrency = 4
	require.NoError(t, cfg.Validate())

	sleeper := &recordingSleeper{}
	o, err := NewOrchestrator(cfg, Components{
		Schema:    mustBuiltin(t, SchemaGoogleNewsHTML),
		Source:    src,
		Articles:  articles,
		Persister: persister,
	}, WithSleeper(sleeper.Sleep), WithRand(testRand()), WithClock(fixedClock(date(2017, 10, 14, 10, 0, 0))))
	require.NoError(t, err)
	return o
}

func TestOrchestratorEndToEnd(t *testing.T) {
	var page1 []string
	for i := 0; i < 9; i++ {
		page1 = append(page1, resultBlock(
			fmt.Sprintf("Reliance story %c", 'A'+i),
			fmt.Sprintf("https://news.example/a%d?utm_source=gn", i),
			"snippet", "1 hour ago"))
	}
	page1 = append(page1, resultBlock("Compliance rules tighten", "https://news.example/c", "snippet", "1 hour ago"))
	page2 := []string{
		resultBlock("Reliance follow-up A", "https://news.example/b0", "", ""),
		resultBlock("Reliance story A", "https://news.example/dup", "", ""),
	}

	src := &scriptedSource{results: []PageResult{
		htmlResult(resultPage(page1...)),
		htmlResult(resultPage(page2...)),
		htmlResult(resultPage()),
		statusResult(PageTransientFailure, 500),
		statusResult(PageTransientFailure, 500),
		statusResult(PageTransientFailure, 500),
	}}
	articles := &fakeArticles{docs: map[string]*ArticleDoc{
		"https://news.example/a1": mustArticle(t, "https://news.example/a1",
			`<meta property="article:published_time" content="2017-10-12T08:15:00+05:30">`),
	}}
	mem := &memoryPersister{}

	o := testOrchestrator(t, src, articles, mem)
	report, err := o.Run(context.Background(), date(2017, 10, 12, 0, 0, 0), date(2017, 10, 13, 0, 0, 0))
	require.NoError(t, err)
	require.Equal(t, []int{0, 10, 20, 0, 0, 0}, src.offsets)

	require.Len(t, report.Days, 2)
	day1 := report.Days[0]
	require.Equal(t, OutcomeExhausted, day1.Outcome)
	require.Equal(t, 2, day1.Pages)
	require.Equal(t, 12, day1.Candidates)
	require.Equal(t, 11, day1.Relevant)
	require.Equal(t, 10, day1.Written)
	require.Equal(t, map[string]int{StrategyMetaTags: 1, StrategySearchLabel: 7, StrategyFallback: 2}, day1.Strategies)

	day2 := report.Days[1]
	require.Equal(t, OutcomeAbandoned, day2.Outcome)
	require.Zero(t, day2.Written)
	require.Len(t, report.Failures(), 1)

	require.Len(t, mem.batches, 1, "nothing is persisted for an empty day")
	batch := mem.batches[0]
	require.Equal(t, 10, batch.Len())

	first := batch.Articles[0]
	require.Equal(t, "Reliance story A", first.Title)
	require.Equal(t, "https://news.example/dup", first.URL, "later duplicate wins")
	require.Equal(t, StrategyFallback, first.Strategy)
	require.Equal(t, date(2017, 10, 12, 10, 0, 0), first.Timestamp)

	second := batch.Articles[1]
	require.Equal(t, "Reliance story B", second.Title)
	require.Equal(t, "https://news.example/a1", second.URL)
	require.Equal(t, date(2017, 10, 12, 8, 15, 0), second.Timestamp)

	third := batch.Articles[2]
	require.Equal(t, StrategySearchLabel, third.Strategy)
	require.Equal(t, date(2017, 10, 14, 9, 0, 0), third.Timestamp)

	last := batch.Articles[9]
	require.Equal(t, "Reliance follow-up A", last.Title)
	require.Equal(t, NoSummary, last.Summary)

	for _, a := range batch.Articles {
		require.NotEqual(t, "Compliance rules tighten", a.Title)
		require.False(t, a.Timestamp.IsZero())
	}
}

func TestOrchestratorPersistFailureContinues(t *testing.T) {
	page := htmlResult(resultPage(resultBlock("Reliance AGM", "https://news.example/agm", "s", "2 hours ago")))
	src := &scriptedSource{results: []PageResult{
		page, htmlResult(resultPage()),
		page, htmlResult(resultPage()),
	}}

	o := testOrchestrator(t, src, &fakeArticles{}, failingPersister{errors.New("disk full")})
	report, err := o.Run(context.Background(), date(2017, 10, 12, 0, 0, 0), date(2017, 10, 13, 0, 0, 0))
	require.NoError(t, err)
	require.Len(t, report.Days, 2)
	for _, d := range report.Days {
		require.Equal(t, "disk full", d.PersistErr)
		require.Zero(t, d.Written)
	}
	require.Len(t, report.Failures(), 2)
}

func TestOrchestratorCancelled(t *testing.T) {
	mem := &memoryPersister{}
	o := testOrchestrator(t, &scriptedSource{}, &fakeArticles{}, mem)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := o.Run(ctx, date(2017, 10, 12, 0, 0, 0), date(2017, 10, 20, 0, 0, 0))
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, report.Days)
	require.Empty(t, mem.batches)
}

func TestNewOrchestratorRequiresComponents(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Subject.Name = "Reliance"

	_, err := NewOrchestrator(cfg, Components{Persister: &memoryPersister{}})
	require.Error(t, err)
	_, err = NewOrchestrator(cfg, Components{Schema: mustBuiltin(t, SchemaGoogleNewsHTML)})
	require.Error(t, err)
}
