// =============================================================================
// orchestrator.go - 日ごとの収集ループ
// =============================================================================
//
// 開始日から終了日まで（両端を含む）1日ずつ処理します。
//
// 【1日の処理】
//  1. Pager でページを送りながら候補を抽出
//  2. 英語以外なら翻訳（Localizer）
//  3. 関連性フィルタ（RelevanceFilter）
//  4. タイムスタンプ解決（Concurrency 並列、結果は抽出順に並べ直す）
//  5. タイトルで重複排除（Dedupe）
//  6. Persister に書き出し（0件の日は書かない、失敗してもログに残して次の日へ）
//
// ページ送りは常に逐次。並列化するのは記事ごとの時刻解決だけ。
//
// =============================================================================
package pipeline

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"golang.org/x/sync/errgroup"
)

// Components are the collaborators of an Orchestrator. Nil Source and
// Articles fall back to the HTTP implementations.
type Components struct {
	Schema    *ExtractionSchema
	Source    PageSource
	Articles  ArticleFetcher
	Localizer *Localizer
	Persister Persister
}

// Orchestrator drives the day loop.
type Orchestrator struct {
	cfg       *PipelineConfig
	schema    *ExtractionSchema
	fetcher   *PageFetcher
	extractor ResultExtractor
	filter    *RelevanceFilter
	localizer *Localizer
	resolver  *TimestampResolver
	persister Persister
	logger    logSDK.Logger
}

// NewOrchestrator wires the pipeline for cfg. cfg must already be valid.
func NewOrchestrator(cfg *PipelineConfig, comp Components, opts ...Option) (*Orchestrator, error) {
	if comp.Schema == nil {
		return nil, errors.New("extraction schema is required")
	}
	if comp.Persister == nil {
		return nil, errors.New("persister is required")
	}
	extractor, err := NewExtractor(comp.Schema)
	if err != nil {
		return nil, errors.Wrap(err, "new extractor")
	}

	source := comp.Source
	if source == nil {
		source = NewHTTPPageSource(comp.Schema, opts...)
	}
	articles := comp.Articles
	if articles == nil {
		articles = NewHTTPArticleFetcher(opts...)
	}

	o := newOptions(opts)
	return &Orchestrator{
		cfg:       cfg,
		schema:    comp.Schema,
		fetcher:   NewPageFetcher(source, cfg.Throttle, opts...),
		extractor: extractor,
		filter:    NewRelevanceFilter(cfg.Subject, nil, cfg.Mode),
		localizer: comp.Localizer,
		resolver:  NewTimestampResolver(articles, opts...),
		persister: comp.Persister,
		logger:    o.logger.Named("orchestrator"),
	}, nil
}

// Run harvests every day of [start, end]. The error is non-nil only when
// ctx ends before the last day.
func (o *Orchestrator) Run(ctx context.Context, start, end time.Time) (*RunReport, error) {
	report := &RunReport{
		Subject: o.cfg.Subject.Name,
		Mode:    o.cfg.Mode,
		Start:   truncateDay(start),
		End:     truncateDay(end),
	}

	for day := report.Start; !day.After(report.End); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return report, errors.Wrap(err, "run interrupted")
		}
		report.Days = append(report.Days, o.harvestDay(ctx, day))
	}
	if err := ctx.Err(); err != nil {
		return report, errors.Wrap(err, "run interrupted")
	}
	return report, nil
}

func (o *Orchestrator) harvestDay(ctx context.Context, day time.Time) DayReport {
	logger := o.logger.With(zap.String("day", day.Format("2006-01-02")))
	dr := DayReport{Day: day, Strategies: map[string]int{}}

	q := SearchQuery{
		Subject:       o.cfg.Subject.Name,
		Phrase:        o.cfg.SearchPhrase(),
		Day:           day,
		ExtraKeywords: o.cfg.Subject.Keywords,
		Mode:          o.cfg.Mode,
	}
	pager := NewPager(o.fetcher, o.extractor, o.schema, q, o.cfg.MaxPagesPerDay)

	var resolved []ResolvedArticle
	for {
		cands, ok := pager.Next(ctx)
		if !ok {
			break
		}
		dr.Candidates += len(cands)

		var kept []Candidate
		for _, c := range cands {
			c = o.localizer.Localize(ctx, c)
			if o.filter.Keep(c) {
				kept = append(kept, c)
			}
		}
		dr.Relevant += len(kept)
		resolved = append(resolved, o.resolveAll(ctx, day, kept)...)
	}
	dr.Pages, dr.Outcome = pager.Pages(), pager.Outcome()

	batch := Dedupe(day, resolved)
	for _, a := range batch.Articles {
		dr.Strategies[a.Strategy]++
	}

	if batch.Len() > 0 && ctx.Err() == nil {
		if err := o.persister.Append(ctx, batch); err != nil {
			logger.Error("persist day", zap.Error(err))
			dr.PersistErr = err.Error()
		} else {
			dr.Written = batch.Len()
		}
	}

	logger.Info("day done",
		zap.String("outcome", string(dr.Outcome)),
		zap.Int("pages", dr.Pages),
		zap.Int("candidates", dr.Candidates),
		zap.Int("relevant", dr.Relevant),
		zap.Int("written", dr.Written),
	)
	return dr
}

// resolveAll resolves timestamps with bounded concurrency; the result keeps
// the order of cands.
func (o *Orchestrator) resolveAll(ctx context.Context, day time.Time, cands []Candidate) []ResolvedArticle {
	out := make([]ResolvedArticle, len(cands))

	limit := o.cfg.Concurrency
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, c := range cands {
		g.Go(func() error {
			ts := o.resolver.Resolve(ctx, c, day)
			out[i] = ResolvedArticle{
				Timestamp: ts.Time,
				Title:     c.Title,
				Summary:   c.Snippet,
				URL:       c.Link,
				Strategy:  ts.Strategy,
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
