// =============================================================================
// timestamp.go - タイムスタンプ解決チェーン
// =============================================================================
//
// 記事候補1件の公開時刻を、信頼度の高い順に手段を試して決定します。
// 最後のフォールバックは必ず成功するため、Resolve は常に値を返します。
//
// 【処理の流れ】
//  1. 記事本体を取得（失敗してもエラーにしない）
//  2. 記事本体に対する手段（JSON-LD → meta → PDF情報 → <time> → 本文）
//  3. 検索結果ラベル
//  4. 対象日 + 現在時刻
//
// =============================================================================
package pipeline

import (
	"context"
	"time"

	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
)

// 解決手段の名前（ResolvedArticle.Strategy に入る）
const (
	StrategyStructuredData = "structured-data"
	StrategyMetaTags       = "meta-tags"
	StrategyPDFInfo        = "pdf-info"
	StrategyTimeMarkup     = "time-markup"
	StrategyVisibleText    = "visible-text"
	StrategySearchLabel    = "search-label"
	StrategyFallback       = "fallback"
)

// ResolvedTimestamp is the result of one resolution.
type ResolvedTimestamp struct {
	Time     time.Time
	Strategy string
}

type documentStrategy struct {
	name string
	fn   func(*ArticleDoc) (time.Time, bool)
}

var documentStrategies = []documentStrategy{
	{StrategyStructuredData, func(d *ArticleDoc) (time.Time, bool) { return FromStructuredData(d.HTML) }},
	{StrategyMetaTags, func(d *ArticleDoc) (time.Time, bool) { return FromMetaTags(d.HTML) }},
	{StrategyPDFInfo, func(d *ArticleDoc) (time.Time, bool) { return FromPDFInfo(d.PDFDates) }},
	{StrategyTimeMarkup, func(d *ArticleDoc) (time.Time, bool) { return FromTimeMarkup(d.HTML) }},
	{StrategyVisibleText, func(d *ArticleDoc) (time.Time, bool) { return FromVisibleText(d.Text) }},
}

// TimestampResolver composes the strategies into a first-success chain.
//
// Safe for concurrent use as long as the ArticleFetcher is.
type TimestampResolver struct {
	articles ArticleFetcher
	now      func() time.Time
	logger   logSDK.Logger
}

// NewTimestampResolver creates a resolver. A nil articles skips every
// document strategy.
func NewTimestampResolver(articles ArticleFetcher, opts ...Option) *TimestampResolver {
	o := newOptions(opts)
	return &TimestampResolver{
		articles: articles,
		now:      o.now,
		logger:   o.logger.Named("timestamp_resolver"),
	}
}

// Resolve never fails; the last step always produces a value.
func (r *TimestampResolver) Resolve(ctx context.Context, c Candidate, day time.Time) ResolvedTimestamp {
	now := r.now()
	logger := r.logger.With(zap.String("url", c.Link))

	if doc := r.fetchArticle(ctx, c.Link); doc != nil {
		for _, s := range documentStrategies {
			if t, ok := s.fn(doc); ok {
				logger.Debug("timestamp resolved", zap.String("strategy", s.name), zap.Time("at", t))
				return ResolvedTimestamp{Time: t, Strategy: s.name}
			}
		}
	}

	if t, ok := FromSearchLabel(c.TimeLabel, now); ok {
		logger.Debug("timestamp from search label", zap.String("label", c.TimeLabel))
		return ResolvedTimestamp{Time: t, Strategy: StrategySearchLabel}
	}

	logger.Debug("timestamp fallback", zap.String("label", c.TimeLabel))
	return ResolvedTimestamp{Time: FallbackTimestamp(day, now), Strategy: StrategyFallback}
}

func (r *TimestampResolver) fetchArticle(ctx context.Context, link string) *ArticleDoc {
	if r.articles == nil || link == "" || ctx.Err() != nil {
		return nil
	}
	doc, err := r.articles.Fetch(ctx, link)
	if err != nil {
		r.logger.Debug("fetch article", zap.String("url", link), zap.Error(err))
		return nil
	}
	return doc
}
