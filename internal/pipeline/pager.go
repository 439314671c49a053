// =============================================================================
// pager.go - 1日分のページ送り
// =============================================================================
//
// 取得 → 抽出 → 次のオフセット、を終端条件まで繰り返すイテレータです。
// 終端の理由は DayOutcome として呼び出し側に返します。
//
// 【終端条件】
//   - Exhausted:  空ページ / ブロック0件 / ページングしないスキーマの1ページ目
//   - Abandoned:  リトライ上限（非200が3回連続、429上限）/ 結果ページが解析不能
//   - PageLimit:  MaxPagesPerDay に到達
//   - Cancelled:  ctx終了
//
// 使用例:
//
//	pager := NewPager(fetcher, extractor, schema, query, 0)
//	for {
//	    cands, ok := pager.Next(ctx)
//	    if !ok {
//	        break
//	    }
//	    ...
//	}
//	outcome := pager.Outcome()
//
// =============================================================================
package pipeline

import (
	"context"

	"github.com/Laisky/zap"
)

// DayOutcome は1日分のページ送りが終わった理由
type DayOutcome string

const (
	OutcomeExhausted DayOutcome = "exhausted"
	OutcomeAbandoned DayOutcome = "abandoned"
	OutcomePageLimit DayOutcome = "page_limit"
	OutcomeCancelled DayOutcome = "cancelled"
)

// Pager iterates over the result pages of one day.
type Pager struct {
	fetcher   *PageFetcher
	extractor ResultExtractor
	schema    *ExtractionSchema
	query     SearchQuery
	maxPages  int

	offset  int
	pages   int
	done    bool
	outcome DayOutcome
}

// NewPager creates a pager starting at offset 0. maxPages <= 0 means no cap.
func NewPager(fetcher *PageFetcher, extractor ResultExtractor, schema *ExtractionSchema, q SearchQuery, maxPages int) *Pager {
	return &Pager{
		fetcher:   fetcher,
		extractor: extractor,
		schema:    schema,
		query:     q,
		maxPages:  maxPages,
	}
}

// Next returns the candidates of the next page. It returns false once the
// day has reached a terminal outcome; Outcome then reports which.
func (p *Pager) Next(ctx context.Context) ([]Candidate, bool) {
	if p.done {
		return nil, false
	}
	if p.maxPages > 0 && p.pages >= p.maxPages {
		return p.finish(OutcomePageLimit)
	}
	if p.pages > 0 {
		if err := p.fetcher.Pause(ctx, p.pages); err != nil {
			return p.finish(OutcomeCancelled)
		}
	}

	page, fetched := p.fetcher.Fetch(ctx, p.query, p.offset)
	switch fetched {
	case FetchExhausted:
		return p.finish(OutcomeExhausted)
	case FetchAbandoned:
		return p.finish(OutcomeAbandoned)
	case FetchCancelled:
		return p.finish(OutcomeCancelled)
	}

	cands, blocks, err := p.extractor.Extract(page)
	if err != nil {
		p.fetcher.logger.Warn("unreadable result page, abandon day",
			zap.String("day", p.query.Day.Format("2006-01-02")),
			zap.Int("offset", p.offset),
			zap.Error(err))
		return p.finish(OutcomeAbandoned)
	}
	if blocks == 0 {
		return p.finish(OutcomeExhausted)
	}

	p.pages++
	p.offset += p.schema.Step()
	if !p.schema.Paginated {
		p.done, p.outcome = true, OutcomeExhausted
	}
	return cands, true
}

// Pages reports how many result pages were consumed.
func (p *Pager) Pages() int {
	return p.pages
}

// Outcome is meaningful once Next has returned false.
func (p *Pager) Outcome() DayOutcome {
	return p.outcome
}

func (p *Pager) finish(o DayOutcome) ([]Candidate, bool) {
	p.done, p.outcome = true, o
	return nil, false
}
