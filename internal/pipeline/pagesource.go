// =============================================================================
// pagesource.go - 検索結果ページの取得（1リクエスト）
// =============================================================================
//
// (query, offset) に対してHTTPリクエストを1回だけ送り、応答を分類します。
// リトライや待機は一切行いません（fetcher.go の PageFetcher が担当）。
//
// 【分類ルール】
//
//	200 + 本文あり   → PageSuccess
//	200 + 本文なし   → PageExhaustedHint
//	429              → PageRateLimited
//	その他 / 通信エラー → PageTransientFailure
//
// =============================================================================
package pipeline

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
)

// SearchTimeout は検索結果ページ1回あたりのタイムアウト
const SearchTimeout = 10 * time.Second

// maxPageBytes は検索結果ページとして読み込む最大サイズ
const maxPageBytes = 8 << 20

// PageStatus は1回の取得結果の分類
type PageStatus int

const (
	PageSuccess PageStatus = iota
	PageRateLimited
	PageTransientFailure
	PageExhaustedHint
)

func (s PageStatus) String() string {
	switch s {
	case PageSuccess:
		return "success"
	case PageRateLimited:
		return "rate_limited"
	case PageTransientFailure:
		return "transient_failure"
	case PageExhaustedHint:
		return "exhausted_hint"
	default:
		return "unknown"
	}
}

// PageResult は PageSource.Fetch の戻り値
//
// Page は PageSuccess / PageExhaustedHint のときのみ非nil。
// Err は通信エラー時の原因（ログ用）。
type PageResult struct {
	Status     PageStatus
	StatusCode int
	Page       *Page
	Err        error
}

// PageSource performs exactly one request for a result page.
type PageSource interface {
	Fetch(ctx context.Context, q SearchQuery, offset int) PageResult
}

// HTTPPageSource は抽出スキーマのURLテンプレートを使う PageSource
type HTTPPageSource struct {
	schema    *ExtractionSchema
	client    *http.Client
	userAgent string
	logger    logSDK.Logger
}

// NewHTTPPageSource builds a source for schema.
func NewHTTPPageSource(schema *ExtractionSchema, opts ...Option) *HTTPPageSource {
	o := newOptions(opts)
	client := o.client
	if client == nil {
		// 同意画面などのCookieを同じ実行内で使い回す
		jar, _ := cookiejar.New(nil)
		client = &http.Client{Timeout: SearchTimeout, Jar: jar}
	}
	return &HTTPPageSource{
		schema:    schema,
		client:    client,
		userAgent: o.userAgent,
		logger:    o.logger.Named("page_source"),
	}
}

// Fetch sends one GET and classifies the response.
func (s *HTTPPageSource) Fetch(ctx context.Context, q SearchQuery, offset int) PageResult {
	target := s.schema.SearchURL(q, offset)

	ctx, cancel := context.WithTimeout(ctx, SearchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return PageResult{Status: PageTransientFailure, Err: errors.Wrapf(err, "new request to `%s`", target)}
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/rss+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	s.logger.Debug("outgoing http request",
		zap.String("method", req.Method),
		zap.String("url", target),
		zap.Int("offset", offset),
	)

	startAt := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return PageResult{Status: PageTransientFailure, Err: errors.Wrap(err, "send request")}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return PageResult{
			Status:     PageTransientFailure,
			StatusCode: resp.StatusCode,
			Err:        errors.Wrap(err, "read response body"),
		}
	}

	truncatedBody, truncated := truncateForLog(body, logBodyLimit)
	s.logger.Debug("incoming http response",
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.String("body", truncatedBody),
		zap.Bool("body_truncated", truncated),
		zap.Duration("cost", time.Since(startAt)),
	)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return PageResult{Status: PageRateLimited, StatusCode: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return PageResult{
			Status:     PageTransientFailure,
			StatusCode: resp.StatusCode,
			Err:        errors.Errorf("GET %s: status %s", target, resp.Status),
		}
	}

	page := &Page{
		Query:       q,
		Offset:      offset,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return PageResult{Status: PageExhaustedHint, StatusCode: resp.StatusCode, Page: page}
	}
	return PageResult{Status: PageSuccess, StatusCode: resp.StatusCode, Page: page}
}
