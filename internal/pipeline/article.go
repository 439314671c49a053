// =============================================================================
// article.go - 記事ページの取得
// =============================================================================
//
// タイムスタンプ解決（strategy 1〜4）のために記事本体を取得します。
//
// 【対応形式】
//   - HTML: Content-Type の charset を見てUTF-8に変換し、goqueryでパース
//   - PDF:  ledongthuc/pdf でテキストと情報辞書（CreationDate/ModDate）を取得
//
// 取得に失敗しても解決チェーンは止まらない（検索ラベル・フォールバックへ進む）。
//
// =============================================================================
package pipeline

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html/charset"
)

// ArticleTimeout は記事ページ1回あたりのタイムアウト
const ArticleTimeout = 12 * time.Second

const (
	maxArticleBytes = 16 << 20
	maxPDFTextPages = 3
)

// ArticleDoc は取得済みの記事
//
//	HTML:     HTML記事のDOM（PDFの場合はnil）
//	Text:     表示テキスト（HTML）または抽出テキスト（PDF）
//	PDFDates: PDF情報辞書の CreationDate, ModDate（生の文字列）
type ArticleDoc struct {
	URL      string
	HTML     *goquery.Document
	Text     string
	PDFDates []string
}

// ArticleFetcher retrieves the article behind a candidate link.
type ArticleFetcher interface {
	Fetch(ctx context.Context, link string) (*ArticleDoc, error)
}

// HTTPArticleFetcher は http.Client を使う ArticleFetcher
type HTTPArticleFetcher struct {
	client    *http.Client
	userAgent string
	logger    logSDK.Logger
}

// NewHTTPArticleFetcher builds the default article fetcher.
func NewHTTPArticleFetcher(opts ...Option) *HTTPArticleFetcher {
	o := newOptions(opts)
	client := o.client
	if client == nil {
		client = &http.Client{Timeout: ArticleTimeout}
	}
	return &HTTPArticleFetcher{
		client:    client,
		userAgent: o.userAgent,
		logger:    o.logger.Named("article_fetcher"),
	}
}

// Fetch downloads link and parses it as HTML or PDF.
func (f *HTTPArticleFetcher) Fetch(ctx context.Context, link string) (*ArticleDoc, error) {
	ctx, cancel := context.WithTimeout(ctx, ArticleTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "new request to `%s`", link)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf;q=0.9,*/*;q=0.8")

	f.logger.Debug("outgoing http request", zap.String("method", req.Method), zap.String("url", link))
	startAt := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	f.logger.Debug("incoming http response",
		zap.String("url", link),
		zap.Int("status", resp.StatusCode),
		zap.String("content_type", resp.Header.Get("Content-Type")),
		zap.Duration("cost", time.Since(startAt)),
	)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("GET %s: status %s", link, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	body := io.LimitReader(resp.Body, maxArticleBytes)
	if isPDF(link, contentType) {
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, errors.Wrap(err, "read pdf")
		}
		return parsePDFArticle(link, data)
	}
	return parseHTMLArticle(link, body, contentType)
}

func isPDF(link, contentType string) bool {
	if strings.Contains(strings.ToLower(contentType), "application/pdf") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(link), ".pdf")
}

// parseHTMLArticle decodes r according to contentType and parses it.
func parseHTMLArticle(link string, r io.Reader, contentType string) (*ArticleDoc, error) {
	utf8Reader, err := charset.NewReader(r, contentType)
	if err != nil {
		return nil, errors.Wrap(err, "detect charset")
	}
	doc, err := goquery.NewDocumentFromReader(utf8Reader)
	if err != nil {
		return nil, errors.Wrap(err, "parse html")
	}
	return &ArticleDoc{
		URL:  link,
		HTML: doc,
		Text: visibleText(doc),
	}, nil
}

// parsePDFArticle extracts the info dictionary dates and the text of the
// first pages. The pdf reader panics on some malformed files.
func parsePDFArticle(link string, data []byte) (doc *ArticleDoc, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, errors.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Wrap(err, "parse pdf")
	}

	doc = &ArticleDoc{URL: link}
	info := reader.Trailer().Key("Info")
	for _, key := range []string{"CreationDate", "ModDate"} {
		if v := strings.TrimSpace(info.Key(key).Text()); v != "" {
			doc.PDFDates = append(doc.PDFDates, v)
		}
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage() && i <= maxPDFTextPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	doc.Text = normalizeWhitespace(sb.String())
	return doc, nil
}
