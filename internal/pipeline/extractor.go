// =============================================================================
// extractor.go - 検索結果ページ → 記事候補
// =============================================================================
//
// 抽出スキーマに従って Page から Candidate を取り出します。
//
// 【ルール】
//   - タイトルまたはリンクが無いブロックは黙って捨てる
//   - スニペットが無い場合は NoSummary を入れる
//   - リンクはリダイレクト解除・クエリ/フラグメント除去済み
//   - ブロック数0は「結果の終わり」の合図（取得失敗とは区別する）
//
// =============================================================================
package pipeline

import (
	"bytes"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// ResultExtractor parses a result page.
//
// blocks is the number of result blocks found, including the ones dropped
// for missing fields; zero means the result list has ended.
type ResultExtractor interface {
	Extract(page *Page) (candidates []Candidate, blocks int, err error)
}

// NewExtractor returns the extractor for the schema's format.
func NewExtractor(schema *ExtractionSchema) (ResultExtractor, error) {
	switch schema.Format {
	case FormatHTML:
		return &htmlExtractor{schema: schema}, nil
	case FormatRSS:
		return &rssExtractor{schema: schema}, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedSchemaFormat, "%q", schema.Format)
	}
}

// -----------------------------------------------------------------------------
// HTML（goquery）
// -----------------------------------------------------------------------------

type htmlExtractor struct {
	schema *ExtractionSchema
}

func (e *htmlExtractor) Extract(page *Page) ([]Candidate, int, error) {
	if page == nil {
		return nil, 0, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, 0, errors.Wrap(err, "parse result page")
	}

	sel := e.schema.Selectors
	blocks := doc.Find(sel.Block)

	var out []Candidate
	blocks.Each(func(_ int, b *goquery.Selection) {
		title := normalizeWhitespace(b.Find(sel.Title).First().Text())
		href, _ := b.Find(sel.Link).First().Attr("href")
		link := cleanURL(resolveURL(e.schema.BaseURL, href))
		if title == "" || link == "" {
			return
		}

		snippet := ""
		if sel.Snippet != "" {
			snippet = normalizeWhitespace(b.Find(sel.Snippet).First().Text())
		}
		if snippet == "" {
			snippet = NoSummary
		}

		var label string
		for _, ts := range sel.TimeLabel {
			if label = normalizeWhitespace(b.Find(ts).First().Text()); label != "" {
				break
			}
		}

		out = append(out, Candidate{
			Title:     title,
			Snippet:   snippet,
			Link:      link,
			TimeLabel: label,
		})
	})

	return out, blocks.Length(), nil
}

// -----------------------------------------------------------------------------
// RSS（gofeed）
// -----------------------------------------------------------------------------

type rssExtractor struct {
	schema *ExtractionSchema
}

func (e *rssExtractor) Extract(page *Page) ([]Candidate, int, error) {
	if page == nil {
		return nil, 0, nil
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(page.Body))
	if err != nil {
		return nil, 0, errors.Wrap(err, "parse result feed")
	}

	var out []Candidate
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		title := normalizeWhitespace(item.Title)
		link := cleanURL(resolveURL(e.schema.BaseURL, item.Link))
		if title == "" || link == "" {
			continue
		}

		snippet := cleanHTMLTags(item.Description)
		if snippet == "" {
			snippet = NoSummary
		}

		out = append(out, Candidate{
			Title:     title,
			Snippet:   snippet,
			Link:      link,
			TimeLabel: strings.TrimSpace(item.Published),
		})
	}
	return out, len(feed.Items), nil
}
