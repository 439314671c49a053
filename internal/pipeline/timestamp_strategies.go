// =============================================================================
// timestamp_strategies.go - 公開時刻の抽出手段
// =============================================================================
//
// 記事の公開時刻を取り出す個別の手段です。どれも純粋関数で、
// 見つからない・解析できない場合は (time.Time{}, false) を返します。
// 順番に試すのは timestamp.go の TimestampResolver の役目です。
//
// 【手段一覧（優先順）】
//  1. FromStructuredData  JSON-LD（NewsArticle など）
//  2. FromMetaTags        <meta property|name|itemprop>
//     FromPDFInfo         PDF情報辞書の CreationDate / ModDate
//  3. FromTimeMarkup      <time datetime> / <time>テキスト
//  4. FromVisibleText     本文中の "Published: ..." など
//  5. FromSearchLabel     検索結果の "3 hours ago" / "12 Oct 2017"
//  6. FallbackTimestamp   対象日 + 現在時刻
//
// =============================================================================
package pipeline

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// =============================================================================
// 1. 構造化データ（JSON-LD）
// =============================================================================

var articleSchemaTypes = map[string]bool{
	"NewsArticle":          true,
	"Article":              true,
	"ReportageNewsArticle": true,
	"BlogPosting":          true,
}

var structuredDateKeys = []string{"datePublished", "dateCreated", "uploadDate", "dateModified"}

var (
	reTrailingCommaObject = regexp.MustCompile(`,\s*}`)
	reTrailingCommaArray  = regexp.MustCompile(`,\s*]`)
)

// FromStructuredData reads the first article date from JSON-LD blocks.
func FromStructuredData(doc *goquery.Document) (time.Time, bool) {
	if doc == nil {
		return time.Time{}, false
	}

	var (
		found time.Time
		ok    bool
	)
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return true
		}
		data, parsed := decodeJSONLD(raw)
		if !parsed {
			return true
		}
		found, ok = dateFromJSONLD(data)
		return !ok
	})
	return found, ok
}

// decodeJSONLD parses raw, retrying once with trailing commas removed.
func decodeJSONLD(raw string) (any, bool) {
	var data any
	if err := json.Unmarshal([]byte(raw), &data); err == nil {
		return data, true
	}

	repaired := reTrailingCommaObject.ReplaceAllString(raw, "}")
	repaired = reTrailingCommaArray.ReplaceAllString(repaired, "]")
	if err := json.Unmarshal([]byte(repaired), &data); err == nil {
		return data, true
	}
	return nil, false
}

// dateFromJSONLD walks top-level arrays and @graph containers.
func dateFromJSONLD(node any) (time.Time, bool) {
	switch v := node.(type) {
	case []any:
		for _, item := range v {
			if t, ok := dateFromJSONLD(item); ok {
				return t, true
			}
		}
	case map[string]any:
		if isArticleType(v["@type"]) {
			for _, key := range structuredDateKeys {
				s, _ := v[key].(string)
				if s == "" {
					continue
				}
				if t, ok := parseTimestamp(s); ok {
					return t, true
				}
			}
		}
		if graph, ok := v["@graph"]; ok {
			return dateFromJSONLD(graph)
		}
	}
	return time.Time{}, false
}

func isArticleType(t any) bool {
	switch v := t.(type) {
	case string:
		return articleSchemaTypes[v]
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && articleSchemaTypes[s] {
				return true
			}
		}
	}
	return false
}

// =============================================================================
// 2. メタタグ
// =============================================================================

var (
	metaPropertyKeys = []string{
		"article:published_time",
		"article:modified_time",
		"og:updated_time",
		"og:pubdate",
	}
	metaNameKeys = []string{
		"pubdate", "publish-date", "publishdate", "date",
		"dc.date", "dc.date.issued",
		"article:published_time", "article:modified_time",
		"parsely-pub-date",
	}
	metaItempropKeys = []string{"datePublished", "dateModified"}
)

// FromMetaTags checks property, then name, then itemprop meta tags.
func FromMetaTags(doc *goquery.Document) (time.Time, bool) {
	if doc == nil {
		return time.Time{}, false
	}

	groups := []struct {
		attr string
		keys []string
	}{
		{"property", metaPropertyKeys},
		{"name", metaNameKeys},
		{"itemprop", metaItempropKeys},
	}
	for _, g := range groups {
		for _, key := range g.keys {
			content, _ := doc.Find(`meta[` + g.attr + `="` + key + `"]`).First().Attr("content")
			if strings.TrimSpace(content) == "" {
				continue
			}
			if t, ok := parseTimestamp(content); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// =============================================================================
// 2b. PDF情報辞書
// =============================================================================

var rePDFDate = regexp.MustCompile(`^(?:D:)?(\d{4})(\d{2})?(\d{2})?(\d{2})?(\d{2})?(\d{2})?`)

// FromPDFInfo parses "D:YYYYMMDDHHmmSS..." dates, CreationDate first.
func FromPDFInfo(dates []string) (time.Time, bool) {
	for _, raw := range dates {
		m := rePDFDate.FindStringSubmatch(strings.TrimSpace(raw))
		if m == nil || m[2] == "" || m[3] == "" {
			continue
		}

		n := make([]int, 6)
		for i := 1; i <= 6; i++ {
			if m[i] != "" {
				n[i-1], _ = strconv.Atoi(m[i])
			}
		}
		if n[1] < 1 || n[1] > 12 || n[2] < 1 || n[2] > 31 {
			continue
		}
		return time.Date(n[0], time.Month(n[1]), n[2], n[3], n[4], n[5], 0, time.UTC), true
	}
	return time.Time{}, false
}

// =============================================================================
// 3. <time> 要素
// =============================================================================

// FromTimeMarkup tries every <time> element, datetime attribute first.
func FromTimeMarkup(doc *goquery.Document) (time.Time, bool) {
	if doc == nil {
		return time.Time{}, false
	}

	var (
		found time.Time
		ok    bool
	)
	doc.Find("time").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if dt, has := s.Attr("datetime"); has && strings.TrimSpace(dt) != "" {
			if found, ok = parseTimestamp(dt); ok {
				return false
			}
		}
		if text := normalizeWhitespace(s.Text()); text != "" {
			found, ok = parseArticleLayouts(text)
		}
		return !ok
	})
	return found, ok
}

// =============================================================================
// 4. 本文テキスト
// =============================================================================

var visiblePatterns = []*regexp.Regexp{
	// "Published: Sunday, April 3, 2016, 19:10 IST"
	regexp.MustCompile(`(?i)(?:Published|Updated)\s*:\s*[A-Za-z]+,\s+[A-Za-z]+\s+\d{1,2},\s+\d{4},\s+\d{1,2}:\d{2}\s*(?:am|pm)?\s*(?:ist|gmt|utc)?`),
	// "Updated: September 3, 2016 7:11 PM IST"
	regexp.MustCompile(`(?i)(?:Published|Updated)\s*:\s*[A-Za-z]+\s+\d{1,2},\s+\d{4}\s+\d{1,2}:\d{2}\s*(?:am|pm)\s*(?:ist|gmt|utc)?`),
	// "October 12, 2017 11:25 AM IST"
	regexp.MustCompile(`(?i)[A-Za-z]+\s+\d{1,2},\s+\d{4}\s+\d{1,2}:\d{2}\s*(?:am|pm)\s*(?:ist|gmt|utc)?`),
	// "12 October 2017, 19:10 IST"
	regexp.MustCompile(`(?i)\d{1,2}\s+[A-Za-z]+\s+\d{4},\s+\d{1,2}:\d{2}\s*(?:am|pm)?\s*(?:ist|gmt|utc)?`),
	reISOInText,
}

var reDateLinePrefix = regexp.MustCompile(`(?i)^(?:Published|Updated)\s*:\s*`)

// maxVisibleMatches bounds the work per pattern on very long pages.
const maxVisibleMatches = 20

// FromVisibleText scans page text with the ordered patterns.
func FromVisibleText(text string) (time.Time, bool) {
	if strings.TrimSpace(text) == "" {
		return time.Time{}, false
	}

	for _, re := range visiblePatterns {
		for _, m := range re.FindAllString(text, maxVisibleMatches) {
			s := reDateLinePrefix.ReplaceAllString(stripTZWords(m), "")
			if iso := reISOInText.FindString(s); iso != "" {
				if t, ok := parseISO8601(iso); ok {
					return t, true
				}
			}
			if t, ok := parseArticleLayouts(s); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// =============================================================================
// 5. 検索結果ラベル
// =============================================================================

var (
	reLabelNumber = regexp.MustCompile(`\d+`)
	reLabelOne    = regexp.MustCompile(`(?i)^an?\s`)
)

// FromSearchLabel interprets relative labels against now. Absolute
// date-only labels resolve to midnight.
//
//	"3 hours ago"   → now - 3h
//	"2 days ago"    → now - 48h
//	"yesterday"     → now - 24h
//	"12 Oct 2017"   → 2017-10-12 00:00
func FromSearchLabel(label string, now time.Time) (time.Time, bool) {
	label = normalizeWhitespace(label)
	if label == "" {
		return time.Time{}, false
	}

	if t, ok := relativeLabel(strings.ToLower(label), now); ok {
		return t, true
	}
	if t, ok := parseLayouts(label, labelDateLayouts); ok {
		return t, true
	}
	if t, ok := parseLayouts(label, feedDateLayouts); ok {
		return t, true
	}
	return parseISO8601(label)
}

func relativeLabel(txt string, now time.Time) (time.Time, bool) {
	n, hasNumber := labelCount(txt)
	switch {
	case strings.Contains(txt, "yesterday"):
		return now.AddDate(0, 0, -1), true
	case !hasNumber:
		return time.Time{}, false
	case strings.Contains(txt, "sec"):
		return now.Add(-time.Duration(n) * time.Second), true
	case strings.Contains(txt, "min"):
		return now.Add(-time.Duration(n) * time.Minute), true
	case strings.Contains(txt, "hour"):
		return now.Add(-time.Duration(n) * time.Hour), true
	case strings.Contains(txt, "day") && strings.Contains(txt, "ago"):
		return now.AddDate(0, 0, -n), true
	case strings.Contains(txt, "week"):
		return now.AddDate(0, 0, -7*n), true
	}
	return time.Time{}, false
}

// labelCount reads the leading count of a relative label; "an hour ago"
// counts as one.
func labelCount(txt string) (int, bool) {
	if !strings.Contains(txt, "ago") {
		return 0, false
	}
	if m := reLabelNumber.FindString(txt); m != "" {
		n, err := strconv.Atoi(m)
		return n, err == nil
	}
	if reLabelOne.MatchString(txt) {
		return 1, true
	}
	return 0, false
}

// =============================================================================
// 6. フォールバック
// =============================================================================

// FallbackTimestamp combines day's calendar date with now's time of day.
func FallbackTimestamp(day, now time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(),
		now.Hour(), now.Minute(), now.Second(), now.Nanosecond(), now.Location())
}
