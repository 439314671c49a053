// =============================================================================
// timeparse.go - 日時文字列パーサー
// =============================================================================
//
// ニュースサイトごとにバラバラな日時表記を time.Time に変換する関数群です。
// タイムスタンプ解決チェーン（timestamp.go）の全ステップから使用されます。
//
// 【対応形式】
//   - ISO-8601（Z / +05:30 / 小数秒 / 日付のみ）
//   - "Sunday, April 3, 2016, 19:10"
//   - "September 3, 2016 7:11 PM"
//   - "12 October 2017, 19:10" / "12 Oct 2017 19:10"
//   - "2017-10-12 11:25:00"
//
// 【制限事項】
//   タイムゾーン名（IST/GMT/UTC）は除去してから解析し、数値オフセットも保持しない。
//   結果の「壁時計」フィールド（年月日時分秒）のみが意味を持つ。
//
// =============================================================================
package pipeline

import (
	"regexp"
	"strings"
	"time"
)

var (
	reTZWords   = regexp.MustCompile(`(?i)\b(IST|GMT|UTC)\b`)
	reMeridiem  = regexp.MustCompile(`(?i)\b(am|pm)\b`)
	reISOInText = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+\-]\d{2}:\d{2})`)
)

// isoLayouts はISO-8601系のレイアウト（上から順に試行）
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// articleLayouts は記事ページで見かける人間向け表記のレイアウト
//
// 曜日・月名の大文字小文字は time.Parse 側で無視される。
// AM/PM は parseArticleLayouts の前に大文字へ正規化する。
var articleLayouts = []string{
	"Monday, January 2, 2006, 15:04",
	"Monday, January 2, 2006, 3:04 PM",
	"January 2, 2006 3:04 PM",
	"January 2, 2006, 3:04 PM",
	"January 2, 2006, 15:04",
	"2 January 2006, 15:04",
	"2 January 2006 15:04",
	"2 Jan 2006, 15:04",
	"2 Jan 2006 15:04",
	"Jan 2, 2006 3:04 PM",
	"2006-01-02 15:04:05",
}

// labelDateLayouts は検索結果の日付のみラベル（時刻なし）
var labelDateLayouts = []string{
	"2 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 January 2006",
}

// feedDateLayouts はRSSのpubDateで使われるレイアウト
var feedDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
}

// stripTZWords removes IST/GMT/UTC tokens and squeezes whitespace.
func stripTZWords(s string) string {
	return normalizeWhitespace(reTZWords.ReplaceAllString(s, ""))
}

// naive drops the zone of t while keeping its wall clock.
func naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// parseISO8601 parses ISO-8601 text with an optional Z or numeric offset.
func parseISO8601(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return naive(t), true
		}
	}
	return time.Time{}, false
}

// parseLayouts tries every layout in order and returns the first success.
func parseLayouts(s string, layouts []string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return naive(t), true
		}
	}
	return time.Time{}, false
}

// parseArticleLayouts parses the human readable forms after removing zone
// words and upper-casing am/pm.
func parseArticleLayouts(s string) (time.Time, bool) {
	s = stripTZWords(s)
	s = strings.TrimRight(s, " ,")
	s = reMeridiem.ReplaceAllStringFunc(s, strings.ToUpper)
	return parseLayouts(s, articleLayouts)
}

// parseTimestamp は任意の日時文字列を解析する
//
// ISO-8601 を先に試し、失敗したら記事用レイアウトを試す。
// どちらも失敗した場合は (ゼロ値, false) を返し、パニックしない。
func parseTimestamp(s string) (time.Time, bool) {
	if t, ok := parseISO8601(s); ok {
		return t, true
	}
	return parseArticleLayouts(s)
}
