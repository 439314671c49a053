// =============================================================================
// utils.go - ユーティリティ関数
// =============================================================================
//
// このファイルはパッケージ全体で使用する汎用的なヘルパー関数を提供します。
//
// 【このファイルで提供する機能】
//   - 文字列操作: 重複削除、空白正規化、切り詰め
//   - HTML操作: タグ除去、表示テキスト抽出
//   - URL操作: 相対URL解決、リダイレクト解除、クエリ・フラグメント除去
//   - 待機: コンテキスト対応のスリープ
//
// =============================================================================
package pipeline

import (
	"context"
	"html"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	xhtml "golang.org/x/net/html"
)

var (
	reScriptTags = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	reHTMLTags   = regexp.MustCompile(`<[^>]*>`)
)

// -----------------------------------------------------------------------------
// 文字列操作関数
// -----------------------------------------------------------------------------

// normalizeWhitespace は文字列内の連続する空白を単一スペースに正規化する
//
//	normalizeWhitespace("  hello   world  ")  // "hello world"
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// uniqStrings は文字列スライスから重複と空文字列を除去する（順序は保持）
func uniqStrings(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// truncateString は文字列を maxLen 文字（rune単位）に切り詰める
//
//	truncateString("Hello World", 8)  // "Hello..."
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

const logBodyLimit = 512

func truncateForLog(body []byte, limit int) (string, bool) {
	if len(body) <= limit {
		return string(body), false
	}
	return string(body[:limit]), true
}

// -----------------------------------------------------------------------------
// HTML操作関数
// -----------------------------------------------------------------------------

// cleanHTMLTags はHTMLタグを除去し、エンティティをデコードする
//
// RSSのdescriptionのようにHTML断片が入っているフィールドに使う。
func cleanHTMLTags(htmlStr string) string {
	text := reScriptTags.ReplaceAllString(htmlStr, "")
	text = reHTMLTags.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	return normalizeWhitespace(text)
}

// visibleText は表示されるテキストノードをスペース区切りで連結する
//
// script / style / noscript の中身は含めない。
// goquery の Text() はノード間に区切りを入れないため、
// "Published:" と日付が別要素の場合に連結されてしまうのを避ける。
func visibleText(doc *goquery.Document) string {
	if doc == nil {
		return ""
	}

	var parts []string
	var walk func(n *xhtml.Node)
	walk = func(n *xhtml.Node) {
		switch n.Type {
		case xhtml.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		case xhtml.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return normalizeWhitespace(strings.Join(parts, " "))
}

// -----------------------------------------------------------------------------
// URL操作関数
// -----------------------------------------------------------------------------

// resolveURL は相対URLを絶対URLに変換する（失敗時は空文字列）
func resolveURL(baseURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

// unwrapRedirect は検索エンジンのリダイレクトURL（/url?q=...）から
// 遷移先URLを取り出す。該当しない場合はそのまま返す。
func unwrapRedirect(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path != "/url" {
		return raw
	}
	for _, key := range []string{"q", "url"} {
		if target := u.Query().Get(key); strings.HasPrefix(target, "http") {
			return target
		}
	}
	return raw
}

// cleanURL はリダイレクトを解除し、クエリ文字列とフラグメントを除去する
//
//	cleanURL("https://www.google.com/url?q=https://a.com/x?utm=1") // "https://a.com/x"
//	cleanURL("https://a.com/x?id=2#top")                           // "https://a.com/x"
func cleanURL(raw string) string {
	raw = unwrapRedirect(strings.TrimSpace(raw))
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	return raw
}

// -----------------------------------------------------------------------------
// 待機
// -----------------------------------------------------------------------------

// Sleeper はコンテキスト対応の待機関数（テストでは記録用の偽物に差し替える）
type Sleeper func(ctx context.Context, d time.Duration) error

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
