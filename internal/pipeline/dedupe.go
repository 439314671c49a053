// =============================================================================
// dedupe.go - 同日内の重複排除
// =============================================================================
//
// 同じタイトルの記事は1件にまとめる。
//
// 【ルール】
//   - 完全一致のタイトルで判定（正規化はしない）
//   - 後から解決された記事で上書き、位置は最初に現れた場所のまま
//
// =============================================================================
package pipeline

import "time"

// Dedupe collapses articles with the exact same title.
//
// The last article for a title wins, placed where the title first appeared.
func Dedupe(day time.Time, articles []ResolvedArticle) DailyBatch {
	index := make(map[string]int, len(articles))
	out := make([]ResolvedArticle, 0, len(articles))
	for _, a := range articles {
		if i, ok := index[a.Title]; ok {
			out[i] = a
			continue
		}
		index[a.Title] = len(out)
		out = append(out, a)
	}
	return DailyBatch{Day: truncateDay(day), Articles: out}
}
