// =============================================================================
// relevance.go - 関連性フィルタ
// =============================================================================
//
// 【判定】
//   - トピック一致: タイトルに企業の語彙が単語単位で含まれる（大文字小文字無視）
//                   単語境界は \b ではなく Unicode の文字/数字クラスで判定する（Nestlé など）
//   - 金融一致:     タイトル+スニペットに金融語彙が部分一致で含まれる
//
// 【モード】
//   - general:   トピック一致のみ
//   - financial: トピック一致 かつ 金融一致（金融語だけでは通さない）
//
// =============================================================================
package pipeline

import (
	"regexp"
	"strings"
)

// FinanceKeywords は金融語彙（部分一致・小文字で比較）
var FinanceKeywords = []string{
	"stock", "share", "market", "nse", "bse", "sensex", "nifty", "ipo",
	"quarter", "q1", "q2", "q3", "q4", "profit", "loss", "earnings",
	"dividend", "revenue", "forecast", "sebi", "investor", "fund", "equity",
	"valuation", "bond", "debt", "merger", "acquisition", "guidance", "eps",
	"rerating", "brokerage", "fpo", "rights issue", "buyback", "pledge",
	"promoter", "debenture", "buy", "sell", "hold", "target price",
}

// RelevanceFilter decides whether a candidate is worth resolving.
type RelevanceFilter struct {
	mode     RelevanceMode
	topical  []*regexp.Regexp
	keywords []string
}

// NewRelevanceFilter compiles the topical vocabulary of profile plus extra.
func NewRelevanceFilter(profile SubjectProfile, extra []string, mode RelevanceMode) *RelevanceFilter {
	terms := profile.Terms()
	for _, kw := range extra {
		terms = append(terms, strings.TrimSpace(kw))
	}
	terms = uniqStrings(terms)

	f := &RelevanceFilter{mode: mode, keywords: FinanceKeywords}
	for _, t := range terms {
		f.topical = append(f.topical, regexp.MustCompile(
			`(?i)(?:^|[^\p{L}\p{N}_])`+regexp.QuoteMeta(t)+`(?:$|[^\p{L}\p{N}_])`))
	}
	return f
}

// Topical reports whether title mentions the subject as a whole word.
func (f *RelevanceFilter) Topical(title string) bool {
	for _, re := range f.topical {
		if re.MatchString(title) {
			return true
		}
	}
	return false
}

// Financial reports whether title or snippet uses finance vocabulary.
func (f *RelevanceFilter) Financial(title, snippet string) bool {
	text := strings.ToLower(title + " " + snippet)
	for _, kw := range f.keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Keep applies the mode gate.
func (f *RelevanceFilter) Keep(c Candidate) bool {
	if !f.Topical(c.Title) {
		return false
	}
	if f.mode == ModeFinancial {
		return f.Financial(c.Title, c.Snippet)
	}
	return true
}
