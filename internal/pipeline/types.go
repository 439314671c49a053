// =============================================================================
// types.go - データ構造定義
// =============================================================================
//
// このファイルはnewsharvestパイプライン全体で使用するデータ構造を定義します。
//
// 【このファイルで定義している型】
//   - SearchQuery:     1日分の検索条件（不変）
//   - Page:            1ページ分の検索結果（生データ）
//   - Candidate:       検索結果から抽出した記事候補（時刻未解決）
//   - ResolvedArticle: 公開時刻が確定した記事
//   - DailyBatch:      1日分の出力レコード集合（タイトルで重複排除済み）
//   - Record:          永続化用の出力形式
//
// =============================================================================
package pipeline

import (
	"time"
)

// NoSummary はスニペットが取得できなかった候補に入るセンチネル値
const NoSummary = "No summary"

// RecordTimeLayout は出力レコードのtimestamp形式（DD-MM-YYYY HH:MM:SS）
const RecordTimeLayout = "02-01-2006 15:04:05"

// RelevanceMode は出力ゲートの種類
type RelevanceMode string

const (
	// ModeGeneral はトピック一致のみを要求する
	ModeGeneral RelevanceMode = "general"
	// ModeFinancial はトピック一致かつ金融語彙一致を要求する
	ModeFinancial RelevanceMode = "financial"
)

// Valid reports whether m is a known mode.
func (m RelevanceMode) Valid() bool {
	return m == ModeGeneral || m == ModeFinancial
}

// -----------------------------------------------------------------------------
// SearchQuery - 1日分の検索条件
// -----------------------------------------------------------------------------
//
// Orchestratorが日ごとに1つ生成し、その日の処理中は変更しない。
//
//	Subject:       企業名（例: "Reliance"）
//	Phrase:        検索エンジンに渡す検索語（テンプレート展開済み）
//	Day:           対象日（時刻成分は無視される）
//	ExtraKeywords: 呼び出し元が追加したトピックキーワード
//	Mode:          general / financial
type SearchQuery struct {
	Subject       string
	Phrase        string
	Day           time.Time
	ExtraKeywords []string
	Mode          RelevanceMode
}

// Page は1回の取得で得た検索結果ページ
type Page struct {
	Query       SearchQuery
	Offset      int
	StatusCode  int
	ContentType string
	Body        []byte
}

// -----------------------------------------------------------------------------
// Candidate - 記事候補
// -----------------------------------------------------------------------------
//
// ResultExtractorが生成し、タイムスタンプ解決とフィルタリングで一度だけ消費される。
//
//	Title:     記事タイトル（必須）
//	Snippet:   要約（無い場合は NoSummary）
//	Link:      正規化済みURL（クエリ・フラグメント除去済み）
//	TimeLabel: 検索エンジンが表示した相対/絶対時刻ラベル（例: "3 hours ago"）
type Candidate struct {
	Title     string `json:"title"`
	Snippet   string `json:"snippet"`
	Link      string `json:"link"`
	TimeLabel string `json:"timeLabel,omitempty"`
}

// ResolvedArticle は公開時刻が確定した記事
//
// Timestampは常にゼロ値ではない（解決チェーンは必ず値を返す）。
// Strategyはどの手段で時刻を得たかを示す（ログ・診断用）。
type ResolvedArticle struct {
	Timestamp time.Time `json:"-"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	URL       string    `json:"url"`
	Strategy  string    `json:"-"`
}

// Record converts the article into its persisted shape.
func (a ResolvedArticle) Record() Record {
	return Record{
		Timestamp: a.Timestamp.Format(RecordTimeLayout),
		Title:     a.Title,
		Summary:   a.Summary,
		URL:       a.URL,
	}
}

// Record は永続化先に書き出す1行分のデータ
type Record struct {
	Timestamp string `json:"timestamp"`
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	URL       string `json:"url"`
}

// RecordHeader はCSV出力のヘッダー行
var RecordHeader = []string{"timestamp", "title", "summary", "url"}

// Fields returns the record as a CSV row in RecordHeader order.
func (r Record) Fields() []string {
	return []string{r.Timestamp, r.Title, r.Summary, r.URL}
}

// -----------------------------------------------------------------------------
// DailyBatch - 1日分の出力
// -----------------------------------------------------------------------------
//
// 【不変条件】
//   - 同一タイトル（大文字小文字を区別）は1件のみ
//   - 同一タイトルが複数ある場合は後から解決したものが残る
//   - 並び順は各タイトルが最初に現れた順
type DailyBatch struct {
	Day      time.Time
	Articles []ResolvedArticle
}

// Len returns the number of articles in the batch.
func (b DailyBatch) Len() int {
	return len(b.Articles)
}

// Records converts every article of the batch.
func (b DailyBatch) Records() []Record {
	out := make([]Record, 0, len(b.Articles))
	for _, a := range b.Articles {
		out = append(out, a.Record())
	}
	return out
}
