// =============================================================================
// main.go - newsharvest のエントリーポイント
// =============================================================================
//
// 企業名と期間を指定して、Googleニュース検索の結果を1日ずつ収集するCLIです。
//
// 【処理フロー】
//
//	┌─────────────┐    ┌─────────────┐    ┌─────────────┐
//	│  1. 設定    │ -> │  2. 収集    │ -> │  3. 時刻解決│
//	│  読み込み   │    │  ページ送り │    │  記事取得   │
//	└─────────────┘    └─────────────┘    └─────────────┘
//	       │                  │                  │
//	       v                  v                  v
//	.env / YAML / フラグ  429・リトライ制御   JSON-LD / meta / 本文
//
//	┌─────────────┐    ┌─────────────┐
//	│  4. 絞込    │ -> │  5. 出力    │
//	│  重複排除   │    │  CSV/SQLite │
//	└─────────────┘    │  Notion     │
//	                   └─────────────┘
//
// 【使用例】
//
//	newsharvest run -s Reliance --start 12-10-2017 --end 14-10-2017
//	newsharvest run -s Reliance --start 2017-10-12 --mode general --dry-run
//	newsharvest run -c harvest.yml --start 12-10-2017 --sqlite news.db --notify
//	newsharvest schema google-news-html
//
// =============================================================================
package main

func main() {
	Execute()
}
