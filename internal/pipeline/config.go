// =============================================================================
// config.go - パイプライン設定
// =============================================================================
//
// このファイルはYAML設定ファイルの読み込みと検証を行います。
// CLIフラグは cmd/pipeline 側でこの構造体に上書きされます。
//
// 【設定グループ】
//   - SubjectProfile: 対象企業の語彙（正式名・ティッカー・ブランド・人物）
//   - ThrottlePolicy: バックオフ・429待機・ページ間待機・クールダウン
//   - TranslateConfig: 翻訳エンドポイント
//   - OutputConfig:   出力先（CSV / SQLite / Notion）
//
// 【設定例】
//
//	subject:
//	  name: Reliance
//	  canonical: Reliance Industries
//	  aliases: [RIL]
//	mode: financial
//	throttle:
//	  backoff:
//	    max_consecutive_failures: 3
//	    initial_delay: 2s
//
// =============================================================================
package pipeline

import (
	"os"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"gopkg.in/yaml.v3"
)

// 設定検証エラー
var (
	ErrMissingSubject       = errors.New("subject.name is required")
	ErrInvalidMode          = errors.New("mode must be 'general' or 'financial'")
	ErrInvalidFailureBudget = errors.New("throttle.backoff.max_consecutive_failures must be at least 1")
	ErrInvalidBackoff       = errors.New("throttle.backoff.multiplier must be >= 1.0 and initial_delay non-negative")
	ErrInvalidRateLimit     = errors.New("throttle.rate_limit.max_retries must be at least 1")
	ErrInvalidDelayRange    = errors.New("delay range min must be non-negative and not exceed max")
	ErrInvalidCooldown      = errors.New("throttle.cooldown.every_pages must be non-negative")
	ErrInvalidConcurrency   = errors.New("concurrency must be at least 1")
	ErrInvalidPageLimit     = errors.New("max_pages_per_day must be non-negative")
	ErrInvalidDate          = errors.New("date must be DD-MM-YYYY or YYYY-MM-DD")
	ErrInvalidDateRange     = errors.New("start date is after end date")
)

// 検索クエリのテンプレート（{subject} が企業名に置換される）
const (
	FinancialQueryTemplate = "{subject} finance OR stock OR business OR market news"
	GeneralQueryTemplate   = "{subject} news"
)

// DefaultUserAgents はデスクトップブラウザのUser-Agent一覧（実行ごとに1つ選択）
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) Gecko/20100101 Firefox/118.0",
}

// DefaultCSVPath は出力先が指定されなかった場合のCSVファイル
const DefaultCSVPath = "news_results.csv"

// inputDateLayouts は入力日付として受け付ける形式
var inputDateLayouts = []string{"02-01-2006", "2006-01-02"}

// =============================================================================
// 設定構造体
// =============================================================================

// PipelineConfig はパイプラインの全設定を保持する
type PipelineConfig struct {
	Subject        SubjectProfile  `yaml:"subject"`
	Mode           RelevanceMode   `yaml:"mode"`
	QueryTemplate  string          `yaml:"query_template"`
	Schema         string          `yaml:"schema"`
	UserAgents     []string        `yaml:"user_agents"`
	Throttle       ThrottlePolicy  `yaml:"throttle"`
	Concurrency    int             `yaml:"concurrency"`
	MaxPagesPerDay int             `yaml:"max_pages_per_day"`
	Translate      TranslateConfig `yaml:"translate"`
	Output         OutputConfig    `yaml:"output"`
}

// SubjectProfile は対象企業の語彙
//
// タイトルにいずれかの語が単語単位で含まれていればトピック一致とみなす。
type SubjectProfile struct {
	Name      string   `yaml:"name"`
	Canonical string   `yaml:"canonical"`
	Aliases   []string `yaml:"aliases"`
	Brands    []string `yaml:"brands"`
	People    []string `yaml:"people"`
	Keywords  []string `yaml:"keywords"`
}

// Terms returns every topical term of the profile, without duplicates.
func (p SubjectProfile) Terms() []string {
	var terms []string
	terms = append(terms, p.Name, p.Canonical)
	terms = append(terms, p.Aliases...)
	terms = append(terms, p.Brands...)
	terms = append(terms, p.People...)
	terms = append(terms, p.Keywords...)
	for i := range terms {
		terms[i] = strings.TrimSpace(terms[i])
	}
	return uniqStrings(terms)
}

// ThrottlePolicy は取得ループの待機ポリシー
type ThrottlePolicy struct {
	Backoff    BackoffPolicy   `yaml:"backoff"`
	RateLimit  RateLimitPolicy `yaml:"rate_limit"`
	Politeness DelayRange      `yaml:"politeness"`
	Cooldown   CooldownPolicy  `yaml:"cooldown"`
}

// BackoffPolicy は非200応答・ネットワークエラー時の指数バックオフ
type BackoffPolicy struct {
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures"`
	InitialDelay           time.Duration `yaml:"initial_delay"`
	Multiplier             float64       `yaml:"multiplier"`
	MaxDelay               time.Duration `yaml:"max_delay"`
}

// Delay returns the wait after the n-th consecutive failure (n starts at 1).
func (b BackoffPolicy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := float64(b.InitialDelay)
	for i := 1; i < n; i++ {
		d *= b.Multiplier
		if b.MaxDelay > 0 && d >= float64(b.MaxDelay) {
			return b.MaxDelay
		}
	}
	if b.MaxDelay > 0 && time.Duration(d) > b.MaxDelay {
		return b.MaxDelay
	}
	return time.Duration(d)
}

// RateLimitPolicy は429応答時の待機と上限
type RateLimitPolicy struct {
	Wait         DelayRange    `yaml:"wait"`
	MaxRetries   int           `yaml:"max_retries"` // 再送回数（初回リクエストは含まない）
	MaxTotalWait time.Duration `yaml:"max_total_wait"`
}

// CooldownPolicy は EveryPages ページごとの長めの休止（0で無効）
type CooldownPolicy struct {
	EveryPages int        `yaml:"every_pages"`
	Delay      DelayRange `yaml:"delay"`
}

// DelayRange は一様乱数で選ぶ待機時間の範囲 [Min, Max]
type DelayRange struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

func (r DelayRange) valid() bool {
	return r.Min >= 0 && r.Min <= r.Max
}

// TranslateConfig は英語以外のタイトル・要約の翻訳設定
//
// Endpoint が空の場合は翻訳しない（原文のまま通す）。
type TranslateConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Target   string        `yaml:"target"`
	Timeout  time.Duration `yaml:"timeout"`
}

// OutputConfig は出力に関する設定
type OutputConfig struct {
	// CSVPath が指定された場合、CSVファイルに追記（出力先が1つも無い場合は DefaultCSVPath）
	CSVPath string `yaml:"csv_path"`

	// SQLitePath が指定された場合、SQLiteに (day, title) で upsert
	SQLitePath string `yaml:"sqlite_path"`

	// NotionDatabaseID は既存のデータベースID
	NotionDatabaseID string `yaml:"notion_database_id"`

	// NotionPageID は新規データベース作成時の親ページID
	NotionPageID string `yaml:"notion_page_id"`
}

// =============================================================================
// デフォルト値・読み込み
// =============================================================================

// DefaultConfig returns the built-in policy values.
func DefaultConfig() *PipelineConfig {
	return &PipelineConfig{
		Mode:       ModeFinancial,
		Schema:     SchemaGoogleNewsHTML,
		UserAgents: append([]string{}, DefaultUserAgents...),
		Throttle: ThrottlePolicy{
			Backoff: BackoffPolicy{
				MaxConsecutiveFailures: 3,
				InitialDelay:           2 * time.Second,
				Multiplier:             2,
				MaxDelay:               60 * time.Second,
			},
			RateLimit: RateLimitPolicy{
				Wait:         DelayRange{Min: 30 * time.Second, Max: 90 * time.Second},
				MaxRetries:   6,
				MaxTotalWait: 10 * time.Minute,
			},
			Politeness: DelayRange{Min: 5 * time.Second, Max: 15 * time.Second},
			Cooldown: CooldownPolicy{
				EveryPages: 3,
				Delay:      DelayRange{Min: 60 * time.Second, Max: 120 * time.Second},
			},
		},
		Concurrency: 1,
		Translate: TranslateConfig{
			Target:  "en",
			Timeout: 10 * time.Second,
		},
	}
}

// LoadConfig はYAMLファイルを読み込み、デフォルト値に上書きする
//
// path が空の場合はデフォルト値をそのまま返す。
// 検証（Validate）は呼び出し側がCLIフラグを反映した後に行う。
func LoadConfig(path string) (*PipelineConfig, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config file %q", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config file %q", path)
	}
	return cfg, nil
}

// Validate checks every field that would otherwise fail mid-run.
func (c *PipelineConfig) Validate() error {
	if strings.TrimSpace(c.Subject.Name) == "" {
		return ErrMissingSubject
	}
	if !c.Mode.Valid() {
		return errors.Wrapf(ErrInvalidMode, "got %q", c.Mode)
	}

	b := c.Throttle.Backoff
	if b.MaxConsecutiveFailures < 1 {
		return ErrInvalidFailureBudget
	}
	if b.InitialDelay < 0 || b.Multiplier < 1 {
		return ErrInvalidBackoff
	}
	if c.Throttle.RateLimit.MaxRetries < 1 {
		return ErrInvalidRateLimit
	}
	for name, r := range map[string]DelayRange{
		"throttle.rate_limit.wait": c.Throttle.RateLimit.Wait,
		"throttle.politeness":      c.Throttle.Politeness,
		"throttle.cooldown.delay":  c.Throttle.Cooldown.Delay,
	} {
		if !r.valid() {
			return errors.Wrap(ErrInvalidDelayRange, name)
		}
	}
	if c.Throttle.Cooldown.EveryPages < 0 {
		return ErrInvalidCooldown
	}
	if c.Concurrency < 1 {
		return ErrInvalidConcurrency
	}
	if c.MaxPagesPerDay < 0 {
		return ErrInvalidPageLimit
	}
	return nil
}

// SearchPhrase renders the query template for the configured subject.
func (c *PipelineConfig) SearchPhrase() string {
	tmpl := c.QueryTemplate
	if tmpl == "" {
		tmpl = GeneralQueryTemplate
		if c.Mode == ModeFinancial {
			tmpl = FinancialQueryTemplate
		}
	}
	return strings.ReplaceAll(tmpl, "{subject}", c.Subject.Name)
}

// =============================================================================
// 日付
// =============================================================================

// ParseDate は DD-MM-YYYY または YYYY-MM-DD を日付（00:00）に変換する
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range inputDateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Wrapf(ErrInvalidDate, "got %q", s)
}

// DateRange parses the inclusive [start, end] interval. An empty end means
// today according to now.
func DateRange(start, end string, now time.Time) (time.Time, time.Time, error) {
	from, err := ParseDate(start)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrap(err, "start")
	}

	to := truncateDay(now)
	if strings.TrimSpace(end) != "" {
		if to, err = ParseDate(end); err != nil {
			return time.Time{}, time.Time{}, errors.Wrap(err, "end")
		}
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, errors.Wrapf(ErrInvalidDateRange,
			"%s > %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}
	return from, to, nil
}

// truncateDay drops the time-of-day of t, keeping its location.
func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
