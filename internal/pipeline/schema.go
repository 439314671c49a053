// =============================================================================
// schema.go - 抽出スキーマ
// =============================================================================
//
// 検索結果ページのURL組み立てと、マークアップ→フィールドの対応表を
// バージョン付きYAMLとして外出ししたものです。
// 検索エンジン側のクラス名が変わっても、コードを変えずにYAMLだけ差し替えられます。
//
// 【組み込みスキーマ】
//   - google-news-html: Google検索ニュースタブのHTML（10件ずつページング）
//   - google-news-rss:  Google News RSS（ページングなし）
//
// 【URLテンプレートのプレースホルダー】
//   {query}          URLエンコード済み検索語
//   {date}           対象日（date_layout形式、URLエンコード済み）
//   {date_iso}       対象日（YYYY-MM-DD）
//   {next_date_iso}  翌日（YYYY-MM-DD）
//   {offset}         結果オフセット（0, 10, 20, ...）
//
// =============================================================================
package pipeline

import (
	"embed"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Laisky/errors/v2"
	"gopkg.in/yaml.v3"
)

// SchemaVersion is the only extraction schema version this build understands.
const SchemaVersion = 1

// 組み込みスキーマ名
const (
	SchemaGoogleNewsHTML = "google-news-html"
	SchemaGoogleNewsRSS  = "google-news-rss"
)

// SchemaFormat は結果ページの形式
type SchemaFormat string

const (
	FormatHTML SchemaFormat = "html"
	FormatRSS  SchemaFormat = "rss"
)

// スキーマ検証エラー
var (
	ErrUnsupportedSchemaVersion = errors.New("unsupported extraction schema version")
	ErrUnsupportedSchemaFormat  = errors.New("extraction schema format must be 'html' or 'rss'")
	ErrMissingSchemaURL         = errors.New("extraction schema url template is required")
	ErrMissingSelector          = errors.New("html extraction schema requires block, title and link selectors")
	ErrUnknownSchema            = errors.New("unknown extraction schema")
)

//go:embed schemas/*.yaml
var builtinSchemaFS embed.FS

// ExtractionSchema は1つの検索エンジン形式の定義
type ExtractionSchema struct {
	Version    int          `yaml:"version"`
	Name       string       `yaml:"name"`
	Format     SchemaFormat `yaml:"format"`
	URL        string       `yaml:"url"`
	BaseURL    string       `yaml:"base_url"`
	DateLayout string       `yaml:"date_layout"`
	Paginated  bool         `yaml:"paginated"`
	PageSize   int          `yaml:"page_size"`
	Selectors  SelectorSet  `yaml:"selectors"`
}

// SelectorSet はHTML結果ページ用のgoqueryセレクタ
//
// TimeLabel は先頭から順に試し、最初に見つかった要素のテキストを使う。
type SelectorSet struct {
	Block     string   `yaml:"block"`
	Title     string   `yaml:"title"`
	Snippet   string   `yaml:"snippet"`
	Link      string   `yaml:"link"`
	TimeLabel []string `yaml:"time_label"`
}

// Validate rejects schemas this build cannot execute.
func (s *ExtractionSchema) Validate() error {
	if s.Version != SchemaVersion {
		return errors.Wrapf(ErrUnsupportedSchemaVersion, "%q has version %d", s.Name, s.Version)
	}
	if strings.TrimSpace(s.URL) == "" {
		return errors.Wrapf(ErrMissingSchemaURL, "schema %q", s.Name)
	}

	switch s.Format {
	case FormatHTML:
		sel := s.Selectors
		if sel.Block == "" || sel.Title == "" || sel.Link == "" {
			return errors.Wrapf(ErrMissingSelector, "schema %q", s.Name)
		}
	case FormatRSS:
	default:
		return errors.Wrapf(ErrUnsupportedSchemaFormat, "schema %q has format %q", s.Name, s.Format)
	}
	return nil
}

// SearchURL renders the result page URL for one (query, offset).
func (s *ExtractionSchema) SearchURL(q SearchQuery, offset int) string {
	layout := s.DateLayout
	if layout == "" {
		layout = "2006-01-02"
	}
	day := truncateDay(q.Day)

	r := strings.NewReplacer(
		"{query}", url.QueryEscape(q.Phrase),
		"{date}", url.QueryEscape(day.Format(layout)),
		"{date_iso}", day.Format("2006-01-02"),
		"{next_date_iso}", day.AddDate(0, 0, 1).Format("2006-01-02"),
		"{offset}", strconv.Itoa(offset),
	)
	return r.Replace(s.URL)
}

// Step returns the offset increment between two pages.
func (s *ExtractionSchema) Step() int {
	if s.PageSize > 0 {
		return s.PageSize
	}
	return 10
}

// =============================================================================
// 読み込み
// =============================================================================

// ParseSchema decodes and validates one YAML schema document.
func ParseSchema(data []byte) (*ExtractionSchema, error) {
	s := new(ExtractionSchema)
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, errors.Wrap(err, "parse extraction schema")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadSchema reads a schema override from disk.
func LoadSchema(path string) (*ExtractionSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read extraction schema %q", path)
	}
	return ParseSchema(data)
}

// BuiltinSchema returns the embedded schema with the given name.
func BuiltinSchema(name string) (*ExtractionSchema, error) {
	all, err := BuiltinSchemas()
	if err != nil {
		return nil, err
	}
	for _, s := range all {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, errors.Wrapf(ErrUnknownSchema, "%q", name)
}

// BuiltinSchemas returns every embedded schema ordered by name.
func BuiltinSchemas() ([]*ExtractionSchema, error) {
	entries, err := builtinSchemaFS.ReadDir("schemas")
	if err != nil {
		return nil, errors.Wrap(err, "read embedded schemas")
	}

	var out []*ExtractionSchema
	for _, e := range entries {
		data, err := builtinSchemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			return nil, errors.Wrapf(err, "read embedded schema %s", e.Name())
		}
		s, err := ParseSchema(data)
		if err != nil {
			return nil, errors.Wrapf(err, "embedded schema %s", e.Name())
		}
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// BuiltinSchemaSource returns the raw YAML of an embedded schema, for the
// schema sub-command.
func BuiltinSchemaSource(name string) ([]byte, error) {
	file := "schemas/" + strings.ReplaceAll(name, "-", "_") + ".yaml"
	data, err := builtinSchemaFS.ReadFile(file)
	if err != nil {
		return nil, errors.Wrapf(ErrUnknownSchema, "%q", name)
	}
	return data, nil
}
