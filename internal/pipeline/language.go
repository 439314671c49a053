// =============================================================================
// language.go - 言語判定と翻訳
// =============================================================================
//
// 英語以外のタイトル・スニペットを英語に翻訳してから関連性判定に回します。
// 判定・翻訳のどちらも失敗したら原文のまま通し、処理は止めません。
//
// 【翻訳エンドポイント】
//   LibreTranslate 互換の POST /translate
//     リクエスト: {"q": "...", "source": "auto", "target": "en", "format": "text"}
//     レスポンス: {"translatedText": "..."}
//
// =============================================================================
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/abadojack/whatlanggo"
)

// LanguageDetector reports whether text is English. It must not panic and
// returns false for empty text.
type LanguageDetector interface {
	IsEnglish(text string) bool
}

// Translator translates text to English, returning text unchanged on failure.
type Translator interface {
	Translate(ctx context.Context, text string) string
}

// -----------------------------------------------------------------------------
// 言語判定（whatlanggo）
// -----------------------------------------------------------------------------

// WhatlangDetector はトライグラム統計による言語判定
type WhatlangDetector struct{}

// IsEnglish implements LanguageDetector.
func (WhatlangDetector) IsEnglish(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	return whatlanggo.Detect(text).Lang == whatlanggo.Eng
}

// -----------------------------------------------------------------------------
// 翻訳
// -----------------------------------------------------------------------------

// NoopTranslator は翻訳しない Translator（エンドポイント未設定時）
type NoopTranslator struct{}

// Translate implements Translator.
func (NoopTranslator) Translate(_ context.Context, text string) string {
	return text
}

// HTTPTranslator は LibreTranslate 互換APIを呼ぶ Translator
type HTTPTranslator struct {
	endpoint string
	apiKey   string
	target   string
	client   *http.Client
	logger   logSDK.Logger
}

// NewHTTPTranslator builds a translator for cfg.Endpoint.
func NewHTTPTranslator(cfg TranslateConfig, opts ...Option) *HTTPTranslator {
	o := newOptions(opts)
	client := o.client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	target := cfg.Target
	if target == "" {
		target = "en"
	}
	return &HTTPTranslator{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		target:   target,
		client:   client,
		logger:   o.logger.Named("translator"),
	}
}

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error,omitempty"`
}

// Translate implements Translator.
func (t *HTTPTranslator) Translate(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	out, err := t.translate(ctx, text)
	if err != nil {
		t.logger.Warn("translate failed, keep original", zap.Error(err))
		return text
	}
	return out
}

func (t *HTTPTranslator) translate(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(translateRequest{
		Q:      text,
		Source: "auto",
		Target: t.target,
		Format: "text",
		APIKey: t.apiKey,
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal translate request")
	}

	url := t.endpoint + "/translate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrapf(err, "new request to `%s`", url)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(err, "read response body")
	}
	if resp.StatusCode != http.StatusOK {
		truncatedBody, _ := truncateForLog(body, logBodyLimit)
		return "", errors.Errorf("translate returned status %d: %s", resp.StatusCode, truncatedBody)
	}

	var out translateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", errors.Wrap(err, "unmarshal translate response")
	}
	if out.Error != "" {
		return "", errors.New(out.Error)
	}
	if strings.TrimSpace(out.TranslatedText) == "" {
		return "", errors.New("empty translation")
	}
	return out.TranslatedText, nil
}

// -----------------------------------------------------------------------------
// Localizer
// -----------------------------------------------------------------------------

// Localizer translates the non-English fields of a candidate.
type Localizer struct {
	detector   LanguageDetector
	translator Translator
}

// NewLocalizer combines a detector and a translator; nil values disable
// translation.
func NewLocalizer(detector LanguageDetector, translator Translator) *Localizer {
	return &Localizer{detector: detector, translator: translator}
}

// Localize returns c with title and snippet translated when needed.
func (l *Localizer) Localize(ctx context.Context, c Candidate) Candidate {
	if l == nil || l.detector == nil || l.translator == nil {
		return c
	}
	if !l.detector.IsEnglish(c.Title) {
		c.Title = l.translator.Translate(ctx, c.Title)
	}
	if c.Snippet != NoSummary && !l.detector.IsEnglish(c.Snippet) {
		c.Snippet = l.translator.Translate(ctx, c.Snippet)
	}
	return c
}
