// =============================================================================
// Lambda: harvest-news
// =============================================================================
//
// 直近 DAYS_BACK 日分（今日を含まない）のニュースを収集し、Notion DBに保存するLambda関数
//
// 環境変数:
//   - CONFIG_PATH:        YAML設定ファイル (任意、デプロイパッケージに同梱、例: configs/reliance.yml)
//   - SUBJECT:            対象企業名 (CONFIG_PATH の subject.name が無ければ必須)
//   - NOTION_TOKEN:       Notion API Token (必須)
//   - NOTION_DATABASE_ID: NotionデータベースID (設定ファイルに無ければ必須)
//   - DAYS_BACK:          何日前まで遡るか (デフォルト: 1 = 昨日のみ)
//   - MODE:               general / financial (デフォルト: 設定ファイル or financial)
//   - SCHEMA:             抽出スキーマ名 (デフォルト: 設定ファイル or google-news-html)
//   - MAX_PAGES:          1日あたりのページ上限 (デフォルト: 設定ファイル or 0 = 枯渇まで)
//
// 環境変数は設定ファイルより優先。語彙が未指定の企業は組み込みプロファイルで補う。
//   - EMAIL_FROM:         エラー通知メール送信元 (任意)
//   - EMAIL_PASSWORD:     Gmailアプリパスワード (任意)
//   - EMAIL_TO:           エラー通知メール送信先 (任意)
//
// =============================================================================
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/aws/aws-lambda-go/lambda"

	"newsharvest/internal/log"
	"newsharvest/internal/pipeline"
)

// LambdaConfig は環境変数から読み込む設定
type LambdaConfig struct {
	ConfigPath       string
	Subject          string
	DaysBack         int
	Mode             string
	Schema           string
	MaxPages         int // -1 = 未指定
	NotionToken      string
	NotionDatabaseID string
	EmailFrom        string // エラー通知用（任意）
	EmailPassword    string // エラー通知用（任意）
	EmailTo          string // エラー通知用（任意）
}

// Response はLambdaレスポンス
type Response struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Days       int    `json:"days"`
	Written    int    `json:"written"`
	FailedDays int    `json:"failedDays"`
}

// Handler はLambdaのメインハンドラー
func Handler(ctx context.Context, event any) (Response, error) {
	logger := log.Logger.Named("lambda")
	logger.Info("starting harvest-news lambda")

	lc := loadConfig()
	cfg, err := buildConfig(lc)
	if err != nil {
		return Response{StatusCode: 400, Message: err.Error()}, err
	}

	schema, err := pipeline.BuiltinSchema(cfg.Schema)
	if err != nil {
		return Response{StatusCode: 400, Message: err.Error()}, err
	}

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	opts := []pipeline.Option{
		pipeline.WithRand(rnd),
		pipeline.WithUserAgent(pipeline.PickUserAgent(rnd, cfg.UserAgents)),
		pipeline.WithLogger(logger),
	}

	persister, err := pipeline.NewNotionPersister(lc.NotionToken, cfg.Output.NotionDatabaseID, opts...)
	if err != nil {
		return Response{StatusCode: 500, Message: err.Error()}, err
	}
	orch, err := pipeline.NewOrchestrator(cfg, pipeline.Components{
		Schema:    schema,
		Persister: persister,
	}, opts...)
	if err != nil {
		return Response{StatusCode: 500, Message: err.Error()}, err
	}

	today := time.Now()
	end := today.AddDate(0, 0, -1)
	start := today.AddDate(0, 0, -lc.DaysBack)
	logger.Info("harvest range",
		zap.String("subject", cfg.Subject.Name),
		zap.String("start", start.Format("2006-01-02")),
		zap.String("end", end.Format("2006-01-02")))

	report, runErr := orch.Run(ctx, start, end)
	fmt.Print(report.Summary())

	failures := report.Failures()
	if len(failures) > 0 {
		logger.Warn("some days failed", zap.Int("failed_days", len(failures)))
		sendErrorNotification(lc, report)
	}

	resp := Response{
		StatusCode: 200,
		Message:    fmt.Sprintf("harvested %d day(s), wrote %d article(s) to Notion", len(report.Days), report.Written()),
		Days:       len(report.Days),
		Written:    report.Written(),
		FailedDays: len(failures),
	}
	if runErr != nil {
		resp.StatusCode = 500
		resp.Message = runErr.Error()
	}
	return resp, runErr
}

// buildConfig は設定ファイルを読み込み、環境変数で上書きして検証する
func buildConfig(lc LambdaConfig) (*pipeline.PipelineConfig, error) {
	cfg, err := pipeline.LoadConfig(lc.ConfigPath)
	if err != nil {
		return nil, err
	}
	if lc.Subject != "" {
		cfg.Subject.Name = lc.Subject
	}
	if lc.Mode != "" {
		cfg.Mode = pipeline.RelevanceMode(lc.Mode)
	}
	if lc.Schema != "" {
		cfg.Schema = lc.Schema
	}
	if lc.MaxPages >= 0 {
		cfg.MaxPagesPerDay = lc.MaxPages
	}
	if lc.NotionDatabaseID != "" {
		cfg.Output.NotionDatabaseID = lc.NotionDatabaseID
	}
	cfg.Subject = cfg.Subject.WithBuiltinVocabulary()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config (SUBJECT or CONFIG_PATH)")
	}
	if cfg.Output.NotionDatabaseID == "" {
		return nil, errors.New("NOTION_DATABASE_ID is required")
	}
	return cfg, nil
}

// loadConfig は環境変数から設定を読み込む
func loadConfig() LambdaConfig {
	daysBack := 1 // デフォルト: 昨日のみ
	if db := os.Getenv("DAYS_BACK"); db != "" {
		if val, err := strconv.Atoi(db); err == nil && val > 0 {
			daysBack = val
		}
	}

	maxPages := -1
	if mp := os.Getenv("MAX_PAGES"); mp != "" {
		if val, err := strconv.Atoi(mp); err == nil && val >= 0 {
			maxPages = val
		}
	}

	return LambdaConfig{
		ConfigPath:       os.Getenv("CONFIG_PATH"),
		Subject:          os.Getenv("SUBJECT"),
		DaysBack:         daysBack,
		Mode:             os.Getenv("MODE"),
		Schema:           os.Getenv("SCHEMA"),
		MaxPages:         maxPages,
		NotionToken:      os.Getenv("NOTION_TOKEN"),
		NotionDatabaseID: os.Getenv("NOTION_DATABASE_ID"),
		EmailFrom:        os.Getenv("EMAIL_FROM"),
		EmailPassword:    os.Getenv("EMAIL_PASSWORD"),
		EmailTo:          os.Getenv("EMAIL_TO"),
	}
}

// sendErrorNotification は失敗した日をメールで通知する（設定がない場合はスキップ）
func sendErrorNotification(lc LambdaConfig, report *pipeline.RunReport) {
	if lc.EmailFrom == "" || lc.EmailPassword == "" || lc.EmailTo == "" {
		log.Logger.Info("email not configured, skipping error notification")
		return
	}

	sender, err := pipeline.NewEmailSender(lc.EmailFrom, lc.EmailPassword, lc.EmailTo)
	if err != nil {
		log.Logger.Warn("create email sender for error notification", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := sender.SendRunReport(ctx, report); err != nil {
		log.Logger.Warn("send error notification", zap.Error(err))
		return
	}
	log.Logger.Info("error notification sent", zap.String("to", lc.EmailTo))
}

func main() {
	lambda.Start(Handler)
}
