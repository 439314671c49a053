// =============================================================================
// persist_notion.go - Notion出力
// =============================================================================
//
// 記事1件をNotionデータベースの1ページとして追加します。
//
// 【データベースのプロパティ】
//
//	Title     (title)      記事タイトル
//	URL       (url)        記事URL
//	Published (date)       解決済みの公開時刻
//	Summary   (rich_text)  スニペット（2000文字まで）
//	Strategy  (select)     時刻の解決手段
//
// 【必要な環境変数】
//   NOTION_TOKEN - Notion Integration Token
//
// =============================================================================
package pipeline

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/jomei/notionapi"
)

// notionTextLimit はNotionのrich_text 1要素あたりの上限
const notionTextLimit = 2000

// NotionPages is the subset of the notionapi page service we use.
type NotionPages interface {
	Create(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
}

// NotionDatabases is the subset of the notionapi database service we use.
type NotionDatabases interface {
	Create(ctx context.Context, req *notionapi.DatabaseCreateRequest) (*notionapi.Database, error)
}

// NotionPersister はNotionデータベースに記事を追加する Persister
type NotionPersister struct {
	pages     NotionPages
	databases NotionDatabases
	dbID      notionapi.DatabaseID
	logger    logSDK.Logger
}

// NewNotionPersister creates a persister for an existing database.
// databaseID may be empty when CreateDatabase is called afterwards.
func NewNotionPersister(token, databaseID string, opts ...Option) (*NotionPersister, error) {
	if token == "" {
		return nil, errors.New("NOTION_TOKEN is required")
	}
	client := notionapi.NewClient(notionapi.Token(token))
	return newNotionPersister(client.Page, client.Database, databaseID, opts...), nil
}

func newNotionPersister(pages NotionPages, dbs NotionDatabases, databaseID string, opts ...Option) *NotionPersister {
	o := newOptions(opts)
	return &NotionPersister{
		pages:     pages,
		databases: dbs,
		dbID:      notionapi.DatabaseID(databaseID),
		logger:    o.logger.Named("notion"),
	}
}

// DatabaseID returns the target database, possibly just created.
func (p *NotionPersister) DatabaseID() string {
	return string(p.dbID)
}

// CreateDatabase creates the article database under pageID.
func (p *NotionPersister) CreateDatabase(ctx context.Context, pageID, title string) error {
	if pageID == "" {
		return errors.New("NOTION_PAGE_ID is required to create a new database")
	}

	req := &notionapi.DatabaseCreateRequest{
		Parent: notionapi.Parent{
			Type:   notionapi.ParentTypePageID,
			PageID: notionapi.PageID(pageID),
		},
		Title: []notionapi.RichText{
			{Text: &notionapi.Text{Content: title}},
		},
		Properties: notionapi.PropertyConfigs{
			"Title": notionapi.TitlePropertyConfig{
				Type: notionapi.PropertyConfigTypeTitle,
			},
			"URL": notionapi.URLPropertyConfig{
				Type: notionapi.PropertyConfigTypeURL,
			},
			"Published": notionapi.DatePropertyConfig{
				Type: notionapi.PropertyConfigTypeDate,
			},
			"Summary": notionapi.RichTextPropertyConfig{
				Type: notionapi.PropertyConfigTypeRichText,
			},
			"Strategy": notionapi.SelectPropertyConfig{
				Type: notionapi.PropertyConfigTypeSelect,
				Select: notionapi.Select{
					Options: []notionapi.Option{
						{Name: StrategyStructuredData, Color: notionapi.ColorGreen},
						{Name: StrategyMetaTags, Color: notionapi.ColorBlue},
						{Name: StrategyPDFInfo, Color: notionapi.ColorPurple},
						{Name: StrategyTimeMarkup, Color: notionapi.ColorYellow},
						{Name: StrategyVisibleText, Color: notionapi.ColorOrange},
						{Name: StrategySearchLabel, Color: notionapi.ColorPink},
						{Name: StrategyFallback, Color: notionapi.ColorRed},
					},
				},
			},
		},
	}

	db, err := p.databases.Create(ctx, req)
	if err != nil {
		return errors.Wrap(err, "create notion database")
	}
	p.dbID = notionapi.DatabaseID(db.ID)
	p.logger.Info("notion database created", zap.String("database_id", string(db.ID)))
	return nil
}

// Append implements Persister. A failing article is logged and skipped;
// the error of the last failure is returned.
func (p *NotionPersister) Append(ctx context.Context, batch DailyBatch) error {
	if p.dbID == "" {
		return errors.New("notion database ID not set")
	}

	var lastErr error
	for _, a := range batch.Articles {
		if err := p.clip(ctx, a); err != nil {
			p.logger.Warn("clip article", zap.String("url", a.URL), zap.Error(err))
			lastErr = err
		}
	}
	return lastErr
}

func (p *NotionPersister) clip(ctx context.Context, a ResolvedArticle) error {
	published := notionapi.Date(a.Timestamp.Truncate(time.Second))
	properties := notionapi.Properties{
		"Title": notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Text: &notionapi.Text{Content: a.Title}},
			},
		},
		"URL": notionapi.URLProperty{
			Type: notionapi.PropertyTypeURL,
			URL:  a.URL,
		},
		"Published": notionapi.DateProperty{
			Type: notionapi.PropertyTypeDate,
			Date: &notionapi.DateObject{Start: &published},
		},
		"Strategy": notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: a.Strategy},
		},
	}
	if a.Summary != "" && a.Summary != NoSummary {
		properties["Summary"] = notionapi.RichTextProperty{
			Type: notionapi.PropertyTypeRichText,
			RichText: []notionapi.RichText{
				{Text: &notionapi.Text{Content: truncateString(a.Summary, notionTextLimit)}},
			},
		}
	}

	_, err := p.pages.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: p.dbID,
		},
		Properties: properties,
	})
	if err != nil {
		return errors.Wrapf(err, "clip article %q", a.Title)
	}
	return nil
}
