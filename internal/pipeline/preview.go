// =============================================================================
// preview.go - 表形式プレビュー（--dry-run）
// =============================================================================
//
// 書き出しの代わりに DailyBatch を端末に表として表示します。
// 日本語などの全角文字があっても列がずれないよう go-runewidth で幅を数えます。
//
//	TIMESTAMP            STRATEGY         TITLE
//	12-10-2017 11:25:00  meta-tags        Reliance Q2 profit rises 8%
//
// =============================================================================
package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mattn/go-runewidth"
)

const (
	previewStrategyWidth = 16
	previewTitleWidth    = 72
)

// TablePersister prints batches instead of storing them.
type TablePersister struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTablePersister writes tables to w.
func NewTablePersister(w io.Writer) *TablePersister {
	return &TablePersister{w: w}
}

// Append implements Persister.
func (p *TablePersister) Append(_ context.Context, batch DailyBatch) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, err := io.WriteString(p.w, RenderTable(batch))
	return err
}

// RenderTable formats batch as fixed-width columns.
func RenderTable(batch DailyBatch) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "== %s (%d articles)\n", batch.Day.Format("2006-01-02"), batch.Len())
	sb.WriteString(previewRow("TIMESTAMP", "STRATEGY", "TITLE"))
	for _, a := range batch.Articles {
		sb.WriteString(previewRow(a.Timestamp.Format(RecordTimeLayout), a.Strategy, a.Title))
	}
	return sb.String()
}

func previewRow(ts, strategy, title string) string {
	return runewidth.FillRight(ts, len(RecordTimeLayout)) + "  " +
		runewidth.FillRight(runewidth.Truncate(strategy, previewStrategyWidth, ""), previewStrategyWidth) + "  " +
		runewidth.Truncate(title, previewTitleWidth, "...") + "\n"
}
