// =============================================================================
// report.go - 実行レポート
// =============================================================================
//
// 日ごとの件数・結果・使われた時刻解決手段を集計する。
// Summary は CLI の標準エラー出力と失敗通知メールの本文に使う。
//
// =============================================================================
package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DayReport summarises one harvested day.
type DayReport struct {
	Day        time.Time      `json:"day"`
	Outcome    DayOutcome     `json:"outcome"`
	Pages      int            `json:"pages"`
	Candidates int            `json:"candidates"`
	Relevant   int            `json:"relevant"`
	Written    int            `json:"written"`
	Strategies map[string]int `json:"strategies,omitempty"`
	PersistErr string         `json:"persist_error,omitempty"`
}

// Failed reports whether the day needs attention.
func (d DayReport) Failed() bool {
	return d.Outcome == OutcomeAbandoned || d.PersistErr != ""
}

// RunReport summarises a whole run.
type RunReport struct {
	Subject string        `json:"subject"`
	Mode    RelevanceMode `json:"mode"`
	Start   time.Time     `json:"start"`
	End     time.Time     `json:"end"`
	Days    []DayReport   `json:"days"`
}

// Failures returns the days that were abandoned or could not be persisted.
func (r *RunReport) Failures() []DayReport {
	var out []DayReport
	for _, d := range r.Days {
		if d.Failed() {
			out = append(out, d)
		}
	}
	return out
}

// Written returns the number of records handed to persisters successfully.
func (r *RunReport) Written() int {
	n := 0
	for _, d := range r.Days {
		n += d.Written
	}
	return n
}

// Summary renders a plain-text report.
//
//	newsharvest run report: Reliance (financial)
//	Range: 2017-10-12 .. 2017-10-13
//
//	2017-10-12  exhausted   pages=2 candidates=12 relevant=7 written=6  meta-tags=4 structured-data=2
//	2017-10-13  abandoned   pages=0 candidates=0 relevant=0 written=0
func (r *RunReport) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "newsharvest run report: %s (%s)\n", r.Subject, r.Mode)
	fmt.Fprintf(&sb, "Range: %s .. %s\n\n", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))

	for _, d := range r.Days {
		fmt.Fprintf(&sb, "%s  %-10s  pages=%d candidates=%d relevant=%d written=%d",
			d.Day.Format("2006-01-02"), d.Outcome, d.Pages, d.Candidates, d.Relevant, d.Written)

		names := make([]string, 0, len(d.Strategies))
		for name := range d.Strategies {
			names = append(names, name)
		}
		sort.Strings(names)
		for i, name := range names {
			if i == 0 {
				sb.WriteString(" ")
			}
			fmt.Fprintf(&sb, " %s=%d", name, d.Strategies[name])
		}
		if d.PersistErr != "" {
			fmt.Fprintf(&sb, "  persist_error=%q", d.PersistErr)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "\nTotal written: %d, failed days: %d\n", r.Written(), len(r.Failures()))
	return sb.String()
}
