package pipeline

import (
	"context"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"
)

func testReport() *RunReport {
	return &RunReport{
		Subject: "Reliance",
		Mode:    ModeFinancial,
		Start:   date(2017, 10, 12, 0, 0, 0),
		End:     date(2017, 10, 13, 0, 0, 0),
		Days: []DayReport{
			{Day: date(2017, 10, 12, 0, 0, 0), Outcome: OutcomeExhausted, Pages: 2, Candidates: 12, Relevant: 7, Written: 6,
				Strategies: map[string]int{StrategyMetaTags: 4, StrategyStructuredData: 2}},
			{Day: date(2017, 10, 13, 0, 0, 0), Outcome: OutcomeAbandoned},
		},
	}
}

func newTestEmailSender(t *testing.T, send sendMailFunc) (*EmailSender, *recordingSleeper) {
	t.Helper()
	sleeper := &recordingSleeper{}
	es, err := NewEmailSender("bot@example.com", "app-password", "a@example.com, b@example.com",
		WithSleeper(sleeper.Sleep), WithClock(fixedClock(date(2017, 10, 14, 9, 0, 0))))
	require.NoError(t, err)
	es.sendMail = send
	return es, sleeper
}

func TestEmailSenderRetries(t *testing.T) {
	var attempts int
	var sent []byte
	es, sleeper := newTestEmailSender(t, func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		attempts++
		require.Equal(t, "smtp.gmail.com:587", addr)
		require.Equal(t, "bot@example.com", from)
		require.Equal(t, []string{"a@example.com", "b@example.com"}, to)
		if attempts < 3 {
			return errors.New("421 try again later")
		}
		sent = msg
		return nil
	})

	require.NoError(t, es.SendRunReport(context.Background(), testReport()))
	require.Equal(t, 3, attempts)
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeper.Waits())

	msg := string(sent)
	require.Contains(t, msg, "Subject: newsharvest: 1 failed day(s) for Reliance - 2017-10-14\r\n")
	require.Contains(t, msg, "To: a@example.com, b@example.com\r\n")
	require.Contains(t, msg, "2017-10-13  abandoned")
	require.Contains(t, msg, "meta-tags=4 structured-data=2")
}

func TestEmailSenderGivesUp(t *testing.T) {
	var attempts int
	es, _ := newTestEmailSender(t, func(string, smtp.Auth, string, []string, []byte) error {
		attempts++
		return errors.New("535 authentication failed")
	})

	err := es.SendRunReport(context.Background(), testReport())
	require.Error(t, err)
	require.Equal(t, 3, attempts)
	require.True(t, strings.Contains(err.Error(), "535"))
}

func TestEmailSenderSkipsCleanRuns(t *testing.T) {
	es, _ := newTestEmailSender(t, func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("clean runs must not send mail")
		return nil
	})

	report := testReport()
	report.Days = report.Days[:1]
	require.NoError(t, es.SendRunReport(context.Background(), report))
}

func TestNewEmailSenderValidates(t *testing.T) {
	_, err := NewEmailSender("", "p", "to@example.com")
	require.Error(t, err)
	_, err = NewEmailSender("from@example.com", "", "to@example.com")
	require.Error(t, err)
	_, err = NewEmailSender("from@example.com", "p", "")
	require.Error(t, err)
}

func TestRunReportSummary(t *testing.T) {
	r := testReport()
	require.Equal(t, 6, r.Written())
	require.Len(t, r.Failures(), 1)

	summary := r.Summary()
	require.Contains(t, summary, "newsharvest run report: Reliance (financial)")
	require.Contains(t, summary, "Range: 2017-10-12 .. 2017-10-13")
	require.Contains(t, summary, "Total written: 6, failed days: 1")

	r.Days[0].PersistErr = "disk full"
	require.Len(t, r.Failures(), 2)
}
