// =============================================================================
// email.go - 実行レポートのメール通知
// =============================================================================
//
// 放棄した日（リトライ上限）や書き出しに失敗した日があった場合に、
// 実行レポートをGmail SMTPで送信します。
//
// 【処理の流れ】
//  1. RunReport からプレーンテキストの本文を生成
//  2. RFC 5322準拠のメールメッセージを構築
//  3. Gmail SMTP経由で送信（指数バックオフでリトライ）
//
// 【必要な環境変数】
//   EMAIL_FROM     - 送信元メールアドレス（Gmail）
//   EMAIL_PASSWORD - Gmailアプリパスワード（通常のパスワードではない）
//   EMAIL_TO       - 送信先メールアドレス（カンマ区切りで複数可）
//
// =============================================================================
package pipeline

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
)

// EmailConfig はメール送信の設定を保持する
type EmailConfig struct {
	From     string
	Password string
	To       []string
	SMTPHost string
	SMTPPort string
}

// sendMailFunc は smtp.SendMail と同じシグネチャ（テストで差し替える）
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailSender はメール送信を担当する
type EmailSender struct {
	config     EmailConfig
	maxRetries int
	sendMail   sendMailFunc
	sleep      Sleeper
	now        func() time.Time
	logger     logSDK.Logger
}

// NewEmailSender は新しいメール送信者を作成する
//
// to はカンマ区切りで複数指定できる。
func NewEmailSender(from, password, to string, opts ...Option) (*EmailSender, error) {
	if from == "" {
		return nil, errors.New("EMAIL_FROM is required")
	}
	if password == "" {
		return nil, errors.New("EMAIL_PASSWORD is required (use Gmail App Password)")
	}
	if to == "" {
		return nil, errors.New("EMAIL_TO is required")
	}

	var toList []string
	for _, addr := range strings.Split(to, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			toList = append(toList, addr)
		}
	}

	o := newOptions(opts)
	return &EmailSender{
		config: EmailConfig{
			From:     from,
			Password: password,
			To:       toList,
			SMTPHost: "smtp.gmail.com",
			SMTPPort: "587",
		},
		maxRetries: 3,
		sendMail:   smtp.SendMail,
		sleep:      o.sleep,
		now:        o.now,
		logger:     o.logger.Named("email"),
	}, nil
}

// SendRunReport mails the report. Reports without failures are not sent.
func (es *EmailSender) SendRunReport(ctx context.Context, report *RunReport) error {
	failures := report.Failures()
	if len(failures) == 0 {
		return nil
	}

	subject := fmt.Sprintf("newsharvest: %d failed day(s) for %s - %s",
		len(failures), report.Subject, es.now().Format("2006-01-02"))
	msg := es.buildEmailMessage(subject, es.generateReportBody(report, failures))
	return es.sendWithRetry(ctx, msg)
}

// generateReportBody はプレーンテキストのメール本文を生成する
//
//	Failed days:
//	  2017-10-13  abandoned
//
//	========================================
//	newsharvest run report: ...
func (es *EmailSender) generateReportBody(report *RunReport, failures []DayReport) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", es.now().Format("2006-01-02 15:04:05")))
	sb.WriteString("Failed days:\n")
	for _, d := range failures {
		line := fmt.Sprintf("  %s  %s", d.Day.Format("2006-01-02"), d.Outcome)
		if d.PersistErr != "" {
			line += "  persist error: " + d.PersistErr
		}
		sb.WriteString(line + "\n")
	}
	sb.WriteString("\n========================================\n")
	sb.WriteString(report.Summary())
	return sb.String()
}

// buildEmailMessage はRFC 5322準拠のメールメッセージを構築する
//
// ヘッダーと本文は空行（\r\n）で区切る。
func (es *EmailSender) buildEmailMessage(subject, body string) []byte {
	var msg strings.Builder

	msg.WriteString(fmt.Sprintf("From: %s\r\n", es.config.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(es.config.To, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	return []byte(msg.String())
}

// sendWithRetry は指数バックオフ（2秒→4秒）でリトライしながら送信する
func (es *EmailSender) sendWithRetry(ctx context.Context, msg []byte) error {
	var lastErr error
	for i := 0; i < es.maxRetries; i++ {
		if i > 0 {
			wait := time.Duration(1<<i) * time.Second
			es.logger.Info("retrying email send", zap.Duration("wait", wait))
			if err := es.sleep(ctx, wait); err != nil {
				return errors.Wrap(err, "email retry interrupted")
			}
		}

		err := es.send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		es.logger.Warn("email send failed",
			zap.Int("attempt", i+1),
			zap.Int("max", es.maxRetries),
			zap.Error(err))
	}
	return errors.Wrapf(lastErr, "send email after %d retries", es.maxRetries)
}

// send はPLAIN認証でGmail SMTPに送信する
func (es *EmailSender) send(msg []byte) error {
	auth := smtp.PlainAuth("", es.config.From, es.config.Password, es.config.SMTPHost)
	addr := es.config.SMTPHost + ":" + es.config.SMTPPort
	if err := es.sendMail(addr, auth, es.config.From, es.config.To, msg); err != nil {
		return errors.Wrap(err, "SMTP send failed (check EMAIL_PASSWORD is a Gmail App Password)")
	}
	return nil
}
