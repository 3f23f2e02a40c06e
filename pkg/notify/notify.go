// Package notify delivers review notifications to users. The core computes
// who to notify and what to say; delivery is behind the Notifier interface.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"sync"
)

// Message is one rendered notification.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Notifier sends a single message. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatch sends every message concurrently and waits for all attempts to
// finish. One failed delivery does not cancel its siblings; failures are
// logged and counted, never returned, so a flaky mail relay cannot fail the
// operation that triggered the batch.
func Dispatch(ctx context.Context, n Notifier, logger *slog.Logger, msgs []Message) (sent, failed int) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, msg := range msgs {
		wg.Add(1)
		go func(msg Message) {
			defer wg.Done()
			if err := n.Send(ctx, msg); err != nil {
				logger.Error("notification delivery failed", "to", msg.To, "subject", msg.Subject, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			mu.Lock()
			sent++
			mu.Unlock()
		}(msg)
	}
	wg.Wait()

	return sent, failed
}

// SMTPConfig configures the SMTP notifier.
type SMTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	From string `yaml:"from"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
}

// SMTPNotifier delivers messages over SMTP.
type SMTPNotifier struct {
	cfg SMTPConfig
}

// NewSMTPNotifier creates an SMTP notifier.
func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg}
}

// Send implements Notifier.
func (s *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	if msg.HTML != "" {
		b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(msg.HTML)
	} else {
		b.WriteString("\r\n")
		b.WriteString(msg.Text)
	}

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{msg.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("send mail via %s: %w", addr, err)
	}
	return nil
}

// LogNotifier records messages to the log instead of delivering them. Used
// when no SMTP relay is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

// Send implements Notifier.
func (l *LogNotifier) Send(ctx context.Context, msg Message) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification (log only)", "to", msg.To, "subject", msg.Subject)
	return nil
}
