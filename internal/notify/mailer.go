// Package notify renders and delivers transactional email.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// ErrSend wraps every delivery failure.
var ErrSend = errors.New("notify: send failed")

// Message is a rendered email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig carries transport settings.
type SMTPConfig struct {
	Host      string
	Port      int
	User      string
	Pass      string
	FromName  string
	FromEmail string
	Timeout   time.Duration
}

// SMTPSender delivers mail through a single SMTP relay. There is no retry.
type SMTPSender struct {
	cfg    SMTPConfig
	logger *slog.Logger
	dial   gomail.DialContextFunc
}

// NewSMTPSender constructs the sender.
func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) *SMTPSender {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	var d net.Dialer
	return &SMTPSender{cfg: cfg, logger: logger, dial: d.DialContext}
}

// Send implements Sender. Every step of the SMTP session runs under the configured timeout
// on the caller's goroutine, so a send that timed out cannot complete later. Failures are
// logged and returned wrapped in ErrSend.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := s.message(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSend, err)
	}
	client, err := s.client()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSend, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		s.logger.Error("smtp send", slog.String("to", msg.To), slog.String("subject", msg.Subject), slog.Any("error", err))
		return fmt.Errorf("%w: %v", ErrSend, err)
	}
	s.logger.Info("smtp sent", slog.String("to", msg.To), slog.String("subject", msg.Subject))
	return nil
}

func (s *SMTPSender) message(msg Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	from := m.From
	if s.cfg.FromName != "" {
		from = func(addr string) error { return m.FromFormat(s.cfg.FromName, addr) }
	}
	if err := from(s.cfg.FromEmail); err != nil {
		return nil, fmt.Errorf("sender %q: %w", s.cfg.FromEmail, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("recipient %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetBodyString(gomail.TypeTextHTML, msg.HTML)
	return m, nil
}

func (s *SMTPSender) client() (*gomail.Client, error) {
	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTimeout(s.cfg.Timeout),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
		gomail.WithDialContextFunc(withDeadline(s.dial, s.cfg.Timeout)),
	}
	if s.cfg.User != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.User),
			gomail.WithPassword(s.cfg.Pass))
	}
	return gomail.NewClient(s.cfg.Host, opts...)
}

// withDeadline bounds every read and write on the dialed connection, including the
// greeting and handshake that happen before the client applies its own deadlines.
func withDeadline(dial gomail.DialContextFunc, timeout time.Duration) gomail.DialContextFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		deadline := time.Now().Add(timeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	}
}
