package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/sentellent/senti/internal/config"
)

// smtpDialTimeout is the maximum time to establish an SMTP connection.
const smtpDialTimeout = 30 * time.Second

// Sender delivers outbound messages over SMTP. Each Send opens and
// closes its own connection.
type Sender struct {
	cfg    config.SMTPConfig
	from   string
	logger *slog.Logger
}

// NewSender creates an SMTP sender. from is the From header for all
// outbound mail, in "Name <addr>" or bare address form.
func NewSender(cfg config.SMTPConfig, from string, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &Sender{
		cfg:    cfg,
		from:   from,
		logger: logger,
	}
}

// Send composes and delivers a message. The context bounds the entire
// send operation.
func (s *Sender) Send(ctx context.Context, opts SendOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	msg, err := composeMessage(s.from, opts)
	if err != nil {
		return fmt.Errorf("compose message: %w", err)
	}

	recipients := collectRecipients(opts.To, opts.Cc)
	if err := s.deliver(ctx, recipients, msg); err != nil {
		return err
	}

	s.logger.Info("email sent", "to", strings.Join(opts.To, ", "), "subject", opts.Subject)
	return nil
}

// deliver speaks the SMTP session: connect, authenticate, MAIL FROM,
// RCPT TO, DATA, QUIT. Port 465 uses implicit TLS; everything else
// connects plain and upgrades with STARTTLS.
func (s *Sender) deliver(ctx context.Context, recipients []string, msg []byte) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))

	dialTimeout := smtpDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < dialTimeout {
			dialTimeout = remaining
		}
	}
	dialer := &net.Dialer{Timeout: dialTimeout}

	implicitTLS := s.cfg.Port == 465
	tlsCfg := &tls.Config{ServerName: s.cfg.Host}

	var client *smtp.Client
	if implicitTLS {
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsCfg)
		if err != nil {
			return fmt.Errorf("dial SMTPS %s: %w", addr, err)
		}
		client, err = smtp.NewClient(conn, s.cfg.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("create SMTP client on %s: %w", addr, err)
		}
	} else {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("dial SMTP %s: %w", addr, err)
		}
		client, err = smtp.NewClient(conn, s.cfg.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("create SMTP client on %s: %w", addr, err)
		}
	}
	defer client.Close()

	if err := client.Hello("localhost"); err != nil {
		return fmt.Errorf("EHLO: %w", err)
	}

	if !implicitTLS {
		if err := client.StartTLS(tlsCfg); err != nil {
			return fmt.Errorf("STARTTLS: %w", err)
		}
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("AUTH: %w", err)
		}
	}

	if err := client.Mail(extractAddress(s.from)); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close DATA: %w", err)
	}

	return client.Quit()
}

// extractAddress returns the bare email address from a string in
// "Name <addr>" or plain "addr" form.
func extractAddress(s string) string {
	if end := strings.LastIndexByte(s, '>'); end > 0 {
		if start := strings.LastIndexByte(s[:end], '<'); start >= 0 {
			return s[start+1 : end]
		}
	}
	return s
}

// collectRecipients gathers the unique bare addresses from the To and
// Cc lists for SMTP RCPT TO commands.
func collectRecipients(to, cc []string) []string {
	seen := make(map[string]bool)
	var result []string

	for _, list := range [][]string{to, cc} {
		for _, addr := range list {
			bare := extractAddress(addr)
			if bare != "" && !seen[bare] {
				seen[bare] = true
				result = append(result, bare)
			}
		}
	}

	return result
}
