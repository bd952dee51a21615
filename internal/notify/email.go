package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"dashsync/internal/domain"
	"dashsync/internal/msgfmt"
)

// SMTPConfig carries mail transport settings supplied once at process start.
// Params: server endpoint, credentials, sender identity, and dial timeout.
// Returns: static transport configuration shared across all dispatches.
type SMTPConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	From           string
	DialTimeoutSec int
}

// SMTPSender delivers alert email over a strict sequential SMTP session.
// Params: transport config and logger.
// Returns: email sender; a sender with no host is permanently disabled.
type SMTPSender struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

// NewSMTPSender creates an SMTP sender.
// Params: transport config and logger.
// Returns: sender instance.
func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) *SMTPSender {
	if cfg.DialTimeoutSec <= 0 {
		cfg.DialTimeoutSec = 10
	}
	return &SMTPSender{cfg: cfg, logger: logger}
}

// Enabled reports whether mail transport settings are present.
// Params: none.
// Returns: true when host and sender identity are configured.
func (s *SMTPSender) Enabled() bool {
	return s.cfg.Host != "" && s.cfg.From != ""
}

// Send delivers one message through connect, greet, TLS upgrade, auth,
// transmit, and quit, aborting on the first failed step.
// Params: context, recipient, and fired alert.
// Returns: failed stage and error, or empty stage on success.
func (s *SMTPSender) Send(ctx context.Context, to string, fired domain.FiredAlert) (Stage, error) {
	client, stage, err := s.openSession(ctx)
	if err != nil {
		return stage, err
	}
	defer client.Close()

	if err := client.Mail(s.cfg.From); err != nil {
		return StageSender, fmt.Errorf("sender %q rejected: %w", s.cfg.From, err)
	}
	if err := client.Rcpt(to); err != nil {
		return StageRecipient, fmt.Errorf("recipient %q rejected: %w", to, err)
	}
	writer, err := client.Data()
	if err != nil {
		return StageProtocol, fmt.Errorf("data command: %w", err)
	}
	if _, err := writer.Write(msgfmt.EmailMessage(s.cfg.From, to, fired)); err != nil {
		return StageProtocol, fmt.Errorf("write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return StageProtocol, fmt.Errorf("finish message: %w", err)
	}
	if err := client.Quit(); err != nil && s.logger != nil {
		s.logger.Debug("smtp quit failed after delivery", "error", err.Error())
	}
	return "", nil
}

// Verify opens and closes one authenticated session without sending mail.
// Params: context.
// Returns: error describing the first failing stage, used at service start
// to report mail availability.
func (s *SMTPSender) Verify(ctx context.Context) error {
	client, stage, err := s.openSession(ctx)
	if err != nil {
		return fmt.Errorf("mail transport %s: %w", stage, err)
	}
	defer client.Close()
	_ = client.Quit()
	return nil
}

// openSession performs connect, greeting, TLS upgrade, and authentication.
// Params: context bounding the dial.
// Returns: ready client, or the failed stage with its error.
func (s *SMTPSender) openSession(ctx context.Context) (*smtp.Client, Stage, error) {
	address := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	dialer := &net.Dialer{Timeout: time.Duration(s.cfg.DialTimeoutSec) * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, StageConnect, fmt.Errorf("dial %s: %w", address, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, StageConnect, fmt.Errorf("smtp session %s: %w", address, err)
	}
	if err := client.Hello("localhost"); err != nil {
		client.Close()
		return nil, StageProtocol, fmt.Errorf("hello: %w", err)
	}
	// StartTLS re-issues the greeting on the upgraded connection.
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			client.Close()
			return nil, StageProtocol, fmt.Errorf("starttls: %w", err)
		}
	}
	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			client.Close()
			return nil, StageAuth, fmt.Errorf("auth as %q: %w", s.cfg.Username, err)
		}
	}
	return client, "", nil
}
