// Package mailer sends the email verification link over SMTP.
package mailer

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/thereayou/abstrio/internal/apperror"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

const subject = "Verify Your Email"

type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	FrontendURL string
	Timeout     time.Duration
}

type SMTPMailer struct {
	cfg    Config
	logger *zap.Logger
	send   func(ctx context.Context, msg *mail.Msg) error
}

func New(cfg Config, logger *zap.Logger) *SMTPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	m := &SMTPMailer{cfg: cfg, logger: logger}
	m.send = m.dialAndSend
	return m
}

// VerificationURL is the frontend page that posts token back to
// /api/verify-email.
func VerificationURL(frontendURL, token string) string {
	return strings.TrimRight(frontendURL, "/") + "/verify-email?token=" + url.QueryEscape(token)
}

func (m *SMTPMailer) SendVerification(ctx context.Context, email, token string) error {
	msg, err := m.buildMessage(email, token)
	if err != nil {
		return apperror.Wrap(apperror.KindValidation, "invalid email address", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	if err := m.send(ctx, msg); err != nil {
		m.logger.Error("verification email not sent", zap.String("email", email), zap.Error(err))
		return apperror.Upstream("failed to send verification email", err)
	}
	m.logger.Info("verification email sent", zap.String("email", email))
	return nil
}

func (m *SMTPMailer) buildMessage(email, token string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if err := msg.To(email); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, verificationBody(m.cfg.FrontendURL, token))
	return msg, nil
}

func verificationBody(frontendURL, token string) string {
	return fmt.Sprintf(`<p>Click <a href="%s">here</a> to verify your email.</p>`,
		VerificationURL(frontendURL, token))
}

func (m *SMTPMailer) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(m.cfg.Timeout),
	)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}
