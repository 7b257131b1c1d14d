package notification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/textproto"
	"time"

	"github.com/sethvargo/go-retry"
	"gopkg.in/gomail.v2"
)

// Subjects of account emails.
const (
	ActivationSubject    = "Activate Your Account / OTP"
	PasswordResetSubject = "Reset Your Password / OTP"
)

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string

	// Attempts is the total number of delivery attempts (default 3).
	Attempts uint64
	// Backoff is the first retry delay, doubled per attempt (default 500ms).
	Backoff time.Duration
}

var (
	activationTemplate = template.Must(template.New("activation").Parse(`<html><body>
<h2>Welcome, {{.Username}}!</h2>
<p>Thanks for signing up. Enter this code on the verification page to activate your account:</p>
<p style="font-size:24px;letter-spacing:4px"><strong>{{.Code}}</strong></p>
<p>The code expires in {{.Expiry}}.</p>
<p>Alternatively, activate your account with this link:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
</body></html>`))

	resetTemplate = template.Must(template.New("reset").Parse(`<html><body>
<h2>Reset Your Password</h2>
<p>Hi {{.Username}}, a password reset was requested for your account.</p>
<p>Your code is <strong>{{.Code}}</strong>. It expires in {{.Expiry}}.</p>
<p>If you did not request this, you can ignore this email.</p>
</body></html>`))
)

type emailData struct {
	Username string
	Code     string
	Link     string
	Expiry   string
}

// EmailService sends account emails over SMTP, retrying transient failures.
type EmailService struct {
	config EmailConfig
	expiry time.Duration
	logger *slog.Logger
	send   func(m *gomail.Message) error
}

// NewEmailService creates an SMTP email service. expiry is the OTP lifetime
// quoted in the message body.
func NewEmailService(config EmailConfig, expiry time.Duration, logger *slog.Logger) *EmailService {
	if config.Attempts == 0 {
		config.Attempts = 3
	}
	if config.Backoff == 0 {
		config.Backoff = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	dialer := gomail.NewDialer(config.Host, config.Port, config.User, config.Password)
	return &EmailService{
		config: config,
		expiry: expiry,
		logger: logger,
		send:   func(m *gomail.Message) error { return dialer.DialAndSend(m) },
	}
}

// SendActivationEmail sends the registration OTP together with the
// activation link.
func (s *EmailService) SendActivationEmail(ctx context.Context, to, username, activateURL, code string) error {
	body, err := render(activationTemplate, emailData{Username: username, Code: code, Link: activateURL, Expiry: formatExpiry(s.expiry)})
	if err != nil {
		return err
	}
	return s.deliver(ctx, to, ActivationSubject, body)
}

// SendPasswordResetEmail sends a password reset OTP.
func (s *EmailService) SendPasswordResetEmail(ctx context.Context, to, username, code string) error {
	body, err := render(resetTemplate, emailData{Username: username, Code: code, Expiry: formatExpiry(s.expiry)})
	if err != nil {
		return err
	}
	return s.deliver(ctx, to, PasswordResetSubject, body)
}

func (s *EmailService) deliver(ctx context.Context, to, subject, body string) error {
	m := gomail.NewMessage()
	if s.config.FromName != "" {
		m.SetAddressHeader("From", s.config.From, s.config.FromName)
	} else {
		m.SetHeader("From", s.config.From)
	}
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	b := retry.NewExponential(s.config.Backoff)
	b = retry.WithMaxRetries(s.config.Attempts-1, b)

	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := s.send(m)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return fmt.Errorf("send email: %w", err)
		}
		s.logger.Warn("email delivery failed, retrying", "attempt", attempt, "subject", subject, "error", err)
		return retry.RetryableError(fmt.Errorf("send email: %w", err))
	})
}

// isTransient reports whether an SMTP failure may be retried. 5xx replies
// are permanent; everything else, network errors included, is retried.
func isTransient(err error) bool {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code < 500
	}
	return true
}

func render(t *template.Template, data emailData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s email: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func formatExpiry(d time.Duration) string {
	if d <= 0 {
		return "a few minutes"
	}
	if m := int(d.Minutes()); m%60 != 0 || m < 60 {
		return fmt.Sprintf("%d minutes", m)
	}
	return fmt.Sprintf("%d hours", int(d.Hours()))
}

// LogMailer writes account emails to the log instead of sending them. It is
// used when no SMTP server is configured.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendActivationEmail(ctx context.Context, to, username, activateURL, code string) error {
	m.logger.InfoContext(ctx, "activation email", "to", to, "username", username, "link", activateURL, "code", code)
	return nil
}

func (m *LogMailer) SendPasswordResetEmail(ctx context.Context, to, username, code string) error {
	m.logger.InfoContext(ctx, "password reset email", "to", to, "username", username, "code", code)
	return nil
}
