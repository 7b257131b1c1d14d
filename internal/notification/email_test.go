package notification

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"gopkg.in/gomail.v2"
)

func newTestService(t *testing.T, send func(m *gomail.Message) error) *EmailService {
	t.Helper()
	s := NewEmailService(EmailConfig{
		Host:     "localhost",
		Port:     2525,
		From:     "no-reply@example.com",
		FromName: "Example",
		Backoff:  time.Millisecond,
	}, 15*time.Minute, slog.Default())
	s.send = send
	return s
}

func TestNewEmailService_Defaults(t *testing.T) {
	s := NewEmailService(EmailConfig{Host: "127.0.0.1", Port: 1, From: "no-reply@example.com"}, 15*time.Minute, nil)
	if s.config.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", s.config.Attempts)
	}
	if s.config.Backoff != 500*time.Millisecond {
		t.Errorf("Backoff = %v, want 500ms", s.config.Backoff)
	}
	if s.logger == nil {
		t.Error("logger should default to slog.Default()")
	}

	// Nothing listens on port 1, so the dialer fails without retrying here.
	m := gomail.NewMessage()
	m.SetHeader("From", "no-reply@example.com")
	m.SetHeader("To", "alice@example.com")
	m.SetBody("text/plain", "hello")
	if err := s.send(m); err == nil {
		t.Error("send() to a closed port should fail")
	}
}

func messageBody(t *testing.T, m *gomail.Message) string {
	t.Helper()
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	return buf.String()
}

func TestSendActivationEmail(t *testing.T) {
	var sent *gomail.Message
	s := newTestService(t, func(m *gomail.Message) error {
		sent = m
		return nil
	})

	err := s.SendActivationEmail(context.Background(), "alice@example.com", "alice", "http://localhost/activate/x/y", "042137")
	if err != nil {
		t.Fatalf("SendActivationEmail() error = %v", err)
	}
	if sent == nil {
		t.Fatal("no message sent")
	}
	if got := sent.GetHeader("Subject"); len(got) != 1 || got[0] != ActivationSubject {
		t.Errorf("Subject = %v", got)
	}
	if got := sent.GetHeader("To"); len(got) != 1 || got[0] != "alice@example.com" {
		t.Errorf("To = %v", got)
	}
	body := messageBody(t, sent)
	for _, want := range []string{"042137", "http://localhost/activate/x/y", "15 minutes"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestSendEmail_EscapesUsername(t *testing.T) {
	var sent *gomail.Message
	s := newTestService(t, func(m *gomail.Message) error {
		sent = m
		return nil
	})

	_ = s.SendPasswordResetEmail(context.Background(), "a@example.com", "<b>eve</b>", "123456")
	if body := messageBody(t, sent); strings.Contains(body, "<b>eve</b>") {
		t.Error("username should be HTML escaped")
	}
}

func TestSendEmail_Retry(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		err       error
		wantCalls int
		wantErr   bool
	}{
		{name: "first attempt succeeds", failures: 0, wantCalls: 1},
		{name: "transient then success", failures: 2, err: errors.New("connection reset"), wantCalls: 3},
		{name: "transient exhausts attempts", failures: 5, err: errors.New("connection reset"), wantCalls: 3, wantErr: true},
		{name: "temporary smtp reply retried", failures: 1, err: &textproto.Error{Code: 451, Msg: "try later"}, wantCalls: 2},
		{name: "permanent smtp reply not retried", failures: 5, err: &textproto.Error{Code: 550, Msg: "no such user"}, wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			s := newTestService(t, func(m *gomail.Message) error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})

			err := s.SendPasswordResetEmail(context.Background(), "a@example.com", "alice", "123456")
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestFormatExpiry(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{15 * time.Minute, "15 minutes"},
		{90 * time.Minute, "90 minutes"},
		{2 * time.Hour, "2 hours"},
		{0, "a few minutes"},
	}
	for _, tt := range tests {
		if got := formatExpiry(tt.in); got != tt.want {
			t.Errorf("formatExpiry(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLogMailer(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer(slog.New(slog.NewTextHandler(&buf, nil)))

	if err := m.SendActivationEmail(context.Background(), "a@example.com", "alice", "http://x", "000111"); err != nil {
		t.Fatalf("SendActivationEmail() error = %v", err)
	}
	if !strings.Contains(buf.String(), "000111") {
		t.Errorf("log output missing code: %s", buf.String())
	}
}
