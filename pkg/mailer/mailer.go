package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
)

// Config SMTP 连接参数
type Config struct {
	Host          string
	Port          int
	Username      string
	Password      string
	From          string
	FromName      string
	StartTLS      bool
	SkipTLSVerify bool
}

// Message is one outgoing email.
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string // plain text; an HTML version is derived from it
}

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	cfg  Config
	send func(e *email.Email) error
}

// NewSMTPMailer 创建 SMTP 发送器
func NewSMTPMailer(cfg Config) *SMTPMailer {
	m := &SMTPMailer{cfg: cfg}
	m.send = m.deliver
	return m
}

// Send builds and delivers msg. ctx is checked before dialing; the SMTP
// exchange itself is bounded by the relay.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("destinatário vazio")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e := m.Build(msg)

	done := make(chan error, 1)
	go func() { done <- m.send(e) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Build renders msg into an email.Email without sending it.
func (m *SMTPMailer) Build(msg Message) *email.Email {
	e := email.NewEmail()
	if m.cfg.FromName != "" {
		e.From = fmt.Sprintf("%s <%s>", m.cfg.FromName, m.cfg.From)
	} else {
		e.From = m.cfg.From
	}
	if msg.ToName != "" {
		e.To = []string{fmt.Sprintf("%s <%s>", msg.ToName, msg.To)}
	} else {
		e.To = []string{msg.To}
	}
	e.Subject = msg.Subject
	e.Text = []byte(msg.Body)
	e.HTML = []byte(toHTML(msg.Body))
	return e
}

func (m *SMTPMailer) deliver(e *email.Email) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	if m.cfg.StartTLS {
		return e.SendWithStartTLS(addr, auth, &tls.Config{
			ServerName:         m.cfg.Host,
			InsecureSkipVerify: m.cfg.SkipTLSVerify,
		})
	}
	return e.Send(addr, auth)
}

func toHTML(body string) string {
	paragraphs := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n\n")
	var b strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(p), "\n", "<br>"))
		b.WriteString("</p>")
	}
	return b.String()
}
