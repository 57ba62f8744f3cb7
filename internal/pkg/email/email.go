package email

import (
	"fmt"
	"html"
	"net/smtp"
	"strings"

	"github.com/qs3c/vendor_portal_server/config"
)

type Service struct {
	cfg  *config.EmailConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewService(cfg *config.EmailConfig) *Service {
	return &Service{cfg: cfg, send: smtp.SendMail}
}

// Configured 是否配置了 SMTP 服务器
func (s *Service) Configured() bool {
	return s.cfg != nil && s.cfg.SMTPHost != ""
}

// SendHTML 发送 HTML 邮件
func (s *Service) SendHTML(to, subject, body string) error {
	return s.deliver(to, subject, "text/html; charset=UTF-8", body)
}

// SendPlain 发送纯文本邮件
func (s *Service) SendPlain(to, subject, body string) error {
	return s.deliver(to, subject, "text/plain; charset=UTF-8", body)
}

func (s *Service) deliver(to, subject, contentType, body string) error {
	if !s.Configured() {
		return fmt.Errorf("smtp host not configured")
	}
	if to == "" {
		return fmt.Errorf("empty recipient")
	}

	msg := buildMessage(s.cfg.From, to, subject, contentType, body)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)

	return s.send(addr, auth, s.cfg.From, []string{to}, msg)
}

func buildMessage(from, to, subject, contentType, body string) []byte {
	headers := [][2]string{
		{"From", from},
		{"To", to},
		{"Subject", subject},
		{"MIME-Version", "1.0"},
		{"Content-Type", contentType},
	}

	var msg strings.Builder
	for _, h := range headers {
		msg.WriteString(fmt.Sprintf("%s: %s\r\n", h[0], h[1]))
	}
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return []byte(msg.String())
}

// Layout 用统一的邮件外框包裹正文，段落内容会被转义
func Layout(heading string, paragraphs ...string) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
`)
	b.WriteString(fmt.Sprintf("        <h2 style=\"color: #2563eb;\">%s</h2>\n", html.EscapeString(heading)))
	for _, p := range paragraphs {
		b.WriteString(fmt.Sprintf("        <p>%s</p>\n", html.EscapeString(p)))
	}
	b.WriteString(`        <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
        <p style="color: #6b7280; font-size: 12px;">This is an automated message, please do not reply.</p>
    </div>
</body>
</html>
`)
	return b.String()
}
