// Package email sends account notifications over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

// ErrNotConfigured is returned when sending without SMTP settings.
var ErrNotConfigured = errors.New("email not configured")

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	// AppName brands subjects and bodies. Defaults to "Inkwell".
	AppName string
}

// Sender delivers account notifications.
type Sender interface {
	IsConfigured() bool
	SendVerificationEmail(to, userName, verificationURL string) error
	SendPasswordResetEmail(to, userName, resetURL string) error
}

type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewService(config Config) *Service {
	if config.AppName == "" {
		config.AppName = "Inkwell"
	}
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *Service) fromHeader() string {
	if s.config.FromName == "" {
		return s.config.From
	}
	return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
}

// SendHTMLEmail sends a multipart message with a plain text fallback.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	msg := buildMessage(s.fromHeader(), to, subject, textBody, htmlBody)
	if err := s.send(s.server, s.auth, s.config.From, to, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

const boundary = "inkwell-alt-boundary"

func buildMessage(from string, to []string, subject, textBody, htmlBody string) []byte {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(textBody)
	msg.WriteString("\r\n\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	msg.WriteString(htmlBody)
	msg.WriteString("\r\n\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes()
}

type linkData struct {
	AppName  string
	UserName string
	URL      string
}

func (s *Service) SendVerificationEmail(to, userName, verificationURL string) error {
	data := linkData{AppName: s.config.AppName, UserName: userName, URL: verificationURL}
	html, err := render(verificationTemplate, data)
	if err != nil {
		return fmt.Errorf("render verification template: %w", err)
	}
	text := fmt.Sprintf("Welcome to %s, %s.\r\nVerify your email address: %s\r\nThe link expires in 24 hours.",
		data.AppName, userName, verificationURL)
	return s.SendHTMLEmail([]string{to}, "Verify your "+data.AppName+" account", text, html)
}

func (s *Service) SendPasswordResetEmail(to, userName, resetURL string) error {
	data := linkData{AppName: s.config.AppName, UserName: userName, URL: resetURL}
	html, err := render(passwordResetTemplate, data)
	if err != nil {
		return fmt.Errorf("render password reset template: %w", err)
	}
	text := fmt.Sprintf("Hi %s,\r\nReset your %s password: %s\r\nThe link expires in 1 hour.",
		userName, data.AppName, resetURL)
	return s.SendHTMLEmail([]string{to}, "Reset your "+data.AppName+" password", text, html)
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const layout = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{template "title" .}}</title>
    <style>
        body { font-family: Georgia, 'Times New Roman', serif; line-height: 1.6; color: #222; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #3b2f63; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #3b2f63; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #3b2f63; }
    </style>
</head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>
    {{template "body" .}}
    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.URL}}</p>
    <div class="footer">{{template "footer" .}}</div>
</body>
</html>`

var verificationTemplate = template.Must(template.Must(template.New("layout").Parse(layout)).Parse(`
{{define "title"}}Verify your {{.AppName}} account{{end}}
{{define "body"}}
    <h2>Welcome, {{.UserName}}!</h2>
    <p>Please verify your email address to start writing.</p>
    <p><a href="{{.URL}}" class="button">Verify Email Address</a></p>
    <p>This verification link will expire in 24 hours.</p>
{{end}}
{{define "footer"}}<p>If you didn't create an account with {{.AppName}}, you can ignore this email.</p>{{end}}
`))

var passwordResetTemplate = template.Must(template.Must(template.New("layout").Parse(layout)).Parse(`
{{define "title"}}Reset your {{.AppName}} password{{end}}
{{define "body"}}
    <h2>Password Reset Request</h2>
    <p>Hi {{.UserName}},</p>
    <p>We received a request to reset your password.</p>
    <p><a href="{{.URL}}" class="button">Reset Password</a></p>
    <p><strong>Important:</strong> This reset link will expire in 1 hour.</p>
{{end}}
{{define "footer"}}<p>If you didn't request a password reset, your password will remain unchanged.</p>{{end}}
`))
