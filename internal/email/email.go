// Package email sends transactional messages (verification, password reset)
// over SMTP. When no SMTP host is configured the sender degrades to logging
// the message, which keeps local development working without a relay.
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/rs/zerolog"
)

// Sender delivers HTML email through a plain-auth SMTP relay.
type Sender struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	Log      zerolog.Logger
}

// NewSender constructs a Sender. An empty host disables delivery.
func NewSender(host, port, username, password, from string, log zerolog.Logger) *Sender {
	return &Sender{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
		Log:      log,
	}
}

const verificationTemplate = `
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #ddd; border-radius: 5px; }
        .header { background-color: #1a73e8; color: white; padding: 10px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { padding: 20px; }
        .button { display: inline-block; padding: 10px 20px; background-color: #1a73e8; color: white; text-decoration: none; border-radius: 4px; font-weight: bold; }
        .footer { margin-top: 20px; font-size: 0.8em; color: #777; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Welcome!</h1>
        </div>
        <div class="content">
            <p>Hi {{.Username}},</p>
            <p>Thanks for signing up. Please verify your email address to activate your account.</p>
            <p style="text-align: center;">
                <a href="{{.Link}}" class="button">Verify Email</a>
            </p>
            <p>If you didn't create an account, you can safely ignore this email.</p>
        </div>
        <div class="footer">
            <p>This link expires when a new verification email is requested.</p>
        </div>
    </div>
</body>
</html>
`

const resetTemplate = `
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #ddd; border-radius: 5px; }
        .header { background-color: #1a73e8; color: white; padding: 10px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { padding: 20px; }
        .button { display: inline-block; padding: 10px 20px; background-color: #d93025; color: white; text-decoration: none; border-radius: 4px; font-weight: bold; }
        .footer { margin-top: 20px; font-size: 0.8em; color: #777; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Password reset</h1>
        </div>
        <div class="content">
            <p>Hi {{.Username}},</p>
            <p>We received a request to reset your password. Click the button below to choose a new one.</p>
            <p style="text-align: center;">
                <a href="{{.Link}}" class="button">Reset Password</a>
            </p>
            <p>This link is valid for one hour. If you didn't request a reset, you can safely ignore this email.</p>
        </div>
        <div class="footer">
            <p>Your password stays unchanged until you complete the reset.</p>
        </div>
    </div>
</body>
</html>
`

var (
	verifyTmpl = template.Must(template.New("verification").Parse(verificationTemplate))
	resetTmpl  = template.Must(template.New("reset").Parse(resetTemplate))
)

// SendVerification emails the account-activation link.
func (s *Sender) SendVerification(ctx context.Context, to, username, link string) error {
	return s.send(ctx, to, "Verify your email address", verifyTmpl, map[string]string{
		"Username": username,
		"Link":     link,
	})
}

// SendPasswordReset emails the password-reset link.
func (s *Sender) SendPasswordReset(ctx context.Context, to, username, link string) error {
	return s.send(ctx, to, "Reset your password", resetTmpl, map[string]string{
		"Username": username,
		"Link":     link,
	})
}

func (s *Sender) send(ctx context.Context, to, subject string, tmpl *template.Template, data map[string]string) error {
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("render email template: %w", err)
	}

	if s.Host == "" {
		s.Log.Info().
			Str("to", to).
			Str("subject", subject).
			Str("link", data["Link"]).
			Msg("smtp disabled, email not sent")
		return nil
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", s.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())

	if err := ctx.Err(); err != nil {
		return err
	}
	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
	return smtp.SendMail(s.Host+":"+s.Port, auth, s.From, []string{to}, msg.Bytes())
}
