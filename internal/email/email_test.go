package email

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSend_DisabledHostLogsInsteadOfDialing(t *testing.T) {
	var buf bytes.Buffer
	s := NewSender("", "", "", "", "noreply@example.com", zerolog.New(&buf))

	if err := s.SendVerification(context.Background(), "a@example.com", "amira", "http://localhost/verify?token=t1"); err != nil {
		t.Fatalf("SendVerification: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "smtp disabled") {
		t.Fatalf("no disabled-delivery log entry: %s", out)
	}
	if !strings.Contains(out, "token=t1") {
		t.Fatalf("logged entry misses the link: %s", out)
	}

	if err := s.SendPasswordReset(context.Background(), "a@example.com", "amira", "http://localhost/reset?token=t2"); err != nil {
		t.Fatalf("SendPasswordReset: %v", err)
	}
}

func TestTemplates_RenderRecipientData(t *testing.T) {
	var body bytes.Buffer
	err := verifyTmpl.Execute(&body, map[string]string{
		"Username": "amira",
		"Link":     "http://localhost/verify?token=abc",
	})
	if err != nil {
		t.Fatalf("execute verification template: %v", err)
	}
	out := body.String()
	if !strings.Contains(out, "Hi amira,") {
		t.Fatalf("greeting missing:\n%s", out)
	}
	if !strings.Contains(out, `href="http://localhost/verify?token=abc"`) {
		t.Fatalf("link missing:\n%s", out)
	}

	body.Reset()
	if err := resetTmpl.Execute(&body, map[string]string{"Username": "x", "Link": "http://l/r"}); err != nil {
		t.Fatalf("execute reset template: %v", err)
	}
	if !strings.Contains(body.String(), "Reset Password") {
		t.Fatalf("reset call-to-action missing")
	}
}

func TestTemplates_EscapeHostileInput(t *testing.T) {
	var body bytes.Buffer
	err := verifyTmpl.Execute(&body, map[string]string{
		"Username": `<script>alert("x")</script>`,
		"Link":     "http://localhost/verify",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if strings.Contains(body.String(), "<script>") {
		t.Fatalf("template does not escape html in usernames")
	}
}

func TestSend_CancelledContext(t *testing.T) {
	s := NewSender("smtp.example.com", "587", "u", "p", "noreply@example.com", zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.SendVerification(ctx, "a@example.com", "amira", "http://l"); err == nil {
		t.Fatalf("cancelled context did not abort delivery")
	}
}
