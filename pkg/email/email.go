// Package email, e-posta gönderimi için soyutlama katmanı.
//
// Servisler EmailSender interface'ine bağımlıdır; Resend implementasyonu
// main'de wire edilir. Testlerde interface sahte bir sender ile değiştirilir.
package email

import (
	"context"
	"fmt"
	"html"
	"unicode/utf8"

	"github.com/resend/resend-go/v3"
)

// previewLength, e-postada gösterilen mesaj önizlemesinin rune üst sınırı.
const previewLength = 140

// MessageNotification, çevrimdışı alıcıya gönderilen yeni mesaj bildirimi.
type MessageNotification struct {
	To             string
	SenderName     string
	ConversationID string
	Content        string
}

// EmailSender, e-posta gönderimi için interface.
type EmailSender interface {
	SendMessageNotification(ctx context.Context, n MessageNotification) error
}

type resendSender struct {
	client    *resend.Client
	fromEmail string
	appURL    string
}

// NewResendSender, Resend API client'ı ile bir EmailSender oluşturur.
// fromEmail Resend'de doğrulanmış bir domain altında olmalıdır.
func NewResendSender(apiKey, fromEmail, appURL string) EmailSender {
	return &resendSender{
		client:    resend.NewClient(apiKey),
		fromEmail: fromEmail,
		appURL:    appURL,
	}
}

func (s *resendSender) SendMessageNotification(ctx context.Context, n MessageNotification) error {
	link := fmt.Sprintf("%s/messages/%s", s.appURL, n.ConversationID)

	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("pitchline <%s>", s.fromEmail),
		To:      []string{n.To},
		Subject: fmt.Sprintf("New message from %s", n.SenderName),
		Html:    renderMessageNotification(n.SenderName, Preview(n.Content), link),
	}

	if _, err := s.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("failed to send message notification: %w", err)
	}
	return nil
}

// Preview, içeriği previewLength rune'a kırpar; kırpıldıysa "…" ekler.
func Preview(content string) string {
	if utf8.RuneCountInString(content) <= previewLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewLength]) + "…"
}

func renderMessageNotification(senderName, preview, link string) string {
	sender := html.EscapeString(senderName)
	body := html.EscapeString(preview)
	href := html.EscapeString(link)

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="margin:0;padding:0;background-color:#0f172a;font-family:Arial,Helvetica,sans-serif;">
  <table width="100%%" cellpadding="0" cellspacing="0" style="padding:40px 0;">
    <tr>
      <td align="center">
        <table width="480" cellpadding="0" cellspacing="0" style="background-color:#1e293b;border-radius:8px;padding:32px;">
          <tr>
            <td>
              <h2 style="color:#e2e8f0;font-size:18px;margin:0 0 16px 0;">%s sent you a message</h2>
              <p style="color:#cbd5e1;font-size:15px;line-height:1.6;margin:0 0 24px 0;white-space:pre-wrap;">%s</p>
              <a href="%s" style="background-color:#6366f1;border-radius:6px;padding:12px 28px;color:#ffffff;text-decoration:none;font-size:15px;">
                Open conversation
              </a>
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`, sender, body, href)
}
