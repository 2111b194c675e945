package mail

import (
	"context"
	"log"
	"net/url"

	"trustcore/internal/app"
	"trustcore/internal/domain"
)

// LogMailer stands in for SMTP in development. It logs who would have been
// mailed, with the reset secret removed from the link.
type LogMailer struct{}

// SendPasswordReset logs the message instead of sending it.
func (LogMailer) SendPasswordReset(_ context.Context, msg domain.PasswordResetEmail) error {
	subject, _, err := renderReset(msg)
	if err != nil {
		return err
	}
	log.Printf("mail: would send %q to %s (%s) link %s", subject, app.MaskEmail(msg.To), msg.Locale, redactToken(msg.ResetURL))
	return nil
}

func redactToken(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return "[unparseable link]"
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
