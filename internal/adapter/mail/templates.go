// Package mail delivers password reset messages.
package mail

import (
	"bytes"
	"fmt"
	"text/template"

	"trustcore/internal/domain"
)

type resetTemplate struct {
	subject string
	body    *template.Template
}

var resetTemplates = map[string]resetTemplate{
	"en": {
		subject: "Reset your password",
		body: template.Must(template.New("en").Parse(`Hi{{with .DisplayName}} {{.}}{{end}},

We received a request to reset the password for your account. Open the link
below to choose a new one:

{{.ResetURL}}

The link can be used once and expires soon. If you did not ask for this, you
can ignore this message and your password will stay the same.
`)),
	},
	"es": {
		subject: "Restablece tu contraseña",
		body: template.Must(template.New("es").Parse(`Hola{{with .DisplayName}} {{.}}{{end}}:

Recibimos una solicitud para restablecer la contraseña de tu cuenta. Abre el
siguiente enlace para elegir una nueva:

{{.ResetURL}}

El enlace solo puede usarse una vez y caduca pronto. Si no lo solicitaste,
puedes ignorar este mensaje y tu contraseña no cambiará.
`)),
	},
	"de": {
		subject: "Passwort zurücksetzen",
		body: template.Must(template.New("de").Parse(`Hallo{{with .DisplayName}} {{.}}{{end}},

wir haben eine Anfrage zum Zurücksetzen des Passworts für Ihr Konto erhalten.
Über den folgenden Link können Sie ein neues Passwort festlegen:

{{.ResetURL}}

Der Link ist nur einmal gültig und läuft bald ab. Falls Sie dies nicht
angefordert haben, können Sie diese Nachricht ignorieren.
`)),
	},
}

// renderReset returns the subject and plain text body for msg, falling back
// to English for unknown locales.
func renderReset(msg domain.PasswordResetEmail) (string, string, error) {
	tpl, ok := resetTemplates[msg.Locale]
	if !ok {
		tpl = resetTemplates["en"]
	}
	var buf bytes.Buffer
	if err := tpl.body.Execute(&buf, msg); err != nil {
		return "", "", fmt.Errorf("render reset mail: %w", err)
	}
	return tpl.subject, buf.String(), nil
}
