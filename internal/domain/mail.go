package domain

import "context"

// PasswordResetEmail is everything the mail collaborator needs to send a
// recovery link.
type PasswordResetEmail struct {
	To          string
	DisplayName string
	ResetURL    string
	Locale      string
}

// Mailer is the port for outbound notification delivery.
type Mailer interface {
	SendPasswordReset(ctx context.Context, msg PasswordResetEmail) error
}
