// Package app holds the application services and business logic.
package app

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"trustcore/internal/domain"
)

var (
	// ErrInvalidEmail indicates that the supplied address is not usable.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrTokenInvalid indicates that no reset token matches the secret.
	ErrTokenInvalid = errors.New("reset link is invalid or expired")
	// ErrTokenUsed indicates that the reset token was redeemed or superseded.
	ErrTokenUsed = errors.New("reset link already used")
	// ErrTokenExpired indicates that the reset token outlived its TTL.
	ErrTokenExpired = errors.New("reset link expired")
	// ErrWeakPassword indicates that the new password fails the length policy.
	ErrWeakPassword = errors.New("password must be between 8 and 72 bytes")
)

const (
	// DefaultResetTTL is how long a reset link stays redeemable.
	DefaultResetTTL = time.Hour

	secretBytes      = 32
	minPasswordBytes = 8
	maxPasswordBytes = 72
)

// resetOutcome is what actually happened during a reset request. It is used
// for logging only and never reaches the caller.
type resetOutcome int

const (
	outcomeSent resetOutcome = iota
	outcomeQueued
	outcomeUnknownEmail
	outcomeLookupFailed
	outcomeSecretFailed
	outcomeStoreFailed
	outcomeMailFailed
)

func (o resetOutcome) String() string {
	switch o {
	case outcomeSent:
		return "sent"
	case outcomeQueued:
		return "queued"
	case outcomeUnknownEmail:
		return "unknown email"
	case outcomeLookupFailed:
		return "lookup failed"
	case outcomeSecretFailed:
		return "secret generation failed"
	case outcomeStoreFailed:
		return "store failed"
	case outcomeMailFailed:
		return "mail failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// RecoveryService issues, verifies and redeems single-use password reset
// tokens.
type RecoveryService struct {
	users   domain.UserRepository
	tokens  domain.ResetTokenRepository
	mailer  domain.Mailer
	hasher  domain.PasswordHasher
	baseURL string
	ttl     time.Duration
	now     func() time.Time

	asyncMail   bool
	mailTimeout time.Duration

	// mu orders inflight.Add against Wait; once draining is set new
	// deliveries run inline.
	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup
}

// NewRecoveryService creates a recovery service. A non-positive ttl selects
// DefaultResetTTL.
func NewRecoveryService(users domain.UserRepository, tokens domain.ResetTokenRepository, mailer domain.Mailer, hasher domain.PasswordHasher, baseURL string, ttl time.Duration) *RecoveryService {
	if ttl <= 0 {
		ttl = DefaultResetTTL
	}
	return &RecoveryService{
		users:   users,
		tokens:  tokens,
		mailer:  mailer,
		hasher:  hasher,
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *RecoveryService) WithClock(now func() time.Time) *RecoveryService {
	s.now = now
	return s
}

// WithAsyncMail moves mail delivery off the request path so response latency
// does not depend on whether the account exists. Each delivery gets its own
// timeout detached from the request context.
func (s *RecoveryService) WithAsyncMail(timeout time.Duration) *RecoveryService {
	s.asyncMail = true
	s.mailTimeout = timeout
	return s
}

// Wait blocks until background mail deliveries have finished. Requests that
// arrive afterwards deliver their mail before returning.
func (s *RecoveryService) Wait() {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()
	s.inflight.Wait()
}

// RequestReset starts a password reset for email. Apart from rejecting
// malformed addresses it always returns nil: whether the account exists,
// and whether storage or delivery worked, is only visible in the logs.
func (s *RecoveryService) RequestReset(ctx context.Context, email, locale string) error {
	email = NormalizeEmail(email)
	if !ValidEmail(email) {
		return ErrInvalidEmail
	}

	outcome := s.requestReset(ctx, email, NormalizeLocale(locale))
	log.Printf("password reset: request for %s: %s", MaskEmail(email), outcome)

	return nil
}

func (s *RecoveryService) requestReset(ctx context.Context, email, locale string) resetOutcome {
	user, err := s.users.GetActiveByEmail(ctx, email)
	if err != nil {
		log.Printf("password reset: user lookup failed: %v", err)
		_, _, _ = newSecret()
		return outcomeLookupFailed
	}
	if user == nil {
		// Same secret work as the found path.
		_, _, _ = newSecret()
		return outcomeUnknownEmail
	}

	raw, hash, err := newSecret()
	if err != nil {
		log.Printf("password reset: secret generation failed: %v", err)
		return outcomeSecretFailed
	}

	if _, err := s.tokens.IssueResetToken(ctx, user.ID, hash, s.now().Add(s.ttl)); err != nil {
		log.Printf("password reset: storing token for user %d failed: %v", user.ID, err)
		return outcomeStoreFailed
	}

	msg := domain.PasswordResetEmail{
		To:          user.Email,
		DisplayName: user.DisplayName,
		ResetURL:    s.resetURL(raw, locale),
		Locale:      locale,
	}

	if s.asyncMail {
		mailCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.mailTimeout)
		s.mu.Lock()
		if s.draining {
			s.mu.Unlock()
			defer cancel()
			return s.deliver(mailCtx, user.ID, msg)
		}
		s.inflight.Add(1)
		s.mu.Unlock()
		go func() {
			defer s.inflight.Done()
			defer cancel()
			s.deliver(mailCtx, user.ID, msg)
		}()
		return outcomeQueued
	}
	return s.deliver(ctx, user.ID, msg)
}

func (s *RecoveryService) deliver(ctx context.Context, userID int64, msg domain.PasswordResetEmail) resetOutcome {
	if err := s.mailer.SendPasswordReset(ctx, msg); err != nil {
		log.Printf("password reset: mail delivery for user %d failed: %v", userID, err)
		return outcomeMailFailed
	}
	return outcomeSent
}

func (s *RecoveryService) resetURL(raw, locale string) string {
	return s.baseURL + "/reset-password/confirm?token=" + url.QueryEscape(raw) + "&locale=" + url.QueryEscape(locale)
}

// VerifyToken reports which user a raw reset secret belongs to. It returns
// ErrTokenInvalid, ErrTokenUsed or ErrTokenExpired, checked in that order.
func (s *RecoveryService) VerifyToken(ctx context.Context, raw string) (int64, error) {
	tok, err := s.lookup(ctx, raw)
	if err != nil {
		return 0, err
	}
	return tok.UserID, nil
}

// RedeemToken sets a new password using a reset secret and consumes it.
func (s *RecoveryService) RedeemToken(ctx context.Context, raw, newPassword string) error {
	tok, err := s.lookup(ctx, raw)
	if err != nil {
		return err
	}
	if len(newPassword) < minPasswordBytes || len(newPassword) > maxPasswordBytes {
		return ErrWeakPassword
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("redeem reset token: hash password: %w", err)
	}

	if err := s.tokens.RedeemResetToken(ctx, tok.ID, tok.UserID, hash); err != nil {
		if errors.Is(err, domain.ErrResetTokenConsumed) {
			return ErrTokenUsed
		}
		return fmt.Errorf("redeem reset token: %w", err)
	}

	log.Printf("password reset: credential updated for user %d", tok.UserID)
	return nil
}

func (s *RecoveryService) lookup(ctx context.Context, raw string) (*domain.ResetToken, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if !wellFormedSecret(raw) {
		return nil, ErrTokenInvalid
	}

	tok, err := s.tokens.GetResetTokenByHash(ctx, hashSecret(raw))
	if err != nil {
		return nil, fmt.Errorf("verify reset token: %w", err)
	}
	if tok == nil {
		return nil, ErrTokenInvalid
	}
	if tok.Used {
		return nil, ErrTokenUsed
	}
	if tok.ExpiresAt.Before(s.now()) {
		return nil, ErrTokenExpired
	}
	return tok, nil
}

// newSecret returns a hex-encoded random secret and the hash that is stored
// in its place.
func newSecret() (raw, hash string, err error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(b)
	return raw, hashSecret(raw), nil
}

func hashSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func wellFormedSecret(raw string) bool {
	if len(raw) != secretBytes*2 {
		return false
	}
	_, err := hex.DecodeString(raw)
	return err == nil
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether a normalized address is syntactically usable.
func ValidEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// MaskEmail hides the local part of an address for log output.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	_, size := utf8.DecodeRuneInString(email)
	return email[:size] + "***" + email[at:]
}

// SupportedLocales are the locales reset emails are written in.
var SupportedLocales = []string{"en", "es", "de"}

// NormalizeLocale maps a language tag such as "es-MX" to a supported locale,
// falling back to "en".
func NormalizeLocale(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if i := strings.IndexAny(locale, "-_"); i >= 0 {
		locale = locale[:i]
	}
	for _, l := range SupportedLocales {
		if l == locale {
			return l
		}
	}
	return "en"
}
