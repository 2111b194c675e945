package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trustcore/internal/adapter/cloudinary"
	adapthttp "trustcore/internal/adapter/http"
	"trustcore/internal/adapter/mail"
	"trustcore/internal/adapter/memory"
	"trustcore/internal/adapter/postgres"
	redislimiter "trustcore/internal/adapter/redis"
	"trustcore/internal/app"
	"trustcore/internal/config"
	"trustcore/internal/domain"
	"trustcore/internal/password"
)

// store is what the recovery service needs from persistence.
type store interface {
	domain.UserRepository
	domain.ResetTokenRepository
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := initStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer closeStore()

	factory, closeLimiter, err := initLimiters(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	defer closeLimiter()

	hasher, err := password.New(cfg.Reset.PasswordHasher, cfg.Reset.BcryptCost)
	if err != nil {
		return fmt.Errorf("password hasher: %w", err)
	}
	mailer, err := initMailer(cfg.SMTP)
	if err != nil {
		return fmt.Errorf("mail: %w", err)
	}
	blobs, err := initBlobStore(cfg.Cloudinary)
	if err != nil {
		return fmt.Errorf("uploads: %w", err)
	}

	recovery := app.NewRecoveryService(st, st, mailer, hasher, cfg.AppBaseURL, cfg.Reset.TokenTTL)
	if cfg.Reset.AsyncMail {
		recovery.WithAsyncMail(cfg.Reset.MailTimeout)
	}
	defer recovery.Wait()
	limits := app.NewRateLimitService(cfg.Policies, factory)

	h := adapthttp.New(recovery, limits, app.NewUploadValidator(), blobs, adapthttp.Options{
		AdminToken:       cfg.AdminToken,
		AllowedOrigins:   cfg.AllowedOrigins,
		TrustForwardAuth: cfg.TrustForwardAuth,
		Image:            cfg.Image,
		Document:         cfg.Document,
	}).Handler()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Println("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	return nil
}

func initStore(ctx context.Context, cfg config.Config) (store, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Println("store: DATABASE_URL not set, using in-memory store")
		db := memory.New()
		if cfg.DevUserEmail != "" {
			if err := seedDevUser(ctx, db, cfg.DevUserEmail); err != nil {
				return nil, nil, err
			}
		}
		return db, func() {}, nil
	}

	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("db open: %w", err)
	}
	return db, func() {
		if err := db.Close(); err != nil {
			log.Printf("failed to close db: %v", err)
		}
	}, nil
}

// seedDevUser creates one account with a random password that can only be
// changed through the reset flow.
func seedDevUser(ctx context.Context, db *memory.DB, email string) error {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return err
	}
	hash, err := password.NewBcrypt(0).Hash(hex.EncodeToString(b))
	if err != nil {
		return err
	}
	if _, err := db.CreateUser(ctx, email, "", hash); err != nil {
		return fmt.Errorf("seed dev user: %w", err)
	}
	log.Printf("store: seeded dev user %s", app.MaskEmail(app.NormalizeEmail(email)))
	return nil
}

func initLimiters(ctx context.Context, redisURL string) (app.LimiterFactory, func(), error) {
	if redisURL == "" {
		log.Println("rate limiter: REDIS_URL not set, limits are per process")
		return func(p app.RateLimitPolicy) domain.RateLimiter {
			return memory.NewSlidingWindow(p.Interval, p.Capacity)
		}, func() {}, nil
	}

	client, err := redislimiter.NewClient(ctx, redisURL)
	if err != nil {
		return nil, nil, err
	}
	factory := func(p app.RateLimitPolicy) domain.RateLimiter {
		return redislimiter.NewSlidingWindow(client, "ratelimit:"+p.Name, p.Interval)
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			log.Printf("failed to close redis client: %v", err)
		}
	}
	return factory, closeFn, nil
}

func initMailer(cfg config.SMTPConfig) (domain.Mailer, error) {
	if cfg.Host == "" {
		log.Println("mail: SMTP_HOST not set, reset mails are logged")
		return mail.LogMailer{}, nil
	}
	m, err := mail.NewSMTPMailer(mail.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func initBlobStore(cfg config.CloudinaryConfig) (domain.BlobStore, error) {
	cc := cloudinary.Config{CloudName: cfg.CloudName, APIKey: cfg.APIKey, APISecret: cfg.APISecret}
	if !cc.Enabled() {
		log.Println("uploads: cloudinary not configured, storing uploads in memory")
		return memory.NewBlobStore(), nil
	}
	bs, err := cloudinary.New(cc)
	if err != nil {
		return nil, err
	}
	return bs, nil
}
