// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"trustcore/internal/app"
	"trustcore/internal/domain"
)

// Config is the process configuration assembled by Load.
type Config struct {
	Addr            string
	DatabaseURL     string
	RedisURL        string
	AdminToken      string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration

	// AppBaseURL prefixes the links in reset emails.
	AppBaseURL string

	// DevUserEmail seeds the in-memory store with one account.
	DevUserEmail string

	// TrustForwardAuth honors the Remote-User header set by a forward-auth
	// proxy when keying the API rate limit.
	TrustForwardAuth bool

	Reset      ResetConfig
	SMTP       SMTPConfig
	Cloudinary CloudinaryConfig
	Policies   []app.RateLimitPolicy
	Image      domain.UploadOptions
	Document   domain.UploadOptions
}

// ResetConfig tunes the password recovery flow.
type ResetConfig struct {
	TokenTTL       time.Duration
	PasswordHasher string
	BcryptCost     int
	AsyncMail      bool
	MailTimeout    time.Duration
}

// SMTPConfig selects the SMTP relay. An empty Host logs mail instead.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// CloudinaryConfig holds upload storage credentials. Uploads stay in
// memory unless all three are set.
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
}

// Load reads .env when present and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	var err error

	cfg.Addr = getEnv("ADDR", ":8080")
	cfg.DatabaseURL = getEnv("DATABASE_URL", "")
	cfg.RedisURL = getEnv("REDIS_URL", "")
	cfg.AppBaseURL = getEnv("APP_BASE_URL", "http://localhost:8080")
	cfg.AdminToken = getEnv("ADMIN_TOKEN", "")
	cfg.DevUserEmail = getEnv("DEV_USER_EMAIL", "")
	cfg.AllowedOrigins = getList("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	if cfg.TrustForwardAuth, err = getBool("TRUST_FORWARD_AUTH", false); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}

	if cfg.Reset, err = buildResetConfig(); err != nil {
		return Config{}, err
	}
	if cfg.SMTP, err = buildSMTPConfig(); err != nil {
		return Config{}, err
	}
	cfg.Cloudinary = CloudinaryConfig{
		CloudName: getEnv("CLOUDINARY_CLOUD_NAME", ""),
		APIKey:    getEnv("CLOUDINARY_API_KEY", ""),
		APISecret: getEnv("CLOUDINARY_API_SECRET", ""),
	}
	if cfg.Policies, err = buildPolicies(); err != nil {
		return Config{}, err
	}
	if cfg.Image, cfg.Document, err = buildUploadOptions(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func buildResetConfig() (ResetConfig, error) {
	ttl, err := getDuration("RESET_TOKEN_TTL", app.DefaultResetTTL)
	if err != nil {
		return ResetConfig{}, err
	}
	cost, err := getInt("BCRYPT_COST", 12)
	if err != nil {
		return ResetConfig{}, err
	}
	async, err := getBool("MAIL_ASYNC", true)
	if err != nil {
		return ResetConfig{}, err
	}
	timeout, err := getDuration("MAIL_TIMEOUT", 15*time.Second)
	if err != nil {
		return ResetConfig{}, err
	}

	hasher := strings.ToLower(getEnv("PASSWORD_HASHER", "bcrypt"))
	if hasher != "bcrypt" && hasher != "argon2id" {
		return ResetConfig{}, fmt.Errorf("invalid PASSWORD_HASHER: %q", hasher)
	}

	return ResetConfig{
		TokenTTL:       ttl,
		PasswordHasher: hasher,
		BcryptCost:     cost,
		AsyncMail:      async,
		MailTimeout:    timeout,
	}, nil
}

func buildSMTPConfig() (SMTPConfig, error) {
	port, err := getInt("SMTP_PORT", 587)
	if err != nil {
		return SMTPConfig{}, err
	}
	timeout, err := getDuration("SMTP_TIMEOUT", 10*time.Second)
	if err != nil {
		return SMTPConfig{}, err
	}
	return SMTPConfig{
		Host:     getEnv("SMTP_HOST", ""),
		Port:     port,
		Username: getEnv("SMTP_USERNAME", ""),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     getEnv("SMTP_FROM", "no-reply@localhost"),
		Timeout:  timeout,
	}, nil
}

// buildPolicies starts from the built-in policies and applies
// RATE_LIMIT_<NAME>_REQUESTS, _WINDOW and _CAPACITY overrides.
func buildPolicies() ([]app.RateLimitPolicy, error) {
	policies := app.DefaultPolicies()
	for i, p := range policies {
		prefix := "RATE_LIMIT_" + strings.ToUpper(p.Name) + "_"

		limit, err := getInt(prefix+"REQUESTS", p.Limit)
		if err != nil {
			return nil, err
		}
		window, err := getDuration(prefix+"WINDOW", p.Interval)
		if err != nil {
			return nil, err
		}
		capacity, err := getInt(prefix+"CAPACITY", p.Capacity)
		if err != nil {
			return nil, err
		}
		if limit <= 0 || window <= 0 || capacity <= 0 {
			return nil, fmt.Errorf("invalid %s policy: requests, window and capacity must be positive", p.Name)
		}

		policies[i].Limit = limit
		policies[i].Interval = window
		policies[i].Capacity = capacity
	}
	return policies, nil
}

func buildUploadOptions() (domain.UploadOptions, domain.UploadOptions, error) {
	imageBytes, err := getInt64("UPLOAD_IMAGE_MAX_BYTES", 5<<20)
	if err != nil {
		return domain.UploadOptions{}, domain.UploadOptions{}, err
	}
	width, err := getInt("UPLOAD_IMAGE_MAX_WIDTH", 4096)
	if err != nil {
		return domain.UploadOptions{}, domain.UploadOptions{}, err
	}
	height, err := getInt("UPLOAD_IMAGE_MAX_HEIGHT", 4096)
	if err != nil {
		return domain.UploadOptions{}, domain.UploadOptions{}, err
	}
	docBytes, err := getInt64("UPLOAD_DOCUMENT_MAX_BYTES", 10<<20)
	if err != nil {
		return domain.UploadOptions{}, domain.UploadOptions{}, err
	}

	image := domain.UploadOptions{
		MaxSizeBytes:      imageBytes,
		AllowedExtensions: getList("UPLOAD_IMAGE_EXTENSIONS", []string{"png", "jpg", "gif", "webp"}),
		MaxWidth:          width,
		MaxHeight:         height,
	}
	document := domain.UploadOptions{
		MaxSizeBytes:      docBytes,
		AllowedExtensions: getList("UPLOAD_DOCUMENT_EXTENSIONS", []string{"pdf", "doc", "docx", "ppt", "pptx"}),
	}
	return image, document, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

// getDuration accepts Go durations ("90s") or a bare number of seconds.
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getList(key string, fallback []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
