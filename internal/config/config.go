package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	//App
	Env string // dev / staging / prod
	//HTTP
	HTTPAddr         string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	//Auth / Security
	JWTAccessSecret  string
	JWTRefreshSecret string
	JWTActionSecret  string
	JWTIssuer        string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	BcryptCost       int
	CookieSecure     bool
	CSRFOrigins      []string

	// Infrastructure
	DBAddr          string
	DBDebug         bool
	DBMaxOpenConns  int
	DBMaxIdleConns  int
	RedisAddr       string // empty: run without redis
	RedisPassword   string
	RedisDB         int
	SessionCacheTTL time.Duration
	RabbitURL       string // empty: notifications are logged only
	RabbitExchange  string

	// One-time token flows (email verify / password reset)
	VerifyEmailBaseURL    string
	PasswordResetBaseURL  string
	VerifyEmailTokenTTL   time.Duration
	PasswordResetTokenTTL time.Duration

	VendorsActiveOnRegister bool
	SeedDevUsers            bool

	RateLimit RateLimits

	// OAuth
	FrontendOrigin     string
	AllowedRedirects   []string
	GoogleClientID     string
	GoogleClientSecret string
	OAuthCallbackURL   string
	OAuthStateTTL      time.Duration
}

// RateLimits holds the per-scope request budgets. A zero limit disables
// the scope.
type RateLimits struct {
	Window        time.Duration
	Register      int
	Login         int
	Refresh       int
	EmailRequests int // verify-email and password-reset requests
	OAuth         int
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:       getEnv("ENV", "dev"),
		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),
		JWTIssuer: getEnv("JWT_ISSUER", "storefront-auth"),
	}

	// required values
	for _, req := range []struct {
		key string
		dst *string
	}{
		{"JWT_ACCESS_SECRET", &cfg.JWTAccessSecret},
		{"JWT_REFRESH_SECRET", &cfg.JWTRefreshSecret},
		{"JWT_ACTION_SECRET", &cfg.JWTActionSecret},
		{"DB_ADDR", &cfg.DBAddr},
	} {
		*req.dst = os.Getenv(req.key)
		if *req.dst == "" {
			return nil, fmt.Errorf("missing required env var: %s", req.key)
		}
	}
	if cfg.JWTAccessSecret == cfg.JWTRefreshSecret ||
		cfg.JWTAccessSecret == cfg.JWTActionSecret ||
		cfg.JWTRefreshSecret == cfg.JWTActionSecret {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET, JWT_REFRESH_SECRET and JWT_ACTION_SECRET must all differ")
	}

	var err error
	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"ACCESS_TOKEN_TTL", 15 * time.Minute, &cfg.AccessTokenTTL},
		{"REFRESH_TOKEN_TTL", 7 * 24 * time.Hour, &cfg.RefreshTokenTTL},
		{"VERIFY_EMAIL_TOKEN_TTL", 24 * time.Hour, &cfg.VerifyEmailTokenTTL},
		{"PASSWORD_RESET_TOKEN_TTL", 30 * time.Minute, &cfg.PasswordResetTokenTTL},
		{"SESSION_CACHE_TTL", 30 * time.Second, &cfg.SessionCacheTTL},
		{"OAUTH_STATE_TTL", 10 * time.Minute, &cfg.OAuthStateTTL},
		{"RATE_LIMIT_WINDOW", time.Minute, &cfg.RateLimit.Window},
		{"HTTP_READ_TIMEOUT", 10 * time.Second, &cfg.HTTPReadTimeout},
		{"HTTP_WRITE_TIMEOUT", 30 * time.Second, &cfg.HTTPWriteTimeout},
		{"HTTP_IDLE_TIMEOUT", time.Minute, &cfg.HTTPIdleTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = getDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}
	if cfg.AccessTokenTTL >= cfg.RefreshTokenTTL {
		return nil, fmt.Errorf("ACCESS_TOKEN_TTL must be shorter than REFRESH_TOKEN_TTL")
	}

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"BCRYPT_COST", 12, &cfg.BcryptCost},
		{"REDIS_DB", 0, &cfg.RedisDB},
		{"DB_MAX_OPEN_CONNS", 20, &cfg.DBMaxOpenConns},
		{"DB_MAX_IDLE_CONNS", 10, &cfg.DBMaxIdleConns},
		{"RATE_LIMIT_REGISTER", 3, &cfg.RateLimit.Register},
		{"RATE_LIMIT_LOGIN", 5, &cfg.RateLimit.Login},
		{"RATE_LIMIT_REFRESH", 10, &cfg.RateLimit.Refresh},
		{"RATE_LIMIT_EMAIL", 3, &cfg.RateLimit.EmailRequests},
		{"RATE_LIMIT_OAUTH", 10, &cfg.RateLimit.OAuth},
	}
	for _, i := range ints {
		if *i.dst, err = getInt(i.key, i.def); err != nil {
			return nil, err
		}
	}

	isDev := cfg.Env == "dev"
	bools := []struct {
		key string
		def bool
		dst *bool
	}{
		{"DB_DEBUG", false, &cfg.DBDebug},
		{"COOKIE_SECURE", !isDev, &cfg.CookieSecure},
		{"REGISTER_VENDOR_ACTIVE", false, &cfg.VendorsActiveOnRegister},
		{"SEED_DEV_USERS", isDev, &cfg.SeedDevUsers},
	}
	for _, b := range bools {
		if *b.dst, err = getBool(b.key, b.def); err != nil {
			return nil, err
		}
	}

	// One-time token URLs; the service appends the token.
	cfg.VerifyEmailBaseURL = getEnv("VERIFY_EMAIL_BASE_URL", "http://localhost:3000/verify-email/")
	if err := checkLinkBase("VERIFY_EMAIL_BASE_URL", cfg.VerifyEmailBaseURL); err != nil {
		return nil, err
	}
	cfg.PasswordResetBaseURL = getEnv("PASSWORD_RESET_BASE_URL", "http://localhost:3000/reset-password/")
	if err := checkLinkBase("PASSWORD_RESET_BASE_URL", cfg.PasswordResetBaseURL); err != nil {
		return nil, err
	}

	// Infrastructure dependencies. Postgres is required; Redis and RabbitMQ
	// degrade to in-process fallbacks when unset.
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RabbitURL = os.Getenv("RABBIT_URL")
	cfg.RabbitExchange = getEnv("RABBIT_EXCHANGE", "storefront.events")
	if cfg.RabbitURL == "" && !isDev {
		return nil, fmt.Errorf("missing required env var: RABBIT_URL")
	}

	cfg.FrontendOrigin = getEnv("FRONTEND_ORIGIN", "http://localhost:3000")
	cfg.AllowedRedirects = getList("OAUTH_ALLOWED_REDIRECTS", []string{"/"})
	cfg.CSRFOrigins = getList("CSRF_ALLOWED_ORIGINS", []string{cfg.FrontendOrigin})
	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.OAuthCallbackURL = getEnv("OAUTH_CALLBACK_URL", "http://localhost:8080/auth/v1/oauth/google/callback")

	return cfg, nil
}

func checkLinkBase(key, v string) error {
	if !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") {
		return fmt.Errorf("%s must be an absolute http(s) URL", key)
	}
	if !strings.HasSuffix(v, "/") && !strings.HasSuffix(v, "=") {
		return fmt.Errorf("%s must end with `/` or `=` so a token can be appended", key)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid duration for %s: %q: must be positive", key, v)
	}
	return d, nil
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for %s: %q: %w", key, v, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid int for %s: %q: must not be negative", key, v)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid bool for %s: %q: %w", key, v, err)
	}
	return b, nil
}

func getList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
