package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/baechuer/storefront-auth/internal/application/auth"
	"github.com/baechuer/storefront-auth/internal/audit"
	"github.com/baechuer/storefront-auth/internal/config"
	"github.com/baechuer/storefront-auth/internal/domain"
	"github.com/baechuer/storefront-auth/internal/infrastructure/db/postgres"
	"github.com/baechuer/storefront-auth/internal/infrastructure/memory"
	rabbitmq_pub "github.com/baechuer/storefront-auth/internal/infrastructure/messaging/rabbitmq"
	"github.com/baechuer/storefront-auth/internal/infrastructure/oauth"
	"github.com/baechuer/storefront-auth/internal/infrastructure/redis"
	"github.com/baechuer/storefront-auth/internal/infrastructure/security"
	"github.com/baechuer/storefront-auth/internal/logger"
	http_handlers "github.com/baechuer/storefront-auth/internal/transport/http/handlers"
	"github.com/baechuer/storefront-auth/internal/transport/http/middleware"
	"github.com/baechuer/storefront-auth/internal/transport/http/response"
	"github.com/baechuer/storefront-auth/internal/transport/http/router"
)

/*
========================
 Public entry (prod)
========================
*/

func NewServer() (*http.Server, func(), error) {
	return newServer(defaultDeps())
}

// NewServerWithDeps allows injecting dependencies for testing
func NewServerWithDeps(deps Deps) (*http.Server, func(), error) {
	return newServer(deps)
}

/*
========================
 Dependency injection
========================
*/

type Deps struct {
	LoadConfig func() (*config.Config, error)

	// OpenStore returns the credential store. Production opens Postgres.
	OpenStore func(cfg *config.Config) (Store, error)

	NewRedis func(addr, password string, db int) *redis.Client

	NewPublisher func(url, exchange string) (Publisher, error)

	NewOAuthProvider func(cfg *config.Config) auth.OAuthProvider
}

// Store is the credential store plus what readiness and shutdown need.
type Store struct {
	Users redis.SessionSource
	// Seeder receives dev fixture accounts; nil skips seeding.
	Seeder postgres.SeederRepo
	Ping   func(ctx context.Context) error
	Close  func() error
}

type Publisher interface {
	auth.EventPublisher
	Close() error
}

/*
========================
 Core bootstrap logic
========================
*/

func newServer(deps Deps) (*http.Server, func(), error) {
	// 0) config
	cfg, err := deps.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	// 1) credential store
	store, err := deps.OpenStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	var cleanupFns []func()
	if store.Close != nil {
		cleanupFns = append(cleanupFns, func() { _ = store.Close() })
	}

	// 2) redis (best-effort)
	var redisCli *redis.Client
	if cfg.RedisAddr != "" && deps.NewRedis != nil {
		c := deps.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := c.Ping(ctx)
		cancel()

		if err != nil {
			logger.Logger.Warn().Err(err).Msg("redis unavailable; cache disabled, local rate limits")
			_ = c.Close()
		} else {
			logger.Logger.Info().Msg("redis connected")
			redisCli = c
			cleanupFns = append(cleanupFns, func() { _ = c.Close() })
		}
	}

	// wrap store with the session-state cache
	var users redis.SessionSource = store.Users
	var oauthStates auth.OAuthStateStore
	if redisCli != nil {
		users = redis.NewCachedUserRepo(store.Users, redisCli, cfg.SessionCacheTTL)
		oauthStates = redis.NewOAuthStateStore(redisCli, cfg.OAuthStateTTL)
	} else {
		oauthStates = memory.NewOAuthStateStore(cfg.OAuthStateTTL)
	}

	// 3) publisher
	var pub auth.EventPublisher
	if cfg.RabbitURL == "" || deps.NewPublisher == nil {
		logger.Logger.Warn().Msg("rabbitmq not configured; using noop publisher")
		pub = memory.NewNoopPublisher()
	} else {
		p, err := deps.NewPublisher(cfg.RabbitURL, cfg.RabbitExchange)
		switch {
		case err == nil:
			pub = p
			cleanupFns = append(cleanupFns, func() { _ = p.Close() })
		case cfg.Env == "dev":
			logger.Logger.Warn().Err(err).Msg("rabbitmq unavailable; using noop publisher")
			pub = memory.NewNoopPublisher()
		default:
			runCleanup(cleanupFns)
			return nil, nil, err
		}
	}

	// 4) security
	logger.Logger.Info().Str("issuer", cfg.JWTIssuer).Msg("initializing jwt issuer")
	hasher := security.NewBcryptHasher(cfg.BcryptCost)
	issuer := security.NewJWTIssuer(security.JWTConfig{
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		ActionSecret:  cfg.JWTActionSecret,
		Issuer:        cfg.JWTIssuer,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})

	// seed (dev only)
	if cfg.SeedDevUsers && store.Seeder != nil {
		postgres.SeedUsers(context.Background(), store.Seeder, hasher, postgres.DevSeedAccounts)
	}

	// 5) service
	providers := map[domain.OAuthProvider]auth.OAuthProvider{}
	if deps.NewOAuthProvider != nil {
		providers[domain.OAuthProviderGoogle] = deps.NewOAuthProvider(cfg)
	}

	auditLog := audit.New(logger.Logger)
	authSvc := auth.NewService(users, hasher, issuer, issuer, pub, auth.Config{
		AccessTTL:               cfg.AccessTokenTTL,
		VerifyEmailBaseURL:      cfg.VerifyEmailBaseURL,
		PasswordResetBaseURL:    cfg.PasswordResetBaseURL,
		VerifyEmailTokenTTL:     cfg.VerifyEmailTokenTTL,
		PasswordResetTokenTTL:   cfg.PasswordResetTokenTTL,
		VendorsActiveOnRegister: cfg.VendorsActiveOnRegister,
	}).
		WithAudit(auditLog.Record).
		WithOAuth(oauthStates, providers)

	// 6) handlers + middleware
	authH := http_handlers.NewAuthHandler(authSvc, cfg.RefreshTokenTTL, cfg.CookieSecure)
	oauthH := http_handlers.NewOAuthHandler(http_handlers.OAuthHandlerConfig{
		Service:          authSvc,
		FrontendOrigin:   cfg.FrontendOrigin,
		AllowedRedirects: cfg.AllowedRedirects,
		RefreshTTL:       cfg.RefreshTokenTTL,
		IsSecure:         cfg.CookieSecure,
	})

	var redisPing http_handlers.Pinger
	if redisCli != nil {
		redisPing = redisCli.Ping
	}
	healthH := http_handlers.NewHealthHandler(store.Ping, redisPing)

	// nil client: every scope uses the in-process limiter
	limiter := redis.NewFixedWindowLimiter(redisCli)
	limits := map[string]int{
		"register":       cfg.RateLimit.Register,
		"login":          cfg.RateLimit.Login,
		"refresh":        cfg.RateLimit.Refresh,
		"verify_email":   cfg.RateLimit.EmailRequests,
		"password_reset": cfg.RateLimit.EmailRequests,
		"oauth":          cfg.RateLimit.OAuth,
	}
	rl := func(scope string) router.Middleware {
		return middleware.RateLimit(limiter, middleware.RateLimitConfig{
			Scope:  scope,
			Limit:  limits[scope],
			Window: cfg.RateLimit.Window,
		}, response.WriteError)
	}

	// 7) router
	mux, err := router.New(router.Deps{
		Health: healthH,
		Auth:   authH,
		OAuth:  oauthH,
		AuthMW: middleware.Auth(issuer, users, response.WriteError),
		Require: func(a domain.Action) router.Middleware {
			return middleware.Require(a, response.WriteError)
		},
		RateLimit: rl,
		CSRF:      middleware.CSRFProtection(cfg.CSRFOrigins, response.WriteError),
		Metrics:   router.MetricsHandler(),
	})
	if err != nil {
		runCleanup(cleanupFns)
		return nil, nil, err
	}

	// 8) server
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	cleanup := func() {
		runCleanup(cleanupFns)
	}

	return srv, cleanup, nil
}

/*
========================
 Default deps (prod)
========================
*/

func defaultDeps() Deps {
	return Deps{
		LoadConfig: config.Load,
		OpenStore:  openPostgres,
		NewRedis:   redis.New,
		NewPublisher: func(url, exchange string) (Publisher, error) {
			return rabbitmq_pub.NewPublisher(url, exchange)
		},
		NewOAuthProvider: func(cfg *config.Config) auth.OAuthProvider {
			return oauth.NewGoogleClient(oauth.GoogleConfig{
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				RedirectURI:  cfg.OAuthCallbackURL,
			})
		},
	}
}

func openPostgres(cfg *config.Config) (Store, error) {
	db, err := config.NewDB(config.DBOptionsFrom(cfg))
	if err != nil {
		return Store{}, err
	}
	return postgresStore(db)
}

func postgresStore(db *sql.DB) (Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return Store{}, fmt.Errorf("bootstrap: ensure schema: %w", err)
	}

	repo := postgres.NewUserRepo(db)
	return Store{
		Users:  repo,
		Seeder: repo,
		Ping:   db.PingContext,
		Close:  db.Close,
	}, nil
}

/*
========================
 helpers
========================
*/

func runCleanup(fns []func()) {
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}
