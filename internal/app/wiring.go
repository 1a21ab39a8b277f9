package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/taskman/internal/auth"
	"github.com/hitoshi/taskman/internal/config"
	"github.com/hitoshi/taskman/internal/database"
	"github.com/hitoshi/taskman/internal/handler"
	"github.com/hitoshi/taskman/internal/metrics"
	"github.com/hitoshi/taskman/internal/middleware"
	"github.com/hitoshi/taskman/internal/repository"
	"github.com/hitoshi/taskman/internal/security"
	"github.com/hitoshi/taskman/internal/task"
	"github.com/hitoshi/taskman/internal/user"
)

// components はserveとworkerが共有する依存関係。
type components struct {
	cfg    *config.Config
	db     *sql.DB
	driver database.Driver
	redis  *redis.Client

	registry  *prometheus.Registry
	collector *metrics.Collector

	sessionRepo repository.SessionRepository
	authService *auth.Service
	taskService *task.Service
	userService *user.Service
	rateLimiter *middleware.RateLimiter
}

// newComponents はDB接続とセッションストアを開き、サービスを組み立てる。
// SQLiteの場合は起動時にマイグレーションを適用する。
func newComponents(ctx context.Context, cfg *config.Config) (_ *components, err error) {
	driver, err := database.ParseDriver(cfg.DatabaseDriver)
	if err != nil {
		return nil, err
	}

	c := &components{cfg: cfg, driver: driver}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	// 1. DB接続
	c.db, err = database.Open(driver, cfg.DatabaseDSN())
	if err != nil {
		return nil, err
	}
	if err := database.Ping(ctx, c.db); err != nil {
		return nil, err
	}
	slog.Info("database connection established", slog.String("driver", string(driver)))

	if driver.IsSQLite() {
		if err := database.RunMigrations(c.db, driver, ""); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}

	// 2. メトリクス
	c.registry = prometheus.NewRegistry()
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.collector = metrics.NewCollector(c.registry)

	// 3. リポジトリの初期化
	userRepo := repository.NewSQLUserRepo(c.db)
	taskRepo := repository.NewSQLTaskRepo(c.db, driver)
	c.sessionRepo, err = c.openSessionRepo(ctx)
	if err != nil {
		return nil, err
	}

	// 4. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	providerClient := &http.Client{Timeout: cfg.IdPTimeout}
	if cfg.IdPSSRFGuard {
		providerClient = ssrfGuard.NewSafeClient(cfg.IdPTimeout)
	}

	// 5. ドメインサービスの初期化
	provider := auth.NewHTTPIdentityProvider(providerClient, auth.HTTPProviderConfig{
		SessionDataURL:  cfg.IdPSessionDataURL,
		MaxResponseSize: cfg.IdPMaxResponseSize,
		BreakerFailures: cfg.IdPBreakerFailures,
		BreakerTimeout:  cfg.IdPBreakerTimeout,
	}, c.collector)

	c.authService = auth.NewService(provider, userRepo, c.sessionRepo, auth.ServiceConfig{
		SessionMaxAge:     cfg.SessionMaxAge,
		SlidingExpiration: cfg.SessionSlidingExpiration,
		ExchangeClaimTTL:  cfg.ExchangeClaimTTL,
	}, auth.WithMetrics(c.collector), auth.WithURLValidator(ssrfGuard))

	c.taskService = task.NewService(taskRepo, c.collector)
	c.userService = user.NewService(userRepo, c.sessionRepo, taskRepo)

	return c, nil
}

// openSessionRepo はSESSION_STOREに応じたセッションリポジトリを返す。
func (c *components) openSessionRepo(ctx context.Context) (repository.SessionRepository, error) {
	if c.cfg.SessionStore != "redis" {
		return repository.NewSQLSessionRepo(c.db), nil
	}

	opts, err := redis.ParseURL(c.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	c.redis = redis.NewClient(opts)
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.Info("redis connection established")

	return repository.NewRedisSessionRepo(c.redis), nil
}

// Router はAPIサーバーのhttp.Handlerを組み立てる。
func (c *components) Router() http.Handler {
	c.rateLimiter = middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(c.cfg.RateLimitGeneral, c.cfg.RateLimitExchange),
	)

	return handler.NewRouter(&handler.RouterDeps{
		Authenticator:     c.authService,
		CORSAllowedOrigin: c.cfg.CORSAllowedOrigin,
		RateLimiter:       c.rateLimiter,
		CSRFEnabled:       c.cfg.CSRFEnabled,
		TrustProxyHeaders: c.cfg.TrustProxyHeaders,
		Cookie: handler.CookieConfig{
			Domain:   c.cfg.CookieDomain,
			Secure:   c.cfg.CookieSecure,
			SameSite: c.cfg.CookieSameSite,
		},
		Logger:         slog.Default(),
		Metrics:        c.collector,
		MetricsHandler: metrics.Handler(c.registry),
		HealthChecker:  c.db,
		AuthService:    c.authService,
		TaskService:    c.taskService,
		UserService:    c.userService,
	})
}

// Close は開いている接続とバックグラウンド処理を閉じる。
func (c *components) Close() {
	if c.rateLimiter != nil {
		c.rateLimiter.Stop()
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			slog.Warn("failed to close redis client", slog.String("error", err.Error()))
		}
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			slog.Warn("failed to close database", slog.String("error", err.Error()))
		}
	}
}
