// Package server wires configuration, storage and services together and runs
// the HTTP and gRPC transports with a background session sweeper until the
// process is signalled.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/taskauth/internal/cryptox"
	"github.com/dmitrijs2005/taskauth/internal/logging"
	"github.com/dmitrijs2005/taskauth/internal/server/auth"
	"github.com/dmitrijs2005/taskauth/internal/server/cache"
	"github.com/dmitrijs2005/taskauth/internal/server/config"
	"github.com/dmitrijs2005/taskauth/internal/server/httpapi"
	"github.com/dmitrijs2005/taskauth/internal/server/lockout"
	"github.com/dmitrijs2005/taskauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/taskauth/internal/server/services"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/taskauth/internal/server/grpc"
)

// Services are the long-lived components shared by the server and the
// operator CLI.
type Services struct {
	DB       *sql.DB
	Redis    *redis.Client
	Sessions *services.SessionRegistry
	Auth     *services.AuthService
}

// Close releases the database and Redis connections.
func (s *Services) Close() error {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	return s.DB.Close()
}

// LockoutPolicy builds the lockout policy from c.
func LockoutPolicy(c *config.Config) lockout.Policy {
	return lockout.Policy{
		Window:           c.LockoutWindow,
		AttemptsPerLevel: c.AttemptsPerLevel,
		FirstLockout:     c.FirstLockout,
		SecondLockout:    c.SecondLockout,
	}
}

// OpenServices connects to PostgreSQL (and Redis when configured), applies
// migrations and builds the services.
func OpenServices(ctx context.Context, c *config.Config, logger logging.Logger) (*Services, error) {
	envelope, err := cryptox.NewEnvelope(c.EnvelopeSecret)
	if err != nil {
		return nil, fmt.Errorf("envelope init error: %w", err)
	}
	hasher, err := cryptox.NewPasswordHasher(c.PasswordAlgorithm, c.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("password hasher init error: %w", err)
	}
	issuer, err := auth.NewTokenIssuer(c.SigningSecret, c.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("token issuer init error: %w", err)
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	s := &Services{DB: db}

	var sessionCache services.SessionCache
	if c.RedisURL != "" {
		rdb, err := cache.NewClient(c.RedisURL)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("redis init error: %w", err)
		}
		sc := cache.NewSessionCache(rdb, cache.DefaultPrefix, c.TokenTTL)
		if err := sc.Ping(ctx); err != nil {
			logger.Warn(ctx, "redis unreachable at startup, logouts fail until it recovers", "error", err)
		}
		s.Redis = rdb
		sessionCache = sc
	}

	s.Sessions = services.NewSessionRegistry(db, rm, sessionCache, logger)
	s.Auth = services.NewAuthService(db, rm, services.AuthDeps{
		Envelope:                envelope,
		Hasher:                  hasher,
		Issuer:                  issuer,
		Sessions:                s.Sessions,
		Policy:                  LockoutPolicy(c),
		Logger:                  logger,
		ExposeAttemptsRemaining: c.ExposeAttemptsRemaining,
	})
	return s, nil
}

type App struct {
	config   *config.Config
	logger   logging.Logger
	services *Services
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.New(c.LogBackend, c.LogFormat, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	s, err := OpenServices(ctx, c, logger)
	if err != nil {
		return nil, err
	}

	if c.AdminUsername != "" {
		created, err := s.Auth.EnsureAdmin(ctx, c.AdminUsername, c.AdminPassword)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("admin bootstrap error: %w", err)
		}
		if created {
			logger.Info(ctx, "Admin account created", "username", c.AdminUsername)
		}
	}

	return &App{config: c, logger: logger, services: s}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewServer(app.config.GRPCAddr, app.services.Auth, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "gRPC server failed", "error", err)
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	h := httpapi.NewHandler(app.services.Auth, app.logger)
	router := httpapi.NewRouter(h, httpapi.RouterOptions{
		AllowedOrigins: app.config.CORSAllowedOrigins,
		RequestTimeout: app.config.RequestTimeout,
	}, app.logger)

	s := httpapi.NewServer(app.config.HTTPAddr, router, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "HTTP server failed", "error", err)
		cancelFunc()
	}
}

// startSessionSweeper deactivates expired sessions every interval until ctx
// is done.
func (app *App) startSessionSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := app.services.Sessions.SweepExpired(ctx); err != nil {
				app.logger.Warn(ctx, "session sweep failed", "error", err)
			}
		}
	}
}

// Run serves until a termination signal arrives or a transport fails, then
// waits for every component to stop.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startSessionSweeper(ctx, app.config.SessionSweepInterval)
	}()

	wg.Wait()

	if err := app.services.Close(); err != nil {
		app.logger.Error(context.Background(), "close error", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}
