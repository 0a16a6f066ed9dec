// Package server wires configuration, storage, the token pipeline and both
// transports together and runs them until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/httpapi"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/revocation"
	"github.com/dmitrijs2005/gophauth/internal/server/services"

	gs "github.com/dmitrijs2005/gophauth/internal/server/grpc"
	"google.golang.org/grpc"
)

const (
	dbConnectAttempts = 5
	dbConnectBackoff  = 500 * time.Millisecond
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	backend    *revocation.Backend
	httpServer *httpapi.Server
	grpcServer *gs.GRPCServer
	purger     *revocation.Purger
}

// openDatabase opens the pgx pool and waits for it to answer, retrying
// with exponential backoff.
func openDatabase(ctx context.Context, dsn string, l logging.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	b := retry.WithMaxRetries(dbConnectAttempts, retry.NewExponential(dbConnectBackoff))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			l.Warn(ctx, "database not ready", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

// guards builds the two policies offered to the route tables. An empty
// role table makes the ordered policy behave like exact match.
func guards(table []string) (exact, ordered *auth.Guard) {
	roles := make([]auth.Role, len(table))
	for i, r := range table {
		roles[i] = auth.Role(r)
	}
	return auth.NewGuard(auth.ExactMatch()), auth.NewGuard(auth.Ordered(roles...))
}

// newCodec builds the token codec from the key settings of c.
func newCodec(c *config.Config) (*auth.Codec, error) {
	codec, err := auth.LoadCodec(c.Algorithm, auth.KeySource{
		Secret:         c.SigningKey,
		PrivateKeyFile: c.PrivateKeyFile,
		PublicKeyFile:  c.PublicKeyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("signing key error: %w", err)
	}
	return codec, nil
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	codec, err := newCodec(c)
	if err != nil {
		return nil, err
	}

	db, err := openDatabase(ctx, c.DatabaseDSN, logger)
	if err != nil {
		return nil, err
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	backend, err := revocation.Open(c.RevocationStoreEndpoint, revocation.Options{
		DB:        db,
		Staleness: c.RevocationCacheStaleness,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("revocation store error: %w", err)
	}
	if backend.Kind == "memory" {
		logger.Warn(ctx, "memory revocation store is process local; do not run more than one replica")
	}

	mt := metrics.New()

	validator := auth.NewValidator(codec, backend.Store, logger)
	issuer, err := auth.NewIssuer(codec, validator, backend.Store, auth.Lifetimes{
		Access:  c.AccessTokenTTL,
		Refresh: c.RefreshTokenTTL,
	}, logger)
	if err != nil {
		_ = backend.Close()
		_ = db.Close()
		return nil, err
	}

	hasher, err := cryptox.NewHasher(cryptox.DefaultParams)
	if err != nil {
		_ = backend.Close()
		_ = db.Close()
		return nil, err
	}

	purger := revocation.NewPurger(backend.Store, c.PurgeInterval, mt, logger)
	userService := services.NewUserService(db, rm, hasher, issuer, mt, logger)
	adminService := services.NewAdminService(issuer, purger, logger)

	exact, ordered := guards(c.RolePolicyTable)
	scope := dbx.NewScope(db, nil)

	ready := func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if err := backend.Ping(ctx); err != nil {
			return fmt.Errorf("revocation store: %w", err)
		}
		return nil
	}

	routes := httpapi.Routes(httpapi.NewHandler(userService, adminService), httpapi.Guards{Exact: exact, Ordered: ordered})
	httpServer := httpapi.NewServer(c.HTTPAddr, routes, httpapi.Deps{
		Validator: validator,
		Scope:     scope,
		Metrics:   mt,
		Ready:     ready,
		Logger:    logger,
	})

	authHandler := gs.NewAuthHandler(userService, logger)
	grpcServer := gs.NewGRPCServer(c.GRPCAddr, gs.Deps{
		Validator: validator,
		Rules:     gs.AuthServiceRules(),
		Fallback:  gs.MethodRule{Guard: ordered, Role: auth.RoleUser},
		Scope:     scope,
		Metrics:   mt,
		Logger:    logger,
		Register:  func(s *grpc.Server) { gs.RegisterAuthService(s, authHandler) },
	})

	return &App{
		config:     c,
		logger:     logger,
		db:         db,
		backend:    backend,
		httpServer: httpServer,
		grpcServer: grpcServer,
		purger:     purger,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

type runner interface {
	Run(ctx context.Context) error
}

func (app *App) start(ctx context.Context, cancelFunc context.CancelFunc, name string, r runner) {
	if err := r.Run(ctx); err != nil {
		app.logger.Error(ctx, "server failed", "server", name, "error", err)
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...",
		"algorithm", app.config.Algorithm,
		"revocation_store", app.backend.Kind,
		"access_ttl", app.config.AccessTokenTTL.String(),
		"refresh_ttl", app.config.RefreshTokenTTL.String())

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.start(ctx, cancelFunc, "http", app.httpServer)
	}()
	go func() {
		defer wg.Done()
		app.start(ctx, cancelFunc, "grpc", app.grpcServer)
	}()
	go func() {
		defer wg.Done()
		app.purger.Run(ctx)
	}()

	wg.Wait()

	if err := app.close(); err != nil {
		app.logger.Error(context.Background(), "shutdown error", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}

func (app *App) close() error {
	return errors.Join(app.backend.Close(), app.db.Close())
}
