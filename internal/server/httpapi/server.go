// Package httpapi exposes the auth pipeline over HTTP with gin. Every
// protected route declares its guard and required role in the route table;
// the chain is Authenticate -> Authorize -> Session -> handler.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
	"github.com/gin-gonic/gin"
)

// Route is one entry of the static route table. A nil Guard marks a public
// route; public routes get no unit of work.
type Route struct {
	Method  string
	Path    string
	Guard   *auth.Guard
	Role    auth.Role
	Handler gin.HandlerFunc
}

// Guards carries the two policies the route table chooses from.
type Guards struct {
	Exact   *auth.Guard
	Ordered *auth.Guard
}

// Routes returns the route table served by the API.
func Routes(h *Handler, g Guards) []Route {
	return []Route{
		{Method: http.MethodPost, Path: "/register", Handler: h.HandleRegister},
		{Method: http.MethodPost, Path: "/login", Handler: h.HandleLogin},
		{Method: http.MethodPost, Path: "/refresh", Handler: h.HandleRefresh},
		{Method: http.MethodPost, Path: "/logout", Guard: g.Ordered, Role: auth.RoleUser, Handler: h.HandleLogout},
		{Method: http.MethodGet, Path: "/me", Guard: g.Ordered, Role: auth.RoleUser, Handler: h.HandleMe},
		{Method: http.MethodPost, Path: "/admin/revocations", Guard: g.Exact, Role: auth.RoleAdmin, Handler: h.HandleRevoke},
		{Method: http.MethodPost, Path: "/admin/revocations/purge", Guard: g.Exact, Role: auth.RoleAdmin, Handler: h.HandlePurge},
		{Method: http.MethodPut, Path: "/admin/users/:id/active", Guard: g.Exact, Role: auth.RoleAdmin, Handler: h.HandleSetActive},
	}
}

type Deps struct {
	Validator *auth.Validator
	Scope     *dbx.Scope
	Metrics   *metrics.Metrics
	Ready     func(context.Context) error
	Logger    logging.Logger
}

type Server struct {
	address string
	engine  *gin.Engine
	logger  logging.Logger
}

// NewServer builds the gin engine for routes.
func NewServer(address string, routes []Route, d Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	logger := d.Logger.With("module", "http_server")

	r := gin.New()
	r.Use(gin.Recovery(), Observe(d.Metrics))

	r.GET("/healthz", func(c *gin.Context) {
		if d.Ready != nil {
			if err := d.Ready(c.Request.Context()); err != nil {
				logger.Warn(c.Request.Context(), "readiness check failed", "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	for _, rt := range routes {
		chain := []gin.HandlerFunc{}
		if rt.Guard != nil {
			chain = append(chain, Authenticate(d.Validator, d.Metrics), Authorize(rt.Guard, rt.Role, d.Metrics))
			if d.Scope != nil {
				chain = append(chain, Session(d.Scope, logger))
			}
		}
		chain = append(chain, rt.Handler)
		r.Handle(rt.Method, rt.Path, chain...)
	}

	return &Server{address: address, engine: r, logger: logger}
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
