package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

var errHandlerFailed = errors.New("handler reported failure")

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(c *gin.Context) (string, error) {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	if h == "" {
		return "", common.ErrorMissingToken
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, common.BearerScheme) || strings.TrimSpace(token) == "" {
		return "", common.ErrorInvalidAuthHeaderFormat
	}
	return strings.TrimSpace(token), nil
}

// Authenticate validates the bearer access token and stores the Principal
// in the request context.
func Authenticate(v *auth.Validator, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := bearerToken(c)
		if err != nil {
			m.ObserveAuthFailure("http", writeError(c, err))
			return
		}

		p, err := v.Validate(c.Request.Context(), raw, auth.KindAccess)
		if err != nil {
			m.ObserveAuthFailure("http", writeError(c, err))
			return
		}

		c.Set(principalKey, p)
		c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

// Authorize enforces role through g. It must run after Authenticate.
func Authorize(g *auth.Guard, role auth.Role, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := auth.PrincipalFromContext(c.Request.Context())
		if !ok {
			m.ObserveAuthFailure("http", writeError(c, common.ErrorMissingToken))
			return
		}
		if err := g.Authorize(p, role); err != nil {
			m.ObserveAuthFailure("http", writeError(c, err))
			return
		}
		c.Next()
	}
}

// Session opens one unit of work per request and closes it exactly once
// after the handler: committed on a 2xx/3xx response without gin errors,
// rolled back otherwise, on panic, or when the client went away. The
// handler's response is held back until the unit of work is closed, so a
// failed commit turns into a 500 instead of a success the client would
// wrongly trust.
func Session(scope *dbx.Scope, l logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		sess, err := scope.Open(ctx)
		if err != nil {
			l.Error(ctx, "open unit of work failed", "error", err)
			writeError(c, err)
			return
		}

		out := c.Writer
		buf := newBufferedWriter(out)
		c.Writer = buf

		defer func() {
			c.Writer = out

			if r := recover(); r != nil {
				_ = sess.Close(fmt.Errorf("panic: %v", r))
				panic(r)
			}

			var outcome error
			switch {
			case len(c.Errors) > 0:
				outcome = c.Errors.Last().Err
			case buf.Status() >= http.StatusBadRequest:
				outcome = fmt.Errorf("%w: status %d", errHandlerFailed, buf.Status())
			}

			if err := sess.Close(outcome); err != nil && outcome == nil {
				l.Error(ctx, "unit of work did not commit", "path", c.FullPath(), "error", err)
				out.Header().Del("Set-Cookie")
				writeError(c, err)
				return
			}
			buf.flush()
		}()

		c.Request = c.Request.WithContext(dbx.WithSession(ctx, sess))
		c.Next()
	}
}

// bufferedWriter keeps status and body in memory until flush. Headers go
// straight to the wrapped writer's header map.
type bufferedWriter struct {
	gin.ResponseWriter
	status  int
	written bool
	body    bytes.Buffer
}

func newBufferedWriter(w gin.ResponseWriter) *bufferedWriter {
	return &bufferedWriter{ResponseWriter: w, status: w.Status()}
}

func (w *bufferedWriter) WriteHeader(code int) {
	if code > 0 && !w.written {
		w.status = code
	}
}

func (w *bufferedWriter) WriteHeaderNow() { w.written = true }

func (w *bufferedWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.body.Write(b)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	w.written = true
	return w.body.WriteString(s)
}

func (w *bufferedWriter) Status() int   { return w.status }
func (w *bufferedWriter) Written() bool { return w.written }
func (w *bufferedWriter) Flush()        {}

func (w *bufferedWriter) Size() int {
	if !w.written {
		return -1
	}
	return w.body.Len()
}

func (w *bufferedWriter) flush() {
	w.ResponseWriter.WriteHeader(w.status)
	if w.body.Len() > 0 {
		_, _ = w.ResponseWriter.Write(w.body.Bytes())
	}
}

// Observe counts every request by route and status.
func Observe(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveRequest("http", route, strconv.Itoa(c.Writer.Status()))
	}
}

func principal(c *gin.Context) (auth.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return auth.Principal{}, false
	}
	p, ok := v.(auth.Principal)
	return p, ok
}
