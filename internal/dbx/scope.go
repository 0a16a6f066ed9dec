package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// ErrSessionClosed is returned by Session.Tx after Close.
var ErrSessionClosed = errors.New("session already closed")

// Scope opens one unit of work per request.
type Scope struct {
	db   TxBeginner
	opts *sql.TxOptions
}

func NewScope(db TxBeginner, opts *sql.TxOptions) *Scope {
	return &Scope{db: db, opts: opts}
}

// Session is a single transaction bound to one request. It must not be
// shared between requests. Close runs exactly once; later calls return the
// result of the first one.
type Session struct {
	ctx  context.Context
	tx   *sql.Tx
	once sync.Once
	mu   sync.Mutex
	done bool
	err  error
}

// Open begins the transaction. The caller owns the returned Session and
// must Close it on every exit path.
func (s *Scope) Open(ctx context.Context) (*Session, error) {
	tx, err := s.db.BeginTx(ctx, s.opts)
	if err != nil {
		return nil, fmt.Errorf("begin unit of work: %w", err)
	}
	return &Session{ctx: ctx, tx: tx}, nil
}

// Tx returns the transactional handle, or ErrSessionClosed once the session
// has been released.
func (s *Session) Tx() (DBTX, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil, ErrSessionClosed
	}
	return s.tx, nil
}

// Close commits when outcome is nil and the request context is still live,
// otherwise it rolls back.
func (s *Session) Close(outcome error) error {
	s.once.Do(func() {
		s.mu.Lock()
		s.done = true
		s.mu.Unlock()

		cancelled := outcome == nil && s.ctx.Err() != nil
		if outcome != nil || cancelled {
			// A cancelled context makes database/sql roll back on its own.
			if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				s.err = fmt.Errorf("rollback: %w", err)
			}
			if cancelled && s.err == nil {
				s.err = fmt.Errorf("unit of work rolled back: %w", s.ctx.Err())
			}
			return
		}
		if err := s.tx.Commit(); err != nil {
			s.err = fmt.Errorf("commit: %w", err)
		}
	})
	return s.err
}

// Run opens a session, calls fn and closes the session with fn's outcome.
// A panic in fn rolls back and is rethrown.
func (s *Scope) Run(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) (err error) {
	session, err := s.Open(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = session.Close(fmt.Errorf("panic: %v", p))
			panic(p)
		}
		if closeErr := session.Close(err); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	ctx = WithSession(ctx, session)
	return fn(ctx, session.tx)
}

type sessionKey struct{}

// WithSession stores s in ctx so handlers can reach the unit of work.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the Session stored by WithSession.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok
}
