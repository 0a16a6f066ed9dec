package revocation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/revocations"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// EndpointDatabase selects the revoked_tokens table on the main database.
const EndpointDatabase = "database"

var ErrUnsupportedEndpoint = errors.New("unsupported revocation store endpoint")

// Backend is an opened store together with what is needed to ping and
// release it.
type Backend struct {
	Store  auth.RevocationStore
	Kind   string
	ping   func(context.Context) error
	closer func() error
}

func (b *Backend) Ping(ctx context.Context) error {
	if b.ping == nil {
		return nil
	}
	return b.ping(ctx)
}

func (b *Backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer()
}

// Options carries what Open may need besides the endpoint.
type Options struct {
	// DB is the main database pool, used by the "database" endpoint.
	DB *sql.DB
	// Staleness enables the read-through cache when positive.
	Staleness time.Duration
}

// Open chooses the backend from the endpoint scheme.
func Open(endpoint string, opts Options) (*Backend, error) {
	b, err := open(endpoint, opts)
	if err != nil {
		return nil, err
	}
	if opts.Staleness > 0 {
		b.Store = NewCache(b.Store, opts.Staleness)
	}
	return b, nil
}

func open(endpoint string, opts Options) (*Backend, error) {
	if endpoint == "" || endpoint == EndpointDatabase {
		if opts.DB == nil {
			return nil, fmt.Errorf("%w: %q needs a database pool", ErrUnsupportedEndpoint, EndpointDatabase)
		}
		return &Backend{
			Store: revocations.NewPostgresRepository(opts.DB),
			Kind:  "postgres",
			ping:  opts.DB.PingContext,
		}, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse revocation store endpoint: %w", err)
	}

	switch u.Scheme {
	case "postgres", "postgresql":
		db, err := sql.Open("pgx", endpoint)
		if err != nil {
			return nil, fmt.Errorf("open revocation database: %w", err)
		}
		return &Backend{
			Store:  revocations.NewPostgresRepository(db),
			Kind:   "postgres",
			ping:   db.PingContext,
			closer: db.Close,
		}, nil
	case "redis", "rediss":
		store, client, err := NewRedisFromURL(endpoint)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Store:  store,
			Kind:   "redis",
			ping:   store.Ping,
			closer: client.Close,
		}, nil
	case "memory":
		return &Backend{Store: NewMemory(), Kind: "memory"}, nil
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedEndpoint, u.Scheme)
	}
}
