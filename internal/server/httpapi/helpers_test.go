package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/revocations"
	usersrepo "github.com/dmitrijs2005/gophauth/internal/server/repositories/users"
	"github.com/dmitrijs2005/gophauth/internal/server/revocation"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memUsers struct {
	mu     sync.Mutex
	byName map[string]*models.User
	byID   map[string]*models.User
}

func newMemUsers() *memUsers {
	return &memUsers{byName: map[string]*models.User{}, byID: map[string]*models.User{}}
}

func (m *memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[u.UserName]; ok {
		return nil, common.ErrorAlreadyExists
	}
	cp := *u
	cp.ID = uuid.NewString()
	cp.IsActive = true
	m.byName[cp.UserName] = &cp
	m.byID[cp.ID] = &cp
	return &cp, nil
}

func (m *memUsers) GetUserByLogin(_ context.Context, name string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byName[name]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) id(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byName[name].ID
}

func (m *memUsers) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.IsActive = active
	return nil
}

func (m *memUsers) promote(name string, role auth.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byName[name].Role = string(role)
}

type memRepoManager struct{ users *memUsers }

func (m *memRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *memRepoManager) Users(dbx.DBTX) usersrepo.Repository          { return m.users }
func (m *memRepoManager) Revocations(dbx.DBTX) revocations.Repository  { return nil }

// brokenStore fails every call, for fail-closed checks.
type brokenStore struct{ *revocation.Memory }

func (brokenStore) IsRevoked(context.Context, string) (bool, error) {
	return false, sql.ErrConnDone
}

type apiFixture struct {
	router  http.Handler
	mock    sqlmock.Sqlmock
	users   *memUsers
	store   auth.RevocationStore
	metrics *metrics.Metrics
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	store  auth.RevocationStore
	routes func(h *Handler, g Guards) []Route
}

func withStore(s auth.RevocationStore) fixtureOption {
	return func(c *fixtureConfig) { c.store = s }
}

func withRoutes(fn func(h *Handler, g Guards) []Route) fixtureOption {
	return func(c *fixtureConfig) { c.routes = fn }
}

func newAPIFixture(t *testing.T, opts ...fixtureOption) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := fixtureConfig{store: revocation.NewMemory(), routes: Routes}
	for _, o := range opts {
		o(&cfg)
	}

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	hasher, err := cryptox.NewHasher(cryptox.Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32})
	require.NoError(t, err)

	codec, err := auth.NewHMACCodec(auth.AlgHS256, []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	validator := auth.NewValidator(codec, cfg.store, logging.Nop())
	issuer, err := auth.NewIssuer(codec, validator, cfg.store,
		auth.Lifetimes{Access: 15 * time.Minute, Refresh: 7 * 24 * time.Hour}, logging.Nop())
	require.NoError(t, err)

	users := newMemUsers()
	m := metrics.New()
	userSvc := services.NewUserService(db, &memRepoManager{users: users}, hasher, issuer, m, logging.Nop())
	adminSvc := services.NewAdminService(issuer, revocation.NewPurger(cfg.store, 0, m, logging.Nop()), logging.Nop())

	guards := Guards{
		Exact:   auth.NewGuard(auth.ExactMatch()),
		Ordered: auth.NewGuard(auth.Ordered(auth.RoleUser, auth.RoleAdmin)),
	}

	srv := NewServer(":0", cfg.routes(NewHandler(userSvc, adminSvc), guards), Deps{
		Validator: validator,
		Scope:     dbx.NewScope(db, nil),
		Metrics:   m,
		Logger:    logging.Nop(),
	})

	return &apiFixture{router: srv.Handler(), mock: mock, users: users, store: cfg.store, metrics: m}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) registerAndLogin(t *testing.T, name string, role auth.Role) TokenResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/register", "", map[string]string{"username": name, "password": "long-enough-pw"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	if role != auth.RoleUser {
		f.users.promote(name, role)
	}

	rec = f.do(t, http.MethodPost, "/login", "", map[string]string{"username": name, "password": "long-enough-pw"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var tr TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	return tr
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e
}

func doWithHeader(t *testing.T, f *apiFixture, method, path, header string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}
