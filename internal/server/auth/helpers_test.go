package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// fakeStore is an in-memory RevocationStore with failure injection.
type fakeStore struct {
	mu          sync.Mutex
	entries     map[string]Reason
	revokeErr   error
	checkErr    error
	afterRevoke func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: map[string]Reason{}}
}

func (f *fakeStore) Revoke(_ context.Context, jti string, reason Reason, _ time.Time) (bool, error) {
	f.mu.Lock()
	if f.revokeErr != nil {
		f.mu.Unlock()
		return false, f.revokeErr
	}
	_, exists := f.entries[jti]
	if !exists {
		f.entries[jti] = reason
	}
	hook := f.afterRevoke
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return !exists, nil
}

func (f *fakeStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkErr != nil {
		return false, f.checkErr
	}
	_, ok := f.entries[jti]
	return ok, nil
}

func (f *fakeStore) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeStore) reason(jti string) (Reason, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.entries[jti]
	return r, ok
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	clock     *clock
	store     *fakeStore
	codec     *Codec
	validator *Validator
	issuer    *Issuer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := newClock()
	store := newFakeStore()

	codec, err := NewHMACCodec(AlgHS256, testSecret, WithClock(clk.Now))
	require.NoError(t, err)

	validator := NewValidator(codec, store, logging.Nop())
	issuer, err := NewIssuer(codec, validator, store, Lifetimes{Access: 15 * time.Minute, Refresh: 7 * 24 * time.Hour}, logging.Nop())
	require.NoError(t, err)

	return &fixture{clock: clk, store: store, codec: codec, validator: validator, issuer: issuer}
}
