package tokenmanager

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/kiro-claude-bridge/internal/credential"
	"github.com/example/kiro-claude-bridge/internal/store"
)

type countingRefresher struct {
	calls   int32
	release chan struct{}
}

func newCountingRefresher() *countingRefresher {
	return &countingRefresher{release: make(chan struct{})}
}

func (r *countingRefresher) RefreshSocial(ctx context.Context, refreshToken string) (RefreshResult, error) {
	atomic.AddInt32(&r.calls, 1)
	<-r.release
	return RefreshResult{AccessToken: "fresh-access", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (r *countingRefresher) RefreshIDC(ctx context.Context, clientID, clientSecret, refreshToken string) (RefreshResult, error) {
	atomic.AddInt32(&r.calls, 1)
	<-r.release
	return RefreshResult{AccessToken: "fresh-idc-access", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func openTestStore(t *testing.T) *store.CredentialStore {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "credentials.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTokenReturnsCachedAccessTokenWithoutRefresh(t *testing.T) {
	s := openTestStore(t)
	r := newCountingRefresher()
	m := New(s, r)

	expires := time.Now().Add(time.Hour)
	cred := &credential.Credential{ID: 1, AccessToken: "still-good", ExpiresAt: &expires, AuthMethod: credential.AuthMethodSocial}

	token, err := m.Token(context.Background(), cred)
	require.NoError(t, err)
	require.Equal(t, "still-good", token)
	require.Zero(t, atomic.LoadInt32(&r.calls))
}

func TestTokenRefreshesWhenWithinEarlyMargin(t *testing.T) {
	s := openTestStore(t)
	r := newCountingRefresher()
	m := New(s, r)

	id, err := s.Insert(context.Background(), &credential.Credential{
		RefreshToken: "rt", AuthMethod: credential.AuthMethodSocial,
	})
	require.NoError(t, err)

	nearExpiry := time.Now().Add(2 * time.Minute)
	cred := &credential.Credential{ID: id, AccessToken: "stale", ExpiresAt: &nearExpiry, AuthMethod: credential.AuthMethodSocial, RefreshToken: "rt"}

	close(r.release)
	token, err := m.Token(context.Background(), cred)
	require.NoError(t, err)
	require.Equal(t, "fresh-access", token)
	require.Equal(t, int32(1), atomic.LoadInt32(&r.calls))

	persisted, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "fresh-access", persisted.AccessToken)
}

func TestConcurrentCallersShareOneRefresh(t *testing.T) {
	s := openTestStore(t)
	r := newCountingRefresher()
	m := New(s, r)

	id, err := s.Insert(context.Background(), &credential.Credential{
		RefreshToken: "rt", AuthMethod: credential.AuthMethodSocial,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cred := &credential.Credential{ID: id, AuthMethod: credential.AuthMethodSocial, RefreshToken: "rt"}
			token, err := m.Token(context.Background(), cred)
			require.NoError(t, err)
			results[i] = token
		}(i)
	}

	time.Sleep(50 * time.Millisecond) // let every caller join the same flight
	close(r.release)
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&r.calls))
	for _, got := range results {
		require.Equal(t, "fresh-access", got)
	}
}

func TestIDCCredentialUsesIDCRefresh(t *testing.T) {
	s := openTestStore(t)
	r := newCountingRefresher()
	m := New(s, r)

	id, err := s.Insert(context.Background(), &credential.Credential{
		RefreshToken: "rt", AuthMethod: credential.AuthMethodIDC, ClientID: "client", ClientSecret: "secret",
	})
	require.NoError(t, err)

	nearExpiry := time.Now().Add(time.Minute)
	cred := &credential.Credential{
		ID: id, AccessToken: "stale", ExpiresAt: &nearExpiry,
		AuthMethod: credential.AuthMethodIDC, ClientID: "client", ClientSecret: "secret", RefreshToken: "rt",
	}

	close(r.release)
	token, err := m.Token(context.Background(), cred)
	require.NoError(t, err)
	require.Equal(t, "fresh-idc-access", token)
}
