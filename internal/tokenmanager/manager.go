// Package tokenmanager returns currently-valid access tokens for pool
// credentials, refreshing them through the social or IdC OAuth flow as
// needed and coordinating concurrent callers so at most one refresh is in
// flight per credential at a time, per spec §4.E and §5.
package tokenmanager

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/example/kiro-claude-bridge/internal/apierror"
	"github.com/example/kiro-claude-bridge/internal/credential"
	"github.com/example/kiro-claude-bridge/internal/store"
)

// earlyRefreshMargin is the window before expiry within which a cached
// access token is treated as no longer usable, per spec §4.E step 1.
const earlyRefreshMargin = 5 * time.Minute

// Refresher performs the actual network round-trip for one auth method.
// Implementations live in internal/kiroclient; this package only owns the
// single-flight coordination and store persistence.
type Refresher interface {
	RefreshSocial(ctx context.Context, refreshToken string) (RefreshResult, error)
	RefreshIDC(ctx context.Context, clientID, clientSecret, refreshToken string) (RefreshResult, error)
}

// RefreshResult is what a successful refresh round-trip yields.
type RefreshResult struct {
	AccessToken string
	ExpiresAt   time.Time
	ProfileARN  string // empty when the response did not carry one
}

// flight tracks one in-progress refresh so concurrent callers can await it
// instead of starting their own.
type flight struct {
	done   chan struct{}
	result RefreshResult
	err    error
}

// Manager is the in-memory single-flight registry of spec §3's "Token
// Manager state": a mapping from credential id to a refresh coordinator.
// It holds no token state of its own — the store is the source of truth.
type Manager struct {
	store     *store.CredentialStore
	refresher Refresher

	mu      sync.Mutex
	inFlight map[int64]*flight
}

// New builds a Manager backed by s for persistence and r for the actual
// OAuth round-trips.
func New(s *store.CredentialStore, r Refresher) *Manager {
	return &Manager{
		store:    s,
		refresher: r,
		inFlight: make(map[int64]*flight),
	}
}

// Token returns a currently-valid access token for cred, refreshing it
// first if necessary. On success it also updates cred in place so the
// caller's in-memory copy reflects the persisted row.
func (m *Manager) Token(ctx context.Context, cred *credential.Credential) (string, error) {
	if cred.TokenValid(time.Now(), earlyRefreshMargin) {
		return cred.AccessToken, nil
	}

	result, err := m.refresh(ctx, cred)
	if err != nil {
		return "", err
	}

	cred.AccessToken = result.AccessToken
	expiresAt := result.ExpiresAt
	cred.ExpiresAt = &expiresAt
	if result.ProfileARN != "" {
		cred.ProfileARN = result.ProfileARN
	}
	return cred.AccessToken, nil
}

// refresh joins the in-flight refresh for cred.ID if one is running, or
// starts one. Exactly one goroutine per credential performs the network
// call; all others block on the same result.
func (m *Manager) refresh(ctx context.Context, cred *credential.Credential) (RefreshResult, error) {
	m.mu.Lock()
	if f, ok := m.inFlight[cred.ID]; ok {
		m.mu.Unlock()
		return m.await(ctx, f)
	}

	f := &flight{done: make(chan struct{})}
	m.inFlight[cred.ID] = f
	m.mu.Unlock()

	go m.run(cred, f)

	return m.await(ctx, f)
}

func (m *Manager) await(ctx context.Context, f *flight) (RefreshResult, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return RefreshResult{}, ctx.Err()
	}
}

// run performs the refresh and persists the result, then wakes every
// waiter. It always runs to completion even if the caller that started it
// has since been cancelled, so other waiters are not abandoned mid-refresh.
func (m *Manager) run(cred *credential.Credential, f *flight) {
	defer func() {
		m.mu.Lock()
		delete(m.inFlight, cred.ID)
		m.mu.Unlock()
		close(f.done)
	}()

	ctx := context.Background()
	var (
		result RefreshResult
		err    error
	)

	switch {
	case cred.AuthMethod == credential.AuthMethodIDC && cred.ClientID != "" && cred.ClientSecret != "":
		result, err = m.refresher.RefreshIDC(ctx, cred.ClientID, cred.ClientSecret, cred.RefreshToken)
	default:
		result, err = m.refresher.RefreshSocial(ctx, cred.RefreshToken)
	}

	if err != nil {
		f.err = err
		log.WithError(err).WithField("credential_id", cred.ID).Warn("tokenmanager: refresh failed")
		return
	}

	if perr := m.store.UpdateTokens(ctx, cred.ID, result.AccessToken, result.ExpiresAt, result.ProfileARN); perr != nil {
		f.err = apierror.New(apierror.KindStoreError, "persist refreshed token", perr)
		return
	}

	f.result = result
}
