// Package pool selects the next credential to try for a request, per
// spec §4.G.
package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/example/kiro-claude-bridge/internal/apierror"
	"github.com/example/kiro-claude-bridge/internal/credential"
	"github.com/example/kiro-claude-bridge/internal/store"
)

// FailureThreshold is the per-credential attempt cap of spec §4.J: a
// credential with failure_count at or above this is no longer eligible
// for selection until reset.
const FailureThreshold = 3

// disabledCooldown is how long an auto-disabled credential sits out before
// Select gives it another chance.
const disabledCooldown = 300 * time.Second

// Selector picks credentials from the store, honoring a per-request
// exclusion set so failover does not revisit an already-tried row.
type Selector struct {
	store *store.CredentialStore
}

// New builds a Selector backed by s.
func New(s *store.CredentialStore) *Selector {
	return &Selector{store: s}
}

// Select returns the lowest (priority, id) credential that is not
// disabled, not in excluded, and under the failure threshold. It reads a
// fresh snapshot from the store on every call, so admin mutations take
// effect immediately on the next selection. Before reading, it recovers
// any auto-disabled credential whose cooldown has elapsed, so a credential
// that tripped the failure threshold becomes eligible again on its own.
func (s *Selector) Select(ctx context.Context, excluded map[int64]struct{}) (*credential.Credential, error) {
	_ = s.store.RecoverExpiredDisabled(ctx, disabledCooldown)

	all, err := s.store.List(ctx)
	if err != nil {
		return nil, apierror.New(apierror.KindStoreError, "list credentials", err)
	}

	for _, c := range all {
		if _, skip := excluded[c.ID]; skip {
			continue
		}
		if c.Eligible(FailureThreshold) {
			return c, nil
		}
	}

	return nil, apierror.New(apierror.KindPoolExhausted, fmt.Sprintf("no eligible credential among %d", len(all)), nil)
}
