package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/kiro-claude-bridge/internal/credential"
)

func openTestStore(t *testing.T) *CredentialStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "credentials.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c := &credential.Credential{
		RefreshToken: "rt-1",
		AuthMethod:   credential.AuthMethodSocial,
		Priority:     5,
	}
	id, err := s.Insert(ctx, c)
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Len(t, c.MachineID, 64)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "rt-1", got.RefreshToken)
	assert.Equal(t, credential.AuthMethodSocial, got.AuthMethod)
	assert.Equal(t, 5, got.Priority)
	assert.False(t, got.Disabled)
}

func TestInsertRejectsInvalidIDC(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Insert(context.Background(), &credential.Credential{
		RefreshToken: "rt-2",
		AuthMethod:   credential.AuthMethodIDC,
	})
	assert.ErrorIs(t, err, credential.ErrInvalidIDC)
}

func TestListOrdersByPriorityThenID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var ids []int64
	for _, p := range []int{2, 0, 1, 0} {
		id, err := s.Insert(ctx, &credential.Credential{
			RefreshToken: "rt",
			AuthMethod:   credential.AuthMethodSocial,
			Priority:     p,
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 4)

	// priority 0 entries (ids[1], ids[3]) come first, ordered by id; then
	// priority 1 (ids[2]); then priority 2 (ids[0]).
	assert.Equal(t, []int64{ids[1], ids[3], ids[2], ids[0]}, []int64{
		list[0].ID, list[1].ID, list[2].ID, list[3].ID,
	})
}

func TestUpdateTokensPreservesProfileARNWhenEmpty(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, &credential.Credential{
		RefreshToken: "rt",
		AuthMethod:   credential.AuthMethodSocial,
		ProfileARN:   "arn:original",
	})
	require.NoError(t, err)

	expires := time.Now().Add(time.Hour).UTC()
	require.NoError(t, s.UpdateTokens(ctx, id, "new-access", expires, ""))

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "new-access", got.AccessToken)
	assert.Equal(t, "arn:original", got.ProfileARN)
	require.NotNil(t, got.ExpiresAt)
	assert.WithinDuration(t, expires, *got.ExpiresAt, time.Second)
}

func TestFailureCounterLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, &credential.Credential{RefreshToken: "rt", AuthMethod: credential.AuthMethodSocial})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.IncrementFailure(ctx, id))
	}
	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, got.FailureCount)
	assert.False(t, got.Eligible(3))
	assert.True(t, got.Eligible(4))

	require.NoError(t, s.ResetFailure(ctx, id))
	got, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, got.FailureCount)
}

func TestIncrementFailureAutoDisablesAtThreshold(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, &credential.Credential{RefreshToken: "rt", AuthMethod: credential.AuthMethodSocial})
	require.NoError(t, err)

	require.NoError(t, s.IncrementFailure(ctx, id))
	require.NoError(t, s.IncrementFailure(ctx, id))
	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.Disabled, "below threshold must not disable")
	assert.Nil(t, got.DisabledAt)

	require.NoError(t, s.IncrementFailure(ctx, id))
	got, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Disabled, "reaching the threshold must auto-disable")
	require.NotNil(t, got.DisabledAt)
	assert.WithinDuration(t, time.Now(), *got.DisabledAt, 5*time.Second)
}

func TestResetFailureDoesNotReenableADisabledCredential(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, &credential.Credential{RefreshToken: "rt", AuthMethod: credential.AuthMethodSocial})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.IncrementFailure(ctx, id))
	}

	require.NoError(t, s.ResetFailure(ctx, id))
	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, got.FailureCount)
	assert.True(t, got.Disabled, "ResetFailure must not clear an auto-disable")
	assert.NotNil(t, got.DisabledAt)
}

func TestResetAndEnableClearsDisabledState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, &credential.Credential{RefreshToken: "rt", AuthMethod: credential.AuthMethodSocial})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.IncrementFailure(ctx, id))
	}

	require.NoError(t, s.ResetAndEnable(ctx, id))
	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, got.FailureCount)
	assert.False(t, got.Disabled)
	assert.Nil(t, got.DisabledAt)
}

func TestRecoverExpiredDisabledReenablesOnlyAfterCooldown(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, &credential.Credential{RefreshToken: "rt", AuthMethod: credential.AuthMethodSocial})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.IncrementFailure(ctx, id))
	}

	require.NoError(t, s.RecoverExpiredDisabled(ctx, time.Hour))
	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Disabled, "cooldown not yet elapsed must stay disabled")

	require.NoError(t, s.RecoverExpiredDisabled(ctx, -time.Second))
	got, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.Disabled, "an elapsed cooldown must re-enable the credential")
	assert.Nil(t, got.DisabledAt)
	assert.Equal(t, 0, got.FailureCount)
}

func TestClientIDExists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	exists, err := s.ClientIDExists(ctx, "")
	require.NoError(t, err)
	assert.False(t, exists, "an empty client_id never matches")

	_, err = s.Insert(ctx, &credential.Credential{
		RefreshToken: "rt", AuthMethod: credential.AuthMethodIDC,
		ClientID: "client-a", ClientSecret: "secret-a",
	})
	require.NoError(t, err)

	exists, err = s.ClientIDExists(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.ClientIDExists(ctx, "client-b")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSetDisabledAndPriority(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, &credential.Credential{RefreshToken: "rt", AuthMethod: credential.AuthMethodSocial})
	require.NoError(t, err)

	require.NoError(t, s.SetDisabled(ctx, id, true))
	require.NoError(t, s.SetPriority(ctx, id, 9))

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Disabled)
	assert.Equal(t, 9, got.Priority)
}

func TestUpdateBalance(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, &credential.Credential{RefreshToken: "rt", AuthMethod: credential.AuthMethodSocial})
	require.NoError(t, err)

	reset := time.Now().Add(30 * 24 * time.Hour).UTC()
	require.NoError(t, s.UpdateBalance(ctx, id, "Pro", 12.5, 100, &reset))

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Pro", got.SubscriptionTitle)
	assert.Equal(t, 12.5, got.CurrentUsage)
	assert.Equal(t, float64(100), got.UsageLimit)
	require.NotNil(t, got.NextResetAt)
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, &credential.Credential{RefreshToken: "rt", AuthMethod: credential.AuthMethodSocial})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, id))

	_, err = s.Get(ctx, id)
	assert.Error(t, err)
}

func TestMachineIDUniqueAcrossInserts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, err := s.Insert(ctx, &credential.Credential{RefreshToken: "rt-a", AuthMethod: credential.AuthMethodSocial})
	require.NoError(t, err)
	id2, err := s.Insert(ctx, &credential.Credential{RefreshToken: "rt-b", AuthMethod: credential.AuthMethodSocial})
	require.NoError(t, err)

	c1, err := s.Get(ctx, id1)
	require.NoError(t, err)
	c2, err := s.Get(ctx, id2)
	require.NoError(t, err)
	assert.NotEqual(t, c1.MachineID, c2.MachineID)
}
