// Package credential defines the persisted shape of a Kiro OAuth
// credential and the invariants the store must uphold.
package credential

import (
	"errors"
	"time"
)

// AuthMethod selects which OAuth refresh flow a credential uses.
type AuthMethod string

const (
	AuthMethodSocial AuthMethod = "social"
	AuthMethodIDC    AuthMethod = "idc"
)

// Credential is one row of the credential pool, matching spec §3.
type Credential struct {
	ID           int64
	RefreshToken string
	AccessToken  string
	ExpiresAt    *time.Time
	ProfileARN   string
	AuthMethod   AuthMethod
	ClientID     string
	ClientSecret string
	MachineID    string
	Priority     int
	Disabled     bool
	DisabledAt   *time.Time
	FailureCount int

	SubscriptionTitle string
	CurrentUsage      float64
	UsageLimit        float64
	NextResetAt       *time.Time
}

// ErrInvalidIDC is returned when an idc credential is missing the client
// id/secret pair its auth method requires.
var ErrInvalidIDC = errors.New("credential: auth_method=idc requires client_id and client_secret")

// Validate enforces the invariants of spec §3 that are checkable without a
// store (id uniqueness and machine_id stability are store-level concerns).
func (c *Credential) Validate() error {
	if c.AuthMethod == AuthMethodIDC {
		if c.ClientID == "" || c.ClientSecret == "" {
			return ErrInvalidIDC
		}
	}
	if c.Priority < 0 {
		return errors.New("credential: priority must be non-negative")
	}
	if (c.AccessToken == "") != (c.ExpiresAt == nil) {
		return errors.New("credential: access_token and expires_at must both be set or both be null")
	}
	return nil
}

// Eligible reports whether the credential may be selected: not disabled
// and under the failure threshold. It does not consult the exclusion set —
// that is the pool selector's job.
func (c *Credential) Eligible(failureThreshold int) bool {
	return !c.Disabled && c.FailureCount < failureThreshold
}

// TokenValid reports whether AccessToken is usable right now, applying the
// 5-minute early-refresh margin of spec §4.E step 1.
func (c *Credential) TokenValid(now time.Time, margin time.Duration) bool {
	if c.AccessToken == "" || c.ExpiresAt == nil {
		return false
	}
	return now.Before(c.ExpiresAt.Add(-margin))
}
