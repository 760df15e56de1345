// Package store persists the credential pool in a single embedded SQLite
// file, per spec §4.D.
package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"

	"github.com/example/kiro-claude-bridge/internal/credential"
)

// CredentialStore is the single embedded-file store backing the credential
// pool. All mutating operations execute in a transaction.
type CredentialStore struct {
	db *sql.DB
}

// autoDisableThreshold mirrors pool.FailureThreshold: a credential whose
// failure_count reaches this value is auto-disabled, starting its cooldown
// window.
const autoDisableThreshold = 3

// Open opens (creating if absent) the SQLite file at path and migrates it
// to the current schema.
func Open(path string) (*CredentialStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	log.WithField("path", path).Info("credential store ready")
	return &CredentialStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *CredentialStore) Close() error {
	return s.db.Close()
}

const credentialCols = "id, refresh_token, access_token, expires_at, profile_arn, auth_method, " +
	"client_id, client_secret, machine_id, priority, disabled, disabled_at, failure_count, " +
	"subscription_title, current_usage, usage_limit, next_reset_at"

func scanCredential(scanner interface{ Scan(dest ...any) error }) (*credential.Credential, error) {
	var (
		c          credential.Credential
		expiresAt  sql.NullTime
		disabledAt sql.NullTime
		nextReset  sql.NullTime
		authMethod string
	)
	err := scanner.Scan(
		&c.ID, &c.RefreshToken, &c.AccessToken, &expiresAt, &c.ProfileARN, &authMethod,
		&c.ClientID, &c.ClientSecret, &c.MachineID, &c.Priority, &c.Disabled, &disabledAt, &c.FailureCount,
		&c.SubscriptionTitle, &c.CurrentUsage, &c.UsageLimit, &nextReset,
	)
	if err != nil {
		return nil, err
	}
	c.AuthMethod = credential.AuthMethod(authMethod)
	if expiresAt.Valid {
		t := expiresAt.Time
		c.ExpiresAt = &t
	}
	if disabledAt.Valid {
		t := disabledAt.Time
		c.DisabledAt = &t
	}
	if nextReset.Valid {
		t := nextReset.Time
		c.NextResetAt = &t
	}
	return &c, nil
}

// List returns every credential ordered by (priority ASC, id ASC), the
// selection order of spec §4.E.
func (s *CredentialStore) List(ctx context.Context) ([]*credential.Credential, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+credentialCols+" FROM credentials ORDER BY priority ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("store: list credentials: %w", err)
	}
	defer rows.Close()

	var out []*credential.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan credential: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get returns the credential with the given id, or sql.ErrNoRows if absent.
func (s *CredentialStore) Get(ctx context.Context, id int64) (*credential.Credential, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+credentialCols+" FROM credentials WHERE id = ?", id)
	c, err := scanCredential(row)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Insert persists a new credential, assigning it a machine_id if one is not
// already set, and returns its id.
func (s *CredentialStore) Insert(ctx context.Context, c *credential.Credential) (int64, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	machineID := c.MachineID
	if machineID == "" {
		var err error
		machineID, err = newMachineID()
		if err != nil {
			return 0, fmt.Errorf("store: generate machine id: %w", err)
		}
	}

	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO credentials (
				refresh_token, access_token, expires_at, profile_arn, auth_method,
				client_id, client_secret, machine_id, priority, disabled, disabled_at, failure_count,
				subscription_title, current_usage, usage_limit, next_reset_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.RefreshToken, c.AccessToken, nullTime(c.ExpiresAt), c.ProfileARN, string(c.AuthMethod),
			c.ClientID, c.ClientSecret, machineID, c.Priority, c.Disabled, nullTime(c.DisabledAt), c.FailureCount,
			c.SubscriptionTitle, c.CurrentUsage, c.UsageLimit, nullTime(c.NextResetAt),
		)
		if err != nil {
			return fmt.Errorf("insert credential: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	c.MachineID = machineID
	c.ID = id
	return id, nil
}

// Delete removes the credential with the given id.
func (s *CredentialStore) Delete(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM credentials WHERE id = ?", id)
		return err
	})
}

// UpdateTokens persists a refreshed access token/expiry, and the profile
// ARN if the refresh response carried one, per spec §4.E step 5.
func (s *CredentialStore) UpdateTokens(ctx context.Context, id int64, accessToken string, expiresAt time.Time, profileARN string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if profileARN != "" {
			_, err := tx.ExecContext(ctx,
				"UPDATE credentials SET access_token = ?, expires_at = ?, profile_arn = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
				accessToken, expiresAt, profileARN, id)
			return err
		}
		_, err := tx.ExecContext(ctx,
			"UPDATE credentials SET access_token = ?, expires_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
			accessToken, expiresAt, id)
		return err
	})
}

// SetDisabled sets the disabled flag, stamping disabled_at when disabling
// and clearing it when enabling. Used by the admin API and the CLI; the
// auto-disable path in IncrementFailure stamps disabled_at the same way in
// its own UPDATE, so either trigger starts the same cooldown window.
func (s *CredentialStore) SetDisabled(ctx context.Context, id int64, disabled bool) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if disabled {
			_, err = tx.ExecContext(ctx,
				"UPDATE credentials SET disabled = 1, disabled_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = ?", id)
		} else {
			_, err = tx.ExecContext(ctx,
				"UPDATE credentials SET disabled = 0, disabled_at = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?", id)
		}
		return err
	})
}

// ResetAndEnable clears the failure counter and re-enables a credential
// unconditionally. Used by the admin "/reset" endpoint, as distinct from
// ResetFailure which only the success path uses and does not touch
// disabled/disabled_at.
func (s *CredentialStore) ResetAndEnable(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE credentials
			SET failure_count = 0, disabled = 0, disabled_at = NULL, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`, id)
		return err
	})
}

// RecoverExpiredDisabled re-enables every disabled credential whose
// disabled_at is older than cooldown, resetting its failure count. It is
// safe to call on every selection attempt: rows not past their cooldown
// are untouched.
func (s *CredentialStore) RecoverExpiredDisabled(ctx context.Context, cooldown time.Duration) error {
	cutoff := time.Now().Add(-cooldown)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE credentials
			SET disabled = 0, disabled_at = NULL, failure_count = 0, updated_at = CURRENT_TIMESTAMP
			WHERE disabled = 1 AND disabled_at IS NOT NULL AND disabled_at < ?`, cutoff)
		return err
	})
}

// ClientIDExists reports whether any credential already carries client_id,
// used to reject a duplicate add at the admin API. An empty client_id (the
// social auth method never sets one) never matches.
func (s *CredentialStore) ClientIDExists(ctx context.Context, clientID string) (bool, error) {
	if clientID == "" {
		return false, nil
	}
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM credentials WHERE client_id = ?", clientID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("store: check client_id existence: %w", err)
	}
	return count > 0, nil
}

// SetPriority reorders a credential within the selection order.
func (s *CredentialStore) SetPriority(ctx context.Context, id int64, priority int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"UPDATE credentials SET priority = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", priority, id)
		return err
	})
}

// IncrementFailure bumps the failure counter, implementing the per-credential
// side of the retry budget in spec §4.J. When the counter reaches
// autoDisableThreshold the row is also disabled and disabled_at is stamped,
// starting the row's cooldown window (see RecoverExpiredDisabled).
func (s *CredentialStore) IncrementFailure(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE credentials
			SET failure_count = failure_count + 1,
			    disabled = CASE WHEN failure_count + 1 >= ? THEN 1 ELSE disabled END,
			    disabled_at = CASE WHEN failure_count + 1 >= ? THEN CURRENT_TIMESTAMP ELSE disabled_at END,
			    updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`, autoDisableThreshold, autoDisableThreshold, id)
		return err
	})
}

// ResetFailure clears the failure counter after a successful request. It
// does not touch disabled/disabled_at, as distinct from ResetAndEnable
// which the admin "/reset" endpoint uses.
func (s *CredentialStore) ResetFailure(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"UPDATE credentials SET failure_count = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?", id)
		return err
	})
}

// UpdateBalance records a freshly observed subscription/usage snapshot.
func (s *CredentialStore) UpdateBalance(ctx context.Context, id int64, title string, current, limit float64, nextReset *time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE credentials SET subscription_title = ?, current_usage = ?, usage_limit = ?, next_reset_at = ?,
			 updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			title, current, limit, nullTime(nextReset), id)
		return err
	})
}

func (s *CredentialStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.WithError(rbErr).Warn("store: rollback failed")
		}
		return fmt.Errorf("store: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit tx: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// newMachineID returns a 64-character lowercase hex identifier, the same
// shape as the device fingerprint of spec §4.F, used when a caller inserts
// a credential without pre-assigning one.
func newMachineID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
