// Package orchestrator implements the retry/failover loop binding one
// inbound request to 0..N credential attempts, per spec §4.J.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/example/kiro-claude-bridge/internal/apierror"
	"github.com/example/kiro-claude-bridge/internal/credential"
	"github.com/example/kiro-claude-bridge/internal/fingerprint"
	"github.com/example/kiro-claude-bridge/internal/kiroclient"
	"github.com/example/kiro-claude-bridge/internal/metrics"
)

const (
	// perCredentialAttempts caps how many times a single credential is
	// retried before the orchestrator fails it over.
	perCredentialAttempts = 3
	// perRequestAttempts caps the total number of south-side attempts,
	// across all credentials, spent on one inbound request.
	perRequestAttempts = 9

	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 5 * time.Second
)

// Selector picks the next credential to try, honoring a per-request
// exclusion set.
type Selector interface {
	Select(ctx context.Context, excluded map[int64]struct{}) (*credential.Credential, error)
}

// TokenManager resolves a valid bearer token for a credential, refreshing
// it if necessary.
type TokenManager interface {
	Token(ctx context.Context, cred *credential.Credential) (string, error)
}

// FailureRecorder persists the effects of a fatal or exhausted attempt, and
// the counter reset a successful attempt earns, per spec §3's "reset on
// success or explicit reset".
type FailureRecorder interface {
	IncrementFailure(ctx context.Context, id int64) error
	ResetFailure(ctx context.Context, id int64) error
}

// Sender performs one south-side HTTP attempt for a credential and
// returns its raw response.
type Sender interface {
	Send(ctx context.Context, region string, kind kiroclient.RequestKind, accessToken string, identity kiroclient.Identity, body []byte) (*kiroclient.Response, error)
}

// RequestBuilder renders the south-side identity and body for one
// attempt against cred. It is invoked fresh for every attempt so that
// credential-specific fields (profile ARN embedded in the body, the
// credential's device fingerprint in the identity) vary correctly across
// a failover, per spec §4.F/§4.H.
type RequestBuilder func(cred *credential.Credential) (kiroclient.Identity, []byte)

// Orchestrator wires the pool selector, token manager, store, and south
// client into the bounded retry/failover loop of spec §4.J.
type Orchestrator struct {
	selector Selector
	tokens   TokenManager
	store    FailureRecorder
	client   Sender
}

// New builds an Orchestrator from its collaborators.
func New(selector Selector, tokens TokenManager, store FailureRecorder, client Sender) *Orchestrator {
	return &Orchestrator{selector: selector, tokens: tokens, store: store, client: client}
}

// Attempt is one south-side HTTP call made on behalf of a request.
type Attempt struct {
	Credential *credential.Credential
	Response   *kiroclient.Response
}

// Run drives the bounded retry/failover loop: it selects a credential,
// obtains a token, renders that credential's identity and body via build,
// sends via client, and on success returns the response immediately.
// CredentialTransient failures retry the same credential (up to
// perCredentialAttempts) after a short backoff; CredentialFatal failures
// record a failure and fail over to the next credential. The loop stops
// early, without recording any failure, if ctx is canceled — per spec
// §4.J's client-cancellation rule.
func (o *Orchestrator) Run(ctx context.Context, region string, kind kiroclient.RequestKind, build RequestBuilder) (Attempt, error) {
	excluded := make(map[int64]struct{})
	totalAttempts := 0
	var lastErr error

	defer func() {
		metrics.OrchestratorAttemptsPerRequest.Observe(float64(totalAttempts))
	}()

	for totalAttempts < perRequestAttempts {
		cred, err := o.selector.Select(ctx, excluded)
		if err != nil {
			return Attempt{}, err
		}

		exhaustedByTransient := true
	credLoop:
		for credTries := 0; credTries < perCredentialAttempts && totalAttempts < perRequestAttempts; credTries++ {
			totalAttempts++

			if ctx.Err() != nil {
				return Attempt{}, ctx.Err()
			}

			resp, attemptErr := o.attempt(ctx, cred, region, kind, build)
			if attemptErr == nil {
				metrics.OrchestratorAttempts.WithLabelValues(metrics.OutcomeSuccess).Inc()
				_ = o.store.ResetFailure(ctx, cred.ID)
				return Attempt{Credential: cred, Response: resp}, nil
			}
			if errors.Is(attemptErr, context.Canceled) || errors.Is(attemptErr, context.DeadlineExceeded) {
				return Attempt{}, attemptErr
			}
			lastErr = attemptErr

			var apiErr *apierror.Error
			if !errors.As(attemptErr, &apiErr) || !apiErr.Kind.Transient() {
				exhaustedByTransient = false
				metrics.OrchestratorAttempts.WithLabelValues(metrics.OutcomeFatal).Inc()
				if apiErr != nil && apiErr.Kind == apierror.KindCredentialFatal {
					_ = o.store.IncrementFailure(ctx, cred.ID)
				}
				excluded[cred.ID] = struct{}{}
				metrics.OrchestratorFailovers.Inc()
				break credLoop
			}
			metrics.OrchestratorAttempts.WithLabelValues(metrics.OutcomeTransient).Inc()

			if totalAttempts < perRequestAttempts {
				select {
				case <-time.After(fingerprint.ExponentialBackoffWithJitter(credTries, retryBaseDelay, retryMaxDelay)):
				case <-ctx.Done():
					return Attempt{}, ctx.Err()
				}
			}
		}

		if exhaustedByTransient {
			excluded[cred.ID] = struct{}{}
			_ = o.store.IncrementFailure(ctx, cred.ID)
			metrics.OrchestratorFailovers.Inc()
		}
	}

	if lastErr != nil {
		return Attempt{}, lastErr
	}
	return Attempt{}, apierror.New(apierror.KindPoolExhausted, "request retry budget exhausted", nil)
}

func (o *Orchestrator) attempt(ctx context.Context, cred *credential.Credential, region string, kind kiroclient.RequestKind, build RequestBuilder) (*kiroclient.Response, error) {
	token, err := o.tokens.Token(ctx, cred)
	if err != nil {
		return nil, err
	}
	identity, body := build(cred)
	return o.client.Send(ctx, region, kind, token, identity, body)
}
