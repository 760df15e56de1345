package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/tidwall/gjson"

	"github.com/example/kiro-claude-bridge/internal/apierror"
	"github.com/example/kiro-claude-bridge/internal/credential"
	"github.com/example/kiro-claude-bridge/internal/kiroclient"
)

// adminResult is the `{success, message, ...}` envelope spec §6 describes
// for admin responses that are not a raw credential listing.
type adminResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func pathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	return strconv.ParseInt(raw, 10, 64)
}

// credentialView omits secrets (refresh/access tokens, client secret)
// from the admin listing.
type credentialView struct {
	ID                int64   `json:"id"`
	AuthMethod        string  `json:"authMethod"`
	Priority          int     `json:"priority"`
	Disabled          bool    `json:"disabled"`
	FailureCount      int     `json:"failureCount"`
	SubscriptionTitle string  `json:"subscriptionTitle,omitempty"`
	CurrentUsage      float64 `json:"currentUsage,omitempty"`
	UsageLimit        float64 `json:"usageLimit,omitempty"`
	Remaining         float64 `json:"remaining,omitempty"`
	UsagePercentage   float64 `json:"usagePercentage,omitempty"`
}

// balanceDerived computes the two fields the raw usage snapshot doesn't
// carry directly: how much quota is left, and how much of it is spent.
// A credential with no usage_limit set reports 0 for both rather than a
// division by zero.
func balanceDerived(current, limit float64) (remaining, usagePercentage float64) {
	if limit <= 0 {
		return 0, 0
	}
	remaining = limit - current
	if remaining < 0 {
		remaining = 0
	}
	usagePercentage = current / limit * 100
	if usagePercentage > 100 {
		usagePercentage = 100
	}
	return remaining, usagePercentage
}

// handleListCredentials refreshes every credential's balance concurrently
// before responding, so the listing reflects live usage rather than the
// last value persisted by a balance check or an orchestrator attempt. A
// credential whose live fetch fails reports zeroed balance fields for this
// response rather than falling back to its last cached values. The fresh
// balances are persisted in a detached goroutine after the response is
// built, so a slow write never delays the HTTP reply.
func (s *Server) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := s.store.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]credentialView, len(creds))
	type refresh struct {
		id             int64
		title          string
		current, limit float64
		ok             bool
	}
	refreshes := make([]refresh, len(creds))

	var wg sync.WaitGroup
	for i, c := range creds {
		wg.Add(1)
		go func(i int, c *credential.Credential) {
			defer wg.Done()
			title, current, limit, err := s.fetchBalance(r.Context(), c)
			if err != nil {
				views[i] = credentialView{
					ID:           c.ID,
					AuthMethod:   string(c.AuthMethod),
					Priority:     c.Priority,
					Disabled:     c.Disabled,
					FailureCount: c.FailureCount,
				}
				return
			}
			v := credentialView{
				ID:                c.ID,
				AuthMethod:        string(c.AuthMethod),
				Priority:          c.Priority,
				Disabled:          c.Disabled,
				FailureCount:      c.FailureCount,
				SubscriptionTitle: title,
				CurrentUsage:      current,
				UsageLimit:        limit,
			}
			v.Remaining, v.UsagePercentage = balanceDerived(current, limit)
			views[i] = v
			refreshes[i] = refresh{id: c.ID, title: title, current: current, limit: limit, ok: true}
		}(i, c)
	}
	wg.Wait()

	writeJSON(w, http.StatusOK, views)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, rf := range refreshes {
			if !rf.ok {
				continue
			}
			_ = s.store.UpdateBalance(ctx, rf.id, rf.title, rf.current, rf.limit, nil)
		}
	}()
}

type createCredentialRequest struct {
	RefreshToken string `json:"refreshToken"`
	AuthMethod   string `json:"authMethod"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	Priority     int    `json:"priority"`
}

func (s *Server) handleCreateCredential(w http.ResponseWriter, r *http.Request) {
	var req createCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierror.New(apierror.KindBadRequest, "invalid request body", err))
		return
	}
	if req.RefreshToken == "" {
		writeError(w, apierror.New(apierror.KindBadRequest, "refreshToken is required", nil))
		return
	}
	if exists, err := s.store.ClientIDExists(r.Context(), req.ClientID); err != nil {
		writeError(w, err)
		return
	} else if exists {
		writeError(w, apierror.New(apierror.KindBadRequest, "a credential with this client_id already exists", nil))
		return
	}

	c := &credential.Credential{
		RefreshToken: req.RefreshToken,
		AuthMethod:   credential.AuthMethod(req.AuthMethod),
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		Priority:     req.Priority,
	}
	if c.AuthMethod == "" {
		c.AuthMethod = credential.AuthMethodSocial
	}

	id, err := s.store.Insert(r.Context(), c)
	if err != nil {
		writeError(w, apierror.New(apierror.KindBadRequest, "failed to add credential", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

func (s *Server) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, apierror.New(apierror.KindBadRequest, "invalid credential id", err))
		return
	}
	if err := s.store.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adminResult{Success: true})
}

func (s *Server) handleSetDisabled(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, apierror.New(apierror.KindBadRequest, "invalid credential id", err))
		return
	}
	var body struct {
		Disabled bool `json:"disabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierror.New(apierror.KindBadRequest, "invalid request body", err))
		return
	}
	if err := s.store.SetDisabled(r.Context(), id, body.Disabled); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adminResult{Success: true})
}

func (s *Server) handleSetPriority(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, apierror.New(apierror.KindBadRequest, "invalid credential id", err))
		return
	}
	var body struct {
		Priority int `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierror.New(apierror.KindBadRequest, "invalid request body", err))
		return
	}
	if err := s.store.SetPriority(r.Context(), id, body.Priority); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adminResult{Success: true})
}

func (s *Server) handleResetFailure(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, apierror.New(apierror.KindBadRequest, "invalid credential id", err))
		return
	}
	if err := s.store.ResetAndEnable(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adminResult{Success: true})
}

// fetchBalance queries the south side's usage-limits endpoint directly for
// one credential (bypassing the orchestrator: a balance check has no
// failover semantics of its own) and returns the parsed snapshot without
// persisting it — callers decide when and whether to write it back.
func (s *Server) fetchBalance(ctx context.Context, cred *credential.Credential) (title string, current, limit float64, err error) {
	cfg := s.configStore.Get()
	token, err := s.tokens.Token(ctx, cred)
	if err != nil {
		return "", 0, 0, err
	}
	identity := kiroclient.Identity{
		KiroVersion:       cfg.KiroVersion,
		SystemVersion:     cfg.SystemVersion,
		NodeVersion:       cfg.NodeVersion,
		DeviceFingerprint: cred.MachineID,
	}
	resp, err := s.kiroClient.Send(ctx, cfg.Region, kiroclient.KindBalance, token, identity, nil)
	if err != nil {
		return "", 0, 0, err
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", 0, 0, apierror.New(apierror.KindCredentialTransient, "read balance response", err)
	}

	parsed := gjson.ParseBytes(buf)
	return parsed.Get("subscriptionTitle").String(), parsed.Get("currentUsage").Float(), parsed.Get("usageLimit").Float(), nil
}

// handleBalance refreshes and persists the balance for one credential.
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, apierror.New(apierror.KindBadRequest, "invalid credential id", err))
		return
	}
	cred, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	title, current, limit, err := s.fetchBalance(r.Context(), cred)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = s.store.UpdateBalance(r.Context(), id, title, current, limit, nil)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"subscriptionTitle": title,
		"currentUsage":      current,
		"usageLimit":        limit,
	})
}
