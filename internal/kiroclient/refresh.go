package kiroclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/example/kiro-claude-bridge/internal/apierror"
	"github.com/example/kiro-claude-bridge/internal/tokenmanager"
)

// socialRefreshURL is the Kiro social (Builder ID) OAuth refresh endpoint.
const socialRefreshURL = "https://prod.us-east-1.auth.desktop.kiro.dev/refreshToken"

// idcTokenURLFormat is the AWS SSO-OIDC token endpoint used for the IdC
// refresh-token grant, per spec §4.E step 4.
const idcTokenURLFormat = "https://oidc.%s.amazonaws.com/token"

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
	ProfileArn  string `json:"profileArn"`
}

type idcTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// RefreshSocial performs the social OAuth refresh flow: POST
// {refreshToken} to the Kiro refresh endpoint, per spec §4.E step 4.
func (c *Client) RefreshSocial(ctx context.Context, refreshToken string) (tokenmanager.RefreshResult, error) {
	body, _ := json.Marshal(map[string]string{"refreshToken": refreshToken})
	resp, err := c.postRefresh(ctx, socialRefreshURL, body)
	if err != nil {
		return tokenmanager.RefreshResult{}, err
	}
	var parsed refreshResponse
	if err := json.Unmarshal(resp, &parsed); err != nil {
		return tokenmanager.RefreshResult{}, apierror.New(apierror.KindCredentialTransient, "parse social refresh response", err)
	}
	return tokenmanager.RefreshResult{
		AccessToken: parsed.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second),
		ProfileARN:  parsed.ProfileArn,
	}, nil
}

// RefreshIDC performs the AWS IdC (Identity Center) refresh-token grant,
// per spec §4.E step 4.
func (c *Client) RefreshIDC(ctx context.Context, clientID, clientSecret, refreshToken string) (tokenmanager.RefreshResult, error) {
	body, _ := json.Marshal(map[string]string{
		"clientId":     clientID,
		"clientSecret": clientSecret,
		"refreshToken": refreshToken,
		"grantType":    "refresh_token",
	})
	url := fmt.Sprintf(idcTokenURLFormat, DefaultRegion)
	resp, err := c.postRefresh(ctx, url, body)
	if err != nil {
		return tokenmanager.RefreshResult{}, err
	}
	var parsed idcTokenResponse
	if err := json.Unmarshal(resp, &parsed); err != nil {
		return tokenmanager.RefreshResult{}, apierror.New(apierror.KindCredentialTransient, "parse idc refresh response", err)
	}
	return tokenmanager.RefreshResult{
		AccessToken: parsed.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second),
	}, nil
}

// postRefresh issues the refresh round-trip and classifies failures by
// status code alone: 400, 401 and 403 are CredentialFatal; any other
// non-2xx status, and any transport failure, is CredentialTransient. The
// body of a rejected refresh is not inspected.
func (c *Client) postRefresh(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apierror.New(apierror.KindCredentialTransient, "build refresh request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierror.New(apierror.KindCredentialTransient, "refresh request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apierror.New(apierror.KindCredentialTransient, "read refresh response", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode == 400 || resp.StatusCode == 401 || resp.StatusCode == 403:
		return nil, apierror.New(apierror.KindCredentialFatal, fmt.Sprintf("refresh rejected with status %d", resp.StatusCode), nil)
	default:
		return nil, apierror.New(apierror.KindCredentialTransient, fmt.Sprintf("refresh endpoint returned %d", resp.StatusCode), nil)
	}
}
