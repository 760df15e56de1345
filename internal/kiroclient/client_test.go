package kiroclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/kiro-claude-bridge/internal/apierror"
)

func TestSendPropagatesIdentityHeaders(t *testing.T) {
	var gotAuth, gotFingerprint, gotKiroVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotFingerprint = r.Header.Get("x-device-fingerprint")
		gotKiroVersion = r.Header.Get("kiro-version")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(Config{})
	resp, err := c.sendOne(context.Background(), endpoint{URL: srv.URL}, "tok-123", Identity{
		KiroVersion: "1.2.3", DeviceFingerprint: "ff00", SystemVersion: "sv", NodeVersion: "nv",
	}, []byte(`{}`))
	if err != nil {
		t.Fatalf("sendOne: %v", err)
	}
	resp.Body.Close()

	if gotAuth != "Bearer tok-123" {
		t.Fatalf("expected bearer header, got %q", gotAuth)
	}
	if gotFingerprint != "ff00" {
		t.Fatalf("expected fingerprint header, got %q", gotFingerprint)
	}
	if gotKiroVersion != "1.2.3" {
		t.Fatalf("expected kiro-version header, got %q", gotKiroVersion)
	}
}

func TestClassify401IsCredentialFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Config{})
	_, err := c.sendOne(context.Background(), endpoint{URL: srv.URL}, "tok", Identity{}, nil)
	assertKind(t, err, apierror.KindCredentialFatal)
}

func TestClassify429IsCredentialTransientWithHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Config{})
	_, err := c.sendOne(context.Background(), endpoint{URL: srv.URL}, "tok", Identity{}, nil)
	ae := assertKind(t, err, apierror.KindCredentialTransient)
	if !ae.RetryAfterHint {
		t.Fatal("expected RetryAfterHint on 429")
	}
}

func TestClassify503IsCredentialTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{})
	_, err := c.sendOne(context.Background(), endpoint{URL: srv.URL}, "tok", Identity{}, nil)
	assertKind(t, err, apierror.KindCredentialTransient)
}

func assertKind(t *testing.T, err error, want apierror.Kind) *apierror.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error of kind %s, got nil", want)
	}
	ae, ok := err.(*apierror.Error)
	if !ok {
		t.Fatalf("expected *apierror.Error, got %T: %v", err, err)
	}
	if ae.Kind != want {
		t.Fatalf("expected kind %s, got %s", want, ae.Kind)
	}
	return ae
}
