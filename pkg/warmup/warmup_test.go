package warmup

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/renlou/orbit/pkg/account"
	"github.com/renlou/orbit/pkg/config"
	"github.com/renlou/orbit/pkg/invoke"
)

func TestHistoryCooldown(t *testing.T) {
	h := NewHistory()
	if h.InCooldown("a1", 1000, 300) {
		t.Fatal("unknown key must not be in cooldown")
	}
	h.Record("a1", 1000)
	if !h.InCooldown("a1", 1100, 300) {
		t.Fatal("expected cooldown at +100s")
	}
	if h.InCooldown("a1", 1300, 300) {
		t.Fatal("cooldown must expire at +300s")
	}
	if h.InCooldown("a2", 1100, 300) {
		t.Fatal("cooldown must be per key")
	}
}

func TestWarmAccount(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if got := r.Header.Get("Authorization"); got != "Bearer at-1" {
			t.Errorf("missing bearer token, got %q", got)
		}
	}))
	defer srv.Close()

	w := NewWarmer(config.WarmupConfig{Endpoint: srv.URL, CooldownSecs: 300}, nil)
	acct := account.Account{ID: "a1", Email: "a@example.com", Token: account.TokenData{AccessToken: "at-1"}}

	msg, err := w.WarmAccount(context.Background(), acct)
	if err != nil {
		t.Fatalf("warm: %v", err)
	}
	if !strings.Contains(msg, "warmed up") {
		t.Fatalf("unexpected message %q", msg)
	}

	// Second call inside the cooldown window must not hit the endpoint.
	msg, err = w.WarmAccount(context.Background(), acct)
	if err != nil {
		t.Fatalf("warm again: %v", err)
	}
	if !strings.Contains(msg, "skipping") {
		t.Fatalf("unexpected message %q", msg)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("expected one upstream request, got %d", n)
	}
}

func TestWarmAccountAuthRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	w := NewWarmer(config.WarmupConfig{Endpoint: srv.URL, CooldownSecs: 300}, nil)
	_, err := w.WarmAccount(context.Background(), account.Account{ID: "a1", Email: "a@example.com"})
	var coded *invoke.Error
	if !errors.As(err, &coded) || coded.Code != invoke.CodeAuthExpired {
		t.Fatalf("expected AUTH_EXPIRED, got %v", err)
	}

	// A failed warm-up must not start a cooldown.
	if w.history.InCooldown("a1", 1<<62, 1<<62) {
		t.Fatal("failure recorded as warm-up")
	}
}

func TestWarmAll(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	w := NewWarmer(config.WarmupConfig{Endpoint: srv.URL, CooldownSecs: 300}, nil)
	accounts := []account.Account{
		{ID: "a1", Email: "a@example.com"},
		{ID: "a2", Email: "b@example.com", ProxyDisabled: true},
		{ID: "a3", Email: "c@example.com"},
	}

	sum := w.WarmAll(context.Background(), accounts)
	if sum.Warmed != 2 || sum.Skipped != 1 || sum.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if n := hits.Load(); n != 2 {
		t.Fatalf("expected 2 upstream requests, got %d", n)
	}

	// A second pass lands fully inside the cooldown window.
	sum = w.WarmAll(context.Background(), accounts)
	if sum.Warmed != 0 || sum.Skipped != 3 {
		t.Fatalf("unexpected second summary: %+v", sum)
	}
}

func TestWarmUnconfiguredEndpoint(t *testing.T) {
	w := NewWarmer(config.WarmupConfig{CooldownSecs: 300}, nil)
	if _, err := w.WarmAccount(context.Background(), account.Account{ID: "a1"}); err == nil {
		t.Fatal("expected error")
	}
}
