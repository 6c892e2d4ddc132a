package account

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/renlou/orbit/pkg/config"
	"github.com/renlou/orbit/pkg/invoke"
)

func quotaClientFor(url string, retries int) *QuotaClient {
	return NewQuotaClient(config.QuotaConfig{
		Endpoint:       url,
		RequestTimeout: 5,
		MaxRetries:     retries,
	}, nil)
}

func TestQuotaFetch(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer at-123" {
				t.Errorf("missing bearer token, got %q", got)
			}
			fmt.Fprint(w, `{"used":5,"limit":50,"models":{"m-fast":{"used":2,"limit":20}}}`)
		}))
		defer srv.Close()

		quota, err := quotaClientFor(srv.URL, 0).Fetch(context.Background(), Account{
			Email: "a@example.com",
			Token: TokenData{AccessToken: "at-123"},
		})
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if quota.Used != 5 || quota.Limit != 50 {
			t.Fatalf("unexpected quota: %+v", quota)
		}
		if got := quota.Models["m-fast"]; got.Used != 2 || got.Limit != 20 {
			t.Fatalf("model breakdown not decoded: %+v", quota.Models)
		}
	})

	t.Run("retries transient failures", func(t *testing.T) {
		var hits atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			fmt.Fprint(w, `{"used":1,"limit":10}`)
		}))
		defer srv.Close()

		quota, err := quotaClientFor(srv.URL, 3).Fetch(context.Background(), Account{Email: "a@example.com"})
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if quota.Used != 1 {
			t.Fatalf("unexpected quota: %+v", quota)
		}
		if n := hits.Load(); n != 3 {
			t.Fatalf("expected 3 attempts, got %d", n)
		}
	})

	t.Run("auth rejection is not retried", func(t *testing.T) {
		var hits atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		_, err := quotaClientFor(srv.URL, 3).Fetch(context.Background(), Account{Email: "a@example.com"})
		var coded *invoke.Error
		if !errors.As(err, &coded) || coded.Code != invoke.CodeAuthExpired {
			t.Fatalf("expected AUTH_EXPIRED, got %v", err)
		}
		if n := hits.Load(); n != 1 {
			t.Fatalf("expected one attempt, got %d", n)
		}
	})

	t.Run("unconfigured endpoint", func(t *testing.T) {
		_, err := quotaClientFor("", 0).Fetch(context.Background(), Account{})
		if err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestRefreshAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"used":2,"limit":20}`)
	}))
	defer srv.Close()

	s := newTestStore(t)
	ok := addTestAccount(t, s, "ok@example.com")
	disabled := addTestAccount(t, s, "off@example.com")
	if err := s.SetProxyDisabled(disabled.ID, true, "test"); err != nil {
		t.Fatal(err)
	}

	stats, err := quotaClientFor(srv.URL, 0).RefreshAll(context.Background(), s)
	if err != nil {
		t.Fatalf("refresh all: %v", err)
	}
	if stats.Refreshed != 1 || stats.Skipped != 1 || stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	loaded, err := s.Load(ok.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Quota == nil || loaded.Quota.Used != 2 {
		t.Fatalf("quota not stored: %+v", loaded.Quota)
	}
}
