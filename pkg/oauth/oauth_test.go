package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/renlou/orbit/pkg/config"
	"github.com/renlou/orbit/pkg/invoke"
)

func TestAuthURL(t *testing.T) {
	c := New(config.OAuthConfig{
		AuthURL:  "https://provider.example/auth",
		ClientID: "cid",
		Scopes:   []string{"email", "profile"},
	})
	raw := c.AuthURL("http://127.0.0.1:18045/callback", "xyz")
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := parsed.Query()
	if q.Get("client_id") != "cid" || q.Get("response_type") != "code" {
		t.Fatalf("bad query: %v", q)
	}
	if q.Get("scope") != "email profile" {
		t.Fatalf("bad scope: %q", q.Get("scope"))
	}
	if q.Get("access_type") != "offline" || q.Get("prompt") != "consent" {
		t.Fatalf("refresh-token params missing: %v", q)
	}
	if q.Get("state") != "xyz" {
		t.Fatalf("state missing: %v", q)
	}
}

func TestExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("grant_type") != "authorization_code" || r.PostForm.Get("code") != "the-code" {
			t.Errorf("bad form: %v", r.PostForm)
		}
		if r.PostForm.Get("client_secret") != "secret" {
			t.Errorf("client secret missing")
		}
		fmt.Fprint(w, `{"access_token":"at","refresh_token":"rt","expires_in":3600}`)
	}))
	defer srv.Close()

	c := New(config.OAuthConfig{TokenURL: srv.URL, ClientID: "cid", ClientSecret: "secret"})
	token, err := c.ExchangeCode(context.Background(), "the-code", "http://cb")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if token.AccessToken != "at" || token.RefreshToken != "rt" || token.ExpiresIn != 3600 {
		t.Fatalf("unexpected token: %+v", token)
	}
}

func TestRefresh(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.ParseForm()
			if r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("refresh_token") != "rt" {
				t.Errorf("bad form: %v", r.PostForm)
			}
			fmt.Fprint(w, `{"access_token":"at2","expires_in":3600}`)
		}))
		defer srv.Close()

		token, err := New(config.OAuthConfig{TokenURL: srv.URL}).Refresh(context.Background(), "rt")
		if err != nil {
			t.Fatalf("refresh: %v", err)
		}
		if token.AccessToken != "at2" {
			t.Fatalf("unexpected token: %+v", token)
		}
	})

	t.Run("invalid grant maps to auth expired", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant","error_description":"expired"}`)
		}))
		defer srv.Close()

		_, err := New(config.OAuthConfig{TokenURL: srv.URL}).Refresh(context.Background(), "dead")
		var coded *invoke.Error
		if !errors.As(err, &coded) || coded.Code != invoke.CodeAuthExpired {
			t.Fatalf("expected AUTH_EXPIRED, got %v", err)
		}
	})

	t.Run("other provider error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":"server_error"}`)
		}))
		defer srv.Close()

		_, err := New(config.OAuthConfig{TokenURL: srv.URL}).Refresh(context.Background(), "rt")
		var coded *invoke.Error
		if !errors.As(err, &coded) || coded.Code != invoke.CodeUpstreamError {
			t.Fatalf("expected UPSTREAM_ERROR, got %v", err)
		}
	})

	t.Run("unconfigured endpoint", func(t *testing.T) {
		if _, err := New(config.OAuthConfig{}).Refresh(context.Background(), "rt"); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestFetchUserInfo(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
				t.Errorf("missing bearer token")
			}
			fmt.Fprint(w, `{"email":"a@b.c","name":"A"}`)
		}))
		defer srv.Close()

		info, err := New(config.OAuthConfig{UserinfoURL: srv.URL}).FetchUserInfo(context.Background(), "at")
		if err != nil {
			t.Fatalf("userinfo: %v", err)
		}
		if info.Email != "a@b.c" || info.Name != "A" {
			t.Fatalf("unexpected info: %+v", info)
		}
	})

	t.Run("unauthorized maps to auth expired", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		_, err := New(config.OAuthConfig{UserinfoURL: srv.URL}).FetchUserInfo(context.Background(), "at")
		var coded *invoke.Error
		if !errors.As(err, &coded) || coded.Code != invoke.CodeAuthExpired {
			t.Fatalf("expected AUTH_EXPIRED, got %v", err)
		}
	})

	t.Run("missing email rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"name":"nobody"}`)
		}))
		defer srv.Close()

		if _, err := New(config.OAuthConfig{UserinfoURL: srv.URL}).FetchUserInfo(context.Background(), "at"); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestDisplayName(t *testing.T) {
	if got := (UserInfo{Name: "Full Name", Email: "a@b.c"}).DisplayName(); got != "Full Name" {
		t.Fatalf("got %q", got)
	}
	if got := (UserInfo{Email: "a@b.c"}).DisplayName(); got != "a" {
		t.Fatalf("got %q", got)
	}
	if got := (UserInfo{Email: "noat"}).DisplayName(); got != "noat" {
		t.Fatalf("got %q", got)
	}
}
