// Package warmup issues minimal upstream requests so quota pools are primed
// before real traffic hits an account.
package warmup

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/renlou/orbit/pkg/account"
	"github.com/renlou/orbit/pkg/config"
	"github.com/renlou/orbit/pkg/invoke"
)

// History remembers the last warm-up time per key so repeated requests inside
// the cooldown window are skipped.
type History struct {
	mu   sync.Mutex
	last map[string]int64
}

// NewHistory returns an empty warm-up history.
func NewHistory() *History {
	return &History{last: make(map[string]int64)}
}

// InCooldown reports whether key was warmed within the last cooldownSecs.
func (h *History) InCooldown(key string, now, cooldownSecs int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	last, ok := h.last[key]
	if !ok {
		return false
	}
	return now-last < cooldownSecs
}

// Record notes a warm-up at ts.
func (h *History) Record(key string, ts int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last[key] = ts
}

// Summary reports a warm-all pass.
type Summary struct {
	Warmed  int      `json:"warmed"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// Warmer drives warm-up requests against the configured endpoint.
type Warmer struct {
	endpoint string
	cooldown int64
	history  *History
	client   *http.Client
	logger   invoke.Logger
}

// NewWarmer builds a warmer from config.
func NewWarmer(cfg config.WarmupConfig, logger invoke.Logger) *Warmer {
	return &Warmer{
		endpoint: cfg.Endpoint,
		cooldown: cfg.CooldownSecs,
		history:  NewHistory(),
		client:   &http.Client{Timeout: 60 * time.Second},
		logger:   logger,
	}
}

// WarmAccount warms one account, honoring the cooldown window.
func (w *Warmer) WarmAccount(ctx context.Context, acct account.Account) (string, error) {
	now := time.Now().Unix()
	if w.history.InCooldown(acct.ID, now, w.cooldown) {
		return fmt.Sprintf("%s warmed recently, skipping", acct.Email), nil
	}
	if err := w.warmOnce(ctx, acct); err != nil {
		return "", err
	}
	w.history.Record(acct.ID, now)
	return fmt.Sprintf("%s warmed up", acct.Email), nil
}

// WarmAll warms every enabled account, collecting per-account failures.
func (w *Warmer) WarmAll(ctx context.Context, accounts []account.Account) Summary {
	var sum Summary
	now := time.Now().Unix()
	for _, acct := range accounts {
		if acct.ProxyDisabled || w.history.InCooldown(acct.ID, now, w.cooldown) {
			sum.Skipped++
			continue
		}
		if err := w.warmOnce(ctx, acct); err != nil {
			sum.Failed++
			sum.Errors = append(sum.Errors, fmt.Sprintf("%s: %v", acct.Email, err))
			if w.logger != nil {
				w.logger.Printf("warm-up for %s failed: %v", acct.Email, err)
			}
			continue
		}
		w.history.Record(acct.ID, now)
		sum.Warmed++
	}
	return sum
}

func (w *Warmer) warmOnce(ctx context.Context, acct account.Account) error {
	if w.endpoint == "" {
		return invoke.Errorf(invoke.CodeUpstreamError, "warm-up endpoint not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, strings.NewReader(`{}`))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+acct.Token.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return invoke.Errorf(invoke.CodeAuthExpired, "warm-up rejected credentials for %s", acct.Email)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return invoke.Errorf(invoke.CodeUpstreamError, "warm-up endpoint returned %d", resp.StatusCode)
	}
	return nil
}
