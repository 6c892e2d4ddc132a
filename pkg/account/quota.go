package account

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/renlou/orbit/pkg/config"
	"github.com/renlou/orbit/pkg/invoke"
)

// QuotaClient fetches usage/limit snapshots from the upstream quota endpoint.
type QuotaClient struct {
	endpoint string
	retries  int
	client   *http.Client
	logger   invoke.Logger
}

// NewQuotaClient builds a client from config. Endpoint may be empty, in which
// case Fetch fails until the operator configures one.
func NewQuotaClient(cfg config.QuotaConfig, logger invoke.Logger) *QuotaClient {
	return &QuotaClient{
		endpoint: cfg.Endpoint,
		retries:  cfg.MaxRetries,
		client:   &http.Client{Timeout: time.Duration(cfg.RequestTimeout) * time.Second},
		logger:   logger,
	}
}

// Fetch retrieves the quota for one account, retrying transient upstream
// failures with a short linear backoff. Credential rejections are not retried
// and surface as AUTH_EXPIRED so callers can trigger a re-login.
func (c *QuotaClient) Fetch(ctx context.Context, acct Account) (QuotaData, error) {
	if c.endpoint == "" {
		return QuotaData{}, invoke.Errorf(invoke.CodeUpstreamError, "quota endpoint not configured")
	}
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return QuotaData{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
		quota, err := c.fetchOnce(ctx, acct)
		if err == nil {
			return quota, nil
		}
		if coded, ok := err.(*invoke.Error); ok && coded.Code == invoke.CodeAuthExpired {
			return QuotaData{}, err
		}
		lastErr = err
		if c.logger != nil {
			c.logger.Printf("quota fetch for %s attempt %d failed: %v", acct.Email, attempt+1, err)
		}
	}
	return QuotaData{}, lastErr
}

func (c *QuotaClient) fetchOnce(ctx context.Context, acct Account) (QuotaData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return QuotaData{}, err
	}
	req.Header.Set("Authorization", "Bearer "+acct.Token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return QuotaData{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return QuotaData{}, invoke.Errorf(invoke.CodeAuthExpired, "quota endpoint rejected credentials for %s", acct.Email)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return QuotaData{}, invoke.Errorf(invoke.CodeUpstreamError, "quota endpoint returned %d: %s", resp.StatusCode, body)
	}

	var quota QuotaData
	if err := json.NewDecoder(resp.Body).Decode(&quota); err != nil {
		return QuotaData{}, fmt.Errorf("decode quota response: %w", err)
	}
	return quota, nil
}

// RefreshStats summarizes a refresh-all pass.
type RefreshStats struct {
	Refreshed int      `json:"refreshed"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// RefreshAll fetches and stores quotas for every enabled account. Individual
// failures are collected, not fatal.
func (c *QuotaClient) RefreshAll(ctx context.Context, store *Store) (RefreshStats, error) {
	accounts, err := store.List()
	if err != nil {
		return RefreshStats{}, err
	}
	var stats RefreshStats
	for _, acct := range accounts {
		if acct.ProxyDisabled {
			stats.Skipped++
			continue
		}
		quota, err := c.Fetch(ctx, acct)
		if err != nil {
			stats.Failed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", acct.Email, err))
			continue
		}
		if err := store.UpdateQuota(acct.ID, quota); err != nil {
			stats.Failed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", acct.Email, err))
			continue
		}
		stats.Refreshed++
	}
	return stats, nil
}
