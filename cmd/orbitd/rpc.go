package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/renlou/orbit/pkg/account"
	"github.com/renlou/orbit/pkg/config"
	"github.com/renlou/orbit/pkg/device"
	"github.com/renlou/orbit/pkg/invoke"
	"github.com/renlou/orbit/pkg/oauth"
)

func (d *daemon) registerHandlers(disp *invoke.Dispatcher) {
	disp.Register("ping", d.handlePing)

	disp.Register("list_accounts", d.handleListAccounts)
	disp.Register("get_current_account", d.handleGetCurrentAccount)
	disp.Register("add_account", d.handleAddAccount)
	disp.Register("delete_account", d.handleDeleteAccount)
	disp.Register("delete_accounts", d.handleDeleteAccounts)
	disp.Register("switch_account", d.handleSwitchAccount)
	disp.Register("reorder_accounts", d.handleReorderAccounts)
	disp.Register("toggle_proxy_status", d.handleToggleProxyStatus)
	disp.Register("fetch_account_quota", d.handleFetchAccountQuota)
	disp.Register("refresh_all_quotas", d.handleRefreshAllQuotas)

	disp.Register("get_device_profiles", d.handleGetDeviceProfiles)
	disp.Register("preview_generate_profile", d.handlePreviewGenerateProfile)
	disp.Register("bind_device_profile", d.handleBindDeviceProfile)
	disp.Register("bind_device_profile_with_profile", d.handleBindDeviceProfileWithProfile)
	disp.Register("list_device_versions", d.handleListDeviceVersions)
	disp.Register("restore_device_version", d.handleRestoreDeviceVersion)
	disp.Register("delete_device_version", d.handleDeleteDeviceVersion)
	disp.Register("restore_original_device", d.handleRestoreOriginalDevice)

	disp.Register("warm_up_account", d.handleWarmUpAccount)
	disp.Register("warm_up_all_accounts", d.handleWarmUpAllAccounts)

	disp.Register("start_oauth_login", d.handleStartOAuthLogin)
	disp.Register("complete_oauth_login", d.handleCompleteOAuthLogin)
	disp.Register("cancel_oauth_login", d.handleCancelOAuthLogin)

	disp.Register("load_config", d.handleLoadConfig)
	disp.Register("save_config", d.handleSaveConfig)
	disp.Register("generate_api_key", d.handleGenerateAPIKey)
	disp.Register("get_data_dir_path", d.handleGetDataDirPath)
	disp.Register("get_history_log", d.handleGetHistoryLog)
	disp.Register("clear_log_cache", d.handleClearLogCache)

	d.registerStatsHandlers(disp)
}

func decode[T any](raw json.RawMessage) (T, *invoke.Error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, invoke.Errorf(invoke.CodeInvalidArgs, "invalid args: %v", err)
	}
	return v, nil
}

// storeErr maps store failures onto transport error codes.
func storeErr(err error) *invoke.Error {
	switch {
	case errors.Is(err, account.ErrNotFound),
		errors.Is(err, device.ErrNoBinding),
		errors.Is(err, device.ErrVersionNotFound):
		return invoke.WrapErr(invoke.CodeNotFound, err)
	default:
		return invoke.WrapErr(invoke.CodeStorageError, err)
	}
}

// snapshot records a history commit after a mutation; failures are logged but
// never surfaced to the caller.
func (d *daemon) snapshot(message string) {
	if d.history == nil {
		return
	}
	if _, err := d.history.Snapshot(message); err != nil {
		d.logger.Printf("history snapshot failed: %v", err)
	}
}

func (d *daemon) handlePing(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	return map[string]any{"now": time.Now().UnixMilli()}, nil
}

func (d *daemon) handleListAccounts(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	accounts, err := d.accounts.List()
	if err != nil {
		return nil, storeErr(err)
	}
	return accounts, nil
}

func (d *daemon) handleGetCurrentAccount(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	current, err := d.accounts.Current()
	if err != nil {
		return nil, storeErr(err)
	}
	return current, nil
}

func (d *daemon) handleAddAccount(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	input, argErr := decode[struct {
		Email        string `json:"email"`
		RefreshToken string `json:"refreshToken"`
	}](args)
	if argErr != nil {
		return nil, argErr
	}
	if input.RefreshToken == "" {
		return nil, invoke.Errorf(invoke.CodeInvalidArgs, "refreshToken required")
	}
	acct, cmdErr := d.upsertFromRefreshToken(ctx, input.RefreshToken)
	if cmdErr != nil {
		return nil, cmdErr
	}
	d.refreshQuotaBestEffort(ctx, acct)
	d.snapshot(fmt.Sprintf("add account %s", acct.Email))
	return acct, nil
}

func (d *daemon) upsertFromRefreshToken(ctx context.Context, refreshToken string) (account.Account, *invoke.Error) {
	token, err := d.oauth.Refresh(ctx, refreshToken)
	if err != nil {
		return account.Account{}, invoke.WrapErr(invoke.CodeUpstreamError, err)
	}
	info, err := d.oauth.FetchUserInfo(ctx, token.AccessToken)
	if err != nil {
		return account.Account{}, invoke.WrapErr(invoke.CodeUpstreamError, err)
	}
	acct, err := d.accounts.Upsert(info.Email, info.DisplayName(), account.TokenData{
		AccessToken:  token.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Unix() + token.ExpiresIn,
		Email:        info.Email,
	})
	if err != nil {
		return account.Account{}, storeErr(err)
	}
	return acct, nil
}

// refreshQuotaBestEffort mirrors the add/login flow: a quota probe right after
// a token change is useful but its failure must not fail the command.
func (d *daemon) refreshQuotaBestEffort(ctx context.Context, acct account.Account) {
	quota, err := d.quota.Fetch(ctx, acct)
	if err != nil {
		d.logger.Printf("initial quota fetch for %s failed: %v", acct.Email, err)
		return
	}
	if err := d.accounts.UpdateQuota(acct.ID, quota); err != nil {
		d.logger.Printf("store quota for %s failed: %v", acct.Email, err)
	}
}

func (d *daemon) handleDeleteAccount(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	input, argErr := decode[struct {
		AccountID string `json:"accountId"`
	}](args)
	if argErr != nil {
		return nil, argErr
	}
	if err := d.accounts.Delete(input.AccountID); err != nil {
		return nil, storeErr(err)
	}
	d.snapshot(fmt.Sprintf("delete account %s", input.AccountID))
	return true, nil
}

func (d *daemon) handleDeleteAccounts(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	input, argErr := decode[struct {
		AccountIDs []string `json:"accountIds"`
	}](args)
	if argErr != nil {
		return nil, argErr
	}
	if len(input.AccountIDs) == 0 {
		return nil, invoke.Errorf(invoke.CodeInvalidArgs, "accountIds required")
	}
	if err := d.accounts.DeleteMany(input.AccountIDs); err != nil {
		return nil, storeErr(err)
	}
	d.snapshot(fmt.Sprintf("delete %d accounts", len(input.AccountIDs)))
	return true, nil
}

func (d *daemon) handleSwitchAccount(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	input, argErr := decode[struct {
		AccountID string `json:"accountId"`
	}](args)
	if argErr != nil {
		return nil, argErr
	}
	if err := d.accounts.SetCurrent(input.AccountID); err != nil {
		return nil, storeErr(err)
	}
	d.snapshot(fmt.Sprintf("switch account to %s", input.AccountID))
	return true, nil
}

func (d *daemon) handleReorderAccounts(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	input, argErr := decode[struct {
		AccountIDs []string `json:"accountIds"`
	}](args)
	if argErr != nil {
		return nil, argErr
	}
	if err := d.accounts.Reorder(input.AccountIDs); err != nil {
		return nil, storeErr(err)
	}
	d.snapshot("reorder accounts")
	return true, nil
}

func (d *daemon) handleToggleProxyStatus(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	input, argErr := decode[struct {
		AccountID string `json:"accountId"`
		Enable    bool   `json:"enable"`
		Reason    string `json:"reason"`
	}](args)
	if argErr != nil {
		return nil, argErr
	}
	if err := d.accounts.SetProxyDisabled(input.AccountID, !input.Enable, input.Reason); err != nil {
		return nil, storeErr(err)
	}
	d.snapshot(fmt.Sprintf("toggle proxy status for %s", input.AccountID))
	return true, nil
}

func (d *daemon) handleFetchAccountQuota(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	input, argErr := decode[struct {
		AccountID string `json:"accountId"`
	}](args)
	if argErr != nil {
		return nil, argErr
	}
	acct, err := d.accounts.Load(input.AccountID)
	if err != nil {
		return nil, storeErr(err)
	}
	quota, err := d.quota.Fetch(ctx, acct)
	if err != nil {
		return nil, invoke.WrapErr(invoke.CodeUpstreamError, err)
	}
	if err := d.accounts.UpdateQuota(acct.ID, quota); err != nil {
		return nil, storeErr(err)
	}
	return quota, nil
}

func (d *daemon) handleRefreshAllQuotas(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	refreshStats, err := d.quota.RefreshAll(ctx, d.accounts)
	if err != nil {
		return nil, storeErr(err)
	}
	return refreshStats, nil
}

func (d *daemon) handleGetDeviceProfiles(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	input, argErr := decode[struct {
		AccountID string `json:"accountId"`
	}](args)
	if argErr != nil {
		return nil, argErr
	}
	binding, err := d.devices.Binding(input.AccountID)
	if err != nil {
		return nil, storeErr(err)
	}
	return binding, nil
}

func (d *daemon) handlePreviewGenerateProfile(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	return device.Generate(), nil
}

func (d *daemon) handleBindDeviceProfile(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	input, argErr := decode[struct {
		AccountID string `json:"accountId"`
	}](args)
	if argErr != nil {
		return nil, argErr
	}
	profile, err := d.devices.Bind(input.AccountID)
	if err != nil {
		return nil, storeErr(err)
	}
	d.snapshot(fmt.Sprintf("bind device profile for %s", input.AccountID))
	return profile, nil
}

func (d *daemon) handleBindDeviceProfileWithProfile(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	input, argErr := decode[struct {
		AccountID string         `json:"accountId"`
		Profile   device.Profile `json:"profile"`
	}](args)
	if argErr != nil {
		return nil, argErr
	}
	if err := input.Profile.Validate(); err != nil {
		return nil, invoke.WrapErr(invoke.CodeInvalidArgs, err)
	}
	profile, err := d.devices.BindProfile(input.AccountID, input.Profile, "generated")
	if err != nil {
		return nil, storeErr(err)
	}
	d.snapshot(fmt.Sprintf("bind provided device profile for %s", input.AccountID))
	return profile, nil
}

func (d *daemon) handleListDeviceVersions(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	input, argErr := decode[struct {
		AccountID string `json:"accountId"`
	}](args)
	if argErr != nil {
		return nil, argErr
	}
	versions, err := d.devices.Versions(input.AccountID)
	if err != nil {
		return nil, storeErr(err)
	}
	return versions, nil
}

func (d *daemon) handleRestoreDeviceVersion(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	input, argErr := decode[struct {
		AccountID string `json:"accountId"`
		VersionID string `json:"versionId"`
	}](args)
	if argErr != nil {
		return nil, argErr
	}
	profile, err := d.devices.RestoreVersion(input.AccountID, input.VersionID)
	if err != nil {
		return nil, storeErr(err)
	}
	d.snapshot(fmt.Sprintf("restore device version %s for %s", input.VersionID, input.AccountID))
	return profile, nil
}

func (d *daemon) handleDeleteDeviceVersion(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	input, argErr := decode[struct {
		AccountID string `json:"accountId"`
		VersionID string `json:"versionId"`
	}](args)
	if argErr != nil {
		return nil, argErr
	}
	if err := d.devices.DeleteVersion(input.AccountID, input.VersionID); err != nil {
		return nil, storeErr(err)
	}
	d.snapshot(fmt.Sprintf("delete device version %s for %s", input.VersionID, input.AccountID))
	return true, nil
}

func (d *daemon) handleRestoreOriginalDevice(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	input, argErr := decode[struct {
		AccountID string `json:"accountId"`
	}](args)
	if argErr != nil {
		return nil, argErr
	}
	profile, err := d.devices.RestoreOriginal(input.AccountID)
	if err != nil {
		return nil, storeErr(err)
	}
	d.snapshot(fmt.Sprintf("restore original device for %s", input.AccountID))
	return profile, nil
}

func (d *daemon) handleWarmUpAccount(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	input, argErr := decode[struct {
		AccountID string `json:"accountId"`
	}](args)
	if argErr != nil {
		return nil, argErr
	}
	acct, err := d.accounts.Load(input.AccountID)
	if err != nil {
		return nil, storeErr(err)
	}
	msg, err := d.warmer.WarmAccount(ctx, acct)
	if err != nil {
		return nil, invoke.WrapErr(invoke.CodeUpstreamError, err)
	}
	return msg, nil
}

func (d *daemon) handleWarmUpAllAccounts(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	accounts, err := d.accounts.List()
	if err != nil {
		return nil, storeErr(err)
	}
	return d.warmer.WarmAll(ctx, accounts), nil
}

func (d *daemon) handleStartOAuthLogin(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	input, argErr := decode[struct {
		RedirectURI string `json:"redirectUri"`
	}](args)
	if argErr != nil {
		return nil, argErr
	}
	if input.RedirectURI == "" {
		return nil, invoke.Errorf(invoke.CodeInvalidArgs, "redirectUri required")
	}
	return map[string]any{"auth_url": d.oauth.AuthURL(input.RedirectURI, "")}, nil
}

func (d *daemon) handleCompleteOAuthLogin(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	input, argErr := decode[struct {
		Code        string `json:"code"`
		RedirectURI string `json:"redirectUri"`
	}](args)
	if argErr != nil {
		return nil, argErr
	}
	token, err := d.oauth.ExchangeCode(ctx, input.Code, input.RedirectURI)
	if err != nil {
		return nil, invoke.WrapErr(invoke.CodeUpstreamError, err)
	}
	if token.RefreshToken == "" {
		return nil, invoke.Errorf(invoke.CodeAuthExpired,
			"provider issued no refresh token; revoke this app's access at the provider and log in again, or add the account with a refresh token directly")
	}
	info, err := d.oauth.FetchUserInfo(ctx, token.AccessToken)
	if err != nil {
		return nil, invoke.WrapErr(invoke.CodeUpstreamError, err)
	}
	acct, err := d.accounts.Upsert(info.Email, info.DisplayName(), account.TokenData{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    time.Now().Unix() + token.ExpiresIn,
		Email:        info.Email,
	})
	if err != nil {
		return nil, storeErr(err)
	}
	d.refreshQuotaBestEffort(ctx, acct)
	d.snapshot(fmt.Sprintf("oauth login %s", acct.Email))
	return acct, nil
}

func (d *daemon) handleCancelOAuthLogin(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	return true, nil
}

func (d *daemon) handleLoadConfig(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	cfg, err := config.LoadDir(d.dataDir)
	if err != nil {
		return nil, invoke.WrapErr(invoke.CodeStorageError, err)
	}
	return cfg, nil
}

func (d *daemon) handleSaveConfig(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	input, argErr := decode[struct {
		Config config.AppConfig `json:"config"`
	}](args)
	if argErr != nil {
		return nil, argErr
	}
	if err := config.Save(filepath.Join(d.dataDir, config.FileName), &input.Config); err != nil {
		return nil, invoke.WrapErr(invoke.CodeStorageError, err)
	}
	// Listener addresses are picked up on restart; soft settings apply now.
	d.cfg = &input.Config
	d.quota = account.NewQuotaClient(input.Config.Quota, d.logger)
	d.oauth = oauth.New(input.Config.OAuth)
	d.snapshot("save config")
	return true, nil
}

func (d *daemon) handleGenerateAPIKey(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	return "sk-" + strings.ReplaceAll(uuid.NewString(), "-", ""), nil
}

func (d *daemon) handleGetDataDirPath(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	return d.dataDir, nil
}

func (d *daemon) handleGetHistoryLog(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	if d.history == nil {
		return nil, invoke.Errorf(invoke.CodeNotFound, "history is not enabled")
	}
	input, argErr := decode[struct {
		Limit int `json:"limit"`
	}](args)
	if argErr != nil {
		return nil, argErr
	}
	if input.Limit <= 0 || input.Limit > 500 {
		input.Limit = 50
	}
	entries, err := d.history.Log(input.Limit)
	if err != nil {
		return nil, invoke.WrapErr(invoke.CodeStorageError, err)
	}
	return entries, nil
}

func (d *daemon) handleClearLogCache(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	path := config.ResolvePath(d.dataDir, d.cfg.Logging.FilePath)
	if path == "" {
		return true, nil
	}
	if err := os.Truncate(path, 0); err != nil && !os.IsNotExist(err) {
		return nil, invoke.WrapErr(invoke.CodeStorageError, err)
	}
	return true, nil
}
