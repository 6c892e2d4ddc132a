package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/renlou/orbit/pkg/bridge"
	"github.com/renlou/orbit/pkg/config"
)

const version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	var err error
	switch os.Args[1] {
	case "init":
		err = initCommand(os.Args[2:])
	case "version":
		fmt.Println("orbit " + version)
	case "ping":
		err = pingCommand(os.Args[2:])
	case "accounts":
		err = accountsCommand(os.Args[2:])
	case "quota":
		err = quotaCommand(os.Args[2:])
	case "devices":
		err = devicesCommand(os.Args[2:])
	case "warmup":
		err = warmupCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "oauth":
		err = oauthCommand(os.Args[2:])
	case "config":
		err = configCommand(os.Args[2:])
	case "apikey":
		err = apikeyCommand(os.Args[2:])
	case "history":
		err = historyCommand(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s error: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: orbit <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init      Initialize the data directory (writes config.toml)")
	fmt.Println("  ping      Check that the daemon is reachable")
	fmt.Println("  accounts  Manage accounts (list/current/add/switch/delete/reorder/toggle)")
	fmt.Println("  quota     Fetch or refresh account quotas (fetch/refresh)")
	fmt.Println("  devices   Manage device profiles (show/generate/bind/versions/restore/delete-version/restore-original)")
	fmt.Println("  warmup    Warm up one account or all accounts")
	fmt.Println("  stats     Token usage statistics (summary/hourly/daily/weekly/by-account/by-model/trend)")
	fmt.Println("  oauth     OAuth login flow (start/complete)")
	fmt.Println("  config    Show or reload daemon configuration (show)")
	fmt.Println("  apikey    Generate a new API key")
	fmt.Println("  history   Show recent data-dir history commits")
	fmt.Println("  version   Print CLI version")
}

func defaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "./orbit-data"
	}
	return filepath.Join(base, "orbit")
}

// connFlags are shared by every subcommand that talks to the daemon.
type connFlags struct {
	dataDir *string
	baseURL *string
	socket  *string
}

func addConnFlags(fs *flag.FlagSet) connFlags {
	return connFlags{
		dataDir: fs.String("data-dir", defaultDataDir(), "Data directory"),
		baseURL: fs.String("base-url", "", "Daemon HTTP base URL (default from config)"),
		socket:  fs.String("socket", "", "Unix socket path (bypasses HTTP when set)"),
	}
}

// invoker prefers the socket when one is named, otherwise HTTP: an explicit
// --base-url wins, then the configured base URL, then the built-in default.
func (c connFlags) invoker() bridge.Invoker {
	if *c.socket != "" {
		return bridge.NewSocketInvoker(*c.socket, nil)
	}
	base := *c.baseURL
	if base == "" {
		if cfg, err := config.LoadDir(*c.dataDir); err == nil {
			base = cfg.BaseURL()
		}
	}
	return bridge.NewHTTPInvoker(base, nil)
}

func (c connFlags) call(cmd string, args map[string]any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	return c.invoker().Invoke(ctx, cmd, args)
}

func printJSON(raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func initCommand(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	dataDir := fs.String("data-dir", defaultDataDir(), "Data directory")
	force := fs.Bool("force", false, "Overwrite existing config if present")
	_ = fs.Parse(args)

	if err := os.MkdirAll(*dataDir, 0o700); err != nil {
		return err
	}
	configPath := filepath.Join(*dataDir, config.FileName)
	if _, err := os.Stat(configPath); err == nil && !*force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", configPath)
	}
	cfg := config.Default(*dataDir)
	if err := config.Save(configPath, cfg); err != nil {
		return err
	}
	fmt.Printf("initialized data dir at %s\n", *dataDir)
	return nil
}

func pingCommand(args []string) error {
	fs := flag.NewFlagSet("ping", flag.ExitOnError)
	conn := addConnFlags(fs)
	_ = fs.Parse(args)

	raw, err := conn.call("ping", nil)
	if err != nil {
		return err
	}
	var data struct {
		Now int64 `json:"now"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	fmt.Printf("daemon responded: now=%d\n", data.Now)
	return nil
}

func accountsCommand(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: orbit accounts <list|current|add|switch|delete|reorder|toggle> [options]")
	}
	sub := args[0]
	fs := flag.NewFlagSet("accounts "+sub, flag.ExitOnError)
	conn := addConnFlags(fs)

	switch sub {
	case "list":
		_ = fs.Parse(args[1:])
		raw, err := conn.call("list_accounts", nil)
		if err != nil {
			return err
		}
		return printJSON(raw)
	case "current":
		_ = fs.Parse(args[1:])
		raw, err := conn.call("get_current_account", nil)
		if err != nil {
			return err
		}
		return printJSON(raw)
	case "add":
		refreshToken := fs.String("refresh-token", "", "OAuth refresh token for the account")
		_ = fs.Parse(args[1:])
		if *refreshToken == "" {
			return fmt.Errorf("--refresh-token is required")
		}
		raw, err := conn.call("add_account", map[string]any{"refreshToken": *refreshToken})
		if err != nil {
			return err
		}
		return printJSON(raw)
	case "switch":
		id := fs.String("id", "", "Account ID")
		_ = fs.Parse(args[1:])
		if *id == "" {
			return fmt.Errorf("--id is required")
		}
		if _, err := conn.call("switch_account", map[string]any{"accountId": *id}); err != nil {
			return err
		}
		fmt.Printf("switched to %s\n", *id)
		return nil
	case "delete":
		ids := fs.String("ids", "", "Comma-separated account IDs")
		_ = fs.Parse(args[1:])
		list := splitIDs(*ids)
		if len(list) == 0 {
			return fmt.Errorf("--ids is required")
		}
		if len(list) == 1 {
			if _, err := conn.call("delete_account", map[string]any{"accountId": list[0]}); err != nil {
				return err
			}
		} else if _, err := conn.call("delete_accounts", map[string]any{"accountIds": list}); err != nil {
			return err
		}
		fmt.Printf("deleted %d account(s)\n", len(list))
		return nil
	case "reorder":
		ids := fs.String("ids", "", "Comma-separated account IDs in desired order")
		_ = fs.Parse(args[1:])
		list := splitIDs(*ids)
		if len(list) == 0 {
			return fmt.Errorf("--ids is required")
		}
		if _, err := conn.call("reorder_accounts", map[string]any{"accountIds": list}); err != nil {
			return err
		}
		fmt.Println("reordered")
		return nil
	case "toggle":
		id := fs.String("id", "", "Account ID")
		enable := fs.Bool("enable", false, "Enable proxying for the account")
		reason := fs.String("reason", "", "Reason when disabling")
		_ = fs.Parse(args[1:])
		if *id == "" {
			return fmt.Errorf("--id is required")
		}
		payload := map[string]any{"accountId": *id, "enable": *enable, "reason": *reason}
		if _, err := conn.call("toggle_proxy_status", payload); err != nil {
			return err
		}
		fmt.Printf("proxy enabled=%t for %s\n", *enable, *id)
		return nil
	default:
		return fmt.Errorf("unknown accounts subcommand %q", sub)
	}
}

func splitIDs(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func quotaCommand(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: orbit quota <fetch|refresh> [options]")
	}
	sub := args[0]
	fs := flag.NewFlagSet("quota "+sub, flag.ExitOnError)
	conn := addConnFlags(fs)

	switch sub {
	case "fetch":
		id := fs.String("id", "", "Account ID")
		_ = fs.Parse(args[1:])
		if *id == "" {
			return fmt.Errorf("--id is required")
		}
		raw, err := conn.call("fetch_account_quota", map[string]any{"accountId": *id})
		if err != nil {
			return err
		}
		return printJSON(raw)
	case "refresh":
		_ = fs.Parse(args[1:])
		raw, err := conn.call("refresh_all_quotas", nil)
		if err != nil {
			return err
		}
		return printJSON(raw)
	default:
		return fmt.Errorf("unknown quota subcommand %q", sub)
	}
}

func devicesCommand(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: orbit devices <show|generate|bind|versions|restore|delete-version|restore-original> [options]")
	}
	sub := args[0]
	fs := flag.NewFlagSet("devices "+sub, flag.ExitOnError)
	conn := addConnFlags(fs)
	id := fs.String("id", "", "Account ID")
	versionID := fs.String("version", "", "Device version ID")
	_ = fs.Parse(args[1:])

	needsID := sub != "generate"
	if needsID && *id == "" {
		return fmt.Errorf("--id is required")
	}

	var (
		cmd     string
		payload map[string]any
	)
	switch sub {
	case "show":
		cmd = "get_device_profiles"
		payload = map[string]any{"accountId": *id}
	case "generate":
		cmd = "preview_generate_profile"
	case "bind":
		cmd = "bind_device_profile"
		payload = map[string]any{"accountId": *id}
	case "versions":
		cmd = "list_device_versions"
		payload = map[string]any{"accountId": *id}
	case "restore":
		if *versionID == "" {
			return fmt.Errorf("--version is required")
		}
		cmd = "restore_device_version"
		payload = map[string]any{"accountId": *id, "versionId": *versionID}
	case "delete-version":
		if *versionID == "" {
			return fmt.Errorf("--version is required")
		}
		cmd = "delete_device_version"
		payload = map[string]any{"accountId": *id, "versionId": *versionID}
	case "restore-original":
		cmd = "restore_original_device"
		payload = map[string]any{"accountId": *id}
	default:
		return fmt.Errorf("unknown devices subcommand %q", sub)
	}

	raw, err := conn.call(cmd, payload)
	if err != nil {
		return err
	}
	return printJSON(raw)
}

func warmupCommand(args []string) error {
	fs := flag.NewFlagSet("warmup", flag.ExitOnError)
	conn := addConnFlags(fs)
	id := fs.String("id", "", "Account ID (warms all accounts when omitted)")
	_ = fs.Parse(args)

	if *id == "" {
		raw, err := conn.call("warm_up_all_accounts", nil)
		if err != nil {
			return err
		}
		return printJSON(raw)
	}
	raw, err := conn.call("warm_up_account", map[string]any{"accountId": *id})
	if err != nil {
		return err
	}
	return printJSON(raw)
}

func statsCommand(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: orbit stats <summary|hourly|daily|weekly|by-account|by-model|trend> [options]")
	}
	sub := args[0]
	fs := flag.NewFlagSet("stats "+sub, flag.ExitOnError)
	conn := addConnFlags(fs)
	hours := fs.Int64("hours", 24, "Lookback window in hours")
	days := fs.Int64("days", 7, "Lookback window in days")
	weeks := fs.Int64("weeks", 4, "Lookback window in weeks")
	series := fs.String("series", "model", "Trend series (model|account)")
	bucket := fs.String("bucket", "hourly", "Trend bucket (hourly|daily)")
	_ = fs.Parse(args[1:])

	payload := map[string]any{"hours": *hours, "days": *days, "weeks": *weeks}
	var cmd string
	switch sub {
	case "summary":
		cmd = "get_token_stats_summary"
	case "hourly":
		cmd = "get_token_stats_hourly"
	case "daily":
		cmd = "get_token_stats_daily"
	case "weekly":
		cmd = "get_token_stats_weekly"
	case "by-account":
		cmd = "get_token_stats_by_account"
	case "by-model":
		cmd = "get_token_stats_by_model"
	case "trend":
		switch *series + "/" + *bucket {
		case "model/hourly":
			cmd = "get_token_stats_model_trend_hourly"
		case "model/daily":
			cmd = "get_token_stats_model_trend_daily"
		case "account/hourly":
			cmd = "get_token_stats_account_trend_hourly"
		case "account/daily":
			cmd = "get_token_stats_account_trend_daily"
		default:
			return fmt.Errorf("unknown trend %s/%s", *series, *bucket)
		}
	default:
		return fmt.Errorf("unknown stats subcommand %q", sub)
	}

	raw, err := conn.call(cmd, payload)
	if err != nil {
		return err
	}
	return printJSON(raw)
}

func oauthCommand(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: orbit oauth <start|complete> [options]")
	}
	sub := args[0]
	fs := flag.NewFlagSet("oauth "+sub, flag.ExitOnError)
	conn := addConnFlags(fs)
	redirectURI := fs.String("redirect-uri", "http://127.0.0.1:18045/callback", "OAuth redirect URI")

	switch sub {
	case "start":
		_ = fs.Parse(args[1:])
		raw, err := conn.call("start_oauth_login", map[string]any{"redirectUri": *redirectURI})
		if err != nil {
			return err
		}
		var data struct {
			AuthURL string `json:"auth_url"`
		}
		if err := json.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
		fmt.Println("open this URL in a browser, then run 'orbit oauth complete --code <code>':")
		fmt.Println(data.AuthURL)
		return nil
	case "complete":
		code := fs.String("code", "", "Authorization code from the provider")
		_ = fs.Parse(args[1:])
		if *code == "" {
			return fmt.Errorf("--code is required")
		}
		raw, err := conn.call("complete_oauth_login", map[string]any{
			"code":        *code,
			"redirectUri": *redirectURI,
		})
		if err != nil {
			return err
		}
		return printJSON(raw)
	default:
		return fmt.Errorf("unknown oauth subcommand %q", sub)
	}
}

func configCommand(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: orbit config <show> [options]")
	}
	sub := args[0]
	fs := flag.NewFlagSet("config "+sub, flag.ExitOnError)
	conn := addConnFlags(fs)
	_ = fs.Parse(args[1:])

	switch sub {
	case "show":
		raw, err := conn.call("load_config", nil)
		if err != nil {
			return err
		}
		return printJSON(raw)
	default:
		return fmt.Errorf("unknown config subcommand %q", sub)
	}
}

func apikeyCommand(args []string) error {
	fs := flag.NewFlagSet("apikey", flag.ExitOnError)
	conn := addConnFlags(fs)
	_ = fs.Parse(args)

	raw, err := conn.call("generate_api_key", nil)
	if err != nil {
		return err
	}
	var key string
	if err := json.Unmarshal(raw, &key); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	fmt.Println(key)
	return nil
}

func historyCommand(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	conn := addConnFlags(fs)
	limit := fs.Int("limit", 20, "Maximum entries")
	_ = fs.Parse(args)

	raw, err := conn.call("get_history_log", map[string]any{"limit": *limit})
	if err != nil {
		return err
	}
	return printJSON(raw)
}
