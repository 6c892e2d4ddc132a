package main

import (
	"context"
	"encoding/json"

	"github.com/renlou/orbit/pkg/invoke"
	"github.com/renlou/orbit/pkg/stats"
)

func (d *daemon) registerStatsHandlers(disp *invoke.Dispatcher) {
	disp.Register("record_token_usage", d.handleRecordTokenUsage)
	disp.Register("get_token_stats_summary", d.handleTokenStatsSummary)
	disp.Register("get_token_stats_hourly", d.handleTokenStatsHourly)
	disp.Register("get_token_stats_daily", d.handleTokenStatsDaily)
	disp.Register("get_token_stats_weekly", d.handleTokenStatsWeekly)
	disp.Register("get_token_stats_by_account", d.handleTokenStatsByAccount)
	disp.Register("get_token_stats_by_model", d.handleTokenStatsByModel)
	disp.Register("get_token_stats_model_trend_hourly", d.handleTokenStatsModelTrendHourly)
	disp.Register("get_token_stats_model_trend_daily", d.handleTokenStatsModelTrendDaily)
	disp.Register("get_token_stats_account_trend_hourly", d.handleTokenStatsAccountTrendHourly)
	disp.Register("get_token_stats_account_trend_daily", d.handleTokenStatsAccountTrendDaily)
}

type rangeArgs struct {
	Hours int64 `json:"hours"`
	Days  int64 `json:"days"`
	Weeks int64 `json:"weeks"`
}

func decodeRange(raw json.RawMessage) (rangeArgs, *invoke.Error) {
	r, argErr := decode[rangeArgs](raw)
	if argErr != nil {
		return r, argErr
	}
	if r.Hours <= 0 {
		r.Hours = 24
	}
	if r.Days <= 0 {
		r.Days = 7
	}
	if r.Weeks <= 0 {
		r.Weeks = 4
	}
	return r, nil
}

func (d *daemon) handleRecordTokenUsage(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	rec, argErr := decode[stats.UsageRecord](args)
	if argErr != nil {
		return nil, argErr
	}
	if rec.AccountID == "" || rec.Model == "" {
		return nil, invoke.Errorf(invoke.CodeInvalidArgs, "account_id and model required")
	}
	if err := d.stats.Record(ctx, rec); err != nil {
		return nil, invoke.WrapErr(invoke.CodeStorageError, err)
	}
	return true, nil
}

func (d *daemon) handleTokenStatsSummary(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	r, argErr := decodeRange(args)
	if argErr != nil {
		return nil, argErr
	}
	summary, err := d.stats.Summary(ctx, r.Hours)
	if err != nil {
		return nil, invoke.WrapErr(invoke.CodeStorageError, err)
	}
	return summary, nil
}

func (d *daemon) handleTokenStatsHourly(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	r, argErr := decodeRange(args)
	if argErr != nil {
		return nil, argErr
	}
	return d.statsResult(d.stats.Hourly(ctx, r.Hours))
}

func (d *daemon) handleTokenStatsDaily(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	r, argErr := decodeRange(args)
	if argErr != nil {
		return nil, argErr
	}
	return d.statsResult(d.stats.Daily(ctx, r.Days))
}

func (d *daemon) handleTokenStatsWeekly(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	r, argErr := decodeRange(args)
	if argErr != nil {
		return nil, argErr
	}
	return d.statsResult(d.stats.Weekly(ctx, r.Weeks))
}

func (d *daemon) handleTokenStatsByAccount(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	r, argErr := decodeRange(args)
	if argErr != nil {
		return nil, argErr
	}
	return d.statsResult(d.stats.ByAccount(ctx, r.Hours))
}

func (d *daemon) handleTokenStatsByModel(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	r, argErr := decodeRange(args)
	if argErr != nil {
		return nil, argErr
	}
	return d.statsResult(d.stats.ByModel(ctx, r.Hours))
}

func (d *daemon) handleTokenStatsModelTrendHourly(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	r, argErr := decodeRange(args)
	if argErr != nil {
		return nil, argErr
	}
	return d.statsResult(d.stats.ModelTrendHourly(ctx, r.Hours))
}

func (d *daemon) handleTokenStatsModelTrendDaily(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	r, argErr := decodeRange(args)
	if argErr != nil {
		return nil, argErr
	}
	return d.statsResult(d.stats.ModelTrendDaily(ctx, r.Days))
}

func (d *daemon) handleTokenStatsAccountTrendHourly(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	r, argErr := decodeRange(args)
	if argErr != nil {
		return nil, argErr
	}
	return d.statsResult(d.stats.AccountTrendHourly(ctx, r.Hours))
}

func (d *daemon) handleTokenStatsAccountTrendDaily(ctx context.Context, args json.RawMessage) (any, *invoke.Error) {
	r, argErr := decodeRange(args)
	if argErr != nil {
		return nil, argErr
	}
	return d.statsResult(d.stats.AccountTrendDaily(ctx, r.Days))
}

func (d *daemon) statsResult(v any, err error) (any, *invoke.Error) {
	if err != nil {
		return nil, invoke.WrapErr(invoke.CodeStorageError, err)
	}
	return v, nil
}
