package stats

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "stats.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return s
}

func record(t *testing.T, s *Store, rec UsageRecord) {
	t.Helper()
	if err := s.Record(context.Background(), rec); err != nil {
		t.Fatalf("record: %v", err)
	}
}

func TestRecordFillsDefaults(t *testing.T) {
	s := newTestStore(t)
	record(t, s, UsageRecord{AccountID: "a1", Model: "m1", InputTokens: 10, OutputTokens: 5})

	summary, err := s.Summary(context.Background(), 1)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Requests != 1 {
		t.Fatalf("record with zero ID/TS not stored: %+v", summary)
	}
}

func TestSummary(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().Unix()
	record(t, s, UsageRecord{TS: now, AccountID: "a1", Model: "m1", InputTokens: 100, OutputTokens: 20})
	record(t, s, UsageRecord{TS: now, AccountID: "a1", Model: "m2", InputTokens: 50, OutputTokens: 10})
	record(t, s, UsageRecord{TS: now, AccountID: "a2", Model: "m1", InputTokens: 25, OutputTokens: 5})
	// Outside the window.
	record(t, s, UsageRecord{TS: now - 48*3600, AccountID: "a3", Model: "m3", InputTokens: 999, OutputTokens: 999})

	summary, err := s.Summary(context.Background(), 24)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Requests != 3 {
		t.Fatalf("requests = %d", summary.Requests)
	}
	if summary.InputTokens != 175 || summary.OutputTokens != 35 || summary.TotalTokens != 210 {
		t.Fatalf("token totals wrong: %+v", summary)
	}
	if summary.Accounts != 2 || summary.Models != 2 {
		t.Fatalf("distinct counts wrong: %+v", summary)
	}
}

func TestBuckets(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().Unix()
	record(t, s, UsageRecord{TS: now, AccountID: "a1", Model: "m1", InputTokens: 10})
	record(t, s, UsageRecord{TS: now, AccountID: "a1", Model: "m1", InputTokens: 20})

	buckets, err := s.Hourly(context.Background(), 24)
	if err != nil {
		t.Fatalf("hourly: %v", err)
	}
	if len(buckets) == 0 {
		t.Fatal("no buckets returned")
	}
	var total int64
	for _, b := range buckets {
		total += b.InputTokens
	}
	if total != 30 {
		t.Fatalf("bucket totals = %d", total)
	}

	daily, err := s.Daily(context.Background(), 7)
	if err != nil {
		t.Fatalf("daily: %v", err)
	}
	if len(daily) != 1 || daily[0].Requests != 2 {
		t.Fatalf("unexpected daily buckets: %+v", daily)
	}

	weekly, err := s.Weekly(context.Background(), 4)
	if err != nil {
		t.Fatalf("weekly: %v", err)
	}
	if len(weekly) != 1 {
		t.Fatalf("unexpected weekly buckets: %+v", weekly)
	}
}

func TestGroups(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().Unix()
	record(t, s, UsageRecord{TS: now, AccountID: "a1", Model: "m1", InputTokens: 10})
	record(t, s, UsageRecord{TS: now, AccountID: "a1", Model: "m2", InputTokens: 30})
	record(t, s, UsageRecord{TS: now, AccountID: "a2", Model: "m1", InputTokens: 26})

	byAccount, err := s.ByAccount(context.Background(), 24)
	if err != nil {
		t.Fatalf("by account: %v", err)
	}
	if len(byAccount) != 2 {
		t.Fatalf("expected 2 accounts, got %+v", byAccount)
	}
	// Heaviest group first.
	if byAccount[0].Key != "a1" || byAccount[0].InputTokens != 40 {
		t.Fatalf("unexpected leader: %+v", byAccount[0])
	}

	byModel, err := s.ByModel(context.Background(), 24)
	if err != nil {
		t.Fatalf("by model: %v", err)
	}
	if len(byModel) != 2 || byModel[0].Key != "m1" || byModel[0].InputTokens != 36 {
		t.Fatalf("unexpected models: %+v", byModel)
	}
}

func TestTrends(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().Unix()
	record(t, s, UsageRecord{TS: now, AccountID: "a1", Model: "m1", InputTokens: 10})
	record(t, s, UsageRecord{TS: now, AccountID: "a2", Model: "m2", InputTokens: 20})

	points, err := s.ModelTrendHourly(context.Background(), 24)
	if err != nil {
		t.Fatalf("model trend: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 series points, got %+v", points)
	}
	seen := map[string]bool{}
	for _, p := range points {
		seen[p.Series] = true
	}
	if !seen["m1"] || !seen["m2"] {
		t.Fatalf("series missing: %+v", points)
	}

	accountPoints, err := s.AccountTrendDaily(context.Background(), 7)
	if err != nil {
		t.Fatalf("account trend: %v", err)
	}
	if len(accountPoints) != 2 {
		t.Fatalf("expected 2 account points, got %+v", accountPoints)
	}
}
