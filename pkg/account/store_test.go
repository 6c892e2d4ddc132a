package account

import (
	"errors"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func addTestAccount(t *testing.T, s *Store, email string) Account {
	t.Helper()
	acct, err := s.Upsert(email, "Test User", TokenData{
		AccessToken:  "at-" + email,
		RefreshToken: "rt-" + email,
		Email:        email,
	})
	if err != nil {
		t.Fatalf("upsert %s: %v", email, err)
	}
	return acct
}

func TestUpsert(t *testing.T) {
	s := newTestStore(t)

	t.Run("creates account", func(t *testing.T) {
		acct := addTestAccount(t, s, "one@example.com")
		if acct.ID == "" {
			t.Fatal("no ID assigned")
		}
		if acct.SortIndex != 0 {
			t.Fatalf("first account sort index %d", acct.SortIndex)
		}
	})

	t.Run("same email refreshes token", func(t *testing.T) {
		first := addTestAccount(t, s, "two@example.com")
		again, err := s.Upsert("TWO@example.com", "Renamed", TokenData{RefreshToken: "new-rt"})
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if again.ID != first.ID {
			t.Fatalf("email match must reuse the account: %s vs %s", again.ID, first.ID)
		}
		if again.Token.RefreshToken != "new-rt" || again.Name != "Renamed" {
			t.Fatalf("token not refreshed: %+v", again)
		}
		accounts, err := s.List()
		if err != nil {
			t.Fatal(err)
		}
		if len(accounts) != 2 {
			t.Fatalf("expected 2 accounts, got %d", len(accounts))
		}
	})
}

func TestLoadDelete(t *testing.T) {
	s := newTestStore(t)
	acct := addTestAccount(t, s, "a@example.com")

	loaded, err := s.Load(acct.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Email != "a@example.com" {
		t.Fatalf("unexpected account: %+v", loaded)
	}

	if err := s.Delete(acct.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Load(acct.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(acct.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete should be ErrNotFound, got %v", err)
	}
}

func TestDeleteMany(t *testing.T) {
	s := newTestStore(t)
	a := addTestAccount(t, s, "a@example.com")
	b := addTestAccount(t, s, "b@example.com")
	addTestAccount(t, s, "c@example.com")

	if err := s.DeleteMany([]string{a.ID, b.ID}); err != nil {
		t.Fatalf("delete many: %v", err)
	}
	accounts, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 1 || accounts[0].Email != "c@example.com" {
		t.Fatalf("unexpected survivors: %+v", accounts)
	}
}

func TestCurrent(t *testing.T) {
	s := newTestStore(t)

	t.Run("none selected", func(t *testing.T) {
		current, err := s.Current()
		if err != nil {
			t.Fatalf("current: %v", err)
		}
		if current != nil {
			t.Fatalf("expected nil, got %+v", current)
		}
	})

	acct := addTestAccount(t, s, "a@example.com")

	t.Run("set and get", func(t *testing.T) {
		if err := s.SetCurrent(acct.ID); err != nil {
			t.Fatalf("set current: %v", err)
		}
		current, err := s.Current()
		if err != nil {
			t.Fatalf("current: %v", err)
		}
		if current == nil || current.ID != acct.ID {
			t.Fatalf("unexpected current: %+v", current)
		}
	})

	t.Run("set unknown fails", func(t *testing.T) {
		if err := s.SetCurrent("missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("deleting current clears marker", func(t *testing.T) {
		if err := s.Delete(acct.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		current, err := s.Current()
		if err != nil {
			t.Fatalf("current: %v", err)
		}
		if current != nil {
			t.Fatalf("marker not cleared: %+v", current)
		}
	})
}

func TestReorder(t *testing.T) {
	s := newTestStore(t)
	a := addTestAccount(t, s, "a@example.com")
	addTestAccount(t, s, "b@example.com")
	c := addTestAccount(t, s, "c@example.com")

	if err := s.Reorder([]string{c.ID, a.ID}); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	accounts, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	got := []string{accounts[0].Email, accounts[1].Email, accounts[2].Email}
	want := []string{"c@example.com", "a@example.com", "b@example.com"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order %v, want %v", got, want)
		}
	}
}

func TestSetProxyDisabled(t *testing.T) {
	s := newTestStore(t)
	acct := addTestAccount(t, s, "a@example.com")

	if err := s.SetProxyDisabled(acct.ID, true, ""); err != nil {
		t.Fatalf("disable: %v", err)
	}
	loaded, err := s.Load(acct.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.ProxyDisabled || loaded.ProxyDisabledReason != "disabled manually" || loaded.ProxyDisabledAt == 0 {
		t.Fatalf("unexpected state: %+v", loaded)
	}

	if err := s.SetProxyDisabled(acct.ID, false, ""); err != nil {
		t.Fatalf("enable: %v", err)
	}
	loaded, err = s.Load(acct.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.ProxyDisabled || loaded.ProxyDisabledReason != "" || loaded.ProxyDisabledAt != 0 {
		t.Fatalf("flags not cleared: %+v", loaded)
	}
}

func TestUpdateQuota(t *testing.T) {
	s := newTestStore(t)
	acct := addTestAccount(t, s, "a@example.com")

	if err := s.UpdateQuota(acct.ID, QuotaData{Used: 10, Limit: 100}); err != nil {
		t.Fatalf("update quota: %v", err)
	}
	loaded, err := s.Load(acct.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Quota == nil || loaded.Quota.Used != 10 || loaded.Quota.Limit != 100 {
		t.Fatalf("quota not stored: %+v", loaded.Quota)
	}
	if loaded.Quota.UpdatedAt == 0 {
		t.Fatal("quota timestamp not set")
	}
}

func TestUpdateQuotaKeepsModelBreakdown(t *testing.T) {
	s := newTestStore(t)
	acct := addTestAccount(t, s, "a@example.com")

	quota := QuotaData{
		Used:  30,
		Limit: 300,
		Models: map[string]ModelQuota{
			"m-fast": {Used: 10, Limit: 100},
			"m-big":  {Used: 20, Limit: 200},
		},
	}
	if err := s.UpdateQuota(acct.ID, quota); err != nil {
		t.Fatalf("update quota: %v", err)
	}
	loaded, err := s.Load(acct.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Quota == nil || len(loaded.Quota.Models) != 2 {
		t.Fatalf("model breakdown lost: %+v", loaded.Quota)
	}
	if got := loaded.Quota.Models["m-big"]; got.Used != 20 || got.Limit != 200 {
		t.Fatalf("unexpected model quota: %+v", got)
	}
}
