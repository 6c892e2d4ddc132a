package account

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/renlou/orbit/pkg/ids"
)

// ErrNotFound is returned when no account with the requested ID exists.
var ErrNotFound = errors.New("account not found")

const currentMarker = "current_account"

// Store keeps accounts as one JSON file per account under <dataDir>/accounts.
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore prepares the accounts directory under dataDir.
func NewStore(dataDir string) (*Store, error) {
	dir := filepath.Join(dataDir, "accounts")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// List returns all accounts ordered by sort index, then creation time.
func (s *Store) List() ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

func (s *Store) listLocked() ([]Account, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	accounts := make([]Account, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		acct, err := s.readFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		accounts = append(accounts, acct)
	}
	sort.SliceStable(accounts, func(i, j int) bool {
		if accounts[i].SortIndex != accounts[j].SortIndex {
			return accounts[i].SortIndex < accounts[j].SortIndex
		}
		return accounts[i].CreatedAt < accounts[j].CreatedAt
	})
	return accounts, nil
}

// Load returns one account by ID.
func (s *Store) Load(id string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(id)
}

func (s *Store) loadLocked(id string) (Account, error) {
	acct, err := s.readFile(s.path(id))
	if os.IsNotExist(err) {
		return Account{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return acct, err
}

// Upsert inserts a new account or refreshes the token of the account already
// holding the same email.
func (s *Store) Upsert(email, name string, token TokenData) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.listLocked()
	if err != nil {
		return Account{}, err
	}
	now := time.Now().Unix()
	for _, acct := range accounts {
		if strings.EqualFold(acct.Email, email) {
			acct.Name = name
			acct.Token = token
			acct.UpdatedAt = now
			if err := s.writeLocked(acct); err != nil {
				return Account{}, err
			}
			return acct, nil
		}
	}
	acct := Account{
		ID:        ids.New(),
		Email:     email,
		Name:      name,
		Token:     token,
		SortIndex: len(accounts),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.writeLocked(acct); err != nil {
		return Account{}, err
	}
	return acct, nil
}

// Update rewrites an existing account after applying fn to it.
func (s *Store) Update(id string, fn func(*Account)) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, err := s.loadLocked(id)
	if err != nil {
		return Account{}, err
	}
	fn(&acct)
	acct.UpdatedAt = time.Now().Unix()
	if err := s.writeLocked(acct); err != nil {
		return Account{}, err
	}
	return acct, nil
}

// Delete removes one account and clears the current marker if it pointed at it.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(id)
}

// DeleteMany removes several accounts; missing IDs are reported, not skipped.
func (s *Store) DeleteMany(idList []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range idList {
		if err := s.deleteLocked(id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) deleteLocked(id string) error {
	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return err
	}
	if current, _ := s.currentIDLocked(); current == id {
		_ = os.Remove(filepath.Join(s.dir, currentMarker))
	}
	return nil
}

// Current returns the active account, or nil when none is selected.
func (s *Store) Current() (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.currentIDLocked()
	if err != nil || id == "" {
		return nil, err
	}
	acct, err := s.loadLocked(id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// SetCurrent marks an existing account as active.
func (s *Store) SetCurrent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.loadLocked(id); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, currentMarker), []byte(id), 0o600)
}

// Reorder rewrites sort indexes to match the given ID order. IDs not listed
// keep their relative order after the listed ones.
func (s *Store) Reorder(idList []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	position := make(map[string]int, len(idList))
	for i, id := range idList {
		position[id] = i
	}
	accounts, err := s.listLocked()
	if err != nil {
		return err
	}
	next := len(idList)
	for _, acct := range accounts {
		idx, listed := position[acct.ID]
		if !listed {
			idx = next
			next++
		}
		if acct.SortIndex == idx {
			continue
		}
		acct.SortIndex = idx
		if err := s.writeLocked(acct); err != nil {
			return err
		}
	}
	return nil
}

// UpdateQuota stores a fresh quota snapshot on the account.
func (s *Store) UpdateQuota(id string, quota QuotaData) error {
	_, err := s.Update(id, func(acct *Account) {
		quota.UpdatedAt = time.Now().Unix()
		acct.Quota = &quota
	})
	return err
}

// SetProxyDisabled toggles the proxy-disabled flag with an optional reason.
func (s *Store) SetProxyDisabled(id string, disabled bool, reason string) error {
	_, err := s.Update(id, func(acct *Account) {
		acct.ProxyDisabled = disabled
		if disabled {
			if reason == "" {
				reason = "disabled manually"
			}
			acct.ProxyDisabledReason = reason
			acct.ProxyDisabledAt = time.Now().Unix()
		} else {
			acct.ProxyDisabledReason = ""
			acct.ProxyDisabledAt = 0
		}
	})
	return err
}

func (s *Store) currentIDLocked() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, currentMarker))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Store) readFile(path string) (Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Account{}, err
	}
	var acct Account
	if err := json.Unmarshal(data, &acct); err != nil {
		return Account{}, err
	}
	return acct, nil
}

func (s *Store) writeLocked(acct Account) error {
	file, err := os.Create(s.path(acct.ID))
	if err != nil {
		return err
	}
	defer file.Close()
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(acct)
}
