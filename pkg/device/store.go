package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/renlou/orbit/pkg/ids"
)

// ErrNoBinding is returned when an account has no device profile yet.
var ErrNoBinding = errors.New("no device profile bound")

// ErrVersionNotFound is returned for unknown version IDs.
var ErrVersionNotFound = errors.New("device profile version not found")

// Version is one archived fingerprint.
type Version struct {
	ID        string  `json:"id"`
	Label     string  `json:"label,omitempty"`
	Profile   Profile `json:"profile"`
	CreatedAt int64   `json:"created_at"`
}

// Binding is the per-account device state: the active profile, the original
// one recorded before the first rebind, and the archived versions.
type Binding struct {
	AccountID string    `json:"account_id"`
	Current   *Profile  `json:"current,omitempty"`
	Original  *Profile  `json:"original,omitempty"`
	Versions  []Version `json:"versions,omitempty"`
	UpdatedAt int64     `json:"updated_at"`
}

// Store keeps one JSON file per account under <dataDir>/devices.
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore prepares the devices directory under dataDir.
func NewStore(dataDir string) (*Store, error) {
	dir := filepath.Join(dataDir, "devices")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// Binding returns the device state for an account, empty when none exists.
func (s *Store) Binding(accountID string) (Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(accountID)
}

// Bind generates and activates a fresh profile. The previous profile, if any,
// is archived as a version; the very first profile is also recorded as the
// original.
func (s *Store) Bind(accountID string) (Profile, error) {
	return s.BindProfile(accountID, Generate(), "generated")
}

// BindProfile activates a caller-provided profile.
func (s *Store) BindProfile(accountID string, profile Profile, label string) (Profile, error) {
	if err := profile.Validate(); err != nil {
		return Profile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	binding, err := s.readLocked(accountID)
	if err != nil {
		return Profile{}, err
	}
	if binding.Current != nil {
		s.archiveLocked(&binding, *binding.Current, label)
	}
	if binding.Original == nil {
		orig := profile
		binding.Original = &orig
	}
	binding.Current = &profile
	if err := s.writeLocked(binding); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// Versions lists the archived profiles, newest first.
func (s *Store) Versions(accountID string) ([]Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	binding, err := s.readLocked(accountID)
	if err != nil {
		return nil, err
	}
	versions := make([]Version, len(binding.Versions))
	copy(versions, binding.Versions)
	for i, j := 0, len(versions)-1; i < j; i, j = i+1, j-1 {
		versions[i], versions[j] = versions[j], versions[i]
	}
	return versions, nil
}

// RestoreVersion reactivates an archived profile. The displaced current
// profile is archived in turn.
func (s *Store) RestoreVersion(accountID, versionID string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	binding, err := s.readLocked(accountID)
	if err != nil {
		return Profile{}, err
	}
	idx := -1
	for i, v := range binding.Versions {
		if v.ID == versionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Profile{}, fmt.Errorf("%w: %s", ErrVersionNotFound, versionID)
	}
	restored := binding.Versions[idx].Profile
	binding.Versions = append(binding.Versions[:idx], binding.Versions[idx+1:]...)
	if binding.Current != nil {
		s.archiveLocked(&binding, *binding.Current, "replaced")
	}
	binding.Current = &restored
	if err := s.writeLocked(binding); err != nil {
		return Profile{}, err
	}
	return restored, nil
}

// DeleteVersion drops one archived profile.
func (s *Store) DeleteVersion(accountID, versionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	binding, err := s.readLocked(accountID)
	if err != nil {
		return err
	}
	for i, v := range binding.Versions {
		if v.ID == versionID {
			binding.Versions = append(binding.Versions[:i], binding.Versions[i+1:]...)
			return s.writeLocked(binding)
		}
	}
	return fmt.Errorf("%w: %s", ErrVersionNotFound, versionID)
}

// RestoreOriginal reactivates the profile recorded before the first rebind.
func (s *Store) RestoreOriginal(accountID string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	binding, err := s.readLocked(accountID)
	if err != nil {
		return Profile{}, err
	}
	if binding.Original == nil {
		return Profile{}, fmt.Errorf("%w for %s", ErrNoBinding, accountID)
	}
	if binding.Current != nil {
		s.archiveLocked(&binding, *binding.Current, "replaced")
	}
	restored := *binding.Original
	binding.Current = &restored
	if err := s.writeLocked(binding); err != nil {
		return Profile{}, err
	}
	return restored, nil
}

func (s *Store) archiveLocked(binding *Binding, profile Profile, label string) {
	binding.Versions = append(binding.Versions, Version{
		ID:        ids.New(),
		Label:     label,
		Profile:   profile,
		CreatedAt: time.Now().Unix(),
	})
}

func (s *Store) readLocked(accountID string) (Binding, error) {
	data, err := os.ReadFile(s.path(accountID))
	if os.IsNotExist(err) {
		return Binding{AccountID: accountID}, nil
	}
	if err != nil {
		return Binding{}, err
	}
	var binding Binding
	if err := json.Unmarshal(data, &binding); err != nil {
		return Binding{}, err
	}
	return binding, nil
}

func (s *Store) writeLocked(binding Binding) error {
	binding.UpdatedAt = time.Now().Unix()
	file, err := os.Create(s.path(binding.AccountID))
	if err != nil {
		return err
	}
	defer file.Close()
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(binding)
}

func (s *Store) path(accountID string) string {
	return filepath.Join(s.dir, accountID+".json")
}
