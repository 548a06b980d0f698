// Package identity supplies the signed-in user's profile to the chat engine.
//
// The profile (name, email, picture) is issued by an external auth
// collaborator during sign-in; this package only caches it locally and hands
// it out through the read-only Provider interface. Components never read
// ambient global state: they receive a Provider via their constructor, which
// keeps the engine testable with fixtures.
//
// An absent email disables chat persistence: history listing and server-side
// chat creation are skipped, answer requests still work ephemeral-only.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrNotSignedIn indicates no cached profile exists.
var ErrNotSignedIn = errors.New("not signed in")

// Profile is the locally cached identity obtained from prior sign-in.
type Profile struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture,omitempty"`
}

// Persistent reports whether this profile enables server-side chat
// persistence. Without an email the backend cannot associate chats.
func (p Profile) Persistent() bool {
	return p.Email != ""
}

// Provider exposes the current profile. Read-mostly: implementations load
// once at startup and are never mutated by the chat engine.
type Provider interface {
	// Profile returns the cached profile, or ErrNotSignedIn.
	Profile() (Profile, error)
}

// Static is a fixed-profile Provider for tests and for commands that take
// the identity from flags.
type Static struct {
	P Profile
}

// Profile implements Provider.
func (s Static) Profile() (Profile, error) {
	if s.P == (Profile{}) {
		return Profile{}, ErrNotSignedIn
	}
	return s.P, nil
}

// Anonymous is a Provider that always reports no signed-in user.
type Anonymous struct{}

// Profile implements Provider.
func (Anonymous) Profile() (Profile, error) { return Profile{}, ErrNotSignedIn }

const (
	profileFile = "identity.json"
	lockFile    = "identity.lock"
)

// FileStore caches the profile as JSON in a state directory.
// Writes are guarded by a file lock so concurrent invocations
// (e.g. a login racing a running TUI) cannot interleave partial JSON.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir. The directory must exist.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Profile implements Provider: reads the cached profile from disk.
func (s *FileStore) Profile() (Profile, error) {
	lock := flock.New(filepath.Join(s.dir, lockFile))
	if err := lock.RLock(); err != nil {
		return Profile{}, fmt.Errorf("locking identity cache: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(filepath.Join(s.dir, profileFile))
	if err != nil {
		if os.IsNotExist(err) {
			return Profile{}, ErrNotSignedIn
		}
		return Profile{}, fmt.Errorf("reading identity cache: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parsing identity cache: %w", err)
	}
	if p == (Profile{}) {
		return Profile{}, ErrNotSignedIn
	}
	return p, nil
}

// Save stores the profile, replacing any previous one.
func (s *FileStore) Save(p Profile) error {
	if p.Email == "" && p.Name == "" {
		return errors.New("profile requires at least a name or an email")
	}

	lock := flock.New(filepath.Join(s.dir, lockFile))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking identity cache: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}

	// Write-then-rename keeps readers from ever seeing a torn file.
	tmp := filepath.Join(s.dir, profileFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing identity cache: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, profileFile)); err != nil {
		return fmt.Errorf("replacing identity cache: %w", err)
	}
	return nil
}

// Clear removes the cached profile. Idempotent: clearing an absent
// profile is not an error.
func (s *FileStore) Clear() error {
	lock := flock.New(filepath.Join(s.dir, lockFile))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking identity cache: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	err := os.Remove(filepath.Join(s.dir, profileFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing identity cache: %w", err)
	}
	return nil
}

// Compile-time interface verification.
var (
	_ Provider = (*FileStore)(nil)
	_ Provider = Static{}
	_ Provider = Anonymous{}
)
