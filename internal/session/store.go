// Package session keeps per-visitor client state: the profile cache filled
// in at checkout and short-lived flags used by the password reset flow.
package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Session-scoped flag names.
const (
	FlagResetPhone = "reset_phone"
	FlagResetToken = "reset_token"
)

// Profile is the cached contact block of a user or guest.
type Profile struct {
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Guest     bool      `json:"guest"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type flag struct {
	value   string
	expires time.Time
}

// Store is an in-memory session store safe for concurrent use.
type Store struct {
	clock clockwork.Clock

	mu       sync.RWMutex
	profiles map[string]Profile
	flags    map[string]map[string]flag
}

// NewStore creates an empty store.
func NewStore(clock clockwork.Clock) *Store {
	return &Store{
		clock:    clock,
		profiles: make(map[string]Profile),
		flags:    make(map[string]map[string]flag),
	}
}

// SaveProfile writes the profile for key, keeping fields p leaves empty.
func (s *Store) SaveProfile(key string, p Profile) Profile {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.profiles[key]
	if p.Name != "" {
		cur.Name = p.Name
	}
	if p.Email != "" {
		cur.Email = p.Email
	}
	if p.Phone != "" {
		cur.Phone = p.Phone
	}
	cur.Guest = p.Guest
	cur.UpdatedAt = s.clock.Now()
	s.profiles[key] = cur
	return cur
}

// Profile returns the cached profile for key.
func (s *Store) Profile(key string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[key]
	return p, ok
}

// SetFlag stores a flag. A zero ttl never expires.
func (s *Store) SetFlag(key, name, value string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := flag{value: value}
	if ttl > 0 {
		f.expires = s.clock.Now().Add(ttl)
	}
	if s.flags[key] == nil {
		s.flags[key] = make(map[string]flag)
	}
	s.flags[key][name] = f
}

// Flag returns an unexpired flag value.
func (s *Store) Flag(key, name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.flags[key][name]
	if !ok || s.expired(f) {
		return "", false
	}
	return f.value, true
}

// ClearFlag removes a flag.
func (s *Store) ClearFlag(key, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.flags[key], name)
	if len(s.flags[key]) == 0 {
		delete(s.flags, key)
	}
}

// Sweep removes expired flags and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int
	for key, flags := range s.flags {
		for name, f := range flags {
			if s.expired(f) {
				delete(flags, name)
				removed++
			}
		}
		if len(flags) == 0 {
			delete(s.flags, key)
		}
	}
	return removed
}

func (s *Store) expired(f flag) bool {
	return !f.expires.IsZero() && !s.clock.Now().Before(f.expires)
}
