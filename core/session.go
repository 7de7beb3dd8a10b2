package core

import (
	"sync"

	"ftpmanager/config"
	"ftpmanager/protocols"
)

// session binds the active profile to its open transport. Both are set and
// cleared together.
type session struct {
	mu        sync.RWMutex
	profile   *config.Profile
	transport protocols.Transport
}

func (s *session) get() (*config.Profile, protocols.Transport) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile, s.transport
}

// replace installs a new pair and returns the previous transport, if any.
func (s *session) replace(p config.Profile, t protocols.Transport) protocols.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.transport
	s.profile = &p
	s.transport = t
	return old
}

// clear drops the pair and returns the previous transport, if any.
func (s *session) clear() protocols.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.transport
	s.profile = nil
	s.transport = nil
	return old
}

func (s *session) connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile != nil && s.transport != nil
}
