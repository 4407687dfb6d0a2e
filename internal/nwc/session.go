package nwc

import "sync"

// Session holds the wallet connection for the lifetime of a process. It is
// never persisted.
type Session struct {
	mu   sync.RWMutex
	conn *Connection
}

// Set parses uri and replaces the held connection
func (s *Session) Set(uri string) error {
	conn, err := ParseURI(uri)
	if err != nil {
		return err
	}
	s.mu.Lock()
	old := s.conn
	s.conn = conn
	s.mu.Unlock()
	if old != nil {
		old.wipe()
	}
	return nil
}

// Get returns the held connection, if any
func (s *Session) Get() (*Connection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn, s.conn != nil
}

// Forget drops the connection and zeroes its keys
func (s *Session) Forget() {
	s.mu.Lock()
	old := s.conn
	s.conn = nil
	s.mu.Unlock()
	if old != nil {
		old.wipe()
	}
}
