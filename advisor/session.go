package advisor

import (
	"sync"
	"time"

	"github.com/debashishroy00/wpa-sub002/calc"
)

type storedRecord struct {
	record  calc.Record
	savedAt time.Time
}

// Sessions keeps the latest calculation record per (user, session). Each
// new calculation overwrites the previous one; "explain that" always refers
// to the most recent. A zero maxAge keeps records for the process lifetime.
type Sessions struct {
	mu      sync.RWMutex
	records map[string]storedRecord
	maxAge  time.Duration
}

func NewSessions(maxAge time.Duration) *Sessions {
	return &Sessions{
		records: make(map[string]storedRecord),
		maxAge:  maxAge,
	}
}

func sessionKey(userID, sessionID string) string {
	return userID + "\x00" + sessionID
}

func (s *Sessions) Put(rec calc.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[sessionKey(rec.UserID, rec.SessionID)] = storedRecord{
		record:  rec,
		savedAt: time.Now(),
	}
}

// Last returns the most recent record for the session. Expired records are
// dropped on read.
func (s *Sessions) Last(userID, sessionID string) (calc.Record, bool) {
	key := sessionKey(userID, sessionID)

	s.mu.RLock()
	stored, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return calc.Record{}, false
	}

	if s.maxAge > 0 && time.Since(stored.savedAt) > s.maxAge {
		s.mu.Lock()
		delete(s.records, key)
		s.mu.Unlock()
		return calc.Record{}, false
	}
	return stored.record, true
}

// ClearUser removes every session record belonging to the user and reports
// how many were dropped.
func (s *Sessions) ClearUser(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, stored := range s.records {
		if stored.record.UserID == userID {
			delete(s.records, key)
			removed++
		}
	}
	return removed
}

func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
