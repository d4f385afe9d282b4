// Package store owns the in-memory lists of issue records and test sessions,
// applies de-duplication, and mirrors every mutation to a Persister.
//
// One Store instance is shared by the recorder controller and the transcript
// event loop; a single mutex guards all state (the components never hold the
// lock across I/O other than the persister write, which is local).
package store

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/autonomi-lab/roadscribe/internal/classify"
)

// dedupWindow suppresses a candidate record when one with the same
// (type, subType) was added to the current session this recently.
const dedupWindow = 5000 * time.Millisecond

// IssueRecord is one logged road-test issue. Immutable once created; the
// only removal paths are undo-last and bulk session delete.
type IssueRecord struct {
	ID           string             `json:"id"`
	Timestamp    string             `json:"timestamp"` // ISO-8601
	Type         classify.IssueType `json:"type"`
	SubType      string             `json:"subType"`
	OriginalText string             `json:"originalText"`
	SessionID    string             `json:"sessionId"`
	SessionName  string             `json:"sessionName"`
}

// TestSession is one bounded recording period.
type TestSession struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime,omitempty"` // empty while open
	RecordCount int    `json:"recordCount"`
}

// Store holds the live record and session lists.
//
// All exported methods are safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	records  []IssueRecord
	sessions []TestSession // historical (closed) sessions
	current  *TestSession  // open session, nil when stopped

	persist Persister
	now     func() time.Time
	lastID  int64
}

// New creates a Store backed by the given persister and loads any previously
// persisted state. A nil persister disables persistence.
func New(persist Persister) (*Store, error) {
	s := &Store{persist: persist, now: time.Now}
	if persist == nil {
		s.persist = NopPersister{}
		return s, nil
	}
	records, sessions, err := persist.Load()
	if err != nil {
		return nil, fmt.Errorf("store: load persisted state: %w", err)
	}
	s.records = records
	s.sessions = sessions
	return s, nil
}

// OpenSession starts a new test session. Returns an error if one is already
// open: exactly one session may be current at a time.
func (s *Store) OpenSession() (TestSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return TestSession{}, fmt.Errorf("store: session %s is still open", s.current.ID)
	}

	start := s.now()
	sess := TestSession{
		ID:        fmt.Sprintf("session-%d", start.UnixMilli()),
		Name:      start.Format("01-02 15:04") + " 测试",
		StartTime: start.Format(time.RFC3339),
	}
	s.current = &sess

	slog.Info("store: session opened", "session_id", sess.ID, "name", sess.Name)
	return sess, nil
}

// CloseSession seals the current session's end time and record count and
// moves it into history. A second call with no open session is a no-op,
// which makes stop idempotent.
func (s *Store) CloseSession() (TestSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return TestSession{}, false
	}

	sess := *s.current
	sess.EndTime = s.now().Format(time.RFC3339)
	sess.RecordCount = s.countForLocked(sess.ID)
	s.sessions = append(s.sessions, sess)
	s.current = nil

	s.persistSessionsLocked()
	slog.Info("store: session closed", "session_id", sess.ID, "records", sess.RecordCount)
	return sess, true
}

// CurrentSession returns the open session, if any.
func (s *Store) CurrentSession() (TestSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return TestSession{}, false
	}
	return *s.current, true
}

// Add appends a record for the given match against the current session.
// Returns false when no session is open or when an identical (type, subType)
// record was added within the de-duplication window.
func (s *Store) Add(match classify.Match, originalText string) (IssueRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		slog.Warn("store: dropping record, no open session", "type", match.Type, "sub_type", match.SubType)
		return IssueRecord{}, false
	}

	now := s.now()
	if s.isDuplicateLocked(match, now) {
		slog.Debug("store: suppressed duplicate", "type", match.Type, "sub_type", match.SubType)
		return IssueRecord{}, false
	}

	// Creation-time id, bumped when two adds land in the same millisecond so
	// ids stay unique and monotonic.
	id := now.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id

	rec := IssueRecord{
		ID:           fmt.Sprintf("%d", id),
		Timestamp:    now.Format(time.RFC3339),
		Type:         match.Type,
		SubType:      match.SubType,
		OriginalText: originalText,
		SessionID:    s.current.ID,
		SessionName:  s.current.Name,
	}
	s.records = append(s.records, rec)

	s.persistRecordsLocked()
	slog.Info("store: record added", "type", rec.Type, "sub_type", rec.SubType, "session_id", rec.SessionID)
	return rec, true
}

// isDuplicateLocked reports whether an equal (type, subType) record exists in
// the current session within dedupWindow of now. Scans newest-first; records
// are appended in time order so the first session hit decides.
func (s *Store) isDuplicateLocked(match classify.Match, now time.Time) bool {
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if rec.SessionID != s.current.ID {
			continue
		}
		if rec.Type != match.Type || rec.SubType != match.SubType {
			continue
		}
		ts, err := time.Parse(time.RFC3339, rec.Timestamp)
		if err != nil {
			return false
		}
		return now.Sub(ts) <= dedupWindow
	}
	return false
}

// UndoLast removes the most recently appended record across the whole store,
// regardless of which session it belongs to. Returns the removed record.
func (s *Store) UndoLast() (IssueRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) == 0 {
		return IssueRecord{}, false
	}
	rec := s.records[len(s.records)-1]
	s.records = s.records[:len(s.records)-1]

	s.persistRecordsLocked()
	slog.Info("store: record removed", "type", rec.Type, "sub_type", rec.SubType)
	return rec, true
}

// DeleteSession removes a historical session and all its records.
func (s *Store) DeleteSession(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, sess := range s.sessions {
		if sess.ID == sessionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	s.sessions = append(s.sessions[:idx], s.sessions[idx+1:]...)

	kept := s.records[:0]
	for _, rec := range s.records {
		if rec.SessionID != sessionID {
			kept = append(kept, rec)
		}
	}
	s.records = kept

	s.persistRecordsLocked()
	s.persistSessionsLocked()
	return true
}

// Records returns a copy of all records, oldest first.
func (s *Store) Records() []IssueRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]IssueRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Sessions returns a copy of the historical session list, oldest first.
func (s *Store) Sessions() []TestSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TestSession, len(s.sessions))
	copy(out, s.sessions)
	return out
}

// CountByType tallies the current session's records per issue type.
func (s *Store) CountByType() map[classify.IssueType]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[classify.IssueType]int)
	if s.current == nil {
		return counts
	}
	for _, rec := range s.records {
		if rec.SessionID == s.current.ID {
			counts[rec.Type]++
		}
	}
	return counts
}

func (s *Store) countForLocked(sessionID string) int {
	n := 0
	for _, rec := range s.records {
		if rec.SessionID == sessionID {
			n++
		}
	}
	return n
}

func (s *Store) persistRecordsLocked() {
	if err := s.persist.SaveRecords(s.records); err != nil {
		slog.Warn("store: persist records failed", "err", err)
	}
}

func (s *Store) persistSessionsLocked() {
	if err := s.persist.SaveSessions(s.sessions); err != nil {
		slog.Warn("store: persist sessions failed", "err", err)
	}
}
