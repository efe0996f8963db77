// Package session persists Sessions to disk: a pretty-printed state.json
// snapshot plus an append-only events.jsonl log, under
// ${PUSH_SESSION_DIR:-./.push/sessions}/<session_id>/ (§6).
//
// The per-session locking and deep-copy-on-read shape follows the
// teacher's internal/sessions/memory.go and write_lock.go, adapted from an
// in-memory map to a filesystem-backed store.
package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KvFxKaido/Push-sub001/internal/models"
)

// DefaultSessionDirEnv is the environment variable naming the session
// storage root; falls back to ./.push/sessions when unset.
const DefaultSessionDirEnv = "PUSH_SESSION_DIR"

const defaultSessionDir = "./.push/sessions"

// Store is a filesystem-backed session store. One Store instance should be
// shared across a process; per-session mutexes serialize writes to a given
// session's files the way the teacher's SessionLocker serializes in-memory
// mutation.
type Store struct {
	root   string
	locks  sync.Map // session id -> *sync.Mutex
	logger *slog.Logger
}

// NewStore constructs a Store rooted at dir, or at
// $PUSH_SESSION_DIR (or ./.push/sessions) when dir is empty. logger may be
// nil, in which case slog.Default() is used.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		dir = os.Getenv(DefaultSessionDirEnv)
	}
	if dir == "" {
		dir = defaultSessionDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session root: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: dir, logger: logger}, nil
}

func (s *Store) sessionDir(id string) string { return filepath.Join(s.root, id) }
func (s *Store) statePath(id string) string  { return filepath.Join(s.sessionDir(id), "state.json") }
func (s *Store) eventsPath(id string) string { return filepath.Join(s.sessionDir(id), "events.jsonl") }

func (s *Store) lockFor(id string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Create provisions a new session, persists its initial state, and emits
// the session_started event.
func (s *Store) Create(provider, model, workspaceDir string) (*models.Session, error) {
	now := time.Now().UTC()
	sess := &models.Session{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		UpdatedAt:    now,
		Provider:     provider,
		Model:        model,
		WorkspaceDir: workspaceDir,
	}

	mu := s.lockFor(sess.ID)
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(s.sessionDir(sess.ID), 0o755); err != nil {
		return nil, err
	}
	if err := s.saveLocked(sess); err != nil {
		return nil, err
	}
	if err := s.appendEventLocked(sess, models.EventSessionStarted, nil); err != nil {
		return nil, err
	}
	s.logger.Debug("session: created", "session_id", sess.ID, "provider", provider, "model", model)
	return cloneSession(sess), nil
}

// Load reads a session's state.json. The returned Session is a private
// copy; mutate it and call Save to persist changes (I5).
func (s *Store) Load(id string) (*models.Session, error) {
	data, err := os.ReadFile(s.statePath(id))
	if err != nil {
		return nil, err
	}
	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		s.logger.Warn("session: state.json parse failed", "error", err, "session_id", id)
		return nil, fmt.Errorf("parse state.json for %s: %w", id, err)
	}
	return &sess, nil
}

// Save persists session's full state.json snapshot, overwriting any prior
// content, via a write-then-rename so a crash mid-write never leaves a
// truncated state.json.
func (s *Store) Save(sess *models.Session) error {
	mu := s.lockFor(sess.ID)
	mu.Lock()
	defer mu.Unlock()
	return s.saveLocked(sess)
}

func (s *Store) saveLocked(sess *models.Session) error {
	sess.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	dir := s.sessionDir(sess.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := s.statePath(sess.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.statePath(sess.ID))
}

// AppendEvent assigns the next strictly-increasing sequence number from
// sess.EventSeq (I4, P10 — monotonic across process restarts since EventSeq
// is itself part of the persisted state), appends one events.jsonl line,
// and immediately re-saves state.json so persistence reflects the mutation
// before the next tool call is dispatched (I5).
func (s *Store) AppendEvent(sess *models.Session, eventType models.EventType, payload any) error {
	mu := s.lockFor(sess.ID)
	mu.Lock()
	defer mu.Unlock()
	if err := s.appendEventLocked(sess, eventType, payload); err != nil {
		return err
	}
	return s.saveLocked(sess)
}

func (s *Store) appendEventLocked(sess *models.Session, eventType models.EventType, payload any) error {
	sess.EventSeq++
	event := models.Event{
		Timestamp: time.Now().UTC(),
		Seq:       sess.EventSeq,
		Type:      eventType,
		Payload:   payload,
	}

	line, err := json.Marshal(event)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(s.eventsPath(sess.ID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.Write(line); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}

// ReplayEvents reads every event in a session's events.jsonl, in sequence
// order, for session resume (§6, SPEC_FULL §12).
func (s *Store) ReplayEvents(id string) ([]models.Event, error) {
	f, err := os.Open(s.eventsPath(id))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []models.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e models.Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events, nil
}

// List returns every persisted session loaded from its state.json, most
// recently updated first.
func (s *Store) List() ([]*models.Session, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var sessions []*models.Session
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sess, err := s.Load(e.Name())
		if err != nil {
			continue
		}
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt) })
	return sessions, nil
}

func cloneSession(sess *models.Session) *models.Session {
	cp := *sess
	cp.Messages = append([]models.Message{}, sess.Messages...)
	return &cp
}
