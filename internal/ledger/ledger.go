// Package ledger implements the File Awareness Ledger: a per-session record
// of how much of each file the model has observed, used to gate writes.
//
// The shape here follows the teacher's session store in
// internal/sessions/memory.go — a mutex-guarded map with deep-clone-on-read
// semantics — adapted from "session -> messages" to "path -> FileState".
package ledger

import (
	"strconv"
	"strings"
	"sync"

	"github.com/KvFxKaido/Push-sub001/internal/models"
)

// Kind discriminates the tagged-union FileState.
type Kind int

const (
	KindNeverRead Kind = iota
	KindPartialRead
	KindFullyRead
	KindModelAuthored
	KindStale
)

// FileState is the ledger entry for a single path.
type FileState struct {
	Kind Kind

	// Ranges is populated only for KindPartialRead.
	Ranges []models.LineRange

	// Round is the round at which FullyRead/ModelAuthored was established.
	Round int

	// Previous/SinceRound describe the wrapped state for KindStale.
	Previous   *FileState
	SinceRound int
}

// Verdict is the result of a write-guard check.
type Verdict struct {
	Allowed bool
	Reason  string
}

// Metrics tracks ledger usage counters. All fields are read under the
// ledger's own lock via Snapshot.
type Metrics struct {
	Checks             int
	Allows             int
	BlocksNeverRead    int
	BlocksPartialRead  int
	AutoExpandAttempts int
	AutoExpandSuccess  int
}

// Ledger is a session-scoped mapping from normalized path to FileState. It
// is safe for concurrent use, though per §5 the agent loop only ever
// touches it from one logical path at a time; the mutex exists for the
// same defensive reason the teacher's MemoryStore takes one.
type Ledger struct {
	mu      sync.Mutex
	round   int
	entries map[string]*FileState
	metrics Metrics
}

// New returns an empty ledger at round 0.
func New() *Ledger {
	return &Ledger{entries: make(map[string]*FileState)}
}

// NormalizePath strips a single leading "/workspace/" (or "/workspace")
// prefix so ledger keys are stable across absolute and workspace-relative
// forms.
func NormalizePath(path string) string {
	p := strings.TrimPrefix(path, "/workspace/")
	if p == path {
		p = strings.TrimPrefix(path, "/workspace")
		p = strings.TrimPrefix(p, "/")
	}
	return p
}

// AdvanceRound increments the round counter. Called once per agent turn.
func (l *Ledger) AdvanceRound() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.round++
}

// CurrentRound returns the current round counter.
func (l *Ledger) CurrentRound() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.round
}

// RegisterFile sets the state to never_read if no entry exists yet.
func (l *Ledger) RegisterFile(path string) {
	path = NormalizePath(path)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[path]; !ok {
		l.entries[path] = &FileState{Kind: KindNeverRead}
	}
}

// RecordRead updates the ledger after a read_file call.
//
// rng is nil for a whole-file read and truncated is the server's flag for
// the response. A read with no rng that is not truncated, or one whose
// range starts at line 1 and is not truncated, is treated as fully_read.
func (l *Ledger) RecordRead(path string, rng *models.LineRange, truncated bool) {
	path = NormalizePath(path)
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.entries[path]
	if cur != nil && cur.Kind == KindModelAuthored {
		// Model already owns the content; a subsequent read never downgrades it.
		return
	}

	if rng == nil && !truncated {
		l.entries[path] = &FileState{Kind: KindFullyRead, Round: l.round}
		return
	}

	// A read starting at line 1 and not truncated is treated as fully_read
	// even if it came from a range request.
	if rng != nil && rng.Start == 1 && !truncated {
		l.entries[path] = &FileState{Kind: KindFullyRead, Round: l.round}
		return
	}

	effectiveRange := models.LineRange{Start: 1, End: 1}
	if rng != nil {
		effectiveRange = *rng
	}

	var prevRanges []models.LineRange
	if cur != nil {
		switch cur.Kind {
		case KindPartialRead:
			prevRanges = cur.Ranges
		case KindStale:
			if cur.Previous != nil && cur.Previous.Kind == KindPartialRead {
				prevRanges = cur.Previous.Ranges
			}
		case KindFullyRead:
			// Reads never downgrade fully_read.
			l.entries[path] = &FileState{Kind: KindFullyRead, Round: cur.Round}
			return
		}
	}

	merged := models.MergeRanges(append(append([]models.LineRange{}, prevRanges...), effectiveRange))
	l.entries[path] = &FileState{Kind: KindPartialRead, Ranges: merged}
}

// RecordCreation sets the state to model_authored unconditionally.
func (l *Ledger) RecordCreation(path string) {
	path = NormalizePath(path)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[path] = &FileState{Kind: KindModelAuthored, Round: l.round}
}

// MarkStale wraps an existing non-stale, non-never-read state as stale.
func (l *Ledger) MarkStale(path string) {
	path = NormalizePath(path)
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.entries[path]
	if !ok || cur.Kind == KindNeverRead || cur.Kind == KindStale {
		return
	}
	l.entries[path] = &FileState{Kind: KindStale, Previous: cur, SinceRound: l.round}
}

// CheckWriteAllowed evaluates the edit guard for path.
func (l *Ledger) CheckWriteAllowed(path string) Verdict {
	path = NormalizePath(path)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metrics.Checks++

	cur, ok := l.entries[path]
	if !ok {
		l.metrics.Allows++
		return Verdict{Allowed: true}
	}

	effective := cur
	if cur.Kind == KindStale && cur.Previous != nil {
		effective = cur.Previous
	}

	switch effective.Kind {
	case KindNeverRead:
		l.metrics.BlocksNeverRead++
		return Verdict{Allowed: false, Reason: "not yet read"}
	case KindFullyRead, KindModelAuthored:
		l.metrics.Allows++
		return Verdict{Allowed: true}
	case KindPartialRead:
		l.metrics.BlocksPartialRead++
		return Verdict{Allowed: false, Reason: "partial coverage"}
	default:
		l.metrics.BlocksNeverRead++
		return Verdict{Allowed: false, Reason: "not yet read"}
	}
}

// StaleWarning returns a non-blocking hint text if path is currently stale.
func (l *Ledger) StaleWarning(path string) (string, bool) {
	path = NormalizePath(path)
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.entries[path]
	if !ok || cur.Kind != KindStale {
		return "", false
	}
	return "content observed before round " + strconv.Itoa(cur.SinceRound) + " may have changed externally; consider re-reading", true
}

// RecordAutoExpandAttempt/Success bump the corresponding metrics counters.
func (l *Ledger) RecordAutoExpandAttempt() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metrics.AutoExpandAttempts++
}

func (l *Ledger) RecordAutoExpandSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metrics.AutoExpandSuccess++
}

// Snapshot returns a copy of the current metrics.
func (l *Ledger) Snapshot() Metrics {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.metrics
}

// State returns a copy of the FileState for path, if any.
func (l *Ledger) State(path string) (FileState, bool) {
	path = NormalizePath(path)
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.entries[path]
	if !ok {
		return FileState{}, false
	}
	return *cur, true
}
