package oplog

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WildcardKey is the allowedKeys sentinel meaning "any identity may append".
const WildcardKey = "*"

// AllowedKeys is the set of public-key identities permitted to append to a
// Log. A nil AllowedKeys (as opposed to an empty, non-nil one) tells NewLog
// to pick the default of "owner only".
type AllowedKeys map[string]struct{}

// NewAllowedKeys builds an AllowedKeys set from a list of identities (or the
// WildcardKey).
func NewAllowedKeys(keys ...string) AllowedKeys {
	set := make(AllowedKeys, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// Contains reports whether key is permitted: either present directly or the
// set holds the wildcard.
func (a AllowedKeys) Contains(key string) bool {
	if _, ok := a[WildcardKey]; ok {
		return true
	}
	_, ok := a[key]
	return ok
}

// IsWildcard reports whether the set is exactly {"*"}.
func (a AllowedKeys) IsWildcard() bool {
	if len(a) != 1 {
		return false
	}
	_, ok := a[WildcardKey]
	return ok
}

// Log is a G-Set CRDT over Entries with DAG causal references and a clock
// for deterministic tie-breaking. See spec §3 for the invariants it
// maintains after every Append/Join.
type Log struct {
	ID          string
	store       EntryStore
	ownKey      Signer
	allowedKeys AllowedKeys

	clock   Clock
	entries map[string]Entry
	heads   map[string]Entry

	logger *zap.SugaredLogger
	mu     sync.Mutex
}

// LogOptions configures NewLog. All fields are optional except Store.
type LogOptions struct {
	ID          string
	Entries     []Entry
	Heads       []Entry
	Clock       *Clock
	OwnKey      Signer
	AllowedKeys AllowedKeys // nil => default to {OwnKey.PublicIdentity()} when OwnKey is set
	Logger      *zap.SugaredLogger
}

// NewLog constructs a Log, either empty or reconstructed from a prior
// entry/head set (as LogIO does after fetching from a root hash).
func NewLog(store EntryStore, opts LogOptions) (*Log, error) {
	if store == nil {
		return nil, ErrStoreMissing
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}

	entries := make(map[string]Entry, len(opts.Entries))
	for _, e := range opts.Entries {
		if e.Hash == "" || e.ID == "" {
			return nil, fmt.Errorf("%w: entry missing hash or id", ErrBadEntries)
		}
		entries[e.Hash] = e
	}

	var heads map[string]Entry
	if opts.Heads != nil {
		heads = make(map[string]Entry, len(opts.Heads))
		for _, h := range opts.Heads {
			if h.Hash == "" {
				return nil, fmt.Errorf("%w: head missing hash", ErrBadHeads)
			}
			if _, ok := entries[h.Hash]; !ok {
				return nil, fmt.Errorf("%w: head %s not present in entries", ErrBadHeads, h.Hash)
			}
			heads[h.Hash] = h
		}
	} else {
		heads = indexByHash(FindHeads(entries))
	}

	maxHeadTime := 0
	for _, h := range heads {
		if h.Clock.Time > maxHeadTime {
			maxHeadTime = h.Clock.Time
		}
	}

	clockTime := maxHeadTime
	clockID := id
	if opts.OwnKey != nil {
		clockID = opts.OwnKey.PublicIdentity()
	}
	if opts.Clock != nil {
		clockID = opts.Clock.ID
		if opts.Clock.Time > clockTime {
			clockTime = opts.Clock.Time
		}
	}

	allowed := opts.AllowedKeys
	if allowed == nil && opts.OwnKey != nil {
		allowed = NewAllowedKeys(opts.OwnKey.PublicIdentity())
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Log{
		ID:          id,
		store:       store,
		ownKey:      opts.OwnKey,
		allowedKeys: allowed,
		clock:       NewClock(clockID, clockTime),
		entries:     entries,
		heads:       heads,
		logger:      logger,
	}, nil
}

// Append adds a new entry to the log, advancing the clock and replacing
// heads with the singleton {newEntry}.
func (l *Log) Append(payload []byte) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ownKey != nil {
		if !l.allowedKeys.Contains(l.ownKey.PublicIdentity()) {
			return Entry{}, ErrNotAllowedToWrite
		}
	}

	maxTime := l.clock.Time
	headHashes := make([]string, 0, len(l.heads))
	for hash, h := range l.heads {
		headHashes = append(headHashes, hash)
		if h.Clock.Time > maxTime {
			maxTime = h.Clock.Time
		}
	}
	sort.Strings(headHashes)

	l.clock = NewClock(l.clock.ID, maxTime+1)

	entry, err := CreateEntry(l.store, l.ID, payload, headHashes, l.clock, l.ownKey)
	if err != nil {
		return Entry{}, err
	}

	l.entries[entry.Hash] = entry
	l.heads = map[string]Entry{entry.Hash: entry}

	return entry, nil
}

// Get retrieves an entry by hash from the Log's local index.
func (l *Log) Get(hash string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[hash]
	return e, ok
}

// Length returns the number of entries in the log.
func (l *Log) Length() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Values returns all entries sorted ascending by CompareEntries (oldest
// first).
func (l *Log) Values() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return sortedEntries(l.entries)
}

// Heads returns the current frontier, sorted by clock.id ascending.
func (l *Log) Heads() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return FindHeads(l.heads)
}

// Tails returns entries referencing a hash outside the local entry set, or
// with no predecessors at all.
func (l *Log) Tails() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return FindTails(l.entries)
}

// TailHashes returns the external hashes that must be fetched to close the
// graph.
func (l *Log) TailHashes() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return FindTailHashes(l.entries)
}

// Clock returns the log's current clock.
func (l *Log) Clock() Clock {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clock
}

// logShape is the minimal interface Join requires of its argument: enough
// structure to validate "this looks like a Log" without a concrete type
// dependency, matching spec.md's "other must present the Log shape".
type logShape interface {
	logID() string
	logHeads() map[string]Entry
	logEntries() map[string]Entry
}

func (l *Log) logID() string                { return l.ID }
func (l *Log) logHeads() map[string]Entry   { return l.heads }
func (l *Log) logEntries() map[string]Entry { return l.entries }

// Join merges otherLog's reachable entries into l, verifying signatures
// when l is in signed mode, then recomputes heads/clock and optionally
// trims to sizeLimit entries (sizeLimit < 0 means unbounded). newID, if
// non-empty, is adopted as the merged log's id; otherwise the
// lexicographically greater of the two ids is kept.
func (l *Log) Join(otherLog *Log, sizeLimit int, newID string) error {
	if otherLog == nil {
		return ErrNotALog
	}
	return l.join(otherLog, sizeLimit, newID)
}

func (l *Log) join(other logShape, sizeLimit int, newID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if other == nil || other.logHeads() == nil || other.logEntries() == nil {
		return ErrNotALog
	}

	newItems := l.difference(other)

	verified := newItems
	if l.ownKey != nil {
		var err error
		verified, err = l.verifyJoinEntries(newItems)
		if err != nil {
			// Disallowed-key entries (or a missing key/sig) abort the
			// whole join: no mutation occurs.
			return err
		}
	}

	for hash, e := range verified {
		l.entries[hash] = e
	}

	if sizeLimit >= 0 {
		l.trim(sizeLimit)
	}

	l.heads = indexByHash(FindHeads(l.entries))

	maxHeadTime := l.clock.Time
	for _, h := range l.heads {
		if h.Clock.Time > maxHeadTime {
			maxHeadTime = h.Clock.Time
		}
	}
	l.clock = NewClock(l.clock.ID, maxHeadTime)

	if newID != "" {
		l.ID = newID
	} else if other.logID() > l.ID {
		l.ID = other.logID()
	}

	return nil
}

// difference computes the set of entries reachable from other's heads by
// traversing Next, excluding anything already present locally. Traversal
// is breadth-first and stops once the frontier is exhausted or every
// successor is already known.
func (l *Log) difference(other logShape) map[string]Entry {
	newItems := make(map[string]Entry)
	visited := make(map[string]bool)

	queue := make([]Entry, 0, len(other.logHeads()))
	for _, h := range other.logHeads() {
		queue = append(queue, h)
	}

	otherEntries := other.logEntries()

	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]

		if visited[e.Hash] {
			continue
		}
		visited[e.Hash] = true

		if _, ok := l.entries[e.Hash]; ok {
			continue
		}
		newItems[e.Hash] = e

		for _, nextHash := range e.Next {
			if visited[nextHash] {
				continue
			}
			if _, ok := l.entries[nextHash]; ok {
				continue
			}
			if next, ok := otherEntries[nextHash]; ok {
				queue = append(queue, next)
			}
		}
	}

	return newItems
}

// verifyJoinEntries applies the signed-mode verification policy from
// spec.md §4.5: missing key/sig aborts the whole join; a failed
// cryptographic verification, or (in solo-owner mode) an id mismatch,
// silently drops just that entry and the join continues.
func (l *Log) verifyJoinEntries(newItems map[string]Entry) (map[string]Entry, error) {
	_, ownerListed := l.allowedKeys[l.ownKey.PublicIdentity()]
	solo := ownerListed && len(l.allowedKeys) == 1

	out := make(map[string]Entry, len(newItems))
	for hash, e := range newItems {
		if e.Key == "" {
			return nil, fmt.Errorf("%w: entry %s", ErrEntryMissingKey, hash)
		}
		if e.Sig == "" {
			return nil, fmt.Errorf("%w: entry %s", ErrEntryMissingSig, hash)
		}

		// The owner's own key is always implicitly permitted, even when
		// allowedKeys doesn't (or no longer) name it explicitly.
		if !l.allowedKeys.IsWildcard() && e.Key != l.ownKey.PublicIdentity() && !l.allowedKeys.Contains(e.Key) {
			l.logger.Warnw("join aborted: entry signed by a key outside allowedKeys",
				"hash", hash, "key", e.Key, "logID", l.ID)
			return nil, fmt.Errorf("%w: key %s not permitted", ErrNotAllowedToWrite, e.Key)
		}

		if solo && e.ID != l.ID {
			l.logger.Warnw("dropping entry from join: log id mismatch in solo-owner mode",
				"hash", hash, "entryLogID", e.ID, "logID", l.ID)
			continue
		}

		if err := VerifyEntry(e, l.ownKey); err != nil {
			l.logger.Warnw("dropping entry from join: signature verification failed",
				"hash", hash, "error", err.Error())
			continue
		}

		out[hash] = e
	}

	return out, nil
}

// trim keeps only the sizeLimit greatest entries under CompareEntries,
// dropping the oldest first. It never inserts or mutates entries.
func (l *Log) trim(sizeLimit int) {
	if sizeLimit < 0 || len(l.entries) <= sizeLimit {
		return
	}

	ordered := sortedEntries(l.entries)
	keep := ordered[len(ordered)-sizeLimit:]

	trimmed := make(map[string]Entry, sizeLimit)
	for _, e := range keep {
		trimmed[e.Hash] = e
	}
	l.entries = trimmed
}

// ToJSON returns the minimal root-pointer snapshot: {id, heads}.
func (l *Log) ToJSON() LogJSON {
	l.mu.Lock()
	defer l.mu.Unlock()

	heads := FindHeads(l.heads)
	hashes := make([]string, len(heads))
	for i, h := range heads {
		hashes[i] = h.Hash
	}
	return LogJSON{ID: l.ID, Heads: hashes}
}

// LogJSON is the minimal root-pointer record returned by ToJSON.
type LogJSON struct {
	ID    string   `json:"id"`
	Heads []string `json:"heads"`
}

// ToBuffer returns the UTF-8 JSON bytes of ToJSON().
func (l *Log) ToBuffer() ([]byte, error) {
	return json.Marshal(l.ToJSON())
}

// LogSnapshot is the full materialization returned by ToSnapshot.
type LogSnapshot struct {
	ID     string  `json:"id"`
	Heads  []Entry `json:"heads"`
	Values []Entry `json:"values"`
}

// ToSnapshot returns the full materialized log: id, heads and all values.
func (l *Log) ToSnapshot() LogSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	return LogSnapshot{
		ID:     l.ID,
		Heads:  FindHeads(l.heads),
		Values: sortedEntries(l.entries),
	}
}

// ToString renders a human-readable tree, newest entry first, using └─
// indentation. payloadMapper, if non-nil, formats each entry's payload;
// otherwise the raw payload bytes are printed.
func (l *Log) ToString(payloadMapper func([]byte) string) string {
	l.mu.Lock()
	entries := sortedEntries(l.entries)
	l.mu.Unlock()

	if payloadMapper == nil {
		payloadMapper = func(p []byte) string { return string(p) }
	}

	var b strings.Builder
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		depth := len(entries) - 1 - i
		b.WriteString(strings.Repeat("  ", depth))
		if depth > 0 {
			b.WriteString("└─")
		}
		fmt.Fprintf(&b, "%s\n", payloadMapper(e.Payload))
	}
	return b.String()
}

func sortedEntries(entries map[string]Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return CompareEntries(out[i], out[j]) < 0
	})
	return out
}

func indexByHash(entries []Entry) map[string]Entry {
	out := make(map[string]Entry, len(entries))
	for _, e := range entries {
		out[e.Hash] = e
	}
	return out
}
