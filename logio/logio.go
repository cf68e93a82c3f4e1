// Package logio reconstructs an oplog.Log from a content-addressed store,
// given either a root pointer record (oplog.LogJSON), a single entry hash,
// or an already-materialized head set — breadth-first over Entry.Next, up
// to an entry-count bound, with an exclude set and progress callback.
package logio

import (
	"encoding/json"
	"fmt"
	"sort"

	"oplogdb/go-oplog/oplog"
)

// Progress is invoked once per entry fetched during a traversal: hash/entry
// are what was just fetched, parent is the entry that referenced it (nil
// for a head), and depth is the BFS distance from the traversal's start.
type Progress func(hash string, entry oplog.Entry, parent *oplog.Entry, depth int)

// Result is a fully materialized entry set recovered from the store,
// ready to hand to oplog.NewLog.
type Result struct {
	ID     string
	Values []oplog.Entry
	Heads  []oplog.Entry
	Clock  oplog.Clock
}

// NoLimit means "collect everything reachable", for length/amount
// parameters below.
const NoLimit = -1

// PutRoot persists a log's root-pointer record (id + head hashes) to store
// and returns its hash, the value callers pass to FromMultihash.
func PutRoot(store oplog.EntryStore, root oplog.LogJSON) (string, error) {
	data, err := json.Marshal(root)
	if err != nil {
		return "", fmt.Errorf("logio: encode root: %w", err)
	}
	hash, err := store.Put(data)
	if err != nil {
		return "", fmt.Errorf("logio: store root: %w", err)
	}
	return hash, nil
}

// FromMultihash fetches the root-pointer record at rootHash, then the head
// entries it names, then traverses Next breadth-first until length entries
// have been collected (NoLimit for unbounded) or the frontier is
// exhausted. exclude, if non-nil, names hashes to skip entirely (already
// known locally).
func FromMultihash(store oplog.EntryStore, rootHash string, length int, exclude map[string]bool, onProgress Progress) (Result, error) {
	rootBytes, err := store.Get(rootHash)
	if err != nil {
		return Result{}, fmt.Errorf("logio: fetch root %s: %w", rootHash, err)
	}

	var root oplog.LogJSON
	if err := json.Unmarshal(rootBytes, &root); err != nil {
		return Result{}, fmt.Errorf("logio: decode root %s: %w", rootHash, err)
	}

	return FromEntryHashes(store, root.ID, root.Heads, length, exclude, onProgress)
}

// FromEntryHash reconstructs starting from a single entry hash, treating it
// as the lone head.
func FromEntryHash(store oplog.EntryStore, logID string, entryHash string, length int, exclude map[string]bool, onProgress Progress) (Result, error) {
	return FromEntryHashes(store, logID, []string{entryHash}, length, exclude, onProgress)
}

// FromJSON reconstructs from an already-fetched root-pointer record,
// skipping the initial store.Get(rootHash) FromMultihash performs.
func FromJSON(store oplog.EntryStore, root oplog.LogJSON, length int, exclude map[string]bool, onProgress Progress) (Result, error) {
	return FromEntryHashes(store, root.ID, root.Heads, length, exclude, onProgress)
}

// FromEntry reconstructs starting from already-materialized head entries
// (e.g. received directly over a replication broadcast, with no store
// fetch needed for the heads themselves).
func FromEntry(store oplog.EntryStore, logID string, heads []oplog.Entry, length int, exclude map[string]bool, onProgress Progress) (Result, error) {
	pool := make(map[string]oplog.Entry, len(heads))
	queue := make([]oplog.Entry, 0, len(heads))
	for _, h := range heads {
		pool[h.Hash] = h
		queue = append(queue, h)
	}
	return traverse(store, logID, queue, pool, length, exclude, onProgress)
}

// FromEntryHashes fetches each head hash from store, then traverses.
func FromEntryHashes(store oplog.EntryStore, logID string, headHashes []string, length int, exclude map[string]bool, onProgress Progress) (Result, error) {
	pool := make(map[string]oplog.Entry)
	queue := make([]oplog.Entry, 0, len(headHashes))

	for _, hash := range headHashes {
		if exclude[hash] {
			continue
		}
		entry, err := fetch(store, hash)
		if err != nil {
			return Result{}, err
		}
		pool[hash] = entry
		queue = append(queue, entry)
		if onProgress != nil {
			onProgress(hash, entry, nil, 0)
		}
	}

	return traverse(store, logID, queue, pool, length, exclude, onProgress)
}

// Expand deepens log by fetching amount more entries reachable from its
// current tails (the hashes its entries reference but don't yet have
// locally), returning a new Log with the expanded entry set.
func Expand(store oplog.EntryStore, log *oplog.Log, amount int, onProgress Progress) (*oplog.Log, error) {
	return ExpandFrom(store, log, log.TailHashes(), amount, onProgress)
}

// ExpandFrom deepens log by fetching amount more entries reachable from
// fromHashes (typically a subset of log's tails), merging them into a new
// Log alongside everything log already has.
func ExpandFrom(store oplog.EntryStore, log *oplog.Log, fromHashes []string, amount int, onProgress Progress) (*oplog.Log, error) {
	existing := make(map[string]bool, log.Length())
	for _, e := range log.Values() {
		existing[e.Hash] = true
	}

	pool := make(map[string]oplog.Entry)
	queue := make([]oplog.Entry, 0, len(fromHashes))
	for _, hash := range fromHashes {
		if existing[hash] {
			continue
		}
		entry, err := fetch(store, hash)
		if err != nil {
			return nil, err
		}
		pool[hash] = entry
		queue = append(queue, entry)
		if onProgress != nil {
			onProgress(hash, entry, nil, 0)
		}
	}

	result, err := traverse(store, log.ID, queue, pool, amount, existing, onProgress)
	if err != nil {
		return nil, err
	}

	allEntries := append([]oplog.Entry{}, log.Values()...)
	allEntries = append(allEntries, result.Values...)

	mergedClock := oplog.MergeClocks(log.Clock(), result.Clock)

	return oplog.NewLog(store, oplog.LogOptions{
		ID:      log.ID,
		Entries: allEntries,
		Clock:   &mergedClock,
	})
}

// traverse runs the shared breadth-first walk: queue holds the frontier
// (already in pool), and fetches Next hashes until length entries have
// been collected or the frontier empties.
func traverse(store oplog.EntryStore, logID string, queue []oplog.Entry, pool map[string]oplog.Entry, length int, exclude map[string]bool, onProgress Progress) (Result, error) {
	visited := make(map[string]bool, len(pool))
	depthOf := make(map[string]int, len(pool))
	for _, e := range queue {
		visited[e.Hash] = true
		depthOf[e.Hash] = 0
	}

	i := 0
	for i < len(queue) {
		if length != NoLimit && len(pool) >= length {
			break
		}
		current := queue[i]
		i++

		for _, nextHash := range current.Next {
			if visited[nextHash] || exclude[nextHash] {
				continue
			}
			if length != NoLimit && len(pool) >= length {
				break
			}
			visited[nextHash] = true

			entry, err := fetch(store, nextHash)
			if err != nil {
				return Result{}, err
			}
			pool[nextHash] = entry
			depth := depthOf[current.Hash] + 1
			depthOf[nextHash] = depth
			queue = append(queue, entry)

			if onProgress != nil {
				parent := current
				onProgress(nextHash, entry, &parent, depth)
			}
		}
	}

	values := make([]oplog.Entry, 0, len(pool))
	for _, e := range pool {
		values = append(values, e)
	}
	sort.Slice(values, func(i, j int) bool { return oplog.CompareEntries(values[i], values[j]) < 0 })

	heads := oplog.FindHeads(pool)

	maxTime := 0
	for _, h := range heads {
		if h.Clock.Time > maxTime {
			maxTime = h.Clock.Time
		}
	}

	return Result{
		ID:     logID,
		Values: values,
		Heads:  heads,
		Clock:  oplog.NewClock(logID, maxTime),
	}, nil
}

func fetch(store oplog.EntryStore, hash string) (oplog.Entry, error) {
	data, err := store.Get(hash)
	if err != nil {
		return oplog.Entry{}, fmt.Errorf("logio: fetch entry %s: %w", hash, err)
	}
	entry, err := oplog.DecodeEntry(data)
	if err != nil {
		return oplog.Entry{}, fmt.Errorf("logio: decode entry %s: %w", hash, err)
	}
	entry.Hash = hash
	return entry, nil
}
