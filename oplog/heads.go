package oplog

import "sort"

// FindHeads returns the subset of entries not referenced by any other
// entry's Next, sorted by clock.id ascending for deterministic
// serialization.
func FindHeads(entries map[string]Entry) []Entry {
	referenced := make(map[string]bool)
	for _, e := range entries {
		for _, h := range e.Next {
			referenced[h] = true
		}
	}

	heads := make([]Entry, 0)
	for hash, e := range entries {
		if !referenced[hash] {
			heads = append(heads, e)
		}
	}

	sort.Slice(heads, func(i, j int) bool {
		return heads[i].Clock.ID < heads[j].Clock.ID
	})
	return heads
}

// FindTails returns entries that reference a hash not present in entries,
// or whose Next is empty: the entries whose predecessors are not (fully)
// local. Sorted by CompareEntries.
func FindTails(entries map[string]Entry) []Entry {
	var tails []Entry
	for _, e := range entries {
		if len(e.Next) == 0 {
			tails = append(tails, e)
			continue
		}
		for _, h := range e.Next {
			if _, ok := entries[h]; !ok {
				tails = append(tails, e)
				break
			}
		}
	}

	sort.Slice(tails, func(i, j int) bool {
		return CompareEntries(tails[i], tails[j]) < 0
	})
	return tails
}

// FindTailHashes returns the set of external hashes referenced by entries
// that are not themselves present in entries: what must be fetched to
// close the graph.
func FindTailHashes(entries map[string]Entry) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		for _, h := range e.Next {
			if _, ok := entries[h]; ok || seen[h] {
				continue
			}
			seen[h] = true
			out = append(out, h)
		}
	}
	sort.Strings(out)
	return out
}
