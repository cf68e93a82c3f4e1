package oplog

// Clock is a hybrid Lamport clock: a replica id paired with a logical time.
// It provides a total, deterministic tie-break order over entries whose
// causal relationship is concurrent.
type Clock struct {
	ID   string `json:"id"`
	Time int    `json:"time"`
}

// NewClock builds a Clock at the given time for id.
func NewClock(id string, time int) Clock {
	return Clock{
		ID:   id,
		Time: time,
	}
}

// CompareClocks orders two clocks lexicographically on (time, id). A
// negative result means a sorts before b, positive means after, zero means
// equal.
func CompareClocks(a Clock, b Clock) (res int) {
	dist := a.Time - b.Time
	res = dist

	if dist == 0 && a.ID != b.ID {
		if a.ID < b.ID {
			res = -1
		} else {
			res = 1
		}
	}

	return
}

// TickClock returns a copy of c advanced by one tick.
func TickClock(c Clock) Clock {
	return Clock{ID: c.ID, Time: c.Time + 1}
}

// MergeClocks returns a's clock with time advanced to max(a.Time, b.Time),
// keeping a's id. Used to fold a remote head's clock into the local one.
func MergeClocks(a, b Clock) Clock {
	if b.Time > a.Time {
		return Clock{ID: a.ID, Time: b.Time}
	}
	return a
}

// Tick advances c in place by one tick.
func (c *Clock) Tick() {
	c.Time += 1
}
