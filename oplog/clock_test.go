package oplog

import "testing"

func TestCompareClocksOrdersByTimeThenID(t *testing.T) {
	a := NewClock("alice", 1)
	b := NewClock("bob", 2)
	if CompareClocks(a, b) >= 0 {
		t.Fatalf("expected a before b on time, got %d", CompareClocks(a, b))
	}

	tie1 := NewClock("alice", 5)
	tie2 := NewClock("bob", 5)
	if CompareClocks(tie1, tie2) >= 0 {
		t.Fatalf("expected alice before bob on id tiebreak, got %d", CompareClocks(tie1, tie2))
	}
	if CompareClocks(tie2, tie1) <= 0 {
		t.Fatalf("expected bob after alice on id tiebreak, got %d", CompareClocks(tie2, tie1))
	}
	if CompareClocks(tie1, tie1) != 0 {
		t.Fatalf("expected equal clocks to compare 0")
	}
}

func TestTickClockAdvancesTimeOnly(t *testing.T) {
	c := NewClock("alice", 3)
	next := TickClock(c)
	if next.Time != 4 {
		t.Fatalf("expected time 4, got %d", next.Time)
	}
	if next.ID != c.ID {
		t.Fatalf("tick must not change id")
	}
	if c.Time != 3 {
		t.Fatalf("TickClock must not mutate its argument")
	}
}

func TestClockTickMutatesInPlace(t *testing.T) {
	c := NewClock("alice", 0)
	c.Tick()
	c.Tick()
	if c.Time != 2 {
		t.Fatalf("expected time 2 after two ticks, got %d", c.Time)
	}
}

func TestMergeClocksKeepsIDTakesMaxTime(t *testing.T) {
	a := NewClock("alice", 2)
	b := NewClock("bob", 7)
	merged := MergeClocks(a, b)
	if merged.ID != "alice" {
		t.Fatalf("expected merged id to stay alice, got %s", merged.ID)
	}
	if merged.Time != 7 {
		t.Fatalf("expected merged time 7, got %d", merged.Time)
	}

	lower := NewClock("carol", 1)
	merged2 := MergeClocks(a, lower)
	if merged2.Time != 2 {
		t.Fatalf("expected merge to keep a's higher time, got %d", merged2.Time)
	}
}
