package oplog

import (
	"testing"

	"oplogdb/go-oplog/identity"
	"oplogdb/go-oplog/store"
)

func TestCreateEntrySignsAndStores(t *testing.T) {
	mem := store.NewMemoryStore()
	idn, err := identity.New()
	if err != nil {
		t.Fatalf("identity.New: %v", err)
	}

	clock := NewClock(idn.PublicIdentity(), 1)
	entry, err := CreateEntry(mem, "log-1", []byte("payload"), nil, clock, idn)
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}

	if entry.Hash == "" {
		t.Fatal("expected a non-empty hash")
	}
	if entry.Key != idn.PublicIdentity() {
		t.Fatalf("expected entry key to be signer's public identity")
	}
	if entry.Sig == "" {
		t.Fatal("expected a non-empty signature")
	}

	stored, err := mem.Get(entry.Hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	decoded, err := DecodeEntry(stored)
	if err != nil {
		t.Fatalf("DecodeEntry: %v", err)
	}
	if string(decoded.Payload) != "payload" {
		t.Fatalf("expected payload to round-trip, got %q", decoded.Payload)
	}
	if decoded.ID != "log-1" {
		t.Fatalf("expected id to round-trip, got %q", decoded.ID)
	}
}

func TestCreateEntryUnsignedWhenNoSigner(t *testing.T) {
	mem := store.NewMemoryStore()
	clock := NewClock("anon", 0)
	entry, err := CreateEntry(mem, "log-1", []byte("x"), nil, clock, nil)
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if entry.Key != "" || entry.Sig != "" {
		t.Fatal("expected no key/sig for an unsigned entry")
	}
}

func TestVerifyEntryRejectsTamperedPayload(t *testing.T) {
	mem := store.NewMemoryStore()
	idn, _ := identity.New()
	clock := NewClock(idn.PublicIdentity(), 1)
	entry, err := CreateEntry(mem, "log-1", []byte("original"), nil, clock, idn)
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}

	if err := VerifyEntry(entry, idn); err != nil {
		t.Fatalf("expected untampered entry to verify, got %v", err)
	}

	tampered := entry
	tampered.Payload = []byte("tampered")
	if err := VerifyEntry(tampered, idn); err == nil {
		t.Fatal("expected tampered payload to fail verification")
	}
}

func TestVerifyEntryRequiresKeyAndSig(t *testing.T) {
	idn, _ := identity.New()
	noKey := Entry{Payload: []byte("x")}
	if err := VerifyEntry(noKey, idn); err == nil {
		t.Fatal("expected missing key to error")
	}

	noSig := Entry{Payload: []byte("x"), Key: idn.PublicIdentity()}
	if err := VerifyEntry(noSig, idn); err == nil {
		t.Fatal("expected missing sig to error")
	}
}

func TestCompareEntriesOrdersByClockThenHash(t *testing.T) {
	a := Entry{Hash: "a", Clock: NewClock("x", 1)}
	b := Entry{Hash: "b", Clock: NewClock("x", 2)}
	if CompareEntries(a, b) >= 0 {
		t.Fatal("expected a before b by clock time")
	}

	tieA := Entry{Hash: "a", Clock: NewClock("x", 1)}
	tieB := Entry{Hash: "b", Clock: NewClock("x", 1)}
	if CompareEntries(tieA, tieB) >= 0 {
		t.Fatal("expected hash tiebreak to order a before b")
	}
}

func TestFindChildrenReturnsTransitiveReferencers(t *testing.T) {
	root := Entry{Hash: "root"}
	child := Entry{Hash: "child", Next: []string{"root"}}
	grandchild := Entry{Hash: "grandchild", Next: []string{"child"}}
	other := Entry{Hash: "other"}

	pool := map[string]Entry{
		"root":       root,
		"child":      child,
		"grandchild": grandchild,
		"other":      other,
	}

	children := FindChildren(root, pool)
	if len(children) != 2 {
		t.Fatalf("expected child and grandchild (transitive), got %+v", children)
	}
	hashes := map[string]bool{children[0].Hash: true, children[1].Hash: true}
	if !hashes["child"] || !hashes["grandchild"] {
		t.Fatalf("expected [child, grandchild], got %+v", children)
	}
}

func TestEncodeEntryIsDeterministic(t *testing.T) {
	mem := store.NewMemoryStore()
	idn, _ := identity.New()
	clock := NewClock(idn.PublicIdentity(), 1)

	e1, err := CreateEntry(mem, "log-1", []byte("same"), []string{"z", "a"}, clock, idn)
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}

	body1, err := encodeBody(Entry{ID: e1.ID, Payload: e1.Payload, Next: e1.Next, Clock: e1.Clock, V: e1.V})
	if err != nil {
		t.Fatalf("encodeBody: %v", err)
	}
	body2, err := encodeBody(Entry{ID: e1.ID, Payload: e1.Payload, Next: e1.Next, Clock: e1.Clock, V: e1.V})
	if err != nil {
		t.Fatalf("encodeBody: %v", err)
	}
	if string(body1) != string(body2) {
		t.Fatal("expected identical entries to encode identically")
	}

	if e1.Next[0] != "a" || e1.Next[1] != "z" {
		t.Fatalf("expected predecessors to be canonicalized (sorted), got %v", e1.Next)
	}
}
