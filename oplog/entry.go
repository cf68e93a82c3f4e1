package oplog

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ipld/go-ipld-prime/codec/dagcbor"
	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/ipld/go-ipld-prime/node/basicnode"
)

// EntrySchemaVersion is written into every entry's "v" field so future
// format changes can be detected on decode.
const EntrySchemaVersion = 1

// Signer is the SignatureAdapter seam: it produces signatures over an
// entry's canonical body and verifies signatures produced by any identity,
// not just its own. A Log's ownKey is a Signer; the same Signer also serves
// as the verifier for incoming entries during Join.
type Signer interface {
	// PublicIdentity returns the canonical hex-encoded public key identity
	// used as Entry.Key and, when unsigned mode is not in use, Clock.ID.
	PublicIdentity() string

	// Sign returns a signature over data, using this identity's own key.
	Sign(data []byte) (string, error)

	// Verify checks sig against data for the given public key identity. It
	// does not require the verifier to own pubKeyHex's private key.
	Verify(pubKeyHex string, sig string, data []byte) (bool, error)
}

// EntryStore is the content-addressed store seam an Entry is submitted to.
// Put persists the canonical serialization and returns its stable digest;
// Get retrieves previously stored bytes by that digest.
type EntryStore interface {
	Put(data []byte) (hash string, err error)
	Get(hash string) (data []byte, err error)
}

// Entry is an immutable log record: a node in the DAG described by Next.
type Entry struct {
	ID      string   `json:"id"`
	Payload []byte   `json:"payload"`
	Next    []string `json:"next"`
	Clock   Clock    `json:"clock"`
	V       int      `json:"v"`
	Key     string   `json:"key,omitempty"`
	Sig     string   `json:"sig,omitempty"`
	Hash    string   `json:"hash"`
}

// CreateEntry builds, optionally signs, stores and hashes a new Entry. next
// is canonicalized (sorted, de-duplicated) before the body is serialized,
// so replicas observing the same predecessors produce byte-identical
// bodies. If signer is nil the entry is left unsigned and Key/Sig are
// empty.
func CreateEntry(store EntryStore, logID string, payload []byte, predecessors []string, clock Clock, signer Signer) (Entry, error) {
	if store == nil {
		return Entry{}, ErrStoreMissing
	}
	if logID == "" {
		return Entry{}, fmt.Errorf("oplog: entry requires a log id")
	}

	next := canonicalizeHashes(predecessors)

	entry := Entry{
		ID:      logID,
		Payload: payload,
		Next:    next,
		Clock:   clock,
		V:       EntrySchemaVersion,
	}

	if signer != nil {
		body, err := encodeBody(entry)
		if err != nil {
			return Entry{}, fmt.Errorf("oplog: encode entry body: %w", err)
		}
		sig, err := signer.Sign(body)
		if err != nil {
			return Entry{}, fmt.Errorf("%w: sign entry: %v", ErrStoreError, err)
		}
		entry.Key = signer.PublicIdentity()
		entry.Sig = sig
	}

	full, err := encodeFull(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("oplog: encode entry: %w", err)
	}

	hash, err := store.Put(full)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: put entry: %v", ErrStoreError, err)
	}
	entry.Hash = hash

	return entry, nil
}

// VerifyEntry checks that entry carries a key and signature and that the
// signature validates against the entry's canonical body (excluding hash
// and sig). verifier is typically the Log's own ownKey, since Signer.Verify
// does not depend on owning the private key being checked.
func VerifyEntry(entry Entry, verifier Signer) error {
	if entry.Key == "" {
		return ErrEntryMissingKey
	}
	if entry.Sig == "" {
		return ErrEntryMissingSig
	}
	if verifier == nil {
		return fmt.Errorf("oplog: verify entry: %w", ErrStoreMissing)
	}

	body, err := encodeBody(Entry{
		ID:      entry.ID,
		Payload: entry.Payload,
		Next:    entry.Next,
		Clock:   entry.Clock,
		V:       entry.V,
	})
	if err != nil {
		return fmt.Errorf("oplog: encode entry body: %w", err)
	}

	ok, err := verifier.Verify(entry.Key, entry.Sig, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	if !ok {
		return ErrVerificationFailed
	}
	return nil
}

// CompareEntries is the total order used wherever entries must be sorted:
// lexicographic on (clock.time, clock.id, hash).
func CompareEntries(a, b Entry) int {
	if c := CompareClocks(a.Clock, b.Clock); c != 0 {
		return c
	}
	switch {
	case a.Hash < b.Hash:
		return -1
	case a.Hash > b.Hash:
		return 1
	default:
		return 0
	}
}

// FindChildren returns the entries in pool whose Next transitively reaches
// e. Used for rendering (ToString) only; not on the append/join hot path.
func FindChildren(e Entry, pool map[string]Entry) []Entry {
	var children []Entry
	for _, candidate := range pool {
		if referencesTransitively(candidate, e.Hash, pool, make(map[string]bool)) {
			children = append(children, candidate)
		}
	}
	sort.Slice(children, func(i, j int) bool {
		return CompareEntries(children[i], children[j]) < 0
	})
	return children
}

func referencesTransitively(e Entry, target string, pool map[string]Entry, visited map[string]bool) bool {
	if visited[e.Hash] {
		return false
	}
	visited[e.Hash] = true

	for _, h := range e.Next {
		if h == target {
			return true
		}
		if next, ok := pool[h]; ok && referencesTransitively(next, target, pool, visited) {
			return true
		}
	}
	return false
}

func canonicalizeHashes(hashes []string) []string {
	seen := make(map[string]bool, len(hashes))
	out := make([]string, 0, len(hashes))
	for _, h := range hashes {
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// encodeBody serializes the unsigned/unhashed body of an entry: the bytes a
// signature is computed over.
func encodeBody(e Entry) ([]byte, error) {
	return encodeCBOR(e, false)
}

// encodeFull serializes the entry's canonical form as submitted to the
// store: everything except hash itself.
func encodeFull(e Entry) ([]byte, error) {
	return encodeCBOR(e, true)
}

// Encode serializes e's canonical form for transmission between replicas
// (e.g. over a replication.Replicator broadcast). It's the same bytes
// encodeFull produces and therefore the same bytes store.Hash was computed
// over, so the receiving side's DecodeEntry plus a store.Hash check can
// confirm the entry wasn't altered in transit.
func Encode(e Entry) ([]byte, error) {
	return encodeFull(e)
}

func encodeCBOR(e Entry, includeKeySig bool) ([]byte, error) {
	fieldCount := int64(4)
	if includeKeySig {
		fieldCount = 6
	}

	nb := basicnode.Prototype__Map{}.NewBuilder()
	ma, err := nb.BeginMap(fieldCount)
	if err != nil {
		return nil, err
	}

	if err := assembleStringField(ma, "id", e.ID); err != nil {
		return nil, err
	}
	if err := assembleBytesField(ma, "payload", e.Payload); err != nil {
		return nil, err
	}
	if err := assembleStringList(ma, "next", e.Next); err != nil {
		return nil, err
	}
	if err := assembleClock(ma, "clock", e.Clock); err != nil {
		return nil, err
	}
	if err := assembleIntField(ma, "v", int64(e.V)); err != nil {
		return nil, err
	}

	if includeKeySig {
		if err := assembleStringField(ma, "key", e.Key); err != nil {
			return nil, err
		}
		if err := assembleStringField(ma, "sig", e.Sig); err != nil {
			return nil, err
		}
	}

	if err := ma.Finish(); err != nil {
		return nil, err
	}

	node := nb.Build()
	var buf bytes.Buffer
	if err := dagcbor.Encode(node, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeEntry decodes the canonical CBOR form produced during CreateEntry
// back into an Entry (without Hash, which the store assigns and LogIO fills
// in from the lookup key).
func DecodeEntry(data []byte) (Entry, error) {
	nb := basicnode.Prototype.Any.NewBuilder()
	if err := dagcbor.Decode(nb, bytes.NewReader(data)); err != nil {
		return Entry{}, err
	}
	node := nb.Build()

	var e Entry
	var err error

	if e.ID, err = getString(node, "id"); err != nil {
		return Entry{}, err
	}
	if e.Payload, err = getBytes(node, "payload"); err != nil {
		return Entry{}, err
	}
	if e.Next, err = getStringList(node, "next"); err != nil {
		return Entry{}, err
	}

	clockNode, err := node.LookupByString("clock")
	if err != nil {
		return Entry{}, err
	}
	if e.Clock.ID, err = getString(clockNode, "id"); err != nil {
		return Entry{}, err
	}
	timeVal, err := getInt(clockNode, "time")
	if err != nil {
		return Entry{}, err
	}
	e.Clock.Time = int(timeVal)

	v, err := getInt(node, "v")
	if err != nil {
		return Entry{}, err
	}
	e.V = int(v)

	// key/sig are optional: unsigned entries omit them.
	if e.Key, err = getString(node, "key"); err != nil {
		e.Key = ""
	}
	if e.Sig, err = getString(node, "sig"); err != nil {
		e.Sig = ""
	}

	return e, nil
}

func assembleStringField(ma datamodel.MapAssembler, key, value string) error {
	if err := ma.AssembleKey().AssignString(key); err != nil {
		return err
	}
	return ma.AssembleValue().AssignString(value)
}

func assembleBytesField(ma datamodel.MapAssembler, key string, value []byte) error {
	if err := ma.AssembleKey().AssignString(key); err != nil {
		return err
	}
	return ma.AssembleValue().AssignBytes(value)
}

func assembleIntField(ma datamodel.MapAssembler, key string, value int64) error {
	if err := ma.AssembleKey().AssignString(key); err != nil {
		return err
	}
	return ma.AssembleValue().AssignInt(value)
}

func assembleStringList(ma datamodel.MapAssembler, key string, values []string) error {
	if err := ma.AssembleKey().AssignString(key); err != nil {
		return err
	}
	la, err := ma.AssembleValue().BeginList(int64(len(values)))
	if err != nil {
		return err
	}
	for _, v := range values {
		if err := la.AssembleValue().AssignString(v); err != nil {
			return err
		}
	}
	return la.Finish()
}

func assembleClock(ma datamodel.MapAssembler, key string, clock Clock) error {
	if err := ma.AssembleKey().AssignString(key); err != nil {
		return err
	}
	ca, err := ma.AssembleValue().BeginMap(2)
	if err != nil {
		return err
	}
	if err := assembleStringField(ca, "id", clock.ID); err != nil {
		return err
	}
	if err := assembleIntField(ca, "time", int64(clock.Time)); err != nil {
		return err
	}
	return ca.Finish()
}

func getString(node datamodel.Node, key string) (string, error) {
	child, err := node.LookupByString(key)
	if err != nil {
		return "", err
	}
	return child.AsString()
}

func getBytes(node datamodel.Node, key string) ([]byte, error) {
	child, err := node.LookupByString(key)
	if err != nil {
		return nil, err
	}
	return child.AsBytes()
}

func getInt(node datamodel.Node, key string) (int64, error) {
	child, err := node.LookupByString(key)
	if err != nil {
		return 0, err
	}
	return child.AsInt()
}

func getStringList(node datamodel.Node, key string) ([]string, error) {
	listNode, err := node.LookupByString(key)
	if err != nil {
		return nil, err
	}
	length := listNode.Length()
	list := make([]string, 0, length)
	for i := int64(0); i < length; i++ {
		itemNode, err := listNode.LookupByIndex(i)
		if err != nil {
			return nil, err
		}
		str, err := itemNode.AsString()
		if err != nil {
			return nil, err
		}
		list = append(list, str)
	}
	return list, nil
}
