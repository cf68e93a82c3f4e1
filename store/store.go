// Package store provides the EntryStore adapter: content-addressed
// persistence for the canonical bytes an oplog.Entry is serialized to. Put
// computes a stable digest over its input and persists the bytes under it;
// Get retrieves previously stored bytes by that digest.
package store

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	mh "github.com/multiformats/go-multihash"
)

// ErrNotFound is returned by Get when the hash is unknown to the store.
var ErrNotFound = errors.New("store: not found")

// Store is the EntryStore seam, plus the lifecycle operations every backend
// in this package offers. oplog.Log only needs Put/Get; Clear/Close exist
// for the same reason the teacher's storage.Storage interface carried them:
// callers that own the backend (tests, CLI-less embedding code) need a way
// to reset or release it.
type Store interface {
	Put(data []byte) (hash string, err error)
	Get(hash string) (data []byte, err error)
	Clear() error
	Close() error
}

// Hash computes the content address for data: a CIDv1 (dag-cbor codec,
// sha2-256 digest) encoded as base58btc, matching the digest an
// oplog.Entry adopts as its Hash. Stores call this from Put so that two
// backends fed the same bytes produce the same key.
func Hash(data []byte) (string, error) {
	digest, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("store: hash: %w", err)
	}
	c := cid.NewCidV1(cid.DagCBOR, digest)
	s, err := c.StringOfBase(multibase.Base58BTC)
	if err != nil {
		return "", fmt.Errorf("store: encode cid: %w", err)
	}
	return s, nil
}
