package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ipld/go-ipld-prime/codec/dagcbor"
	"github.com/ipld/go-ipld-prime/node/basicnode"

	"github.com/ipfs/boxo/blockservice"
	"github.com/ipfs/boxo/blockstore"
	pinner "github.com/ipfs/boxo/pinning/pinner"
	"github.com/ipfs/boxo/pinning/pinner/dspinner"
	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	format "github.com/ipfs/go-ipld-format"
)

// DefaultTimeout bounds each IPFS block operation.
const DefaultTimeout = 30 * time.Second

// IPFSStore is a content-addressed Store backed by a real blockstore and,
// optionally, a pinner — for a replica whose entries need to survive and
// dedup across a durable content-addressed backend rather than a process-
// local map.
type IPFSStore struct {
	blockstore blockstore.Blockstore
	blocksvc   blockservice.BlockService
	pinner     pinner.Pinner
	pin        bool
	timeout    time.Duration
}

// NewIPFSStore builds an IPFSStore over ds. When pin is true, every Put also
// pins the block so a garbage-collecting datastore won't reclaim it.
func NewIPFSStore(ctx context.Context, ds datastore.Batching, dserv format.DAGService, pin bool, timeout time.Duration) (*IPFSStore, error) {
	if ds == nil {
		return nil, fmt.Errorf("store: datastore is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	bs := blockstore.NewBlockstore(ds)
	blocksvc := blockservice.New(bs, nil)

	p, err := dspinner.New(ctx, ds, dserv)
	if err != nil {
		return nil, fmt.Errorf("store: create pinner: %w", err)
	}

	return &IPFSStore{blockstore: bs, blocksvc: blocksvc, pinner: p, pin: pin, timeout: timeout}, nil
}

// Put stores data as a content-addressed block, returning the digest the
// rest of this package's Hash would also compute for the same bytes.
func (s *IPFSStore) Put(data []byte) (string, error) {
	hash, err := Hash(data)
	if err != nil {
		return "", err
	}

	c, err := cid.Decode(hash)
	if err != nil {
		return "", fmt.Errorf("store: decode cid: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	block, err := blocks.NewBlockWithCid(data, c)
	if err != nil {
		return "", fmt.Errorf("store: build block: %w", err)
	}
	if err := s.blockstore.Put(ctx, block); err != nil {
		return "", fmt.Errorf("store: put block: %w", err)
	}

	if s.pin {
		if err := s.pinBlock(ctx, c, data); err != nil {
			return "", err
		}
	}

	return hash, nil
}

func (s *IPFSStore) pinBlock(ctx context.Context, c cid.Cid, data []byte) error {
	_, pinned, err := s.pinner.IsPinned(ctx, c)
	if err != nil {
		return fmt.Errorf("store: check pin state: %w", err)
	}
	if pinned {
		return nil
	}

	node, err := decodeDagCBOR(data)
	if err != nil {
		return fmt.Errorf("store: decode block for pin: %w", err)
	}

	if err := s.pinner.Pin(ctx, wrapIPLDNode(node, c), false); err != nil {
		return fmt.Errorf("store: pin block: %w", err)
	}
	return s.pinner.Flush(ctx)
}

// Get retrieves previously stored bytes by hash.
func (s *IPFSStore) Get(hash string) ([]byte, error) {
	c, err := cid.Decode(hash)
	if err != nil {
		return nil, fmt.Errorf("store: decode cid: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	block, err := s.blocksvc.GetBlock(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return block.RawData(), nil
}

// Clear is not supported: an IPFS-backed store's lifecycle is managed by
// the datastore/GC it sits on, not by this adapter.
func (s *IPFSStore) Clear() error {
	return fmt.Errorf("store: clear not supported for IPFSStore")
}

// Close releases the pinner's in-flight state.
func (s *IPFSStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.pinner.Flush(ctx)
}

func decodeDagCBOR(data []byte) (nodeWithBytes, error) {
	nb := basicnode.Prototype.Any.NewBuilder()
	if err := dagcbor.Decode(nb, bytesReader(data)); err != nil {
		return nodeWithBytes{}, err
	}
	return nodeWithBytes{node: nb.Build(), raw: data}, nil
}
