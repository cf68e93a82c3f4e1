package main

import (
	"context"
	"fmt"
	"log"

	"github.com/ipfs/boxo/blockservice"
	"github.com/ipfs/boxo/blockstore"
	"github.com/ipfs/boxo/ipld/merkledag"
	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"

	"oplogdb/go-oplog/database"
	"oplogdb/go-oplog/identity"
	"oplogdb/go-oplog/oplog"
	"oplogdb/go-oplog/replication"
	"oplogdb/go-oplog/store"
)

// newBackend builds the two-leg content-addressed store every log in this
// process reads and writes through: an in-memory cache in front of a
// blockstore-backed IPFSStore, so entries survive the cache being cleared
// without needing a real IPFS daemon.
func newBackend(ctx context.Context) (store.Store, error) {
	ds := dssync.MutexWrap(datastore.NewMapDatastore())
	bs := blockstore.NewBlockstore(ds)
	dagService := merkledag.NewDAGService(blockservice.New(bs, nil))

	ipfsStore, err := store.NewIPFSStore(ctx, ds, dagService, true, store.DefaultTimeout)
	if err != nil {
		return nil, fmt.Errorf("build ipfs store: %w", err)
	}

	return store.NewComposedStore(store.NewMemoryStore(), ipfsStore)
}

// This entrypoint wires the pieces of the module together end to end: an
// identity signs entries, a log enforces the G-Set join/access-control
// rules over them, a database view folds them into a key-value shape, and
// a replicator gossips them to any peers subscribed to the same log.
func main() {
	idn, err := identity.New()
	if err != nil {
		log.Fatalf("generate identity: %v", err)
	}

	backend, err := newBackend(context.Background())
	if err != nil {
		log.Fatalf("build backend store: %v", err)
	}

	oplogInstance, err := oplog.NewLog(backend, oplog.LogOptions{
		ID:          "example-db",
		OwnKey:      idn,
		AllowedKeys: oplog.NewAllowedKeys(idn.PublicIdentity()),
	})
	if err != nil {
		log.Fatalf("open log: %v", err)
	}

	kv := database.NewKeyValue(database.NewStore(oplogInstance))
	if _, err := kv.Put("greeting", "hello world"); err != nil {
		log.Fatalf("put: %v", err)
	}

	value, err := kv.Get("greeting")
	if err != nil {
		log.Fatalf("get: %v", err)
	}
	fmt.Printf("greeting = %s\n", value)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, err := libp2p.New()
	if err != nil {
		log.Fatalf("start libp2p host: %v", err)
	}
	defer h.Close()

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		log.Fatalf("start pubsub: %v", err)
	}

	replicator, err := replication.New(h, ps, oplogInstance, backend,
		replication.WithSizeLimit(-1),
	)
	if err != nil {
		log.Fatalf("start replicator: %v", err)
	}
	if err := replicator.Start(ctx); err != nil {
		log.Fatalf("replicator.Start: %v", err)
	}
	defer replicator.Stop()

	fmt.Printf("peer %s replicating log %q\n", h.ID(), oplogInstance.ID)
}
