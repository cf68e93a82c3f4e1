package replication_test

import (
	"context"
	"testing"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oplogdb/go-oplog/identity"
	"oplogdb/go-oplog/oplog"
	"oplogdb/go-oplog/replication"
	"oplogdb/go-oplog/store"
)

func newTestLog(t *testing.T, logID string) (*oplog.Log, store.Store) {
	t.Helper()
	idn, err := identity.New()
	require.NoError(t, err)

	mem := store.NewMemoryStore()
	log, err := oplog.NewLog(mem, oplog.LogOptions{
		ID:          logID,
		OwnKey:      idn,
		AllowedKeys: oplog.NewAllowedKeys(oplog.WildcardKey),
	})
	require.NoError(t, err)
	return log, mem
}

// connectedHostPair builds two libp2p hosts, wires their peerstores, and
// connects them directly, mirroring the teacher's syncutils test setup.
func connectedHostPair(t *testing.T, ctx context.Context) (host.Host, host.Host, *pubsub.PubSub, *pubsub.PubSub) {
	t.Helper()

	hostA, err := libp2p.New()
	require.NoError(t, err)
	hostB, err := libp2p.New()
	require.NoError(t, err)

	hostA.Peerstore().AddAddr(hostB.ID(), hostB.Addrs()[0], peerstore.PermanentAddrTTL)
	hostB.Peerstore().AddAddr(hostA.ID(), hostA.Addrs()[0], peerstore.PermanentAddrTTL)
	require.NoError(t, hostA.Connect(ctx, peer.AddrInfo{ID: hostB.ID()}))
	require.NoError(t, hostB.Connect(ctx, peer.AddrInfo{ID: hostA.ID()}))

	psA, err := pubsub.NewGossipSub(ctx, hostA)
	require.NoError(t, err)
	psB, err := pubsub.NewGossipSub(ctx, hostB)
	require.NoError(t, err)

	return hostA, hostB, psA, psB
}

func waitForPeers(t *testing.T, psA, psB *pubsub.PubSub, topic string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for peer discovery")
		default:
			if len(psA.ListPeers(topic)) > 0 && len(psB.ListPeers(topic)) > 0 {
				return
			}
			time.Sleep(50 * time.Millisecond)
		}
	}
}

func TestReplicatorBroadcastAndJoin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logA, storeA := newTestLog(t, "shared-log")
	logB, storeB := newTestLog(t, "shared-log")

	hostA, hostB, psA, psB := connectedHostPair(t, ctx)
	defer hostA.Close()
	defer hostB.Close()

	repA, err := replication.New(hostA, psA, logA, storeA)
	require.NoError(t, err)
	repB, err := replication.New(hostB, psB, logB, storeB)
	require.NoError(t, err)

	require.NoError(t, repA.Start(ctx))
	require.NoError(t, repB.Start(ctx))
	defer repA.Stop()
	defer repB.Stop()

	waitForPeers(t, psA, psB, "/oplog/shared-log")

	entry, err := logA.Append([]byte("hello from A"))
	require.NoError(t, err)
	require.NoError(t, repA.Broadcast(ctx, entry))

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := logB.Get(entry.Hash); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for entry to replicate to B")
		default:
			time.Sleep(50 * time.Millisecond)
		}
	}

	got, ok := logB.Get(entry.Hash)
	require.True(t, ok)
	assert.Equal(t, entry.Payload, got.Payload)
}

func TestReplicatorIgnoresSelfBroadcasts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logA, storeA := newTestLog(t, "solo-log")
	hostA, err := libp2p.New()
	require.NoError(t, err)
	defer hostA.Close()

	psA, err := pubsub.NewGossipSub(ctx, hostA)
	require.NoError(t, err)

	repA, err := replication.New(hostA, psA, logA, storeA)
	require.NoError(t, err)
	require.NoError(t, repA.Start(ctx))
	defer repA.Stop()

	entry, err := logA.Append([]byte("solo"))
	require.NoError(t, err)
	require.NoError(t, repA.Broadcast(ctx, entry))

	select {
	case ev := <-repA.Events():
		t.Fatalf("unexpected event from own broadcast: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}
