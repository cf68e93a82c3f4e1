// Package replication gossips a Log's entries to other replicas over a
// libp2p-pubsub topic scoped to the log's ID: every entry handed to
// Broadcast (typically right after a local Append) is published, and every
// broadcast received from a peer is joined into the
// local log, so each replica converges to the same G-Set independent of
// delivery order.
package replication

import (
	"context"
	"fmt"
	"sync"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"

	"oplogdb/go-oplog/oplog"
	"oplogdb/go-oplog/store"
)

// Event reports something a Replicator observed, for callers that want
// visibility beyond what ends up in the log itself.
type Event struct {
	Type string // "joined" or "error"
	Peer peer.ID
	Err  error
}

// Replicator joins a log to a pubsub topic named after the log's ID.
type Replicator struct {
	host   host.Host
	log    *oplog.Log
	store  store.Store
	logger *zap.SugaredLogger

	sizeLimit int

	topic *pubsub.Topic
	sub   *pubsub.Subscription

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	events chan Event
}

// Option configures a Replicator.
type Option func(*Replicator)

// WithSizeLimit bounds the log after every join, per oplog.Log.Join's
// sizeLimit parameter. A negative value (the default, -1) means unbounded.
func WithSizeLimit(n int) Option {
	return func(r *Replicator) { r.sizeLimit = n }
}

// WithLogger attaches a logger; the default is a no-op.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(r *Replicator) { r.logger = logger }
}

// New builds a Replicator for log over ps, joining (but not yet
// subscribing to) the topic "/oplog/<log.ID>". Call Start to begin
// exchanging entries.
func New(h host.Host, ps *pubsub.PubSub, log *oplog.Log, entryStore store.Store, opts ...Option) (*Replicator, error) {
	if h == nil {
		return nil, fmt.Errorf("replication: host is required")
	}
	if ps == nil {
		return nil, fmt.Errorf("replication: pubsub is required")
	}
	if log == nil {
		return nil, fmt.Errorf("replication: log is required")
	}

	topic, err := ps.Join(topicName(log.ID))
	if err != nil {
		return nil, fmt.Errorf("replication: join topic: %w", err)
	}

	r := &Replicator{
		host:      h,
		log:       log,
		store:     entryStore,
		logger:    zap.NewNop().Sugar(),
		sizeLimit: -1,
		topic:     topic,
		events:    make(chan Event, 32),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func topicName(logID string) string {
	return fmt.Sprintf("/oplog/%s", logID)
}

// Events returns the channel Replicator reports activity on. Callers that
// don't care can ignore it; the channel drops events rather than blocking
// when its buffer is full.
func (r *Replicator) Events() <-chan Event {
	return r.events
}

// Start subscribes to the topic and begins processing incoming broadcasts.
func (r *Replicator) Start(ctx context.Context) error {
	sub, err := r.topic.Subscribe()
	if err != nil {
		return fmt.Errorf("replication: subscribe: %w", err)
	}
	r.sub = sub

	r.ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go r.receiveLoop()
	return nil
}

// Stop ends the subscription and releases the topic.
func (r *Replicator) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	if r.sub != nil {
		r.sub.Cancel()
	}
	if err := r.topic.Close(); err != nil {
		return fmt.Errorf("replication: close topic: %w", err)
	}
	close(r.events)
	return nil
}

// Broadcast publishes entry's canonical bytes to every peer subscribed to
// this log's topic. Callers typically invoke this right after a successful
// oplog.Log.Append.
func (r *Replicator) Broadcast(ctx context.Context, entry oplog.Entry) error {
	data, err := oplog.Encode(entry)
	if err != nil {
		return fmt.Errorf("replication: encode entry: %w", err)
	}
	if err := r.topic.Publish(ctx, data); err != nil {
		return fmt.Errorf("replication: publish: %w", err)
	}
	return nil
}

func (r *Replicator) receiveLoop() {
	defer r.wg.Done()

	for {
		msg, err := r.sub.Next(r.ctx)
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			r.logger.Warnw("replication: read pubsub message failed", "error", err)
			r.emit(Event{Type: "error", Err: err})
			continue
		}

		if msg.GetFrom() == r.host.ID() {
			continue
		}

		if err := r.receive(msg.Data); err != nil {
			r.logger.Warnw("replication: receive entry failed", "peer", msg.GetFrom(), "error", err)
			r.emit(Event{Type: "error", Peer: msg.GetFrom(), Err: err})
			continue
		}
		r.emit(Event{Type: "joined", Peer: msg.GetFrom()})
	}
}

// receive decodes a broadcast entry, persists it in the entry store (so a
// later LogIO reconstruction can find it), and joins it into the local log.
func (r *Replicator) receive(data []byte) error {
	entry, err := oplog.DecodeEntry(data)
	if err != nil {
		return fmt.Errorf("decode entry: %w", err)
	}

	hash, err := r.store.Put(data)
	if err != nil {
		return fmt.Errorf("store entry: %w", err)
	}
	entry.Hash = hash

	foreign, err := oplog.NewLog(r.store, oplog.LogOptions{
		ID:      entry.ID,
		Entries: []oplog.Entry{entry},
		Logger:  r.logger,
	})
	if err != nil {
		return fmt.Errorf("build foreign log: %w", err)
	}

	if err := r.log.Join(foreign, r.sizeLimit, ""); err != nil {
		return fmt.Errorf("join: %w", err)
	}
	return nil
}

func (r *Replicator) emit(e Event) {
	select {
	case r.events <- e:
	default:
		r.logger.Debugw("replication: event dropped, buffer full", "type", e.Type)
	}
}
