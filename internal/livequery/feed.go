// Package livequery turns PostgreSQL change notifications into full-snapshot
// live queries over rooms and their messages.
package livequery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"

	"chatroom-service/internal/db"
)

type watchKey struct {
	channel string
	roomID  string
}

// Feed fans NOTIFY payloads out to watchers of a (channel, room) pair.
// Signals are coalesced: a watcher that is busy re-querying sees at most one
// pending signal, which is enough since every query returns the full state.
type Feed struct {
	mu       sync.Mutex
	watchers map[watchKey]map[uint64]chan struct{}
	next     uint64
	log      *slog.Logger
}

// NewFeed creates an empty feed.
func NewFeed(log *slog.Logger) *Feed {
	return &Feed{
		watchers: make(map[watchKey]map[uint64]chan struct{}),
		log:      log,
	}
}

// Watch registers interest in changes of roomID on channel. The returned
// function unregisters it.
func (f *Feed) Watch(channel, roomID string) (<-chan struct{}, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := watchKey{channel: channel, roomID: roomID}
	if _, ok := f.watchers[key]; !ok {
		f.watchers[key] = make(map[uint64]chan struct{})
	}
	f.next++
	id := f.next
	signal := make(chan struct{}, 1)
	f.watchers[key][id] = signal

	var once sync.Once
	return signal, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if set, ok := f.watchers[key]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(f.watchers, key)
				}
			}
		})
	}
}

// Dispatch signals the watchers of n. A nil notification means the
// connection was re-established and changes may have been missed, so every
// watcher is signalled.
func (f *Feed) Dispatch(n *pq.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n == nil {
		for _, set := range f.watchers {
			signalAll(set)
		}
		return
	}
	signalAll(f.watchers[watchKey{channel: n.Channel, roomID: n.Extra}])
}

// Watchers reports how many watchers are registered.
func (f *Feed) Watchers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, set := range f.watchers {
		total += len(set)
	}
	return total
}

func signalAll(set map[uint64]chan struct{}) {
	for _, signal := range set {
		select {
		case signal <- struct{}{}:
		default:
		}
	}
}

// Run dispatches notifications until ctx is done or the channel closes.
func (f *Feed) Run(ctx context.Context, notifications <-chan *pq.Notification) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-notifications:
			if !ok {
				return nil
			}
			f.Dispatch(n)
		}
	}
}

// Listen opens a pq.Listener on the room and message channels. The listener
// reconnects on its own, waiting between minReconnect and maxReconnect.
func Listen(dsn string, minReconnect, maxReconnect time.Duration, log *slog.Logger) (*pq.Listener, error) {
	listener := pq.NewListener(dsn, minReconnect, maxReconnect, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			log.Info("change feed connected")
		case pq.ListenerEventDisconnected:
			log.Warn("change feed disconnected", "error", err)
		case pq.ListenerEventReconnected:
			log.Info("change feed reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			log.Warn("change feed connection attempt failed", "error", err)
		}
	})
	for _, channel := range []string{db.RoomChangesChannel, db.MessageChangesChannel} {
		if err := listener.Listen(channel); err != nil {
			listener.Close()
			return nil, fmt.Errorf("listen %s: %w", channel, err)
		}
	}
	return listener, nil
}
