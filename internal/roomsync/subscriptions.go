package roomsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"chatroom-service/internal/models"
)

// RoomSource is the document store behind the two live queries of a room visit.
// Watch calls deliver an initial full snapshot and then a full snapshot per change
// until the returned handle is closed.
type RoomSource interface {
	FetchRoom(ctx context.Context, roomID, viewerID string) (models.RoomSnapshot, error)
	WatchRoom(ctx context.Context, roomID, viewerID string, sink func(models.RoomSnapshot)) (io.Closer, error)
	WatchMessages(ctx context.Context, roomID, viewerID string, sink func(models.MessageSnapshot)) (io.Closer, error)
}

// subscriptions owns the room and message live queries of one visit.
type subscriptions struct {
	mu       sync.Mutex
	room     io.Closer
	messages io.Closer
	closed   bool
	stopped  chan struct{}
	log      *slog.Logger
}

// errReleased means the loop released the subscriptions while Open was
// still establishing them. The view already shows why.
var errReleased = errors.New("subscriptions released during open")

func (s *subscriptions) live() bool {
	select {
	case <-s.stopped:
		return false
	default:
		return true
	}
}

// attach stores a handle returned by a Watch call. The watch may already
// have delivered a snapshot that released s; such a handle is closed here.
func (s *subscriptions) attach(query string, c io.Closer) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.closeHandle(query, c)
		return false
	}
	switch query {
	case "room":
		s.room = c
	case "messages":
		s.messages = c
	}
	s.mu.Unlock()
	return true
}

// close cancels both live queries. Safe to call repeatedly and after a
// transport failure; close errors are only logged.
func (s *subscriptions) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.stopped)
	room, messages := s.room, s.messages
	s.mu.Unlock()

	s.closeHandle("room", room)
	s.closeHandle("messages", messages)
}

func (s *subscriptions) closeHandle(query string, c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		s.log.Debug("closing subscription", "query", query, "error", err)
	}
}

func (e *Engine) openSubscriptions(ctx context.Context, roomID string) (*subscriptions, error) {
	subs := &subscriptions{stopped: make(chan struct{}), log: e.log}
	viewer := e.identity.UserID()

	room, err := e.source.WatchRoom(ctx, roomID, viewer, func(snap models.RoomSnapshot) {
		e.enqueue(subs, roomEvent{subs: subs, snap: snap})
	})
	if err != nil {
		subs.close()
		return nil, classifyWatchError("room", roomID, err)
	}
	if !subs.attach("room", room) {
		return nil, errReleased
	}

	messages, err := e.source.WatchMessages(ctx, roomID, viewer, func(snap models.MessageSnapshot) {
		e.enqueue(subs, messagesEvent{subs: subs, snap: snap})
	})
	if err != nil {
		subs.close()
		return nil, classifyWatchError("messages", roomID, err)
	}
	if !subs.attach("messages", messages) {
		return nil, errReleased
	}
	return subs, nil
}

func classifyWatchError(query, roomID string, err error) error {
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrRoomUnavailable) {
		return fmt.Errorf("%w: watch %s of room %s: %v", ErrRoomUnavailable, query, roomID, err)
	}
	return fmt.Errorf("%w: watch %s of room %s: %v", ErrSubscriptionFailed, query, roomID, err)
}
