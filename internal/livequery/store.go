package livequery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"chatroom-service/internal/db"
	"chatroom-service/internal/models"
	"chatroom-service/internal/repositories"
	"chatroom-service/internal/roomsync"
)

// MessageCreatedKey is the routing key of the event published after a message is stored.
const MessageCreatedKey = "message_events.created"

// EventPublisher publishes domain events. rabbitmq.Publisher satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// MessageCreated is published for every stored message.
type MessageCreated struct {
	EventType  string         `json:"event_type"`
	OccurredAt string         `json:"occurred_at"`
	Message    models.Message `json:"message"`
}

// Store serves room and message live queries from the repositories,
// re-querying the full state whenever the feed reports a change.
type Store struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	feed     *Feed
	events   EventPublisher
	log      *slog.Logger
}

// NewStore builds a Store. events may be nil.
func NewStore(rooms repositories.RoomRepository, messages repositories.MessageRepository, feed *Feed, events EventPublisher, log *slog.Logger) *Store {
	return &Store{rooms: rooms, messages: messages, feed: feed, events: events, log: log}
}

var (
	_ roomsync.RoomSource   = (*Store)(nil)
	_ roomsync.MessageStore = (*Store)(nil)
)

// FetchRoom reads the room once. Absence and denial are snapshot states, not errors.
func (s *Store) FetchRoom(ctx context.Context, roomID, viewerID string) (models.RoomSnapshot, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if errors.Is(err, repositories.ErrRoomNotFound) {
		return models.RoomSnapshot{Status: models.RoomAbsent}, nil
	}
	if err != nil {
		return models.RoomSnapshot{}, err
	}
	if !room.HasMember(viewerID) {
		return models.RoomSnapshot{Status: models.RoomDenied}, nil
	}
	return models.RoomSnapshot{Status: models.RoomPresent, Room: room}, nil
}

// WatchRoom delivers the room document now and after every change.
func (s *Store) WatchRoom(ctx context.Context, roomID, viewerID string, sink func(models.RoomSnapshot)) (io.Closer, error) {
	return s.watch(ctx, db.RoomChangesChannel, roomID, func(ctx context.Context) error {
		snap, err := s.FetchRoom(ctx, roomID, viewerID)
		if err != nil {
			return err
		}
		sink(snap)
		return nil
	}, func(err error) {
		sink(models.RoomSnapshot{Err: err})
	})
}

// WatchMessages delivers the ordered message collection now and after every
// change. Only members of the room may subscribe.
func (s *Store) WatchMessages(ctx context.Context, roomID, viewerID string, sink func(models.MessageSnapshot)) (io.Closer, error) {
	room, err := s.FetchRoom(ctx, roomID, viewerID)
	if err != nil {
		return nil, err
	}
	if room.Status != models.RoomPresent {
		return nil, fmt.Errorf("%w: room %s is %s", roomsync.ErrPermissionDenied, roomID, room.Status)
	}
	return s.watch(ctx, db.MessageChangesChannel, roomID, func(ctx context.Context) error {
		msgs, err := s.messages.ListRoomMessages(ctx, roomID)
		if err != nil {
			return err
		}
		sink(models.MessageSnapshot{Messages: msgs})
		return nil
	}, func(err error) {
		sink(models.MessageSnapshot{Err: err})
	})
}

// AppendMessage stores msg and publishes a MessageCreated event. The sender
// must still be a member of the room.
func (s *Store) AppendMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	room, err := s.FetchRoom(ctx, msg.RoomID, msg.SenderID)
	if err != nil {
		return models.Message{}, err
	}
	if room.Status != models.RoomPresent {
		return models.Message{}, fmt.Errorf("%w: %s may not post to room %s (%s)", roomsync.ErrPermissionDenied, msg.SenderID, msg.RoomID, room.Status)
	}

	stored, err := s.messages.CreateMessage(ctx, msg)
	if err != nil {
		return models.Message{}, err
	}
	if s.events != nil {
		event := MessageCreated{
			EventType:  "message_created",
			OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
			Message:    stored,
		}
		if err := s.events.Publish(ctx, MessageCreatedKey, event); err != nil {
			s.log.Warn("publish message event", "message_id", stored.ID, "error", err)
		}
	}
	return stored, nil
}

// watch runs the initial load synchronously so that establishment errors
// reach the caller, then reloads on every feed signal. A reload error is
// handed to fail and ends the watch.
func (s *Store) watch(ctx context.Context, channel, roomID string, load func(context.Context) error, fail func(error)) (io.Closer, error) {
	signal, unwatch := s.feed.Watch(channel, roomID)
	if err := load(ctx); err != nil {
		unwatch()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &watcher{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		defer unwatch()
		for {
			select {
			case <-ctx.Done():
				return
			case <-signal:
				if err := load(ctx); err != nil {
					if ctx.Err() != nil {
						return
					}
					s.log.Warn("live query reload failed", "channel", channel, "room_id", roomID, "error", err)
					fail(err)
					return
				}
			}
		}
	}()
	return w, nil
}

type watcher struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Close stops the watch and waits for an in-progress delivery to return.
func (w *watcher) Close() error {
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
	return nil
}
