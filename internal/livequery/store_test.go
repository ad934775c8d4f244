package livequery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatroom-service/internal/db"
	"chatroom-service/internal/mocks"
	"chatroom-service/internal/models"
	"chatroom-service/internal/repositories"
	"chatroom-service/internal/roomsync"
)

var room = models.Room{ID: "R1", Title: "general", OwnerID: "owner", Invitees: []string{"guest"}}

type snapshots[T any] struct {
	mu  sync.Mutex
	all []T
}

func (s *snapshots[T]) add(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = append(s.all, v)
}

func (s *snapshots[T]) list() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]T{}, s.all...)
}

func newStore(rooms *mocks.RoomRepositoryMock, messages *mocks.MessageRepositoryMock, events EventPublisher) (*Store, *Feed) {
	feed := NewFeed(slog.Default())
	return NewStore(rooms, messages, feed, events, slog.Default()), feed
}

func TestFetchRoomStates(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	store, _ := newStore(rooms, new(mocks.MessageRepositoryMock), nil)
	rooms.On("GetRoom", mock.Anything, "R1").Return(room, nil)
	rooms.On("GetRoom", mock.Anything, "gone").Return(nil, repositories.ErrRoomNotFound)

	snap, err := store.FetchRoom(context.Background(), "R1", "guest")
	require.NoError(t, err)
	require.Equal(t, models.RoomPresent, snap.Status)
	require.Equal(t, "general", snap.Room.Title)

	snap, err = store.FetchRoom(context.Background(), "R1", "stranger")
	require.NoError(t, err)
	require.Equal(t, models.RoomDenied, snap.Status)

	snap, err = store.FetchRoom(context.Background(), "gone", "guest")
	require.NoError(t, err)
	require.Equal(t, models.RoomAbsent, snap.Status)
}

func TestWatchRoomDeliversInitialAndChangedSnapshots(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	store, feed := newStore(rooms, new(mocks.MessageRepositoryMock), nil)
	rooms.On("GetRoom", mock.Anything, "R1").Return(room, nil).Once()
	rooms.On("GetRoom", mock.Anything, "R1").Return(nil, repositories.ErrRoomNotFound).Once()

	var got snapshots[models.RoomSnapshot]
	sub, err := store.WatchRoom(context.Background(), "R1", "owner", got.add)
	require.NoError(t, err)
	defer sub.Close()
	require.Len(t, got.list(), 1)

	feed.Dispatch(&pq.Notification{Channel: db.RoomChangesChannel, Extra: "R1"})

	require.Eventually(t, func() bool { return len(got.list()) == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, models.RoomAbsent, got.list()[1].Status)
	rooms.AssertExpectations(t)
}

func TestWatchRoomEstablishmentError(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	store, feed := newStore(rooms, new(mocks.MessageRepositoryMock), nil)
	rooms.On("GetRoom", mock.Anything, "R1").Return(nil, errors.New("connection refused")).Once()

	sub, err := store.WatchRoom(context.Background(), "R1", "owner", func(models.RoomSnapshot) {})

	require.Error(t, err)
	require.Nil(t, sub)
	require.Zero(t, feed.Watchers())
}

func TestWatchMessagesRequiresMembership(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	store, _ := newStore(rooms, new(mocks.MessageRepositoryMock), nil)
	rooms.On("GetRoom", mock.Anything, "R1").Return(room, nil)

	_, err := store.WatchMessages(context.Background(), "R1", "stranger", func(models.MessageSnapshot) {})

	require.ErrorIs(t, err, roomsync.ErrPermissionDenied)
}

func TestWatchMessagesReloadsAndStopsOnError(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	store, feed := newStore(rooms, messages, nil)
	rooms.On("GetRoom", mock.Anything, "R1").Return(room, nil)
	first := []models.Message{{ID: "m1", RoomID: "R1"}}
	second := []models.Message{{ID: "m1", RoomID: "R1"}, {ID: "m2", RoomID: "R1"}}
	messages.On("ListRoomMessages", mock.Anything, "R1").Return(first, nil).Once()
	messages.On("ListRoomMessages", mock.Anything, "R1").Return(second, nil).Once()
	messages.On("ListRoomMessages", mock.Anything, "R1").Return(nil, errors.New("bad connection")).Once()

	var got snapshots[models.MessageSnapshot]
	sub, err := store.WatchMessages(context.Background(), "R1", "guest", got.add)
	require.NoError(t, err)
	defer sub.Close()

	notify := &pq.Notification{Channel: db.MessageChangesChannel, Extra: "R1"}
	feed.Dispatch(notify)
	require.Eventually(t, func() bool { return len(got.list()) == 2 }, time.Second, 5*time.Millisecond)
	require.Len(t, got.list()[1].Messages, 2)

	feed.Dispatch(notify)
	require.Eventually(t, func() bool { return len(got.list()) == 3 }, time.Second, 5*time.Millisecond)
	require.Error(t, got.list()[2].Err)
	require.Eventually(t, func() bool { return feed.Watchers() == 0 }, time.Second, 5*time.Millisecond)
	messages.AssertExpectations(t)
}

func TestWatchCloseIsIdempotentAndUnregisters(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	store, feed := newStore(rooms, new(mocks.MessageRepositoryMock), nil)
	rooms.On("GetRoom", mock.Anything, "R1").Return(room, nil)

	sub, err := store.WatchRoom(context.Background(), "R1", "owner", func(models.RoomSnapshot) {})
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	require.Zero(t, feed.Watchers())
}

func TestAppendMessagePublishesEvent(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	publisher := new(mocks.PublisherMock)
	store, _ := newStore(rooms, messages, publisher)
	rooms.On("GetRoom", mock.Anything, "R1").Return(room, nil).Once()
	in := models.Message{RoomID: "R1", SenderID: "owner", Text: "hi"}
	stored := in
	stored.ID = "m1"
	messages.On("CreateMessage", mock.Anything, in).Return(stored, nil).Once()
	publisher.On("Publish", mock.Anything, MessageCreatedKey, mock.MatchedBy(func(ev MessageCreated) bool {
		return ev.Message.ID == "m1"
	})).Return(errors.New("broker down")).Once()

	out, err := store.AppendMessage(context.Background(), in)

	require.NoError(t, err)
	require.Equal(t, "m1", out.ID)
	messages.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestAppendMessageFailure(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	store, _ := newStore(rooms, messages, nil)
	rooms.On("GetRoom", mock.Anything, "R1").Return(room, nil).Once()
	messages.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("violates foreign key")).Once()

	_, err := store.AppendMessage(context.Background(), models.Message{RoomID: "R1", SenderID: "guest"})

	require.Error(t, err)
	messages.AssertExpectations(t)
}

func TestAppendMessageRequiresMembership(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	store, _ := newStore(rooms, messages, nil)
	rooms.On("GetRoom", mock.Anything, "R1").Return(room, nil)
	rooms.On("GetRoom", mock.Anything, "gone").Return(nil, repositories.ErrRoomNotFound)

	_, err := store.AppendMessage(context.Background(), models.Message{RoomID: "R1", SenderID: "revoked", Text: "hi"})
	require.ErrorIs(t, err, roomsync.ErrPermissionDenied)

	_, err = store.AppendMessage(context.Background(), models.Message{RoomID: "gone", SenderID: "owner", Text: "hi"})
	require.ErrorIs(t, err, roomsync.ErrPermissionDenied)

	messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}
