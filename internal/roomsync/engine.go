// Package roomsync keeps a live, ordered view of one chat room and sends
// messages composed by the viewer.
//
// An Engine serves a single room visit. Snapshots from the room and message
// live queries, debounced scroll requests and send failures all pass through
// one queue and are applied by one goroutine, which is also the only caller
// of the Presenter.
package roomsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"chatroom-service/internal/models"
)

const (
	DefaultScrollDelay = 300 * time.Millisecond
	DefaultSendTimeout = 10 * time.Second
	defaultQueueSize   = 64
)

var errNotOpen = errors.New("engine not opened")

// Presenter receives everything the rendering layer needs. Its methods are
// called from the engine loop and must not call Close.
type Presenter interface {
	Render(view models.ViewModel)
	ScrollToLatest()
	Notify(notice models.Notice)
}

// Identity is the signed-in user as seen by the engine.
type Identity interface {
	UserID() string
	DisplayName() string
}

// MessageStore persists new messages. The store assigns identifiers.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg models.Message) (models.Message, error)
}

// Metrics observes the engine. All methods must be cheap.
type Metrics interface {
	SnapshotApplied(kind string)
	SendCompleted(outcome string)
	DuplicatesCollapsed(n int)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. It defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithClock sets the source of message creation timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithScrollDelay sets the trailing delay of the scroll-to-latest debounce.
func WithScrollDelay(d time.Duration) Option {
	return func(e *Engine) { e.scrollDelay = d }
}

// WithSendTimeout bounds a single persist call.
func WithSendTimeout(d time.Duration) Option {
	return func(e *Engine) { e.sendTimeout = d }
}

// WithQueueSize sets the capacity of the event queue feeding the loop.
func WithQueueSize(n int) Option {
	return func(e *Engine) { e.queueSize = n }
}

// WithMetrics reports snapshots, sends and collapsed duplicates to m.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

type event any

type roomEvent struct {
	subs *subscriptions
	snap models.RoomSnapshot
}

type messagesEvent struct {
	subs *subscriptions
	snap models.MessageSnapshot
}

type scrollEvent struct{}

type sendFailedEvent struct{ err error }

type failEvent struct{ err error }

type unavailableEvent struct{}

// Engine synchronizes one room visit.
type Engine struct {
	source    RoomSource
	store     MessageStore
	identity  Identity
	presenter Presenter
	composer  *Composer

	log         *slog.Logger
	clock       func() time.Time
	scrollDelay time.Duration
	sendTimeout time.Duration
	queueSize   int
	metrics     Metrics
	tracer      trace.Tracer

	// owned by the loop goroutine
	reconciler Reconciler

	mu          sync.Mutex
	roomID      string
	opened      bool
	closed      bool
	unavailable bool
	subs     *subscriptions
	scroll   *debouncer
	queue    chan event
	done     chan struct{}
	loopDone chan struct{}
}

// New builds an engine. Nothing is subscribed until Open.
func New(source RoomSource, store MessageStore, identity Identity, presenter Presenter, opts ...Option) *Engine {
	e := &Engine{
		source:      source,
		store:       store,
		identity:    identity,
		presenter:   presenter,
		composer:    NewComposer(),
		log:         slog.Default(),
		clock:       time.Now,
		scrollDelay: DefaultScrollDelay,
		sendTimeout: DefaultSendTimeout,
		queueSize:   defaultQueueSize,
		metrics:     noopMetrics{},
		tracer:      otel.Tracer("chatroom-service/roomsync"),
		done:        make(chan struct{}),
		loopDone:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.queue = make(chan event, e.queueSize)
	e.scroll = newDebouncer(e.scrollDelay, func() { e.enqueue(nil, scrollEvent{}) })
	return e
}

// RoomID returns the room passed to Open.
func (e *Engine) RoomID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.roomID
}

// Open fetches the room once for the initial view and then starts the room
// and message live queries. The caller must call Close on every exit path,
// including when Open fails.
func (e *Engine) Open(ctx context.Context, roomID string) error {
	if roomID == "" {
		return ErrEmptyRoomID
	}

	e.mu.Lock()
	switch {
	case e.closed:
		e.mu.Unlock()
		return ErrEngineClosed
	case e.opened:
		e.mu.Unlock()
		return ErrAlreadyOpen
	}
	e.opened = true
	e.roomID = roomID
	e.mu.Unlock()

	go e.run()
	log := e.log.With("room_id", roomID, "user_id", e.identity.UserID())

	snap, err := e.source.FetchRoom(ctx, roomID, e.identity.UserID())
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			e.markUnavailable()
			e.enqueue(nil, unavailableEvent{})
			return fmt.Errorf("%w: %s", ErrRoomUnavailable, roomID)
		}
		e.enqueue(nil, failEvent{err: err})
		return fmt.Errorf("%w: fetch room %s: %v", ErrSubscriptionFailed, roomID, err)
	}
	if !snap.Available() {
		e.markUnavailable()
	}
	e.enqueue(nil, roomEvent{snap: snap})
	if !snap.Available() {
		log.Info("room not available", "status", snap.Status)
		return fmt.Errorf("%w: %s", ErrRoomUnavailable, roomID)
	}

	subs, err := e.openSubscriptions(ctx, roomID)
	if errors.Is(err, errReleased) {
		if e.isUnavailable() {
			return fmt.Errorf("%w: %s", ErrRoomUnavailable, roomID)
		}
		return fmt.Errorf("%w: room %s", ErrSubscriptionFailed, roomID)
	}
	if err != nil {
		log.Warn("opening live queries", "error", err)
		if errors.Is(err, ErrRoomUnavailable) {
			e.markUnavailable()
			e.enqueue(nil, unavailableEvent{})
		} else {
			e.enqueue(nil, failEvent{err: err})
		}
		return err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		subs.close()
		return ErrEngineClosed
	}
	e.subs = subs
	e.mu.Unlock()

	log.Debug("room opened")
	return nil
}

// Close tears the visit down: both live queries are cancelled, pending
// scroll requests dropped and the loop stopped. In-flight sends may still
// finish but their results are discarded. Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	opened := e.opened
	subs := e.subs
	e.subs = nil
	e.mu.Unlock()

	if subs != nil {
		subs.close()
	}
	e.scroll.Stop()
	close(e.done)
	if opened {
		<-e.loopDone
	}
	e.log.Debug("room closed", "room_id", e.RoomID())
	return nil
}

// Draft returns the current composition.
func (e *Engine) Draft() models.Draft {
	return e.composer.Draft()
}

// Update merges patch into the composition.
func (e *Engine) Update(patch models.DraftPatch) models.Draft {
	return e.composer.Update(patch)
}

// RemoveAttachment removes the first occurrence of ref from the composition.
func (e *Engine) RemoveAttachment(ref string) models.Draft {
	return e.composer.RemoveAttachment(ref)
}

// Send validates the composition, clears it, and persists it in the
// background. ErrValidationFailed and ErrRoomUnavailable leave the draft in
// place. A persist
// failure is reported later as a NoticeSendFailed and the cleared draft is
// not restored.
func (e *Engine) Send(ctx context.Context) error {
	e.mu.Lock()
	closed, opened, unavailable, roomID := e.closed, e.opened, e.unavailable, e.roomID
	e.mu.Unlock()
	if closed {
		return ErrEngineClosed
	}
	if !opened {
		return errNotOpen
	}
	if unavailable {
		return fmt.Errorf("%w: %s", ErrRoomUnavailable, roomID)
	}

	draft, err := e.composer.flush()
	if err != nil {
		e.metrics.SendCompleted("invalid")
		return err
	}

	record := models.Message{
		RoomID:      roomID,
		SenderID:    e.identity.UserID(),
		SenderName:  e.identity.DisplayName(),
		Text:        draft.Text,
		Attachments: draft.Attachments,
		Status:      "",
		CreatedAt:   e.clock().UTC(),
	}
	go e.persist(ctx, record)
	return nil
}

func (e *Engine) persist(parent context.Context, record models.Message) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), e.sendTimeout)
	defer cancel()
	ctx, span := e.tracer.Start(ctx, "roomsync.persist")
	defer span.End()

	err := validate.Struct(record)
	if err == nil {
		_, err = e.store.AppendMessage(ctx, record)
	}
	if err != nil {
		span.RecordError(err)
		e.metrics.SendCompleted("failed")
		e.log.Warn("persist message", "room_id", record.RoomID, "error", err)
		e.enqueue(nil, sendFailedEvent{err: fmt.Errorf("%w: %v", ErrSendFailed, err)})
		return
	}
	e.metrics.SendCompleted("ok")
}

func (e *Engine) enqueue(subs *subscriptions, ev event) {
	var stopped <-chan struct{}
	if subs != nil {
		if !subs.live() {
			return
		}
		stopped = subs.stopped
	}
	select {
	case <-e.done:
		return
	default:
	}
	select {
	case e.queue <- ev:
	case <-e.done:
	case <-stopped:
	}
}

func (e *Engine) run() {
	defer close(e.loopDone)
	for {
		select {
		case <-e.done:
			return
		case ev := <-e.queue:
			select {
			case <-e.done:
				return
			default:
			}
			e.handle(ev)
		}
	}
}

func (e *Engine) handle(ev event) {
	switch ev := ev.(type) {
	case roomEvent:
		if ev.subs != nil && !ev.subs.live() {
			return
		}
		view, collapsed := e.reconciler.ApplyRoom(ev.snap)
		if e.reconciler.Unavailable() {
			e.markUnavailable()
		}
		e.metrics.SnapshotApplied("room")
		e.render(view, collapsed)
		if ev.snap.Err != nil || e.reconciler.Unavailable() {
			e.releaseSubscriptions(ev.subs)
		}
	case messagesEvent:
		if ev.subs != nil && !ev.subs.live() {
			return
		}
		view, collapsed := e.reconciler.ApplyMessages(ev.snap)
		e.metrics.SnapshotApplied("messages")
		e.render(view, collapsed)
		if ev.snap.Err != nil {
			e.releaseSubscriptions(ev.subs)
			return
		}
		if view.State == models.ViewReady {
			e.scroll.Trigger()
		}
	case scrollEvent:
		e.presenter.ScrollToLatest()
	case sendFailedEvent:
		e.presenter.Notify(models.Notice{Kind: models.NoticeSendFailed, Text: "Message failed to send!"})
	case failEvent:
		e.presenter.Render(e.reconciler.Fail(ev.err))
	case unavailableEvent:
		e.markUnavailable()
		e.presenter.Render(e.reconciler.MarkUnavailable())
	}
}

func (e *Engine) render(view models.ViewModel, collapsed int) {
	if collapsed > 0 {
		e.log.Warn("collapsed duplicate message ids in snapshot", "room_id", e.RoomID(), "count", collapsed)
		e.metrics.DuplicatesCollapsed(collapsed)
	}
	e.presenter.Render(view)
}

// markUnavailable latches the terminal state for Send, which runs outside
// the loop.
func (e *Engine) markUnavailable() {
	e.mu.Lock()
	e.unavailable = true
	e.mu.Unlock()
}

func (e *Engine) isUnavailable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unavailable
}

// releaseSubscriptions drops the live queries once the view reached a state
// no further snapshot can change. from may not be stored in e.subs yet when
// Open is still running.
func (e *Engine) releaseSubscriptions(from *subscriptions) {
	e.mu.Lock()
	subs := e.subs
	e.subs = nil
	e.mu.Unlock()
	if subs != nil {
		subs.close()
	}
	if from != nil {
		from.close()
	}
}

type noopMetrics struct{}

func (noopMetrics) SnapshotApplied(string)  {}
func (noopMetrics) SendCompleted(string)    {}
func (noopMetrics) DuplicatesCollapsed(int) {}
