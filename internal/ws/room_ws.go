package ws

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chatroom-service/internal/auth"
	"chatroom-service/internal/middleware"
	"chatroom-service/internal/models"
	"chatroom-service/internal/observability"
	"chatroom-service/internal/roomsync"
)

const validationNotice = "Please enter a message or add an attachment."

// RoomHandler serves room visits. Each websocket connection owns one engine
// for the room in its path.
type RoomHandler struct {
	hub      *Hub
	verifier *auth.Verifier
	source   roomsync.RoomSource
	store    roomsync.MessageStore
	opts     []roomsync.Option
	log      *slog.Logger
}

// NewRoomHandler constructs a RoomHandler. opts are applied to every engine.
func NewRoomHandler(hub *Hub, verifier *auth.Verifier, source roomsync.RoomSource, store roomsync.MessageStore, log *slog.Logger, opts ...roomsync.Option) *RoomHandler {
	return &RoomHandler{hub: hub, verifier: verifier, source: source, store: store, opts: opts, log: log}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates, upgrades and serves the visit until the client leaves.
// It blocks for the lifetime of the connection.
func (h *RoomHandler) Handle(c *gin.Context) {
	roomID := strings.TrimSpace(c.Param("room_id"))
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	ctx, span := otel.Tracer("chatroom-service/ws").Start(c.Request.Context(), "ws.handshake")
	token, ok := middleware.BearerToken(c)
	if !ok {
		span.End()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
		return
	}
	identity, err := h.verifier.Verify(token)
	if err != nil {
		span.End()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		span.End()
		return
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      identity.UserID(),
		RoomID:      roomID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	span.End()

	h.serve(ctx, conn, identity, info)
}

func (h *RoomHandler) serve(ctx context.Context, conn *websocket.Conn, identity auth.Identity, info ConnInfo) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	log := h.log.With("conn_id", info.ConnID, "room_id", info.RoomID, "user_id", info.UserID)

	pres := newPresenter(conn, writeWait, func(err error) {
		log.Warn("websocket write failed", "error", err)
		_ = conn.Close()
	})
	opts := append([]roomsync.Option{roomsync.WithLogger(log)}, h.opts...)
	engine := roomsync.New(h.source, h.store, identity, pres, opts...)
	visit := NewVisit(info, visitCloser(conn, engine))

	if prior := h.hub.Register(visit); prior != nil {
		log.Info("closing prior visit", "prior_conn_id", prior.Info.ConnID)
		_ = prior.Close()
	}
	observability.IncWSActive(wsKind)
	publishWSEvent(ctx, "ws_connect", info, "")

	var closeReason string
	defer func() {
		h.hub.Remove(visit)
		_ = visit.Close()
		observability.DecWSActive(wsKind)
		publishWSEvent(context.WithoutCancel(ctx), "ws_disconnect", info, closeReason)
	}()

	pres.Draft(engine.Draft())
	live := true
	if err := engine.Open(ctx, info.RoomID); err != nil {
		// The engine has already rendered the terminal view.
		live = false
		log.Info("room visit is not live", "error", err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				publishWSEvent(ctx, "ws_error", info, closeReason)
			}
			return
		}
		if !live {
			continue
		}
		cmd, err := decodeCommand(data)
		if err != nil {
			log.Debug("dropping command", "error", err)
			continue
		}
		apply(ctx, engine, pres, cmd, log)
	}
}

// draftEditor is the part of the engine driven by client commands.
type draftEditor interface {
	Draft() models.Draft
	Update(patch models.DraftPatch) models.Draft
	RemoveAttachment(ref string) models.Draft
	Send(ctx context.Context) error
}

func apply(ctx context.Context, editor draftEditor, pres *presenter, cmd command, log *slog.Logger) {
	switch cmd.Type {
	case cmdUpdate:
		pres.Draft(editor.Update(models.DraftPatch{Text: cmd.Text, Attachments: cmd.Attachments}))
	case cmdRemoveAttachment:
		pres.Draft(editor.RemoveAttachment(cmd.Ref))
	case cmdSend:
		err := editor.Send(ctx)
		switch {
		case errors.Is(err, roomsync.ErrValidationFailed):
			pres.Notify(models.Notice{Kind: models.NoticeValidationFailed, Text: validationNotice})
		case errors.Is(err, roomsync.ErrRoomUnavailable):
			log.Debug("send to unavailable room ignored")
		case err != nil:
			log.Warn("send rejected", "error", err)
		}
		pres.Draft(editor.Draft())
	}
}

// visitCloser closes the connection before the engine. Closing the
// connection fails any write the engine loop is blocked in, which lets
// engine.Close wait for the loop.
func visitCloser(conn, engine io.Closer) io.Closer {
	return closerFunc(func() error {
		err := conn.Close()
		_ = engine.Close()
		return err
	})
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

var _ roomsync.Presenter = (*presenter)(nil)
