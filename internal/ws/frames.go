package ws

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"chatroom-service/internal/models"
)

// Frame types pushed to the client.
const (
	frameView   = "view"
	frameScroll = "scroll"
	frameNotice = "notice"
	frameDraft  = "draft"
)

// Command types accepted from the client.
const (
	cmdUpdate           = "update"
	cmdRemoveAttachment = "remove_attachment"
	cmdSend             = "send"
)

type frame struct {
	Type   string            `json:"type"`
	View   *models.ViewModel `json:"view,omitempty"`
	Notice *models.Notice    `json:"notice,omitempty"`
	Draft  *models.Draft     `json:"draft,omitempty"`
}

type command struct {
	Type        string   `json:"type" validate:"required,oneof=update remove_attachment send"`
	Text        *string  `json:"text,omitempty"`
	Attachments []string `json:"attachments,omitempty" validate:"omitempty,dive,required"`
	Ref         string   `json:"ref,omitempty" validate:"required_if=Type remove_attachment"`
}

var validate = validator.New()

func decodeCommand(data []byte) (command, error) {
	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return command{}, fmt.Errorf("decode command: %w", err)
	}
	if err := validate.Struct(cmd); err != nil {
		return command{}, fmt.Errorf("invalid command: %w", err)
	}
	return cmd, nil
}

// writeWait bounds a single frame write so a stalled client cannot hold the
// engine loop.
const writeWait = 10 * time.Second

type frameWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteJSON(v interface{}) error
}

// presenter writes engine output to the websocket. The engine's loop and
// the read loop both write, so writes are serialized.
type presenter struct {
	mu      sync.Mutex
	conn    frameWriter
	timeout time.Duration
	failed  bool
	onFail  func(error)
}

func newPresenter(conn frameWriter, timeout time.Duration, onFail func(error)) *presenter {
	return &presenter{conn: conn, timeout: timeout, onFail: onFail}
}

func (p *presenter) Render(view models.ViewModel) {
	p.write(frame{Type: frameView, View: &view})
}

func (p *presenter) ScrollToLatest() {
	p.write(frame{Type: frameScroll})
}

func (p *presenter) Notify(notice models.Notice) {
	p.write(frame{Type: frameNotice, Notice: &notice})
}

func (p *presenter) Draft(draft models.Draft) {
	p.write(frame{Type: frameDraft, Draft: &draft})
}

// write drops frames after the first failure. onFail runs once and must not
// block on the engine.
func (p *presenter) write(f frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failed {
		return
	}
	err := p.conn.SetWriteDeadline(time.Now().Add(p.timeout))
	if err == nil {
		err = p.conn.WriteJSON(f)
	}
	if err != nil {
		p.failed = true
		if p.onFail != nil {
			p.onFail(err)
		}
	}
}
