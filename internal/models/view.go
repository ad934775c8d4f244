package models

// ViewState is the lifecycle state of a room view.
type ViewState string

const (
	ViewLoading     ViewState = "loading"
	ViewReady       ViewState = "ready"
	ViewUnavailable ViewState = "unavailable"
	ViewFailed      ViewState = "failed"
)

// ViewModel is the read-only projection consumed by rendering.
type ViewModel struct {
	State      ViewState `json:"state"`
	Room       *Room     `json:"room,omitempty"`
	Messages   []Message `json:"messages"`
	NoMessages bool      `json:"no_messages"`
	Error      string    `json:"error,omitempty"`
}

// NoticeKind classifies transient notifications shown next to the chat surface.
type NoticeKind string

const (
	NoticeValidationFailed NoticeKind = "validation_failed"
	NoticeSendFailed       NoticeKind = "send_failed"
)

// Notice is a transient, dismissible notification.
type Notice struct {
	Kind NoticeKind `json:"kind"`
	Text string     `json:"text"`
}
