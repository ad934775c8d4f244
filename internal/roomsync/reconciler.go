package roomsync

import (
	"slices"

	"chatroom-service/internal/models"
)

// Reconcile maps the latest room and message snapshots to a ViewModel.
// roomSeen and messagesSeen tell whether a snapshot of that kind has been
// received at all, so that "still loading" and "empty" stay distinct.
func Reconcile(room models.RoomSnapshot, roomSeen bool, messages []models.Message, messagesSeen bool) models.ViewModel {
	view, _ := reconcile(room, roomSeen, messages, messagesSeen)
	return view
}

func reconcile(room models.RoomSnapshot, roomSeen bool, messages []models.Message, messagesSeen bool) (models.ViewModel, int) {
	if !roomSeen {
		return models.ViewModel{State: models.ViewLoading, Messages: []models.Message{}}, 0
	}
	if room.Err != nil {
		return models.ViewModel{State: models.ViewFailed, Messages: []models.Message{}, Error: room.Err.Error()}, 0
	}
	if room.Status != models.RoomPresent {
		return unavailableView(), 0
	}

	ordered, collapsed := orderMessages(messages)
	r := room.Room
	r.Invitees = append([]string{}, room.Room.Invitees...)
	return models.ViewModel{
		State:      models.ViewReady,
		Room:       &r,
		Messages:   ordered,
		NoMessages: messagesSeen && len(ordered) == 0,
	}, collapsed
}

func unavailableView() models.ViewModel {
	return models.ViewModel{
		State:    models.ViewUnavailable,
		Messages: []models.Message{},
		Error:    ErrRoomUnavailable.Error(),
	}
}

// orderMessages collapses repeated identifiers (the last occurrence wins)
// and sorts by creation time. Equal timestamps keep their snapshot order.
func orderMessages(messages []models.Message) ([]models.Message, int) {
	last := make(map[string]int, len(messages))
	for i, m := range messages {
		last[m.ID] = i
	}
	out := make([]models.Message, 0, len(last))
	for i, m := range messages {
		if last[m.ID] == i {
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(a, b models.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, len(messages) - len(out)
}

// Reconciler keeps the most recent snapshot of each kind and recomputes the
// view from them. It is not safe for concurrent use; the engine loop owns it.
type Reconciler struct {
	room         models.RoomSnapshot
	roomSeen     bool
	messages     []models.Message
	messagesSeen bool
	failure      error
	unavailable  bool
}

// ApplyRoom records a room snapshot. An absent or denied room latches the
// view to unavailable.
func (r *Reconciler) ApplyRoom(s models.RoomSnapshot) (models.ViewModel, int) {
	if r.unavailable {
		return unavailableView(), 0
	}
	if s.Err == nil && s.Status != models.RoomPresent {
		r.unavailable = true
	}
	r.room = s
	r.roomSeen = true
	return r.view()
}

// ApplyMessages records a message-stream snapshot.
func (r *Reconciler) ApplyMessages(s models.MessageSnapshot) (models.ViewModel, int) {
	if r.unavailable {
		return unavailableView(), 0
	}
	if s.Err != nil {
		r.failure = s.Err
		return r.view()
	}
	r.messages = s.Messages
	r.messagesSeen = true
	return r.view()
}

// Fail marks the view as failed, e.g. when a subscription broke.
func (r *Reconciler) Fail(err error) models.ViewModel {
	if r.unavailable {
		return unavailableView()
	}
	r.failure = err
	view, _ := r.view()
	return view
}

// MarkUnavailable latches the view to unavailable.
func (r *Reconciler) MarkUnavailable() models.ViewModel {
	r.unavailable = true
	return unavailableView()
}

// Unavailable reports whether the terminal state was reached.
func (r *Reconciler) Unavailable() bool {
	return r.unavailable
}

func (r *Reconciler) view() (models.ViewModel, int) {
	if r.unavailable {
		return unavailableView(), 0
	}
	view, collapsed := reconcile(r.room, r.roomSeen, r.messages, r.messagesSeen)
	if r.failure != nil && view.State != models.ViewUnavailable {
		view.State = models.ViewFailed
		view.Error = r.failure.Error()
	}
	return view, collapsed
}
