package notify

import (
	"log/slog"

	"github.com/samber/lo"

	"calendar-sync/internal/models"
	"calendar-sync/internal/observability"
	"calendar-sync/internal/protocol"
	"calendar-sync/internal/repositories"
	"calendar-sync/internal/session"
)

// Directory routes pushes to the live session of an identity.
type Directory interface {
	Bound(identity string) bool
	Push(identity string, line []byte) session.Delivery
}

// Notifier turns committed mutations into pushes. Groups and schedules
// resynchronize affected identities with a full view; chat is delivered as a
// single message.
//
// Callbacks run under the store lock. Views are computed there and only
// enqueued on session queues; sockets are written by each session's writer.
type Notifier struct {
	directory Directory
	log       *slog.Logger
}

// New builds a Notifier that delivers through directory.
func New(directory Directory, log *slog.Logger) *Notifier {
	return &Notifier{directory: directory, log: log}
}

// GroupCreated pushes a fresh view to every connected member.
func (n *Notifier) GroupCreated(v repositories.Viewer, group models.Group) {
	n.pushViews(v, group.Members)
}

// ScheduleAdded pushes a fresh view to the creator, the participants and,
// for group schedules, the group's members.
func (n *Notifier) ScheduleAdded(v repositories.Viewer, schedule models.Schedule) {
	audience := append([]string{schedule.CreatedBy}, schedule.Participants...)
	if schedule.IsGroupSchedule() {
		audience = append(audience, v.GroupMembers(schedule.GroupID)...)
	}
	n.pushViews(v, lo.Uniq(audience))
}

// ChatAppended pushes the single message to every connected member.
func (n *Notifier) ChatAppended(v repositories.Viewer, msg models.ChatMessage) {
	line, err := protocol.Encode(protocol.KindChatMessage, msg)
	if err != nil {
		n.log.Error("encode chat push", "err", err)
		return
	}
	for _, member := range v.GroupMembers(msg.GroupID) {
		n.deliver(member, protocol.KindChatMessage, line)
	}
}

func (n *Notifier) pushViews(v repositories.Viewer, audience []string) {
	for _, identity := range audience {
		if !n.directory.Bound(identity) {
			observability.IncPush(string(protocol.KindUserData), "offline")
			continue
		}
		view, ok := v.ViewFor(identity)
		if !ok {
			continue
		}
		line, err := protocol.Encode(protocol.KindUserData, view)
		if err != nil {
			n.log.Error("encode view push", "identity", identity, "err", err)
			continue
		}
		n.deliver(identity, protocol.KindUserData, line)
	}
}

func (n *Notifier) deliver(identity string, kind protocol.Kind, line []byte) {
	result := n.directory.Push(identity, line)
	if result == session.Dropped {
		n.log.Debug("push dropped", "identity", identity, "kind", kind)
	}
	observability.IncPush(string(kind), string(result))
}

var _ repositories.Listener = (*Notifier)(nil)
