package repositories

import (
	"context"

	"calendar-sync/internal/models"
)

// Sink persists the whole state. Save is called synchronously after every
// successful mutation with a full copy of every collection.
type Sink interface {
	Load(ctx context.Context) (models.Snapshot, error)
	Save(ctx context.Context, snapshot models.Snapshot) error
	Close() error
}

// Viewer answers projection queries from inside a Listener callback, where the
// store lock is already held. It must not be retained after the callback.
type Viewer interface {
	ViewFor(username string) (models.UserView, bool)
	GroupMembers(groupID string) []string
}

// Listener observes committed mutations in commit order. Callbacks run while
// the store lock is held and must not block.
type Listener interface {
	GroupCreated(v Viewer, group models.Group)
	ScheduleAdded(v Viewer, schedule models.Schedule)
	ChatAppended(v Viewer, msg models.ChatMessage)
}

// StoreRepository is the set of atomic operations handlers depend on.
type StoreRepository interface {
	RegisterIdentity(ctx context.Context, username, secret string) (models.Identity, error)
	Authenticate(ctx context.Context, username, secret string) (models.Identity, error)
	CreateGroup(ctx context.Context, creator, name string, members []string) (models.Group, error)
	AddSchedule(ctx context.Context, creator string, draft models.ScheduleDraft) (models.Schedule, error)
	AddChatMessage(ctx context.Context, sender, groupID, text string) (models.ChatMessage, error)
	ViewFor(ctx context.Context, username string) (models.UserView, error)
	SendView(ctx context.Context, username string, deliver func(models.UserView)) error
}

type noopListener struct{}

func (noopListener) GroupCreated(Viewer, models.Group) {}
func (noopListener) ScheduleAdded(Viewer, models.Schedule) {}
func (noopListener) ChatAppended(Viewer, models.ChatMessage) {}
