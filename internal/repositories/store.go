package repositories

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"calendar-sync/internal/models"
	"calendar-sync/internal/observability"
)

// Store is the single authoritative holder of identities, groups, schedules
// and chat messages. Every mutation runs validate, mutate, persist and notify
// inside one critical section, so all of them observe the same total order.
type Store struct {
	mu sync.RWMutex

	identities    []models.Identity
	identityIndex map[string]int
	groups        []models.Group
	groupIndex    map[string]int
	schedules     []models.Schedule
	chats         []models.ChatMessage

	sink     Sink
	listener Listener
	log      *slog.Logger
	now      func() models.Timestamp
	newID    func() string
}

// NewStore builds an empty store. A nil listener disables notifications.
func NewStore(sink Sink, listener Listener, log *slog.Logger) *Store {
	if listener == nil {
		listener = noopListener{}
	}
	return &Store{
		identityIndex: make(map[string]int),
		groupIndex:    make(map[string]int),
		sink:          sink,
		listener:      listener,
		log:           log,
		now:           models.Now,
		newID:         uuid.NewString,
	}
}

// Load replaces the in-memory state with whatever the sink holds.
func (s *Store) Load(ctx context.Context) error {
	if s.sink == nil {
		return nil
	}
	snapshot, err := s.sink.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities = s.identities[:0]
	s.identityIndex = make(map[string]int, len(snapshot.Identities))
	for _, identity := range snapshot.Identities {
		key := fold(identity.Username)
		if key == "" {
			continue
		}
		if _, dup := s.identityIndex[key]; dup {
			continue
		}
		identity.Username = key
		s.identityIndex[key] = len(s.identities)
		s.identities = append(s.identities, identity)
	}
	s.groups = s.groups[:0]
	s.groupIndex = make(map[string]int, len(snapshot.Groups))
	for _, group := range snapshot.Groups {
		if _, dup := s.groupIndex[group.ID]; dup {
			continue
		}
		group.CreatedBy = fold(group.CreatedBy)
		group.Members = foldNames(group.Members)
		s.groupIndex[group.ID] = len(s.groups)
		s.groups = append(s.groups, group)
	}
	s.schedules = lo.Map(snapshot.Schedules, func(sc models.Schedule, _ int) models.Schedule {
		sc.CreatedBy = fold(sc.CreatedBy)
		sc.Participants = foldNames(sc.Participants)
		return sc
	})
	s.chats = lo.Map(snapshot.Chats, func(m models.ChatMessage, _ int) models.ChatMessage {
		m.Sender = fold(m.Sender)
		return m
	})

	s.log.Info("state loaded",
		"users", len(s.identities),
		"groups", len(s.groups),
		"schedules", len(s.schedules),
		"chats", len(s.chats))
	return nil
}

// RegisterIdentity adds a new identity. Names are compared case-insensitively.
func (s *Store) RegisterIdentity(ctx context.Context, username, secret string) (models.Identity, error) {
	key := fold(username)
	if key == "" {
		return models.Identity{}, ErrInvalidUsername
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.identityIndex[key]; exists {
		return models.Identity{}, ErrAlreadyExists
	}
	identity := models.Identity{Username: key, Secret: secret}
	s.identityIndex[key] = len(s.identities)
	s.identities = append(s.identities, identity)
	s.persistLocked(ctx)
	return identity, nil
}

// Authenticate looks the name up case-insensitively and compares the secret verbatim.
func (s *Store) Authenticate(_ context.Context, username, secret string) (models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.identityIndex[fold(username)]
	if !ok || s.identities[idx].Secret != secret {
		return models.Identity{}, ErrInvalidCredentials
	}
	return s.identities[idx], nil
}

// CreateGroup lower-cases the supplied members, drops unknown names and
// force-includes the creator.
func (s *Store) CreateGroup(ctx context.Context, creator, name string, members []string) (models.Group, error) {
	creator = fold(creator)

	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := append(lo.Map(members, func(m string, _ int) string { return fold(m) }), creator)
	valid := lo.Uniq(lo.Filter(candidates, func(m string, _ int) bool {
		_, known := s.identityIndex[m]
		return known
	}))
	if !lo.Contains(valid, creator) {
		return models.Group{}, ErrNoValidMembers
	}
	sort.Strings(valid)

	group := models.Group{
		ID:        s.newGroupIDLocked(),
		Name:      strings.TrimSpace(name),
		CreatedBy: creator,
		Members:   valid,
	}
	s.groupIndex[group.ID] = len(s.groups)
	s.groups = append(s.groups, group)

	s.persistLocked(ctx)
	s.listener.GroupCreated(lockedViewer{s}, cloneGroup(group, 0))
	return cloneGroup(group, 0), nil
}

// AddSchedule stores a new schedule. A group schedule takes the group's
// current members as participants and is never private. When the named group
// is unknown or the creator does not belong to it, the schedule becomes a
// personal one.
func (s *Store) AddSchedule(ctx context.Context, creator string, draft models.ScheduleDraft) (models.Schedule, error) {
	creator = fold(creator)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identityIndex[creator]; !ok {
		return models.Schedule{}, ErrUnknownIdentity
	}

	schedule := models.Schedule{
		ID:           s.newID(),
		Title:        draft.Title,
		Description:  draft.Description,
		StartTime:    draft.StartTime,
		EndTime:      draft.EndTime,
		AllDay:       draft.AllDay,
		CreatedBy:    creator,
		Participants: []string{creator},
		IsPrivate:    draft.IsPrivate,
	}
	if draft.GroupID != "" {
		group, ok := s.groupLocked(draft.GroupID)
		switch {
		case !ok:
			s.log.Debug("schedule group unknown, storing as personal", "identity", creator, "group_id", draft.GroupID)
		case !group.HasMember(creator):
			s.log.Debug("schedule creator not in group, storing as personal", "identity", creator, "group_id", draft.GroupID)
		default:
			schedule.GroupID = group.ID
			schedule.Participants = append([]string(nil), group.Members...)
			schedule.IsPrivate = false
		}
	}
	s.schedules = append(s.schedules, schedule)

	s.persistLocked(ctx)
	s.listener.ScheduleAdded(lockedViewer{s}, cloneSchedule(schedule, 0))
	return cloneSchedule(schedule, 0), nil
}

// AddChatMessage appends a message after checking the group exists and the
// sender is a current member. Both checks and the append are one atomic step.
func (s *Store) AddChatMessage(ctx context.Context, sender, groupID, text string) (models.ChatMessage, error) {
	sender = fold(sender)

	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groupLocked(groupID)
	if !ok {
		return models.ChatMessage{}, ErrUnknownGroup
	}
	if !group.HasMember(sender) {
		return models.ChatMessage{}, ErrNotAMember
	}

	msg := models.ChatMessage{
		ID:        s.newID(),
		Sender:    sender,
		GroupID:   group.ID,
		Message:   text,
		Timestamp: s.now(),
	}
	s.chats = append(s.chats, msg)

	s.persistLocked(ctx)
	s.listener.ChatAppended(lockedViewer{s}, msg)
	return msg, nil
}

// ViewFor projects everything username may see.
func (s *Store) ViewFor(_ context.Context, username string) (models.UserView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	view, ok := s.viewLocked(fold(username))
	if !ok {
		return models.UserView{}, ErrUnknownIdentity
	}
	return view, nil
}

// SendView projects username's view and hands it to deliver while the read
// lock is held. No push from a later mutation can be queued ahead of it, so
// deliver must only enqueue.
func (s *Store) SendView(_ context.Context, username string, deliver func(models.UserView)) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	view, ok := s.viewLocked(fold(username))
	if !ok {
		return ErrUnknownIdentity
	}
	deliver(view)
	return nil
}

// Checkpoint writes the full state to the sink and reports the outcome. It is
// used at shutdown so a failed save after the last mutation is retried once.
func (s *Store) Checkpoint(ctx context.Context) error {
	if s.sink == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := time.Now()
	err := s.sink.Save(ctx, s.snapshotLocked())
	observability.ObservePersist(time.Since(start), err)
	return err
}

// Stats returns entity counts without copying collections.
func (s *Store) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]int{
		"users":     len(s.identities),
		"groups":    len(s.groups),
		"schedules": len(s.schedules),
		"chats":     len(s.chats),
	}
}

func (s *Store) viewLocked(username string) (models.UserView, bool) {
	idx, ok := s.identityIndex[username]
	if !ok {
		return models.UserView{}, false
	}

	groups := lo.Filter(s.groups, func(g models.Group, _ int) bool { return g.HasMember(username) })
	memberOf := lo.SliceToMap(groups, func(g models.Group) (string, struct{}) { return g.ID, struct{}{} })
	schedules := lo.Filter(s.schedules, func(sc models.Schedule, _ int) bool {
		if sc.CreatedBy == username || sc.HasParticipant(username) {
			return true
		}
		_, inGroup := memberOf[sc.GroupID]
		return sc.IsGroupSchedule() && inGroup
	})
	chats := lo.Filter(s.chats, func(m models.ChatMessage, _ int) bool {
		_, ok := memberOf[m.GroupID]
		return ok
	})
	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].Timestamp.Before(chats[j].Timestamp.Time)
	})

	return models.UserView{
		User:      s.identities[idx].Public(),
		Groups:    lo.Map(groups, cloneGroup),
		Schedules: lo.Map(schedules, cloneSchedule),
		Chats:     chats,
	}, true
}

func (s *Store) snapshotLocked() models.Snapshot {
	return models.Snapshot{
		Identities: append([]models.Identity{}, s.identities...),
		Groups:     lo.Map(s.groups, cloneGroup),
		Schedules:  lo.Map(s.schedules, cloneSchedule),
		Chats:      append([]models.ChatMessage{}, s.chats...),
	}
}

// persistLocked hands the sink a full copy. Failures are logged and counted;
// the in-memory mutation stands.
func (s *Store) persistLocked(ctx context.Context) {
	if s.sink == nil {
		return
	}
	start := time.Now()
	err := s.sink.Save(ctx, s.snapshotLocked())
	observability.ObservePersist(time.Since(start), err)
	if err != nil {
		s.log.Error("persist state failed", "err", err)
	}
}

func (s *Store) groupLocked(id string) (models.Group, bool) {
	idx, ok := s.groupIndex[strings.TrimSpace(id)]
	if !ok {
		return models.Group{}, false
	}
	return s.groups[idx], true
}

func (s *Store) newGroupIDLocked() string {
	for {
		suffix := s.newID()
		if len(suffix) > 8 {
			suffix = suffix[:8]
		}
		id := "grp_" + suffix
		if _, taken := s.groupIndex[id]; !taken {
			return id
		}
	}
}

// lockedViewer reads through a Store whose lock the caller already holds.
type lockedViewer struct {
	s *Store
}

func (v lockedViewer) ViewFor(username string) (models.UserView, bool) {
	return v.s.viewLocked(fold(username))
}

func (v lockedViewer) GroupMembers(groupID string) []string {
	group, ok := v.s.groupLocked(groupID)
	if !ok {
		return nil
	}
	return append([]string(nil), group.Members...)
}

func fold(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// foldNames lower-cases names read from a snapshot, dropping blanks and duplicates.
func foldNames(names []string) []string {
	folded := lo.Uniq(lo.Map(names, func(n string, _ int) string { return fold(n) }))
	return lo.Filter(folded, func(n string, _ int) bool { return n != "" })
}

func cloneGroup(g models.Group, _ int) models.Group {
	g.Members = append([]string{}, g.Members...)
	return g
}

func cloneSchedule(sc models.Schedule, _ int) models.Schedule {
	sc.Participants = append([]string{}, sc.Participants...)
	return sc
}

var _ StoreRepository = (*Store)(nil)
