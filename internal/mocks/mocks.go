package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"calendar-sync/internal/models"
	"calendar-sync/internal/repositories"
)

type StoreMock struct {
	mock.Mock
}

func (m *StoreMock) RegisterIdentity(ctx context.Context, username, secret string) (models.Identity, error) {
	args := m.Called(ctx, username, secret)
	var identity models.Identity
	if val := args.Get(0); val != nil {
		identity = val.(models.Identity)
	}
	return identity, args.Error(1)
}

func (m *StoreMock) Authenticate(ctx context.Context, username, secret string) (models.Identity, error) {
	args := m.Called(ctx, username, secret)
	var identity models.Identity
	if val := args.Get(0); val != nil {
		identity = val.(models.Identity)
	}
	return identity, args.Error(1)
}

func (m *StoreMock) CreateGroup(ctx context.Context, creator, name string, members []string) (models.Group, error) {
	args := m.Called(ctx, creator, name, members)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *StoreMock) AddSchedule(ctx context.Context, creator string, draft models.ScheduleDraft) (models.Schedule, error) {
	args := m.Called(ctx, creator, draft)
	var schedule models.Schedule
	if val := args.Get(0); val != nil {
		schedule = val.(models.Schedule)
	}
	return schedule, args.Error(1)
}

func (m *StoreMock) AddChatMessage(ctx context.Context, sender, groupID, text string) (models.ChatMessage, error) {
	args := m.Called(ctx, sender, groupID, text)
	var msg models.ChatMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.ChatMessage)
	}
	return msg, args.Error(1)
}

func (m *StoreMock) ViewFor(ctx context.Context, username string) (models.UserView, error) {
	args := m.Called(ctx, username)
	var view models.UserView
	if val := args.Get(0); val != nil {
		view = val.(models.UserView)
	}
	return view, args.Error(1)
}

// SendView hands the stubbed view to deliver when no error is stubbed.
func (m *StoreMock) SendView(ctx context.Context, username string, deliver func(models.UserView)) error {
	args := m.Called(ctx, username)
	if val := args.Get(0); val != nil && args.Error(1) == nil {
		deliver(val.(models.UserView))
	}
	return args.Error(1)
}

type SinkMock struct {
	mock.Mock
}

func (m *SinkMock) Load(ctx context.Context) (models.Snapshot, error) {
	args := m.Called(ctx)
	var snapshot models.Snapshot
	if val := args.Get(0); val != nil {
		snapshot = val.(models.Snapshot)
	}
	return snapshot, args.Error(1)
}

func (m *SinkMock) Save(ctx context.Context, snapshot models.Snapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *SinkMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ repositories.StoreRepository = (*StoreMock)(nil)
var _ repositories.Sink = (*SinkMock)(nil)
