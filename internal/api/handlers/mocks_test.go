package handlers_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/brainskev/houseListing2-sub000/internal/models"
	"github.com/brainskev/houseListing2-sub000/internal/services"
	"github.com/brainskev/houseListing2-sub000/internal/utils"
)

// --- Mocks ---

// MockUserService implements services.IUserService
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) FindByID(ctx context.Context, userID utils.SixID) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) ListStaffIDs(ctx context.Context) ([]utils.SixID, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]utils.SixID), args.Error(1)
}

func (m *MockUserService) ListStaff(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

// MockChatService implements services.IChatService
type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) CreateOrAppend(ctx context.Context, propertyID *utils.SixID, session models.Session, text string, contact *models.ContactInfo) (*services.ChatResult, error) {
	args := m.Called(ctx, propertyID, session, text, contact)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ChatResult), args.Error(1)
}

func (m *MockChatService) AppendMessage(ctx context.Context, conversationID utils.SixID, session models.Session, text string) (*services.ChatResult, error) {
	args := m.Called(ctx, conversationID, session, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ChatResult), args.Error(1)
}

func (m *MockChatService) MarkRead(ctx context.Context, conversationID utils.SixID, session models.Session) (*models.Conversation, error) {
	args := m.Called(ctx, conversationID, session)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockChatService) ListForUser(ctx context.Context, session models.Session) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, session)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ConversationSummary), args.Error(1)
}

func (m *MockChatService) GetMessages(ctx context.Context, conversationID utils.SixID, session models.Session) (*services.ConversationMessages, error) {
	args := m.Called(ctx, conversationID, session)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ConversationMessages), args.Error(1)
}

func (m *MockChatService) CanAccess(ctx context.Context, conversationID utils.SixID, session models.Session) error {
	args := m.Called(ctx, conversationID, session)
	return args.Error(0)
}

// MockInboxService implements services.IInboxService
type MockInboxService struct {
	mock.Mock
}

func (m *MockInboxService) Inbox(ctx context.Context, session models.Session) ([]models.ConversationItem, error) {
	args := m.Called(ctx, session)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ConversationItem), args.Error(1)
}
