package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/brainskev/houseListing2-sub000/internal/config"
	"github.com/brainskev/houseListing2-sub000/internal/db"
	"github.com/brainskev/houseListing2-sub000/internal/models"
	"github.com/brainskev/houseListing2-sub000/internal/utils"
)

// IEventPublisher relays post-write conversation state to realtime subscribers.
// Implementations should wrap failures with ErrTransport.
type IEventPublisher interface {
	PublishMessageNew(ctx context.Context, conv *models.Conversation, msg *models.Message) error
	PublishRead(ctx context.Context, conv *models.Conversation, userID utils.SixID) error
}

// IEnquiryNotifier is told about conversations created by CreateOrAppend.
type IEnquiryNotifier interface {
	NotifyNewEnquiry(ctx context.Context, conv *models.Conversation, msg *models.Message) error
}

// IChatService defines the enquiry chat operations.
type IChatService interface {
	CreateOrAppend(ctx context.Context, propertyID *utils.SixID, session models.Session, text string, contact *models.ContactInfo) (*ChatResult, error)
	AppendMessage(ctx context.Context, conversationID utils.SixID, session models.Session, text string) (*ChatResult, error)
	MarkRead(ctx context.Context, conversationID utils.SixID, session models.Session) (*models.Conversation, error)
	ListForUser(ctx context.Context, session models.Session) ([]models.ConversationSummary, error)
	GetMessages(ctx context.Context, conversationID utils.SixID, session models.Session) (*ConversationMessages, error)
	// CanAccess returns nil when the session may read and write the conversation.
	CanAccess(ctx context.Context, conversationID utils.SixID, session models.Session) error
}

// ChatResult is the outcome of a message write.
type ChatResult struct {
	Conversation *models.Conversation `json:"conversation"`
	Message      *models.Message      `json:"message"`
	Created      bool                 `json:"created"`
}

// ConversationMessages is a conversation with its messages in display order.
type ConversationMessages struct {
	Conversation *models.Conversation `json:"conversation"`
	Messages     []models.Message     `json:"messages"`
}

const (
	createAttempts     = 3
	messageInsertRetry = 3
	messageInsertDelay = 50 * time.Millisecond
)

type chatService struct {
	cfg           *config.Config
	log           *zap.Logger
	conversations IConversationStore
	messages      IMessageStore
	users         IUserService
	properties    IPropertyService
	publisher     IEventPublisher
	notifier      IEnquiryNotifier
	now           func() time.Time
}

// NewChatService wires the chat core. publisher and notifier may be nil.
func NewChatService(
	cfg *config.Config,
	log *zap.Logger,
	conversations IConversationStore,
	messages IMessageStore,
	users IUserService,
	properties IPropertyService,
	publisher IEventPublisher,
	notifier IEnquiryNotifier,
) IChatService {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &chatService{
		cfg:           cfg,
		log:           log,
		conversations: conversations,
		messages:      messages,
		users:         users,
		properties:    properties,
		publisher:     publisher,
		notifier:      notifier,
		now:           time.Now,
	}
}

// timestamp is millisecond precision to match what MongoDB stores.
func (s *chatService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *chatService) normalizeText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: message text is empty", ErrValidation)
	}
	if limit := s.cfg.ChatMaxMessageLength; limit > 0 && utf8.RuneCountInString(text) > limit {
		return "", fmt.Errorf("%w: message text exceeds %d characters", ErrValidation, limit)
	}
	return text, nil
}

func validateSession(session models.Session) error {
	if session.UserID.IsZero() {
		return fmt.Errorf("%w: missing user id", ErrValidation)
	}
	return nil
}

// CreateOrAppend continues the sender's conversation about propertyID, creating it first
// when this is their first message about it.
func (s *chatService) CreateOrAppend(ctx context.Context, propertyID *utils.SixID, session models.Session, text string, contact *models.ContactInfo) (*ChatResult, error) {
	if err := validateSession(session); err != nil {
		return nil, err
	}
	text, err := s.normalizeText(text)
	if err != nil {
		return nil, err
	}

	if propertyID != nil {
		if _, err := s.properties.FindPropertyByID(ctx, *propertyID); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, fmt.Errorf("%w: property %s", ErrNotFound, propertyID.String())
			}
			return nil, fmt.Errorf("failed to look up property %s: %w", propertyID.String(), err)
		}
	}

	conv, created, err := s.findOrCreate(ctx, propertyID, session.UserID, contact)
	if err != nil {
		return nil, err
	}

	result, err := s.appendToConversation(ctx, conv, session.UserID, text)
	if err != nil {
		return nil, err
	}
	result.Created = created

	if created {
		if err := s.notifier.NotifyNewEnquiry(ctx, result.Conversation, result.Message); err != nil {
			s.log.Warn("failed to queue new enquiry notification",
				zap.String("conversation_id", conv.ID.String()), zap.Error(err))
		}
	}
	return result, nil
}

// findOrCreate returns the (property, creator) conversation. A lost creation race
// surfaces as ErrConflict from the store and is resolved by reading the winner.
func (s *chatService) findOrCreate(ctx context.Context, propertyID *utils.SixID, creator utils.SixID, contact *models.ContactInfo) (*models.Conversation, bool, error) {
	for attempt := 0; attempt < createAttempts; attempt++ {
		existing, err := s.conversations.FindByPropertyAndCreator(ctx, propertyID, creator)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}

		staff, err := s.users.ListStaffIDs(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load staff roster: %w", err)
		}

		now := s.timestamp()
		conv := &models.Conversation{
			PropertyID:        propertyID,
			Participants:      participantSet(creator, staff),
			UnreadCountByUser: models.UnreadCounts{},
			LastMessageAt:     now,
			Contact:           contact,
			CreatedBy:         creator,
			CreatedAt:         now,
		}
		err = s.conversations.Insert(ctx, conv)
		if err == nil {
			s.log.Info("created enquiry conversation",
				zap.String("conversation_id", conv.ID.String()),
				zap.String("created_by", creator.String()),
				zap.Int("participants", len(conv.Participants)))
			return conv, true, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, false, err
		}
		s.log.Debug("lost enquiry creation race, re-reading", zap.String("created_by", creator.String()))
	}
	return nil, false, fmt.Errorf("could not create or find conversation for creator %s after %d attempts", creator.String(), createAttempts)
}

func participantSet(first utils.SixID, rest []utils.SixID) []utils.SixID {
	out := []utils.SixID{first}
	seen := map[utils.SixID]bool{first: true}
	for _, id := range rest {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func recipientsOf(conv *models.Conversation, sender utils.SixID) []utils.SixID {
	recipients := make([]utils.SixID, 0, len(conv.Participants))
	for _, p := range conv.Participants {
		if p != sender {
			recipients = append(recipients, p)
		}
	}
	return recipients
}

// AppendMessage adds a message from the session user to an existing conversation.
func (s *chatService) AppendMessage(ctx context.Context, conversationID utils.SixID, session models.Session, text string) (*ChatResult, error) {
	if err := validateSession(session); err != nil {
		return nil, err
	}
	text, err := s.normalizeText(text)
	if err != nil {
		return nil, err
	}
	conv, err := s.authorize(ctx, conversationID, session)
	if err != nil {
		return nil, err
	}
	return s.appendToConversation(ctx, conv, session.UserID, text)
}

// appendToConversation writes the counters first and the message second. If the message
// cannot be stored the recipient increments are reverted.
func (s *chatService) appendToConversation(ctx context.Context, conv *models.Conversation, sender utils.SixID, text string) (*ChatResult, error) {
	now := s.timestamp()
	msg := &models.Message{
		Base:           models.NewBase(),
		ConversationID: conv.ID,
		SenderID:       sender,
		Text:           text,
		ReadBy:         []utils.SixID{sender},
		CreatedAt:      now,
	}

	updated, err := s.conversations.ApplyMessage(ctx, conv.ID, sender, now)
	if err != nil {
		return nil, err
	}
	recipients := recipientsOf(updated, sender)

	err = db.WithBackoff(ctx, func() error {
		return s.messages.Insert(ctx, msg)
	}, messageInsertRetry, messageInsertDelay, db.IsTransientError)
	if err != nil {
		revertCtx := context.WithoutCancel(ctx)
		if revertErr := s.conversations.RevertMessage(revertCtx, conv.ID, recipients); revertErr != nil {
			s.log.Error("failed to revert unread counters after message insert failure",
				zap.String("conversation_id", conv.ID.String()),
				zap.String("message_id", msg.ID.String()),
				zap.Error(revertErr))
		}
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	if err := s.publisher.PublishMessageNew(ctx, updated, msg); err != nil {
		s.log.Warn("failed to publish message:new",
			zap.String("conversation_id", conv.ID.String()),
			zap.String("message_id", msg.ID.String()),
			zap.Error(err))
	}
	return &ChatResult{Conversation: updated, Message: msg}, nil
}

// MarkRead zeroes the session user's counter and marks every message read by them.
func (s *chatService) MarkRead(ctx context.Context, conversationID utils.SixID, session models.Session) (*models.Conversation, error) {
	if err := validateSession(session); err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, conversationID, session); err != nil {
		return nil, err
	}

	updated, err := s.conversations.MarkRead(ctx, conversationID, session.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := s.messages.MarkAllRead(ctx, conversationID, session.UserID); err != nil {
		return nil, err
	}

	if err := s.publisher.PublishRead(ctx, updated, session.UserID); err != nil {
		s.log.Warn("failed to publish chat:read",
			zap.String("conversation_id", conversationID.String()),
			zap.String("user_id", session.UserID.String()),
			zap.Error(err))
	}
	return updated, nil
}

// ListForUser returns every conversation to staff and the user's own to everyone else.
func (s *chatService) ListForUser(ctx context.Context, session models.Session) ([]models.ConversationSummary, error) {
	if err := validateSession(session); err != nil {
		return nil, err
	}
	var participant *utils.SixID
	if !session.IsStaff() {
		participant = &session.UserID
	}
	return s.conversations.ListForUser(ctx, participant, s.cfg.ChatInboxDefaultLimit)
}

func (s *chatService) GetMessages(ctx context.Context, conversationID utils.SixID, session models.Session) (*ConversationMessages, error) {
	if err := validateSession(session); err != nil {
		return nil, err
	}
	conv, err := s.authorize(ctx, conversationID, session)
	if err != nil {
		return nil, err
	}
	messages, err := s.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return &ConversationMessages{Conversation: conv, Messages: messages}, nil
}

func (s *chatService) CanAccess(ctx context.Context, conversationID utils.SixID, session models.Session) error {
	if err := validateSession(session); err != nil {
		return err
	}
	_, err := s.authorize(ctx, conversationID, session)
	return err
}

func (s *chatService) authorize(ctx context.Context, conversationID utils.SixID, session models.Session) (*models.Conversation, error) {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if session.IsStaff() || conv.HasParticipant(session.UserID) {
		return conv, nil
	}
	return nil, fmt.Errorf("%w: user %s is not a participant of conversation %s",
		ErrForbidden, session.UserID.String(), conversationID.String())
}

type noopPublisher struct{}

func (noopPublisher) PublishMessageNew(context.Context, *models.Conversation, *models.Message) error {
	return nil
}

func (noopPublisher) PublishRead(context.Context, *models.Conversation, utils.SixID) error {
	return nil
}

type noopNotifier struct{}

func (noopNotifier) NotifyNewEnquiry(context.Context, *models.Conversation, *models.Message) error {
	return nil
}
