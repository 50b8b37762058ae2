package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/brainskev/houseListing2-sub000/internal/models"
	"github.com/brainskev/houseListing2-sub000/internal/utils"
)

// fakeConversationStore applies every operation under one lock, mirroring the
// per-document atomicity of the MongoDB implementation.
type fakeConversationStore struct {
	mu            sync.Mutex
	conversations map[utils.SixID]*models.Conversation
	// beforeApply runs (unlocked) before each ApplyMessage, letting tests widen the
	// window for concurrent writers.
	beforeApply func(conversationID utils.SixID)
	applyCalls  int
	reverts     int
	insertHook  func(conv *models.Conversation) error
}

func newFakeConversationStore() *fakeConversationStore {
	return &fakeConversationStore{conversations: map[utils.SixID]*models.Conversation{}}
}

func cloneConversation(c *models.Conversation) *models.Conversation {
	out := *c
	out.Participants = append([]utils.SixID(nil), c.Participants...)
	out.UnreadCountByUser = c.UnreadCountByUser.Clone()
	return &out
}

func samePropertyID(a, b *utils.SixID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (f *fakeConversationStore) FindByID(_ context.Context, id utils.SixID) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, id.String())
	}
	return cloneConversation(c), nil
}

func (f *fakeConversationStore) FindByPropertyAndCreator(_ context.Context, propertyID *utils.SixID, createdBy utils.SixID) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conversations {
		if c.CreatedBy == createdBy && samePropertyID(c.PropertyID, propertyID) {
			return cloneConversation(c), nil
		}
	}
	return nil, fmt.Errorf("%w: no conversation", ErrNotFound)
}

func (f *fakeConversationStore) Insert(_ context.Context, conv *models.Conversation) error {
	if f.insertHook != nil {
		if err := f.insertHook(conv); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conversations {
		if c.CreatedBy == conv.CreatedBy && samePropertyID(c.PropertyID, conv.PropertyID) {
			return fmt.Errorf("%w: duplicate", ErrConflict)
		}
	}
	conv.ID = utils.NewSixID()
	if conv.UnreadCountByUser == nil {
		conv.UnreadCountByUser = models.UnreadCounts{}
	}
	for _, p := range conv.Participants {
		if _, ok := conv.UnreadCountByUser[p.String()]; !ok {
			conv.UnreadCountByUser[p.String()] = 0
		}
	}
	f.conversations[conv.ID] = cloneConversation(conv)
	return nil
}

func (f *fakeConversationStore) ApplyMessage(_ context.Context, id, sender utils.SixID, at time.Time) (*models.Conversation, error) {
	if f.beforeApply != nil {
		f.beforeApply(id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyCalls++
	c, ok := f.conversations[id]
	if !ok {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, id.String())
	}
	for key := range c.UnreadCountByUser {
		c.UnreadCountByUser[key]++
	}
	c.UnreadCountByUser[sender.String()] = 0
	if at.After(c.LastMessageAt) {
		c.LastMessageAt = at
	}
	if !c.HasParticipant(sender) {
		c.Participants = append(c.Participants, sender)
	}
	return cloneConversation(c), nil
}

func (f *fakeConversationStore) RevertMessage(_ context.Context, id utils.SixID, recipients []utils.SixID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reverts++
	c, ok := f.conversations[id]
	if !ok {
		return nil
	}
	for _, r := range recipients {
		if c.UnreadCountByUser[r.String()] > 0 {
			c.UnreadCountByUser[r.String()]--
		}
	}
	return nil
}

func (f *fakeConversationStore) MarkRead(_ context.Context, id, userID utils.SixID) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, id.String())
	}
	c.UnreadCountByUser[userID.String()] = 0
	if !c.HasParticipant(userID) {
		c.Participants = append(c.Participants, userID)
	}
	return cloneConversation(c), nil
}

func (f *fakeConversationStore) ListForUser(_ context.Context, participant *utils.SixID, limit int) ([]models.ConversationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.ConversationSummary{}
	for _, c := range f.conversations {
		if participant == nil || c.HasParticipant(*participant) {
			out = append(out, cloneConversation(c).Summary())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// addParticipant simulates another request joining the conversation.
func (f *fakeConversationStore) addParticipant(id, userID utils.SixID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.conversations[id]
	if !c.HasParticipant(userID) {
		c.Participants = append(c.Participants, userID)
		c.UnreadCountByUser[userID.String()] = 0
	}
}

func (f *fakeConversationStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conversations)
}

type fakeMessageStore struct {
	mu       sync.Mutex
	messages []*models.Message
	// failures is the number of upcoming Insert calls that fail with insertErr.
	failures  int
	insertErr error
	inserts   int
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{}
}

func (f *fakeMessageStore) Insert(_ context.Context, msg *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	if f.failures > 0 {
		f.failures--
		return f.insertErr
	}
	for _, m := range f.messages {
		if m.ID == msg.ID {
			return nil
		}
	}
	cp := *msg
	cp.ReadBy = append([]utils.SixID(nil), msg.ReadBy...)
	f.messages = append(f.messages, &cp)
	return nil
}

func (f *fakeMessageStore) ListByConversation(_ context.Context, id utils.SixID) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Message{}
	for _, m := range f.messages {
		if m.ConversationID == id {
			cp := *m
			cp.ReadBy = append([]utils.SixID(nil), m.ReadBy...)
			out = append(out, cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeMessageStore) MarkAllRead(_ context.Context, id, userID utils.SixID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.messages {
		if m.ConversationID == id && !m.IsReadBy(userID) {
			m.ReadBy = append(m.ReadBy, userID)
			n++
		}
	}
	return n, nil
}

type fakeUserService struct {
	staff []models.User
}

func (f *fakeUserService) FindByID(_ context.Context, id utils.SixID) (*models.User, error) {
	for _, u := range f.staff {
		if u.ID == id {
			cp := u
			return &cp, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (f *fakeUserService) ListStaffIDs(context.Context) ([]utils.SixID, error) {
	ids := make([]utils.SixID, len(f.staff))
	for i, u := range f.staff {
		ids[i] = u.ID
	}
	return ids, nil
}

func (f *fakeUserService) ListStaff(context.Context) ([]models.User, error) {
	return f.staff, nil
}

type fakePropertyService struct {
	properties map[utils.SixID]bool
}

func (f *fakePropertyService) FindPropertyByID(_ context.Context, id utils.SixID) (*models.Property, error) {
	if !f.properties[id] {
		return nil, mongo.ErrNoDocuments
	}
	return &models.Property{Base: models.Base{ID: id}, Title: "Test property"}, nil
}

type publishedEvent struct {
	kind   string
	convID utils.SixID
	userID utils.SixID
	msgID  utils.SixID
	unread models.UnreadCounts
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) PublishMessageNew(_ context.Context, conv *models.Conversation, msg *models.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{kind: "message:new", convID: conv.ID, msgID: msg.ID, unread: conv.UnreadCountByUser.Clone()})
	return p.err
}

func (p *recordingPublisher) PublishRead(_ context.Context, conv *models.Conversation, userID utils.SixID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{kind: "chat:read", convID: conv.ID, userID: userID, unread: conv.UnreadCountByUser.Clone()})
	return p.err
}

func (p *recordingPublisher) all() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []utils.SixID
}

func (n *recordingNotifier) NotifyNewEnquiry(_ context.Context, conv *models.Conversation, _ *models.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, conv.ID)
	return nil
}

var errFakeNetwork = errors.New("fake network failure")
