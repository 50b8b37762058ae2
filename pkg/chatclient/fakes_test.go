package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

var errOffline = errors.New("offline")

// fakeAPI is an in-memory server with a single user-visible conversation store.
type fakeAPI struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	messages      map[string][]Message
	getCalls      int
	listCalls     int
	sendErr       error
	getErr        error
	clock         time.Time
	seq           int

	// getHook runs after GetMessages has taken its snapshot, before it returns.
	getHook func()
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]Message),
		clock:         time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (f *fakeAPI) addConversation(id string, participants ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int)
	for _, p := range participants {
		counts[p] = 0
	}
	f.conversations[id] = &Conversation{ID: id, Participants: participants, UnreadCountByUser: counts}
}

// post stores a message from sender and bumps every other participant's counter.
func (f *fakeAPI) post(conversationID, sender, text string) (Message, map[string]int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.clock = f.clock.Add(time.Second)
	m := Message{
		ID:             fmt.Sprintf("m%03d", f.seq),
		ConversationID: conversationID,
		SenderID:       sender,
		Text:           text,
		ReadBy:         []string{sender},
		CreatedAt:      f.clock,
	}
	f.messages[conversationID] = append(f.messages[conversationID], m)
	conv := f.conversations[conversationID]
	for _, p := range conv.Participants {
		if p == sender {
			conv.UnreadCountByUser[p] = 0
		} else {
			conv.UnreadCountByUser[p]++
		}
	}
	conv.LastMessageAt = f.clock
	return m, cloneCounts(conv.UnreadCountByUser)
}

func (f *fakeAPI) snapshot(id string) *Conversation {
	conv := *f.conversations[id]
	conv.UnreadCountByUser = cloneCounts(conv.UnreadCountByUser)
	return &conv
}

func (f *fakeAPI) CreateEnquiry(_ context.Context, _ *string, text string, _ *Contact) (*SendResult, error) {
	f.addConversation("new", "me")
	m, _ := f.post("new", "me", text)
	f.mu.Lock()
	defer f.mu.Unlock()
	return &SendResult{Conversation: f.snapshot("new"), Message: &m, Created: true}, nil
}

func (f *fakeAPI) ListConversations(context.Context) ([]Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	out := make([]Conversation, 0, len(f.conversations))
	for id := range f.conversations {
		out = append(out, *f.snapshot(id))
	}
	return out, nil
}

func (f *fakeAPI) GetMessages(_ context.Context, conversationID string) (*Conversation, []Message, error) {
	f.mu.Lock()
	f.getCalls++
	if f.getErr != nil {
		f.mu.Unlock()
		return nil, nil, f.getErr
	}
	if _, ok := f.conversations[conversationID]; !ok {
		f.mu.Unlock()
		return nil, nil, &APIError{Status: 404, Message: "not found"}
	}
	conv := f.snapshot(conversationID)
	messages := make([]Message, len(f.messages[conversationID]))
	for i, m := range f.messages[conversationID] {
		m.ReadBy = append([]string(nil), m.ReadBy...)
		messages[i] = m
	}
	hook := f.getHook
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return conv, messages, nil
}

func (f *fakeAPI) SendMessage(_ context.Context, conversationID, text string) (*SendResult, error) {
	f.mu.Lock()
	err := f.sendErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	m, _ := f.post(conversationID, "me", text)
	f.mu.Lock()
	defer f.mu.Unlock()
	return &SendResult{Conversation: f.snapshot(conversationID), Message: &m}, nil
}

func (f *fakeAPI) MarkRead(_ context.Context, conversationID string) (*Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations[conversationID].UnreadCountByUser["me"] = 0
	return f.snapshot(conversationID), nil
}

func (f *fakeAPI) gets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

// fakeConn records joins and lets tests push events synchronously.
type fakeConn struct {
	mu        sync.Mutex
	handlers  map[string]map[int]EventHandler
	next      int
	joins     []string
	leaves    []string
	connected []Identity
	disconns  int
}

func newFakeConn() *fakeConn {
	return &fakeConn{handlers: make(map[string]map[int]EventHandler)}
}

func (c *fakeConn) Connect(_ context.Context, identity Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = append(c.connected, identity)
	return nil
}

func (c *fakeConn) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconns++
}

func (c *fakeConn) OnEvent(eventType string, handler EventHandler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers[eventType] == nil {
		c.handlers[eventType] = make(map[int]EventHandler)
	}
	id := c.next
	c.next++
	c.handlers[eventType][id] = handler
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[eventType], id)
	}
}

func (c *fakeConn) Join(conversationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joins = append(c.joins, conversationID)
	return nil
}

func (c *fakeConn) Leave(conversationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leaves = append(c.leaves, conversationID)
	return nil
}

func (c *fakeConn) emit(eventType string, payload any) {
	raw, _ := json.Marshal(payload)
	c.mu.Lock()
	handlers := make([]EventHandler, 0, len(c.handlers[eventType]))
	for _, h := range c.handlers[eventType] {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()
	for _, h := range handlers {
		h(raw)
	}
}

func (c *fakeConn) handlerCount(eventType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers[eventType])
}
