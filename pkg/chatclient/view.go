package chatclient

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ConversationView is the live local state of one open conversation.
type ConversationView struct {
	id      string
	session *Session

	mu           sync.Mutex
	conversation *Conversation
	messages     map[string]Message
	unread       map[string]int

	// countsVersion advances whenever counters come from a push or a write response.
	countsVersion uint64

	draft        string
	listeners    map[int]func()
	nextListener int
	unsubs       []func()
	closed       bool
}

func pollKey(conversationID string) string {
	return "conversation:" + conversationID
}

func newConversationView(session *Session, conversationID string) *ConversationView {
	return &ConversationView{
		id:        conversationID,
		session:   session,
		messages:  make(map[string]Message),
		unread:    make(map[string]int),
		listeners: make(map[int]func()),
	}
}

// open subscribes before fetching the baseline so pushes that race the fetch are kept.
func (v *ConversationView) open(ctx context.Context) error {
	conn := v.session.conn
	v.unsubs = append(v.unsubs,
		conn.OnEvent(EventMessageNew, v.onMessageNew),
		conn.OnEvent(EventRead, v.onRead),
		conn.OnEvent(EventReconnected, func(json.RawMessage) { v.session.poller.Trigger(pollKey(v.id)) }),
	)
	if err := conn.Join(v.id); err != nil {
		v.session.log.Debug("join failed, relying on polling", zap.String("conversation_id", v.id), zap.Error(err))
	}
	if err := v.reconcile(ctx); err != nil {
		v.detach()
		_ = conn.Leave(v.id)
		return err
	}
	v.session.poller.Start(pollKey(v.id), v.reconcile)
	return nil
}

func (v *ConversationView) ID() string { return v.id }

// Conversation returns the last known conversation snapshot.
func (v *ConversationView) Conversation() *Conversation {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.conversation == nil {
		return nil
	}
	cp := *v.conversation
	cp.UnreadCountByUser = cloneCounts(v.unread)
	return &cp
}

// Messages returns the messages ordered by creation time, ties broken by id.
func (v *ConversationView) Messages() []Message {
	v.mu.Lock()
	out := make([]Message, 0, len(v.messages))
	for _, m := range v.messages {
		out = append(out, m)
	}
	v.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Unread is the server-reported unread count for userID.
func (v *ConversationView) Unread(userID string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.unread[userID]
}

func (v *ConversationView) Draft() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.draft
}

func (v *ConversationView) SetDraft(text string) {
	v.mu.Lock()
	v.draft = text
	v.mu.Unlock()
}

// OnChange registers fn to run after every state change. It returns a remove function.
func (v *ConversationView) OnChange(fn func()) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextListener
	v.nextListener++
	v.listeners[id] = fn
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.listeners, id)
	}
}

func (v *ConversationView) notify() {
	v.mu.Lock()
	fns := make([]func(), 0, len(v.listeners))
	for _, fn := range v.listeners {
		fns = append(fns, fn)
	}
	v.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// mergeLocked inserts messages by id. Pushed copies only fill gaps. Snapshot copies
// replace local ones, keeping any reader already known locally since read sets only grow.
func (v *ConversationView) mergeLocked(messages []Message, replace bool) {
	for _, m := range messages {
		existing, exists := v.messages[m.ID]
		if exists && !replace {
			continue
		}
		if exists {
			m.ReadBy = append([]string(nil), m.ReadBy...)
			for _, reader := range existing.ReadBy {
				if !containsString(m.ReadBy, reader) {
					m.ReadBy = append(m.ReadBy, reader)
				}
			}
		}
		v.messages[m.ID] = m
	}
}

func (v *ConversationView) setCountsLocked(counts map[string]int) {
	v.unread = cloneCounts(counts)
	v.countsVersion++
}

// reconcile merges a fresh snapshot. Counters from the snapshot are dropped when a push
// or write response delivered newer ones while it was in flight.
func (v *ConversationView) reconcile(ctx context.Context) error {
	v.mu.Lock()
	version := v.countsVersion
	v.mu.Unlock()

	conv, messages, err := v.session.api.GetMessages(ctx, v.id)
	if err != nil {
		return err
	}
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.mergeLocked(messages, true)
	if conv != nil {
		if v.countsVersion == version {
			v.unread = cloneCounts(conv.UnreadCountByUser)
		} else if v.conversation != nil && v.conversation.LastMessageAt.After(conv.LastMessageAt) {
			conv.LastMessageAt = v.conversation.LastMessageAt
		}
		v.conversation = conv
	}
	v.mu.Unlock()
	v.notify()
	return nil
}

func (v *ConversationView) onMessageNew(payload json.RawMessage) {
	var ev MessageNewEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.ConversationID != v.id {
		return
	}
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.mergeLocked([]Message{ev.Message}, false)
	if ev.UnreadCountByUser != nil {
		v.setCountsLocked(ev.UnreadCountByUser)
	}
	v.mu.Unlock()
	v.notify()
}

func (v *ConversationView) onRead(payload json.RawMessage) {
	var ev ReadEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.ConversationID != v.id {
		return
	}
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	if ev.UnreadCountByUser != nil {
		v.setCountsLocked(ev.UnreadCountByUser)
	}
	for id, m := range v.messages {
		if !containsString(m.ReadBy, ev.UserID) {
			m.ReadBy = append(append([]string(nil), m.ReadBy...), ev.UserID)
			v.messages[id] = m
		}
	}
	v.mu.Unlock()
	v.notify()
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Send posts text. On failure the draft keeps the text so the caller can retry.
func (v *ConversationView) Send(ctx context.Context, text string) (*Message, error) {
	v.SetDraft(text)
	result, err := v.session.api.SendMessage(ctx, v.id, text)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	if v.draft == text {
		v.draft = ""
	}
	if result.Message != nil {
		v.mergeLocked([]Message{*result.Message}, false)
	}
	if result.Conversation != nil {
		v.conversation = result.Conversation
		v.setCountsLocked(result.Conversation.UnreadCountByUser)
	}
	v.mu.Unlock()
	if result.Conversation != nil {
		v.session.applyCounts(v.id, result.Conversation.UnreadCountByUser, &result.Conversation.LastMessageAt)
	}
	v.notify()
	return result.Message, nil
}

// MarkRead resets the caller's unread counter on the server.
func (v *ConversationView) MarkRead(ctx context.Context) error {
	conv, err := v.session.api.MarkRead(ctx, v.id)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.conversation = conv
	v.setCountsLocked(conv.UnreadCountByUser)
	v.mu.Unlock()
	v.session.applyCounts(v.id, conv.UnreadCountByUser, nil)
	v.notify()
	return nil
}

func (v *ConversationView) detach() {
	v.mu.Lock()
	v.closed = true
	unsubs := v.unsubs
	v.unsubs = nil
	v.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
}

// Close stops polling and leaves the room.
func (v *ConversationView) Close() {
	v.detach()
	v.session.poller.Stop(pollKey(v.id))
	_ = v.session.conn.Leave(v.id)
	v.session.forget(v)
}
