package chatclient

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

const conversationsKey = "conversations"

// SessionConfig tunes one client session.
type SessionConfig struct {
	PollInterval time.Duration
	CacheTTL     time.Duration
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 30 * time.Second
	}
	return c
}

// Session is the boundary that owns everything tied to one signed-in identity: the
// connection, the conversation list cache, the poller and open views.
type Session struct {
	api    API
	conn   ConnectionManager
	poller *Poller
	log    *zap.Logger

	conversations *Cache[[]Conversation]

	openMu   sync.Mutex
	mu       sync.Mutex
	identity Identity
	views    map[string]*ConversationView
}

func NewSession(api API, conn ConnectionManager, cfg SessionConfig, log *zap.Logger) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		api:           api,
		conn:          conn,
		poller:        NewPoller(cfg.PollInterval, log),
		log:           log,
		conversations: NewCache[[]Conversation](cfg.CacheTTL),
		views:         make(map[string]*ConversationView),
	}
	conn.OnEvent(EventMessageNew, s.onMessageNew)
	conn.OnEvent(EventRead, s.onRead)
	return s
}

// SignIn connects as identity. A different identity than the current one closes every
// view and drops cached state first.
func (s *Session) SignIn(ctx context.Context, identity Identity) error {
	s.mu.Lock()
	changed := s.identity != identity
	s.mu.Unlock()
	if changed {
		s.reset()
		s.mu.Lock()
		s.identity = identity
		s.mu.Unlock()
	}
	return s.conn.Connect(ctx, identity)
}

// SignOut disconnects and clears all identity-scoped state.
func (s *Session) SignOut() {
	s.reset()
	s.conn.Disconnect()
	s.mu.Lock()
	s.identity = Identity{}
	s.mu.Unlock()
}

// Close signs out and stops every timer.
func (s *Session) Close() {
	s.SignOut()
	s.poller.StopAll()
}

func (s *Session) reset() {
	s.mu.Lock()
	views := make([]*ConversationView, 0, len(s.views))
	for _, v := range s.views {
		views = append(views, v)
	}
	s.mu.Unlock()
	for _, v := range views {
		v.Close()
	}
	s.conversations.Reset()
}

func (s *Session) Identity() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Token returns the current bearer token; pass it to NewHTTPAPI.
func (s *Session) Token() string {
	return s.Identity().Token
}

// SetVisible forwards page visibility to the poller.
func (s *Session) SetVisible(visible bool) {
	s.poller.SetVisible(visible)
}

// Conversations returns the cached conversation list, fetching it when stale.
func (s *Session) Conversations(ctx context.Context) ([]Conversation, error) {
	if list, ok := s.conversations.Get(conversationsKey); ok {
		return list, nil
	}
	list, err := s.api.ListConversations(ctx)
	if err != nil {
		return nil, err
	}
	s.conversations.Set(conversationsKey, list)
	return list, nil
}

// RefreshConversations bypasses the cache.
func (s *Session) RefreshConversations(ctx context.Context) ([]Conversation, error) {
	s.conversations.Invalidate(conversationsKey)
	return s.Conversations(ctx)
}

// Unread is the signed-in user's badge for a conversation from the cached list.
func (s *Session) Unread(conversationID string) int {
	list, ok := s.conversations.Get(conversationsKey)
	if !ok {
		return 0
	}
	userID := s.Identity().UserID
	for _, c := range list {
		if c.ID == conversationID {
			return c.UnreadCountByUser[userID]
		}
	}
	return 0
}

// StartEnquiry sends the first message about propertyID (nil for a general enquiry).
func (s *Session) StartEnquiry(ctx context.Context, propertyID *string, text string, contact *Contact) (*SendResult, error) {
	result, err := s.api.CreateEnquiry(ctx, propertyID, text, contact)
	if err != nil {
		return nil, err
	}
	s.conversations.Invalidate(conversationsKey)
	return result, nil
}

// Open returns the live view for a conversation, creating it on first use. Reopening
// an existing view triggers an immediate reconciliation.
func (s *Session) Open(ctx context.Context, conversationID string) (*ConversationView, error) {
	s.openMu.Lock()
	defer s.openMu.Unlock()

	s.mu.Lock()
	v, ok := s.views[conversationID]
	s.mu.Unlock()
	if ok {
		s.poller.Trigger(pollKey(conversationID))
		return v, nil
	}

	v = newConversationView(s, conversationID)
	if err := v.open(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.views[conversationID] = v
	s.mu.Unlock()
	return v, nil
}

func (s *Session) forget(v *ConversationView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.views[v.id] == v {
		delete(s.views, v.id)
	}
}

// applyCounts replaces the cached counters of one conversation. An unknown conversation
// invalidates the list so the next read fetches it.
func (s *Session) applyCounts(conversationID string, counts map[string]int, lastMessageAt *time.Time) {
	found := false
	s.conversations.Update(conversationsKey, func(list []Conversation) []Conversation {
		out := make([]Conversation, len(list))
		copy(out, list)
		for i := range out {
			if out[i].ID != conversationID {
				continue
			}
			found = true
			out[i].UnreadCountByUser = cloneCounts(counts)
			if lastMessageAt != nil {
				out[i].LastMessageAt = *lastMessageAt
			}
		}
		return out
	})
	if !found {
		s.conversations.Invalidate(conversationsKey)
	}
}

func (s *Session) onMessageNew(payload json.RawMessage) {
	var ev MessageNewEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return
	}
	at := ev.Message.CreatedAt
	s.applyCounts(ev.ConversationID, ev.UnreadCountByUser, &at)
}

func (s *Session) onRead(payload json.RawMessage) {
	var ev ReadEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return
	}
	s.applyCounts(ev.ConversationID, ev.UnreadCountByUser, nil)
}
