package services

import (
	"context"
	"sort"

	"github.com/brainskev/houseListing2-sub000/internal/models"
)

// IInboxService merges enquiry conversations and legacy direct messages into one list.
type IInboxService interface {
	Inbox(ctx context.Context, session models.Session) ([]models.ConversationItem, error)
}

type inboxService struct {
	chat   IChatService
	direct IDirectMessageStore
	limit  int
}

// NewInboxService creates an inbox limited to limit items per source (0 for no limit).
func NewInboxService(chat IChatService, direct IDirectMessageStore, limit int) IInboxService {
	return &inboxService{chat: chat, direct: direct, limit: limit}
}

// Inbox returns the session user's items ordered by most recent activity.
func (s *inboxService) Inbox(ctx context.Context, session models.Session) ([]models.ConversationItem, error) {
	summaries, err := s.chat.ListForUser(ctx, session)
	if err != nil {
		return nil, err
	}
	direct, err := s.direct.ListForUser(ctx, session.UserID, s.limit)
	if err != nil {
		return nil, err
	}

	items := make([]models.ConversationItem, 0, len(summaries)+len(direct))
	for _, summary := range summaries {
		items = append(items, models.NewEnquiryItem(summary))
	}
	for _, msg := range direct {
		items = append(items, models.NewDirectItem(msg))
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ActivityAt().After(items[j].ActivityAt())
	})
	return items, nil
}
