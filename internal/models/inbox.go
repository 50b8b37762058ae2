package models

import (
	"time"
)

// ConversationKind discriminates the variants of ConversationItem.
type ConversationKind string

const (
	KindEnquiry ConversationKind = "enquiry"
	KindDirect  ConversationKind = "direct"
)

// ConversationItem is one inbox row. Exactly the field matching Kind is set.
type ConversationItem struct {
	Kind    ConversationKind     `json:"kind"`
	Enquiry *ConversationSummary `json:"enquiry,omitempty"`
	Direct  *DirectMessage       `json:"direct,omitempty"`
}

// NewEnquiryItem wraps an enquiry summary.
func NewEnquiryItem(s ConversationSummary) ConversationItem {
	return ConversationItem{Kind: KindEnquiry, Enquiry: &s}
}

// NewDirectItem wraps a legacy direct message.
func NewDirectItem(m DirectMessage) ConversationItem {
	return ConversationItem{Kind: KindDirect, Direct: &m}
}

// ActivityAt is the time the item sorts by in the inbox.
func (i ConversationItem) ActivityAt() time.Time {
	switch i.Kind {
	case KindEnquiry:
		return i.Enquiry.LastMessageAt
	case KindDirect:
		return i.Direct.CreatedAt
	default:
		panic("models: unknown conversation kind " + string(i.Kind))
	}
}
