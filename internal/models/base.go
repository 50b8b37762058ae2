package models

import (
	"github.com/brainskev/houseListing2-sub000/internal/utils"
)

// Base carries the document id shared by every stored record.
type Base struct {
	ID utils.SixID `bson:"_id" json:"id"`
}

// GenIDIfEmpty assigns a fresh id when none is set.
func (m *Base) GenIDIfEmpty() {
	if m.ID.IsZero() {
		m.ID = utils.NewSixID()
	}
}

func NewBase() Base {
	return Base{ID: utils.NewSixID()}
}
