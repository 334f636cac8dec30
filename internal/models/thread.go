// Package models defines data structures for parley chat threads.
package models

import (
	"time"
)

// Thread represents one persisted conversation: an ordered message
// sequence plus bookkeeping metadata. Message order is semantic, it is
// the conversation order.
type Thread struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
	Model     string    `json:"model,omitempty"`
}

// Clone returns a deep copy of the thread. The store hands out clones so
// callers can never mutate store-held state in place.
func (t Thread) Clone() Thread {
	out := t
	out.Messages = CloneMessages(t.Messages)
	return out
}

// User identifies the signed-in profile the store belongs to.
type User struct {
	ID     string `json:"id,omitempty"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Preferences holds user-tunable settings persisted alongside threads.
type Preferences struct {
	Theme            string `json:"theme"`
	Language         string `json:"language"`
	SidebarCollapsed bool   `json:"sidebar_collapsed"`
}

// DefaultPreferences returns the preferences seeded for a new profile.
func DefaultPreferences() Preferences {
	return Preferences{
		Theme:    "default",
		Language: "en",
	}
}
