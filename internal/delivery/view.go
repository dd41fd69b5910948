package delivery

import (
	"time"

	"github.com/matheus3301/chatd/internal/store"
)

// UserView is the public profile snapshot attached to outward payloads.
type UserView struct {
	ID           string `json:"id"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email"`
	ProfileImage string `json:"profileImage"`
}

// MessageView is the outward message shape, pushed over the live
// channel and returned from the HTTP API. The ID is stable so any
// consumer, including the sender's own other connections, can
// deduplicate regardless of delivery order.
type MessageView struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	ChatID    string    `json:"chatId"`
	UserID    string    `json:"userId"`
	ReadBy    []string  `json:"readBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	User      *UserView `json:"user"`
}

// ChatView is the outward chat shape. Participants carries profile
// snapshots of the other members when listing.
type ChatView struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	ParticipantIDs []string   `json:"participantIds"`
	CreatedBy      string     `json:"createdBy"`
	IsGroup        bool       `json:"isGroup"`
	LastMessage    string     `json:"lastMessage,omitempty"`
	LastMessageAt  *time.Time `json:"lastMessageAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	Participants   []UserView `json:"participants,omitempty"`
}

func userView(u *store.User) *UserView {
	if u == nil {
		return nil
	}
	return &UserView{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Email:        u.Email,
		ProfileImage: u.ProfileImage,
	}
}

func messageView(m *store.Message, author *store.User) *MessageView {
	readBy := m.ReadBy
	if readBy == nil {
		readBy = []string{}
	}
	return &MessageView{
		ID:        m.ID,
		Content:   m.Content,
		ChatID:    m.ChatID,
		UserID:    m.UserID,
		ReadBy:    readBy,
		CreatedAt: time.UnixMilli(m.CreatedAt).UTC(),
		UpdatedAt: time.UnixMilli(m.UpdatedAt).UTC(),
		User:      userView(author),
	}
}

func chatView(c *store.Chat) *ChatView {
	v := &ChatView{
		ID:             c.ID,
		Name:           c.Name,
		ParticipantIDs: c.ParticipantIDs,
		CreatedBy:      c.CreatedBy,
		IsGroup:        c.IsGroup,
		LastMessage:    c.LastMessage,
		CreatedAt:      time.UnixMilli(c.CreatedAt).UTC(),
		UpdatedAt:      time.UnixMilli(c.UpdatedAt).UTC(),
	}
	if c.LastMessageAt > 0 {
		at := time.UnixMilli(c.LastMessageAt).UTC()
		v.LastMessageAt = &at
	}
	return v
}
