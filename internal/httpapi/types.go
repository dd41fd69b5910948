package httpapi

import (
	"time"

	"github.com/matheus3301/chatd/internal/delivery"
)

type errorResponse struct {
	Error string `json:"error"`
}

type okResponse struct {
	Success bool `json:"success"`
}

type messageResponse struct {
	Message *delivery.MessageView `json:"message"`
	Success bool                  `json:"success"`
}

type messagesResponse struct {
	Messages []delivery.MessageView `json:"messages"`
	Success  bool                   `json:"success"`
}

type sendMessageRequest struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
}

type createChatRequest struct {
	ParticipantIDs []string `json:"participantIds"`
	Name           string   `json:"name"`
	IsGroup        bool     `json:"isGroup"`
}

// directoryEntry is a user as the chat directory shows it: the stored
// profile plus live presence.
type directoryEntry struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	FullName     string     `json:"fullName"`
	ProfileImage string     `json:"profileImage"`
	IsOnline     bool       `json:"isOnline"`
	LastActive   *time.Time `json:"lastActive,omitempty"`
}

// webhookEvent is the identity provider's push payload for profile
// creation and updates.
type webhookEvent struct {
	Type string `json:"type"`
	Data struct {
		ID           string `json:"id"`
		Email        string `json:"email"`
		FirstName    string `json:"firstName"`
		LastName     string `json:"lastName"`
		Username     string `json:"username"`
		ProfileImage string `json:"profileImage"`
	} `json:"data"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Users    int    `json:"users"`
	Chats    int    `json:"chats"`
	Messages int    `json:"messages"`
}
