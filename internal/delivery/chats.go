package delivery

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/matheus3301/chatd/internal/store"
)

// CreateChat creates a chat between the creator and the given
// participants. For a non-group chat with the same two participants (in
// either order) an existing chat is returned instead of a duplicate;
// the second return value reports whether a chat was actually created.
func (e *Engine) CreateChat(ctx context.Context, creatorID string, participantIDs []string, name string, isGroup bool) (*ChatView, bool, error) {
	members := dedupe(append([]string{creatorID}, participantIDs...))
	if len(members) < 2 {
		return nil, false, ErrInvalidInput
	}
	if !isGroup && len(members) != 2 {
		// A non-group chat has exactly two participants.
		return nil, false, ErrInvalidInput
	}

	if !isGroup {
		existing, err := e.db.FindDirectChat(members[0], members[1])
		if err != nil {
			return nil, false, fmt.Errorf("find direct chat: %w", err)
		}
		if existing != nil {
			return chatView(existing), false, nil
		}
	}

	if name == "" && isGroup {
		name = "Group Chat"
	}
	chat := &store.Chat{
		ID:             uuid.NewString(),
		Name:           name,
		CreatedBy:      creatorID,
		IsGroup:        isGroup,
		ParticipantIDs: members,
	}
	if err := e.db.CreateChat(chat); err != nil {
		return nil, false, fmt.Errorf("create chat: %w", err)
	}
	return chatView(chat), true, nil
}

// Chats returns the caller's chats, most recently active first, with
// the other participants' profile snapshots attached. Direct chats
// without a name display the other participant's name, falling back to
// their email.
func (e *Engine) Chats(ctx context.Context, userID string, limit int) ([]ChatView, error) {
	chats, err := e.db.ListChatsForUser(userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	views := make([]ChatView, 0, len(chats))
	for i := range chats {
		view := chatView(&chats[i])

		for _, pid := range chats[i].ParticipantIDs {
			if pid == userID {
				continue
			}
			u, err := e.db.GetUser(pid)
			if err != nil {
				return nil, fmt.Errorf("load participant: %w", err)
			}
			if u != nil {
				view.Participants = append(view.Participants, *userView(u))
			}
		}

		if !view.IsGroup && view.Name == "" && len(view.Participants) == 1 {
			other := view.Participants[0]
			view.Name = displayName(other)
		}
		views = append(views, *view)
	}
	return views, nil
}

func displayName(u UserView) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

func dedupe(ids []string) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
