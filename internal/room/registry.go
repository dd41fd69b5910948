// Package room maintains the in-memory mapping from chat IDs to the
// live sessions currently subscribed to them, and fans broadcast
// payloads out to those sessions.
//
// Membership is process-lifetime only: nothing here is persisted, and
// the registry is rebuilt from scratch on restart as clients
// resubscribe. The registry references sessions, it never owns them;
// connection lifecycle belongs to the transport layer.
package room

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidChat is returned when a chat ID is structurally malformed.
// Chat existence is not re-validated here; callers check it against the
// store once before subscribing.
var ErrInvalidChat = errors.New("invalid chat id")

// Session is the unit of delivery: one live connection's identity
// within the registry. Send must not block; a returned error marks the
// session as undeliverable and drops it from the room.
type Session interface {
	ID() string
	Send(payload []byte) error
}

// Registry maps chat IDs to member sets. The registry-level lock guards
// only the room map; each room's member set has its own lock, so a busy
// chat never stalls broadcasts to unrelated rooms.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	logger *zap.Logger
}

type room struct {
	mu      sync.RWMutex
	members map[string]Session
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]*room),
		logger: logger,
	}
}

// Subscribe adds a session to a chat's room, creating the room if this
// is its first member. Subscribing twice has no additional effect.
func (r *Registry) Subscribe(chatID string, s Session) error {
	if uuid.Validate(chatID) != nil {
		return ErrInvalidChat
	}

	// The member is added while the registry lock is held so that a
	// concurrent empty-room sweep cannot drop the room between lookup
	// and insertion.
	r.mu.Lock()
	rm, ok := r.rooms[chatID]
	if !ok {
		rm = &room{members: make(map[string]Session)}
		r.rooms[chatID] = rm
	}
	rm.mu.Lock()
	rm.members[s.ID()] = s
	rm.mu.Unlock()
	r.mu.Unlock()
	return nil
}

// Unsubscribe removes a session from a chat's room. No-op if the
// session or the room is not present.
func (r *Registry) Unsubscribe(chatID string, s Session) {
	r.mu.RLock()
	rm, ok := r.rooms[chatID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	rm.mu.Lock()
	delete(rm.members, s.ID())
	empty := len(rm.members) == 0
	rm.mu.Unlock()

	if empty {
		r.dropIfEmpty(chatID, rm)
	}
}

// RemoveSession removes a session from every room it belongs to. Called
// on disconnect; calling it again for the same session is a no-op.
func (r *Registry) RemoveSession(s Session) {
	r.mu.RLock()
	snapshot := make(map[string]*room, len(r.rooms))
	for chatID, rm := range r.rooms {
		snapshot[chatID] = rm
	}
	r.mu.RUnlock()

	for chatID, rm := range snapshot {
		rm.mu.Lock()
		delete(rm.members, s.ID())
		empty := len(rm.members) == 0
		rm.mu.Unlock()
		if empty {
			r.dropIfEmpty(chatID, rm)
		}
	}
}

// Broadcast delivers payload to every current member of a chat's room
// except the excluded session (which may be nil). Delivery is
// best-effort fire-and-forget: a member that cannot receive is dropped
// from the room, and the remaining deliveries proceed.
func (r *Registry) Broadcast(chatID string, payload []byte, exclude Session) {
	r.mu.RLock()
	rm, ok := r.rooms[chatID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	rm.mu.RLock()
	members := make([]Session, 0, len(rm.members))
	for _, s := range rm.members {
		members = append(members, s)
	}
	rm.mu.RUnlock()

	for _, s := range members {
		if exclude != nil && s.ID() == exclude.ID() {
			continue
		}
		if err := s.Send(payload); err != nil {
			r.logger.Warn("dropping undeliverable session from room",
				zap.String("chat_id", chatID),
				zap.String("session_id", s.ID()),
				zap.Error(err))
			r.Unsubscribe(chatID, s)
		}
	}
}

// RoomSize returns the current member count of a chat's room.
func (r *Registry) RoomSize(chatID string) int {
	r.mu.RLock()
	rm, ok := r.rooms[chatID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.members)
}

// dropIfEmpty removes a room from the map if it is still the registered
// room for the chat and still has no members. The recheck under the
// write lock covers a concurrent Subscribe that repopulated it.
func (r *Registry) dropIfEmpty(chatID string, rm *room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.rooms[chatID]
	if !ok || current != rm {
		return
	}
	rm.mu.RLock()
	empty := len(rm.members) == 0
	rm.mu.RUnlock()
	if empty {
		delete(r.rooms, chatID)
	}
}
