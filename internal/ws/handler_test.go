package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/chatd/internal/auth"
	"github.com/matheus3301/chatd/internal/presence"
	"github.com/matheus3301/chatd/internal/room"
	"github.com/matheus3301/chatd/internal/store"
)

const testSecret = "test-secret"

func testHandler(t *testing.T) (*Handler, *store.DB, *room.Registry, *presence.Tracker) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	rooms := room.NewRegistry(zap.NewNop())
	tracker := presence.NewTracker(0)
	verifier := auth.NewVerifier(testSecret)
	h := NewHandler(db, rooms, tracker, verifier, nil, zap.NewNop())
	return h, db, rooms, tracker
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func mintToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.NewVerifier(testSecret).Mint(userID, userID+"@example.com", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func sendFrame(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(clientFrame{Event: event, Data: raw}); err != nil {
		t.Fatal(err)
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) room.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env room.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

func seedMemberChat(t *testing.T, db *store.DB, participants ...string) string {
	t.Helper()
	chat := &store.Chat{
		ID:             uuid.NewString(),
		CreatedBy:      participants[0],
		ParticipantIDs: participants,
	}
	if err := db.CreateChat(chat); err != nil {
		t.Fatal(err)
	}
	return chat.ID
}

// waitForRoomSize polls until the room reaches the expected size; frame
// handling is asynchronous relative to the test goroutine.
func waitForRoomSize(t *testing.T, rooms *room.Registry, chatID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rooms.RoomSize(chatID) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("room size = %d, want %d", rooms.RoomSize(chatID), want)
}

func TestRejectsBadToken(t *testing.T) {
	h, _, _, _ := testHandler(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial with bad token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %v, want 401", resp)
	}
}

func TestJoinRoomAndReceiveBroadcast(t *testing.T) {
	h, db, rooms, _ := testHandler(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	chatID := seedMemberChat(t, db, "alice", "bob")
	conn := dial(t, srv, mintToken(t, "bob"))

	sendFrame(t, conn, eventJoinRoom, roomFrame{ChatID: chatID})
	waitForRoomSize(t, rooms, chatID, 1)

	payload, err := room.Marshal(room.EventMessageReceived, map[string]string{"content": "hi"})
	if err != nil {
		t.Fatal(err)
	}
	rooms.Broadcast(chatID, payload, nil)

	env := readEnvelope(t, conn)
	if env.Event != room.EventMessageReceived {
		t.Errorf("event = %q, want message-received", env.Event)
	}
}

func TestJoinRoomRefusedForNonMember(t *testing.T) {
	h, db, rooms, _ := testHandler(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	chatID := seedMemberChat(t, db, "alice", "bob")
	conn := dial(t, srv, mintToken(t, "carol"))

	sendFrame(t, conn, eventJoinRoom, roomFrame{ChatID: chatID})

	// The refusal is silent; give the handler time to process, then
	// confirm nothing was subscribed.
	time.Sleep(50 * time.Millisecond)
	if n := rooms.RoomSize(chatID); n != 0 {
		t.Errorf("room size = %d, want 0 for refused join", n)
	}
}

func TestLeaveRoomStopsDelivery(t *testing.T) {
	h, db, rooms, _ := testHandler(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	chatID := seedMemberChat(t, db, "alice", "bob")
	conn := dial(t, srv, mintToken(t, "bob"))

	sendFrame(t, conn, eventJoinRoom, roomFrame{ChatID: chatID})
	waitForRoomSize(t, rooms, chatID, 1)

	sendFrame(t, conn, eventLeaveRoom, roomFrame{ChatID: chatID})
	waitForRoomSize(t, rooms, chatID, 0)
}

func TestTypingRelayExcludesSender(t *testing.T) {
	h, db, rooms, _ := testHandler(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	chatID := seedMemberChat(t, db, "alice", "bob")
	aliceConn := dial(t, srv, mintToken(t, "alice"))
	bobConn := dial(t, srv, mintToken(t, "bob"))

	sendFrame(t, aliceConn, eventJoinRoom, roomFrame{ChatID: chatID})
	sendFrame(t, bobConn, eventJoinRoom, roomFrame{ChatID: chatID})
	waitForRoomSize(t, rooms, chatID, 2)

	sendFrame(t, aliceConn, eventTyping, typingFrame{ChatID: chatID, Typing: true})

	env := readEnvelope(t, bobConn)
	if env.Event != room.EventUserTyping {
		t.Fatalf("event = %q, want user-typing", env.Event)
	}
	raw, _ := json.Marshal(env.Data)
	var relay typingFrame
	if err := json.Unmarshal(raw, &relay); err != nil {
		t.Fatal(err)
	}
	if relay.UserID != "alice" || !relay.Typing {
		t.Errorf("relay = %+v, want alice typing", relay)
	}

	// The sender must not hear their own indicator.
	_ = aliceConn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := aliceConn.ReadMessage(); err == nil {
		t.Error("sender received their own typing relay")
	}
}

func TestDisconnectRemovesFromRooms(t *testing.T) {
	h, db, rooms, _ := testHandler(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	chatID := seedMemberChat(t, db, "alice", "bob")
	conn := dial(t, srv, mintToken(t, "bob"))

	sendFrame(t, conn, eventJoinRoom, roomFrame{ChatID: chatID})
	waitForRoomSize(t, rooms, chatID, 1)

	_ = conn.Close()
	waitForRoomSize(t, rooms, chatID, 0)
}

func TestShutdownClosesSessions(t *testing.T) {
	h, db, rooms, _ := testHandler(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	chatID := seedMemberChat(t, db, "alice", "bob")
	conn := dial(t, srv, mintToken(t, "bob"))

	sendFrame(t, conn, eventJoinRoom, roomFrame{ChatID: chatID})
	waitForRoomSize(t, rooms, chatID, 1)

	h.Shutdown()

	if n := rooms.RoomSize(chatID); n != 0 {
		t.Errorf("room size after shutdown = %d, want 0", n)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection still readable after shutdown")
	}

	// A second shutdown with nothing open is a no-op.
	h.Shutdown()
}

func TestConnectTouchesPresence(t *testing.T) {
	h, _, _, tracker := testHandler(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	dial(t, srv, mintToken(t, "bob"))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if tracker.IsOnline("bob") {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("bob not online after connecting")
}
