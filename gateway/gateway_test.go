package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"vyre-gateway/access"
	"vyre-gateway/auth"
	"vyre-gateway/directory"
	"vyre-gateway/repositories"
)

type wireFrame struct {
	Type string          `json:"type"`
	Ref  string          `json:"ref,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type gatewayFixture struct {
	server      *httptest.Server
	verifier    *auth.Verifier
	users       repositories.IUserRepository
	memberships repositories.IMembershipRepository
}

func (f *gatewayFixture) tokenFor(t *testing.T, userID, username string) string {
	t.Helper()
	token, err := f.verifier.Generate(userID, username, []string{"user"})
	require.NoError(t, err)
	return token
}

func (f *gatewayFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// setupGateway wires the full stack against an in-memory store. The online
// debounce is set far beyond the test horizon so presence broadcasts never
// interleave with the frames under assertion.
func setupGateway(t *testing.T) *gatewayFixture {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := testLogger()
	users := repositories.NewUserRepository(db)
	memberships := repositories.NewMembershipRepository(db)
	messages := repositories.NewMessageRepository(db, log, nil)
	dir := directory.NewCache(users)
	verifier := auth.NewVerifier("gateway-test-secret", time.Hour)

	gw := New(log, verifier, users, messages, access.NewEvaluator(memberships, log), dir, nil, Settings{
		OnlineDebounce:     time.Hour,
		OfflineDebounce:    time.Hour,
		SendBufferSize:     64,
		DeliveryBufferSize: 64,
		MaxMessageSize:     4096,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = gw.Pipeline().Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		gw.Stop()
	})

	server := httptest.NewServer(gw)
	t.Cleanup(server.Close)

	return &gatewayFixture{server: server, verifier: verifier, users: users, memberships: memberships}
}

func readFrame(t *testing.T, conn *websocket.Conn) wireFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame wireFrame
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func sendFrame(t *testing.T, conn *websocket.Conn, frameType, ref string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": frameType,
		"ref":  ref,
		"data": json.RawMessage(payload),
	}))
}

func TestGateway_Handshake_RejectsBadCredentials(t *testing.T) {
	req := require.New(t)
	f := setupGateway(t)
	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http")

	// No token at all
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	// A syntactically invalid token
	_, resp, err = websocket.DefaultDialer.Dial(wsURL+"?token=garbage", nil)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	// A valid token for a user the store has never seen
	orphan := f.tokenFor(t, "deleted-user-id", "ghost")
	_, resp, err = websocket.DefaultDialer.Dial(wsURL+"?token="+orphan, nil)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestGateway_Handshake_AcceptsBearerHeader(t *testing.T) {
	req := require.New(t)
	f := setupGateway(t)

	userID, err := f.users.CreateUser("alice", "Sup3rS3cret!x")
	req.NoError(err)

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http")
	header := http.Header{"Authorization": {"Bearer " + f.tokenFor(t, userID, "alice")}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	req.NoError(err)
	conn.Close()
}

func TestGateway_PingPongEchoesRef(t *testing.T) {
	req := require.New(t)
	f := setupGateway(t)

	userID, err := f.users.CreateUser("alice", "Sup3rS3cret!x")
	req.NoError(err)
	conn := f.dial(t, f.tokenFor(t, userID, "alice"))

	sendFrame(t, conn, "ping", "ref-1", struct{}{})

	frame := readFrame(t, conn)
	req.Equal("pong", frame.Type)
	req.Equal("ref-1", frame.Ref)
}

func TestGateway_SendDeliversToRoomAndAcksSender(t *testing.T) {
	req := require.New(t)
	f := setupGateway(t)

	aliceID, err := f.users.CreateUser("alice", "Sup3rS3cret!x")
	req.NoError(err)
	bobID, err := f.users.CreateUser("bob", "Sup3rS3cret!x")
	req.NoError(err)

	chat, err := f.memberships.CreateChat("dm", "", "", true)
	req.NoError(err)
	req.NoError(f.memberships.AddDirectMember(aliceID, chat.ID))
	req.NoError(f.memberships.AddDirectMember(bobID, chat.ID))

	alice := f.dial(t, f.tokenFor(t, aliceID, "alice"))
	bob := f.dial(t, f.tokenFor(t, bobID, "bob"))

	// Both join the direct chat
	sendFrame(t, alice, "join", "j1", map[string]string{"chat_id": chat.ID})
	frame := readFrame(t, alice)
	req.Equal("joinedChat", frame.Type)
	req.Equal("j1", frame.Ref)

	sendFrame(t, bob, "join", "j2", map[string]string{"chat_id": chat.ID})
	frame = readFrame(t, bob)
	req.Equal("joinedChat", frame.Type)

	// When alice sends a message
	sendFrame(t, alice, "send", "s1", map[string]string{"chat_id": chat.ID, "content": "hello bob"})

	// Then alice collects both the ack and the room delivery, in any order
	var sawAck, sawDelivery bool
	for i := 0; i < 2; i++ {
		frame = readFrame(t, alice)
		switch frame.Type {
		case "ack":
			req.Equal("s1", frame.Ref)
			sawAck = true
		case "newMessage":
			sawDelivery = true
		}
	}
	req.True(sawAck)
	req.True(sawDelivery)

	// And bob receives the delivery with sender attribution
	frame = readFrame(t, bob)
	req.Equal("newMessage", frame.Type)
	var delivered struct {
		ChatID   string `json:"chat_id"`
		Username string `json:"username"`
		Content  string `json:"content"`
	}
	req.NoError(json.Unmarshal(frame.Data, &delivered))
	req.Equal(chat.ID, delivered.ChatID)
	req.Equal("alice", delivered.Username)
	req.Equal("hello bob", delivered.Content)
}

func TestGateway_JoinDeniedForStranger(t *testing.T) {
	req := require.New(t)
	f := setupGateway(t)

	strangerID, err := f.users.CreateUser("mallory", "Sup3rS3cret!x")
	req.NoError(err)
	chat, err := f.memberships.CreateChat("private", "", "", true)
	req.NoError(err)

	conn := f.dial(t, f.tokenFor(t, strangerID, "mallory"))
	sendFrame(t, conn, "join", "j1", map[string]string{"chat_id": chat.ID})

	frame := readFrame(t, conn)
	req.Equal("error", frame.Type)
	req.Equal("j1", frame.Ref)
	var errPayload struct {
		Reason string `json:"reason"`
	}
	req.NoError(json.Unmarshal(frame.Data, &errPayload))
	req.Equal("access_denied", errPayload.Reason)
}

func TestGateway_SendWithoutMembershipNeverReachesRoom(t *testing.T) {
	req := require.New(t)
	f := setupGateway(t)

	memberID, err := f.users.CreateUser("alice", "Sup3rS3cret!x")
	req.NoError(err)
	strangerID, err := f.users.CreateUser("mallory", "Sup3rS3cret!x")
	req.NoError(err)

	chat, err := f.memberships.CreateChat("dm", "", "", true)
	req.NoError(err)
	req.NoError(f.memberships.AddDirectMember(memberID, chat.ID))

	member := f.dial(t, f.tokenFor(t, memberID, "alice"))
	sendFrame(t, member, "join", "j1", map[string]string{"chat_id": chat.ID})
	req.Equal("joinedChat", readFrame(t, member).Type)

	stranger := f.dial(t, f.tokenFor(t, strangerID, "mallory"))
	sendFrame(t, stranger, "send", "s1", map[string]string{"chat_id": chat.ID, "content": "let me in"})

	frame := readFrame(t, stranger)
	req.Equal("error", frame.Type)

	// The member's connection stays silent
	req.NoError(member.SetReadDeadline(time.Now().Add(200 * time.Millisecond)))
	_, _, err = member.ReadMessage()
	req.Error(err)
}

func TestGateway_HistoryReturnsPersistedMessages(t *testing.T) {
	req := require.New(t)
	f := setupGateway(t)

	userID, err := f.users.CreateUser("alice", "Sup3rS3cret!x")
	req.NoError(err)
	chat, err := f.memberships.CreateChat("dm", "", "", true)
	req.NoError(err)
	req.NoError(f.memberships.AddDirectMember(userID, chat.ID))

	conn := f.dial(t, f.tokenFor(t, userID, "alice"))
	sendFrame(t, conn, "join", "j1", map[string]string{"chat_id": chat.ID})
	req.Equal("joinedChat", readFrame(t, conn).Type)

	sendFrame(t, conn, "send", "s1", map[string]string{"chat_id": chat.ID, "content": "first"})
	for i := 0; i < 2; i++ {
		readFrame(t, conn) // ack and room delivery
	}

	sendFrame(t, conn, "history", "h1", map[string]string{"chat_id": chat.ID})
	frame := readFrame(t, conn)
	req.Equal("history", frame.Type)
	req.Equal("h1", frame.Ref)

	var page struct {
		ChatID   string `json:"chat_id"`
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	req.NoError(json.Unmarshal(frame.Data, &page))
	req.Equal(chat.ID, page.ChatID)
	req.Len(page.Messages, 1)
	req.Equal("first", page.Messages[0].Content)
}

func TestGateway_ReconnectRestoresRoomAssignment(t *testing.T) {
	req := require.New(t)
	f := setupGateway(t)

	userID, err := f.users.CreateUser("alice", "Sup3rS3cret!x")
	req.NoError(err)
	chat, err := f.memberships.CreateChat("dm", "", "", true)
	req.NoError(err)
	req.NoError(f.memberships.AddDirectMember(userID, chat.ID))

	// Given a session that joined a room and then dropped
	first := f.dial(t, f.tokenFor(t, userID, "alice"))
	sendFrame(t, first, "join", "j1", map[string]string{"chat_id": chat.ID})
	req.Equal("joinedChat", readFrame(t, first).Type)
	first.Close()

	// When the user reconnects
	second := f.dial(t, f.tokenFor(t, userID, "alice"))

	// Then the room is restored without an explicit join
	frame := readFrame(t, second)
	req.Equal("joinedChat", frame.Type)
	var restored struct {
		ChatID string `json:"chat_id"`
	}
	req.NoError(json.Unmarshal(frame.Data, &restored))
	req.Equal(chat.ID, restored.ChatID)
}

func TestGateway_MalformedFrameGetsErrorNotDisconnect(t *testing.T) {
	req := require.New(t)
	f := setupGateway(t)

	userID, err := f.users.CreateUser("alice", "Sup3rS3cret!x")
	req.NoError(err)
	conn := f.dial(t, f.tokenFor(t, userID, "alice"))

	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	frame := readFrame(t, conn)
	req.Equal("error", frame.Type)

	// The connection survives and keeps serving
	sendFrame(t, conn, "ping", "p1", struct{}{})
	frame = readFrame(t, conn)
	req.Equal("pong", frame.Type)
}
