// Package gateway is the real-time session, presence, and message-routing
// core. It accepts persistent websocket connections, authenticates them,
// tracks room occupancy and presence across multiple connections per user,
// and fans persisted messages out to the right set of live connections.
package gateway

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"vyre-gateway/access"
	"vyre-gateway/auth"
	"vyre-gateway/directory"
	"vyre-gateway/domain/event"
	"vyre-gateway/errors"
	"vyre-gateway/moderation"
	"vyre-gateway/repositories"
)

// Settings carries the tunables the composition needs. Debounce defaults
// follow the observed client behavior: fast positive feedback on connect,
// ten seconds of tolerance for reconnects.
type Settings struct {
	OnlineDebounce     time.Duration
	OfflineDebounce    time.Duration
	SendBufferSize     int
	DeliveryBufferSize int
	MaxMessageSize     int64
}

// Gateway composes the connection registry, presence debouncer, room
// manager, and ingestion pipeline behind the connection lifecycle:
// handshake, event loop, teardown.
type Gateway struct {
	log            *slog.Logger
	verifier       *auth.Verifier
	directory      *directory.Cache
	registry       *Registry
	presence       *Debouncer
	rooms          *RoomManager
	pipeline       *Pipeline
	upgrader       websocket.Upgrader
	validate       *validator.Validate
	sendBufferSize int
	maxMessageSize int64
}

func New(log *slog.Logger, verifier *auth.Verifier, users repositories.IUserRepository,
	messages repositories.IMessageRepository, evaluator access.IEvaluator,
	dir *directory.Cache, moderator *moderation.Moderator, settings Settings) *Gateway {

	registry := NewRegistry(log)
	presence := NewDebouncer(log, users, dir, registry, settings.OnlineDebounce, settings.OfflineDebounce)
	registry.presence = presence
	rooms := NewRoomManager(log, evaluator, registry)
	pipeline := NewPipeline(log, messages, evaluator, dir, rooms, moderator, settings.DeliveryBufferSize)

	return &Gateway{
		log:       log,
		verifier:  verifier,
		directory: dir,
		registry:  registry,
		presence:  presence,
		rooms:     rooms,
		pipeline:  pipeline,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin checking belongs to the fronting HTTP layer.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		validate:       validator.New(),
		sendBufferSize: settings.SendBufferSize,
		maxMessageSize: settings.MaxMessageSize,
	}
}

// Registry exposes the connection topology to collaborators (membership
// revocation, census).
func (g *Gateway) Registry() *Registry { return g.registry }

// Rooms exposes room broadcast to collaborators.
func (g *Gateway) Rooms() *RoomManager { return g.rooms }

// Pipeline returns the ingestion pipeline; its Run loop must be supervised
// for deliveries to flow.
func (g *Gateway) Pipeline() *Pipeline { return g.pipeline }

// Stop cancels pending presence transitions. Live connections are torn down
// by the HTTP server shutdown closing their transports.
func (g *Gateway) Stop() {
	g.presence.Stop()
}

// ServeHTTP is the websocket handshake. The credential token is verified
// once here; the gateway does not re-verify per message. A token whose user
// no longer exists in the store is refused as well.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		http.Error(w, "missing credential token", http.StatusUnauthorized)
		return
	}

	claims, err := g.verifier.Verify(token)
	if err != nil {
		g.log.Warn("Handshake refused", "error", err)
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	entry, err := g.directory.Resolve(claims.UserID)
	if stderrors.Is(err, errors.ErrNotFound) {
		g.log.Warn(fmt.Sprintf("Token for unknown user %s refused", claims.UserID))
		http.Error(w, "unknown user", http.StatusUnauthorized)
		return
	}
	if err != nil {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Error("Upgrade failed", "error", err)
		return
	}

	client := newClient(uuid.NewString(), claims.UserID, entry.Username, conn, g.sendBufferSize, g.log)
	g.log.Info(fmt.Sprintf("New connection %s for user %s (%s)", client.id, client.userID, client.username))

	go client.writePump()
	g.registry.Register(client.userID, client.id, client)
	g.restoreRoom(client)

	// Blocks until the client disconnects; per-connection events are
	// processed in arrival order.
	client.readPump(r.Context(), g)
}

// restoreRoom re-subscribes a reconnecting client to the room its user was
// last assigned to. The grant is re-evaluated: a revocation during the
// disconnect window drops the stale assignment instead of restoring it.
func (g *Gateway) restoreRoom(client *Client) {
	chatID, ok := g.rooms.Assignment(client.userID)
	if !ok {
		return
	}
	if _, err := g.rooms.Join(client.userID, client.id, chatID); err != nil {
		if stderrors.Is(err, errors.ErrAccessDenied) {
			g.rooms.ClearAssignment(client.userID, chatID)
		}
		return
	}
	g.log.Info(fmt.Sprintf("Session restore: user %s rejoined chat %s", client.userID, chatID))
	client.reply(event.JoinedChat{}.EventType(), "", event.JoinedChat{ChatID: chatID})
}

// drop is the teardown path shared by every way a connection can die.
func (g *Gateway) drop(client *Client) {
	g.rooms.DropConnection(client.id)
	g.registry.Unregister(client.userID, client.id)
	client.close()
	g.log.Info(fmt.Sprintf("Connection %s closed for user %s", client.id, client.userID))
}

// handleFrame dispatches one inbound frame. Per-event errors go back on the
// event's own ack channel and never crash the connection.
func (g *Gateway) handleFrame(ctx context.Context, client *Client, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		client.reply("error", "", errorData{Reason: "invalid_payload"})
		return
	}

	switch env.Type {
	case "ping":
		client.reply("pong", env.Ref, pongData{})

	case "join":
		g.handleJoin(client, env)

	case "leave":
		g.handleLeave(client, env)

	case "send":
		g.handleSend(ctx, client, env)

	case "history":
		g.handleHistory(client, env)

	default:
		client.reply("error", env.Ref, errorData{Reason: "unknown_event"})
	}
}

func (g *Gateway) handleJoin(client *Client, env envelope) {
	var payload joinPayload
	if err := g.decode(env.Data, &payload); err != nil {
		client.reply("error", env.Ref, errorData{Reason: "invalid_payload"})
		return
	}

	grant, err := g.rooms.Join(client.userID, client.id, payload.ChatID)
	if err != nil {
		if !stderrors.Is(err, errors.ErrAccessDenied) {
			g.log.Error("Join evaluation failed", "user_id", client.userID, "chat_id", payload.ChatID, "error", err)
		}
		client.reply("error", env.Ref, errorData{Reason: reasonFor(err)})
		return
	}

	g.log.Debug(fmt.Sprintf("User %s (%s) joined chat %s with grant %s",
		client.userID, client.username, payload.ChatID, grant))
	client.reply(event.JoinedChat{}.EventType(), env.Ref, event.JoinedChat{ChatID: payload.ChatID})
}

func (g *Gateway) handleLeave(client *Client, env envelope) {
	var payload leavePayload
	if err := g.decode(env.Data, &payload); err != nil {
		client.reply("error", env.Ref, errorData{Reason: "invalid_payload"})
		return
	}
	g.rooms.Leave(client.userID, client.id, payload.ChatID)
}

func (g *Gateway) handleSend(ctx context.Context, client *Client, env envelope) {
	var payload sendPayload
	if err := g.decode(env.Data, &payload); err != nil {
		client.reply("error", env.Ref, errorData{Reason: "invalid_payload"})
		return
	}

	message, err := g.pipeline.Submit(ctx, client.userID, payload.ChatID, payload.Content)
	if err != nil {
		if stderrors.Is(err, errors.ErrStore) || stderrors.Is(err, errors.ErrPersist) {
			g.log.Error("Message ingestion failed", "user_id", client.userID, "chat_id", payload.ChatID, "error", err)
		}
		client.reply("error", env.Ref, errorData{Reason: reasonFor(err)})
		return
	}

	client.reply("ack", env.Ref, ackData{MessageID: message.ID.String(), CreatedAt: message.CreatedAt})
}

func (g *Gateway) handleHistory(client *Client, env envelope) {
	var payload historyPayload
	if err := g.decode(env.Data, &payload); err != nil {
		client.reply("error", env.Ref, errorData{Reason: "invalid_payload"})
		return
	}

	messages, cursor, err := g.pipeline.History(client.userID, payload.ChatID, payload.Cursor)
	if err != nil {
		client.reply("error", env.Ref, errorData{Reason: reasonFor(err)})
		return
	}

	items := make([]historyItem, 0, len(messages))
	for _, m := range messages {
		items = append(items, historyItem{
			ID:        m.ID.String(),
			ChatID:    m.ChatID,
			UserID:    m.SenderID,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	client.reply("history", env.Ref, historyData{ChatID: payload.ChatID, Messages: items, Cursor: cursor})
}

func (g *Gateway) decode(data json.RawMessage, payload any) error {
	if len(data) == 0 {
		return errors.ErrValidation
	}
	if err := json.Unmarshal(data, payload); err != nil {
		return err
	}
	return g.validate.Struct(payload)
}
