package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"breaktopia/internal/middleware"
	"breaktopia/internal/models"
	"breaktopia/internal/presence"
	"breaktopia/internal/realtime"
	"breaktopia/internal/util"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/websocket"
)

const subscriptionBuffer = 64

// SocketHandler serves the push channel. Each connection subscribes to the
// broadcast topic, its own user topic, its team topic and, for superadmins,
// the global topic.
type SocketHandler struct {
	JWTSecret string
	Users     middleware.UserLoader
	Fanout    *realtime.Fanout
	Registry  *realtime.Registry
	Coord     *presence.Coordinator
	Log       *slog.Logger
}

func NewSocketHandler(jwtSecret string, users middleware.UserLoader, fanout *realtime.Fanout, registry *realtime.Registry,
	coord *presence.Coordinator, logger *slog.Logger) *SocketHandler {
	return &SocketHandler{
		JWTSecret: jwtSecret,
		Users:     users,
		Fanout:    fanout,
		Registry:  registry,
		Coord:     coord,
		Log:       logger,
	}
}

// wsFrame is what clients send. Only heartbeats are understood.
type wsFrame struct {
	Type string `json:"type"`
}

type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func (p *wsPeer) write(ev realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(ev)
}

func topicsFor(user *models.User) []string {
	topics := []string{realtime.BroadcastTopic, realtime.UserTopic(user.ID)}
	if user.TeamID != nil {
		topics = append(topics, realtime.TeamTopic(*user.TeamID))
	}
	if user.IsSuperAdmin() {
		topics = append(topics, realtime.GlobalTopic)
	}
	return topics
}

// Serve authenticates the upgrade request and hands the connection over.
func (h *SocketHandler) Serve(c *gin.Context) {
	user, err := middleware.Authenticate(c.Request.Context(), h.JWTSecret, h.Users, middleware.TokenFromRequest(c.Request))
	if err != nil {
		var ae *middleware.AuthError
		if errors.As(err, &ae) {
			util.Error(c, ae.Status, ae.Code, ae.Message)
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load user")
		}
		return
	}

	websocket.Handler(func(conn *websocket.Conn) {
		h.handleConn(conn, user)
	}).ServeHTTP(c.Writer, c.Request)
}

func (h *SocketHandler) handleConn(conn *websocket.Conn, user *models.User) {
	defer func() {
		_ = conn.Close()
	}()

	connID := h.Registry.Add(user.ID)
	sub := h.Fanout.Subscribe(subscriptionBuffer, topicsFor(user)...)
	peer := &wsPeer{encoder: json.NewEncoder(conn)}
	log := h.Log.With("user", user.ID, "conn", connID)
	log.Debug("push connection opened")

	defer func() {
		h.Fanout.Unsubscribe(sub)
		remaining := h.Registry.Remove(user.ID, connID)
		log.Debug("push connection closed", "remaining", remaining)
		h.Coord.Disconnected(context.Background(), user)
	}()

	// the current online set doubles as a "subscribed" acknowledgement
	if err := peer.write(realtime.OnlineEvent(h.Coord.Online())); err != nil {
		return
	}

	go func() {
		for ev := range sub.C {
			if err := peer.write(ev); err != nil {
				_ = conn.Close()
				return
			}
			if ev.Type == realtime.EventForceLogout {
				_ = conn.Close()
				return
			}
		}
	}()

	decoder := json.NewDecoder(conn)
	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("push connection read ended", "error", err)
			}
			return
		}

		if frame.Type == "heartbeat" {
			if err := h.Coord.Heartbeat(context.Background(), user); err != nil {
				log.Error("heartbeat failed", "error", err)
			}
		}
	}
}
