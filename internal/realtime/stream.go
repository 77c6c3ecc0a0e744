package realtime

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/prepcoach/recordings/internal/middleware"
	"github.com/prepcoach/recordings/internal/models"
	"github.com/prepcoach/recordings/pkg/response"
)

const (
	PingInterval = 30 * time.Second
	PongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	sendBuffer   = 16
)

// Stream message events.
const (
	MessageSnapshot = "snapshot"
	MessageStatus   = "status"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // token auth, not cookies
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// SnapshotLoader reads the current metadata row. A nil row means not found.
type SnapshotLoader interface {
	Load(ctx context.Context, collection models.Collection, id string) (*models.MediaAsset, error)
}

// StatusStream pushes recording status changes to WebSocket clients so the web app
// does not have to poll for a playback id.
type StatusStream struct {
	pubsub    *RedisPubSub
	snapshots SnapshotLoader
	tokens    middleware.TokenValidator
	roles     map[string]struct{}
	logger    *zap.Logger
}

// NewStatusStream creates the handler. snapshots may be nil.
func NewStatusStream(pubsub *RedisPubSub, snapshots SnapshotLoader, tokens middleware.TokenValidator, logger *zap.Logger, roles ...string) *StatusStream {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return &StatusStream{pubsub: pubsub, snapshots: snapshots, tokens: tokens, roles: allowed, logger: logger}
}

// Serve handles GET /recordings/:collection/:id/stream. Browsers cannot set headers on
// WebSocket requests, so the token may also come from the token query parameter.
func (s *StatusStream) Serve(c *gin.Context) {
	collection, ok := models.ParseCollection(c.Param("collection"))
	if !ok {
		response.BadRequest(c, "unknown collection")
		return
	}
	id := c.Param("id")

	token := c.Query("token")
	if token == "" {
		if scheme, t, ok := strings.Cut(c.GetHeader("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
			token = t
		}
	}
	if token == "" {
		response.Unauthorized(c, "token required")
		return
	}
	claims, err := s.tokens.Validate(token)
	if err != nil {
		response.Unauthorized(c, "invalid or expired token")
		return
	}
	if _, ok := s.roles[claims.Role]; !ok {
		response.Forbidden(c, "insufficient permissions")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	log := s.logger.With(zap.String("collection", string(collection)), zap.String("id", id), zap.String("subject", claims.Subject))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	send := make(chan WSMessage, sendBuffer)
	stop, err := s.pubsub.Subscribe(ctx, collection, id, func(ev StatusEvent) {
		select {
		case send <- WSMessage{Event: MessageStatus, Data: ev}:
		default:
			log.Warn("status stream client too slow, dropping event", zap.String("status", string(ev.Status)))
		}
	})
	if err != nil {
		log.Error("subscribe status channel failed", zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	defer stop()

	// Subscribed first so no change between the snapshot and the first event is lost.
	if s.snapshots != nil {
		rec, err := s.snapshots.Load(ctx, collection, id)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			log.Warn("load status snapshot failed", zap.Error(err))
		case rec != nil:
			select {
			case send <- WSMessage{Event: MessageSnapshot, Data: rec}:
			default:
			}
		}
	}

	log.Debug("status stream opened")
	go readPump(conn, cancel)
	writePump(ctx, conn, send)
	log.Debug("status stream closed")
}

// readPump discards client frames and cancels the stream when the client goes away.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(PongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, send <-chan WSMessage) {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case msg := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
