package stream

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/real-kijmoshi/Skiing-v2/internal/relay"
	"go.uber.org/zap"
)

// Handler serves the live position protocol over WebSocket.
type Handler struct {
	relay      *relay.Relay
	log        *zap.Logger
	sendBuffer int
	writeWait  time.Duration
}

func NewHandler(r *relay.Relay, log *zap.Logger, sendBuffer int, writeWait time.Duration) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{relay: r, log: log, sendBuffer: sendBuffer, writeWait: writeWait}
}

// RegisterRoutes mounts the WebSocket endpoint at /ws.
func RegisterRoutes(r fiber.Router, h *Handler) {
	r.Get("/ws", h.Upgrade())
}

// Upgrade returns a handler that accepts WebSocket upgrades and answers
// anything else with 426 Upgrade Required.
func (h *Handler) Upgrade() fiber.Handler {
	return websocket.New(func(ws *websocket.Conn) {
		h.serve(ws)
	})
}

// IsUpgrade reports whether c asks for a WebSocket upgrade.
func IsUpgrade(c *fiber.Ctx) bool {
	return websocket.IsWebSocketUpgrade(c)
}

func (h *Handler) serve(ws socket) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := newConn(uuid.NewString(), ws, h.sendBuffer, h.writeWait)
	go conn.writePump()

	_ = conn.Send(h.relay.Connect(conn))

	err := conn.readPump(func(payload []byte) {
		res := h.relay.Handle(ctx, conn, payload)
		if res.Reply != nil {
			if err := conn.Send(res.Reply); err != nil {
				h.log.Debug("reply dropped", zap.String("conn", conn.ID()), zap.Error(err))
			}
		}
		res.Fanout.Deliver()
	})
	if err != nil {
		h.log.Warn("websocket read error", zap.String("conn", conn.ID()), zap.Error(err))
	}

	h.relay.Close(conn)
	conn.shutdown()
	<-conn.written
}
