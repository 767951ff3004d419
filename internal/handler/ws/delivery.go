package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/webitel/code-delivery-service/internal/domain/event"
	"github.com/webitel/code-delivery-service/internal/domain/model"
	wsmarshaller "github.com/webitel/code-delivery-service/internal/handler/marshaller/ws"
	"github.com/webitel/code-delivery-service/internal/service"
)

const (
	writeWait      = 10 * time.Second
	maxInboundSize = 4096
)

type WSHandler struct {
	logger       *slog.Logger
	deliverer    service.Deliverer
	upgrader     websocket.Upgrader
	pingInterval time.Duration
}

func NewWSHandler(logger *slog.Logger, deliverer service.Deliverer, pingInterval time.Duration) *WSHandler {
	if pingInterval <= 0 {
		pingInterval = 15 * time.Second
	}
	return &WSHandler{
		logger:       logger,
		deliverer:    deliverer,
		pingInterval: pingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // origin policy belongs to the fronting proxy
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. VALIDATE BEFORE UPGRADE so a bad name gets a plain HTTP error
	username, ok := model.NormalizeUsername(r.URL.Query().Get("username"))
	if !ok {
		http.Error(w, "invalid username", http.StatusBadRequest)
		return
	}

	// 2. UPGRADE TO WEBSOCKET
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// 3. SUBSCRIBE AND JOIN THE USER GROUP
	conn, err := h.deliverer.Subscribe(ctx, username, model.ChannelPush)
	if err != nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(writeWait))
		return
	}
	defer h.deliverer.Unsubscribe(conn)

	l := h.logger.With("username", username, "conn_id", conn.GetID())
	l.Info("ws opened")

	// 4. READ PUMP: client frames and pongs are liveness signals
	go h.readPump(ws, conn.GetID(), cancel)

	write := func(ev event.Eventer) bool {
		data, err := wsmarshaller.MarshallDeliveryEvent(ev)
		if err != nil {
			l.Error("failed to marshal ws event", "error", err)
			return true
		}
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
			l.Warn("ws send failed", "error", err)
			return false
		}
		return true
	}

	welcome := event.NewSystemEvent(username, event.Connected, event.PriorityNormal, &model.ConnectedPayload{
		Ok:            true,
		ConnectionID:  conn.GetID(),
		Username:      username,
		Channel:       model.ChannelPush.String(),
		ServerVersion: model.ServerVersion,
	})
	if !write(welcome) {
		return
	}

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	// 5. MAIN WS PUMP LOOP (the only writer)
	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed by server"),
				time.Now().Add(writeWait))
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case ev := <-conn.Recv():
			if !write(ev) {
				return
			}
		}
	}
}

func (h *WSHandler) readPump(ws *websocket.Conn, connID string, cancel context.CancelFunc) {
	defer cancel()

	ws.SetReadLimit(maxInboundSize)
	ws.SetPongHandler(func(string) error {
		h.deliverer.Touch(connID)
		return nil
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
		h.deliverer.Touch(connID)
	}
}
