package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/d60-Lab/timeline-fanout/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 << 10
)

// Frame 客户端与服务端之间的消息帧
type Frame struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

type connectBody struct {
	Channel string          `json:"channel"`
	ID      string          `json:"id"`
	Params  json.RawMessage `json:"params"`
}

type disconnectBody struct {
	ID string `json:"id"`
}

type channelEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Body any    `json:"body"`
}

type outbound struct {
	Type string `json:"type"`
	Body any    `json:"body"`
}

// Connection 一条 websocket 连接；读循环处理 connect/disconnect，写协程独占写
type Connection struct {
	ID     string
	UserID string

	ws   *websocket.Conn
	deps ChannelDeps
	send chan []byte

	mu       sync.Mutex
	channels map[string]*MutualTimelineChannel
	closed   bool
}

func NewConnection(ws *websocket.Conn, userID string, deps ChannelDeps, sendQueueSize int) *Connection {
	if sendQueueSize <= 0 {
		sendQueueSize = 256
	}
	return &Connection{
		ID:       uuid.New().String(),
		UserID:   userID,
		ws:       ws,
		deps:     deps,
		send:     make(chan []byte, sendQueueSize),
		channels: make(map[string]*MutualTimelineChannel),
	}
}

// Serve 阻塞直到连接关闭；退出时释放全部频道
func (c *Connection) Serve(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()

	c.readLoop(ctx)

	c.mu.Lock()
	c.closed = true
	channels := c.channels
	c.channels = map[string]*MutualTimelineChannel{}
	c.mu.Unlock()
	for _, ch := range channels {
		ch.Dispose()
	}
	close(c.send)
	<-done
	logger.Debug("stream connection closed", zap.String("conn", c.ID), zap.String("user", c.UserID))
}

func (c *Connection) readLoop(ctx context.Context) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				logger.Info("stream read error", zap.String("conn", c.ID), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			logger.Debug("bad stream frame", zap.String("conn", c.ID), zap.Error(err))
			continue
		}
		switch f.Type {
		case "connect":
			c.onConnect(ctx, f.Body)
		case "disconnect":
			c.onDisconnect(f.Body)
		}
	}
}

func (c *Connection) onConnect(ctx context.Context, raw json.RawMessage) {
	var body connectBody
	if err := json.Unmarshal(raw, &body); err != nil || body.ID == "" {
		return
	}
	if body.Channel != MutualTimelineChannelName {
		logger.Debug("unknown stream channel", zap.String("channel", body.Channel))
		return
	}
	var params ChannelParams
	if len(body.Params) > 0 {
		if err := json.Unmarshal(body.Params, &params); err != nil {
			return
		}
	}

	id := body.ID
	ch := NewMutualTimelineChannel(id, c.UserID, c.deps, func(eventType string, payload any) {
		c.write(outbound{Type: "channel", Body: channelEvent{ID: id, Type: eventType, Body: payload}})
	})
	if err := ch.Init(ctx, params); err != nil {
		logger.Info("stream channel init failed", zap.String("conn", c.ID), zap.String("channel", id), zap.Error(err))
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ch.Dispose()
		return
	}
	old := c.channels[id]
	c.channels[id] = ch
	c.mu.Unlock()
	if old != nil {
		old.Dispose()
	}
}

func (c *Connection) onDisconnect(raw json.RawMessage) {
	var body disconnectBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return
	}
	c.mu.Lock()
	ch := c.channels[body.ID]
	delete(c.channels, body.ID)
	c.mu.Unlock()
	if ch != nil {
		ch.Dispose()
	}
}

// write 非阻塞入队；队列满时丢弃
func (c *Connection) write(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Warn("encode stream message failed", zap.Error(err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		logger.Warn("stream send queue full, drop", zap.String("conn", c.ID))
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
