package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/config"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/security"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Client actions.
const (
	ActionJoinApplication  = "joinApplicationGroup"
	ActionLeaveApplication = "leaveApplicationGroup"
	ActionJoinSystem       = "joinSystemGroup"
	ActionLeaveSystem      = "leaveSystemGroup"
	ActionPing             = "ping"
)

// AccessTokenParam carries the session token on the upgrade request.
const AccessTokenParam = "access_token"

const maxInboundFrame = 4096

// TokenValidator resolves a session token to an identity.
type TokenValidator interface {
	Validate(token string) (security.Identity, error)
}

// Hub upgrades authenticated requests to websocket channels.
type Hub struct {
	registry *Registry
	tokens   TokenValidator
	cfg      config.RealtimeConfig
	upgrader websocket.Upgrader
}

// NewHub builds a Hub. Zero config fields fall back to defaults.
func NewHub(registry *Registry, tokens TokenValidator, cfg config.RealtimeConfig) *Hub {
	defaults := config.DefaultRealtimeConfig()
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaults.SendBuffer
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.PongWait <= cfg.PingInterval {
		cfg.PongWait = cfg.PingInterval + cfg.PingInterval/2
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaults.WriteWait
	}
	if cfg.ActionsPerSecond <= 0 {
		cfg.ActionsPerSecond = defaults.ActionsPerSecond
	}
	if cfg.ActionBurst <= 0 {
		cfg.ActionBurst = defaults.ActionBurst
	}
	h := &Hub{registry: registry, tokens: tokens, cfg: cfg}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin allows any origin unless an allow list is configured.
func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}
	return false
}

// Handle is the gin handler for the upgrade path.
func (h *Hub) Handle(c *gin.Context) {
	token, ok := security.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		token = strings.TrimSpace(c.Query(AccessTokenParam))
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	identity, errValidate := h.tokens.Validate(token)
	if errValidate != nil || !identity.Valid() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ws, errUpgrade := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if errUpgrade != nil {
		log.WithError(errUpgrade).Debug("realtime: upgrade failed")
		return
	}

	conn := &clientConn{
		id:       uuid.NewString(),
		identity: identity,
		ws:       ws,
		send:     make(chan []byte, h.cfg.SendBuffer),
		done:     make(chan struct{}),
		limiter:  rate.NewLimiter(rate.Limit(h.cfg.ActionsPerSecond), h.cfg.ActionBurst),
		cfg:      h.cfg,
	}
	if errConnect := h.registry.Connect(conn.id, identity, conn); errConnect != nil {
		log.WithError(errConnect).Warn("realtime: register connection failed")
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized"),
			time.Now().Add(h.cfg.WriteWait))
		_ = ws.Close()
		return
	}
	log.WithFields(log.Fields{"connection_id": conn.id, "user_id": identity.UserID}).Debug("realtime: connected")

	conn.reply(Frame{Type: FrameConnected, ConnectionID: conn.id})
	go conn.writePump()
	h.readPump(conn)
}

// Shutdown closes every registered connection with a normal close frame.
// http.Server.Shutdown does not track hijacked connections, so the server
// registers this with RegisterOnShutdown.
func (h *Hub) Shutdown() {
	members := h.registry.DisconnectAll()
	for _, member := range members {
		member.Sink.Close()
	}
	if len(members) > 0 {
		log.WithField("connections", len(members)).Info("realtime: closed connections on shutdown")
	}
}

// readPump handles client actions sequentially and disconnects on any read error.
func (h *Hub) readPump(conn *clientConn) {
	defer func() {
		h.registry.Disconnect(conn.id)
		conn.Close()
		log.WithField("connection_id", conn.id).Debug("realtime: disconnected")
	}()

	conn.ws.SetReadLimit(maxInboundFrame)
	_ = conn.ws.SetReadDeadline(time.Now().Add(conn.cfg.PongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(conn.cfg.PongWait))
	})

	for {
		_, data, errRead := conn.ws.ReadMessage()
		if errRead != nil {
			return
		}
		_ = conn.ws.SetReadDeadline(time.Now().Add(conn.cfg.PongWait))
		h.handleAction(conn, data)
	}
}

// clientAction is an inbound JSON frame.
type clientAction struct {
	Action        string          `json:"action"`
	ApplicationID json.RawMessage `json:"application_id"`
	RequestID     string          `json:"request_id"`
}

var errInvalidApplicationID = errors.New("invalid application_id")

func (h *Hub) handleAction(conn *clientConn, data []byte) {
	var action clientAction
	if errDecode := json.Unmarshal(data, &action); errDecode != nil {
		conn.reply(Frame{Type: FrameError, Error: "invalid frame"})
		return
	}
	fail := func(msg string) {
		conn.reply(Frame{Type: FrameError, Action: action.Action, RequestID: action.RequestID, Error: msg})
	}
	if !conn.limiter.Allow() {
		fail("rate limited")
		return
	}

	var group string
	switch action.Action {
	case ActionPing:
		conn.reply(Frame{Type: FramePong, Action: action.Action, RequestID: action.RequestID})
		return
	case ActionJoinSystem, ActionLeaveSystem:
		group = SystemGroup
	case ActionJoinApplication, ActionLeaveApplication:
		applicationID, errID := parseApplicationID(action.ApplicationID)
		if errID != nil {
			fail(errID.Error())
			return
		}
		group = GroupForApplication(applicationID)
	default:
		fail("unknown action")
		return
	}

	var errGroup error
	if action.Action == ActionJoinApplication || action.Action == ActionJoinSystem {
		errGroup = h.registry.Join(conn.id, group)
	} else {
		errGroup = h.registry.Leave(conn.id, group)
	}
	if errGroup != nil {
		fail(errGroup.Error())
		return
	}
	conn.reply(Frame{Type: FrameAck, Action: action.Action, RequestID: action.RequestID, Group: group})
}

// parseApplicationID accepts a positive JSON number or numeric string.
func parseApplicationID(raw json.RawMessage) (uint64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, errInvalidApplicationID
	}
	text := string(raw)
	if raw[0] == '"' {
		if errUnquote := json.Unmarshal(raw, &text); errUnquote != nil {
			return 0, errInvalidApplicationID
		}
	}
	id, errParse := strconv.ParseUint(strings.TrimSpace(text), 10, 64)
	if errParse != nil || id == 0 {
		return 0, errInvalidApplicationID
	}
	return id, nil
}

// clientConn is a Sink backed by a websocket and a single writer goroutine.
type clientConn struct {
	id        string
	identity  security.Identity
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	limiter   *rate.Limiter
	cfg       config.RealtimeConfig
}

// Deliver queues frame for the writer without blocking.
func (c *clientConn) Deliver(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSlowConsumer
	}
}

// Close stops the writer, which closes the socket.
func (c *clientConn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *clientConn) reply(frame Frame) {
	data, errMarshal := json.Marshal(frame)
	if errMarshal != nil {
		return
	}
	if errDeliver := c.Deliver(data); errDeliver != nil {
		log.WithError(errDeliver).WithField("connection_id", c.id).Debug("realtime: reply dropped")
	}
}

// writePump owns all writes to the socket.
func (c *clientConn) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	closing := func() {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.cfg.WriteWait))
	}
	for {
		// Pending frames are discarded once the connection is closed.
		select {
		case <-c.done:
			closing()
			return
		default:
		}
		select {
		case <-c.done:
			closing()
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if errWrite := c.ws.WriteMessage(websocket.TextMessage, frame); errWrite != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if errPing := c.ws.WriteMessage(websocket.PingMessage, nil); errPing != nil {
				c.Close()
				return
			}
		}
	}
}
