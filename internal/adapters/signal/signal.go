package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Pad/internal/app"
	"github.com/dkeye/Pad/internal/core"
	"github.com/dkeye/Pad/internal/domain"
	"github.com/dkeye/Pad/internal/protocol"
)

var (
	ErrBackpressure  = errors.New("backpressure")
	ErrSessionClosed = errors.New("session closed")
)

const (
	defaultSendBuffer   = 32
	defaultWriteTimeout = 5 * time.Second
)

// SignalWSController accepts websocket signal connections and dispatches
// their inbound envelopes. Each accept mints a fresh session ID; identities
// are never reused across connections.
type SignalWSController struct {
	Orch    *app.Orchestrator
	Limiter *JoinRateLimiter

	sendBuffer   int
	writeTimeout time.Duration
}

func NewSignalWSController(orch *app.Orchestrator, limiter *JoinRateLimiter, sendBuffer int, writeTimeout time.Duration) *SignalWSController {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &SignalWSController{
		Orch:         orch,
		Limiter:      limiter,
		sendBuffer:   sendBuffer,
		writeTimeout: writeTimeout,
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrSessionClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	sid := core.SessionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.sendBuffer),
	}

	user := domain.NewUser(domain.UserID(token))
	sess := core.NewMemberSession(domain.NewMember(user), conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.Bind(sid, user, sess, cancel)

	// The client learns its own identity from this; everything else it sees
	// references peers by the same IDs.
	ctl.sendJSON(conn, protocol.Welcome{Type: protocol.KindWelcome, ConnectionID: string(sid)})

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sid, conn)
}
