package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Pad/internal/core"
	"github.com/dkeye/Pad/internal/domain"
	"github.com/dkeye/Pad/internal/protocol"
)

const (
	defaultPollWait   = 25 * time.Second
	defaultPollExpiry = 60 * time.Second
)

// pollConn is the request/response counterpart of WsSignalConn: frames queue
// up in the send channel until the client comes back for them.
type pollConn struct {
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newPollConn(buffer int) *pollConn {
	return &pollConn{send: make(chan core.Frame, buffer)}
}

func (c *pollConn) TrySend(f core.Frame) error {
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

func (c *pollConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
}

type pollSession struct {
	conn     *pollConn
	mu       sync.Mutex
	lastSeen time.Time
}

func (s *pollSession) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *pollSession) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen.Before(cutoff)
}

// PollController is the fallback transport for clients that cannot hold a
// websocket open. Same registry, same dispatch, same session semantics; the
// only difference is that the client pulls its frames. A session that stops
// polling past the expiry is treated as a disconnect.
type PollController struct {
	WS *SignalWSController

	wait       time.Duration
	expiry     time.Duration
	sendBuffer int

	mu       sync.Mutex
	sessions map[core.SessionID]*pollSession
}

func NewPollController(ws *SignalWSController, wait, expiry time.Duration, sendBuffer int) *PollController {
	if wait <= 0 {
		wait = defaultPollWait
	}
	if expiry <= 0 {
		expiry = defaultPollExpiry
	}
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	return &PollController{
		WS:         ws,
		wait:       wait,
		expiry:     expiry,
		sendBuffer: sendBuffer,
		sessions:   make(map[core.SessionID]*pollSession),
	}
}

// HandleOpen creates a poll session and reports its fresh connection ID.
func (ctl *PollController) HandleOpen(c *gin.Context) {
	token := c.GetString("client_token")

	sid := core.SessionID(uuid.NewString())
	conn := newPollConn(ctl.sendBuffer)

	user := domain.NewUser(domain.UserID(token))
	sess := core.NewMemberSession(domain.NewMember(user), conn)
	ctl.WS.Orch.Registry.Bind(sid, user, sess, conn.Close)

	ps := &pollSession{conn: conn}
	ps.touch()
	ctl.mu.Lock()
	ctl.sessions[sid] = ps
	ctl.mu.Unlock()

	ctl.WS.sendJSON(conn, protocol.Welcome{Type: protocol.KindWelcome, ConnectionID: string(sid)})
	log.Info().Str("module", "signal.poll").Str("sid", string(sid)).Msg("poll session opened")

	c.JSON(http.StatusOK, gin.H{"connectionId": string(sid)})
}

// HandleSend injects one envelope into the regular dispatch path.
func (ctl *PollController) HandleSend(c *gin.Context) {
	sid := core.SessionID(c.Param("sid"))
	ps, ok := ctl.get(sid)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}
	ps.touch()

	data, err := c.GetRawData()
	if err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty body"})
		return
	}
	ctl.WS.Dispatch(sid, ps.conn, data)
	c.Status(http.StatusAccepted)
}

// HandleEvents drains queued frames, waiting up to the configured bound for
// the first one.
func (ctl *PollController) HandleEvents(c *gin.Context) {
	sid := core.SessionID(c.Param("sid"))
	ps, ok := ctl.get(sid)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}
	ps.touch()

	events := make([]json.RawMessage, 0, 8)
	select {
	case f, open := <-ps.conn.send:
		if !open {
			c.JSON(http.StatusGone, gin.H{"error": "session closed"})
			return
		}
		events = append(events, json.RawMessage(f))
	case <-c.Request.Context().Done():
		return
	case <-time.After(ctl.wait):
	}

drain:
	for {
		select {
		case f, open := <-ps.conn.send:
			if !open {
				break drain
			}
			events = append(events, json.RawMessage(f))
		default:
			break drain
		}
	}

	ps.touch()
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// HandleClose ends a poll session on the client's initiative, so peers see
// the disconnect immediately instead of at expiry.
func (ctl *PollController) HandleClose(c *gin.Context) {
	sid := core.SessionID(c.Param("sid"))
	ps, ok := ctl.get(sid)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}

	log.Info().Str("module", "signal.poll").Str("sid", string(sid)).Msg("poll session closed by client")
	ctl.WS.Orch.OnDisconnect(sid)
	ps.conn.Close()
	ctl.mu.Lock()
	delete(ctl.sessions, sid)
	ctl.mu.Unlock()

	c.Status(http.StatusNoContent)
}

func (ctl *PollController) get(sid core.SessionID) (*pollSession, bool) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	ps, ok := ctl.sessions[sid]
	return ps, ok
}

// RunReaper expires sessions whose client stopped polling. Each expiry is a
// plain disconnect: room fan-out, registry cleanup, conn close.
func (ctl *PollController) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(ctl.expiry / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-ctl.expiry)
			ctl.mu.Lock()
			var stale []core.SessionID
			for sid, ps := range ctl.sessions {
				if ps.idleSince(cutoff) {
					stale = append(stale, sid)
				}
			}
			ctl.mu.Unlock()

			for _, sid := range stale {
				log.Info().Str("module", "signal.poll").Str("sid", string(sid)).Msg("poll session expired")
				ps, ok := ctl.get(sid)
				if !ok {
					continue
				}
				ctl.WS.Orch.OnDisconnect(sid)
				ps.conn.Close()
				ctl.mu.Lock()
				delete(ctl.sessions, sid)
				ctl.mu.Unlock()
			}
		}
	}
}
