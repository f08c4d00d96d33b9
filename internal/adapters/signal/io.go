package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Pad/internal/core"
	"github.com/dkeye/Pad/internal/protocol"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		// Memberships are still queryable here; fan-out to the remaining
		// members happens before the transport is torn down.
		ctl.Orch.OnDisconnect(sid)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				return
			}
			ctl.Dispatch(sid, c, data)
		}
	}
}

// Dispatch routes one inbound envelope. Shared by the websocket pumps and the
// long-poll endpoints, which is why it takes the connection as an interface.
func (ctl *SignalWSController) Dispatch(sid core.SessionID, conn core.SignalConnection, data []byte) {
	kind, err := protocol.KindOf(data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch kind {
	case protocol.KindJoin:
		ctl.handleJoin(sid, conn, data)
	case protocol.KindEditRelay:
		ctl.handleEdit(sid, conn, data)
	case protocol.KindStateTransfer:
		ctl.handleSync(sid, data)
	case protocol.KindPing:
		ctl.sendJSON(conn, protocol.Envelope{Type: protocol.KindPong})
	default:
		log.Warn().Str("module", "signal").Str("type", string(kind)).Msg("unknown signal")
	}
}

func (ctl *SignalWSController) sendJSON(c core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *SignalWSController) sendError(c core.SignalConnection, msg string) {
	ctl.sendJSON(c, protocol.Error{Type: protocol.KindError, Error: msg})
}
