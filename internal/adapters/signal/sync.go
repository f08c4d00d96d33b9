package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Pad/internal/core"
	"github.com/dkeye/Pad/internal/domain"
	"github.com/dkeye/Pad/internal/protocol"
)

func (ctl *SignalWSController) handleEdit(
	sid core.SessionID,
	conn core.SignalConnection,
	data []byte,
) {
	var p protocol.EditRelay
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad edit payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	ctl.Orch.Relay(sid, domain.RoomID(p.RoomID), p.Payload)
}

func (ctl *SignalWSController) handleSync(
	sid core.SessionID,
	data []byte,
) {
	var p protocol.StateTransfer
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad sync payload")
		return
	}
	if p.TargetConnectionID == "" {
		return
	}
	log.Debug().Str("module", "signal").Str("sid", string(sid)).Str("target", p.TargetConnectionID).Msg("state transfer")
	ctl.Orch.StateTransfer(core.SessionID(p.TargetConnectionID), p.Payload)
}
