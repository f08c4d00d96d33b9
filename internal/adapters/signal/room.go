package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Pad/internal/core"
	"github.com/dkeye/Pad/internal/domain"
	"github.com/dkeye/Pad/internal/protocol"
)

func (ctl *SignalWSController) handleJoin(
	sid core.SessionID,
	conn core.SignalConnection,
	data []byte,
) {
	var p protocol.Join
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "bad_payload")
		return
	}

	if ctl.Limiter != nil {
		if user, ok := ctl.Orch.Registry.UserOf(sid); ok && !ctl.Limiter.Allow(user.ID) {
			log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("join rate limited")
			ctl.sendError(conn, "too_many_joins")
			return
		}
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.RoomID).Str("name", p.DisplayName).Msg("join")
	if err := ctl.Orch.Join(sid, domain.RoomID(p.RoomID), p.DisplayName); err != nil {
		ctl.sendError(conn, err.Error())
	}
}
