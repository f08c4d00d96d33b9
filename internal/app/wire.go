package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Pad/internal/core"
	"github.com/dkeye/Pad/internal/protocol"
)

func encode(v any) (core.Frame, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app").Msg("encode frame")
		return nil, false
	}
	return b, true
}

func wireMembers(snapshot []core.MemberDTO) []protocol.Member {
	out := make([]protocol.Member, 0, len(snapshot))
	for _, m := range snapshot {
		out = append(out, protocol.Member{
			ConnectionID: string(m.SID),
			DisplayName:  m.DisplayName,
		})
	}
	return out
}
