package relay

import (
	"github.com/rs/zerolog/log"

	"github.com/openmeet/signaling/internal/domain"
)

// LogDomainEvents is the default store event sink: domain events are
// informational, so the collaborator here is just structured logging.
func LogDomainEvents(id domain.RoomID, events []domain.Event) {
	for _, e := range events {
		switch ev := e.(type) {
		case domain.RoomCreated:
			log.Info().Str("module", "relay.events").Str("room", string(ev.RoomID)).Time("at", ev.OccurredAt()).Msg("RoomCreated")
		case domain.ParticipantJoined:
			log.Info().Str("module", "relay.events").Str("room", string(ev.RoomID)).Str("participant", string(ev.ParticipantID)).Time("at", ev.OccurredAt()).Msg("ParticipantJoined")
		case domain.ParticipantLeft:
			log.Info().Str("module", "relay.events").Str("room", string(ev.RoomID)).Str("participant", string(ev.ParticipantID)).Time("at", ev.OccurredAt()).Msg("ParticipantLeft")
		case domain.RoomClosed:
			log.Info().Str("module", "relay.events").Str("room", string(ev.RoomID)).Time("at", ev.OccurredAt()).Msg("RoomClosed")
		default:
			log.Debug().Str("module", "relay.events").Str("room", string(id)).Msg("unknown domain event")
		}
	}
}
