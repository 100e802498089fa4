package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/openmeet/signaling/internal/core"
)

const (
	writeDeadline     = 5 * time.Second
	defaultPingPeriod = 54 * time.Second
)

func (ctl *Controller) writePump(ctx context.Context, c *Conn) {
	pingPeriod := ctl.Cfg.PingPeriod
	if pingPeriod <= 0 {
		pingPeriod = defaultPingPeriod
	}
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump set deadline")
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump owns cleanup: whatever ends the connection, graceful or not,
// the relay sees the same Disconnected path, so membership never leaks.
func (ctl *Controller) readPump(ctx context.Context, sess *session, c *Conn) {
	defer func() {
		ctl.Relay.Disconnected(sess.cid)
		ctl.Registry.Unbind(sess.cid)
		c.Close()
		log.Info().Str("module", "ws").Str("cid", string(sess.cid)).Msg("connection closed")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.ws.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "ws").Str("cid", string(sess.cid)).Msg("readPump read error")
				return
			}
			ctl.dispatch(sess, c, data)
		}
	}
}

func (ctl *Controller) dispatch(sess *session, c *Conn, data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("bad json")
		ctl.sendError(c, core.CodeBadPayload)
		return
	}

	switch env.Type {
	case core.TypeCreateRoom:
		ctl.handleCreateRoom(sess, c, data)
	case core.TypeJoin:
		ctl.handleJoin(sess, c, data)
	case core.TypeLeave:
		ctl.handleLeave(sess, c)
	case core.TypeOffer:
		ctl.handleSDP(sess, c, data)
	case core.TypeAnswer:
		ctl.handleSDP(sess, c, data)
	case core.TypeCandidate:
		ctl.handleCandidate(sess, c, data)
	case core.TypeCloseRoom:
		ctl.handleCloseRoom(sess, c, data)
	case core.TypePing:
		ctl.sendJSON(c, core.Envelope{Type: core.TypePong})
	default:
		log.Warn().Str("module", "ws").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *Controller) sendJSON(c *Conn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(core.Frame(b))
}
