// Package ws is the server-side websocket transport: it upgrades HTTP
// connections, runs the read/write pumps and dispatches JSON envelopes to
// the relay. The relay itself only ever sees core.Bus.
package ws

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/openmeet/signaling/internal/config"
	"github.com/openmeet/signaling/internal/core"
	"github.com/openmeet/signaling/internal/relay"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Controller struct {
	Relay    *relay.Service
	Registry *Registry
	Cfg      *config.Config
}

func NewController(rel *relay.Service, reg *Registry, cfg *config.Config) *Controller {
	return &Controller{Relay: rel, Registry: reg, Cfg: cfg}
}

// session is one live signaling connection: a fresh connection id per
// websocket plus the external identity resolved by the middleware.
type session struct {
	cid         core.ConnectionID
	userID      string
	displayName string
}

// HandleSignal upgrades the request and starts the pumps. The connection
// id is generated per websocket, like any transport session id; the user
// identity comes from the auth middleware and survives reconnects.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		userID = c.GetString("client_token")
	}
	displayName := c.Query("name")
	if displayName == "" {
		displayName = "guest"
	}

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("upgrade failed")
		return
	}

	sess := &session{
		cid:         core.ConnectionID(uuid.NewString()),
		userID:      userID,
		displayName: displayName,
	}
	conn := newConn(wsConn, ctl.Cfg.SendQueue)
	conn.ws.SetReadLimit(ctl.Cfg.ReadLimit)

	ctl.Registry.Bind(sess.cid, conn)
	log.Info().Str("module", "ws").Str("cid", string(sess.cid)).Str("user", userID).Msg("connection opened")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, sess, conn)
	}()
}
