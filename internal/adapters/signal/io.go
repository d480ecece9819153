package signal

import (
	"context"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func contextless() context.Context { return context.Background() }

// writePump drains the outbound queue. A send hitting its deadline fires a
// keepalive ping instead of dropping the connection; only hard write
// errors end the pump.
func (ctl *Controller) writePump(c *wsConn) {
	for data := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Cfg.SendTimeout)); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
			return
		}
		err := c.conn.WriteMessage(websocket.TextMessage, data)
		if err == nil {
			continue
		}
		var netErr net.Error
		if ok := isTimeout(err, &netErr); ok {
			log.Warn().Str("module", "signal").Str("client", string(c.client)).Msg("send timeout, pinging")
			deadline := time.Now().Add(ctl.Cfg.SendTimeout)
			if perr := c.conn.WriteControl(websocket.PingMessage, nil, deadline); perr != nil {
				log.Error().Err(perr).Str("module", "signal").Msg("keepalive ping failed")
				return
			}
			continue
		}
		log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
		return
	}
}

func isTimeout(err error, netErr *net.Error) bool {
	if e, ok := err.(net.Error); ok && e.Timeout() {
		*netErr = e
		return true
	}
	return false
}

// readPump consumes inbound messages under the receive deadline. Silence
// past the deadline closes the connection; the disconnect timer, reset on
// every message, decides when the session itself dies.
func (ctl *Controller) readPump(c *wsConn, idle *time.Timer) {
	defer func() {
		log.Info().Str("module", "signal").Str("client", string(c.client)).Msg("readPump closing")
		c.Close()
	}()

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.Cfg.ReceiveTimeout))
	})

	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(ctl.Cfg.ReceiveTimeout)); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("readPump set deadline")
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Info().Err(err).Str("module", "signal").Str("client", string(c.client)).Msg("readPump read error")
			return
		}
		idle.Reset(ctl.Cfg.DisconnectTimeout)
		ctl.dispatch(c, data)
	}
}
