package stream

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/tidewatch/config"
	"github.com/c360/tidewatch/errors"
)

// websocketConn is a persistent push connection over a websocket. Every
// fault is terminal: websockets do not recover in place, the unit must
// dial again.
type websocketConn struct {
	desc   config.StreamDescriptor
	dialer *websocket.Dialer
	conn   *websocket.Conn
}

func newWebsocketConn(desc config.StreamDescriptor) *websocketConn {
	return &websocketConn{
		desc: desc,
		dialer: &websocket.Dialer{
			HandshakeTimeout: desc.ConnectTimeout(),
		},
	}
}

func (w *websocketConn) Connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, w.desc.ConnectTimeout())
	defer cancel()

	conn, _, err := w.dialer.DialContext(dialCtx, w.desc.URI, nil)
	if err != nil {
		return connErr(w.desc.Name, "Connect", err)
	}
	w.conn = conn
	return nil
}

func (w *websocketConn) Next(ctx context.Context) ([]byte, error) {
	if w.conn == nil {
		return nil, connErr(w.desc.Name, "Next", errors.ErrConnectionLost)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := w.conn.SetReadDeadline(time.Now().Add(w.desc.ReadTimeout())); err != nil {
		return nil, connErr(w.desc.Name, "Next", err)
	}
	_, payload, err := w.conn.ReadMessage()
	if err != nil {
		return nil, connErr(w.desc.Name, "Next", err)
	}
	return payload, nil
}

func (w *websocketConn) Close() error {
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	if err != nil {
		return errors.WrapTransient(err, "stream", "Close", "close websocket")
	}
	return nil
}
