package stream

import (
	"context"
	stderrors "errors"

	"github.com/nats-io/nats.go"

	"github.com/c360/tidewatch/config"
	"github.com/c360/tidewatch/errors"
)

// natsConn is a persistent push connection over a NATS subject. The
// client's own reconnect machinery is disabled so the supervisor stays
// the single owner of reconnect policy.
type natsConn struct {
	desc config.StreamDescriptor
	nc   *nats.Conn
	sub  *nats.Subscription
}

func newNATSConn(desc config.StreamDescriptor) *natsConn {
	return &natsConn{desc: desc}
}

func (n *natsConn) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	nc, err := nats.Connect(n.desc.URI,
		nats.Name("tidewatch-"+n.desc.Name),
		nats.Timeout(n.desc.ConnectTimeout()),
		nats.NoReconnect(),
	)
	if err != nil {
		return connErr(n.desc.Name, "Connect", err)
	}

	sub, err := nc.SubscribeSync(n.desc.Subject)
	if err != nil {
		nc.Close()
		return connErr(n.desc.Name, "Connect", err)
	}

	n.nc = nc
	n.sub = sub
	return nil
}

func (n *natsConn) Next(ctx context.Context) ([]byte, error) {
	if n.sub == nil {
		return nil, connErr(n.desc.Name, "Next", errors.ErrConnectionLost)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	msg, err := n.sub.NextMsg(n.desc.ReadTimeout())
	if err != nil {
		if stderrors.Is(err, nats.ErrTimeout) {
			return nil, connErr(n.desc.Name, "Next", errors.ErrConnectionTimeout)
		}
		return nil, connErr(n.desc.Name, "Next", err)
	}
	return msg.Data, nil
}

func (n *natsConn) Close() error {
	if n.nc == nil {
		return nil
	}
	if n.sub != nil {
		_ = n.sub.Unsubscribe()
		n.sub = nil
	}
	n.nc.Close()
	n.nc = nil
	return nil
}
