package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/c360/tidewatch/config"
	"github.com/c360/tidewatch/errors"
)

// maxPolledBody caps a single poll response at 8 MiB.
const maxPolledBody = 8 << 20

// polledConn fetches a polled source: one HTTP GET per Next, spaced by
// the stream's poll interval through the shared rate limiter. A failed
// tick is a non-terminal fault; the connection stays usable and the next
// tick proceeds on schedule.
type polledConn struct {
	desc    config.StreamDescriptor
	limiter *RateLimiter
	client  *http.Client
}

func newPolledConn(desc config.StreamDescriptor, limiter *RateLimiter) *polledConn {
	return &polledConn{
		desc:    desc,
		limiter: limiter,
		client:  &http.Client{Timeout: desc.ReadTimeout()},
	}
}

// Connect is a readiness check only; polled sources hold no persistent
// transport state.
func (p *polledConn) Connect(ctx context.Context) error {
	return ctx.Err()
}

func (p *polledConn) Next(ctx context.Context) ([]byte, error) {
	if p.limiter != nil {
		if err := p.limiter.Acquire(ctx, p.desc.Name); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.desc.URI, nil)
	if err != nil {
		return nil, &ConnError{
			Stream: p.desc.Name,
			Op:     "Next",
			Err:    errors.WrapFatal(err, "stream", "Next", "build poll request"),
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, p.tickErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, p.tickErr(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPolledBody))
	if err != nil {
		return nil, p.tickErr(err)
	}
	return payload, nil
}

// tickErr marks a failed tick without tearing down the connection.
func (p *polledConn) tickErr(err error) *ConnError {
	return &ConnError{
		Stream: p.desc.Name,
		Op:     "Next",
		Err:    errors.WrapTransient(err, "stream", "Next", "poll tick"),
	}
}

func (p *polledConn) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
