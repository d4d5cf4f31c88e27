package pump

import (
	"context"
	"encoding/json"

	"go.sql3.dev/core/metrics"
	"go.sql3.dev/core/protocol"
)

// Call is the future of a Job sent by a Pump. It resolves exactly once.
type Call struct {
	doneCh chan struct{}
	result protocol.Result
	err    error
}

func newCall() *Call { return &Call{doneCh: make(chan struct{})} }

// Done selects when the Call has resolved.
func (c *Call) Done() <-chan struct{} { return c.doneCh }

// Err blocks until the Call resolves, and returns its error. A Job which
// failed at the primary returns a *protocol.RemoteError. A Call which could
// not be delivered returns ErrClosed, ErrChannelClosed, or a transport error.
func (c *Call) Err() error {
	<-c.doneCh

	if c.err != nil {
		return c.err
	}
	return c.result.Err()
}

// Value blocks until the Call resolves, and returns its encoded value.
// Value is nil if the Call failed.
func (c *Call) Value() json.RawMessage {
	if c.Err() != nil {
		return nil
	}
	return c.result.Value
}

// Wait for the Call to resolve, or for |ctx| to be done. Abandoning a Call
// doesn't cancel its Job: the primary still runs it, and its eventual
// response is discarded.
func (c *Call) Wait(ctx context.Context) error {
	select {
	case <-c.doneCh:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Decode waits for the Call as Wait does, and then decodes its value into
// |out| with protocol.Result.Decode.
func (c *Call) Decode(ctx context.Context, out interface{}) error {
	if err := c.Wait(ctx); err != nil {
		return err
	}
	return c.result.Decode(out)
}

func (c *Call) resolve(result protocol.Result, err error) {
	c.result, c.err = result, err

	if err == nil && result.OK {
		metrics.PumpCallsTotal.WithLabelValues(metrics.Ok).Inc()
	} else {
		metrics.PumpCallsTotal.WithLabelValues(metrics.Fail).Inc()
	}
	close(c.doneCh)
}
