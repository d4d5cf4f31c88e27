package pump

import (
	"bufio"
	"io"
	"net"
	"sync"

	"go.sql3.dev/core/message"
	"go.sql3.dev/core/protocol"
)

// Channel is a duplex link between adjacent execution contexts, over which
// Envelopes are exchanged. Send may be called concurrently. Recv is called
// from a single goroutine, and returns io.EOF when the Channel is closed by
// its peer. A *ProtocolError returned by Recv describes an Envelope which was
// skipped: the Channel remains usable.
type Channel interface {
	Send(protocol.Envelope) error
	Recv() (protocol.Envelope, error)
	Close() error
}

// streamChannel is a Channel which frames Envelopes as newline-delimited JSON
// over a byte stream.
type streamChannel struct {
	r  io.Reader
	br *bufio.Reader

	mu sync.Mutex
	w  io.WriteCloser
	bw *bufio.Writer
}

// NewStreamChannel returns a Channel which reads Envelopes from |r| and
// writes them to |w|. Closing the Channel closes |w|, and also |r| if it's
// an io.Closer.
func NewStreamChannel(r io.Reader, w io.WriteCloser) Channel {
	return &streamChannel{
		r:  r,
		br: bufio.NewReader(r),
		w:  w,
		bw: bufio.NewWriter(w),
	}
}

func (ch *streamChannel) Send(env protocol.Envelope) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if err := message.JSONFraming.Marshal(env, ch.bw); err != nil {
		return err
	}
	return ch.bw.Flush()
}

func (ch *streamChannel) Recv() (protocol.Envelope, error) {
	var frame, err = message.JSONFraming.Unpack(ch.br)
	if err != nil {
		return protocol.Envelope{}, err
	}

	var env protocol.Envelope
	if err = message.JSONFraming.Unmarshal(frame, &env); err != nil {
		return protocol.Envelope{}, &ProtocolError{Reason: ReasonMalformed, Err: err}
	} else if err = env.Validate(); err != nil {
		return protocol.Envelope{}, &ProtocolError{Reason: ReasonInvalid, Err: err}
	}
	return env, nil
}

func (ch *streamChannel) Close() error {
	var err = ch.w.Close()

	if rc, ok := ch.r.(io.Closer); ok && rc != io.Closer(ch.w) {
		if rErr := rc.Close(); err == nil {
			err = rErr
		}
	}
	return err
}

// Pipe returns a connected pair of in-memory Channels. Envelopes sent on
// one are received by the other. Envelopes are fully serialized in transit,
// so contexts joined by a Pipe share no memory through it.
func Pipe() (Channel, Channel) {
	var a, b = net.Pipe()
	return NewStreamChannel(a, a), NewStreamChannel(b, b)
}
