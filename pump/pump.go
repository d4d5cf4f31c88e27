package pump

import (
	"io"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.sql3.dev/core/metrics"
	"go.sql3.dev/core/protocol"
)

// Pump sends Jobs of its context, and relays Jobs of its children, towards
// the primary, and routes each Result back to its sender.
type Pump struct {
	role     Role
	upstream Channel

	mu       sync.Mutex
	nextID   uint64
	pending  map[uint64]responder
	children map[Channel]struct{}
	failErr  error // Non-nil once the Pump can no longer send.
	closed   bool

	wg sync.WaitGroup
}

// responder receives the Result of a request, or a local error which
// prevented its delivery.
type responder func(protocol.Result, error)

// New returns a Pump of the context having parent Channel |parent|. If
// |parent| is nil, the Pump is the primary and runs Jobs with |runner|.
// Otherwise |runner| is unused, and may be nil.
func New(parent Channel, runner Runner) *Pump {
	var p = &Pump{
		pending:  make(map[uint64]responder),
		children: make(map[Channel]struct{}),
	}
	if parent == nil {
		if runner == nil {
			panic("pump: primary requires a Runner")
		}
		p.role, p.upstream = Primary, newExecutor(runner)
	} else {
		p.role, p.upstream = Secondary, parent
	}

	p.wg.Add(1)
	go p.serveUpstream()

	return p
}

// Role of the Pump's context.
func (p *Pump) Role() Role { return p.role }

// Send |job| towards the primary, returning its Call.
func (p *Pump) Send(job protocol.Job) *Call {
	var call = newCall()
	p.send(job, call.resolve)
	return call
}

// AddChild begins serving requests from child Channel |ch|: each is relayed
// upstream and its Result is sent back to |ch|. The Pump closes |ch| when
// |ch| reaches EOF, or when the Pump is closed.
func (p *Pump) AddChild(ch Channel) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = ch.Close()
		return
	}
	p.children[ch] = struct{}{}
	p.wg.Add(1)
	p.mu.Unlock()

	metrics.PumpChildren.Inc()
	go p.serveChild(ch)
}

// Pending returns the number of requests awaiting a response.
func (p *Pump) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.pending)
}

// Close the Pump. Pending Calls fail with ErrClosed, and upstream and child
// Channels are closed. Close blocks until Pump goroutines have exited.
func (p *Pump) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.failErr == nil {
		p.failErr = ErrClosed
	}
	var pending = p.takeAllLocked()
	var children []Channel
	for ch := range p.children {
		children = append(children, ch)
	}
	p.mu.Unlock()

	// Close children first: responses relayed to them are undeliverable.
	for _, ch := range children {
		_ = ch.Close()
	}
	for _, r := range pending {
		r(protocol.Result{}, ErrClosed)
	}
	var err = p.upstream.Close()
	p.wg.Wait()

	return err
}

// send |job| upstream, arranging for |r| to be called exactly once with
// its outcome.
func (p *Pump) send(job protocol.Job, r responder) {
	p.mu.Lock()
	if p.failErr != nil {
		var err = p.failErr
		p.mu.Unlock()

		r(protocol.Result{}, err)
		return
	}
	p.nextID++
	var id = p.nextID
	p.pending[id] = r
	metrics.PumpPendingCalls.Inc()
	p.mu.Unlock()

	var err = p.upstream.Send(protocol.Envelope{ID: id, Kind: protocol.Request, Job: &job})
	if err == nil {
		return
	}
	// If not already failed by a concurrent upstream closure, fail it now.
	if r, ok := p.take(id); ok {
		r(protocol.Result{}, errors.WithMessage(err, "sending request"))
	}
}

// take removes and returns the responder of |id|.
func (p *Pump) take(id uint64) (responder, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var r, ok = p.pending[id]
	if ok {
		delete(p.pending, id)
		metrics.PumpPendingCalls.Dec()
	}
	return r, ok
}

func (p *Pump) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closed
}

func (p *Pump) takeAllLocked() []responder {
	var out = make([]responder, 0, len(p.pending))
	for id, r := range p.pending {
		out = append(out, r)
		delete(p.pending, id)
	}
	metrics.PumpPendingCalls.Sub(float64(len(out)))
	return out
}

// serveUpstream dispatches responses received from upstream to their
// responders, until the upstream Channel closes.
func (p *Pump) serveUpstream() {
	defer p.wg.Done()

	for {
		var env, err = p.upstream.Recv()

		if pe, ok := err.(*ProtocolError); ok {
			p.protocolError(pe, "upstream")
			continue
		} else if err != nil {
			p.upstreamClosed(err)
			return
		}

		if env.Kind != protocol.Response {
			p.protocolError(&ProtocolError{
				Reason: ReasonUnexpectedKind,
				Err:    errors.Errorf("expected Response from upstream (got %s)", env.Kind),
			}, "upstream")
			continue
		}

		if r, ok := p.take(env.ID); ok {
			r(*env.Result, nil)
		} else if !p.isClosed() { // Pending requests were failed by Close.
			p.protocolError(&ProtocolError{
				Reason: ReasonUnknownID,
				Err:    errors.Errorf("no pending request has ID %d", env.ID),
			}, "upstream")
		}
	}
}

// upstreamClosed fails all pending and future requests.
func (p *Pump) upstreamClosed(err error) {
	p.mu.Lock()
	if p.failErr == nil {
		p.failErr = ErrChannelClosed
	}
	var failErr = p.failErr
	var pending = p.takeAllLocked()
	var closed = p.closed
	p.mu.Unlock()

	if !closed {
		var entry = log.WithFields(log.Fields{"role": p.role, "pending": len(pending)})
		if err != io.EOF {
			entry = entry.WithField("err", err)
		}
		entry.Warn("upstream channel closed")
	}
	for _, r := range pending {
		r(protocol.Result{}, failErr)
	}
}

// serveChild relays requests of child Channel |ch| until it closes.
func (p *Pump) serveChild(ch Channel) {
	defer func() {
		p.mu.Lock()
		delete(p.children, ch)
		p.mu.Unlock()

		_ = ch.Close()
		metrics.PumpChildren.Dec()
		p.wg.Done()
	}()

	for {
		var env, err = ch.Recv()

		if pe, ok := err.(*ProtocolError); ok {
			p.protocolError(pe, "child")
			continue
		} else if err == io.EOF {
			return
		} else if err != nil {
			if !p.isClosed() {
				log.WithField("err", err).Warn("failed to receive from child channel")
			}
			return
		}

		if env.Kind != protocol.Request {
			p.protocolError(&ProtocolError{
				Reason: ReasonUnexpectedKind,
				Err:    errors.Errorf("expected Request from child (got %s)", env.Kind),
			}, "child")
			continue
		}
		metrics.PumpRelayedTotal.Inc()
		p.send(*env.Job, relayTo(ch, env.ID))
	}
}

// relayTo returns a responder which sends a Response of |id| to |ch|.
func relayTo(ch Channel, id uint64) responder {
	return func(result protocol.Result, err error) {
		if err != nil {
			result = protocol.FailedResult(err)
		}
		if err = ch.Send(protocol.Envelope{ID: id, Kind: protocol.Response, Result: &result}); err != nil {
			log.WithFields(log.Fields{"id": id, "err": err}).Warn("failed to send response to child")
		}
	}
}

func (p *Pump) protocolError(err *ProtocolError, peer string) {
	metrics.PumpProtocolErrorsTotal.WithLabelValues(err.Reason).Inc()
	log.WithFields(log.Fields{
		"role":   p.role,
		"peer":   peer,
		"reason": err.Reason,
		"err":    err.Err,
	}).Warn("protocol error")
}
