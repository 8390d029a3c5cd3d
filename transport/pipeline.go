package transport

import (
	"sync"
	"sync/atomic"

	"github.com/c360/feedline/errors"
	"github.com/c360/feedline/jsonl"
	"github.com/c360/feedline/message"
)

// DefaultEventBuffer is the delivery channel capacity used when none
// is given. It absorbs short consumer stalls without growing the
// accumulator's pending buffer.
const DefaultEventBuffer = 64

// Pipeline funnels raw transport bytes through line accumulation and
// record decoding, so every transport delivers identical parsing
// semantics. A single goroutine (the transport's read loop) calls
// Ingest; decoded events come out of Events in arrival order with a
// 1-based Sequence assigned per session.
//
// Malformed records and overflow diagnostics go to the side handlers,
// never onto the event channel, and neither stops the stream unless
// the accumulator is configured to fail on overflow.
type Pipeline struct {
	accumulator *jsonl.Accumulator
	decoder     *jsonl.Decoder
	events      chan message.Event
	onFailure   FailureHandler
	onOverflow  OverflowHandler

	sequence  uint64
	bytesIn   atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	overflows atomic.Int64

	done          chan struct{}
	interruptOnce sync.Once
	closeOnce     sync.Once
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithEventBuffer sets the delivery channel capacity.
func WithEventBuffer(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.events = make(chan message.Event, n)
		}
	}
}

// WithAccumulator replaces the default accumulator, for callers that
// tune the buffer cap or the overflow policy.
func WithAccumulator(a *jsonl.Accumulator) PipelineOption {
	return func(p *Pipeline) {
		if a != nil {
			p.accumulator = a
		}
	}
}

// WithAccumulatorOptions builds a fresh tuned accumulator each time the
// option is applied. Transport clients re-apply their pipeline options
// on every connect, so unlike WithAccumulator no buffer state is shared
// between sessions.
func WithAccumulatorOptions(opts ...jsonl.AccumulatorOption) PipelineOption {
	return func(p *Pipeline) {
		p.accumulator = jsonl.NewAccumulator(opts...)
	}
}

// WithDecoder replaces the default decoder.
func WithDecoder(d *jsonl.Decoder) PipelineOption {
	return func(p *Pipeline) {
		if d != nil {
			p.decoder = d
		}
	}
}

// WithFailureHandler sets the handler for per-record decode failures.
func WithFailureHandler(h FailureHandler) PipelineOption {
	return func(p *Pipeline) {
		p.onFailure = h
	}
}

// WithOverflowHandler sets the handler for overflow diagnostics.
func WithOverflowHandler(h OverflowHandler) PipelineOption {
	return func(p *Pipeline) {
		p.onOverflow = h
	}
}

// NewPipeline creates a pipeline with a fresh accumulator and decoder.
// Each connect session gets its own pipeline so no partial line ever
// carries over from a previous connection.
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		accumulator: jsonl.NewAccumulator(),
		decoder:     jsonl.NewDecoder(),
		events:      make(chan message.Event, DefaultEventBuffer),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Ingest feeds a chunk of raw bytes through the pipeline. Complete
// records are decoded and delivered; chunk boundaries carry no meaning,
// so a record split across chunks decodes identically to one that
// arrived whole.
//
// Records extracted before an overflow are still delivered, then the
// overflow goes to the handler. A non-nil return means the stream must
// stop: either the accumulator halted under the fail policy, or the
// pipeline was interrupted mid-delivery.
func (p *Pipeline) Ingest(chunk []byte) error {
	p.bytesIn.Add(int64(len(chunk)))

	records, overflowErr := p.accumulator.Ingest(chunk)
	for _, record := range records {
		evt, failure := p.decoder.Decode(record)
		if failure != nil {
			p.failed.Add(1)
			if p.onFailure != nil {
				p.onFailure(*failure)
			}
			continue
		}

		p.sequence++
		evt.Sequence = p.sequence

		select {
		case p.events <- *evt:
			p.delivered.Add(1)
		case <-p.done:
			return errors.WrapTransient(errors.ErrStreamEnded, "pipeline", "Ingest",
				"deliver event after interrupt")
		}
	}

	if overflowErr != nil {
		p.overflows.Add(1)
		if p.onOverflow != nil {
			p.onOverflow(overflowErr)
		}
		if errors.IsFatal(overflowErr) {
			return overflowErr
		}
	}
	return nil
}

// Events returns the delivery channel. It closes when the owning
// transport ends the session.
func (p *Pipeline) Events() <-chan message.Event {
	return p.events
}

// Interrupt unblocks an Ingest stalled on a full delivery channel.
// Safe to call from any goroutine, any number of times.
func (p *Pipeline) Interrupt() {
	p.interruptOnce.Do(func() {
		close(p.done)
	})
}

// Close interrupts and closes the delivery channel. Only the ingesting
// goroutine may call it, after its final Ingest.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		p.Interrupt()
		close(p.events)
	})
}

// Stats reports pipeline counters for the current session.
func (p *Pipeline) Stats() PipelineStats {
	return PipelineStats{
		BytesIn:   p.bytesIn.Load(),
		Delivered: p.delivered.Load(),
		Failed:    p.failed.Load(),
		Overflows: p.overflows.Load(),
	}
}

// PipelineStats is a point-in-time snapshot of pipeline counters.
type PipelineStats struct {
	BytesIn   int64
	Delivered int64
	Failed    int64
	Overflows int64
}
