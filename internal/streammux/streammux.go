// Package streammux fans multiple fact sources into a single ordered
// channel with bounded buffering and fair interleaving.
package streammux

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/sentineloop/incident-agent/internal/fact"
)

// DefaultCapacity is the default bound on each source's internal
// buffer.
const DefaultCapacity = 256

// DroppedFunc is invoked whenever backpressure forces the oldest
// buffered fact out to make room for a new one.
type DroppedFunc func(source string, dropped fact.Fact)

// Source is one producer feeding the multiplexer: a name for logging
// and a channel of facts it will close when done.
type Source struct {
	Name string
	Facts <-chan fact.Fact
}

// Mux merges N Sources into a single bounded output channel. Each
// source gets its own goroutine and its own bounded relay buffer;
// when a relay buffer is full, the oldest fact is dropped (and
// reported via OnDrop) rather than blocking the source goroutine, and
// overall fairness comes from each source being serviced by an
// independent goroutine racing to push into the shared output.
type Mux struct {
	capacity int
	onDrop   DroppedFunc
}

// New returns a Mux with the given per-source buffer capacity (0 means
// DefaultCapacity) and drop callback (nil is a no-op).
func New(capacity int, onDrop DroppedFunc) *Mux {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if onDrop == nil {
		onDrop = func(string, fact.Fact) {}
	}
	return &Mux{capacity: capacity, onDrop: onDrop}
}

// Run fans sources into the returned channel until ctx is canceled or
// every source's channel closes, then closes the output channel. The
// returned error is always nil; a relay goroutine's cancellation error
// is discarded when the output channel is closed.
func (m *Mux) Run(ctx context.Context, sources []Source) (<-chan fact.Fact, error) {
	out := make(chan fact.Fact, m.capacity)
	g, gctx := errgroup.WithContext(ctx)

	for _, src := range sources {
		src := src
		g.Go(func() error {
			return m.relay(gctx, src, out)
		})
	}

	go func() {
		_ = g.Wait()
		close(out)
	}()

	return out, nil
}

// relay drains src.Facts into out, buffering up to m.capacity facts of
// backpressure before dropping the oldest buffered fact to make room
// for the newest — producers (src.Facts) are never blocked beyond
// their own channel's capacity.
func (m *Mux) relay(ctx context.Context, src Source, out chan<- fact.Fact) error {
	buf := make([]fact.Fact, 0, m.capacity)
	flush := func() {
		for len(buf) > 0 {
			select {
			case out <- buf[0]:
				buf = buf[1:]
			case <-ctx.Done():
				return
			default:
				return
			}
		}
	}

	for {
		flush()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-src.Facts:
			if !ok {
				// Drain whatever is left, blocking this time since the
				// source is done producing.
				for _, f := range buf {
					select {
					case out <- f:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				return nil
			}
			if len(buf) >= m.capacity {
				m.onDrop(src.Name, buf[0])
				buf = buf[1:]
			}
			buf = append(buf, f)
		}
	}
}
