package vidpipe

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/dudk/vidpipe/metric"
)

// sourceRunner is source's runner.
type sourceRunner struct {
	Source
	fn SourceFunc
}

// transformRunner represents transform's runner.
type transformRunner struct {
	Transform
	fn TransformFunc
}

// sinkRunner represents sink's runner.
type sinkRunner struct {
	Sink
	fn   SinkFunc
	sync bool
}

// startStreaming allocates closures of all elements and starts a goroutine
// per element. Data flow is blocked until valve is opened.
func (p *Pipeline) startStreaming() error {
	src := p.chain[0].(Source)
	fn, err := src.Source()
	if err != nil {
		return newElementError(src, err)
	}
	sr := sourceRunner{Source: src, fn: fn}

	var middle []Element
	if len(p.chain) > 2 {
		middle = p.chain[1 : len(p.chain)-1]
	}
	transforms := make([]transformRunner, 0, len(middle))
	for _, e := range middle {
		t := e.(Transform)
		fn, err := t.Transform()
		if err != nil {
			return newElementError(t, err)
		}
		transforms = append(transforms, transformRunner{Transform: t, fn: fn})
	}

	sink := p.chain[len(p.chain)-1].(Sink)
	sinkFn, err := sink.Sink()
	if err != nil {
		return newElementError(sink, err)
	}
	kr := sinkRunner{Sink: sink, fn: sinkFn, sync: sink.Properties().Bool("sync")}

	p.valve.close()
	ctx, cancel := context.WithCancel(context.Background())
	errcList := make([]<-chan error, 0, len(p.chain)+1)

	out, errc := sr.run(ctx, p.valve)
	errcList = append(errcList, errc)
	for i := range transforms {
		out, errc = transforms[i].run(ctx, out)
		errcList = append(errcList, errc)
	}
	errcList = append(errcList, kr.run(ctx, out, p.clock, p.setPosition))

	p.cancel = cancel
	p.failed = false
	p.errc = mergeErrors(errcList...)
	return nil
}

// stopStreaming interrupts all streaming goroutines and waits for them.
func (p *Pipeline) stopStreaming() {
	p.cancelStreaming()
	if p.errc == nil {
		return
	}
	for range p.errc {
	}
	p.errc = nil
}

func (p *Pipeline) cancelStreaming() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// run the source runner.
func (r *sourceRunner) run(ctx context.Context, v *valve) (<-chan *Buffer, <-chan error) {
	out := make(chan *Buffer)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		for {
			if err := v.wait(ctx); err != nil {
				return
			}
			b, err := r.fn(ctx)
			if err != nil {
				if err != io.EOF && ctx.Err() == nil {
					errc <- newElementError(r, err)
				}
				return
			}
			if b == nil {
				continue
			}
			metric.Buffer(r.Factory(), b.Size())
			select {
			case out <- b:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, errc
}

// run the transform runner.
func (r *transformRunner) run(ctx context.Context, in <-chan *Buffer) (<-chan *Buffer, <-chan error) {
	out := make(chan *Buffer)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		for {
			var b *Buffer
			var ok bool
			select {
			case b, ok = <-in:
				if !ok {
					return
				}
			case <-ctx.Done():
				return
			}
			result, err := r.fn(b)
			if err != nil {
				errc <- newElementError(r, err)
				return
			}
			for _, b := range result {
				metric.Buffer(r.Factory(), b.Size())
				select {
				case out <- b:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, errc
}

// run the sink runner. Synchronised sinks wait for buffer's pts on the clock.
func (r *sinkRunner) run(ctx context.Context, in <-chan *Buffer, c *clock, rendered func(time.Duration)) <-chan error {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		for {
			var b *Buffer
			var ok bool
			select {
			case b, ok = <-in:
				if !ok {
					return
				}
			case <-ctx.Done():
				return
			}
			if r.sync && b.HasPTS() {
				lateness, err := c.wait(ctx, b.PTS)
				if err != nil {
					return
				}
				metric.Lateness(r.Factory(), lateness)
			}
			if err := r.fn(b); err != nil {
				errc <- newElementError(r, err)
				return
			}
			if b.HasPTS() {
				rendered(b.PTS)
			}
		}
	}()
	return errc
}

// merge error channels from all runners into one.
func mergeErrors(errcList ...<-chan error) <-chan error {
	var wg sync.WaitGroup
	errc := make(chan error, len(errcList))

	output := func(ec <-chan error) {
		for e := range ec {
			errc <- e
		}
		wg.Done()
	}
	wg.Add(len(errcList))
	for _, ec := range errcList {
		go output(ec)
	}

	go func() {
		wg.Wait()
		close(errc)
	}()
	return errc
}

// valve blocks data flow while closed.
type valve struct {
	m      sync.Mutex
	opened chan struct{} // closed when valve is open
	isOpen bool
}

func newValve() *valve {
	return &valve{opened: make(chan struct{})}
}

func (v *valve) open() {
	v.m.Lock()
	defer v.m.Unlock()
	if !v.isOpen {
		close(v.opened)
		v.isOpen = true
	}
}

func (v *valve) close() {
	v.m.Lock()
	defer v.m.Unlock()
	if v.isOpen {
		v.opened = make(chan struct{})
		v.isOpen = false
	}
}

// wait blocks until valve is open or context is done.
func (v *valve) wait(ctx context.Context) error {
	v.m.Lock()
	opened := v.opened
	v.m.Unlock()
	select {
	case <-opened:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
