package vidpipe

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/dudk/vidpipe/metric"
)

// State is a playback state of the pipeline. States are ordered:
// Null < Ready < Paused < Playing.
type State int

// States.
const (
	// VoidPending means no state change is pending.
	VoidPending State = iota
	// Null is the initial state, no resources are allocated.
	Null
	// Ready means resources are allocated, but no data flows.
	Ready
	// Paused means streaming is started, but data flow is blocked.
	Paused
	// Playing means data flows and sinks render it.
	Playing
)

func (s State) String() string {
	switch s {
	case VoidPending:
		return "VOID_PENDING"
	case Null:
		return "NULL"
	case Ready:
		return "READY"
	case Paused:
		return "PAUSED"
	case Playing:
		return "PLAYING"
	}
	return "UNKNOWN"
}

// ParseState returns state by its name, case insensitive.
func ParseState(s string) (State, error) {
	for st := Null; st <= Playing; st++ {
		if strings.EqualFold(st.String(), s) {
			return st, nil
		}
	}
	return VoidPending, errors.Wrapf(ErrInvalidState, "%q", s)
}

// valid reports if s is a target state.
func (s State) valid() bool {
	return s >= Null && s <= Playing
}

// next returns state one step closer to target.
func (s State) next(target State) State {
	if target > s {
		return s + 1
	}
	return s - 1
}

// event identifies the type of event.
type event int

// types of events.
const (
	setState event = iota
	seek
	release
)

func (e event) String() string {
	switch e {
	case setState:
		return "set-state"
	case seek:
		return "seek"
	case release:
		return "release"
	}
	return "unknown"
}

// eventMessage is passed into pipeline's event channel when user does some action.
type eventMessage struct {
	event
	state    State
	position time.Duration
	flags    SeekFlags
	errc     chan error // closed when event is handled.
}

// SetState requests asynchronous transition to target state. Returned
// channel is closed once the target is reached; error is sent first if
// transition fails. Setting the current state again does nothing.
func (p *Pipeline) SetState(target State) chan error {
	return p.send(eventMessage{event: setState, state: target})
}

// Stop moves pipeline to Ready state. It's safe to call it in any state.
func (p *Pipeline) Stop() chan error {
	return p.SetState(Ready)
}

// Close moves pipeline to Null state and releases its event loop.
// Consequent calls return nil.
func (p *Pipeline) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = Wait(p.send(eventMessage{event: release}))
		<-p.done
	})
	return err
}

// send pushes event into the loop. If loop is done, ErrClosed is returned.
func (p *Pipeline) send(e eventMessage) chan error {
	e.errc = make(chan error, 1)
	select {
	case p.events <- e:
	case <-p.done:
		e.errc <- ErrClosed
		close(e.errc)
	}
	return e.errc
}

// Wait for state transition or first error to occur.
func Wait(errc chan error) error {
	for err := range errc {
		if err != nil {
			return err
		}
	}
	return nil
}

// loop serializes all state changes and reacts on streaming errors.
func (p *Pipeline) loop() {
	defer close(p.done)
	for {
		select {
		case e := <-p.events:
			p.log.Debugf("%v got %v event", p, e.event)
			var err error
			switch e.event {
			case setState:
				err = p.changeState(e.state)
			case seek:
				err = p.doSeek(e.position, e.flags)
			case release:
				if !p.opened {
					err = p.releaseElements()
				} else {
					err = p.changeState(Null)
				}
				reply(e.errc, err)
				return
			}
			reply(e.errc, err)
		case err, ok := <-p.errc:
			if !ok {
				p.errc = nil
				p.streamingDone()
				continue
			}
			p.streamingError(err)
		}
	}
}

func reply(errc chan error, err error) {
	if err != nil {
		errc <- err
	}
	close(errc)
}

// changeState steps through intermediate states until target is reached.
func (p *Pipeline) changeState(target State) error {
	if !target.valid() {
		return errors.Wrapf(ErrInvalidState, "target %v", target)
	}
	for {
		current := p.State()
		if current == target {
			return nil
		}
		next := current.next(target)
		if err := p.step(current, next); err != nil {
			return errors.Wrapf(err, "%v to %v", current, next)
		}
		p.setState(next)
		pending := VoidPending
		if next != target {
			pending = target
		}
		metric.StateTransition(current.String(), next.String())
		p.bus.Post(NewStateChangedMessage(p.name, current, next, pending))
		p.log.Debugf("%v is %v", p, next)
	}
}

// step executes a single state transition.
func (p *Pipeline) step(from, to State) error {
	switch {
	case from == Null && to == Ready:
		return p.open()
	case from == Ready && to == Paused:
		return p.startStreaming()
	case from == Paused && to == Playing:
		p.clock.start()
		p.valve.open()
	case from == Playing && to == Paused:
		p.valve.close()
		p.clock.pause()
	case from == Paused && to == Ready:
		p.stopStreaming()
		p.resetSegment(0)
		return p.flush()
	case from == Ready && to == Null:
		return p.closeElements()
	}
	return nil
}

// open calls Open hooks. If any fails, already opened elements are closed.
func (p *Pipeline) open() error {
	if !p.linked {
		return ErrNotLinked
	}
	if err := checkCaps(p.chain); err != nil {
		return err
	}
	for i, e := range p.chain {
		o, ok := e.(Opener)
		if !ok {
			continue
		}
		if err := o.Open(); err != nil {
			for j := i - 1; j >= 0; j-- {
				if c, ok := p.chain[j].(Closer); ok {
					c.Close()
				}
			}
			return newElementError(e, err)
		}
	}
	p.opened = true
	return nil
}

// closeElements calls Close hooks in reverse order. All elements are
// closed even if some fail, first error is returned.
func (p *Pipeline) closeElements() error {
	var first error
	for i := len(p.chain) - 1; i >= 0; i-- {
		c, ok := p.chain[i].(Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = newElementError(p.chain[i], err)
		}
	}
	return first
}

// releaseElements closes every added element of pipeline which was never
// opened, linked or not.
func (p *Pipeline) releaseElements() error {
	elements := p.Elements()
	var first error
	for i := len(elements) - 1; i >= 0; i-- {
		c, ok := elements[i].(Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = newElementError(elements[i], err)
		}
	}
	return first
}

// flush calls Flush hooks.
func (p *Pipeline) flush() error {
	for _, e := range p.chain {
		if f, ok := e.(Flusher); ok {
			if err := f.Flush(); err != nil {
				return newElementError(e, err)
			}
		}
	}
	return nil
}

// streamingDone is called when all streaming goroutines are finished.
func (p *Pipeline) streamingDone() {
	p.cancelStreaming()
	if p.failed {
		return
	}
	p.log.Debugf("%v reached end of stream", p)
	p.bus.Post(NewEOSMessage(p.name))
}

// streamingError posts error message and interrupts streaming.
func (p *Pipeline) streamingError(err error) {
	p.failed = true
	var ee *ElementError
	if errors.As(err, &ee) {
		p.bus.Post(NewErrorMessage(ee.Element, ee.Err, ee.Debug))
	} else {
		p.bus.Post(NewErrorMessage(p.name, err, ""))
	}
	p.log.Debugf("%v streaming failed: %v", p, err)
	p.cancelStreaming()
}

// doSeek changes position of the stream. With flush flag streaming is
// restarted from the new position.
func (p *Pipeline) doSeek(position time.Duration, flags SeekFlags) error {
	state := p.State()
	if state < Paused {
		return errors.Wrapf(ErrInvalidState, "seek in %v", state)
	}
	var seeker Seeker
	for _, e := range p.chain {
		if s, ok := e.(Seeker); ok {
			seeker = s
			break
		}
	}
	if seeker == nil {
		return ErrNotSeekable
	}
	flushing := flags&SeekFlagFlush != 0
	if flushing {
		p.stopStreaming()
		if err := p.flush(); err != nil {
			return err
		}
	}
	actual, err := seeker.Seek(position, flags)
	if err == nil {
		p.resetSegment(actual)
	}
	if flushing {
		if serr := p.startStreaming(); serr != nil && err == nil {
			err = serr
		}
		if state == Playing {
			p.clock.start()
			p.valve.open()
		}
	}
	return err
}
