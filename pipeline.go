package vidpipe

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/dudk/vidpipe/log"
)

// Pipeline is a linked chain of elements with fully defined processing sequence.
// It has:
//
//	1		source
//	0..n	transforms
//	1		sink
//
// Single element which is both source and sink forms a complete pipeline too.
type Pipeline struct {
	uid  string
	name string
	log  logrus.FieldLogger
	bus  *Bus

	elements []Element          // in order of addition
	byName   map[string]Element // elements by name
	chain    []Element          // in order of linking
	linked   bool

	m        sync.Mutex
	state    State
	segment  time.Duration // position streaming was started from
	position time.Duration // pts of the last rendered buffer

	// streaming, owned by loop goroutine.
	cancel context.CancelFunc
	errc   <-chan error
	failed bool
	// opened is set once elements were opened, owned by loop goroutine.
	opened bool
	valve  *valve
	clock  *clock

	events    chan eventMessage
	done      chan struct{}
	closeOnce sync.Once
}

// Option provides a way to set functional parameters to pipeline.
type Option func(p *Pipeline) error

// ElementSpec describes an element to make: factory, optional name and properties.
type ElementSpec struct {
	Factory    string                 `yaml:"factory"`
	Name       string                 `yaml:"name,omitempty"`
	Properties map[string]interface{} `yaml:"properties,omitempty"`
}

// New creates a new empty pipeline in Null state.
func New(name string, options ...Option) (*Pipeline, error) {
	p := &Pipeline{
		uid:      xid.New().String(),
		name:     name,
		log:      log.Silent(),
		bus:      NewBus(),
		byName:   make(map[string]Element),
		state:    Null,
		position: ClockTimeNone,
		valve:    newValve(),
		clock:    &clock{changed: make(chan struct{})},
		events:   make(chan eventMessage),
		done:     make(chan struct{}),
	}
	for _, option := range options {
		if err := option(p); err != nil {
			return nil, err
		}
	}
	if p.name == "" {
		p.name = "pipeline-" + p.uid
	}
	go p.loop()
	return p, nil
}

// WithLogger sets logger to pipeline. If this option is not provided, silent logger is used.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			return errors.New("nil logger")
		}
		p.log = logger
		return nil
	}
}

// WithBus makes pipeline post messages to provided bus.
func WithBus(b *Bus) Option {
	return func(p *Pipeline) error {
		if b == nil {
			return errors.New("nil bus")
		}
		p.bus = b
		return nil
	}
}

// Build makes elements with provided specs, adds them into a new pipeline,
// links them in declared order and then applies their properties. Caps are
// checked again once properties are set. It's all or nothing: if any step
// fails, all made elements are released and error is returned.
func Build(name string, specs []ElementSpec, options ...Option) (*Pipeline, error) {
	if len(specs) == 0 {
		return nil, errors.Wrap(ErrLink, "no elements")
	}
	elements := make([]Element, 0, len(specs))
	release := func() {
		for i := len(elements) - 1; i >= 0; i-- {
			if c, ok := elements[i].(Closer); ok {
				c.Close()
			}
		}
	}
	for _, spec := range specs {
		e, err := Make(spec.Factory, spec.Name)
		if err != nil {
			release()
			return nil, err
		}
		elements = append(elements, e)
	}

	p, err := New(name, options...)
	if err != nil {
		release()
		return nil, err
	}
	fail := func(err error) (*Pipeline, error) {
		release()
		p.Close()
		return nil, err
	}
	if err := p.Add(elements...); err != nil {
		return fail(err)
	}
	if err := p.Link(elements...); err != nil {
		return fail(err)
	}
	for i, spec := range specs {
		if err := SetProperties(elements[i], spec.Properties); err != nil {
			return fail(err)
		}
	}
	if err := checkCaps(elements); err != nil {
		return fail(err)
	}
	return p, nil
}

// SetProperties assigns properties in sorted key order.
func SetProperties(e Element, props map[string]interface{}) error {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := e.Properties().Set(k, props[k]); err != nil {
			return errors.Wrapf(err, "element %q", e.Name())
		}
	}
	return nil
}

// Add puts elements into pipeline. Pipeline owns elements once they are added.
func (p *Pipeline) Add(elements ...Element) error {
	p.m.Lock()
	defer p.m.Unlock()
	if p.state != Null {
		return errors.Wrapf(ErrInvalidState, "add in %v", p.state)
	}
	for _, e := range elements {
		if e == nil {
			return errors.New("nil element")
		}
		if _, ok := p.byName[e.Name()]; ok {
			return errors.Wrapf(ErrDuplicateName, "%q", e.Name())
		}
		p.byName[e.Name()] = e
		p.elements = append(p.elements, e)
	}
	return nil
}

// Link links all pipeline elements in provided order. First element must
// be a source, last must be a sink and the rest must be transforms. Caps of
// adjacent elements must intersect.
func (p *Pipeline) Link(elements ...Element) error {
	p.m.Lock()
	defer p.m.Unlock()
	if p.state != Null {
		return errors.Wrapf(ErrInvalidState, "link in %v", p.state)
	}
	if len(elements) == 0 {
		return errors.Wrap(ErrLink, "no elements")
	}
	seen := make(map[string]struct{}, len(elements))
	for _, e := range elements {
		if p.byName[e.Name()] != e {
			return errors.Wrapf(ErrLink, "%q is not in %v", e.Name(), p.name)
		}
		if _, ok := seen[e.Name()]; ok {
			return errors.Wrapf(ErrLink, "%q linked twice", e.Name())
		}
		seen[e.Name()] = struct{}{}
	}
	if len(seen) != len(p.elements) {
		for _, e := range p.elements {
			if _, ok := seen[e.Name()]; !ok {
				return errors.Wrapf(ErrLink, "%q is not linked", e.Name())
			}
		}
	}
	if _, ok := elements[0].(Source); !ok {
		return errors.Wrapf(ErrLink, "%q is not a source", elements[0].Name())
	}
	if _, ok := elements[len(elements)-1].(Sink); !ok {
		return errors.Wrapf(ErrLink, "%q is not a sink", elements[len(elements)-1].Name())
	}
	if err := checkCaps(elements); err != nil {
		return err
	}
	p.chain = append([]Element(nil), elements...)
	p.linked = true
	return nil
}

// checkCaps verifies that every adjacent pair of chain can be linked.
// Caps properties may change after linking, so it's repeated before
// elements are opened.
func checkCaps(chain []Element) error {
	for i := 1; i < len(chain); i++ {
		if err := canLink(chain[i-1], chain[i], i == len(chain)-1); err != nil {
			return err
		}
	}
	return nil
}

// canLink checks if upstream can feed downstream.
func canLink(up, down Element, last bool) error {
	var src Caps
	switch e := up.(type) {
	case Transform:
		src = e.SrcCaps()
	case Source:
		src = e.SrcCaps()
	default:
		return errors.Wrapf(ErrLink, "%q has no src pad", up.Name())
	}
	var sink Caps
	switch e := down.(type) {
	case Transform:
		if last {
			return errors.Wrapf(ErrLink, "%q is not a sink", down.Name())
		}
		sink = e.SinkCaps()
	case Sink:
		if !last {
			return errors.Wrapf(ErrLink, "%q is a sink in the middle", down.Name())
		}
		sink = e.SinkCaps()
	default:
		return errors.Wrapf(ErrLink, "%q has no sink pad", down.Name())
	}
	if !src.CanIntersect(sink) {
		return errors.Wrapf(ErrLink, "%q and %q: %v doesn't intersect %v", up.Name(), down.Name(), src, sink)
	}
	return nil
}

// Element returns element by name.
func (p *Pipeline) Element(name string) (Element, bool) {
	p.m.Lock()
	defer p.m.Unlock()
	e, ok := p.byName[name]
	return e, ok
}

// Elements returns elements in linking order or in order of addition,
// if pipeline is not linked.
func (p *Pipeline) Elements() []Element {
	p.m.Lock()
	defer p.m.Unlock()
	if p.linked {
		return append([]Element(nil), p.chain...)
	}
	return append([]Element(nil), p.elements...)
}

// Bus returns pipeline's bus.
func (p *Pipeline) Bus() *Bus {
	return p.bus
}

// Name returns pipeline name.
func (p *Pipeline) Name() string {
	return p.name
}

// State returns current state.
func (p *Pipeline) State() State {
	p.m.Lock()
	defer p.m.Unlock()
	return p.state
}

func (p *Pipeline) setState(s State) {
	p.m.Lock()
	p.state = s
	p.m.Unlock()
}

// QueryDuration returns duration of the stream. It fails below Paused
// state or when no element knows duration.
func (p *Pipeline) QueryDuration() (time.Duration, error) {
	if s := p.State(); s < Paused {
		return ClockTimeNone, errors.Wrapf(ErrQueryFailed, "duration in %v", s)
	}
	for _, e := range p.Elements() {
		q, ok := e.(DurationQuerier)
		if !ok {
			continue
		}
		d, err := q.Duration()
		if err == nil && d >= 0 {
			return d, nil
		}
	}
	return ClockTimeNone, errors.Wrap(ErrQueryFailed, "duration unknown")
}

// QueryPosition returns position of the last rendered buffer. If nothing
// is rendered yet, position of the last seek is returned.
func (p *Pipeline) QueryPosition() (time.Duration, error) {
	p.m.Lock()
	defer p.m.Unlock()
	if p.state < Paused {
		return ClockTimeNone, errors.Wrapf(ErrQueryFailed, "position in %v", p.state)
	}
	if p.position != ClockTimeNone {
		return p.position, nil
	}
	return p.segment, nil
}

func (p *Pipeline) setPosition(pts time.Duration) {
	p.m.Lock()
	p.position = pts
	p.m.Unlock()
}

func (p *Pipeline) resetSegment(position time.Duration) {
	p.m.Lock()
	p.segment = position
	p.position = ClockTimeNone
	p.m.Unlock()
	p.clock.reset(position)
}

// Seek moves stream to position. It blocks until seek is handled.
func (p *Pipeline) Seek(position time.Duration, flags SeekFlags) error {
	if position < 0 {
		return errors.Wrapf(ErrQueryFailed, "negative seek position %v", position)
	}
	return Wait(p.send(eventMessage{event: seek, position: position, flags: flags}))
}

// SetWindowHandle passes native window handle to the first element
// which implements VideoOverlay.
func (p *Pipeline) SetWindowHandle(handle uintptr) error {
	for _, e := range p.Elements() {
		if o, ok := e.(VideoOverlay); ok {
			o.SetWindowHandle(handle)
			return nil
		}
	}
	return ErrNoOverlay
}

// Convert pipeline to string.
func (p *Pipeline) String() string {
	return fmt.Sprintf("%v %v", p.name, p.uid)
}
