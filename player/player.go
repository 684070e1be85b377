// Package player is a UI shell for playbin pipelines. It keeps playback
// state, cached duration and widgets in one context, and executes every
// callback on a single loop goroutine.
package player

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dudk/vidpipe"
	"github.com/dudk/vidpipe/log"
	"github.com/dudk/vidpipe/playbin"
)

// SeekFlags are used when slider is moved.
const SeekFlags = vidpipe.SeekFlagFlush | vidpipe.SeekFlagKeyUnit

// DefaultRefreshInterval is the period of UI refresh.
const DefaultRefreshInterval = time.Second

// ErrClosed is returned when callback is invoked after loop is done.
var ErrClosed = errors.New("player: closed")

// Pipeline is a part of vidpipe.Pipeline used by player.
type Pipeline interface {
	Name() string
	SetState(vidpipe.State) chan error
	Seek(time.Duration, vidpipe.SeekFlags) error
	QueryPosition() (time.Duration, error)
	QueryDuration() (time.Duration, error)
	SetWindowHandle(uintptr) error
	Elements() []vidpipe.Element
	Bus() *vidpipe.Bus
}

// Slider shows playback position in seconds.
type Slider interface {
	SetRange(min, max float64)
	SetValue(value float64)
}

// StreamsView shows information about streams.
type StreamsView interface {
	SetText(text string)
}

// StreamLister is implemented by elements which know streams of opened media.
type StreamLister interface {
	Streams() []playbin.StreamInfo
}

// Player holds UI context.
type Player struct {
	pipeline Pipeline
	slider   Slider
	streams  StreamsView
	log      logrus.FieldLogger

	state    vidpipe.State
	duration time.Duration
	// refreshing is set while refresh moves the slider.
	refreshing bool

	invoke chan func()
	done   chan struct{}
}

// Option configures player.
type Option func(*Player)

// WithLogger sets logger. Silent logger is used by default.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(p *Player) {
		p.log = logger
	}
}

// WithSlider sets seek slider.
func WithSlider(s Slider) Option {
	return func(p *Player) {
		p.slider = s
	}
}

// WithStreamsView sets streams view.
func WithStreamsView(v StreamsView) Option {
	return func(p *Player) {
		p.streams = v
	}
}

// New returns player for pipeline.
func New(pipeline Pipeline, options ...Option) *Player {
	p := &Player{
		pipeline: pipeline,
		slider:   nopSlider{},
		streams:  nopView{},
		log:      log.Silent(),
		state:    vidpipe.Null,
		duration: vidpipe.ClockTimeNone,
		invoke:   make(chan func()),
		done:     make(chan struct{}),
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Realize passes window handle of video area to pipeline. It's called
// when the area is shown for the first time.
func (p *Player) Realize(handle uintptr) error {
	return p.pipeline.SetWindowHandle(handle)
}

// Play sets pipeline to playing.
func (p *Player) Play() error {
	return p.setState(vidpipe.Playing)
}

// Pause sets pipeline to paused.
func (p *Player) Pause() error {
	return p.setState(vidpipe.Paused)
}

// Stop sets pipeline to ready.
func (p *Player) Stop() error {
	return p.setState(vidpipe.Ready)
}

// Close stops pipeline and releases its resources.
func (p *Player) Close() error {
	if err := p.Stop(); err != nil {
		p.log.Warnf("Unable to stop: %v", err)
	}
	return p.setState(vidpipe.Null)
}

func (p *Player) setState(s vidpipe.State) error {
	if err := vidpipe.Wait(p.pipeline.SetState(s)); err != nil {
		p.log.Errorf("Unable to set the pipeline to the %v state.", s)
		return err
	}
	return nil
}

// SeekTarget converts slider value in seconds to stream time.
func SeekTarget(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// SliderChanged seeks to slider value. Changes made by refresh are ignored.
func (p *Player) SliderChanged(seconds float64) error {
	if p.refreshing {
		return nil
	}
	return p.pipeline.Seek(SeekTarget(seconds), SeekFlags)
}

// Refresh updates slider. Duration is queried until it's known. It
// returns true to keep refresh timer armed.
func (p *Player) Refresh() bool {
	if p.state < vidpipe.Paused {
		return true
	}
	if p.duration == vidpipe.ClockTimeNone {
		d, err := p.pipeline.QueryDuration()
		if err != nil {
			p.log.Warn("Could not query current duration.")
		} else {
			p.duration = d
			p.slider.SetRange(0, d.Seconds())
		}
	}
	position, err := p.pipeline.QueryPosition()
	if err != nil {
		p.log.Debugf("Could not query current position: %v", err)
		return true
	}
	p.refreshing = true
	p.slider.SetValue(position.Seconds())
	p.refreshing = false
	return true
}

// NeedsBlackout reports if video area must be painted black. Video is
// drawn by pipeline only in paused and playing states.
func (p *Player) NeedsBlackout() bool {
	return p.state < vidpipe.Paused
}

// State returns the last pipeline state seen on the bus.
func (p *Player) State() vidpipe.State {
	return p.state
}

// Duration returns cached duration or ClockTimeNone if it's not known yet.
func (p *Player) Duration() time.Duration {
	return p.duration
}

// HandleMessage reacts on bus message.
func (p *Player) HandleMessage(m vidpipe.Message) {
	switch m.Type() {
	case vidpipe.MessageError:
		debug := m.Debug()
		if debug == "" {
			debug = "none"
		}
		p.log.Errorf("Error received from element %s: %v", m.Source(), m.Err())
		p.log.Errorf("Debugging information: %s", debug)
		p.Stop()
	case vidpipe.MessageEOS:
		p.log.Info("End-Of-Stream reached.")
		p.Stop()
	case vidpipe.MessageStateChanged:
		if m.Source() != p.pipeline.Name() {
			return
		}
		old, current, _ := m.ParseStateChanged()
		p.state = current
		p.log.Infof("State set to %v", current)
		if old == vidpipe.Ready && current == vidpipe.Paused {
			p.analyzeStreams()
			p.Refresh()
		}
	}
}

// analyzeStreams writes stream information into streams view.
func (p *Player) analyzeStreams() {
	var streams []playbin.StreamInfo
	for _, e := range p.pipeline.Elements() {
		if l, ok := e.(StreamLister); ok {
			streams = l.Streams()
			break
		}
	}
	var nVideo, nAudio int
	for _, s := range streams {
		switch s.Type {
		case playbin.StreamVideo:
			nVideo++
		case playbin.StreamAudio:
			nAudio++
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d video stream(s), %d audio stream(s)", nVideo, nAudio)
	for _, s := range streams {
		b.WriteString("\n\n")
		b.WriteString(s.String())
	}
	p.streams.SetText(b.String())
}

// Run executes refresh ticks, bus messages and invoked callbacks on the
// calling goroutine until context is done.
func (p *Player) Run(ctx context.Context, interval time.Duration) error {
	defer close(p.done)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	messages := p.pipeline.Bus().Messages(ctx, vidpipe.MessageError|vidpipe.MessageEOS|vidpipe.MessageStateChanged)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if messages != nil {
				for range messages {
				}
			}
			return nil
		case <-ticker.C:
			p.Refresh()
		case m, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			p.HandleMessage(m)
		case fn := <-p.invoke:
			fn()
		}
	}
}

// Invoke executes fn on the loop goroutine and waits for it.
func (p *Player) Invoke(fn func()) error {
	executed := make(chan struct{})
	select {
	case p.invoke <- func() {
		fn()
		close(executed)
	}:
	case <-p.done:
		return ErrClosed
	}
	<-executed
	return nil
}

type nopSlider struct{}

func (nopSlider) SetRange(float64, float64) {}
func (nopSlider) SetValue(float64)          {}

type nopView struct{}

func (nopView) SetText(string) {}
