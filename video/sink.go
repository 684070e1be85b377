// Package video provides video sinks which render frames into a window
// supplied by application.
package video

import (
	"sync"

	"github.com/dudk/vidpipe"
)

// Factory names of video sinks.
const (
	XvImageSinkFactory   = "xvimagesink"
	AutoVideoSinkFactory = "autovideosink"
)

// SinkCaps are caps accepted by video sinks.
var SinkCaps = vidpipe.MustParseCaps("video/x-raw")

func init() {
	for _, factory := range []string{XvImageSinkFactory, AutoVideoSinkFactory} {
		factory := factory
		vidpipe.Register(factory, func(name string) (vidpipe.Element, error) {
			return NewSink(factory, name, nil), nil
		})
	}
}

// Renderer draws frames into native window.
type Renderer interface {
	Render(handle uintptr, frame *vidpipe.Buffer) error
}

// RendererFunc is an adapter to use function as renderer.
type RendererFunc func(handle uintptr, frame *vidpipe.Buffer) error

// Render calls fn.
func (fn RendererFunc) Render(handle uintptr, frame *vidpipe.Buffer) error {
	return fn(handle, frame)
}

// Discard renderer doesn't draw anything.
var Discard = RendererFunc(func(uintptr, *vidpipe.Buffer) error { return nil })

// Sink renders frames with renderer into window set with SetWindowHandle.
// If no handle is set, zero handle is passed and renderer is expected to
// draw into its own window.
type Sink struct {
	vidpipe.Base

	m        sync.Mutex
	renderer Renderer
	handle   uintptr
	frames   int
	last     *vidpipe.Buffer
}

// NewSink returns video sink. If renderer is nil, frames are discarded.
func NewSink(factory, name string, renderer Renderer) *Sink {
	if renderer == nil {
		renderer = Discard
	}
	return &Sink{
		Base: vidpipe.NewBase(factory, name,
			vidpipe.BoolProperty("sync", true, "Sync on the clock"),
			vidpipe.BoolProperty("force-aspect-ratio", true, "When enabled, scaling will respect original aspect ratio"),
		),
		renderer: renderer,
	}
}

// SetRenderer replaces renderer. It's safe to call it while playing.
func (s *Sink) SetRenderer(r Renderer) {
	if r == nil {
		r = Discard
	}
	s.m.Lock()
	s.renderer = r
	s.m.Unlock()
}

// SetWindowHandle implements vidpipe.VideoOverlay.
func (s *Sink) SetWindowHandle(handle uintptr) {
	s.m.Lock()
	s.handle = handle
	s.m.Unlock()
}

// WindowHandle returns window handle set by application.
func (s *Sink) WindowHandle() uintptr {
	s.m.Lock()
	defer s.m.Unlock()
	return s.handle
}

// SinkCaps returns caps accepted by sink.
func (s *Sink) SinkCaps() vidpipe.Caps {
	return SinkCaps
}

// Sink returns rendering closure.
func (s *Sink) Sink() (vidpipe.SinkFunc, error) {
	return func(b *vidpipe.Buffer) error {
		s.m.Lock()
		renderer, handle := s.renderer, s.handle
		s.m.Unlock()
		if err := renderer.Render(handle, b); err != nil {
			return err
		}
		s.m.Lock()
		s.frames++
		s.last = b
		s.m.Unlock()
		return nil
	}, nil
}

// Expose renders the last frame again, for example when window is redrawn.
// It returns false if nothing was rendered yet.
func (s *Sink) Expose() (bool, error) {
	s.m.Lock()
	renderer, handle, last := s.renderer, s.handle, s.last
	s.m.Unlock()
	if last == nil {
		return false, nil
	}
	return true, renderer.Render(handle, last)
}

// Frames returns number of rendered frames.
func (s *Sink) Frames() int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.frames
}

// Close implements vidpipe.Closer. Last frame is released.
func (s *Sink) Close() error {
	s.m.Lock()
	defer s.m.Unlock()
	s.last = nil
	s.frames = 0
	return nil
}
