// Package mock provides mocks for pipeline elements and allows to execute integration tests.
package mock

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/dudk/vidpipe"
)

// Factory names of mocks.
const (
	SourceFactory    = "mocksrc"
	TransformFactory = "mocktransform"
	SinkFactory      = "mocksink"
	// BrokenFactory always fails to make an element.
	BrokenFactory = "mockbroken"
)

// ErrMake is returned by broken factory.
var ErrMake = errors.New("mock: make failed")

func init() {
	vidpipe.Register(SourceFactory, func(name string) (vidpipe.Element, error) {
		return NewSource(name), nil
	})
	vidpipe.Register(TransformFactory, func(name string) (vidpipe.Element, error) {
		return NewTransform(name), nil
	})
	vidpipe.Register(SinkFactory, func(name string) (vidpipe.Element, error) {
		return NewSink(name), nil
	})
	vidpipe.Register(BrokenFactory, func(name string) (vidpipe.Element, error) {
		return nil, ErrMake
	})
}

// Source mocks a vidpipe.Source interface. It produces limit buffers of
// size bytes filled with value. If frame is set, buffers are timestamped.
type Source struct {
	vidpipe.Base
	counter
	Hooks
	// Interval is a delay before every buffer.
	Interval    time.Duration
	ErrorOnCall error
	ErrorOnSeek error

	m      sync.Mutex
	offset int // index of the next buffer
}

// NewSource returns source mock with default properties.
func NewSource(name string) *Source {
	return &Source{
		Base: vidpipe.NewBase(SourceFactory, name,
			vidpipe.IntProperty("limit", 10, "Number of buffers to produce"),
			vidpipe.IntProperty("size", 16, "Size of buffer in bytes"),
			vidpipe.IntProperty("value", 0, "Byte value of buffer data"),
			vidpipe.IntProperty("frame", 0, "Buffer duration in milliseconds, 0 for untimed"),
			vidpipe.CapsProperty("caps", "Caps of produced buffers"),
		),
	}
}

// SrcCaps returns caps property.
func (m *Source) SrcCaps() vidpipe.Caps {
	return m.Properties().Caps("caps")
}

func (m *Source) frame() time.Duration {
	return time.Duration(m.Properties().Int("frame")) * time.Millisecond
}

// Source returns closure which produces buffers.
func (m *Source) Source() (vidpipe.SourceFunc, error) {
	props := m.Properties()
	limit, size, value := props.Int("limit"), props.Int("size"), byte(props.Int("value"))
	caps, frame := props.Caps("caps"), m.frame()
	return func(ctx context.Context) (*vidpipe.Buffer, error) {
		if m.ErrorOnCall != nil {
			return nil, m.ErrorOnCall
		}
		m.m.Lock()
		n := m.offset
		if n >= limit {
			m.m.Unlock()
			return nil, io.EOF
		}
		m.offset++
		m.m.Unlock()
		if m.Interval > 0 {
			select {
			case <-time.After(m.Interval):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		data := make([]byte, size)
		for i := range data {
			data[i] = value
		}
		b := vidpipe.NewBuffer(data)
		b.Caps = caps
		if frame > 0 {
			b.PTS = time.Duration(n) * frame
			b.Duration = frame
		}
		m.advance(size)
		return b, nil
	}, nil
}

// Duration implements vidpipe.DurationQuerier. Untimed source doesn't know duration.
func (m *Source) Duration() (time.Duration, error) {
	frame := m.frame()
	if frame == 0 {
		return vidpipe.ClockTimeNone, vidpipe.ErrQueryFailed
	}
	return time.Duration(m.Properties().Int("limit")) * frame, nil
}

// Seek implements vidpipe.Seeker. Position is rounded down to the frame.
func (m *Source) Seek(position time.Duration, flags vidpipe.SeekFlags) (time.Duration, error) {
	if m.ErrorOnSeek != nil {
		return 0, m.ErrorOnSeek
	}
	frame := m.frame()
	if frame == 0 {
		return 0, vidpipe.ErrNotSeekable
	}
	m.m.Lock()
	defer m.m.Unlock()
	m.offset = int(position / frame)
	m.Seeked++
	return time.Duration(m.offset) * frame, nil
}

// Open implements vidpipe.Opener.
func (m *Source) Open() error {
	return m.open()
}

// Close implements vidpipe.Closer.
func (m *Source) Close() error {
	m.m.Lock()
	m.offset = 0
	m.m.Unlock()
	m.reset()
	return m.close()
}

// Flush implements vidpipe.Flusher. Source is rewound to the first buffer.
func (m *Source) Flush() error {
	m.m.Lock()
	m.offset = 0
	m.m.Unlock()
	return m.flush()
}

// Transform mocks a vidpipe.Transform interface. It passes buffers through.
type Transform struct {
	vidpipe.Base
	counter
	Hooks
	ErrorOnCall error
}

// NewTransform returns transform mock with default properties.
func NewTransform(name string) *Transform {
	return &Transform{
		Base: vidpipe.NewBase(TransformFactory, name,
			vidpipe.CapsProperty("caps", "Caps of sink and src pads"),
		),
	}
}

// SinkCaps returns caps property.
func (m *Transform) SinkCaps() vidpipe.Caps {
	return m.Properties().Caps("caps")
}

// SrcCaps returns caps property.
func (m *Transform) SrcCaps() vidpipe.Caps {
	return m.Properties().Caps("caps")
}

// Transform implementation for runner.
func (m *Transform) Transform() (vidpipe.TransformFunc, error) {
	return func(b *vidpipe.Buffer) ([]*vidpipe.Buffer, error) {
		if m.ErrorOnCall != nil {
			return nil, m.ErrorOnCall
		}
		m.advance(b.Size())
		return []*vidpipe.Buffer{b}, nil
	}, nil
}

// Open implements vidpipe.Opener.
func (m *Transform) Open() error {
	return m.open()
}

// Close implements vidpipe.Closer.
func (m *Transform) Close() error {
	m.reset()
	return m.close()
}

// Flush implements vidpipe.Flusher.
func (m *Transform) Flush() error {
	return m.flush()
}

// Sink mocks up a vidpipe.Sink interface. It also implements video overlay.
type Sink struct {
	vidpipe.Base
	counter
	Hooks
	ErrorOnCall error

	m       sync.Mutex
	buffers []*vidpipe.Buffer
	handle  uintptr
}

// NewSink returns sink mock with default properties.
func NewSink(name string) *Sink {
	return &Sink{
		Base: vidpipe.NewBase(SinkFactory, name,
			vidpipe.CapsProperty("caps", "Accepted caps"),
			vidpipe.BoolProperty("sync", false, "Sync on the clock"),
			vidpipe.BoolProperty("discard", false, "Don't keep received buffers"),
		),
	}
}

// SinkCaps returns caps property.
func (m *Sink) SinkCaps() vidpipe.Caps {
	return m.Properties().Caps("caps")
}

// Sink implementation for runner.
func (m *Sink) Sink() (vidpipe.SinkFunc, error) {
	discard := m.Properties().Bool("discard")
	return func(b *vidpipe.Buffer) error {
		if m.ErrorOnCall != nil {
			return m.ErrorOnCall
		}
		if !discard {
			m.m.Lock()
			m.buffers = append(m.buffers, b)
			m.m.Unlock()
		}
		m.advance(b.Size())
		return nil
	}, nil
}

// Buffers returns received buffers.
func (m *Sink) Buffers() []*vidpipe.Buffer {
	m.m.Lock()
	defer m.m.Unlock()
	return append([]*vidpipe.Buffer(nil), m.buffers...)
}

// SetWindowHandle implements vidpipe.VideoOverlay.
func (m *Sink) SetWindowHandle(handle uintptr) {
	m.m.Lock()
	m.handle = handle
	m.m.Unlock()
}

// WindowHandle returns handle set by application.
func (m *Sink) WindowHandle() uintptr {
	m.m.Lock()
	defer m.m.Unlock()
	return m.handle
}

// Open implements vidpipe.Opener.
func (m *Sink) Open() error {
	return m.open()
}

// Close implements vidpipe.Closer.
func (m *Sink) Close() error {
	m.m.Lock()
	m.buffers = nil
	m.m.Unlock()
	m.reset()
	return m.close()
}

// Flush implements vidpipe.Flusher.
func (m *Sink) Flush() error {
	return m.flush()
}

// Hooks allows to mock elements hooks. Flags should be checked only
// after state change is completed.
type Hooks struct {
	Opened  bool
	Closed  bool
	Flushed bool
	Seeked  int

	ErrorOnOpen  error
	ErrorOnClose error
	ErrorOnFlush error
}

func (h *Hooks) open() error {
	if h.ErrorOnOpen != nil {
		return h.ErrorOnOpen
	}
	h.Opened = true
	h.Closed = false
	return nil
}

func (h *Hooks) close() error {
	h.Closed = true
	return h.ErrorOnClose
}

func (h *Hooks) flush() error {
	h.Flushed = true
	return h.ErrorOnFlush
}

// counter counts buffers and bytes.
type counter struct {
	cm      sync.Mutex
	buffers int
	bytes   int
}

// advance counter's metrics.
func (c *counter) advance(size int) {
	c.cm.Lock()
	c.buffers++
	c.bytes += size
	c.cm.Unlock()
}

// reset counter's metrics.
func (c *counter) reset() {
	c.cm.Lock()
	c.buffers, c.bytes = 0, 0
	c.cm.Unlock()
}

// Count returns buffers and bytes metrics.
func (c *counter) Count() (int, int) {
	c.cm.Lock()
	defer c.cm.Unlock()
	return c.buffers, c.bytes
}
