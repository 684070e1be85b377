package vidpipe

import (
	"context"
	"time"
)

// Element is a single named processing stage of the pipeline.
type Element interface {
	Name() string
	Factory() string
	Properties() *Properties
}

// SourceFunc returns the next buffer. io.EOF ends the stream.
type SourceFunc func(ctx context.Context) (*Buffer, error)

// TransformFunc processes a buffer and returns zero or more output buffers.
type TransformFunc func(*Buffer) ([]*Buffer, error)

// SinkFunc consumes a buffer.
type SinkFunc func(*Buffer) error

// Source is the first stage of the pipeline.
type Source interface {
	Element
	SrcCaps() Caps
	// Source allocates the streaming closure. It's called every time
	// streaming starts, including restarts after flushing seek.
	Source() (SourceFunc, error)
}

// Transform is an intermediate stage of the pipeline.
type Transform interface {
	Element
	SinkCaps() Caps
	SrcCaps() Caps
	Transform() (TransformFunc, error)
}

// Sink is the final stage of the pipeline.
type Sink interface {
	Element
	SinkCaps() Caps
	Sink() (SinkFunc, error)
}

// Opener is implemented by elements which allocate resources
// when going from Null to Ready.
type Opener interface {
	Open() error
}

// Closer is implemented by elements which release resources
// when going from Ready to Null or when the pipeline is disposed.
type Closer interface {
	Close() error
}

// Flusher is implemented by elements which keep data between buffers.
// Flush is called after streaming stops and on flushing seek.
type Flusher interface {
	Flush() error
}

// VideoOverlay is implemented by elements which can render
// into a window supplied by the application.
type VideoOverlay interface {
	SetWindowHandle(handle uintptr)
}

// DurationQuerier is implemented by elements which know the stream duration.
type DurationQuerier interface {
	Duration() (time.Duration, error)
}

// Seeker is implemented by elements which can change stream position.
// It returns the position streaming will resume from.
type Seeker interface {
	Seek(position time.Duration, flags SeekFlags) (time.Duration, error)
}

// SeekFlags modify seek behaviour.
type SeekFlags uint8

// Seek flags.
const (
	// SeekFlagFlush discards all data in the pipeline before seeking.
	SeekFlagFlush SeekFlags = 1 << iota
	// SeekFlagKeyUnit snaps to the nearest preceding key unit.
	SeekFlagKeyUnit
	// SeekFlagAccurate requests exact position even if slower.
	SeekFlagAccurate
)

// Base implements common Element methods. It's meant to be embedded.
type Base struct {
	name       string
	factory    string
	properties *Properties
}

// NewBase returns base with properties defined by specs.
func NewBase(factory, name string, specs ...PropertySpec) Base {
	return Base{
		name:       name,
		factory:    factory,
		properties: NewProperties(specs...),
	}
}

// Name returns element's name.
func (b *Base) Name() string {
	return b.name
}

// Factory returns name of factory which made the element.
func (b *Base) Factory() string {
	return b.factory
}

// Properties returns element's properties.
func (b *Base) Properties() *Properties {
	return b.properties
}
