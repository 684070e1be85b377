// Package sink provides fakesink and filesink elements.
package sink

import (
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/dudk/vidpipe"
)

// Factory names.
const (
	FakeFactory = "fakesink"
	FileFactory = "filesink"
)

func init() {
	vidpipe.Register(FakeFactory, func(name string) (vidpipe.Element, error) {
		return NewFake(name), nil
	})
	vidpipe.Register(FileFactory, func(name string) (vidpipe.Element, error) {
		return NewFile(name), nil
	})
}

// Fake discards all buffers. It counts them and keeps the last one.
type Fake struct {
	vidpipe.Base
	// Handoff is called for every buffer before it's discarded.
	Handoff func(*vidpipe.Buffer)

	m       sync.Mutex
	buffers int
	bytes   int
	last    *vidpipe.Buffer
}

// NewFake returns fake sink with default properties.
func NewFake(name string) *Fake {
	return &Fake{
		Base: vidpipe.NewBase(FakeFactory, name,
			vidpipe.BoolProperty("sync", false, "Sync on the clock"),
			vidpipe.CapsProperty("caps", "Accepted caps"),
		),
	}
}

// SinkCaps returns caps property.
func (f *Fake) SinkCaps() vidpipe.Caps {
	return f.Properties().Caps("caps")
}

// Sink returns discarding closure.
func (f *Fake) Sink() (vidpipe.SinkFunc, error) {
	return func(b *vidpipe.Buffer) error {
		if f.Handoff != nil {
			f.Handoff(b)
		}
		f.m.Lock()
		f.buffers++
		f.bytes += b.Size()
		f.last = b
		f.m.Unlock()
		return nil
	}, nil
}

// Count returns number of buffers and bytes received.
func (f *Fake) Count() (buffers, bytes int) {
	f.m.Lock()
	defer f.m.Unlock()
	return f.buffers, f.bytes
}

// Last returns the last received buffer.
func (f *Fake) Last() *vidpipe.Buffer {
	f.m.Lock()
	defer f.m.Unlock()
	return f.last
}

// File writes buffer data into file at location.
type File struct {
	vidpipe.Base

	m    sync.Mutex
	file *os.File
}

// NewFile returns file sink with default properties.
func NewFile(name string) *File {
	return &File{
		Base: vidpipe.NewBase(FileFactory, name,
			vidpipe.StringProperty("location", "", "Location of the file to write"),
			vidpipe.BoolProperty("append", false, "Append to an already existing file"),
			vidpipe.BoolProperty("sync", false, "Sync on the clock"),
		),
	}
}

// SinkCaps returns ANY.
func (f *File) SinkCaps() vidpipe.Caps {
	return vidpipe.Any()
}

// Open creates file.
func (f *File) Open() error {
	location := f.Properties().String("location")
	if location == "" {
		return errors.New("no file name specified for writing")
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if f.Properties().Bool("append") {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(location, flags, 0644)
	if err != nil {
		return errors.Wrapf(err, "could not open file %q for writing", location)
	}
	f.m.Lock()
	f.file = file
	f.m.Unlock()
	return nil
}

// Sink returns closure which writes buffers.
func (f *File) Sink() (vidpipe.SinkFunc, error) {
	f.m.Lock()
	file := f.file
	f.m.Unlock()
	if file == nil {
		return nil, errors.New("file is not opened")
	}
	return func(b *vidpipe.Buffer) error {
		_, err := file.Write(b.Data)
		return errors.Wrap(err, "write")
	}, nil
}

// Flush commits written data to storage.
func (f *File) Flush() error {
	f.m.Lock()
	defer f.m.Unlock()
	if f.file == nil {
		return nil
	}
	return f.file.Sync()
}

// Close closes file.
func (f *File) Close() error {
	f.m.Lock()
	defer f.m.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}
