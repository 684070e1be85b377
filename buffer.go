package vidpipe

import (
	"fmt"
	"time"
)

// ClockTimeNone marks unknown timestamp or duration.
const ClockTimeNone time.Duration = -1

// BufferFlags describe buffer contents.
type BufferFlags uint8

// Buffer flags.
const (
	// FlagDeltaUnit marks buffer which can't be decoded on its own.
	FlagDeltaUnit BufferFlags = 1 << iota
	// FlagDiscont marks the first buffer after data loss or flush.
	FlagDiscont
	// FlagHeader marks stream headers, like SPS and PPS.
	FlagHeader
)

// Buffer is a unit of data passed between elements.
type Buffer struct {
	Data     []byte
	Caps     Caps
	PTS      time.Duration
	Duration time.Duration
	Flags    BufferFlags
}

// NewBuffer returns buffer without timestamps.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{
		Data:     data,
		Caps:     Any(),
		PTS:      ClockTimeNone,
		Duration: ClockTimeNone,
	}
}

// HasPTS reports if buffer has a valid presentation timestamp.
func (b *Buffer) HasPTS() bool {
	return b.PTS != ClockTimeNone && b.PTS >= 0
}

// Is reports if all flags are set.
func (b *Buffer) Is(f BufferFlags) bool {
	return b.Flags&f == f
}

// Size returns size of buffer data.
func (b *Buffer) Size() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

func (b *Buffer) String() string {
	return fmt.Sprintf("buffer size: %d pts: %v flags: %08b", len(b.Data), b.PTS, b.Flags)
}
