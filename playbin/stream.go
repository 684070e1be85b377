package playbin

import (
	"fmt"
	"time"

	"github.com/dudk/vidpipe"
)

// StreamType is a kind of media stream.
type StreamType int

// Stream types.
const (
	StreamVideo StreamType = iota
	StreamAudio
)

func (t StreamType) String() string {
	switch t {
	case StreamVideo:
		return "video"
	case StreamAudio:
		return "audio"
	}
	return "unknown"
}

// StreamInfo describes a stream of opened media.
type StreamInfo struct {
	Index int
	Type  StreamType
	Codec string
	// Video streams.
	Width, Height int
	// Audio streams.
	SampleRate, Channels, BitDepth int
}

func (s StreamInfo) String() string {
	switch s.Type {
	case StreamVideo:
		return fmt.Sprintf("video stream %d:\n  codec: %s\n  size: %dx%d", s.Index, s.Codec, s.Width, s.Height)
	case StreamAudio:
		return fmt.Sprintf("audio stream %d:\n  codec: %s\n  rate: %d Hz\n  channels: %d", s.Index, s.Codec, s.SampleRate, s.Channels)
	}
	return fmt.Sprintf("stream %d: %s", s.Index, s.Codec)
}

// demuxer reads buffers from media file.
type demuxer interface {
	Streams() []StreamInfo
	// Duration returns ClockTimeNone if it's unknown.
	Duration() time.Duration
	// Read returns io.EOF at the end of media.
	Read() (*vidpipe.Buffer, error)
	// Seek returns position reading resumes from.
	Seek(position time.Duration, keyUnit bool) (time.Duration, error)
	Close() error
}
