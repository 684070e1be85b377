// Package playbin provides the playbin element. It plays media file
// referenced by uri: demuxing is done by its source side, decoding and
// rendering by its sink side, so playbin alone makes a whole pipeline.
package playbin

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/dudk/vidpipe"
	"github.com/dudk/vidpipe/h264"
	"github.com/dudk/vidpipe/video"
)

// Factory is the name of playbin factory.
const Factory = "playbin"

var (
	// ErrFormat is returned when media can't be demuxed.
	ErrFormat = errors.New("playbin: unsupported media format")
	// ErrNoURI is returned when playbin is opened without uri.
	ErrNoURI = errors.New("playbin: uri is not set")
	// ErrNotOpened is returned when streaming starts before media is opened.
	ErrNotOpened = errors.New("playbin: media is not opened")
)

// audioCaps are caps of decoded audio buffers.
var audioCaps = vidpipe.MustParseCaps("audio/x-raw, format=F32LE, layout=interleaved")

func init() {
	vidpipe.Register(Factory, func(name string) (vidpipe.Element, error) {
		return New(name), nil
	})
}

// Playbin demuxes media file and renders its streams. Video is decoded
// with avdec_h264 and rendered into overlay window, audio is written to
// audio device.
type Playbin struct {
	vidpipe.Base

	m       sync.Mutex
	demuxer demuxer
	decoder *h264.Decoder
	video   *video.Sink
	audio   AudioDevice
	// audioOpened is accessed from sink closure and Close only.
	audioOpened bool
}

// New returns playbin with default properties.
func New(name string) *Playbin {
	return &Playbin{
		Base: vidpipe.NewBase(Factory, name,
			vidpipe.StringProperty("uri", "", "URI of the media to play"),
			vidpipe.BoolProperty("sync", true, "Sync on the clock"),
		),
		decoder: h264.NewDecoder(name + "-decoder"),
		video:   video.NewSink(video.AutoVideoSinkFactory, name+"-video", nil),
		audio:   NewAudioDevice(),
	}
}

// SrcCaps returns ANY.
func (p *Playbin) SrcCaps() vidpipe.Caps {
	return vidpipe.Any()
}

// SinkCaps returns ANY.
func (p *Playbin) SinkCaps() vidpipe.Caps {
	return vidpipe.Any()
}

// SetWindowHandle implements vidpipe.VideoOverlay.
func (p *Playbin) SetWindowHandle(handle uintptr) {
	p.video.SetWindowHandle(handle)
}

// SetRenderer sets renderer of video stream.
func (p *Playbin) SetRenderer(r video.Renderer) {
	p.video.SetRenderer(r)
}

// SetAudioDevice replaces audio device. It must be called before playing.
func (p *Playbin) SetAudioDevice(d AudioDevice) {
	p.m.Lock()
	p.audio = d
	p.m.Unlock()
}

// VideoSink returns internal video sink.
func (p *Playbin) VideoSink() *video.Sink {
	return p.video
}

// Streams returns streams of opened media.
func (p *Playbin) Streams() []StreamInfo {
	p.m.Lock()
	defer p.m.Unlock()
	if p.demuxer == nil {
		return nil
	}
	return append([]StreamInfo(nil), p.demuxer.Streams()...)
}

// Open opens media.
func (p *Playbin) Open() error {
	uri := p.Properties().String("uri")
	if uri == "" {
		return ErrNoURI
	}
	path, err := filePath(uri)
	if err != nil {
		return err
	}
	d, err := openMedia(path)
	if err != nil {
		return err
	}
	p.m.Lock()
	p.demuxer = d
	p.m.Unlock()
	return nil
}

// filePath converts uri to local file path. Plain paths are accepted too.
func filePath(uri string) (string, error) {
	if !strings.Contains(uri, "://") {
		return uri, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", errors.Wrapf(err, "parse uri %q", uri)
	}
	if u.Scheme != "file" {
		return "", errors.Errorf("playbin: unsupported uri scheme %q", u.Scheme)
	}
	return u.Path, nil
}

// openMedia picks demuxer by file extension.
func openMedia(path string) (demuxer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return openWAV(path)
	case ".mp4", ".m4v", ".mov":
		return openMP4(path)
	case ".h264", ".264":
		return openAnnexB(path)
	}
	return nil, errors.Wrapf(ErrFormat, "%v", path)
}

// Close releases media and audio device.
func (p *Playbin) Close() error {
	p.m.Lock()
	defer p.m.Unlock()
	var err error
	if p.demuxer != nil {
		err = p.demuxer.Close()
		p.demuxer = nil
	}
	if p.audioOpened {
		if aerr := p.audio.Close(); aerr != nil && err == nil {
			err = aerr
		}
		p.audioOpened = false
	}
	p.decoder.Close()
	p.video.Close()
	return err
}

// Flush rewinds media to the start.
func (p *Playbin) Flush() error {
	p.m.Lock()
	defer p.m.Unlock()
	p.decoder.Flush()
	if p.demuxer == nil {
		return nil
	}
	_, err := p.demuxer.Seek(0, false)
	return err
}

// Duration implements vidpipe.DurationQuerier.
func (p *Playbin) Duration() (time.Duration, error) {
	p.m.Lock()
	defer p.m.Unlock()
	if p.demuxer == nil {
		return vidpipe.ClockTimeNone, vidpipe.ErrQueryFailed
	}
	return p.demuxer.Duration(), nil
}

// Seek implements vidpipe.Seeker.
func (p *Playbin) Seek(position time.Duration, flags vidpipe.SeekFlags) (time.Duration, error) {
	p.m.Lock()
	defer p.m.Unlock()
	if p.demuxer == nil {
		return 0, ErrNotOpened
	}
	p.decoder.Flush()
	return p.demuxer.Seek(position, flags&vidpipe.SeekFlagKeyUnit != 0)
}

// Source returns demuxing closure.
func (p *Playbin) Source() (vidpipe.SourceFunc, error) {
	p.m.Lock()
	opened := p.demuxer != nil
	p.m.Unlock()
	if !opened {
		return nil, ErrNotOpened
	}
	return func(ctx context.Context) (*vidpipe.Buffer, error) {
		p.m.Lock()
		defer p.m.Unlock()
		if p.demuxer == nil {
			return nil, ErrNotOpened
		}
		return p.demuxer.Read()
	}, nil
}

// Sink returns closure which decodes and renders buffers by their caps.
func (p *Playbin) Sink() (vidpipe.SinkFunc, error) {
	decode, err := p.decoder.Transform()
	if err != nil {
		return nil, err
	}
	render, err := p.video.Sink()
	if err != nil {
		return nil, err
	}
	var samples []float32
	return func(b *vidpipe.Buffer) error {
		switch b.Caps.MediaType {
		case h264.SinkCaps.MediaType:
			frames, err := decode(b)
			if err != nil {
				return err
			}
			for _, f := range frames {
				if err := render(f); err != nil {
					return err
				}
			}
		case audioCaps.MediaType:
			if err := p.openAudio(b.Caps); err != nil {
				return err
			}
			samples = decodeSamples(b.Data, samples)
			return p.audio.Write(samples)
		}
		return nil
	}, nil
}

func (p *Playbin) openAudio(caps vidpipe.Caps) error {
	p.m.Lock()
	defer p.m.Unlock()
	if p.audioOpened {
		return nil
	}
	rate, _ := caps.Int("rate")
	channels, _ := caps.Int("channels")
	if err := p.audio.Open(rate, channels); err != nil {
		return errors.Wrap(err, "open audio device")
	}
	p.audioOpened = true
	return nil
}
