package playbin

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"

	"github.com/dudk/vidpipe"
)

// wavFrames is a number of frames per buffer.
const wavFrames = 1024

// wavDemuxer reads PCM from wav file and pushes it as F32LE buffers.
type wavDemuxer struct {
	path     string
	file     *os.File
	decoder  *wav.Decoder
	ib       *audio.IntBuffer
	info     StreamInfo
	caps     vidpipe.Caps
	duration time.Duration
	offset   int // frames read
}

func openWAV(path string) (*wavDemuxer, error) {
	d := &wavDemuxer{path: path}
	if err := d.open(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *wavDemuxer) open() error {
	file, err := os.Open(d.path)
	if err != nil {
		return err
	}
	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		file.Close()
		return errors.Wrapf(ErrFormat, "%v is not a valid wav file", d.path)
	}
	duration, err := decoder.Duration()
	if err != nil {
		file.Close()
		return errors.Wrapf(err, "wav duration of %v", d.path)
	}
	format := decoder.Format()
	d.file = file
	d.decoder = decoder
	d.duration = duration
	d.offset = 0
	d.info = StreamInfo{
		Type:       StreamAudio,
		Codec:      fmt.Sprintf("PCM %d bit", decoder.BitDepth),
		SampleRate: format.SampleRate,
		Channels:   format.NumChannels,
		BitDepth:   int(decoder.BitDepth),
	}
	d.caps = audioCaps.
		With("rate", format.SampleRate).
		With("channels", format.NumChannels)
	d.ib = &audio.IntBuffer{
		Format:         format,
		Data:           make([]int, wavFrames*format.NumChannels),
		SourceBitDepth: int(decoder.BitDepth),
	}
	return nil
}

func (d *wavDemuxer) Streams() []StreamInfo {
	return []StreamInfo{d.info}
}

func (d *wavDemuxer) Duration() time.Duration {
	return d.duration
}

// time returns timestamp of frame.
func (d *wavDemuxer) time(frame int) time.Duration {
	return time.Duration(frame) * time.Second / time.Duration(d.info.SampleRate)
}

func (d *wavDemuxer) Read() (*vidpipe.Buffer, error) {
	n, err := d.decoder.PCMBuffer(d.ib)
	if err != nil {
		return nil, errors.Wrap(err, "decode wav")
	}
	frames := n / d.info.Channels
	if frames == 0 {
		return nil, io.EOF
	}
	b := vidpipe.NewBuffer(encodeSamples(d.ib.Data[:frames*d.info.Channels], d.info.BitDepth))
	b.Caps = d.caps
	b.PTS = d.time(d.offset)
	b.Duration = d.time(d.offset+frames) - b.PTS
	d.offset += frames
	return b, nil
}

// Seek reopens file and skips frames before position.
func (d *wavDemuxer) Seek(position time.Duration, keyUnit bool) (time.Duration, error) {
	if err := d.Close(); err != nil {
		return 0, err
	}
	if err := d.open(); err != nil {
		return 0, err
	}
	target := int(position * time.Duration(d.info.SampleRate) / time.Second)
	skip := &audio.IntBuffer{Format: d.ib.Format, SourceBitDepth: d.ib.SourceBitDepth}
	for d.offset < target {
		frames := target - d.offset
		if frames > wavFrames {
			frames = wavFrames
		}
		skip.Data = d.ib.Data[:frames*d.info.Channels]
		n, err := d.decoder.PCMBuffer(skip)
		if err != nil {
			return 0, errors.Wrap(err, "skip wav")
		}
		if n == 0 {
			break
		}
		d.offset += n / d.info.Channels
	}
	return d.time(d.offset), nil
}

func (d *wavDemuxer) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file, d.decoder = nil, nil
	return err
}
