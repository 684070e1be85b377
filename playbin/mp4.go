package playbin

import (
	"io"
	"os"
	"time"

	"github.com/nareix/joy4/av"
	"github.com/nareix/joy4/codec/h264parser"
	"github.com/nareix/joy4/format/mp4"
	"github.com/pkg/errors"

	"github.com/dudk/vidpipe"
	"github.com/dudk/vidpipe/h264"
)

// mp4Demuxer reads H.264 video stream from mp4 container. Access units
// are converted to byte-stream format and keyframes are preceded by
// parameter sets.
type mp4Demuxer struct {
	file     *os.File
	demuxer  *mp4.Demuxer
	codecs   []av.CodecData
	video    int
	streams  []StreamInfo
	caps     vidpipe.Caps
	duration time.Duration
	pending  *av.Packet
}

func openMP4(path string) (*mp4Demuxer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	d := &mp4Demuxer{
		file:    file,
		demuxer: mp4.NewDemuxer(file),
		video:   -1,
	}
	if err := d.init(); err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "open %v", path)
	}
	return d, nil
}

func (d *mp4Demuxer) init() error {
	codecs, err := d.demuxer.Streams()
	if err != nil {
		return errors.Wrap(ErrFormat, err.Error())
	}
	d.codecs = codecs
	for i, codec := range codecs {
		info := StreamInfo{Index: i, Codec: codec.Type().String()}
		switch c := codec.(type) {
		case av.VideoCodecData:
			info.Type = StreamVideo
			info.Width, info.Height = c.Width(), c.Height()
			if codec.Type() == av.H264 && d.video < 0 {
				d.video = i
				d.caps = h264.SinkCaps.
					With("width", c.Width()).
					With("height", c.Height())
			}
		case av.AudioCodecData:
			info.Type = StreamAudio
			info.SampleRate = c.SampleRate()
			info.Channels = c.ChannelLayout().Count()
		}
		d.streams = append(d.streams, info)
	}
	if d.video < 0 {
		return errors.Wrap(ErrFormat, "no h264 video stream")
	}
	return d.scan()
}

// scan reads all packets to find out duration and rewinds.
func (d *mp4Demuxer) scan() error {
	var last, prev time.Duration = -1, -1
	for {
		pkt, err := d.demuxer.ReadPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if int(pkt.Idx) != d.video {
			continue
		}
		if pts := pkt.Time + pkt.CompositionTime; pts > last {
			prev, last = last, pts
		}
	}
	switch {
	case last < 0:
		d.duration = 0
	case prev < 0:
		d.duration = last
	default:
		d.duration = last + last - prev
	}
	return d.demuxer.SeekToTime(0)
}

func (d *mp4Demuxer) Streams() []StreamInfo {
	return d.streams
}

func (d *mp4Demuxer) Duration() time.Duration {
	return d.duration
}

func (d *mp4Demuxer) next() (av.Packet, error) {
	if d.pending != nil {
		pkt := *d.pending
		d.pending = nil
		return pkt, nil
	}
	for {
		pkt, err := d.demuxer.ReadPacket()
		if err != nil {
			return pkt, err
		}
		if int(pkt.Idx) == d.video {
			return pkt, nil
		}
	}
}

func (d *mp4Demuxer) Read() (*vidpipe.Buffer, error) {
	pkt, err := d.next()
	if err != nil {
		return nil, err
	}
	raw, _ := h264parser.SplitNALUs(pkt.Data)
	nalus := make([]h264.NALU, 0, len(raw)+2)
	if pkt.IsKeyFrame {
		if cd, ok := d.codecs[d.video].(h264parser.CodecData); ok {
			nalus = append(nalus, cd.SPS(), cd.PPS())
		}
	}
	for _, n := range raw {
		if len(n) > 0 {
			nalus = append(nalus, n)
		}
	}
	b := vidpipe.NewBuffer(h264.Join(nalus...))
	b.Caps = d.caps
	b.PTS = pkt.Time + pkt.CompositionTime
	if !pkt.IsKeyFrame {
		b.Flags |= vidpipe.FlagDeltaUnit
	}
	return b, nil
}

// Seek moves demuxer to the key frame preceding position. Container seek
// always snaps to key frame.
func (d *mp4Demuxer) Seek(position time.Duration, keyUnit bool) (time.Duration, error) {
	d.pending = nil
	if err := d.demuxer.SeekToTime(position); err != nil {
		return 0, errors.Wrapf(err, "seek to %v", position)
	}
	pkt, err := d.next()
	if err == io.EOF {
		return d.duration, nil
	}
	if err != nil {
		return 0, err
	}
	d.pending = &pkt
	return pkt.Time + pkt.CompositionTime, nil
}

func (d *mp4Demuxer) Close() error {
	return d.file.Close()
}
