package h264

import (
	"sync"

	"github.com/nareix/joy4/codec/h264parser"

	"github.com/dudk/vidpipe"
	"github.com/dudk/vidpipe/metric"
)

// DecoderFactory is the name of decoder factory.
const DecoderFactory = "avdec_h264"

func init() {
	vidpipe.Register(DecoderFactory, func(name string) (vidpipe.Element, error) {
		return NewDecoder(name), nil
	})
}

var (
	// SinkCaps are caps accepted by decoder.
	SinkCaps = vidpipe.MustParseCaps("video/x-h264, stream-format=byte-stream, alignment=au")
	// SrcCaps are caps of decoded frames.
	SrcCaps = vidpipe.MustParseCaps("video/x-raw")
)

// Decoder turns H.264 access units into frames. It doesn't reconstruct
// pixels: frame data is the access unit and caps carry picture size taken
// from the sequence parameter set. Nothing is output until the first
// keyframe and after every discontinuity until the next one.
type Decoder struct {
	vidpipe.Base

	m            sync.Mutex
	waitKeyframe bool
	sps, pps     NALU
	caps         vidpipe.Caps
	frames       int
	dropped      int
}

// NewDecoder returns decoder which waits for keyframe.
func NewDecoder(name string) *Decoder {
	return &Decoder{
		Base: vidpipe.NewBase(DecoderFactory, name,
			vidpipe.BoolProperty("wait-keyframe", true, "Drop frames until the first keyframe"),
		),
		waitKeyframe: true,
		caps:         SrcCaps,
	}
}

// SinkCaps returns caps accepted by decoder.
func (d *Decoder) SinkCaps() vidpipe.Caps {
	return SinkCaps
}

// SrcCaps returns caps of decoded frames.
func (d *Decoder) SrcCaps() vidpipe.Caps {
	return SrcCaps
}

// Transform returns decoding closure.
func (d *Decoder) Transform() (vidpipe.TransformFunc, error) {
	gate := d.Properties().Bool("wait-keyframe")
	return func(b *vidpipe.Buffer) ([]*vidpipe.Buffer, error) {
		d.m.Lock()
		defer d.m.Unlock()
		nalus := Split(b.Data)
		if len(nalus) == 0 {
			d.drop("malformed")
			return nil, nil
		}
		keyframe := IsKeyframe(nalus)
		d.parameterSets(nalus)
		if b.Is(vidpipe.FlagDiscont) {
			d.waitKeyframe = true
		}
		if gate && d.waitKeyframe {
			if !keyframe {
				d.drop("no-keyframe")
				return nil, nil
			}
			d.waitKeyframe = false
		}
		if !hasPicture(nalus) {
			return nil, nil
		}
		frame := &vidpipe.Buffer{
			Data:     b.Data,
			Caps:     d.caps,
			PTS:      b.PTS,
			Duration: b.Duration,
			Flags:    b.Flags &^ vidpipe.FlagHeader,
		}
		if keyframe {
			frame.Flags &^= vidpipe.FlagDeltaUnit
		} else {
			frame.Flags |= vidpipe.FlagDeltaUnit
		}
		d.frames++
		return []*vidpipe.Buffer{frame}, nil
	}, nil
}

// parameterSets remembers SPS and PPS and updates output caps on change.
func (d *Decoder) parameterSets(nalus []NALU) {
	for _, n := range nalus {
		switch n.Type() {
		case TypeSPS:
			if string(n) == string(d.sps) {
				continue
			}
			d.sps = append(NALU(nil), n...)
			info, err := h264parser.ParseSPS(n)
			if err != nil {
				d.caps = SrcCaps
				continue
			}
			d.caps = SrcCaps.
				With("width", int(info.Width)).
				With("height", int(info.Height))
		case TypePPS:
			d.pps = append(NALU(nil), n...)
		}
	}
}

func hasPicture(nalus []NALU) bool {
	for _, n := range nalus {
		if n.IsVCL() {
			return true
		}
	}
	return false
}

func (d *Decoder) drop(reason string) {
	d.dropped++
	metric.Dropped(DecoderFactory, reason)
}

// Flush implements vidpipe.Flusher. Decoder waits for keyframe after flush.
func (d *Decoder) Flush() error {
	d.m.Lock()
	defer d.m.Unlock()
	d.waitKeyframe = true
	return nil
}

// Close implements vidpipe.Closer.
func (d *Decoder) Close() error {
	d.m.Lock()
	defer d.m.Unlock()
	d.waitKeyframe = true
	d.sps, d.pps = nil, nil
	d.caps = SrcCaps
	d.frames, d.dropped = 0, 0
	return nil
}

// Stats returns number of output frames and dropped units.
func (d *Decoder) Stats() (frames, dropped int) {
	d.m.Lock()
	defer d.m.Unlock()
	return d.frames, d.dropped
}

// Caps returns caps of the last output frame.
func (d *Decoder) Caps() vidpipe.Caps {
	d.m.Lock()
	defer d.m.Unlock()
	return d.caps
}
