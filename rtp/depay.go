// Package rtp provides RTP depayloaders.
package rtp

import (
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"

	"github.com/dudk/vidpipe"
	"github.com/dudk/vidpipe/h264"
	"github.com/dudk/vidpipe/metric"
)

// H264DepayFactory is the name of H.264 depayloader factory.
const H264DepayFactory = "rtph264depay"

// ClockRate of H.264 RTP timestamps.
const ClockRate = 90000

func init() {
	vidpipe.Register(H264DepayFactory, func(name string) (vidpipe.Element, error) {
		return NewH264Depay(name), nil
	})
}

var (
	// H264SinkCaps are caps accepted by H.264 depayloader.
	H264SinkCaps = vidpipe.MustParseCaps("application/x-rtp, media=video, clock-rate=90000, encoding-name=H264")
	// H264SrcCaps are caps of access units produced by H.264 depayloader.
	H264SrcCaps = vidpipe.MustParseCaps("video/x-h264, stream-format=byte-stream, alignment=au")
)

// H264Depay extracts H.264 access units from RTP packets. Units are
// pushed when marker bit is set or timestamp changes. Units with lost
// packets are dropped and the next one is flagged as discontinuity.
type H264Depay struct {
	vidpipe.Base

	m        sync.Mutex
	packet   *codecs.H264Packet
	au       []byte
	auTS     uint32
	started  bool // any packet received
	lastSeq  uint16
	corrupt  bool // current unit lost packets
	partial  bool // current unit received packets
	discont  bool
	inFU     bool
	tsExt    int64 // extended timestamp of the current unit relative to base
	lost     int
	dropped  int
	received int
}

// NewH264Depay returns a new depayloader.
func NewH264Depay(name string) *H264Depay {
	return &H264Depay{
		Base:   vidpipe.NewBase(H264DepayFactory, name),
		packet: &codecs.H264Packet{},
	}
}

// SinkCaps returns caps accepted by depayloader.
func (d *H264Depay) SinkCaps() vidpipe.Caps {
	return H264SinkCaps
}

// SrcCaps returns caps of produced access units.
func (d *H264Depay) SrcCaps() vidpipe.Caps {
	return H264SrcCaps
}

// Transform returns depayloading closure.
func (d *H264Depay) Transform() (vidpipe.TransformFunc, error) {
	return func(b *vidpipe.Buffer) ([]*vidpipe.Buffer, error) {
		var p rtp.Packet
		if err := p.Unmarshal(b.Data); err != nil {
			d.m.Lock()
			d.dropped++
			d.m.Unlock()
			metric.Dropped(H264DepayFactory, "malformed")
			return nil, nil
		}
		d.m.Lock()
		defer d.m.Unlock()
		return d.push(&p)
	}, nil
}

// push must be called with lock held.
func (d *H264Depay) push(p *rtp.Packet) ([]*vidpipe.Buffer, error) {
	var out []*vidpipe.Buffer
	d.received++
	if !d.started {
		d.started = true
		d.auTS = p.Timestamp
	} else {
		gap := p.SequenceNumber - d.lastSeq - 1
		if gap > 0x8000 {
			// reordered or duplicated packet.
			metric.Dropped(H264DepayFactory, "late")
			return nil, nil
		}
		if gap != 0 {
			d.lost += int(gap)
			d.corrupt = true
			d.discont = true
			d.resetFragments()
		}
		if p.Timestamp != d.auTS {
			if b := d.finish(); b != nil {
				out = append(out, b)
			}
			// new unit is complete only if its first packet starts a unit.
			if gap != 0 && !d.packet.IsPartitionHead(p.Payload) {
				d.corrupt = true
			}
			d.tsExt += int64(int32(p.Timestamp - d.auTS))
			d.auTS = p.Timestamp
		}
	}
	d.lastSeq = p.SequenceNumber
	d.partial = true

	if d.accept(p.Payload) {
		nalus, err := d.packet.Unmarshal(p.Payload)
		if err != nil {
			d.corrupt = true
			d.resetFragments()
		} else {
			d.au = append(d.au, nalus...)
		}
	}
	if p.Marker {
		if b := d.finish(); b != nil {
			out = append(out, b)
		}
	}
	return out, nil
}

// accept reports if payload should be depayloaded. Fragments of unit
// which start was lost are skipped.
func (d *H264Depay) accept(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	if h264.NALU(payload).Type() != h264.TypeFUA {
		return true
	}
	if len(payload) < 2 {
		d.corrupt = true
		return false
	}
	if payload[1]&0x80 != 0 {
		d.resetFragments()
		d.inFU = true
	}
	if !d.inFU {
		return false
	}
	if payload[1]&0x40 != 0 {
		d.inFU = false
	}
	return true
}

// finish returns buffer with current access unit or nil if it's empty or corrupt.
func (d *H264Depay) finish() *vidpipe.Buffer {
	defer func() {
		d.au = d.au[:0]
		d.corrupt = false
		d.partial = false
	}()
	if !d.partial {
		// previous unit was pushed on marker, nothing to drop.
		return nil
	}
	if d.corrupt {
		d.dropped++
		d.discont = true
		metric.Dropped(H264DepayFactory, "gap")
		return nil
	}
	if len(d.au) == 0 {
		return nil
	}
	data := make([]byte, len(d.au))
	copy(data, d.au)
	b := vidpipe.NewBuffer(data)
	b.Caps = H264SrcCaps
	b.PTS = toDuration(d.tsExt)
	if !h264.IsKeyframe(h264.Split(data)) {
		b.Flags |= vidpipe.FlagDeltaUnit
	}
	if d.discont {
		b.Flags |= vidpipe.FlagDiscont
		d.discont = false
	}
	return b
}

func (d *H264Depay) resetFragments() {
	d.packet = &codecs.H264Packet{}
	d.inFU = false
}

func toDuration(ticks int64) time.Duration {
	return time.Duration(ticks) * time.Second / ClockRate
}

// Flush implements vidpipe.Flusher. Pending unit is discarded and the
// next one is flagged as discontinuity.
func (d *H264Depay) Flush() error {
	d.m.Lock()
	defer d.m.Unlock()
	d.au = d.au[:0]
	d.corrupt = false
	d.partial = false
	d.started = false
	d.tsExt = 0
	d.discont = true
	d.resetFragments()
	return nil
}

// Stats returns number of received packets, lost packets and dropped units.
func (d *H264Depay) Stats() (received, lost, dropped int) {
	d.m.Lock()
	defer d.m.Unlock()
	return d.received, d.lost, d.dropped
}
