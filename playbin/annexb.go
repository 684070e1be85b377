package playbin

import (
	"bufio"
	"io"
	"os"
	"time"

	"github.com/nareix/joy4/codec/h264parser"
	"github.com/pkg/errors"

	"github.com/dudk/vidpipe"
	"github.com/dudk/vidpipe/h264"
)

// rawFrameRate is assumed for elementary streams, they carry no timing.
const rawFrameRate = 30

// annexBDemuxer reads raw H.264 byte stream and groups units into access units.
type annexBDemuxer struct {
	path     string
	file     *os.File
	scanner  *bufio.Scanner
	next     h264.NALU // first unit of the following access unit
	frame    int
	frames   int
	keyunits []int // frame numbers of keyframes
	info     StreamInfo
	caps     vidpipe.Caps
}

func openAnnexB(path string) (*annexBDemuxer, error) {
	d := &annexBDemuxer{path: path}
	if err := d.open(); err != nil {
		return nil, err
	}
	if err := d.scan(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *annexBDemuxer) open() error {
	file, err := os.Open(d.path)
	if err != nil {
		return err
	}
	d.file = file
	d.scanner = bufio.NewScanner(file)
	d.scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	d.scanner.Split(h264.ScanNALU)
	d.next = nil
	d.frame = 0
	return nil
}

// scan counts frames, remembers keyframes and parses stream info.
func (d *annexBDemuxer) scan() error {
	d.info = StreamInfo{Type: StreamVideo, Codec: "H.264"}
	d.caps = h264.SinkCaps
	for {
		au, err := d.readUnit()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		for _, n := range au {
			if n.Type() == h264.TypeSPS && d.info.Width == 0 {
				if sps, err := h264parser.ParseSPS(n); err == nil {
					d.info.Width, d.info.Height = int(sps.Width), int(sps.Height)
					d.caps = d.caps.With("width", d.info.Width).With("height", d.info.Height)
				}
			}
		}
		if h264.IsKeyframe(au) {
			d.keyunits = append(d.keyunits, d.frame)
		}
		d.frame++
	}
	if d.frame == 0 {
		return errors.Wrapf(ErrFormat, "%v has no pictures", d.path)
	}
	d.frames = d.frame
	return d.rewind()
}

func (d *annexBDemuxer) rewind() error {
	if err := d.file.Close(); err != nil {
		return err
	}
	return d.open()
}

// readUnit returns units of the next access unit with a picture.
// New access unit starts with delimiter, parameter sets or a slice
// whose first macroblock is zero.
func (d *annexBDemuxer) readUnit() ([]h264.NALU, error) {
	var au []h264.NALU
	picture := false
	if d.next != nil {
		au = append(au, d.next)
		picture = d.next.IsVCL()
		d.next = nil
	}
	for d.scanner.Scan() {
		token := d.scanner.Bytes()
		if len(token) == 0 {
			continue
		}
		n := append(h264.NALU(nil), token...)
		if picture && startsUnit(n) {
			d.next = n
			return au, nil
		}
		au = append(au, n)
		if n.IsVCL() {
			picture = true
		}
	}
	if err := d.scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read h264")
	}
	if !picture {
		return nil, io.EOF
	}
	return au, nil
}

func startsUnit(n h264.NALU) bool {
	switch n.Type() {
	case h264.TypeAUD, h264.TypeSPS, h264.TypePPS, h264.TypeSEI:
		return true
	case h264.TypeSlice, h264.TypeIDR:
		// first_mb_in_slice is ue(v), zero is coded as a single set bit.
		return len(n) > 1 && n[1]&0x80 != 0
	}
	return false
}

func (d *annexBDemuxer) time(frame int) time.Duration {
	return time.Duration(frame) * time.Second / rawFrameRate
}

func (d *annexBDemuxer) Streams() []StreamInfo {
	return []StreamInfo{d.info}
}

func (d *annexBDemuxer) Duration() time.Duration {
	return d.time(d.frames)
}

func (d *annexBDemuxer) Read() (*vidpipe.Buffer, error) {
	au, err := d.readUnit()
	if err != nil {
		return nil, err
	}
	b := vidpipe.NewBuffer(h264.Join(au...))
	b.Caps = d.caps
	b.PTS = d.time(d.frame)
	b.Duration = d.time(d.frame+1) - b.PTS
	if !h264.IsKeyframe(au) {
		b.Flags |= vidpipe.FlagDeltaUnit
	}
	d.frame++
	return b, nil
}

// Seek rewinds stream and skips frames. With keyUnit reading resumes
// from the keyframe preceding position.
func (d *annexBDemuxer) Seek(position time.Duration, keyUnit bool) (time.Duration, error) {
	target := int(position * rawFrameRate / time.Second)
	if target > d.frames {
		target = d.frames
	}
	if keyUnit {
		key := 0
		for _, k := range d.keyunits {
			if k > target {
				break
			}
			key = k
		}
		target = key
	}
	if err := d.rewind(); err != nil {
		return 0, err
	}
	for d.frame < target {
		if _, err := d.readUnit(); err != nil {
			if err == io.EOF {
				break
			}
			return 0, err
		}
		d.frame++
	}
	return d.time(d.frame), nil
}

func (d *annexBDemuxer) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}
