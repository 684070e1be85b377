// Package h264 provides H.264 elementary stream helpers and the avdec_h264 element.
package h264

import (
	"bytes"
)

// NALU is a single network abstraction layer unit without start code.
type NALU []byte

// NAL unit types.
const (
	TypeSlice = 1
	TypeIDR   = 5
	TypeSEI   = 6
	TypeSPS   = 7
	TypePPS   = 8
	TypeAUD   = 9
	TypeSTAPA = 24
	TypeFUA   = 28
)

// ForbiddenBit must be zero in valid unit.
func (nalu NALU) ForbiddenBit() byte {
	return nalu[0] & 0x80 >> 7
}

// NRI is a reference importance of unit.
func (nalu NALU) NRI() byte {
	return nalu[0] & 0x60 >> 5
}

// Type returns unit type.
func (nalu NALU) Type() byte {
	return nalu[0] & 0x1f
}

// IsVCL reports if unit carries coded picture data.
func (nalu NALU) IsVCL() bool {
	t := nalu.Type()
	return t >= TypeSlice && t <= TypeIDR
}

// StartCode precedes every unit in Annex B byte stream.
var StartCode = []byte{0, 0, 0, 1}

var shortStartCode = []byte{0, 0, 1}

// Split splits Annex B byte stream into units. Both 3 and 4 byte start
// codes are recognised. Data before the first start code is ignored.
func Split(data []byte) []NALU {
	var nalus []NALU
	i := bytes.Index(data, shortStartCode)
	if i < 0 {
		return nil
	}
	data = data[i+len(shortStartCode):]
	for len(data) > 0 {
		next := bytes.Index(data, shortStartCode)
		if next < 0 {
			nalus = appendNALU(nalus, data)
			break
		}
		end := next
		if end > 0 && data[end-1] == 0 {
			end--
		}
		nalus = appendNALU(nalus, data[:end])
		data = data[next+len(shortStartCode):]
	}
	return nalus
}

func appendNALU(nalus []NALU, data []byte) []NALU {
	if len(data) == 0 {
		return nalus
	}
	return append(nalus, NALU(data))
}

// Join returns Annex B byte stream with 4 byte start codes.
func Join(nalus ...NALU) []byte {
	size := 0
	for _, n := range nalus {
		size += len(StartCode) + len(n)
	}
	b := make([]byte, 0, size)
	for _, n := range nalus {
		b = append(b, StartCode...)
		b = append(b, n...)
	}
	return b
}

// IsKeyframe reports if access unit contains IDR picture.
func IsKeyframe(nalus []NALU) bool {
	for _, n := range nalus {
		if n.Type() == TypeIDR {
			return true
		}
	}
	return false
}

// ScanNALU is a bufio.SplitFunc which splits Annex B byte stream into units.
func ScanNALU(data []byte, atEOF bool) (advance int, token []byte, err error) {
	i := bytes.Index(data, shortStartCode)
	switch {
	case i < 0:
		if atEOF && len(data) > 0 {
			return len(data), data, nil
		}
		return 0, nil, nil
	case i == 0:
		return len(shortStartCode), nil, nil
	case i == 1 && data[0] == 0:
		return 1 + len(shortStartCode), nil, nil
	}
	end := i
	if data[i-1] == 0 {
		end--
	}
	return i + len(shortStartCode), data[:end], nil
}
