package playbin

import (
	"encoding/binary"
	"math"
)

// AudioDevice plays interleaved float samples.
type AudioDevice interface {
	Open(sampleRate, channels int) error
	Write(samples []float32) error
	Close() error
}

// NewAudioDevice returns the device used by new playbins. It's replaced
// when portaudio support is compiled in.
var NewAudioDevice = func() AudioDevice {
	return &discardDevice{}
}

// discardDevice drops all samples.
type discardDevice struct{}

func (*discardDevice) Open(int, int) error   { return nil }
func (*discardDevice) Write([]float32) error { return nil }
func (*discardDevice) Close() error          { return nil }

// encodeSamples converts integer samples of bitDepth to F32LE bytes.
// 8 bit samples are unsigned.
func encodeSamples(samples []int, bitDepth int) []byte {
	scale := float32(int64(1) << uint(bitDepth-1))
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}
	data := make([]byte, 4*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(float32(s-offset)/scale))
	}
	return data
}

// decodeSamples converts F32LE bytes into samples.
func decodeSamples(data []byte, samples []float32) []float32 {
	samples = samples[:0]
	for i := 0; i+4 <= len(data); i += 4 {
		samples = append(samples, math.Float32frombits(binary.LittleEndian.Uint32(data[i:])))
	}
	return samples
}
