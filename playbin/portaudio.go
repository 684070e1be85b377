//go:build portaudio
// +build portaudio

package playbin

import (
	"github.com/gordonklaus/portaudio"
	"github.com/pkg/errors"
)

// portaudioFrames is a number of frames written to stream per call.
const portaudioFrames = 512

func init() {
	NewAudioDevice = func() AudioDevice {
		return &PortAudio{}
	}
}

// PortAudio plays samples with default output device.
type PortAudio struct {
	buf      []float32
	stream   *portaudio.Stream
	channels int
}

// Open initializes portaudio and starts default stream.
func (d *PortAudio) Open(sampleRate, channels int) error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	d.channels = channels
	d.buf = make([]float32, portaudioFrames*channels)
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), portaudioFrames, &d.buf)
	if err != nil {
		portaudio.Terminate()
		return errors.Wrap(err, "open default stream")
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return errors.Wrap(err, "start stream")
	}
	d.stream = stream
	return nil
}

// Write copies samples into stream buffer. Incomplete tail is padded
// with silence.
func (d *PortAudio) Write(samples []float32) error {
	for len(samples) > 0 {
		n := copy(d.buf, samples)
		for i := n; i < len(d.buf); i++ {
			d.buf[i] = 0
		}
		if err := d.stream.Write(); err != nil {
			return err
		}
		samples = samples[n:]
	}
	return nil
}

// Close stops stream and terminates portaudio.
func (d *PortAudio) Close() error {
	if d.stream == nil {
		return nil
	}
	err := d.stream.Stop()
	if err != nil {
		return err
	}
	err = d.stream.Close()
	d.stream = nil
	if err != nil {
		return err
	}
	return portaudio.Terminate()
}
