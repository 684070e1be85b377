package udp_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dudk/vidpipe"
	"github.com/dudk/vidpipe/h264"
	vrtp "github.com/dudk/vidpipe/rtp"
	"github.com/dudk/vidpipe/udp"
	"github.com/dudk/vidpipe/video"
)

const rtpCaps = "application/x-rtp, media=video, clock-rate=90000, encoding-name=H264, payload=96"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestProperties(t *testing.T) {
	e, err := vidpipe.Make(udp.SourceFactory, "")
	require.NoError(t, err)
	src := e.(*udp.Source)
	assert.Equal(t, udp.DefaultPort, src.Properties().Int("port"))
	assert.True(t, src.SrcCaps().IsAny())

	require.NoError(t, vidpipe.SetProperties(src, map[string]interface{}{
		"port": 9000,
		"caps": rtpCaps,
	}))
	assert.Equal(t, 9000, src.Properties().Int("port"))
	assert.True(t, src.SrcCaps().Equal(vidpipe.MustParseCaps(rtpCaps)))
	assert.Equal(t,
		"application/x-rtp, media=(string)video, clock-rate=(int)90000, encoding-name=(string)H264, payload=(int)96",
		src.SrcCaps().String())
}

func TestNotOpened(t *testing.T) {
	src := udp.NewSource("src")
	_, err := src.Source()
	assert.Equal(t, udp.ErrNotOpened, err)
	assert.Nil(t, src.LocalAddr())
	assert.NoError(t, src.Close())
}

func TestBindFailure(t *testing.T) {
	first := udp.NewSource("first")
	require.NoError(t, first.Properties().Set("port", 0))
	require.NoError(t, first.Properties().Set("address", "127.0.0.1"))
	require.NoError(t, first.Open())
	defer first.Close()
	port := first.LocalAddr().(*net.UDPAddr).Port

	p, err := vidpipe.Build("bind", []vidpipe.ElementSpec{
		{Factory: udp.SourceFactory, Properties: map[string]interface{}{"port": port, "address": "127.0.0.1"}},
		{Factory: video.AutoVideoSinkFactory},
	})
	require.NoError(t, err)
	defer p.Close()

	err = vidpipe.Wait(p.SetState(vidpipe.Playing))
	var ee *vidpipe.ElementError
	require.True(t, errors.As(err, &ee), "unexpected error: %v", err)
	assert.Equal(t, vidpipe.Null, p.State())
}

func TestReceiveLargerThanMTU(t *testing.T) {
	src := udp.NewSource("src")
	require.NoError(t, vidpipe.SetProperties(src, map[string]interface{}{
		"port":    0,
		"address": "127.0.0.1",
		"mtu":     1200,
	}))
	require.NoError(t, src.Open())
	defer src.Close()
	read, err := src.Source()
	require.NoError(t, err)

	conn, err := net.DialUDP("udp", nil, src.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer conn.Close()
	datagram := make([]byte, 3000)
	for i := range datagram {
		datagram[i] = byte(i)
	}
	_, err = conn.Write(datagram)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, err := read(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(datagram), b.Size())
	assert.Equal(t, datagram, b.Data)
}

func TestReceive(t *testing.T) {
	p, err := vidpipe.Build("receiver", []vidpipe.ElementSpec{
		{Factory: udp.SourceFactory, Name: "src", Properties: map[string]interface{}{
			"port":    0,
			"address": "127.0.0.1",
			"caps":    rtpCaps,
		}},
		{Factory: vrtp.H264DepayFactory},
		{Factory: h264.DecoderFactory},
		{Factory: video.XvImageSinkFactory, Name: "sink", Properties: map[string]interface{}{"sync": false}},
	})
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, vidpipe.Wait(p.SetState(vidpipe.Playing)))

	e, _ := p.Element("src")
	conn, err := net.DialUDP("udp", nil, e.(*udp.Source).LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer conn.Close()

	packetizer := rtp.NewPacketizer(1200, 96, 0xcafe, &codecs.H264Payloader{}, rtp.NewRandomSequencer(), vrtp.ClockRate)
	keyframe := make(h264.NALU, 3000)
	keyframe[0] = 0x65
	for i := 1; i < len(keyframe); i++ {
		keyframe[i] = 0x11
	}
	units := [][]byte{
		h264.Join(h264.NALU{0x67, 0x42, 0xc0, 0x1e, 0xda, 0x05, 0x03, 0xf2}, h264.NALU{0x68, 0xce, 0x3c, 0x80}, keyframe),
		h264.Join(h264.NALU{0x41, 0x9a, 0x02}),
		h264.Join(h264.NALU{0x41, 0x9a, 0x03}),
		h264.Join(h264.NALU{0x41, 0x9a, 0x04}),
		h264.Join(h264.NALU{0x41, 0x9a, 0x05}),
	}
	for _, unit := range units {
		for _, packet := range packetizer.Packetize(unit, 3000) {
			data, err := packet.Marshal()
			require.NoError(t, err)
			_, err = conn.Write(data)
			require.NoError(t, err)
		}
	}

	sink, _ := p.Element("sink")
	assert.Eventually(t, func() bool {
		return sink.(*video.Sink).Frames() == len(units)
	}, 2*time.Second, 10*time.Millisecond)

	// live source never ends, so stop returns to ready without end-of-stream.
	require.NoError(t, vidpipe.Wait(p.Stop()))
	_, ok := p.Bus().TimedPop(0, vidpipe.MessageEOS)
	assert.False(t, ok)
}
