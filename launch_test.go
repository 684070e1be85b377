package vidpipe_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudk/vidpipe"
	"github.com/dudk/vidpipe/mock"
)

func TestParseLaunch(t *testing.T) {
	specs, err := vidpipe.ParseLaunch(`udpsrc port=9000 caps="` + rtpCaps + `" ! rtph264depay ! avdec_h264 name=decoder ! xvimagesink sync=false`)
	require.NoError(t, err)
	require.Equal(t, 4, len(specs))

	assert.Equal(t, "udpsrc", specs[0].Factory)
	assert.Equal(t, "9000", specs[0].Properties["port"])
	assert.Equal(t, rtpCaps, specs[0].Properties["caps"])
	assert.Equal(t, "rtph264depay", specs[1].Factory)
	assert.Nil(t, specs[1].Properties)
	assert.Equal(t, "avdec_h264", specs[2].Factory)
	assert.Equal(t, "decoder", specs[2].Name)
	assert.Equal(t, "false", specs[3].Properties["sync"])
}

func TestParseLaunchCapsFilter(t *testing.T) {
	specs, err := vidpipe.ParseLaunch("mocksrc ! video/x-h264, stream-format=byte-stream ! mocksink")
	require.NoError(t, err)
	require.Equal(t, 3, len(specs))
	assert.Equal(t, vidpipe.CapsFilterFactory, specs[1].Factory)
	assert.Equal(t, "video/x-h264, stream-format=byte-stream", specs[1].Properties["caps"])
}

func TestParseLaunchFailure(t *testing.T) {
	tests := []string{
		"",
		"mocksrc ! ! mocksink",
		`mocksrc caps="video/x-raw ! mocksink`,
		"mocksrc limit ! mocksink",
	}
	for _, test := range tests {
		_, err := vidpipe.ParseLaunch(test)
		assert.True(t, errors.Is(err, vidpipe.ErrSyntax), "%q: %v", test, err)
	}
}

func TestBuildLaunch(t *testing.T) {
	p, err := vidpipe.BuildLaunch("launch", "mocksrc limit=4 frame=10 caps=video/x-h264 ! video/x-h264 ! mocksink name=out")
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, vidpipe.Wait(p.SetState(vidpipe.Playing)))
	waitMessage(t, p, vidpipe.MessageEOS)
	out, ok := p.Element("out")
	require.True(t, ok)
	buffers := out.(*mock.Sink).Buffers()
	require.Equal(t, 4, len(buffers))
	assert.Equal(t, "video/x-h264", buffers[0].Caps.MediaType)

	_, err = vidpipe.BuildLaunch("launch", "mocksrc caps=video/x-h264 ! audio/x-raw ! mocksink")
	assert.True(t, errors.Is(err, vidpipe.ErrLink))
}
