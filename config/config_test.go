package config_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudk/vidpipe"
	"github.com/dudk/vidpipe/config"
	_ "github.com/dudk/vidpipe/h264"
	_ "github.com/dudk/vidpipe/rtp"
	_ "github.com/dudk/vidpipe/sink"
	"github.com/dudk/vidpipe/udp"
	_ "github.com/dudk/vidpipe/video"
)

const receiverYAML = `
name: receiver
elements:
  - factory: udpsrc
    name: source
    properties:
      port: 9000
      caps: "application/x-rtp, media=video, clock-rate=90000, encoding-name=H264, payload=96"
  - factory: rtph264depay
  - factory: avdec_h264
  - factory: xvimagesink
    properties:
      sync: false
`

func TestParse(t *testing.T) {
	got, err := config.Parse([]byte(receiverYAML))
	require.NoError(t, err)
	want := config.Pipeline{
		Name: "receiver",
		Elements: []vidpipe.ElementSpec{
			{Factory: "udpsrc", Name: "source", Properties: map[string]interface{}{
				"port": 9000,
				"caps": config.DefaultCaps,
			}},
			{Factory: "rtph264depay"},
			{Factory: "avdec_h264"},
			{Factory: "xvimagesink", Properties: map[string]interface{}{"sync": false}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}

	p, err := got.Build()
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, 4, len(p.Elements()))
}

func TestParseFailure(t *testing.T) {
	tests := map[string]string{
		"empty":           ``,
		"unknown field":   "name: x\nlaunch: fakesink\nsinks: []\n",
		"both":            "launch: udpsrc ! fakesink\nelements:\n  - factory: fakesink\n",
		"neither":         "name: x\n",
		"no factory":      "elements:\n  - name: x\n",
		"multiple docs":   "launch: udpsrc ! fakesink\n---\nlaunch: udpsrc ! fakesink\n",
		"malformed value": "elements: 5\n",
	}
	for name, data := range tests {
		_, err := config.Parse([]byte(data))
		assert.True(t, errors.Is(err, config.ErrConfig), "%s: %v", name, err)
	}
}

func TestLaunch(t *testing.T) {
	c, err := config.Parse([]byte("launch: udpsrc port=9000 ! rtph264depay ! avdec_h264 ! fakesink\n"))
	require.NoError(t, err)
	specs, err := c.Specs()
	require.NoError(t, err)
	want := []vidpipe.ElementSpec{
		{Factory: "udpsrc", Properties: map[string]interface{}{"port": "9000"}},
		{Factory: "rtph264depay"},
		{Factory: "avdec_h264"},
		{Factory: "fakesink"},
	}
	if diff := cmp.Diff(want, specs); diff != "" {
		t.Errorf("Specs() mismatch (-want +got):\n%s", diff)
	}

	p, err := c.Build()
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, "pipeline", p.Name())
}

func TestReceiver(t *testing.T) {
	r := config.DefaultReceiver()
	assert.Equal(t, 9000, r.Port)
	assert.Equal(t, config.DefaultCaps, r.Caps)
	assert.False(t, r.Sync)

	c := r.Pipeline()
	data, err := c.Marshal()
	require.NoError(t, err)
	decoded, err := config.Parse(data)
	require.NoError(t, err)
	if diff := cmp.Diff(c, decoded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	p, err := c.Build()
	require.NoError(t, err)
	defer p.Close()
	e, ok := p.Element("source")
	require.True(t, ok)
	src := e.(*udp.Source)
	assert.Equal(t, 9000, src.Properties().Int("port"))
	assert.True(t, src.SrcCaps().Equal(vidpipe.MustParseCaps(config.DefaultCaps)))
	e, ok = p.Element("sink")
	require.True(t, ok)
	assert.Equal(t, config.DefaultSink, e.Factory())
	assert.False(t, e.Properties().Bool("sync"))
}

func TestReceiverOutput(t *testing.T) {
	r := config.DefaultReceiver()
	r.Output = "out.h264"
	c := r.Pipeline()
	factories := make([]string, 0, len(c.Elements))
	for _, e := range c.Elements {
		factories = append(factories, e.Factory)
	}
	assert.Equal(t, []string{"udpsrc", "rtph264depay", "filesink"}, factories)
}

func TestReceiverFromEnv(t *testing.T) {
	env := map[string]string{
		config.EnvPort: "5000",
		config.EnvSink: "autovideosink",
		config.EnvSync: "true",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	r, err := config.ReceiverFromEnv(lookup)
	require.NoError(t, err)
	want := config.Receiver{Port: 5000, Caps: config.DefaultCaps, Sink: "autovideosink", Sync: true}
	if diff := cmp.Diff(want, r); diff != "" {
		t.Errorf("ReceiverFromEnv() mismatch (-want +got):\n%s", diff)
	}

	for key, value := range map[string]string{
		config.EnvPort: "port",
		config.EnvCaps: "application/x-rtp, media",
		config.EnvSync: "maybe",
	} {
		env = map[string]string{key: value}
		_, err := config.ReceiverFromEnv(lookup)
		assert.True(t, errors.Is(err, config.ErrConfig), "%s: %v", key, err)
	}
}

func TestLoad(t *testing.T) {
	dir, err := ioutil.TempDir("", "config")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "receiver.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(receiverYAML), 0644))
	c, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "receiver", c.Name)

	_, err = config.Load(filepath.Join(dir, "receiver.json"))
	assert.Error(t, err)
	_, err = config.Load(filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)
}
